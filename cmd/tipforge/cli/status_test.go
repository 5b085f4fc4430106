package cli

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/intelstack/tipforge/internal/journal"
	"github.com/intelstack/tipforge/internal/phase"
)

func TestCollectPhaseStatus(t *testing.T) {
	jrnl, err := journal.Open(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatalf("opening journal: %v", err)
	}
	defer jrnl.Close()

	if err := jrnl.Record("run-1", "check-target", journal.Entry{Status: journal.StatusCompleted}); err != nil {
		t.Fatalf("Record: %v", err)
	}

	ordered := []*phase.Phase{
		{ID: "check-target", Run: func(ctx context.Context, env *phase.Env) error { return nil }},
		{ID: "install-deps", Run: func(ctx context.Context, env *phase.Env) error { return nil }},
	}

	statuses, err := collectPhaseStatus(jrnl, ordered)
	if err != nil {
		t.Fatalf("collectPhaseStatus: %v", err)
	}
	if len(statuses) != 2 {
		t.Fatalf("got %d statuses, want 2", len(statuses))
	}
	if statuses[0].Status != string(journal.StatusCompleted) {
		t.Errorf("check-target = %s, want completed", statuses[0].Status)
	}
	if statuses[1].Status != string(phase.StatusNotRun) {
		t.Errorf("install-deps = %s, want %s", statuses[1].Status, phase.StatusNotRun)
	}
}
