package bridgetest

import (
	"context"
	"testing"
	"time"

	"github.com/intelstack/tipforge/internal/bridge"
)

// A non-zero exit is an answer, not an Exec error. The fake must follow the
// same contract as the Docker bridge so phases tested against it behave the
// same against a live target.
func TestExec_NonZeroExitIsNotAnError(t *testing.T) {
	f := New()
	f.ExecHandler = func(cmd []string) (bridge.ExecResult, error) {
		return bridge.ExecResult{ExitCode: 1, Stderr: "missing"}, nil
	}

	res, err := f.Exec(context.Background(), []string{"test", "-d", "/plugins"}, time.Second)
	if err != nil {
		t.Fatalf("Exec: %v", err)
	}
	if res.ExitCode != 1 {
		t.Errorf("ExitCode = %d, want 1", res.ExitCode)
	}
	if res.Stderr != "missing" {
		t.Errorf("Stderr = %q", res.Stderr)
	}
}

func TestExec_DefaultSucceeds(t *testing.T) {
	f := New()

	res, err := f.Exec(context.Background(), []string{"true"}, time.Second)
	if err != nil {
		t.Fatalf("Exec: %v", err)
	}
	if res.ExitCode != 0 {
		t.Errorf("ExitCode = %d, want 0", res.ExitCode)
	}
	if got := f.ExecLog(); len(got) != 1 || got[0][0] != "true" {
		t.Errorf("ExecLog = %v", got)
	}
}
