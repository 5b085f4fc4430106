package log

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestInit_FileLogging(t *testing.T) {
	tmpDir := t.TempDir()

	err := Init(Options{
		Verbose:    false,
		JSONFormat: false,
		DebugDir:   tmpDir,
	})
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	Info("test message", "key", "value")
	Close()

	today := time.Now().Format("2006-01-02")
	logFile := filepath.Join(tmpDir, "tipforge-"+today+".jsonl")
	content, err := os.ReadFile(logFile)
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}

	if !strings.Contains(string(content), "test message") {
		t.Errorf("expected log file to contain 'test message', got: %s", content)
	}
}

func TestInit_StderrLevels(t *testing.T) {
	var stderr bytes.Buffer

	if err := Init(Options{Stderr: &stderr}); err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	Debug("debug line")
	Info("info line")
	Warn("warn line")

	out := stderr.String()
	if strings.Contains(out, "debug line") || strings.Contains(out, "info line") {
		t.Errorf("non-verbose stderr carries debug/info output: %s", out)
	}
	if !strings.Contains(out, "warn line") {
		t.Errorf("warning missing from stderr: %s", out)
	}
}

func TestInit_VerboseStderr(t *testing.T) {
	var stderr bytes.Buffer

	if err := Init(Options{Verbose: true, Stderr: &stderr}); err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	Debug("debug line")
	if !strings.Contains(stderr.String(), "debug line") {
		t.Errorf("verbose stderr dropped debug output: %s", stderr.String())
	}
}

func TestSetOutput(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)

	Debug("captured line")
	if !strings.Contains(buf.String(), "captured line") {
		t.Errorf("SetOutput writer missed output: %s", buf.String())
	}
}

func TestSetRunID(t *testing.T) {
	var stderr bytes.Buffer

	if err := Init(Options{Verbose: true, Stderr: &stderr}); err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	SetRunID("run-123")
	Info("phase running")

	if !strings.Contains(stderr.String(), "run-123") {
		t.Errorf("run id missing from log output: %s", stderr.String())
	}
}

func TestCleanup_RemovesOldFiles(t *testing.T) {
	tmpDir := t.TempDir()

	old := filepath.Join(tmpDir, "tipforge-2020-01-01.jsonl")
	recent := filepath.Join(tmpDir, "tipforge-"+time.Now().Format("2006-01-02")+".jsonl")
	other := filepath.Join(tmpDir, "notes.txt")
	bareDate := filepath.Join(tmpDir, "2020-01-01.jsonl")
	for _, p := range []string{old, recent, other, bareDate} {
		if err := os.WriteFile(p, []byte("x"), 0644); err != nil {
			t.Fatalf("writing %s: %v", p, err)
		}
	}

	Cleanup(tmpDir, 7)

	if _, err := os.Stat(old); !os.IsNotExist(err) {
		t.Error("old log file not removed")
	}
	if _, err := os.Stat(recent); err != nil {
		t.Error("recent log file removed")
	}
	if _, err := os.Stat(other); err != nil {
		t.Error("non-log file removed")
	}
	if _, err := os.Stat(bareDate); err != nil {
		t.Error("file without the tipforge prefix removed")
	}
}

func TestFileWriter_UpdatesLatestSymlink(t *testing.T) {
	tmpDir := t.TempDir()

	w, err := NewFileWriter(tmpDir)
	if err != nil {
		t.Fatalf("NewFileWriter: %v", err)
	}
	defer w.Close()

	target, err := os.Readlink(filepath.Join(tmpDir, "latest"))
	if err != nil {
		t.Fatalf("reading latest symlink: %v", err)
	}
	want := "tipforge-" + time.Now().Format("2006-01-02") + ".jsonl"
	if target != want {
		t.Errorf("latest points at %s, want %s", target, want)
	}
}
