package phase

import (
	"time"
)

// Status is the terminal state of a phase within one run.
type Status string

const (
	StatusCompleted         Status = "completed"
	StatusFailed            Status = "failed"
	StatusSkippedIdempotent Status = "skipped-idempotent"
	StatusSkippedBlocked    Status = "skipped-blocked"
	StatusNotRun            Status = "not-run"
)

// Result is one phase's terminal state and diagnostics within a run.
type Result struct {
	ID         string        `json:"id"`
	Label      string        `json:"label"`
	Status     Status        `json:"status"`
	Diagnostic string        `json:"diagnostic,omitempty"`
	Warnings   []string      `json:"warnings,omitempty"`
	Duration   time.Duration `json:"duration_ns,omitempty"`
}

// Report is the machine-readable outcome of one run, phases in execution
// order.
type Report struct {
	RunID    string    `json:"run_id"`
	Target   string    `json:"target"`
	Started  time.Time `json:"started"`
	Finished time.Time `json:"finished"`
	Results  []Result  `json:"results"`
}

// Failed reports whether any phase ended Failed.
func (r Report) Failed() bool {
	for _, res := range r.Results {
		if res.Status == StatusFailed {
			return true
		}
	}
	return false
}

// ExitCode is zero only if no phase ended Failed.
func (r Report) ExitCode() int {
	if r.Failed() {
		return 1
	}
	return 0
}

// Result returns the entry for a phase id, if present.
func (r Report) ResultFor(id string) (Result, bool) {
	for _, res := range r.Results {
		if res.ID == id {
			return res, true
		}
	}
	return Result{}, false
}
