package phase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/intelstack/tipforge/internal/cache"
	"github.com/intelstack/tipforge/internal/journal"
	"github.com/intelstack/tipforge/internal/log"
)

// Options selects which phases a run executes.
type Options struct {
	// From resumes execution at the named phase; earlier phases are
	// consulted through the journal only.
	From string

	// Only runs a single phase by id.
	Only string
}

// Runner executes phases strictly sequentially in dependency order against
// one deployment target.
type Runner struct {
	Journal *journal.Journal
	Env     *Env
	RunID   string
}

// Run resolves the phase order, gates each phase on idempotency and
// prerequisite outcomes, executes, verifies, and journals. Ordering errors
// are reported before any phase executes. Cancellation stops scheduling new
// phases; the in-flight phase reaches a terminal state first.
func (r *Runner) Run(ctx context.Context, phases []*Phase, opts Options) (Report, error) {
	report := Report{
		RunID:   r.RunID,
		Target:  r.Env.Config.Target,
		Started: time.Now().UTC(),
	}

	ordered, err := Order(phases)
	if err != nil {
		return report, err
	}

	selected, err := selectPhases(ordered, opts)
	if err != nil {
		return report, err
	}

	// Terminal state per phase id for this run's dependency gating.
	states := make(map[string]Status, len(ordered))

	canceled := false
	for _, p := range ordered {
		if !selected[p.ID] {
			continue
		}

		if canceled || ctx.Err() != nil {
			canceled = true
			report.Results = append(report.Results, Result{ID: p.ID, Label: p.Label, Status: StatusNotRun, Diagnostic: "run canceled"})
			continue
		}

		result := r.runPhase(ctx, p, states)
		states[p.ID] = result.Status
		report.Results = append(report.Results, result)
	}

	report.Finished = time.Now().UTC()
	return report, nil
}

// runPhase takes one phase through its state machine and journals the
// terminal state.
func (r *Runner) runPhase(ctx context.Context, p *Phase, states map[string]Status) Result {
	result := Result{ID: p.ID, Label: p.Label}
	started := time.Now()
	defer func() { result.Duration = time.Since(started) }()

	plog := log.With("phase", p.ID)

	// Prerequisite gating: a Failed prerequisite blocks its dependents
	// deterministically; independent phases are unaffected.
	if blockedBy := r.blockingPrereq(p, states); blockedBy != "" {
		result.Status = StatusSkippedBlocked
		result.Diagnostic = fmt.Sprintf("prerequisite %s not satisfied", blockedBy)
		plog.Warn("phase blocked", "prerequisite", blockedBy)
		return result
	}

	// Reset per-phase scratch state on the shared env.
	r.Env.warnings = nil
	r.Env.fingerprint = ""

	if p.Check != nil {
		satisfied, err := p.Check(ctx, r.Env)
		if err != nil {
			result.Status = StatusFailed
			result.Diagnostic = fmt.Sprintf("idempotency check: %v", err)
			r.record(p.ID, journal.StatusFailed, result)
			plog.Error("idempotency check failed", "error", err)
			return result
		}
		if satisfied {
			result.Status = StatusSkippedIdempotent
			result.Warnings = r.Env.warnings
			r.record(p.ID, journal.StatusSkippedIdempotent, result)
			plog.Info("phase effect already present, skipping")
			return result
		}
	}

	r.record(p.ID, journal.StatusPending, result)
	plog.Info("phase running", "label", p.Label)

	if err := p.Run(ctx, r.Env); err != nil {
		result.Status = StatusFailed
		result.Diagnostic = err.Error()
		result.Warnings = r.Env.warnings
		r.record(p.ID, journal.StatusFailed, result)
		plog.Error("phase failed", "error", err)
		return result
	}

	if p.Verify != nil {
		if err := p.Verify(ctx, r.Env); err != nil {
			result.Status = StatusFailed
			result.Diagnostic = fmt.Sprintf("verification: %v", err)
			result.Warnings = r.Env.warnings
			r.record(p.ID, journal.StatusFailed, result)
			plog.Error("phase verification failed", "error", err)
			return result
		}
	}

	// The phase mutated the deployment; clear dependent caches. Failures
	// here degrade but do not corrupt, so they downgrade to warnings.
	if len(p.Invalidates) > 0 {
		cacheReport := cache.Invalidate(ctx, r.Env.Bridge, p.Invalidates, r.Env.Config.CacheScopes)
		r.Env.warnings = append(r.Env.warnings, cacheReport.Warnings...)
	}

	result.Status = StatusCompleted
	result.Warnings = r.Env.warnings
	r.record(p.ID, journal.StatusCompleted, result)
	plog.Info("phase completed", "warnings", len(result.Warnings))
	return result
}

// blockingPrereq returns the id of a prerequisite that blocks p, or "".
// A prerequisite executed this run blocks unless it completed or was
// idempotently skipped; one outside the selection blocks unless the journal
// shows it satisfied.
func (r *Runner) blockingPrereq(p *Phase, states map[string]Status) string {
	for _, req := range p.Requires {
		if status, ran := states[req]; ran {
			if status != StatusCompleted && status != StatusSkippedIdempotent {
				return req
			}
			continue
		}
		entry, err := r.Journal.Get(req)
		if err != nil {
			if errors.Is(err, journal.ErrNotFound) {
				return req
			}
			return req
		}
		if !entry.Satisfied() {
			return req
		}
	}
	return ""
}

// record persists a journal entry for the phase, carrying the env's
// fingerprint and warnings.
func (r *Runner) record(phaseID string, status journal.Status, result Result) {
	entry := journal.Entry{
		Status:      status,
		Fingerprint: r.Env.fingerprint,
		Warnings:    result.Warnings,
		Diagnostic:  result.Diagnostic,
	}
	if err := r.Journal.Record(r.RunID, phaseID, entry); err != nil {
		// The run must not die on journal trouble, but it cannot go
		// unnoticed either.
		log.Error("journal write failed", "phase", phaseID, "error", err)
	}
}

// selectPhases applies the run/from/only selection surface.
func selectPhases(ordered []*Phase, opts Options) (map[string]bool, error) {
	selected := make(map[string]bool, len(ordered))

	switch {
	case opts.Only != "":
		found := false
		for _, p := range ordered {
			if p.ID == opts.Only {
				selected[p.ID] = true
				found = true
			}
		}
		if !found {
			return nil, &ConfigError{Reason: fmt.Sprintf("unknown phase %q", opts.Only)}
		}
	case opts.From != "":
		reached := false
		for _, p := range ordered {
			if p.ID == opts.From {
				reached = true
			}
			if reached {
				selected[p.ID] = true
			}
		}
		if !reached {
			return nil, &ConfigError{Reason: fmt.Sprintf("unknown phase %q", opts.From)}
		}
	default:
		for _, p := range ordered {
			selected[p.ID] = true
		}
	}

	return selected, nil
}
