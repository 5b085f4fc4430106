// Package phase holds the installation orchestrator: the ordered,
// dependency-annotated phase graph and the runner that executes it against
// one deployment target with idempotency gating and journaling.
package phase

import (
	"context"
	"fmt"

	"github.com/intelstack/tipforge/internal/bridge"
	"github.com/intelstack/tipforge/internal/config"
	"github.com/intelstack/tipforge/internal/journal"
)

// Env is what a phase body sees: the deployment target, configuration, and
// the journal for idempotency checks. Bodies collect warnings and a content
// fingerprint here; the runner persists both with the terminal entry.
type Env struct {
	Bridge  bridge.Bridge
	Journal *journal.Journal
	Config  *config.Config

	warnings    []string
	fingerprint string
}

// Warnf records a non-fatal warning attached to the phase's journal entry.
func (e *Env) Warnf(format string, args ...any) {
	e.warnings = append(e.warnings, fmt.Sprintf(format, args...))
}

// SetFingerprint records the content fingerprint of what the phase produced
// or patched, enabling fingerprint-matched skips on later runs.
func (e *Env) SetFingerprint(fp string) {
	e.fingerprint = fp
}

// Fingerprint returns the fingerprint recorded so far, if any.
func (e *Env) Fingerprint() string {
	return e.fingerprint
}

// Phase is one ordered, idempotent unit of installation work. Phases are
// registered at process start and never mutated during a run.
type Phase struct {
	// ID is the stable identifier other phases name in Requires.
	ID string

	// Label is the human-readable description.
	Label string

	// Requires lists prerequisite phase IDs. The graph must be acyclic.
	Requires []string

	// Invalidates lists cache scopes cleared after this phase completes.
	Invalidates []string

	// Check is the idempotency predicate: true means the phase's effect is
	// already present and execution can be skipped. Nil means never skip.
	Check func(ctx context.Context, env *Env) (bool, error)

	// Run is the execution body. It owns its transient-error retries.
	Run func(ctx context.Context, env *Env) error

	// Verify is the post-execution predicate. Nil means Run's success is
	// sufficient.
	Verify func(ctx context.Context, env *Env) error
}

// ConfigError reports a fatal configuration problem (cyclic graph, duplicate
// or unknown phase ids). It is raised before any remote mutation.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return "configuration error: " + e.Reason
}
