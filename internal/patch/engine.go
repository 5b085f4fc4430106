package patch

import (
	"context"
	"fmt"
	"path"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/intelstack/tipforge/internal/bridge"
	"github.com/intelstack/tipforge/internal/fingerprint"
	"github.com/intelstack/tipforge/internal/log"
	"github.com/intelstack/tipforge/internal/validate"
)

// Status classifies the outcome of one (file, rule) application.
type Status string

const (
	StatusApplied                Status = "applied"
	StatusAlreadySatisfied       Status = "already-satisfied"
	StatusValidationFailedBefore Status = "validation-failed-before"
	StatusValidationFailedAfter  Status = "validation-failed-after"
)

// Outcome records what happened to one file under one rule.
type Outcome struct {
	File        string `json:"file"`
	Scope       string `json:"scope"`
	Status      Status `json:"status"`
	Diagnostic  string `json:"diagnostic,omitempty"`
	Fingerprint string `json:"fingerprint,omitempty"` // content fingerprint after the operation
}

// Failed reports whether this outcome should fail the owning phase.
func (o Outcome) Failed() bool {
	return o.Status == StatusValidationFailedBefore || o.Status == StatusValidationFailedAfter
}

// Engine applies rules through a Bridge with bounded per-file concurrency.
type Engine struct {
	// Workers bounds concurrent file processing. Rules against one file
	// always run serially, in declaration order.
	Workers int
}

// NewEngine creates an engine with the given worker bound (minimum 1).
func NewEngine(workers int) *Engine {
	if workers < 1 {
		workers = 1
	}
	return &Engine{Workers: workers}
}

// Apply runs the rules against their selected files. Rules must be compiled.
// The returned outcomes cover every (file, rule) pair that was evaluated;
// a selector matching zero files contributes no outcomes and no error.
// Transport failures abort with an error; validation failures do not, they
// are reported in the outcomes.
func (e *Engine) Apply(ctx context.Context, rules []*Rule, br bridge.Bridge) ([]Outcome, error) {
	// Group rules by target file, preserving declaration order per file.
	fileRules := make(map[string][]*Rule)
	var order []string
	for _, rule := range rules {
		files, err := ResolveFiles(ctx, rule.Selector, br)
		if err != nil {
			return nil, fmt.Errorf("resolving selector for rule %s: %w", rule.Scope, err)
		}
		if len(files) == 0 {
			log.Debug("rule selector matched no files", "scope", rule.Scope, "dir", rule.Selector.Dir, "glob", rule.Selector.Glob)
		}
		for _, f := range files {
			if _, seen := fileRules[f]; !seen {
				order = append(order, f)
			}
			fileRules[f] = append(fileRules[f], rule)
		}
	}

	results := make([][]Outcome, len(order))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.Workers)

	for i, file := range order {
		g.Go(func() error {
			outcomes, err := e.applyFile(gctx, file, fileRules[file], br)
			if err != nil {
				return err
			}
			results[i] = outcomes
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	var all []Outcome
	for _, r := range results {
		all = append(all, r...)
	}
	return all, nil
}

// applyFile applies each rule to one file in order. The remote file is
// rewritten at most once per rule, and never when validation fails.
func (e *Engine) applyFile(ctx context.Context, file string, rules []*Rule, br bridge.Bridge) ([]Outcome, error) {
	content, err := br.Pull(ctx, file)
	if err != nil {
		return nil, fmt.Errorf("pulling %s: %w", file, err)
	}

	outcomes := make([]Outcome, 0, len(rules))
	for _, rule := range rules {
		outcome, patched, err := e.applyRule(ctx, file, content, rule, br)
		if err != nil {
			return nil, err
		}
		outcomes = append(outcomes, outcome)
		if outcome.Status == StatusApplied {
			// Later rules observe the output of earlier ones.
			content = patched
		}
	}
	return outcomes, nil
}

// applyRule evaluates a single rule against the current content of a file.
// On StatusApplied the returned buffer is the new remote content.
func (e *Engine) applyRule(ctx context.Context, file string, content []byte, rule *Rule, br bridge.Bridge) (Outcome, []byte, error) {
	outcome := Outcome{File: file, Scope: rule.Scope}

	if !rule.Matches(content) {
		// Idempotent short-circuit: this is what makes re-runs safe.
		outcome.Status = StatusAlreadySatisfied
		outcome.Fingerprint = fingerprint.Sum(content)
		return outcome, nil, nil
	}

	// Pre-check: a file that is already broken is surfaced, not masked by
	// layering a patch on top of the defect.
	pre, err := validate.Validate(content, rule.Lang)
	if err != nil {
		return outcome, nil, fmt.Errorf("validating %s: %w", file, err)
	}
	if !pre.OK {
		outcome.Status = StatusValidationFailedBefore
		outcome.Diagnostic = pre.Err().Error()
		outcome.Fingerprint = fingerprint.Sum(content)
		log.Warn("pre-patch validation failed", "file", file, "scope", rule.Scope, "diagnostic", outcome.Diagnostic)
		return outcome, nil, nil
	}

	patched := rule.Rewrite(content)

	if rule.Matches(patched) {
		// The rule violates its own idempotency contract; applying it would
		// make re-runs unsafe.
		return outcome, nil, fmt.Errorf("rule %s is not idempotent: pattern still matches its own output on %s", rule.Scope, file)
	}

	post, err := validate.Validate(patched, rule.Lang)
	if err != nil {
		return outcome, nil, fmt.Errorf("validating patched %s: %w", file, err)
	}
	if !post.OK {
		// The patched buffer is discarded; the remote file stays untouched.
		outcome.Status = StatusValidationFailedAfter
		outcome.Diagnostic = post.Err().Error()
		outcome.Fingerprint = fingerprint.Sum(content)
		log.Warn("post-patch validation failed, leaving file unchanged", "file", file, "scope", rule.Scope, "diagnostic", outcome.Diagnostic)
		return outcome, nil, nil
	}

	// Capture ownership before the write so it can be restored after.
	stat, err := br.Stat(ctx, file)
	if err != nil {
		return outcome, nil, fmt.Errorf("stat %s: %w", file, err)
	}

	if err := br.Push(ctx, patched, file); err != nil {
		return outcome, nil, fmt.Errorf("pushing %s: %w", file, err)
	}
	if err := br.SetOwnership(ctx, file, stat.Owner(), stat.Mode); err != nil {
		return outcome, nil, fmt.Errorf("restoring ownership of %s: %w", file, err)
	}

	outcome.Status = StatusApplied
	outcome.Fingerprint = fingerprint.Sum(patched)
	log.Info("patch applied", "file", file, "scope", rule.Scope)
	return outcome, patched, nil
}

// ResolveFiles expands a selector into remote paths. A glob that matches
// nothing yields an empty set, which Apply treats as a no-op success.
func ResolveFiles(ctx context.Context, sel Selector, br bridge.Bridge) ([]string, error) {
	seen := make(map[string]bool)
	var files []string

	add := func(p string) {
		if !seen[p] {
			seen[p] = true
			files = append(files, p)
		}
	}

	for _, p := range sel.Paths {
		add(p)
	}

	if sel.Dir != "" && sel.Glob != "" {
		names, err := br.ListDir(ctx, sel.Dir)
		if err != nil {
			return nil, err
		}
		for _, name := range names {
			ok, err := path.Match(sel.Glob, name)
			if err != nil {
				return nil, fmt.Errorf("glob %q: %w", sel.Glob, err)
			}
			if ok {
				add(path.Join(sel.Dir, name))
			}
		}
	}

	sort.Strings(files)
	return files, nil
}
