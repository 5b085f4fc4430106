// Package phases is the shipped installation phase library: the concrete
// steps that take a freshly deployed platform container to a working,
// patched widget installation. Phase bodies drive the bridge and the patch
// engine; sequencing, gating, and journaling belong to the runner.
package phases

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/intelstack/tipforge/internal/bridge"
	"github.com/intelstack/tipforge/internal/fingerprint"
	"github.com/intelstack/tipforge/internal/journal"
	"github.com/intelstack/tipforge/internal/log"
	"github.com/intelstack/tipforge/internal/patch"
	"github.com/intelstack/tipforge/internal/phase"
	"github.com/intelstack/tipforge/internal/rules"
	"github.com/intelstack/tipforge/internal/validate"
)

// Cache scopes the shipped phases declare as mutated.
const (
	ScopePluginRegistry = "plugin-registry"
	ScopeCompiledViews  = "compiled-views"
)

// Standard returns the shipped phase set. Phase bodies read target details
// from the run environment's configuration.
func Standard() []*phase.Phase {
	return []*phase.Phase{
		checkTarget(),
		installDeps(),
		deployWidgets(),
		patchPhase("apply-tag-fix", "Widen literal tag filters to namespace wildcards",
			[]string{"deploy-widgets"},
			rules.ScopeTagWildcardFix),
		patchPhase("apply-compat-fixes", "Apply structure and loader compatibility fixes",
			[]string{"apply-tag-fix"},
			rules.ScopeTagStructureCompat, rules.ScopeAbstractClassFix),
		setPermissions(),
	}
}

// checkTarget verifies the container is live and the plugin directory exists
// before anything mutates the deployment.
func checkTarget() *phase.Phase {
	return &phase.Phase{
		ID:    "check-target",
		Label: "Verify deployment target is reachable",
		Check: func(ctx context.Context, env *phase.Env) (bool, error) {
			// Cheap to re-run, but a completed journal entry plus a live
			// target is enough to skip on resume.
			if !journalSatisfied(env, "check-target") {
				return false, nil
			}
			return env.Bridge.IsLive(ctx), nil
		},
		Run: func(ctx context.Context, env *phase.Env) error {
			if !env.Bridge.IsLive(ctx) {
				return fmt.Errorf("container %s: %w", env.Config.Target, bridge.ErrTargetUnreachable)
			}
			res, err := env.Bridge.Exec(ctx, []string{"test", "-d", env.Config.PluginDir}, env.Config.ExecTimeout.Std())
			if err != nil {
				return err
			}
			if res.ExitCode != 0 {
				return fmt.Errorf("plugin directory %s does not exist in %s", env.Config.PluginDir, env.Config.Target)
			}
			return nil
		},
	}
}

// installDeps runs the configured in-container dependency installation
// commands. Idempotency is fingerprinted over the command list.
func installDeps() *phase.Phase {
	cmdFingerprint := func(env *phase.Env) string {
		return fingerprint.Sum([]byte(strings.Join(env.Config.InstallCmds, "\x00")))
	}
	return &phase.Phase{
		ID:       "install-deps",
		Label:    "Install platform dependencies",
		Requires: []string{"check-target"},
		Check: func(ctx context.Context, env *phase.Env) (bool, error) {
			entry, err := env.Journal.Get("install-deps")
			if err != nil {
				if errors.Is(err, journal.ErrNotFound) {
					return false, nil
				}
				return false, err
			}
			done := entry.Satisfied() && entry.Fingerprint == cmdFingerprint(env)
			if done {
				env.SetFingerprint(entry.Fingerprint)
			}
			return done, nil
		},
		Run: func(ctx context.Context, env *phase.Env) error {
			for _, cmd := range env.Config.InstallCmds {
				log.Info("running install command", "cmd", cmd)
				err := phase.Retry(ctx, phase.DefaultRetry, func(ctx context.Context) error {
					res, err := env.Bridge.Exec(ctx, []string{"sh", "-c", cmd}, env.Config.ExecTimeout.Std())
					if err != nil {
						return err
					}
					if res.ExitCode != 0 {
						return &bridge.RemoteCommandError{Cmd: cmd, ExitCode: res.ExitCode, Stderr: strings.TrimSpace(res.Stderr)}
					}
					return nil
				})
				if err != nil {
					return fmt.Errorf("install command failed: %w", err)
				}
			}
			env.SetFingerprint(cmdFingerprint(env))
			return nil
		},
	}
}

// deployWidgets pushes local widget sources into the plugin directory and
// normalizes their ownership to the web user. Each file is syntax-validated
// locally first: a malformed widget must never reach the deployment.
func deployWidgets() *phase.Phase {
	return &phase.Phase{
		ID:          "deploy-widgets",
		Label:       "Deploy dashboard widgets",
		Requires:    []string{"install-deps"},
		Invalidates: []string{ScopePluginRegistry},
		Check: func(ctx context.Context, env *phase.Env) (bool, error) {
			widgets, err := localWidgets(env)
			if err != nil {
				return false, err
			}
			if len(widgets) == 0 {
				return true, nil
			}
			// Direct deployment inspection: every widget present remotely
			// with identical content.
			sums := make(map[string]string, len(widgets))
			for name, content := range widgets {
				remote, err := env.Bridge.Pull(ctx, path.Join(env.Config.PluginDir, name))
				if err != nil {
					if errors.Is(err, bridge.ErrNotFound) {
						return false, nil
					}
					return false, err
				}
				if fingerprint.Sum(remote) != fingerprint.Sum(content) {
					return false, nil
				}
				sums[name] = fingerprint.Sum(content)
			}
			env.SetFingerprint(fingerprint.Combine(sums))
			return true, nil
		},
		Run: func(ctx context.Context, env *phase.Env) error {
			widgets, err := localWidgets(env)
			if err != nil {
				return err
			}
			owner := env.Config.WebUser + ":" + env.Config.WebGroup

			sums := make(map[string]string, len(widgets))
			for name, content := range widgets {
				lang := validate.DetectLanguage(name)
				result, err := validate.Validate(content, lang)
				if err != nil {
					return fmt.Errorf("validating widget %s: %w", name, err)
				}
				if !result.OK {
					return fmt.Errorf("widget %s is malformed, refusing to deploy: %w", name, result.Err())
				}

				remotePath := path.Join(env.Config.PluginDir, name)
				err = phase.Retry(ctx, phase.DefaultRetry, func(ctx context.Context) error {
					if err := env.Bridge.Push(ctx, content, remotePath); err != nil {
						return err
					}
					return env.Bridge.SetOwnership(ctx, remotePath, owner, 0644)
				})
				if err != nil {
					return fmt.Errorf("deploying widget %s: %w", name, err)
				}
				sums[name] = fingerprint.Sum(content)
				log.Info("widget deployed", "widget", name)
			}

			env.SetFingerprint(fingerprint.Combine(sums))
			return nil
		},
		Verify: func(ctx context.Context, env *phase.Env) error {
			widgets, err := localWidgets(env)
			if err != nil {
				return err
			}
			names, err := env.Bridge.ListDir(ctx, env.Config.PluginDir)
			if err != nil {
				return err
			}
			deployed := make(map[string]bool, len(names))
			for _, n := range names {
				deployed[n] = true
			}
			for name := range widgets {
				if !deployed[name] {
					return fmt.Errorf("widget %s missing from %s after deploy", name, env.Config.PluginDir)
				}
			}
			return nil
		},
	}
}

// patchPhase builds a phase that applies the rule scopes to the deployed
// plugin tree via the patch engine.
func patchPhase(id, label string, requires []string, scopes ...string) *phase.Phase {
	return &phase.Phase{
		ID:          id,
		Label:       label,
		Requires:    requires,
		Invalidates: []string{ScopePluginRegistry, ScopeCompiledViews},
		Check: func(ctx context.Context, env *phase.Env) (bool, error) {
			return scopesSatisfied(ctx, env, scopes)
		},
		Run: func(ctx context.Context, env *phase.Env) error {
			ruleSet, err := rules.ForScopes(env.Config.PluginDir, scopes...)
			if err != nil {
				return err
			}

			engine := patch.NewEngine(env.Config.Workers)
			outcomes, err := engine.Apply(ctx, ruleSet, env.Bridge)
			if err != nil {
				return err
			}

			sums := make(map[string]string, len(outcomes))
			var failures []string
			for _, o := range outcomes {
				// Later rules overwrite earlier fingerprints for the same
				// file, leaving the final content's sum.
				sums[o.File] = o.Fingerprint
				if o.Failed() {
					failures = append(failures, fmt.Sprintf("%s (%s): %s: %s", o.File, o.Scope, o.Status, o.Diagnostic))
				}
			}
			env.SetFingerprint(fingerprint.Combine(sums))

			if len(failures) > 0 {
				return fmt.Errorf("patching failed:\n  %s", strings.Join(failures, "\n  "))
			}
			return nil
		},
		Verify: func(ctx context.Context, env *phase.Env) error {
			ok, err := scopesSatisfied(ctx, env, scopes)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("rule scopes %s still match deployed files", strings.Join(scopes, ", "))
			}
			return nil
		},
	}
}

// setPermissions normalizes ownership of the whole plugin tree so the
// platform's web process can load every widget.
func setPermissions() *phase.Phase {
	return &phase.Phase{
		ID:       "set-permissions",
		Label:    "Normalize plugin tree ownership",
		Requires: []string{"apply-compat-fixes"},
		Check: func(ctx context.Context, env *phase.Env) (bool, error) {
			entry, err := env.Journal.Get("set-permissions")
			if err != nil {
				if errors.Is(err, journal.ErrNotFound) {
					return false, nil
				}
				return false, err
			}
			done := entry.Satisfied() && entry.Fingerprint == permissionsFingerprint(env)
			if done {
				env.SetFingerprint(entry.Fingerprint)
			}
			return done, nil
		},
		Run: func(ctx context.Context, env *phase.Env) error {
			owner := env.Config.WebUser + ":" + env.Config.WebGroup
			err := phase.Retry(ctx, phase.DefaultRetry, func(ctx context.Context) error {
				res, err := env.Bridge.Exec(ctx, []string{"chown", "-R", owner, env.Config.PluginDir}, env.Config.ExecTimeout.Std())
				if err != nil {
					return err
				}
				if res.ExitCode != 0 {
					return &bridge.RemoteCommandError{Cmd: "chown -R", ExitCode: res.ExitCode, Stderr: strings.TrimSpace(res.Stderr)}
				}
				return nil
			})
			if err != nil {
				return err
			}
			env.SetFingerprint(permissionsFingerprint(env))
			return nil
		},
	}
}

// permissionsFingerprint covers the inputs of set-permissions so ownership
// config changes invalidate the journal entry.
func permissionsFingerprint(env *phase.Env) string {
	return fingerprint.Sum([]byte(env.Config.WebUser + ":" + env.Config.WebGroup + "@" + env.Config.PluginDir))
}

// localWidgets reads deployable widget sources from the configured local
// directory. No directory configured means nothing to deploy.
func localWidgets(env *phase.Env) (map[string][]byte, error) {
	if env.Config.WidgetDir == "" {
		return nil, nil
	}

	entries, err := os.ReadDir(env.Config.WidgetDir)
	if err != nil {
		return nil, fmt.Errorf("reading widget dir: %w", err)
	}

	widgets := make(map[string][]byte)
	for _, entry := range entries {
		if entry.IsDir() || validate.DetectLanguage(entry.Name()) == "" {
			continue
		}
		content, err := os.ReadFile(filepath.Join(env.Config.WidgetDir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("reading widget %s: %w", entry.Name(), err)
		}
		widgets[entry.Name()] = content
	}
	return widgets, nil
}

// scopesSatisfied inspects the deployment directly: the scopes' effect is
// present when no rule pattern matches any of its target files.
func scopesSatisfied(ctx context.Context, env *phase.Env, scopes []string) (bool, error) {
	ruleSet, err := rules.ForScopes(env.Config.PluginDir, scopes...)
	if err != nil {
		return false, err
	}

	contents := make(map[string][]byte)
	for _, rule := range ruleSet {
		files, err := patch.ResolveFiles(ctx, rule.Selector, env.Bridge)
		if err != nil {
			return false, err
		}
		for _, file := range files {
			content, ok := contents[file]
			if !ok {
				content, err = env.Bridge.Pull(ctx, file)
				if err != nil {
					return false, err
				}
				contents[file] = content
			}
			if rule.Matches(content) {
				return false, nil
			}
		}
	}
	return true, nil
}

// journalSatisfied reports whether the journal shows a phase's effect in
// place, from a completed run or an idempotent skip.
func journalSatisfied(env *phase.Env, id string) bool {
	entry, err := env.Journal.Get(id)
	return err == nil && entry.Satisfied()
}
