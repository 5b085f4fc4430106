// Package cache clears derived state in the target environment after a
// deployment mutation, so patched sources take effect. A stale cache only
// degrades behavior, so failures here are reported as warnings, never as
// phase failures.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/intelstack/tipforge/internal/bridge"
	"github.com/intelstack/tipforge/internal/log"
)

// Report lists what was cleared and what was not.
type Report struct {
	Cleared  []string
	Warnings []string
}

// Invalidate clears the cache directories mapped to the given scopes.
// Unknown scopes and failed clears become warnings in the report.
func Invalidate(ctx context.Context, br bridge.Bridge, scopes []string, mapping map[string][]string) Report {
	var report Report

	for _, scope := range scopes {
		dirs, ok := mapping[scope]
		if !ok {
			report.Warnings = append(report.Warnings, fmt.Sprintf("cache scope %q has no configured directories", scope))
			continue
		}
		for _, dir := range dirs {
			if err := clearDir(ctx, br, dir); err != nil {
				report.Warnings = append(report.Warnings, fmt.Sprintf("clearing %s (scope %s): %v", dir, scope, err))
				log.Warn("cache invalidation failed", "scope", scope, "dir", dir, "error", err)
				continue
			}
			report.Cleared = append(report.Cleared, dir)
			log.Debug("cache cleared", "scope", scope, "dir", dir)
		}
	}

	return report
}

// clearDir removes the contents of a remote directory, keeping the directory
// itself so the platform can repopulate it.
func clearDir(ctx context.Context, br bridge.Bridge, dir string) error {
	cmd := []string{"sh", "-c", fmt.Sprintf("rm -rf -- %s/* %s/.[!.]*", shellQuote(dir), shellQuote(dir))}
	res, err := br.Exec(ctx, cmd, 60*time.Second)
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return &bridge.RemoteCommandError{Cmd: "rm", ExitCode: res.ExitCode, Stderr: res.Stderr}
	}
	return nil
}

// shellQuote single-quotes a path for sh -c.
func shellQuote(s string) string {
	quoted := "'"
	for _, r := range s {
		if r == '\'' {
			quoted += `'\''`
			continue
		}
		quoted += string(r)
	}
	return quoted + "'"
}
