// Package rules ships the static, versioned patch rule set applied to
// deployed dashboard widgets. Phases reference rules by scope tag; the rule
// internals stay private to the patch engine.
package rules

import (
	"fmt"

	"github.com/intelstack/tipforge/internal/patch"
	"github.com/intelstack/tipforge/internal/validate"
)

// Version identifies this rule set release.
const Version = "2026.08"

// Scope tags phases refer to.
const (
	ScopeTagWildcardFix     = "tag-wildcard-fix"
	ScopeTagStructureCompat = "tag-structure-compat"
	ScopeAbstractClassFix   = "abstract-class-removal"
)

// All returns the full compiled rule set targeting widgets under pluginDir.
func All(pluginDir string) ([]*patch.Rule, error) {
	ruleSet := []*patch.Rule{
		{
			// Tag filters written as exact literals miss sub-tags like
			// 'ics:plc'; the trailing wildcard makes the platform's tag
			// lookup match the whole namespace. The closing quote in the
			// pattern keeps the rule idempotent: 'ics:%' no longer matches.
			Scope:    ScopeTagWildcardFix,
			Selector: patch.Selector{Dir: pluginDir, Glob: "*.php"},
			Pattern:  `'ics:'`,
			Replace:  `'ics:%'`,
			Lang:     validate.LangPHP,
		},
		{
			// Newer platform releases nest tag attributes one level deeper
			// in the API response.
			Scope:    ScopeTagStructureCompat,
			Selector: patch.Selector{Dir: pluginDir, Glob: "*.php"},
			Pattern:  `\$tag\['name'\]`,
			Replace:  `$$tag['Tag']['name']`,
			Lang:     validate.LangPHP,
		},
		{
			// The plugin loader instantiates widget classes directly;
			// abstract declarations crash it.
			Scope:    ScopeAbstractClassFix,
			Selector: patch.Selector{Dir: pluginDir, Glob: "*.php"},
			Pattern:  `(?m)^abstract\s+class\s+`,
			Replace:  `class `,
			Lang:     validate.LangPHP,
		},
	}

	if err := patch.CompileAll(ruleSet); err != nil {
		return nil, err
	}
	return ruleSet, nil
}

// ForScopes filters the full rule set down to the named scopes, preserving
// declaration order. Unknown scopes are an error so phases cannot silently
// reference a rule that no longer ships.
func ForScopes(pluginDir string, scopes ...string) ([]*patch.Rule, error) {
	all, err := All(pluginDir)
	if err != nil {
		return nil, err
	}

	byScope := make(map[string][]*patch.Rule)
	for _, r := range all {
		byScope[r.Scope] = append(byScope[r.Scope], r)
	}

	var selected []*patch.Rule
	for _, scope := range scopes {
		rs, ok := byScope[scope]
		if !ok {
			return nil, fmt.Errorf("unknown rule scope %q", scope)
		}
		selected = append(selected, rs...)
	}
	return selected, nil
}
