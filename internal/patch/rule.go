// Package patch applies declarative rewrite rules to plugin files already
// deployed in the target environment. Every mutation is bracketed by the
// validation gate; a file that fails validation on either side is left
// byte-for-byte as it was found.
package patch

import (
	"fmt"
	"path"
	"regexp"

	"github.com/intelstack/tipforge/internal/validate"
)

// Selector names the deployed files a rule targets: explicit paths, a glob
// over a deployment directory, or both.
type Selector struct {
	// Dir is the remote directory the Glob is evaluated against.
	Dir string

	// Glob matches file names (not paths) under Dir, e.g. "*.php".
	Glob string

	// Paths are explicit remote paths, taken as-is.
	Paths []string
}

// Rule is one declarative, idempotent rewrite. The Pattern must not match
// the rule's own output; Compile enforces what it can statically and the
// engine enforces the rest per file.
type Rule struct {
	// Scope tags the rule so phases can reference rule sets by name,
	// e.g. "tag-wildcard-fix".
	Scope string

	// Selector picks the target files.
	Selector Selector

	// Pattern is the match expression (Go regexp syntax).
	Pattern string

	// Replace is the replacement text. $1-style references expand
	// submatches of Pattern.
	Replace string

	// Lang selects the validation grammar for targeted files.
	Lang validate.Language

	re *regexp.Regexp
}

// Compile validates the rule and prepares it for application.
func (r *Rule) Compile() error {
	if r.Scope == "" {
		return fmt.Errorf("rule has no scope tag")
	}
	if r.Selector.Dir == "" && len(r.Selector.Paths) == 0 {
		return fmt.Errorf("rule %s: selector names no directory and no paths", r.Scope)
	}
	if r.Selector.Glob != "" {
		if _, err := path.Match(r.Selector.Glob, "x"); err != nil {
			return fmt.Errorf("rule %s: bad glob %q: %w", r.Scope, r.Selector.Glob, err)
		}
	}
	if r.Lang == "" {
		return fmt.Errorf("rule %s: no validation language", r.Scope)
	}
	re, err := regexp.Compile(r.Pattern)
	if err != nil {
		return fmt.Errorf("rule %s: bad pattern: %w", r.Scope, err)
	}
	r.re = re
	return nil
}

// CompileAll compiles a rule list in place, failing on the first bad rule.
func CompileAll(rules []*Rule) error {
	for _, r := range rules {
		if err := r.Compile(); err != nil {
			return err
		}
	}
	return nil
}

// Matches reports whether the rule's pattern occurs in content.
func (r *Rule) Matches(content []byte) bool {
	return r.re.Match(content)
}

// Rewrite applies the replacement to all occurrences.
func (r *Rule) Rewrite(content []byte) []byte {
	return r.re.ReplaceAll(content, []byte(r.Replace))
}
