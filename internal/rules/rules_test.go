package rules

import (
	"strings"
	"testing"
)

func TestAll_Compiles(t *testing.T) {
	ruleSet, err := All("/var/www/platform/plugins")
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	if len(ruleSet) != 3 {
		t.Fatalf("got %d rules, want 3", len(ruleSet))
	}
	for _, r := range ruleSet {
		if r.Selector.Dir != "/var/www/platform/plugins" {
			t.Errorf("rule %s targets %s", r.Scope, r.Selector.Dir)
		}
	}
}

func TestForScopes_PreservesDeclarationOrder(t *testing.T) {
	ruleSet, err := ForScopes("/plugins", ScopeTagStructureCompat, ScopeTagWildcardFix)
	if err != nil {
		t.Fatalf("ForScopes: %v", err)
	}
	if len(ruleSet) != 2 {
		t.Fatalf("got %d rules, want 2", len(ruleSet))
	}
	if ruleSet[0].Scope != ScopeTagStructureCompat || ruleSet[1].Scope != ScopeTagWildcardFix {
		t.Errorf("scope order = %s, %s", ruleSet[0].Scope, ruleSet[1].Scope)
	}
}

func TestForScopes_UnknownScope(t *testing.T) {
	_, err := ForScopes("/plugins", "no-such-scope")
	if err == nil {
		t.Fatal("ForScopes succeeded with an unknown scope")
	}
	if !strings.Contains(err.Error(), "no-such-scope") {
		t.Errorf("error %q does not name the scope", err)
	}
}

// Every shipped rule must not match its own output, otherwise re-runs would
// patch the same file forever.
func TestShippedRules_Idempotent(t *testing.T) {
	samples := map[string]string{
		ScopeTagWildcardFix:     `<?php $filter = array('tag' => 'ics:');`,
		ScopeTagStructureCompat: `<?php echo $tag['name'];`,
		ScopeAbstractClassFix:   "<?php\nabstract class TrendWidget {}\n",
	}

	ruleSet, err := All("/plugins")
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	for _, r := range ruleSet {
		sample, ok := samples[r.Scope]
		if !ok {
			t.Fatalf("no sample content for scope %s", r.Scope)
		}
		if !r.Matches([]byte(sample)) {
			t.Errorf("rule %s does not match its sample", r.Scope)
			continue
		}
		out := r.Rewrite([]byte(sample))
		if r.Matches(out) {
			t.Errorf("rule %s matches its own output: %q", r.Scope, out)
		}
	}
}

func TestTagStructureRule_RewritesLiteralDollar(t *testing.T) {
	ruleSet, err := ForScopes("/plugins", ScopeTagStructureCompat)
	if err != nil {
		t.Fatalf("ForScopes: %v", err)
	}
	got := string(ruleSet[0].Rewrite([]byte(`<?php echo $tag['name'];`)))
	want := `<?php echo $tag['Tag']['name'];`
	if got != want {
		t.Errorf("Rewrite = %q, want %q", got, want)
	}
}

func TestAbstractClassRule_OnlyMatchesLineStart(t *testing.T) {
	ruleSet, err := ForScopes("/plugins", ScopeAbstractClassFix)
	if err != nil {
		t.Fatalf("ForScopes: %v", err)
	}
	// A mention in a comment or string must not trigger the rewrite.
	content := []byte("<?php\n// the abstract class pattern\n$doc = 'abstract class';\n")
	if ruleSet[0].Matches(content) {
		t.Error("rule matched a non-declaration mention")
	}
}
