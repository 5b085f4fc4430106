package phase

import (
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"testing"
)

func ids(phases []*Phase) []string {
	out := make([]string, len(phases))
	for i, p := range phases {
		out[i] = p.ID
	}
	return out
}

func TestOrder_LinearChain(t *testing.T) {
	phases := []*Phase{
		{ID: "c", Requires: []string{"b"}},
		{ID: "a"},
		{ID: "b", Requires: []string{"a"}},
	}
	ordered, err := Order(phases)
	if err != nil {
		t.Fatalf("Order: %v", err)
	}
	got := strings.Join(ids(ordered), ",")
	if got != "a,b,c" {
		t.Errorf("order = %s, want a,b,c", got)
	}
}

func TestOrder_RegistrationOrderBreaksTies(t *testing.T) {
	phases := []*Phase{
		{ID: "root"},
		{ID: "left", Requires: []string{"root"}},
		{ID: "right", Requires: []string{"root"}},
	}
	ordered, err := Order(phases)
	if err != nil {
		t.Fatalf("Order: %v", err)
	}
	got := strings.Join(ids(ordered), ",")
	if got != "root,left,right" {
		t.Errorf("order = %s, want registration order among ready phases", got)
	}
}

func TestOrder_Cycle(t *testing.T) {
	phases := []*Phase{
		{ID: "a", Requires: []string{"b"}},
		{ID: "b", Requires: []string{"a"}},
	}
	_, err := Order(phases)
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("Order = %v, want *ConfigError", err)
	}
	if !strings.Contains(cfgErr.Reason, "cycle") {
		t.Errorf("reason %q does not mention the cycle", cfgErr.Reason)
	}
}

func TestOrder_UnknownPrerequisite(t *testing.T) {
	_, err := Order([]*Phase{{ID: "a", Requires: []string{"ghost"}}})
	if err == nil || !strings.Contains(err.Error(), "ghost") {
		t.Errorf("Order = %v, want error naming the unknown phase", err)
	}
}

func TestOrder_DuplicateID(t *testing.T) {
	_, err := Order([]*Phase{{ID: "a"}, {ID: "a"}})
	if err == nil || !strings.Contains(err.Error(), "duplicate") {
		t.Errorf("Order = %v, want duplicate id error", err)
	}
}

func TestOrder_SelfRequire(t *testing.T) {
	_, err := Order([]*Phase{{ID: "a", Requires: []string{"a"}}})
	if err == nil || !strings.Contains(err.Error(), "itself") {
		t.Errorf("Order = %v, want self-requirement error", err)
	}
}

func TestOrder_EmptyID(t *testing.T) {
	_, err := Order([]*Phase{{ID: ""}})
	if err == nil {
		t.Error("Order accepted a phase without an id")
	}
}

// Random DAGs: every prerequisite must precede its dependent, and every
// phase must appear exactly once.
func TestOrder_RandomDAGs(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for trial := 0; trial < 50; trial++ {
		n := 2 + rng.Intn(12)
		phases := make([]*Phase, n)
		for i := range phases {
			p := &Phase{ID: fmt.Sprintf("p%02d", i)}
			// Edges only point from lower to higher index, so the graph is
			// acyclic by construction.
			for j := 0; j < i; j++ {
				if rng.Intn(3) == 0 {
					p.Requires = append(p.Requires, fmt.Sprintf("p%02d", j))
				}
			}
			phases[i] = p
		}
		// Shuffle registration order; the edges stay acyclic.
		rng.Shuffle(n, func(i, j int) { phases[i], phases[j] = phases[j], phases[i] })

		ordered, err := Order(phases)
		if err != nil {
			t.Fatalf("trial %d: Order: %v", trial, err)
		}
		if len(ordered) != n {
			t.Fatalf("trial %d: got %d phases, want %d", trial, len(ordered), n)
		}

		position := make(map[string]int, n)
		for i, p := range ordered {
			position[p.ID] = i
		}
		for _, p := range ordered {
			for _, req := range p.Requires {
				if position[req] > position[p.ID] {
					t.Errorf("trial %d: %s ordered before its prerequisite %s", trial, p.ID, req)
				}
			}
		}
	}
}
