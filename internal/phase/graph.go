package phase

import (
	"fmt"
	"sort"
	"strings"
)

// Order returns the phases in a total order consistent with their
// prerequisite edges. Ties are broken by registration order so runs are
// reproducible. Duplicate ids, unknown prerequisites, and cycles are
// *ConfigError.
func Order(phases []*Phase) ([]*Phase, error) {
	index := make(map[string]int, len(phases))
	for i, p := range phases {
		if p.ID == "" {
			return nil, &ConfigError{Reason: fmt.Sprintf("phase %d has no id", i)}
		}
		if _, dup := index[p.ID]; dup {
			return nil, &ConfigError{Reason: fmt.Sprintf("duplicate phase id %q", p.ID)}
		}
		index[p.ID] = i
	}

	// Kahn's algorithm over prerequisite edges.
	indegree := make([]int, len(phases))
	dependents := make([][]int, len(phases))
	for i, p := range phases {
		for _, req := range p.Requires {
			j, ok := index[req]
			if !ok {
				return nil, &ConfigError{Reason: fmt.Sprintf("phase %q requires unknown phase %q", p.ID, req)}
			}
			if j == i {
				return nil, &ConfigError{Reason: fmt.Sprintf("phase %q requires itself", p.ID)}
			}
			indegree[i]++
			dependents[j] = append(dependents[j], i)
		}
	}

	var ready []int
	for i := range phases {
		if indegree[i] == 0 {
			ready = append(ready, i)
		}
	}

	ordered := make([]*Phase, 0, len(phases))
	for len(ready) > 0 {
		// Registration order, not discovery order, decides ties.
		sort.Ints(ready)
		i := ready[0]
		ready = ready[1:]

		ordered = append(ordered, phases[i])
		for _, dep := range dependents[i] {
			indegree[dep]--
			if indegree[dep] == 0 {
				ready = append(ready, dep)
			}
		}
	}

	if len(ordered) != len(phases) {
		var stuck []string
		for i, p := range phases {
			if indegree[i] > 0 {
				stuck = append(stuck, p.ID)
			}
		}
		sort.Strings(stuck)
		return nil, &ConfigError{Reason: "prerequisite cycle involving: " + strings.Join(stuck, ", ")}
	}

	return ordered, nil
}
