// Package dag orders sources by their inputs relation and detects cycles
// and dangling references.
package dag

import (
	"fmt"
	"sort"

	"github.com/AleksandrNi/token-agent/internal/model"
)

// mark tracks a node's visitation state during the depth-first traversal.
type mark int

const (
	unmarked mark = iota
	temporary
	permanent
)

// Order performs a depth-first topological sort of sources by their
// Inputs relation: every source appears after all transitive sources
// named in its Inputs. A temporary-mark re-entry (including
// self-reference) is reported as a cycle; an Inputs entry absent from
// sources is reported as a dangling reference.
func Order(sources map[string]model.SourceSpec) ([]model.Node, error) {
	marks := make(map[string]mark, len(sources))
	order := make([]model.Node, 0, len(sources))

	// Deterministic traversal root order, so errors and output order
	// don't depend on Go's randomized map iteration.
	ids := make([]string, 0, len(sources))
	for id := range sources {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var visit func(id string) error
	visit = func(id string) error {
		switch marks[id] {
		case permanent:
			return nil
		case temporary:
			return fmt.Errorf("cycle detected at source %q", id)
		}

		spec, ok := sources[id]
		if !ok {
			return fmt.Errorf("dangling reference to source %q", id)
		}

		marks[id] = temporary

		deps := append([]string(nil), spec.Inputs...)
		sort.Strings(deps)
		for _, dep := range deps {
			if dep == id {
				return fmt.Errorf("cycle detected at source %q: self-reference", id)
			}
			if err := visit(dep); err != nil {
				return err
			}
		}

		marks[id] = permanent
		order = append(order, model.Node{ID: id, Spec: spec, Deps: spec.Inputs})
		return nil
	}

	for _, id := range ids {
		if err := visit(id); err != nil {
			return nil, err
		}
	}

	return order, nil
}
