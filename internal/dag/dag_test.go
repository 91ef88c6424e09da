package dag

import (
	"testing"

	"github.com/AleksandrNi/token-agent/internal/model"
)

func TestOrderRespectsInputs(t *testing.T) {
	sources := map[string]model.SourceSpec{
		"A": {ID: "A"},
		"B": {ID: "B", Inputs: []string{"A"}},
	}

	order, err := Order(sources)
	if err != nil {
		t.Fatal(err)
	}
	if len(order) != 2 || order[0].ID != "A" || order[1].ID != "B" {
		t.Fatalf("got order %v, want [A B]", idsOf(order))
	}
}

func TestOrderDetectsDirectCycle(t *testing.T) {
	sources := map[string]model.SourceSpec{
		"A": {ID: "A", Inputs: []string{"B"}},
		"B": {ID: "B", Inputs: []string{"A"}},
	}

	_, err := Order(sources)
	if err == nil {
		t.Fatal("expected cycle error")
	}
}

func TestOrderDetectsSelfReference(t *testing.T) {
	sources := map[string]model.SourceSpec{
		"A": {ID: "A", Inputs: []string{"A"}},
	}

	_, err := Order(sources)
	if err == nil {
		t.Fatal("expected cycle error for self-reference")
	}
}

func TestOrderDetectsDanglingReference(t *testing.T) {
	sources := map[string]model.SourceSpec{
		"A": {ID: "A", Inputs: []string{"does-not-exist"}},
	}

	_, err := Order(sources)
	if err == nil {
		t.Fatal("expected dangling reference error")
	}
}

func TestOrderDiamond(t *testing.T) {
	sources := map[string]model.SourceSpec{
		"A": {ID: "A"},
		"B": {ID: "B", Inputs: []string{"A"}},
		"C": {ID: "C", Inputs: []string{"A"}},
		"D": {ID: "D", Inputs: []string{"B", "C"}},
	}

	order, err := Order(sources)
	if err != nil {
		t.Fatal(err)
	}

	pos := make(map[string]int, len(order))
	for i, n := range order {
		pos[n.ID] = i
	}
	if pos["A"] >= pos["B"] || pos["A"] >= pos["C"] || pos["B"] >= pos["D"] || pos["C"] >= pos["D"] {
		t.Fatalf("dependency order violated: %v", idsOf(order))
	}
}

func idsOf(nodes []model.Node) []string {
	ids := make([]string, len(nodes))
	for i, n := range nodes {
		ids[i] = n.ID
	}
	return ids
}
