package depgraph

import (
	"testing"

	"github.com/google/uuid"
)

// memEdges is a simple in-memory EdgeSource for tests: dependent -> []prereq.
type memEdges struct {
	prereqs map[uuid.UUID][]uuid.UUID
}

func newMemEdges() *memEdges {
	return &memEdges{prereqs: make(map[uuid.UUID][]uuid.UUID)}
}

func (m *memEdges) add(dependent, prerequisite uuid.UUID) {
	m.prereqs[dependent] = append(m.prereqs[dependent], prerequisite)
}

func (m *memEdges) Prerequisites(dependent uuid.UUID) ([]uuid.UUID, error) {
	return m.prereqs[dependent], nil
}

func (m *memEdges) Dependents(prerequisite uuid.UUID) ([]uuid.UUID, error) {
	var out []uuid.UUID
	for dep, ps := range m.prereqs {
		for _, p := range ps {
			if p == prerequisite {
				out = append(out, dep)
			}
		}
	}
	return out, nil
}

func idsN(n int) []uuid.UUID {
	ids := make([]uuid.UUID, n)
	for i := range ids {
		ids[i] = uuid.New()
	}
	return ids
}

func TestGetExecutionOrderDiamond(t *testing.T) {
	// 1 -> 2, 1 -> 3, 2 -> 4, 3 -> 4  (1 depends on 2 and 3; both depend on 4)
	ids := idsN(4)
	n1, n2, n3, n4 := ids[0], ids[1], ids[2], ids[3]

	g := newMemEdges()
	g.add(n1, n2)
	g.add(n1, n3)
	g.add(n2, n4)
	g.add(n3, n4)

	order, err := GetExecutionOrder(g, n1)
	if err != nil {
		t.Fatalf("GetExecutionOrder: %v", err)
	}

	pos := make(map[uuid.UUID]int)
	for i, id := range order {
		pos[id] = i
	}
	if pos[n4] >= pos[n2] || pos[n4] >= pos[n3] {
		t.Fatalf("expected n4 before n2 and n3, got order %v", order)
	}
	if pos[n2] >= pos[n1] || pos[n3] >= pos[n1] {
		t.Fatalf("expected n2, n3 before n1, got order %v", order)
	}
	if order[len(order)-1] != n1 {
		t.Fatalf("expected root last, got %v", order)
	}
}

func TestWouldCreateCycleDetectsCycle(t *testing.T) {
	ids := idsN(2)
	a, b := ids[0], ids[1]

	g := newMemEdges()
	g.add(b, a) // b depends on a

	would, err := WouldCreateCycle(g, a, b) // now try: a depends on b
	if err != nil {
		t.Fatalf("WouldCreateCycle: %v", err)
	}
	if !would {
		t.Fatalf("expected cycle to be detected")
	}
}

func TestWouldCreateCycleSelfEdge(t *testing.T) {
	ids := idsN(1)
	a := ids[0]
	g := newMemEdges()

	would, err := WouldCreateCycle(g, a, a)
	if err != nil {
		t.Fatalf("WouldCreateCycle: %v", err)
	}
	if !would {
		t.Fatalf("expected self edge to count as a cycle")
	}
}

func TestValidateNewEdgeRejectsCycleSelfAndDuplicate(t *testing.T) {
	ids := idsN(2)
	a, b := ids[0], ids[1]
	g := newMemEdges()
	g.add(b, a)

	if err := ValidateNewEdge(g, a, a, nil); err != ErrSelfDependency {
		t.Fatalf("expected ErrSelfDependency, got %v", err)
	}

	if err := ValidateNewEdge(g, a, b, nil); err != ErrCycle {
		t.Fatalf("expected ErrCycle, got %v", err)
	}

	if err := ValidateNewEdge(g, b, a, []uuid.UUID{a}); err != ErrDuplicateEdge {
		t.Fatalf("expected ErrDuplicateEdge, got %v", err)
	}
}

type memProbe struct {
	success map[uuid.UUID]bool
}

func (m *memProbe) HasRecentSuccess(profile uuid.UUID, windowSeconds int64) (bool, error) {
	return m.success[profile], nil
}

func TestCheckCompleted(t *testing.T) {
	ids := idsN(3)
	dependent, p1, p2 := ids[0], ids[1], ids[2]
	g := newMemEdges()
	g.add(dependent, p1)
	g.add(dependent, p2)

	probe := &memProbe{success: map[uuid.UUID]bool{p1: true, p2: false}}

	allOK, pending, err := CheckCompleted(g, probe, dependent)
	if err != nil {
		t.Fatalf("CheckCompleted: %v", err)
	}
	if allOK {
		t.Fatalf("expected allOK=false")
	}
	if len(pending) != 1 || pending[0] != p2 {
		t.Fatalf("expected pending=[p2], got %v", pending)
	}
}

func TestBuildGraphRespectsDepthCap(t *testing.T) {
	// Build a chain of 15 nodes: n0 -> n1 -> ... -> n14
	ids := idsN(15)
	g := newMemEdges()
	for i := 0; i < 14; i++ {
		g.add(ids[i], ids[i+1])
	}

	nodes, err := BuildGraph(g, ids[0], 5)
	if err != nil {
		t.Fatalf("BuildGraph: %v", err)
	}
	if len(nodes) != 6 { // depth 0..5 inclusive
		t.Fatalf("expected 6 nodes within depth cap 5, got %d", len(nodes))
	}
}
