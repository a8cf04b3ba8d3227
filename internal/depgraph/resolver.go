// Package depgraph implements Reef's dependency resolver:
// cycle-safe topological ordering and "dependencies completed" gating over
// the catalog's Dependency edges. The resolver walks the graph with
// recursive depth-first closures guarded by visited sets; it keeps no
// recursive data structures at rest.
package depgraph

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrCycle is returned when an operation would introduce a cycle into the
// dependency graph.
var ErrCycle = errors.New("depgraph: operation would introduce a cycle")

// ErrSelfDependency is returned when an edge would make a profile depend on
// itself.
var ErrSelfDependency = errors.New("depgraph: a profile cannot depend on itself")

// ErrDuplicateEdge is returned when the edge already exists.
var ErrDuplicateEdge = errors.New("depgraph: dependency edge already exists")

// EdgeSource is the minimal read interface the resolver needs. dependent ->
// depends on each of Prerequisites(dependent). Implementations back this
// with the catalog's Dependency table.
type EdgeSource interface {
	// Prerequisites returns the profiles that `dependent` directly depends on.
	Prerequisites(dependent uuid.UUID) ([]uuid.UUID, error)
	// Dependents returns the profiles that directly depend on `prerequisite`.
	Dependents(prerequisite uuid.UUID) ([]uuid.UUID, error)
}

// ExecutionProbe answers whether a profile has a recent successful execution,
// used by CheckCompleted. Backed by the catalog's Execution table.
type ExecutionProbe interface {
	// HasRecentSuccess reports whether `profile` has an Execution with
	// Status=Success and CompletedAt within the last `windowSeconds` seconds.
	HasRecentSuccess(profile uuid.UUID, windowSeconds int64) (bool, error)
}

// GetExecutionOrder returns prerequisites before dependants for `root`, via
// depth-first post-order traversal with a visited set. The result always
// ends with root itself (when root has no dependents reachable from itself,
// which is guaranteed by acyclicity).
func GetExecutionOrder(src EdgeSource, root uuid.UUID) ([]uuid.UUID, error) {
	visited := make(map[uuid.UUID]bool)
	var order []uuid.UUID

	var visit func(n uuid.UUID) error
	visit = func(n uuid.UUID) error {
		if visited[n] {
			return nil
		}
		visited[n] = true
		prereqs, err := src.Prerequisites(n)
		if err != nil {
			return fmt.Errorf("depgraph: failed to load prerequisites for %s: %w", n, err)
		}
		for _, p := range prereqs {
			if err := visit(p); err != nil {
				return err
			}
		}
		order = append(order, n)
		return nil
	}

	if err := visit(root); err != nil {
		return nil, err
	}
	return order, nil
}

// WouldCreateCycle reports whether adding an edge a -> dependsOnB (a depends
// on b) would introduce a cycle, i.e. whether b can already (transitively)
// reach a via existing prerequisite edges — meaning a is already an ancestor
// requirement of b, so requiring b to finish before a would be circular.
func WouldCreateCycle(src EdgeSource, a, dependsOnB uuid.UUID) (bool, error) {
	if a == dependsOnB {
		return true, nil
	}
	visited := make(map[uuid.UUID]bool)
	queue := []uuid.UUID{dependsOnB}

	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		if n == a {
			return true, nil
		}
		if visited[n] {
			continue
		}
		visited[n] = true

		prereqs, err := src.Prerequisites(n)
		if err != nil {
			return false, fmt.Errorf("depgraph: failed to load prerequisites for %s: %w", n, err)
		}
		queue = append(queue, prereqs...)
	}
	return false, nil
}

// ValidateNewEdge applies the write-time validation rules:
// non-self-referential, no cycle introduced, not a duplicate. existing is
// the dependent's current prerequisite set (used for the duplicate check).
func ValidateNewEdge(src EdgeSource, dependent, prerequisite uuid.UUID, existingPrereqs []uuid.UUID) error {
	if dependent == prerequisite {
		return ErrSelfDependency
	}
	for _, p := range existingPrereqs {
		if p == prerequisite {
			return ErrDuplicateEdge
		}
	}
	would, err := WouldCreateCycle(src, dependent, prerequisite)
	if err != nil {
		return err
	}
	if would {
		return ErrCycle
	}
	return nil
}

// CheckCompleted reports whether all prerequisites of `profile` have a
// recent (within the last hour) successful Execution, and the list of
// prerequisite IDs still pending.
func CheckCompleted(src EdgeSource, probe ExecutionProbe, profile uuid.UUID) (allOK bool, pending []uuid.UUID, err error) {
	const oneHourSeconds = 3600

	prereqs, err := src.Prerequisites(profile)
	if err != nil {
		return false, nil, fmt.Errorf("depgraph: failed to load prerequisites for %s: %w", profile, err)
	}

	allOK = true
	for _, p := range prereqs {
		ok, err := probe.HasRecentSuccess(p, oneHourSeconds)
		if err != nil {
			return false, nil, fmt.Errorf("depgraph: failed to probe execution for %s: %w", p, err)
		}
		if !ok {
			allOK = false
			pending = append(pending, p)
		}
	}
	return allOK, pending, nil
}

// BuildGraph performs a depth-first traversal from root with a visited set
// and a hard depth cap (default 10), to avoid pathological graphs blowing up
// a UI visualisation. It returns the set of nodes reached within the cap.
func BuildGraph(src EdgeSource, root uuid.UUID, depthCap int) ([]uuid.UUID, error) {
	if depthCap <= 0 {
		depthCap = 10
	}
	visited := make(map[uuid.UUID]bool)
	var nodes []uuid.UUID

	var visit func(n uuid.UUID, depth int) error
	visit = func(n uuid.UUID, depth int) error {
		if visited[n] {
			return nil
		}
		visited[n] = true
		nodes = append(nodes, n)
		if depth >= depthCap {
			return nil
		}
		prereqs, err := src.Prerequisites(n)
		if err != nil {
			return fmt.Errorf("depgraph: failed to load prerequisites for %s: %w", n, err)
		}
		for _, p := range prereqs {
			if err := visit(p, depth+1); err != nil {
				return err
			}
		}
		return nil
	}

	if err := visit(root, 0); err != nil {
		return nil, err
	}
	return nodes, nil
}
