package depgraph

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrMissingNode indicates an Index that is not present in the graph
	ErrMissingNode = errors.New("depgraph: node not present")

	// ErrCycle indicates the graph contains a dependency cycle
	ErrCycle = errors.New("depgraph: dependency cycle")
)

// EdgeError is returned by Dependency when either endpoint is absent.
type EdgeError struct {
	Parent  Index
	Child   Index
	Missing Index
}

func (e *EdgeError) Error() string {
	return fmt.Sprintf("depgraph: edge %s -> %s: node %s not present", e.Parent, e.Child, e.Missing)
}

func (e *EdgeError) Unwrap() error {
	return ErrMissingNode
}

// CycleError is returned by the resolvers when some nodes can never
// become ready.
type CycleError struct {
	// Cycle is one witness cycle, first node repeated at the end
	Cycle []Index
	// Unresolved holds every node left out of the resolution, in arena order
	Unresolved []Index
}

func (e *CycleError) Error() string {
	if len(e.Cycle) == 0 {
		return fmt.Sprintf("%v: %d nodes unresolved", ErrCycle, len(e.Unresolved))
	}
	parts := make([]string, len(e.Cycle))
	for i, idx := range e.Cycle {
		parts[i] = idx.String()
	}
	return fmt.Sprintf("%v: %s", ErrCycle, strings.Join(parts, " -> "))
}

func (e *CycleError) Unwrap() error {
	return ErrCycle
}
