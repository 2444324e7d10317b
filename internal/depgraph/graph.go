// Package depgraph implements a generic dependency graph stored in a
// generation-checked arena.
//
// Nodes are addressed by Index handles. An Index stays valid across
// unrelated insertions and removals, and a removed slot that is later
// reused hands out a new generation, so a stale Index never aliases the
// new occupant.
//
// Edges point from a dependent (parent) to its dependency (child). The
// resolvers order nodes so that every child comes before its parents:
//
//	g := depgraph.New[string]()
//	db := g.Insert("db")
//	web := g.Insert("web")
//	_ = g.Dependency(web, db)
//
//	groups, err := g.GroupedResolve()
//	// groups == [][]Index{{db}, {web}}
//
// The Graph is not safe for concurrent use; callers synchronise.
package depgraph

import "fmt"

// Index is a handle to a node in a Graph.
type Index struct {
	slot       uint32
	generation uint64
}

// String returns the slot and generation, e.g. "3#1".
func (i Index) String() string {
	return fmt.Sprintf("%d#%d", i.slot, i.generation)
}

// Slot returns the arena slot the Index points at.
func (i Index) Slot() uint32 {
	return i.slot
}

// Generation returns the generation the Index was issued with.
func (i Index) Generation() uint64 {
	return i.generation
}

type node[T any] struct {
	value        T
	dependencies []Index
}

type entry[T any] struct {
	generation uint64
	occupied   bool
	node       node[T]
}

// Graph is an arena of nodes with directed dependency edges.
type Graph[T any] struct {
	entries []entry[T]
	free    []uint32
	length  int
}

// New returns an empty graph.
func New[T any]() *Graph[T] {
	return &Graph[T]{}
}

// Reserve grows the arena so that n more nodes can be inserted without
// reallocating.
func (g *Graph[T]) Reserve(n int) {
	if n <= 0 {
		return
	}
	need := g.length + n - len(g.free)
	if need <= cap(g.entries) {
		return
	}
	grown := make([]entry[T], len(g.entries), need)
	copy(grown, g.entries)
	g.entries = grown
}

// Len returns the number of nodes currently stored.
func (g *Graph[T]) Len() int {
	return g.length
}

// Insert stores v and returns its Index.
func (g *Graph[T]) Insert(v T) Index {
	g.length++

	if n := len(g.free); n > 0 {
		slot := g.free[n-1]
		g.free = g.free[:n-1]
		e := &g.entries[slot]
		e.occupied = true
		e.node = node[T]{value: v}
		return Index{slot: slot, generation: e.generation}
	}

	slot := uint32(len(g.entries))
	g.entries = append(g.entries, entry[T]{
		occupied: true,
		node:     node[T]{value: v},
	})
	return Index{slot: slot}
}

func (g *Graph[T]) lookup(i Index) *entry[T] {
	if int(i.slot) >= len(g.entries) {
		return nil
	}
	e := &g.entries[i.slot]
	if !e.occupied || e.generation != i.generation {
		return nil
	}
	return e
}

// Contains reports whether i refers to a live node.
func (g *Graph[T]) Contains(i Index) bool {
	return g.lookup(i) != nil
}

// Get returns the value stored at i.
func (g *Graph[T]) Get(i Index) (T, bool) {
	e := g.lookup(i)
	if e == nil {
		var zero T
		return zero, false
	}
	return e.node.value, true
}

// Mutate calls fn with a pointer to the value stored at i. The pointer
// must not be retained after fn returns.
func (g *Graph[T]) Mutate(i Index, fn func(v *T)) bool {
	e := g.lookup(i)
	if e == nil {
		return false
	}
	fn(&e.node.value)
	return true
}

// Remove deletes the node at i and returns its value. Edges from other
// nodes to i are left in place and ignored by the resolvers.
func (g *Graph[T]) Remove(i Index) (T, bool) {
	e := g.lookup(i)
	if e == nil {
		var zero T
		return zero, false
	}
	v := e.node.value
	e.occupied = false
	e.node = node[T]{}
	e.generation++
	g.free = append(g.free, i.slot)
	g.length--
	return v, true
}

// Dependency records that parent depends on child. Duplicate edges are
// kept.
func (g *Graph[T]) Dependency(parent, child Index) error {
	p := g.lookup(parent)
	if p == nil {
		return &EdgeError{Parent: parent, Child: child, Missing: parent}
	}
	if g.lookup(child) == nil {
		return &EdgeError{Parent: parent, Child: child, Missing: child}
	}
	p.node.dependencies = append(p.node.dependencies, child)
	return nil
}

// Dependencies returns a copy of the dependency list of i, or nil if i is
// not present.
func (g *Graph[T]) Dependencies(i Index) []Index {
	e := g.lookup(i)
	if e == nil {
		return nil
	}
	deps := make([]Index, len(e.node.dependencies))
	copy(deps, e.node.dependencies)
	return deps
}

// Indices returns the Index of every live node in arena order.
func (g *Graph[T]) Indices() []Index {
	out := make([]Index, 0, g.length)
	for slot := range g.entries {
		e := &g.entries[slot]
		if e.occupied {
			out = append(out, Index{slot: uint32(slot), generation: e.generation})
		}
	}
	return out
}
