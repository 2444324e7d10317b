package depgraph

import "slices"

// GroupedResolve orders the graph into groups using Kahn's algorithm.
// Group 0 holds every node without live dependencies; group k holds the
// nodes whose dependencies all lie in groups [0, k). Nodes inside a group
// are in arena order and have no ordering constraint between them.
//
// If some nodes can never become ready the groups resolved so far are
// returned together with a *CycleError.
func (g *Graph[T]) GroupedResolve() ([][]Index, error) {
	n := len(g.entries)
	indegree := make([]int, n)
	dependents := make([][]uint32, n)

	for slot := range g.entries {
		e := &g.entries[slot]
		if !e.occupied {
			continue
		}
		for _, dep := range e.node.dependencies {
			// edges to removed nodes no longer constrain anything
			if g.lookup(dep) == nil {
				continue
			}
			indegree[slot]++
			dependents[dep.slot] = append(dependents[dep.slot], uint32(slot))
		}
	}

	var ready []Index
	for slot := range g.entries {
		if g.entries[slot].occupied && indegree[slot] == 0 {
			ready = append(ready, g.indexAt(uint32(slot)))
		}
	}

	var groups [][]Index
	resolved := 0
	for len(ready) > 0 {
		groups = append(groups, ready)
		resolved += len(ready)

		var next []Index
		for _, idx := range ready {
			for _, parent := range dependents[idx.slot] {
				indegree[parent]--
				if indegree[parent] == 0 {
					next = append(next, g.indexAt(parent))
				}
			}
		}
		slices.SortFunc(next, func(a, b Index) int {
			return int(a.slot) - int(b.slot)
		})
		ready = next
	}

	if resolved == g.length {
		return groups, nil
	}
	return groups, g.cycleError(indegree)
}

// LinearResolve returns a total order in which every node follows all of
// its dependencies. It is GroupedResolve flattened.
func (g *Graph[T]) LinearResolve() ([]Index, error) {
	groups, err := g.GroupedResolve()
	order := make([]Index, 0, g.length)
	for _, group := range groups {
		order = append(order, group...)
	}
	return order, err
}

func (g *Graph[T]) indexAt(slot uint32) Index {
	return Index{slot: slot, generation: g.entries[slot].generation}
}

// cycleError collects the nodes left with unmet dependencies and walks
// from the first of them along unresolved edges until a node repeats.
// Every unresolved node has at least one unresolved dependency, so the
// walk always closes a cycle.
func (g *Graph[T]) cycleError(indegree []int) *CycleError {
	ce := &CycleError{}
	for slot := range g.entries {
		if g.entries[slot].occupied && indegree[slot] > 0 {
			ce.Unresolved = append(ce.Unresolved, g.indexAt(uint32(slot)))
		}
	}
	if len(ce.Unresolved) == 0 {
		return ce
	}

	position := make(map[uint32]int)
	var path []Index
	cur := ce.Unresolved[0]
	for {
		if at, seen := position[cur.slot]; seen {
			ce.Cycle = append(append([]Index(nil), path[at:]...), cur)
			return ce
		}
		position[cur.slot] = len(path)
		path = append(path, cur)

		next, ok := g.firstUnresolvedDependency(cur, indegree)
		if !ok {
			return ce
		}
		cur = next
	}
}

func (g *Graph[T]) firstUnresolvedDependency(i Index, indegree []int) (Index, bool) {
	for _, dep := range g.entries[i.slot].node.dependencies {
		if g.lookup(dep) != nil && indegree[dep.slot] > 0 {
			return dep, true
		}
	}
	return Index{}, false
}
