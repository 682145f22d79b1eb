// Package graph holds the pure, in-memory graph operations the
// scheduling engine is built on: building a task/edge graph, cycle
// detection, topological ordering, and descendant enumeration. Every
// function here is a CPU-only computation over (tasks, edges) — no
// I/O, no suspension points, no locks held.
package graph

import (
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/taskgraph/scheduler/internal/models"
)

// CycleError is returned by TopologicalOrder when the edge set does
// not form a DAG.
type CycleError struct {
	// Remaining holds the ids still unresolved when the cycle was
	// detected — not necessarily the cycle itself, but always a
	// superset containing it.
	Remaining []uuid.UUID
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("cycle detected among %d task(s)", len(e.Remaining))
}

// node is a task plus its adjacency within one Graph instance.
type node struct {
	task  models.Task
	out   map[uuid.UUID]struct{}
	in    map[uuid.UUID]struct{}
}

// Graph is a directed graph of tasks connected by precedence edges.
// It is immutable after Build except through WouldCreateCycle, which
// never mutates the receiver.
type Graph struct {
	nodes map[uuid.UUID]*node
}

// Build constructs a Graph from a flat task list and edge list. Edges
// referring to a task id not present in tasks are ignored — callers
// are expected to pass a task list and edge list scoped to the same
// project, where this cannot happen.
func Build(tasks []models.Task, edges []models.Edge) *Graph {
	g := &Graph{nodes: make(map[uuid.UUID]*node, len(tasks))}
	for _, t := range tasks {
		g.nodes[t.ID] = &node{
			task: t,
			out:  make(map[uuid.UUID]struct{}),
			in:   make(map[uuid.UUID]struct{}),
		}
	}
	for _, e := range edges {
		p, okP := g.nodes[e.PredecessorID]
		s, okS := g.nodes[e.SuccessorID]
		if !okP || !okS {
			continue
		}
		p.out[e.SuccessorID] = struct{}{}
		s.in[e.PredecessorID] = struct{}{}
	}
	return g
}

// Task returns the task data stored for id, and whether id is present.
func (g *Graph) Task(id uuid.UUID) (models.Task, bool) {
	n, ok := g.nodes[id]
	if !ok {
		return models.Task{}, false
	}
	return n.task, true
}

// Len reports the number of nodes in the graph.
func (g *Graph) Len() int { return len(g.nodes) }

// Predecessors returns the direct predecessor ids of id, sorted for
// determinism.
func (g *Graph) Predecessors(id uuid.UUID) []uuid.UUID {
	n, ok := g.nodes[id]
	if !ok {
		return nil
	}
	return sortedKeys(n.in)
}

// Successors returns the direct successor ids of id, sorted for
// determinism.
func (g *Graph) Successors(id uuid.UUID) []uuid.UUID {
	n, ok := g.nodes[id]
	if !ok {
		return nil
	}
	return sortedKeys(n.out)
}

func sortedKeys(m map[uuid.UUID]struct{}) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

// TopologicalOrder returns the node ids in an order such that every
// edge points from an earlier element to a later one. Kahn's
// algorithm is used; ties are broken by ascending task id string so
// the order is deterministic within a run. Returns a *CycleError if
// the edge set does not form a DAG.
func (g *Graph) TopologicalOrder() ([]uuid.UUID, error) {
	inDegree := make(map[uuid.UUID]int, len(g.nodes))
	for id, n := range g.nodes {
		inDegree[id] = len(n.in)
	}

	ready := make([]uuid.UUID, 0)
	for id, deg := range inDegree {
		if deg == 0 {
			ready = append(ready, id)
		}
	}
	sort.Slice(ready, func(i, j int) bool { return ready[i].String() < ready[j].String() })

	order := make([]uuid.UUID, 0, len(g.nodes))
	for len(ready) > 0 {
		// Pop the smallest id to keep the order deterministic.
		id := ready[0]
		ready = ready[1:]
		order = append(order, id)

		next := make([]uuid.UUID, 0)
		for _, succID := range g.Successors(id) {
			inDegree[succID]--
			if inDegree[succID] == 0 {
				next = append(next, succID)
			}
		}
		sort.Slice(next, func(i, j int) bool { return next[i].String() < next[j].String() })

		// Merge next into ready while keeping ready sorted.
		ready = mergeSorted(ready, next)
	}

	if len(order) != len(g.nodes) {
		var remaining []uuid.UUID
		for id, deg := range inDegree {
			if deg > 0 {
				remaining = append(remaining, id)
			}
		}
		return nil, &CycleError{Remaining: remaining}
	}

	return order, nil
}

func mergeSorted(a, b []uuid.UUID) []uuid.UUID {
	if len(b) == 0 {
		return a
	}
	merged := make([]uuid.UUID, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		if a[i].String() <= b[j].String() {
			merged = append(merged, a[i])
			i++
		} else {
			merged = append(merged, b[j])
			j++
		}
	}
	merged = append(merged, a[i:]...)
	merged = append(merged, b[j:]...)
	return merged
}

// Descendants returns the set of node ids reachable from root via
// forward edges, excluding root itself.
func (g *Graph) Descendants(root uuid.UUID) map[uuid.UUID]struct{} {
	result := make(map[uuid.UUID]struct{})
	stack := []uuid.UUID{root}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, succID := range g.Successors(id) {
			if _, seen := result[succID]; seen {
				continue
			}
			result[succID] = struct{}{}
			stack = append(stack, succID)
		}
	}
	return result
}

// WouldCreateCycle reports whether adding an edge (p, s) to the
// current committed graph would close a cycle, without mutating g.
// Equivalent to testing p ∈ descendants(s) ∪ {s}.
func (g *Graph) WouldCreateCycle(p, s uuid.UUID) bool {
	if p == s {
		return true
	}
	if _, ok := g.nodes[p]; !ok {
		return false
	}
	if _, ok := g.nodes[s]; !ok {
		return false
	}
	desc := g.Descendants(s)
	if _, ok := desc[p]; ok {
		return true
	}
	return false
}
