package deps

import "github.com/GoCodeAlone/overseer/store"

// Graph is an in-memory adjacency view over dependency edges, fetched
// once per check. Edges point from a dependent task to its
// prerequisites, so reachability follows prerequisite chains outward.
type Graph struct {
	adj map[string][]string
}

// NewGraph builds the adjacency view from a snapshot of edges.
func NewGraph(edges []store.Edge) *Graph {
	adj := make(map[string][]string, len(edges))
	for _, e := range edges {
		adj[e.DependentID] = append(adj[e.DependentID], e.PrerequisiteID)
	}
	return &Graph{adj: adj}
}

// Reachable reports whether target can be reached from start by
// following prerequisite edges. The visited set guarantees termination
// on any graph, cyclic or not.
func (g *Graph) Reachable(start, target string) bool {
	if start == target {
		return true
	}
	visited := make(map[string]bool)
	stack := []string{start}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited[n] {
			continue
		}
		visited[n] = true
		for _, next := range g.adj[n] {
			if next == target {
				return true
			}
			if !visited[next] {
				stack = append(stack, next)
			}
		}
	}
	return false
}
