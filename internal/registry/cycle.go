package registry

import (
	"slices"
	"strings"

	"github.com/seeqbio/cabin/internal/dataset"
)

// Validate checks the registry as a whole: every dependency must itself be
// registered (the same type, not merely the same name) and the dependency
// graph must be acyclic.
func (r *Registry) Validate() error {
	types := r.All()
	for _, t := range types {
		for _, dep := range t.Depends {
			registered, err := r.Resolve(dep.Type.Name)
			if err != nil {
				return dataset.NewMalformedError(t.Name, "depends on unregistered type %q", dep.Type.Name)
			}
			if registered != dep.Type {
				return dataset.NewMalformedError(t.Name, "depends on a different type named %q", dep.Type.Name)
			}
		}
	}

	graph := make(dependencyGraph, len(types))
	for _, t := range types {
		graph[t.Name] = t.DependencyNames()
	}
	for _, scc := range tarjanSCC(graph) {
		if len(scc) > 1 || slices.Contains(graph[scc[0]], scc[0]) {
			cycle := reconstructCyclePath(scc, graph)
			return dataset.NewMalformedError(cycle[0], "dependency cycle: %s", strings.Join(cycle, " -> "))
		}
	}
	return nil
}

// dependencyGraph maps a type name to the names it depends on.
type dependencyGraph map[string][]string

// tarjanSCC finds strongly connected components using Tarjan's algorithm.
// Nodes are visited in sorted order so results are deterministic.
func tarjanSCC(graph dependencyGraph) [][]string {
	var (
		index   = 0
		stack   []string
		indices = make(map[string]int)
		lowlink = make(map[string]int)
		onStack = make(map[string]bool)
		sccs    [][]string
	)

	var strongConnect func(string)
	strongConnect = func(v string) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range graph[v] {
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		if lowlink[v] == indices[v] {
			var scc []string
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			slices.Sort(scc)
			sccs = append(sccs, scc)
		}
	}

	nodes := make([]string, 0, len(graph))
	for node := range graph {
		nodes = append(nodes, node)
	}
	slices.Sort(nodes)
	for _, node := range nodes {
		if _, visited := indices[node]; !visited {
			strongConnect(node)
		}
	}
	return sccs
}

// reconstructCyclePath returns a shortest cycle through the SCC's first
// member, e.g. [A B A], searching breadth-first inside the SCC.
func reconstructCyclePath(scc []string, graph dependencyGraph) []string {
	members := make(map[string]bool, len(scc))
	for _, n := range scc {
		members[n] = true
	}

	start := scc[0]
	parent := map[string]string{start: ""}
	queue := []string{start}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, w := range graph[current] {
			if w == start {
				var path []string
				for n := current; n != ""; n = parent[n] {
					path = append(path, n)
				}
				slices.Reverse(path)
				return append(path, start)
			}
			if _, seen := parent[w]; !seen && members[w] {
				parent[w] = current
				queue = append(queue, w)
			}
		}
	}
	return append(slices.Clone(scc), start)
}
