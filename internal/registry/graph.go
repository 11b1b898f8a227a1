package registry

import (
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
)

// Edge points from a dependency to the type that depends on it.
type Edge struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Graph is the type-level dependency DAG.
type Graph struct {
	Nodes []string `json:"nodes"`
	Edges []Edge   `json:"edges"`
}

// Graph builds the DAG of registered types. With tablesOnly, non-table
// types and the edges touching them are left out.
func (r *Registry) Graph(tablesOnly bool) Graph {
	var g Graph
	for _, t := range r.All() {
		if tablesOnly && !t.IsTable() {
			continue
		}
		g.Nodes = append(g.Nodes, t.Name)
		for _, dep := range t.Depends {
			if tablesOnly && !dep.Type.IsTable() {
				continue
			}
			g.Edges = append(g.Edges, Edge{From: dep.Type.Name, To: t.Name})
		}
	}
	slices.SortFunc(g.Edges, func(a, b Edge) int {
		if c := strings.Compare(a.From, b.From); c != 0 {
			return c
		}
		return strings.Compare(a.To, b.To)
	})
	return g
}

// Focus keeps only the given nodes with their ancestors and descendants.
// Unknown names are ignored.
func (g Graph) Focus(names []string) Graph {
	up := make(map[string][]string)
	down := make(map[string][]string)
	for _, e := range g.Edges {
		down[e.From] = append(down[e.From], e.To)
		up[e.To] = append(up[e.To], e.From)
	}

	keep := make(map[string]bool)
	var walk func(string, map[string][]string)
	walk = func(n string, adj map[string][]string) {
		for _, m := range adj[n] {
			if !keep[m] {
				keep[m] = true
				walk(m, adj)
			}
		}
	}
	for _, n := range names {
		if !slices.Contains(g.Nodes, n) {
			continue
		}
		keep[n] = true
		walk(n, up)
		walk(n, down)
	}

	var out Graph
	for _, n := range g.Nodes {
		if keep[n] {
			out.Nodes = append(out.Nodes, n)
		}
	}
	for _, e := range g.Edges {
		if keep[e.From] && keep[e.To] {
			out.Edges = append(out.Edges, e)
		}
	}
	return out
}

const (
	highlightColor = "#0c97ae"
	dimColor       = "#dddddd"
)

// WriteDOT renders g in Graphviz DOT, left to right. When highlight is not
// empty those nodes are colored and every other node is dimmed.
func WriteDOT(w io.Writer, g Graph, highlight []string) error {
	var b strings.Builder
	b.WriteString("digraph cabin {\n")
	b.WriteString("\tgraph [rankdir=LR, ranksep=2, nodesep=1, margin=2, fontname=monospace];\n")
	b.WriteString("\tnode [shape=box, fontname=monospace, fontsize=12, margin=0.1];\n")
	b.WriteString("\tedge [penwidth=0.5, color=\"#888888\", arrowhead=vee];\n")
	for _, n := range g.Nodes {
		if len(highlight) == 0 {
			fmt.Fprintf(&b, "\t%s;\n", strconv.Quote(n))
			continue
		}
		color := dimColor
		if slices.Contains(highlight, n) {
			color = highlightColor
		}
		fmt.Fprintf(&b, "\t%s [color=%s];\n", strconv.Quote(n), strconv.Quote(color))
	}
	for _, e := range g.Edges {
		fmt.Fprintf(&b, "\t%s -> %s;\n", strconv.Quote(e.From), strconv.Quote(e.To))
	}
	b.WriteString("}\n")

	_, err := io.WriteString(w, b.String())
	return err
}
