package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/seeqbio/cabin/internal/registry"
)

// DAGOptions holds flags for the dag command.
type DAGOptions struct {
	*RootOptions
	Tables bool
}

// NewDAGCommand creates the dag command.
func NewDAGCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DAGOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "dag [glob...]",
		Short: "Print the type dependency graph in Graphviz DOT",
		Long: `Print the dependency graph of registered types in Graphviz DOT.

With globs only the matching types, their ancestors and their descendants
are kept, and the matching types are highlighted.

Example:
  cabin dag --tables | dot -Tsvg > dag.svg`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDAG(opts, args, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Tables, "tables", false, "only include table types")

	return cmd
}

// DAGResult is the graph and its DOT rendering.
type DAGResult struct {
	Nodes     []string        `json:"nodes"`
	Edges     []registry.Edge `json:"edges"`
	Highlight []string        `json:"highlight,omitempty"`
	DOT       string          `json:"dot"`
}

func (r DAGResult) String() string { return r.DOT }

func runDAG(opts *DAGOptions, globs []string, cmd *cobra.Command) error {
	a, err := newApp(cmd, opts.RootOptions)
	if err != nil {
		return err
	}
	defer a.Close()

	g := a.registry.Graph(opts.Tables)
	var highlight []string
	if len(globs) > 0 {
		types, err := a.registry.MatchAll(globs, opts.Tables)
		if err != nil {
			return a.out.Fail(err, ErrCodeUsage, ExitCommandError, nil)
		}
		for _, t := range types {
			highlight = append(highlight, t.Name)
		}
		g = g.Focus(highlight)
	}

	var dot strings.Builder
	if err := registry.WriteDOT(&dot, g, highlight); err != nil {
		return a.out.Fail(err, ErrCodeUsage, ExitFailure, nil)
	}
	return a.out.Success(DAGResult{Nodes: g.Nodes, Edges: g.Edges, Highlight: highlight, DOT: dot.String()})
}
