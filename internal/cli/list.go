package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// ListOptions holds flags for the list command.
type ListOptions struct {
	*RootOptions
	Tables bool
}

// NewListCommand creates the list command.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ListOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List registered dataset types",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(opts, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Tables, "tables", false, "only list table types")

	return cmd
}

// TypeInfo describes one registered type.
type TypeInfo struct {
	Name    string   `json:"name"`
	Version string   `json:"version"`
	Kind    string   `json:"kind"`
	Depends []string `json:"depends,omitempty"`
	Tags    []string `json:"tags,omitempty"`
}

// ListResult is the list of registered types.
type ListResult struct {
	Types []TypeInfo `json:"types"`
}

func (r ListResult) String() string {
	var b strings.Builder
	for _, t := range r.Types {
		fmt.Fprintf(&b, "%s %s (%s)", t.Name, t.Version, t.Kind)
		if len(t.Depends) > 0 {
			fmt.Fprintf(&b, " <- %s", strings.Join(t.Depends, ", "))
		}
		if len(t.Tags) > 0 {
			fmt.Fprintf(&b, " [%s]", strings.Join(t.Tags, ", "))
		}
		b.WriteByte('\n')
	}
	return b.String()
}

func runList(opts *ListOptions, cmd *cobra.Command) error {
	a, err := newApp(cmd, opts.RootOptions)
	if err != nil {
		return err
	}
	defer a.Close()

	types := a.registry.All()
	if opts.Tables {
		types = a.registry.Match("*", true)
	}

	result := ListResult{Types: []TypeInfo{}}
	for _, t := range types {
		result.Types = append(result.Types, TypeInfo{
			Name:    t.Name,
			Version: t.Version,
			Kind:    string(t.Kind),
			Depends: t.DependencyNames(),
			Tags:    t.Tags,
		})
	}
	return a.out.Success(result)
}
