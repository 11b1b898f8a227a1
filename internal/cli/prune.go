package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/seeqbio/cabin/internal/prune"
)

// PruneOptions holds flags for the prune command.
type PruneOptions struct {
	*RootOptions
	DryRun bool
}

// NewPruneCommand creates the prune command.
func NewPruneCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PruneOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "prune [glob...]",
		Short: "Delete datasets that are no longer the latest version",
		Long: `Delete every ledger entry whose signature differs from what the current
declarations would produce, along with its storage. Entries of types that
are no longer declared are stale too.

Globs restrict pruning to matching type names.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPrune(opts, args, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "report what would be pruned without deleting it")

	return cmd
}

// PrunedEntry is one stale dataset.
type PrunedEntry struct {
	Name    string   `json:"name"`
	Type    string   `json:"type"`
	Reasons []string `json:"reasons"`
}

// PruneResult lists the stale datasets removed.
type PruneResult struct {
	DryRun bool          `json:"dry_run"`
	Pruned []PrunedEntry `json:"pruned"`
}

func (r PruneResult) String() string {
	if len(r.Pruned) == 0 {
		return "nothing to prune\n"
	}
	verb := "pruned"
	if r.DryRun {
		verb = "would prune"
	}
	var b strings.Builder
	for _, e := range r.Pruned {
		fmt.Fprintf(&b, "%s %s: %s\n", verb, e.Name, strings.Join(e.Reasons, "; "))
	}
	return b.String()
}

func runPrune(opts *PruneOptions, globs []string, cmd *cobra.Command) error {
	a, err := newApp(cmd, opts.RootOptions)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.open(cmd.Context()); err != nil {
		return err
	}

	ctx, cancel := interruptible(cmd.Context(), a.logger)
	defer cancel()

	removed, err := prune.Prune(ctx, a.env.Ledger, a.registry, globs, opts.DryRun, a.logger)
	result := PruneResult{DryRun: opts.DryRun, Pruned: []PrunedEntry{}}
	for _, e := range removed {
		result.Pruned = append(result.Pruned, PrunedEntry{Name: e.Record.Name, Type: e.Record.Type, Reasons: e.Reasons})
	}
	if err != nil {
		return a.out.Fail(err, ErrCodeStore, ExitFailure, result)
	}
	return a.out.Success(result)
}
