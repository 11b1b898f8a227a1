package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/seeqbio/cabin/internal/dataset"
	"github.com/seeqbio/cabin/internal/ledger"
)

// DropOptions holds flags for the drop command.
type DropOptions struct {
	*RootOptions
	AllVersions bool
	DryRun      bool
}

// NewDropCommand creates the drop command.
func NewDropCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DropOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "drop <glob...>",
		Short: "Delete built datasets and their ledger rows",
		Long: `Delete the current version of every dataset type matching the globs,
together with its table, file or mirror object.

With --all-versions every version recorded in the ledger is deleted,
including ones no longer produced by the current declarations.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDrop(opts, args, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.AllVersions, "all-versions", false, "drop every recorded version, not just the current one")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "report what would be dropped without dropping it")

	return cmd
}

// DropResult lists the dropped ledger rows.
type DropResult struct {
	DryRun  bool            `json:"dry_run"`
	Dropped []ledger.Record `json:"dropped"`
}

func (r DropResult) String() string {
	verb := "dropped"
	if r.DryRun {
		verb = "would drop"
	}
	if len(r.Dropped) == 0 {
		return "nothing to drop\n"
	}
	var b strings.Builder
	for _, rec := range r.Dropped {
		fmt.Fprintf(&b, "%s %s (%s %s)\n", verb, rec.Name, rec.StorageKind, rec.StorageName)
	}
	return b.String()
}

func runDrop(opts *DropOptions, globs []string, cmd *cobra.Command) error {
	a, err := newApp(cmd, opts.RootOptions)
	if err != nil {
		return err
	}
	defer a.Close()

	types, err := a.registry.MatchAll(globs, false)
	if err != nil {
		return a.out.Fail(err, ErrCodeUsage, ExitCommandError, nil)
	}
	if err := a.open(cmd.Context()); err != nil {
		return err
	}
	ctx := cmd.Context()

	var recs []ledger.Record
	for _, t := range types {
		found, err := a.recordsFor(ctx, t, opts.AllVersions)
		if err != nil {
			return a.out.Fail(err, ErrCodeStore, ExitFailure, nil)
		}
		recs = append(recs, found...)
	}

	result := DropResult{DryRun: opts.DryRun}
	for _, rec := range recs {
		if !opts.DryRun {
			if err := a.env.Ledger.DeleteByName(ctx, rec.Name); err != nil {
				return a.out.Fail(err, ErrCodeStore, ExitFailure, result)
			}
			a.logger.Info("dropped", "dataset", rec.Name, "storage", rec.StorageName)
		}
		result.Dropped = append(result.Dropped, rec)
	}
	return a.out.Success(result)
}

// recordsFor returns the ledger rows of t: the current version only, or
// every version.
func (a *app) recordsFor(ctx context.Context, t *dataset.Type, allVersions bool) ([]ledger.Record, error) {
	if allVersions {
		return a.env.Ledger.ByType(ctx, t.Name)
	}
	inst, err := a.registry.Instance(t.Name)
	if err != nil {
		return nil, err
	}
	rec, err := a.env.Ledger.GetBySignature(ctx, inst.Signature())
	if errors.Is(err, ledger.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return []ledger.Record{rec}, nil
}
