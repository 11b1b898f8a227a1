package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/seeqbio/cabin/internal/build"
	"github.com/seeqbio/cabin/internal/dataset"
	"github.com/seeqbio/cabin/internal/registry"
)

// ImportOptions holds flags for the import command.
type ImportOptions struct {
	*RootOptions
	All    bool
	Tag    string
	DryRun bool
}

// NewImportCommand creates the import command.
func NewImportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ImportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "import [glob...]",
		Short: "Build datasets and everything they depend on",
		Long: `Build the latest version of every dataset type matching the globs.

Inputs are built first. Datasets whose current signature is already in the
ledger are left alone, so running import twice does nothing the second time.

Example:
  cabin import 'Storm*'
  cabin import --all --tag active --dry-run`,
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && !opts.All && opts.Tag == "" {
				return fmt.Errorf("import needs globs, --all or --tag")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(opts, args, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.All, "all", false, "import every registered type")
	cmd.Flags().StringVar(&opts.Tag, "tag", "", "only import types carrying this tag")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "report what would be produced without producing it")

	return cmd
}

// ImportResult is the outcome of an import.
type ImportResult struct {
	DryRun bool         `json:"dry_run"`
	Steps  []build.Step `json:"steps"`
}

func (r ImportResult) String() string {
	var b strings.Builder
	for _, s := range r.Steps {
		fmt.Fprintf(&b, "%-9s %s", s.Action, s.Name)
		if s.Duration > 0 {
			fmt.Fprintf(&b, " (%s)", s.Duration.Round(time.Millisecond))
		}
		b.WriteByte('\n')
	}
	report := build.Report{Steps: r.Steps}
	if r.DryRun {
		fmt.Fprintf(&b, "%d to produce, %d up to date\n", report.Count(build.ActionPlanned), report.Count(build.ActionSatisfied))
	} else {
		fmt.Fprintf(&b, "%d produced, %d up to date\n", report.Count(build.ActionProduced), report.Count(build.ActionSatisfied))
	}
	return b.String()
}

func runImport(opts *ImportOptions, globs []string, cmd *cobra.Command) error {
	a, err := newApp(cmd, opts.RootOptions)
	if err != nil {
		return err
	}
	defer a.Close()

	types, err := selectTypes(a.registry, globs, opts.All, opts.Tag)
	if err != nil {
		return a.out.Fail(err, ErrCodeUsage, ExitCommandError, nil)
	}
	insts, err := a.instances(types)
	if err != nil {
		return a.out.Fail(err, ErrCodeUsage, ExitCommandError, nil)
	}
	if err := a.open(cmd.Context()); err != nil {
		return err
	}

	ctx, cancel := interruptible(cmd.Context(), a.logger)
	defer cancel()

	builder := build.New(a.env, build.WithDryRun(opts.DryRun), build.WithLogger(a.logger))
	report, err := builder.BuildAll(ctx, insts)
	if err != nil {
		details := ImportResult{DryRun: opts.DryRun, Steps: report.Steps}
		return a.out.Fail(err, string(dataset.ErrCodeProductionFailed), ExitFailure, details)
	}
	return a.out.Success(ImportResult{DryRun: opts.DryRun, Steps: report.Steps})
}

// selectTypes resolves the import selection. Globs and --all pick types;
// --tag alone picks every tagged type and otherwise narrows the selection.
func selectTypes(reg *registry.Registry, globs []string, all bool, tag string) ([]*dataset.Type, error) {
	var types []*dataset.Type
	switch {
	case all:
		types = reg.All()
	case len(globs) > 0:
		var err error
		if types, err = reg.MatchAll(globs, false); err != nil {
			return nil, err
		}
	default:
		types = reg.All()
	}
	if tag == "" {
		return types, nil
	}

	var tagged []*dataset.Type
	for _, t := range types {
		if t.HasTag(tag) {
			tagged = append(tagged, t)
		}
	}
	if len(tagged) == 0 {
		return nil, dataset.NewUnknownTypeError("tag:" + tag)
	}
	return tagged, nil
}
