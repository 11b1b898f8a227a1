package cli

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/seeqbio/cabin/internal/dataset"
	"github.com/seeqbio/cabin/internal/ledger"
)

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status [glob...]",
		Short: "Show whether the latest version of each dataset is built",
		Long: `Show the current instance of every matching type (all types by default),
whether it is recorded in the ledger, row counts and sizes of built tables,
and how many versions of the type the ledger holds.

External sources are not probed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(rootOpts, args, cmd)
		},
	}
	return cmd
}

// Dataset states reported by status.
const (
	StateBuilt    = "built"
	StateMissing  = "missing"
	StateExternal = "external"
)

// StatusEntry describes one dataset type.
type StatusEntry struct {
	Type      string `json:"type"`
	Kind      string `json:"kind"`
	Name      string `json:"name"`
	Signature string `json:"signature"`
	State     string `json:"state"`
	Rows      *int64 `json:"rows,omitempty"`
	Bytes     *int64 `json:"bytes,omitempty"`
	Versions  int    `json:"versions"`
}

// StatusResult is the status of the selected types.
type StatusResult struct {
	Datasets []StatusEntry `json:"datasets"`
}

func (r StatusResult) String() string {
	var b strings.Builder
	w := tabwriter.NewWriter(&b, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tSTATE\tROWS\tSIZE\tVERSIONS")
	for _, e := range r.Datasets {
		rows, size := "-", "-"
		if e.Rows != nil {
			rows = humanize.Comma(*e.Rows)
		}
		if e.Bytes != nil {
			size = humanize.Bytes(uint64(*e.Bytes))
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", e.Name, e.State, rows, size, strconv.Itoa(e.Versions))
	}
	_ = w.Flush()
	return b.String()
}

func runStatus(opts *RootOptions, globs []string, cmd *cobra.Command) error {
	a, err := newApp(cmd, opts)
	if err != nil {
		return err
	}
	defer a.Close()

	types := a.registry.All()
	if len(globs) > 0 {
		if types, err = a.registry.MatchAll(globs, false); err != nil {
			return a.out.Fail(err, ErrCodeUsage, ExitCommandError, nil)
		}
	}
	if err := a.open(cmd.Context()); err != nil {
		return err
	}

	result := StatusResult{Datasets: []StatusEntry{}}
	for _, t := range types {
		entry, err := a.status(cmd.Context(), t)
		if err != nil {
			return a.out.Fail(err, ErrCodeStore, ExitFailure, nil)
		}
		result.Datasets = append(result.Datasets, entry)
	}
	return a.out.Success(result)
}

func (a *app) status(ctx context.Context, t *dataset.Type) (StatusEntry, error) {
	inst, err := a.registry.Instance(t.Name)
	if err != nil {
		return StatusEntry{}, err
	}
	entry := StatusEntry{
		Type:      t.Name,
		Kind:      string(t.Kind),
		Name:      inst.Name(),
		Signature: inst.Signature(),
		State:     StateMissing,
	}
	if t.Kind == dataset.KindExternal {
		entry.State = StateExternal
		return entry, nil
	}

	versions, err := a.env.Ledger.ByType(ctx, t.Name)
	if err != nil {
		return entry, err
	}
	entry.Versions = len(versions)

	rec, err := a.env.Ledger.GetBySignature(ctx, inst.Signature())
	if errors.Is(err, ledger.ErrNotFound) {
		return entry, nil
	}
	if err != nil {
		return entry, err
	}
	entry.State = StateBuilt

	if rec.StorageKind == ledger.StorageTable {
		stats, err := a.store.TableStats(ctx, rec.StorageName)
		if err != nil {
			return entry, err
		}
		entry.Rows = &stats.Rows
		if stats.Bytes >= 0 {
			entry.Bytes = &stats.Bytes
		}
	}
	return entry, nil
}
