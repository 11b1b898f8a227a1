package cli

import (
	"fmt"
	"os"
	"slices"

	"github.com/spf13/cobra"

	"github.com/seeqbio/cabin/internal/registry"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"

	ConfigPath string
	Database   string
	Driver     string
	Catalog    string

	// Getenv reads environment overrides. Defaults to os.Getenv.
	Getenv func(string) string

	// Base holds types compiled into the binary. Catalog types may depend
	// on them.
	Base *registry.Registry
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the cabin CLI.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{Getenv: os.Getenv})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cabin",
		Short: "cabin - versioned dataset builds",
		Long: `Build, track and garbage-collect versioned datasets.

Every dataset is identified by a signature over its type, version and the
signatures of its inputs. Changing any version upstream changes every
signature downstream, so stale artifacts are rebuilt under new names and
can be pruned once nothing current refers to them.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	// Global flags
	flags := cmd.PersistentFlags()
	flags.BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	flags.StringVar(&opts.Format, "format", "text", "output format (json|text)")
	flags.StringVar(&opts.ConfigPath, "config", "", "path to cabin.yaml (default ./cabin.yaml if present)")
	flags.StringVar(&opts.Database, "db", "", "database DSN (file path for sqlite3)")
	flags.StringVar(&opts.Driver, "driver", "", "database driver (sqlite3|mysql)")
	flags.StringVar(&opts.Catalog, "catalog", "", "directory of CUE dataset declarations")

	cmd.AddCommand(NewImportCommand(opts))
	cmd.AddCommand(NewDropCommand(opts))
	cmd.AddCommand(NewPruneCommand(opts))
	cmd.AddCommand(NewStatusCommand(opts))
	cmd.AddCommand(NewListCommand(opts))
	cmd.AddCommand(NewDAGCommand(opts))

	return cmd
}
