package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/seeqbio/cabin/internal/catalog"
	"github.com/seeqbio/cabin/internal/config"
	"github.com/seeqbio/cabin/internal/dataset"
	"github.com/seeqbio/cabin/internal/fetch"
	"github.com/seeqbio/cabin/internal/ledger"
	"github.com/seeqbio/cabin/internal/mirror"
	"github.com/seeqbio/cabin/internal/registry"
	"github.com/seeqbio/cabin/internal/store"
)

// app is what a command works with: configuration, registered types and,
// once opened, the build environment.
type app struct {
	cfg      *config.Config
	out      *OutputFormatter
	logger   *slog.Logger
	registry *registry.Registry

	store *store.Store
	env   *dataset.Env
}

// newApp loads configuration and the type registry. Errors are reported
// through the formatter and returned as ExitErrors.
func newApp(cmd *cobra.Command, opts *RootOptions) (*app, error) {
	out := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	cfg, err := config.Load(opts.ConfigPath, opts.Getenv)
	if err != nil {
		return nil, out.Fail(err, ErrCodeConfig, ExitCommandError, nil)
	}
	// Flags override both the file and the environment.
	if opts.Database != "" {
		cfg.Database.DSN = opts.Database
	}
	if opts.Driver != "" {
		cfg.Database.Driver = opts.Driver
	}
	if opts.Catalog != "" {
		cfg.Catalog = opts.Catalog
	}
	if err := cfg.Validate(); err != nil {
		return nil, out.Fail(err, ErrCodeConfig, ExitCommandError, nil)
	}

	logger := newLogger(cmd, opts.Verbose)

	reg, err := loadRegistry(opts.Base, cfg.Catalog)
	if err != nil {
		return nil, out.Fail(err, ErrCodeConfig, ExitCommandError, nil)
	}
	logger.Debug("types registered", "count", reg.Len(), "catalog", cfg.Catalog)

	return &app{cfg: cfg, out: out, logger: logger, registry: reg}, nil
}

// newLogger configures slog on stderr, debug level when verbose.
func newLogger(cmd *cobra.Command, verbose bool) *slog.Logger {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	handler := slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
		Level: logLevel,
	})
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// loadRegistry registers the built-in types and then the catalog's.
func loadRegistry(base *registry.Registry, catalogDir string) (*registry.Registry, error) {
	reg := registry.New()
	if base != nil {
		if err := reg.Register(base.All()...); err != nil {
			return nil, err
		}
	}
	if catalogDir != "" {
		types, err := catalog.LoadDir(catalogDir, base)
		if err != nil {
			return nil, err
		}
		if err := reg.Register(types...); err != nil {
			return nil, err
		}
	}
	if reg.Len() == 0 {
		return nil, fmt.Errorf("no dataset types: set catalog in %s or pass --catalog", config.DefaultFile)
	}
	if err := reg.Validate(); err != nil {
		return nil, err
	}
	return reg, nil
}

// open connects the store and mirror and builds the environment.
func (a *app) open(ctx context.Context) error {
	st, err := store.Open(ctx, a.cfg.Database)
	if err != nil {
		return a.out.Fail(err, ErrCodeStore, ExitCommandError, nil)
	}
	a.store = st

	mirrorStore, err := openMirror(ctx, a.cfg.Mirror)
	if err != nil {
		return a.out.Fail(err, ErrCodeConfig, ExitCommandError, nil)
	}
	ledgerOpts := []ledger.Option{dataset.FileDropper(), dataset.MirrorDropper(mirrorStore)}

	if err := os.MkdirAll(a.cfg.DownloadDir, 0o755); err != nil {
		return a.out.Fail(fmt.Errorf("download dir: %w", err), ErrCodeConfig, ExitCommandError, nil)
	}

	a.env = &dataset.Env{
		Store:  st,
		Ledger: ledger.New(st, ledgerOpts...),
		Fetcher: fetch.New(
			fetch.WithTimeout(a.cfg.Fetch.Timeout),
			fetch.WithRetries(a.cfg.Fetch.Retries),
			fetch.WithLogger(a.logger),
		),
		Mirror:      mirrorStore,
		DownloadDir: a.cfg.DownloadDir,
		Producer:    a.cfg.Producer,
		Logger:      a.logger,
	}
	a.logger.Debug("store open", "driver", st.Driver(), "producer", a.cfg.Producer)
	return nil
}

func openMirror(ctx context.Context, cfg config.MirrorConfig) (dataset.MirrorStore, error) {
	switch cfg.Kind {
	case config.MirrorS3:
		m, err := mirror.NewS3(ctx, mirror.S3Config{
			Bucket:   cfg.Bucket,
			Prefix:   cfg.Prefix,
			Region:   cfg.Region,
			Endpoint: cfg.Endpoint,
		})
		if err != nil {
			return nil, err
		}
		return m, nil
	case config.MirrorDir:
		m, err := mirror.NewDir(cfg.Dir)
		if err != nil {
			return nil, err
		}
		return m, nil
	default:
		return nil, nil
	}
}

// Close releases the store.
func (a *app) Close() {
	if a.store == nil {
		return
	}
	if err := a.store.Close(); err != nil {
		a.logger.Error("error closing database", "error", err)
	}
}

// instances instantiates types through the registry's cache.
func (a *app) instances(types []*dataset.Type) ([]*dataset.Instance, error) {
	insts := make([]*dataset.Instance, 0, len(types))
	for _, t := range types {
		inst, err := a.registry.Instance(t.Name)
		if err != nil {
			return nil, err
		}
		insts = append(insts, inst)
	}
	return insts, nil
}

// interruptible returns a context cancelled on SIGINT or SIGTERM.
func interruptible(parent context.Context, logger *slog.Logger) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("received signal, cleaning up", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, func() {
		signal.Stop(sigChan)
		cancel()
	}
}
