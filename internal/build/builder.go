// Package build realizes dataset instances bottom-up.
//
// Build checks whether an instance exists and, if it does not, recursively
// builds its inputs before producing it. Existing instances short-circuit
// the recursion: their inputs are never visited. Every failure triggers the
// failed node's compensating cleanup so nothing half-made is left that
// could later be mistaken for a finished artifact.
package build

import (
	"context"
	"log/slog"
	"time"

	"github.com/seeqbio/cabin/internal/dataset"
)

// Builder runs builds against one environment.
type Builder struct {
	env    *dataset.Env
	dryRun bool
	logger *slog.Logger
}

// Option configures a Builder.
type Option func(*Builder)

// WithDryRun makes the builder report what it would produce without
// producing anything.
func WithDryRun(dryRun bool) Option {
	return func(b *Builder) { b.dryRun = dryRun }
}

// WithLogger overrides the environment's logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *Builder) { b.logger = l }
}

// New creates a builder.
func New(env *dataset.Env, opts ...Option) *Builder {
	b := &Builder{env: env}
	for _, opt := range opts {
		opt(b)
	}
	if b.logger == nil {
		b.logger = env.Log()
	}
	return b
}

// DryRun reports whether the builder is in dry-run mode.
func (b *Builder) DryRun() bool { return b.dryRun }

// Build makes sure inst exists. The report is returned even on failure and
// names the failed instance.
func (b *Builder) Build(ctx context.Context, inst *dataset.Instance) (*Report, error) {
	report := &Report{}
	err := b.run(ctx, inst, report, make(map[string]bool))
	return report, err
}

// BuildAll builds each instance in order and stops at the first failure.
// Instances shared between them are handled once.
func (b *Builder) BuildAll(ctx context.Context, insts []*dataset.Instance) (*Report, error) {
	report := &Report{}
	visited := make(map[string]bool)
	for _, inst := range insts {
		if err := b.run(ctx, inst, report, visited); err != nil {
			return report, err
		}
	}
	return report, nil
}

func (b *Builder) run(ctx context.Context, inst *dataset.Instance, report *Report, visited map[string]bool) error {
	if visited[inst.Signature()] {
		return nil
	}
	visited[inst.Signature()] = true

	log := b.logger.With("dataset", inst.Name(), "signature", inst.Signature(), "roots", inst.RootVersions())
	node := inst.Type().Node

	ok, err := node.Exists(ctx, b.env, inst)
	if err != nil {
		err = wrap(inst, "exists", err)
		report.add(inst, ActionFailed, 0, err)
		return err
	}
	if ok {
		log.Info("exists")
		report.add(inst, ActionSatisfied, 0, nil)
		return nil
	}

	start := time.Now()
	if err := b.produce(ctx, inst, report, visited, log); err != nil {
		b.cleanup(ctx, inst, log)
		report.add(inst, ActionFailed, time.Since(start), err)
		return err
	}
	if b.dryRun {
		log.Info("would produce")
		report.add(inst, ActionPlanned, 0, nil)
		return nil
	}
	log.Info("produced", "duration", time.Since(start).Round(time.Millisecond))
	report.add(inst, ActionProduced, time.Since(start), nil)
	return nil
}

func (b *Builder) produce(ctx context.Context, inst *dataset.Instance, report *Report, visited map[string]bool, log *slog.Logger) error {
	for _, in := range inst.Inputs() {
		if err := b.run(ctx, in, report, visited); err != nil {
			return err
		}
	}
	if b.dryRun {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return wrap(inst, "produce", err)
	}

	log.Info("producing")
	if err := inst.Type().Node.Produce(ctx, b.env, inst); err != nil {
		return wrap(inst, "produce", err)
	}
	if c, ok := inst.Type().Node.(dataset.Checker); ok {
		log.Debug("checking")
		if err := c.Check(ctx, b.env, inst); err != nil {
			return wrap(inst, "check", err)
		}
	}
	return nil
}

// cleanup runs the node's compensating action with a context that outlives
// cancellation of the build.
func (b *Builder) cleanup(ctx context.Context, inst *dataset.Instance, log *slog.Logger) {
	if b.dryRun {
		return
	}
	c, ok := inst.Type().Node.(dataset.Cleaner)
	if !ok {
		return
	}
	log.Warn("cleaning up after failure")
	if err := c.Cleanup(context.WithoutCancel(ctx), b.env, inst); err != nil {
		log.Error("cleanup failed", "error", err)
	}
}

// wrap tags err as a production failure of inst unless it already carries a
// domain error code.
func wrap(inst *dataset.Instance, step string, err error) error {
	if dataset.CodeOf(err) != "" {
		return err
	}
	return dataset.NewProductionError(inst.Name(), step, err)
}
