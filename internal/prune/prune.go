package prune

import (
	"context"
	"errors"
	"log/slog"
	"path"

	"github.com/seeqbio/cabin/internal/ledger"
	"github.com/seeqbio/cabin/internal/registry"
)

// Entry is the classification of one ledger record.
type Entry struct {
	Record     ledger.Record
	Historical *Historical // nil when the record is inconsistent
	Latest     bool
	Reasons    []string
	Err        error // set for inconsistent records
}

// Plan classifies the ledger records whose type matches any of globs (all
// records when globs is empty). Inconsistent records are stale.
func Plan(ctx context.Context, l *ledger.Ledger, reg *registry.Registry, globs []string) ([]Entry, error) {
	recs, err := l.All(ctx)
	if err != nil {
		return nil, err
	}

	var entries []Entry
	for _, rec := range recs {
		if !matchesAny(globs, rec.Type) {
			continue
		}
		h, err := FromRecord(rec)
		if err != nil {
			entries = append(entries, Entry{Record: rec, Err: err, Reasons: []string{err.Error()}})
			continue
		}
		e := Entry{Record: rec, Historical: h, Latest: h.IsLatest(reg)}
		if !e.Latest {
			e.Reasons = h.Explain(reg)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// Stale returns the entries that are not latest.
func Stale(entries []Entry) []Entry {
	var stale []Entry
	for _, e := range entries {
		if !e.Latest {
			stale = append(stale, e)
		}
	}
	return stale
}

// Prune deletes every stale record matching globs together with its storage
// object and returns the entries removed. With dryRun nothing is deleted.
// A record that cannot be deleted does not stop the others; the failures
// are joined into the returned error.
func Prune(ctx context.Context, l *ledger.Ledger, reg *registry.Registry, globs []string, dryRun bool, logger *slog.Logger) ([]Entry, error) {
	if logger == nil {
		logger = slog.Default()
	}
	entries, err := Plan(ctx, l, reg, globs)
	if err != nil {
		return nil, err
	}

	var (
		removed []Entry
		errs    []error
	)
	for _, e := range Stale(entries) {
		if dryRun {
			logger.Info("would drop", "dataset", e.Record.Name, "reasons", e.Reasons)
			removed = append(removed, e)
			continue
		}
		if err := l.DeleteByName(ctx, e.Record.Name); err != nil {
			if ctx.Err() != nil {
				return removed, errors.Join(append(errs, err)...)
			}
			logger.Error("drop failed", "dataset", e.Record.Name, "error", err)
			errs = append(errs, err)
			continue
		}
		logger.Info("dropped", "dataset", e.Record.Name, "reasons", e.Reasons)
		removed = append(removed, e)
	}
	return removed, errors.Join(errs...)
}

func matchesAny(globs []string, name string) bool {
	if len(globs) == 0 {
		return true
	}
	for _, g := range globs {
		if ok, err := path.Match(g, name); err == nil && ok {
			return true
		}
	}
	return false
}
