package dataset

import (
	"context"
	"log/slog"
	"time"

	"github.com/seeqbio/cabin/internal/ledger"
	"github.com/seeqbio/cabin/internal/store"
)

// Fetcher retrieves external sources.
type Fetcher interface {
	// Available reports whether url can currently be fetched.
	Available(ctx context.Context, url string) (bool, error)
	// ModTime returns the last modification time advertised for url.
	ModTime(ctx context.Context, url string) (time.Time, error)
	// Fetch downloads url to the local path dst.
	Fetch(ctx context.Context, url, dst string) error
}

// MirrorStore is an object store holding mirrored copies of external
// sources.
type MirrorStore interface {
	Exists(ctx context.Context, key string) (bool, error)
	Put(ctx context.Context, localPath, key string) error
	Get(ctx context.Context, key, localPath string) error
	Delete(ctx context.Context, key string) error
	// URL returns a human-readable location for key.
	URL(key string) string
}

// Env carries the collaborators nodes need. It is passed explicitly through
// the build engine into every Exists/Produce call.
type Env struct {
	Store       *store.Store
	Ledger      *ledger.Ledger
	Fetcher     Fetcher
	Mirror      MirrorStore
	DownloadDir string
	Producer    string // identifies the writer in ledger rows
	Logger      *slog.Logger
}

// Log returns the environment's logger, or the default logger.
func (e *Env) Log() *slog.Logger {
	if e == nil || e.Logger == nil {
		return slog.Default()
	}
	return e.Logger
}

// Record builds the ledger row for inst.
func (e *Env) Record(inst *Instance, kind ledger.StorageKind, storageName string) ledger.Record {
	return ledger.Record{
		Signature:   inst.Signature(),
		Type:        inst.TypeName(),
		Name:        inst.Name(),
		StorageName: storageName,
		StorageKind: kind,
		Formula:     inst.FormulaJSON(),
		Producer:    e.Producer,
	}
}
