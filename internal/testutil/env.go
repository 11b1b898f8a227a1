package testutil

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/seeqbio/cabin/internal/dataset"
	"github.com/seeqbio/cabin/internal/ledger"
	"github.com/seeqbio/cabin/internal/store"
)

// Producer is the producer id written by test environments.
const Producer = "test-producer"

// Fixture bundles a build environment backed by a temporary SQLite
// database, a temporary download directory and in-memory collaborators.
type Fixture struct {
	Env     *dataset.Env
	Store   *store.Store
	Ledger  *ledger.Ledger
	Fetcher *Fetcher
	Mirror  *Mirror
}

// NewFixture creates a fixture that is torn down with the test.
func NewFixture(t testing.TB) *Fixture {
	t.Helper()
	dir := t.TempDir()

	s, err := store.OpenSQLite(filepath.Join(dir, "cabin.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	downloads := filepath.Join(dir, "downloads")
	require.NoError(t, os.MkdirAll(downloads, 0o755))

	fetcher := NewFetcher()
	mirror := NewMirror()
	l := ledger.New(s, dataset.FileDropper(), dataset.MirrorDropper(mirror))

	return &Fixture{
		Env: &dataset.Env{
			Store:       s,
			Ledger:      l,
			Fetcher:     fetcher,
			Mirror:      mirror,
			DownloadDir: downloads,
			Producer:    Producer,
			Logger:      DiscardLogger(),
		},
		Store:   s,
		Ledger:  l,
		Fetcher: fetcher,
		Mirror:  mirror,
	}
}

// DiscardLogger returns a logger that drops everything.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Names returns the names of all ledger rows, sorted.
func (f *Fixture) Names(t testing.TB) []string {
	t.Helper()
	recs, err := f.Ledger.All(t.Context())
	require.NoError(t, err)
	names := make([]string, len(recs))
	for i, r := range recs {
		names[i] = r.Name
	}
	return names
}
