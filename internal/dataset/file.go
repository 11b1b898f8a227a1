package dataset

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/seeqbio/cabin/internal/ledger"
	"github.com/seeqbio/cabin/internal/store"
)

// LocalFile is a local download of its single input, stored under the
// environment's download directory as <name>.<extension>.
type LocalFile struct {
	Extension string
}

// Path returns where the instance is stored on disk.
func (n LocalFile) Path(env *Env, inst *Instance) string {
	return localPath(env, inst, n.Extension)
}

// Location returns the local path, so dependents can read it.
func (n LocalFile) Location(env *Env, inst *Instance) (string, error) {
	return n.Path(env, inst), nil
}

// Exists requires both the ledger row and the file itself.
func (n LocalFile) Exists(ctx context.Context, env *Env, inst *Instance) (bool, error) {
	return fileExists(ctx, env, inst, n.Path(env, inst))
}

// Produce downloads the input's location through a temporary file and
// registers the result.
func (n LocalFile) Produce(ctx context.Context, env *Env, inst *Instance) error {
	input, err := inst.Sole()
	if err != nil {
		return err
	}
	url, err := LocationOf(env, input)
	if err != nil {
		return err
	}
	if env.Fetcher == nil {
		return fmt.Errorf("no fetcher configured to download %s", url)
	}

	path := n.Path(env, inst)
	return writeAtomically(path, func(tmp string) error {
		env.Log().Info("downloading", "dataset", inst.Name(), "url", url, "path", path)
		return env.Fetcher.Fetch(ctx, url, tmp)
	}, func() error {
		return register(ctx, env, env.Record(inst, ledger.StorageFile, path))
	})
}

// Cleanup removes the file, any partial download and the ledger row.
func (n LocalFile) Cleanup(ctx context.Context, env *Env, inst *Instance) error {
	return cleanupFile(ctx, env, inst, n.Path(env, inst))
}

// MirroredFile is a local copy of a Mirror input, downloaded from the mirror
// store rather than from the original source.
type MirroredFile struct {
	Extension string
}

// Path returns where the instance is stored on disk.
func (n MirroredFile) Path(env *Env, inst *Instance) string {
	return localPath(env, inst, n.Extension)
}

// Location returns the local path.
func (n MirroredFile) Location(env *Env, inst *Instance) (string, error) {
	return n.Path(env, inst), nil
}

// Exists requires both the ledger row and the file itself.
func (n MirroredFile) Exists(ctx context.Context, env *Env, inst *Instance) (bool, error) {
	return fileExists(ctx, env, inst, n.Path(env, inst))
}

// Produce copies the mirror object to disk and registers it.
func (n MirroredFile) Produce(ctx context.Context, env *Env, inst *Instance) error {
	input, err := inst.Sole()
	if err != nil {
		return err
	}
	key, err := LocationOf(env, input)
	if err != nil {
		return err
	}
	if env.Mirror == nil {
		return fmt.Errorf("no mirror store configured to fetch %s", key)
	}

	path := n.Path(env, inst)
	return writeAtomically(path, func(tmp string) error {
		env.Log().Info("downloading from mirror", "dataset", inst.Name(), "key", env.Mirror.URL(key), "path", path)
		return env.Mirror.Get(ctx, key, tmp)
	}, func() error {
		return register(ctx, env, env.Record(inst, ledger.StorageFile, path))
	})
}

// Cleanup removes the file, any partial download and the ledger row.
func (n MirroredFile) Cleanup(ctx context.Context, env *Env, inst *Instance) error {
	return cleanupFile(ctx, env, inst, n.Path(env, inst))
}

// LocationOf returns where inst can be read from. The instance's node must
// implement Locator.
func LocationOf(env *Env, inst *Instance) (string, error) {
	loc, ok := inst.Type().Node.(Locator)
	if !ok {
		return "", fmt.Errorf("%s: dataset type has no readable location", inst.TypeName())
	}
	return loc.Location(env, inst)
}

// FileDropper returns the ledger option that deletes files of dropped rows.
func FileDropper() ledger.Option {
	return ledger.WithDropper(ledger.StorageFile, func(ctx context.Context, tx *store.Tx, rec ledger.Record) error {
		return removeIfExists(rec.StorageName)
	})
}

func localPath(env *Env, inst *Instance, ext string) string {
	name := inst.Name()
	if ext != "" {
		name += "." + ext
	}
	return filepath.Join(env.DownloadDir, name)
}

func fileExists(ctx context.Context, env *Env, inst *Instance, path string) (bool, error) {
	ok, err := env.Ledger.ExistsBySignature(ctx, inst.Signature())
	if err != nil || !ok {
		return false, err
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			env.Log().Warn("ledger row without file", "dataset", inst.Name(), "path", path)
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// writeAtomically fills a temporary sibling of path, renames it into place
// and then runs commit. Any failure removes both files.
func writeAtomically(path string, fill func(tmp string) error, commit func() error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create download dir: %w", err)
	}

	tmp := path + ".part"
	if err := fill(tmp); err != nil {
		_ = removeIfExists(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = removeIfExists(tmp)
		return fmt.Errorf("move download into place: %w", err)
	}
	if err := commit(); err != nil {
		_ = removeIfExists(path)
		return err
	}
	return nil
}

// register records rec, tolerating a row that is already there: a file's
// storage name is a pure function of its signature, so an existing row
// describes exactly this artifact.
func register(ctx context.Context, env *Env, rec ledger.Record) error {
	err := env.Ledger.Register(ctx, rec)
	if errors.Is(err, ledger.ErrAlreadyRegistered) {
		env.Log().Debug("already registered", "dataset", rec.Name)
		return nil
	}
	return err
}

func cleanupFile(ctx context.Context, env *Env, inst *Instance, path string) error {
	errPart := removeIfExists(path + ".part")
	errFile := env.Ledger.Discard(ctx, env.Record(inst, ledger.StorageFile, path))
	return errors.Join(errPart, errFile)
}

func removeIfExists(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
