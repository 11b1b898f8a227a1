package dataset

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"

	"github.com/seeqbio/cabin/internal/ledger"
	"github.com/seeqbio/cabin/internal/store"
)

// Mirror keeps a copy of its single input in the mirror store under
// <prefix>/<name>.<extension>. Mirroring pins an external version that the
// origin may later stop offering.
type Mirror struct {
	Prefix    string
	Extension string
}

// Key returns the instance's object key in the mirror store.
func (n Mirror) Key(inst *Instance) string {
	name := inst.Name()
	if n.Extension != "" {
		name += "." + n.Extension
	}
	if n.Prefix == "" {
		return name
	}
	return path.Join(n.Prefix, name)
}

// Location returns the object key; MirroredFile reads it back through the
// mirror store.
func (n Mirror) Location(env *Env, inst *Instance) (string, error) {
	return n.Key(inst), nil
}

// Exists reports whether the instance is registered and its mirror object
// is present. An object without a ledger row is produced again.
func (n Mirror) Exists(ctx context.Context, env *Env, inst *Instance) (bool, error) {
	if env.Mirror == nil {
		return false, fmt.Errorf("no mirror store configured")
	}
	ok, err := env.Ledger.ExistsBySignature(ctx, inst.Signature())
	if err != nil || !ok {
		return false, err
	}
	key := n.Key(inst)
	ok, err = env.Mirror.Exists(ctx, key)
	if err != nil {
		return false, err
	}
	if !ok {
		env.Log().Warn("ledger row without mirror object", "dataset", inst.Name(), "key", env.Mirror.URL(key))
	}
	return ok, nil
}

// Produce downloads the input to a scratch file, uploads it and registers
// the object.
func (n Mirror) Produce(ctx context.Context, env *Env, inst *Instance) error {
	if env.Mirror == nil {
		return fmt.Errorf("no mirror store configured")
	}
	if env.Fetcher == nil {
		return fmt.Errorf("no fetcher configured")
	}
	input, err := inst.Sole()
	if err != nil {
		return err
	}
	url, err := LocationOf(env, input)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(env.DownloadDir, "mirror-*")
	if err != nil {
		return fmt.Errorf("create scratch file: %w", err)
	}
	scratch := tmp.Name()
	_ = tmp.Close()
	defer os.Remove(scratch)

	key := n.Key(inst)
	env.Log().Info("mirroring", "dataset", inst.Name(), "url", url, "key", env.Mirror.URL(key))
	if err := env.Fetcher.Fetch(ctx, url, scratch); err != nil {
		return err
	}
	if err := env.Mirror.Put(ctx, scratch, key); err != nil {
		return fmt.Errorf("upload %s: %w", env.Mirror.URL(key), err)
	}
	return register(ctx, env, env.Record(inst, ledger.StorageMirror, key))
}

// Cleanup deletes the object and the ledger row.
func (n Mirror) Cleanup(ctx context.Context, env *Env, inst *Instance) error {
	if env.Mirror == nil {
		return nil
	}
	return env.Ledger.Discard(ctx, env.Record(inst, ledger.StorageMirror, n.Key(inst)))
}

// MirrorDropper returns the ledger option that deletes mirror objects of
// dropped rows.
func MirrorDropper(m MirrorStore) ledger.Option {
	return ledger.WithDropper(ledger.StorageMirror, func(ctx context.Context, tx *store.Tx, rec ledger.Record) error {
		if m == nil {
			return errors.New("no mirror store configured")
		}
		return m.Delete(ctx, rec.StorageName)
	})
}
