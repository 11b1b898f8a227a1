package dataset

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/seeqbio/cabin/internal/ledger"
	"github.com/seeqbio/cabin/internal/store"
)

// Table is a dataset stored as a table in the relational store. The table is
// named after the instance and created from Schema, where {table} stands for
// the quoted table name.
type Table struct {
	Schema   string
	Importer Importer
	// MinRows, when positive, makes Check fail for tables with fewer rows.
	MinRows int64
}

// TableName returns the instance's table name.
func (n Table) TableName(inst *Instance) string {
	return inst.Name()
}

// Location returns the table name.
func (n Table) Location(env *Env, inst *Instance) (string, error) {
	return n.TableName(inst), nil
}

// Exists reports whether the ledger has a row for this signature.
func (n Table) Exists(ctx context.Context, env *Env, inst *Instance) (bool, error) {
	return env.Ledger.ExistsBySignature(ctx, inst.Signature())
}

// Produce creates the table, imports its contents and records it in the
// ledger, all in one transaction. If anything fails the transaction rolls
// back and the table is dropped.
func (n Table) Produce(ctx context.Context, env *Env, inst *Instance) error {
	if strings.TrimSpace(n.Schema) == "" {
		return NewMalformedError(inst.TypeName(), "table has no schema")
	}
	name := n.TableName(inst)
	if len(name) > store.MaxTableNameLength {
		return NewMalformedError(inst.TypeName(),
			"table name %q exceeds the maximum of %d characters", name, store.MaxTableNameLength)
	}

	registered, err := env.Ledger.ExistsBySignature(ctx, inst.Signature())
	if err != nil {
		return err
	}
	if registered {
		env.Log().Info("table already registered", "table", name)
		return nil
	}

	// A table without a ledger row is debris from an interrupted import.
	orphan, err := env.Store.TableExists(ctx, name)
	if err != nil {
		return err
	}
	if orphan {
		env.Log().Warn("dropping unregistered table", "table", name)
		if err := env.Store.DropTable(ctx, name); err != nil {
			return err
		}
	}

	ddl := strings.ReplaceAll(n.Schema, "{table}", store.QuoteIdent(name))
	err = env.Store.Transaction(ctx, func(tx *store.Tx) error {
		if err := tx.CreateTable(ctx, name, ddl); err != nil {
			return err
		}
		if n.Importer != nil {
			if err := n.Importer.Import(ctx, env, tx, inst, name); err != nil {
				return err
			}
		}
		return env.Ledger.Insert(ctx, tx, env.Record(inst, ledger.StorageTable, name))
	})
	if err == nil {
		env.Log().Info("imported table", "table", name)
		return nil
	}

	// Another writer may have registered the same signature while this one
	// was importing; its table is the one to keep.
	if ok, existsErr := env.Ledger.ExistsBySignature(context.WithoutCancel(ctx), inst.Signature()); existsErr == nil && ok {
		env.Log().Info("table registered concurrently, keeping existing", "table", name)
		return nil
	}
	if errors.Is(err, ledger.ErrAlreadyRegistered) {
		return NewLedgerInconsistencyError(inst.Name(), "name is registered under a different signature")
	}
	return err
}

// Check verifies the row count against MinRows.
func (n Table) Check(ctx context.Context, env *Env, inst *Instance) error {
	if n.MinRows <= 0 {
		return nil
	}
	stats, err := env.Store.TableStats(ctx, n.TableName(inst))
	if err != nil {
		return err
	}
	if stats.Rows < n.MinRows {
		return fmt.Errorf("table %s has %d rows, expected at least %d", n.TableName(inst), stats.Rows, n.MinRows)
	}
	return nil
}

// Cleanup drops the table and its ledger row.
func (n Table) Cleanup(ctx context.Context, env *Env, inst *Instance) error {
	return env.Ledger.Discard(ctx, env.Record(inst, ledger.StorageTable, n.TableName(inst)))
}
