package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/seeqbio/cabin/internal/store"
)

// ErrAlreadyRegistered is returned when a row with the same signature (or
// name) is already in the ledger. The primary key on signature is the only
// serialization point between concurrent builders.
var ErrAlreadyRegistered = errors.New("already registered in ledger")

// ErrNotFound is returned when no ledger row matches.
var ErrNotFound = errors.New("not found in ledger")

// Dropper removes the storage object a ledger row refers to. It runs inside
// the transaction that deletes the row; returning an error rolls the
// deletion back.
type Dropper func(ctx context.Context, tx *store.Tx, rec Record) error

// Ledger provides access to the ledger table.
type Ledger struct {
	store    *store.Store
	droppers map[StorageKind]Dropper
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithDropper registers the dropper for a storage kind, replacing any
// previous one.
func WithDropper(kind StorageKind, d Dropper) Option {
	return func(l *Ledger) {
		l.droppers[kind] = d
	}
}

// New creates a Ledger over s. Tables are dropped in the deleting
// transaction by default; other storage kinds need a registered Dropper.
func New(s *store.Store, opts ...Option) *Ledger {
	l := &Ledger{
		store: s,
		droppers: map[StorageKind]Dropper{
			StorageTable: dropTable,
		},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Store returns the underlying store.
func (l *Ledger) Store() *store.Store {
	return l.store
}

const selectColumns = "signature, type, name, storage_name, storage_kind, formula, producer"

// ExistsBySignature reports whether an artifact with this signature has been
// recorded.
func (l *Ledger) ExistsBySignature(ctx context.Context, sig string) (bool, error) {
	var count int
	err := l.store.QueryRow(ctx, "SELECT COUNT(*) FROM `system` WHERE signature = ?", sig).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("ledger exists %s: %w", sig, err)
	}
	return count > 0, nil
}

// Insert adds exactly one row inside tx, the same transaction that creates
// the artifact. A duplicate signature or name yields ErrAlreadyRegistered.
func (l *Ledger) Insert(ctx context.Context, tx *store.Tx, rec Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}

	_, err := tx.Exec(ctx, `
		INSERT INTO `+"`system`"+`
		(signature, type, name, storage_name, storage_kind, formula, producer)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		rec.Signature,
		rec.Type,
		rec.Name,
		rec.StorageName,
		string(rec.StorageKind),
		rec.Formula,
		rec.Producer,
	)
	if err != nil {
		if store.IsUniqueViolation(err) {
			return fmt.Errorf("ledger insert %s: %w", rec.Name, ErrAlreadyRegistered)
		}
		return fmt.Errorf("ledger insert %s: %w", rec.Name, err)
	}
	return nil
}

// Register inserts rec in its own transaction.
func (l *Ledger) Register(ctx context.Context, rec Record) error {
	return l.store.Transaction(ctx, func(tx *store.Tx) error {
		return l.Insert(ctx, tx, rec)
	})
}

// Get returns the row with the given name.
func (l *Ledger) Get(ctx context.Context, name string) (Record, error) {
	row := l.store.QueryRow(ctx, "SELECT "+selectColumns+" FROM `system` WHERE name = ?", name)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, fmt.Errorf("ledger get %s: %w", name, ErrNotFound)
	}
	if err != nil {
		return Record{}, fmt.Errorf("ledger get %s: %w", name, err)
	}
	return rec, nil
}

// GetBySignature returns the row with the given signature.
func (l *Ledger) GetBySignature(ctx context.Context, sig string) (Record, error) {
	row := l.store.QueryRow(ctx, "SELECT "+selectColumns+" FROM `system` WHERE signature = ?", sig)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, fmt.Errorf("ledger get %s: %w", sig, ErrNotFound)
	}
	if err != nil {
		return Record{}, fmt.Errorf("ledger get %s: %w", sig, err)
	}
	return rec, nil
}

// All returns every row ordered by name.
func (l *Ledger) All(ctx context.Context) ([]Record, error) {
	return l.query(ctx, "SELECT "+selectColumns+" FROM `system` ORDER BY name")
}

// ByType returns the rows of one dataset type ordered by name.
func (l *Ledger) ByType(ctx context.Context, typ string) ([]Record, error) {
	return l.query(ctx, "SELECT "+selectColumns+" FROM `system` WHERE type = ? ORDER BY name", typ)
}

func (l *Ledger) query(ctx context.Context, query string, args ...any) ([]Record, error) {
	rows, err := l.store.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ledger query: %w", err)
	}
	defer rows.Close()

	var recs []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("ledger scan: %w", err)
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ledger query: %w", err)
	}
	return recs, nil
}

// DeleteByName removes a ledger row and drops its storage object in one
// transaction. Returns ErrNotFound if no row has that name.
func (l *Ledger) DeleteByName(ctx context.Context, name string) error {
	rec, err := l.Get(ctx, name)
	if err != nil {
		return err
	}
	return l.remove(ctx, rec, true)
}

// Discard removes whatever exists of rec: its row, if any, and its storage
// object. Used by compensating cleanup after a failed production, where the
// row may or may not have been written.
func (l *Ledger) Discard(ctx context.Context, rec Record) error {
	return l.remove(ctx, rec, false)
}

func (l *Ledger) remove(ctx context.Context, rec Record, mustExist bool) error {
	drop, ok := l.droppers[rec.StorageKind]
	if !ok {
		return fmt.Errorf("ledger delete %s: no dropper for storage kind %q", rec.Name, rec.StorageKind)
	}

	return l.store.Transaction(ctx, func(tx *store.Tx) error {
		res, err := tx.Exec(ctx, "DELETE FROM `system` WHERE name = ? OR signature = ?", rec.Name, rec.Signature)
		if err != nil {
			return fmt.Errorf("ledger delete %s: %w", rec.Name, err)
		}
		if mustExist {
			n, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("ledger delete %s: %w", rec.Name, err)
			}
			if n == 0 {
				return fmt.Errorf("ledger delete %s: %w", rec.Name, ErrNotFound)
			}
		}
		if err := drop(ctx, tx, rec); err != nil {
			return fmt.Errorf("ledger delete %s: drop %s: %w", rec.Name, rec.StorageKind, err)
		}
		return nil
	})
}

// dropTable drops the row's table inside the deleting transaction.
func dropTable(ctx context.Context, tx *store.Tx, rec Record) error {
	_, err := tx.Exec(ctx, "DROP TABLE IF EXISTS "+store.QuoteIdent(rec.StorageName))
	return err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (Record, error) {
	var rec Record
	var kind string
	err := s.Scan(
		&rec.Signature,
		&rec.Type,
		&rec.Name,
		&rec.StorageName,
		&kind,
		&rec.Formula,
		&rec.Producer,
	)
	rec.StorageKind = StorageKind(kind)
	return rec, err
}
