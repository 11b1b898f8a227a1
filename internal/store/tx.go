package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Tx is a write transaction that also tracks the tables it creates.
//
// DDL is not transactional on MySQL: a CREATE TABLE survives ROLLBACK. Tx
// records every table created through CreateTable and drops them again on
// Rollback, so a failed import never leaves a partial or empty table behind.
type Tx struct {
	tx      *sql.Tx
	store   *Store
	created []string
	done    bool
}

// Begin starts a transaction.
func (s *Store) Begin(ctx context.Context) (*Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	return &Tx{tx: tx, store: s}, nil
}

// Transaction runs fn inside a transaction. The transaction is committed if
// fn returns nil and rolled back (dropping created tables) otherwise. A panic
// in fn rolls back and re-panics.
func (s *Store) Transaction(ctx context.Context, fn func(tx *Tx) error) (err error) {
	tx, err := s.Begin(ctx)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(context.WithoutCancel(ctx))
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(context.WithoutCancel(ctx)); rbErr != nil {
			return errors.Join(err, rbErr)
		}
		return err
	}
	return tx.Commit()
}

// Exec executes a statement inside the transaction.
func (t *Tx) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return t.tx.ExecContext(ctx, query, args...)
}

// QueryRow executes a query inside the transaction.
func (t *Tx) QueryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return t.tx.QueryRowContext(ctx, query, args...)
}

// Prepare creates a prepared statement bound to the transaction.
func (t *Tx) Prepare(ctx context.Context, query string) (*sql.Stmt, error) {
	return t.tx.PrepareContext(ctx, query)
}

// CreateTable executes a CREATE TABLE statement for name and remembers the
// table for Rollback. Names longer than MaxTableNameLength are rejected
// before anything is executed.
func (t *Tx) CreateTable(ctx context.Context, name, ddl string) error {
	if name == "" {
		return fmt.Errorf("create table: empty table name")
	}
	if len(name) > MaxTableNameLength {
		return fmt.Errorf("create table: table name %q exceeds the maximum of %d characters", name, MaxTableNameLength)
	}

	if _, err := t.tx.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create table %q: %w", name, err)
	}
	t.created = append(t.created, name)
	return nil
}

// Created returns the names of tables created in this transaction.
func (t *Tx) Created() []string {
	return append([]string(nil), t.created...)
}

// Commit commits the transaction.
func (t *Tx) Commit() error {
	if t.done {
		return fmt.Errorf("commit: transaction already finished")
	}
	t.done = true
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Rollback rolls back the transaction and then drops every table created
// through CreateTable. Calling Rollback on a finished transaction is a no-op.
func (t *Tx) Rollback(ctx context.Context) error {
	if t.done {
		return nil
	}
	t.done = true

	var errs []error
	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		errs = append(errs, fmt.Errorf("rollback: %w", err))
	}
	for _, name := range t.created {
		if err := t.store.DropTable(ctx, name); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
