// Package ledger records which dataset instances have been produced.
//
// The ledger is a single table in the relational store with one row per
// produced artifact, keyed by formula signature. Rows are inserted when an
// artifact is produced and deleted when it is dropped or pruned; they are
// never updated.
//
// Table imports insert their row in the same transaction that creates the
// table (Insert), so a crash never leaves one without the other. Artifacts
// that live outside the database (files, mirror objects) register after the
// artifact is complete (Register) and rely on compensating cleanup.
//
// Deleting a row also drops its storage object through the Dropper
// registered for the row's storage kind.
package ledger
