// Package store provides the relational store that holds imported tables and
// the build ledger.
//
// Two database/sql backends are supported:
//   - SQLite (github.com/mattn/go-sqlite3), the default, one file per store
//   - MySQL (github.com/go-sql-driver/mysql)
//
// # Transactions
//
// Artifact creation and ledger registration for one dataset instance happen
// in a single Tx. Because CREATE TABLE is not transactional on MySQL, Tx
// tracks created tables and Rollback drops them explicitly.
//
// SQLite stores use a single connection. Code running inside a transaction
// MUST use the Tx methods only; touching the Store directly would wait on the
// connection held by the transaction.
//
// # Database Configuration (SQLite)
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
package store
