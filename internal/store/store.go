// Package store implements the transactional ledger store on SQLite. It
// exposes the four record types (Account, Envelope, Transaction, Keyword)
// with per-user row filtering, and a transaction boundary that multi-row
// mutations run inside so a transaction row and its balance effect commit as
// one unit.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a requested row does not exist for the given
// user scope.
var ErrNotFound = errors.New("store: not found")

// Queryer is the subset of database/sql shared by *sql.DB and *sql.Tx.
// Entity methods run against a Queryer so they work identically inside and
// outside a transaction boundary.
type Queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// The schema declares no foreign keys: envelope_id 0 (unassigned) and
// keywords.account_id 0 (all accounts) are sentinels with no backing row.
// Cross-reference integrity is the auditor's concern.
const schema = `
CREATE TABLE IF NOT EXISTS accounts (
	id                  INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id             INTEGER NOT NULL,
	name                TEXT    NOT NULL,
	institution         TEXT    NOT NULL DEFAULT '',
	external_item_id    TEXT    NOT NULL DEFAULT '',
	external_account_id TEXT    NOT NULL DEFAULT '',
	cursor              TEXT    NOT NULL DEFAULT '',
	linked              INTEGER NOT NULL DEFAULT 0,
	active              INTEGER NOT NULL DEFAULT 1
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_accounts_external
	ON accounts(user_id, institution, external_account_id)
	WHERE external_account_id != '';

CREATE TABLE IF NOT EXISTS envelopes (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id     INTEGER NOT NULL,
	category_id INTEGER NOT NULL DEFAULT 0,
	name        TEXT    NOT NULL,
	balance     TEXT    NOT NULL DEFAULT '0',
	active      INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS transactions (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id     INTEGER NOT NULL,
	envelope_id INTEGER NOT NULL DEFAULT 0,
	account_id  INTEGER NOT NULL,
	amount      TEXT    NOT NULL,
	date        TEXT    NOT NULL,
	description TEXT    NOT NULL,
	ref_number  TEXT    NOT NULL DEFAULT '',
	budget      INTEGER NOT NULL DEFAULT 0,
	duplicate   INTEGER NOT NULL DEFAULT 0,
	visible     INTEGER NOT NULL DEFAULT 1,
	split       INTEGER NOT NULL DEFAULT 0,
	origin_id   INTEGER
);
CREATE INDEX IF NOT EXISTS idx_transactions_account_date
	ON transactions(user_id, account_id, date);
CREATE UNIQUE INDEX IF NOT EXISTS idx_transactions_account_ref
	ON transactions(user_id, account_id, ref_number)
	WHERE ref_number != '';

CREATE TABLE IF NOT EXISTS keywords (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id     INTEGER NOT NULL,
	account_id  INTEGER NOT NULL DEFAULT 0,
	word        TEXT    NOT NULL,
	envelope_id INTEGER NOT NULL,
	last_used   TEXT    NOT NULL DEFAULT ''
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_keywords_word ON keywords(user_id, word);
`

// Store is the ledger store handle. It is safe for concurrent use; SQLite
// serializes writers internally.
type Store struct {
	db *sql.DB
	queries
}

// Tx is an open store transaction. All entity methods called on it run
// inside the same database transaction.
type Tx struct {
	tx *sql.Tx
	queries
}

// Open opens (creating if necessary) the ledger database at path and applies
// the schema. Use ":memory:" for an ephemeral store in tests.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger database %q: %w", path, err)
	}
	// A single connection avoids table-lock contention between the pool's
	// connections under concurrent background syncs.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply ledger schema: %w", err)
	}
	return &Store{db: db, queries: queries{q: db}}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// WithTx runs fn inside a database transaction. The transaction commits when
// fn returns nil and rolls back otherwise. This is the boundary that couples
// a transaction-row mutation with its envelope balance effect.
func (s *Store) WithTx(ctx context.Context, fn func(tx *Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin store transaction: %w", err)
	}
	t := &Tx{tx: sqlTx, queries: queries{q: sqlTx}}
	if err := fn(t); err != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil {
			return fmt.Errorf("rollback failed (%v) after: %w", rbErr, err)
		}
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit store transaction: %w", err)
	}
	return nil
}

// queries carries the entity methods shared by Store and Tx.
type queries struct {
	q Queryer
}
