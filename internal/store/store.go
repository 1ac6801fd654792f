package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// DB wraps the single sqlite connection behind the four retryable
// primitives the ledger is written against: execute-no-result, execute
// returning the affected count, fetch-all and fetch-first.
//
// The connection pool is pinned to one connection. SQLite permits a single
// writer; a second connection would only manufacture SQLITE_BUSY errors.
type DB struct {
	sql   *sql.DB
	retry RetryPolicy
}

// Result reports the outcome of a statement that mutates rows.
type Result struct {
	Affected     int64
	LastInsertID int64
}

// Open creates or opens the database at path, applies pragmas, the
// idempotent schema, and versioned migrations. Safe to call repeatedly.
//
// Configuration:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode
//   - 5-second busy timeout as a second line of defense under the retry policy
//   - foreign key enforcement
func Open(path string, retry RetryPolicy) (*DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply pragmas: %w", err)
	}

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, err
	}

	return &DB{sql: db, retry: retry}, nil
}

// Close closes the underlying connection.
func (d *DB) Close() error {
	if d.sql == nil {
		return nil
	}
	return d.sql.Close()
}

// Exec runs a statement and discards its result.
func (d *DB) Exec(ctx context.Context, query string, args ...any) error {
	return d.retry.Do(func() error {
		_, err := d.sql.ExecContext(ctx, query, args...)
		return err
	})
}

// Run runs a statement and reports the affected count and last insert id.
func (d *DB) Run(ctx context.Context, query string, args ...any) (Result, error) {
	var res Result
	err := d.retry.Do(func() error {
		r, err := d.sql.ExecContext(ctx, query, args...)
		if err != nil {
			return err
		}
		res.Affected, err = r.RowsAffected()
		if err != nil {
			return err
		}
		res.LastInsertID, err = r.LastInsertId()
		return err
	})
	return res, err
}

// FetchAll runs a query and hands the rows to fn, which owns iteration.
// The whole call is retried on transient contention, so fn must be
// restartable: reset any accumulator at its top.
func (d *DB) FetchAll(ctx context.Context, query string, args []any, fn func(rows *sql.Rows) error) error {
	return d.retry.Do(func() error {
		rows, err := d.sql.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		return fn(rows)
	})
}

// FetchFirst runs a query and scans the first row via fn. Returns found=false
// without error when no row matches.
func (d *DB) FetchFirst(ctx context.Context, query string, args []any, fn func(rows *sql.Rows) error) (bool, error) {
	var found bool
	err := d.retry.Do(func() error {
		found = false
		rows, err := d.sql.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		if !rows.Next() {
			return rows.Err()
		}
		found = true
		return fn(rows)
	})
	return found, err
}

// Tx exposes the same four primitives inside an open transaction.
type Tx struct {
	tx    *sql.Tx
	retry RetryPolicy
}

// WithTx runs fn inside a transaction. Any error from fn (or from commit)
// rolls the whole transaction back; acquisition of BEGIN and COMMIT are
// retried on transient contention like any other statement.
func (d *DB) WithTx(ctx context.Context, fn func(tx *Tx) error) error {
	var tx *sql.Tx
	if err := d.retry.Do(func() error {
		var err error
		tx, err = d.sql.BeginTx(ctx, nil)
		return err
	}); err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() // no-op after commit

	if err := fn(&Tx{tx: tx, retry: d.retry}); err != nil {
		return err
	}

	if err := d.retry.Do(tx.Commit); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Exec runs a statement inside the transaction and discards its result.
func (t *Tx) Exec(ctx context.Context, query string, args ...any) error {
	return t.retry.Do(func() error {
		_, err := t.tx.ExecContext(ctx, query, args...)
		return err
	})
}

// Run runs a statement inside the transaction and reports its result.
func (t *Tx) Run(ctx context.Context, query string, args ...any) (Result, error) {
	var res Result
	err := t.retry.Do(func() error {
		r, err := t.tx.ExecContext(ctx, query, args...)
		if err != nil {
			return err
		}
		res.Affected, err = r.RowsAffected()
		if err != nil {
			return err
		}
		res.LastInsertID, err = r.LastInsertId()
		return err
	})
	return res, err
}

// FetchAll runs a query inside the transaction; fn must be restartable.
func (t *Tx) FetchAll(ctx context.Context, query string, args []any, fn func(rows *sql.Rows) error) error {
	return t.retry.Do(func() error {
		rows, err := t.tx.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		return fn(rows)
	})
}

// FetchFirst scans the first matching row inside the transaction.
func (t *Tx) FetchFirst(ctx context.Context, query string, args []any, fn func(rows *sql.Rows) error) (bool, error) {
	var found bool
	err := t.retry.Do(func() error {
		found = false
		rows, err := t.tx.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		if !rows.Next() {
			return rows.Err()
		}
		found = true
		return fn(rows)
	})
	return found, err
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("execute %q: %w", pragma, err)
		}
	}
	return nil
}
