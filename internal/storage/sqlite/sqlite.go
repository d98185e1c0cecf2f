// Package sqlite implements the TalentGraph storage interfaces on SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/untoldecay/TalentGraph/internal/storage"
)

// SQLiteStore implements storage.Store backed by a single SQLite database.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// compile-time interface checks
var (
	_ storage.Store       = (*SQLiteStore)(nil)
	_ storage.Transaction = (*sqliteTx)(nil)
)

// New opens (creating if necessary) the database at dbPath, applies the
// schema and any pending migrations, and returns a ready store.
func New(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	dsn := "file:" + dbPath +
		"?_pragma=journal_mode(WAL)" +
		"&_pragma=busy_timeout(5000)" +
		"&_pragma=foreign_keys(ON)" +
		"&_pragma=synchronous(NORMAL)"

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	if err := RunMigrations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &SQLiteStore{db: db, path: dbPath}, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string {
	return s.path
}

// UnderlyingDB returns the underlying *sql.DB connection.
func (s *SQLiteStore) UnderlyingDB() *sql.DB {
	return s.db
}

// querier is satisfied by both *sql.DB and *sql.Conn so that store methods
// and transaction methods share one implementation.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// sqliteTx implements storage.Transaction over a dedicated connection that
// holds an open BEGIN IMMEDIATE transaction.
type sqliteTx struct {
	conn *sql.Conn
}

// RunInTransaction executes fn within a BEGIN IMMEDIATE transaction.
// A nil return commits; an error or panic rolls back.
func (s *SQLiteStore) RunInTransaction(ctx context.Context, fn func(tx storage.Transaction) error) error {
	return s.withImmediateTx(ctx, func(conn *sql.Conn) error {
		return fn(&sqliteTx{conn: conn})
	})
}

// withImmediateTx runs fn on a dedicated connection holding a BEGIN
// IMMEDIATE transaction. IMMEDIATE acquires the write lock up front,
// serializing concurrent writers instead of deadlocking on lock upgrade.
func (s *SQLiteStore) withImmediateTx(ctx context.Context, fn func(conn *sql.Conn) error) error {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer func() { _ = conn.Close() }()

	if _, err := conn.ExecContext(ctx, "BEGIN IMMEDIATE"); err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	committed := false
	defer func() {
		if !committed {
			_, _ = conn.ExecContext(context.WithoutCancel(ctx), "ROLLBACK")
		}
	}()

	if err := fn(conn); err != nil {
		return err
	}

	if _, err := conn.ExecContext(ctx, "COMMIT"); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	committed = true
	return nil
}

// isUniqueConstraintError checks if err is a UNIQUE constraint violation.
// Used to turn duplicate inserts into storage.ErrDuplicate.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "constraint failed: UNIQUE")
}
