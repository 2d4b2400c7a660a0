package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"dmsetl/internal/storage"
)

// Store implements storage.Store for SQLite.
//
// Key design points vs Postgres:
//   - SQLite does not enforce VARCHAR lengths, so the adaptive loader's
//     truncation path never triggers here.
//   - Dates are stored as 'YYYY-MM-DD' text, which SQLite compares and sorts
//     correctly.
//   - The pool is capped at one connection so ":memory:" databases survive
//     across statements.
type Store struct {
	db   *sql.DB
	name string
}

func init() {
	storage.Register("sqlite", Open)
}

// Open opens the database at cfg.DSN, or at cfg.Database when DSN is empty.
func Open(ctx context.Context, cfg storage.Config) (storage.Store, error) {
	dsn := cfg.DSN
	if dsn == "" {
		dsn = cfg.Database
	}
	if dsn == "" {
		return nil, fmt.Errorf("sqlite: missing dsn or database path")
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db, name: databaseName(dsn)}, nil
}

// databaseName is the file name without directory, extension or URI
// parameters.
func databaseName(dsn string) string {
	p := strings.TrimPrefix(dsn, "file:")
	if i := strings.IndexByte(p, '?'); i >= 0 {
		p = p[:i]
	}
	base := filepath.Base(p)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Exec runs query in its own transaction.
func (s *Store) Exec(ctx context.Context, query string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin: %w", err)
	}
	if _, err := tx.ExecContext(ctx, query); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// ServerVersion returns "SQLite <version>".
func (s *Store) ServerVersion(ctx context.Context) (string, error) {
	var v string
	if err := s.db.QueryRowContext(ctx, "SELECT sqlite_version();").Scan(&v); err != nil {
		return "", err
	}
	return "SQLite " + v, nil
}

func (s *Store) Database() string         { return s.name }
func (s *Store) Dialect() storage.Dialect { return storage.SQLite }
func (s *Store) Close()                   { _ = s.db.Close() }

// DB exposes the handle for read-back in tests and tooling.
func (s *Store) DB() *sql.DB { return s.db }
