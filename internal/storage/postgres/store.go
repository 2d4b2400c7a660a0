package postgres

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/jackc/pgx/v5"

	"dmsetl/internal/storage"
)

/*
Store implements storage.Store for Postgres.

A run holds a single connection; every Exec runs in its own transaction and
commits before returning. Statements are literal SQL (no parameters), so pgx
sends them over the simple protocol and a multi-statement ALTER batch is
accepted.
*/
type Store struct {
	conn conn
	db   string
}

// conn is the subset of *pgx.Conn the store uses.
type conn interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close(ctx context.Context) error
}

// Open connects to Postgres.
func Open(ctx context.Context, cfg storage.Config) (storage.Store, error) {
	dsn := cfg.DSN
	if dsn == "" {
		dsn = BuildDSN(cfg)
	}
	pc, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse dsn: %w", err)
	}
	c, err := pgx.ConnectConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect %s:%d/%s: %w", pc.Host, pc.Port, pc.Database, err)
	}
	return &Store{conn: c, db: pc.Database}, nil
}

// BuildDSN renders a postgres:// URL from discrete connection fields.
// The default port is 5432.
func BuildDSN(cfg storage.Config) string {
	port := cfg.Port
	if port == 0 {
		port = 5432
	}
	host := cfg.Host
	if host == "" {
		host = "localhost"
	}
	u := url.URL{
		Scheme: "postgres",
		Host:   host + ":" + strconv.Itoa(port),
		Path:   "/" + cfg.Database,
	}
	if cfg.User != "" {
		if cfg.Password != "" {
			u.User = url.UserPassword(cfg.User, cfg.Password)
		} else {
			u.User = url.User(cfg.User)
		}
	}
	return u.String()
}

// Exec runs sql in its own transaction.
func (s *Store) Exec(ctx context.Context, sql string) error {
	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, sql); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit: %w", err)
	}
	return nil
}

// ServerVersion returns SELECT version().
func (s *Store) ServerVersion(ctx context.Context) (string, error) {
	var v string
	if err := s.conn.QueryRow(ctx, "SELECT version();").Scan(&v); err != nil {
		return "", err
	}
	return v, nil
}

func (s *Store) Database() string         { return s.db }
func (s *Store) Dialect() storage.Dialect { return storage.Postgres }

// Close closes the connection.
func (s *Store) Close() {
	if s == nil || s.conn == nil {
		return
	}
	_ = s.conn.Close(context.Background())
}
