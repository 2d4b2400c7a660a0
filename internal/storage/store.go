// Package storage renders report tables into SQL for a target database and
// executes the statements through a backend Store.
//
// Backends register themselves from init() in their own package
// (storage/postgres, storage/mssql, storage/sqlite); import storage/all to
// get every backend.
package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Config is the minimal configuration needed to open a Store.
//
// When to use:
//   - Build a Config from the run configuration and pass it to New.
//
// Edge cases:
//   - Kind must match a registered backend kind.
//   - When DSN is empty the backend builds one from Host, Port, User,
//     Password and Database; validation is backend-specific.
//
// Errors:
//   - New returns an error if Kind is empty or unsupported.
type Config struct {
	Kind     string
	DSN      string
	Host     string
	Port     int
	User     string
	Password string
	Database string
}

// Store is the database surface the loader needs.
//
// Each statement passed to Exec runs in its own transaction and is committed
// before Exec returns; a failed statement is rolled back.
type Store interface {
	// Exec runs one SQL text (possibly several statements for backends that
	// accept batches) in its own transaction.
	Exec(ctx context.Context, sql string) error

	// ServerVersion returns the server's version banner.
	ServerVersion(ctx context.Context) (string, error)

	// Database returns the database name the store is connected to.
	Database() string

	// Dialect returns the SQL dialect statements must be rendered in.
	Dialect() Dialect

	// Close releases the connection.
	//
	// Edge cases:
	//   - Callers should treat Close as "call once".
	Close()
}

// Factory opens a Store for a registered kind.
type Factory func(ctx context.Context, cfg Config) (Store, error)

var (
	mu        sync.RWMutex
	factories = map[string]Factory{}
)

// Register registers a backend under a kind (e.g. "postgres", "sqlite").
//
// When to use:
//   - Call Register from an init() function in a backend package.
//   - The kind string becomes the lookup key used by New.
//
// Panics:
//   - If kind is empty.
//   - If f is nil.
//   - If kind is already registered.
func Register(kind string, f Factory) {
	mu.Lock()
	defer mu.Unlock()

	if kind == "" {
		panic("storage: Register called with empty kind")
	}
	if f == nil {
		panic("storage: Register called with nil factory")
	}
	if _, exists := factories[kind]; exists {
		panic(fmt.Sprintf("storage: factory already registered for kind=%q", kind))
	}

	factories[kind] = f
}

// New opens a Store using the registered backend factory.
//
// Concurrency:
//   - Safe for concurrent use with Register. New takes a read lock while
//     selecting the factory.
//
// Errors:
//   - Returns an error if cfg.Kind is empty or unsupported.
//   - Returns whatever error the registered factory returns.
func New(ctx context.Context, cfg Config) (Store, error) {
	if cfg.Kind == "" {
		return nil, fmt.Errorf("storage: missing kind")
	}

	mu.RLock()
	f := factories[cfg.Kind]
	mu.RUnlock()

	if f == nil {
		return nil, fmt.Errorf("unsupported storage.kind=%s (registered: %v)", cfg.Kind, Kinds())
	}
	return f(ctx, cfg)
}

// Kinds lists the registered backend kinds, sorted.
func Kinds() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
