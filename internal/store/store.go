// Package store is the SQLite-backed persistence layer behind the
// repository interfaces the rest of the service talks to (spec.md §1's
// "relational store, treated through a repository interface").
package store

import (
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

// Store wraps the single store.db connection. Most write methods hold mu
// for their whole statement or transaction, matching the reference's
// single-writer StateRepo shape. BeginTx releases mu as soon as the
// transaction has begun, and the api-key writes do not take it; for those
// the pool's SetMaxOpenConns(1) is what serializes access, since an open
// transaction holds the only connection.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// Bootstrap opens (creating if needed) store.db under stateDir, applies
// migrations, and returns a ready Store plus an io.Closer for the handle.
func Bootstrap(stateDir string) (*Store, io.Closer, error) {
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("create state dir %s: %w", stateDir, err)
	}

	dbPath := filepath.Join(stateDir, "store.db")
	db, err := OpenDB(dbPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open store.db: %w", err)
	}

	if err := Migrate(db); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("migrate store.db: %w", err)
	}

	return &Store{db: db}, db, nil
}

// New wraps an already-open, already-migrated *sql.DB. Used by tests.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}
