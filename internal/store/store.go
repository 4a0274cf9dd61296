// Package store implements interfaces.Store on SQLite via the pure-Go
// modernc.org/sqlite driver, following the same connection and pragma
// setup the original tracker used for its own SQLite-backed metadata
// store, adapted to the Source/Snapshot/DiffHtml/DiffContent/WebUpdate
// schema.
package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	"github.com/raysh454/moku-wst/internal/interfaces"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaFS embed.FS

// Store is a SQLite-backed interfaces.Store implementation.
type Store struct {
	db     *sql.DB
	logger interfaces.Logger
}

// Open opens (creating if necessary) the SQLite database at path, applies
// pragmas, and runs the embedded schema.
func Open(ctx context.Context, path string, logger interfaces.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	// SQLite allows only one writer; a single shared connection avoids
	// "database is locked" errors under modernc.org/sqlite, which does
	// not multiplex writes across connections the way CGo sqlite3 does.
	db.SetMaxOpenConns(1)

	if err := applySchema(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db, logger: logger}, nil
}

func applySchema(ctx context.Context, db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
		"PRAGMA cache_size=-64000",
		"PRAGMA temp_store=MEMORY",
		"PRAGMA mmap_size=268435456",
		"PRAGMA auto_vacuum=INCREMENTAL",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			return fmt.Errorf("store: set pragma %q: %w", p, err)
		}
	}

	schemaSQL, err := schemaFS.ReadFile("schema.sql")
	if err != nil {
		return fmt.Errorf("store: read schema.sql: %w", err)
	}
	if _, err := db.ExecContext(ctx, string(schemaSQL)); err != nil {
		return fmt.Errorf("store: apply schema: %w", err)
	}
	return nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

var _ interfaces.Store = (*Store)(nil)
