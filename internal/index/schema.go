// Package index provides the SQLite-backed derived index over the knowledge
// and session stores, with optional FTS5 full-text search.
package index

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

const coreSchemaSQL = `
CREATE TABLE IF NOT EXISTS knowledge_items (
	id                 TEXT PRIMARY KEY,
	path               TEXT NOT NULL DEFAULT '',
	title              TEXT NOT NULL DEFAULT '',
	date               TEXT NOT NULL DEFAULT '',
	category           TEXT NOT NULL DEFAULT '',
	tags               TEXT NOT NULL DEFAULT '[]',
	summary            TEXT NOT NULL DEFAULT '',
	confidence         TEXT NOT NULL DEFAULT 'medium',
	generated_by_skill TEXT NOT NULL DEFAULT '',
	model_sources      TEXT NOT NULL DEFAULT '[]',
	source_sessions    TEXT NOT NULL DEFAULT '[]',
	checksum           TEXT NOT NULL DEFAULT '',
	body               TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS sessions (
	session_id    TEXT PRIMARY KEY,
	created_at    TEXT NOT NULL DEFAULT '',
	model_source  TEXT NOT NULL DEFAULT '',
	model_variant TEXT NOT NULL DEFAULT '',
	entry_point   TEXT NOT NULL DEFAULT 'cli',
	project       TEXT NOT NULL DEFAULT '',
	tags          TEXT NOT NULL DEFAULT '[]',
	summaries     TEXT NOT NULL DEFAULT '{}',
	message_count INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_knowledge_category_date ON knowledge_items(category, date);
CREATE INDEX IF NOT EXISTS idx_knowledge_date ON knowledge_items(date);
CREATE INDEX IF NOT EXISTS idx_sessions_model_created ON sessions(model_source, created_at);
`

// DefaultLimit applies to queries called with a non-positive limit.
const DefaultLimit = 20

// DB wraps a sql.DB with index-specific operations.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite database at path and applies the schema.
// The parent directory is created if missing.
func Open(path string) (*DB, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("index: create dir: %w", err)
		}
	}
	conn, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("index: open db: %w", err)
	}
	// One connection per process; cross-process writers queue on SQLite's
	// file lock via busy_timeout.
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: ping: %w", err)
	}
	if _, err := conn.Exec(coreSchemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: apply core schema: %w", err)
	}
	if err := initFTS(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: apply fts schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping reports whether the database is reachable.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// Reset empties every table. Used before a full rebuild from the file stores.
func (db *DB) Reset(ctx context.Context) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	for _, stmt := range []string{`DELETE FROM knowledge_items`, `DELETE FROM sessions`} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("index: reset: %w", err)
		}
	}
	if err := ftsReset(ctx, tx); err != nil {
		return err
	}
	return tx.Commit()
}
