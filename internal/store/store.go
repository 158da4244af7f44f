// Package store keeps bisque's SQLite state: the scanner's import cache and
// the ledger of published artifacts.
package store

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// Store wraps one SQLite database. It is safe for concurrent use.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at dbPath and brings its schema up to
// date.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", dbPath, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: open %s: %w", dbPath, err)
	}
	s := &Store{db: db}
	if err := s.Migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the connection pool, mainly for tests.
func (s *Store) DB() *sql.DB {
	return s.db
}

// SchemaVersion reports how many migrations the database has applied.
func (s *Store) SchemaVersion() (int, error) {
	var v int
	if err := s.db.QueryRow("PRAGMA user_version").Scan(&v); err != nil {
		return 0, fmt.Errorf("store: schema version: %w", err)
	}
	return v, nil
}

// Migrate applies the migrations the database has not seen, each in its own
// transaction. The applied count lives in PRAGMA user_version.
func (s *Store) Migrate() error {
	have, err := s.SchemaVersion()
	if err != nil {
		return err
	}
	for v := have; v < len(migrations); v++ {
		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("store: migrate to %d: %w", v+1, err)
		}
		if _, err := tx.Exec(migrations[v]); err != nil {
			tx.Rollback()
			return fmt.Errorf("store: migrate to %d: %w", v+1, err)
		}
		// PRAGMA does not take bind parameters.
		if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", v+1)); err != nil {
			tx.Rollback()
			return fmt.Errorf("store: migrate to %d: %w", v+1, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("store: migrate to %d: %w", v+1, err)
		}
	}
	return nil
}

// migrations are append-only; migrations[i] moves the schema from version i
// to i+1. Statements tolerate a concurrent opener having applied them.
var migrations = []string{
	// 1: scanner cache
	`
CREATE TABLE IF NOT EXISTS files (
  id           INTEGER PRIMARY KEY,
  path         TEXT NOT NULL UNIQUE,
  language     TEXT NOT NULL,
  hash         TEXT NOT NULL,
  last_indexed TIMESTAMP
);
CREATE TABLE IF NOT EXISTS imports (
  id            INTEGER PRIMARY KEY,
  file_id       INTEGER NOT NULL REFERENCES files(id),
  source        TEXT NOT NULL,
  imported_name TEXT,
  kind          TEXT NOT NULL DEFAULT 'import'
);
CREATE INDEX IF NOT EXISTS idx_imports_file ON imports(file_id);
`,
	// 2: artifact ledger
	`
CREATE TABLE IF NOT EXISTS artifacts (
  hash        TEXT PRIMARY KEY,
  kind        TEXT NOT NULL,
  job_hash    TEXT NOT NULL,
  location    TEXT NOT NULL,
  recorded_at TIMESTAMP
);
CREATE TABLE IF NOT EXISTS artifact_inputs (
  id             INTEGER PRIMARY KEY,
  artifact_hash  TEXT NOT NULL REFERENCES artifacts(hash),
  ordinal        INTEGER NOT NULL,
  input_hash     TEXT NOT NULL,
  input_location TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_artifacts_kind ON artifacts(kind);
CREATE INDEX IF NOT EXISTS idx_artifacts_job ON artifacts(job_hash);
CREATE INDEX IF NOT EXISTS idx_artifact_inputs_artifact ON artifact_inputs(artifact_hash);
CREATE INDEX IF NOT EXISTS idx_artifact_inputs_input ON artifact_inputs(input_hash);
`,
}
