// Package store persists users and test records in SQLite. A test row is
// treated as a document: questions, cohort, and results live in JSON columns
// and every mutation is a single statement or an IMMEDIATE transaction, so
// concurrent writers never interleave partial updates to one record.
package store

import (
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a referenced test does not exist.
var ErrNotFound = errors.New("test not found")

// ErrBadIndex is returned for an out-of-range question index.
var ErrBadIndex = errors.New("question index out of range")

type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	// Transactions must start IMMEDIATE: the read-modify-write paths
	// (results, question edits, upsert) otherwise hit SQLITE_BUSY on the
	// read-to-write lock upgrade under concurrent writers instead of
	// queueing on the busy timeout.
	db, err := sql.Open("sqlite", dbPath+"?_txlock=immediate&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		email TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		role TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS tests (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		owner_id INTEGER NOT NULL,
		name TEXT NOT NULL,
		source_name TEXT NOT NULL DEFAULT '',
		source_text TEXT NOT NULL DEFAULT '',
		questions TEXT NOT NULL DEFAULT '[]',
		status TEXT NOT NULL DEFAULT 'generated',
		cohort TEXT NOT NULL DEFAULT '[]',
		start_time TEXT,
		end_time TEXT,
		duration INTEGER NOT NULL DEFAULT 0,
		results TEXT NOT NULL DEFAULT '{}',
		created_at DATETIME NOT NULL,
		UNIQUE(owner_id, name),
		FOREIGN KEY (owner_id) REFERENCES users(id)
	);

	CREATE INDEX IF NOT EXISTS idx_tests_status ON tests(status);
	`
	_, err := s.db.Exec(schema)
	return err
}
