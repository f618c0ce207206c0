// Package sqlite provides a FactStore on an embedded SQLite database
// (modernc.org/sqlite, no cgo).
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // pure go sqlite driver

	"statefacts/internal/infra/persistence/sqldoc"
	"statefacts/pkg/domain"
)

var _ domain.FactStore = (*Store)(nil)

const defaultPath = "statefacts.db"

var dialect = sqldoc.Dialect{
	Name: "sqlite",
	Schema: []string{`CREATE TABLE IF NOT EXISTS fun_facts (
		state_code TEXT PRIMARY KEY,
		facts TEXT NOT NULL DEFAULT '[]',
		version INTEGER NOT NULL DEFAULT 0,
		updated_at TEXT NOT NULL
	)`},
	Insert:          `INSERT INTO fun_facts(state_code, facts, version, updated_at) VALUES(?, ?, ?, ?) ON CONFLICT(state_code) DO NOTHING`,
	Select:          `SELECT state_code, facts, version, updated_at FROM fun_facts WHERE state_code = ?`,
	SelectForUpdate: `SELECT state_code, facts, version, updated_at FROM fun_facts WHERE state_code = ?`,
	Update:          `UPDATE fun_facts SET facts = ?, version = ?, updated_at = ? WHERE state_code = ?`,
	SelectAll:       `SELECT state_code, facts, version, updated_at FROM fun_facts ORDER BY state_code`,
	EncodeTime:      func(t time.Time) any { return t.UTC().Format(time.RFC3339Nano) },
}

// Store persists fact documents in a single SQLite table. The pool holds
// one connection, so every read-modify-write transaction runs alone.
type Store struct {
	*sqldoc.Store
	path string
}

// NewStore opens (or creates) the database at path.
func NewStore(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		path = defaultPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	inner, err := sqldoc.New(ctx, db, dialect)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{Store: inner, path: path}, nil
}

// Path returns the configured database path.
func (s *Store) Path() string { return s.path }
