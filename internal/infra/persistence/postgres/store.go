// Package postgres provides a FactStore on PostgreSQL through the pgx
// database/sql driver. Facts are kept in a JSONB column and every mutation
// holds a row lock (SELECT .. FOR UPDATE) for its read-modify-write.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver

	"statefacts/internal/infra/persistence/sqldoc"
	"statefacts/pkg/domain"
)

var _ domain.FactStore = (*Store)(nil)

const (
	defaultDriver = "pgx"
	defaultDSN    = "postgres://localhost/statefacts?sslmode=disable"
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

var dialect = sqldoc.Dialect{
	Name: "postgres",
	Schema: []string{`CREATE TABLE IF NOT EXISTS fun_facts (
		state_code TEXT PRIMARY KEY,
		facts JSONB NOT NULL DEFAULT '[]'::jsonb,
		version BIGINT NOT NULL DEFAULT 0,
		updated_at TIMESTAMPTZ NOT NULL
	)`},
	Insert:          `INSERT INTO fun_facts(state_code, facts, version, updated_at) VALUES($1, $2::jsonb, $3, $4) ON CONFLICT(state_code) DO NOTHING`,
	Select:          `SELECT state_code, facts, version, updated_at FROM fun_facts WHERE state_code = $1`,
	SelectForUpdate: `SELECT state_code, facts, version, updated_at FROM fun_facts WHERE state_code = $1 FOR UPDATE`,
	Update:          `UPDATE fun_facts SET facts = $1::jsonb, version = $2, updated_at = $3 WHERE state_code = $4`,
	SelectAll:       `SELECT state_code, facts, version, updated_at FROM fun_facts ORDER BY state_code`,
}

// Store is the Postgres fact store.
type Store struct {
	*sqldoc.Store
}

// NewStore connects using dsn (falling back to a local default), verifies
// the connection and ensures the fact table exists.
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	openMu.Lock()
	db, err := sqlOpen(defaultDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	inner, err := sqldoc.New(ctx, db, dialect)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{Store: inner}, nil
}

// OverrideSQLOpen swaps the sqlOpen function for tests and returns a restore function.
func OverrideSQLOpen(fn func(driverName, dataSourceName string) (*sql.DB, error)) func() {
	openMu.Lock()
	defer openMu.Unlock()
	prev := sqlOpen
	sqlOpen = fn
	return func() {
		openMu.Lock()
		defer openMu.Unlock()
		sqlOpen = prev
	}
}
