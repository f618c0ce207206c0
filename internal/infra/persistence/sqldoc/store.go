// Package sqldoc stores fact documents as one row per state code in a SQL
// table. The sqlite and postgres drivers share this engine and differ only
// in their Dialect.
package sqldoc

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"statefacts/pkg/domain"
)

// Table is the name of the fact table in every dialect.
const Table = "fun_facts"

// Dialect carries the driver specific statements. Every statement reads or
// writes the columns (state_code, facts, version, updated_at) in that order.
type Dialect struct {
	Name string
	// Schema runs once on open.
	Schema []string
	// Insert creates an empty row and must ignore an existing one.
	// Args: code, facts, version, updated_at.
	Insert string
	// Select reads one row. Args: code.
	Select string
	// SelectForUpdate reads one row inside a write transaction, taking a row
	// lock where the database supports one. Args: code.
	SelectForUpdate string
	// Update writes one row. Args: facts, version, updated_at, code.
	Update string
	// SelectAll reads every row ordered by state_code.
	SelectAll string
	// EncodeTime converts a timestamp into a bind argument.
	EncodeTime func(time.Time) any
}

// Store implements domain.FactStore on a *sql.DB.
type Store struct {
	db      *sql.DB
	dialect Dialect
	now     func() time.Time
	intn    func(int) int
}

// New applies the dialect schema and returns the store.
func New(ctx context.Context, db *sql.DB, dialect Dialect) (*Store, error) {
	for _, stmt := range dialect.Schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("%s: apply schema: %w", dialect.Name, err)
		}
	}
	if dialect.EncodeTime == nil {
		dialect.EncodeTime = func(t time.Time) any { return t }
	}
	return &Store{db: db, dialect: dialect, now: time.Now, intn: rand.IntN}, nil
}

// SetIntn overrides the random index source used by PickRandom.
func (s *Store) SetIntn(intn func(int) int) { s.intn = intn }

// DB exposes the underlying handle for tests and health checks.
func (s *Store) DB() *sql.DB { return s.db }

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (domain.FactDocument, error) {
	var (
		doc   domain.FactDocument
		facts []byte
		ts    timestamp
	)
	if err := row.Scan(&doc.StateCode, &facts, &doc.Version, &ts); err != nil {
		return domain.FactDocument{}, err
	}
	if err := json.Unmarshal(facts, &doc.Facts); err != nil {
		return domain.FactDocument{}, fmt.Errorf("decode facts for %s: %w", doc.StateCode, err)
	}
	if doc.Facts == nil {
		doc.Facts = []string{}
	}
	doc.UpdatedAt = ts.Time
	return doc, nil
}

func (s *Store) Get(ctx context.Context, code string) (domain.FactDocument, bool, error) {
	doc, err := scanDocument(s.db.QueryRowContext(ctx, s.dialect.Select, code))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.FactDocument{}, false, nil
	}
	if err != nil {
		return domain.FactDocument{}, false, fmt.Errorf("select %s: %w", code, err)
	}
	return doc, true, nil
}

// mutate runs a read-modify-write of one row inside a transaction. When
// create is set an empty row is inserted first, so the locked read always
// finds a document.
func (s *Store) mutate(ctx context.Context, op, code string, create bool, fn func(*domain.FactDocument) error) (doc domain.FactDocument, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.FactDocument{}, fmt.Errorf("begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	now := s.now().UTC()
	if create {
		if _, err := tx.ExecContext(ctx, s.dialect.Insert, code, "[]", 0, s.dialect.EncodeTime(now)); err != nil {
			return domain.FactDocument{}, fmt.Errorf("insert %s: %w", code, err)
		}
	}
	doc, err = scanDocument(tx.QueryRowContext(ctx, s.dialect.SelectForUpdate, code))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.FactDocument{}, domain.MissingDocument(op, code)
	}
	if err != nil {
		return domain.FactDocument{}, fmt.Errorf("select %s for update: %w", code, err)
	}
	if err := fn(&doc); err != nil {
		return domain.FactDocument{}, err
	}
	doc.Touch(now)
	facts, err := json.Marshal(doc.Facts)
	if err != nil {
		return domain.FactDocument{}, err
	}
	if _, err := tx.ExecContext(ctx, s.dialect.Update, string(facts), doc.Version, s.dialect.EncodeTime(doc.UpdatedAt), code); err != nil {
		return domain.FactDocument{}, fmt.Errorf("update %s: %w", code, err)
	}
	if err := tx.Commit(); err != nil {
		return domain.FactDocument{}, fmt.Errorf("commit: %w", err)
	}
	committed = true
	return doc, nil
}

func (s *Store) AppendDistinct(ctx context.Context, code string, facts []string) (domain.FactDocument, error) {
	return s.mutate(ctx, domain.OpAppend, code, true, func(d *domain.FactDocument) error {
		d.AppendDistinct(facts)
		return nil
	})
}

func (s *Store) ReplaceAt(ctx context.Context, code string, position int, value string) (domain.FactDocument, error) {
	return s.mutate(ctx, domain.OpReplace, code, false, func(d *domain.FactDocument) error {
		return d.ReplaceAt(position, value)
	})
}

func (s *Store) DeleteAt(ctx context.Context, code string, position int) (domain.FactDocument, error) {
	return s.mutate(ctx, domain.OpDelete, code, false, func(d *domain.FactDocument) error {
		return d.DeleteAt(position)
	})
}

func (s *Store) PickRandom(ctx context.Context, code string) (string, error) {
	doc, found, err := s.Get(ctx, code)
	if err != nil {
		return "", err
	}
	if !found {
		return "", domain.NotFound(domain.OpPickRandom, code, "no fun facts available for this state")
	}
	return doc.Pick(s.intn)
}

func (s *Store) List(ctx context.Context) ([]domain.FactDocument, error) {
	rows, err := s.db.QueryContext(ctx, s.dialect.SelectAll)
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", Table, err)
	}
	defer func() { _ = rows.Close() }()
	var docs []domain.FactDocument
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", Table, err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", Table, err)
	}
	return docs, nil
}

func (s *Store) Close() error { return s.db.Close() }

// timestamp scans the time representations returned by the supported drivers.
type timestamp struct{ time.Time }

var timeLayouts = []string{time.RFC3339Nano, "2006-01-02 15:04:05.999999999-07:00", "2006-01-02 15:04:05"}

func (t *timestamp) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		t.Time = time.Time{}
		return nil
	case time.Time:
		t.Time = v.UTC()
		return nil
	case int64:
		t.Time = time.Unix(0, v).UTC()
		return nil
	case []byte:
		return t.parse(string(v))
	case string:
		return t.parse(v)
	}
	return fmt.Errorf("unsupported timestamp type %T", src)
}

func (t *timestamp) parse(s string) error {
	for _, layout := range timeLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed.UTC()
			return nil
		}
	}
	return fmt.Errorf("unparseable timestamp %q", s)
}
