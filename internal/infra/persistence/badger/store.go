// Package badger provides a FactStore on an embedded Badger key-value
// database. Each document is a JSON value under "facts/<code>"; mutations
// run in optimistic transactions retried on conflict.
package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"

	"statefacts/pkg/domain"
)

var _ domain.FactStore = (*Store)(nil)

const (
	keyPrefix = "facts/"
	// maxConflictRetries bounds the retries after badger.ErrConflict.
	maxConflictRetries = 32
)

// Config controls how the database is opened.
type Config struct {
	// Path is the data directory; required unless InMemory is set.
	Path       string
	InMemory   bool
	SyncWrites bool
	// Logger receives badger's internal logs; nil silences them.
	Logger *slog.Logger
}

// DefaultConfig returns durable settings for path.
func DefaultConfig(path string) Config {
	return Config{Path: path, SyncWrites: true}
}

// InMemoryConfig returns settings for a throwaway database.
func InMemoryConfig() Config {
	return Config{InMemory: true}
}

type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// Store is the Badger fact store.
type Store struct {
	db   *badger.DB
	now  func() time.Time
	intn func(int) int
}

// NewStore opens the database described by cfg.
func NewStore(cfg Config) (*Store, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("badger path is required for a persistent database")
	}
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("create database directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}
	return &Store{db: db, now: time.Now, intn: rand.IntN}, nil
}

func key(code string) []byte { return []byte(keyPrefix + code) }

func readDocument(txn *badger.Txn, code string) (domain.FactDocument, bool, error) {
	item, err := txn.Get(key(code))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return domain.FactDocument{}, false, nil
	}
	if err != nil {
		return domain.FactDocument{}, false, err
	}
	var doc domain.FactDocument
	if err := item.Value(func(val []byte) error { return json.Unmarshal(val, &doc) }); err != nil {
		return domain.FactDocument{}, false, fmt.Errorf("decode %s: %w", code, err)
	}
	if doc.Facts == nil {
		doc.Facts = []string{}
	}
	return doc, true, nil
}

func (s *Store) Get(ctx context.Context, code string) (domain.FactDocument, bool, error) {
	if err := ctx.Err(); err != nil {
		return domain.FactDocument{}, false, err
	}
	var (
		doc   domain.FactDocument
		found bool
	)
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		doc, found, err = readDocument(txn, code)
		return err
	})
	if err != nil {
		return domain.FactDocument{}, false, fmt.Errorf("get %s: %w", code, err)
	}
	return doc, found, nil
}

// mutate runs fn inside an update transaction, retrying when a concurrent
// transaction committed a write to the same key first.
func (s *Store) mutate(ctx context.Context, op, code string, create bool, fn func(*domain.FactDocument) error) (domain.FactDocument, error) {
	var out domain.FactDocument
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return domain.FactDocument{}, err
		}
		err := s.db.Update(func(txn *badger.Txn) error {
			doc, found, err := readDocument(txn, code)
			if err != nil {
				return err
			}
			if !found {
				if !create {
					return domain.MissingDocument(op, code)
				}
				doc = domain.NewFactDocument(code)
			}
			if err := fn(&doc); err != nil {
				return err
			}
			doc.Touch(s.now())
			val, err := json.Marshal(doc)
			if err != nil {
				return err
			}
			if err := txn.Set(key(code), val); err != nil {
				return err
			}
			out = doc
			return nil
		})
		if errors.Is(err, badger.ErrConflict) {
			continue
		}
		if err != nil {
			var de *domain.Error
			if errors.As(err, &de) {
				return domain.FactDocument{}, err
			}
			return domain.FactDocument{}, fmt.Errorf("%s %s: %w", op, code, err)
		}
		return out, nil
	}
	return domain.FactDocument{}, fmt.Errorf("%s %s: %w", op, code, badger.ErrConflict)
}

func (s *Store) AppendDistinct(ctx context.Context, code string, facts []string) (domain.FactDocument, error) {
	return s.mutate(ctx, domain.OpAppend, code, true, func(d *domain.FactDocument) error {
		d.AppendDistinct(facts)
		return nil
	})
}

func (s *Store) ReplaceAt(ctx context.Context, code string, position int, value string) (domain.FactDocument, error) {
	return s.mutate(ctx, domain.OpReplace, code, false, func(d *domain.FactDocument) error { return d.ReplaceAt(position, value) })
}

func (s *Store) DeleteAt(ctx context.Context, code string, position int) (domain.FactDocument, error) {
	return s.mutate(ctx, domain.OpDelete, code, false, func(d *domain.FactDocument) error { return d.DeleteAt(position) })
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

// List iterates the key prefix; badger keeps keys sorted, so documents come
// back ordered by state code.
func (s *Store) List(ctx context.Context) ([]domain.FactDocument, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var docs []domain.FactDocument
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte(keyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var doc domain.FactDocument
			if err := it.Item().Value(func(val []byte) error { return json.Unmarshal(val, &doc) }); err != nil {
				return fmt.Errorf("decode %s: %w", it.Item().Key(), err)
			}
			docs = append(docs, doc)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list: %w", err)
	}
	return docs, nil
}

// Close flushes and closes the database.
func (s *Store) Close() error { return s.db.Close() }
