// Package memory provides an in-process FactStore. Documents live in a map
// guarded by a read/write lock; each document carries its own mutex so that
// mutations on different state codes never contend.
package memory

import (
	"context"
	"math/rand/v2"
	"sort"
	"sync"
	"time"

	"statefacts/pkg/domain"
)

var _ domain.FactStore = (*Store)(nil)

type entry struct {
	mu  sync.Mutex
	doc domain.FactDocument
}

// Store is a concurrency-safe FactStore backed by process memory.
type Store struct {
	mu      sync.RWMutex
	entries map[string]*entry
	now     func() time.Time
	intn    func(int) int
}

// Option customizes a Store.
type Option func(*Store)

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option { return func(s *Store) { s.now = now } }

// WithIntn overrides the random index source used by PickRandom.
func WithIntn(intn func(int) int) Option { return func(s *Store) { s.intn = intn } }

// NewStore returns an empty store.
func NewStore(opts ...Option) *Store {
	s := &Store{entries: make(map[string]*entry), now: time.Now, intn: rand.IntN}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) lookup(code string) *entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.entries[code]
}

// getOrCreate returns the entry for code, inserting an empty document when
// none exists.
func (s *Store) getOrCreate(code string) *entry {
	if e := s.lookup(code); e != nil {
		return e
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[code]; ok {
		return e
	}
	e := &entry{doc: domain.NewFactDocument(code)}
	s.entries[code] = e
	return e
}

// Get returns a copy of the stored document.
func (s *Store) Get(ctx context.Context, code string) (domain.FactDocument, bool, error) {
	if err := ctx.Err(); err != nil {
		return domain.FactDocument{}, false, err
	}
	e := s.lookup(code)
	if e == nil {
		return domain.FactDocument{}, false, nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.doc.Clone(), true, nil
}

// mutate applies fn to a working copy and publishes it only on success.
func (s *Store) mutate(ctx context.Context, e *entry, fn func(*domain.FactDocument) error) (domain.FactDocument, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return domain.FactDocument{}, err
	}
	working := e.doc.Clone()
	if err := fn(&working); err != nil {
		return domain.FactDocument{}, err
	}
	working.Touch(s.now())
	e.doc = working
	return working.Clone(), nil
}

func (s *Store) AppendDistinct(ctx context.Context, code string, facts []string) (domain.FactDocument, error) {
	if err := ctx.Err(); err != nil {
		return domain.FactDocument{}, err
	}
	return s.mutate(ctx, s.getOrCreate(code), func(d *domain.FactDocument) error {
		d.AppendDistinct(facts)
		return nil
	})
}

func (s *Store) ReplaceAt(ctx context.Context, code string, position int, value string) (domain.FactDocument, error) {
	e := s.lookup(code)
	if e == nil {
		return domain.FactDocument{}, domain.MissingDocument(domain.OpReplace, code)
	}
	return s.mutate(ctx, e, func(d *domain.FactDocument) error { return d.ReplaceAt(position, value) })
}

func (s *Store) DeleteAt(ctx context.Context, code string, position int) (domain.FactDocument, error) {
	e := s.lookup(code)
	if e == nil {
		return domain.FactDocument{}, domain.MissingDocument(domain.OpDelete, code)
	}
	return s.mutate(ctx, e, func(d *domain.FactDocument) error { return d.DeleteAt(position) })
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
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	entries := make([]*entry, 0, len(s.entries))
	for _, e := range s.entries {
		entries = append(entries, e)
	}
	s.mu.RUnlock()
	out := make([]domain.FactDocument, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		out = append(out, e.doc.Clone())
		e.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StateCode < out[j].StateCode })
	return out, nil
}

// Close is a no-op.
func (s *Store) Close() error { return nil }
