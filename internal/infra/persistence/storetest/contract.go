// Package storetest holds the behavioural contract every domain.FactStore
// driver must satisfy. Driver packages call Run from their tests.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"testing"

	"golang.org/x/sync/errgroup"

	"statefacts/pkg/domain"
)

// Factory opens an empty store. Run closes it when the subtest ends.
type Factory func(t *testing.T) domain.FactStore

// Run executes the full contract against stores produced by open.
func Run(t *testing.T, open Factory) {
	t.Helper()
	cases := []struct {
		name string
		fn   func(*testing.T, domain.FactStore)
	}{
		{"GetMissing", testGetMissing},
		{"AppendCreatesDocument", testAppendCreates},
		{"AppendIsSetUnion", testAppendUnion},
		{"ReplaceAt", testReplace},
		{"DeleteAt", testDelete},
		{"MissingDocument", testMissingDocument},
		{"PickRandom", testPickRandom},
		{"List", testList},
		{"ConcurrentAppendUnion", testConcurrentAppend},
		{"ConcurrentMixedMutations", testConcurrentMixed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := open(t)
			t.Cleanup(func() { _ = store.Close() })
			tc.fn(t, store)
		})
	}
}

func mustAppend(t *testing.T, s domain.FactStore, code string, facts ...string) domain.FactDocument {
	t.Helper()
	doc, err := s.AppendDistinct(context.Background(), code, facts)
	if err != nil {
		t.Fatalf("append %s %v: %v", code, facts, err)
	}
	return doc
}

func expectFacts(t *testing.T, s domain.FactStore, code string, want []string) {
	t.Helper()
	doc, found, err := s.Get(context.Background(), code)
	if err != nil {
		t.Fatalf("get %s: %v", code, err)
	}
	if !found {
		t.Fatalf("expected document for %s", code)
	}
	if !reflect.DeepEqual(doc.Facts, want) {
		t.Fatalf("%s: expected facts %q, got %q", code, want, doc.Facts)
	}
}

func testGetMissing(t *testing.T, s domain.FactStore) {
	_, found, err := s.Get(context.Background(), "TX")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if found {
		t.Fatalf("expected no document in an empty store")
	}
}

func testAppendCreates(t *testing.T, s domain.FactStore) {
	doc := mustAppend(t, s, "TX", "a", "b")
	if doc.StateCode != "TX" || !reflect.DeepEqual(doc.Facts, []string{"a", "b"}) {
		t.Fatalf("unexpected document %+v", doc)
	}
	if doc.Version != 1 {
		t.Fatalf("expected version 1 after first append, got %d", doc.Version)
	}
	if doc.UpdatedAt.IsZero() {
		t.Fatalf("expected updated_at to be set")
	}
	expectFacts(t, s, "TX", []string{"a", "b"})
}

func testAppendUnion(t *testing.T, s domain.FactStore) {
	mustAppend(t, s, "TX", "a", "b")
	doc := mustAppend(t, s, "TX", "b", "c2", "c2")
	if !reflect.DeepEqual(doc.Facts, []string{"a", "b", "c2"}) {
		t.Fatalf("expected set union, got %q", doc.Facts)
	}
	if doc.Version != 2 {
		t.Fatalf("expected version 2, got %d", doc.Version)
	}
	expectFacts(t, s, "TX", []string{"a", "b", "c2"})
}

func testReplace(t *testing.T, s domain.FactStore) {
	ctx := context.Background()
	mustAppend(t, s, "TX", "a", "b", "c")
	doc, err := s.ReplaceAt(ctx, "TX", 2, "x")
	if err != nil {
		t.Fatalf("replace: %v", err)
	}
	if !reflect.DeepEqual(doc.Facts, []string{"a", "x", "c"}) {
		t.Fatalf("unexpected facts %q", doc.Facts)
	}
	// replace does not deduplicate
	if _, err := s.ReplaceAt(ctx, "TX", 3, "a"); err != nil {
		t.Fatalf("replace duplicate: %v", err)
	}
	expectFacts(t, s, "TX", []string{"a", "x", "a"})
	for _, pos := range []int{0, 4, -1} {
		if _, err := s.ReplaceAt(ctx, "TX", pos, "y"); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("position %d: expected not found, got %v", pos, err)
		}
	}
	expectFacts(t, s, "TX", []string{"a", "x", "a"})
}

func testDelete(t *testing.T, s domain.FactStore) {
	ctx := context.Background()
	mustAppend(t, s, "TX", "a", "b", "c")
	doc, err := s.DeleteAt(ctx, "TX", 1)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if !reflect.DeepEqual(doc.Facts, []string{"b", "c"}) {
		t.Fatalf("unexpected facts %q", doc.Facts)
	}
	if _, err := s.DeleteAt(ctx, "TX", 3); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	for i := 0; i < 2; i++ {
		if _, err := s.DeleteAt(ctx, "TX", 1); err != nil {
			t.Fatalf("delete %d: %v", i, err)
		}
	}
	// the document survives with an empty list
	expectFacts(t, s, "TX", []string{})
	if _, err := s.DeleteAt(ctx, "TX", 1); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found on empty list, got %v", err)
	}
}

func testMissingDocument(t *testing.T, s domain.FactStore) {
	ctx := context.Background()
	if _, err := s.ReplaceAt(ctx, "VT", 1, "x"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("replace: expected not found, got %v", err)
	}
	if _, err := s.DeleteAt(ctx, "VT", 1); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("delete: expected not found, got %v", err)
	}
	if _, err := s.PickRandom(ctx, "VT"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("pick: expected not found, got %v", err)
	}
	if _, found, _ := s.Get(ctx, "VT"); found {
		t.Fatalf("failed mutations must not create a document")
	}
}

func testPickRandom(t *testing.T, s domain.FactStore) {
	ctx := context.Background()
	facts := []string{"a", "b", "c"}
	mustAppend(t, s, "TX", facts...)
	for i := 0; i < 20; i++ {
		got, err := s.PickRandom(ctx, "TX")
		if err != nil {
			t.Fatalf("pick: %v", err)
		}
		if got != "a" && got != "b" && got != "c" {
			t.Fatalf("picked %q outside %q", got, facts)
		}
	}
	mustAppend(t, s, "UT", "only")
	if _, err := s.DeleteAt(ctx, "UT", 1); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.PickRandom(ctx, "UT"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found for empty list, got %v", err)
	}
}

func testList(t *testing.T, s domain.FactStore) {
	ctx := context.Background()
	docs, err := s.List(ctx)
	if err != nil || len(docs) != 0 {
		t.Fatalf("expected empty list, got %v %v", docs, err)
	}
	mustAppend(t, s, "WY", "w")
	mustAppend(t, s, "AL", "a")
	mustAppend(t, s, "MT", "m")
	docs, err = s.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	codes := make([]string, len(docs))
	for i, d := range docs {
		codes[i] = d.StateCode
	}
	if !reflect.DeepEqual(codes, []string{"AL", "MT", "WY"}) {
		t.Fatalf("expected documents ordered by code, got %v", codes)
	}
}

// testConcurrentAppend runs overlapping appends for one code; the
// result must contain every fact exactly once.
func testConcurrentAppend(t *testing.T, s domain.FactStore) {
	const writers = 8
	var g errgroup.Group
	want := map[string]struct{}{}
	for w := 0; w < writers; w++ {
		batch := []string{"shared", fmt.Sprintf("w%d-a", w), fmt.Sprintf("w%d-b", w), fmt.Sprintf("pair-%d", w/2)}
		for _, f := range batch {
			want[f] = struct{}{}
		}
		g.Go(func() error {
			_, err := s.AppendDistinct(context.Background(), "TX", batch)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("concurrent append: %v", err)
	}
	doc, found, err := s.Get(context.Background(), "TX")
	if err != nil || !found {
		t.Fatalf("get: %v %v", found, err)
	}
	got := append([]string(nil), doc.Facts...)
	sort.Strings(got)
	expected := make([]string, 0, len(want))
	for f := range want {
		expected = append(expected, f)
	}
	sort.Strings(expected)
	if !reflect.DeepEqual(got, expected) {
		t.Fatalf("expected union %q, got %q", expected, got)
	}
	if doc.Version != writers {
		t.Fatalf("expected version %d, got %d", writers, doc.Version)
	}
}

// testConcurrentMixed interleaves appends and deletes on one code; every
// successful mutation must be reflected in the final version.
func testConcurrentMixed(t *testing.T, s domain.FactStore) {
	ctx := context.Background()
	seed := make([]string, 0, 10)
	for i := 0; i < 10; i++ {
		seed = append(seed, fmt.Sprintf("seed-%d", i))
	}
	start := mustAppend(t, s, "TX", seed...)

	const deleters, appenders = 4, 4
	var g errgroup.Group
	for i := 0; i < deleters; i++ {
		g.Go(func() error {
			_, err := s.DeleteAt(ctx, "TX", 1)
			return err
		})
	}
	for i := 0; i < appenders; i++ {
		g.Go(func() error {
			_, err := s.AppendDistinct(ctx, "TX", []string{fmt.Sprintf("new-%d", i)})
			return err
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("concurrent mutations: %v", err)
	}
	doc, _, err := s.Get(ctx, "TX")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(doc.Facts) != len(seed)-deleters+appenders {
		t.Fatalf("expected %d facts, got %d (%q)", len(seed)-deleters+appenders, len(doc.Facts), doc.Facts)
	}
	if doc.Version != start.Version+deleters+appenders {
		t.Fatalf("expected version %d, got %d", start.Version+deleters+appenders, doc.Version)
	}
}
