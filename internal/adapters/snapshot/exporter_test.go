package snapshot

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"statefacts/internal/blob"
	"statefacts/internal/infra/persistence/memory"
	"statefacts/pkg/domain"
)

type storeSource struct{ domain.FactStore }

func (s storeSource) ListDocuments(ctx context.Context) ([]domain.FactDocument, error) {
	return s.List(ctx)
}

type failingSource struct{ err error }

func (f failingSource) ListDocuments(context.Context) ([]domain.FactDocument, error) {
	return nil, f.err
}

var fixedNow = time.Date(2026, 10, 19, 8, 30, 0, 0, time.UTC)

func seededStore(t *testing.T) *memory.Store {
	t.Helper()
	store := memory.NewStore(memory.WithClock(func() time.Time { return fixedNow }))
	ctx := context.Background()
	if _, err := store.AppendDistinct(ctx, "TX", []string{"Big", "Hot"}); err != nil {
		t.Fatalf("append TX: %v", err)
	}
	if _, err := store.AppendDistinct(ctx, "AK", []string{"Cold, mostly"}); err != nil {
		t.Fatalf("append AK: %v", err)
	}
	return store
}

func TestExportJSONDefaultKey(t *testing.T) {
	ctx := context.Background()
	objects := blob.NewMemory()
	exp := NewExporter(storeSource{seededStore(t)}, objects, WithClock(func() time.Time { return fixedNow }))

	art, err := exp.Export(ctx, ExportInput{})
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if art.Key != "exports/facts-20261019T083000Z.json" {
		t.Fatalf("unexpected key %s", art.Key)
	}
	if art.Documents != 2 || art.Facts != 3 || art.Format != FormatJSON {
		t.Fatalf("unexpected artifact %+v", art)
	}
	info, err := objects.Head(ctx, art.Key)
	if err != nil {
		t.Fatalf("head: %v", err)
	}
	if info.ContentType != "application/json" || info.Metadata["documents"] != "2" {
		t.Fatalf("unexpected blob info %+v", info)
	}

	data, err := blob.ReadAll(ctx, objects, art.Key)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var docs []domain.FactDocument
	if err := json.Unmarshal(data, &docs); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(docs) != 2 || docs[0].StateCode != "AK" || docs[1].Facts[1] != "Hot" {
		t.Fatalf("unexpected documents %+v", docs)
	}
}

func TestExportCSVRows(t *testing.T) {
	ctx := context.Background()
	objects := blob.NewMemory()
	exp := NewExporter(storeSource{seededStore(t)}, objects)

	art, err := exp.Export(ctx, ExportInput{Key: "exports/facts.csv", Format: FormatCSV})
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	data, err := blob.ReadAll(ctx, objects, art.Key)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	rows, err := csv.NewReader(strings.NewReader(string(data))).ReadAll()
	if err != nil {
		t.Fatalf("parse csv: %v", err)
	}
	if len(rows) != 4 {
		t.Fatalf("expected header plus 3 rows, got %d", len(rows))
	}
	if strings.Join(rows[0], ",") != "stateCode,position,funfact,version,updated_at" {
		t.Fatalf("unexpected header %v", rows[0])
	}
	if rows[1][0] != "AK" || rows[1][2] != "Cold, mostly" {
		t.Fatalf("unexpected first row %v", rows[1])
	}
	if rows[3][0] != "TX" || rows[3][1] != "2" || rows[3][3] != "1" {
		t.Fatalf("unexpected last row %v", rows[3])
	}
	if rows[3][4] != "2026-10-19T08:30:00Z" {
		t.Fatalf("unexpected timestamp %q", rows[3][4])
	}
}

func TestExportExistingKey(t *testing.T) {
	ctx := context.Background()
	objects := blob.NewMemory()
	exp := NewExporter(storeSource{memory.NewStore()}, objects)

	if _, err := exp.Export(ctx, ExportInput{Key: "exports/latest.json"}); err != nil {
		t.Fatalf("first export: %v", err)
	}
	_, err := exp.Export(ctx, ExportInput{Key: "exports/latest.json"})
	if !errors.Is(err, blob.ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}
	art, err := exp.Export(ctx, ExportInput{Key: "exports/latest.json", Overwrite: true})
	if err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	data, err := blob.ReadAll(ctx, objects, art.Key)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if strings.TrimSpace(string(data)) != "[]" {
		t.Fatalf("empty store should export [], got %s", data)
	}
}

func TestExportErrors(t *testing.T) {
	ctx := context.Background()
	if _, err := NewExporter(nil, blob.NewMemory()).Export(ctx, ExportInput{}); err == nil {
		t.Fatalf("expected configuration error")
	}
	boom := errors.New("store down")
	_, err := NewExporter(failingSource{boom}, blob.NewMemory()).Export(ctx, ExportInput{})
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped source error, got %v", err)
	}
	_, err = NewExporter(storeSource{memory.NewStore()}, blob.NewMemory()).Export(ctx, ExportInput{Format: "xml"})
	if err == nil || !strings.Contains(err.Error(), "unsupported export format") {
		t.Fatalf("expected format error, got %v", err)
	}
}

func TestParseFormat(t *testing.T) {
	cases := map[string]Format{"": FormatJSON, "JSON": FormatJSON, " csv ": FormatCSV}
	for in, want := range cases {
		got, err := ParseFormat(in)
		if err != nil || got != want {
			t.Fatalf("ParseFormat(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseFormat("parquet"); err == nil {
		t.Fatalf("expected error for parquet")
	}
	if FormatCSV.ContentType() != "text/csv" {
		t.Fatalf("unexpected csv content type")
	}
}
