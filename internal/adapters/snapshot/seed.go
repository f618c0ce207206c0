package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"statefacts/internal/blob"
	"statefacts/pkg/domain"
)

// SeedDocument is one entry of a seed file. Exported JSON snapshots decode
// into it directly.
type SeedDocument struct {
	StateCode string   `json:"stateCode"`
	Facts     []string `json:"funfacts"`
}

// SeedResult reports the outcome for one seed document.
type SeedResult struct {
	StateCode string `json:"stateCode"`
	Submitted int    `json:"submitted"`
	Stored    int    `json:"stored"`
	Error     string `json:"error,omitempty"`
}

// SeedReport aggregates per document results.
type SeedReport struct {
	Results []SeedResult `json:"results"`
}

// Failed counts documents that were not applied.
func (r SeedReport) Failed() int {
	n := 0
	for _, res := range r.Results {
		if res.Error != "" {
			n++
		}
	}
	return n
}

// Catalog resolves normalized state codes.
type Catalog interface {
	Lookup(code string) (domain.StateRecord, bool)
}

// ParseSeed decodes a JSON array of seed documents.
func ParseSeed(data []byte) ([]SeedDocument, error) {
	var docs []SeedDocument
	if err := json.Unmarshal(data, &docs); err != nil {
		return nil, fmt.Errorf("decode seed documents: %w", err)
	}
	return docs, nil
}

// ReadSeed loads seed documents from a blob key.
func ReadSeed(ctx context.Context, store blob.Store, key string) ([]SeedDocument, error) {
	data, err := blob.ReadAll(ctx, store, key)
	if err != nil {
		return nil, err
	}
	return ParseSeed(data)
}

// Seeder appends seed documents straight into the fact store. The disabled
// policy applies to API callers only, so seeding ignores it.
type Seeder struct {
	catalog Catalog
	store   domain.FactStore
}

// NewSeeder constructs a Seeder.
func NewSeeder(cat Catalog, store domain.FactStore) *Seeder {
	return &Seeder{catalog: cat, store: store}
}

// Seed applies every document and keeps going after per document failures.
// Only a cancelled context stops it early.
func (s *Seeder) Seed(ctx context.Context, docs []SeedDocument) (SeedReport, error) {
	report := SeedReport{Results: make([]SeedResult, 0, len(docs))}
	for _, d := range docs {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Results = append(report.Results, s.apply(ctx, d))
	}
	return report, nil
}

func (s *Seeder) apply(ctx context.Context, d SeedDocument) SeedResult {
	code := domain.NormalizeCode(d.StateCode)
	res := SeedResult{StateCode: code, Submitted: len(d.Facts)}
	if _, ok := s.catalog.Lookup(code); !ok {
		res.Error = fmt.Sprintf("unknown state code %q", d.StateCode)
		return res
	}
	facts := make([]string, 0, len(d.Facts))
	for _, f := range d.Facts {
		if strings.TrimSpace(f) != "" {
			facts = append(facts, f)
		}
	}
	if len(facts) == 0 {
		res.Error = "no non-blank fun facts"
		return res
	}
	doc, err := s.store.AppendDistinct(ctx, code, facts)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	res.Stored = len(doc.Facts)
	return res
}
