// Package catalog holds the immutable reference table of the 50 US states.
// A Catalog is built once at startup, from the embedded dataset or from a
// JSON blob, and shared read-only afterwards.
package catalog

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"statefacts/internal/blob"
	"statefacts/pkg/domain"
)

//go:embed states.json
var embeddedStates []byte

// StateCount is the number of records every catalog must hold.
const StateCount = 50

// Catalog is safe for concurrent use; it is never mutated after New.
type Catalog struct {
	byCode  map[string]domain.StateRecord
	records []domain.StateRecord // ordered by code
}

// New validates records and builds a Catalog. Every code must be two
// upper-case letters and appear once; name and capital are required and
// population must not be negative.
func New(records []domain.StateRecord) (*Catalog, error) {
	c := &Catalog{byCode: make(map[string]domain.StateRecord, len(records))}
	var errs []error
	for i, r := range records {
		if !domain.ValidCodeShape(r.Code) {
			errs = append(errs, fmt.Errorf("record %d: invalid code %q", i, r.Code))
			continue
		}
		if _, dup := c.byCode[r.Code]; dup {
			errs = append(errs, fmt.Errorf("record %d: duplicate code %s", i, r.Code))
			continue
		}
		if r.Name == "" || r.Capital == "" {
			errs = append(errs, fmt.Errorf("%s: name and capital are required", r.Code))
		}
		if r.Population < 0 {
			errs = append(errs, fmt.Errorf("%s: negative population %d", r.Code, r.Population))
		}
		if r.AdmissionDate != "" {
			if _, err := time.Parse(time.DateOnly, r.AdmissionDate); err != nil {
				errs = append(errs, fmt.Errorf("%s: admission date %q: %w", r.Code, r.AdmissionDate, err))
			}
		}
		c.byCode[r.Code] = r
		c.records = append(c.records, r)
	}
	if len(errs) == 0 && len(c.records) != StateCount {
		errs = append(errs, fmt.Errorf("expected %d states, got %d", StateCount, len(c.records)))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("invalid catalog: %w", err)
	}
	sort.Slice(c.records, func(i, j int) bool { return c.records[i].Code < c.records[j].Code })
	return c, nil
}

// Parse decodes a JSON array of state records and validates it.
func Parse(data []byte) (*Catalog, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var records []domain.StateRecord
	if err := dec.Decode(&records); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	return New(records)
}

// Default returns the catalog compiled into the binary.
func Default() (*Catalog, error) { return Parse(embeddedStates) }

// EmbeddedJSON returns a copy of the compiled-in dataset.
func EmbeddedJSON() []byte { return bytes.Clone(embeddedStates) }

// Load reads the catalog stored under key, or the embedded one when key is empty.
func Load(ctx context.Context, store blob.Store, key string) (*Catalog, error) {
	if key == "" {
		return Default()
	}
	if store == nil {
		return nil, fmt.Errorf("catalog key %q set without a blob store", key)
	}
	data, err := blob.ReadAll(ctx, store, key)
	if err != nil {
		return nil, fmt.Errorf("load catalog %s: %w", key, err)
	}
	return Parse(data)
}

// Lookup returns the record for an already normalized code.
func (c *Catalog) Lookup(code string) (domain.StateRecord, bool) {
	r, ok := c.byCode[code]
	return r, ok
}

// Codes returns the sorted code set.
func (c *Catalog) Codes() []string {
	out := make([]string, len(c.records))
	for i, r := range c.records {
		out[i] = r.Code
	}
	return out
}

// Records returns the records passing filter, in code order.
func (c *Catalog) Records(filter domain.Filter) []domain.StateRecord {
	out := make([]domain.StateRecord, 0, len(c.records))
	for _, r := range c.records {
		if filter.Match(r) {
			out = append(out, r)
		}
	}
	return out
}

// Len returns the number of records.
func (c *Catalog) Len() int { return len(c.records) }
