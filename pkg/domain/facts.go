package domain

import (
	"fmt"
	"time"
)

// Operation names used in errors, logs, metrics and spans.
const (
	OpLookup       = "lookup"
	OpComposite    = "composite"
	OpCompositeAll = "composite_all"
	OpField        = "field"
	OpPickRandom   = "pick_random_fact"
	OpAppend       = "append_facts"
	OpReplace      = "replace_fact"
	OpDelete       = "delete_fact"
	OpList         = "list_fact_documents"
)

// FactDocument is the mutable fun-fact list stored for one state code.
// Facts keeps insertion order; callers address entries by 1-based position.
type FactDocument struct {
	StateCode string    `json:"stateCode" bson:"stateCode"`
	Facts     []string  `json:"funfacts" bson:"funfacts"`
	Version   int64     `json:"version" bson:"version"`
	UpdatedAt time.Time `json:"updated_at" bson:"updatedAt"`
}

// NewFactDocument returns the empty document created on first append.
func NewFactDocument(code string) FactDocument {
	return FactDocument{StateCode: code, Facts: []string{}}
}

// Clone returns a deep copy so callers never share the backing array with a store.
func (d FactDocument) Clone() FactDocument {
	out := d
	out.Facts = make([]string, len(d.Facts))
	copy(out.Facts, d.Facts)
	return out
}

// Len returns the number of facts.
func (d FactDocument) Len() int { return len(d.Facts) }

// AppendDistinct adds each fact not already present, in the given order, and
// returns how many were added. Duplicates inside facts collapse as well.
func (d *FactDocument) AppendDistinct(facts []string) int {
	seen := make(map[string]struct{}, len(d.Facts)+len(facts))
	for _, f := range d.Facts {
		seen[f] = struct{}{}
	}
	if d.Facts == nil {
		d.Facts = []string{}
	}
	added := 0
	for _, f := range facts {
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		d.Facts = append(d.Facts, f)
		added++
	}
	return added
}

// ReplaceAt overwrites the fact at the 1-based position.
func (d *FactDocument) ReplaceAt(position int, value string) error {
	idx, err := d.slot(OpReplace, position)
	if err != nil {
		return err
	}
	d.Facts[idx] = value
	return nil
}

// DeleteAt removes the fact at the 1-based position, shifting later facts left.
func (d *FactDocument) DeleteAt(position int) error {
	idx, err := d.slot(OpDelete, position)
	if err != nil {
		return err
	}
	d.Facts = append(d.Facts[:idx], d.Facts[idx+1:]...)
	return nil
}

// Pick returns the fact chosen by intn, which must return a value in [0, n).
func (d FactDocument) Pick(intn func(n int) int) (string, error) {
	if len(d.Facts) == 0 {
		return "", NotFound(OpPickRandom, d.StateCode, "no fun facts available for this state")
	}
	return d.Facts[intn(len(d.Facts))], nil
}

// Touch bumps the version and modification time after a successful mutation.
func (d *FactDocument) Touch(now time.Time) {
	d.Version++
	d.UpdatedAt = now.UTC()
}

// slot translates a 1-based position into a slice index.
func (d FactDocument) slot(op string, position int) (int, error) {
	if position < 1 || position > len(d.Facts) {
		return 0, NotFound(op, d.StateCode, fmt.Sprintf("fun fact %d not found", position))
	}
	return position - 1, nil
}

// MissingDocument is the failure returned by replace and delete when no
// document exists yet for the code.
func MissingDocument(op, code string) *Error {
	return NotFound(op, code, "no fun facts found for this state")
}
