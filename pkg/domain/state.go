// Package domain defines the state reference records, fun-fact documents,
// display policy and persistence contract shared by every statefacts layer.
package domain

import (
	"strings"
)

// StateRecord is an immutable reference entry for one US state.
type StateRecord struct {
	Code          string `json:"code"`
	Name          string `json:"state"`
	Nickname      string `json:"nickname"`
	Capital       string `json:"capital_city"`
	Population    int64  `json:"population"`
	AdmissionDate string `json:"admission_date"`
}

// nonContiguous lists the states outside the contiguous 48.
var nonContiguous = map[string]struct{}{"AK": {}, "HI": {}}

// Contiguous reports whether the state belongs to the contiguous 48.
func (r StateRecord) Contiguous() bool {
	_, ok := nonContiguous[r.Code]
	return !ok
}

// NormalizeCode trims and upper-cases a caller supplied state code. It does
// not validate the result; unknown codes are rejected by catalog lookup.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ValidCodeShape reports whether code is two upper-case ASCII letters.
func ValidCodeShape(code string) bool {
	if len(code) != 2 {
		return false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < 'A' || code[i] > 'Z' {
			return false
		}
	}
	return true
}

// Filter selects a subset of the catalog for bulk listings.
type Filter string

// Supported bulk listing filters.
const (
	FilterAll           Filter = "all"
	FilterContiguous    Filter = "contiguous"
	FilterNonContiguous Filter = "noncontiguous"
)

// Valid reports whether f is a known filter.
func (f Filter) Valid() bool {
	switch f {
	case FilterAll, FilterContiguous, FilterNonContiguous:
		return true
	}
	return false
}

// Match reports whether the record passes the filter.
func (f Filter) Match(r StateRecord) bool {
	switch f {
	case FilterContiguous:
		return r.Contiguous()
	case FilterNonContiguous:
		return !r.Contiguous()
	default:
		return true
	}
}

// FilterFromContig maps the `contig` query parameter used by the HTTP API
// onto a Filter: "true" selects contiguous states, "false" the others, and
// anything else (including absence) selects all of them.
func FilterFromContig(contig string) Filter {
	switch strings.ToLower(strings.TrimSpace(contig)) {
	case "true":
		return FilterContiguous
	case "false":
		return FilterNonContiguous
	default:
		return FilterAll
	}
}
