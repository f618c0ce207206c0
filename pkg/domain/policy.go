package domain

import "sort"

// CodeSet is an immutable set of state codes.
type CodeSet map[string]struct{}

// NewCodeSet normalizes and collects codes.
func NewCodeSet(codes ...string) CodeSet {
	set := make(CodeSet, len(codes))
	for _, c := range codes {
		if c = NormalizeCode(c); c != "" {
			set[c] = struct{}{}
		}
	}
	return set
}

// Has reports membership.
func (s CodeSet) Has(code string) bool {
	_, ok := s[code]
	return ok
}

// Sorted returns the members in ascending order.
func (s CodeSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for c := range s {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// Default fun-fact policy sets.
var (
	DefaultDisabledCodes   = []string{"GA", "NH"}
	DefaultSuppressedCodes = []string{"GA", "NH"}
)

// Policy holds the two per-code fun-fact denylists. Disabled is consulted
// once, at the entry of AppendFacts. Suppressed is consulted by every read
// path returning fun facts inline, through ShowFacts.
type Policy struct {
	// Disabled codes reject new fun-fact submissions.
	Disabled CodeSet
	// Suppressed codes omit the funfacts field from detail views.
	Suppressed CodeSet
	// SuppressInBulk extends suppression to bulk listings.
	SuppressInBulk bool
}

// DefaultPolicy returns the policy shipped with the service.
func DefaultPolicy() Policy {
	return Policy{
		Disabled:   NewCodeSet(DefaultDisabledCodes...),
		Suppressed: NewCodeSet(DefaultSuppressedCodes...),
	}
}

// AcceptsFacts reports whether new facts may be submitted for code.
func (p Policy) AcceptsFacts(code string) bool {
	return !p.Disabled.Has(code)
}

// ShowFacts reports whether a read path should include fun facts for code.
// bulk is true for list endpoints.
func (p Policy) ShowFacts(code string, bulk bool) bool {
	if bulk && !p.SuppressInBulk {
		return true
	}
	return !p.Suppressed.Has(code)
}
