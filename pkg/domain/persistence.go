package domain

import "context"

// FactStore is the persistence contract for fun-fact documents, keyed by
// state code. Implementations serialize the mutating operations per code:
// concurrent AppendDistinct calls for one code must produce exactly the set
// union, and a failed write must leave the previous document visible.
//
// Position arguments are 1-based. Out of range positions and missing
// documents fail with an *Error of KindNotFound; any other failure is
// returned as-is and treated as the store being unavailable.
type FactStore interface {
	// Get returns the stored document; found is false when none exists.
	Get(ctx context.Context, code string) (doc FactDocument, found bool, err error)
	// AppendDistinct creates the document when absent, then appends each
	// fact not already present.
	AppendDistinct(ctx context.Context, code string, facts []string) (FactDocument, error)
	// ReplaceAt overwrites the fact at position.
	ReplaceAt(ctx context.Context, code string, position int, value string) (FactDocument, error)
	// DeleteAt removes the fact at position.
	DeleteAt(ctx context.Context, code string, position int) (FactDocument, error)
	// PickRandom returns one fact chosen uniformly from a single read.
	PickRandom(ctx context.Context, code string) (string, error)
	// List returns every stored document ordered by state code.
	List(ctx context.Context) ([]FactDocument, error)
	// Close releases the backing connection.
	Close() error
}
