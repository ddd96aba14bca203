package storage

import (
	"errors"
	"time"

	"github.com/scrypster/bri/pkg/types"
)

var (
	// ErrNotFound indicates that the requested record was not found.
	ErrNotFound = errors.New("record not found")

	// ErrInvalidInput indicates that the input parameters are invalid.
	ErrInvalidInput = errors.New("invalid input")

	// ErrVectorUnavailable indicates the backend cannot serve similarity
	// queries (e.g. pgvector extension missing). Callers should degrade to
	// keyword search.
	ErrVectorUnavailable = errors.New("vector search unavailable")
)

// ScoredRecord pairs a record with its similarity to a query vector.
// Similarity is cosine-based, mapped to [0, 1] where 1 is identical.
type ScoredRecord struct {
	Record     *types.MemoryRecord
	Similarity float64
}

// RecordFilter narrows similarity and list queries.
type RecordFilter struct {
	// Type restricts results to one memory type. Empty means no filter.
	Type types.MemoryType

	// Category restricts results to one category. Empty means no filter.
	Category types.Category

	// VerifiedOnly restricts results to verified records.
	VerifiedOnly bool

	// CreatedAfter restricts to records created strictly after this time.
	// Zero value means no lower bound.
	CreatedAfter time.Time
}

// ListOptions provides pagination for scope listings.
type ListOptions struct {
	// Limit is the number of records to return (default 50, max 500).
	Limit int

	// Offset is the number of records to skip.
	Offset int

	// Filter narrows the listing.
	Filter RecordFilter

	// IncludeInactive includes soft-deleted records. Off by default.
	IncludeInactive bool
}

// Normalize applies defaults and bounds to the options.
func (o *ListOptions) Normalize() {
	if o.Limit < 1 {
		o.Limit = 50
	}
	if o.Limit > 500 {
		o.Limit = 500
	}
	if o.Offset < 0 {
		o.Offset = 0
	}
}

// SimilarityOptions configures a TopKSimilar query.
type SimilarityOptions struct {
	// K is the number of candidates to return (default 10, max 100).
	K int

	// MinSimilarity drops candidates below this similarity. Zero means no
	// threshold.
	MinSimilarity float64

	// Filter narrows the candidate set before ranking.
	Filter RecordFilter
}

// Normalize applies defaults and bounds to the options.
func (o *SimilarityOptions) Normalize() {
	if o.K < 1 {
		o.K = 10
	}
	if o.K > 100 {
		o.K = 100
	}
	if o.MinSimilarity < 0 {
		o.MinSimilarity = 0
	}
	if o.MinSimilarity > 1 {
		o.MinSimilarity = 1
	}
}

// AccessBump captures an access-tracking update applied when a record is
// surfaced by retrieval: the increment plus the resulting confidence.
type AccessBump struct {
	ID             string
	Confidence     float64
	LastAccessedAt time.Time
}

// ScopeActivity summarizes one (user, guild) scope for maintenance sweeps.
type ScopeActivity struct {
	Scope        types.Scope
	ActiveCount  int
	LastActivity time.Time
}
