// Package storage provides composable storage interfaces for the Bri memory
// system.
//
// The storage layer is designed with small, focused interfaces that can be
// implemented independently and composed as needed. The postgres backend
// implements all of them; the sqlite backend implements everything except
// vector similarity and is used for tests and single-file deployments.
package storage

import (
	"context"
	"time"

	"github.com/scrypster/bri/pkg/types"
)

// RecordStore provides CRUD operations for memory records.
type RecordStore interface {
	// Insert creates a new record. The record must carry a non-empty ID.
	Insert(ctx context.Context, record *types.MemoryRecord) error

	// InsertBatch creates several records in one round trip.
	// Records that fail validation are skipped; the count of stored records
	// is returned.
	InsertBatch(ctx context.Context, records []*types.MemoryRecord) (int, error)

	// Get retrieves a record by ID. Returns ErrNotFound if absent.
	Get(ctx context.Context, id string) (*types.MemoryRecord, error)

	// Update overwrites an existing record. Returns ErrNotFound if absent.
	Update(ctx context.Context, record *types.MemoryRecord) error

	// ListByScope returns active records for a scope, newest first.
	ListByScope(ctx context.Context, scope types.Scope, opts ListOptions) ([]*types.MemoryRecord, error)

	// RecordAccess applies an access-tracking bump (access count increment,
	// last-accessed timestamp, post-boost confidence) to a record.
	RecordAccess(ctx context.Context, bump AccessBump) error

	// Deactivate soft-deletes a record. Returns ErrNotFound if absent.
	Deactivate(ctx context.Context, id string) error

	// ClearScope hard-deletes all records for a scope. This is the only
	// hard-delete path and is reserved for explicit user-initiated clears.
	// Returns the number of records removed.
	ClearScope(ctx context.Context, scope types.Scope) (int, error)

	// ActiveScopes lists distinct scopes that have active records, for
	// maintenance sweeps. Scopes with no record updates inside the trailing
	// window are omitted when window > 0.
	ActiveScopes(ctx context.Context, window time.Duration) ([]ScopeActivity, error)

	// Close releases any resources held by the store.
	Close() error
}

// SimilaritySearcher provides vector similarity queries over records.
type SimilaritySearcher interface {
	// TopKSimilar returns the K records in scope most similar to the query
	// vector, best first. Returns ErrVectorUnavailable when the backend
	// cannot serve vector queries.
	TopKSimilar(ctx context.Context, scope types.Scope, query []float32, opts SimilarityOptions) ([]ScoredRecord, error)
}

// KeywordSearcher provides the degraded text-match retrieval path used when
// embedding or vector search fails.
type KeywordSearcher interface {
	// KeywordSearch returns active records in scope whose text matches any
	// of the given terms (case-insensitive substring semantics).
	KeywordSearch(ctx context.Context, scope types.Scope, terms []string, limit int) ([]*types.MemoryRecord, error)
}

// ConnectionStore manages directed edges between memory records.
type ConnectionStore interface {
	// InsertConnection stores an edge, applying the symmetry rules for the
	// relationship type (RELATED_TO mirrors itself, FOLLOWS/PRECEDES insert
	// their inverse).
	InsertConnection(ctx context.Context, conn *types.MemoryConnection) error

	// ConnectionsFrom returns outgoing edges for a record with confidence
	// at or above minConfidence.
	ConnectionsFrom(ctx context.Context, sourceID string, minConfidence float64) ([]*types.MemoryConnection, error)

	// HasConnection reports whether any edge already links the two records,
	// in either direction.
	HasConnection(ctx context.Context, aID, bID string) (bool, error)

	// PruneConnections removes edges whose endpoints are no longer active.
	// Returns the number of edges removed.
	PruneConnections(ctx context.Context) (int, error)
}

// ExtractionStateStore persists incremental extraction checkpoints.
type ExtractionStateStore interface {
	// GetState returns the extraction state for a scope, or ErrNotFound if
	// no extraction has been recorded yet.
	GetState(ctx context.Context, scope types.Scope) (*types.ExtractionState, error)

	// UpsertState writes the state keyed by (user_id, guild_id).
	// Concurrent writers race benignly: last writer wins.
	UpsertState(ctx context.Context, state *types.ExtractionState) error
}

// Store combines the full capability set of a primary backend.
type Store interface {
	RecordStore
	SimilaritySearcher
	KeywordSearcher
	ConnectionStore
	ExtractionStateStore
}
