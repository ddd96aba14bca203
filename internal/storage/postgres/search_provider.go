package postgres

import (
	"context"
	"fmt"
	"log"

	pgvector "github.com/pgvector/pgvector-go"

	"github.com/scrypster/bri/internal/storage"
	"github.com/scrypster/bri/pkg/types"
)

// TopKSimilar returns the K records in scope most similar to the query
// vector, best first. Cosine distance from pgvector is mapped to a [0, 1]
// similarity (1 - distance/2 would be the full range for arbitrary vectors;
// embeddings here are unit-normalized so 1 - distance is used, clamped).
//
// Returns storage.ErrVectorUnavailable when pgvector is not present so
// callers can degrade to KeywordSearch.
func (s *Store) TopKSimilar(ctx context.Context, scope types.Scope, query []float32, opts storage.SimilarityOptions) ([]storage.ScoredRecord, error) {
	if err := scope.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", storage.ErrInvalidInput, err)
	}
	if len(query) == 0 {
		return nil, fmt.Errorf("%w: empty query vector", storage.ErrInvalidInput)
	}
	if !s.pgvectorAvailable {
		return nil, storage.ErrVectorUnavailable
	}
	opts.Normalize()

	sqlQuery := `
		SELECT ` + recordColumns + `, (embedding_vec <=> $3) AS distance
		FROM memories
		WHERE user_id = $1 AND guild_id = $2 AND active
		AND embedding_vec IS NOT NULL`
	args := []interface{}{scope.UserID, scope.GuildID, pgvector.NewVector(query)}

	sqlQuery, args = appendFilter(sqlQuery, args, opts.Filter)
	sqlQuery += fmt.Sprintf(` ORDER BY distance ASC LIMIT $%d`, len(args)+1)
	args = append(args, opts.K)

	rows, err := s.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: similarity search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var results []storage.ScoredRecord
	for rows.Next() {
		scored, err := scanScoredRecord(rows)
		if err != nil {
			log.Printf("postgres: skipping malformed similarity row: %v", err)
			continue
		}
		if opts.MinSimilarity > 0 && scored.Similarity < opts.MinSimilarity {
			continue
		}
		results = append(results, scored)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: similarity rows: %w", err)
	}

	return results, nil
}

// scanScoredRecord scans a similarity row: recordColumns plus a trailing
// cosine distance column.
func scanScoredRecord(rows rowScanner) (storage.ScoredRecord, error) {
	var distance float64
	record, err := scanRecordWithExtra(rows, &distance)
	if err != nil {
		return storage.ScoredRecord{}, err
	}

	similarity := 1.0 - distance
	if similarity < 0 {
		similarity = 0
	}
	if similarity > 1 {
		similarity = 1
	}

	return storage.ScoredRecord{Record: record, Similarity: similarity}, nil
}
