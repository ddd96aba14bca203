package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/scrypster/bri/internal/storage"
	"github.com/scrypster/bri/pkg/types"
)

// GetState returns the extraction checkpoint for a scope.
func (s *Store) GetState(ctx context.Context, scope types.Scope) (*types.ExtractionState, error) {
	if err := scope.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", storage.ErrInvalidInput, err)
	}

	const querySQL = `
		SELECT user_id, guild_id, last_extraction_time, last_message_count, last_message_id, updated_at
		FROM extraction_state
		WHERE user_id = $1 AND guild_id = $2
	`

	var state types.ExtractionState
	err := s.db.QueryRowContext(ctx, querySQL, scope.UserID, scope.GuildID).Scan(
		&state.UserID, &state.GuildID, &state.LastExtractionTime,
		&state.LastMessageCount, &state.LastMessageID, &state.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get extraction state %s: %w", scope.Key(), err)
	}
	return &state, nil
}

// UpsertState writes the extraction checkpoint keyed by (user_id, guild_id).
// Idempotent under concurrent extraction passes: last writer wins.
func (s *Store) UpsertState(ctx context.Context, state *types.ExtractionState) error {
	if state == nil || state.UserID == "" {
		return storage.ErrInvalidInput
	}

	const upsertSQL = `
		INSERT INTO extraction_state (user_id, guild_id, last_extraction_time, last_message_count, last_message_id, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id, guild_id) DO UPDATE SET
			last_extraction_time = EXCLUDED.last_extraction_time,
			last_message_count = EXCLUDED.last_message_count,
			last_message_id = EXCLUDED.last_message_id,
			updated_at = EXCLUDED.updated_at
	`

	_, err := s.db.ExecContext(ctx, upsertSQL,
		state.UserID, state.GuildID, state.LastExtractionTime,
		state.LastMessageCount, state.LastMessageID, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert extraction state: %w", err)
	}
	return nil
}
