package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/scrypster/bri/internal/storage"
	"github.com/scrypster/bri/pkg/types"
)

// InsertConnection stores a directed edge and its implied inverse for
// symmetric and inverse-pair relationship types.
func (s *Store) InsertConnection(ctx context.Context, conn *types.MemoryConnection) error {
	if conn == nil || conn.SourceID == "" || conn.TargetID == "" {
		return storage.ErrInvalidInput
	}
	if !types.ValidRelationshipType(conn.Type) {
		return fmt.Errorf("%w: unknown relationship type %q", storage.ErrInvalidInput, conn.Type)
	}
	if conn.SourceID == conn.TargetID {
		return fmt.Errorf("%w: self-connection", storage.ErrInvalidInput)
	}

	if conn.ID == "" {
		conn.ID = uuid.NewString()
	}
	if conn.CreatedAt.IsZero() {
		conn.CreatedAt = time.Now()
	}

	const insertSQL = `
		INSERT OR IGNORE INTO memory_connections (id, source_id, target_id, rel_type, confidence, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	if _, err := s.db.ExecContext(ctx, insertSQL,
		conn.ID, conn.SourceID, conn.TargetID, string(conn.Type), conn.Confidence, conn.CreatedAt,
	); err != nil {
		return fmt.Errorf("sqlite: insert connection: %w", err)
	}

	if inverse := conn.Type.Inverse(); inverse != "" {
		if _, err := s.db.ExecContext(ctx, insertSQL,
			uuid.NewString(), conn.TargetID, conn.SourceID, string(inverse), conn.Confidence, conn.CreatedAt,
		); err != nil {
			return fmt.Errorf("sqlite: insert inverse connection: %w", err)
		}
	}
	return nil
}

// ConnectionsFrom returns outgoing edges with confidence >= minConfidence.
func (s *Store) ConnectionsFrom(ctx context.Context, sourceID string, minConfidence float64) ([]*types.MemoryConnection, error) {
	if sourceID == "" {
		return nil, storage.ErrInvalidInput
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, source_id, target_id, rel_type, confidence, created_at
		FROM memory_connections
		WHERE source_id = ? AND confidence >= ?
		ORDER BY confidence DESC`, sourceID, minConfidence)
	if err != nil {
		return nil, fmt.Errorf("sqlite: connections from %s: %w", sourceID, err)
	}
	defer func() { _ = rows.Close() }()

	var conns []*types.MemoryConnection
	for rows.Next() {
		var conn types.MemoryConnection
		var relType string
		if err := rows.Scan(&conn.ID, &conn.SourceID, &conn.TargetID, &relType, &conn.Confidence, &conn.CreatedAt); err != nil {
			return nil, fmt.Errorf("sqlite: scan connection: %w", err)
		}
		conn.Type = types.RelationshipType(relType)
		conns = append(conns, &conn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: connection rows: %w", err)
	}
	return conns, nil
}

// HasConnection reports whether any edge links the two records in either
// direction.
func (s *Store) HasConnection(ctx context.Context, aID, bID string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM memory_connections
		WHERE (source_id = ? AND target_id = ?)
		   OR (source_id = ? AND target_id = ?)`, aID, bID, bID, aID).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("sqlite: has connection: %w", err)
	}
	return count > 0, nil
}

// PruneConnections removes edges whose endpoints are no longer active.
func (s *Store) PruneConnections(ctx context.Context) (int, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM memory_connections
		WHERE source_id IN (SELECT id FROM memories WHERE NOT active)
		   OR target_id IN (SELECT id FROM memories WHERE NOT active)
		   OR source_id NOT IN (SELECT id FROM memories)
		   OR target_id NOT IN (SELECT id FROM memories)`)
	if err != nil {
		return 0, fmt.Errorf("sqlite: prune connections: %w", err)
	}
	n, _ := result.RowsAffected()
	return int(n), nil
}

// GetState returns the extraction checkpoint for a scope.
func (s *Store) GetState(ctx context.Context, scope types.Scope) (*types.ExtractionState, error) {
	if err := scope.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", storage.ErrInvalidInput, err)
	}

	var state types.ExtractionState
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, guild_id, last_extraction_time, last_message_count, last_message_id, updated_at
		FROM extraction_state
		WHERE user_id = ? AND guild_id = ?`, scope.UserID, scope.GuildID).Scan(
		&state.UserID, &state.GuildID, &state.LastExtractionTime,
		&state.LastMessageCount, &state.LastMessageID, &state.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: get extraction state %s: %w", scope.Key(), err)
	}
	return &state, nil
}

// UpsertState writes the extraction checkpoint keyed by (user_id, guild_id).
func (s *Store) UpsertState(ctx context.Context, state *types.ExtractionState) error {
	if state == nil || state.UserID == "" {
		return storage.ErrInvalidInput
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO extraction_state (user_id, guild_id, last_extraction_time, last_message_count, last_message_id, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, guild_id) DO UPDATE SET
			last_extraction_time = excluded.last_extraction_time,
			last_message_count = excluded.last_message_count,
			last_message_id = excluded.last_message_id,
			updated_at = excluded.updated_at`,
		state.UserID, state.GuildID, state.LastExtractionTime,
		state.LastMessageCount, state.LastMessageID, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("sqlite: upsert extraction state: %w", err)
	}
	return nil
}
