package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/scrypster/bri/internal/storage"
	"github.com/scrypster/bri/pkg/types"
)

// InsertConnection stores a directed edge and applies the symmetry rules:
// RELATED_TO mirrors itself, FOLLOWS/PRECEDES insert their inverse. The
// (source, target, type) uniqueness constraint makes re-insertion a no-op.
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

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("postgres: begin connection insert: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	const insertSQL = `
		INSERT INTO memory_connections (id, source_id, target_id, rel_type, confidence, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (source_id, target_id, rel_type) DO NOTHING
	`

	if _, err := tx.ExecContext(ctx, insertSQL,
		conn.ID, conn.SourceID, conn.TargetID, string(conn.Type), conn.Confidence, conn.CreatedAt,
	); err != nil {
		return fmt.Errorf("postgres: insert connection: %w", err)
	}

	if inverse := conn.Type.Inverse(); inverse != "" {
		if _, err := tx.ExecContext(ctx, insertSQL,
			uuid.NewString(), conn.TargetID, conn.SourceID, string(inverse), conn.Confidence, conn.CreatedAt,
		); err != nil {
			return fmt.Errorf("postgres: insert inverse connection: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("postgres: commit connection insert: %w", err)
	}
	return nil
}

// ConnectionsFrom returns outgoing edges with confidence >= minConfidence.
func (s *Store) ConnectionsFrom(ctx context.Context, sourceID string, minConfidence float64) ([]*types.MemoryConnection, error) {
	if sourceID == "" {
		return nil, storage.ErrInvalidInput
	}

	const querySQL = `
		SELECT id, source_id, target_id, rel_type, confidence, created_at
		FROM memory_connections
		WHERE source_id = $1 AND confidence >= $2
		ORDER BY confidence DESC
	`

	rows, err := s.db.QueryContext(ctx, querySQL, sourceID, minConfidence)
	if err != nil {
		return nil, fmt.Errorf("postgres: connections from %s: %w", sourceID, err)
	}
	defer func() { _ = rows.Close() }()

	var conns []*types.MemoryConnection
	for rows.Next() {
		var conn types.MemoryConnection
		var relType string
		if err := rows.Scan(&conn.ID, &conn.SourceID, &conn.TargetID, &relType, &conn.Confidence, &conn.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan connection: %w", err)
		}
		conn.Type = types.RelationshipType(relType)
		conns = append(conns, &conn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: connection rows: %w", err)
	}
	return conns, nil
}

// HasConnection reports whether any edge links the two records in either
// direction.
func (s *Store) HasConnection(ctx context.Context, aID, bID string) (bool, error) {
	const querySQL = `
		SELECT EXISTS (
			SELECT 1 FROM memory_connections
			WHERE (source_id = $1 AND target_id = $2)
			   OR (source_id = $2 AND target_id = $1)
		)
	`
	var exists bool
	if err := s.db.QueryRowContext(ctx, querySQL, aID, bID).Scan(&exists); err != nil {
		return false, fmt.Errorf("postgres: has connection: %w", err)
	}
	return exists, nil
}

// PruneConnections removes edges whose endpoints were deactivated, keeping
// the graph consistent with soft deletes.
func (s *Store) PruneConnections(ctx context.Context) (int, error) {
	const pruneSQL = `
		DELETE FROM memory_connections c
		USING memories src, memories dst
		WHERE c.source_id = src.id AND c.target_id = dst.id
		  AND (NOT src.active OR NOT dst.active)
	`
	result, err := s.db.ExecContext(ctx, pruneSQL)
	if err != nil {
		return 0, fmt.Errorf("postgres: prune connections: %w", err)
	}
	n, _ := result.RowsAffected()
	return int(n), nil
}
