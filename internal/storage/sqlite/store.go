// Package sqlite provides a single-file implementation of the Bri storage
// interfaces. Similarity queries load scope embeddings into Go memory and
// rank by cosine similarity; per-scope record counts are small enough that a
// vector index is unnecessary. Used for tests and single-process deployments.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/scrypster/bri/internal/storage"
	"github.com/scrypster/bri/pkg/types"
)

const schema = `
CREATE TABLE IF NOT EXISTS memories (
	id                  TEXT PRIMARY KEY,
	user_id             TEXT NOT NULL,
	guild_id            TEXT NOT NULL DEFAULT '',
	text                TEXT NOT NULL,
	embedding_json      TEXT,
	memory_type         TEXT NOT NULL,
	category            TEXT NOT NULL,
	confidence          REAL NOT NULL,
	source              TEXT NOT NULL DEFAULT '',
	verified            INTEGER NOT NULL DEFAULT 0,
	verification_date   TIMESTAMP,
	verification_source TEXT,
	contradiction_count INTEGER NOT NULL DEFAULT 0,
	access_count        INTEGER NOT NULL DEFAULT 0,
	last_accessed_at    TIMESTAMP,
	created_at          TIMESTAMP NOT NULL,
	updated_at          TIMESTAMP NOT NULL,
	active              INTEGER NOT NULL DEFAULT 1
);

CREATE INDEX IF NOT EXISTS idx_memories_scope ON memories (user_id, guild_id);

CREATE TABLE IF NOT EXISTS memory_connections (
	id          TEXT PRIMARY KEY,
	source_id   TEXT NOT NULL,
	target_id   TEXT NOT NULL,
	rel_type    TEXT NOT NULL,
	confidence  REAL NOT NULL,
	created_at  TIMESTAMP NOT NULL,
	UNIQUE (source_id, target_id, rel_type)
);

CREATE TABLE IF NOT EXISTS extraction_state (
	user_id              TEXT NOT NULL,
	guild_id             TEXT NOT NULL DEFAULT '',
	last_extraction_time TIMESTAMP NOT NULL,
	last_message_count   INTEGER NOT NULL DEFAULT 0,
	last_message_id      TEXT NOT NULL DEFAULT '',
	updated_at           TIMESTAMP NOT NULL,
	PRIMARY KEY (user_id, guild_id)
);
`

// Store implements storage.Store using SQLite.
type Store struct {
	db *sql.DB
}

var _ storage.Store = (*Store)(nil)

// New opens a SQLite store at the given path. Use ":memory:" for tests.
func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to open database: %w", err)
	}

	// modernc sqlite serializes access; one writer connection avoids
	// SQLITE_BUSY under concurrent async callers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: failed to apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

const recordColumns = `
	id, user_id, guild_id, text, embedding_json,
	memory_type, category, confidence, source,
	verified, verification_date, verification_source,
	contradiction_count, access_count, last_accessed_at,
	created_at, updated_at, active
`

// Insert creates a new record.
func (s *Store) Insert(ctx context.Context, record *types.MemoryRecord) error {
	if record == nil {
		return storage.ErrInvalidInput
	}
	if err := record.Validate(); err != nil {
		return fmt.Errorf("%w: %v", storage.ErrInvalidInput, err)
	}

	embJSON, err := marshalEmbedding(record.Embedding)
	if err != nil {
		return fmt.Errorf("sqlite: marshal embedding: %w", err)
	}

	const insertSQL = `
		INSERT INTO memories (
			id, user_id, guild_id, text, embedding_json,
			memory_type, category, confidence, source,
			verified, verification_date, verification_source,
			contradiction_count, access_count, last_accessed_at,
			created_at, updated_at, active
		) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
	`

	_, err = s.db.ExecContext(ctx, insertSQL,
		record.ID, record.UserID, record.GuildID, record.Text, embJSON,
		string(record.Type), string(record.Category), record.Confidence, record.Source,
		record.Verified, record.VerificationDate, nullString(record.VerificationSource),
		record.ContradictionCount, record.AccessCount, record.LastAccessedAt,
		record.CreatedAt, record.UpdatedAt, record.Active,
	)
	if err != nil {
		return fmt.Errorf("sqlite: insert memory %s: %w", record.ID, err)
	}
	return nil
}

// InsertBatch creates several records, skipping invalid ones.
func (s *Store) InsertBatch(ctx context.Context, records []*types.MemoryRecord) (int, error) {
	stored := 0
	for _, record := range records {
		if record == nil || record.Validate() != nil {
			log.Printf("sqlite: skipping invalid record in batch")
			continue
		}
		if err := s.Insert(ctx, record); err != nil {
			return stored, err
		}
		stored++
	}
	return stored, nil
}

// Get retrieves a record by ID.
func (s *Store) Get(ctx context.Context, id string) (*types.MemoryRecord, error) {
	if id == "" {
		return nil, storage.ErrInvalidInput
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM memories WHERE id = ?`, id)

	record, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: get memory %s: %w", id, err)
	}
	return record, nil
}

// Update overwrites an existing record.
func (s *Store) Update(ctx context.Context, record *types.MemoryRecord) error {
	if record == nil || record.ID == "" {
		return storage.ErrInvalidInput
	}

	embJSON, err := marshalEmbedding(record.Embedding)
	if err != nil {
		return fmt.Errorf("sqlite: marshal embedding: %w", err)
	}

	const updateSQL = `
		UPDATE memories SET
			text = ?, embedding_json = ?,
			memory_type = ?, category = ?, confidence = ?, source = ?,
			verified = ?, verification_date = ?, verification_source = ?,
			contradiction_count = ?, access_count = ?, last_accessed_at = ?,
			updated_at = ?, active = ?
		WHERE id = ?
	`

	result, err := s.db.ExecContext(ctx, updateSQL,
		record.Text, embJSON,
		string(record.Type), string(record.Category), record.Confidence, record.Source,
		record.Verified, record.VerificationDate, nullString(record.VerificationSource),
		record.ContradictionCount, record.AccessCount, record.LastAccessedAt,
		record.UpdatedAt, record.Active,
		record.ID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: update memory %s: %w", record.ID, err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// ListByScope returns active records for a scope, newest first.
func (s *Store) ListByScope(ctx context.Context, scope types.Scope, opts storage.ListOptions) ([]*types.MemoryRecord, error) {
	if err := scope.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", storage.ErrInvalidInput, err)
	}
	opts.Normalize()

	query := `SELECT ` + recordColumns + ` FROM memories WHERE user_id = ? AND guild_id = ?`
	args := []interface{}{scope.UserID, scope.GuildID}

	if !opts.IncludeInactive {
		query += ` AND active`
	}
	if opts.Filter.Type != "" {
		query += ` AND memory_type = ?`
		args = append(args, string(opts.Filter.Type))
	}
	if opts.Filter.Category != "" {
		query += ` AND category = ?`
		args = append(args, string(opts.Filter.Category))
	}
	if opts.Filter.VerifiedOnly {
		query += ` AND verified`
	}
	if !opts.Filter.CreatedAfter.IsZero() {
		query += ` AND created_at > ?`
		args = append(args, opts.Filter.CreatedAfter)
	}
	query += ` ORDER BY updated_at DESC LIMIT ? OFFSET ?`
	args = append(args, opts.Limit, opts.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list scope %s: %w", scope.Key(), err)
	}
	defer func() { _ = rows.Close() }()

	return scanRecords(rows)
}

// RecordAccess applies an access-tracking bump to a record.
func (s *Store) RecordAccess(ctx context.Context, bump storage.AccessBump) error {
	const bumpSQL = `
		UPDATE memories SET
			access_count = access_count + 1,
			last_accessed_at = ?,
			confidence = ?,
			updated_at = ?
		WHERE id = ?
	`
	result, err := s.db.ExecContext(ctx, bumpSQL, bump.LastAccessedAt, bump.Confidence, time.Now(), bump.ID)
	if err != nil {
		return fmt.Errorf("sqlite: record access %s: %w", bump.ID, err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// Deactivate soft-deletes a record.
func (s *Store) Deactivate(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE memories SET active = 0, updated_at = ? WHERE id = ?`, time.Now(), id)
	if err != nil {
		return fmt.Errorf("sqlite: deactivate %s: %w", id, err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// ClearScope hard-deletes all records and their connections for a scope.
func (s *Store) ClearScope(ctx context.Context, scope types.Scope) (int, error) {
	if err := scope.Validate(); err != nil {
		return 0, fmt.Errorf("%w: %v", storage.ErrInvalidInput, err)
	}

	// SQLite has no cascading FK here; remove the edges explicitly first.
	if _, err := s.db.ExecContext(ctx, `
		DELETE FROM memory_connections WHERE source_id IN
			(SELECT id FROM memories WHERE user_id = ? AND guild_id = ?)
		OR target_id IN
			(SELECT id FROM memories WHERE user_id = ? AND guild_id = ?)`,
		scope.UserID, scope.GuildID, scope.UserID, scope.GuildID,
	); err != nil {
		return 0, fmt.Errorf("sqlite: clear scope connections: %w", err)
	}

	result, err := s.db.ExecContext(ctx,
		`DELETE FROM memories WHERE user_id = ? AND guild_id = ?`,
		scope.UserID, scope.GuildID)
	if err != nil {
		return 0, fmt.Errorf("sqlite: clear scope %s: %w", scope.Key(), err)
	}

	n, _ := result.RowsAffected()
	return int(n), nil
}

// ActiveScopes lists distinct scopes with active records.
func (s *Store) ActiveScopes(ctx context.Context, window time.Duration) ([]storage.ScopeActivity, error) {
	query := `
		SELECT user_id, guild_id, COUNT(*), MAX(updated_at)
		FROM memories
		WHERE active
		GROUP BY user_id, guild_id
	`
	args := []interface{}{}
	if window > 0 {
		query += ` HAVING MAX(updated_at) >= ?`
		args = append(args, time.Now().Add(-window))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: active scopes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var scopes []storage.ScopeActivity
	for rows.Next() {
		var sa storage.ScopeActivity
		var lastActivity string
		if err := rows.Scan(&sa.Scope.UserID, &sa.Scope.GuildID, &sa.ActiveCount, &lastActivity); err != nil {
			return nil, fmt.Errorf("sqlite: scan scope activity: %w", err)
		}
		// MAX(updated_at) has no declared column type, so the driver returns
		// the stored text instead of a time.Time; parse it back here.
		parsed, err := parseTimeText(lastActivity)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scan scope activity: %w", err)
		}
		sa.LastActivity = parsed
		scopes = append(scopes, sa)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: active scopes rows: %w", err)
	}
	return scopes, nil
}

// parseTimeText parses timestamp text in the formats the driver writes for
// time.Time parameters, including Go's time.Time.String() form with its
// monotonic clock suffix.
func parseTimeText(s string) (time.Time, error) {
	if i := strings.LastIndex(s, " m="); i >= 0 {
		s = s[:i]
	}
	for _, layout := range []string{
		"2006-01-02 15:04:05.999999999 -0700 MST",
		"2006-01-02 15:04:05.999999999-07:00",
		time.RFC3339Nano,
		"2006-01-02 15:04:05",
	} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unsupported time format %q", s)
}

// TopKSimilar loads the scope's embeddings and ranks by cosine similarity in
// Go. Per-scope record counts are bounded (hundreds, not millions) so a full
// scan is acceptable.
func (s *Store) TopKSimilar(ctx context.Context, scope types.Scope, query []float32, opts storage.SimilarityOptions) ([]storage.ScoredRecord, error) {
	if len(query) == 0 {
		return nil, fmt.Errorf("%w: empty query vector", storage.ErrInvalidInput)
	}
	opts.Normalize()

	records, err := s.ListByScope(ctx, scope, storage.ListOptions{
		Limit:  500,
		Filter: opts.Filter,
	})
	if err != nil {
		return nil, err
	}

	var results []storage.ScoredRecord
	for _, record := range records {
		if len(record.Embedding) != len(query) {
			// Missing or mismatched embedding: skip, never abort the batch.
			continue
		}
		sim := cosineSimilarity(query, record.Embedding)
		if opts.MinSimilarity > 0 && sim < opts.MinSimilarity {
			continue
		}
		results = append(results, storage.ScoredRecord{Record: record, Similarity: sim})
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Similarity > results[j].Similarity
	})
	if len(results) > opts.K {
		results = results[:opts.K]
	}
	return results, nil
}

// KeywordSearch returns active records in scope matching any term.
func (s *Store) KeywordSearch(ctx context.Context, scope types.Scope, terms []string, limit int) ([]*types.MemoryRecord, error) {
	if err := scope.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", storage.ErrInvalidInput, err)
	}
	if limit < 1 {
		limit = 10
	}

	var clauses []string
	args := []interface{}{scope.UserID, scope.GuildID}
	for _, term := range terms {
		term = strings.TrimSpace(term)
		if term == "" {
			continue
		}
		clauses = append(clauses, `text LIKE ? COLLATE NOCASE`)
		args = append(args, "%"+term+"%")
	}
	if len(clauses) == 0 {
		return nil, nil
	}

	query := `SELECT ` + recordColumns + ` FROM memories
		WHERE user_id = ? AND guild_id = ? AND active
		AND (` + strings.Join(clauses, " OR ") + `)
		ORDER BY confidence DESC, updated_at DESC
		LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: keyword search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return scanRecords(rows)
}

// cosineSimilarity computes cosine similarity between two equal-length
// vectors, mapped to [0, 1].
func cosineSimilarity(a []float32, b []float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	cos := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	// Map [-1, 1] to [0, 1] and clamp against float error.
	sim := (cos + 1) / 2
	if sim < 0 {
		return 0
	}
	if sim > 1 {
		return 1
	}
	return sim
}

func marshalEmbedding(embedding []float32) (interface{}, error) {
	if len(embedding) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(embedding)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func nullString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row rowScanner) (*types.MemoryRecord, error) {
	var record types.MemoryRecord
	var embJSON, verificationSource sql.NullString
	var verificationDate, lastAccessedAt sql.NullTime
	var memType, category string

	err := row.Scan(
		&record.ID, &record.UserID, &record.GuildID, &record.Text, &embJSON,
		&memType, &category, &record.Confidence, &record.Source,
		&record.Verified, &verificationDate, &verificationSource,
		&record.ContradictionCount, &record.AccessCount, &lastAccessedAt,
		&record.CreatedAt, &record.UpdatedAt, &record.Active,
	)
	if err != nil {
		return nil, err
	}

	record.Type = types.MemoryType(memType)
	record.Category = types.Category(category)

	if embJSON.Valid && embJSON.String != "" {
		if err := json.Unmarshal([]byte(embJSON.String), &record.Embedding); err != nil {
			return nil, fmt.Errorf("unmarshal embedding: %w", err)
		}
	}
	if verificationDate.Valid {
		t := verificationDate.Time
		record.VerificationDate = &t
	}
	if verificationSource.Valid {
		record.VerificationSource = verificationSource.String
	}
	if lastAccessedAt.Valid {
		t := lastAccessedAt.Time
		record.LastAccessedAt = &t
	}

	return &record, nil
}

func scanRecords(rows *sql.Rows) ([]*types.MemoryRecord, error) {
	var records []*types.MemoryRecord
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			log.Printf("sqlite: skipping malformed record row: %v", err)
			continue
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: rows error: %w", err)
	}
	return records, nil
}
