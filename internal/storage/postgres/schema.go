package postgres

// Schema is the base DDL for the Bri memory tables. Every statement is
// idempotent (IF NOT EXISTS) so the schema can be re-applied on startup.
//
// Embeddings are stored twice when pgvector is present: the jsonb column is
// the portable source of truth, the vector column (added by
// MigrationPgvector) serves similarity queries.
const Schema = `
CREATE TABLE IF NOT EXISTS memories (
	id                  TEXT PRIMARY KEY,
	user_id             TEXT NOT NULL,
	guild_id            TEXT NOT NULL DEFAULT '',
	text                TEXT NOT NULL,
	embedding_json      JSONB,
	memory_type         TEXT NOT NULL,
	category            TEXT NOT NULL,
	confidence          DOUBLE PRECISION NOT NULL,
	source              TEXT NOT NULL DEFAULT '',
	verified            BOOLEAN NOT NULL DEFAULT FALSE,
	verification_date   TIMESTAMPTZ,
	verification_source TEXT,
	contradiction_count INTEGER NOT NULL DEFAULT 0,
	access_count        INTEGER NOT NULL DEFAULT 0,
	last_accessed_at    TIMESTAMPTZ,
	created_at          TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at          TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	active              BOOLEAN NOT NULL DEFAULT TRUE
);

CREATE INDEX IF NOT EXISTS idx_memories_scope
	ON memories (user_id, guild_id) WHERE active;

CREATE INDEX IF NOT EXISTS idx_memories_updated
	ON memories (updated_at DESC);

CREATE TABLE IF NOT EXISTS memory_connections (
	id          TEXT PRIMARY KEY,
	source_id   TEXT NOT NULL REFERENCES memories(id) ON DELETE CASCADE,
	target_id   TEXT NOT NULL REFERENCES memories(id) ON DELETE CASCADE,
	rel_type    TEXT NOT NULL,
	confidence  DOUBLE PRECISION NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	UNIQUE (source_id, target_id, rel_type)
);

CREATE INDEX IF NOT EXISTS idx_connections_source
	ON memory_connections (source_id);

CREATE TABLE IF NOT EXISTS extraction_state (
	user_id              TEXT NOT NULL,
	guild_id             TEXT NOT NULL DEFAULT '',
	last_extraction_time TIMESTAMPTZ NOT NULL,
	last_message_count   INTEGER NOT NULL DEFAULT 0,
	last_message_id      TEXT NOT NULL DEFAULT '',
	updated_at           TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (user_id, guild_id)
);
`

// MigrationPgvector adds the vector column and cosine index. Applied only
// when the pgvector extension is available.
const MigrationPgvector = `
ALTER TABLE memories ADD COLUMN IF NOT EXISTS embedding_vec vector(1536);

CREATE INDEX IF NOT EXISTS idx_memories_vec_cosine
	ON memories USING ivfflat (embedding_vec vector_cosine_ops)
	WITH (lists = 100);
`
