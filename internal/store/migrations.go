package store

import (
	"fmt"
)

type migration struct {
	Version     int
	Description string
	SQL         string
}

var migrations = []migration{
	{
		Version:     1,
		Description: "chunks: tiered memory chunks",
		SQL: `
CREATE TABLE chunks (
    id                 TEXT PRIMARY KEY,
    tier               TEXT NOT NULL CHECK (tier IN ('working', 'short_term', 'long_term', 'episodic')),
    content            TEXT NOT NULL,
    summary            TEXT,
    category           TEXT,
    person             TEXT,
    tags               TEXT,

    confidence         REAL NOT NULL DEFAULT 1.0,
    access_count       INTEGER NOT NULL DEFAULT 0,

    created_at         INTEGER NOT NULL,
    updated_at         INTEGER NOT NULL,
    promoted_at        INTEGER,
    expires_at         INTEGER,

    -- Relevance-horizon annotation from the external predictor.
    relevance_horizon  INTEGER,
    horizon_reasoning  TEXT,
    horizon_confidence REAL,
    horizon_category   TEXT,

    metadata           TEXT
);

CREATE INDEX idx_chunks_tier     ON chunks(tier, updated_at);
CREATE INDEX idx_chunks_person   ON chunks(person);
CREATE INDEX idx_chunks_category ON chunks(category);
CREATE INDEX idx_chunks_expires  ON chunks(expires_at);
CREATE INDEX idx_chunks_created  ON chunks(created_at DESC);
`,
	},
	{
		Version:     2,
		Description: "chunk_vectors: embedding vectors for semantic search",
		SQL: `
CREATE TABLE chunk_vectors (
    chunk_id   TEXT PRIMARY KEY REFERENCES chunks(id) ON DELETE CASCADE,
    embedding  BLOB NOT NULL,
    dimensions INTEGER NOT NULL,
    created_at INTEGER NOT NULL
);
`,
	},
	{
		Version:     3,
		Description: "tag_embeddings: per-dimension semantic tag vectors",
		SQL: `
CREATE TABLE tag_embeddings (
    tag        TEXT NOT NULL,
    dimension  TEXT NOT NULL CHECK (dimension IN ('concepts', 'specialized', 'people', 'places', 'projects')),
    embedding  BLOB NOT NULL,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL,
    PRIMARY KEY (tag, dimension)
);
`,
	},
	{
		Version:     4,
		Description: "maintenance_runs: audit log for lifecycle passes",
		SQL: `
CREATE TABLE maintenance_runs (
    id          TEXT PRIMARY KEY,
    started_at  INTEGER NOT NULL,
    finished_at INTEGER NOT NULL,
    decayed     INTEGER NOT NULL DEFAULT 0,
    promoted    INTEGER NOT NULL DEFAULT 0,
    vacuumed    INTEGER NOT NULL DEFAULT 0,
    errors      TEXT
);

CREATE INDEX idx_runs_started ON maintenance_runs(started_at DESC);
`,
	},
}

func (s *MemoryStore) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_versions (
			version     INTEGER PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at  INTEGER NOT NULL DEFAULT (strftime('%s', 'now') * 1000)
		)
	`)
	if err != nil {
		return fmt.Errorf("create schema_versions: %w", err)
	}

	for _, m := range migrations {
		var count int
		err := s.db.QueryRow("SELECT COUNT(*) FROM schema_versions WHERE version = ?", m.Version).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %d: %w", m.Version, err)
		}
		if count > 0 {
			continue
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.Version, err)
		}

		if _, err := tx.Exec(m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
		}

		if _, err := tx.Exec(
			"INSERT INTO schema_versions (version, description) VALUES (?, ?)",
			m.Version, m.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}

	return nil
}

// initFTS creates the full-text index. It is a standalone FTS5 table rather
// than an external-content one so rows can be deleted by chunk id without
// replaying old column values.
func (s *MemoryStore) initFTS() error {
	_, err := s.db.Exec(`
		CREATE VIRTUAL TABLE IF NOT EXISTS chunk_fts USING fts5(
			chunk_id UNINDEXED,
			content,
			summary,
			tags,
			tokenize='porter unicode61'
		)
	`)
	return err
}

// SchemaVersion returns the current schema version.
func (s *MemoryStore) SchemaVersion() (int, error) {
	var version int
	err := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_versions").Scan(&version)
	return version, err
}
