package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/stratamem/strata/internal/memory"
)

// PutTagEmbedding stores the vector for a (tag, dimension) pair. An
// existing pair is left untouched unless force is set, so re-embedding a
// corpus never recomputes vectors that are already present. Returns whether
// a row was written.
func (s *MemoryStore) PutTagEmbedding(ctx context.Context, tag string, dim memory.Dimension, vec []float32, force bool) (bool, error) {
	if err := s.guard(); err != nil {
		return false, err
	}
	if tag == "" {
		return false, fmt.Errorf("put tag embedding: empty tag")
	}
	if len(vec) == 0 {
		return false, fmt.Errorf("put tag embedding %q: empty vector", tag)
	}

	now := time.Now().UTC().UnixMilli()
	blob := encodeEmbedding(vec)

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	var res sql.Result
	var err error
	if force {
		res, err = s.db.ExecContext(ctx, `
			INSERT INTO tag_embeddings (tag, dimension, embedding, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(tag, dimension) DO UPDATE SET embedding = excluded.embedding,
				updated_at = excluded.updated_at
		`, tag, string(dim), blob, now, now)
	} else {
		res, err = s.db.ExecContext(ctx, `
			INSERT OR IGNORE INTO tag_embeddings (tag, dimension, embedding, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?)
		`, tag, string(dim), blob, now, now)
	}
	if err != nil {
		return false, fmt.Errorf("put tag embedding %q/%s: %w", tag, dim, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// GetTagEmbedding returns the stored embedding for a (tag, dimension) pair,
// or nil if none exists.
func (s *MemoryStore) GetTagEmbedding(ctx context.Context, tag string, dim memory.Dimension) (*memory.TagEmbedding, error) {
	if err := s.guard(); err != nil {
		return nil, err
	}
	row := s.db.QueryRowContext(ctx, `
		SELECT tag, dimension, embedding, created_at, updated_at
		FROM tag_embeddings WHERE tag = ? AND dimension = ?
	`, tag, string(dim))

	te, err := scanTagEmbedding(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get tag embedding %q/%s: %w", tag, dim, err)
	}
	return te, nil
}

// HasTagEmbedding reports whether a (tag, dimension) pair is embedded.
func (s *MemoryStore) HasTagEmbedding(ctx context.Context, tag string, dim memory.Dimension) (bool, error) {
	if err := s.guard(); err != nil {
		return false, err
	}
	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM tag_embeddings WHERE tag = ? AND dimension = ?",
		tag, string(dim)).Scan(&n)
	return n > 0, err
}

// ListTagEmbeddings returns stored tag embeddings, optionally restricted to
// one dimension (empty dim means all), ordered by dimension then tag.
func (s *MemoryStore) ListTagEmbeddings(ctx context.Context, dim memory.Dimension) ([]*memory.TagEmbedding, error) {
	if err := s.guard(); err != nil {
		return nil, err
	}

	query := "SELECT tag, dimension, embedding, created_at, updated_at FROM tag_embeddings"
	var args []any
	if dim != "" {
		query += " WHERE dimension = ?"
		args = append(args, string(dim))
	}
	query += " ORDER BY dimension, tag"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tag embeddings: %w", err)
	}
	defer rows.Close()

	var out []*memory.TagEmbedding
	for rows.Next() {
		te, err := scanTagEmbedding(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, te)
	}
	return out, rows.Err()
}

// DeleteTagEmbedding removes the embedding for a (tag, dimension) pair.
// Deleting a missing pair is not an error.
func (s *MemoryStore) DeleteTagEmbedding(ctx context.Context, tag string, dim memory.Dimension) error {
	if err := s.guard(); err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM tag_embeddings WHERE tag = ? AND dimension = ?", tag, string(dim))
	return err
}

// UsedTags returns the union of every tag currently carried by any chunk,
// grouped by dimension. This is the work list for bulk tag embedding.
func (s *MemoryStore) UsedTags(ctx context.Context) (memory.TagSet, error) {
	var union memory.TagSet
	if err := s.guard(); err != nil {
		return union, err
	}

	rows, err := s.db.QueryContext(ctx, "SELECT tags FROM chunks WHERE tags IS NOT NULL AND tags != ''")
	if err != nil {
		return union, fmt.Errorf("collect tags: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return union, err
		}
		var ts memory.TagSet
		if err := json.Unmarshal([]byte(raw), &ts); err != nil {
			continue // a malformed row should not block the sweep
		}
		union.Union(ts)
	}
	return union, rows.Err()
}

func scanTagEmbedding(row scanner) (*memory.TagEmbedding, error) {
	var te memory.TagEmbedding
	var dim string
	var blob []byte
	var createdAt, updatedAt int64
	if err := row.Scan(&te.Tag, &dim, &blob, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	te.Dimension = memory.Dimension(dim)
	te.Vector = decodeEmbedding(blob)
	te.CreatedAt = time.UnixMilli(createdAt).UTC()
	te.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	return &te, nil
}
