package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/stratamem/strata/internal/memory"
	"github.com/stratamem/strata/internal/vecmath"
)

// maxFTSTokens caps the document size fed to the full-text index. Oversized
// content indexes its summary instead, or a truncated prefix when no
// summary exists.
const maxFTSTokens = 4096

const chunkColumns = `id, tier, content, summary, category, person, tags,
	confidence, access_count, created_at, updated_at, promoted_at, expires_at,
	relevance_horizon, horizon_reasoning, horizon_confidence, horizon_category, metadata`

// Insert persists a chunk, assigning an id, timestamps, and the default
// confidence when absent, and indexes it for full-text and vector search.
// The chunk is mutated in place with the applied defaults. A nil embedding
// skips the vector index.
func (s *MemoryStore) Insert(ctx context.Context, c *memory.Chunk, embedding []float32) (string, error) {
	if err := s.guard(); err != nil {
		return "", err
	}
	if c.Content == "" {
		return "", fmt.Errorf("insert: content required")
	}
	if c.Tier == "" {
		c.Tier = memory.TierShortTerm
	}
	if !memory.ValidTiers[c.Tier] {
		return "", fmt.Errorf("insert: invalid tier %q", c.Tier)
	}

	now := time.Now().UTC()
	if c.ID == "" {
		c.ID = ulid.Make().String()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	if c.UpdatedAt.IsZero() || c.UpdatedAt.Before(c.CreatedAt) {
		c.UpdatedAt = c.CreatedAt
	}
	if c.Confidence == 0 {
		c.Confidence = 1.0
	}
	c.Tags.Normalize()

	tagsJSON, err := json.Marshal(c.Tags)
	if err != nil {
		return "", fmt.Errorf("marshal tags: %w", err)
	}
	metaJSON, err := marshalMetadata(c.Metadata)
	if err != nil {
		return "", err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO chunks (`+chunkColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, c.ID, string(c.Tier), c.Content, nullString(c.Summary),
		nullString(c.Category), nullString(c.Person), string(tagsJSON),
		c.Confidence, c.AccessCount(),
		c.CreatedAt.UnixMilli(), c.UpdatedAt.UnixMilli(),
		nullTime(c.PromotedAt), nullTime(c.ExpiresAt),
		nullTime(c.RelevanceHorizon), nullString(c.HorizonReasoning),
		nullFloat(c.HorizonConfidence), nullString(string(c.HorizonCategory)),
		metaJSON)
	if err != nil {
		return "", fmt.Errorf("insert chunk: %w", err)
	}

	if s.cfg.EnableFTS {
		if err := ftsInsert(ctx, tx, c); err != nil {
			return "", err
		}
	}

	if err := tx.Commit(); err != nil {
		return "", err
	}

	if s.vectors != nil && len(embedding) > 0 {
		if err := s.vectors.Upsert(ctx, c.ID, embedding); err != nil {
			return "", fmt.Errorf("index vector: %w", err)
		}
	}

	return c.ID, nil
}

// Get returns the chunk with the given id, or nil if it does not exist.
// Each successful read bumps the chunk's access counter, which feeds the
// promotion criteria.
func (s *MemoryStore) Get(ctx context.Context, id string) (*memory.Chunk, error) {
	if err := s.guard(); err != nil {
		return nil, err
	}
	c, err := s.fetch(ctx, id)
	if err != nil || c == nil {
		return c, err
	}
	// Best-effort access tracking; a failed bump never fails the read.
	s.db.ExecContext(ctx, "UPDATE chunks SET access_count = access_count + 1 WHERE id = ?", id)
	return c, nil
}

// fetch is Get without access tracking, shared by the write paths.
func (s *MemoryStore) fetch(ctx context.Context, id string) (*memory.Chunk, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+chunkColumns+" FROM chunks WHERE id = ?", id)
	c, err := scanChunk(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get chunk %s: %w", id, err)
	}
	return c, nil
}

// ChunkPatch is a partial update. Nil fields are left unchanged.
type ChunkPatch struct {
	Content    *string
	Summary    *string
	Category   *string
	Person     *string
	Tags       *memory.TagSet
	Confidence *float64
	ExpiresAt  *time.Time
	// ClearExpiry removes an existing expiry deadline.
	ClearExpiry bool
	// Metadata, when non-nil, replaces the whole metadata bag.
	Metadata map[string]any
}

// Update applies a partial update, bumps UpdatedAt, and re-indexes the
// chunk so stale content cannot be found under old text. A non-nil
// embedding replaces the stored vector. Returns ErrNotFound for a missing
// id.
func (s *MemoryStore) Update(ctx context.Context, id string, patch ChunkPatch, embedding []float32) error {
	if err := s.guard(); err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	c, err := s.fetch(ctx, id)
	if err != nil {
		return err
	}
	if c == nil {
		return fmt.Errorf("update %s: %w", id, ErrNotFound)
	}

	if patch.Content != nil {
		c.Content = *patch.Content
	}
	if patch.Summary != nil {
		c.Summary = *patch.Summary
	}
	if patch.Category != nil {
		c.Category = *patch.Category
	}
	if patch.Person != nil {
		c.Person = *patch.Person
	}
	if patch.Tags != nil {
		c.Tags = *patch.Tags
		c.Tags.Normalize()
	}
	if patch.Confidence != nil {
		c.Confidence = *patch.Confidence
	}
	if patch.ClearExpiry {
		c.ExpiresAt = nil
	} else if patch.ExpiresAt != nil {
		c.ExpiresAt = patch.ExpiresAt
	}
	if patch.Metadata != nil {
		c.Metadata = patch.Metadata
	}

	c.UpdatedAt = time.Now().UTC()
	if c.UpdatedAt.Before(c.CreatedAt) {
		c.UpdatedAt = c.CreatedAt
	}

	tagsJSON, err := json.Marshal(c.Tags)
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}
	metaJSON, err := marshalMetadata(c.Metadata)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		UPDATE chunks SET content = ?, summary = ?, category = ?, person = ?,
			tags = ?, confidence = ?, access_count = ?, updated_at = ?,
			expires_at = ?, metadata = ?
		WHERE id = ?
	`, c.Content, nullString(c.Summary), nullString(c.Category), nullString(c.Person),
		string(tagsJSON), c.Confidence, c.AccessCount(), c.UpdatedAt.UnixMilli(),
		nullTime(c.ExpiresAt), metaJSON, id)
	if err != nil {
		return fmt.Errorf("update chunk: %w", err)
	}

	if s.cfg.EnableFTS {
		if _, err := tx.ExecContext(ctx, "DELETE FROM chunk_fts WHERE chunk_id = ?", id); err != nil {
			return fmt.Errorf("deindex chunk: %w", err)
		}
		if err := ftsInsert(ctx, tx, c); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	if s.vectors != nil {
		switch {
		case len(embedding) > 0:
			if err := s.vectors.Upsert(ctx, id, embedding); err != nil {
				return fmt.Errorf("index vector: %w", err)
			}
		case patch.Content != nil:
			// Content changed with no replacement vector: drop the old one,
			// or the chunk stays semantically retrievable under its previous
			// meaning. Mirrors the FTS delete above.
			if err := s.vectors.Delete(ctx, id); err != nil {
				return fmt.Errorf("drop stale vector: %w", err)
			}
		}
	}

	return nil
}

// Horizon is a relevance-horizon annotation. A nil Timestamp means the
// chunk is predicted to stay relevant permanently.
type Horizon struct {
	Timestamp  *time.Time
	Reasoning  string
	Confidence float64
	Category   memory.HorizonCategory
}

// SetHorizon writes the predictor's annotation onto a chunk without
// touching UpdatedAt — an annotation is not a content mutation and must
// not reset the staleness clock.
func (s *MemoryStore) SetHorizon(ctx context.Context, id string, h Horizon) error {
	if err := s.guard(); err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		UPDATE chunks SET relevance_horizon = ?, horizon_reasoning = ?,
			horizon_confidence = ?, horizon_category = ?
		WHERE id = ?
	`, nullTime(h.Timestamp), nullString(h.Reasoning), nullFloat(h.Confidence),
		nullString(string(h.Category)), id)
	if err != nil {
		return fmt.Errorf("set horizon: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("set horizon %s: %w", id, ErrNotFound)
	}
	return nil
}

// Delete removes a chunk and all of its index entries. Deleting a
// nonexistent id is not an error.
func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	if err := s.guard(); err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.removeChunks(ctx, []string{id})
}

// removeChunks deletes rows and index entries for the given ids. Caller
// holds writeMu.
func (s *MemoryStore) removeChunks(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	placeholders, args := inArgs(ids)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM chunks WHERE id IN ("+placeholders+")", args...); err != nil {
		return fmt.Errorf("delete chunks: %w", err)
	}
	if s.cfg.EnableFTS {
		if _, err := tx.ExecContext(ctx, "DELETE FROM chunk_fts WHERE chunk_id IN ("+placeholders+")", args...); err != nil {
			return fmt.Errorf("deindex chunks: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	if s.vectors != nil {
		for _, id := range ids {
			if err := s.vectors.Delete(ctx, id); err != nil {
				return fmt.Errorf("delete vector %s: %w", id, err)
			}
		}
	}
	return nil
}

// Promote sets the chunk's tier and stamps PromotedAt. It does not validate
// that the move is "forward" — tier ordering policy belongs to the caller.
func (s *MemoryStore) Promote(ctx context.Context, id string, to memory.Tier) error {
	if err := s.guard(); err != nil {
		return err
	}
	if !memory.ValidTiers[to] {
		return fmt.Errorf("promote: invalid tier %q", to)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	res, err := s.db.ExecContext(ctx,
		"UPDATE chunks SET tier = ?, promoted_at = ? WHERE id = ?",
		string(to), time.Now().UTC().UnixMilli(), id)
	if err != nil {
		return fmt.Errorf("promote chunk: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("promote %s: %w", id, ErrNotFound)
	}
	return nil
}

// Decay moves every chunk in fromTier whose UpdatedAt is strictly before
// cutoff into toTier, or deletes them when toTier is nil (terminal decay).
// Returns the number of chunks affected. Demotion deliberately leaves
// UpdatedAt untouched so the staleness clock keeps running across tiers.
func (s *MemoryStore) Decay(ctx context.Context, cutoff time.Time, fromTier memory.Tier, toTier *memory.Tier) (int, error) {
	if err := s.guard(); err != nil {
		return 0, err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if toTier != nil {
		if !memory.ValidTiers[*toTier] {
			return 0, fmt.Errorf("decay: invalid tier %q", *toTier)
		}
		res, err := s.db.ExecContext(ctx,
			"UPDATE chunks SET tier = ? WHERE tier = ? AND updated_at < ?",
			string(*toTier), string(fromTier), cutoff.UnixMilli())
		if err != nil {
			return 0, fmt.Errorf("decay chunks: %w", err)
		}
		n, _ := res.RowsAffected()
		return int(n), nil
	}

	ids, err := s.collectIDs(ctx,
		"SELECT id FROM chunks WHERE tier = ? AND updated_at < ?",
		string(fromTier), cutoff.UnixMilli())
	if err != nil {
		return 0, err
	}
	if err := s.removeChunks(ctx, ids); err != nil {
		return 0, err
	}
	return len(ids), nil
}

// DeleteExpired removes every chunk whose ExpiresAt is in the past and
// returns the count.
func (s *MemoryStore) DeleteExpired(ctx context.Context) (int, error) {
	if err := s.guard(); err != nil {
		return 0, err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	ids, err := s.collectIDs(ctx,
		"SELECT id FROM chunks WHERE expires_at IS NOT NULL AND expires_at < ?",
		time.Now().UTC().UnixMilli())
	if err != nil {
		return 0, err
	}
	if err := s.removeChunks(ctx, ids); err != nil {
		return 0, err
	}
	return len(ids), nil
}

// ListByTier returns chunks in a tier, newest first, paginated. Pages at a
// fixed ordering do not overlap.
func (s *MemoryStore) ListByTier(ctx context.Context, tier memory.Tier, limit, offset int) ([]*memory.Chunk, error) {
	if err := s.guard(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 100
	}
	return s.queryChunks(ctx, `
		SELECT `+chunkColumns+` FROM chunks WHERE tier = ?
		ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?
	`, string(tier), limit, offset)
}

// ListByPerson returns every chunk compartmented to the given person,
// newest first.
func (s *MemoryStore) ListByPerson(ctx context.Context, person string) ([]*memory.Chunk, error) {
	if err := s.guard(); err != nil {
		return nil, err
	}
	return s.queryChunks(ctx, `
		SELECT `+chunkColumns+` FROM chunks WHERE person = ?
		ORDER BY created_at DESC, id DESC
	`, person)
}

func (s *MemoryStore) queryChunks(ctx context.Context, query string, args ...any) ([]*memory.Chunk, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chunks []*memory.Chunk
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

// chunksByIDs fetches chunks preserving no particular order.
func (s *MemoryStore) chunksByIDs(ctx context.Context, ids []string) (map[string]*memory.Chunk, error) {
	if len(ids) == 0 {
		return map[string]*memory.Chunk{}, nil
	}
	placeholders, args := inArgs(ids)
	chunks, err := s.queryChunks(ctx, "SELECT "+chunkColumns+" FROM chunks WHERE id IN ("+placeholders+")", args...)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*memory.Chunk, len(chunks))
	for _, c := range chunks {
		byID[c.ID] = c
	}
	return byID, nil
}

func (s *MemoryStore) collectIDs(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ftsInsert indexes a chunk's content, summary, and flattened tags.
func ftsInsert(ctx context.Context, tx *sql.Tx, c *memory.Chunk) error {
	doc := c.Content
	if len(strings.Fields(doc)) > maxFTSTokens {
		if c.Summary != "" {
			doc = c.Summary
		} else {
			doc = vecmath.TruncateTokens(doc, maxFTSTokens)
		}
	}
	_, err := tx.ExecContext(ctx,
		"INSERT INTO chunk_fts (chunk_id, content, summary, tags) VALUES (?, ?, ?, ?)",
		c.ID, doc, c.Summary, c.Tags.Flatten())
	if err != nil {
		return fmt.Errorf("index chunk: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

// scanChunk scans one chunks row. Extra destinations are appended for
// queries that select additional columns (e.g. the FTS rank).
func scanChunk(row scanner, extra ...any) (*memory.Chunk, error) {
	var c memory.Chunk
	var tier string
	var summary, category, person, tagsJSON, horizonReasoning, horizonCategory, metaJSON sql.NullString
	var promotedAt, expiresAt, relevanceHorizon sql.NullInt64
	var horizonConfidence sql.NullFloat64
	var createdAt, updatedAt int64
	var accessCount int

	dest := []any{
		&c.ID, &tier, &c.Content, &summary, &category, &person, &tagsJSON,
		&c.Confidence, &accessCount, &createdAt, &updatedAt, &promotedAt, &expiresAt,
		&relevanceHorizon, &horizonReasoning, &horizonConfidence, &horizonCategory,
		&metaJSON,
	}
	err := row.Scan(append(dest, extra...)...)
	if err != nil {
		return nil, err
	}

	c.Tier = memory.Tier(tier)
	c.Summary = summary.String
	c.Category = category.String
	c.Person = person.String
	c.CreatedAt = time.UnixMilli(createdAt).UTC()
	c.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	c.PromotedAt = timePtr(promotedAt)
	c.ExpiresAt = timePtr(expiresAt)
	c.RelevanceHorizon = timePtr(relevanceHorizon)
	c.HorizonReasoning = horizonReasoning.String
	c.HorizonCategory = memory.HorizonCategory(horizonCategory.String)
	if horizonConfidence.Valid {
		c.HorizonConfidence = horizonConfidence.Float64
	}
	if tagsJSON.Valid && tagsJSON.String != "" {
		if err := json.Unmarshal([]byte(tagsJSON.String), &c.Tags); err != nil {
			return nil, fmt.Errorf("unmarshal tags: %w", err)
		}
	}
	if metaJSON.Valid && metaJSON.String != "" {
		if err := json.Unmarshal([]byte(metaJSON.String), &c.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}
	if accessCount > 0 {
		if c.Metadata == nil {
			c.Metadata = map[string]any{}
		}
		c.Metadata["access_count"] = accessCount
	}
	return &c, nil
}

func marshalMetadata(meta map[string]any) (any, error) {
	if len(meta) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}
	return string(b), nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullFloat(f float64) any {
	if f == 0 {
		return nil
	}
	return f
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UnixMilli()
}

func timePtr(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.UnixMilli(v.Int64).UTC()
	return &t
}

func inArgs(ids []string) (string, []any) {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return strings.TrimSuffix(strings.Repeat("?,", len(ids)), ","), args
}
