package store

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/stratamem/strata/internal/memory"
)

// SearchOptions narrows a search to a tier, person, or category. A zero
// value means no filtering. Limit defaults to 10.
type SearchOptions struct {
	Tier     memory.Tier
	Person   string
	Category string
	Limit    int
}

func (o SearchOptions) limit() int {
	if o.Limit <= 0 {
		return 10
	}
	return o.Limit
}

func (o SearchOptions) match(c *memory.Chunk) bool {
	if o.Tier != "" && c.Tier != o.Tier {
		return false
	}
	if o.Person != "" && c.Person != o.Person {
		return false
	}
	if o.Category != "" && c.Category != o.Category {
		return false
	}
	return true
}

// ScoredChunk is a search result: a chunk and its relevance score in [0,1]
// (hybrid scores may exceed 1 when both paths agree).
type ScoredChunk struct {
	Chunk *memory.Chunk `json:"chunk"`
	Score float64       `json:"score"`
}

// Hybrid fusion weights. The vector path dominates, but a strong text match
// still surfaces exact-keyword hits that embeddings miss.
const (
	hybridVectorWeight = 0.7
	hybridTextWeight   = 0.3
)

// FullTextSearch finds chunks by keyword relevance over content, summary,
// and tags. With the FTS index disabled it degrades to substring matching.
func (s *MemoryStore) FullTextSearch(ctx context.Context, query string, opts SearchOptions) ([]ScoredChunk, error) {
	if err := s.guard(); err != nil {
		return nil, err
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	if !s.cfg.EnableFTS {
		return s.likeSearch(ctx, query, opts)
	}

	results, err := s.ftsSearch(ctx, ftsQuote(query), opts)
	if err == nil && len(results) == 0 {
		// Phrase miss: retry as an OR of individual keywords.
		if or := ftsKeywords(query); or != "" {
			results, err = s.ftsSearch(ctx, or, opts)
		}
	}
	if err != nil {
		// Malformed match expressions should not kill the search.
		return s.likeSearch(ctx, query, opts)
	}
	return results, nil
}

func (s *MemoryStore) ftsSearch(ctx context.Context, match string, opts SearchOptions) ([]ScoredChunk, error) {
	sql := `
		SELECT ` + prefixed(chunkColumns, "c.") + `, f.rank
		FROM chunk_fts f
		JOIN chunks c ON c.id = f.chunk_id
		WHERE chunk_fts MATCH ?`
	args := []any{match}
	sql, args = appendFilters(sql, args, opts)
	sql += " ORDER BY f.rank LIMIT ?"
	args = append(args, opts.limit())

	rows, err := s.db.QueryContext(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("fts search: %w", err)
	}
	defer rows.Close()

	var results []ScoredChunk
	for rows.Next() {
		c, rank, err := scanChunkRank(rows)
		if err != nil {
			return nil, err
		}
		// BM25 rank is more negative for better matches; fold it onto (0,1].
		results = append(results, ScoredChunk{Chunk: c, Score: 1.0 / (1.0 + math.Abs(rank))})
	}
	return results, rows.Err()
}

// likeSearch is the degraded text path: case-insensitive substring match
// with a flat score.
func (s *MemoryStore) likeSearch(ctx context.Context, query string, opts SearchOptions) ([]ScoredChunk, error) {
	pattern := "%" + strings.ToLower(query) + "%"
	sql := `
		SELECT ` + chunkColumns + ` FROM chunks c
		WHERE (LOWER(content) LIKE ? OR LOWER(summary) LIKE ? OR LOWER(tags) LIKE ?)`
	args := []any{pattern, pattern, pattern}
	sql, args = appendFilters(sql, args, opts)
	sql += " ORDER BY updated_at DESC LIMIT ?"
	args = append(args, opts.limit())

	chunks, err := s.queryChunks(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("like search: %w", err)
	}
	results := make([]ScoredChunk, 0, len(chunks))
	for _, c := range chunks {
		results = append(results, ScoredChunk{Chunk: c, Score: 0.5})
	}
	return results, nil
}

// SemanticSearch finds chunks nearest to the query embedding, scored by
// cosine similarity mapped onto [0,1]. Returns ErrVectorDisabled when the
// store was opened without a vector index.
func (s *MemoryStore) SemanticSearch(ctx context.Context, embedding []float32, opts SearchOptions) ([]ScoredChunk, error) {
	if err := s.guard(); err != nil {
		return nil, err
	}
	if s.vectors == nil {
		return nil, ErrVectorDisabled
	}
	if len(embedding) == 0 {
		return nil, nil
	}

	limit := opts.limit()
	// Over-fetch so post-filtering by tier/person/category can still fill
	// the page.
	matches, err := s.vectors.Search(ctx, embedding, limit*4)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, nil
	}

	ids := make([]string, len(matches))
	for i, m := range matches {
		ids[i] = m.ChunkID
	}
	byID, err := s.chunksByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	var results []ScoredChunk
	for _, m := range matches {
		c, ok := byID[m.ChunkID]
		if !ok || !opts.match(c) {
			continue
		}
		results = append(results, ScoredChunk{Chunk: c, Score: m.Score})
		if len(results) == limit {
			break
		}
	}
	return results, nil
}

// HybridSearch fuses the text and vector paths with reciprocal-rank
// scoring: each path contributes weight/rank for the chunks it found, so a
// chunk ranked well by both always beats one found by a single path at the
// same ranks. Either path being unavailable degrades to the other.
func (s *MemoryStore) HybridSearch(ctx context.Context, query string, embedding []float32, opts SearchOptions) ([]ScoredChunk, error) {
	if err := s.guard(); err != nil {
		return nil, err
	}

	wide := opts
	wide.Limit = opts.limit() * 2

	textResults, err := s.FullTextSearch(ctx, query, wide)
	if err != nil {
		return nil, err
	}

	var vecResults []ScoredChunk
	if s.vectors != nil && len(embedding) > 0 {
		vecResults, err = s.SemanticSearch(ctx, embedding, wide)
		if err != nil {
			return nil, err
		}
	}

	type fused struct {
		chunk *memory.Chunk
		score float64
	}
	merged := make(map[string]*fused)
	fuse := func(results []ScoredChunk, weight float64) {
		for rank, r := range results {
			f, ok := merged[r.Chunk.ID]
			if !ok {
				f = &fused{chunk: r.Chunk}
				merged[r.Chunk.ID] = f
			}
			f.score += weight / float64(rank+1)
		}
	}
	fuse(vecResults, hybridVectorWeight)
	fuse(textResults, hybridTextWeight)

	results := make([]ScoredChunk, 0, len(merged))
	for _, f := range merged {
		results = append(results, ScoredChunk{Chunk: f.chunk, Score: f.score})
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Chunk.ID < results[j].Chunk.ID
	})
	if limit := opts.limit(); len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func appendFilters(sql string, args []any, opts SearchOptions) (string, []any) {
	if opts.Tier != "" {
		sql += " AND c.tier = ?"
		args = append(args, string(opts.Tier))
	}
	if opts.Person != "" {
		sql += " AND c.person = ?"
		args = append(args, opts.Person)
	}
	if opts.Category != "" {
		sql += " AND c.category = ?"
		args = append(args, opts.Category)
	}
	return sql, args
}

func scanChunkRank(rows scanner) (*memory.Chunk, float64, error) {
	var rank float64
	c, err := scanChunk(rows, &rank)
	return c, rank, err
}

// ftsQuote wraps the query as a quoted FTS5 phrase, stripping embedded
// quotes so user input cannot break the match expression.
func ftsQuote(query string) string {
	return `"` + strings.ReplaceAll(query, `"`, " ") + `"`
}

// ftsKeywords turns free text into an OR expression of quoted terms.
func ftsKeywords(query string) string {
	fields := strings.Fields(strings.ReplaceAll(query, `"`, " "))
	if len(fields) == 0 {
		return ""
	}
	terms := make([]string, len(fields))
	for i, f := range fields {
		terms[i] = `"` + f + `"`
	}
	return strings.Join(terms, " OR ")
}

func prefixed(columns, prefix string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		parts[i] = prefix + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}
