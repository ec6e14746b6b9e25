package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/stratamem/strata/internal/vecmath"
)

// vectorMatch is one nearest-neighbor candidate from a vector index.
type vectorMatch struct {
	ChunkID string
	// Score is the cosine similarity mapped onto [0,1].
	Score float64
}

// vectorIndex abstracts where chunk embeddings live. The default keeps them
// as BLOBs inside the SQLite file so deletes stay in one database; the
// chromem backend trades that for an embedded vector collection.
type vectorIndex interface {
	Upsert(ctx context.Context, chunkID string, vec []float32) error
	Delete(ctx context.Context, chunkID string) error
	// Search returns up to limit candidates ordered by score descending.
	// Tier/person/category filtering happens above the index.
	Search(ctx context.Context, query []float32, limit int) ([]vectorMatch, error)
	Close() error
}

func newVectorIndex(cfg Config, db *sql.DB) (vectorIndex, error) {
	switch cfg.VectorBackend {
	case BackendSQLite:
		return &sqliteVectorIndex{db: db}, nil
	case BackendChromem:
		return newChromemIndex(cfg)
	default:
		return nil, fmt.Errorf("unknown vector backend %q", cfg.VectorBackend)
	}
}

// encodeEmbedding converts a []float32 to a binary BLOB (4 bytes per value).
func encodeEmbedding(vec []float32) []byte {
	buf := make([]byte, len(vec)*4)
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

// decodeEmbedding converts a binary BLOB back to []float32.
func decodeEmbedding(buf []byte) []float32 {
	n := len(buf) / 4
	vec := make([]float32, n)
	for i := 0; i < n; i++ {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return vec
}

// sqliteVectorIndex stores embeddings in the chunk_vectors table and scores
// candidates by brute-force cosine similarity in Go. At personal-memory
// scale a full scan beats maintaining an ANN structure.
type sqliteVectorIndex struct {
	db *sql.DB
}

func (x *sqliteVectorIndex) Upsert(ctx context.Context, chunkID string, vec []float32) error {
	now := time.Now().UnixMilli()
	blob := encodeEmbedding(vec)

	_, err := x.db.ExecContext(ctx, `
		INSERT INTO chunk_vectors (chunk_id, embedding, dimensions, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(chunk_id) DO UPDATE SET embedding = excluded.embedding,
			dimensions = excluded.dimensions, created_at = excluded.created_at
	`, chunkID, blob, len(vec), now)
	if err != nil {
		return fmt.Errorf("save vector: %w", err)
	}
	return nil
}

func (x *sqliteVectorIndex) Delete(ctx context.Context, chunkID string) error {
	_, err := x.db.ExecContext(ctx, "DELETE FROM chunk_vectors WHERE chunk_id = ?", chunkID)
	if err != nil {
		return fmt.Errorf("delete vector: %w", err)
	}
	return nil
}

func (x *sqliteVectorIndex) Search(ctx context.Context, query []float32, limit int) ([]vectorMatch, error) {
	rows, err := x.db.QueryContext(ctx, "SELECT chunk_id, embedding FROM chunk_vectors")
	if err != nil {
		return nil, fmt.Errorf("load vectors: %w", err)
	}
	defer rows.Close()

	var matches []vectorMatch
	for rows.Next() {
		var id string
		var blob []byte
		if err := rows.Scan(&id, &blob); err != nil {
			return nil, fmt.Errorf("scan vector: %w", err)
		}
		cos := vecmath.Cosine(query, decodeEmbedding(blob))
		matches = append(matches, vectorMatch{ChunkID: id, Score: vecmath.SimilarityScore(cos)})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

func (x *sqliteVectorIndex) Close() error { return nil }
