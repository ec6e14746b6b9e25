package store

import (
	"context"
	"fmt"
	"sync"

	chromem "github.com/philippgille/chromem-go"

	"github.com/stratamem/strata/internal/vecmath"
)

// chromemIndex backs the vector index with an embedded chromem-go
// collection. Persistent stores keep it in a directory next to the database
// file; in-memory stores use a transient collection.
type chromemIndex struct {
	db  *chromem.DB
	col *chromem.Collection
	mu  sync.Mutex
}

func newChromemIndex(cfg Config) (*chromemIndex, error) {
	var (
		db  *chromem.DB
		err error
	)
	if cfg.Path == MemoryPath {
		db = chromem.NewDB()
	} else {
		db, err = chromem.NewPersistentDB(cfg.Path+".vectors", false)
		if err != nil {
			return nil, fmt.Errorf("open chromem db: %w", err)
		}
	}

	// No embedding func: the store always supplies precomputed vectors.
	col, err := db.GetOrCreateCollection("chunks", nil, nil)
	if err != nil {
		return nil, fmt.Errorf("create chromem collection: %w", err)
	}

	return &chromemIndex{db: db, col: col}, nil
}

func (x *chromemIndex) Upsert(ctx context.Context, chunkID string, vec []float32) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	// AddDocument does not replace; drop any prior vector for this id first.
	_ = x.col.Delete(ctx, nil, nil, chunkID)

	err := x.col.AddDocument(ctx, chromem.Document{
		ID:        chunkID,
		Content:   chunkID, // content lives in SQLite; chromem only needs a non-empty doc
		Embedding: vec,
	})
	if err != nil {
		return fmt.Errorf("chromem add: %w", err)
	}
	return nil
}

func (x *chromemIndex) Delete(ctx context.Context, chunkID string) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	if err := x.col.Delete(ctx, nil, nil, chunkID); err != nil {
		return fmt.Errorf("chromem delete: %w", err)
	}
	return nil
}

func (x *chromemIndex) Search(ctx context.Context, query []float32, limit int) ([]vectorMatch, error) {
	x.mu.Lock()
	defer x.mu.Unlock()

	n := limit
	if count := x.col.Count(); n > count {
		n = count
	}
	if n <= 0 {
		return nil, nil
	}

	results, err := x.col.QueryEmbedding(ctx, query, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem query: %w", err)
	}

	matches := make([]vectorMatch, 0, len(results))
	for _, r := range results {
		matches = append(matches, vectorMatch{
			ChunkID: r.ID,
			Score:   vecmath.SimilarityScore(float64(r.Similarity)),
		})
	}
	return matches, nil
}

func (x *chromemIndex) Close() error { return nil }
