package store

import (
	"context"
	"testing"

	"github.com/stratamem/strata/internal/memory"
)

func TestFullTextSearch(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	insertChunk(t, s, &memory.Chunk{Content: "the database migration ran clean on staging"}, nil)
	insertChunk(t, s, &memory.Chunk{Content: "lunch order was thai food again"}, nil)

	results, err := s.FullTextSearch(ctx, "database migration", SearchOptions{})
	if err != nil {
		t.Fatalf("FullTextSearch: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	if results[0].Score <= 0 || results[0].Score > 1 {
		t.Errorf("score = %v, want in (0,1]", results[0].Score)
	}
}

func TestFullTextSearchStemming(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	insertChunk(t, s, &memory.Chunk{Content: "deploying new services every friday"}, nil)

	// Porter stemming: "deploy" matches "deploying".
	results, err := s.FullTextSearch(ctx, "deploy", SearchOptions{})
	if err != nil {
		t.Fatalf("FullTextSearch: %v", err)
	}
	if len(results) != 1 {
		t.Errorf("got %d results, want 1", len(results))
	}
}

func TestFullTextSearchMatchesTags(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	insertChunk(t, s, &memory.Chunk{
		Content: "notes from the architecture sync",
		Tags:    memory.TagSet{Projects: []string{"atlas"}},
	}, nil)

	results, err := s.FullTextSearch(ctx, "atlas", SearchOptions{})
	if err != nil {
		t.Fatalf("FullTextSearch: %v", err)
	}
	if len(results) != 1 {
		t.Errorf("tag search got %d results, want 1", len(results))
	}
}

func TestFullTextSearchReindexOnUpdate(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	id := insertChunk(t, s, &memory.Chunk{Content: "original keyword zebra"}, nil)

	newContent := "replacement keyword giraffe"
	if err := s.Update(ctx, id, ChunkPatch{Content: &newContent}, nil); err != nil {
		t.Fatalf("Update: %v", err)
	}

	stale, err := s.FullTextSearch(ctx, "zebra", SearchOptions{})
	if err != nil {
		t.Fatalf("FullTextSearch: %v", err)
	}
	if len(stale) != 0 {
		t.Errorf("old content still searchable: %d results", len(stale))
	}
	fresh, err := s.FullTextSearch(ctx, "giraffe", SearchOptions{})
	if err != nil {
		t.Fatalf("FullTextSearch: %v", err)
	}
	if len(fresh) != 1 {
		t.Errorf("new content got %d results, want 1", len(fresh))
	}
}

func TestFullTextSearchFilters(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	insertChunk(t, s, &memory.Chunk{Content: "budget review notes", Person: "kim", Tier: memory.TierWorking}, nil)
	insertChunk(t, s, &memory.Chunk{Content: "budget review notes", Person: "lee"}, nil)

	results, err := s.FullTextSearch(ctx, "budget", SearchOptions{Person: "kim"})
	if err != nil {
		t.Fatalf("FullTextSearch: %v", err)
	}
	if len(results) != 1 || results[0].Chunk.Person != "kim" {
		t.Errorf("person filter: got %d results", len(results))
	}

	results, err = s.FullTextSearch(ctx, "budget", SearchOptions{Tier: memory.TierWorking})
	if err != nil {
		t.Fatalf("FullTextSearch: %v", err)
	}
	if len(results) != 1 || results[0].Chunk.Tier != memory.TierWorking {
		t.Errorf("tier filter: got %d results", len(results))
	}
}

func TestFullTextSearchQuotedInput(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	insertChunk(t, s, &memory.Chunk{Content: "weird characters happen"}, nil)

	// Hostile match syntax must not error.
	if _, err := s.FullTextSearch(ctx, `"unbalanced AND (NOT`, SearchOptions{}); err != nil {
		t.Errorf("FullTextSearch with hostile input: %v", err)
	}
}

func TestSemanticSearch(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	a := insertChunk(t, s, &memory.Chunk{Content: "vectors about go"}, []float32{1, 0, 0})
	insertChunk(t, s, &memory.Chunk{Content: "vectors about cooking"}, []float32{0, 1, 0})

	results, err := s.SemanticSearch(ctx, []float32{1, 0, 0}, SearchOptions{Limit: 1})
	if err != nil {
		t.Fatalf("SemanticSearch: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	if results[0].Chunk.ID != a {
		t.Errorf("top result = %s, want %s", results[0].Chunk.ID, a)
	}
	if results[0].Score < 0.99 {
		t.Errorf("identical vector scored %v, want ~1.0", results[0].Score)
	}
}

func TestSemanticSearchFilter(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	insertChunk(t, s, &memory.Chunk{Content: "a", Person: "kim"}, []float32{1, 0})
	b := insertChunk(t, s, &memory.Chunk{Content: "b", Person: "lee"}, []float32{0.9, 0.1})

	results, err := s.SemanticSearch(ctx, []float32{1, 0}, SearchOptions{Person: "lee"})
	if err != nil {
		t.Fatalf("SemanticSearch: %v", err)
	}
	if len(results) != 1 || results[0].Chunk.ID != b {
		t.Errorf("person filter: %+v", results)
	}
}

func TestHybridSearchBothPathsWin(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	// A matches the keyword and the vector; B only the vector.
	a := insertChunk(t, s, &memory.Chunk{Content: "goroutine scheduling and concurrency"}, []float32{1, 0})
	b := insertChunk(t, s, &memory.Chunk{Content: "favorite soup recipes"}, []float32{0.95, 0.05})

	results, err := s.HybridSearch(ctx, "concurrency", []float32{1, 0}, SearchOptions{})
	if err != nil {
		t.Fatalf("HybridSearch: %v", err)
	}
	if len(results) < 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if results[0].Chunk.ID != a {
		t.Errorf("top result = %s, want the both-paths chunk %s", results[0].Chunk.ID, a)
	}
	if results[1].Chunk.ID != b {
		t.Errorf("second result = %s, want %s", results[1].Chunk.ID, b)
	}
	if results[0].Score <= results[1].Score {
		t.Errorf("scores not descending: %v <= %v", results[0].Score, results[1].Score)
	}
}

func TestHybridSearchTextOnly(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	insertChunk(t, s, &memory.Chunk{Content: "release checklist for the api gateway"}, nil)

	// No query embedding: hybrid degrades to the text path.
	results, err := s.HybridSearch(ctx, "checklist", nil, SearchOptions{})
	if err != nil {
		t.Fatalf("HybridSearch: %v", err)
	}
	if len(results) != 1 {
		t.Errorf("got %d results, want 1", len(results))
	}
}

func TestSearchEmptyQuery(t *testing.T) {
	s := testStore(t)
	results, err := s.FullTextSearch(context.Background(), "   ", SearchOptions{})
	if err != nil {
		t.Fatalf("FullTextSearch: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("empty query returned %d results", len(results))
	}
}

func TestFullTextSearchWithoutFTS(t *testing.T) {
	cfg := DefaultConfig(MemoryPath)
	cfg.EnableFTS = false
	s, err := Open(cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	ctx := context.Background()

	insertChunk(t, s, &memory.Chunk{Content: "weekly sync moved to Tuesdays"}, nil)
	insertChunk(t, s, &memory.Chunk{Content: "nothing relevant"}, nil)

	// FTS off is not an error: the text path degrades to substring match.
	results, err := s.FullTextSearch(ctx, "tuesdays", SearchOptions{})
	if err != nil {
		t.Fatalf("FullTextSearch: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	if results[0].Score != 0.5 {
		t.Errorf("substring fallback score = %v, want 0.5", results[0].Score)
	}
}

func TestUpdateContentDropsStaleVector(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	id := insertChunk(t, s, &memory.Chunk{Content: "likes hiking"}, []float32{1, 0, 0})

	results, err := s.SemanticSearch(ctx, []float32{1, 0, 0}, SearchOptions{})
	if err != nil {
		t.Fatalf("SemanticSearch: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d results before update, want 1", len(results))
	}

	// New content, no replacement embedding: the old vector must not keep
	// the chunk retrievable under its previous meaning.
	content := "allergic to shellfish"
	if err := s.Update(ctx, id, ChunkPatch{Content: &content}, nil); err != nil {
		t.Fatalf("Update: %v", err)
	}

	results, err = s.SemanticSearch(ctx, []float32{1, 0, 0}, SearchOptions{})
	if err != nil {
		t.Fatalf("SemanticSearch after update: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("stale vector still matches: %+v", results)
	}

	// A non-content patch leaves an existing vector alone.
	id2 := insertChunk(t, s, &memory.Chunk{Content: "steady"}, []float32{0, 1, 0})
	conf := 0.4
	if err := s.Update(ctx, id2, ChunkPatch{Confidence: &conf}, nil); err != nil {
		t.Fatalf("Update confidence: %v", err)
	}
	results, err = s.SemanticSearch(ctx, []float32{0, 1, 0}, SearchOptions{})
	if err != nil {
		t.Fatalf("SemanticSearch: %v", err)
	}
	if len(results) != 1 || results[0].Chunk.ID != id2 {
		t.Errorf("non-content patch disturbed the vector: %+v", results)
	}
}
