package store

import (
	"context"
	"testing"
	"time"

	"github.com/stratamem/strata/internal/memory"
)

func TestStats(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	insertChunk(t, s, &memory.Chunk{Content: "a", Category: "fact", Person: "kim"}, nil)
	insertChunk(t, s, &memory.Chunk{Content: "b", Category: "fact", Tier: memory.TierLongTerm}, nil)
	past := time.Now().UTC().Add(-time.Minute)
	insertChunk(t, s, &memory.Chunk{Content: "c", ExpiresAt: &past}, nil)
	s.PutTagEmbedding(ctx, "x", memory.DimConcepts, []float32{1}, false)

	stats, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}

	// Counts are physical: the expired-but-unswept chunk is included.
	if stats.TotalChunks != 3 {
		t.Errorf("TotalChunks = %d, want 3", stats.TotalChunks)
	}
	if stats.ByTier["short_term"] != 2 || stats.ByTier["long_term"] != 1 {
		t.Errorf("ByTier = %v", stats.ByTier)
	}
	if stats.ByCategory["fact"] != 2 {
		t.Errorf("ByCategory = %v", stats.ByCategory)
	}
	if stats.ByPerson["kim"] != 1 {
		t.Errorf("ByPerson = %v", stats.ByPerson)
	}
	if stats.TagEmbeddings != 1 {
		t.Errorf("TagEmbeddings = %d, want 1", stats.TagEmbeddings)
	}
	if stats.OldestChunk == nil || stats.NewestChunk == nil {
		t.Error("age range not populated")
	}
	if stats.SchemaVersion != 4 {
		t.Errorf("SchemaVersion = %d, want 4", stats.SchemaVersion)
	}
}

func TestStatsEmpty(t *testing.T) {
	s := testStore(t)
	stats, err := s.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.TotalChunks != 0 || stats.OldestChunk != nil {
		t.Errorf("empty stats = %+v", stats)
	}
}

func TestVacuum(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	id := insertChunk(t, s, &memory.Chunk{Content: "bulk"}, nil)
	if err := s.Delete(ctx, id); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := s.Vacuum(ctx); err != nil {
		t.Fatalf("Vacuum: %v", err)
	}
}

func TestMaintenanceRunLog(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	if run, err := s.LastMaintenanceRun(ctx); err != nil || run != nil {
		t.Fatalf("LastMaintenanceRun empty = %v, %v", run, err)
	}

	started := time.Now().UTC().Add(-time.Second).Truncate(time.Millisecond)
	finished := time.Now().UTC().Truncate(time.Millisecond)
	id, err := s.RecordMaintenanceRun(ctx, MaintenanceRun{
		StartedAt:  started,
		FinishedAt: finished,
		Decayed:    3,
		Promoted:   1,
		Errors:     []string{"one thing failed"},
	})
	if err != nil {
		t.Fatalf("RecordMaintenanceRun: %v", err)
	}
	if id == "" {
		t.Fatal("no run id assigned")
	}

	run, err := s.LastMaintenanceRun(ctx)
	if err != nil {
		t.Fatalf("LastMaintenanceRun: %v", err)
	}
	if run.ID != id || run.Decayed != 3 || run.Promoted != 1 {
		t.Errorf("run = %+v", run)
	}
	if !run.StartedAt.Equal(started) || !run.FinishedAt.Equal(finished) {
		t.Errorf("timestamps = %v / %v", run.StartedAt, run.FinishedAt)
	}
	if len(run.Errors) != 1 {
		t.Errorf("errors = %v", run.Errors)
	}
}
