package store

import (
	"context"
	"fmt"
	"os"
	"time"
)

// Stats is a point-in-time summary of the store. Counts reflect physical
// rows: chunks past their expiry but not yet swept are still included.
type Stats struct {
	TotalChunks   int            `json:"total_chunks"`
	ByTier        map[string]int `json:"by_tier"`
	ByCategory    map[string]int `json:"by_category"`
	ByPerson      map[string]int `json:"by_person"`
	TagEmbeddings int            `json:"tag_embeddings"`
	OldestChunk   *time.Time     `json:"oldest_chunk,omitempty"`
	NewestChunk   *time.Time     `json:"newest_chunk,omitempty"`
	DBSizeBytes   int64          `json:"db_size_bytes"`
	SchemaVersion int            `json:"schema_version"`
}

// Stats computes store-wide counters and sizes.
func (s *MemoryStore) Stats(ctx context.Context) (*Stats, error) {
	if err := s.guard(); err != nil {
		return nil, err
	}

	st := &Stats{
		ByTier:     map[string]int{},
		ByCategory: map[string]int{},
		ByPerson:   map[string]int{},
	}

	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM chunks").Scan(&st.TotalChunks); err != nil {
		return nil, fmt.Errorf("count chunks: %w", err)
	}
	if err := s.countGroup(ctx, "tier", st.ByTier); err != nil {
		return nil, err
	}
	if err := s.countGroup(ctx, "category", st.ByCategory); err != nil {
		return nil, err
	}
	if err := s.countGroup(ctx, "person", st.ByPerson); err != nil {
		return nil, err
	}
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM tag_embeddings").Scan(&st.TagEmbeddings); err != nil {
		return nil, fmt.Errorf("count tag embeddings: %w", err)
	}

	var oldest, newest *int64
	err := s.db.QueryRowContext(ctx, "SELECT MIN(created_at), MAX(created_at) FROM chunks").Scan(&oldest, &newest)
	if err != nil {
		return nil, fmt.Errorf("chunk age range: %w", err)
	}
	if oldest != nil {
		t := time.UnixMilli(*oldest).UTC()
		st.OldestChunk = &t
	}
	if newest != nil {
		t := time.UnixMilli(*newest).UTC()
		st.NewestChunk = &t
	}

	if s.cfg.Path == MemoryPath {
		var pages, pageSize int64
		s.db.QueryRowContext(ctx, "PRAGMA page_count").Scan(&pages)
		s.db.QueryRowContext(ctx, "PRAGMA page_size").Scan(&pageSize)
		st.DBSizeBytes = pages * pageSize
	} else if info, err := os.Stat(s.cfg.Path); err == nil {
		st.DBSizeBytes = info.Size()
	}

	if v, err := s.SchemaVersion(); err == nil {
		st.SchemaVersion = v
	}
	return st, nil
}

func (s *MemoryStore) countGroup(ctx context.Context, column string, out map[string]int) error {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+column+", COUNT(*) FROM chunks WHERE "+column+" IS NOT NULL AND "+column+" != '' GROUP BY "+column)
	if err != nil {
		return fmt.Errorf("count by %s: %w", column, err)
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var n int
		if err := rows.Scan(&key, &n); err != nil {
			return err
		}
		out[key] = n
	}
	return rows.Err()
}

// Vacuum reclaims free pages in the database file. Write-heavy lifecycle
// passes call this after bulk deletion.
func (s *MemoryStore) Vacuum(ctx context.Context) error {
	if err := s.guard(); err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if _, err := s.db.ExecContext(ctx, "VACUUM"); err != nil {
		return fmt.Errorf("vacuum: %w", err)
	}
	return nil
}
