// Package store implements the persistent chunk store: durable CRUD,
// full-text and vector retrieval, tag embeddings, and the tier lifecycle
// primitives (promote, decay, expiry, vacuum) over a single SQLite file.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	_ "modernc.org/sqlite"
)

// MemoryPath is the Config.Path sentinel for a non-persistent store.
const MemoryPath = ":memory:"

// Vector index backends.
const (
	BackendSQLite  = "sqlite"
	BackendChromem = "chromem"
)

// Config controls how a MemoryStore is opened.
type Config struct {
	// Path is the SQLite database file, or MemoryPath for an in-memory
	// instance (used by tests).
	Path string

	// EmbeddingDims is the vector width agreed with the embedding provider.
	EmbeddingDims int

	// EnableFTS enables the full-text index over content/summary/tags.
	EnableFTS bool

	// EnableVector enables the vector index over chunk embeddings.
	EnableVector bool

	// VectorBackend selects where vectors live: BackendSQLite keeps them as
	// BLOBs in the database file, BackendChromem uses an embedded chromem-go
	// collection beside it.
	VectorBackend string
}

// DefaultConfig returns a Config with the standard defaults for path.
func DefaultConfig(path string) Config {
	return Config{
		Path:          path,
		EmbeddingDims: 384,
		EnableFTS:     true,
		EnableVector:  true,
		VectorBackend: BackendSQLite,
	}
}

// DefaultDBPath returns the default database path: ~/.strata/strata.db
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	return filepath.Join(home, ".strata", "strata.db"), nil
}

// MemoryStore owns the persistent table of chunks and its indexes.
//
// Reads are safe to interleave; writes are serialized at store granularity
// by writeMu — the right tradeoff for a personal-scale memory store.
type MemoryStore struct {
	db      *sql.DB
	cfg     Config
	vectors vectorIndex // nil when EnableVector is false

	writeMu sync.Mutex
	closed  atomic.Bool
}

// Open opens (or creates) the store at cfg.Path, configures pragmas, runs
// migrations, and initializes the configured indexes. It is the only
// constructor path.
func Open(cfg Config) (*MemoryStore, error) {
	if cfg.EmbeddingDims <= 0 {
		cfg.EmbeddingDims = 384
	}
	if cfg.VectorBackend == "" {
		cfg.VectorBackend = BackendSQLite
	}

	if cfg.Path != MemoryPath {
		dir := filepath.Dir(cfg.Path)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	sqlDB, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if cfg.Path == MemoryPath {
		// Every pooled connection would otherwise see its own empty
		// in-memory database.
		sqlDB.SetMaxOpenConns(1)
	}

	s := &MemoryStore{db: sqlDB, cfg: cfg}
	if err := s.configurePragmas(); err != nil {
		sqlDB.Close()
		return nil, err
	}
	if err := s.migrate(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	if cfg.EnableFTS {
		if err := s.initFTS(); err != nil {
			sqlDB.Close()
			return nil, fmt.Errorf("init fts: %w", err)
		}
	}
	if cfg.EnableVector {
		idx, err := newVectorIndex(cfg, sqlDB)
		if err != nil {
			sqlDB.Close()
			return nil, fmt.Errorf("init vector index: %w", err)
		}
		s.vectors = idx
	}
	return s, nil
}

// OpenMemory opens a non-persistent store with indexes enabled, for tests.
func OpenMemory() (*MemoryStore, error) {
	return Open(DefaultConfig(MemoryPath))
}

func (s *MemoryStore) configurePragmas() error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := s.db.Exec(p); err != nil {
			return fmt.Errorf("pragma %q: %w", p, err)
		}
	}
	return nil
}

// Path returns the configured database path.
func (s *MemoryStore) Path() string { return s.cfg.Path }

// Ping checks the underlying database connection.
func (s *MemoryStore) Ping() error {
	if err := s.guard(); err != nil {
		return err
	}
	return s.db.Ping()
}

// Close releases resources. Subsequent operations fail with ErrClosed.
// Close is idempotent.
func (s *MemoryStore) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	if s.vectors != nil {
		s.vectors.Close()
	}
	return s.db.Close()
}

// guard rejects operations on a closed store.
func (s *MemoryStore) guard() error {
	if s.closed.Load() {
		return ErrClosed
	}
	return nil
}
