// Package server exposes the memory store over a local HTTP API. It is a
// thin reference surface: agents embed the store directly, tooling and
// debugging go through here.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/stratamem/strata/internal/embedding"
	"github.com/stratamem/strata/internal/lifecycle"
	"github.com/stratamem/strata/internal/memory"
	"github.com/stratamem/strata/internal/store"
	"github.com/stratamem/strata/internal/tagembed"
)

// Server is the strata HTTP API server.
type Server struct {
	store      *store.MemoryStore
	embedder   embedding.Embedder // nil when no provider is configured
	tags       *tagembed.Manager  // nil when embedder is nil
	maintainer *lifecycle.Maintainer
	router     chi.Router
	version    string
	started    time.Time
}

// New creates a Server. Embedder and tags may be nil; the semantic routes
// then answer 503.
func New(st *store.MemoryStore, emb embedding.Embedder, tags *tagembed.Manager, maint *lifecycle.Maintainer, version string) *Server {
	s := &Server{
		store:      st,
		embedder:   emb,
		tags:       tags,
		maintainer: maint,
		version:    version,
		started:    time.Now(),
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Post("/chunks", s.handleInsertChunk)
		r.Get("/chunks/{chunkID}", s.handleGetChunk)
		r.Patch("/chunks/{chunkID}", s.handleUpdateChunk)
		r.Delete("/chunks/{chunkID}", s.handleDeleteChunk)
		r.Post("/chunks/{chunkID}/promote", s.handlePromoteChunk)

		r.Get("/search", s.handleSearch)
		r.Get("/tiers/{tier}", s.handleListTier)
		r.Get("/people/{person}", s.handleListPerson)

		r.Get("/tags/search", s.handleTagSearch)
		r.Post("/tags/embed", s.handleTagSweep)

		r.Get("/stats", s.handleStats)
		r.Post("/maintenance", s.handleMaintenance)
		r.Get("/maintenance/last", s.handleLastMaintenance)
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	dbOK := s.store.Ping() == nil

	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
		"uptime":  time.Since(s.started).Seconds(),
		"db":      dbOK,
		"db_path": s.store.Path(),
	})
}

// embed computes the embedding for a chunk's searchable text, or nil when
// no provider is configured. Embedding failures degrade to text-only
// indexing rather than failing the write.
func (s *Server) embed(ctx context.Context, text string) []float32 {
	if s.embedder == nil || text == "" {
		return nil
	}
	vec, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return nil
	}
	return vec
}

// embedTags makes a chunk's tags semantically searchable right after a
// write. Best-effort: a provider failure leaves the tags for the next
// catch-up sweep, it never fails the request.
func (s *Server) embedTags(ctx context.Context, ts memory.TagSet) {
	if s.tags == nil || ts.IsEmpty() {
		return
	}
	if _, err := s.tags.EmbedTagSet(ctx, ts, false); err != nil {
		log.Warn().Err(err).Msg("embed chunk tags")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
