package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/stratamem/strata/internal/memory"
	"github.com/stratamem/strata/internal/store"
	"github.com/stratamem/strata/internal/tagembed"
)

func (s *Server) handleInsertChunk(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Tier       memory.Tier    `json:"tier"`
		Content    string         `json:"content"`
		Summary    string         `json:"summary"`
		Category   string         `json:"category"`
		Person     string         `json:"person"`
		Tags       memory.TagSet  `json:"tags"`
		Confidence float64        `json:"confidence"`
		ExpiresAt  *time.Time     `json:"expires_at"`
		Metadata   map[string]any `json:"metadata"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Content == "" {
		writeError(w, http.StatusBadRequest, "content required")
		return
	}

	c := &memory.Chunk{
		Tier:       req.Tier,
		Content:    req.Content,
		Summary:    req.Summary,
		Category:   req.Category,
		Person:     req.Person,
		Tags:       req.Tags,
		Confidence: req.Confidence,
		ExpiresAt:  req.ExpiresAt,
		Metadata:   req.Metadata,
	}

	if _, err := s.store.Insert(r.Context(), c, s.embed(r.Context(), req.Content)); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.embedTags(r.Context(), c.Tags)
	writeJSON(w, http.StatusCreated, c)
}

func (s *Server) handleGetChunk(w http.ResponseWriter, r *http.Request) {
	c, err := s.store.Get(r.Context(), chi.URLParam(r, "chunkID"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if c == nil {
		writeError(w, http.StatusNotFound, "chunk not found")
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleUpdateChunk(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "chunkID")

	var req struct {
		Content     *string        `json:"content"`
		Summary     *string        `json:"summary"`
		Category    *string        `json:"category"`
		Person      *string        `json:"person"`
		Tags        *memory.TagSet `json:"tags"`
		Confidence  *float64       `json:"confidence"`
		ExpiresAt   *time.Time     `json:"expires_at"`
		ClearExpiry bool           `json:"clear_expiry"`
		Metadata    map[string]any `json:"metadata"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	patch := store.ChunkPatch{
		Content:     req.Content,
		Summary:     req.Summary,
		Category:    req.Category,
		Person:      req.Person,
		Tags:        req.Tags,
		Confidence:  req.Confidence,
		ExpiresAt:   req.ExpiresAt,
		ClearExpiry: req.ClearExpiry,
		Metadata:    req.Metadata,
	}

	var vec []float32
	if req.Content != nil {
		vec = s.embed(r.Context(), *req.Content)
	}

	if err := s.store.Update(r.Context(), id, patch, vec); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "chunk not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if req.Tags != nil {
		s.embedTags(r.Context(), *req.Tags)
	}

	c, err := s.store.Get(r.Context(), id)
	if err != nil || c == nil {
		writeError(w, http.StatusInternalServerError, "reload updated chunk failed")
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleDeleteChunk(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Delete(r.Context(), chi.URLParam(r, "chunkID")); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handlePromoteChunk(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Tier memory.Tier `json:"tier"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	err := s.store.Promote(r.Context(), chi.URLParam(r, "chunkID"), req.Tier)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "chunk not found")
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "promoted", "tier": string(req.Tier)})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := q.Get("q")
	if query == "" {
		writeError(w, http.StatusBadRequest, "q required")
		return
	}

	opts := store.SearchOptions{
		Tier:     memory.Tier(q.Get("tier")),
		Person:   q.Get("person"),
		Category: q.Get("category"),
		Limit:    queryInt(q.Get("limit")),
	}

	var (
		results []store.ScoredChunk
		err     error
	)
	switch mode := q.Get("mode"); mode {
	case "", "hybrid":
		results, err = s.store.HybridSearch(r.Context(), query, s.embed(r.Context(), query), opts)
	case "text":
		results, err = s.store.FullTextSearch(r.Context(), query, opts)
	case "semantic":
		vec := s.embed(r.Context(), query)
		if vec == nil {
			writeError(w, http.StatusServiceUnavailable, "no embedding provider")
			return
		}
		results, err = s.store.SemanticSearch(r.Context(), vec, opts)
	default:
		writeError(w, http.StatusBadRequest, "unknown mode "+mode)
		return
	}
	if err != nil {
		if errors.Is(err, store.ErrVectorDisabled) {
			writeError(w, http.StatusServiceUnavailable, "vector index disabled")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"results": results, "count": len(results)})
}

func (s *Server) handleListTier(w http.ResponseWriter, r *http.Request) {
	tier := memory.Tier(chi.URLParam(r, "tier"))
	if !memory.ValidTiers[tier] {
		writeError(w, http.StatusBadRequest, "invalid tier")
		return
	}

	q := r.URL.Query()
	chunks, err := s.store.ListByTier(r.Context(), tier, queryInt(q.Get("limit")), queryInt(q.Get("offset")))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"chunks": chunks, "count": len(chunks)})
}

func (s *Server) handleListPerson(w http.ResponseWriter, r *http.Request) {
	chunks, err := s.store.ListByPerson(r.Context(), chi.URLParam(r, "person"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"chunks": chunks, "count": len(chunks)})
}

func (s *Server) handleTagSearch(w http.ResponseWriter, r *http.Request) {
	if s.tags == nil {
		writeError(w, http.StatusServiceUnavailable, "no embedding provider")
		return
	}

	q := r.URL.Query()
	query := q.Get("q")
	if query == "" {
		writeError(w, http.StatusBadRequest, "q required")
		return
	}

	opts := tagembed.QueryOptions{
		Dimension: memory.Dimension(q.Get("dimension")),
		Limit:     queryInt(q.Get("limit")),
	}
	if min := q.Get("min_similarity"); min != "" {
		if v, err := strconv.ParseFloat(min, 64); err == nil {
			opts.MinSimilarity = v
		}
	}

	matches, err := s.tags.HybridTagSearch(r.Context(), query, opts)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"matches": matches, "count": len(matches)})
}

func (s *Server) handleTagSweep(w http.ResponseWriter, r *http.Request) {
	if s.tags == nil {
		writeError(w, http.StatusServiceUnavailable, "no embedding provider")
		return
	}

	force := r.URL.Query().Get("force") == "true"
	res, err := s.tags.EmbedAllTags(r.Context(), force)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.Stats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleMaintenance(w http.ResponseWriter, r *http.Request) {
	if s.maintainer == nil {
		writeError(w, http.StatusServiceUnavailable, "maintenance not configured")
		return
	}
	run, err := s.maintainer.RunAll(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) handleLastMaintenance(w http.ResponseWriter, r *http.Request) {
	run, err := s.store.LastMaintenanceRun(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if run == nil {
		writeError(w, http.StatusNotFound, "no maintenance has run")
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func queryInt(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
