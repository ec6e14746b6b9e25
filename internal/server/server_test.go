package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stratamem/strata/internal/embedding"
	"github.com/stratamem/strata/internal/lifecycle"
	"github.com/stratamem/strata/internal/memory"
	"github.com/stratamem/strata/internal/store"
	"github.com/stratamem/strata/internal/tagembed"
)

func testServer(t *testing.T) (*Server, *store.MemoryStore) {
	t.Helper()
	st, err := store.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	emb := embedding.NewMock(32)
	srv := New(st, emb, tagembed.New(st, emb), lifecycle.New(st, lifecycle.DefaultPolicy()), "test")
	return srv, st
}

func doJSON(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func TestHealth(t *testing.T) {
	srv, _ := testServer(t)

	rec := doJSON(t, srv, http.MethodGet, "/api/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := decode[map[string]any](t, rec)
	if body["status"] != "ok" || body["version"] != "test" {
		t.Errorf("health = %v", body)
	}
}

func TestChunkLifecycleOverHTTP(t *testing.T) {
	srv, _ := testServer(t)

	// Create.
	rec := doJSON(t, srv, http.MethodPost, "/api/chunks", map[string]any{
		"content":  "release notes go out on friday",
		"category": "fact",
		"tags":     map[string]any{"concepts": []string{"release"}},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d: %s", rec.Code, rec.Body)
	}
	created := decode[memory.Chunk](t, rec)
	if created.ID == "" || created.Tier != memory.TierShortTerm {
		t.Fatalf("created = %+v", created)
	}

	// Read.
	rec = doJSON(t, srv, http.MethodGet, "/api/chunks/"+created.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}

	// Update.
	rec = doJSON(t, srv, http.MethodPatch, "/api/chunks/"+created.ID, map[string]any{
		"content": "release notes moved to monday",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("update status = %d: %s", rec.Code, rec.Body)
	}
	updated := decode[memory.Chunk](t, rec)
	if updated.Content != "release notes moved to monday" {
		t.Errorf("updated content = %q", updated.Content)
	}

	// Promote.
	rec = doJSON(t, srv, http.MethodPost, "/api/chunks/"+created.ID+"/promote", map[string]any{
		"tier": "long_term",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("promote status = %d: %s", rec.Code, rec.Body)
	}

	// Delete.
	rec = doJSON(t, srv, http.MethodDelete, "/api/chunks/"+created.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete status = %d", rec.Code)
	}
	rec = doJSON(t, srv, http.MethodGet, "/api/chunks/"+created.ID, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("get after delete status = %d", rec.Code)
	}
}

func TestGetMissingChunk(t *testing.T) {
	srv, _ := testServer(t)
	rec := doJSON(t, srv, http.MethodGet, "/api/chunks/nope", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestInsertValidation(t *testing.T) {
	srv, _ := testServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/api/chunks", map[string]any{"summary": "no content"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing content status = %d", rec.Code)
	}
}

func TestSearchEndpoint(t *testing.T) {
	srv, _ := testServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/api/chunks", map[string]any{
		"content": "the ci pipeline caches docker layers",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d", rec.Code)
	}

	for _, mode := range []string{"text", "semantic", "hybrid"} {
		rec = doJSON(t, srv, http.MethodGet, "/api/search?q=pipeline+caches+docker&mode="+mode, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("%s search status = %d: %s", mode, rec.Code, rec.Body)
		}
		body := decode[struct {
			Count   int                `json:"count"`
			Results []store.ScoredChunk `json:"results"`
		}](t, rec)
		if body.Count != 1 {
			t.Errorf("%s search count = %d, want 1", mode, body.Count)
		}
	}

	rec = doJSON(t, srv, http.MethodGet, "/api/search?mode=text", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing q status = %d", rec.Code)
	}
}

func TestListTierEndpoint(t *testing.T) {
	srv, _ := testServer(t)

	doJSON(t, srv, http.MethodPost, "/api/chunks", map[string]any{"content": "one"})
	doJSON(t, srv, http.MethodPost, "/api/chunks", map[string]any{"content": "two"})

	rec := doJSON(t, srv, http.MethodGet, "/api/tiers/short_term", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := decode[struct {
		Count int `json:"count"`
	}](t, rec)
	if body.Count != 2 {
		t.Errorf("count = %d, want 2", body.Count)
	}

	rec = doJSON(t, srv, http.MethodGet, "/api/tiers/bogus", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("invalid tier status = %d", rec.Code)
	}
}

func TestTagEndpoints(t *testing.T) {
	srv, _ := testServer(t)

	doJSON(t, srv, http.MethodPost, "/api/chunks", map[string]any{
		"content": "tagged chunk",
		"tags":    map[string]any{"concepts": []string{"caching"}},
	})

	// Inserting embeds the chunk's tags; no sweep needed before searching.
	rec := doJSON(t, srv, http.MethodGet, "/api/tags/search?q=caching", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("tag search status = %d", rec.Code)
	}
	body := decode[struct {
		Count   int                 `json:"count"`
		Matches []tagembed.TagMatch `json:"matches"`
	}](t, rec)
	if body.Count < 1 || body.Matches[0].Tag != "caching" {
		t.Errorf("tag search = %+v", body)
	}

	// The store-wide sweep then finds nothing left to embed.
	rec = doJSON(t, srv, http.MethodPost, "/api/tags/embed", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("sweep status = %d: %s", rec.Code, rec.Body)
	}
	sweep := decode[tagembed.SweepResult](t, rec)
	if sweep.Embedded != 0 || sweep.Skipped != 1 {
		t.Errorf("sweep = %+v", sweep)
	}

	// Patching tags onto a chunk embeds the new ones too.
	rec = doJSON(t, srv, http.MethodPost, "/api/chunks", map[string]any{"content": "plain"})
	created := decode[memory.Chunk](t, rec)
	rec = doJSON(t, srv, http.MethodPatch, "/api/chunks/"+created.ID, map[string]any{
		"tags": map[string]any{"places": []string{"osaka"}},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("patch status = %d: %s", rec.Code, rec.Body)
	}
	rec = doJSON(t, srv, http.MethodGet, "/api/tags/search?q=osaka&dimension=places", nil)
	body = decode[struct {
		Count   int                 `json:"count"`
		Matches []tagembed.TagMatch `json:"matches"`
	}](t, rec)
	if body.Count < 1 || body.Matches[0].Tag != "osaka" {
		t.Errorf("tag search after patch = %+v", body)
	}
}

func TestStatsAndMaintenanceEndpoints(t *testing.T) {
	srv, _ := testServer(t)

	doJSON(t, srv, http.MethodPost, "/api/chunks", map[string]any{"content": "counted"})

	rec := doJSON(t, srv, http.MethodGet, "/api/stats", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("stats status = %d", rec.Code)
	}
	stats := decode[store.Stats](t, rec)
	if stats.TotalChunks != 1 {
		t.Errorf("stats = %+v", stats)
	}

	rec = doJSON(t, srv, http.MethodGet, "/api/maintenance/last", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("last before any run status = %d", rec.Code)
	}

	rec = doJSON(t, srv, http.MethodPost, "/api/maintenance", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("maintenance status = %d: %s", rec.Code, rec.Body)
	}

	rec = doJSON(t, srv, http.MethodGet, "/api/maintenance/last", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("last after run status = %d", rec.Code)
	}
}

func TestSemanticRoutesWithoutEmbedder(t *testing.T) {
	st, err := store.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	srv := New(st, nil, nil, nil, "test")

	rec := doJSON(t, srv, http.MethodGet, "/api/search?q=x&mode=semantic", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("semantic without embedder status = %d", rec.Code)
	}
	rec = doJSON(t, srv, http.MethodGet, "/api/tags/search?q=x", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("tag search without embedder status = %d", rec.Code)
	}
	rec = doJSON(t, srv, http.MethodPost, "/api/maintenance", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("maintenance without maintainer status = %d", rec.Code)
	}
}
