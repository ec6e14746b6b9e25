package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestOllamaComplete(t *testing.T) {
	var gotReq ollamaGenerateRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(ollamaGenerateResponse{
			Response:        `[{"id": "x"}]`,
			PromptEvalCount: 120,
			EvalCount:       34,
		})
	}))
	defer srv.Close()

	client := NewOllama(srv.URL, "llama3.2")
	resp, err := client.Complete(context.Background(), "predict something")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}

	if gotReq.Model != "llama3.2" || gotReq.Stream {
		t.Errorf("request = %+v", gotReq)
	}
	if resp.Content != `[{"id": "x"}]` || resp.Provider != "ollama" {
		t.Errorf("response = %+v", resp)
	}
	if resp.TokensUsed != 154 {
		t.Errorf("TokensUsed = %d, want 154", resp.TokensUsed)
	}
}

func TestOllamaCompleteServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	if _, err := NewOllama(srv.URL, "nope").Complete(context.Background(), "x"); err == nil {
		t.Error("non-200 status should error")
	}
}
