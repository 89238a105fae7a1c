package memory

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/RazeViana/Caitlyn/internal/config"
	"github.com/RazeViana/Caitlyn/internal/httpx"
)

func TestEmbedderOllama(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embeddings" {
			t.Errorf("path = %s", r.URL.Path)
		}
		var body ollamaEmbeddingRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if body.Model != "nomic-embed-text" || body.Prompt != "hello" {
			t.Errorf("body = %+v", body)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"embedding": []float32{0.1, 0.2, 0.3}})
	}))
	defer srv.Close()

	e, err := NewEmbedder(config.EmbeddingConfig{Provider: "ollama", BaseURL: srv.URL, Dimension: 3})
	if err != nil {
		t.Fatalf("NewEmbedder error: %v", err)
	}
	vec, err := e.Embed(context.Background(), "  hello ")
	if err != nil {
		t.Fatalf("Embed error: %v", err)
	}
	if len(vec) != 3 || vec[2] != 0.3 {
		t.Errorf("vec = %v", vec)
	}
}

func TestEmbedderAPI(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/embeddings" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("auth = %q", got)
		}
		var body apiEmbeddingRequest
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body.Input != "hello" || body.Model != "text-embedding-3-small" {
			t.Errorf("body = %+v", body)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{{"index": 0, "embedding": []float32{1, 2}}},
		})
	}))
	defer srv.Close()

	e, err := NewEmbedder(config.EmbeddingConfig{Provider: "api", BaseURL: srv.URL, APIKey: "secret", Model: "text-embedding-3-small"})
	if err != nil {
		t.Fatalf("NewEmbedder error: %v", err)
	}
	vec, err := e.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Embed error: %v", err)
	}
	if len(vec) != 2 {
		t.Errorf("vec = %v", vec)
	}
}

func TestEmbedderErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"embedding": []float32{0.1, 0.2}})
	}))
	defer srv.Close()

	e, _ := NewEmbedder(config.EmbeddingConfig{Provider: "ollama", BaseURL: srv.URL, Dimension: 3})

	if _, err := e.Embed(context.Background(), "   "); !errors.Is(err, ErrEmptyText) {
		t.Errorf("empty text err = %v", err)
	}
	_, err := e.Embed(context.Background(), "hi")
	if !errors.Is(err, ErrDimensionMismatch) || !httpx.IsServiceError(err) {
		t.Errorf("dimension err = %v", err)
	}

	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	}))
	defer failing.Close()
	e, _ = NewEmbedder(config.EmbeddingConfig{Provider: "ollama", BaseURL: failing.URL})
	if _, err := e.Embed(context.Background(), "hi"); !httpx.IsServiceError(err) {
		t.Errorf("status err = %v", err)
	}
}

func TestNewEmbedderConfigErrors(t *testing.T) {
	if _, err := NewEmbedder(config.EmbeddingConfig{Provider: "api"}); err == nil {
		t.Error("api provider without key should fail")
	}
	if _, err := NewEmbedder(config.EmbeddingConfig{Provider: "magic"}); err == nil {
		t.Error("unknown provider should fail")
	}
}
