package giphy

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RazeViana/Caitlyn/internal/config"
	"github.com/RazeViana/Caitlyn/internal/httpx"
)

func TestRandom(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/gifs/random", r.URL.Path)
		assert.Equal(t, "key", r.URL.Query().Get("api_key"))
		assert.Equal(t, "birthday", r.URL.Query().Get("tag"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":{"images":{"original":{"url":"https://media.example/cake.gif"}}}}`))
	}))
	defer srv.Close()

	c := New(config.GiphyConfig{APIKey: "key", BaseURL: srv.URL})
	url, err := c.Random(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, "https://media.example/cake.gif", url)
}

func TestRandomErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("tag") {
		case "empty":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"data":[]}`))
		case "slow":
			time.Sleep(300 * time.Millisecond)
		default:
			w.WriteHeader(http.StatusForbidden)
		}
	}))
	defer srv.Close()

	c := New(config.GiphyConfig{APIKey: "key", BaseURL: srv.URL, TimeoutMs: 100})
	for _, tag := range []string{"denied", "empty", "slow"} {
		_, err := c.Random(context.Background(), tag)
		assert.True(t, httpx.IsServiceError(err), "tag %s: %v", tag, err)
	}

	_, err := New(config.GiphyConfig{BaseURL: srv.URL}).Random(context.Background(), "")
	assert.True(t, httpx.IsServiceError(err))
}
