package memory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/RazeViana/Caitlyn/internal/config"
	"github.com/RazeViana/Caitlyn/internal/httpx"
)

const (
	embeddingService = "embedding"

	defaultOllamaBaseURL = "http://127.0.0.1:11434"
	defaultAPIBaseURL    = "https://api.openai.com"
)

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimension() int
}

type embedderClient struct {
	provider string
	model    string
	dim      int
	http     *resty.Client
}

type apiEmbeddingRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type apiEmbeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

type ollamaEmbeddingRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaEmbeddingResponse struct {
	Embedding []float32 `json:"embedding"`
}

// NewEmbedder builds a client for the configured provider. "api" speaks the
// OpenAI /v1/embeddings shape, "ollama" the /api/embeddings shape.
func NewEmbedder(cfg config.EmbeddingConfig) (Embedder, error) {
	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	switch provider {
	case config.EmbeddingProviderAPI:
		if baseURL == "" {
			baseURL = defaultAPIBaseURL
		}
		if strings.TrimSpace(cfg.APIKey) == "" {
			return nil, fmt.Errorf("embedding: api provider requires an api key")
		}
	case config.EmbeddingProviderOllama, "":
		provider = config.EmbeddingProviderOllama
		if baseURL == "" {
			baseURL = defaultOllamaBaseURL
		}
	default:
		return nil, fmt.Errorf("embedding: unsupported provider %q", cfg.Provider)
	}

	model := cfg.Model
	if model == "" {
		model = config.DefaultEmbeddingModel
	}
	timeout := time.Duration(cfg.TimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = time.Duration(config.DefaultEmbeddingTimeoutMs) * time.Millisecond
	}

	client := httpx.NewClient(baseURL, timeout)
	if key := strings.TrimSpace(cfg.APIKey); key != "" {
		client.SetAuthToken(key)
	}
	return &embedderClient{
		provider: provider,
		model:    model,
		dim:      cfg.Dimension,
		http:     client,
	}, nil
}

func (c *embedderClient) Dimension() int { return c.dim }

func (c *embedderClient) Embed(ctx context.Context, text string) ([]float32, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("embed: %w", ErrEmptyText)
	}

	var (
		vec []float32
		err error
	)
	if c.provider == config.EmbeddingProviderOllama {
		vec, err = c.embedOllama(ctx, text)
	} else {
		vec, err = c.embedAPI(ctx, text)
	}
	if err != nil {
		return nil, err
	}
	if len(vec) == 0 {
		return nil, &httpx.ServiceError{Service: embeddingService, Err: fmt.Errorf("empty embedding")}
	}
	if c.dim > 0 && len(vec) != c.dim {
		return nil, &httpx.ServiceError{Service: embeddingService, Err: fmt.Errorf("got %d values, want %d: %w", len(vec), c.dim, ErrDimensionMismatch)}
	}
	return vec, nil
}

func (c *embedderClient) embedAPI(ctx context.Context, text string) ([]float32, error) {
	var out apiEmbeddingResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(apiEmbeddingRequest{Model: c.model, Input: text}).
		SetResult(&out).
		Post("/v1/embeddings")
	if err := httpx.Check(embeddingService, resp, err); err != nil {
		return nil, err
	}
	if len(out.Data) == 0 {
		return nil, &httpx.ServiceError{Service: embeddingService, Err: fmt.Errorf("no embeddings in response")}
	}
	return out.Data[0].Embedding, nil
}

func (c *embedderClient) embedOllama(ctx context.Context, text string) ([]float32, error) {
	var out ollamaEmbeddingResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(ollamaEmbeddingRequest{Model: c.model, Prompt: text}).
		SetResult(&out).
		Post("/api/embeddings")
	if err := httpx.Check(embeddingService, resp, err); err != nil {
		return nil, err
	}
	return out.Embedding, nil
}
