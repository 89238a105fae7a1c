// Package giphy fetches decorative GIFs.
package giphy

import (
	"context"
	"errors"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/RazeViana/Caitlyn/internal/config"
	"github.com/RazeViana/Caitlyn/internal/httpx"
)

const service = "giphy"

type Client struct {
	http   *resty.Client
	apiKey string
	tag    string
}

type randomResponse struct {
	Data struct {
		Images struct {
			Original struct {
				URL string `json:"url"`
			} `json:"original"`
		} `json:"images"`
	} `json:"data"`
}

func New(cfg config.GiphyConfig) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = config.DefaultGiphyBaseURL
	}
	timeout := time.Duration(cfg.TimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = time.Duration(config.DefaultGiphyTimeoutMs) * time.Millisecond
	}
	tag := cfg.Tag
	if tag == "" {
		tag = config.DefaultGiphyTag
	}
	return &Client{
		http:   httpx.NewClient(baseURL, timeout),
		apiKey: cfg.APIKey,
		tag:    tag,
	}
}

// Random returns the URL of a random GIF for tag, or the client's default
// tag when tag is empty.
func (c *Client) Random(ctx context.Context, tag string) (string, error) {
	if c.apiKey == "" {
		return "", &httpx.ServiceError{Service: service, Err: errors.New("no api key configured")}
	}
	if tag == "" {
		tag = c.tag
	}
	var out randomResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{"api_key": c.apiKey, "tag": tag, "rating": "g"}).
		SetResult(&out).
		Get("/v1/gifs/random")
	if err := httpx.Check(service, resp, err); err != nil {
		return "", err
	}
	url := out.Data.Images.Original.URL
	if url == "" {
		return "", &httpx.ServiceError{Service: service, Err: errors.New("response has no image url")}
	}
	return url, nil
}
