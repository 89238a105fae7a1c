// Package ai generates chat replies from an archived context window.
package ai

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/cexll/agentsdk-go/pkg/model"

	"github.com/RazeViana/Caitlyn/internal/config"
	"github.com/RazeViana/Caitlyn/internal/httpx"
	"github.com/RazeViana/Caitlyn/internal/memory"
)

const (
	chatService = "chat"

	// SilentReply is what the model answers when it has nothing to add.
	SilentReply = "NOTHING"
)

var speakerPrefix = regexp.MustCompile(`(?i)^\s*caitlyn:\s*`)

// NewProvider returns the model provider for cfg. "openai" (the default)
// covers any OpenAI-compatible endpoint such as Open WebUI or Ollama.
func NewProvider(cfg config.AIConfig) (model.Provider, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider.Type)) {
	case "", "openai":
		return &model.OpenAIProvider{
			APIKey:    cfg.Provider.APIKey,
			BaseURL:   cfg.Provider.BaseURL,
			ModelName: cfg.Model,
			MaxTokens: cfg.MaxTokens,
		}, nil
	case "anthropic":
		return &model.AnthropicProvider{
			APIKey:    cfg.Provider.APIKey,
			BaseURL:   cfg.Provider.BaseURL,
			ModelName: cfg.Model,
			MaxTokens: cfg.MaxTokens,
		}, nil
	default:
		return nil, fmt.Errorf("ai: unsupported provider type %q", cfg.Provider.Type)
	}
}

// Completer is the part of model.Model the chat client needs.
type Completer interface {
	Complete(ctx context.Context, req model.Request) (*model.Response, error)
}

// providerCompleter resolves the model on every call.
type providerCompleter struct {
	provider model.Provider
}

func (p providerCompleter) Complete(ctx context.Context, req model.Request) (*model.Response, error) {
	mdl, err := p.provider.Model(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolve model: %w", err)
	}
	return mdl.Complete(ctx, req)
}

type Chat struct {
	llm       Completer
	system    string
	maxTokens int
	timeout   time.Duration
}

func NewChat(provider model.Provider, cfg config.AIConfig) *Chat {
	return NewChatWithCompleter(providerCompleter{provider: provider}, cfg)
}

func NewChatWithCompleter(c Completer, cfg config.AIConfig) *Chat {
	timeout := time.Duration(cfg.TimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = time.Duration(config.DefaultChatTimeoutMs) * time.Millisecond
	}
	return &Chat{
		llm:       c,
		system:    cfg.SystemPrompt,
		maxTokens: cfg.MaxTokens,
		timeout:   timeout,
	}
}

// Reply asks the model for the next turn. ok is false when the model chose
// to stay silent.
func (c *Chat) Reply(ctx context.Context, sessionID string, window memory.Window, speaker, text string) (reply string, ok bool, err error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.llm.Complete(ctx, model.Request{
		Messages:  BuildMessages(window, speaker, text),
		System:    c.system,
		MaxTokens: c.maxTokens,
		SessionID: sessionID,
	})
	if err != nil {
		return "", false, &httpx.ServiceError{Service: chatService, Err: err}
	}
	if resp == nil {
		return "", false, &httpx.ServiceError{Service: chatService, Err: fmt.Errorf("empty response")}
	}
	reply = CleanReply(resp.Message.TextContent())
	if reply == "" || reply == SilentReply {
		return "", false, nil
	}
	return reply, true, nil
}

// BuildMessages turns the window plus the current turn into model messages.
// User turns are prefixed with the speaker so the model can tell people
// apart.
func BuildMessages(window memory.Window, speaker, text string) []model.Message {
	msgs := make([]model.Message, 0, len(window)+1)
	for _, m := range window {
		if m.Role == memory.RoleAssistant {
			msgs = append(msgs, model.Message{Role: "assistant", Content: m.Content})
			continue
		}
		msgs = append(msgs, model.Message{Role: "user", Content: m.Username + ": " + m.Content})
	}
	msgs = append(msgs, model.Message{Role: "user", Content: speaker + ": " + text})
	return msgs
}

// CleanReply strips a leading "caitlyn:" the model sometimes echoes.
func CleanReply(s string) string {
	return strings.TrimSpace(speakerPrefix.ReplaceAllString(s, ""))
}
