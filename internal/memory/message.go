// Package memory archives chat turns with embeddings and assembles the
// context window handed to the chat model.
package memory

import (
	"context"
	"errors"
	"time"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

var ErrEmptyText = errors.New("empty text")

// ArchivedMessage is one stored chat turn. Similarity is only set on rows
// returned by a similarity search.
type ArchivedMessage struct {
	ChannelID  string
	MessageID  string
	UserID     string
	Username   string
	Role       string
	Content    string
	Embedding  []float32
	CreatedAt  time.Time
	Similarity float64
}

// Archive is the message store. Implementations live in internal/store.
type Archive interface {
	StoreMessage(ctx context.Context, m ArchivedMessage) error
	// RecentMessages returns up to limit rows, newest first.
	RecentMessages(ctx context.Context, channelID string, limit int) ([]ArchivedMessage, error)
	// SimilarMessages returns up to limit rows whose cosine similarity to
	// query is at least threshold, most similar first.
	SimilarMessages(ctx context.Context, channelID string, query []float32, limit int, threshold float64) ([]ArchivedMessage, error)
	// TrimMessages deletes rows created before cutoff.
	TrimMessages(ctx context.Context, cutoff time.Time) (int64, error)
}
