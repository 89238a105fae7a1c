package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Recorder embeds and archives chat turns, and trims old ones.
type Recorder struct {
	archive  Archive
	embedder Embedder
	now      func() time.Time
	log      zerolog.Logger
}

func NewRecorder(archive Archive, embedder Embedder, log zerolog.Logger) *Recorder {
	return &Recorder{
		archive:  archive,
		embedder: embedder,
		now:      time.Now,
		log:      log.With().Str("component", "archive").Logger(),
	}
}

// Record fills in the embedding (and CreatedAt when unset) and stores m.
// The stored message is returned so callers can reuse its embedding.
func (r *Recorder) Record(ctx context.Context, m ArchivedMessage) (ArchivedMessage, error) {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = r.now()
	}
	if len(m.Embedding) == 0 {
		vec, err := r.embedder.Embed(ctx, m.Content)
		if err != nil {
			return m, fmt.Errorf("record message %s: %w", m.MessageID, err)
		}
		m.Embedding = vec
	}
	if err := r.archive.StoreMessage(ctx, m); err != nil {
		return m, fmt.Errorf("record message %s: %w", m.MessageID, err)
	}
	r.log.Debug().Str("channel", m.ChannelID).Str("role", m.Role).Str("user", m.Username).Msg("message archived")
	return m, nil
}

// Trim deletes messages older than daysToKeep days. Running it twice in a
// row deletes nothing the second time.
func (r *Recorder) Trim(ctx context.Context, daysToKeep int) (int64, error) {
	if daysToKeep <= 0 {
		return 0, fmt.Errorf("trim: days to keep must be positive, got %d", daysToKeep)
	}
	cutoff := r.now().Add(-time.Duration(daysToKeep) * 24 * time.Hour)
	n, err := r.archive.TrimMessages(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("trim messages: %w", err)
	}
	r.log.Info().Int64("deleted", n).Int("days", daysToKeep).Msg("archive trimmed")
	return n, nil
}
