package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Window is the chronologically ordered context handed to the chat model.
type Window []ArchivedMessage

// Merge combines the two result sets. Rows are deduplicated by MessageID
// with recent rows winning, then sorted oldest first. The inputs are not
// modified.
func Merge(recent, similar []ArchivedMessage) Window {
	seen := make(map[string]struct{}, len(recent)+len(similar))
	out := make(Window, 0, len(recent)+len(similar))
	for _, m := range recent {
		if _, ok := seen[m.MessageID]; ok {
			continue
		}
		seen[m.MessageID] = struct{}{}
		out = append(out, m)
	}
	for _, m := range similar {
		if _, ok := seen[m.MessageID]; ok {
			continue
		}
		seen[m.MessageID] = struct{}{}
		out = append(out, m)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Without returns the window minus the given message id.
func (w Window) Without(messageID string) Window {
	out := make(Window, 0, len(w))
	for _, m := range w {
		if m.MessageID != messageID {
			out = append(out, m)
		}
	}
	return out
}

type Assembler struct {
	archive   Archive
	embedder  Embedder
	threshold float64
	log       zerolog.Logger
}

func NewAssembler(archive Archive, embedder Embedder, threshold float64, log zerolog.Logger) *Assembler {
	return &Assembler{
		archive:   archive,
		embedder:  embedder,
		threshold: threshold,
		log:       log.With().Str("component", "context").Logger(),
	}
}

// Build embeds text and assembles the window for channelID.
func (a *Assembler) Build(ctx context.Context, channelID, text string, recentCount, similarCount int) (Window, error) {
	var query []float32
	if similarCount > 0 && a.embedder != nil {
		vec, err := a.embedder.Embed(ctx, text)
		if err != nil {
			a.log.Warn().Err(err).Msg("embedding failed, using recent messages only")
		} else {
			query = vec
		}
	}
	return a.BuildWithVector(ctx, channelID, query, recentCount, similarCount)
}

// BuildWithVector runs the recent and similar reads concurrently. A nil
// query skips the similarity read. A failed similarity read degrades to
// recent-only; a failed recent read is returned.
func (a *Assembler) BuildWithVector(ctx context.Context, channelID string, query []float32, recentCount, similarCount int) (Window, error) {
	var recent, similar []ArchivedMessage

	g, gctx := errgroup.WithContext(ctx)
	if recentCount > 0 {
		g.Go(func() error {
			rows, err := a.archive.RecentMessages(gctx, channelID, recentCount)
			if err != nil {
				return fmt.Errorf("recent messages: %w", err)
			}
			recent = rows
			return nil
		})
	}
	if similarCount > 0 && len(query) > 0 {
		g.Go(func() error {
			rows, err := a.archive.SimilarMessages(gctx, channelID, query, similarCount, a.threshold)
			if err != nil {
				a.log.Warn().Err(err).Str("channel", channelID).Msg("similarity search failed")
				return nil
			}
			similar = rows
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	w := Merge(recent, similar)
	a.log.Debug().
		Str("channel", channelID).
		Int("recent", len(recent)).
		Int("similar", len(similar)).
		Int("window", len(w)).
		Msg("context built")
	return w, nil
}
