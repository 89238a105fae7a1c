package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/RazeViana/Caitlyn/internal/memory"
)

const messageColumns = `channel_id, message_id, user_id, username, role, content, embedding::text, created_at`

func (s *Store) StoreMessage(ctx context.Context, m memory.ArchivedMessage) error {
	if len(m.Embedding) == 0 {
		return fmt.Errorf("store message: empty embedding")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (channel_id, message_id, user_id, username, role, content, embedding, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7::vector, $8)
		ON CONFLICT (channel_id, message_id) DO NOTHING`,
		m.ChannelID, m.MessageID, m.UserID, m.Username, m.Role, m.Content,
		memory.FormatPGVector(m.Embedding), m.CreatedAt)
	if err != nil {
		return fmt.Errorf("store message: %w", err)
	}
	return nil
}

func (s *Store) RecentMessages(ctx context.Context, channelID string, limit int) ([]memory.ArchivedMessage, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+messageColumns+`, 0::float8 FROM messages
		WHERE channel_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`, channelID, limit)
	if err != nil {
		return nil, fmt.Errorf("recent messages: %w", err)
	}
	return collectMessages(rows)
}

// SimilarMessages ranks by pgvector cosine distance; similarity is
// 1 - distance.
func (s *Store) SimilarMessages(ctx context.Context, channelID string, query []float32, limit int, threshold float64) ([]memory.ArchivedMessage, error) {
	if limit <= 0 || len(query) == 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+messageColumns+`, 1 - (embedding <=> $2::vector) AS similarity
		FROM messages
		WHERE channel_id = $1 AND 1 - (embedding <=> $2::vector) >= $3
		ORDER BY embedding <=> $2::vector
		LIMIT $4`, channelID, memory.FormatPGVector(query), threshold, limit)
	if err != nil {
		return nil, fmt.Errorf("similar messages: %w", err)
	}
	return collectMessages(rows)
}

func (s *Store) TrimMessages(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("trim messages: %w", err)
	}
	return res.RowsAffected()
}

type rowIter interface {
	scanner
	Next() bool
	Err() error
	Close() error
}

func collectMessages(rows rowIter) ([]memory.ArchivedMessage, error) {
	defer rows.Close()
	var out []memory.ArchivedMessage
	for rows.Next() {
		var (
			m   memory.ArchivedMessage
			vec string
		)
		if err := rows.Scan(&m.ChannelID, &m.MessageID, &m.UserID, &m.Username, &m.Role, &m.Content, &vec, &m.CreatedAt, &m.Similarity); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		emb, err := memory.ParsePGVector(vec)
		if err != nil {
			return nil, fmt.Errorf("scan message %s: %w", m.MessageID, err)
		}
		m.Embedding = emb
		m.CreatedAt = m.CreatedAt.UTC()
		out = append(out, m)
	}
	return out, rows.Err()
}
