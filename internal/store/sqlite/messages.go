package sqlite

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/RazeViana/Caitlyn/internal/memory"
)

// StoreMessage ignores a second write of the same (channel, message) pair;
// archived rows are immutable.
func (s *Store) StoreMessage(ctx context.Context, m memory.ArchivedMessage) error {
	blob, err := memory.EncodeVector(m.Embedding)
	if err != nil {
		return fmt.Errorf("store message: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO messages
			(channel_id, message_id, user_id, username, role, content, embedding, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ChannelID, m.MessageID, m.UserID, m.Username, m.Role, m.Content, blob, toMillis(m.CreatedAt))
	if err != nil {
		return fmt.Errorf("store message: %w", err)
	}
	return nil
}

func (s *Store) RecentMessages(ctx context.Context, channelID string, limit int) ([]memory.ArchivedMessage, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT channel_id, message_id, user_id, username, role, content, embedding, created_at
		FROM messages
		WHERE channel_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?`, channelID, limit)
	if err != nil {
		return nil, fmt.Errorf("recent messages: %w", err)
	}
	defer rows.Close()

	var out []memory.ArchivedMessage
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// SimilarMessages scores every row of the channel in process. SQLite has no
// vector index; channel archives are bounded by the retention trim.
func (s *Store) SimilarMessages(ctx context.Context, channelID string, query []float32, limit int, threshold float64) ([]memory.ArchivedMessage, error) {
	if limit <= 0 || len(query) == 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT channel_id, message_id, user_id, username, role, content, embedding, created_at
		FROM messages
		WHERE channel_id = ?`, channelID)
	if err != nil {
		return nil, fmt.Errorf("similar messages: %w", err)
	}
	defer rows.Close()

	var out []memory.ArchivedMessage
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		score, err := memory.CosineSimilarity(query, m.Embedding)
		if err != nil || score < threshold {
			continue
		}
		m.Similarity = score
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("similar messages: %w", err)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Similarity > out[j].Similarity })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) TrimMessages(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE created_at < ?`, toMillis(cutoff))
	if err != nil {
		return 0, fmt.Errorf("trim messages: %w", err)
	}
	return res.RowsAffected()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMessage(row scanner) (memory.ArchivedMessage, error) {
	var (
		m       memory.ArchivedMessage
		blob    []byte
		created int64
	)
	if err := row.Scan(&m.ChannelID, &m.MessageID, &m.UserID, &m.Username, &m.Role, &m.Content, &blob, &created); err != nil {
		return m, fmt.Errorf("scan message: %w", err)
	}
	vec, err := memory.DecodeVector(blob)
	if err != nil {
		return m, fmt.Errorf("scan message %s: %w", m.MessageID, err)
	}
	m.Embedding = vec
	m.CreatedAt = fromMillis(created)
	return m, nil
}
