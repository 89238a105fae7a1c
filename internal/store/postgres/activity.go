package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/RazeViana/Caitlyn/internal/activity"
)

const statsColumns = `guild_id, user_id, username, message_count, voice_join_count, total_voice_time,
	daily_streak, longest_daily_streak, weekly_streak, longest_weekly_streak,
	monthly_streak, longest_monthly_streak, last_active_day, first_seen_at, last_seen_at`

func (s *Store) GetStats(ctx context.Context, guildID, userID string) (*activity.Stats, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+statsColumns+` FROM activity_stats WHERE guild_id = $1 AND user_id = $2`, guildID, userID)
	st, err := scanStats(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, activity.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &st, nil
}

func (s *Store) SaveStats(ctx context.Context, st activity.Stats) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO activity_stats (`+statsColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (guild_id, user_id) DO UPDATE SET
			username = EXCLUDED.username,
			message_count = EXCLUDED.message_count,
			voice_join_count = EXCLUDED.voice_join_count,
			total_voice_time = EXCLUDED.total_voice_time,
			daily_streak = EXCLUDED.daily_streak,
			longest_daily_streak = EXCLUDED.longest_daily_streak,
			weekly_streak = EXCLUDED.weekly_streak,
			longest_weekly_streak = EXCLUDED.longest_weekly_streak,
			monthly_streak = EXCLUDED.monthly_streak,
			longest_monthly_streak = EXCLUDED.longest_monthly_streak,
			last_active_day = EXCLUDED.last_active_day,
			last_seen_at = EXCLUDED.last_seen_at`,
		st.GuildID, st.UserID, st.Username, st.MessageCount, st.VoiceJoinCount, st.TotalVoiceSeconds,
		st.Daily.Current, st.Daily.Longest, st.Weekly.Current, st.Weekly.Longest,
		st.Monthly.Current, st.Monthly.Longest, nullTime(st.LastActiveDay), nullTime(st.FirstSeenAt), nullTime(st.LastSeenAt))
	if err != nil {
		return fmt.Errorf("save stats: %w", err)
	}
	return nil
}

func (s *Store) OpenVoiceSession(ctx context.Context, vs activity.VoiceSession) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO voice_sessions (guild_id, user_id, username, channel_id, channel_name, joined_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`,
		vs.GuildID, vs.UserID, vs.Username, vs.ChannelID, vs.ChannelName, vs.JoinedAt).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("open voice session: %w", err)
	}
	return id, nil
}

func (s *Store) CloseVoiceSession(ctx context.Context, id int64, leftAt time.Time, seconds int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE voice_sessions SET left_at = $2, duration_seconds = $3 WHERE id = $1`, id, leftAt, seconds)
	if err != nil {
		return fmt.Errorf("close voice session: %w", err)
	}
	return nil
}

func (s *Store) TopActive(ctx context.Context, guildID string, limit int) ([]activity.Stats, error) {
	return s.queryStats(ctx, `SELECT `+statsColumns+` FROM activity_stats WHERE guild_id = $1
		ORDER BY (message_count + voice_join_count + total_voice_time / 60.0) DESC, username
		LIMIT $2`, guildID, limit)
}

func (s *Store) TopStreaks(ctx context.Context, guildID string, limit int) ([]activity.Stats, error) {
	return s.queryStats(ctx, `SELECT `+statsColumns+` FROM activity_stats WHERE guild_id = $1
		ORDER BY longest_daily_streak DESC, daily_streak DESC, username
		LIMIT $2`, guildID, limit)
}

func (s *Store) queryStats(ctx context.Context, query string, args ...any) ([]activity.Stats, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query stats: %w", err)
	}
	defer rows.Close()
	var out []activity.Stats
	for rows.Next() {
		st, err := scanStats(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

func scanStats(row scanner) (activity.Stats, error) {
	var (
		st                   activity.Stats
		lastDay, first, last sql.NullTime
	)
	err := row.Scan(&st.GuildID, &st.UserID, &st.Username, &st.MessageCount, &st.VoiceJoinCount, &st.TotalVoiceSeconds,
		&st.Daily.Current, &st.Daily.Longest, &st.Weekly.Current, &st.Weekly.Longest,
		&st.Monthly.Current, &st.Monthly.Longest, &lastDay, &first, &last)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return st, err
		}
		return st, fmt.Errorf("scan stats: %w", err)
	}
	if lastDay.Valid {
		d := lastDay.Time
		st.LastActiveDay = time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
	}
	if first.Valid {
		st.FirstSeenAt = first.Time.UTC()
	}
	if last.Valid {
		st.LastSeenAt = last.Time.UTC()
	}
	return st, nil
}
