package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/RazeViana/Caitlyn/internal/activity"
)

const dayLayout = "2006-01-02"

const statsColumns = `guild_id, user_id, username, message_count, voice_join_count, total_voice_time,
	daily_streak, longest_daily_streak, weekly_streak, longest_weekly_streak,
	monthly_streak, longest_monthly_streak, last_active_day, first_seen_at, last_seen_at`

func (s *Store) GetStats(ctx context.Context, guildID, userID string) (*activity.Stats, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+statsColumns+` FROM activity_stats WHERE guild_id = ? AND user_id = ?`, guildID, userID)
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
	lastDay := ""
	if !st.LastActiveDay.IsZero() {
		lastDay = st.LastActiveDay.Format(dayLayout)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO activity_stats (`+statsColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (guild_id, user_id) DO UPDATE SET
			username = excluded.username,
			message_count = excluded.message_count,
			voice_join_count = excluded.voice_join_count,
			total_voice_time = excluded.total_voice_time,
			daily_streak = excluded.daily_streak,
			longest_daily_streak = excluded.longest_daily_streak,
			weekly_streak = excluded.weekly_streak,
			longest_weekly_streak = excluded.longest_weekly_streak,
			monthly_streak = excluded.monthly_streak,
			longest_monthly_streak = excluded.longest_monthly_streak,
			last_active_day = excluded.last_active_day,
			last_seen_at = excluded.last_seen_at`,
		st.GuildID, st.UserID, st.Username, st.MessageCount, st.VoiceJoinCount, st.TotalVoiceSeconds,
		st.Daily.Current, st.Daily.Longest, st.Weekly.Current, st.Weekly.Longest,
		st.Monthly.Current, st.Monthly.Longest, lastDay, toMillis(st.FirstSeenAt), toMillis(st.LastSeenAt))
	if err != nil {
		return fmt.Errorf("save stats: %w", err)
	}
	return nil
}

func (s *Store) OpenVoiceSession(ctx context.Context, vs activity.VoiceSession) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO voice_sessions (guild_id, user_id, username, channel_id, channel_name, joined_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		vs.GuildID, vs.UserID, vs.Username, vs.ChannelID, vs.ChannelName, toMillis(vs.JoinedAt))
	if err != nil {
		return 0, fmt.Errorf("open voice session: %w", err)
	}
	return res.LastInsertId()
}

func (s *Store) CloseVoiceSession(ctx context.Context, id int64, leftAt time.Time, seconds int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE voice_sessions SET left_at = ?, duration_seconds = ? WHERE id = ?`,
		toMillis(leftAt), seconds, id)
	if err != nil {
		return fmt.Errorf("close voice session: %w", err)
	}
	return nil
}

func (s *Store) TopActive(ctx context.Context, guildID string, limit int) ([]activity.Stats, error) {
	return s.queryStats(ctx, `SELECT `+statsColumns+` FROM activity_stats WHERE guild_id = ?
		ORDER BY (message_count + voice_join_count + total_voice_time / 60.0) DESC, username
		LIMIT ?`, guildID, limit)
}

func (s *Store) TopStreaks(ctx context.Context, guildID string, limit int) ([]activity.Stats, error) {
	return s.queryStats(ctx, `SELECT `+statsColumns+` FROM activity_stats WHERE guild_id = ?
		ORDER BY longest_daily_streak DESC, daily_streak DESC, username
		LIMIT ?`, guildID, limit)
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

func scanStats(row scanner) (activity.Stats, error) {
	var (
		st          activity.Stats
		lastDay     string
		first, last int64
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
	if lastDay != "" {
		if d, err := time.Parse(dayLayout, lastDay); err == nil {
			st.LastActiveDay = d
		}
	}
	st.FirstSeenAt = fromMillis(first)
	st.LastSeenAt = fromMillis(last)
	return st, nil
}
