// Package postgres stores birthdays, the message archive and activity
// counters in PostgreSQL. Embeddings live in a pgvector column.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
)

type Store struct {
	db *sql.DB
}

// Open connects through the pgx stdlib driver, verifies connectivity and
// applies the schema.
func Open(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres DSN is empty")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	s := &Store{db: db}
	if err := s.Migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Driver() string { return "postgres" }

func (s *Store) Migrate() error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		`CREATE TABLE IF NOT EXISTS birthdays (
			subject_id TEXT PRIMARY KEY,
			name TEXT NOT NULL DEFAULT '',
			dob DATE NOT NULL,
			year_known BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS messages (
			id BIGSERIAL PRIMARY KEY,
			channel_id TEXT NOT NULL,
			message_id TEXT NOT NULL,
			user_id TEXT NOT NULL DEFAULT '',
			username TEXT NOT NULL DEFAULT '',
			role TEXT NOT NULL CHECK (role IN ('user', 'assistant')),
			content TEXT NOT NULL,
			embedding vector NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			UNIQUE (channel_id, message_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_channel_created ON messages(channel_id, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_created ON messages(created_at)`,
		`CREATE TABLE IF NOT EXISTS activity_stats (
			guild_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			username TEXT NOT NULL DEFAULT '',
			message_count BIGINT NOT NULL DEFAULT 0,
			voice_join_count BIGINT NOT NULL DEFAULT 0,
			total_voice_time BIGINT NOT NULL DEFAULT 0,
			daily_streak INTEGER NOT NULL DEFAULT 0,
			longest_daily_streak INTEGER NOT NULL DEFAULT 0,
			weekly_streak INTEGER NOT NULL DEFAULT 0,
			longest_weekly_streak INTEGER NOT NULL DEFAULT 0,
			monthly_streak INTEGER NOT NULL DEFAULT 0,
			longest_monthly_streak INTEGER NOT NULL DEFAULT 0,
			last_active_day DATE,
			first_seen_at TIMESTAMPTZ,
			last_seen_at TIMESTAMPTZ,
			PRIMARY KEY (guild_id, user_id)
		)`,
		`CREATE TABLE IF NOT EXISTS voice_sessions (
			id BIGSERIAL PRIMARY KEY,
			guild_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			username TEXT NOT NULL DEFAULT '',
			channel_id TEXT NOT NULL,
			channel_name TEXT NOT NULL DEFAULT '',
			joined_at TIMESTAMPTZ NOT NULL,
			left_at TIMESTAMPTZ,
			duration_seconds BIGINT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_voice_sessions_member ON voice_sessions(guild_id, user_id)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

// 23505 is unique_violation.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

type scanner interface {
	Scan(dest ...any) error
}
