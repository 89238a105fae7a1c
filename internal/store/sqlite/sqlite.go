// Package sqlite is the embedded store: birthdays, the message archive and
// activity counters in one SQLite file.
package sqlite

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB
}

// Open creates the database file if needed and applies the schema.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)", filepath.ToSlash(path))
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
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

func (s *Store) Driver() string { return "sqlite" }

// Migrate is idempotent.
func (s *Store) Migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS birthdays (
			subject_id TEXT PRIMARY KEY,
			name TEXT NOT NULL DEFAULT '',
			dob TEXT NOT NULL,
			year_known INTEGER NOT NULL DEFAULT 1,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			channel_id TEXT NOT NULL,
			message_id TEXT NOT NULL,
			user_id TEXT NOT NULL DEFAULT '',
			username TEXT NOT NULL DEFAULT '',
			role TEXT NOT NULL CHECK (role IN ('user', 'assistant')),
			content TEXT NOT NULL,
			embedding BLOB NOT NULL,
			created_at INTEGER NOT NULL,
			UNIQUE (channel_id, message_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_channel_created ON messages(channel_id, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_created ON messages(created_at)`,
		`CREATE TABLE IF NOT EXISTS activity_stats (
			guild_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			username TEXT NOT NULL DEFAULT '',
			message_count INTEGER NOT NULL DEFAULT 0,
			voice_join_count INTEGER NOT NULL DEFAULT 0,
			total_voice_time INTEGER NOT NULL DEFAULT 0,
			daily_streak INTEGER NOT NULL DEFAULT 0,
			longest_daily_streak INTEGER NOT NULL DEFAULT 0,
			weekly_streak INTEGER NOT NULL DEFAULT 0,
			longest_weekly_streak INTEGER NOT NULL DEFAULT 0,
			monthly_streak INTEGER NOT NULL DEFAULT 0,
			longest_monthly_streak INTEGER NOT NULL DEFAULT 0,
			last_active_day TEXT NOT NULL DEFAULT '',
			first_seen_at INTEGER NOT NULL,
			last_seen_at INTEGER NOT NULL,
			PRIMARY KEY (guild_id, user_id)
		)`,
		`CREATE TABLE IF NOT EXISTS voice_sessions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			guild_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			username TEXT NOT NULL DEFAULT '',
			channel_id TEXT NOT NULL,
			channel_name TEXT NOT NULL DEFAULT '',
			joined_at INTEGER NOT NULL,
			left_at INTEGER,
			duration_seconds INTEGER
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

// Timestamps are stored as unix milliseconds.
func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
