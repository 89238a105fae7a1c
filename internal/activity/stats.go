// Package activity counts messages and voice time per guild member and
// keeps daily, weekly and monthly activity streaks.
package activity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var ErrNotFound = errors.New("activity not found")

const (
	MinLimit     = 5
	MaxLimit     = 25
	DefaultLimit = 10
)

type Streak struct {
	Current int
	Longest int
}

type Stats struct {
	GuildID           string
	UserID            string
	Username          string
	MessageCount      int64
	VoiceJoinCount    int64
	TotalVoiceSeconds int64
	Daily             Streak
	Weekly            Streak
	Monthly           Streak
	// LastActiveDay is the local calendar day of the last counted activity,
	// stored as midnight UTC of that date.
	LastActiveDay time.Time
	FirstSeenAt   time.Time
	LastSeenAt    time.Time
}

// Score ranks members on the leaderboard: one point per message and voice
// join, one per minute in voice.
func (s Stats) Score() float64 {
	return float64(s.MessageCount) + float64(s.VoiceJoinCount) + float64(s.TotalVoiceSeconds)/60
}

type VoiceSession struct {
	ID              int64
	GuildID         string
	UserID          string
	Username        string
	ChannelID       string
	ChannelName     string
	JoinedAt        time.Time
	LeftAt          time.Time
	DurationSeconds int64
}

type Store interface {
	// GetStats returns ErrNotFound when the member has no row yet.
	GetStats(ctx context.Context, guildID, userID string) (*Stats, error)
	SaveStats(ctx context.Context, s Stats) error
	OpenVoiceSession(ctx context.Context, vs VoiceSession) (int64, error)
	CloseVoiceSession(ctx context.Context, id int64, leftAt time.Time, seconds int64) error
	// TopActive orders by Score descending.
	TopActive(ctx context.Context, guildID string, limit int) ([]Stats, error)
	// TopStreaks orders by longest daily streak, then current daily streak.
	TopStreaks(ctx context.Context, guildID string, limit int) ([]Stats, error)
}

// RecordDay advances the streaks for activity on day. Repeated activity on
// the same day changes nothing; a day earlier than the last one is ignored.
func (s *Stats) RecordDay(day time.Time) {
	d := dateOf(day)
	if s.LastActiveDay.IsZero() {
		s.Daily = Streak{Current: 1, Longest: max(1, s.Daily.Longest)}
		s.Weekly = Streak{Current: 1, Longest: max(1, s.Weekly.Longest)}
		s.Monthly = Streak{Current: 1, Longest: max(1, s.Monthly.Longest)}
		s.LastActiveDay = d
		return
	}
	last := dateOf(s.LastActiveDay)
	if !d.After(last) {
		return
	}

	s.Daily.advance(int(d.Sub(last).Hours() / 24))
	s.Weekly.advance(int(weekStart(d).Sub(weekStart(last)).Hours() / (24 * 7)))
	s.Monthly.advance(monthIndex(d) - monthIndex(last))
	s.LastActiveDay = d
}

// advance moves the streak forward by gap periods: 0 keeps it, 1 extends it,
// anything larger restarts it.
func (s *Streak) advance(gap int) {
	switch {
	case gap <= 0:
		return
	case gap == 1:
		s.Current++
	default:
		s.Current = 1
	}
	if s.Current > s.Longest {
		s.Longest = s.Current
	}
}

func dateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// weekStart is the Monday of d's ISO week.
func weekStart(d time.Time) time.Time {
	offset := (int(d.Weekday()) + 6) % 7
	return d.AddDate(0, 0, -offset)
}

func monthIndex(d time.Time) int {
	return d.Year()*12 + int(d.Month()) - 1
}

// FormatDuration renders seconds as "1h 2m 3s", omitting zero parts.
func FormatDuration(seconds int64) string {
	if seconds < 0 {
		seconds = 0
	}
	h, m, s := seconds/3600, (seconds%3600)/60, seconds%60
	var parts []string
	if h > 0 {
		parts = append(parts, fmt.Sprintf("%dh", h))
	}
	if m > 0 {
		parts = append(parts, fmt.Sprintf("%dm", m))
	}
	if s > 0 || len(parts) == 0 {
		parts = append(parts, fmt.Sprintf("%ds", s))
	}
	return strings.Join(parts, " ")
}

// ClampLimit applies the leaderboard bounds; zero means the default.
func ClampLimit(n int) int {
	if n == 0 {
		return DefaultLimit
	}
	return min(MaxLimit, max(MinLimit, n))
}
