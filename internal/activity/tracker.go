package activity

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/RazeViana/Caitlyn/internal/bus"
)

type openSession struct {
	id        int64
	channelID string
	joinedAt  time.Time
}

type Tracker struct {
	store Store
	loc   *time.Location
	now   func() time.Time
	log   zerolog.Logger

	// mu serializes read-modify-write of stats rows and guards sessions.
	mu       sync.Mutex
	sessions map[string]openSession
}

func NewTracker(store Store, loc *time.Location, log zerolog.Logger) *Tracker {
	if loc == nil {
		loc = time.Local
	}
	return &Tracker{
		store:    store,
		loc:      loc,
		now:      time.Now,
		log:      log.With().Str("component", "activity").Logger(),
		sessions: make(map[string]openSession),
	}
}

func sessionKey(guildID, userID string) string {
	return guildID + "-" + userID
}

func (t *Tracker) TrackMessage(ctx context.Context, guildID, userID, username string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	err := t.update(ctx, guildID, userID, username, func(s *Stats, now time.Time) {
		s.MessageCount++
		s.RecordDay(now.In(t.loc))
	})
	if err != nil {
		return fmt.Errorf("track message: %w", err)
	}
	t.log.Debug().Str("guild", guildID).Str("user", username).Msg("message tracked")
	return nil
}

// HandleVoice applies one voice transition. A move closes the old session
// and opens a new one.
func (t *Tracker) HandleVoice(ctx context.Context, ev bus.VoiceEvent) error {
	var errs []error
	if ev.OldChannelID != "" && ev.OldChannelID != ev.NewChannelID {
		errs = append(errs, t.VoiceLeave(ctx, ev.GuildID, ev.UserID, ev.Username))
	}
	if ev.NewChannelID != "" && ev.OldChannelID != ev.NewChannelID {
		errs = append(errs, t.VoiceJoin(ctx, ev.GuildID, ev.UserID, ev.Username, ev.NewChannelID, ev.NewChannelName))
	}
	return errors.Join(errs...)
}

func (t *Tracker) VoiceJoin(ctx context.Context, guildID, userID, username, channelID, channelName string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	key := sessionKey(guildID, userID)
	if prev, ok := t.sessions[key]; ok {
		// a missed leave event; end the old session where the new one starts
		t.log.Warn().Str("guild", guildID).Str("user", username).Str("channel", prev.channelID).Msg("voice join with a session already open")
		delete(t.sessions, key)
		if err := t.closeSession(ctx, guildID, userID, username, prev, now); err != nil {
			return fmt.Errorf("voice join: %w", err)
		}
	}
	if err := t.update(ctx, guildID, userID, username, func(s *Stats, _ time.Time) {
		s.VoiceJoinCount++
	}); err != nil {
		return fmt.Errorf("voice join: %w", err)
	}

	id, err := t.store.OpenVoiceSession(ctx, VoiceSession{
		GuildID:     guildID,
		UserID:      userID,
		Username:    username,
		ChannelID:   channelID,
		ChannelName: channelName,
		JoinedAt:    now,
	})
	if err != nil {
		return fmt.Errorf("voice join: open session: %w", err)
	}
	t.sessions[key] = openSession{id: id, channelID: channelID, joinedAt: now}
	t.log.Debug().Str("guild", guildID).Str("user", username).Str("channel", channelName).Msg("voice join")
	return nil
}

// VoiceLeave closes the open session. Without one (for example after a
// restart) it logs and returns nil.
func (t *Tracker) VoiceLeave(ctx context.Context, guildID, userID, username string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := sessionKey(guildID, userID)
	sess, ok := t.sessions[key]
	if !ok {
		t.log.Warn().Str("guild", guildID).Str("user", username).Msg("no active voice session")
		return nil
	}
	delete(t.sessions, key)

	if err := t.closeSession(ctx, guildID, userID, username, sess, t.now()); err != nil {
		return fmt.Errorf("voice leave: %w", err)
	}
	return nil
}

// closeSession ends sess at now and credits its duration. Callers hold t.mu
// and have already removed sess from t.sessions.
func (t *Tracker) closeSession(ctx context.Context, guildID, userID, username string, sess openSession, now time.Time) error {
	secs := int64(now.Sub(sess.joinedAt) / time.Second)
	if secs < 0 {
		secs = 0
	}
	if err := t.store.CloseVoiceSession(ctx, sess.id, now, secs); err != nil {
		return fmt.Errorf("close session: %w", err)
	}
	if err := t.update(ctx, guildID, userID, username, func(s *Stats, now time.Time) {
		s.TotalVoiceSeconds += secs
		s.RecordDay(now.In(t.loc))
	}); err != nil {
		return err
	}
	t.log.Debug().Str("guild", guildID).Str("user", username).Int64("seconds", secs).Msg("voice leave")
	return nil
}

// ActiveSessions reports how many voice sessions are open.
func (t *Tracker) ActiveSessions() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sessions)
}

func (t *Tracker) UserActivity(ctx context.Context, guildID, userID string) (*Stats, error) {
	return t.store.GetStats(ctx, guildID, userID)
}

func (t *Tracker) TopActive(ctx context.Context, guildID string, limit int) ([]Stats, error) {
	return t.store.TopActive(ctx, guildID, ClampLimit(limit))
}

func (t *Tracker) TopStreaks(ctx context.Context, guildID string, limit int) ([]Stats, error) {
	return t.store.TopStreaks(ctx, guildID, ClampLimit(limit))
}

// update loads (or creates) the member's row, applies fn and saves it.
// Callers hold t.mu.
func (t *Tracker) update(ctx context.Context, guildID, userID, username string, fn func(*Stats, time.Time)) error {
	now := t.now()
	s, err := t.store.GetStats(ctx, guildID, userID)
	switch {
	case errors.Is(err, ErrNotFound):
		s = &Stats{GuildID: guildID, UserID: userID, FirstSeenAt: now}
	case err != nil:
		return err
	}
	if username != "" {
		s.Username = username
	}
	s.LastSeenAt = now
	fn(s, now)
	return t.store.SaveStats(ctx, *s)
}
