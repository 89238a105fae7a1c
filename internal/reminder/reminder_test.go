package reminder

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RazeViana/Caitlyn/internal/birthday"
	"github.com/RazeViana/Caitlyn/internal/bus"
	"github.com/RazeViana/Caitlyn/internal/cron"
)

var fixedNow = time.Date(2026, time.October, 16, 9, 0, 0, 0, time.UTC)

type memStore struct {
	mu   sync.Mutex
	rows map[string]birthday.Birthday
	err  error
}

func newMemStore(rows ...birthday.Birthday) *memStore {
	s := &memStore{rows: make(map[string]birthday.Birthday)}
	for _, r := range rows {
		s.rows[r.SubjectID] = r
	}
	return s
}

func (s *memStore) GetBirthday(_ context.Context, id string) (*birthday.Birthday, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	b, ok := s.rows[id]
	if !ok {
		return nil, birthday.ErrNotFound
	}
	return &b, nil
}

func (s *memStore) InsertBirthday(_ context.Context, b birthday.Birthday) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rows[b.SubjectID]; ok {
		return birthday.ErrDuplicate
	}
	s.rows[b.SubjectID] = b
	return nil
}

func (s *memStore) UpdateBirthday(_ context.Context, b birthday.Birthday) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rows[b.SubjectID]; !ok {
		return birthday.ErrNotFound
	}
	s.rows[b.SubjectID] = b
	return nil
}

func (s *memStore) DeleteBirthday(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.rows[id]
	delete(s.rows, id)
	return ok, nil
}

func (s *memStore) ListBirthdays(_ context.Context) ([]birthday.Birthday, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	out := make([]birthday.Birthday, 0, len(s.rows))
	for _, b := range s.rows {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubjectID < out[j].SubjectID })
	return out, nil
}

type recordingNotifier struct {
	mu    sync.Mutex
	fired []birthday.Birthday
}

func (n *recordingNotifier) Fire(_ context.Context, b birthday.Birthday) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.fired = append(n.fired, b)
	return nil
}

func newScheduler(store birthday.Store) (*Scheduler, *cron.Registry) {
	reg := cron.NewRegistry(time.UTC, zerolog.Nop())
	s := NewScheduler(store, reg, &recordingNotifier{}, Options{Hour: 10, Now: func() time.Time { return fixedNow }}, zerolog.Nop())
	return s, reg
}

func TestAddThenRemoveLeavesNothing(t *testing.T) {
	store := newMemStore()
	s, reg := newScheduler(store)
	ctx := context.Background()

	job, err := s.Add(ctx, birthday.Birthday{SubjectID: "u1", Name: "Vi", Month: time.March, Day: 5})
	require.NoError(t, err)
	assert.Equal(t, "u1", job.SubjectID)
	assert.Equal(t, time.Date(2027, time.March, 5, 10, 0, 0, 0, time.UTC), job.Next)
	assert.True(t, reg.Has("u1"))

	removed, err := s.Remove(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, removed)

	_, err = store.GetBirthday(ctx, "u1")
	assert.ErrorIs(t, err, birthday.ErrNotFound)
	assert.False(t, reg.Has("u1"))
	assert.Zero(t, reg.Len())
}

func TestAddDuplicate(t *testing.T) {
	store := newMemStore()
	s, reg := newScheduler(store)
	ctx := context.Background()

	_, err := s.Add(ctx, birthday.Birthday{SubjectID: "u1", Name: "Vi", Month: time.March, Day: 5})
	require.NoError(t, err)

	_, err = s.Add(ctx, birthday.Birthday{SubjectID: "u1", Name: "Vi again", Month: time.April, Day: 6})
	require.ErrorIs(t, err, birthday.ErrDuplicate)

	all, _ := store.ListBirthdays(ctx)
	require.Len(t, all, 1)
	assert.Equal(t, "Vi", all[0].Name)
	assert.Equal(t, "yearly 03-05 10:00", reg.ListJobs()[0].Spec)
}

func TestAddInvalidDateHasNoSideEffects(t *testing.T) {
	store := newMemStore()
	s, reg := newScheduler(store)

	_, err := s.Add(context.Background(), birthday.Birthday{SubjectID: "u1", Month: time.February, Day: 30})
	require.ErrorIs(t, err, birthday.ErrValidation)

	all, _ := store.ListBirthdays(context.Background())
	assert.Empty(t, all)
	assert.Zero(t, reg.Len())
}

func TestAddStoreFailure(t *testing.T) {
	store := newMemStore()
	store.err = errors.New("connection refused")
	s, reg := newScheduler(store)

	_, err := s.Add(context.Background(), birthday.Birthday{SubjectID: "u1", Month: time.March, Day: 5})
	require.Error(t, err)
	assert.NotErrorIs(t, err, birthday.ErrDuplicate)
	assert.Zero(t, reg.Len())
}

func TestRemoveMissing(t *testing.T) {
	s, _ := newScheduler(newMemStore())
	removed, err := s.Remove(context.Background(), "ghost")
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestRemoveWithoutLiveJobIsNotFatal(t *testing.T) {
	store := newMemStore(birthday.Birthday{SubjectID: "u1", Month: time.March, Day: 5})
	s, _ := newScheduler(store)

	removed, err := s.Remove(context.Background(), "u1")
	require.NoError(t, err)
	assert.True(t, removed)
}

func TestUpdate(t *testing.T) {
	store := newMemStore()
	s, reg := newScheduler(store)
	ctx := context.Background()

	_, err := s.Update(ctx, birthday.Birthday{SubjectID: "u1", Month: time.March, Day: 5})
	require.ErrorIs(t, err, birthday.ErrNotFound)

	_, err = s.Add(ctx, birthday.Birthday{SubjectID: "u1", Name: "Vi", Month: time.March, Day: 5})
	require.NoError(t, err)

	job, err := s.Update(ctx, birthday.Birthday{SubjectID: "u1", Name: "Violet", Month: time.April, Day: 6, Year: 1995})
	require.NoError(t, err)
	assert.Equal(t, time.April, job.Schedule.Month)

	got, _ := store.GetBirthday(ctx, "u1")
	assert.Equal(t, "Violet", got.Name)
	assert.Equal(t, 1, reg.Len())
	assert.Equal(t, "yearly 04-06 10:00", reg.ListJobs()[0].Spec)
}

func TestRehydrationSkipsBadRows(t *testing.T) {
	store := newMemStore(
		birthday.Birthday{SubjectID: "A", Month: time.March, Day: 5},
		birthday.Birthday{SubjectID: "B", Month: time.February, Day: 30},
	)
	s, reg := newScheduler(store)

	res, err := NewBootstrapper(store, s, zerolog.Nop()).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Started)
	assert.Equal(t, 1, res.Failed)
	require.Len(t, res.Failures, 1)
	assert.Equal(t, "B", res.Failures[0].SubjectID)

	assert.True(t, reg.Has("A"))
	assert.False(t, reg.Has("B"))
}

func TestRehydrationIsIdempotent(t *testing.T) {
	store := newMemStore(birthday.Birthday{SubjectID: "A", Month: time.March, Day: 5})
	s, reg := newScheduler(store)
	boot := NewBootstrapper(store, s, zerolog.Nop())

	for i := 0; i < 2; i++ {
		_, err := boot.Run(context.Background())
		require.NoError(t, err)
	}
	assert.Equal(t, 1, reg.Len())
}

func TestRehydrationStoreFailure(t *testing.T) {
	store := newMemStore()
	store.err = errors.New("down")
	s, _ := newScheduler(store)
	_, err := NewBootstrapper(store, s, zerolog.Nop()).Run(context.Background())
	require.Error(t, err)
}

type captureSender struct {
	msgs []bus.OutboundMessage
}

func (c *captureSender) Send(_ context.Context, msg bus.OutboundMessage) error {
	c.msgs = append(c.msgs, msg)
	return nil
}

type stubGIFs struct {
	url string
	err error
}

func (g stubGIFs) Random(context.Context, string) (string, error) { return g.url, g.err }

func TestDispatcherWrongDaySendsNothing(t *testing.T) {
	sender := &captureSender{}
	d := NewDispatcher(sender, stubGIFs{url: "x"}, Destination{Channel: "discord", ChatID: "general"}, time.UTC,
		func() time.Time { return fixedNow }, zerolog.Nop())

	err := d.Fire(context.Background(), birthday.Birthday{SubjectID: "u1", Month: time.March, Day: 5})
	require.NoError(t, err)
	assert.Empty(t, sender.msgs)
}

func TestDispatcherSendsWithGIF(t *testing.T) {
	sender := &captureSender{}
	d := NewDispatcher(sender, stubGIFs{url: "https://media.example/cake.gif"}, Destination{Channel: "discord", ChatID: "general"}, time.UTC,
		func() time.Time { return fixedNow }, zerolog.Nop())

	err := d.Fire(context.Background(), birthday.Birthday{SubjectID: "u1", Name: "Vi", Month: time.October, Day: 16, Year: 1996})
	require.NoError(t, err)
	require.Len(t, sender.msgs, 1)

	msg := sender.msgs[0]
	assert.Equal(t, "general", msg.ChatID)
	assert.Contains(t, msg.Content, "<@u1>")
	require.NotNil(t, msg.Embed)
	assert.Equal(t, "https://media.example/cake.gif", msg.Embed.ImageURL)
	assert.Equal(t, "Oct 16, 30 years old!", msg.Embed.Fields[1].Value)
}

func TestDispatcherDegradesWithoutGIF(t *testing.T) {
	sender := &captureSender{}
	d := NewDispatcher(sender, stubGIFs{err: errors.New("giphy down")}, Destination{Channel: "telegram", ChatID: "99"}, time.UTC,
		func() time.Time { return fixedNow }, zerolog.Nop())

	err := d.Fire(context.Background(), birthday.Birthday{SubjectID: "u1", Name: "Vi", Month: time.October, Day: 16})
	require.NoError(t, err)
	require.Len(t, sender.msgs, 1)
	assert.Empty(t, sender.msgs[0].Embed.ImageURL)
	assert.Contains(t, sender.msgs[0].Content, "Vi")
	assert.Equal(t, "Oct 16", sender.msgs[0].Embed.Fields[1].Value)
}

func TestDispatcherUsesConfiguredZone(t *testing.T) {
	sender := &captureSender{}
	// 23:00 UTC on Oct 15 is already Oct 16 at UTC+2
	loc := time.FixedZone("plus2", 2*3600)
	now := time.Date(2026, time.October, 15, 23, 0, 0, 0, time.UTC)
	d := NewDispatcher(sender, nil, Destination{Channel: "discord"}, loc, func() time.Time { return now }, zerolog.Nop())

	require.NoError(t, d.Fire(context.Background(), birthday.Birthday{SubjectID: "u1", Month: time.October, Day: 16}))
	assert.Len(t, sender.msgs, 1)
}
