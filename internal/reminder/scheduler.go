// Package reminder schedules yearly birthday notifications and restores them
// after a restart.
package reminder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/RazeViana/Caitlyn/internal/birthday"
	"github.com/RazeViana/Caitlyn/internal/cron"
)

const fireTimeout = 30 * time.Second

// Notifier is called when a birthday trigger fires.
type Notifier interface {
	Fire(ctx context.Context, b birthday.Birthday) error
}

// Job is a scheduled birthday as seen by callers.
type Job struct {
	SubjectID string
	Schedule  cron.YearlySchedule
	Next      time.Time
}

type Options struct {
	Hour   int
	Minute int
	Now    func() time.Time
}

type Scheduler struct {
	store    birthday.Store
	registry *cron.Registry
	notifier Notifier
	hour     int
	minute   int
	now      func() time.Time
	log      zerolog.Logger
}

func NewScheduler(store birthday.Store, registry *cron.Registry, notifier Notifier, opts Options, log zerolog.Logger) *Scheduler {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Scheduler{
		store:    store,
		registry: registry,
		notifier: notifier,
		hour:     opts.Hour,
		minute:   opts.Minute,
		now:      now,
		log:      log.With().Str("component", "reminder").Logger(),
	}
}

// Trigger derives the yearly schedule for b. Add and rehydration both go
// through here so a subject always fires at the same instant.
func (s *Scheduler) Trigger(b birthday.Birthday) cron.YearlySchedule {
	return cron.YearlySchedule{Month: b.Month, Day: b.Day, Hour: s.hour, Minute: s.minute}
}

// Add validates, persists and schedules a new birthday. It fails with
// birthday.ErrDuplicate when the subject already has one.
func (s *Scheduler) Add(ctx context.Context, b birthday.Birthday) (*Job, error) {
	if err := b.Validate(s.now()); err != nil {
		return nil, err
	}

	existing, err := s.store.GetBirthday(ctx, b.SubjectID)
	if err != nil && !errors.Is(err, birthday.ErrNotFound) {
		return nil, fmt.Errorf("lookup birthday: %w", err)
	}
	if existing != nil {
		return nil, fmt.Errorf("subject %s: %w", b.SubjectID, birthday.ErrDuplicate)
	}

	if err := s.store.InsertBirthday(ctx, b); err != nil {
		return nil, fmt.Errorf("insert birthday: %w", err)
	}

	job, err := s.schedule(b)
	if err != nil {
		if _, derr := s.store.DeleteBirthday(ctx, b.SubjectID); derr != nil {
			s.log.Error().Err(derr).Str("subject", b.SubjectID).Msg("rollback after schedule failure")
		}
		return nil, err
	}
	s.log.Info().Str("subject", b.SubjectID).Str("spec", job.Schedule.String()).Msg("birthday added")
	return job, nil
}

// Update replaces the stored name and date and re-arms the job.
func (s *Scheduler) Update(ctx context.Context, b birthday.Birthday) (*Job, error) {
	if err := b.Validate(s.now()); err != nil {
		return nil, err
	}
	if _, err := s.store.GetBirthday(ctx, b.SubjectID); err != nil {
		return nil, err
	}
	if err := s.store.UpdateBirthday(ctx, b); err != nil {
		return nil, fmt.Errorf("update birthday: %w", err)
	}
	job, err := s.schedule(b)
	if err != nil {
		return nil, err
	}
	s.log.Info().Str("subject", b.SubjectID).Str("spec", job.Schedule.String()).Msg("birthday updated")
	return job, nil
}

// Remove deletes the subject's birthday and stops its job. A missing job is
// logged, not returned: it happens when a remove races a restart.
func (s *Scheduler) Remove(ctx context.Context, subjectID string) (bool, error) {
	deleted, err := s.store.DeleteBirthday(ctx, subjectID)
	if err != nil {
		return false, fmt.Errorf("delete birthday: %w", err)
	}
	if !deleted {
		return false, nil
	}
	if err := s.registry.StopJob(subjectID); err != nil {
		if !errors.Is(err, cron.ErrJobNotFound) {
			return true, err
		}
		s.log.Warn().Str("subject", subjectID).Msg("no live job for removed birthday")
	}
	s.log.Info().Str("subject", subjectID).Msg("birthday removed")
	return true, nil
}

// ScheduleExisting re-arms a job for a row that is already persisted.
func (s *Scheduler) ScheduleExisting(b birthday.Birthday) (*Job, error) {
	if err := b.Validate(s.now()); err != nil {
		return nil, err
	}
	return s.schedule(b)
}

func (s *Scheduler) List(ctx context.Context) ([]birthday.Birthday, error) {
	return s.store.ListBirthdays(ctx)
}

func (s *Scheduler) schedule(b birthday.Birthday) (*Job, error) {
	sched := s.Trigger(b)
	err := s.registry.AddJob(b.SubjectID, sched, func() {
		ctx, cancel := context.WithTimeout(context.Background(), fireTimeout)
		defer cancel()
		if err := s.notifier.Fire(ctx, b); err != nil {
			s.log.Error().Err(err).Str("subject", b.SubjectID).Msg("birthday notification failed")
		}
	})
	if err != nil {
		return nil, fmt.Errorf("schedule birthday: %w", err)
	}
	return &Job{
		SubjectID: b.SubjectID,
		Schedule:  sched,
		Next:      sched.Next(s.now().In(s.registry.Location())),
	}, nil
}
