package cron

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	rcron "github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

var ErrJobNotFound = errors.New("job not found")

const stopTimeout = 5 * time.Second

// JobInfo is a read-only view of a registered job.
type JobInfo struct {
	ID   string
	Spec string
	Next time.Time
	Prev time.Time
}

type entry struct {
	id   rcron.EntryID
	spec string
}

// Registry owns every live recurring job, keyed by a caller-chosen id.
// One instance is created per process and passed explicitly to its users.
type Registry struct {
	mu      sync.Mutex
	cron    *rcron.Cron
	entries map[string]entry
	log     zerolog.Logger
	running bool
	stopCh  chan struct{}
}

func NewRegistry(loc *time.Location, log zerolog.Logger) *Registry {
	if loc == nil {
		loc = time.Local
	}
	l := log.With().Str("component", "cron").Logger()
	cl := cronLogger{log: l}
	return &Registry{
		cron: rcron.New(
			rcron.WithSeconds(),
			rcron.WithLocation(loc),
			rcron.WithLogger(cl),
			rcron.WithChain(rcron.Recover(cl)),
		),
		entries: make(map[string]entry),
		log:     l,
	}
}

// Location is the zone schedules are evaluated in.
func (r *Registry) Location() *time.Location {
	return r.cron.Location()
}

// AddJob registers fn under id with a custom schedule. An existing job with
// the same id is replaced, so rescheduling a subject never leaves two timers.
func (r *Registry) AddJob(id string, sched rcron.Schedule, fn func()) error {
	if id == "" {
		return fmt.Errorf("add job: empty id")
	}
	if sched == nil {
		return fmt.Errorf("add job %s: nil schedule", id)
	}
	spec := fmt.Sprint(sched)
	if s, ok := sched.(YearlySchedule); ok {
		if !s.Valid() {
			return fmt.Errorf("add job %s: invalid schedule %s", id, s)
		}
		spec = s.String()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeLocked(id)
	eid := r.cron.Schedule(sched, rcron.FuncJob(fn))
	r.entries[id] = entry{id: eid, spec: spec}
	r.log.Debug().Str("job", id).Str("spec", spec).Msg("job added")
	return nil
}

// AddFunc registers fn under id with a six-field cron expression
// (seconds first).
func (r *Registry) AddFunc(id, expr string, fn func()) error {
	if id == "" {
		return fmt.Errorf("add func: empty id")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeLocked(id)
	eid, err := r.cron.AddFunc(expr, fn)
	if err != nil {
		return fmt.Errorf("add func %s (%s): %w", id, expr, err)
	}
	r.entries[id] = entry{id: eid, spec: expr}
	r.log.Debug().Str("job", id).Str("spec", expr).Msg("job added")
	return nil
}

// StopJob removes one job. A missing id yields ErrJobNotFound, which callers
// may treat as non-fatal.
func (r *Registry) StopJob(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.removeLocked(id) {
		return fmt.Errorf("stop job %s: %w", id, ErrJobNotFound)
	}
	r.log.Debug().Str("job", id).Msg("job stopped")
	return nil
}

// StopAllJobs removes every job and returns how many were registered.
func (r *Registry) StopAllJobs() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := len(r.entries)
	for id := range r.entries {
		r.removeLocked(id)
	}
	r.log.Info().Int("count", n).Msg("all jobs stopped")
	return n
}

func (r *Registry) Has(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.entries[id]
	return ok
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// ListJobs returns the registered jobs sorted by id. Next is zero until the
// registry has been started.
func (r *Registry) ListJobs() []JobInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]JobInfo, 0, len(r.entries))
	for id, e := range r.entries {
		ce := r.cron.Entry(e.id)
		out = append(out, JobInfo{ID: id, Spec: e.spec, Next: ce.Next, Prev: ce.Prev})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Start begins firing jobs. Cancelling ctx stops the registry.
func (r *Registry) Start(ctx context.Context) {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return
	}
	r.running = true
	stopCh := make(chan struct{})
	r.stopCh = stopCh
	n := len(r.entries)
	r.mu.Unlock()

	r.cron.Start()
	r.log.Info().Int("jobs", n).Msg("started")

	go func() {
		select {
		case <-ctx.Done():
			r.Stop()
		case <-stopCh:
		}
	}()
}

// Stop halts the runner and waits briefly for in-flight jobs. Registered
// jobs are kept; use StopAllJobs to drop them.
func (r *Registry) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	close(r.stopCh)
	r.stopCh = nil
	r.mu.Unlock()

	stopCtx := r.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-time.After(stopTimeout):
		r.log.Warn().Msg("stop timeout waiting for running jobs")
	}
	r.log.Info().Msg("stopped")
}

func (r *Registry) removeLocked(id string) bool {
	e, ok := r.entries[id]
	if !ok {
		return false
	}
	r.cron.Remove(e.id)
	delete(r.entries, id)
	return true
}

// cronLogger routes robfig/cron's logging through zerolog.
type cronLogger struct {
	log zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
