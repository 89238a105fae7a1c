package cron

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestYearlySchedule_Next(t *testing.T) {
	utc := time.UTC
	tests := []struct {
		name  string
		sched YearlySchedule
		from  time.Time
		want  time.Time
	}{
		{
			name:  "later this year",
			sched: YearlySchedule{Month: time.March, Day: 5, Hour: 10},
			from:  time.Date(2026, time.January, 1, 0, 0, 0, 0, utc),
			want:  time.Date(2026, time.March, 5, 10, 0, 0, 0, utc),
		},
		{
			name:  "already passed this year",
			sched: YearlySchedule{Month: time.March, Day: 5, Hour: 10},
			from:  time.Date(2026, time.March, 6, 0, 0, 0, 0, utc),
			want:  time.Date(2027, time.March, 5, 10, 0, 0, 0, utc),
		},
		{
			name:  "same day before hour",
			sched: YearlySchedule{Month: time.March, Day: 5, Hour: 10},
			from:  time.Date(2026, time.March, 5, 9, 59, 0, 0, utc),
			want:  time.Date(2026, time.March, 5, 10, 0, 0, 0, utc),
		},
		{
			name:  "strictly after trigger instant",
			sched: YearlySchedule{Month: time.March, Day: 5, Hour: 10},
			from:  time.Date(2026, time.March, 5, 10, 0, 0, 0, utc),
			want:  time.Date(2027, time.March, 5, 10, 0, 0, 0, utc),
		},
		{
			name:  "leap day waits for leap year",
			sched: YearlySchedule{Month: time.February, Day: 29, Hour: 10},
			from:  time.Date(2026, time.October, 16, 0, 0, 0, 0, utc),
			want:  time.Date(2028, time.February, 29, 10, 0, 0, 0, utc),
		},
		{
			name:  "leap day skips 2100",
			sched: YearlySchedule{Month: time.February, Day: 29},
			from:  time.Date(2096, time.March, 1, 0, 0, 0, 0, utc),
			want:  time.Date(2104, time.February, 29, 0, 0, 0, 0, utc),
		},
		{
			name:  "impossible date",
			sched: YearlySchedule{Month: time.February, Day: 30},
			from:  time.Date(2026, time.January, 1, 0, 0, 0, 0, utc),
			want:  time.Time{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.sched.Next(tt.from)
			if !got.Equal(tt.want) {
				t.Errorf("Next(%v) = %v, want %v", tt.from, got, tt.want)
			}
		})
	}
}

func TestYearlySchedule_NextKeepsLocation(t *testing.T) {
	loc := time.FixedZone("test", 2*3600)
	sched := YearlySchedule{Month: time.July, Day: 1, Hour: 10}
	got := sched.Next(time.Date(2026, time.June, 1, 0, 0, 0, 0, loc))
	if got.Location() != loc || got.Hour() != 10 {
		t.Errorf("Next = %v, want 10:00 in %s", got, loc)
	}
}

func TestYearlySchedule_Valid(t *testing.T) {
	valid := []YearlySchedule{
		{Month: time.January, Day: 31, Hour: 23, Minute: 59},
		{Month: time.February, Day: 29},
	}
	for _, s := range valid {
		if !s.Valid() {
			t.Errorf("%s should be valid", s)
		}
	}
	invalid := []YearlySchedule{
		{Month: time.February, Day: 30},
		{Month: time.April, Day: 31},
		{Month: 0, Day: 1},
		{Month: time.May, Day: 0},
		{Month: time.May, Day: 1, Hour: 24},
		{Month: time.May, Day: 1, Minute: 60},
	}
	for _, s := range invalid {
		if s.Valid() {
			t.Errorf("%s should be invalid", s)
		}
	}
}

func TestYearlySchedule_String(t *testing.T) {
	s := YearlySchedule{Month: time.March, Day: 5, Hour: 10, Minute: 0}
	if got := s.String(); got != "yearly 03-05 10:00" {
		t.Errorf("String = %q", got)
	}
}

func newTestRegistry() *Registry {
	return NewRegistry(time.UTC, zerolog.Nop())
}

func TestRegistry_AddAndListJobs(t *testing.T) {
	r := newTestRegistry()

	if err := r.AddJob("b", YearlySchedule{Month: time.March, Day: 5, Hour: 10}, func() {}); err != nil {
		t.Fatalf("AddJob error: %v", err)
	}
	if err := r.AddJob("a", YearlySchedule{Month: time.May, Day: 1, Hour: 10}, func() {}); err != nil {
		t.Fatalf("AddJob error: %v", err)
	}

	jobs := r.ListJobs()
	if len(jobs) != 2 {
		t.Fatalf("len(jobs) = %d, want 2", len(jobs))
	}
	if jobs[0].ID != "a" || jobs[1].ID != "b" {
		t.Errorf("jobs not sorted by id: %+v", jobs)
	}
	if jobs[1].Spec != "yearly 03-05 10:00" {
		t.Errorf("spec = %q", jobs[1].Spec)
	}
}

func TestRegistry_AddJobReplacesSameID(t *testing.T) {
	r := newTestRegistry()
	_ = r.AddJob("u1", YearlySchedule{Month: time.March, Day: 5}, func() {})
	_ = r.AddJob("u1", YearlySchedule{Month: time.April, Day: 6}, func() {})

	if r.Len() != 1 {
		t.Fatalf("Len = %d, want 1", r.Len())
	}
	if got := r.ListJobs()[0].Spec; got != "yearly 04-06 00:00" {
		t.Errorf("spec = %q, want replaced schedule", got)
	}
	if n := len(r.cron.Entries()); n != 1 {
		t.Errorf("underlying entries = %d, want 1", n)
	}
}

func TestRegistry_AddJobRejectsInvalid(t *testing.T) {
	r := newTestRegistry()
	if err := r.AddJob("bad", YearlySchedule{Month: time.February, Day: 30}, func() {}); err == nil {
		t.Error("expected error for Feb 30")
	}
	if err := r.AddJob("", YearlySchedule{Month: time.March, Day: 1}, func() {}); err == nil {
		t.Error("expected error for empty id")
	}
	if r.Has("bad") {
		t.Error("invalid job should not be registered")
	}
}

func TestRegistry_StopJob(t *testing.T) {
	r := newTestRegistry()
	_ = r.AddJob("u1", YearlySchedule{Month: time.March, Day: 5}, func() {})

	if err := r.StopJob("u1"); err != nil {
		t.Fatalf("StopJob error: %v", err)
	}
	if r.Has("u1") {
		t.Error("job not removed")
	}

	err := r.StopJob("u1")
	if !errors.Is(err, ErrJobNotFound) {
		t.Errorf("second StopJob error = %v, want ErrJobNotFound", err)
	}
}

func TestRegistry_StopAllJobs(t *testing.T) {
	r := newTestRegistry()
	_ = r.AddJob("u1", YearlySchedule{Month: time.March, Day: 5}, func() {})
	_ = r.AddJob("u2", YearlySchedule{Month: time.March, Day: 6}, func() {})
	_ = r.AddFunc("trim", "0 30 4 * * *", func() {})

	if n := r.StopAllJobs(); n != 3 {
		t.Errorf("StopAllJobs = %d, want 3", n)
	}
	if len(r.ListJobs()) != 0 || len(r.cron.Entries()) != 0 {
		t.Error("registry should be empty")
	}
}

func TestRegistry_AddFuncInvalidExpr(t *testing.T) {
	r := newTestRegistry()
	if err := r.AddFunc("bad", "invalid", func() {}); err == nil {
		t.Error("expected error for invalid expression")
	}
	if r.Has("bad") {
		t.Error("invalid func should not be registered")
	}
}

func TestRegistry_FiresExpressionJob(t *testing.T) {
	r := newTestRegistry()
	var count atomic.Int32
	if err := r.AddFunc("tick", "* * * * * *", func() { count.Add(1) }); err != nil {
		t.Fatalf("AddFunc error: %v", err)
	}

	r.Start(context.Background())
	defer r.Stop()

	deadline := time.Now().Add(3 * time.Second)
	for count.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
	if count.Load() == 0 {
		t.Fatal("expected the job to fire")
	}
	if next := r.ListJobs()[0].Next; next.IsZero() {
		t.Error("running job should report its next run")
	}
}

func TestRegistry_RecoversPanickingJob(t *testing.T) {
	r := newTestRegistry()
	var count atomic.Int32
	_ = r.AddFunc("boom", "* * * * * *", func() {
		count.Add(1)
		panic("boom")
	})

	r.Start(context.Background())
	defer r.Stop()

	deadline := time.Now().Add(3 * time.Second)
	for count.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
	if count.Load() == 0 {
		t.Fatal("expected the job to run")
	}
}

func TestRegistry_ParentCancelStops(t *testing.T) {
	r := newTestRegistry()
	ctx, cancel := context.WithCancel(context.Background())
	r.Start(ctx)
	cancel()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		r.mu.Lock()
		running := r.running
		r.mu.Unlock()
		if !running {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	r.Stop()
	t.Fatal("expected parent context cancellation to trigger Stop")
}

func TestRegistry_StopIsIdempotent(t *testing.T) {
	r := newTestRegistry()
	r.Stop()
	r.Start(context.Background())
	r.Stop()
	r.Stop()
}
