package reminder

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/RazeViana/Caitlyn/internal/birthday"
)

type Failure struct {
	SubjectID string
	Err       error
}

type Result struct {
	Started  int
	Failed   int
	Failures []Failure
}

// Bootstrapper rebuilds every job from the store. Run it once at startup,
// before commands are accepted.
type Bootstrapper struct {
	store     birthday.Store
	scheduler *Scheduler
	log       zerolog.Logger
}

func NewBootstrapper(store birthday.Store, scheduler *Scheduler, log zerolog.Logger) *Bootstrapper {
	return &Bootstrapper{
		store:     store,
		scheduler: scheduler,
		log:       log.With().Str("component", "rehydrate").Logger(),
	}
}

// Run loads all birthdays and restores their jobs. Only a failure to read
// the store is returned as an error; bad rows are counted in the result.
func (b *Bootstrapper) Run(ctx context.Context) (Result, error) {
	all, err := b.store.ListBirthdays(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("list birthdays: %w", err)
	}
	res := b.Restore(all)
	b.log.Info().Int("started", res.Started).Int("failed", res.Failed).Msg("rehydration complete")
	return res, nil
}

func (b *Bootstrapper) Restore(all []birthday.Birthday) Result {
	var res Result
	for _, bd := range all {
		if _, err := b.scheduler.ScheduleExisting(bd); err != nil {
			res.Failed++
			res.Failures = append(res.Failures, Failure{SubjectID: bd.SubjectID, Err: err})
			b.log.Warn().Err(err).Str("subject", bd.SubjectID).Msg("skipping birthday")
			continue
		}
		res.Started++
	}
	return res
}
