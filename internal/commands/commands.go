// Package commands holds the bot's slash command handlers.
package commands

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/RazeViana/Caitlyn/internal/activity"
	"github.com/RazeViana/Caitlyn/internal/ai"
	"github.com/RazeViana/Caitlyn/internal/birthday"
	"github.com/RazeViana/Caitlyn/internal/command"
	"github.com/RazeViana/Caitlyn/internal/reminder"
)

type BirthdayService interface {
	Add(ctx context.Context, b birthday.Birthday) (*reminder.Job, error)
	Update(ctx context.Context, b birthday.Birthday) (*reminder.Job, error)
	Remove(ctx context.Context, subjectID string) (bool, error)
	List(ctx context.Context) ([]birthday.Birthday, error)
}

type ActivityService interface {
	UserActivity(ctx context.Context, guildID, userID string) (*activity.Stats, error)
	TopActive(ctx context.Context, guildID string, limit int) ([]activity.Stats, error)
	TopStreaks(ctx context.Context, guildID string, limit int) ([]activity.Stats, error)
}

type Deps struct {
	Birthdays BirthdayService
	Activity  ActivityService
	AI        *ai.State
	GIFs      reminder.GIFSource
	Router    *command.Router
	Location  *time.Location
	Now       func() time.Time
	Log       zerolog.Logger
}

func (d Deps) now() time.Time {
	now := time.Now
	if d.Now != nil {
		now = d.Now
	}
	loc := d.Location
	if loc == nil {
		loc = time.Local
	}
	return now().In(loc)
}

// Register adds every handler to r.
func Register(r *command.Router, d Deps) error {
	if d.Router == nil {
		d.Router = r
	}
	d.Log = d.Log.With().Str("component", "commands").Logger()
	factories := []command.Factory{
		func() command.Handler { return &ping{} },
		func() command.Handler { return &server{} },
		func() command.Handler { return &user{} },
		func() command.Handler { return &reload{router: d.Router} },
		func() command.Handler { return &toggleAI{state: d.AI, log: d.Log} },
		func() command.Handler { return &addBirthday{deps: d} },
		func() command.Handler { return &updateBirthday{deps: d} },
		func() command.Handler { return &removeBirthday{deps: d} },
		func() command.Handler { return &showBirthdays{deps: d} },
		func() command.Handler { return &userActivity{deps: d} },
		func() command.Handler { return &leaderboard{deps: d} },
		func() command.Handler { return &streaks{deps: d} },
	}
	for _, f := range factories {
		if err := r.Register(f); err != nil {
			return err
		}
	}
	return nil
}
