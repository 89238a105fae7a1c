package commands

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/RazeViana/Caitlyn/internal/birthday"
	"github.com/RazeViana/Caitlyn/internal/bus"
	"github.com/RazeViana/Caitlyn/internal/command"
	"github.com/RazeViana/Caitlyn/internal/reminder"
)

const (
	calendarColor     = 0xff80ab
	fallbackThumbnail = "https://i.imgur.com/4qijkuw.jpeg"
	gifTimeout        = 5 * time.Second
)

func monthChoices() []command.Choice {
	out := make([]command.Choice, 12)
	for m := time.January; m <= time.December; m++ {
		out[m-1] = command.Choice{Name: m.String(), Value: strconv.Itoa(int(m))}
	}
	return out
}

func dateOptions(verb string) []command.Option {
	return []command.Option{
		{Name: "user", Description: "The user whose birthday you want to " + verb, Type: command.OptionUser, Required: true},
		{Name: "day", Description: "The day of the birthday e.g. 28", Type: command.OptionInteger, Required: true, MinValue: command.IntPtr(1), MaxValue: command.IntPtr(31)},
		{Name: "month", Description: "The month of the birthday", Type: command.OptionString, Required: true, Choices: monthChoices()},
		{Name: "year", Description: "The year of the birthday e.g. 1997", Type: command.OptionInteger, Required: true},
	}
}

// birthdayFrom reads the date options. Option presence was checked by the
// router.
func birthdayFrom(inv command.Invocation) birthday.Birthday {
	u := inv.UserOption("user")
	day, _ := inv.Int("day")
	year, _ := inv.Int("year")
	month, _ := inv.String("month")
	m, _ := strconv.Atoi(month)
	return birthday.Birthday{SubjectID: u.ID, Name: u.Name, Month: time.Month(m), Day: int(day), Year: int(year)}
}

func validationReply(err error) (command.Response, bool) {
	var ve *birthday.ValidationError
	if !errors.As(err, &ve) {
		return command.Response{}, false
	}
	if ve.Field == "year" {
		return command.Private(fmt.Sprintf("Please provide a valid year (%s).", ve.Reason)), true
	}
	return command.Private("Please provide a valid date."), true
}

func displayDate(b birthday.Birthday) string {
	if b.Year == 0 {
		return b.FormatDate()
	}
	return fmt.Sprintf("%s, %d", b.FormatDate(), b.Year)
}

type addBirthday struct{ deps Deps }

func (h *addBirthday) Definition() command.Definition {
	return command.Definition{
		Name:        "addbirthday",
		Description: "Sets a birthday reminder for the specified user",
		Options:     dateOptions("add"),
	}
}

func (h *addBirthday) Execute(ctx context.Context, inv command.Invocation) (command.Response, error) {
	b := birthdayFrom(inv)
	who := reminder.Mention(inv.Channel, b)
	_, err := h.deps.Birthdays.Add(ctx, b)
	if resp, ok := validationReply(err); ok {
		return resp, nil
	}
	switch {
	case errors.Is(err, birthday.ErrDuplicate):
		return command.Private(fmt.Sprintf("%s already has a birthday set. Use /updatebirthday to change it.", who)), nil
	case err != nil:
		h.deps.Log.Error().Err(err).Str("subject", b.SubjectID).Msg("add birthday")
		return command.Private(command.GenericFailure), nil
	}
	return command.Private(fmt.Sprintf("🎂 Birthday for %s set to %s!", who, displayDate(b))), nil
}

type updateBirthday struct{ deps Deps }

func (h *updateBirthday) Definition() command.Definition {
	return command.Definition{
		Name:        "updatebirthday",
		Description: "Changes the saved birthday of the specified user",
		Options:     dateOptions("update"),
	}
}

func (h *updateBirthday) Execute(ctx context.Context, inv command.Invocation) (command.Response, error) {
	b := birthdayFrom(inv)
	who := reminder.Mention(inv.Channel, b)
	_, err := h.deps.Birthdays.Update(ctx, b)
	if resp, ok := validationReply(err); ok {
		return resp, nil
	}
	switch {
	case errors.Is(err, birthday.ErrNotFound):
		return command.Private(fmt.Sprintf("No birthday saved for %s. Use /addbirthday first.", who)), nil
	case err != nil:
		h.deps.Log.Error().Err(err).Str("subject", b.SubjectID).Msg("update birthday")
		return command.Private(command.GenericFailure), nil
	}
	return command.Private(fmt.Sprintf("🎂 Birthday for %s updated to %s!", who, displayDate(b))), nil
}

type removeBirthday struct{ deps Deps }

func (h *removeBirthday) Definition() command.Definition {
	return command.Definition{
		Name:        "removebirthday",
		Description: "Removes the birthday reminder of the specified user",
		Options: []command.Option{
			{Name: "user", Description: "The user whose birthday you want to remove", Type: command.OptionUser, Required: true},
		},
	}
}

func (h *removeBirthday) Execute(ctx context.Context, inv command.Invocation) (command.Response, error) {
	u := inv.UserOption("user")
	who := reminder.Mention(inv.Channel, birthday.Birthday{SubjectID: u.ID, Name: u.Name})
	removed, err := h.deps.Birthdays.Remove(ctx, u.ID)
	if err != nil {
		h.deps.Log.Error().Err(err).Str("subject", u.ID).Msg("remove birthday")
		return command.Private(command.GenericFailure), nil
	}
	if !removed {
		return command.Private(fmt.Sprintf("No birthday found for %s.", who)), nil
	}
	return command.Private(fmt.Sprintf("🗑️ Removed the birthday for %s.", who)), nil
}

type showBirthdays struct{ deps Deps }

func (h *showBirthdays) Definition() command.Definition {
	return command.Definition{
		Name:        "showbirthdays",
		Description: "🎉 View all saved birthdays grouped by month!",
		Defer:       true,
	}
}

func (h *showBirthdays) Execute(ctx context.Context, inv command.Invocation) (command.Response, error) {
	all, err := h.deps.Birthdays.List(ctx)
	if err != nil {
		h.deps.Log.Error().Err(err).Msg("list birthdays")
		return command.Response{Content: "An error occurred fetching birthdays."}, nil
	}
	if len(all) == 0 {
		return command.Response{Content: "😢 No birthdays found!"}, nil
	}

	thumb := fallbackThumbnail
	if h.deps.GIFs != nil {
		gctx, cancel := context.WithTimeout(ctx, gifTimeout)
		if url, err := h.deps.GIFs.Random(gctx, ""); err == nil && url != "" {
			thumb = url
		} else if err != nil {
			h.deps.Log.Warn().Err(err).Msg("calendar gif unavailable")
		}
		cancel()
	}

	embed := Calendar(inv.Channel, all, h.deps.now())
	embed.ThumbnailURL = thumb
	embed.Footer = "Requested by " + inv.User.Name
	return command.Response{Embed: embed}, nil
}

// Calendar groups birthdays by month, starting from now's month. Months
// already past this year are labelled with next year.
func Calendar(channel string, all []birthday.Birthday, now time.Time) *bus.Embed {
	byMonth := make(map[time.Month][]birthday.Birthday)
	for _, b := range all {
		if b.Month < time.January || b.Month > time.December {
			continue
		}
		byMonth[b.Month] = append(byMonth[b.Month], b)
	}

	embed := &bus.Embed{
		Title:       "🎂 Birthday Calendar",
		Description: "Here are all the saved birthdays",
		Color:       calendarColor,
		Timestamp:   now,
	}
	for offset := 0; offset < 12; offset++ {
		m := time.Month((int(now.Month())-1+offset)%12 + 1)
		list := byMonth[m]
		if len(list) == 0 {
			continue
		}
		sort.SliceStable(list, func(i, j int) bool { return list[i].Day < list[j].Day })

		year := now.Year()
		if m < now.Month() {
			year++
		}
		lines := make([]string, 0, len(list))
		for _, b := range list {
			who := reminder.Mention(channel, b)
			if channel == "discord" && b.Name != "" {
				who = fmt.Sprintf("%s (%s)", who, b.Name)
			}
			if b.IsToday(now) {
				lines = append(lines, "🎉 **Today!** - "+who)
				continue
			}
			lines = append(lines, fmt.Sprintf("%s - ⏳ %d day(s) left • %s", displayDate(b), b.DaysUntil(now), who))
		}
		embed.Fields = append(embed.Fields, bus.EmbedField{
			Name:  fmt.Sprintf("📆 %s %d", m, year),
			Value: strings.Join(lines, "\n"),
		})
	}
	return embed
}
