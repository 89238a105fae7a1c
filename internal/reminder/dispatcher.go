package reminder

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/RazeViana/Caitlyn/internal/birthday"
	"github.com/RazeViana/Caitlyn/internal/bus"
)

const (
	gifTimeout    = 5 * time.Second
	embedColor    = 16776960
	embedFooter   = "Don't forget to send them my regards 🥳"
	birthdayTitle = "🎉 Birthday Reminder! 🎉"
)

// Sender delivers one outbound message.
type Sender interface {
	Send(ctx context.Context, msg bus.OutboundMessage) error
}

// GIFSource returns a decorative image URL.
type GIFSource interface {
	Random(ctx context.Context, tag string) (string, error)
}

// Destination is where notifications are posted.
type Destination struct {
	Channel string
	ChatID  string
}

type Dispatcher struct {
	sender Sender
	gifs   GIFSource
	dest   Destination
	loc    *time.Location
	now    func() time.Time
	log    zerolog.Logger
}

func NewDispatcher(sender Sender, gifs GIFSource, dest Destination, loc *time.Location, now func() time.Time, log zerolog.Logger) *Dispatcher {
	if loc == nil {
		loc = time.Local
	}
	if now == nil {
		now = time.Now
	}
	return &Dispatcher{
		sender: sender,
		gifs:   gifs,
		dest:   dest,
		loc:    loc,
		now:    now,
		log:    log.With().Str("component", "birthday-notify").Logger(),
	}
}

// Fire posts the notification for b if today is b's birthday. On any other
// day it does nothing and returns nil.
func (d *Dispatcher) Fire(ctx context.Context, b birthday.Birthday) error {
	today := d.now().In(d.loc)
	if !b.IsToday(today) {
		d.log.Debug().Str("subject", b.SubjectID).Msg("not today, skipping")
		return nil
	}

	gif := ""
	if d.gifs != nil {
		gctx, cancel := context.WithTimeout(ctx, gifTimeout)
		url, err := d.gifs.Random(gctx, "birthday")
		cancel()
		if err != nil {
			d.log.Warn().Err(err).Str("subject", b.SubjectID).Msg("gif unavailable, sending without it")
		} else {
			gif = url
		}
	}

	msg := Compose(d.dest, b, today, gif)
	if err := d.sender.Send(ctx, msg); err != nil {
		return fmt.Errorf("send birthday notification: %w", err)
	}
	d.log.Info().Str("subject", b.SubjectID).Msg("birthday notification sent")
	return nil
}

// Compose builds the notification payload for b on day.
func Compose(dest Destination, b birthday.Birthday, day time.Time, gifURL string) bus.OutboundMessage {
	who := Mention(dest.Channel, b)
	date := b.FormatDate()
	if age := b.AgeOn(day); age > 0 {
		date = fmt.Sprintf("%s, %d years old!", date, age)
	}
	return bus.OutboundMessage{
		Channel: dest.Channel,
		ChatID:  dest.ChatID,
		Content: fmt.Sprintf("Happy birthday %s! 🎂", who),
		Embed: &bus.Embed{
			Title:    birthdayTitle,
			Color:    embedColor,
			ImageURL: gifURL,
			Fields: []bus.EmbedField{
				{Name: "🍰 Name:", Value: who, Inline: true},
				{Name: "🎂 Date:", Value: date, Inline: true},
			},
			Footer:    embedFooter,
			Timestamp: day,
		},
	}
}

// Mention renders a subject reference the destination channel understands.
func Mention(channel string, b birthday.Birthday) string {
	if channel == "discord" {
		return "<@" + b.SubjectID + ">"
	}
	if b.Name != "" {
		return b.Name
	}
	return b.SubjectID
}
