package commands

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/RazeViana/Caitlyn/internal/activity"
	"github.com/RazeViana/Caitlyn/internal/bus"
	"github.com/RazeViana/Caitlyn/internal/command"
)

const (
	statsColor       = 0x5865f2
	leaderboardColor = 0xffd700
	streaksColor     = 0xff6b35
)

func limitOption() command.Option {
	return command.Option{
		Name:        "limit",
		Description: fmt.Sprintf("Number of users to show (default: %d)", activity.DefaultLimit),
		Type:        command.OptionInteger,
		MinValue:    command.IntPtr(activity.MinLimit),
		MaxValue:    command.IntPtr(activity.MaxLimit),
	}
}

func limitOf(inv command.Invocation) int {
	n, _ := inv.Int("limit")
	return activity.ClampLimit(int(n))
}

func medal(i int) string {
	switch i {
	case 0:
		return "🥇"
	case 1:
		return "🥈"
	case 2:
		return "🥉"
	default:
		return fmt.Sprintf("**%d.**", i+1)
	}
}

type userActivity struct{ deps Deps }

func (h *userActivity) Definition() command.Definition {
	return command.Definition{
		Name:        "activity",
		Description: "View user activity statistics",
		Options: []command.Option{
			{Name: "user", Description: "The user to view activity for (defaults to yourself)", Type: command.OptionUser},
		},
	}
}

func (h *userActivity) Execute(ctx context.Context, inv command.Invocation) (command.Response, error) {
	u := inv.UserOption("user")
	st, err := h.deps.Activity.UserActivity(ctx, inv.GuildID, u.ID)
	if errors.Is(err, activity.ErrNotFound) {
		return command.Private(fmt.Sprintf("No activity data found for %s.", u.Name)), nil
	}
	if err != nil {
		h.deps.Log.Error().Err(err).Str("user", u.ID).Msg("fetch activity")
		return command.Private("❌ Failed to fetch activity stats. Please try again later."), nil
	}
	embed := StatsEmbed(*st)
	embed.Footer = "Requested by " + inv.User.Name
	embed.Timestamp = h.deps.now()
	return command.Response{Embed: embed}, nil
}

// DaysActive counts calendar days from first to last sighting, at least one.
func DaysActive(st activity.Stats) int {
	if st.FirstSeenAt.IsZero() || st.LastSeenAt.IsZero() {
		return 1
	}
	days := int(math.Ceil(st.LastSeenAt.Sub(st.FirstSeenAt).Hours()/24)) + 1
	return max(1, days)
}

func StatsEmbed(st activity.Stats) *bus.Embed {
	days := DaysActive(st)
	name := st.Username
	if name == "" {
		name = st.UserID
	}
	return &bus.Embed{
		Title: "📊 Activity Stats for " + name,
		Color: statsColor,
		Fields: []bus.EmbedField{
			{Name: "💬 Messages Sent", Value: fmt.Sprint(st.MessageCount), Inline: true},
			{Name: "🎤 Voice Joins", Value: fmt.Sprint(st.VoiceJoinCount), Inline: true},
			{Name: "⏱️ Time in Voice", Value: activity.FormatDuration(st.TotalVoiceSeconds), Inline: true},
			{Name: "📊 Avg Messages/Day", Value: fmt.Sprintf("%.1f", float64(st.MessageCount)/float64(days)), Inline: true},
			{Name: "📊 Avg Voice Time/Day", Value: activity.FormatDuration(st.TotalVoiceSeconds / int64(days)), Inline: true},
			{Name: "📆 Days Active", Value: fmt.Sprint(days), Inline: true},
			{Name: "📅 First Seen", Value: relative(st.FirstSeenAt), Inline: true},
			{Name: "👁️ Last Seen", Value: relative(st.LastSeenAt), Inline: true},
			{Name: "🔥 Daily Streak", Value: fmt.Sprintf("**%d** days (Best: %d)", st.Daily.Current, st.Daily.Longest), Inline: true},
			{Name: "📅 Weekly Streak", Value: fmt.Sprintf("**%d** weeks (Best: %d)", st.Weekly.Current, st.Weekly.Longest), Inline: true},
			{Name: "📆 Monthly Streak", Value: fmt.Sprintf("**%d** months (Best: %d)", st.Monthly.Current, st.Monthly.Longest), Inline: true},
		},
	}
}

// relative renders a Discord relative timestamp.
func relative(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return fmt.Sprintf("<t:%d:R>", t.Unix())
}

type leaderboard struct{ deps Deps }

func (h *leaderboard) Definition() command.Definition {
	return command.Definition{
		Name:        "leaderboard",
		Description: "View the server activity leaderboard",
		Options:     []command.Option{limitOption()},
		Defer:       true,
	}
}

func (h *leaderboard) Execute(ctx context.Context, inv command.Invocation) (command.Response, error) {
	top, err := h.deps.Activity.TopActive(ctx, inv.GuildID, limitOf(inv))
	if err != nil {
		h.deps.Log.Error().Err(err).Str("guild", inv.GuildID).Msg("fetch leaderboard")
		return command.Response{Content: "❌ Failed to fetch leaderboard. Please try again later."}, nil
	}
	if len(top) == 0 {
		return command.Response{Content: "No activity data available yet. Start chatting to build the leaderboard!"}, nil
	}
	entries := make([]string, 0, len(top))
	for i, st := range top {
		entries = append(entries, fmt.Sprintf("%s **%s**\n    💬 %d messages | 🎤 %d joins | ⏱️ %s\n    📊 Score: %.0f",
			medal(i), st.Username, st.MessageCount, st.VoiceJoinCount, activity.FormatDuration(st.TotalVoiceSeconds), st.Score()))
	}
	title := "🏆 Activity Leaderboard"
	if inv.GuildName != "" {
		title = fmt.Sprintf("🏆 %s Activity Leaderboard", inv.GuildName)
	}
	return command.Response{Embed: &bus.Embed{
		Title:       title,
		Description: strings.Join(entries, "\n\n"),
		Color:       leaderboardColor,
		Footer:      "Activity Score = Messages + Voice Joins + (Voice Time / 60)",
		Timestamp:   h.deps.now(),
	}}, nil
}

type streaks struct{ deps Deps }

func (h *streaks) Definition() command.Definition {
	return command.Definition{
		Name:        "streaks",
		Description: "View the server activity streak leaderboard",
		Options:     []command.Option{limitOption()},
	}
}

func (h *streaks) Execute(ctx context.Context, inv command.Invocation) (command.Response, error) {
	top, err := h.deps.Activity.TopStreaks(ctx, inv.GuildID, limitOf(inv))
	if err != nil {
		h.deps.Log.Error().Err(err).Str("guild", inv.GuildID).Msg("fetch streaks")
		return command.Private("❌ Failed to fetch streak leaderboard. Please try again later."), nil
	}
	if len(top) == 0 {
		return command.Private("No activity streak data found for this server yet."), nil
	}
	var sb strings.Builder
	for i, st := range top {
		fmt.Fprintf(&sb, "%s **%s**\n", medal(i), st.Username)
		fmt.Fprintf(&sb, "   🔥 Daily: **%d** (Best: %d)\n", st.Daily.Current, st.Daily.Longest)
		fmt.Fprintf(&sb, "   📅 Weekly: **%d** | 📆 Monthly: **%d**\n\n", st.Weekly.Current, st.Monthly.Current)
	}
	return command.Response{Embed: &bus.Embed{
		Title:       "🔥 Activity Streak Leaderboard",
		Description: strings.TrimRight(sb.String(), "\n"),
		Color:       streaksColor,
		Footer:      "Requested by " + inv.User.Name,
		Timestamp:   h.deps.now(),
	}}, nil
}
