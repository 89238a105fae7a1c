package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/RazeViana/Caitlyn/internal/ai"
	"github.com/RazeViana/Caitlyn/internal/command"
)

type ping struct{}

func (ping) Definition() command.Definition {
	return command.Definition{Name: "ping", Description: "Replies with Pong!"}
}

func (ping) Execute(_ context.Context, inv command.Invocation) (command.Response, error) {
	if inv.Latency > 0 {
		return command.Response{Content: fmt.Sprintf("Pong! (%dms)", inv.Latency.Milliseconds())}, nil
	}
	return command.Response{Content: "Pong!"}, nil
}

type server struct{}

func (server) Definition() command.Definition {
	return command.Definition{Name: "server", Description: "Provides information about the server."}
}

func (server) Execute(_ context.Context, inv command.Invocation) (command.Response, error) {
	if inv.GuildName == "" {
		return command.Private("This command only works inside a server."), nil
	}
	return command.Response{Content: fmt.Sprintf("This server is %s and has %d members.", inv.GuildName, inv.MemberCount)}, nil
}

type user struct{}

func (user) Definition() command.Definition {
	return command.Definition{Name: "user", Description: "Provides information about the user."}
}

func (user) Execute(_ context.Context, inv command.Invocation) (command.Response, error) {
	if inv.JoinedAt.IsZero() {
		return command.Response{Content: fmt.Sprintf("This command was run by %s.", inv.User.Name)}, nil
	}
	return command.Response{Content: fmt.Sprintf("This command was run by %s, who joined on %s.",
		inv.User.Name, inv.JoinedAt.Format("Jan 2, 2006"))}, nil
}

type reload struct {
	router *command.Router
}

func (h *reload) Definition() command.Definition {
	return command.Definition{
		Name:        "reload",
		Description: "Reloads a command.",
		AdminOnly:   true,
		Options: []command.Option{
			{Name: "command", Description: "The command to reload.", Type: command.OptionString, Required: true, Autocomplete: true},
		},
	}
}

func (h *reload) Execute(_ context.Context, inv command.Invocation) (command.Response, error) {
	name, _ := inv.String("command")
	name = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(name), "/"))
	err := h.router.Reload(name)
	switch {
	case errors.Is(err, command.ErrUnknownCommand):
		return command.Private(fmt.Sprintf("There is no command with name `/%s`", name)), nil
	case err != nil:
		return command.Private(fmt.Sprintf("There was an error while reloading a command `/%s`:\n`%s`", name, err)), nil
	}
	return command.Response{Content: fmt.Sprintf("Command `/%s` was reloaded!", name)}, nil
}

// Autocomplete suggests command names starting with what has been typed.
func (h *reload) Autocomplete(_ context.Context, inv command.Invocation) ([]command.Choice, error) {
	typed, _ := inv.String("command")
	typed = strings.ToLower(strings.TrimPrefix(typed, "/"))
	var out []command.Choice
	for _, name := range h.router.Names() {
		if strings.HasPrefix(name, typed) {
			out = append(out, command.Choice{Name: name, Value: name})
		}
	}
	return out, nil
}

type toggleAI struct {
	state *ai.State
	log   zerolog.Logger
}

func (h *toggleAI) Definition() command.Definition {
	return command.Definition{Name: "toggleai", Description: "Toggle Caitlyn AI on/off", AdminOnly: true}
}

func (h *toggleAI) Execute(_ context.Context, inv command.Invocation) (command.Response, error) {
	if h.state == nil {
		return command.Private("❌ AI is not configured."), nil
	}
	enabled := h.state.Toggle()
	h.log.Info().Bool("enabled", enabled).Str("user", inv.User.Name).Msg("ai toggled")
	if enabled {
		return command.Private("✅ Caitlyn AI is now **enabled**"), nil
	}
	return command.Private("❌ Caitlyn AI is now **disabled**"), nil
}
