// Package command is the channel-independent slash command layer: handler
// definitions, option values and a router that dispatches invocations.
package command

import (
	"context"
	"errors"
	"time"

	"github.com/RazeViana/Caitlyn/internal/bus"
)

// MaxChoices is the most autocomplete suggestions a reply may carry.
const MaxChoices = 25

var (
	ErrUnknownCommand = errors.New("unknown command")
	ErrForbidden      = errors.New("command requires administrator permission")
	ErrInvalidOption  = errors.New("invalid option")
	ErrNotReady       = errors.New("commands are not accepted yet")
)

type OptionType int

const (
	OptionString OptionType = iota + 1
	OptionInteger
	OptionUser
)

func (t OptionType) String() string {
	switch t {
	case OptionString:
		return "string"
	case OptionInteger:
		return "integer"
	case OptionUser:
		return "user"
	default:
		return "unknown"
	}
}

type Choice struct {
	Name  string
	Value string
}

type Option struct {
	Name         string
	Description  string
	Type         OptionType
	Required     bool
	Choices      []Choice
	MinValue     *int
	MaxValue     *int
	Autocomplete bool
}

// Definition is what gets published to the chat platform.
type Definition struct {
	Name        string
	Description string
	Options     []Option
	AdminOnly   bool
	// Defer asks the channel to acknowledge first and post the response
	// when Execute returns.
	Defer bool
}

// Option returns the named option definition.
func (d Definition) Option(name string) (Option, bool) {
	for _, o := range d.Options {
		if o.Name == name {
			return o, true
		}
	}
	return Option{}, false
}

type User struct {
	ID   string
	Name string
}

type Value struct {
	Type OptionType
	Str  string
	Int  int64
	User User
}

// Invocation is one command call as received from a channel.
type Invocation struct {
	Name        string
	Channel     string
	GuildID     string
	GuildName   string
	MemberCount int
	ChatID      string
	User        User
	JoinedAt    time.Time
	IsAdmin     bool
	Latency     time.Duration
	Options     map[string]Value
	// Focused names the option being typed during autocomplete.
	Focused string
}

func (inv Invocation) String(name string) (string, bool) {
	v, ok := inv.Options[name]
	if !ok {
		return "", false
	}
	return v.Str, true
}

func (inv Invocation) Int(name string) (int64, bool) {
	v, ok := inv.Options[name]
	if !ok || v.Type != OptionInteger {
		return 0, false
	}
	return v.Int, true
}

// UserOption returns the named user option, or the invoker when absent.
func (inv Invocation) UserOption(name string) User {
	if v, ok := inv.Options[name]; ok && v.Type == OptionUser && v.User.ID != "" {
		return v.User
	}
	return inv.User
}

type Response struct {
	Content string
	Embed   *bus.Embed
	// Private replies are visible to the invoker only where the channel
	// supports it.
	Private bool
}

type Handler interface {
	Definition() Definition
	Execute(ctx context.Context, inv Invocation) (Response, error)
}

// Autocompleter is implemented by handlers with autocompleted options.
type Autocompleter interface {
	Autocomplete(ctx context.Context, inv Invocation) ([]Choice, error)
}

// Factory builds a fresh handler. Reload calls it again.
type Factory func() Handler

// Private is shorthand for an ephemeral text reply.
func Private(content string) Response {
	return Response{Content: content, Private: true}
}

// IntPtr is for Option.MinValue and MaxValue literals.
func IntPtr(n int) *int { return &n }
