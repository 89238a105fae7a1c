package channel

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/RazeViana/Caitlyn/internal/bus"
	"github.com/RazeViana/Caitlyn/internal/command"
)

// Channel is a chat platform connection.
type Channel interface {
	Name() string
	Start(ctx context.Context) error
	Stop() error
	Send(msg bus.OutboundMessage) error
}

// Commands is the part of the command router a channel drives.
// *command.Router implements it.
type Commands interface {
	Lookup(name string) (command.Handler, bool)
	Definitions() []command.Definition
	Dispatch(ctx context.Context, inv command.Invocation) (command.Response, error)
	Autocomplete(ctx context.Context, inv command.Invocation) ([]command.Choice, error)
	ParseText(text string, base command.Invocation) (command.Invocation, error)
}

type BaseChannel struct {
	name      string
	bus       *bus.MessageBus
	allowFrom map[string]bool
	log       zerolog.Logger
}

func NewBaseChannel(name string, b *bus.MessageBus, allowFrom []string, log zerolog.Logger) BaseChannel {
	allowed := make(map[string]bool, len(allowFrom))
	for _, id := range allowFrom {
		if id = strings.TrimSpace(id); id != "" {
			allowed[id] = true
		}
	}
	return BaseChannel{
		name:      name,
		bus:       b,
		allowFrom: allowed,
		log:       log.With().Str("component", name).Logger(),
	}
}

func (c *BaseChannel) Name() string { return c.name }

// IsAllowed reports whether senderID may talk to the bot. An empty allow
// list admits everyone.
func (c *BaseChannel) IsAllowed(senderID string) bool {
	if len(c.allowFrom) == 0 {
		return true
	}
	return c.allowFrom[senderID]
}

// isListed is IsAllowed without the open default.
func (c *BaseChannel) isListed(senderID string) bool {
	return c.allowFrom[senderID]
}

// publish hands an inbound message to the gateway.
func (c *BaseChannel) publish(ctx context.Context, msg bus.InboundMessage) {
	select {
	case c.bus.Inbound <- msg:
	case <-ctx.Done():
		c.log.Warn().Str("chat", msg.ChatID).Msg("inbound message dropped on shutdown")
	}
}

// splitMessage cuts s into pieces of at most max bytes, preferring to break
// after a newline and never inside a UTF-8 sequence.
func splitMessage(s string, max int) []string {
	var parts []string
	for len(s) > 0 {
		if len(s) <= max {
			parts = append(parts, s)
			break
		}
		cut := strings.LastIndex(s[:max], "\n")
		if cut <= 0 {
			cut = max
			for cut > 0 && !utf8Start(s[cut]) {
				cut--
			}
			if cut == 0 {
				cut = max
			}
		}
		parts = append(parts, s[:cut])
		s = s[cut:]
	}
	return parts
}

func utf8Start(b byte) bool { return b&0xC0 != 0x80 }

// renderEmbed flattens an embed into markdown text for channels without
// rich messages.
func renderEmbed(e *bus.Embed) string {
	if e == nil {
		return ""
	}
	var sb strings.Builder
	if e.Title != "" {
		fmt.Fprintf(&sb, "**%s**\n", e.Title)
	}
	if e.Description != "" {
		sb.WriteString(e.Description)
		sb.WriteString("\n")
	}
	for _, f := range e.Fields {
		fmt.Fprintf(&sb, "\n**%s**\n%s\n", f.Name, f.Value)
	}
	if e.ImageURL != "" {
		fmt.Fprintf(&sb, "\n%s\n", e.ImageURL)
	}
	if e.Footer != "" {
		fmt.Fprintf(&sb, "\n%s", e.Footer)
	}
	return strings.TrimSpace(sb.String())
}

// outboundText joins the plain content with a rendered embed.
func outboundText(msg bus.OutboundMessage) string {
	text := msg.Content
	if rendered := renderEmbed(msg.Embed); rendered != "" {
		if text != "" {
			text += "\n\n"
		}
		text += rendered
	}
	return text
}
