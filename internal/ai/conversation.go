package ai

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/RazeViana/Caitlyn/internal/bus"
	"github.com/RazeViana/Caitlyn/internal/memory"
)

const ApologyText = "Sorry, I encountered an error processing your message."

type Sender interface {
	Send(ctx context.Context, msg bus.OutboundMessage) error
}

type Replier interface {
	Reply(ctx context.Context, sessionID string, window memory.Window, speaker, text string) (string, bool, error)
}

type ConversationOptions struct {
	RecentCount  int
	SimilarCount int
	BotUserID    string
	BotName      string
}

// Conversation archives every inbound turn and, while AI is enabled,
// answers from the assembled context.
type Conversation struct {
	state     *State
	chat      Replier
	recorder  *memory.Recorder
	assembler *memory.Assembler
	sender    Sender
	opts      ConversationOptions
	now       func() time.Time
	log       zerolog.Logger
}

func NewConversation(state *State, chat Replier, recorder *memory.Recorder, assembler *memory.Assembler, sender Sender, opts ConversationOptions, log zerolog.Logger) *Conversation {
	if opts.BotName == "" {
		opts.BotName = "Caitlyn"
	}
	return &Conversation{
		state:     state,
		chat:      chat,
		recorder:  recorder,
		assembler: assembler,
		sender:    sender,
		opts:      opts,
		now:       time.Now,
		log:       log.With().Str("component", "conversation").Logger(),
	}
}

// Handle processes one inbound text message. Failures are logged and, on
// the reply path, answered with ApologyText; they are never returned.
func (c *Conversation) Handle(ctx context.Context, msg bus.InboundMessage) {
	created := msg.Timestamp
	if created.IsZero() {
		created = c.now()
	}
	var stored memory.ArchivedMessage
	if c.recorder != nil {
		var err error
		stored, err = c.recorder.Record(ctx, memory.ArchivedMessage{
			ChannelID: msg.ChatID,
			MessageID: msg.MessageID,
			UserID:    msg.SenderID,
			Username:  msg.SenderName,
			Role:      memory.RoleUser,
			Content:   msg.Content,
			CreatedAt: created,
		})
		if err != nil {
			c.log.Warn().Err(err).Str("channel", msg.ChatID).Msg("archive user turn")
		}
	}

	if c.chat == nil || !c.state.Enabled() {
		return
	}

	window := c.buildWindow(ctx, msg, stored.Embedding)
	reply, ok, err := c.chat.Reply(ctx, msg.ChatID, window, msg.SenderName, msg.Content)
	if err != nil {
		c.log.Error().Err(err).Str("channel", msg.ChatID).Msg("chat completion failed")
		c.send(ctx, msg, ApologyText)
		return
	}
	if !ok {
		c.log.Debug().Str("channel", msg.ChatID).Msg("model chose not to reply")
		return
	}
	if !c.send(ctx, msg, reply) {
		return
	}

	if c.recorder != nil {
		_, err := c.recorder.Record(ctx, memory.ArchivedMessage{
			ChannelID: msg.ChatID,
			MessageID: uuid.NewString(),
			UserID:    c.opts.BotUserID,
			Username:  c.opts.BotName,
			Role:      memory.RoleAssistant,
			Content:   reply,
			CreatedAt: c.now(),
		})
		if err != nil {
			c.log.Warn().Err(err).Str("channel", msg.ChatID).Msg("archive assistant turn")
		}
	}
}

func (c *Conversation) buildWindow(ctx context.Context, msg bus.InboundMessage, vec []float32) memory.Window {
	if c.assembler == nil {
		return nil
	}
	var (
		window memory.Window
		err    error
	)
	if len(vec) > 0 {
		// the archived current turn takes one recent slot and is its own best
		// similarity match; ask for one more of each
		recent, similar := c.opts.RecentCount, c.opts.SimilarCount
		if recent > 0 {
			recent++
		}
		if similar > 0 {
			similar++
		}
		window, err = c.assembler.BuildWithVector(ctx, msg.ChatID, vec, recent, similar)
	} else {
		window, err = c.assembler.Build(ctx, msg.ChatID, msg.Content, c.opts.RecentCount, c.opts.SimilarCount)
	}
	if err != nil {
		c.log.Warn().Err(err).Str("channel", msg.ChatID).Msg("context unavailable, replying without it")
		return nil
	}
	return window.Without(msg.MessageID)
}

func (c *Conversation) send(ctx context.Context, msg bus.InboundMessage, content string) bool {
	err := c.sender.Send(ctx, bus.OutboundMessage{
		Channel: msg.Channel,
		ChatID:  msg.ChatID,
		Content: content,
	})
	if err != nil {
		c.log.Error().Err(err).Str("channel", msg.ChatID).Msg("send reply")
		return false
	}
	return true
}
