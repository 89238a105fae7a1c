package bus

import (
	"time"
)

type InboundMessage struct {
	Channel    string
	GuildID    string
	ChatID     string
	MessageID  string
	SenderID   string
	SenderName string
	Content    string
	Timestamp  time.Time
	Metadata   map[string]any
}

func (m *InboundMessage) SessionKey() string {
	return m.Channel + ":" + m.ChatID
}

type OutboundMessage struct {
	Channel string
	ChatID  string
	Content string
	ReplyTo string
	Embed   *Embed
	// DeleteMessageID is removed from the chat before Content is posted.
	DeleteMessageID string
}

// Embed is a channel-neutral rich message. Channels without native embeds
// render it as text.
type Embed struct {
	Title        string
	Description  string
	Color        int
	ImageURL     string
	ThumbnailURL string
	Fields       []EmbedField
	Footer       string
	Timestamp    time.Time
}

type EmbedField struct {
	Name   string
	Value  string
	Inline bool
}

// VoiceEvent is a single voice-presence transition. An empty OldChannelID
// means a join, an empty NewChannelID a leave, and two different ids a move.
type VoiceEvent struct {
	Channel        string
	GuildID        string
	UserID         string
	Username       string
	OldChannelID   string
	OldChannelName string
	NewChannelID   string
	NewChannelName string
	Timestamp      time.Time
}
