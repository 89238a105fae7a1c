package ai

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cexll/agentsdk-go/pkg/model"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RazeViana/Caitlyn/internal/bus"
	"github.com/RazeViana/Caitlyn/internal/config"
	"github.com/RazeViana/Caitlyn/internal/httpx"
	"github.com/RazeViana/Caitlyn/internal/memory"
)

func TestState(t *testing.T) {
	s := NewState(false)
	assert.False(t, s.Enabled())
	assert.True(t, s.Toggle())
	assert.True(t, s.Enabled())
	assert.False(t, s.Toggle())
	s.Set(true)
	assert.True(t, s.Enabled())
	s.Reset()
	assert.False(t, s.Enabled())

	on := NewState(true)
	assert.False(t, on.Toggle())
}

func TestCleanReply(t *testing.T) {
	assert.Equal(t, "hey there", CleanReply("Caitlyn: hey there"))
	assert.Equal(t, "hey there", CleanReply("  caitlyn:hey there "))
	assert.Equal(t, "NOTHING", CleanReply("caitlyn: NOTHING"))
	assert.Equal(t, "I said caitlyn: hi", CleanReply("I said caitlyn: hi"))
}

func TestBuildMessages(t *testing.T) {
	window := memory.Window{
		{Username: "vi", Role: memory.RoleUser, Content: "hello"},
		{Username: "Caitlyn", Role: memory.RoleAssistant, Content: "hi vi"},
	}
	msgs := BuildMessages(window, "jinx", "what's up")
	require.Len(t, msgs, 3)
	assert.Equal(t, model.Message{Role: "user", Content: "vi: hello"}, msgs[0])
	assert.Equal(t, model.Message{Role: "assistant", Content: "hi vi"}, msgs[1])
	assert.Equal(t, model.Message{Role: "user", Content: "jinx: what's up"}, msgs[2])
}

func TestNewProvider(t *testing.T) {
	p, err := NewProvider(config.AIConfig{Model: "m"})
	require.NoError(t, err)
	assert.IsType(t, &model.OpenAIProvider{}, p)

	p, err = NewProvider(config.AIConfig{Provider: config.ProviderConfig{Type: "anthropic"}})
	require.NoError(t, err)
	assert.IsType(t, &model.AnthropicProvider{}, p)

	_, err = NewProvider(config.AIConfig{Provider: config.ProviderConfig{Type: "nope"}})
	assert.Error(t, err)
}

type fakeCompleter struct {
	mu      sync.Mutex
	reply   string
	err     error
	lastReq model.Request
	calls   int
}

func (f *fakeCompleter) Complete(_ context.Context, req model.Request) (*model.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	return &model.Response{Message: model.Message{Role: "assistant", Content: f.reply}}, nil
}

func TestChatReply(t *testing.T) {
	fc := &fakeCompleter{reply: "Caitlyn: sure thing"}
	c := NewChatWithCompleter(fc, config.AIConfig{SystemPrompt: "be nice", MaxTokens: 64})

	reply, ok, err := c.Reply(context.Background(), "chan-1", nil, "vi", "help?")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "sure thing", reply)
	assert.Equal(t, "chan-1", fc.lastReq.SessionID)
	assert.Equal(t, "be nice", fc.lastReq.System)
	assert.Equal(t, 64, fc.lastReq.MaxTokens)

	fc.reply = " NOTHING "
	_, ok, err = c.Reply(context.Background(), "chan-1", nil, "vi", "ok")
	require.NoError(t, err)
	assert.False(t, ok)

	fc.err = errors.New("502")
	_, _, err = c.Reply(context.Background(), "chan-1", nil, "vi", "ok")
	assert.True(t, httpx.IsServiceError(err))
}

type memArchive struct {
	mu   sync.Mutex
	rows []memory.ArchivedMessage
}

func (a *memArchive) StoreMessage(_ context.Context, m memory.ArchivedMessage) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.rows = append(a.rows, m)
	return nil
}

func (a *memArchive) RecentMessages(_ context.Context, ch string, limit int) ([]memory.ArchivedMessage, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []memory.ArchivedMessage
	for _, m := range a.rows {
		if m.ChannelID == ch {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (a *memArchive) SimilarMessages(context.Context, string, []float32, int, float64) ([]memory.ArchivedMessage, error) {
	return nil, nil
}

func (a *memArchive) TrimMessages(context.Context, time.Time) (int64, error) { return 0, nil }

// rankingArchive answers similarity searches by cosine score.
type rankingArchive struct {
	memArchive
}

func (a *rankingArchive) SimilarMessages(_ context.Context, ch string, query []float32, limit int, threshold float64) ([]memory.ArchivedMessage, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []memory.ArchivedMessage
	for _, m := range a.rows {
		if m.ChannelID != ch {
			continue
		}
		score, err := memory.CosineSimilarity(query, m.Embedding)
		if err != nil || score < threshold {
			continue
		}
		m.Similarity = score
		out = append(out, m)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Similarity > out[j].Similarity })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// topicEmbedder scores "cats" exactly on one axis, other cat talk close to
// it and everything else on the other axis.
type topicEmbedder struct{}

func (topicEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	switch {
	case text == "cats":
		return []float32{1, 0}, nil
	case strings.Contains(text, "cats"):
		return []float32{0.96, 0.28}, nil
	}
	return []float32{0, 1}, nil
}
func (topicEmbedder) Dimension() int { return 2 }

type constEmbedder struct{}

func (constEmbedder) Embed(context.Context, string) ([]float32, error) { return []float32{1, 0}, nil }
func (constEmbedder) Dimension() int                                   { return 2 }

type captureSender struct {
	msgs []bus.OutboundMessage
}

func (c *captureSender) Send(_ context.Context, msg bus.OutboundMessage) error {
	c.msgs = append(c.msgs, msg)
	return nil
}

func newConversation(state *State, fc *fakeCompleter) (*Conversation, *memArchive, *captureSender) {
	archive := &memArchive{}
	sender := &captureSender{}
	rec := memory.NewRecorder(archive, constEmbedder{}, zerolog.Nop())
	asm := memory.NewAssembler(archive, constEmbedder{}, 0.75, zerolog.Nop())
	conv := NewConversation(state, NewChatWithCompleter(fc, config.AIConfig{}), rec, asm, sender,
		ConversationOptions{RecentCount: 5, SimilarCount: 3, BotUserID: "bot"}, zerolog.Nop())
	return conv, archive, sender
}

func inbound(id, text string, at time.Time) bus.InboundMessage {
	return bus.InboundMessage{Channel: "discord", ChatID: "c1", MessageID: id, SenderID: "u1", SenderName: "vi", Content: text, Timestamp: at}
}

func TestConversationDisabledOnlyArchives(t *testing.T) {
	fc := &fakeCompleter{reply: "hi"}
	conv, archive, sender := newConversation(NewState(false), fc)

	conv.Handle(context.Background(), inbound("m1", "hello", time.Now()))
	assert.Len(t, archive.rows, 1)
	assert.Empty(t, sender.msgs)
	assert.Zero(t, fc.calls)
}

func TestConversationRepliesAndArchivesBothTurns(t *testing.T) {
	fc := &fakeCompleter{reply: "caitlyn: hi vi"}
	conv, archive, sender := newConversation(NewState(true), fc)
	t0 := time.Date(2026, time.October, 16, 12, 0, 0, 0, time.UTC)
	archive.rows = append(archive.rows, memory.ArchivedMessage{ChannelID: "c1", MessageID: "m0", Username: "jinx", Role: memory.RoleUser, Content: "earlier", CreatedAt: t0.Add(-time.Minute)})

	conv.Handle(context.Background(), inbound("m1", "hello", t0))

	require.Len(t, sender.msgs, 1)
	assert.Equal(t, "hi vi", sender.msgs[0].Content)
	assert.Equal(t, "c1", sender.msgs[0].ChatID)

	// context holds the earlier turn but not the current one twice
	require.Len(t, fc.lastReq.Messages, 2)
	assert.Equal(t, "jinx: earlier", fc.lastReq.Messages[0].Content)
	assert.Equal(t, "vi: hello", fc.lastReq.Messages[1].Content)

	require.Len(t, archive.rows, 3)
	assert.Equal(t, memory.RoleAssistant, archive.rows[2].Role)
	assert.Equal(t, "hi vi", archive.rows[2].Content)
}

func TestConversationKeepsFullSimilarBudget(t *testing.T) {
	fc := &fakeCompleter{reply: "meow"}
	archive := &rankingArchive{}
	rec := memory.NewRecorder(archive, topicEmbedder{}, zerolog.Nop())
	asm := memory.NewAssembler(archive, topicEmbedder{}, 0.75, zerolog.Nop())
	conv := NewConversation(NewState(true), NewChatWithCompleter(fc, config.AIConfig{}), rec, asm, &captureSender{},
		ConversationOptions{RecentCount: 1, SimilarCount: 2, BotUserID: "bot"}, zerolog.Nop())

	t0 := time.Date(2026, time.October, 16, 12, 0, 0, 0, time.UTC)
	for i, text := range []string{"cats again", "more cats", "weather"} {
		archive.rows = append(archive.rows, memory.ArchivedMessage{
			ChannelID: "c1", MessageID: fmt.Sprintf("old%d", i), Username: "jinx", Role: memory.RoleUser,
			Content: text, Embedding: mustEmbed(t, text), CreatedAt: t0.Add(time.Duration(i-3) * time.Minute),
		})
	}

	conv.Handle(context.Background(), inbound("m1", "cats", t0))

	// the current turn outranks everything in the similarity search; the two
	// similar turns and the one recent turn must all still make it
	require.Len(t, fc.lastReq.Messages, 4)
	assert.Equal(t, "jinx: cats again", fc.lastReq.Messages[0].Content)
	assert.Equal(t, "jinx: more cats", fc.lastReq.Messages[1].Content)
	assert.Equal(t, "jinx: weather", fc.lastReq.Messages[2].Content)
	assert.Equal(t, "vi: cats", fc.lastReq.Messages[3].Content)
}

func mustEmbed(t *testing.T, text string) []float32 {
	t.Helper()
	vec, err := topicEmbedder{}.Embed(context.Background(), text)
	require.NoError(t, err)
	return vec
}

func TestConversationSilentReply(t *testing.T) {
	fc := &fakeCompleter{reply: "NOTHING"}
	conv, archive, sender := newConversation(NewState(true), fc)
	conv.Handle(context.Background(), inbound("m1", "lol", time.Now()))
	assert.Empty(t, sender.msgs)
	assert.Len(t, archive.rows, 1)
}

func TestConversationChatFailureApologizes(t *testing.T) {
	fc := &fakeCompleter{err: errors.New("timeout")}
	conv, archive, sender := newConversation(NewState(true), fc)
	conv.Handle(context.Background(), inbound("m1", "hello", time.Now()))
	require.Len(t, sender.msgs, 1)
	assert.Equal(t, ApologyText, sender.msgs[0].Content)
	assert.Len(t, archive.rows, 1)
}
