package channel

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"github.com/RazeViana/Caitlyn/internal/bus"
	"github.com/RazeViana/Caitlyn/internal/command"
	"github.com/RazeViana/Caitlyn/internal/config"
)

const (
	telegramChannelName = "telegram"
	telegramMaxLen      = 4000
)

// TelegramBot interface for mocking telegram bot API
type TelegramBot interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetSelf() tgbotapi.User
	MemberCount(chatID int64) (int, error)
}

// tgBotWrapper wraps tgbotapi.BotAPI to implement TelegramBot interface
type tgBotWrapper struct {
	bot *tgbotapi.BotAPI
}

func (w *tgBotWrapper) GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return w.bot.GetUpdatesChan(config)
}

func (w *tgBotWrapper) StopReceivingUpdates() {
	w.bot.StopReceivingUpdates()
}

func (w *tgBotWrapper) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	return w.bot.Send(c)
}

func (w *tgBotWrapper) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	return w.bot.Request(c)
}

func (w *tgBotWrapper) GetSelf() tgbotapi.User {
	return w.bot.Self
}

func (w *tgBotWrapper) MemberCount(chatID int64) (int, error) {
	return w.bot.GetChatMembersCount(tgbotapi.ChatMemberCountConfig{
		ChatConfig: tgbotapi.ChatConfig{ChatID: chatID},
	})
}

// BotFactory creates TelegramBot instances (allows mocking)
type BotFactory func(token, apiEndpoint string, client *http.Client) (TelegramBot, error)

var defaultBotFactory BotFactory = func(token, apiEndpoint string, client *http.Client) (TelegramBot, error) {
	bot, err := tgbotapi.NewBotAPIWithClient(token, apiEndpoint, client)
	if err != nil {
		return nil, err
	}
	return &tgBotWrapper{bot: bot}, nil
}

// TelegramChannel carries plain chat into the bus and answers
// "/command args" messages through the command router.
type TelegramChannel struct {
	BaseChannel
	token      string
	bot        TelegramBot
	proxy      string
	commands   Commands
	cancel     context.CancelFunc
	botFactory BotFactory
	now        func() time.Time
}

func NewTelegramChannel(cfg config.TelegramConfig, b *bus.MessageBus, cmds Commands, log zerolog.Logger) (*TelegramChannel, error) {
	return NewTelegramChannelWithFactory(cfg, b, cmds, defaultBotFactory, log)
}

// NewTelegramChannelWithFactory creates a TelegramChannel with custom bot factory (for testing)
func NewTelegramChannelWithFactory(cfg config.TelegramConfig, b *bus.MessageBus, cmds Commands, factory BotFactory, log zerolog.Logger) (*TelegramChannel, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("telegram token is required")
	}

	ch := &TelegramChannel{
		BaseChannel: NewBaseChannel(telegramChannelName, b, cfg.AllowFrom, log),
		token:       cfg.Token,
		proxy:       cfg.Proxy,
		commands:    cmds,
		botFactory:  factory,
		now:         time.Now,
	}
	return ch, nil
}

func (t *TelegramChannel) initBot() error {
	client := http.DefaultClient
	if t.proxy != "" {
		proxyURL, err := url.Parse(t.proxy)
		if err != nil {
			return fmt.Errorf("parse proxy url: %w", err)
		}
		client = &http.Client{
			Transport: &http.Transport{Proxy: http.ProxyURL(proxyURL)},
		}
	}

	bot, err := t.botFactory(t.token, tgbotapi.APIEndpoint, client)
	if err != nil {
		return fmt.Errorf("create telegram bot: %w", err)
	}
	t.bot = bot
	t.log.Info().Str("bot", bot.GetSelf().UserName).Msg("authorized")
	return nil
}

func (t *TelegramChannel) Start(ctx context.Context) error {
	if err := t.initBot(); err != nil {
		return err
	}

	ctx, t.cancel = context.WithCancel(ctx)

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := t.bot.GetUpdatesChan(u)

	go func() {
		for {
			select {
			case update := <-updates:
				if update.Message == nil {
					continue
				}
				t.handleMessage(ctx, update.Message)
			case <-ctx.Done():
				return
			}
		}
	}()

	t.log.Info().Msg("polling started")
	return nil
}

func (t *TelegramChannel) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From == nil || msg.From.IsBot {
		return
	}
	senderID := strconv.FormatInt(msg.From.ID, 10)

	if !t.IsAllowed(senderID) {
		t.log.Debug().Str("sender", senderID).Str("username", msg.From.UserName).Msg("rejected message")
		return
	}

	content := msg.Text
	if content == "" && msg.Caption != "" {
		content = msg.Caption
	}
	if strings.TrimSpace(content) == "" {
		return
	}

	chatID := strconv.FormatInt(msg.Chat.ID, 10)
	// group chats play the role of a guild; private chats have none
	guildID := ""
	if !msg.Chat.IsPrivate() {
		guildID = chatID
	}

	if t.commands != nil && command.IsText(content) {
		t.handleCommand(ctx, msg, content, guildID, senderID)
		return
	}

	t.publish(ctx, bus.InboundMessage{
		Channel:    telegramChannelName,
		GuildID:    guildID,
		ChatID:     chatID,
		MessageID:  strconv.Itoa(msg.MessageID),
		SenderID:   senderID,
		SenderName: displayName(msg.From),
		Content:    content,
		Timestamp:  time.Unix(int64(msg.Date), 0),
		Metadata: map[string]any{
			"username":   msg.From.UserName,
			"first_name": msg.From.FirstName,
		},
	})
}

func (t *TelegramChannel) handleCommand(ctx context.Context, msg *tgbotapi.Message, text, guildID, senderID string) {
	chatID := strconv.FormatInt(msg.Chat.ID, 10)
	base := command.Invocation{
		Channel:   telegramChannelName,
		GuildID:   guildID,
		GuildName: msg.Chat.Title,
		ChatID:    chatID,
		User:      command.User{ID: senderID, Name: displayName(msg.From)},
		// admins are the explicitly listed senders
		IsAdmin: t.isListed(senderID),
	}
	if msg.Date > 0 {
		base.Latency = t.now().Sub(time.Unix(int64(msg.Date), 0))
	}
	if guildID != "" && t.bot != nil {
		if n, err := t.bot.MemberCount(msg.Chat.ID); err == nil {
			base.MemberCount = n
		} else {
			t.log.Debug().Err(err).Str("chat", chatID).Msg("member count unavailable")
		}
	}

	inv, err := t.commands.ParseText(text, base)
	var resp command.Response
	if err == nil {
		resp, err = t.commands.Dispatch(ctx, inv)
	}
	if err != nil {
		t.log.Warn().Err(err).Str("chat", chatID).Msg("command failed")
		resp = command.ErrorReply(err)
	}

	out := bus.OutboundMessage{
		Channel: telegramChannelName,
		ChatID:  chatID,
		Content: resp.Content,
		Embed:   resp.Embed,
	}
	// no ephemeral replies here; private ones quote the invoking message
	if resp.Private {
		out.ReplyTo = strconv.Itoa(msg.MessageID)
	}
	if err := t.Send(out); err != nil {
		t.log.Error().Err(err).Str("chat", chatID).Msg("send command reply")
	}
}

func displayName(u *tgbotapi.User) string {
	if u.UserName != "" {
		return u.UserName
	}
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		return strconv.FormatInt(u.ID, 10)
	}
	return name
}

func (t *TelegramChannel) Stop() error {
	if t.cancel != nil {
		t.cancel()
	}
	if t.bot != nil {
		t.bot.StopReceivingUpdates()
	}
	t.log.Info().Msg("stopped")
	return nil
}

// SetBot sets the bot (for testing)
func (t *TelegramChannel) SetBot(bot TelegramBot) {
	t.bot = bot
}

func (t *TelegramChannel) Send(msg bus.OutboundMessage) error {
	if t.bot == nil {
		return fmt.Errorf("telegram bot not initialized")
	}

	chatID, err := strconv.ParseInt(msg.ChatID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid chat id %q: %w", msg.ChatID, err)
	}

	if msg.DeleteMessageID != "" {
		t.deleteMessage(chatID, msg.DeleteMessageID)
	}

	text := outboundText(msg)
	if text == "" {
		return nil
	}
	replyTo, _ := strconv.Atoi(msg.ReplyTo)

	for i, chunk := range splitMessage(toTelegramHTML(text), telegramMaxLen) {
		tgMsg := tgbotapi.NewMessage(chatID, chunk)
		tgMsg.ParseMode = tgbotapi.ModeHTML
		if i == 0 && replyTo > 0 {
			tgMsg.ReplyToMessageID = replyTo
		}
		if _, err := t.bot.Send(tgMsg); err != nil {
			// Retry the whole text without HTML parse mode
			return t.sendPlain(chatID, text, replyTo)
		}
	}
	return nil
}

func (t *TelegramChannel) sendPlain(chatID int64, text string, replyTo int) error {
	for i, chunk := range splitMessage(text, telegramMaxLen) {
		tgMsg := tgbotapi.NewMessage(chatID, chunk)
		if i == 0 && replyTo > 0 {
			tgMsg.ReplyToMessageID = replyTo
		}
		if _, err := t.bot.Send(tgMsg); err != nil {
			return fmt.Errorf("send telegram message: %w", err)
		}
	}
	return nil
}

// deleteMessage is best effort: bots may only delete others' messages in
// groups where they are admins.
func (t *TelegramChannel) deleteMessage(chatID int64, messageID string) {
	id, err := strconv.Atoi(messageID)
	if err != nil {
		t.log.Warn().Str("message", messageID).Msg("invalid message id for delete")
		return
	}
	if _, err := t.bot.Request(tgbotapi.NewDeleteMessage(chatID, id)); err != nil {
		t.log.Warn().Err(err).Int64("chat", chatID).Int("message", id).Msg("delete message")
	}
}

// toTelegramHTML converts basic markdown to Telegram HTML.
func toTelegramHTML(s string) string {
	// Escape HTML entities first
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")

	// Code blocks: ```...``` -> <pre>...</pre>
	for {
		start := strings.Index(s, "```")
		if start == -1 {
			break
		}
		end := strings.Index(s[start+3:], "```")
		if end == -1 {
			break
		}
		end += start + 3
		code := s[start+3 : end]
		// Strip optional language tag on first line
		if nl := strings.Index(code, "\n"); nl >= 0 {
			firstLine := strings.TrimSpace(code[:nl])
			if len(firstLine) > 0 && !strings.Contains(firstLine, " ") {
				code = code[nl+1:]
			}
		}
		s = s[:start] + "<pre>" + code + "</pre>" + s[end+3:]
	}

	s = replacePairs(s, "`", "<code>", "</code>")
	s = replacePairs(s, "**", "<b>", "</b>")
	// italic after bold so "**" is already consumed
	s = replacePairs(s, "*", "<i>", "</i>")
	return s
}

// replacePairs wraps every closed marker pair in the given tags.
func replacePairs(s, marker, openTag, closeTag string) string {
	for {
		start := strings.Index(s, marker)
		if start == -1 {
			return s
		}
		end := strings.Index(s[start+len(marker):], marker)
		if end == -1 {
			return s
		}
		end += start + len(marker)
		s = s[:start] + openTag + s[start+len(marker):end] + closeTag + s[end+len(marker):]
	}
}
