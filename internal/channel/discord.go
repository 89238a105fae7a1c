package channel

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"

	"github.com/RazeViana/Caitlyn/internal/bus"
	"github.com/RazeViana/Caitlyn/internal/command"
	"github.com/RazeViana/Caitlyn/internal/config"
)

const (
	discordChannelName = "discord"
	discordMaxLen      = 2000
)

// DiscordSession is the slice of the Discord API the channel uses.
type DiscordSession interface {
	Open() error
	Close() error
	OnInteraction(fn func(*discordgo.InteractionCreate))
	OnMessage(fn func(*discordgo.MessageCreate))
	OnVoiceState(fn func(*discordgo.VoiceStateUpdate))
	SelfID() string
	Latency() time.Duration
	Guild(guildID string) (*discordgo.Guild, error)
	ChannelName(channelID string) string
	SendMessage(channelID string, data *discordgo.MessageSend) error
	DeleteMessage(channelID, messageID string) error
	Respond(i *discordgo.Interaction, resp *discordgo.InteractionResponse) error
	EditResponse(i *discordgo.Interaction, edit *discordgo.WebhookEdit) error
	DeleteResponse(i *discordgo.Interaction) error
	Followup(i *discordgo.Interaction, params *discordgo.WebhookParams) error
	OverwriteCommands(appID, guildID string, cmds []*discordgo.ApplicationCommand) error
}

// dgSession wraps discordgo.Session to implement DiscordSession
type dgSession struct {
	s *discordgo.Session
}

func (d *dgSession) Open() error  { return d.s.Open() }
func (d *dgSession) Close() error { return d.s.Close() }

func (d *dgSession) OnInteraction(fn func(*discordgo.InteractionCreate)) {
	d.s.AddHandler(func(_ *discordgo.Session, e *discordgo.InteractionCreate) { fn(e) })
}

func (d *dgSession) OnMessage(fn func(*discordgo.MessageCreate)) {
	d.s.AddHandler(func(_ *discordgo.Session, e *discordgo.MessageCreate) { fn(e) })
}

func (d *dgSession) OnVoiceState(fn func(*discordgo.VoiceStateUpdate)) {
	d.s.AddHandler(func(_ *discordgo.Session, e *discordgo.VoiceStateUpdate) { fn(e) })
}

func (d *dgSession) SelfID() string {
	if d.s.State == nil || d.s.State.User == nil {
		return ""
	}
	return d.s.State.User.ID
}

func (d *dgSession) Latency() time.Duration { return d.s.HeartbeatLatency() }

func (d *dgSession) Guild(guildID string) (*discordgo.Guild, error) {
	if g, err := d.s.State.Guild(guildID); err == nil {
		return g, nil
	}
	return d.s.Guild(guildID)
}

func (d *dgSession) ChannelName(channelID string) string {
	if channelID == "" {
		return ""
	}
	if c, err := d.s.State.Channel(channelID); err == nil {
		return c.Name
	}
	return ""
}

func (d *dgSession) SendMessage(channelID string, data *discordgo.MessageSend) error {
	_, err := d.s.ChannelMessageSendComplex(channelID, data)
	return err
}

func (d *dgSession) DeleteMessage(channelID, messageID string) error {
	return d.s.ChannelMessageDelete(channelID, messageID)
}

func (d *dgSession) Respond(i *discordgo.Interaction, resp *discordgo.InteractionResponse) error {
	return d.s.InteractionRespond(i, resp)
}

func (d *dgSession) EditResponse(i *discordgo.Interaction, edit *discordgo.WebhookEdit) error {
	_, err := d.s.InteractionResponseEdit(i, edit)
	return err
}

func (d *dgSession) DeleteResponse(i *discordgo.Interaction) error {
	return d.s.InteractionResponseDelete(i)
}

func (d *dgSession) Followup(i *discordgo.Interaction, params *discordgo.WebhookParams) error {
	_, err := d.s.FollowupMessageCreate(i, true, params)
	return err
}

func (d *dgSession) OverwriteCommands(appID, guildID string, cmds []*discordgo.ApplicationCommand) error {
	_, err := d.s.ApplicationCommandBulkOverwrite(appID, guildID, cmds)
	return err
}

// SessionFactory creates DiscordSession instances (allows mocking)
type SessionFactory func(token string) (DiscordSession, error)

var defaultSessionFactory SessionFactory = func(token string) (DiscordSession, error) {
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, err
	}
	s.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsMessageContent |
		discordgo.IntentsGuildVoiceStates |
		discordgo.IntentsGuildMembers
	return &dgSession{s: s}, nil
}

// DiscordChannel handles slash commands, guild messages and voice presence.
type DiscordChannel struct {
	BaseChannel
	token    string
	appID    string
	guildID  string
	session  DiscordSession
	commands Commands
	factory  SessionFactory
	ctx      context.Context
	cancel   context.CancelFunc
}

func NewDiscordChannel(cfg config.DiscordConfig, b *bus.MessageBus, cmds Commands, log zerolog.Logger) (*DiscordChannel, error) {
	return NewDiscordChannelWithFactory(cfg, b, cmds, defaultSessionFactory, log)
}

func NewDiscordChannelWithFactory(cfg config.DiscordConfig, b *bus.MessageBus, cmds Commands, factory SessionFactory, log zerolog.Logger) (*DiscordChannel, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("discord token is required")
	}
	return &DiscordChannel{
		BaseChannel: NewBaseChannel(discordChannelName, b, nil, log),
		token:       cfg.Token,
		appID:       cfg.AppID,
		guildID:     cfg.GuildID,
		commands:    cmds,
		factory:     factory,
		ctx:         context.Background(),
	}, nil
}

func (d *DiscordChannel) initSession() error {
	if d.session != nil {
		return nil
	}
	s, err := d.factory(d.token)
	if err != nil {
		return fmt.Errorf("create discord session: %w", err)
	}
	d.session = s
	return nil
}

func (d *DiscordChannel) Start(ctx context.Context) error {
	if err := d.initSession(); err != nil {
		return err
	}
	d.ctx, d.cancel = context.WithCancel(ctx)

	d.session.OnInteraction(func(e *discordgo.InteractionCreate) { d.handleInteraction(e.Interaction) })
	d.session.OnMessage(func(e *discordgo.MessageCreate) { d.handleMessage(e.Message) })
	d.session.OnVoiceState(d.handleVoiceState)

	if err := d.session.Open(); err != nil {
		return fmt.Errorf("open discord session: %w", err)
	}
	d.log.Info().Msg("gateway connected")
	return nil
}

func (d *DiscordChannel) Stop() error {
	if d.cancel != nil {
		d.cancel()
	}
	if d.session == nil {
		return nil
	}
	err := d.session.Close()
	d.log.Info().Msg("stopped")
	return err
}

// SetSession sets the session (for testing)
func (d *DiscordChannel) SetSession(s DiscordSession) {
	d.session = s
}

// RegisterCommands publishes every definition, guild scoped when a guild
// id is configured.
func (d *DiscordChannel) RegisterCommands() (int, error) {
	if d.appID == "" {
		return 0, fmt.Errorf("discord app id is required to register commands")
	}
	if err := d.initSession(); err != nil {
		return 0, err
	}
	defs := d.commands.Definitions()
	cmds := make([]*discordgo.ApplicationCommand, 0, len(defs))
	for _, def := range defs {
		cmds = append(cmds, toApplicationCommand(def))
	}
	if err := d.session.OverwriteCommands(d.appID, d.guildID, cmds); err != nil {
		return 0, fmt.Errorf("register commands: %w", err)
	}
	return len(cmds), nil
}

func (d *DiscordChannel) handleMessage(m *discordgo.Message) {
	if m == nil || m.Author == nil || m.Author.Bot || m.Author.ID == d.session.SelfID() {
		return
	}
	if strings.TrimSpace(m.Content) == "" {
		return
	}
	d.publish(d.ctx, bus.InboundMessage{
		Channel:    discordChannelName,
		GuildID:    m.GuildID,
		ChatID:     m.ChannelID,
		MessageID:  m.ID,
		SenderID:   m.Author.ID,
		SenderName: m.Author.Username,
		Content:    m.Content,
		Timestamp:  m.Timestamp,
	})
}

func (d *DiscordChannel) handleVoiceState(v *discordgo.VoiceStateUpdate) {
	ev, ok := voiceEvent(v, d.session.ChannelName)
	if !ok {
		return
	}
	select {
	case d.bus.Voice <- ev:
	case <-d.ctx.Done():
	}
}

// voiceEvent converts a gateway voice update. Bots, mute/deafen changes
// and updates without a user are dropped.
func voiceEvent(v *discordgo.VoiceStateUpdate, channelName func(string) string) (bus.VoiceEvent, bool) {
	if v == nil || v.VoiceState == nil || v.UserID == "" {
		return bus.VoiceEvent{}, false
	}
	if v.Member != nil && v.Member.User != nil && v.Member.User.Bot {
		return bus.VoiceEvent{}, false
	}
	oldID := ""
	if v.BeforeUpdate != nil {
		oldID = v.BeforeUpdate.ChannelID
	}
	if oldID == v.ChannelID {
		return bus.VoiceEvent{}, false
	}
	username := v.UserID
	if v.Member != nil && v.Member.User != nil {
		username = v.Member.User.Username
	}
	return bus.VoiceEvent{
		Channel:        discordChannelName,
		GuildID:        v.GuildID,
		UserID:         v.UserID,
		Username:       username,
		OldChannelID:   oldID,
		OldChannelName: channelName(oldID),
		NewChannelID:   v.ChannelID,
		NewChannelName: channelName(v.ChannelID),
		Timestamp:      time.Now(),
	}, true
}

func (d *DiscordChannel) handleInteraction(i *discordgo.Interaction) {
	switch i.Type {
	case discordgo.InteractionApplicationCommandAutocomplete:
		d.handleAutocomplete(i)
	case discordgo.InteractionApplicationCommand:
		d.handleCommand(i)
	}
}

func (d *DiscordChannel) handleAutocomplete(i *discordgo.Interaction) {
	inv := d.invocation(i)
	choices, err := d.commands.Autocomplete(d.ctx, inv)
	if err != nil {
		d.log.Error().Err(err).Str("command", inv.Name).Msg("autocomplete failed")
		choices = nil
	}
	out := make([]*discordgo.ApplicationCommandOptionChoice, 0, len(choices))
	for _, c := range choices {
		out = append(out, &discordgo.ApplicationCommandOptionChoice{Name: c.Name, Value: c.Value})
	}
	err = d.session.Respond(i, &discordgo.InteractionResponse{
		Type: discordgo.InteractionApplicationCommandAutocompleteResult,
		Data: &discordgo.InteractionResponseData{Choices: out},
	})
	if err != nil {
		d.log.Warn().Err(err).Str("command", inv.Name).Msg("respond autocomplete")
	}
}

func (d *DiscordChannel) handleCommand(i *discordgo.Interaction) {
	inv := d.invocation(i)

	deferred := false
	if h, ok := d.commands.Lookup(inv.Name); ok && h.Definition().Defer {
		err := d.session.Respond(i, &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		})
		if err != nil {
			d.log.Error().Err(err).Str("command", inv.Name).Msg("defer reply")
			return
		}
		deferred = true
	}

	resp, err := d.commands.Dispatch(d.ctx, inv)
	if err != nil {
		d.log.Warn().Err(err).Str("command", inv.Name).Str("user", inv.User.Name).Msg("command failed")
		resp = command.ErrorReply(err)
	}

	var embeds []*discordgo.MessageEmbed
	if resp.Embed != nil {
		embeds = []*discordgo.MessageEmbed{toDiscordEmbed(resp.Embed)}
	}
	switch {
	case deferred && resp.Private:
		// a deferred acknowledgement is public; drop it and reply ephemerally
		err = d.session.Followup(i, &discordgo.WebhookParams{
			Content: resp.Content,
			Embeds:  embeds,
			Flags:   discordgo.MessageFlagsEphemeral,
		})
		if err == nil {
			err = d.session.DeleteResponse(i)
		}
	case deferred:
		content := resp.Content
		err = d.session.EditResponse(i, &discordgo.WebhookEdit{Content: &content, Embeds: &embeds})
	default:
		data := &discordgo.InteractionResponseData{Content: resp.Content, Embeds: embeds}
		if resp.Private {
			data.Flags = discordgo.MessageFlagsEphemeral
		}
		err = d.session.Respond(i, &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseChannelMessageWithSource,
			Data: data,
		})
	}
	if err != nil {
		d.log.Error().Err(err).Str("command", inv.Name).Msg("send command reply")
	}
}

// invocation maps an interaction onto the channel-neutral form.
func (d *DiscordChannel) invocation(i *discordgo.Interaction) command.Invocation {
	inv := invocationFromInteraction(i)
	inv.Latency = d.session.Latency()
	if inv.GuildID != "" {
		if g, err := d.session.Guild(inv.GuildID); err == nil {
			inv.GuildName = g.Name
			inv.MemberCount = g.MemberCount
		} else {
			d.log.Debug().Err(err).Str("guild", inv.GuildID).Msg("guild lookup")
		}
	}
	return inv
}

func invocationFromInteraction(i *discordgo.Interaction) command.Invocation {
	data := i.ApplicationCommandData()
	inv := command.Invocation{
		Name:    data.Name,
		Channel: discordChannelName,
		GuildID: i.GuildID,
		ChatID:  i.ChannelID,
		Options: make(map[string]command.Value, len(data.Options)),
	}
	switch {
	case i.Member != nil && i.Member.User != nil:
		inv.User = command.User{ID: i.Member.User.ID, Name: i.Member.User.Username}
		inv.JoinedAt = i.Member.JoinedAt
		inv.IsAdmin = i.Member.Permissions&discordgo.PermissionAdministrator != 0
	case i.User != nil:
		inv.User = command.User{ID: i.User.ID, Name: i.User.Username}
	}

	for _, opt := range data.Options {
		if opt.Focused {
			inv.Focused = opt.Name
		}
		switch opt.Type {
		case discordgo.ApplicationCommandOptionInteger:
			n, ok := intValue(opt.Value)
			if !ok {
				continue
			}
			inv.Options[opt.Name] = command.Value{Type: command.OptionInteger, Int: n}
		case discordgo.ApplicationCommandOptionUser:
			id := fmt.Sprint(opt.Value)
			u := command.User{ID: id, Name: id}
			if data.Resolved != nil {
				if ru, ok := data.Resolved.Users[id]; ok && ru != nil {
					u.Name = ru.Username
				}
			}
			inv.Options[opt.Name] = command.Value{Type: command.OptionUser, User: u}
		default:
			inv.Options[opt.Name] = command.Value{Type: command.OptionString, Str: fmt.Sprint(opt.Value)}
		}
	}
	return inv
}

// intValue accepts JSON numbers and, while an option is being typed,
// strings.
func intValue(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case float64:
		return int64(n), true
	case int64:
		return n, true
	case int:
		return int64(n), true
	case string:
		parsed, err := strconv.ParseInt(n, 10, 64)
		return parsed, err == nil
	default:
		return 0, false
	}
}

func (d *DiscordChannel) Send(msg bus.OutboundMessage) error {
	if d.session == nil {
		return fmt.Errorf("discord session not initialized")
	}
	if msg.DeleteMessageID != "" {
		if err := d.session.DeleteMessage(msg.ChatID, msg.DeleteMessageID); err != nil {
			d.log.Warn().Err(err).Str("chat", msg.ChatID).Str("message", msg.DeleteMessageID).Msg("delete message")
		}
	}

	chunks := splitMessage(msg.Content, discordMaxLen)
	if len(chunks) == 0 && msg.Embed == nil {
		return nil
	}
	if len(chunks) == 0 {
		chunks = []string{""}
	}
	for n, chunk := range chunks {
		data := &discordgo.MessageSend{Content: chunk}
		if n == 0 && msg.ReplyTo != "" {
			data.Reference = &discordgo.MessageReference{MessageID: msg.ReplyTo, ChannelID: msg.ChatID}
		}
		// the embed rides on the last chunk
		if n == len(chunks)-1 && msg.Embed != nil {
			data.Embeds = []*discordgo.MessageEmbed{toDiscordEmbed(msg.Embed)}
		}
		if err := d.session.SendMessage(msg.ChatID, data); err != nil {
			return fmt.Errorf("send discord message: %w", err)
		}
	}
	return nil
}

func toDiscordEmbed(e *bus.Embed) *discordgo.MessageEmbed {
	out := &discordgo.MessageEmbed{
		Title:       e.Title,
		Description: e.Description,
		Color:       e.Color,
	}
	if e.ImageURL != "" {
		out.Image = &discordgo.MessageEmbedImage{URL: e.ImageURL}
	}
	if e.ThumbnailURL != "" {
		out.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: e.ThumbnailURL}
	}
	for _, f := range e.Fields {
		out.Fields = append(out.Fields, &discordgo.MessageEmbedField{Name: f.Name, Value: f.Value, Inline: f.Inline})
	}
	if e.Footer != "" {
		out.Footer = &discordgo.MessageEmbedFooter{Text: e.Footer}
	}
	if !e.Timestamp.IsZero() {
		out.Timestamp = e.Timestamp.UTC().Format(time.RFC3339)
	}
	return out
}

func toApplicationCommand(def command.Definition) *discordgo.ApplicationCommand {
	cmd := &discordgo.ApplicationCommand{
		Name:        def.Name,
		Description: def.Description,
	}
	if def.AdminOnly {
		perm := int64(discordgo.PermissionAdministrator)
		cmd.DefaultMemberPermissions = &perm
	}
	for _, o := range def.Options {
		opt := &discordgo.ApplicationCommandOption{
			Type:         optionType(o.Type),
			Name:         o.Name,
			Description:  o.Description,
			Required:     o.Required,
			Autocomplete: o.Autocomplete,
		}
		for _, c := range o.Choices {
			opt.Choices = append(opt.Choices, &discordgo.ApplicationCommandOptionChoice{Name: c.Name, Value: c.Value})
		}
		if o.MinValue != nil {
			lo := float64(*o.MinValue)
			opt.MinValue = &lo
		}
		if o.MaxValue != nil {
			opt.MaxValue = float64(*o.MaxValue)
		}
		cmd.Options = append(cmd.Options, opt)
	}
	return cmd
}

func optionType(t command.OptionType) discordgo.ApplicationCommandOptionType {
	switch t {
	case command.OptionInteger:
		return discordgo.ApplicationCommandOptionInteger
	case command.OptionUser:
		return discordgo.ApplicationCommandOptionUser
	default:
		return discordgo.ApplicationCommandOptionString
	}
}
