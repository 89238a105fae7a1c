package gateway

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/RazeViana/Caitlyn/internal/activity"
	"github.com/RazeViana/Caitlyn/internal/ai"
	"github.com/RazeViana/Caitlyn/internal/bus"
	"github.com/RazeViana/Caitlyn/internal/channel"
	"github.com/RazeViana/Caitlyn/internal/command"
	"github.com/RazeViana/Caitlyn/internal/commands"
	"github.com/RazeViana/Caitlyn/internal/config"
	"github.com/RazeViana/Caitlyn/internal/cron"
	"github.com/RazeViana/Caitlyn/internal/giphy"
	"github.com/RazeViana/Caitlyn/internal/linkfix"
	"github.com/RazeViana/Caitlyn/internal/memory"
	"github.com/RazeViana/Caitlyn/internal/reminder"
	"github.com/RazeViana/Caitlyn/internal/store"
)

const (
	botName        = "Caitlyn"
	retentionJobID = "__internal_message_retention"
)

// Options for creating a Gateway. Zero values are built from config.
type Options struct {
	Store      store.Store
	Embedder   memory.Embedder
	Chat       ai.Replier
	GIFs       reminder.GIFSource
	Channels   []channel.Channel // added next to the configured ones
	SignalChan chan os.Signal    // for testing signal handling
}

type Gateway struct {
	cfg          *config.Config
	log          zerolog.Logger
	loc          *time.Location
	bus          *bus.MessageBus
	store        store.Store
	registry     *cron.Registry
	scheduler    *reminder.Scheduler
	bootstrap    *reminder.Bootstrapper
	recorder     *memory.Recorder
	tracker      *activity.Tracker
	conversation *ai.Conversation
	router       *command.Router
	channels     *channel.ChannelManager
	signalChan   chan os.Signal
	inflight     sync.WaitGroup
}

// New creates a Gateway with default options
func New(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*Gateway, error) {
	return NewWithOptions(ctx, cfg, log, Options{})
}

// NewWithOptions wires every component. Nothing is started until Run.
func NewWithOptions(ctx context.Context, cfg *config.Config, log zerolog.Logger, opts Options) (*Gateway, error) {
	loc, err := Location(cfg.Birthday.Timezone)
	if err != nil {
		return nil, err
	}
	g := &Gateway{
		cfg:        cfg,
		log:        log.With().Str("component", "gateway").Logger(),
		loc:        loc,
		signalChan: opts.SignalChan,
	}

	g.store = opts.Store
	if g.store == nil {
		st, err := store.Open(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("open store: %w", err)
		}
		g.store = st
	}
	fail := func(err error) (*Gateway, error) {
		_ = g.store.Close()
		return nil, err
	}

	g.bus = bus.NewMessageBus(config.DefaultBufSize, log)

	// Birthday reminders
	gifs := opts.GIFs
	if gifs == nil {
		gifs = giphy.New(cfg.Giphy)
	}
	g.registry = cron.NewRegistry(loc, log)
	dispatcher := reminder.NewDispatcher(g.bus, gifs, Destination(cfg), loc, nil, log)
	g.scheduler = reminder.NewScheduler(g.store, g.registry, dispatcher, reminder.Options{
		Hour:   cfg.Birthday.NotifyHour,
		Minute: cfg.Birthday.NotifyMinute,
	}, log)
	g.bootstrap = reminder.NewBootstrapper(g.store, g.scheduler, log)

	// Message archive and AI conversation
	embedder := opts.Embedder
	if embedder == nil {
		embedder, err = memory.NewEmbedder(cfg.Embedding)
		if err != nil {
			return fail(fmt.Errorf("create embedder: %w", err))
		}
	}
	g.recorder = memory.NewRecorder(g.store, embedder, log)
	assembler := memory.NewAssembler(g.store, embedder, cfg.Context.SimilarityThreshold, log)

	chat := opts.Chat
	if chat == nil {
		provider, err := ai.NewProvider(cfg.AI)
		if err != nil {
			return fail(err)
		}
		chat = ai.NewChat(provider, cfg.AI)
	}
	state := ai.NewState(cfg.AI.Enabled)
	g.conversation = ai.NewConversation(state, chat, g.recorder, assembler, g.bus, ai.ConversationOptions{
		RecentCount:  cfg.Context.RecentCount,
		SimilarCount: cfg.Context.SimilarCount,
		BotUserID:    botUserID(cfg),
		BotName:      botName,
	}, log)

	g.tracker = activity.NewTracker(g.store, loc, log)

	// Commands are rejected until rehydration finishes in Run.
	g.router = command.NewRouter(log)
	err = commands.Register(g.router, commands.Deps{
		Birthdays: g.scheduler,
		Activity:  g.tracker,
		AI:        state,
		GIFs:      gifs,
		Router:    g.router,
		Location:  loc,
		Log:       log,
	})
	if err != nil {
		return fail(fmt.Errorf("register commands: %w", err))
	}

	chMgr, err := channel.NewChannelManager(cfg, g.bus, g.router, log)
	if err != nil {
		return fail(fmt.Errorf("create channel manager: %w", err))
	}
	for _, ch := range opts.Channels {
		chMgr.Add(ch)
	}
	g.channels = chMgr

	return g, nil
}

// Location resolves the configured zone; empty means the host zone.
func Location(name string) (*time.Location, error) {
	if name == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", name, err)
	}
	return loc, nil
}

// Destination picks where birthday notifications go: the Discord general
// channel when Discord is enabled, the Telegram notify chat otherwise.
func Destination(cfg *config.Config) reminder.Destination {
	if cfg.Discord.Enabled && cfg.Discord.GeneralChannelID != "" {
		return reminder.Destination{Channel: "discord", ChatID: cfg.Discord.GeneralChannelID}
	}
	if cfg.Telegram.Enabled && cfg.Telegram.NotifyChatID != "" {
		return reminder.Destination{Channel: "telegram", ChatID: cfg.Telegram.NotifyChatID}
	}
	return reminder.Destination{Channel: "discord", ChatID: cfg.Discord.GeneralChannelID}
}

func (g *Gateway) Router() *command.Router { return g.router }

// Run rehydrates reminders, opens the router, starts the channels and
// serves until a signal arrives or ctx ends.
func (g *Gateway) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go g.bus.DispatchOutbound(ctx)

	res, err := g.bootstrap.Run(ctx)
	if err != nil {
		_ = g.Shutdown()
		return fmt.Errorf("rehydrate reminders: %w", err)
	}
	for _, f := range res.Failures {
		g.log.Warn().Err(f.Err).Str("subject", f.SubjectID).Msg("birthday not scheduled")
	}

	if err := g.registry.AddFunc(retentionJobID, g.cfg.Context.RetentionCron, g.runRetention); err != nil {
		g.log.Warn().Err(err).Str("spec", g.cfg.Context.RetentionCron).Msg("retention job not scheduled")
	}
	g.registry.Start(ctx)
	g.router.SetReady(true)

	if err := g.channels.StartAll(ctx); err != nil {
		_ = g.Shutdown()
		return fmt.Errorf("start channels: %w", err)
	}
	g.log.Info().
		Strs("channels", g.channels.EnabledChannels()).
		Int("birthdays", res.Started).
		Int("skipped", res.Failed).
		Msg("running")

	go g.processLoop(ctx)
	go g.voiceLoop(ctx)

	// Use injected signal channel for testing, or create default
	sigCh := g.signalChan
	if sigCh == nil {
		sigCh = make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigCh)
	}
	select {
	case sig := <-sigCh:
		g.log.Info().Str("signal", sig.String()).Msg("shutting down")
	case <-ctx.Done():
		g.log.Info().Msg("context done, shutting down")
	}
	cancel()
	return g.Shutdown()
}

func (g *Gateway) processLoop(ctx context.Context) {
	for {
		select {
		case msg := <-g.bus.Inbound:
			g.handleInbound(ctx, msg)
		case <-ctx.Done():
			return
		}
	}
}

// handleInbound runs the quick per-message work inline and hands the
// conversation turn, which may wait on the model, to its own goroutine.
func (g *Gateway) handleInbound(ctx context.Context, msg bus.InboundMessage) {
	defer g.rethrow("inbound")

	g.log.Debug().
		Str("channel", msg.Channel).
		Str("chat", msg.ChatID).
		Str("sender", msg.SenderName).
		Str("content", truncate(msg.Content, 80)).
		Msg("inbound")

	if fixed, ok := linkfix.Rewrite(msg.Content); ok {
		err := g.bus.Send(ctx, bus.OutboundMessage{
			Channel:         msg.Channel,
			ChatID:          msg.ChatID,
			Content:         fixed.Markdown(),
			DeleteMessageID: msg.MessageID,
		})
		if err != nil {
			g.log.Warn().Err(err).Str("chat", msg.ChatID).Msg("link rewrite not sent")
		}
	}

	if msg.GuildID != "" {
		if err := g.tracker.TrackMessage(ctx, msg.GuildID, msg.SenderID, msg.SenderName); err != nil {
			g.log.Error().Err(err).Str("guild", msg.GuildID).Str("user", msg.SenderID).Msg("activity not recorded")
		}
	}

	g.inflight.Add(1)
	go func() {
		defer g.inflight.Done()
		defer g.rethrow("conversation")
		g.conversation.Handle(ctx, msg)
	}()
}

func (g *Gateway) voiceLoop(ctx context.Context) {
	for {
		select {
		case ev := <-g.bus.Voice:
			if err := g.tracker.HandleVoice(ctx, ev); err != nil {
				g.log.Error().Err(err).Str("guild", ev.GuildID).Str("user", ev.UserID).Msg("voice activity not recorded")
			}
		case <-ctx.Done():
			return
		}
	}
}

// rethrow logs a panic and lets it continue; the process supervisor
// restarts us and rehydration rebuilds the jobs.
func (g *Gateway) rethrow(where string) {
	if r := recover(); r != nil {
		g.log.Error().Interface("panic", r).Str("where", where).Msg("unrecoverable state")
		panic(r)
	}
}

func (g *Gateway) runRetention() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if _, err := g.Trim(ctx); err != nil {
		g.log.Error().Err(err).Msg("retention trim failed")
	}
}

// Trim deletes archived messages older than the configured retention.
func (g *Gateway) Trim(ctx context.Context) (int64, error) {
	return g.recorder.Trim(ctx, g.cfg.Context.RetentionDays)
}

// RegisterCommands publishes the slash command definitions to Discord.
func (g *Gateway) RegisterCommands() (int, error) {
	dc, err := channel.NewDiscordChannel(g.cfg.Discord, g.bus, g.router, g.log)
	if err != nil {
		return 0, err
	}
	return dc.RegisterCommands()
}

func (g *Gateway) Shutdown() error {
	g.router.SetReady(false)
	_ = g.channels.StopAll()
	g.registry.Stop()
	stopped := g.registry.StopAllJobs()
	g.inflight.Wait()
	if err := g.store.Close(); err != nil {
		g.log.Warn().Err(err).Msg("close store")
	}
	g.log.Info().Int("jobs", stopped).Msg("shutdown complete")
	return nil
}

// Close releases the store without running; for one-shot CLI commands.
func (g *Gateway) Close() error {
	return g.store.Close()
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}

// botUserID is the id the bot's own archived turns are stored under. A
// Discord bot user shares its application's id; a Telegram bot's id is the
// token prefix before the colon.
func botUserID(cfg *config.Config) string {
	if cfg.Discord.AppID != "" {
		return cfg.Discord.AppID
	}
	if id, _, ok := strings.Cut(cfg.Telegram.Token, ":"); ok {
		return id
	}
	return ""
}
