package channel

import (
	"context"
	"fmt"
	"sort"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/RazeViana/Caitlyn/internal/bus"
	"github.com/RazeViana/Caitlyn/internal/config"
)

type ChannelManager struct {
	channels map[string]Channel
	bus      *bus.MessageBus
	log      zerolog.Logger
}

func NewChannelManager(cfg *config.Config, b *bus.MessageBus, cmds Commands, log zerolog.Logger) (*ChannelManager, error) {
	m := &ChannelManager{
		channels: make(map[string]Channel),
		bus:      b,
		log:      log.With().Str("component", "channel-mgr").Logger(),
	}

	if cfg.Discord.Enabled {
		ch, err := NewDiscordChannel(cfg.Discord, b, cmds, log)
		if err != nil {
			return nil, fmt.Errorf("init discord channel: %w", err)
		}
		m.Add(ch)
	}

	if cfg.Telegram.Enabled {
		ch, err := NewTelegramChannel(cfg.Telegram, b, cmds, log)
		if err != nil {
			return nil, fmt.Errorf("init telegram channel: %w", err)
		}
		m.Add(ch)
	}

	return m, nil
}

// Add registers ch and routes its outbound messages.
func (m *ChannelManager) Add(ch Channel) {
	m.channels[ch.Name()] = ch
	m.bus.SubscribeOutbound(ch.Name(), func(msg bus.OutboundMessage) {
		if err := ch.Send(msg); err != nil {
			m.log.Error().Err(err).Str("channel", ch.Name()).Msg("send failed")
		}
	})
}

func (m *ChannelManager) Get(name string) (Channel, bool) {
	ch, ok := m.channels[name]
	return ch, ok
}

func (m *ChannelManager) StartAll(ctx context.Context) error {
	var g errgroup.Group
	for name, ch := range m.channels {
		g.Go(func() error {
			m.log.Info().Str("channel", name).Msg("starting")
			if err := ch.Start(ctx); err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			return nil
		})
	}
	return g.Wait()
}

func (m *ChannelManager) StopAll() error {
	for name, ch := range m.channels {
		m.log.Info().Str("channel", name).Msg("stopping")
		if err := ch.Stop(); err != nil {
			m.log.Error().Err(err).Str("channel", name).Msg("stop failed")
		}
	}
	return nil
}

func (m *ChannelManager) EnabledChannels() []string {
	names := make([]string, 0, len(m.channels))
	for name := range m.channels {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
