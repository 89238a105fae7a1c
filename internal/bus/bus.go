package bus

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

type MessageBus struct {
	Inbound  chan InboundMessage
	Outbound chan OutboundMessage
	Voice    chan VoiceEvent

	mu          sync.RWMutex
	subscribers map[string]func(OutboundMessage)
	log         zerolog.Logger
}

func NewMessageBus(bufSize int, log zerolog.Logger) *MessageBus {
	return &MessageBus{
		Inbound:     make(chan InboundMessage, bufSize),
		Outbound:    make(chan OutboundMessage, bufSize),
		Voice:       make(chan VoiceEvent, bufSize),
		subscribers: make(map[string]func(OutboundMessage)),
		log:         log.With().Str("component", "bus").Logger(),
	}
}

func (b *MessageBus) SubscribeOutbound(channel string, fn func(OutboundMessage)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[channel] = fn
}

// Send enqueues an outbound message, blocking until there is room or ctx ends.
func (b *MessageBus) Send(ctx context.Context, msg OutboundMessage) error {
	select {
	case b.Outbound <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *MessageBus) DispatchOutbound(ctx context.Context) {
	for {
		select {
		case msg := <-b.Outbound:
			b.mu.RLock()
			fn, ok := b.subscribers[msg.Channel]
			b.mu.RUnlock()
			if !ok {
				b.log.Warn().Str("channel", msg.Channel).Msg("no subscriber for outbound message")
				continue
			}
			fn(msg)
		case <-ctx.Done():
			return
		}
	}
}
