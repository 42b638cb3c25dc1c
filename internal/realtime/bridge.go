package realtime

import (
	"context"

	"finsight/internal/amqp"
	"finsight/internal/core"
	"finsight/internal/log"
)

// Broker is the cross-process transport of change messages.
type Broker interface {
	PublishChange(ctx context.Context, ev core.ChangeEvent) error
	Consume(ctx context.Context, handler amqp.Handler) error
	Origin() string
}

// Bridge publishes local writes to the hub and the broker, and replays
// changes published by other instances into the hub.
type Bridge struct {
	hub    *Hub
	broker Broker
	logger *log.Logger
}

// NewBridge returns a bridge; a nil broker keeps fan-out in-process.
func NewBridge(hub *Hub, broker Broker, logger *log.Logger) *Bridge {
	if logger == nil {
		logger = log.Discard()
	}
	return &Bridge{hub: hub, broker: broker, logger: logger.WithComponent(log.ComponentRealtime)}
}

func (b *Bridge) Hub() *Hub { return b.hub }

// Publish delivers ev to local subscribers, then forwards it to the broker.
// The local delivery happens even when forwarding fails.
func (b *Bridge) Publish(ctx context.Context, ev core.ChangeEvent) error {
	b.hub.Publish(ev)
	if b.broker == nil {
		return nil
	}
	return b.broker.PublishChange(ctx, ev)
}

// Run consumes broker messages until ctx ends. Messages this instance
// published were already delivered locally and are skipped.
func (b *Bridge) Run(ctx context.Context) error {
	if b.broker == nil {
		<-ctx.Done()
		return ctx.Err()
	}
	origin := b.broker.Origin()
	b.logger.InfoContext(ctx, "Realtime bridge started", "origin", origin)
	return b.broker.Consume(ctx, func(_ context.Context, msg *amqp.ChangeMessage) error {
		if msg.Origin == origin {
			return nil
		}
		b.hub.Publish(msg.Event)
		return nil
	})
}
