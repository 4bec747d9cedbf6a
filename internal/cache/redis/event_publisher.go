package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/alanyoungcy/tradepilot/internal/domain"
)

// EventPublisher fans engine events out on the bus: a pub/sub message for
// live listeners and a stream entry for replay.
type EventPublisher struct {
	bus     domain.SignalBus
	channel string
	stream  string
}

// NewEventPublisher publishes to ChannelAutoPilot and StreamAutoPilot.
func NewEventPublisher(bus domain.SignalBus) *EventPublisher {
	return &EventPublisher{bus: bus, channel: ChannelAutoPilot, stream: StreamAutoPilot}
}

// Name identifies the publisher in engine logs.
func (p *EventPublisher) Name() string { return "redis_bus" }

// Publish encodes ev as JSON and sends it to the channel and the stream.
func (p *EventPublisher) Publish(ctx context.Context, ev domain.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("redis: encode event %s: %w", ev.Type, err)
	}
	if err := p.bus.StreamAppend(ctx, p.stream, payload); err != nil {
		return err
	}
	return p.bus.Publish(ctx, p.channel, payload)
}
