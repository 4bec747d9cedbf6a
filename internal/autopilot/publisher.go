package autopilot

import (
	"context"

	"github.com/alanyoungcy/tradepilot/internal/domain"
)

type funcPublisher struct {
	name string
	fn   func(ctx context.Context, ev domain.Event) error
}

func (p funcPublisher) Name() string { return p.name }

func (p funcPublisher) Publish(ctx context.Context, ev domain.Event) error {
	return p.fn(ctx, ev)
}

// PublisherFunc adapts a function into a named Publisher.
func PublisherFunc(name string, fn func(ctx context.Context, ev domain.Event) error) Publisher {
	return funcPublisher{name: name, fn: fn}
}

// Filter forwards only the listed event types to next. An empty list
// forwards everything.
func Filter(next Publisher, types []domain.EventType) Publisher {
	if len(types) == 0 {
		return next
	}
	allowed := make(map[domain.EventType]bool, len(types))
	for _, t := range types {
		allowed[t] = true
	}
	return funcPublisher{
		name: next.Name(),
		fn: func(ctx context.Context, ev domain.Event) error {
			if !allowed[ev.Type] {
				return nil
			}
			return next.Publish(ctx, ev)
		},
	}
}
