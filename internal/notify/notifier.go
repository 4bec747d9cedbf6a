// Package notify delivers operator alerts for engine events to chat channels
// (Telegram, Discord). Only the configured event types are forwarded.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alanyoungcy/tradepilot/internal/domain"
)

// Sender is the interface that each notification channel must implement.
type Sender interface {
	// Send delivers a notification with the given title and message body.
	Send(ctx context.Context, title, message string) error
	// Name returns a human-readable identifier for the sender (e.g. "telegram").
	Name() string
}

// queueSize bounds the alerts waiting for delivery. Alerts beyond it are
// dropped and logged.
const queueSize = 256

type alert struct {
	title, message string
}

// Notifier dispatches notifications to one or more Senders. As an engine
// publisher it only queues alerts; Run delivers them so a slow chat API never
// holds up the engine.
type Notifier struct {
	senders []Sender
	events  map[domain.EventType]bool
	queue   chan alert
	logger  *slog.Logger
}

// NewNotifier creates a Notifier that will deliver to the given senders. Only
// events whose type appears in events are forwarded; an empty list allows all.
func NewNotifier(senders []Sender, events []domain.EventType, logger *slog.Logger) *Notifier {
	allowed := make(map[domain.EventType]bool, len(events))
	for _, e := range events {
		allowed[domain.EventType(strings.TrimSpace(string(e)))] = true
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		queue:   make(chan alert, queueSize),
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Enabled reports whether any sender is configured.
func (n *Notifier) Enabled() bool { return len(n.senders) > 0 }

// Name identifies the notifier in engine logs.
func (n *Notifier) Name() string { return "notifier" }

// Publish formats ev and queues it for delivery if its type is allowed.
func (n *Notifier) Publish(ctx context.Context, ev domain.Event) error {
	if !n.Enabled() || !n.allowed(ev.Type) {
		return nil
	}
	title, message := Format(ev)
	select {
	case n.queue <- alert{title: title, message: message}:
		return nil
	default:
		return fmt.Errorf("notify: queue full, dropped %s", ev.Type)
	}
}

// Run delivers queued alerts until ctx ends.
func (n *Notifier) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case a := <-n.queue:
			// Errors are logged per sender in dispatch.
			_ = n.dispatch(ctx, a.title, a.message)
		}
	}
}

// Announce delivers a process lifecycle notice (startup, shutdown) to every
// sender synchronously. It bypasses the event filter.
func (n *Notifier) Announce(ctx context.Context, title, message string) error {
	return n.dispatch(ctx, title, message)
}

func (n *Notifier) allowed(event domain.EventType) bool {
	return len(n.events) == 0 || n.events[event]
}

// dispatch iterates over all senders and sends the notification. Errors from
// individual senders are collected and returned as a combined error; a single
// sender failure does not prevent delivery to the remaining senders.
func (n *Notifier) dispatch(ctx context.Context, title, message string) error {
	if len(n.senders) == 0 {
		return nil
	}

	var errs []string
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Sprintf("%s: %v", s.Name(), err))
		} else {
			n.logger.DebugContext(ctx, "notification sent",
				slog.String("sender", s.Name()),
				slog.String("title", title),
			)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %s", len(errs), strings.Join(errs, "; "))
	}
	return nil
}
