// Package feed turns opportunities published by external scanners into
// engine evaluations.
package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/tradepilot/internal/domain"
)

// Message is the JSON shape published on the opportunity channel.
type Message struct {
	Opportunity domain.Opportunity `json:"opportunity"`
	Analysis    domain.Analysis    `json:"analysis"`
}

// Evaluator is the engine surface the feeder needs.
type Evaluator interface {
	EvaluateOpportunity(ctx context.Context, opp domain.Opportunity, analysis domain.Analysis) (domain.Decision, error)
}

// MarkSink receives the reference price carried by an opportunity.
// executor.PaperPlacer satisfies it.
type MarkSink interface {
	SetMark(symbol string, price float64)
}

// OpportunityFeeder subscribes to a SignalBus channel and evaluates every
// opportunity it receives.
type OpportunityFeeder struct {
	bus     domain.SignalBus
	channel string
	engine  Evaluator
	marks   MarkSink
	logger  *slog.Logger
}

// NewOpportunityFeeder creates an OpportunityFeeder. marks may be nil.
func NewOpportunityFeeder(bus domain.SignalBus, channel string, engine Evaluator, marks MarkSink, logger *slog.Logger) *OpportunityFeeder {
	return &OpportunityFeeder{
		bus:     bus,
		channel: channel,
		engine:  engine,
		marks:   marks,
		logger:  logger.With(slog.String("component", "opportunity_feeder")),
	}
}

// Run subscribes to the channel and evaluates messages until ctx ends.
func (f *OpportunityFeeder) Run(ctx context.Context) error {
	ch, err := f.bus.Subscribe(ctx, f.channel)
	if err != nil {
		return err
	}
	f.logger.Info("opportunity feeder started", slog.String("channel", f.channel))
	defer f.logger.Info("opportunity feeder stopped")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case data, ok := <-ch:
			if !ok {
				return nil
			}
			if _, err := f.Handle(ctx, data); err != nil {
				f.logFailure(ctx, err, len(data))
			}
		}
	}
}

// Handle decodes one message and evaluates it.
func (f *OpportunityFeeder) Handle(ctx context.Context, data []byte) (domain.Decision, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return domain.Decision{}, fmt.Errorf("feed: decode opportunity: %w", err)
	}
	if f.marks != nil && msg.Opportunity.Price != nil && msg.Opportunity.Symbol != "" {
		f.marks.SetMark(msg.Opportunity.Symbol, *msg.Opportunity.Price)
	}

	d, err := f.engine.EvaluateOpportunity(ctx, msg.Opportunity, msg.Analysis)
	if err != nil {
		return domain.Decision{}, err
	}
	f.logger.DebugContext(ctx, "opportunity evaluated",
		slog.String("decision_id", d.ID),
		slog.String("status", string(d.Status)),
	)
	return d, nil
}

func (f *OpportunityFeeder) logFailure(ctx context.Context, err error, size int) {
	switch {
	case errors.Is(err, domain.ErrEngineKilled), errors.Is(err, domain.ErrEnginePaused):
		f.logger.DebugContext(ctx, "opportunity dropped", slog.String("error", err.Error()))
	default:
		f.logger.WarnContext(ctx, "opportunity feeder handle message failed",
			slog.String("error", err.Error()),
			slog.Int("payload_len", size),
		)
	}
}
