// Package executor carries out decisions the engine has dispatched: it
// places the order and reports the outcome back to the engine.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/tradepilot/internal/domain"
)

// Reporter receives execution outcomes. *autopilot.Engine satisfies it.
type Reporter interface {
	RecordExecutionResult(ctx context.Context, id, result string) error
	RecordExecutionFailure(ctx context.Context, id string, cause error) error
}

// Observer counts placement outcomes. *metrics.Metrics satisfies it.
type Observer interface {
	OrderOutcome(outcome string)
}

// Config tunes an Executor. Zero values pick the defaults.
type Config struct {
	DedupTTL        time.Duration
	LockTTL         time.Duration
	CleanupInterval time.Duration
	RetryDelay      time.Duration
	RateLimitKey    string
}

func (c Config) withDefaults() Config {
	if c.DedupTTL <= 0 {
		c.DedupTTL = 10 * time.Minute
	}
	if c.LockTTL <= 0 {
		c.LockTTL = 30 * time.Second
	}
	if c.CleanupInterval <= 0 {
		c.CleanupInterval = 30 * time.Second
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 500 * time.Millisecond
	}
	if c.RateLimitKey == "" {
		c.RateLimitKey = "executor:orders"
	}
	return c
}

// Executor reads dispatched decisions from a Queue, applies deduplication,
// the per-decision lock and the order rate limit, then places orders through
// the OrderPlacer.
type Executor struct {
	cfg      Config
	queue    *Queue
	placer   OrderPlacer
	reporter Reporter
	dedup    *Dedup
	locks    domain.LockManager
	limiter  domain.RateLimiter
	observer Observer
	logger   *slog.Logger
}

// Option customises an Executor.
type Option func(*Executor)

// WithLocks takes a distributed lock per decision before placing it.
func WithLocks(l domain.LockManager) Option { return func(e *Executor) { e.locks = l } }

// WithRateLimiter waits on the limiter before each placement.
func WithRateLimiter(r domain.RateLimiter) Option { return func(e *Executor) { e.limiter = r } }

// WithObserver reports placement outcomes.
func WithObserver(o Observer) Option { return func(e *Executor) { e.observer = o } }

// NewExecutor creates an Executor draining queue.
func NewExecutor(cfg Config, queue *Queue, placer OrderPlacer, reporter Reporter, logger *slog.Logger, opts ...Option) *Executor {
	cfg = cfg.withDefaults()
	e := &Executor{
		cfg:      cfg,
		queue:    queue,
		placer:   placer,
		reporter: reporter,
		dedup:    NewDedup(cfg.DedupTTL),
		logger:   logger.With(slog.String("component", "executor")),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run processes decisions until the context is cancelled, then drains what
// is already queued and returns.
func (e *Executor) Run(ctx context.Context) error {
	e.logger.Info("executor started")
	defer e.logger.Info("executor stopped")

	cleanupTicker := time.NewTicker(e.cfg.CleanupInterval)
	defer cleanupTicker.Stop()

	for {
		for ctx.Err() == nil {
			d, ok := e.queue.TryNext()
			if !ok {
				break
			}
			e.process(ctx, d)
		}

		select {
		case <-ctx.Done():
			e.drain()
			return ctx.Err()
		case <-e.queue.Ready():
		case <-cleanupTicker.C:
			e.dedup.Cleanup()
		}
	}
}

// process handles a single decision through the full execution pipeline.
func (e *Executor) process(ctx context.Context, d domain.Decision) {
	log := e.logger.With(
		slog.String("decision_id", d.ID),
		slog.String("action", d.Action),
		slog.String("symbol", d.Params.Symbol),
	)

	if e.dedup.IsDuplicate(d.ID) {
		log.Debug("decision deduplicated, skipping")
		e.observe("duplicate")
		return
	}

	if e.locks != nil {
		unlock, err := e.locks.Acquire(ctx, "decision:"+d.ID, e.cfg.LockTTL)
		if err != nil {
			if errors.Is(err, domain.ErrLockHeld) {
				log.Info("decision locked by another executor, skipping")
				e.observe("locked")
				return
			}
			e.fail(ctx, log, d, fmt.Errorf("acquire lock: %w", err))
			return
		}
		defer unlock()
	}

	if e.limiter != nil {
		if err := e.limiter.Wait(ctx, e.cfg.RateLimitKey); err != nil {
			e.observe("rate_limited")
			e.fail(ctx, log, d, err)
			return
		}
	}

	result, err := e.placer.PlaceOrder(ctx, d)
	if err == nil && !result.Success && result.ShouldRetry {
		log.Warn("order rejected, retrying once", slog.String("message", result.Message))
		select {
		case <-ctx.Done():
			err = ctx.Err()
		case <-time.After(e.cfg.RetryDelay):
			result, err = e.placer.PlaceOrder(ctx, d)
		}
	}
	if err != nil {
		e.fail(ctx, log, d, err)
		return
	}
	if !result.Success {
		e.fail(ctx, log, d, fmt.Errorf("order rejected: %s", result.Message))
		return
	}

	e.observe("placed")
	summary := describe(result)
	if err := e.reporter.RecordExecutionResult(ctx, d.ID, summary); err != nil {
		log.Warn("record execution result failed", slog.String("error", err.Error()))
		return
	}
	log.Info("order placed successfully",
		slog.String("order_id", result.OrderID),
		slog.Float64("filled_price", result.FilledPrice),
	)
}

func (e *Executor) fail(ctx context.Context, log *slog.Logger, d domain.Decision, cause error) {
	e.observe("failed")
	log.Error("order placement failed", slog.String("error", cause.Error()))
	if err := e.reporter.RecordExecutionFailure(ctx, d.ID, cause); err != nil {
		log.Warn("record execution failure failed", slog.String("error", err.Error()))
	}
}

func (e *Executor) observe(outcome string) {
	if e.observer != nil {
		e.observer.OrderOutcome(outcome)
	}
}

func describe(r OrderResult) string {
	switch {
	case r.OrderID == "" && r.Message != "":
		return r.Message
	case r.OrderID == "":
		return "completed"
	case r.FilledPrice > 0:
		return fmt.Sprintf("order %s filled at %g", r.OrderID, r.FilledPrice)
	default:
		return fmt.Sprintf("order %s placed", r.OrderID)
	}
}

// drain processes decisions still queued after shutdown, each with a
// short-lived context so external calls cannot hang the exit.
func (e *Executor) drain() {
	for {
		d, ok := e.queue.TryNext()
		if !ok {
			return
		}
		e.logger.Warn("draining decision after shutdown", slog.String("decision_id", d.ID))
		drainCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		e.process(drainCtx, d)
		cancel()
	}
}
