// Package service holds the background jobs that keep the engine's inputs
// current: the daily risk rollover and the cold-storage archive.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/tradepilot/internal/domain"
)

// RiskUpdater is the engine surface the rollover needs.
type RiskUpdater interface {
	UpdateRiskState(ctx context.Context, patch domain.RiskStatePatch) (domain.RiskState, error)
}

// Rollover zeroes the daily P&L when the trading day changes in the
// configured timezone. Drawdown, exposure and open positions carry over.
type Rollover struct {
	engine   RiskUpdater
	loc      *time.Location
	interval time.Duration
	now      func() time.Time
	logger   *slog.Logger

	mu      sync.Mutex
	dayOpen time.Time
}

// NewRollover creates a Rollover for the IANA timezone tz ("" means UTC).
func NewRollover(engine RiskUpdater, tz string, interval time.Duration, logger *slog.Logger) (*Rollover, error) {
	if tz == "" {
		tz = "UTC"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("service: rollover timezone %q: %w", tz, err)
	}
	if interval <= 0 {
		interval = time.Minute
	}
	r := &Rollover{
		engine:   engine,
		loc:      loc,
		interval: interval,
		now:      time.Now,
		logger:   logger.With(slog.String("component", "rollover")),
	}
	r.dayOpen = DayOpen(loc, r.now())
	return r, nil
}

// DayOpen returns local midnight of the day containing t.
func DayOpen(loc *time.Location, t time.Time) time.Time {
	lt := t.In(loc)
	return time.Date(lt.Year(), lt.Month(), lt.Day(), 0, 0, 0, 0, loc)
}

// Check resets the daily P&L if a day boundary has passed since the last
// check and reports whether it did.
func (r *Rollover) Check(ctx context.Context) bool {
	r.mu.Lock()
	open := DayOpen(r.loc, r.now())
	if !open.After(r.dayOpen) {
		r.mu.Unlock()
		return false
	}
	prev := r.dayOpen
	r.dayOpen = open
	r.mu.Unlock()

	zero := 0.0
	st, err := r.engine.UpdateRiskState(ctx, domain.RiskStatePatch{
		DailyPnL:        &zero,
		DailyPnLPercent: &zero,
	})
	if err != nil {
		r.logger.ErrorContext(ctx, "daily reset failed", slog.String("error", err.Error()))
		return false
	}
	r.logger.InfoContext(ctx, "new trading day started",
		slog.Time("previous_open", prev),
		slog.Time("day_open", open),
		slog.Float64("drawdown", st.CurrentDrawdown),
	)
	return true
}

// Run checks the boundary on every tick until ctx ends.
func (r *Rollover) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.InfoContext(ctx, "rollover started", slog.String("timezone", r.loc.String()))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.Check(ctx)
		}
	}
}
