package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/tradepilot/internal/domain"
)

const riskStateKey = "autopilot:risk_state"

// RiskStateCache implements domain.RiskStateCache as a single Redis hash so a
// restarted engine resumes with the last known daily P&L and drawdown.
type RiskStateCache struct {
	rdb *redis.Client
}

// NewRiskStateCache creates a RiskStateCache backed by the given Client.
func NewRiskStateCache(c *Client) *RiskStateCache {
	return &RiskStateCache{rdb: c.Underlying()}
}

// Save overwrites the cached risk state.
func (rc *RiskStateCache) Save(ctx context.Context, s domain.RiskState) error {
	fields := map[string]interface{}{
		"daily_pnl":         strconv.FormatFloat(s.DailyPnL, 'f', -1, 64),
		"daily_pnl_percent": strconv.FormatFloat(s.DailyPnLPercent, 'f', -1, 64),
		"current_drawdown":  strconv.FormatFloat(s.CurrentDrawdown, 'f', -1, 64),
		"open_positions":    strconv.Itoa(s.OpenPositions),
		"total_exposure":    strconv.FormatFloat(s.TotalExposure, 'f', -1, 64),
		"last_trade_time":   "",
	}
	if s.LastTradeTime != nil {
		fields["last_trade_time"] = strconv.FormatInt(s.LastTradeTime.UnixNano(), 10)
	}
	if err := rc.rdb.HSet(ctx, riskStateKey, fields).Err(); err != nil {
		return fmt.Errorf("redis: save risk state: %w", err)
	}
	return nil
}

// Load returns the cached risk state, or domain.ErrNotFound when nothing has
// been saved yet.
func (rc *RiskStateCache) Load(ctx context.Context) (domain.RiskState, error) {
	vals, err := rc.rdb.HGetAll(ctx, riskStateKey).Result()
	if err != nil {
		return domain.RiskState{}, fmt.Errorf("redis: load risk state: %w", err)
	}
	if len(vals) == 0 {
		return domain.RiskState{}, domain.ErrNotFound
	}

	var s domain.RiskState
	for field, dst := range map[string]*float64{
		"daily_pnl":         &s.DailyPnL,
		"daily_pnl_percent": &s.DailyPnLPercent,
		"current_drawdown":  &s.CurrentDrawdown,
		"total_exposure":    &s.TotalExposure,
	} {
		if v, ok := vals[field]; ok && v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return domain.RiskState{}, fmt.Errorf("redis: parse %s: %w", field, err)
			}
			*dst = f
		}
	}
	if v := vals["open_positions"]; v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return domain.RiskState{}, fmt.Errorf("redis: parse open_positions: %w", err)
		}
		s.OpenPositions = n
	}
	if v := vals["last_trade_time"]; v != "" {
		ns, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return domain.RiskState{}, fmt.Errorf("redis: parse last_trade_time: %w", err)
		}
		t := time.Unix(0, ns).UTC()
		s.LastTradeTime = &t
	}
	return s, nil
}

// Name identifies the cache when it is wired as an event publisher.
func (rc *RiskStateCache) Name() string { return "redis_risk_state" }

// Publish saves the risk state carried by risk:* events.
func (rc *RiskStateCache) Publish(ctx context.Context, ev domain.Event) error {
	if ev.Risk == nil {
		return nil
	}
	return rc.Save(ctx, *ev.Risk)
}

// Compile-time interface check.
var _ domain.RiskStateCache = (*RiskStateCache)(nil)
