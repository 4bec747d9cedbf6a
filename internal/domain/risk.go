package domain

import (
	"fmt"
	"strings"
	"time"
)

// RiskState holds the rolling risk metrics that gate every decision.
type RiskState struct {
	DailyPnL        float64    `json:"daily_pnl"`
	DailyPnLPercent float64    `json:"daily_pnl_percent"`
	CurrentDrawdown float64    `json:"current_drawdown"`
	OpenPositions   int        `json:"open_positions"`
	TotalExposure   float64    `json:"total_exposure"`
	LastTradeTime   *time.Time `json:"last_trade_time,omitempty"`
}

// RiskStatePatch is a partial update; nil fields are left untouched.
type RiskStatePatch struct {
	DailyPnL        *float64   `json:"daily_pnl,omitempty"`
	DailyPnLPercent *float64   `json:"daily_pnl_percent,omitempty"`
	CurrentDrawdown *float64   `json:"current_drawdown,omitempty"`
	OpenPositions   *int       `json:"open_positions,omitempty"`
	TotalExposure   *float64   `json:"total_exposure,omitempty"`
	LastTradeTime   *time.Time `json:"last_trade_time,omitempty"`
}

// Apply returns s with every non-nil patch field written over it.
func (s RiskState) Apply(p RiskStatePatch) RiskState {
	out := s
	if p.DailyPnL != nil {
		out.DailyPnL = *p.DailyPnL
	}
	if p.DailyPnLPercent != nil {
		out.DailyPnLPercent = *p.DailyPnLPercent
	}
	if p.CurrentDrawdown != nil {
		out.CurrentDrawdown = *p.CurrentDrawdown
	}
	if p.OpenPositions != nil {
		out.OpenPositions = *p.OpenPositions
	}
	if p.TotalExposure != nil {
		out.TotalExposure = *p.TotalExposure
	}
	if p.LastTradeTime != nil {
		t := *p.LastTradeTime
		out.LastTradeTime = &t
	} else {
		out.LastTradeTime = cloneTime(s.LastTradeTime)
	}
	return out
}

// Clone returns a copy that shares no pointers with s.
func (s RiskState) Clone() RiskState {
	out := s
	out.LastTradeTime = cloneTime(s.LastTradeTime)
	return out
}

// IsEmpty reports whether the patch carries no fields.
func (p RiskStatePatch) IsEmpty() bool {
	return p.DailyPnL == nil && p.DailyPnLPercent == nil && p.CurrentDrawdown == nil &&
		p.OpenPositions == nil && p.TotalExposure == nil && p.LastTradeTime == nil
}

// RiskLimits are the hard limits enforced by the risk gate.
type RiskLimits struct {
	MaxDailyLoss           float64 `json:"max_daily_loss"`
	MaxDrawdown            float64 `json:"max_drawdown"`
	MinRiskReward          float64 `json:"min_risk_reward"`
	DefaultStopLoss        float64 `json:"default_stop_loss"`
	DefaultTakeProfit      float64 `json:"default_take_profit"`
	HighExposureFraction   float64 `json:"high_exposure_fraction"`
	MediumExposureFraction float64 `json:"medium_exposure_fraction"`
}

// Validate rejects non-finite metrics and a negative position count.
func (p RiskStatePatch) Validate() error {
	var errs []string
	for _, f := range []struct {
		name string
		v    *float64
	}{
		{"daily_pnl", p.DailyPnL},
		{"daily_pnl_percent", p.DailyPnLPercent},
		{"current_drawdown", p.CurrentDrawdown},
		{"total_exposure", p.TotalExposure},
	} {
		if f.v != nil && !finite(*f.v) {
			errs = append(errs, fmt.Sprintf("%s must be finite, got %g", f.name, *f.v))
		}
	}
	if p.OpenPositions != nil && *p.OpenPositions < 0 {
		errs = append(errs, fmt.Sprintf("open_positions must be >= 0, got %d", *p.OpenPositions))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidRiskState, strings.Join(errs, "; "))
	}
	return nil
}

// Validate applies the patch rules to a complete state.
func (s RiskState) Validate() error {
	return RiskStatePatch{
		DailyPnL:        &s.DailyPnL,
		DailyPnLPercent: &s.DailyPnLPercent,
		CurrentDrawdown: &s.CurrentDrawdown,
		OpenPositions:   &s.OpenPositions,
		TotalExposure:   &s.TotalExposure,
	}.Validate()
}
