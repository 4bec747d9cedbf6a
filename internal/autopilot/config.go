// Package autopilot implements the autonomous trading decision engine. It
// turns opportunities into governed decisions under hard risk limits,
// confidence scoring, and a human-approval workflow with deadlines.
package autopilot

import (
	"fmt"
	"strings"
	"time"

	"github.com/alanyoungcy/tradepilot/internal/domain"
)

// Config is the engine's operating snapshot. Only Mode changes after
// construction, through Engine.SetMode.
type Config struct {
	Mode                  domain.Mode
	Limits                domain.RiskLimits
	AutoApproveBelow      float64
	AutoApproveConfidence float64
	ApprovalTimeout       time.Duration
	SweepInterval         time.Duration
	// HistoryLimit bounds how many decisions stay in memory. Pending,
	// approved, and executed decisions still awaiting their execution
	// outcome are never evicted, so the limit may be exceeded temporarily.
	HistoryLimit int
	NotifyEvents []domain.EventType
}

// DefaultConfig returns a fresh, independently owned configuration.
func DefaultConfig() Config {
	return Config{
		Mode: domain.ModeSemiAuto,
		Limits: domain.RiskLimits{
			MaxDailyLoss:           5,
			MaxDrawdown:            15,
			MinRiskReward:          1.5,
			DefaultStopLoss:        0.05,
			DefaultTakeProfit:      0.10,
			HighExposureFraction:   0.05,
			MediumExposureFraction: 0.02,
		},
		AutoApproveBelow:      100,
		AutoApproveConfidence: 0.8,
		ApprovalTimeout:       5 * time.Minute,
		SweepInterval:         15 * time.Second,
		HistoryLimit:          1000,
		NotifyEvents: []domain.EventType{
			domain.EventDecisionPending,
			domain.EventDecisionExecute,
			domain.EventDecisionError,
			domain.EventDailyLimitReached,
			domain.EventDrawdownReached,
			domain.EventKilled,
		},
	}
}

// Validate returns a combined error describing every invalid field.
func (c Config) Validate() error {
	var errs []string
	switch c.Mode {
	case domain.ModeManual, domain.ModeSemiAuto, domain.ModeFullAuto:
	default:
		errs = append(errs, fmt.Sprintf("unknown mode %q", c.Mode))
	}
	if c.Limits.MaxDailyLoss <= 0 {
		errs = append(errs, "max_daily_loss must be > 0")
	}
	if c.Limits.MaxDrawdown <= 0 {
		errs = append(errs, "max_drawdown must be > 0")
	}
	if c.Limits.MinRiskReward <= 0 {
		errs = append(errs, "min_risk_reward must be > 0")
	}
	if c.Limits.DefaultStopLoss <= 0 || c.Limits.DefaultStopLoss >= 1 {
		errs = append(errs, "default_stop_loss must be in (0,1)")
	}
	if c.Limits.DefaultTakeProfit <= 0 {
		errs = append(errs, "default_take_profit must be > 0")
	}
	if c.Limits.MediumExposureFraction > c.Limits.HighExposureFraction {
		errs = append(errs, "medium_exposure_fraction must not exceed high_exposure_fraction")
	}
	if c.AutoApproveConfidence < 0 || c.AutoApproveConfidence > 1 {
		errs = append(errs, "auto_approve_confidence must be in [0,1]")
	}
	if c.ApprovalTimeout <= 0 {
		errs = append(errs, "approval_timeout must be > 0")
	}
	if c.SweepInterval <= 0 {
		errs = append(errs, "sweep_interval must be > 0")
	}
	if c.HistoryLimit < 1 {
		errs = append(errs, "history_limit must be >= 1")
	}
	if len(errs) > 0 {
		return fmt.Errorf("autopilot: invalid config: %s", strings.Join(errs, "; "))
	}
	return nil
}
