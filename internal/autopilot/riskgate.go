package autopilot

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/tradepilot/internal/domain"
)

// Gate rejection reasons.
const (
	ReasonDailyLoss      = "Daily loss limit reached"
	ReasonDrawdown       = "Maximum drawdown reached"
	reasonRatioTooLowFmt = "Risk/Reward ratio too low (%.2f)"
)

// RiskResult is the outcome of the risk gate.
type RiskResult struct {
	Allowed bool
	Reason  string
	Risk    domain.RiskSnapshot
	// Breach names the limit event to raise when a hard limit rejected the
	// opportunity. Empty otherwise.
	Breach domain.EventType
}

// EvaluateRisk checks an opportunity against the hard limits and the current
// risk state. The first failing check short-circuits. It never mutates its
// inputs.
//
// Checks performed:
//  1. Daily loss limit
//  2. Drawdown limit
//  3. Loss/gain and risk level from exposure
//  4. Minimum reward ratio
func EvaluateRisk(opp domain.Opportunity, state domain.RiskState, limits domain.RiskLimits) RiskResult {
	if state.DailyPnLPercent <= -limits.MaxDailyLoss {
		return RiskResult{
			Reason: ReasonDailyLoss,
			Risk:   domain.RiskSnapshot{Level: domain.RiskLevelCritical},
			Breach: domain.EventDailyLimitReached,
		}
	}
	if state.CurrentDrawdown >= limits.MaxDrawdown {
		return RiskResult{
			Reason: ReasonDrawdown,
			Risk:   domain.RiskSnapshot{Level: domain.RiskLevelCritical},
			Breach: domain.EventDrawdownReached,
		}
	}

	stopLoss := limits.DefaultStopLoss
	if opp.StopLoss != nil {
		stopLoss = *opp.StopLoss
	}
	takeProfit := limits.DefaultTakeProfit
	if opp.TakeProfit != nil {
		takeProfit = *opp.TakeProfit
	}

	amount := decimal.NewFromFloat(opp.Amount)
	loss := amount.Mul(decimal.NewFromFloat(stopLoss))
	gain := amount.Mul(decimal.NewFromFloat(takeProfit))
	ratio := decimal.Zero
	if loss.IsPositive() {
		ratio = gain.Div(loss)
	}

	exposure := decimal.NewFromFloat(state.TotalExposure)
	level := domain.RiskLevelLow
	switch {
	case loss.GreaterThan(exposure.Mul(decimal.NewFromFloat(limits.HighExposureFraction))):
		level = domain.RiskLevelHigh
	case loss.GreaterThan(exposure.Mul(decimal.NewFromFloat(limits.MediumExposureFraction))):
		level = domain.RiskLevelMedium
	}

	snap := domain.RiskSnapshot{
		Level:           level,
		PotentialLoss:   loss.InexactFloat64(),
		PotentialGain:   gain.InexactFloat64(),
		RiskRewardRatio: ratio.Round(4).InexactFloat64(),
	}

	if ratio.LessThan(decimal.NewFromFloat(limits.MinRiskReward)) {
		return RiskResult{
			Reason: fmt.Sprintf(reasonRatioTooLowFmt, ratio.InexactFloat64()),
			Risk:   snap,
		}
	}
	return RiskResult{Allowed: true, Risk: snap}
}
