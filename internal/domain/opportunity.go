package domain

import (
	"fmt"
	"math"
	"strings"
)

// Side indicates whether an opportunity buys or sells.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Trend is the market direction reported by the analysis collaborator.
type Trend string

const (
	TrendBullish Trend = "bullish"
	TrendBearish Trend = "bearish"
	TrendNeutral Trend = "neutral"
)

// SignalDirection is the action the analysis recommends.
type SignalDirection string

const (
	SignalBuy  SignalDirection = "buy"
	SignalSell SignalDirection = "sell"
	SignalHold SignalDirection = "hold"
)

// Opportunity is a candidate action proposed by an external scanner.
type Opportunity struct {
	Kind        DecisionKind `json:"kind,omitempty"`
	Action      string       `json:"action"`
	Symbol      string       `json:"symbol"`
	Side        Side         `json:"side,omitempty"`
	Amount      float64      `json:"amount"`
	Price       *float64     `json:"price,omitempty"`
	StopLoss    *float64     `json:"stop_loss,omitempty"`
	TakeProfit  *float64     `json:"take_profit,omitempty"`
	RiskPercent *float64     `json:"risk_percent,omitempty"`
}

// Validate rejects opportunity shapes the engine cannot reason about.
func (o Opportunity) Validate() error {
	var errs []string
	if strings.TrimSpace(o.Action) == "" {
		errs = append(errs, "action is required")
	}
	if strings.TrimSpace(o.Symbol) == "" {
		errs = append(errs, "symbol is required")
	}
	if !finite(o.Amount) || o.Amount <= 0 {
		errs = append(errs, fmt.Sprintf("amount must be a finite number > 0, got %g", o.Amount))
	}
	switch o.Side {
	case "", SideBuy, SideSell:
	default:
		errs = append(errs, fmt.Sprintf("unknown side %q", o.Side))
	}
	switch o.Kind {
	case "", DecisionKindTrade, DecisionKindRebalance, DecisionKindAlert, DecisionKindReport:
	default:
		errs = append(errs, fmt.Sprintf("unknown kind %q", o.Kind))
	}
	// NaN fails every comparison, so finiteness is checked first.
	if o.StopLoss != nil && (!finite(*o.StopLoss) || *o.StopLoss <= 0 || *o.StopLoss >= 1) {
		errs = append(errs, "stop_loss must be a fraction in (0,1)")
	}
	if o.TakeProfit != nil && (!finite(*o.TakeProfit) || *o.TakeProfit <= 0) {
		errs = append(errs, "take_profit must be a finite number > 0")
	}
	if o.Price != nil && !finite(*o.Price) {
		errs = append(errs, "price must be finite")
	}
	if o.RiskPercent != nil && !finite(*o.RiskPercent) {
		errs = append(errs, "risk_percent must be finite")
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidOpportunity, strings.Join(errs, "; "))
	}
	return nil
}

// Params converts the opportunity into the decision payload.
func (o Opportunity) Params() TradeParams {
	return TradeParams{
		Symbol:      o.Symbol,
		Side:        o.Side,
		Amount:      o.Amount,
		Price:       cloneFloat(o.Price),
		StopLoss:    cloneFloat(o.StopLoss),
		TakeProfit:  cloneFloat(o.TakeProfit),
		RiskPercent: cloneFloat(o.RiskPercent),
	}
}

// Analysis carries the market-analysis fields used for confidence scoring.
// Nil fields are treated as not confirmed.
type Analysis struct {
	Trend           Trend           `json:"trend,omitempty"`
	Signal          SignalDirection `json:"signal,omitempty"`
	RSI             *float64        `json:"rsi,omitempty"`
	MACDHistogram   *float64        `json:"macd_histogram,omitempty"`
	VolumeConfirmed bool            `json:"volume_confirmed,omitempty"`
	NearSupport     bool            `json:"near_support,omitempty"`
	NearResistance  bool            `json:"near_resistance,omitempty"`
}

func finite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}
