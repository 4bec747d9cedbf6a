package autopilot

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/tradepilot/internal/domain"
)

// DefaultReasoning is used when no confirmation rule triggers.
const DefaultReasoning = "No strong signal confirmation"

var (
	baselineConfidence = decimal.RequireFromString("0.5")
	trendBonus         = decimal.RequireFromString("0.15")
	confirmBonus       = decimal.RequireFromString("0.10")
)

// SignalResult is the advisory confidence score for an analysis.
type SignalResult struct {
	Confidence float64
	Reasoning  string
}

// EvaluateSignal scores an analysis. Missing fields count as not confirmed.
func EvaluateSignal(a domain.Analysis) SignalResult {
	conf := baselineConfidence
	var reasons []string

	buy := a.Signal == domain.SignalBuy
	sell := a.Signal == domain.SignalSell

	if (a.Trend == domain.TrendBullish && buy) || (a.Trend == domain.TrendBearish && sell) {
		conf = conf.Add(trendBonus)
		reasons = append(reasons, "Trend ("+string(a.Trend)+") aligns with "+string(a.Signal)+" signal")
	}
	if a.RSI != nil {
		switch {
		case *a.RSI < 30 && buy:
			conf = conf.Add(confirmBonus)
			reasons = append(reasons, "RSI oversold ("+formatFloat(*a.RSI)+") confirms buy")
		case *a.RSI > 70 && sell:
			conf = conf.Add(confirmBonus)
			reasons = append(reasons, "RSI overbought ("+formatFloat(*a.RSI)+") confirms sell")
		}
	}
	if a.MACDHistogram != nil && *a.MACDHistogram > 0 && buy {
		conf = conf.Add(confirmBonus)
		reasons = append(reasons, "MACD histogram positive")
	}
	if a.VolumeConfirmed {
		conf = conf.Add(confirmBonus)
		reasons = append(reasons, "Volume confirms move")
	}
	if a.NearSupport && buy {
		conf = conf.Add(confirmBonus)
		reasons = append(reasons, "Price near support")
	} else if a.NearResistance && sell {
		conf = conf.Add(confirmBonus)
		reasons = append(reasons, "Price near resistance")
	}

	if conf.GreaterThan(decimal.NewFromInt(1)) {
		conf = decimal.NewFromInt(1)
	}

	reasoning := DefaultReasoning
	if len(reasons) > 0 {
		reasoning = strings.Join(reasons, "; ")
	}
	return SignalResult{Confidence: conf.InexactFloat64(), Reasoning: reasoning}
}

func formatFloat(f float64) string {
	return decimal.NewFromFloat(f).StringFixed(1)
}
