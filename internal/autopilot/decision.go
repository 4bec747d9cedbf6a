package autopilot

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/tradepilot/internal/domain"
)

// defaultConfidence is assigned when a caller omits confidence.
const defaultConfidence = 0.5

// DecisionInput is the partial record handed to NewDecision.
type DecisionInput struct {
	Kind       domain.DecisionKind
	Status     domain.DecisionStatus
	Action     string
	Params     domain.TradeParams
	Reasoning  string
	Confidence *float64
	Risk       *domain.RiskSnapshot
}

// NewDecision builds a decision with a fresh id and timestamp. It does not
// store it anywhere.
func NewDecision(in DecisionInput, now time.Time) domain.Decision {
	d := domain.Decision{
		ID:         newDecisionID(now),
		Kind:       in.Kind,
		Timestamp:  now,
		Status:     in.Status,
		Action:     in.Action,
		Params:     in.Params,
		Reasoning:  in.Reasoning,
		Confidence: defaultConfidence,
		Risk:       domain.RiskSnapshot{Level: domain.RiskLevelLow},
	}
	if d.Kind == "" {
		d.Kind = domain.DecisionKindTrade
	}
	if d.Status == "" {
		d.Status = domain.DecisionStatusPending
	}
	if in.Confidence != nil {
		d.Confidence = *in.Confidence
	}
	if in.Risk != nil {
		d.Risk = *in.Risk
	}
	return d.Clone()
}

// newDecisionID returns dec_<unix millis>_<8 random hex chars>.
func newDecisionID(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("dec_%d_%s", now.UnixMilli(), suffix)
}
