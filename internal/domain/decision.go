package domain

import "time"

// DecisionKind classifies what a decision would do when executed.
type DecisionKind string

const (
	DecisionKindTrade     DecisionKind = "trade"
	DecisionKindRebalance DecisionKind = "rebalance"
	DecisionKindAlert     DecisionKind = "alert"
	DecisionKindReport    DecisionKind = "report"
)

// DecisionStatus tracks the decision lifecycle.
type DecisionStatus string

const (
	DecisionStatusPending  DecisionStatus = "pending"
	DecisionStatusApproved DecisionStatus = "approved"
	DecisionStatusRejected DecisionStatus = "rejected"
	DecisionStatusExecuted DecisionStatus = "executed"
	DecisionStatusExpired  DecisionStatus = "expired"
	DecisionStatusFailed   DecisionStatus = "failed"
)

// decisionTransitions lists every legal status edge.
var decisionTransitions = map[DecisionStatus][]DecisionStatus{
	DecisionStatusPending:  {DecisionStatusApproved, DecisionStatusRejected, DecisionStatusExpired, DecisionStatusExecuted},
	DecisionStatusApproved: {DecisionStatusExecuted},
	DecisionStatusExecuted: {DecisionStatusFailed},
}

// CanTransition reports whether moving from s to next is a legal edge.
func (s DecisionStatus) CanTransition(next DecisionStatus) bool {
	for _, allowed := range decisionTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no approval-side transition can leave s.
// Executed decisions may still be marked failed by the execution collaborator.
func (s DecisionStatus) IsTerminal() bool {
	switch s {
	case DecisionStatusRejected, DecisionStatusExecuted, DecisionStatusExpired, DecisionStatusFailed:
		return true
	}
	return false
}

// RiskLevel grades the downside of a decision.
type RiskLevel string

const (
	RiskLevelLow      RiskLevel = "low"
	RiskLevelMedium   RiskLevel = "medium"
	RiskLevelHigh     RiskLevel = "high"
	RiskLevelCritical RiskLevel = "critical"
)

// RiskSnapshot is computed once when a decision is evaluated.
type RiskSnapshot struct {
	Level           RiskLevel `json:"level"`
	PotentialLoss   float64   `json:"potential_loss"`
	PotentialGain   float64   `json:"potential_gain"`
	RiskRewardRatio float64   `json:"risk_reward_ratio"`
}

// TradeParams is the payload that would be handed to the execution
// collaborator. Only Amount, StopLoss and TakeProfit take part in risk math.
type TradeParams struct {
	Symbol      string            `json:"symbol"`
	Side        Side              `json:"side,omitempty"`
	Amount      float64           `json:"amount"`
	Price       *float64          `json:"price,omitempty"`
	StopLoss    *float64          `json:"stop_loss,omitempty"`
	TakeProfit  *float64          `json:"take_profit,omitempty"`
	RiskPercent *float64          `json:"risk_percent,omitempty"`
	Extra       map[string]string `json:"extra,omitempty"`
}

// Decision is the governed, auditable record of an opportunity.
type Decision struct {
	ID         string         `json:"id"`
	Kind       DecisionKind   `json:"kind"`
	Timestamp  time.Time      `json:"timestamp"`
	Status     DecisionStatus `json:"status"`
	Action     string         `json:"action"`
	Params     TradeParams    `json:"params"`
	Reasoning  string         `json:"reasoning"`
	Confidence float64        `json:"confidence"`
	Risk       RiskSnapshot   `json:"risk"`

	RequiresApproval bool       `json:"requires_approval"`
	ApprovalDeadline *time.Time `json:"approval_deadline,omitempty"`
	ApprovedBy       string     `json:"approved_by,omitempty"`
	ApprovedAt       *time.Time `json:"approved_at,omitempty"`
	RejectionReason  string     `json:"rejection_reason,omitempty"`

	ExecutedAt      *time.Time `json:"executed_at,omitempty"`
	ExecutionResult string     `json:"execution_result,omitempty"`
	Error           string     `json:"error,omitempty"`
}

// Clone returns a deep copy so callers never share pointers with the owner.
func (d Decision) Clone() Decision {
	out := d
	out.Params.Price = cloneFloat(d.Params.Price)
	out.Params.StopLoss = cloneFloat(d.Params.StopLoss)
	out.Params.TakeProfit = cloneFloat(d.Params.TakeProfit)
	out.Params.RiskPercent = cloneFloat(d.Params.RiskPercent)
	if d.Params.Extra != nil {
		out.Params.Extra = make(map[string]string, len(d.Params.Extra))
		for k, v := range d.Params.Extra {
			out.Params.Extra[k] = v
		}
	}
	out.ApprovalDeadline = cloneTime(d.ApprovalDeadline)
	out.ApprovedAt = cloneTime(d.ApprovedAt)
	out.ExecutedAt = cloneTime(d.ExecutedAt)
	return out
}

func cloneFloat(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneTime(p *time.Time) *time.Time {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
