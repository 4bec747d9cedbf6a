package handler

import (
	"context"

	"github.com/alanyoungcy/tradepilot/internal/autopilot"
	"github.com/alanyoungcy/tradepilot/internal/domain"
)

// Engine is the autopilot surface exposed over HTTP. *autopilot.Engine
// satisfies it.
type Engine interface {
	EvaluateOpportunity(ctx context.Context, opp domain.Opportunity, analysis domain.Analysis) (domain.Decision, error)
	ApproveDecision(ctx context.Context, id, approver string) (domain.Decision, error)
	RejectDecision(ctx context.Context, id, reason string) (domain.Decision, error)
	Decision(ctx context.Context, id string) (domain.Decision, error)
	PendingDecisions(ctx context.Context) []domain.Decision
	DecisionHistory(ctx context.Context, limit int) []domain.Decision

	UpdateRiskState(ctx context.Context, patch domain.RiskStatePatch) (domain.RiskState, error)
	RiskState() domain.RiskState

	Kill(ctx context.Context, reason string)
	Pause(ctx context.Context)
	Resume(ctx context.Context)
	Reset(ctx context.Context)
	SetMode(ctx context.Context, mode domain.Mode) error
	Status() autopilot.Status
}

// DecisionLookup resolves decisions the engine no longer holds in memory.
type DecisionLookup interface {
	Get(ctx context.Context, id string) (domain.Decision, error)
}
