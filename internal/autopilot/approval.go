package autopilot

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/tradepilot/internal/domain"
)

const (
	defaultApprover        = "operator"
	defaultRejectionReason = "Rejected by operator"
)

// needsApproval decides once, at creation, whether a decision waits for a
// human. Caller holds mu.
func (e *Engine) needsApproval(d domain.Decision) bool {
	switch e.cfg.Mode {
	case domain.ModeFullAuto:
		return false
	case domain.ModeSemiAuto:
		if d.Risk.Level == domain.RiskLevelHigh || d.Risk.Level == domain.RiskLevelCritical {
			return true
		}
		autoOK := d.Params.Amount < e.cfg.AutoApproveBelow &&
			d.Confidence > e.cfg.AutoApproveConfidence
		return !autoOK
	default:
		return true
	}
}

// ApproveDecision signs off a pending decision and dispatches it. The
// returned decision reflects the dispatch.
func (e *Engine) ApproveDecision(ctx context.Context, id, approver string) (domain.Decision, error) {
	if approver == "" {
		approver = defaultApprover
	}
	e.mu.Lock()
	d, err := e.pendingLocked(ctx, id)
	if err != nil {
		e.mu.Unlock()
		e.flush(ctx)
		return domain.Decision{}, fmt.Errorf("autopilot: approve %s: %w", id, err)
	}

	now := e.clock()
	e.transitionLocked(d, domain.DecisionStatusApproved)
	d.ApprovedBy = approver
	d.ApprovedAt = &now
	e.enqueue(e.decisionEvent(domain.EventDecisionApproved, d, map[string]string{"approver": approver}))
	e.dispatchLocked(ctx, d)
	out := d.Clone()
	e.mu.Unlock()

	e.logger.InfoContext(ctx, "decision approved",
		slog.String("decision_id", id),
		slog.String("approver", approver),
	)
	e.flush(ctx)
	return out, nil
}

// RejectDecision closes a pending decision without executing it.
func (e *Engine) RejectDecision(ctx context.Context, id, reason string) (domain.Decision, error) {
	if reason == "" {
		reason = defaultRejectionReason
	}
	e.mu.Lock()
	d, err := e.pendingLocked(ctx, id)
	if err != nil {
		e.mu.Unlock()
		e.flush(ctx)
		return domain.Decision{}, fmt.Errorf("autopilot: reject %s: %w", id, err)
	}

	e.transitionLocked(d, domain.DecisionStatusRejected)
	d.RejectionReason = reason
	e.enqueue(e.decisionEvent(domain.EventDecisionRejected, d, map[string]string{"source": "operator"}))
	out := d.Clone()
	e.mu.Unlock()

	e.logger.InfoContext(ctx, "decision rejected",
		slog.String("decision_id", id),
		slog.String("reason", reason),
	)
	e.flush(ctx)
	return out, nil
}

// Decision returns a copy of one decision, expiring it first if its
// approval deadline has passed.
func (e *Engine) Decision(ctx context.Context, id string) (domain.Decision, error) {
	e.mu.Lock()
	d, ok := e.store.get(id)
	if !ok {
		e.mu.Unlock()
		return domain.Decision{}, fmt.Errorf("autopilot: get %s: %w", id, domain.ErrDecisionNotFound)
	}
	e.expireIfStaleLocked(ctx, d)
	out := d.Clone()
	e.mu.Unlock()

	e.flush(ctx)
	return out, nil
}

// PendingDecisions returns live pending decisions, oldest first.
func (e *Engine) PendingDecisions(ctx context.Context) []domain.Decision {
	e.mu.Lock()
	e.expireStaleLocked(ctx)
	out := e.store.withStatus(domain.DecisionStatusPending)
	e.mu.Unlock()

	e.flush(ctx)
	return out
}

// DecisionHistory returns up to limit decisions, newest first. A limit of
// zero or less returns everything held in memory.
func (e *Engine) DecisionHistory(ctx context.Context, limit int) []domain.Decision {
	e.mu.Lock()
	e.expireStaleLocked(ctx)
	out := e.store.recent(limit)
	e.mu.Unlock()

	e.flush(ctx)
	return out
}

// SweepExpired moves every pending decision past its deadline to expired and
// returns how many were expired.
func (e *Engine) SweepExpired(ctx context.Context) int {
	e.mu.Lock()
	n := e.expireStaleLocked(ctx)
	e.mu.Unlock()

	e.flush(ctx)
	return n
}

// pendingLocked fetches a decision and checks it is still actionable.
func (e *Engine) pendingLocked(ctx context.Context, id string) (*domain.Decision, error) {
	d, ok := e.store.get(id)
	if !ok {
		return nil, domain.ErrDecisionNotFound
	}
	e.expireIfStaleLocked(ctx, d)
	if d.Status != domain.DecisionStatusPending {
		return nil, fmt.Errorf("%w: decision is %s", domain.ErrInvalidState, d.Status)
	}
	return d, nil
}

func (e *Engine) expireStaleLocked(ctx context.Context) int {
	n := 0
	for _, d := range e.store.pendingPtrs() {
		if e.expireIfStaleLocked(ctx, d) {
			n++
		}
	}
	return n
}

func (e *Engine) expireIfStaleLocked(ctx context.Context, d *domain.Decision) bool {
	if d.Status != domain.DecisionStatusPending || d.ApprovalDeadline == nil {
		return false
	}
	if e.clock().Before(*d.ApprovalDeadline) {
		return false
	}
	e.transitionLocked(d, domain.DecisionStatusExpired)
	e.enqueue(e.decisionEvent(domain.EventDecisionExpired, d, nil))
	e.logger.InfoContext(ctx, "decision expired",
		slog.String("decision_id", d.ID),
		slog.Time("deadline", *d.ApprovalDeadline),
	)
	return true
}

// transitionLocked applies a status edge. Callers check preconditions first;
// an illegal edge here is a programming error.
func (e *Engine) transitionLocked(d *domain.Decision, next domain.DecisionStatus) {
	if !d.Status.CanTransition(next) {
		panic(fmt.Sprintf("autopilot: illegal transition %s -> %s for %s", d.Status, next, d.ID))
	}
	d.Status = next
}
