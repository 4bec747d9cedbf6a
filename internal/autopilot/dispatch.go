package autopilot

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/tradepilot/internal/domain"
)

// dispatchLocked marks a decision executed and queues decision:execute for
// the execution collaborator. Order placement happens outside the lock and
// is reported back through RecordExecutionResult or RecordExecutionFailure.
func (e *Engine) dispatchLocked(ctx context.Context, d *domain.Decision) {
	now := e.clock()
	e.transitionLocked(d, domain.DecisionStatusExecuted)
	d.ExecutedAt = &now
	e.enqueue(e.decisionEvent(domain.EventDecisionExecute, d, nil))
	e.logger.InfoContext(ctx, "decision dispatched for execution",
		slog.String("decision_id", d.ID),
		slog.String("action", d.Action),
		slog.String("symbol", d.Params.Symbol),
		slog.Float64("amount", d.Params.Amount),
		slog.Bool("auto", !d.RequiresApproval),
	)
}

// RecordExecutionResult attaches the collaborator's outcome to an executed
// decision. An empty result is recorded as "completed".
func (e *Engine) RecordExecutionResult(ctx context.Context, id, result string) error {
	if result == "" {
		result = "completed"
	}
	e.mu.Lock()
	d, ok := e.store.get(id)
	if !ok {
		e.mu.Unlock()
		return fmt.Errorf("autopilot: record result %s: %w", id, domain.ErrDecisionNotFound)
	}
	if d.Status != domain.DecisionStatusExecuted || d.ExecutionResult != "" {
		status := d.Status
		e.mu.Unlock()
		return fmt.Errorf("autopilot: record result %s: %w: decision is %s", id, domain.ErrInvalidState, status)
	}
	d.ExecutionResult = result
	e.enqueue(e.decisionEvent(domain.EventDecisionCompleted, d, nil))
	e.mu.Unlock()

	e.logger.InfoContext(ctx, "execution completed",
		slog.String("decision_id", id),
		slog.String("result", result),
	)
	e.flush(ctx)
	return nil
}

// RecordExecutionFailure marks an executed decision failed and emits
// decision:error. The original caller of EvaluateOpportunity is not told.
func (e *Engine) RecordExecutionFailure(ctx context.Context, id string, cause error) error {
	if cause == nil {
		cause = domain.ErrExecutionFailed
	}
	e.mu.Lock()
	d, ok := e.store.get(id)
	if !ok {
		e.mu.Unlock()
		return fmt.Errorf("autopilot: record failure %s: %w", id, domain.ErrDecisionNotFound)
	}
	if !d.Status.CanTransition(domain.DecisionStatusFailed) || d.ExecutionResult != "" {
		status := d.Status
		e.mu.Unlock()
		return fmt.Errorf("autopilot: record failure %s: %w: decision is %s", id, domain.ErrInvalidState, status)
	}
	e.transitionLocked(d, domain.DecisionStatusFailed)
	d.Error = cause.Error()
	e.enqueue(e.decisionEvent(domain.EventDecisionError, d, map[string]string{"error": d.Error}))
	e.mu.Unlock()

	e.logger.ErrorContext(ctx, "execution failed",
		slog.String("decision_id", id),
		slog.String("error", cause.Error()),
	)
	e.flush(ctx)
	return nil
}
