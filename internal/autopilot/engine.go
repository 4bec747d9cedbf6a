package autopilot

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/tradepilot/internal/domain"
)

// Publisher receives engine events after the operation that produced them
// completes. Publish must not block for long and must not call back into the
// engine synchronously; hand work off to a goroutine or queue instead.
type Publisher interface {
	Name() string
	Publish(ctx context.Context, ev domain.Event) error
}

// Option customises an Engine.
type Option func(*Engine)

// WithClock overrides the wall clock. Tests use it to move time forward.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.clock = now }
}

// WithPublishers registers event consumers. The set is fixed for the
// engine's lifetime.
func WithPublishers(p ...Publisher) Option {
	return func(e *Engine) { e.publishers = append(e.publishers, p...) }
}

// WithRiskState seeds the risk state, e.g. from a cache after a restart.
func WithRiskState(s domain.RiskState) Option {
	return func(e *Engine) { e.risk = s }
}

// Engine is the single owner of decisions, risk state, and control flags.
// All mutations are serialized by mu. Events are queued in the outbox under
// mu and published under emitMu, so they leave in the order their operations
// completed and mu is never held while a publisher runs.
type Engine struct {
	mu         sync.Mutex
	cfg        Config
	store      *decisionStore
	risk       domain.RiskState
	killed     bool
	killReason string
	paused     bool
	seq        uint64
	outbox     []domain.Event
	startedAt  time.Time

	emitMu     sync.Mutex
	publishers []Publisher

	clock  func() time.Time
	logger *slog.Logger
}

// NewEngine validates cfg and returns an engine with zeroed risk state.
func NewEngine(cfg Config, logger *slog.Logger, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.NotifyEvents = append([]domain.EventType(nil), cfg.NotifyEvents...)
	e := &Engine{
		cfg:    cfg,
		store:  newDecisionStore(cfg.HistoryLimit),
		clock:  time.Now,
		logger: logger.With(slog.String("component", "autopilot")),
	}
	for _, opt := range opts {
		opt(e)
	}
	if err := e.risk.Validate(); err != nil {
		return nil, fmt.Errorf("autopilot: initial risk state: %w", err)
	}
	e.startedAt = e.clock()
	return e, nil
}

// Config returns a copy of the active configuration.
func (e *Engine) Config() Config {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := e.cfg
	out.NotifyEvents = append([]domain.EventType(nil), e.cfg.NotifyEvents...)
	return out
}

// EvaluateOpportunity runs an opportunity through the control switches, the
// risk gate, and the signal evaluator, and records the resulting decision.
// A risk-gate rejection is returned as a rejected decision, not an error.
func (e *Engine) EvaluateOpportunity(ctx context.Context, opp domain.Opportunity, analysis domain.Analysis) (domain.Decision, error) {
	e.mu.Lock()
	if e.killed {
		e.mu.Unlock()
		return domain.Decision{}, fmt.Errorf("autopilot: evaluate: %w", domain.ErrEngineKilled)
	}
	if e.paused {
		e.mu.Unlock()
		return domain.Decision{}, fmt.Errorf("autopilot: evaluate: %w", domain.ErrEnginePaused)
	}
	if err := opp.Validate(); err != nil {
		e.mu.Unlock()
		return domain.Decision{}, fmt.Errorf("autopilot: evaluate: %w", err)
	}

	now := e.clock()
	gate := EvaluateRisk(opp, e.risk, e.cfg.Limits)
	if !gate.Allowed {
		zero := 0.0
		d := NewDecision(DecisionInput{
			Kind:       opp.Kind,
			Status:     domain.DecisionStatusRejected,
			Action:     opp.Action,
			Params:     opp.Params(),
			Reasoning:  gate.Reason,
			Confidence: &zero,
			Risk:       &gate.Risk,
		}, now)
		d.RejectionReason = gate.Reason
		p := e.store.insert(d)
		if gate.Breach != "" {
			e.enqueue(e.riskEvent(gate.Breach))
		}
		e.enqueue(e.decisionEvent(domain.EventDecisionRejected, p, map[string]string{"source": "risk_gate"}))
		out := p.Clone()
		e.mu.Unlock()

		e.logger.WarnContext(ctx, "opportunity rejected by risk gate",
			slog.String("decision_id", out.ID),
			slog.String("symbol", out.Params.Symbol),
			slog.String("reason", gate.Reason),
			slog.String("risk_level", string(out.Risk.Level)),
		)
		e.flush(ctx)
		return out, nil
	}

	sig := EvaluateSignal(analysis)
	d := NewDecision(DecisionInput{
		Kind:       opp.Kind,
		Action:     opp.Action,
		Params:     opp.Params(),
		Reasoning:  sig.Reasoning,
		Confidence: &sig.Confidence,
		Risk:       &gate.Risk,
	}, now)
	d.RequiresApproval = e.needsApproval(d)

	var p *domain.Decision
	if d.RequiresApproval {
		deadline := now.Add(e.cfg.ApprovalTimeout)
		d.ApprovalDeadline = &deadline
		p = e.store.insert(d)
		e.enqueue(e.decisionEvent(domain.EventDecisionPending, p, nil))
		e.logger.InfoContext(ctx, "decision awaiting approval",
			slog.String("decision_id", p.ID),
			slog.String("symbol", p.Params.Symbol),
			slog.Float64("confidence", p.Confidence),
			slog.String("risk_level", string(p.Risk.Level)),
			slog.Time("deadline", deadline),
		)
	} else {
		p = e.store.insert(d)
		e.dispatchLocked(ctx, p)
	}
	out := p.Clone()
	e.mu.Unlock()

	e.flush(ctx)
	return out, nil
}

// UpdateRiskState merges a partial update into the risk state and returns
// the result. Limit events fire when a limit is crossed, not while it stays
// breached. A patch with non-finite values is refused with
// domain.ErrInvalidRiskState and leaves the state untouched.
func (e *Engine) UpdateRiskState(ctx context.Context, patch domain.RiskStatePatch) (domain.RiskState, error) {
	if err := patch.Validate(); err != nil {
		return domain.RiskState{}, fmt.Errorf("autopilot: update risk state: %w", err)
	}
	e.mu.Lock()
	before := e.risk
	e.risk = e.risk.Apply(patch)
	after := e.risk

	e.enqueue(e.riskEvent(domain.EventRiskUpdated))
	lim := e.cfg.Limits
	if before.DailyPnLPercent > -lim.MaxDailyLoss && after.DailyPnLPercent <= -lim.MaxDailyLoss {
		e.enqueue(e.riskEvent(domain.EventDailyLimitReached))
		e.logger.WarnContext(ctx, "daily loss limit reached",
			slog.Float64("daily_pnl_percent", after.DailyPnLPercent),
			slog.Float64("max_daily_loss", lim.MaxDailyLoss),
		)
	}
	if before.CurrentDrawdown < lim.MaxDrawdown && after.CurrentDrawdown >= lim.MaxDrawdown {
		e.enqueue(e.riskEvent(domain.EventDrawdownReached))
		e.logger.WarnContext(ctx, "drawdown limit reached",
			slog.Float64("current_drawdown", after.CurrentDrawdown),
			slog.Float64("max_drawdown", lim.MaxDrawdown),
		)
	}
	out := after.Clone()
	e.mu.Unlock()

	e.flush(ctx)
	return out, nil
}

// Kill halts all new evaluations until Reset. Repeated calls are no-ops.
func (e *Engine) Kill(ctx context.Context, reason string) {
	if reason == "" {
		reason = "kill switch engaged"
	}
	e.mu.Lock()
	if e.killed {
		e.mu.Unlock()
		return
	}
	e.killed = true
	e.killReason = reason
	e.enqueue(e.controlEvent(domain.EventKilled, map[string]string{"reason": reason}))
	e.mu.Unlock()

	e.logger.WarnContext(ctx, "kill switch engaged", slog.String("reason", reason))
	e.flush(ctx)
}

// Pause rejects new evaluations until Resume. Repeated calls are no-ops.
func (e *Engine) Pause(ctx context.Context) {
	e.toggle(ctx, &e.paused, true, domain.EventPaused)
}

// Resume clears the paused flag. It does not clear the kill switch.
func (e *Engine) Resume(ctx context.Context) {
	e.toggle(ctx, &e.paused, false, domain.EventResumed)
}

func (e *Engine) toggle(ctx context.Context, flag *bool, want bool, typ domain.EventType) {
	e.mu.Lock()
	if *flag == want {
		e.mu.Unlock()
		return
	}
	*flag = want
	e.enqueue(e.controlEvent(typ, nil))
	e.mu.Unlock()

	e.logger.InfoContext(ctx, "engine "+string(typ))
	e.flush(ctx)
}

// Reset clears the kill switch and the paused flag.
func (e *Engine) Reset(ctx context.Context) {
	e.mu.Lock()
	if !e.killed && !e.paused {
		e.mu.Unlock()
		return
	}
	e.killed = false
	e.killReason = ""
	e.paused = false
	e.enqueue(e.controlEvent(domain.EventReset, nil))
	e.mu.Unlock()

	e.logger.InfoContext(ctx, "engine reset")
	e.flush(ctx)
}

// SetMode switches the autonomy mode for subsequent evaluations. Pending
// decisions keep their original approval requirement.
func (e *Engine) SetMode(ctx context.Context, mode domain.Mode) error {
	m, err := domain.ParseMode(string(mode))
	if err != nil {
		return fmt.Errorf("autopilot: set mode: %w", err)
	}
	e.mu.Lock()
	from := e.cfg.Mode
	if from == m {
		e.mu.Unlock()
		return nil
	}
	e.cfg.Mode = m
	e.enqueue(e.controlEvent(domain.EventModeChanged, map[string]string{"from": string(from), "to": string(m)}))
	e.mu.Unlock()

	e.logger.InfoContext(ctx, "mode changed",
		slog.String("from", string(from)),
		slog.String("to", string(m)),
	)
	e.flush(ctx)
	return nil
}

// Status is a point-in-time summary of the engine.
type Status struct {
	Mode                   domain.Mode                   `json:"mode"`
	Killed                 bool                          `json:"killed"`
	KillReason             string                        `json:"kill_reason,omitempty"`
	Paused                 bool                          `json:"paused"`
	Risk                   domain.RiskState              `json:"risk"`
	Limits                 domain.RiskLimits             `json:"limits"`
	AutoApproveBelow       float64                       `json:"auto_approve_below"`
	AutoApproveConfidence  float64                       `json:"auto_approve_confidence"`
	ApprovalTimeoutSeconds int64                         `json:"approval_timeout_seconds"`
	Counts                 map[domain.DecisionStatus]int `json:"counts"`
	PendingCount           int                           `json:"pending_count"`
	TotalDecisions         int                           `json:"total_decisions"`
	UptimeSeconds          int64                         `json:"uptime_seconds"`
	LastEventSeq           uint64                        `json:"last_event_seq"`
}

// Status returns a snapshot of flags, mode, risk state and decision counts.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	counts := e.store.counts()
	return Status{
		Mode:                   e.cfg.Mode,
		Killed:                 e.killed,
		KillReason:             e.killReason,
		Paused:                 e.paused,
		Risk:                   e.risk.Clone(),
		Limits:                 e.cfg.Limits,
		AutoApproveBelow:       e.cfg.AutoApproveBelow,
		AutoApproveConfidence:  e.cfg.AutoApproveConfidence,
		ApprovalTimeoutSeconds: int64(e.cfg.ApprovalTimeout / time.Second),
		Counts:                 counts,
		PendingCount:           counts[domain.DecisionStatusPending],
		TotalDecisions:         e.store.len(),
		UptimeSeconds:          int64(e.clock().Sub(e.startedAt) / time.Second),
		LastEventSeq:           e.seq,
	}
}

// RiskState returns a copy of the current risk state.
func (e *Engine) RiskState() domain.RiskState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.risk.Clone()
}

// Run sweeps expired approvals on the configured interval until ctx ends.
func (e *Engine) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.cfg.SweepInterval)
	defer ticker.Stop()

	e.logger.InfoContext(ctx, "approval sweeper started",
		slog.Duration("interval", e.cfg.SweepInterval),
	)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			e.SweepExpired(ctx)
		}
	}
}

// enqueue appends to the outbox. Caller holds mu.
func (e *Engine) enqueue(evs ...domain.Event) {
	e.outbox = append(e.outbox, evs...)
}

// flush publishes queued events. Only one goroutine drains at a time, and a
// caller returns only after its own events have been delivered.
func (e *Engine) flush(ctx context.Context) {
	e.emitMu.Lock()
	defer e.emitMu.Unlock()
	for {
		e.mu.Lock()
		batch := e.outbox
		e.outbox = nil
		e.mu.Unlock()
		if len(batch) == 0 {
			return
		}
		for _, ev := range batch {
			for _, p := range e.publishers {
				if err := p.Publish(ctx, ev); err != nil {
					e.logger.WarnContext(ctx, "publish event failed",
						slog.String("publisher", p.Name()),
						slog.String("event", string(ev.Type)),
						slog.String("error", err.Error()),
					)
				}
			}
		}
	}
}

// Caller holds mu for the event constructors below.

func (e *Engine) newEvent(typ domain.EventType) domain.Event {
	e.seq++
	return domain.Event{Seq: e.seq, Type: typ, Time: e.clock()}
}

func (e *Engine) decisionEvent(typ domain.EventType, d *domain.Decision, data map[string]string) domain.Event {
	ev := e.newEvent(typ)
	c := d.Clone()
	ev.Decision = &c
	ev.Data = data
	return ev
}

func (e *Engine) riskEvent(typ domain.EventType) domain.Event {
	ev := e.newEvent(typ)
	r := e.risk.Clone()
	ev.Risk = &r
	return ev
}

func (e *Engine) controlEvent(typ domain.EventType, data map[string]string) domain.Event {
	ev := e.newEvent(typ)
	ev.Data = data
	return ev
}
