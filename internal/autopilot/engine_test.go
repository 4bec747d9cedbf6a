package autopilot

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/tradepilot/internal/domain"
)

type recorder struct {
	mu     sync.Mutex
	events []domain.Event
}

func (r *recorder) Name() string { return "recorder" }

func (r *recorder) Publish(_ context.Context, ev domain.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recorder) types() []domain.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.EventType, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Type)
	}
	return out
}

func (r *recorder) count(typ domain.EventType) int {
	n := 0
	for _, t := range r.types() {
		if t == typ {
			n++
		}
	}
	return n
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestEngine(t *testing.T, mutate func(*Config)) (*Engine, *recorder, *fakeClock) {
	t.Helper()
	cfg := DefaultConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	rec := &recorder{}
	clk := &fakeClock{now: time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	e, err := NewEngine(cfg, logger, WithClock(clk.Now), WithPublishers(rec))
	require.NoError(t, err)
	// enough exposure that small trades grade as low risk
	e.UpdateRiskState(context.Background(), domain.RiskStatePatch{TotalExposure: f(10_000)})
	return e, rec, clk
}

func goodOpp(amount float64) domain.Opportunity {
	return domain.Opportunity{
		Action: "buy", Symbol: "BTC/USDT", Side: domain.SideBuy,
		Amount: amount, StopLoss: f(0.05), TakeProfit: f(0.10),
	}
}

func strongAnalysis() domain.Analysis {
	return domain.Analysis{
		Trend: domain.TrendBullish, Signal: domain.SignalBuy,
		RSI: f(28), VolumeConfirmed: true,
	}
}

func TestScenario_RatioTooLowRejectedDirectly(t *testing.T) {
	e, rec, _ := newTestEngine(t, func(c *Config) { c.Mode = domain.ModeFullAuto })
	ctx := context.Background()

	opp := goodOpp(50)
	opp.TakeProfit = f(0.06)
	d, err := e.EvaluateOpportunity(ctx, opp, strongAnalysis())
	require.NoError(t, err)

	assert.Equal(t, domain.DecisionStatusRejected, d.Status)
	assert.Contains(t, d.RejectionReason, "Risk/Reward ratio too low")
	assert.Equal(t, 0.0, d.Confidence)
	assert.False(t, d.RequiresApproval)
	assert.Nil(t, d.ExecutedAt)
	assert.Equal(t, 0, rec.count(domain.EventDecisionPending))
	assert.Equal(t, 1, rec.count(domain.EventDecisionRejected))
}

func TestScenario_SemiAutoAutoApproves(t *testing.T) {
	e, rec, _ := newTestEngine(t, func(c *Config) {
		c.Mode = domain.ModeSemiAuto
		c.AutoApproveBelow = 100
		c.AutoApproveConfidence = 0.8
	})

	d, err := e.EvaluateOpportunity(context.Background(), goodOpp(50), strongAnalysis())
	require.NoError(t, err)

	assert.Equal(t, 0.85, d.Confidence)
	assert.Equal(t, domain.RiskLevelLow, d.Risk.Level)
	assert.InDelta(t, 2.0, d.Risk.RiskRewardRatio, 1e-9)
	assert.False(t, d.RequiresApproval)
	assert.Equal(t, domain.DecisionStatusExecuted, d.Status)
	assert.NotNil(t, d.ExecutedAt)
	assert.Nil(t, d.ApprovalDeadline)
	assert.Equal(t, 1, rec.count(domain.EventDecisionExecute))
	assert.Equal(t, 0, rec.count(domain.EventDecisionApproved))
}

func TestScenario_ManualAlwaysPending(t *testing.T) {
	e, rec, clk := newTestEngine(t, func(c *Config) { c.Mode = domain.ModeManual })

	d, err := e.EvaluateOpportunity(context.Background(), goodOpp(5), strongAnalysis())
	require.NoError(t, err)

	assert.Equal(t, domain.DecisionStatusPending, d.Status)
	assert.True(t, d.RequiresApproval)
	require.NotNil(t, d.ApprovalDeadline)
	assert.Equal(t, clk.Now().Add(5*time.Minute), *d.ApprovalDeadline)
	assert.Equal(t, 1, rec.count(domain.EventDecisionPending))
}

func TestScenario_DailyLossBlocksEverything(t *testing.T) {
	e, rec, _ := newTestEngine(t, func(c *Config) {
		c.Mode = domain.ModeFullAuto
		c.Limits.MaxDailyLoss = 5
	})
	ctx := context.Background()
	e.UpdateRiskState(ctx, domain.RiskStatePatch{DailyPnLPercent: f(-6)})

	d, err := e.EvaluateOpportunity(ctx, goodOpp(10), strongAnalysis())
	require.NoError(t, err)
	assert.Equal(t, domain.DecisionStatusRejected, d.Status)
	assert.Equal(t, domain.RiskLevelCritical, d.Risk.Level)
	assert.Equal(t, ReasonDailyLoss, d.RejectionReason)
	assert.Zero(t, d.Risk.RiskRewardRatio)
	// once from the crossing update, once from the gate
	assert.Equal(t, 2, rec.count(domain.EventDailyLimitReached))
}

func TestScenario_KillThenReset(t *testing.T) {
	e, _, _ := newTestEngine(t, func(c *Config) { c.Mode = domain.ModeFullAuto })
	ctx := context.Background()

	e.Kill(ctx, "manual stop")
	_, err := e.EvaluateOpportunity(ctx, goodOpp(10), strongAnalysis())
	assert.ErrorIs(t, err, domain.ErrEngineKilled)
	assert.Equal(t, "manual stop", e.Status().KillReason)

	e.Reset(ctx)
	d, err := e.EvaluateOpportunity(ctx, goodOpp(10), strongAnalysis())
	require.NoError(t, err)
	assert.Equal(t, domain.DecisionStatusExecuted, d.Status)
}

func TestKillSupersedesPauseResume(t *testing.T) {
	e, _, _ := newTestEngine(t, nil)
	ctx := context.Background()

	e.Kill(ctx, "")
	e.Pause(ctx)
	e.Resume(ctx)
	e.Pause(ctx)
	e.Resume(ctx)

	_, err := e.EvaluateOpportunity(ctx, goodOpp(10), strongAnalysis())
	assert.ErrorIs(t, err, domain.ErrEngineKilled)
}

func TestPauseBlocksEvaluation(t *testing.T) {
	e, _, _ := newTestEngine(t, nil)
	ctx := context.Background()

	e.Pause(ctx)
	_, err := e.EvaluateOpportunity(ctx, goodOpp(10), strongAnalysis())
	assert.ErrorIs(t, err, domain.ErrEnginePaused)

	e.Resume(ctx)
	_, err = e.EvaluateOpportunity(ctx, goodOpp(10), strongAnalysis())
	assert.NoError(t, err)
}

func TestControlsAreIdempotent(t *testing.T) {
	e, rec, _ := newTestEngine(t, nil)
	ctx := context.Background()

	e.Kill(ctx, "a")
	e.Kill(ctx, "b")
	e.Pause(ctx)
	e.Pause(ctx)
	e.Resume(ctx)
	e.Resume(ctx)
	e.Reset(ctx)
	e.Reset(ctx)
	require.NoError(t, e.SetMode(ctx, domain.ModeManual))
	require.NoError(t, e.SetMode(ctx, domain.ModeManual))

	assert.Equal(t, 1, rec.count(domain.EventKilled))
	assert.Equal(t, 1, rec.count(domain.EventPaused))
	assert.Equal(t, 1, rec.count(domain.EventResumed))
	assert.Equal(t, 1, rec.count(domain.EventReset))
	assert.Equal(t, 1, rec.count(domain.EventModeChanged))
}

func TestSetMode(t *testing.T) {
	e, rec, _ := newTestEngine(t, func(c *Config) { c.Mode = domain.ModeManual })
	ctx := context.Background()

	pending, err := e.EvaluateOpportunity(ctx, goodOpp(10), strongAnalysis())
	require.NoError(t, err)
	require.True(t, pending.RequiresApproval)

	require.NoError(t, e.SetMode(ctx, "full_auto"))
	assert.Equal(t, domain.ModeFullAuto, e.Status().Mode)

	var changed domain.Event
	for _, ev := range rec.events {
		if ev.Type == domain.EventModeChanged {
			changed = ev
		}
	}
	assert.Equal(t, "manual", changed.Data["from"])
	assert.Equal(t, "full-auto", changed.Data["to"])

	// already pending decisions keep their requirement
	got, err := e.Decision(ctx, pending.ID)
	require.NoError(t, err)
	assert.True(t, got.RequiresApproval)
	assert.Equal(t, domain.DecisionStatusPending, got.Status)

	assert.ErrorIs(t, e.SetMode(ctx, "yolo"), domain.ErrInvalidMode)
}

func TestApprovalNecessityByMode(t *testing.T) {
	amounts := []float64{1, 50, 99, 500, 5000}

	for _, mode := range []domain.Mode{domain.ModeManual, domain.ModeFullAuto} {
		e, _, _ := newTestEngine(t, func(c *Config) { c.Mode = mode })
		for _, amt := range amounts {
			d, err := e.EvaluateOpportunity(context.Background(), goodOpp(amt), domain.Analysis{})
			require.NoError(t, err)
			assert.Equal(t, mode == domain.ModeManual, d.RequiresApproval, "mode %s amount %v", mode, amt)
		}
	}
}

func TestSemiAutoHighRiskForcesApproval(t *testing.T) {
	e, _, _ := newTestEngine(t, func(c *Config) { c.Mode = domain.ModeSemiAuto })
	ctx := context.Background()
	e.UpdateRiskState(ctx, domain.RiskStatePatch{TotalExposure: f(0)})

	d, err := e.EvaluateOpportunity(ctx, goodOpp(10), strongAnalysis())
	require.NoError(t, err)
	assert.Equal(t, domain.RiskLevelHigh, d.Risk.Level)
	assert.True(t, d.RequiresApproval)
}

func TestSemiAutoThresholds(t *testing.T) {
	e, _, _ := newTestEngine(t, func(c *Config) { c.Mode = domain.ModeSemiAuto })
	ctx := context.Background()

	// amount not below threshold
	d, err := e.EvaluateOpportunity(ctx, goodOpp(100), strongAnalysis())
	require.NoError(t, err)
	assert.True(t, d.RequiresApproval)

	// confidence not above threshold
	d, err = e.EvaluateOpportunity(ctx, goodOpp(10), domain.Analysis{})
	require.NoError(t, err)
	assert.True(t, d.RequiresApproval)
}

func TestApproveThenReject(t *testing.T) {
	e, rec, _ := newTestEngine(t, func(c *Config) { c.Mode = domain.ModeManual })
	ctx := context.Background()

	d, err := e.EvaluateOpportunity(ctx, goodOpp(10), strongAnalysis())
	require.NoError(t, err)

	approved, err := e.ApproveDecision(ctx, d.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, domain.DecisionStatusExecuted, approved.Status)
	assert.Equal(t, "alice", approved.ApprovedBy)
	assert.NotNil(t, approved.ApprovedAt)

	_, err = e.RejectDecision(ctx, d.ID, "too late")
	assert.ErrorIs(t, err, domain.ErrInvalidState)

	got, err := e.Decision(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.DecisionStatusExecuted, got.Status)
	assert.Empty(t, got.RejectionReason)

	types := rec.types()
	assert.Equal(t, []domain.EventType{domain.EventDecisionPending, domain.EventDecisionApproved, domain.EventDecisionExecute}, types[len(types)-3:])
}

func TestRejectThenApprove(t *testing.T) {
	e, _, _ := newTestEngine(t, func(c *Config) { c.Mode = domain.ModeManual })
	ctx := context.Background()

	d, err := e.EvaluateOpportunity(ctx, goodOpp(10), strongAnalysis())
	require.NoError(t, err)

	rejected, err := e.RejectDecision(ctx, d.ID, "")
	require.NoError(t, err)
	assert.Equal(t, domain.DecisionStatusRejected, rejected.Status)
	assert.Equal(t, defaultRejectionReason, rejected.RejectionReason)

	_, err = e.ApproveDecision(ctx, d.ID, "bob")
	assert.ErrorIs(t, err, domain.ErrInvalidState)
}

func TestUnknownDecision(t *testing.T) {
	e, _, _ := newTestEngine(t, nil)
	ctx := context.Background()

	_, err := e.ApproveDecision(ctx, "dec_0_deadbeef", "alice")
	assert.ErrorIs(t, err, domain.ErrDecisionNotFound)
	_, err = e.RejectDecision(ctx, "dec_0_deadbeef", "")
	assert.ErrorIs(t, err, domain.ErrDecisionNotFound)
	_, err = e.Decision(ctx, "dec_0_deadbeef")
	assert.ErrorIs(t, err, domain.ErrDecisionNotFound)
}

func TestConcurrentResolutionSingleWinner(t *testing.T) {
	e, _, _ := newTestEngine(t, func(c *Config) { c.Mode = domain.ModeManual })
	ctx := context.Background()

	d, err := e.EvaluateOpportunity(ctx, goodOpp(10), strongAnalysis())
	require.NoError(t, err)

	var wins, losses int64
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var err error
			if i%2 == 0 {
				_, err = e.ApproveDecision(ctx, d.ID, "racer")
			} else {
				_, err = e.RejectDecision(ctx, d.ID, "racer")
			}
			if err == nil {
				atomic.AddInt64(&wins, 1)
			} else if errors.Is(err, domain.ErrInvalidState) {
				atomic.AddInt64(&losses, 1)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int64(1), wins)
	assert.Equal(t, int64(31), losses)
}

func TestLazyExpiry(t *testing.T) {
	e, rec, clk := newTestEngine(t, func(c *Config) { c.Mode = domain.ModeManual })
	ctx := context.Background()

	d, err := e.EvaluateOpportunity(ctx, goodOpp(10), strongAnalysis())
	require.NoError(t, err)

	clk.Advance(4 * time.Minute)
	got, err := e.Decision(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.DecisionStatusPending, got.Status)

	clk.Advance(time.Minute)
	_, err = e.ApproveDecision(ctx, d.ID, "alice")
	assert.ErrorIs(t, err, domain.ErrInvalidState)

	got, err = e.Decision(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.DecisionStatusExpired, got.Status)
	assert.Equal(t, 1, rec.count(domain.EventDecisionExpired))
	assert.Empty(t, e.PendingDecisions(ctx))
}

func TestSweepExpired(t *testing.T) {
	e, rec, clk := newTestEngine(t, func(c *Config) { c.Mode = domain.ModeManual })
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := e.EvaluateOpportunity(ctx, goodOpp(10), strongAnalysis())
		require.NoError(t, err)
	}
	assert.Equal(t, 0, e.SweepExpired(ctx))

	clk.Advance(6 * time.Minute)
	fresh, err := e.EvaluateOpportunity(ctx, goodOpp(10), strongAnalysis())
	require.NoError(t, err)

	assert.Equal(t, 3, e.SweepExpired(ctx))
	assert.Equal(t, 0, e.SweepExpired(ctx))
	assert.Equal(t, 3, rec.count(domain.EventDecisionExpired))

	pending := e.PendingDecisions(ctx)
	require.Len(t, pending, 1)
	assert.Equal(t, fresh.ID, pending[0].ID)
	assert.Equal(t, 3, e.Status().Counts[domain.DecisionStatusExpired])
}

func TestExecutionFailure(t *testing.T) {
	e, rec, _ := newTestEngine(t, func(c *Config) { c.Mode = domain.ModeFullAuto })
	ctx := context.Background()

	d, err := e.EvaluateOpportunity(ctx, goodOpp(10), strongAnalysis())
	require.NoError(t, err)
	require.Equal(t, domain.DecisionStatusExecuted, d.Status)

	require.NoError(t, e.RecordExecutionFailure(ctx, d.ID, errors.New("exchange timeout")))
	got, err := e.Decision(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.DecisionStatusFailed, got.Status)
	assert.Equal(t, "exchange timeout", got.Error)
	assert.Equal(t, 1, rec.count(domain.EventDecisionError))

	assert.ErrorIs(t, e.RecordExecutionFailure(ctx, d.ID, errors.New("again")), domain.ErrInvalidState)
	assert.ErrorIs(t, e.RecordExecutionResult(ctx, d.ID, "filled"), domain.ErrInvalidState)
}

func TestExecutionResult(t *testing.T) {
	e, rec, _ := newTestEngine(t, func(c *Config) { c.Mode = domain.ModeFullAuto })
	ctx := context.Background()

	d, err := e.EvaluateOpportunity(ctx, goodOpp(10), strongAnalysis())
	require.NoError(t, err)

	require.NoError(t, e.RecordExecutionResult(ctx, d.ID, "filled 0.0002 BTC @ 50000"))
	assert.ErrorIs(t, e.RecordExecutionResult(ctx, d.ID, "dup"), domain.ErrInvalidState)
	assert.Equal(t, 1, rec.count(domain.EventDecisionCompleted))

	got, err := e.Decision(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, "filled 0.0002 BTC @ 50000", got.ExecutionResult)
}

func TestUpdateRiskStateEvents(t *testing.T) {
	e, rec, _ := newTestEngine(t, nil)
	ctx := context.Background()

	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	st, err := e.UpdateRiskState(ctx, domain.RiskStatePatch{
		DailyPnL: f(-700), DailyPnLPercent: f(-7), OpenPositions: intPtr(3), LastTradeTime: &now,
	})
	require.NoError(t, err)
	assert.Equal(t, -700.0, st.DailyPnL)
	assert.Equal(t, 3, st.OpenPositions)
	assert.Equal(t, 10_000.0, st.TotalExposure)
	assert.Equal(t, 1, rec.count(domain.EventDailyLimitReached))

	// still breached: no second crossing event
	e.UpdateRiskState(ctx, domain.RiskStatePatch{DailyPnLPercent: f(-8)})
	assert.Equal(t, 1, rec.count(domain.EventDailyLimitReached))

	e.UpdateRiskState(ctx, domain.RiskStatePatch{CurrentDrawdown: f(16)})
	assert.Equal(t, 1, rec.count(domain.EventDrawdownReached))

	// caller copies are detached
	st.OpenPositions = 99
	assert.Equal(t, 3, e.RiskState().OpenPositions)
}

func TestReturnedDecisionsAreCopies(t *testing.T) {
	e, _, _ := newTestEngine(t, func(c *Config) { c.Mode = domain.ModeManual })
	ctx := context.Background()

	d, err := e.EvaluateOpportunity(ctx, goodOpp(10), strongAnalysis())
	require.NoError(t, err)

	d.Status = domain.DecisionStatusExecuted
	*d.Params.StopLoss = 0.5
	*d.ApprovalDeadline = time.Time{}

	got, err := e.Decision(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.DecisionStatusPending, got.Status)
	assert.Equal(t, 0.05, *got.Params.StopLoss)
	assert.False(t, got.ApprovalDeadline.IsZero())
}

func TestMonotonicLifecycle(t *testing.T) {
	e, rec, clk := newTestEngine(t, func(c *Config) { c.Mode = domain.ModeManual })
	ctx := context.Background()

	var ids []string
	for i := 0; i < 6; i++ {
		d, err := e.EvaluateOpportunity(ctx, goodOpp(10), strongAnalysis())
		require.NoError(t, err)
		ids = append(ids, d.ID)
	}
	_, _ = e.ApproveDecision(ctx, ids[0], "a")
	_, _ = e.RejectDecision(ctx, ids[1], "b")
	_, _ = e.ApproveDecision(ctx, ids[2], "a")
	_ = e.RecordExecutionFailure(ctx, ids[2], errors.New("boom"))
	clk.Advance(10 * time.Minute)
	e.SweepExpired(ctx)
	_, _ = e.ApproveDecision(ctx, ids[3], "late")

	seen := map[string][]domain.DecisionStatus{}
	var lastSeq uint64
	for _, ev := range rec.events {
		assert.Greater(t, ev.Seq, lastSeq)
		lastSeq = ev.Seq
		if ev.Decision == nil {
			continue
		}
		seen[ev.Decision.ID] = append(seen[ev.Decision.ID], ev.Decision.Status)
	}
	for id, path := range seen {
		for i := 1; i < len(path); i++ {
			prev, next := path[i-1], path[i]
			assert.True(t, prev.CanTransition(next), "decision %s moved %s -> %s", id, prev, next)
		}
	}
}

func TestHistoryLimitEvictsTerminal(t *testing.T) {
	e, _, _ := newTestEngine(t, func(c *Config) {
		c.Mode = domain.ModeFullAuto
		c.HistoryLimit = 3
	})
	ctx := context.Background()

	var last domain.Decision
	for i := 0; i < 5; i++ {
		d, err := e.EvaluateOpportunity(ctx, goodOpp(float64(i+1)), strongAnalysis())
		require.NoError(t, err)
		require.NoError(t, e.RecordExecutionResult(ctx, d.ID, "filled"))
		last = d
	}
	hist := e.DecisionHistory(ctx, 0)
	require.Len(t, hist, 3)
	assert.Equal(t, last.ID, hist[0].ID)
	assert.Len(t, e.DecisionHistory(ctx, 2), 2)
}

func TestHistoryLimitKeepsExecutionInFlight(t *testing.T) {
	e, rec, _ := newTestEngine(t, func(c *Config) {
		c.Mode = domain.ModeFullAuto
		c.HistoryLimit = 2
	})
	ctx := context.Background()

	inFlight, err := e.EvaluateOpportunity(ctx, goodOpp(10), strongAnalysis())
	require.NoError(t, err)
	require.Equal(t, domain.DecisionStatusExecuted, inFlight.Status)

	lowRatio := goodOpp(10)
	lowRatio.TakeProfit = f(0.06)
	for i := 0; i < 2; i++ {
		d, err := e.EvaluateOpportunity(ctx, lowRatio, strongAnalysis())
		require.NoError(t, err)
		require.Equal(t, domain.DecisionStatusRejected, d.Status)
	}

	require.NoError(t, e.RecordExecutionFailure(ctx, inFlight.ID, errors.New("venue down")))
	assert.Equal(t, 1, rec.count(domain.EventDecisionError))
	got, err := e.Decision(ctx, inFlight.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.DecisionStatusFailed, got.Status)

	// once failed it is settled and ages out like any other
	for i := 0; i < 2; i++ {
		_, err := e.EvaluateOpportunity(ctx, lowRatio, strongAnalysis())
		require.NoError(t, err)
	}
	_, err = e.Decision(ctx, inFlight.ID)
	assert.ErrorIs(t, err, domain.ErrDecisionNotFound)
}

func TestNonFiniteOpportunityRejected(t *testing.T) {
	e, _, _ := newTestEngine(t, nil)
	ctx := context.Background()

	tests := map[string]func(*domain.Opportunity){
		"nan-amount":       func(o *domain.Opportunity) { o.Amount = math.NaN() },
		"inf-amount":       func(o *domain.Opportunity) { o.Amount = math.Inf(1) },
		"nan-stop-loss":    func(o *domain.Opportunity) { o.StopLoss = f(math.NaN()) },
		"nan-take-profit":  func(o *domain.Opportunity) { o.TakeProfit = f(math.NaN()) },
		"inf-take-profit":  func(o *domain.Opportunity) { o.TakeProfit = f(math.Inf(1)) },
		"neg-inf-price":    func(o *domain.Opportunity) { o.Price = f(math.Inf(-1)) },
		"nan-risk-percent": func(o *domain.Opportunity) { o.RiskPercent = f(math.NaN()) },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			opp := goodOpp(10)
			mutate(&opp)
			_, err := e.EvaluateOpportunity(ctx, opp, strongAnalysis())
			assert.ErrorIs(t, err, domain.ErrInvalidOpportunity)
		})
	}

	// the engine is still usable afterwards
	assert.Equal(t, 0, e.Status().TotalDecisions)
	_, err := e.EvaluateOpportunity(ctx, goodOpp(10), strongAnalysis())
	assert.NoError(t, err)
}

func TestNonFiniteRiskPatchRejected(t *testing.T) {
	e, rec, _ := newTestEngine(t, nil)
	ctx := context.Background()
	before := e.RiskState()
	updates := rec.count(domain.EventRiskUpdated)

	tests := map[string]domain.RiskStatePatch{
		"nan-daily-pnl":         {DailyPnL: f(math.NaN())},
		"inf-daily-pnl-percent": {DailyPnLPercent: f(math.Inf(-1))},
		"nan-drawdown":          {CurrentDrawdown: f(math.NaN())},
		"inf-exposure":          {TotalExposure: f(math.Inf(1))},
		"negative-positions":    {OpenPositions: intPtr(-1)},
		"mixed-valid-and-nan":   {DailyPnL: f(10), TotalExposure: f(math.NaN())},
	}
	for name, patch := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := e.UpdateRiskState(ctx, patch)
			assert.ErrorIs(t, err, domain.ErrInvalidRiskState)
		})
	}

	assert.Equal(t, before, e.RiskState())
	assert.Equal(t, updates, rec.count(domain.EventRiskUpdated))
}

func TestNewEngineRejectsNonFiniteRiskState(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	_, err := NewEngine(DefaultConfig(), logger, WithRiskState(domain.RiskState{TotalExposure: math.NaN()}))
	assert.ErrorIs(t, err, domain.ErrInvalidRiskState)
}

func TestInvalidOpportunity(t *testing.T) {
	e, _, _ := newTestEngine(t, nil)
	_, err := e.EvaluateOpportunity(context.Background(), domain.Opportunity{Action: "buy", Amount: -1}, domain.Analysis{})
	assert.ErrorIs(t, err, domain.ErrInvalidOpportunity)
}

func TestRunSweepsUntilCancelled(t *testing.T) {
	e, _, _ := newTestEngine(t, func(c *Config) { c.SweepInterval = 5 * time.Millisecond })
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, e.Run(ctx), context.DeadlineExceeded)
}

func intPtr(v int) *int { return &v }
