// Package store connects engine events to durable storage.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/alanyoungcy/tradepilot/internal/domain"
)

// Recorder persists every engine event: the decision snapshot it carries,
// the risk state it carries, and one audit row. Any of the stores may be nil.
type Recorder struct {
	decisions domain.DecisionStore
	audit     domain.AuditStore
	risk      domain.RiskSnapshotStore
	logger    *slog.Logger
}

// NewRecorder creates a Recorder.
func NewRecorder(decisions domain.DecisionStore, audit domain.AuditStore, risk domain.RiskSnapshotStore, logger *slog.Logger) *Recorder {
	return &Recorder{
		decisions: decisions,
		audit:     audit,
		risk:      risk,
		logger:    logger.With(slog.String("component", "recorder")),
	}
}

// Name identifies the recorder in engine logs.
func (r *Recorder) Name() string { return "store_recorder" }

// Publish writes ev to every configured store. A failing store does not
// stop the others; their errors are joined.
func (r *Recorder) Publish(ctx context.Context, ev domain.Event) error {
	var errs []error

	if ev.Decision != nil && r.decisions != nil {
		if err := r.decisions.Upsert(ctx, *ev.Decision); err != nil {
			errs = append(errs, err)
		}
	}
	if ev.Type == domain.EventRiskUpdated && ev.Risk != nil && r.risk != nil {
		if err := r.risk.Insert(ctx, *ev.Risk, ev.Time); err != nil {
			errs = append(errs, err)
		}
	}
	if r.audit != nil {
		if err := r.audit.Log(ctx, string(ev.Type), AuditDetail(ev)); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("store: record %s: %w", ev.Type, errors.Join(errs...))
	}
	return nil
}

// AuditDetail flattens an event into the audit row's JSON detail.
func AuditDetail(ev domain.Event) map[string]any {
	detail := map[string]any{
		"seq": strconv.FormatUint(ev.Seq, 10),
	}
	if d := ev.Decision; d != nil {
		detail["decision_id"] = d.ID
		detail["status"] = string(d.Status)
		detail["action"] = d.Action
		detail["symbol"] = d.Params.Symbol
		detail["amount"] = d.Params.Amount
		detail["confidence"] = d.Confidence
		detail["risk_level"] = string(d.Risk.Level)
		if d.ApprovedBy != "" {
			detail["approved_by"] = d.ApprovedBy
		}
		if d.RejectionReason != "" {
			detail["rejection_reason"] = d.RejectionReason
		}
		if d.Error != "" {
			detail["error"] = d.Error
		}
	}
	if s := ev.Risk; s != nil {
		detail["daily_pnl"] = s.DailyPnL
		detail["daily_pnl_percent"] = s.DailyPnLPercent
		detail["current_drawdown"] = s.CurrentDrawdown
		detail["open_positions"] = s.OpenPositions
		detail["total_exposure"] = s.TotalExposure
	}
	for k, v := range ev.Data {
		if _, taken := detail[k]; !taken {
			detail[k] = v
		}
	}
	return detail
}
