package notify

import (
	"fmt"
	"strings"

	"github.com/alanyoungcy/tradepilot/internal/domain"
)

// Format renders an engine event as a chat title and body.
func Format(ev domain.Event) (title, message string) {
	switch ev.Type {
	case domain.EventDecisionPending:
		title = "Approval required"
	case domain.EventDecisionApproved:
		title = "Decision approved"
	case domain.EventDecisionRejected:
		title = "Decision rejected"
	case domain.EventDecisionExecute:
		title = "Executing decision"
	case domain.EventDecisionError:
		title = "Execution failed"
	case domain.EventDecisionExpired:
		title = "Approval expired"
	case domain.EventDecisionCompleted:
		title = "Execution completed"
	case domain.EventDailyLimitReached:
		title = "Daily loss limit reached"
	case domain.EventDrawdownReached:
		title = "Drawdown limit reached"
	case domain.EventRiskUpdated:
		title = "Risk state updated"
	case domain.EventModeChanged:
		title = "Mode changed"
	case domain.EventKilled:
		title = "KILL SWITCH ENGAGED"
	case domain.EventPaused:
		title = "AutoPilot paused"
	case domain.EventResumed:
		title = "AutoPilot resumed"
	case domain.EventReset:
		title = "AutoPilot reset"
	default:
		title = string(ev.Type)
	}

	var lines []string
	if d := ev.Decision; d != nil {
		lines = append(lines, fmt.Sprintf("%s %s %g (%s)", strings.ToUpper(d.Action), d.Params.Symbol, d.Params.Amount, d.ID))
		lines = append(lines, fmt.Sprintf("confidence %.0f%%, risk %s, R:R %.2f",
			d.Confidence*100, d.Risk.Level, d.Risk.RiskRewardRatio))
		if d.ApprovalDeadline != nil && d.Status == domain.DecisionStatusPending {
			lines = append(lines, "approve by "+d.ApprovalDeadline.UTC().Format("15:04:05 MST"))
		}
		if d.RejectionReason != "" {
			lines = append(lines, "reason: "+d.RejectionReason)
		}
		if d.Error != "" {
			lines = append(lines, "error: "+d.Error)
		}
	}
	if r := ev.Risk; r != nil {
		lines = append(lines, fmt.Sprintf("daily P&L %.2f%%, drawdown %.2f%%, exposure %.2f",
			r.DailyPnLPercent, r.CurrentDrawdown, r.TotalExposure))
	}
	if reason := ev.Data["reason"]; reason != "" && ev.Decision == nil {
		lines = append(lines, "reason: "+reason)
	}
	if from, to := ev.Data["from"], ev.Data["to"]; to != "" {
		lines = append(lines, from+" -> "+to)
	}
	return title, strings.Join(lines, "\n")
}
