package domain

import "time"

// EventType names an engine event.
type EventType string

const (
	EventDecisionPending   EventType = "decision:pending"
	EventDecisionApproved  EventType = "decision:approved"
	EventDecisionRejected  EventType = "decision:rejected"
	EventDecisionExecute   EventType = "decision:execute"
	EventDecisionError     EventType = "decision:error"
	EventDecisionExpired   EventType = "decision:expired"
	EventDecisionCompleted EventType = "decision:completed"
	EventDailyLimitReached EventType = "risk:daily_limit_reached"
	EventDrawdownReached   EventType = "risk:drawdown_limit_reached"
	EventRiskUpdated       EventType = "risk:updated"
	EventModeChanged       EventType = "mode:changed"
	EventKilled            EventType = "killed"
	EventPaused            EventType = "paused"
	EventResumed           EventType = "resumed"
	EventReset             EventType = "reset"
)

// AllEventTypes lists every event the engine can emit.
var AllEventTypes = []EventType{
	EventDecisionPending, EventDecisionApproved, EventDecisionRejected,
	EventDecisionExecute, EventDecisionError, EventDecisionExpired, EventDecisionCompleted,
	EventDailyLimitReached, EventDrawdownReached, EventRiskUpdated,
	EventModeChanged, EventKilled, EventPaused, EventResumed, EventReset,
}

// Event is published after the operation that produced it completes.
// Decision is set for decision:* events, Risk for risk:* events.
type Event struct {
	Seq      uint64            `json:"seq"`
	Type     EventType         `json:"type"`
	Time     time.Time         `json:"time"`
	Decision *Decision         `json:"decision,omitempty"`
	Risk     *RiskState        `json:"risk,omitempty"`
	Data     map[string]string `json:"data,omitempty"`
}
