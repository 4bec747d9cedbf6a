package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// DecisionStore persists decision snapshots.
type DecisionStore interface {
	Upsert(ctx context.Context, d Decision) error
	GetByID(ctx context.Context, id string) (Decision, error)
	ListByStatus(ctx context.Context, status DecisionStatus, opts ListOpts) ([]Decision, error)
	ListRecent(ctx context.Context, opts ListOpts) ([]Decision, error)
	ListBefore(ctx context.Context, before time.Time, limit int) ([]Decision, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64          `json:"id"`
	Event     string         `json:"event"`
	Detail    map[string]any `json:"detail"`
	Signature string         `json:"signature"`
	CreatedAt time.Time      `json:"created_at"`
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}

// RiskSnapshotStore records the risk state after every update.
type RiskSnapshotStore interface {
	Insert(ctx context.Context, state RiskState, at time.Time) error
	Latest(ctx context.Context) (RiskState, error)
}
