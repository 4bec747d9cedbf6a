package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/tradepilot/internal/domain"
)

// DecisionStore implements domain.DecisionStore using PostgreSQL. Every
// lifecycle change overwrites the row, so the table holds the latest
// snapshot of each decision.
type DecisionStore struct {
	pool *pgxpool.Pool
}

// NewDecisionStore creates a new DecisionStore backed by the given connection pool.
func NewDecisionStore(pool *pgxpool.Pool) *DecisionStore {
	return &DecisionStore{pool: pool}
}

// Upsert inserts the decision or replaces its mutable fields.
func (s *DecisionStore) Upsert(ctx context.Context, d domain.Decision) error {
	params, err := json.Marshal(d.Params)
	if err != nil {
		return fmt.Errorf("postgres: marshal decision params %s: %w", d.ID, err)
	}
	risk, err := json.Marshal(d.Risk)
	if err != nil {
		return fmt.Errorf("postgres: marshal decision risk %s: %w", d.ID, err)
	}

	const query = `
		INSERT INTO decisions (
			id, kind, status, action, symbol, params, reasoning, confidence, risk,
			requires_approval, approval_deadline, approved_by, approved_at,
			rejection_reason, executed_at, execution_result, error, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9,
			$10, $11, $12, $13,
			$14, $15, $16, $17, $18
		)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			approved_by = EXCLUDED.approved_by,
			approved_at = EXCLUDED.approved_at,
			rejection_reason = EXCLUDED.rejection_reason,
			executed_at = EXCLUDED.executed_at,
			execution_result = EXCLUDED.execution_result,
			error = EXCLUDED.error,
			updated_at = NOW()`

	_, err = s.pool.Exec(ctx, query,
		d.ID, string(d.Kind), string(d.Status), d.Action, d.Params.Symbol,
		params, d.Reasoning, d.Confidence, risk,
		d.RequiresApproval, d.ApprovalDeadline, d.ApprovedBy, d.ApprovedAt,
		d.RejectionReason, d.ExecutedAt, d.ExecutionResult, d.Error, d.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert decision %s: %w", d.ID, err)
	}
	return nil
}

const decisionSelectCols = `id, kind, status, action, params, reasoning, confidence, risk,
	requires_approval, approval_deadline, approved_by, approved_at,
	rejection_reason, executed_at, execution_result, error, created_at`

func scanDecision(scanner interface{ Scan(dest ...any) error }) (domain.Decision, error) {
	var d domain.Decision
	var kind, status string
	var params, risk []byte

	err := scanner.Scan(
		&d.ID, &kind, &status, &d.Action, &params, &d.Reasoning, &d.Confidence, &risk,
		&d.RequiresApproval, &d.ApprovalDeadline, &d.ApprovedBy, &d.ApprovedAt,
		&d.RejectionReason, &d.ExecutedAt, &d.ExecutionResult, &d.Error, &d.Timestamp,
	)
	if err != nil {
		return domain.Decision{}, err
	}

	d.Kind = domain.DecisionKind(kind)
	d.Status = domain.DecisionStatus(status)
	if err := json.Unmarshal(params, &d.Params); err != nil {
		return domain.Decision{}, fmt.Errorf("unmarshal params: %w", err)
	}
	if err := json.Unmarshal(risk, &d.Risk); err != nil {
		return domain.Decision{}, fmt.Errorf("unmarshal risk: %w", err)
	}
	return d, nil
}

func scanDecisionRows(rows pgx.Rows) ([]domain.Decision, error) {
	var out []domain.Decision
	for rows.Next() {
		d, err := scanDecision(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// GetByID retrieves a single decision by ID.
func (s *DecisionStore) GetByID(ctx context.Context, id string) (domain.Decision, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+decisionSelectCols+` FROM decisions WHERE id = $1`, id)

	d, err := scanDecision(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Decision{}, domain.ErrNotFound
		}
		return domain.Decision{}, fmt.Errorf("postgres: get decision %s: %w", id, err)
	}
	return d, nil
}

// ListByStatus returns decisions in the given status, newest first.
func (s *DecisionStore) ListByStatus(ctx context.Context, status domain.DecisionStatus, opts domain.ListOpts) ([]domain.Decision, error) {
	query, args := listQuery(
		`SELECT `+decisionSelectCols+` FROM decisions WHERE status = $1`,
		[]any{string(status)}, "created_at", opts)
	return s.list(ctx, "by status", query, args)
}

// ListRecent returns decisions newest first.
func (s *DecisionStore) ListRecent(ctx context.Context, opts domain.ListOpts) ([]domain.Decision, error) {
	query, args := listQuery(
		`SELECT `+decisionSelectCols+` FROM decisions WHERE 1=1`,
		nil, "created_at", opts)
	return s.list(ctx, "recent", query, args)
}

// ListBefore returns up to limit decisions created before the cutoff,
// oldest first. The archiver pages through them in this order.
func (s *DecisionStore) ListBefore(ctx context.Context, before time.Time, limit int) ([]domain.Decision, error) {
	query := `SELECT ` + decisionSelectCols + ` FROM decisions
		WHERE created_at < $1 ORDER BY created_at ASC`
	args := []any{before}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}
	return s.list(ctx, "before", query, args)
}

func (s *DecisionStore) list(ctx context.Context, what, query string, args []any) ([]domain.Decision, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list decisions %s: %w", what, err)
	}
	defer rows.Close()

	out, err := scanDecisionRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan decisions %s: %w", what, err)
	}
	return out, nil
}

// DeleteBefore removes decisions created before the cutoff and returns the
// number of rows deleted.
func (s *DecisionStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM decisions WHERE created_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete decisions before %s: %w", before.Format(time.RFC3339), err)
	}
	return tag.RowsAffected(), nil
}

// Compile-time interface check.
var _ domain.DecisionStore = (*DecisionStore)(nil)
