package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/tradepilot/internal/domain"
)

// RiskSnapshotStore implements domain.RiskSnapshotStore using PostgreSQL.
type RiskSnapshotStore struct {
	pool *pgxpool.Pool
}

// NewRiskSnapshotStore creates a new RiskSnapshotStore backed by the given connection pool.
func NewRiskSnapshotStore(pool *pgxpool.Pool) *RiskSnapshotStore {
	return &RiskSnapshotStore{pool: pool}
}

// Insert records the risk state as of at.
func (s *RiskSnapshotStore) Insert(ctx context.Context, st domain.RiskState, at time.Time) error {
	const query = `
		INSERT INTO risk_snapshots (
			daily_pnl, daily_pnl_percent, current_drawdown,
			open_positions, total_exposure, last_trade_time, recorded_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := s.pool.Exec(ctx, query,
		st.DailyPnL, st.DailyPnLPercent, st.CurrentDrawdown,
		st.OpenPositions, st.TotalExposure, st.LastTradeTime, at,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert risk snapshot: %w", err)
	}
	return nil
}

// Latest returns the most recent snapshot, or domain.ErrNotFound.
func (s *RiskSnapshotStore) Latest(ctx context.Context) (domain.RiskState, error) {
	var st domain.RiskState
	err := s.pool.QueryRow(ctx, `
		SELECT daily_pnl, daily_pnl_percent, current_drawdown,
		       open_positions, total_exposure, last_trade_time
		FROM risk_snapshots ORDER BY recorded_at DESC, id DESC LIMIT 1`,
	).Scan(
		&st.DailyPnL, &st.DailyPnLPercent, &st.CurrentDrawdown,
		&st.OpenPositions, &st.TotalExposure, &st.LastTradeTime,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.RiskState{}, domain.ErrNotFound
		}
		return domain.RiskState{}, fmt.Errorf("postgres: latest risk snapshot: %w", err)
	}
	return st, nil
}

// Compile-time interface check.
var _ domain.RiskSnapshotStore = (*RiskSnapshotStore)(nil)
