package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/tradepilot/internal/domain"
)

// Signer signs an audit row. crypto.AuditSigner satisfies it.
type Signer interface {
	Sign(event string, detail []byte, at time.Time) string
}

// AuditStore implements domain.AuditStore using PostgreSQL.
type AuditStore struct {
	pool   *pgxpool.Pool
	signer Signer
	now    func() time.Time
}

// NewAuditStore creates a new AuditStore backed by the given connection
// pool. A nil signer stores rows with an empty signature.
func NewAuditStore(pool *pgxpool.Pool, signer Signer) *AuditStore {
	return &AuditStore{pool: pool, signer: signer, now: time.Now}
}

// Log appends a new audit entry with the given event name and detail map.
// The detail map is stored as JSONB and signed over its exact JSON bytes.
func (s *AuditStore) Log(ctx context.Context, event string, detail map[string]any) error {
	detailJSON, err := json.Marshal(detail)
	if err != nil {
		return fmt.Errorf("postgres: marshal audit detail: %w", err)
	}

	at := s.now().UTC().Truncate(time.Microsecond)
	var sig string
	if s.signer != nil {
		sig = s.signer.Sign(event, detailJSON, at)
	}

	const query = `INSERT INTO audit_log (event, detail, signature, created_at) VALUES ($1, $2, $3, $4)`
	if _, err := s.pool.Exec(ctx, query, event, detailJSON, sig, at); err != nil {
		return fmt.Errorf("postgres: log audit event %s: %w", event, err)
	}
	return nil
}

// List returns audit entries with pagination and optional time filtering.
func (s *AuditStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	query, args := listQuery(
		`SELECT id, event, detail, signature, created_at FROM audit_log WHERE 1=1`,
		nil, "created_at", opts)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list audit entries: %w", err)
	}
	defer rows.Close()

	var entries []domain.AuditEntry
	for rows.Next() {
		var e domain.AuditEntry
		var detailJSON []byte

		if err := rows.Scan(&e.ID, &e.Event, &detailJSON, &e.Signature, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan audit entry: %w", err)
		}

		if detailJSON != nil {
			if err := json.Unmarshal(detailJSON, &e.Detail); err != nil {
				return nil, fmt.Errorf("postgres: unmarshal audit detail: %w", err)
			}
		}

		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list audit entries rows: %w", err)
	}
	return entries, nil
}

// Compile-time interface check.
var _ domain.AuditStore = (*AuditStore)(nil)
