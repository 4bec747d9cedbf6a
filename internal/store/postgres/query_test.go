package postgres

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/alanyoungcy/tradepilot/internal/domain"
)

func TestListQuery(t *testing.T) {
	since := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	type test struct {
		base  string
		args  []any
		opts  domain.ListOpts
		query string
		nargs int
	}

	tests := map[string]test{
		"bare": {
			base:  "SELECT * FROM decisions WHERE 1=1",
			query: "SELECT * FROM decisions WHERE 1=1 ORDER BY created_at DESC",
		},
		"status-and-paging": {
			base:  "SELECT * FROM decisions WHERE status = $1",
			args:  []any{"pending"},
			opts:  domain.ListOpts{Limit: 10, Offset: 20},
			query: "SELECT * FROM decisions WHERE status = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3",
			nargs: 3,
		},
		"since": {
			base:  "SELECT * FROM audit_log WHERE 1=1",
			opts:  domain.ListOpts{Since: &since, Limit: 5},
			query: "SELECT * FROM audit_log WHERE 1=1 AND created_at >= $1 ORDER BY created_at DESC LIMIT $2",
			nargs: 2,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			q, args := listQuery(tt.base, tt.args, "created_at", tt.opts)
			assert.Equal(t, tt.query, q)
			assert.Len(t, args, tt.nargs)
		})
	}
}

func TestDSN(t *testing.T) {
	assert.Equal(t, "postgres://u:p@db:5432/pilot?sslmode=disable",
		DSN(ClientConfig{User: "u", Password: "p", Host: "db", Database: "pilot"}))
	assert.Equal(t, "postgres://explicit", DSN(ClientConfig{DSN: " postgres://explicit "}))
}
