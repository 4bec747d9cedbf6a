package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/tradepilot/internal/autopilot"
	"github.com/alanyoungcy/tradepilot/internal/crypto"
	"github.com/alanyoungcy/tradepilot/internal/domain"
	"github.com/alanyoungcy/tradepilot/internal/server"
	"github.com/alanyoungcy/tradepilot/internal/server/handler"
)

func newAPI(t *testing.T, mode domain.Mode, apiKeyHash string) (*httptest.Server, *autopilot.Engine) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := autopilot.DefaultConfig()
	cfg.Mode = mode
	engine, err := autopilot.NewEngine(cfg, logger)
	require.NoError(t, err)
	exposure := 10_000.0
	engine.UpdateRiskState(context.Background(), domain.RiskStatePatch{TotalExposure: &exposure})

	h := server.NewHandler(server.Config{APIKeyHash: apiKeyHash}, server.Handlers{
		Health:    handler.NewHealthHandler(nil, logger),
		Decisions: handler.NewDecisionHandler(engine, nil, logger),
		Controls:  handler.NewControlHandler(engine, logger),
	}, nil, nil, logger)
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv, engine
}

func run(t *testing.T, url string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(append([]string{"--url", url}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestEvaluateApproveViaCLI(t *testing.T) {
	srv, engine := newAPI(t, domain.ModeManual, "")

	out, err := run(t, srv.URL, "evaluate", "BTC/USDT", "50", "--json",
		"--stop-loss", "0.05", "--take-profit", "0.10",
		"--trend", "bullish", "--signal", "buy", "--rsi", "28", "--volume")
	require.NoError(t, err)
	var ds []domain.Decision
	require.NoError(t, json.Unmarshal([]byte(out), &ds), out)
	require.Len(t, ds, 1)
	d := ds[0]
	assert.Equal(t, domain.DecisionStatusPending, d.Status)
	assert.Equal(t, "buy", d.Action)
	assert.Equal(t, domain.SideBuy, d.Params.Side)

	out, err = run(t, srv.URL, "pending")
	require.NoError(t, err)
	assert.Contains(t, out, d.ID)
	assert.Contains(t, out, "pending")
	assert.Contains(t, out, "expires")

	out, err = run(t, srv.URL, "approve", d.ID, "--as", "alice")
	require.NoError(t, err)
	assert.Contains(t, out, string(domain.DecisionStatusExecuted))

	got, err := engine.Decision(context.Background(), d.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", got.ApprovedBy)

	out, err = run(t, srv.URL, "pending")
	require.NoError(t, err)
	assert.Equal(t, "no decisions\n", out)

	out, err = run(t, srv.URL, "history", "-n", "5")
	require.NoError(t, err)
	assert.Contains(t, out, d.ID)

	out, err = run(t, srv.URL, "show", d.ID)
	require.NoError(t, err)
	assert.Contains(t, out, `"approved_by": "alice"`)
}

func TestRejectViaCLI(t *testing.T) {
	srv, _ := newAPI(t, domain.ModeManual, "")

	out, err := run(t, srv.URL, "evaluate", "ETH/USDT", "20", "--json", "--stop-loss", "0.05", "--take-profit", "0.10")
	require.NoError(t, err)
	var ds []domain.Decision
	require.NoError(t, json.Unmarshal([]byte(out), &ds))

	out, err = run(t, srv.URL, "reject", ds[0].ID, "-r", "not today")
	require.NoError(t, err)
	assert.Contains(t, out, "rejected")
	assert.Contains(t, out, "not today")

	_, err = run(t, srv.URL, "reject", ds[0].ID)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr), "got %v", err)
	assert.Equal(t, http.StatusConflict, apiErr.StatusCode)
}

func TestControlsViaCLI(t *testing.T) {
	srv, engine := newAPI(t, domain.ModeSemiAuto, "")

	out, err := run(t, srv.URL, "kill", "fat", "finger")
	require.NoError(t, err)
	assert.Contains(t, out, "true (fat finger)")
	assert.True(t, engine.Status().Killed)

	_, err = run(t, srv.URL, "evaluate", "BTC/USDT", "10")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusLocked, apiErr.StatusCode)

	_, err = run(t, srv.URL, "reset")
	require.NoError(t, err)
	assert.False(t, engine.Status().Killed)

	_, err = run(t, srv.URL, "pause")
	require.NoError(t, err)
	assert.True(t, engine.Status().Paused)
	_, err = run(t, srv.URL, "resume")
	require.NoError(t, err)
	assert.False(t, engine.Status().Paused)

	out, err = run(t, srv.URL, "mode", "full_auto", "--json")
	require.NoError(t, err)
	var st autopilot.Status
	require.NoError(t, json.Unmarshal([]byte(out), &st))
	assert.Equal(t, domain.ModeFullAuto, st.Mode)

	_, err = run(t, srv.URL, "mode", "yolo")
	assert.ErrorIs(t, err, domain.ErrInvalidMode)

	out, err = run(t, srv.URL, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "full-auto")
}

func TestRiskViaCLI(t *testing.T) {
	srv, engine := newAPI(t, domain.ModeSemiAuto, "")

	out, err := run(t, srv.URL, "risk", "--daily-pnl-percent", "-2.5", "--open-positions", "3", "--traded-now")
	require.NoError(t, err)
	assert.Contains(t, out, "-2.50")
	assert.Contains(t, out, "last trade")

	rs := engine.RiskState()
	assert.Equal(t, -2.5, rs.DailyPnLPercent)
	assert.Equal(t, 3, rs.OpenPositions)
	assert.Equal(t, 10_000.0, rs.TotalExposure)
	assert.NotNil(t, rs.LastTradeTime)

	out, err = run(t, srv.URL, "risk", "--json")
	require.NoError(t, err)
	var got domain.RiskState
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, 3, got.OpenPositions)
}

func TestAPIKeyFlag(t *testing.T) {
	hash, err := crypto.HashAPIKey("s3cret")
	require.NoError(t, err)
	srv, _ := newAPI(t, domain.ModeSemiAuto, hash)

	_, err = run(t, srv.URL, "status")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)

	out, err := run(t, srv.URL, "--api-key", "s3cret", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "semi-auto")
}

func TestHashKey(t *testing.T) {
	out, err := run(t, "http://unused", "hash-key", "s3cret")
	require.NoError(t, err)
	assert.True(t, crypto.CheckAPIKey(strings.TrimSpace(out), "s3cret"))
}
