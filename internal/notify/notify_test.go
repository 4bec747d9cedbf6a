package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/tradepilot/internal/domain"
)

func discard() *slog.Logger { return slog.New(slog.NewJSONHandler(io.Discard, nil)) }

type captured struct {
	mu     sync.Mutex
	paths  []string
	bodies []map[string]string
}

func (c *captured) handler(status int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		c.mu.Lock()
		c.paths = append(c.paths, r.URL.Path)
		c.bodies = append(c.bodies, body)
		c.mu.Unlock()
		w.WriteHeader(status)
	}
}

func (c *captured) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.bodies)
}

func TestTelegramSender(t *testing.T) {
	var c captured
	srv := httptest.NewServer(c.handler(http.StatusOK))
	defer srv.Close()

	s := NewTelegramSender("123:abc", "42", srv.URL)
	require.NoError(t, s.Send(context.Background(), "Title", "body"))

	require.Equal(t, 1, c.count())
	assert.Equal(t, "/bot123:abc/sendMessage", c.paths[0])
	assert.Equal(t, "42", c.bodies[0]["chat_id"])
	assert.Equal(t, "*Title*\nbody", c.bodies[0]["text"])
}

func TestDiscordSenderError(t *testing.T) {
	var c captured
	srv := httptest.NewServer(c.handler(http.StatusBadRequest))
	defer srv.Close()

	err := NewDiscordSender(srv.URL + "/hook").Send(context.Background(), "T", "m")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status 400")
	assert.Equal(t, "**T**\nm", c.bodies[0]["content"])
}

type memSender struct {
	mu     sync.Mutex
	titles []string
}

func (m *memSender) Send(_ context.Context, title, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.titles = append(m.titles, title)
	return nil
}

func (m *memSender) Name() string { return "mem" }

func (m *memSender) got() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.titles...)
}

func TestNotifierFiltersAndDelivers(t *testing.T) {
	ms := &memSender{}
	n := NewNotifier([]Sender{ms}, []domain.EventType{domain.EventKilled, domain.EventDecisionPending}, discard())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = n.Run(ctx) }()

	require.NoError(t, n.Publish(ctx, domain.Event{Type: domain.EventPaused}))
	require.NoError(t, n.Publish(ctx, domain.Event{Type: domain.EventKilled, Data: map[string]string{"reason": "drill"}}))

	require.Eventually(t, func() bool { return len(ms.got()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"KILL SWITCH ENGAGED"}, ms.got())
}

type failingSender struct{}

func (failingSender) Send(context.Context, string, string) error { return errors.New("webhook 500") }
func (failingSender) Name() string { return "broken" }

func TestAnnounceBypassesFilter(t *testing.T) {
	ms := &memSender{}
	n := NewNotifier([]Sender{failingSender{}, ms}, []domain.EventType{domain.EventKilled}, discard())

	err := n.Announce(context.Background(), "tradepilot started", "mode semi-auto")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken: webhook 500")
	// a failing sender does not stop the others
	assert.Equal(t, []string{"tradepilot started"}, ms.got())
}

func TestNotifierWithoutSendersIsNoop(t *testing.T) {
	n := NewNotifier(nil, nil, discard())
	assert.False(t, n.Enabled())
	for i := 0; i < queueSize+10; i++ {
		require.NoError(t, n.Publish(context.Background(), domain.Event{Type: domain.EventKilled}))
	}
}

func TestFormatDecision(t *testing.T) {
	deadline := time.Date(2026, 5, 1, 10, 30, 0, 0, time.UTC)
	d := domain.Decision{
		ID: "dec_1", Action: "buy", Status: domain.DecisionStatusPending,
		Params:           domain.TradeParams{Symbol: "BTC-USD", Amount: 250},
		Confidence:       0.85,
		Risk:             domain.RiskSnapshot{Level: domain.RiskLevelLow, RiskRewardRatio: 2},
		ApprovalDeadline: &deadline,
	}
	title, msg := Format(domain.Event{Type: domain.EventDecisionPending, Decision: &d})
	assert.Equal(t, "Approval required", title)
	assert.Contains(t, msg, "BUY BTC-USD 250 (dec_1)")
	assert.Contains(t, msg, "confidence 85%")
	assert.Contains(t, msg, "approve by 10:30:00 UTC")

	title, msg = Format(domain.Event{Type: domain.EventModeChanged, Data: map[string]string{"from": "manual", "to": "full-auto"}})
	assert.Equal(t, "Mode changed", title)
	assert.Equal(t, "manual -> full-auto", msg)
}
