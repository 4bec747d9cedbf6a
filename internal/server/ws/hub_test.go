package ws

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/tradepilot/internal/domain"
)

type chanBus struct {
	ch      chan []byte
	history []domain.StreamMessage
}

func (b *chanBus) Publish(context.Context, string, []byte) error { return nil }

func (b *chanBus) Subscribe(context.Context, string) (<-chan []byte, error) { return b.ch, nil }

func (b *chanBus) StreamAppend(context.Context, string, []byte) error { return nil }

func (b *chanBus) StreamRead(context.Context, string, string, int) ([]domain.StreamMessage, error) {
	return nil, nil
}

func (b *chanBus) StreamRecent(_ context.Context, _ string, count int) ([]domain.StreamMessage, error) {
	if count < len(b.history) {
		return b.history[len(b.history)-count:], nil
	}
	return b.history, nil
}

func eventJSON(t *testing.T, seq uint64, typ domain.EventType) []byte {
	t.Helper()
	b, err := json.Marshal(domain.Event{Seq: seq, Type: typ, Time: time.Unix(0, 0).UTC()})
	require.NoError(t, err)
	return b
}

func dial(t *testing.T, srvURL string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srvURL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	typ, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.TextMessage, typ)
	var out map[string]any
	require.NoError(t, json.Unmarshal(data, &out))
	return out
}

func TestHubStatusReplayAndRelay(t *testing.T) {
	bus := &chanBus{ch: make(chan []byte, 8)}
	bus.history = []domain.StreamMessage{
		{ID: "1-0", Payload: eventJSON(t, 1, domain.EventPaused)},
		{ID: "2-0", Payload: eventJSON(t, 2, domain.EventResumed)},
		{ID: "3-0", Payload: eventJSON(t, 3, domain.EventModeChanged)},
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	hub := NewHub(bus, bus, func() any { return map[string]string{"mode": "manual"} },
		Config{Channel: "ch:autopilot", Stream: "stream:autopilot:events", Replay: 2}, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()
	conn := dial(t, srv.URL)

	status := readFrame(t, conn)
	assert.Equal(t, "autopilot_status", status["type"])
	assert.Equal(t, "manual", status["payload"].(map[string]any)["mode"])

	// only the last two stream entries are replayed, oldest first
	assert.Equal(t, float64(2), readFrame(t, conn)["seq"])
	assert.Equal(t, float64(3), readFrame(t, conn)["seq"])

	bus.ch <- eventJSON(t, 4, domain.EventKilled)
	live := readFrame(t, conn)
	assert.Equal(t, "killed", live["type"])
}

func TestHubTypeFilter(t *testing.T) {
	bus := &chanBus{ch: make(chan []byte, 8)}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	hub := NewHub(bus, nil, nil, Config{Channel: "ch:autopilot"}, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()
	conn := dial(t, srv.URL)
	readFrame(t, conn) // status

	require.NoError(t, conn.WriteJSON(subscribeMsg{Action: "subscribe", Types: []domain.EventType{domain.EventDecisionPending}}))

	// The subscription is applied asynchronously. Send risk+pending pairs
	// until a pending event arrives without a risk event ahead of it.
	var seq uint64
	filtered := false
	for attempt := 0; attempt < 50 && !filtered; attempt++ {
		seq += 2
		bus.ch <- eventJSON(t, seq-1, domain.EventRiskUpdated)
		bus.ch <- eventJSON(t, seq, domain.EventDecisionPending)
		sawRisk := false
		for {
			frame := readFrame(t, conn)
			if frame["type"] == string(domain.EventRiskUpdated) {
				sawRisk = true
				continue
			}
			if frame["seq"] == float64(seq) {
				break
			}
		}
		filtered = !sawRisk
	}
	require.True(t, filtered)

	bus.ch <- []byte("not json")
	bus.ch <- eventJSON(t, seq+1, domain.EventRiskUpdated)
	bus.ch <- eventJSON(t, seq+2, domain.EventDecisionPending)
	assert.Equal(t, float64(seq+2), readFrame(t, conn)["seq"])
}

func TestHubShutdownReleasesConnections(t *testing.T) {
	bus := &chanBus{ch: make(chan []byte, 8)}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	hub := NewHub(bus, nil, nil, Config{Channel: "ch:autopilot"}, logger)

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		_ = hub.Run(ctx)
		close(stopped)
	}()

	handled := make(chan struct{}, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.HandleWS(w, r)
		handled <- struct{}{}
	}))
	defer srv.Close()

	live := dial(t, srv.URL)
	readFrame(t, live) // status
	<-handled

	cancel()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("hub did not stop")
	}

	// Run closed the live client's queue, so its connection winds down.
	require.NoError(t, live.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		if _, _, err := live.ReadMessage(); err != nil {
			assert.False(t, isTimeout(err), "live connection left open: %v", err)
			break
		}
	}

	late := dial(t, srv.URL)
	select {
	case <-handled:
	case <-time.After(2 * time.Second):
		t.Fatal("handler blocked after shutdown")
	}
	require.NoError(t, late.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		if _, _, err := late.ReadMessage(); err != nil {
			assert.False(t, isTimeout(err), "late connection left open: %v", err)
			break
		}
	}

	removed := make(chan struct{})
	go func() {
		hub.remove(&client{hub: hub})
		close(removed)
	}()
	select {
	case <-removed:
	case <-time.After(2 * time.Second):
		t.Fatal("remove blocked after shutdown")
	}
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func TestClientWants(t *testing.T) {
	c := &client{types: map[domain.EventType]bool{}}
	assert.True(t, c.wants(domain.EventKilled))

	c.handleSubscription(subscribeMsg{Action: "subscribe", Types: []domain.EventType{domain.EventKilled}})
	assert.True(t, c.wants(domain.EventKilled))
	assert.False(t, c.wants(domain.EventPaused))

	c.handleSubscription(subscribeMsg{Action: "unsubscribe", Types: []domain.EventType{domain.EventKilled}})
	assert.True(t, c.wants(domain.EventPaused))
}
