package feed

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/tradepilot/internal/autopilot"
	"github.com/alanyoungcy/tradepilot/internal/cache/redis"
	"github.com/alanyoungcy/tradepilot/internal/domain"
)

func discard() *slog.Logger { return slog.New(slog.NewJSONHandler(io.Discard, nil)) }

type marks map[string]float64

func (m marks) SetMark(symbol string, price float64) { m[symbol] = price }

func newEngine(t *testing.T) *autopilot.Engine {
	t.Helper()
	e, err := autopilot.NewEngine(autopilot.DefaultConfig(), discard(),
		autopilot.WithRiskState(domain.RiskState{TotalExposure: 10000}))
	require.NoError(t, err)
	return e
}

const payload = `{
	"opportunity": {"action": "buy", "symbol": "ETH/USDT", "side": "buy", "amount": 500, "price": 3100,
	                "stop_loss": 0.05, "take_profit": 0.1},
	"analysis": {"trend": "bullish", "signal": "buy", "rsi": 28, "volume_confirmed": true}
}`

func TestHandle(t *testing.T) {
	eng := newEngine(t)
	m := marks{}
	f := NewOpportunityFeeder(nil, redis.ChannelOpportunity, eng, m, discard())

	d, err := f.Handle(context.Background(), []byte(payload))
	require.NoError(t, err)
	// 500 is above the auto-approve amount, so semi-auto parks it.
	assert.Equal(t, domain.DecisionStatusPending, d.Status)
	assert.InDelta(t, 0.85, d.Confidence, 1e-9)
	assert.Equal(t, 3100.0, m["ETH/USDT"])

	_, err = f.Handle(context.Background(), []byte(`{"opportunity":`))
	assert.Error(t, err)

	_, err = f.Handle(context.Background(), []byte(`{"opportunity":{"action":"buy"}}`))
	assert.ErrorIs(t, err, domain.ErrInvalidOpportunity)
}

func TestRunEvaluatesPublishedOpportunities(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	bus := redis.NewSignalBus(redis.Wrap(rdb))

	eng := newEngine(t)
	f := NewOpportunityFeeder(bus, redis.ChannelOpportunity, eng, nil, discard())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = f.Run(ctx) }()

	require.Eventually(t, func() bool {
		_ = bus.Publish(ctx, redis.ChannelOpportunity, []byte(payload))
		return len(eng.PendingDecisions(ctx)) > 0
	}, 3*time.Second, 50*time.Millisecond)
}
