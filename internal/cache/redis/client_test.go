package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptionsDefaults(t *testing.T) {
	opts := options(ClientConfig{Addr: "cache:6379", TLSEnabled: true})
	assert.Equal(t, "tradepilot", opts.ClientName)
	assert.Equal(t, 5*time.Second, opts.DialTimeout)
	require.NotNil(t, opts.TLSConfig)

	opts = options(ClientConfig{Addr: "cache:6379", ClientName: "pilot-2", DialTimeout: time.Second})
	assert.Equal(t, "pilot-2", opts.ClientName)
	assert.Equal(t, time.Second, opts.DialTimeout)
	assert.Nil(t, opts.TLSConfig)
}

func TestNewAndPing(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	c, err := New(ctx, ClientConfig{Addr: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	require.NoError(t, c.Ping(ctx))

	mr.Close()
	err = c.Ping(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), mr.Addr())
}

func TestNewUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := New(context.Background(), ClientConfig{Addr: addr, DialTimeout: 200 * time.Millisecond})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis: ping")
}
