package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/tradepilot/internal/domain"
)

func TestLockManager(t *testing.T) {
	c, mr := newTestClient(t)
	lm := NewLockManager(c)
	ctx := context.Background()

	unlock, err := lm.Acquire(ctx, "decision:dec_1", time.Minute)
	require.NoError(t, err)

	_, err = lm.Acquire(ctx, "decision:dec_1", time.Minute)
	assert.ErrorIs(t, err, domain.ErrLockHeld)

	unlock()
	unlock()
	assert.False(t, mr.Exists("lock:decision:dec_1"))

	again, err := lm.Acquire(ctx, "decision:dec_1", time.Minute)
	require.NoError(t, err)
	again()
}

func TestLockManagerStaleUnlockKeepsNewHolder(t *testing.T) {
	c, mr := newTestClient(t)
	lm := NewLockManager(c)
	ctx := context.Background()

	stale, err := lm.Acquire(ctx, "k", time.Second)
	require.NoError(t, err)
	mr.FastForward(2 * time.Second)

	_, err = lm.Acquire(ctx, "k", time.Minute)
	require.NoError(t, err)

	stale()
	assert.True(t, mr.Exists("lock:k"))
}
