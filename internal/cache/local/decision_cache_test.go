package local

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/tradepilot/internal/domain"
)

type fakeStore struct {
	domain.DecisionStore
	rows  map[string]domain.Decision
	calls int
}

func (f *fakeStore) GetByID(_ context.Context, id string) (domain.Decision, error) {
	f.calls++
	d, ok := f.rows[id]
	if !ok {
		return domain.Decision{}, domain.ErrNotFound
	}
	return d, nil
}

func TestDecisionCacheLoadsOnMiss(t *testing.T) {
	store := &fakeStore{rows: map[string]domain.Decision{
		"dec_1": {ID: "dec_1", Status: domain.DecisionStatusExecuted, Action: "buy"},
	}}
	c, err := NewDecisionCache(store, 100, time.Minute)
	require.NoError(t, err)
	defer c.Close()

	ctx := context.Background()
	d, err := c.Get(ctx, "dec_1")
	require.NoError(t, err)
	assert.Equal(t, domain.DecisionStatusExecuted, d.Status)
	c.Wait()

	_, err = c.Get(ctx, "dec_1")
	require.NoError(t, err)
	assert.Equal(t, 1, store.calls)

	_, err = c.Get(ctx, "dec_missing")
	assert.ErrorIs(t, err, domain.ErrDecisionNotFound)
}

func TestDecisionCacheFollowsEvents(t *testing.T) {
	c, err := NewDecisionCache(nil, 100, 0)
	require.NoError(t, err)
	defer c.Close()

	ctx := context.Background()
	_, err = c.Get(ctx, "dec_2")
	assert.ErrorIs(t, err, domain.ErrDecisionNotFound)

	d := domain.Decision{ID: "dec_2", Status: domain.DecisionStatusExecuted}
	require.NoError(t, c.Publish(ctx, domain.Event{Type: domain.EventDecisionExecute, Decision: &d}))
	c.Wait()
	d.Status = domain.DecisionStatusFailed
	require.NoError(t, c.Publish(ctx, domain.Event{Type: domain.EventDecisionError, Decision: &d}))
	c.Wait()

	got, err := c.Get(ctx, "dec_2")
	require.NoError(t, err)
	assert.Equal(t, domain.DecisionStatusFailed, got.Status)
}

func TestDecisionCachePublishVisibleImmediately(t *testing.T) {
	lifecycles := map[string][]domain.DecisionStatus{
		"executed then failed": {domain.DecisionStatusPending, domain.DecisionStatusApproved, domain.DecisionStatusExecuted, domain.DecisionStatusFailed},
		"rejected":             {domain.DecisionStatusPending, domain.DecisionStatusRejected},
		"expired":              {domain.DecisionStatusPending, domain.DecisionStatusExpired},
	}
	for name, statuses := range lifecycles {
		t.Run(name, func(t *testing.T) {
			store := &fakeStore{rows: map[string]domain.Decision{}}
			c, err := NewDecisionCache(store, 100, time.Minute)
			require.NoError(t, err)
			defer c.Close()

			ctx := context.Background()
			d := domain.Decision{ID: "dec_" + name}
			for _, st := range statuses {
				d.Status = st
				require.NoError(t, c.Publish(ctx, domain.Event{Type: domain.EventDecisionPending, Decision: &d}))
			}

			got, err := c.Get(ctx, d.ID)
			require.NoError(t, err)
			assert.Equal(t, statuses[len(statuses)-1], got.Status)
			assert.Zero(t, store.calls)
		})
	}
}
