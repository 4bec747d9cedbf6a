// Package local holds in-process caches.
package local

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto"

	"github.com/alanyoungcy/tradepilot/internal/domain"
)

// DecisionCache fronts a DecisionStore for lookups of decisions the engine
// has already evicted from memory. It also listens to engine events so a
// cached copy never lags behind the latest status.
type DecisionCache struct {
	cache *ristretto.Cache
	store domain.DecisionStore
	ttl   time.Duration
}

// NewDecisionCache builds a cache holding roughly maxItems decisions, each
// for at most ttl. A nil store makes Get a cache-only lookup.
func NewDecisionCache(store domain.DecisionStore, maxItems int64, ttl time.Duration) (*DecisionCache, error) {
	if maxItems <= 0 {
		maxItems = 10000
	}
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: maxItems * 10,
		MaxCost:     maxItems,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("local: create decision cache: %w", err)
	}
	return &DecisionCache{cache: c, store: store, ttl: ttl}, nil
}

// Get returns the decision with id, loading it from the store on a miss.
// It returns domain.ErrDecisionNotFound when neither knows the id.
//
// ristretto applies sets asynchronously and may drop them under contention
// or admission pressure. Publish therefore waits for each write and evicts
// the key when a write is dropped, so Get either sees the newest status or
// falls through to the store. A concurrent store load can still put back an
// older copy until the next event for that decision.
func (c *DecisionCache) Get(ctx context.Context, id string) (domain.Decision, error) {
	if v, ok := c.cache.Get(id); ok {
		if d, ok := v.(domain.Decision); ok {
			return d.Clone(), nil
		}
	}
	if c.store == nil {
		return domain.Decision{}, domain.ErrDecisionNotFound
	}

	d, err := c.store.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Decision{}, domain.ErrDecisionNotFound
		}
		return domain.Decision{}, fmt.Errorf("local: load decision %s: %w", id, err)
	}
	c.put(d)
	return d.Clone(), nil
}

func (c *DecisionCache) put(d domain.Decision) bool {
	if c.ttl > 0 {
		return c.cache.SetWithTTL(d.ID, d.Clone(), 1, c.ttl)
	}
	return c.cache.Set(d.ID, d.Clone(), 1)
}

// Name identifies the cache in engine logs.
func (c *DecisionCache) Name() string { return "decision_cache" }

// Publish refreshes the cached copy of a decision carried by an event. The
// write is visible to Get when Publish returns.
func (c *DecisionCache) Publish(_ context.Context, ev domain.Event) error {
	if ev.Decision == nil {
		return nil
	}
	if !c.put(*ev.Decision) {
		c.cache.Del(ev.Decision.ID)
	}
	c.cache.Wait()
	return nil
}

// Wait blocks until buffered writes are visible to Get.
func (c *DecisionCache) Wait() { c.cache.Wait() }

// Close stops the cache's background goroutines.
func (c *DecisionCache) Close() { c.cache.Close() }
