package executor

import (
	"context"
	"sync"

	"github.com/alanyoungcy/tradepilot/internal/domain"
)

// Queue receives decision:execute events from the engine. Publish never
// blocks: the queue is unbounded, so the engine can hand off work while it
// is still delivering other events.
type Queue struct {
	mu    sync.Mutex
	items []domain.Decision
	ready chan struct{}
}

// NewQueue returns an empty queue.
func NewQueue() *Queue {
	return &Queue{ready: make(chan struct{}, 1)}
}

// Name identifies the queue in engine logs.
func (q *Queue) Name() string { return "executor_queue" }

// Publish enqueues the decision carried by a decision:execute event and
// ignores every other event.
func (q *Queue) Publish(_ context.Context, ev domain.Event) error {
	if ev.Type != domain.EventDecisionExecute || ev.Decision == nil {
		return nil
	}
	q.mu.Lock()
	q.items = append(q.items, ev.Decision.Clone())
	q.mu.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
	}
	return nil
}

// Ready is signalled after a Publish. Drain with TryNext before waiting
// on it again.
func (q *Queue) Ready() <-chan struct{} { return q.ready }

// TryNext pops the oldest decision without blocking.
func (q *Queue) TryNext() (domain.Decision, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return domain.Decision{}, false
	}
	d := q.items[0]
	q.items[0] = domain.Decision{}
	q.items = q.items[1:]
	return d, true
}

// Len returns the number of queued decisions.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

