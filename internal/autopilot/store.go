package autopilot

import "github.com/alanyoungcy/tradepilot/internal/domain"

// decisionStore is the engine-owned in-memory record of decisions. It is not
// safe for concurrent use; the engine lock guards it.
type decisionStore struct {
	byID  map[string]*domain.Decision
	order []string // insertion order, oldest first
	limit int
}

func newDecisionStore(limit int) *decisionStore {
	return &decisionStore{
		byID:  make(map[string]*domain.Decision),
		limit: limit,
	}
}

func (s *decisionStore) insert(d domain.Decision) *domain.Decision {
	p := &d
	s.byID[d.ID] = p
	s.order = append(s.order, d.ID)
	s.evict()
	return p
}

func (s *decisionStore) get(id string) (*domain.Decision, bool) {
	d, ok := s.byID[id]
	return d, ok
}

// evict drops the oldest settled decisions once the store exceeds its limit.
func (s *decisionStore) evict() {
	excess := len(s.order) - s.limit
	if excess <= 0 {
		return
	}
	kept := s.order[:0]
	for _, id := range s.order {
		d := s.byID[id]
		if excess > 0 && settled(d) {
			delete(s.byID, id)
			excess--
			continue
		}
		kept = append(kept, id)
	}
	s.order = kept
}

// withStatus returns copies of decisions in the given status, oldest first.
func (s *decisionStore) withStatus(status domain.DecisionStatus) []domain.Decision {
	var out []domain.Decision
	for _, id := range s.order {
		if d := s.byID[id]; d.Status == status {
			out = append(out, d.Clone())
		}
	}
	return out
}

// pendingPtrs returns the live pending records for in-place transitions.
func (s *decisionStore) pendingPtrs() []*domain.Decision {
	var out []*domain.Decision
	for _, id := range s.order {
		if d := s.byID[id]; d.Status == domain.DecisionStatusPending {
			out = append(out, d)
		}
	}
	return out
}

// recent returns up to limit copies, newest first. limit <= 0 means all.
func (s *decisionStore) recent(limit int) []domain.Decision {
	n := len(s.order)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]domain.Decision, 0, n)
	for i := len(s.order) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, s.byID[s.order[i]].Clone())
	}
	return out
}

func (s *decisionStore) counts() map[domain.DecisionStatus]int {
	out := make(map[domain.DecisionStatus]int)
	for _, d := range s.byID {
		out[d.Status]++
	}
	return out
}

func (s *decisionStore) len() int { return len(s.order) }

// settled reports whether nothing can still change d. An executed decision
// stays live until the executor reports a result or a failure.
func settled(d *domain.Decision) bool {
	if d.Status == domain.DecisionStatusExecuted {
		return d.ExecutionResult != "" || d.Error != ""
	}
	return d.Status.IsTerminal()
}
