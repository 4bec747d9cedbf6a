package executor

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/alanyoungcy/tradepilot/internal/domain"
)

// OrderResult is what a placer reports for one decision.
type OrderResult struct {
	Success     bool
	OrderID     string
	FilledPrice float64
	Message     string
	ShouldRetry bool
}

// OrderPlacer submits an executed decision to a venue.
type OrderPlacer interface {
	PlaceOrder(ctx context.Context, d domain.Decision) (OrderResult, error)
}

// PaperPlacer fills every order immediately at its limit price, or at the
// last price recorded for the symbol for market orders.
type PaperPlacer struct {
	mu     sync.Mutex
	marks  map[string]float64
	orders []domain.Decision
}

// NewPaperPlacer returns a placer with no reference prices.
func NewPaperPlacer() *PaperPlacer {
	return &PaperPlacer{marks: make(map[string]float64)}
}

// SetMark records the reference price used for market orders on symbol.
func (p *PaperPlacer) SetMark(symbol string, price float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.marks[symbol] = price
}

// PlaceOrder fills d. Decisions that are not trades have nothing to place
// and succeed without an order ID.
func (p *PaperPlacer) PlaceOrder(_ context.Context, d domain.Decision) (OrderResult, error) {
	if d.Kind != domain.DecisionKindTrade {
		return OrderResult{Success: true, Message: fmt.Sprintf("%s decision acknowledged", d.Kind)}, nil
	}
	if d.Params.Amount <= 0 {
		return OrderResult{Message: "amount must be positive"}, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	price := p.marks[d.Params.Symbol]
	if d.Params.Price != nil {
		price = *d.Params.Price
	}
	p.orders = append(p.orders, d.Clone())
	return OrderResult{
		Success:     true,
		OrderID:     "paper_" + uuid.NewString(),
		FilledPrice: price,
	}, nil
}

// Orders returns the decisions filled so far.
func (p *PaperPlacer) Orders() []domain.Decision {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]domain.Decision, len(p.orders))
	copy(out, p.orders)
	return out
}
