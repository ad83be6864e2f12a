package solver

import (
	"context"

	"pdpnav/internal/plan"
)

// Insertion is a deterministic one-pass engine: it detaches every movable
// pickup/delivery pair and reinserts each at its cheapest feasible position,
// in model order. Useful as a fast synchronous solver and as a predictable
// engine in tests.
type Insertion struct{}

func NewInsertion() *Insertion { return &Insertion{} }

func (e *Insertion) Solve(ctx context.Context, m *plan.Model, onBest func(Best)) (*Best, error) {
	if len(m.Vehicles) == 0 {
		return nil, nil
	}
	pairs := movablePairs(m)
	for _, p := range pairs {
		if ctx.Err() != nil {
			break
		}
		m.Detach(p.pickup)
		m.Detach(p.deliver)
		pl, _ := bestPlacement(m, p)
		if !pl.ok {
			m.Append(0, p.pickup)
			m.Append(0, p.deliver)
			continue
		}
		apply(m, p, pl)
	}
	sc := plan.Evaluate(m)
	if !sc.Feasible() {
		return nil, nil
	}
	b := newBest(m, sc)
	if onBest != nil {
		onBest(b)
	}
	return &b, nil
}
