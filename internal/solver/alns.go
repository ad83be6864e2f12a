package solver

import (
	"context"
	"math"
	"math/rand"
	"sort"
	"time"

	"pdpnav/internal/model"
	"pdpnav/internal/plan"
)

// Config tunes the ALNS engine. Zero values fall back to defaults.
type Config struct {
	Seed            int64
	TimeBudget      time.Duration
	IterationsLimit int
	// UnimprovedLimit stops the search after this many iterations without a
	// new best, mirroring an unimproved-time termination.
	UnimprovedLimit int
	InitialTemp     float64
	Cooling         float64
}

// ALNS searches by repeatedly removing pickup/delivery pairs from the chains
// and reinserting them at cheaper positions, with a simulated-annealing
// acceptance criterion and adaptive operator weights.
type ALNS struct {
	cfg Config
}

func NewALNS(cfg Config) *ALNS { return &ALNS{cfg: cfg} }

// pair is one movable parcel: a pickup and its sibling delivery. Deliveries
// of parcels already carried have no sibling and stay on their vehicle.
type pair struct {
	pickup  plan.Ref
	deliver plan.Ref
}

func (a *ALNS) Solve(ctx context.Context, m *plan.Model, onBest func(Best)) (*Best, error) {
	// Without a vehicle no visit has a chain to live on.
	if len(m.Vehicles) == 0 {
		return nil, nil
	}
	seed := a.cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	pairs := movablePairs(m)

	cur := plan.Evaluate(m)
	var best *Best
	bestScore := cur
	if cur.Feasible() {
		b := newBest(m, cur)
		best = &b
		if onBest != nil {
			onBest(b)
		}
	}

	remW := []float64{1, 1} // random, related
	insW := []float64{1, 1} // greedy, regret2
	temp := 1.0
	if a.cfg.InitialTemp > 0 {
		temp = a.cfg.InitialTemp
	}
	cool := 0.995
	if a.cfg.Cooling > 0 && a.cfg.Cooling < 1 {
		cool = a.cfg.Cooling
	}

	var deadline time.Time
	if a.cfg.TimeBudget > 0 {
		deadline = time.Now().Add(a.cfg.TimeBudget)
	}

	iterations := 0
	unimproved := 0
	for {
		// Cooperative termination checkpoint.
		if ctx.Err() != nil {
			break
		}
		if !deadline.IsZero() && !time.Now().Before(deadline) {
			break
		}
		if a.cfg.IterationsLimit > 0 && iterations >= a.cfg.IterationsLimit {
			break
		}
		if a.cfg.UnimprovedLimit > 0 && unimproved >= a.cfg.UnimprovedLimit {
			break
		}
		if len(pairs) == 0 {
			break
		}
		iterations++

		layout := saveLayout(m)

		k := 1 + rng.Intn(min(3, len(pairs)))
		op := selectOp(remW, rng)
		var removed []pair
		switch op {
		case 0:
			removed = removeRandom(m, pairs, k, rng)
		case 1:
			removed = removeRelated(m, pairs, k, rng)
		}
		ip := selectOp(insW, rng)
		switch ip {
		case 0:
			insertGreedy(m, removed)
		case 1:
			insertRegret(m, removed)
		}

		cand := plan.Evaluate(m)

		accepted := cand.Better(cur)
		if !accepted && cand.Hard == cur.Hard {
			delta := cand.Soft - cur.Soft
			accepted = rng.Float64() < math.Exp(-delta/(temp+1e-9))
		}
		if accepted {
			cur = cand
			if cand.Better(bestScore) {
				bestScore = cand
				remW[op] += 0.1
				insW[ip] += 0.1
				unimproved = 0
				if cand.Feasible() {
					b := newBest(m, cand)
					best = &b
					if onBest != nil {
						onBest(b)
					}
				}
			} else {
				remW[op] += 0.01
				insW[ip] += 0.01
				unimproved++
			}
		} else {
			restoreLayout(m, layout)
			remW[op] = math.Max(0.01, remW[op]*0.999)
			insW[ip] = math.Max(0.01, insW[ip]*0.999)
			unimproved++
		}
		temp *= cool
	}
	return best, nil
}

// movablePairs collects every pickup with its sibling delivery. Only full
// pairs are relocated; ownership of both visits transfers together.
func movablePairs(m *plan.Model) []pair {
	var out []pair
	for i := range m.Visits {
		v := &m.Visits[i]
		if v.Kind == plan.Pickup && v.Sibling != plan.None {
			out = append(out, pair{pickup: plan.Ref(i), deliver: v.Sibling})
		}
	}
	return out
}

// saveLayout captures chain orders so a rejected iteration can be undone.
func saveLayout(m *plan.Model) [][]plan.Ref {
	out := make([][]plan.Ref, len(m.Vehicles))
	for vi := range m.Vehicles {
		out[vi] = m.Chain(vi)
	}
	return out
}

func restoreLayout(m *plan.Model, layout [][]plan.Ref) {
	for vi := range m.Vehicles {
		for _, v := range m.Chain(vi) {
			m.Detach(v)
		}
	}
	for vi, chain := range layout {
		for _, v := range chain {
			m.Append(vi, v)
		}
	}
}

func removeRandom(m *plan.Model, pairs []pair, k int, rng *rand.Rand) []pair {
	idx := rng.Perm(len(pairs))[:k]
	var out []pair
	for _, i := range idx {
		p := pairs[i]
		m.Detach(p.pickup)
		m.Detach(p.deliver)
		out = append(out, p)
	}
	return out
}

// removeRelated removes a random seed pair plus the pairs whose pickups are
// geographically closest to it.
func removeRelated(m *plan.Model, pairs []pair, k int, rng *rand.Rand) []pair {
	seed := pairs[rng.Intn(len(pairs))]
	sp := m.Parcel(m.Visits[seed.pickup].Parcel).Pickup

	rest := make([]pair, 0, len(pairs)-1)
	for _, p := range pairs {
		if p != seed {
			rest = append(rest, p)
		}
	}
	sort.Slice(rest, func(i, j int) bool {
		pi := m.Parcel(m.Visits[rest[i].pickup].Parcel).Pickup
		pj := m.Parcel(m.Visits[rest[j].pickup].Parcel).Pickup
		return sqDist(sp, pi) < sqDist(sp, pj)
	})

	out := []pair{seed}
	m.Detach(seed.pickup)
	m.Detach(seed.deliver)
	for i := 0; i < len(rest) && len(out) < k; i++ {
		m.Detach(rest[i].pickup)
		m.Detach(rest[i].deliver)
		out = append(out, rest[i])
	}
	return out
}

type placement struct {
	vehicle int
	afterPu plan.Ref // plan.None inserts at the chain head
	afterDl plan.Ref // equals the pickup ref when delivery follows directly
	score   plan.Score
	ok      bool
}

// bestPlacement tries every position of a pair on every chain and returns
// the placement with the best resulting model score, plus the runner-up
// score for regret computation.
func bestPlacement(m *plan.Model, p pair) (placement, plan.Score) {
	var best placement
	second := plan.Score{Hard: math.MaxInt32, Soft: math.MaxFloat64}
	best.score = second

	for vi := range m.Vehicles {
		chain := m.Chain(vi)
		// Pickup position i (after chain[i-1], head when i==0), delivery
		// position j >= i (directly after pickup when j==i).
		for i := 0; i <= len(chain); i++ {
			afterPu := plan.None
			if i > 0 {
				afterPu = chain[i-1]
			}
			m.InsertAfter(vi, afterPu, p.pickup)
			for j := i; j <= len(chain); j++ {
				afterDl := p.pickup
				if j > i {
					afterDl = chain[j-1]
				}
				m.InsertAfter(vi, afterDl, p.deliver)
				sc := plan.Evaluate(m)
				m.Detach(p.deliver)

				if sc.Better(best.score) {
					second = best.score
					best = placement{
						vehicle: vi, afterPu: afterPu, afterDl: afterDl,
						score: sc, ok: true,
					}
				} else if sc.Better(second) {
					second = sc
				}
			}
			m.Detach(p.pickup)
		}
	}
	return best, second
}

func apply(m *plan.Model, p pair, pl placement) {
	m.InsertAfter(pl.vehicle, pl.afterPu, p.pickup)
	m.InsertAfter(pl.vehicle, pl.afterDl, p.deliver)
}

func insertGreedy(m *plan.Model, removed []pair) {
	for _, p := range removed {
		pl, _ := bestPlacement(m, p)
		if !pl.ok {
			m.Append(0, p.pickup)
			m.Append(0, p.deliver)
			continue
		}
		apply(m, p, pl)
	}
}

// insertRegret reinserts the pair that would lose the most if it had to take
// its second-best placement (regret-2), repeatedly.
func insertRegret(m *plan.Model, removed []pair) {
	pending := append([]pair(nil), removed...)
	for len(pending) > 0 {
		bestIdx := -1
		var bestPl placement
		bestRegret := -1.0
		for i, p := range pending {
			pl, second := bestPlacement(m, p)
			if !pl.ok {
				continue
			}
			regret := 0.0
			if second.Hard == pl.score.Hard {
				regret = second.Soft - pl.score.Soft
			} else {
				regret = math.MaxFloat64
			}
			if regret > bestRegret {
				bestRegret = regret
				bestIdx = i
				bestPl = pl
			}
		}
		if bestIdx < 0 {
			for _, p := range pending {
				m.Append(0, p.pickup)
				m.Append(0, p.deliver)
			}
			return
		}
		apply(m, pending[bestIdx], bestPl)
		pending = append(pending[:bestIdx], pending[bestIdx+1:]...)
	}
}

func selectOp(weights []float64, rng *rand.Rand) int {
	sum := 0.0
	for _, w := range weights {
		sum += w
	}
	if sum <= 0 {
		return 0
	}
	r := rng.Float64() * sum
	acc := 0.0
	for i, w := range weights {
		acc += w
		if r <= acc {
			return i
		}
	}
	return len(weights) - 1
}

func sqDist(a, b model.GeoPoint) float64 {
	dLat := a.Lat - b.Lat
	dLng := a.Lng - b.Lng
	return dLat*dLat + dLng*dLng
}
