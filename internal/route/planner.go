package route

import (
	"context"
	"errors"
	"fmt"
	"log"

	"pdpnav/internal/model"
	"pdpnav/internal/plan"
	"pdpnav/internal/solver"
)

// Planner recomputes one vehicle's full route synchronously on demand, as an
// alternative to the real-time coordinator. It seeds the computation with
// the vehicle's current queue when that queue still validates against the
// world; a stale seed falls back to an unseeded solve.
type Planner struct {
	engine     solver.Engine
	reuseSeeds bool
}

func NewPlanner(engine solver.Engine, reuseSeeds bool) *Planner {
	return &Planner{engine: engine, reuseSeeds: reuseSeeds}
}

// Update solves the snapshot for vehicleID and returns its new route. seed
// is the vehicle's current queue, used as the proposed existing route.
func (p *Planner) Update(ctx context.Context, snap model.WorldSnapshot, vehicleID string, seed []string) ([]string, error) {
	vi := -1
	for i, v := range snap.Vehicles {
		if v.ID == vehicleID {
			vi = i
			break
		}
	}
	if vi < 0 {
		return nil, fmt.Errorf("plan route: vehicle %s not in snapshot", vehicleID)
	}

	veh := snap.Vehicles[vi]
	route := fallbackRoute(veh)
	if p.reuseSeeds {
		if err := plan.CheckRoute(veh, seed, snap.Available); err != nil {
			var stale *plan.StaleSeedError
			if !errors.As(err, &stale) {
				return nil, err
			}
			log.Printf("seed route for vehicle %s rejected (%v), solving from scratch", vehicleID, stale.Reason)
		} else {
			route = append([]string(nil), seed...)
		}
	}

	// The snapshot is immutable; solve against a copy with the seed applied.
	work := snap
	work.Vehicles = append([]model.VehicleSnapshot(nil), snap.Vehicles...)
	work.Vehicles[vi].Route = route
	work.Vehicles[vi].HasRoute = true

	m, err := plan.Build(work)
	if err != nil {
		return nil, fmt.Errorf("plan route: %w", err)
	}
	best, err := p.engine.Solve(ctx, m, nil)
	if err != nil {
		return nil, fmt.Errorf("plan route: %w", err)
	}
	if best == nil {
		return nil, fmt.Errorf("plan route: %w", solver.ErrInfeasible)
	}
	return best.Schedule.RouteFor(vehicleID), nil
}

// fallbackRoute is the minimal valid route for a vehicle: the deliveries of
// everything it already carries, in content order.
func fallbackRoute(v model.VehicleSnapshot) []string {
	var out []string
	for _, p := range v.Contents {
		out = append(out, p.ID)
	}
	return out
}
