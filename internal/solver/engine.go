// Package solver contains the search engines that improve routing models.
// Engines are pluggable collaborators of the real-time coordinator: they own
// the model for the duration of one attempt, mutate it in place, and report
// improved feasible schedules through a callback.
package solver

import (
	"context"
	"errors"

	"pdpnav/internal/model"
	"pdpnav/internal/plan"
)

// ErrInfeasible marks a search that terminated normally without finding a
// schedule satisfying all hard constraints.
var ErrInfeasible = errors.New("search engine terminated without a feasible schedule")

// Best is a feasible schedule extracted from the model together with the
// score it was found at.
type Best struct {
	Schedule model.Schedule
	Score    plan.Score
}

// Engine runs a search over a routing model until it naturally terminates or
// the context is cancelled. Cancellation is cooperative: the engine observes
// ctx at its own checkpoints, there is no hard preemption.
//
// On return the engine yields its best feasible solution, or nil when none
// was found. onBest, when non-nil, is invoked during the search each time a
// new best feasible solution is discovered; it must return quickly.
type Engine interface {
	Solve(ctx context.Context, m *plan.Model, onBest func(Best)) (*Best, error)
}

// newBest snapshots the model into a publishable Best.
func newBest(m *plan.Model, sc plan.Score) Best {
	s := plan.ToSchedule(m)
	s.Cost = sc.Soft
	return Best{Schedule: s, Score: sc}
}
