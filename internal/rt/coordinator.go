// Package rt contains the real-time coordinator: it owns the lifecycle of at
// most one search attempt at a time, decides when a running attempt must be
// cancelled and restarted because the world changed, and bridges engine
// results to the schedule sink.
package rt

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"pdpnav/internal/metrics"
	"pdpnav/internal/model"
	"pdpnav/internal/plan"
	"pdpnav/internal/solver"
)

// ErrInfeasible reports an engine that terminated normally without producing
// a feasible schedule. Fatal unless the termination was a cancellation.
var ErrInfeasible = solver.ErrInfeasible

// Sink receives coordinator output. Implementations must serialize their own
// internal state; calls are push-style and must return quickly. Schedule
// updates are idempotent replacements, not deltas.
type Sink interface {
	UpdateSchedule(snapshot model.WorldSnapshot, schedule model.Schedule)
	DoneForNow()
	ReportError(err error)
}

// State is the coordinator's lifecycle state.
type State int

const (
	Idle State = iota
	Running
	Cancelling
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Cancelling:
		return "cancelling"
	default:
		return "idle"
	}
}

// attempt is one run of the engine against one freshly built model.
type attempt struct {
	id       string
	snapshot model.WorldSnapshot
	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
	started  time.Time
}

func (a *attempt) running() bool {
	select {
	case <-a.done:
		return false
	default:
		return true
	}
}

// stopRequested reports whether cooperative termination was asked for.
func (a *attempt) stopRequested() bool { return a.ctx.Err() != nil }

// Options wires a Coordinator.
type Options struct {
	Units  model.Units
	Engine solver.Engine
	Pool   *Pool
	Sink   Sink
}

// Coordinator guarantees at most one active attempt at a time. Control calls
// (ProblemChanged, ReceiveSnapshot, Cancel) are serialized through a single
// critical section that covers only bookkeeping, never the search itself.
type Coordinator struct {
	units  model.Units
	engine solver.Engine
	pool   *Pool
	sink   Sink

	mu         sync.Mutex
	permission atomic.Bool
	baseline   *model.WorldSnapshot
	attempt    *attempt
}

func New(opts Options) *Coordinator {
	units := opts.Units
	if units == (model.Units{}) {
		units = model.DefaultUnits()
	}
	return &Coordinator{
		units:  units,
		engine: opts.Engine,
		pool:   opts.Pool,
		sink:   opts.Sink,
	}
}

func (c *Coordinator) checkUnits(u model.Units) error {
	if u != c.units {
		return &plan.UnitMismatchError{Want: c.units, Got: u}
	}
	return nil
}

// ProblemChanged grants permission to run, cancels any active attempt
// (blocking until acknowledged or ctx is done) and starts a fresh attempt
// from the snapshot.
func (c *Coordinator) ProblemChanged(ctx context.Context, snap model.WorldSnapshot) error {
	if err := c.checkUnits(snap.Units); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.permission.Store(true)
	metrics.Restarts.WithLabelValues("problem_changed").Inc()
	return c.start(ctx, snap)
}

// ReceiveSnapshot is a lightweight heartbeat. The first call records the
// baseline only. Later calls restart the search when any vehicle has newly
// committed to a destination: once a vehicle commits to servicing a specific
// parcel next, that ordering can no longer be altered, so searching against
// the old assumption wastes the remaining budget.
func (c *Coordinator) ReceiveSnapshot(ctx context.Context, snap model.WorldSnapshot) error {
	if err := c.checkUnits(snap.Units); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.baseline == nil {
		b := snap
		c.baseline = &b
		return nil
	}
	if !significantChange(*c.baseline, snap) {
		return nil
	}
	log.Printf("vehicle destination commitment change detected, restarting search")
	metrics.Restarts.WithLabelValues("commitment_change").Inc()
	return c.start(ctx, snap)
}

// significantChange reports whether any vehicle took on a new destination
// commitment relative to the baseline. Finishing an old commitment (present
// to absent) is not significant.
func significantChange(base, snap model.WorldSnapshot) bool {
	prev := map[string]string{}
	for _, v := range base.Vehicles {
		prev[v.ID] = v.Destination
	}
	for _, v := range snap.Vehicles {
		if v.Destination != "" && v.Destination != prev[v.ID] {
			return true
		}
	}
	return false
}

// Cancel revokes permission to run and stops the active attempt, blocking
// until it acknowledges or ctx is done. Returns the coordinator to Idle.
func (c *Coordinator) Cancel(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.permission.Store(false)
	c.doCancel(ctx)
}

// start cancels any active attempt and, if permission is still granted,
// builds a fresh model and submits a new attempt to the shared pool.
// Callers hold c.mu.
func (c *Coordinator) start(ctx context.Context, snap model.WorldSnapshot) error {
	c.doCancel(ctx)
	if !c.permission.Load() {
		log.Printf("no permission to run, not starting a new attempt")
		return nil
	}
	b := snap
	c.baseline = &b

	m, err := plan.Build(snap)
	if err != nil {
		return err
	}

	attCtx, cancel := context.WithCancel(context.Background())
	att := &attempt{
		id:       uuid.New().String(),
		snapshot: snap,
		ctx:      attCtx,
		cancel:   cancel,
		done:     make(chan struct{}),
		started:  time.Now(),
	}
	if !c.pool.Submit(func() { c.run(att, m) }) {
		cancel()
		close(att.done)
		return fmt.Errorf("start attempt: worker pool is closed")
	}
	c.attempt = att
	log.Printf("started search attempt %s (snapshot t=%d)", att.id, snap.Time)
	return nil
}

// doCancel requests cooperative termination of the active attempt and waits
// for the worker to acknowledge. The wait is bounded by ctx: when ctx is
// done first, the caller stops waiting without any guarantee that the worker
// has fully stopped. Callers hold c.mu.
func (c *Coordinator) doCancel(ctx context.Context) {
	att := c.attempt
	if att == nil || !att.running() {
		return
	}
	log.Printf("terminating attempt %s early", att.id)
	att.cancel()
	select {
	case <-att.done:
		log.Printf("attempt %s terminated", att.id)
	case <-ctx.Done():
		log.Printf("interrupted while waiting for attempt %s to terminate", att.id)
	}
}

// run executes one attempt on a pool worker. The model is owned exclusively
// by the engine until this function returns; every publication happens
// strictly before att.done closes.
func (c *Coordinator) run(att *attempt, m *plan.Model) {
	defer close(att.done)
	best, err := c.engine.Solve(att.ctx, m, func(b solver.Best) {
		c.publish(att, b)
	})
	c.finish(att, best, err)
}

func (c *Coordinator) publish(att *attempt, b solver.Best) {
	c.sink.UpdateSchedule(att.snapshot, b.Schedule)
	metrics.Publications.Inc()
	metrics.BestCost.Set(b.Score.Soft)
}

// finish handles the terminal outcome of an attempt.
func (c *Coordinator) finish(att *attempt, best *solver.Best, err error) {
	metrics.SearchDuration.Observe(time.Since(att.started).Seconds())
	switch {
	case err != nil:
		if errors.Is(err, context.Canceled) || att.stopRequested() {
			// Cancellation race, swallowed at the coordinator boundary.
			metrics.Attempts.WithLabelValues("cancelled").Inc()
			return
		}
		metrics.Attempts.WithLabelValues("failed").Inc()
		c.sink.ReportError(fmt.Errorf("attempt %s: %w", att.id, err))
	case best == nil:
		if att.stopRequested() {
			log.Printf("attempt %s terminated early before finding a feasible schedule", att.id)
			metrics.Attempts.WithLabelValues("cancelled").Inc()
			return
		}
		// Normal termination must yield a feasible schedule or an explicit
		// infeasibility marker; anything else breaks the engine contract.
		metrics.Attempts.WithLabelValues("infeasible").Inc()
		c.sink.ReportError(fmt.Errorf("attempt %s: %w", att.id, ErrInfeasible))
	default:
		c.publish(att, *best)
		metrics.Attempts.WithLabelValues("published").Inc()
		if c.permission.Load() && att.stopRequested() {
			// A restart is already pending, the next attempt continues.
			return
		}
		c.sink.DoneForNow()
	}
}

// State derives the coordinator's current lifecycle state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.attempt != nil && c.attempt.running() {
		if c.attempt.stopRequested() {
			return Cancelling
		}
		return Running
	}
	return Idle
}

// IsComputing reports whether an attempt is active or permission to run is
// still granted (a restart may be pending).
func (c *Coordinator) IsComputing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return (c.attempt != nil && c.attempt.running()) || c.permission.Load()
}
