// Package route maintains each vehicle's local view of its next stops,
// derived from the latest published schedule and reconciled against locally
// observed state changes between publications.
package route

import (
	"sync"

	"pdpnav/internal/model"
)

// ParcelPhases lets a consumer query the host about a parcel's execution
// state during reconciliation.
type ParcelPhases interface {
	IsPickedUp(id string) bool
	IsTransitioning(id string) bool
}

// Consumer holds one vehicle's ordered queue of upcoming parcels.
type Consumer struct {
	mu        sync.Mutex
	vehicleID string
	queue     []string
	onChange  func()
}

// NewConsumer creates a consumer for one vehicle. onChange, when non-nil,
// fires after every wholesale queue replacement.
func NewConsumer(vehicleID string, onChange func()) *Consumer {
	return &Consumer{vehicleID: vehicleID, onChange: onChange}
}

func (c *Consumer) VehicleID() string { return c.vehicleID }

// ApplySchedule replaces the queue with this vehicle's segment of a newly
// published schedule.
func (c *Consumer) ApplySchedule(s model.Schedule) {
	c.Replace(s.RouteFor(c.vehicleID))
}

// Replace overwrites the queue wholesale and fires the change notification.
func (c *Consumer) Replace(parcels []string) {
	c.mu.Lock()
	c.queue = append([]string(nil), parcels...)
	c.mu.Unlock()
	if c.onChange != nil {
		c.onChange()
	}
}

// HasNext reports whether the queue is non-empty.
func (c *Consumer) HasNext() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue) > 0
}

// Current returns the head of the queue, if any.
func (c *Consumer) Current() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.queue) == 0 {
		return "", false
	}
	return c.queue[0], true
}

// Advance drops the head of the queue once that stop is completed.
func (c *Consumer) Advance() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.queue) > 0 {
		c.queue = c.queue[1:]
	}
}

// Route returns a copy of the queue.
func (c *Consumer) Route() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.queue...)
}

// Reconcile drops queued parcels whose prior assignment became stale before
// a fresh schedule arrived: absent from the known set, not picked up, and
// not mid-transition. Parcels already picked up or transitioning stay
// regardless. When nothing is known and the vehicle carries nothing, the
// queue is cleared entirely.
func (c *Consumer) Reconcile(known map[string]bool, contentsEmpty bool, phases ParcelPhases) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(known) == 0 && contentsEmpty {
		c.queue = nil
		return
	}
	kept := c.queue[:0]
	for _, id := range c.queue {
		if !known[id] && !phases.IsPickedUp(id) && !phases.IsTransitioning(id) {
			continue
		}
		kept = append(kept, id)
	}
	c.queue = kept
}
