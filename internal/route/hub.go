package route

import (
	"sync"

	"pdpnav/internal/model"
)

// Hub tracks the per-vehicle consumers and fans published schedules out to
// them.
type Hub struct {
	mu        sync.Mutex
	consumers map[string]*Consumer
}

func NewHub() *Hub {
	return &Hub{consumers: map[string]*Consumer{}}
}

// Get returns the consumer for a vehicle, creating it on first use.
func (h *Hub) Get(vehicleID string) *Consumer {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.consumers[vehicleID]
	if !ok {
		c = NewConsumer(vehicleID, nil)
		h.consumers[vehicleID] = c
	}
	return c
}

// Register installs a consumer, replacing any previous one for the vehicle.
func (h *Hub) Register(c *Consumer) {
	h.mu.Lock()
	h.consumers[c.VehicleID()] = c
	h.mu.Unlock()
}

// Apply pushes a published schedule to every consumer it names, creating
// consumers for vehicles seen for the first time.
func (h *Hub) Apply(s model.Schedule) {
	h.mu.Lock()
	var targets []*Consumer
	for _, r := range s.Routes {
		c, ok := h.consumers[r.VehicleID]
		if !ok {
			c = NewConsumer(r.VehicleID, nil)
			h.consumers[r.VehicleID] = c
		}
		targets = append(targets, c)
	}
	h.mu.Unlock()
	for _, c := range targets {
		c.ApplySchedule(s)
	}
}
