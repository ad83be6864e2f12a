package plan

import (
	"fmt"

	"pdpnav/internal/model"
)

// StaleSeedError rejects a proposed existing route that can no longer seed a
// solve, e.g. because it references parcels that disappeared or repeats
// parcels the wrong number of times. Recovered locally by falling back to an
// unseeded solve.
type StaleSeedError struct {
	VehicleID string
	Reason    string
}

func (e *StaleSeedError) Error() string {
	return fmt.Sprintf("stale seed route for vehicle %s: %s", e.VehicleID, e.Reason)
}

// CheckRoute validates a proposed route for one vehicle against the current
// world: every entry must be a known parcel, each carried parcel must appear
// exactly once (its delivery), and each available parcel appearing in the
// route must appear exactly twice (pickup then delivery).
func CheckRoute(v model.VehicleSnapshot, route []string, available []model.Parcel) error {
	known := map[string]bool{}
	for _, p := range available {
		known[p.ID] = true
	}
	carried := map[string]bool{}
	for _, p := range v.Contents {
		carried[p.ID] = true
	}

	counts := map[string]int{}
	for _, id := range route {
		if !known[id] && !carried[id] {
			return &StaleSeedError{VehicleID: v.ID, Reason: fmt.Sprintf("unknown parcel %s", id)}
		}
		counts[id]++
	}
	for id := range carried {
		if n, ok := counts[id]; ok && n != 1 {
			return &StaleSeedError{VehicleID: v.ID,
				Reason: fmt.Sprintf("carried parcel %s occurs %d times, want 1", id, n)}
		}
	}
	for id, n := range counts {
		if !carried[id] && n != 2 {
			return &StaleSeedError{VehicleID: v.ID,
				Reason: fmt.Sprintf("parcel %s occurs %d times, want 2", id, n)}
		}
	}
	return nil
}
