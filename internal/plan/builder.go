package plan

import (
	"fmt"

	"pdpnav/internal/model"
)

// MissingRouteError rejects a snapshot containing a vehicle whose current
// route is unknown. The builder never invents a route for a vehicle it
// cannot observe.
type MissingRouteError struct {
	VehicleID string
}

func (e *MissingRouteError) Error() string {
	return fmt.Sprintf("build model: vehicle %s has no known route", e.VehicleID)
}

// UnitMismatchError rejects a snapshot whose units differ from the
// coordinator's configured units. Checked before any model is built.
type UnitMismatchError struct {
	Want, Got model.Units
}

func (e *UnitMismatchError) Error() string {
	return fmt.Sprintf("snapshot units %+v do not match configured units %+v", e.Got, e.Want)
}

// Build converts a world snapshot into a fresh routing model.
//
// Every available parcel not yet carried gets an unattached pickup/delivery
// sibling pair. Vehicles are processed in snapshot order; each entry of a
// vehicle's known route is classified as a delivery (parcel already in the
// vehicle's contents, or no unconsumed pickup left) or a pickup, consuming
// the pre-created visit, and appended to the vehicle's chain in route order.
//
// The first vehicle's route is extended with every unassigned parcel twice
// (yielding its pickup and its delivery) so that each visit starts attached
// to some chain; the engine only relocates existing visits, it never creates
// them. Seeding everything onto a single vehicle may bias early iterations;
// kept as-is deliberately.
func Build(snap model.WorldSnapshot) (*Model, error) {
	for _, v := range snap.Vehicles {
		if !v.HasRoute {
			return nil, &MissingRouteError{VehicleID: v.ID}
		}
	}

	m := &Model{
		Time:    snap.Time,
		parcels: map[string]model.Parcel{},
	}
	for _, p := range snap.Available {
		m.parcels[p.ID] = p
	}
	for _, v := range snap.Vehicles {
		for _, p := range v.Contents {
			m.parcels[p.ID] = p
		}
	}

	pickups := map[string]Ref{}
	deliveries := map[string]Ref{}
	for _, p := range snap.Available {
		pu := m.NewVisit(p.ID, Pickup)
		dl := m.NewVisit(p.ID, Deliver)
		m.Visits[pu].Sibling = dl
		m.Visits[dl].Sibling = pu
		pickups[p.ID] = pu
		deliveries[p.ID] = dl
	}

	// Parcels referenced by no route get seeded onto the first vehicle.
	routed := map[string]bool{}
	for _, v := range snap.Vehicles {
		for _, id := range v.Route {
			routed[id] = true
		}
	}
	var unassigned []string
	for _, p := range snap.Available {
		if !routed[p.ID] {
			unassigned = append(unassigned, p.ID)
		}
	}

	first := true
	for vi, vso := range snap.Vehicles {
		m.Vehicles = append(m.Vehicles, Vehicle{Snap: vso, First: None, Last: None})

		route := vso.Route
		if first {
			route = append(append(append([]string{}, route...), unassigned...), unassigned...)
			first = false
		}

		for _, id := range route {
			pu, havePickup := pickups[id]
			if vso.ContainsParcel(id) || !havePickup {
				dl, ok := deliveries[id]
				if ok {
					delete(deliveries, id)
				} else {
					// Carried parcel: only its delivery exists in the model.
					dl = m.NewVisit(id, Deliver)
				}
				m.Append(vi, dl)
				continue
			}
			delete(pickups, id)
			m.Append(vi, pu)
		}
	}
	return m, nil
}
