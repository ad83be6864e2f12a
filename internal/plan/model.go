package plan

import (
	"pdpnav/internal/model"
)

// VisitKind tags a visit as a pickup or a delivery event.
type VisitKind uint8

const (
	Pickup VisitKind = iota
	Deliver
)

func (k VisitKind) String() string {
	if k == Pickup {
		return "pickup"
	}
	return "deliver"
}

// Ref is a handle into the model's visit arena. None means no visit.
type Ref int32

const None Ref = -1

// Visit is one pickup or delivery event for one parcel. Visits live in an
// arena and reference each other by handle; Sibling links a pickup to its
// delivery and vice versa, set once at build time. Prev/Next form the chain
// of the owning vehicle, Vehicle is the chain owner (-1 while unattached).
type Visit struct {
	Parcel  string
	Kind    VisitKind
	Sibling Ref
	Prev    Ref
	Next    Ref
	Vehicle int32
}

// Vehicle heads a singly ordered chain of visits. First is the chain head.
type Vehicle struct {
	Snap  model.VehicleSnapshot
	First Ref
	Last  Ref
}

// Model is the full mutable assignment under optimization. It is created
// fresh per search attempt, owned exclusively by the engine while that
// attempt runs, and discarded when the attempt ends.
type Model struct {
	Time     int64
	Visits   []Visit
	Vehicles []Vehicle

	parcels map[string]model.Parcel
}

// Parcel returns the parcel data a visit refers to.
func (m *Model) Parcel(id string) model.Parcel { return m.parcels[id] }

// NewVisit appends a visit record to the arena and returns its handle.
func (m *Model) NewVisit(parcel string, kind VisitKind) Ref {
	m.Visits = append(m.Visits, Visit{
		Parcel:  parcel,
		Kind:    kind,
		Sibling: None,
		Prev:    None,
		Next:    None,
		Vehicle: -1,
	})
	return Ref(len(m.Visits) - 1)
}

// Append attaches an unattached visit to the tail of a vehicle's chain.
func (m *Model) Append(vi int, v Ref) {
	veh := &m.Vehicles[vi]
	vis := &m.Visits[v]
	vis.Vehicle = int32(vi)
	vis.Next = None
	if veh.Last == None {
		vis.Prev = None
		veh.First = v
		veh.Last = v
		return
	}
	vis.Prev = veh.Last
	m.Visits[veh.Last].Next = v
	veh.Last = v
}

// Detach removes a visit from its chain in O(1), leaving it unattached.
func (m *Model) Detach(v Ref) {
	vis := &m.Visits[v]
	if vis.Vehicle < 0 {
		return
	}
	veh := &m.Vehicles[vis.Vehicle]
	if vis.Prev != None {
		m.Visits[vis.Prev].Next = vis.Next
	} else {
		veh.First = vis.Next
	}
	if vis.Next != None {
		m.Visits[vis.Next].Prev = vis.Prev
	} else {
		veh.Last = vis.Prev
	}
	vis.Prev, vis.Next, vis.Vehicle = None, None, -1
}

// InsertAfter attaches an unattached visit into a vehicle's chain directly
// after the given visit, or at the head when after is None.
func (m *Model) InsertAfter(vi int, after, v Ref) {
	veh := &m.Vehicles[vi]
	vis := &m.Visits[v]
	vis.Vehicle = int32(vi)
	if after == None {
		vis.Prev = None
		vis.Next = veh.First
		if veh.First != None {
			m.Visits[veh.First].Prev = v
		} else {
			veh.Last = v
		}
		veh.First = v
		return
	}
	next := m.Visits[after].Next
	vis.Prev = after
	vis.Next = next
	m.Visits[after].Next = v
	if next != None {
		m.Visits[next].Prev = v
	} else {
		veh.Last = v
	}
}

// Chain returns the ordered visit handles of one vehicle's chain.
func (m *Model) Chain(vi int) []Ref {
	var out []Ref
	for v := m.Vehicles[vi].First; v != None; v = m.Visits[v].Next {
		out = append(out, v)
	}
	return out
}

// RouteOf returns one vehicle's chain as an ordered list of parcel IDs.
func (m *Model) RouteOf(vi int) []string {
	var out []string
	for v := m.Vehicles[vi].First; v != None; v = m.Visits[v].Next {
		out = append(out, m.Visits[v].Parcel)
	}
	return out
}

// ToSchedule extracts the per-vehicle parcel orders from the model by walking
// every chain. The result is independent of the model and safe to publish.
func ToSchedule(m *Model) model.Schedule {
	s := model.Schedule{SnapshotTime: m.Time}
	for vi := range m.Vehicles {
		parcels := m.RouteOf(vi)
		if parcels == nil {
			parcels = []string{}
		}
		s.Routes = append(s.Routes, model.VehicleRoute{
			VehicleID: m.Vehicles[vi].Snap.ID,
			Parcels:   parcels,
		})
	}
	return s
}
