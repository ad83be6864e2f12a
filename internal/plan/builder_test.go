package plan

import (
	"errors"
	"reflect"
	"testing"

	"pdpnav/internal/model"
)

func parcel(id string) model.Parcel {
	return model.Parcel{
		ID:       id,
		Pickup:   model.GeoPoint{Lat: 0, Lng: 0},
		Delivery: model.GeoPoint{Lat: 0.001, Lng: 0.001},
	}
}

func TestBuildRejectsMissingRoute(t *testing.T) {
	snap := model.WorldSnapshot{
		Time:      0,
		Available: []model.Parcel{parcel("p1")},
		Vehicles: []model.VehicleSnapshot{
			{ID: "v1", HasRoute: true},
			{ID: "v2"}, // route unknown
		},
	}
	_, err := Build(snap)
	var mre *MissingRouteError
	if !errors.As(err, &mre) {
		t.Fatalf("want MissingRouteError, got %v", err)
	}
	if mre.VehicleID != "v2" {
		t.Fatalf("vehicle: got %s", mre.VehicleID)
	}
}

func TestBuildSeedsUnassignedOnFirstVehicle(t *testing.T) {
	snap := model.WorldSnapshot{
		Available: []model.Parcel{parcel("p1"), parcel("p2")},
		Vehicles: []model.VehicleSnapshot{
			{ID: "v1", HasRoute: true},
			{ID: "v2", HasRoute: true},
		},
	}
	m, err := Build(snap)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	// Unrouted parcels land on the first vehicle, pickup then delivery.
	want := []string{"p1", "p2", "p1", "p2"}
	if got := m.RouteOf(0); !reflect.DeepEqual(got, want) {
		t.Fatalf("v1 chain: got %v, want %v", got, want)
	}
	if got := m.RouteOf(1); len(got) != 0 {
		t.Fatalf("v2 chain should be empty, got %v", got)
	}
	// Every pickup is linked to its sibling delivery.
	for i := range m.Visits {
		if m.Visits[i].Sibling == None {
			t.Fatalf("visit %d has no sibling", i)
		}
	}
}

func TestBuildPreservesRouteOrder(t *testing.T) {
	snap := model.WorldSnapshot{
		Available: []model.Parcel{parcel("p1"), parcel("p2")},
		Vehicles: []model.VehicleSnapshot{
			{ID: "v1", HasRoute: true, Route: []string{"p2", "p1", "p1", "p2"}},
		},
	}
	m, err := Build(snap)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if got := m.RouteOf(0); !reflect.DeepEqual(got, []string{"p2", "p1", "p1", "p2"}) {
		t.Fatalf("chain: got %v", got)
	}
	// First occurrence is the pickup, second the delivery.
	chain := m.Chain(0)
	if m.Visits[chain[0]].Kind != Pickup || m.Visits[chain[3]].Kind != Deliver {
		t.Fatalf("kinds: %v %v", m.Visits[chain[0]].Kind, m.Visits[chain[3]].Kind)
	}
}

func TestBuildCarriedParcelDeliveryOnly(t *testing.T) {
	p1 := parcel("p1")
	snap := model.WorldSnapshot{
		Vehicles: []model.VehicleSnapshot{
			{ID: "v1", HasRoute: true, Route: []string{"p1"}, Contents: []model.Parcel{p1}},
		},
	}
	m, err := Build(snap)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	chain := m.Chain(0)
	if len(chain) != 1 {
		t.Fatalf("chain length: got %d", len(chain))
	}
	v := m.Visits[chain[0]]
	if v.Kind != Deliver || v.Parcel != "p1" {
		t.Fatalf("want delivery of p1, got %+v", v)
	}
	// A carried parcel's delivery has no sibling; it is not movable.
	if v.Sibling != None {
		t.Fatalf("carried delivery should have no sibling")
	}
}

func TestBuildRoundTripsThroughSchedule(t *testing.T) {
	snap := model.WorldSnapshot{
		Time:      7,
		Available: []model.Parcel{parcel("p1"), parcel("p2")},
		Vehicles: []model.VehicleSnapshot{
			{ID: "v1", HasRoute: true, Route: []string{"p1", "p1"}},
			{ID: "v2", HasRoute: true, Route: []string{"p2", "p2"}},
		},
	}
	m, err := Build(snap)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	s := ToSchedule(m)
	if got := s.RouteFor("v1"); !reflect.DeepEqual(got, []string{"p1", "p1"}) {
		t.Fatalf("v1: got %v", got)
	}
	if got := s.RouteFor("v2"); !reflect.DeepEqual(got, []string{"p2", "p2"}) {
		t.Fatalf("v2: got %v", got)
	}
}
