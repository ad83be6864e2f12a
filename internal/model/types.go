package model

// Core domain types shared by the builder, coordinator and API layers.

// Units declares the measurement system a snapshot was expressed in. The
// coordinator rejects snapshots whose units differ from its configured units.
type Units struct {
	Time     string `json:"time"`
	Speed    string `json:"speed"`
	Distance string `json:"distance"`
}

// DefaultUnits matches the host simulation: milliseconds, km/h, kilometers.
func DefaultUnits() Units {
	return Units{Time: "ms", Speed: "km/h", Distance: "km"}
}

type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// TimeWindow is an inclusive [Start, End] window in snapshot time units.
type TimeWindow struct {
	Start int64 `json:"start"`
	End   int64 `json:"end"`
}

// Parcel is one pickup-and-delivery order.
type Parcel struct {
	ID           string     `json:"id"`
	Pickup       GeoPoint   `json:"pickup"`
	Delivery     GeoPoint   `json:"delivery"`
	PickupTW     TimeWindow `json:"pickupTw"`
	DeliveryTW   TimeWindow `json:"deliveryTw"`
	PickupSvcMs  int64      `json:"pickupSvcMs,omitempty"`
	DeliverSvcMs int64      `json:"deliverSvcMs,omitempty"`
	Demand       int        `json:"demand,omitempty"`
}

// VehicleSnapshot is one vehicle's state inside a WorldSnapshot.
//
// Contents holds parcels already picked up (only their deliveries remain).
// Destination is the ID of the parcel the vehicle has committed to service
// next, or empty. Route is the vehicle's known current route as an ordered
// list of parcel IDs; a parcel appears twice when both its pickup and
// delivery are still planned. HasRoute distinguishes an empty route from an
// unknown one.
type VehicleSnapshot struct {
	ID          string     `json:"id"`
	Location    GeoPoint   `json:"location"`
	SpeedKmh    float64    `json:"speedKmh"`
	Capacity    int        `json:"capacity,omitempty"`
	Shift       TimeWindow `json:"shift"`
	Contents    []Parcel   `json:"contents,omitempty"`
	Destination string     `json:"destination,omitempty"`
	Route       []string   `json:"route,omitempty"`
	HasRoute    bool       `json:"hasRoute"`
}

// ContainsParcel reports whether the vehicle's contents include the parcel.
func (v VehicleSnapshot) ContainsParcel(id string) bool {
	for _, p := range v.Contents {
		if p.ID == id {
			return true
		}
	}
	return false
}

// WorldSnapshot is an immutable, timestamped view of the world.
type WorldSnapshot struct {
	Time      int64             `json:"time"`
	Units     Units             `json:"units"`
	Available []Parcel          `json:"available"`
	Vehicles  []VehicleSnapshot `json:"vehicles"`
}

// VehicleRoute is one vehicle's segment of a published schedule.
type VehicleRoute struct {
	VehicleID string   `json:"vehicleId"`
	Parcels   []string `json:"parcels"`
}

// Schedule is a full assignment published by the coordinator. Updates are
// idempotent replacements, never deltas.
type Schedule struct {
	ID           string         `json:"id,omitempty"`
	SnapshotTime int64          `json:"snapshotTime"`
	Cost         float64        `json:"cost"`
	Routes       []VehicleRoute `json:"routes"`
}

// RouteFor returns the schedule segment for one vehicle, or nil.
func (s Schedule) RouteFor(vehicleID string) []string {
	for _, r := range s.Routes {
		if r.VehicleID == vehicleID {
			return r.Parcels
		}
	}
	return nil
}
