package plan

import (
	"math"

	"pdpnav/internal/model"
)

// Score pairs a hard-constraint violation count with a soft quality cost.
// Feasible iff Hard is zero. Soft costs are only comparable between scores
// with equal Hard counts.
type Score struct {
	Hard int
	Soft float64
}

func (s Score) Feasible() bool { return s.Hard == 0 }

// Better reports whether s is strictly preferable to o: fewer violations
// first, lower cost at equal violations.
func (s Score) Better(o Score) bool {
	if s.Hard != o.Hard {
		return s.Hard < o.Hard
	}
	return s.Soft < o.Soft
}

// Evaluate walks every chain and scores the full assignment.
//
// Hard violations: a delivery of a parcel the vehicle does not hold at that
// point (precedence), load exceeding capacity at a pickup, arrival after a
// visit's time-window end, and service starting after the vehicle's shift
// end. Soft cost: total travel time plus lateness plus overtime, all in
// snapshot time units.
func Evaluate(m *Model) Score {
	var sc Score
	for vi := range m.Vehicles {
		veh := &m.Vehicles[vi]
		t := float64(m.Time)
		cur := veh.Snap.Location
		load := 0
		carried := map[string]bool{}
		for _, p := range veh.Snap.Contents {
			carried[p.ID] = true
			load += p.Demand
		}
		for v := veh.First; v != None; v = m.Visits[v].Next {
			vis := &m.Visits[v]
			p := m.parcels[vis.Parcel]

			var point = p.Pickup
			var tw = p.PickupTW
			var svc = p.PickupSvcMs
			if vis.Kind == Deliver {
				point, tw, svc = p.Delivery, p.DeliveryTW, p.DeliverSvcMs
			}

			drive := travelMs(cur, point, veh.Snap.SpeedKmh)
			sc.Soft += drive
			t += drive

			if tw.Start > 0 && t < float64(tw.Start) {
				t = float64(tw.Start)
			}
			if tw.End > 0 && t > float64(tw.End) {
				sc.Hard++
				sc.Soft += t - float64(tw.End)
			}
			if veh.Snap.Shift.End > 0 && t > float64(veh.Snap.Shift.End) {
				sc.Hard++
			}

			switch vis.Kind {
			case Pickup:
				load += p.Demand
				if veh.Snap.Capacity > 0 && load > veh.Snap.Capacity {
					sc.Hard++
				}
				carried[p.ID] = true
			case Deliver:
				if !carried[p.ID] {
					sc.Hard++
				} else {
					delete(carried, p.ID)
					load -= p.Demand
				}
			}
			t += float64(svc)
			cur = point
		}
		if veh.Snap.Shift.End > 0 && t > float64(veh.Snap.Shift.End) {
			sc.Soft += t - float64(veh.Snap.Shift.End)
		}
	}
	return sc
}

// travelMs converts a haversine leg into drive time in milliseconds.
func travelMs(a, b model.GeoPoint, speedKmh float64) float64 {
	if speedKmh <= 0 {
		speedKmh = 50
	}
	meters := haversineMeters(a.Lat, a.Lng, b.Lat, b.Lng)
	return meters / (speedKmh / 3.6) * 1000
}

func haversineMeters(lat1, lon1, lat2, lon2 float64) float64 {
	const R = 6371000.0
	dLat := (lat2 - lat1) * math.Pi / 180
	dLon := (lon2 - lon1) * math.Pi / 180
	a := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1*math.Pi/180)*math.Cos(lat2*math.Pi/180)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return R * c
}
