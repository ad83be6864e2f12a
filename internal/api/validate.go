package api

import (
	"fmt"

	"pdpnav/internal/model"
)

func validateSnapshot(snap *model.WorldSnapshot) error {
	if snap.Time < 0 {
		return fmt.Errorf("time must be >= 0")
	}
	if len(snap.Vehicles) == 0 {
		return fmt.Errorf("snapshot must contain at least one vehicle")
	}
	seen := map[string]struct{}{}
	for _, p := range snap.Available {
		if p.ID == "" {
			return fmt.Errorf("parcel with empty id")
		}
		if _, dup := seen[p.ID]; dup {
			return fmt.Errorf("duplicate parcel id: %s", p.ID)
		}
		seen[p.ID] = struct{}{}
	}
	vseen := map[string]struct{}{}
	for _, v := range snap.Vehicles {
		if v.ID == "" {
			return fmt.Errorf("vehicle with empty id")
		}
		if _, dup := vseen[v.ID]; dup {
			return fmt.Errorf("duplicate vehicle id: %s", v.ID)
		}
		vseen[v.ID] = struct{}{}
		if v.SpeedKmh < 0 {
			return fmt.Errorf("vehicle %s: speedKmh must be >= 0", v.ID)
		}
		if !v.HasRoute && len(v.Route) > 0 {
			return fmt.Errorf("vehicle %s: route given but hasRoute is false", v.ID)
		}
	}
	return nil
}
