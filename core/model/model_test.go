package model

import (
	"math"
	"testing"
	"time"
)

func TestDistanceTo(t *testing.T) {
	paris := Location{Lat: 48.8566, Lon: 2.3522}
	lyon := Location{Lat: 45.7640, Lon: 4.8357}
	got := paris.DistanceTo(lyon)
	// Great-circle Paris-Lyon is about 392 km.
	if math.Abs(got-392000) > 5000 {
		t.Errorf("distance = %.0fm, want about 392km", got)
	}
	if paris.DistanceTo(paris) != 0 {
		t.Errorf("distance to self must be zero")
	}
}

func TestRequestValidate(t *testing.T) {
	t0 := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	ok := Request{ID: "r1", EarliestPickup: t0, LatestPickup: t0.Add(time.Minute), LatestArrival: t0.Add(time.Hour)}
	if err := ok.Validate(); err != nil {
		t.Errorf("valid request rejected: %v", err)
	}

	cases := []Request{
		{EarliestPickup: t0, LatestPickup: t0.Add(time.Minute), LatestArrival: t0.Add(time.Hour)},           // no id
		{ID: "r1", EarliestPickup: t0.Add(time.Hour), LatestPickup: t0, LatestArrival: t0.Add(2 * time.Hour)}, // window inverted
		{ID: "r1", EarliestPickup: t0, LatestPickup: t0.Add(time.Hour), LatestArrival: t0},                     // arrival before pickup
	}
	for i, r := range cases {
		if err := r.Validate(); err == nil {
			t.Errorf("case %d: invalid request accepted", i)
		}
	}
}

func TestVehicleSnapshotValidate(t *testing.T) {
	ok := VehicleSnapshot{ID: "v1", Capacity: 4}
	if err := ok.Validate(); err != nil {
		t.Errorf("valid snapshot rejected: %v", err)
	}
	if err := (VehicleSnapshot{Capacity: 4}).Validate(); err == nil {
		t.Errorf("snapshot without id accepted")
	}
	if err := (VehicleSnapshot{ID: "v1"}).Validate(); err == nil {
		t.Errorf("zero-capacity snapshot accepted")
	}
}
