package schedule

import (
	"testing"
	"time"

	"github.com/ridepool/dispatch/core/model"
	"github.com/ridepool/dispatch/core/timetable"
)

func TestAssignRejectRoundTrip(t *testing.T) {
	s := New()
	s.Assign("r1", "v1")
	if vid, ok := s.AssignedVehicle("r1"); !ok || vid != "v1" {
		t.Fatalf("assignment = (%s, %v), want (v1, true)", vid, ok)
	}

	s.Reject("r1")
	if _, ok := s.AssignedVehicle("r1"); ok {
		t.Errorf("rejection must clear the assignment")
	}
	if !s.Rejected("r1") {
		t.Errorf("rejection not recorded")
	}

	// Re-assignment clears the rejection again.
	s.Assign("r1", "v2")
	if s.Rejected("r1") {
		t.Errorf("assignment must clear the rejection")
	}
}

func TestVehicleIDsSorted(t *testing.T) {
	s := New()
	for _, id := range []string{"v3", "v1", "v2"} {
		s.SetSequence(id, timetable.Sequence{})
	}
	got := s.VehicleIDs()
	want := []string{"v1", "v2", "v3"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("ids = %v, want %v", got, want)
		}
	}
}

func TestCloneIsIndependent(t *testing.T) {
	req := &model.Request{ID: "r1", LatestPickup: time.Now(), LatestArrival: time.Now()}
	s := New()
	s.SetSequence("v1", timetable.NewSequence(&timetable.Stop{Request: req, Kind: timetable.Pickup, Capacity: 4}))
	s.Assign("r1", "v1")

	cp := s.Clone()
	cp.Reject("r1")
	cp.SetSequence("v1", timetable.Sequence{})

	if _, ok := s.AssignedVehicle("r1"); !ok {
		t.Errorf("mutating the clone changed the original assignment")
	}
	if s.Sequence("v1").Len() != 1 {
		t.Errorf("mutating the clone changed the original sequence")
	}
}
