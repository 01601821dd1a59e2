package insertion

import (
	"testing"
	"time"

	"github.com/ridepool/dispatch/core/model"
	"github.com/ridepool/dispatch/core/schedule"
	"github.com/ridepool/dispatch/core/timetable"
	"github.com/ridepool/dispatch/core/travel"
)

var (
	t0   = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	locA = model.Location{Lat: 0, Lon: 0}
	locB = model.Location{Lat: 0, Lon: 1}
	locC = model.Location{Lat: 1, Lon: 0}
)

func testMatrix() *travel.Matrix {
	m := travel.NewMatrix()
	m.Set(locA, locB, 50*time.Second)
	m.Set(locA, locC, 300*time.Second)
	m.Set(locB, locC, 300*time.Second)
	return m
}

func request(id string, from, to model.Location, latestPickup, latestArrival time.Duration) *model.Request {
	return &model.Request{
		ID:             id,
		Origin:         from,
		Destination:    to,
		EarliestPickup: t0,
		LatestPickup:   t0.Add(latestPickup),
		LatestArrival:  t0.Add(latestArrival),
	}
}

func idleVehicle(id string, capacity int) model.VehicleSnapshot {
	return model.VehicleSnapshot{ID: id, Capacity: capacity, Divertable: locA, DivertableTime: t0}
}

func TestInsertIntoIdleVehicle(t *testing.T) {
	in := New(testMatrix(), 0, PruneOnDeadline)
	sched := schedule.New()
	req := request("r1", locA, locB, 100*time.Second, 500*time.Second)

	vid, ok := in.Insert(req, sched, []model.VehicleSnapshot{idleVehicle("v1", 1)})
	if !ok {
		t.Fatalf("insertion should succeed")
	}
	if vid != "v1" {
		t.Fatalf("vehicle = %s, want v1", vid)
	}
	seq := sched.Sequence("v1")
	if seq.Len() != 2 {
		t.Fatalf("sequence length = %d, want 2", seq.Len())
	}
	if seq.At(0).Kind != timetable.Pickup || seq.At(0).Arrival != t0 {
		t.Errorf("pickup = %v at %v, want pickup at %v", seq.At(0).Kind, seq.At(0).Arrival, t0)
	}
	if seq.At(1).Kind != timetable.DropOff || seq.At(1).Arrival != t0.Add(50*time.Second) {
		t.Errorf("dropoff = %v at %v, want dropoff at %v", seq.At(1).Kind, seq.At(1).Arrival, t0.Add(50*time.Second))
	}
	if got, _ := sched.AssignedVehicle("r1"); got != "v1" {
		t.Errorf("assignment = %s, want v1", got)
	}
}

func TestRejectionLeavesScheduleUntouched(t *testing.T) {
	in := New(testMatrix(), 0, PruneOnDeadline)
	sched := schedule.New()
	snaps := []model.VehicleSnapshot{idleVehicle("v1", 1)}

	if _, ok := in.Insert(request("r1", locA, locB, 100*time.Second, 500*time.Second), sched, snaps); !ok {
		t.Fatalf("first insertion should succeed")
	}
	before := sched.Sequence("v1")

	// A second rider toward C cannot fit: the only capacity-feasible pickup
	// position delays the first rider past their pickup deadline.
	r2 := request("r2", locA, locC, 40*time.Second, 400*time.Second)
	if _, ok := in.Insert(r2, sched, snaps); ok {
		t.Fatalf("insertion should fail on a full vehicle")
	}
	after := sched.Sequence("v1")
	if after.Len() != before.Len() {
		t.Fatalf("rejected insertion changed the sequence")
	}
	for i := 0; i < after.Len(); i++ {
		if after.At(i) != before.At(i) {
			t.Errorf("stop %d changed on rejection", i)
		}
	}
}

func TestPoolingSharedRide(t *testing.T) {
	in := New(testMatrix(), 0, PruneOnDeadline)
	sched := schedule.New()
	snaps := []model.VehicleSnapshot{idleVehicle("v1", 2)}

	if _, ok := in.Insert(request("r1", locA, locB, time.Hour, 2*time.Hour), sched, snaps); !ok {
		t.Fatalf("first insertion should succeed")
	}
	// Same corridor, seats available: the second rider shares the vehicle.
	vid, ok := in.Insert(request("r2", locA, locB, time.Hour, 2*time.Hour), sched, snaps)
	if !ok {
		t.Fatalf("pooled insertion should succeed")
	}
	if vid != "v1" {
		t.Fatalf("vehicle = %s, want v1", vid)
	}
	seq := sched.Sequence("v1")
	if seq.Len() != 4 {
		t.Fatalf("sequence length = %d, want 4", seq.Len())
	}
	if err := seq.ValidateOccupancy(); err != nil {
		t.Fatalf("occupancy invariant broken: %v", err)
	}
	if err := seq.Validate(); err != nil {
		t.Fatalf("deadline invariant broken: %v", err)
	}
}

func TestDeterministicTieBreak(t *testing.T) {
	in := New(testMatrix(), 0, PruneOnDeadline)
	req := request("r1", locA, locB, 100*time.Second, 500*time.Second)
	// Identical idle vehicles given in reverse order: the lower id wins.
	snaps := []model.VehicleSnapshot{idleVehicle("v2", 1), idleVehicle("v1", 1)}

	for i := 0; i < 5; i++ {
		sched := schedule.New()
		vid, ok := in.Insert(req, sched, snaps)
		if !ok {
			t.Fatalf("insertion should succeed")
		}
		if vid != "v1" {
			t.Fatalf("run %d: vehicle = %s, want v1", i, vid)
		}
	}
}

func TestServiceEndRejectsLateFinish(t *testing.T) {
	in := New(testMatrix(), 0, PruneOnDeadline)
	sched := schedule.New()
	snap := idleVehicle("v1", 1)
	snap.ServiceEnd = t0.Add(30 * time.Second) // shift ends before the drop-off

	if _, ok := in.Insert(request("r1", locA, locB, 100*time.Second, 500*time.Second), sched, []model.VehicleSnapshot{snap}); ok {
		t.Fatalf("insertion past service end should fail")
	}
}

func TestExhaustiveMatchesPrunedOnMonotoneEstimator(t *testing.T) {
	req := request("r1", locA, locB, 100*time.Second, 500*time.Second)
	for _, strategy := range []PruneStrategy{PruneOnDeadline, ExhaustivePositions} {
		in := New(testMatrix(), 0, strategy)
		sched := schedule.New()
		snaps := []model.VehicleSnapshot{idleVehicle("v1", 2)}
		if _, ok := in.Insert(request("r0", locA, locB, time.Hour, 2*time.Hour), sched, snaps); !ok {
			t.Fatalf("seed insertion should succeed")
		}
		vid, ok := in.Insert(req, sched, snaps)
		if !ok || vid != "v1" {
			t.Fatalf("strategy %d: got (%s, %v), want (v1, true)", strategy, vid, ok)
		}
	}
}

func TestServiceDurationDelaysDropOff(t *testing.T) {
	in := New(testMatrix(), 30*time.Second, PruneOnDeadline)
	sched := schedule.New()
	req := request("r1", locA, locB, 100*time.Second, 500*time.Second)

	if _, ok := in.Insert(req, sched, []model.VehicleSnapshot{idleVehicle("v1", 1)}); !ok {
		t.Fatalf("insertion should succeed")
	}
	seq := sched.Sequence("v1")
	// Pickup departs after 30s of boarding; the drive takes 50s.
	if want := t0.Add(80 * time.Second); seq.At(1).Arrival != want {
		t.Errorf("dropoff arrival = %v, want %v", seq.At(1).Arrival, want)
	}
}
