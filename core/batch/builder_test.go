package batch

import (
	"errors"
	"testing"
	"time"

	"github.com/ridepool/dispatch/core/model"
	"github.com/ridepool/dispatch/core/schedule"
	"github.com/ridepool/dispatch/core/solver"
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

func snapshot(id string) model.VehicleSnapshot {
	return model.VehicleSnapshot{ID: id, Capacity: 4, Divertable: locA, DivertableTime: t0}
}

func TestBuildCarriesOverAssignedAndOnboard(t *testing.T) {
	b := NewBuilder(testMatrix(), 0)

	// r1 is assigned but not picked up; r2 is already onboard (drop-off only).
	r1 := request("r1", locC, locB, 100*time.Second, time.Hour)
	r2 := request("r2", locA, locB, 100*time.Second, time.Hour)
	prev := schedule.New()
	prev.SetSequence("v1", timetable.NewSequence(
		&timetable.Stop{Request: r2, Kind: timetable.DropOff, Arrival: t0.Add(50 * time.Second), Departure: t0.Add(50 * time.Second), OccupancyBefore: 1, Capacity: 4},
		&timetable.Stop{Request: r1, Kind: timetable.Pickup, Arrival: t0.Add(350 * time.Second), Departure: t0.Add(350 * time.Second), Capacity: 4},
		&timetable.Stop{Request: r1, Kind: timetable.DropOff, Arrival: t0.Add(650 * time.Second), Departure: t0.Add(650 * time.Second), OccupancyBefore: 1, Capacity: 4},
	))
	prev.Assign("r1", "v1")
	prev.Assign("r2", "v1")

	r3 := request("r3", locA, locB, 200*time.Second, time.Hour)
	p, jobs, err := b.Build(prev, []model.VehicleSnapshot{snapshot("v1")}, []*model.Request{r3}, t0)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(p.Jobs) != 3 || len(jobs) != 3 {
		t.Fatalf("jobs = %d/%d, want 3", len(p.Jobs), len(jobs))
	}

	j1 := jobs["r1"]
	if j1.Priority != solver.Mandatory || j1.DeliveryOnly {
		t.Errorf("r1 should be a mandatory pickup job, got %+v", j1)
	}
	// Retimed from the snapshot the pickup at C happens at t0+350s, later
	// than the original latest pickup: the window must widen to match.
	if want := t0.Add(350 * time.Second); !j1.PickupWindow.End.Equal(want) {
		t.Errorf("r1 pickup window end = %v, want widened %v", j1.PickupWindow.End, want)
	}
	if !j1.PickupWindow.Start.Equal(r1.EarliestPickup) {
		t.Errorf("r1 pickup window start = %v, want %v", j1.PickupWindow.Start, r1.EarliestPickup)
	}

	j2 := jobs["r2"]
	if !j2.DeliveryOnly || j2.Priority != solver.Mandatory {
		t.Errorf("r2 should be a mandatory continuity job, got %+v", j2)
	}
	if j2.RequiredVehicle != "v1" {
		t.Errorf("r2 locked to %q, want v1", j2.RequiredVehicle)
	}
	if !j2.PickupWindow.Start.Equal(t0) || !j2.PickupWindow.End.Equal(t0) {
		t.Errorf("r2 pickup window = %v, want collapsed to divertable time", j2.PickupWindow)
	}
	if j2.Pickup != locA {
		t.Errorf("r2 pickup location = %v, want divertable %v", j2.Pickup, locA)
	}

	j3 := jobs["r3"]
	if j3.Priority != solver.Optional {
		t.Errorf("r3 should be optional, got %v", j3.Priority)
	}

	// Jobs are emitted in sorted id order for deterministic solving.
	for i := 1; i < len(p.Jobs); i++ {
		if p.Jobs[i-1].ID >= p.Jobs[i].ID {
			t.Fatalf("jobs out of order: %s before %s", p.Jobs[i-1].ID, p.Jobs[i].ID)
		}
	}
}

func TestBuildTreatsExecutedPickupAsOnboard(t *testing.T) {
	b := NewBuilder(testMatrix(), 0)

	// The pickup departed before the vehicle's divertable time, so the
	// passenger is physically onboard and only the drop-off survives.
	r1 := request("r1", locA, locB, 100*time.Second, time.Hour)
	prev := schedule.New()
	prev.SetSequence("v1", timetable.NewSequence(
		&timetable.Stop{Request: r1, Kind: timetable.Pickup, Arrival: t0, Departure: t0.Add(30 * time.Second), Capacity: 4},
		&timetable.Stop{Request: r1, Kind: timetable.DropOff, Arrival: t0.Add(80 * time.Second), Departure: t0.Add(110 * time.Second), OccupancyBefore: 1, Capacity: 4},
	))
	prev.Assign("r1", "v1")

	snap := snapshot("v1")
	snap.DivertableTime = t0.Add(40 * time.Second)
	p, jobs, err := b.Build(prev, []model.VehicleSnapshot{snap}, nil, t0.Add(40*time.Second))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(p.Jobs) != 1 {
		t.Fatalf("jobs = %d, want only the remaining drop-off obligation", len(p.Jobs))
	}
	j1 := jobs["r1"]
	if !j1.DeliveryOnly || j1.Priority != solver.Mandatory {
		t.Errorf("r1 should be a mandatory continuity job, got %+v", j1)
	}
	if j1.RequiredVehicle != "v1" {
		t.Errorf("r1 locked to %q, want the carrying vehicle v1", j1.RequiredVehicle)
	}
	if j1.Pickup != locA || !j1.PickupWindow.Start.Equal(snap.DivertableTime) {
		t.Errorf("r1 must start from the divertable state, got %+v", j1)
	}
}

func TestBuildRetiresFullyServedRequests(t *testing.T) {
	b := NewBuilder(testMatrix(), 0)

	// Both stops departed before the divertable time: nothing left to plan.
	r1 := request("r1", locA, locB, 100*time.Second, time.Hour)
	prev := schedule.New()
	prev.SetSequence("v1", timetable.NewSequence(
		&timetable.Stop{Request: r1, Kind: timetable.Pickup, Arrival: t0, Departure: t0.Add(30 * time.Second), Capacity: 4},
		&timetable.Stop{Request: r1, Kind: timetable.DropOff, Arrival: t0.Add(80 * time.Second), Departure: t0.Add(110 * time.Second), OccupancyBefore: 1, Capacity: 4},
	))
	prev.Assign("r1", "v1")

	snap := snapshot("v1")
	snap.Divertable = locB
	snap.DivertableTime = t0.Add(150 * time.Second)
	p, jobs, err := b.Build(prev, []model.VehicleSnapshot{snap}, nil, t0.Add(150*time.Second))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(p.Jobs) != 0 || len(jobs) != 0 {
		t.Fatalf("served request still in the problem: %+v", p.Jobs)
	}
}

func TestBuildFailsOnMissingSnapshot(t *testing.T) {
	b := NewBuilder(testMatrix(), 0)
	r1 := request("r1", locA, locB, 100*time.Second, time.Hour)
	prev := schedule.New()
	prev.SetSequence("ghost", timetable.NewSequence(
		&timetable.Stop{Request: r1, Kind: timetable.Pickup, Arrival: t0, Departure: t0, Capacity: 4},
	))

	_, _, err := b.Build(prev, []model.VehicleSnapshot{snapshot("v1")}, nil, t0)
	if !errors.Is(err, ErrMissingSnapshot) {
		t.Fatalf("err = %v, want ErrMissingSnapshot", err)
	}
}

func TestBuildSkipsDuplicateNewRequests(t *testing.T) {
	b := NewBuilder(testMatrix(), 0)
	r1 := request("r1", locA, locB, 100*time.Second, time.Hour)
	prev := schedule.New()
	prev.SetSequence("v1", timetable.NewSequence(
		&timetable.Stop{Request: r1, Kind: timetable.Pickup, Arrival: t0.Add(10 * time.Second), Departure: t0.Add(10 * time.Second), Capacity: 4},
		&timetable.Stop{Request: r1, Kind: timetable.DropOff, Arrival: t0.Add(60 * time.Second), Departure: t0.Add(60 * time.Second), OccupancyBefore: 1, Capacity: 4},
	))

	p, jobs, err := b.Build(prev, []model.VehicleSnapshot{snapshot("v1")}, []*model.Request{r1}, t0)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(p.Jobs) != 1 {
		t.Fatalf("jobs = %d, want 1 (carried-over r1 wins over the duplicate)", len(p.Jobs))
	}
	if jobs["r1"].Priority != solver.Mandatory {
		t.Errorf("carried-over job lost its priority: %v", jobs["r1"].Priority)
	}
}

func TestBuildVehiclesSortedWithSnapshotState(t *testing.T) {
	b := NewBuilder(testMatrix(), 0)
	s1 := snapshot("v2")
	s2 := snapshot("v1")
	s2.ServiceEnd = t0.Add(time.Hour)

	p, _, err := b.Build(nil, []model.VehicleSnapshot{s1, s2}, nil, t0)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(p.Vehicles) != 2 || p.Vehicles[0].ID != "v1" || p.Vehicles[1].ID != "v2" {
		t.Fatalf("vehicles not sorted: %+v", p.Vehicles)
	}
	if !p.Vehicles[0].LatestEnd.Equal(t0.Add(time.Hour)) {
		t.Errorf("service end not carried: %v", p.Vehicles[0].LatestEnd)
	}
	if p.Vehicles[0].Start != locA || !p.Vehicles[0].EarliestStart.Equal(t0) {
		t.Errorf("divertable state not carried: %+v", p.Vehicles[0])
	}
}

func TestBuildRejectsInvalidSnapshot(t *testing.T) {
	b := NewBuilder(testMatrix(), 0)
	bad := model.VehicleSnapshot{ID: "v1", Capacity: 0}
	if _, _, err := b.Build(nil, []model.VehicleSnapshot{bad}, nil, t0); err == nil {
		t.Fatalf("expected error for zero-capacity snapshot")
	}
}
