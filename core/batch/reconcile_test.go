package batch

import (
	"testing"
	"time"

	"github.com/ridepool/dispatch/core/model"
	"github.com/ridepool/dispatch/core/schedule"
	"github.com/ridepool/dispatch/core/solver"
	"github.com/ridepool/dispatch/core/timetable"
)

func continuityJob(req *model.Request, vehicleID string) solver.Job {
	return solver.Job{
		ID:              req.ID,
		Request:         req,
		Priority:        solver.Mandatory,
		RequiredVehicle: vehicleID,
		DeliveryOnly:    true,
		Pickup:          locA,
		Delivery:        req.Destination,
		PickupWindow:    solver.TimeWindow{Start: t0, End: t0},
		DeliveryWindow:  solver.TimeWindow{End: req.LatestArrival},
	}
}

func normalJob(req *model.Request) solver.Job {
	return solver.Job{
		ID:             req.ID,
		Request:        req,
		Priority:       solver.Optional,
		Pickup:         req.Origin,
		Delivery:       req.Destination,
		PickupWindow:   solver.TimeWindow{Start: req.EarliestPickup, End: req.LatestPickup},
		DeliveryWindow: solver.TimeWindow{End: req.LatestArrival},
	}
}

func TestReconcileSkipsOnboardPickupStops(t *testing.T) {
	r1 := request("r1", locA, locB, time.Hour, 2*time.Hour) // onboard
	r2 := request("r2", locB, locC, time.Hour, 2*time.Hour)
	jobs := map[string]solver.Job{
		"r1": continuityJob(r1, "v1"),
		"r2": normalJob(r2),
	}
	sol := solver.Solution{Routes: []solver.Route{{
		VehicleID: "v1",
		Activities: []solver.Activity{
			{JobID: "r1", Kind: solver.PickupActivity, Location: locA, Arrival: t0, Departure: t0},
			{JobID: "r1", Kind: solver.DeliverActivity, Location: locB, Arrival: t0.Add(50 * time.Second), Departure: t0.Add(50 * time.Second)},
			{JobID: "r2", Kind: solver.PickupActivity, Location: locB, Arrival: t0.Add(50 * time.Second), Departure: t0.Add(50 * time.Second)},
			{JobID: "r2", Kind: solver.DeliverActivity, Location: locC, Arrival: t0.Add(350 * time.Second), Departure: t0.Add(350 * time.Second)},
		},
	}}}

	next, _, err := Reconcile(sol, jobs, []model.VehicleSnapshot{snapshot("v1")}, nil, 0)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	seq := next.Sequence("v1")
	if seq.Len() != 3 {
		t.Fatalf("sequence length = %d, want 3 (no pickup stop for onboard passenger)", seq.Len())
	}
	if seq.At(0).Kind != timetable.DropOff || seq.At(0).Request.ID != "r1" {
		t.Errorf("first stop = %v %s, want dropoff r1", seq.At(0).Kind, seq.At(0).Request.ID)
	}
	// The onboard passenger counts toward occupancy from the start.
	if seq.At(0).OccupancyBefore != 1 {
		t.Errorf("initial occupancy = %d, want 1", seq.At(0).OccupancyBefore)
	}
	if vid, ok := next.AssignedVehicle("r1"); !ok || vid != "v1" {
		t.Errorf("r1 assignment = %q,%v, want v1", vid, ok)
	}
	if vid, ok := next.AssignedVehicle("r2"); !ok || vid != "v1" {
		t.Errorf("r2 assignment = %q,%v, want v1", vid, ok)
	}
}

func TestReconcileRejectsUnassigned(t *testing.T) {
	r1 := request("r1", locA, locB, time.Hour, 2*time.Hour)
	jobs := map[string]solver.Job{"r1": normalJob(r1)}
	sol := solver.Solution{Unassigned: []string{"r1"}}

	next, _, err := Reconcile(sol, jobs, []model.VehicleSnapshot{snapshot("v1")}, nil, 0)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if !next.Rejected("r1") {
		t.Errorf("unassigned job should surface as rejected request")
	}
	if _, ok := next.AssignedVehicle("r1"); ok {
		t.Errorf("rejected request must not stay assigned")
	}
}

func TestReconcileChecksWidenedWindowNotOriginal(t *testing.T) {
	// The request's original latest pickup has already passed, but the
	// builder widened the solver window to the realized estimate. The plan
	// must be accepted against the widened bound.
	r1 := request("r1", locA, locB, 10*time.Second, time.Hour)
	j := normalJob(r1)
	j.Priority = solver.Mandatory
	j.PickupWindow.End = t0.Add(500 * time.Second)
	jobs := map[string]solver.Job{"r1": j}

	sol := solver.Solution{Routes: []solver.Route{{
		VehicleID: "v1",
		Activities: []solver.Activity{
			{JobID: "r1", Kind: solver.PickupActivity, Location: locA, Arrival: t0.Add(400 * time.Second), Departure: t0.Add(400 * time.Second)},
			{JobID: "r1", Kind: solver.DeliverActivity, Location: locB, Arrival: t0.Add(450 * time.Second), Departure: t0.Add(450 * time.Second)},
		},
	}}}
	if _, _, err := Reconcile(sol, jobs, []model.VehicleSnapshot{snapshot("v1")}, nil, 0); err != nil {
		t.Fatalf("widened window should admit the plan: %v", err)
	}

	// Past even the widened bound the cycle must abort.
	late := solver.Solution{Routes: []solver.Route{{
		VehicleID: "v1",
		Activities: []solver.Activity{
			{JobID: "r1", Kind: solver.PickupActivity, Location: locA, Arrival: t0.Add(600 * time.Second), Departure: t0.Add(600 * time.Second)},
			{JobID: "r1", Kind: solver.DeliverActivity, Location: locB, Arrival: t0.Add(650 * time.Second), Departure: t0.Add(650 * time.Second)},
		},
	}}}
	if _, _, err := Reconcile(late, jobs, []model.VehicleSnapshot{snapshot("v1")}, nil, 0); err == nil {
		t.Fatalf("arrival past widened window end must abort the cycle")
	}
}

func TestDiversions(t *testing.T) {
	rB := request("rB", locB, locC, time.Hour, 2*time.Hour)
	rA := request("rA", locA, locC, time.Hour, 2*time.Hour)
	rA.EarliestPickup = t0.Add(10 * time.Minute)

	jobs := map[string]solver.Job{"rB": normalJob(rB), "rA": normalJob(rA)}
	sol := solver.Solution{Routes: []solver.Route{
		{VehicleID: "v1", Activities: []solver.Activity{
			{JobID: "rB", Kind: solver.PickupActivity, Location: locB, Arrival: t0.Add(50 * time.Second), Departure: t0.Add(50 * time.Second)},
			{JobID: "rB", Kind: solver.DeliverActivity, Location: locC, Arrival: t0.Add(350 * time.Second), Departure: t0.Add(350 * time.Second)},
		}},
		{VehicleID: "v3", Activities: []solver.Activity{
			{JobID: "rA", Kind: solver.PickupActivity, Location: locA, Arrival: t0.Add(10 * time.Minute), Departure: t0.Add(10 * time.Minute)},
			{JobID: "rA", Kind: solver.DeliverActivity, Location: locC, Arrival: t0.Add(15 * time.Minute), Departure: t0.Add(15 * time.Minute)},
		}},
	}}

	// v1 drives toward a new first stop, v2 lost its plan, v3 waits at its
	// pickup location for the window to open.
	rOld := request("rOld", locA, locB, time.Hour, 2*time.Hour)
	prev := schedule.New()
	prev.SetSequence("v2", timetable.NewSequence(
		&timetable.Stop{Request: rOld, Kind: timetable.Pickup, Arrival: t0, Departure: t0, Capacity: 4},
	))

	snaps := []model.VehicleSnapshot{snapshot("v1"), snapshot("v2"), snapshot("v3")}
	_, divs, err := Reconcile(sol, jobs, snaps, prev, 0)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if len(divs) != 3 {
		t.Fatalf("diversions = %+v, want 3", divs)
	}
	if divs[0].Kind != Divert || divs[0].VehicleID != "v1" || divs[0].Target != locB {
		t.Errorf("v1 diversion = %+v, want divert to B", divs[0])
	}
	if divs[1].Kind != Hold || divs[1].VehicleID != "v2" {
		t.Errorf("v2 diversion = %+v, want hold", divs[1])
	}
	if divs[2].Kind != Wait || divs[2].VehicleID != "v3" || !divs[2].Until.Equal(rA.EarliestPickup) {
		t.Errorf("v3 diversion = %+v, want wait until %v", divs[2], rA.EarliestPickup)
	}
}

func TestReconcileAbortsOnUnknownVehicle(t *testing.T) {
	sol := solver.Solution{Routes: []solver.Route{{VehicleID: "ghost"}}}
	if _, _, err := Reconcile(sol, nil, []model.VehicleSnapshot{snapshot("v1")}, nil, 0); err == nil {
		t.Fatalf("expected error for route on unknown vehicle")
	}
}
