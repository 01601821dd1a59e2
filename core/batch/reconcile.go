package batch

import (
	"fmt"
	"sort"
	"time"

	"github.com/ridepool/dispatch/core/model"
	"github.com/ridepool/dispatch/core/schedule"
	"github.com/ridepool/dispatch/core/solver"
	"github.com/ridepool/dispatch/core/timetable"
)

// DiversionKind classifies the instruction handed to the task executor.
type DiversionKind int

const (
	// Divert redirects the vehicle to a new first destination.
	Divert DiversionKind = iota
	// Hold tells a vehicle with no remaining obligations to stay in place.
	Hold
	// Wait tells a vehicle already at its first stop location to idle there
	// until the stop's earliest start.
	Wait
)

func (k DiversionKind) String() string {
	switch k {
	case Hold:
		return "hold"
	case Wait:
		return "wait"
	}
	return "divert"
}

// Diversion is one per-vehicle instruction produced by reconciliation.
type Diversion struct {
	Kind      DiversionKind
	VehicleID string
	Target    model.Location
	From      time.Time
	Until     time.Time
}

// Reconcile converts a solved plan back into a fleet schedule and decides
// which in-progress vehicle tasks must be diverted. Any job the solver left
// unassigned becomes a rejected request. A structurally invalid route is a
// defect and aborts the cycle.
func Reconcile(sol solver.Solution, jobs map[string]solver.Job, snaps []model.VehicleSnapshot, prev *schedule.FleetSchedule, service time.Duration) (*schedule.FleetSchedule, []Diversion, error) {
	byID := make(map[string]model.VehicleSnapshot, len(snaps))
	for _, s := range snaps {
		byID[s.ID] = s
	}

	next := schedule.New()
	for _, route := range sol.Routes {
		snap, ok := byID[route.VehicleID]
		if !ok {
			return nil, nil, fmt.Errorf("batch: solution references unknown vehicle %s", route.VehicleID)
		}
		seq, err := routeToSequence(route, jobs, snap, service)
		if err != nil {
			return nil, nil, err
		}
		next.SetSequence(route.VehicleID, seq)
		for _, act := range route.Activities {
			job := jobs[act.JobID]
			if act.Kind == solver.PickupActivity || job.DeliveryOnly {
				next.Assign(job.Request.ID, route.VehicleID)
			}
		}
	}
	for _, jobID := range sol.Unassigned {
		job, ok := jobs[jobID]
		if !ok {
			return nil, nil, fmt.Errorf("batch: solution dropped unknown job %s", jobID)
		}
		next.Reject(job.Request.ID)
	}

	return next, diversions(next, prev, snaps), nil
}

// routeToSequence maps solver activities onto timetable stops, tracking the
// running occupancy. Continuity jobs contribute no pickup stop: their
// passengers are onboard from the start.
func routeToSequence(route solver.Route, jobs map[string]solver.Job, snap model.VehicleSnapshot, service time.Duration) (timetable.Sequence, error) {
	occ := 0
	for _, act := range route.Activities {
		if jobs[act.JobID].DeliveryOnly {
			occ++
		}
	}
	stops := make([]*timetable.Stop, 0, len(route.Activities))
	for _, act := range route.Activities {
		job, ok := jobs[act.JobID]
		if !ok {
			return timetable.Sequence{}, fmt.Errorf("batch: route for %s references unknown job %s", route.VehicleID, act.JobID)
		}
		if act.Kind == solver.PickupActivity && job.DeliveryOnly {
			// Already onboard before this cycle; the pickup happened.
			continue
		}
		kind := timetable.Pickup
		window := job.PickupWindow
		if act.Kind == solver.DeliverActivity {
			kind = timetable.DropOff
			window = job.DeliveryWindow
		}
		// Deadlines are checked against the (possibly widened) solver
		// window, not the original request window: a bound already missed
		// in execution must not invalidate the plan that carries it.
		if !window.End.IsZero() && act.Arrival.After(window.End) {
			return timetable.Sequence{}, fmt.Errorf("batch: route for %s serves job %s at %v past window end %v",
				route.VehicleID, job.ID, act.Arrival, window.End)
		}
		stops = append(stops, &timetable.Stop{
			Request:         job.Request,
			Kind:            kind,
			Arrival:         act.Arrival,
			Departure:       act.Departure,
			OccupancyBefore: occ,
			Service:         service,
			Capacity:        snap.Capacity,
		})
		if kind == timetable.Pickup {
			occ++
		} else {
			occ--
		}
	}
	seq := timetable.NewSequence(stops...)
	if err := seq.ValidateOccupancy(); err != nil {
		return timetable.Sequence{}, fmt.Errorf("batch: route for %s broke sequence invariants: %w", route.VehicleID, err)
	}
	return seq, nil
}

// diversions compares each vehicle's new first destination against its old
// one and emits the executor instruction when they differ.
func diversions(next, prev *schedule.FleetSchedule, snaps []model.VehicleSnapshot) []Diversion {
	sorted := make([]model.VehicleSnapshot, len(snaps))
	copy(sorted, snaps)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	var out []Diversion
	for _, snap := range sorted {
		newSeq := next.Sequence(snap.ID)
		var oldSeq timetable.Sequence
		if prev != nil {
			oldSeq = prev.Sequence(snap.ID)
		}
		if newSeq.Empty() {
			if !oldSeq.Empty() {
				out = append(out, Diversion{Kind: Hold, VehicleID: snap.ID, From: snap.DivertableTime})
			}
			continue
		}
		first := newSeq.At(0)
		target := first.Location()
		if target == snap.Divertable {
			if first.Kind == timetable.Pickup && snap.DivertableTime.Before(first.Request.EarliestPickup) {
				out = append(out, Diversion{
					Kind:      Wait,
					VehicleID: snap.ID,
					Target:    target,
					From:      snap.DivertableTime,
					Until:     first.Request.EarliestPickup,
				})
			}
			continue
		}
		if oldSeq.Empty() || oldSeq.At(0).Location() != target {
			out = append(out, Diversion{Kind: Divert, VehicleID: snap.ID, Target: target, From: snap.DivertableTime})
		}
	}
	return out
}
