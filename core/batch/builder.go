// Package batch implements the periodic re-optimization path: it rebuilds a
// pickup-and-delivery problem from the live fleet state, hands it to a
// solver and reconciles the solved plan against vehicles that are already
// executing tasks.
package batch

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/ridepool/dispatch/core/model"
	"github.com/ridepool/dispatch/core/schedule"
	"github.com/ridepool/dispatch/core/solver"
	"github.com/ridepool/dispatch/core/timetable"
	"github.com/ridepool/dispatch/core/travel"
)

// ErrMissingSnapshot is returned when the previous schedule references a
// vehicle without a current snapshot. The builder cannot continue safely
// without a live location and time for every fleet member.
var ErrMissingSnapshot = errors.New("batch: vehicle in previous schedule has no snapshot")

// Builder translates fleet state plus newly-due requests into a solver
// problem instance.
type Builder struct {
	est     travel.Estimator
	service time.Duration
}

// NewBuilder returns a Builder using the given travel estimator and
// per-stop service duration.
func NewBuilder(est travel.Estimator, service time.Duration) *Builder {
	return &Builder{est: est, service: service}
}

// Build constructs the problem for one cycle. prev may be nil on the very
// first cycle. The returned map resolves solver job identifiers back to
// their jobs. Objective, iteration limit and seed are left for the caller.
func (b *Builder) Build(prev *schedule.FleetSchedule, snaps []model.VehicleSnapshot, newRequests []*model.Request, now time.Time) (solver.Problem, map[string]solver.Job, error) {
	byID := make(map[string]model.VehicleSnapshot, len(snaps))
	for _, s := range snaps {
		if err := s.Validate(); err != nil {
			return solver.Problem{}, nil, err
		}
		byID[s.ID] = s
	}

	p := solver.Problem{Vehicles: make([]solver.VehicleSpec, len(snaps))}
	sorted := make([]model.VehicleSnapshot, len(snaps))
	copy(sorted, snaps)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })
	for i, s := range sorted {
		p.Vehicles[i] = solver.VehicleSpec{
			ID:            s.ID,
			Start:         s.Divertable,
			EarliestStart: s.DivertableTime,
			LatestEnd:     s.ServiceEnd,
			Capacity:      s.Capacity,
		}
	}

	jobs := make(map[string]solver.Job)
	if prev != nil {
		for _, vid := range prev.VehicleIDs() {
			seq := prev.Sequence(vid)
			if seq.Empty() {
				continue
			}
			snap, ok := byID[vid]
			if !ok {
				return solver.Problem{}, nil, fmt.Errorf("%w: %s", ErrMissingSnapshot, vid)
			}
			for _, job := range b.carryOverJobs(seq, snap) {
				jobs[job.ID] = job
				p.Jobs = append(p.Jobs, job)
			}
		}
	}
	for _, req := range newRequests {
		if _, dup := jobs[req.ID]; dup {
			continue
		}
		job := solver.Job{
			ID:             req.ID,
			Request:        req,
			Priority:       solver.Optional,
			Pickup:         req.Origin,
			Delivery:       req.Destination,
			PickupWindow:   solver.TimeWindow{Start: req.EarliestPickup, End: req.LatestPickup},
			DeliveryWindow: solver.TimeWindow{End: req.LatestArrival},
			Service:        b.service,
		}
		jobs[job.ID] = job
		p.Jobs = append(p.Jobs, job)
	}
	sort.Slice(p.Jobs, func(i, j int) bool { return p.Jobs[i].ID < p.Jobs[j].ID })
	return p, jobs, nil
}

// carryOverJobs re-emits the obligations of one vehicle's old sequence.
// Stops executed by the snapshot's divertable time are replayed first: a
// request whose drop-off already happened is retired from the problem, a
// request whose pickup happened but whose drop-off has not is onboard and
// survives only as a pinned continuity job. The remainder is retimed from
// the vehicle's divertable state so that realized time estimates can widen
// original windows: replanning must never retroactively invalidate a bound
// that was already met.
func (b *Builder) carryOverJobs(seq timetable.Sequence, snap model.VehicleSnapshot) []solver.Job {
	remaining := seq.TrimExecuted(snap.DivertableTime)
	if remaining.Empty() {
		return nil
	}
	retimed := remaining.Retime(snap.Divertable, snap.DivertableTime, b.est)

	type trace struct {
		pickupAt  time.Time
		dropAt    time.Time
		hasPickup bool
	}
	traces := make(map[string]*trace)
	order := make([]string, 0, retimed.Len())
	for i := 0; i < retimed.Len(); i++ {
		st := retimed.At(i)
		tr, seen := traces[st.Request.ID]
		if !seen {
			tr = &trace{}
			traces[st.Request.ID] = tr
			order = append(order, st.Request.ID)
		}
		if st.Kind == timetable.Pickup {
			tr.hasPickup = true
			tr.pickupAt = st.Arrival
		} else {
			tr.dropAt = st.Arrival
		}
	}

	var out []solver.Job
	for _, id := range order {
		tr := traces[id]
		req := requestIn(retimed, id)
		deliveryEnd := laterOf(req.LatestArrival, tr.dropAt)
		if tr.hasPickup {
			// Assigned but not yet picked up: normal job with a pickup
			// window widened by the realized estimate, must-assign.
			out = append(out, solver.Job{
				ID:             req.ID,
				Request:        req,
				Priority:       solver.Mandatory,
				Pickup:         req.Origin,
				Delivery:       req.Destination,
				PickupWindow:   solver.TimeWindow{Start: req.EarliestPickup, End: laterOf(req.LatestPickup, tr.pickupAt)},
				DeliveryWindow: solver.TimeWindow{End: deliveryEnd},
				Service:        b.service,
			})
			continue
		}
		// Already onboard: continuity job pinned to the carrying vehicle,
		// carrying only the remaining drop-off obligation.
		out = append(out, solver.Job{
			ID:              req.ID,
			Request:         req,
			Priority:        solver.Mandatory,
			RequiredVehicle: snap.ID,
			DeliveryOnly:    true,
			Pickup:          snap.Divertable,
			Delivery:        req.Destination,
			PickupWindow:    solver.TimeWindow{Start: snap.DivertableTime, End: snap.DivertableTime},
			DeliveryWindow:  solver.TimeWindow{End: deliveryEnd},
			Service:         b.service,
		})
	}
	return out
}

func requestIn(seq timetable.Sequence, requestID string) *model.Request {
	for i := 0; i < seq.Len(); i++ {
		if seq.At(i).Request.ID == requestID {
			return seq.At(i).Request
		}
	}
	return nil
}

func laterOf(a, b time.Time) time.Time {
	if b.After(a) {
		return b
	}
	return a
}
