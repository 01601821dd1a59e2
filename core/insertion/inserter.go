package insertion

import (
	"sort"
	"time"

	"github.com/ridepool/dispatch/core/model"
	"github.com/ridepool/dispatch/core/schedule"
	"github.com/ridepool/dispatch/core/timetable"
	"github.com/ridepool/dispatch/core/travel"
)

// PruneStrategy controls how aggressively pickup positions are skipped.
type PruneStrategy int

const (
	// PruneOnDeadline stops scanning pickup positions for a vehicle at the
	// first position whose pickup arrival is already past the latest pickup
	// time. Pickup arrival grows monotonically with position, so no later
	// position can be feasible. This is the default.
	PruneOnDeadline PruneStrategy = iota
	// ExhaustivePositions evaluates every pickup position. It can never find
	// a candidate PruneOnDeadline misses and exists for comparison runs.
	ExhaustivePositions
)

// Inserter implements the online best-insertion heuristic: for one request
// at a time it finds the cheapest feasible splice of a pickup and drop-off
// pair into any vehicle's stop sequence.
type Inserter struct {
	est      travel.Estimator
	service  time.Duration
	strategy PruneStrategy
}

// New returns an Inserter using the given travel estimator and per-stop
// service duration.
func New(est travel.Estimator, service time.Duration, strategy PruneStrategy) *Inserter {
	return &Inserter{est: est, service: service, strategy: strategy}
}

type candidate struct {
	vehicleID string
	seq       timetable.Sequence
	cost      time.Duration
}

// Insert searches all vehicles for the cheapest feasible insertion of req
// and applies it to sched, returning the chosen vehicle. It returns false
// and leaves sched untouched when no vehicle admits a feasible insertion.
// Vehicles are scanned in sorted id order and ties keep the first candidate
// found, so results are deterministic.
func (in *Inserter) Insert(req *model.Request, sched *schedule.FleetSchedule, snaps []model.VehicleSnapshot) (string, bool) {
	sorted := make([]model.VehicleSnapshot, len(snaps))
	copy(sorted, snaps)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	var best *candidate
	for _, snap := range sorted {
		c := in.bestForVehicle(req, sched.Sequence(snap.ID), snap)
		if c != nil && (best == nil || c.cost < best.cost) {
			best = c
		}
	}
	if best == nil {
		return "", false
	}
	sched.SetSequence(best.vehicleID, best.seq)
	sched.Assign(req.ID, best.vehicleID)
	return best.vehicleID, true
}

// bestForVehicle returns the cheapest feasible (pickup, drop-off) insertion
// into one vehicle's sequence, or nil.
func (in *Inserter) bestForVehicle(req *model.Request, seq timetable.Sequence, snap model.VehicleSnapshot) *candidate {
	if seq.Empty() {
		return in.insertIntoEmpty(req, snap)
	}

	var best *candidate
	n := seq.Len()
	for i := 0; i <= n; i++ {
		predLoc, predDep := predecessorOf(seq, i, snap)
		pickupArrival := predDep.Add(in.est.TravelTime(predLoc, req.Origin, predDep))
		if pickupArrival.After(req.LatestPickup) {
			if in.strategy == PruneOnDeadline {
				break
			}
			continue
		}
		occBefore := occupancyAt(seq, i)
		if occBefore >= snap.Capacity {
			continue
		}
		pickupDeparture := pickupArrival
		if pickupDeparture.Before(req.EarliestPickup) {
			pickupDeparture = req.EarliestPickup
		}
		pickupDeparture = pickupDeparture.Add(in.service)

		var pickupCost, introduced time.Duration
		if i < n {
			next := seq.At(i)
			nextLoc := next.Location()
			toOrigin := in.est.TravelTime(predLoc, req.Origin, predDep)
			toNext := in.est.TravelTime(req.Origin, nextLoc, pickupDeparture)
			direct := in.est.TravelTime(predLoc, nextLoc, predDep)
			pickupCost = toOrigin + toNext - direct
			introduced = pickupDeparture.Add(toNext).Sub(next.Arrival)
			if introduced < 0 {
				introduced = 0
			}
			if !seq.DelayFeasibleFrom(i, introduced) {
				continue
			}
		} else {
			pickupCost = in.est.TravelTime(predLoc, req.Origin, predDep)
		}

		pickup := &timetable.Stop{
			Request:         req,
			Kind:            timetable.Pickup,
			Arrival:         pickupArrival,
			Departure:       pickupDeparture,
			OccupancyBefore: occBefore,
			Service:         in.service,
			Capacity:        snap.Capacity,
		}
		afterPickup := seq.InsertAt(i, pickup, introduced)

		if c := in.bestDropOff(req, afterPickup, snap, i, pickupCost); c != nil {
			if best == nil || c.cost < best.cost {
				best = c
			}
		}
	}
	return best
}

// bestDropOff scans drop-off positions j > pickupIdx in the post-pickup
// candidate sequence. The scan stops as soon as a following stop would be
// occupancy-overloaded with the passenger still onboard, or the drop-off
// arrival exceeds the latest arrival time.
func (in *Inserter) bestDropOff(req *model.Request, afterPickup timetable.Sequence, snap model.VehicleSnapshot, pickupIdx int, pickupCost time.Duration) *candidate {
	var best *candidate
	n := afterPickup.Len()
	for j := pickupIdx + 1; j <= n; j++ {
		pred := afterPickup.At(j - 1)
		predLoc, predDep := pred.Location(), pred.Departure
		dropArrival := predDep.Add(in.est.TravelTime(predLoc, req.Destination, predDep))
		if dropArrival.After(req.LatestArrival) {
			break
		}

		var dropCost, introduced time.Duration
		dropDeparture := dropArrival.Add(in.service)
		if j < n {
			next := afterPickup.At(j)
			nextLoc := next.Location()
			toDest := in.est.TravelTime(predLoc, req.Destination, predDep)
			toNext := in.est.TravelTime(req.Destination, nextLoc, dropDeparture)
			direct := in.est.TravelTime(predLoc, nextLoc, predDep)
			dropCost = toDest + toNext - direct
			introduced = dropDeparture.Add(toNext).Sub(next.Arrival)
			if introduced < 0 {
				introduced = 0
			}
		} else {
			dropCost = in.est.TravelTime(predLoc, req.Destination, predDep)
		}

		feasible := j == n || afterPickup.DelayFeasibleFrom(j, introduced)
		if feasible {
			total := pickupCost + dropCost
			if best == nil || total < best.cost {
				drop := &timetable.Stop{
					Request:         req,
					Kind:            timetable.DropOff,
					Arrival:         dropArrival,
					Departure:       dropDeparture,
					OccupancyBefore: occupancyAt(afterPickup, j),
					Service:         in.service,
					Capacity:        snap.Capacity,
				}
				final := afterPickup.InsertAt(j, drop, introduced)
				if in.withinServiceEnd(final, snap) {
					best = &candidate{vehicleID: snap.ID, seq: final, cost: total}
				}
			}
		}

		// The passenger stays onboard past position j if the drop-off moves
		// further right; stop once that would overload a following stop.
		if j < n && overloaded(afterPickup.At(j)) {
			break
		}
	}
	return best
}

// insertIntoEmpty builds the two-stop sequence for an idle vehicle.
func (in *Inserter) insertIntoEmpty(req *model.Request, snap model.VehicleSnapshot) *candidate {
	toOrigin := in.est.TravelTime(snap.Divertable, req.Origin, snap.DivertableTime)
	pickupArrival := snap.DivertableTime.Add(toOrigin)
	if pickupArrival.After(req.LatestPickup) {
		return nil
	}
	pickupDeparture := pickupArrival
	if pickupDeparture.Before(req.EarliestPickup) {
		pickupDeparture = req.EarliestPickup
	}
	pickupDeparture = pickupDeparture.Add(in.service)
	toDest := in.est.TravelTime(req.Origin, req.Destination, pickupDeparture)
	dropArrival := pickupDeparture.Add(toDest)
	if dropArrival.After(req.LatestArrival) {
		return nil
	}
	pickup := &timetable.Stop{
		Request:   req,
		Kind:      timetable.Pickup,
		Arrival:   pickupArrival,
		Departure: pickupDeparture,
		Service:   in.service,
		Capacity:  snap.Capacity,
	}
	drop := &timetable.Stop{
		Request:         req,
		Kind:            timetable.DropOff,
		Arrival:         dropArrival,
		Departure:       dropArrival.Add(in.service),
		OccupancyBefore: 1,
		Service:         in.service,
		Capacity:        snap.Capacity,
	}
	seq := timetable.NewSequence(pickup, drop)
	if !in.withinServiceEnd(seq, snap) {
		return nil
	}
	return &candidate{vehicleID: snap.ID, seq: seq, cost: toOrigin + toDest}
}

func (in *Inserter) withinServiceEnd(seq timetable.Sequence, snap model.VehicleSnapshot) bool {
	if snap.ServiceEnd.IsZero() || seq.Empty() {
		return true
	}
	return !seq.Last().Arrival.After(snap.ServiceEnd)
}

// predecessorOf returns the location and departure time preceding position i:
// the vehicle's divertable state for i == 0, otherwise the prior stop.
func predecessorOf(seq timetable.Sequence, i int, snap model.VehicleSnapshot) (model.Location, time.Time) {
	if i == 0 {
		return snap.Divertable, snap.DivertableTime
	}
	prev := seq.At(i - 1)
	return prev.Location(), prev.Departure
}

// occupancyAt returns the vehicle load entering position i.
func occupancyAt(seq timetable.Sequence, i int) int {
	if i < seq.Len() {
		return seq.At(i).OccupancyBefore
	}
	last := seq.Last()
	if last == nil {
		return 0
	}
	if last.Kind == timetable.Pickup {
		return last.OccupancyBefore + 1
	}
	return last.OccupancyBefore - 1
}

// overloaded reports whether carrying one extra passenger through the stop
// breaks its occupancy invariant.
func overloaded(s *timetable.Stop) bool {
	if s.Kind == timetable.Pickup {
		return s.OccupancyBefore >= s.Capacity
	}
	return s.OccupancyBefore > s.Capacity
}
