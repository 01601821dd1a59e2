// Package simulator provides an in-process fleet and demand generator
// for exercising the dispatch loop without a broker or real vehicles.
package simulator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ridepool/dispatch/core/dispatch"
	"github.com/ridepool/dispatch/core/model"
	"github.com/ridepool/dispatch/core/schedule"
	"github.com/ridepool/dispatch/core/travel"
)

// Fleet is a simulated set of vehicles. It plays both integration roles
// of the dispatch core: it serves vehicle snapshots and executes the
// diversion instructions it receives, moving vehicles in simulated time.
type Fleet struct {
	est travel.Estimator

	mu       sync.Mutex
	vehicles map[string]*vehicle
}

type vehicle struct {
	snap model.VehicleSnapshot
}

var (
	_ dispatch.SnapshotSource = (*Fleet)(nil)
	_ dispatch.TaskSink       = (*Fleet)(nil)
)

// NewFleet places count vehicles at the depot, available from start
// until the end of the service day.
func NewFleet(count, capacity int, depot model.Location, start, serviceEnd time.Time, est travel.Estimator) *Fleet {
	f := &Fleet{est: est, vehicles: make(map[string]*vehicle, count)}
	for i := 0; i < count; i++ {
		id := fmt.Sprintf("veh-%03d", i)
		f.vehicles[id] = &vehicle{snap: model.VehicleSnapshot{
			ID:             id,
			Capacity:       capacity,
			Divertable:     depot,
			DivertableTime: start,
			ServiceEnd:     serviceEnd,
		}}
	}
	return f
}

// Snapshots returns the current planning view of every vehicle.
func (f *Fleet) Snapshots(context.Context) ([]model.VehicleSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.VehicleSnapshot, 0, len(f.vehicles))
	for _, v := range f.vehicles {
		out = append(out, v.snap)
	}
	return out, nil
}

// Advance executes each vehicle's stop sequence up to the simulated
// instant: the vehicle moves to the last stop it has departed by now, and
// becomes divertable there at that departure. Divertable state only moves
// forward; instructions already applied for a later moment are kept.
func (f *Fleet) Advance(now time.Time, sched *schedule.FleetSchedule) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, v := range f.vehicles {
		seq := sched.Sequence(id)
		for i := 0; i < seq.Len(); i++ {
			st := seq.At(i)
			if st.Departure.After(now) {
				break
			}
			if st.Departure.After(v.snap.DivertableTime) {
				v.snap.Divertable = st.Location()
				v.snap.DivertableTime = st.Departure
			}
		}
	}
}

// Divert sends a vehicle toward target: it becomes divertable again at
// the target once the drive there completes.
func (f *Fleet) Divert(vehicleID string, target model.Location, from time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.vehicles[vehicleID]
	if !ok {
		return fmt.Errorf("unknown vehicle %s", vehicleID)
	}
	drive := f.est.TravelTime(v.snap.Divertable, target, from)
	v.snap.Divertable = target
	v.snap.DivertableTime = from.Add(drive)
	return nil
}

// Hold clears a vehicle's remaining plan; it stays where it is.
func (f *Fleet) Hold(vehicleID string, from time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.vehicles[vehicleID]
	if !ok {
		return fmt.Errorf("unknown vehicle %s", vehicleID)
	}
	if v.snap.DivertableTime.Before(from) {
		v.snap.DivertableTime = from
	}
	return nil
}

// Wait keeps a vehicle in place until the given instant.
func (f *Fleet) Wait(vehicleID string, until time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.vehicles[vehicleID]
	if !ok {
		return fmt.Errorf("unknown vehicle %s", vehicleID)
	}
	if v.snap.DivertableTime.Before(until) {
		v.snap.DivertableTime = until
	}
	return nil
}
