package schedule

import (
	"sort"

	"github.com/ridepool/dispatch/core/timetable"
)

// FleetSchedule is the aggregate plan for the whole fleet: one stop sequence
// per vehicle, the request-to-vehicle assignment map and the set of rejected
// requests. The batch path replaces it wholesale each cycle; the online path
// amends it one vehicle at a time in between. Ownership is single-writer:
// the orchestrator holds it exclusively between algorithm invocations.
type FleetSchedule struct {
	sequences  map[string]timetable.Sequence
	assignment map[string]string
	rejected   map[string]bool
}

// New returns an empty fleet schedule.
func New() *FleetSchedule {
	return &FleetSchedule{
		sequences:  make(map[string]timetable.Sequence),
		assignment: make(map[string]string),
		rejected:   make(map[string]bool),
	}
}

// Sequence returns the stop sequence for the vehicle, empty if none.
func (f *FleetSchedule) Sequence(vehicleID string) timetable.Sequence {
	return f.sequences[vehicleID]
}

// SetSequence replaces the vehicle's stop sequence.
func (f *FleetSchedule) SetSequence(vehicleID string, seq timetable.Sequence) {
	f.sequences[vehicleID] = seq
}

// VehicleIDs lists all vehicles with a sequence, sorted for deterministic
// iteration.
func (f *FleetSchedule) VehicleIDs() []string {
	ids := make([]string, 0, len(f.sequences))
	for id := range f.sequences {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Assign records that the request is served by the vehicle.
func (f *FleetSchedule) Assign(requestID, vehicleID string) {
	f.assignment[requestID] = vehicleID
	delete(f.rejected, requestID)
}

// AssignedVehicle returns the vehicle serving the request, if any.
func (f *FleetSchedule) AssignedVehicle(requestID string) (string, bool) {
	v, ok := f.assignment[requestID]
	return v, ok
}

// RequestIDs lists all assigned requests, sorted.
func (f *FleetSchedule) RequestIDs() []string {
	ids := make([]string, 0, len(f.assignment))
	for id := range f.assignment {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Reject marks the request as not served.
func (f *FleetSchedule) Reject(requestID string) {
	f.rejected[requestID] = true
	delete(f.assignment, requestID)
}

// Rejected reports whether the request was rejected.
func (f *FleetSchedule) Rejected(requestID string) bool { return f.rejected[requestID] }

// RejectedIDs lists rejected requests, sorted.
func (f *FleetSchedule) RejectedIDs() []string {
	ids := make([]string, 0, len(f.rejected))
	for id := range f.rejected {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Clone returns a deep copy of the schedule maps. Sequences themselves are
// copy-on-write values and can be shared.
func (f *FleetSchedule) Clone() *FleetSchedule {
	cp := New()
	for k, v := range f.sequences {
		cp.sequences[k] = v
	}
	for k, v := range f.assignment {
		cp.assignment[k] = v
	}
	for k := range f.rejected {
		cp.rejected[k] = true
	}
	return cp
}
