package solver

import (
	"context"
	"errors"
	"time"

	"github.com/ridepool/dispatch/core/model"
)

// JobPriority tags whether a job may be left unassigned. Mandatory jobs are
// continuity and already-committed assignments; Optional jobs are newly-due
// requests the solver may sacrifice. The numeric penalty scale used
// internally by a solver is derived from this tag only at this boundary.
type JobPriority int

const (
	Optional JobPriority = iota
	Mandatory
)

func (p JobPriority) String() string {
	if p == Mandatory {
		return "mandatory"
	}
	return "optional"
}

// TimeWindow is a closed service interval.
type TimeWindow struct {
	Start time.Time
	End   time.Time
}

// VehicleSpec describes one solver vehicle. The fleet is finite: no extra
// vehicles are ever synthesized.
type VehicleSpec struct {
	ID            string
	Start         model.Location
	EarliestStart time.Time
	LatestEnd     time.Time
	Capacity      int
}

// Job is one pickup-and-delivery obligation. A DeliveryOnly job represents a
// passenger already onboard: it carries no pickup activity and must stay on
// RequiredVehicle.
type Job struct {
	ID              string
	Request         *model.Request
	Priority        JobPriority
	RequiredVehicle string
	DeliveryOnly    bool
	Pickup          model.Location
	Delivery        model.Location
	PickupWindow    TimeWindow
	DeliveryWindow  TimeWindow
	Service         time.Duration
}

// ActivityKind distinguishes pickup and delivery activities in a route.
type ActivityKind int

const (
	PickupActivity ActivityKind = iota
	DeliverActivity
)

// Activity is one stop of a solved route.
type Activity struct {
	JobID     string
	Kind      ActivityKind
	Location  model.Location
	Arrival   time.Time
	Departure time.Time
}

// Route is the ordered activity list for one vehicle.
type Route struct {
	VehicleID  string
	Activities []Activity
}

// Solution is a solved plan: one route per vehicle plus the jobs no route
// could absorb.
type Solution struct {
	Routes     []Route
	Unassigned []string
	Cost       float64
}

// Problem is a complete pickup-and-delivery instance.
type Problem struct {
	Vehicles       []VehicleSpec
	Jobs           []Job
	Objective      Objective
	IterationLimit int
	Seed           int64
}

// ErrNoSolution indicates the solver could not place every mandatory job.
// The caller must keep its previous plan; a partial plan is never applied.
var ErrNoSolution = errors.New("solver: no solution covering all mandatory jobs")

// Solver solves a Problem within its iteration limit. Implementations must
// return an error, not a partial solution, when interrupted.
type Solver interface {
	Solve(ctx context.Context, p Problem) (Solution, error)
}
