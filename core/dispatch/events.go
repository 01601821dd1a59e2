package dispatch

import (
	"context"
	"time"

	"github.com/ridepool/dispatch/core/model"
)

// Event is one input to the dispatch loop. The orchestrator is a pure
// consumer: host integrations translate their callbacks into these values.
type Event interface{ isEvent() }

// RequestArrived carries a new spontaneous or prebooked trip request.
type RequestArrived struct {
	Request *model.Request
	At      time.Time
}

// ReoptimizeTick triggers one batch re-optimization cycle.
type ReoptimizeTick struct {
	At time.Time
}

// VehicleIdle reports that a vehicle finished its last task.
type VehicleIdle struct {
	VehicleID string
	At        time.Time
}

func (RequestArrived) isEvent() {}
func (ReoptimizeTick) isEvent() {}
func (VehicleIdle) isEvent()    {}

// SnapshotSource yields the current read-only state of every active
// vehicle. The task executor owns vehicle state; the dispatch core only
// snapshots it.
type SnapshotSource interface {
	Snapshots(ctx context.Context) ([]model.VehicleSnapshot, error)
}

// TaskSink receives the reconciler's per-vehicle instructions. It is the
// seam back into the task-execution layer.
type TaskSink interface {
	Divert(vehicleID string, target model.Location, from time.Time) error
	Hold(vehicleID string, from time.Time) error
	Wait(vehicleID string, until time.Time) error
}

// Notification is published on the event bus after each decision, for
// observers such as metrics recorders and simulators.
type Notification struct {
	Kind      string // insertion_accepted | insertion_rejected | cycle_applied | cycle_fallback
	RequestID string
	VehicleID string
	At        time.Time
}
