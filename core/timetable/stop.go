package timetable

import (
	"time"

	"github.com/ridepool/dispatch/core/model"
)

// StopKind distinguishes pickup and drop-off stops.
type StopKind int

const (
	Pickup StopKind = iota
	DropOff
)

func (k StopKind) String() string {
	switch k {
	case Pickup:
		return "pickup"
	case DropOff:
		return "dropoff"
	}
	return "unknown"
}

// Stop is one pickup or drop-off event for exactly one request. A Stop is
// immutable once part of a Sequence; mutating operations copy it first.
type Stop struct {
	Request         *model.Request
	Kind            StopKind
	Arrival         time.Time
	Departure       time.Time
	OccupancyBefore int
	Service         time.Duration
	Capacity        int
}

// Deadline returns the latest instant the stop may be served: the latest
// pickup time for pickups, the latest arrival time for drop-offs.
func (s *Stop) Deadline() time.Time {
	if s.Kind == Pickup {
		return s.Request.LatestPickup
	}
	return s.Request.LatestArrival
}

// Slack is the spare time at this stop before its departure becomes late:
// the wait between arrival plus service and the scheduled departure.
func (s *Stop) Slack() time.Duration {
	slack := s.Departure.Sub(s.Arrival) - s.Service
	if slack < 0 {
		return 0
	}
	return slack
}

// CheckDelay applies an upstream delay d to this stop and returns the
// effective delay passed downstream after local slack absorbs part of it.
// It reports false when the delayed arrival would violate the deadline.
func (s *Stop) CheckDelay(d time.Duration) (time.Duration, bool) {
	if s.Arrival.Add(d).After(s.Deadline()) {
		return 0, false
	}
	effective := d - s.Slack()
	if effective < 0 {
		effective = 0
	}
	return effective, true
}

// delayed returns a copy of the stop with the upstream delay d applied:
// arrival shifts by d, departure by the effective delay.
func (s *Stop) delayed(d, effective time.Duration) *Stop {
	cp := *s
	cp.Arrival = cp.Arrival.Add(d)
	cp.Departure = cp.Departure.Add(effective)
	return &cp
}
