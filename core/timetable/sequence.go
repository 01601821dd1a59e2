package timetable

import (
	"fmt"
	"time"

	"github.com/ridepool/dispatch/core/model"
	"github.com/ridepool/dispatch/core/travel"
)

// Sequence is the ordered list of stops one vehicle executes. Sequences are
// copy-on-write: every mutating operation returns a fresh Sequence and leaves
// the receiver untouched, so a rejected candidate never leaks partial state.
type Sequence struct {
	stops []*Stop
}

// NewSequence builds a sequence from stops in execution order.
func NewSequence(stops ...*Stop) Sequence {
	return Sequence{stops: stops}
}

func (q Sequence) Len() int      { return len(q.stops) }
func (q Sequence) Empty() bool   { return len(q.stops) == 0 }
func (q Sequence) At(i int) *Stop { return q.stops[i] }

// Last returns the final stop or nil for an empty sequence.
func (q Sequence) Last() *Stop {
	if len(q.stops) == 0 {
		return nil
	}
	return q.stops[len(q.stops)-1]
}

// Stops returns a copy of the stop slice.
func (q Sequence) Stops() []*Stop {
	out := make([]*Stop, len(q.stops))
	copy(out, q.stops)
	return out
}

// TrimExecuted drops the leading stops the vehicle has already served: every
// stop whose scheduled departure falls at or before cutoff. Stops execute in
// order, so the executed part is always a prefix. The batch problem builder
// uses this with the snapshot's divertable time to replay elapsed travel and
// service before re-deriving obligations: a served drop-off retires its
// request, a served pickup without its drop-off means the passenger is
// onboard.
func (q Sequence) TrimExecuted(cutoff time.Time) Sequence {
	i := 0
	for i < len(q.stops) && !q.stops[i].Departure.After(cutoff) {
		i++
	}
	if i == 0 {
		return q
	}
	out := make([]*Stop, len(q.stops)-i)
	copy(out, q.stops[i:])
	return Sequence{stops: out}
}

// DelayFeasibleFrom walks the sequence from index from applying the delay d.
// It short-circuits true once slack has absorbed the delay completely and
// false on the first deadline violation. This is the single feasibility
// primitive every insertion search reuses.
func (q Sequence) DelayFeasibleFrom(from int, d time.Duration) bool {
	for i := from; i < len(q.stops) && d > 0; i++ {
		effective, ok := q.stops[i].CheckDelay(d)
		if !ok {
			return false
		}
		d = effective
	}
	return true
}

// InsertAt splices st in at position i and returns the new sequence. The
// introduced delay d is propagated through every surviving stop after i, and
// each follower's occupancy is adjusted by one (+1 when splicing a pickup,
// -1 when splicing a drop-off). Feasibility must have been established
// beforehand; a deadline violation during propagation means the sequence
// invariant was already broken and panics.
func (q Sequence) InsertAt(i int, st *Stop, d time.Duration) Sequence {
	if i < 0 || i > len(q.stops) {
		panic(fmt.Sprintf("timetable: insert position %d out of range [0,%d]", i, len(q.stops)))
	}
	occDelta := 1
	if st.Kind == DropOff {
		occDelta = -1
	}
	out := make([]*Stop, 0, len(q.stops)+1)
	out = append(out, q.stops[:i]...)
	out = append(out, st)
	for _, s := range q.stops[i:] {
		effective, ok := s.CheckDelay(d)
		if !ok {
			panic(fmt.Sprintf("timetable: delay %v violates deadline of %s stop for request %s",
				d, s.Kind, s.Request.ID))
		}
		cp := s.delayed(d, effective)
		cp.OccupancyBefore += occDelta
		out = append(out, cp)
		d = effective
	}
	return Sequence{stops: out}
}

// Retime rebuilds arrival and departure times by driving the sequence from
// the given start location and time with the travel estimator, honoring each
// request's earliest pickup as a wait constraint. Stop order and occupancy
// are preserved. The batch problem builder uses this to re-derive realized
// time estimates from a live vehicle position.
func (q Sequence) Retime(start model.Location, at time.Time, est travel.Estimator) Sequence {
	out := make([]*Stop, len(q.stops))
	loc := start
	now := at
	for i, s := range q.stops {
		cp := *s
		cp.Arrival = now.Add(est.TravelTime(loc, cp.stopLocation(), now))
		depart := cp.Arrival
		if cp.Kind == Pickup && cp.Arrival.Before(cp.Request.EarliestPickup) {
			depart = cp.Request.EarliestPickup
		}
		cp.Departure = depart.Add(cp.Service)
		out[i] = &cp
		loc = cp.stopLocation()
		now = cp.Departure
	}
	return Sequence{stops: out}
}

func (s *Stop) stopLocation() model.Location {
	if s.Kind == Pickup {
		return s.Request.Origin
	}
	return s.Request.Destination
}

// Location returns the place the stop is served at.
func (s *Stop) Location() model.Location { return s.stopLocation() }

// ValidateOccupancy replays the occupancy trace: it must stay within
// [0, capacity] and every pickup must leave room for one more passenger.
// A violation is a programming error upstream, reported for loud failure.
func (q Sequence) ValidateOccupancy() error {
	for i, s := range q.stops {
		if s.OccupancyBefore < 0 {
			return fmt.Errorf("stop %d: negative occupancy %d", i, s.OccupancyBefore)
		}
		switch s.Kind {
		case Pickup:
			if s.OccupancyBefore >= s.Capacity {
				return fmt.Errorf("stop %d: pickup with occupancy %d at capacity %d", i, s.OccupancyBefore, s.Capacity)
			}
		case DropOff:
			if s.OccupancyBefore > s.Capacity {
				return fmt.Errorf("stop %d: occupancy %d exceeds capacity %d", i, s.OccupancyBefore, s.Capacity)
			}
		}
	}
	return nil
}

// Validate checks occupancy plus the deadline invariant on every committed
// stop. The batch path checks deadlines against widened solver windows and
// uses ValidateOccupancy directly.
func (q Sequence) Validate() error {
	if err := q.ValidateOccupancy(); err != nil {
		return err
	}
	for i, s := range q.stops {
		if s.Arrival.After(s.Deadline()) {
			return fmt.Errorf("stop %d: arrival %v past deadline %v for request %s", i, s.Arrival, s.Deadline(), s.Request.ID)
		}
	}
	return nil
}
