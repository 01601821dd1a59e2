package solver

import "time"

// ObjectiveVariant selects how route cost is accounted.
type ObjectiveVariant int

const (
	// Flat sums drive time, per-stop activity cost and priority-scaled
	// unassigned penalties.
	Flat ObjectiveVariant = iota
	// TimeDiscounted down-weights drive cost incurred near the far edge of
	// the planning horizon, favoring near-term certainty over speculative
	// far-future routing.
	TimeDiscounted
	// DiversionCost additionally penalizes idling a vehicle that was active
	// last cycle but carries no stops this cycle, by the time elapsed since
	// its last divertable instant.
	DiversionCost
)

func (v ObjectiveVariant) String() string {
	switch v {
	case TimeDiscounted:
		return "time_discounted"
	case DiversionCost:
		return "diversion_cost"
	}
	return "flat"
}

// Objective scores candidate solutions. Weights are in cost units per
// second of drive time; unassigned penalties are flat per job.
type Objective struct {
	Variant ObjectiveVariant

	ActivityCost      float64 // per served stop
	OptionalPenalty   float64 // per unassigned optional job
	MandatoryPenalty  float64 // per unassigned mandatory job, effectively prohibitive
	DiscountFactor    float64 // TimeDiscounted: max fraction shaved off far-horizon drive
	Now               time.Time
	Horizon           time.Duration
	ActiveLastCycle   map[string]time.Time // DiversionCost: vehicle -> last divertable instant
	IdleChurnPerSec   float64              // DiversionCost: weight of the idle penalty
}

// DriveWeight returns the multiplier for a drive leg departing at t.
func (o Objective) DriveWeight(t time.Time) float64 {
	if o.Variant != TimeDiscounted || o.Horizon <= 0 || o.DiscountFactor <= 0 {
		return 1
	}
	frac := t.Sub(o.Now).Seconds() / o.Horizon.Seconds()
	if frac < 0 {
		frac = 0
	}
	if frac > 1 {
		frac = 1
	}
	return 1 - o.DiscountFactor*frac
}

// UnassignedPenalty returns the drop cost for a job of the given priority.
func (o Objective) UnassignedPenalty(p JobPriority) float64 {
	if p == Mandatory {
		return o.MandatoryPenalty
	}
	return o.OptionalPenalty
}

// IdlePenalty returns the churn cost for leaving vehicleID without stops
// when it was active last cycle. Zero outside the DiversionCost variant.
func (o Objective) IdlePenalty(vehicleID string) float64 {
	if o.Variant != DiversionCost {
		return 0
	}
	last, ok := o.ActiveLastCycle[vehicleID]
	if !ok {
		return 0
	}
	idle := o.Now.Sub(last).Seconds()
	if idle < 0 {
		return 0
	}
	w := o.IdleChurnPerSec
	if w == 0 {
		w = 1
	}
	return idle * w
}
