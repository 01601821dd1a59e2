package batch

import (
	"fmt"
	"time"

	"github.com/ridepool/dispatch/core/model"
	"github.com/ridepool/dispatch/core/schedule"
	"github.com/ridepool/dispatch/core/solver"
)

// ObjectiveConfig selects and parameterizes the batch objective.
type ObjectiveConfig struct {
	Variant          string  `json:"variant"` // flat | time_discounted | diversion_cost
	ActivityCost     float64 `json:"activity_cost"`
	OptionalPenalty  float64 `json:"optional_penalty"`
	MandatoryPenalty float64 `json:"mandatory_penalty"`
	DiscountFactor   float64 `json:"discount_factor"`
	IdleChurnPerSec  float64 `json:"idle_churn_per_sec"`
}

// SetDefaults fills unset fields with working values. The mandatory penalty
// must dwarf any achievable drive cost so mandatory jobs are never dropped.
func (c *ObjectiveConfig) SetDefaults() {
	if c.Variant == "" {
		c.Variant = "flat"
	}
	if c.OptionalPenalty == 0 {
		c.OptionalPenalty = 3600
	}
	if c.MandatoryPenalty == 0 {
		c.MandatoryPenalty = 1e9
	}
	if c.DiscountFactor == 0 {
		c.DiscountFactor = 0.5
	}
}

// Validate rejects unknown variants.
func (c ObjectiveConfig) Validate() error {
	switch c.Variant {
	case "", "flat", "time_discounted", "diversion_cost":
		return nil
	}
	return fmt.Errorf("objective: unknown variant %q", c.Variant)
}

func (c ObjectiveConfig) variant() solver.ObjectiveVariant {
	switch c.Variant {
	case "time_discounted":
		return solver.TimeDiscounted
	case "diversion_cost":
		return solver.DiversionCost
	}
	return solver.Flat
}

// NewObjective composes the solver objective for one cycle. For the
// diversion-cost variant it records which vehicles were active last cycle
// together with their last divertable instant, so the solver can price
// stranding one of them without work.
func NewObjective(cfg ObjectiveConfig, prev *schedule.FleetSchedule, snaps []model.VehicleSnapshot, now time.Time, horizon time.Duration) solver.Objective {
	obj := solver.Objective{
		Variant:          cfg.variant(),
		ActivityCost:     cfg.ActivityCost,
		OptionalPenalty:  cfg.OptionalPenalty,
		MandatoryPenalty: cfg.MandatoryPenalty,
		DiscountFactor:   cfg.DiscountFactor,
		IdleChurnPerSec:  cfg.IdleChurnPerSec,
		Now:              now,
		Horizon:          horizon,
	}
	if obj.Variant == solver.DiversionCost && prev != nil {
		obj.ActiveLastCycle = make(map[string]time.Time)
		for _, s := range snaps {
			if !prev.Sequence(s.ID).Empty() {
				obj.ActiveLastCycle[s.ID] = s.DivertableTime
			}
		}
	}
	return obj
}
