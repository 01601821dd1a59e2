package dispatch

import (
	"fmt"
	"time"

	"github.com/ridepool/dispatch/core/batch"
	"github.com/ridepool/dispatch/core/insertion"
)

// Config defines dispatch-related settings.
type Config struct {
	HorizonSeconds   int                   `json:"horizon_seconds"`
	IntervalSeconds  int                   `json:"interval_seconds"`
	ServiceSeconds   int                   `json:"service_seconds"`
	SolverIterations int                   `json:"solver_iterations"`
	SolverSeed       int64                 `json:"solver_seed"`
	Prune            string                `json:"prune"` // deadline | exhaustive
	Objective        batch.ObjectiveConfig `json:"objective"`
}

// SetDefaults fills unset fields with working values.
func (c *Config) SetDefaults() {
	if c.HorizonSeconds == 0 {
		c.HorizonSeconds = 1800
	}
	if c.IntervalSeconds == 0 {
		c.IntervalSeconds = 300
	}
	if c.ServiceSeconds == 0 {
		c.ServiceSeconds = 30
	}
	if c.Prune == "" {
		c.Prune = "deadline"
	}
	c.Objective.SetDefaults()
}

// Validate checks the cadence contract: cycles must not look further ahead
// than they run apart.
func (c Config) Validate() error {
	if c.IntervalSeconds <= 0 {
		return fmt.Errorf("dispatch: interval must be positive")
	}
	if c.IntervalSeconds > c.HorizonSeconds {
		return fmt.Errorf("dispatch: interval %ds exceeds horizon %ds", c.IntervalSeconds, c.HorizonSeconds)
	}
	if c.ServiceSeconds < 0 {
		return fmt.Errorf("dispatch: service duration must not be negative")
	}
	switch c.Prune {
	case "", "deadline", "exhaustive":
	default:
		return fmt.Errorf("dispatch: unknown prune strategy %q", c.Prune)
	}
	return c.Objective.Validate()
}

// Horizon returns the lookahead window per cycle.
func (c Config) Horizon() time.Duration { return time.Duration(c.HorizonSeconds) * time.Second }

// Interval returns the re-optimization cadence.
func (c Config) Interval() time.Duration { return time.Duration(c.IntervalSeconds) * time.Second }

// Service returns the per-stop service duration.
func (c Config) Service() time.Duration { return time.Duration(c.ServiceSeconds) * time.Second }

// PruneStrategy maps the configured name onto the inserter strategy.
func (c Config) PruneStrategy() insertion.PruneStrategy {
	if c.Prune == "exhaustive" {
		return insertion.ExhaustivePositions
	}
	return insertion.PruneOnDeadline
}
