package metrics

import (
	"time"

	"github.com/ridepool/dispatch/core/batch"
)

// InsertionEvent records the outcome of one online insertion attempt.
type InsertionEvent struct {
	RequestID string
	VehicleID string // empty when rejected
	Accepted  bool
	Elapsed   time.Duration
	Time      time.Time
}

// CycleEvent records one batch re-optimization cycle.
type CycleEvent struct {
	Vehicles   int
	Jobs       int
	Unassigned int
	Diversions []batch.Diversion
	Fallback   bool // true when the previous schedule was kept
	Cost       float64
	Elapsed    time.Duration
	Time       time.Time
}

// Sink records dispatch events for observability purposes. Implementations
// must be safe for use from the dispatch loop goroutine.
type Sink interface {
	RecordInsertion(ev InsertionEvent) error
	RecordCycle(ev CycleEvent) error
	RecordFleetSize(size int) error
}

// NopSink drops all events.
type NopSink struct{}

func (NopSink) RecordInsertion(InsertionEvent) error { return nil }
func (NopSink) RecordCycle(CycleEvent) error         { return nil }
func (NopSink) RecordFleetSize(int) error            { return nil }

// Config selects the enabled metrics backends.
type Config struct {
	PrometheusEnabled bool   `json:"prometheus_enabled"`
	PrometheusPort    string `json:"prometheus_port"`
	InfluxEnabled     bool   `json:"influx_enabled"`
	InfluxURL         string `json:"influx_url"`
	InfluxToken       string `json:"influx_token"`
	InfluxOrg         string `json:"influx_org"`
	InfluxBucket      string `json:"influx_bucket"`
}
