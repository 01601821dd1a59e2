package travel

import (
	"time"

	"github.com/ridepool/dispatch/core/model"
)

// Estimator yields point-to-point travel time at a given departure instant.
// Implementations must be deterministic; delay propagation relies on it.
type Estimator interface {
	TravelTime(from, to model.Location, departure time.Time) time.Duration
}

// ConstantSpeed estimates travel time from great-circle distance at a fixed
// speed. It is the default oracle when no routing backend is configured.
type ConstantSpeed struct {
	SpeedMPS float64
}

// NewConstantSpeed returns an estimator for the given speed in km/h.
func NewConstantSpeed(speedKph float64) ConstantSpeed {
	if speedKph <= 0 {
		speedKph = 30
	}
	return ConstantSpeed{SpeedMPS: speedKph / 3.6}
}

func (c ConstantSpeed) TravelTime(from, to model.Location, _ time.Time) time.Duration {
	meters := from.DistanceTo(to)
	return time.Duration(meters / c.SpeedMPS * float64(time.Second))
}

// Matrix is a fixed lookup estimator keyed by location pairs. Pairs without
// an entry fall back to zero; it exists for deterministic tests and replayed
// scenarios.
type Matrix struct {
	Times map[[2]model.Location]time.Duration
}

// NewMatrix returns an empty Matrix.
func NewMatrix() *Matrix {
	return &Matrix{Times: make(map[[2]model.Location]time.Duration)}
}

// Set records the travel time between two locations in both directions.
func (m *Matrix) Set(from, to model.Location, d time.Duration) {
	m.Times[[2]model.Location{from, to}] = d
	m.Times[[2]model.Location{to, from}] = d
}

func (m *Matrix) TravelTime(from, to model.Location, _ time.Time) time.Duration {
	if from == to {
		return 0
	}
	return m.Times[[2]model.Location{from, to}]
}
