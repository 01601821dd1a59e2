package simulator

import (
	"math"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"

	"github.com/ridepool/dispatch/core/model"
	"github.com/ridepool/dispatch/core/travel"
)

// Demand generates synthetic trip requests uniformly inside a disc
// around a center point. It is deterministic for a given seed.
type Demand struct {
	rng      *rand.Rand
	center   model.Location
	radiusKm float64
	est      travel.Estimator
}

// NewDemand returns a generator seeded for reproducible runs.
func NewDemand(center model.Location, radiusKm float64, est travel.Estimator, seed uint64) *Demand {
	return &Demand{
		rng:      rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		center:   center,
		radiusKm: radiusKm,
		est:      est,
	}
}

// Next creates one request posted at the given instant. The pickup
// window opens immediately; the arrival deadline leaves headroom over
// the direct drive so pooling detours stay feasible.
func (d *Demand) Next(at time.Time) *model.Request {
	origin := d.point()
	dest := d.point()
	direct := d.est.TravelTime(origin, dest, at)
	return &model.Request{
		ID:             uuid.NewString(),
		Origin:         origin,
		Destination:    dest,
		EarliestPickup: at,
		LatestPickup:   at.Add(10 * time.Minute),
		LatestArrival:  at.Add(10*time.Minute + 2*direct + 5*time.Minute),
	}
}

func (d *Demand) point() model.Location {
	// Sqrt keeps the areal density uniform.
	r := d.radiusKm * math.Sqrt(d.rng.Float64())
	theta := d.rng.Float64() * 2 * math.Pi
	dLat := r * math.Cos(theta) / 110.574
	dLon := r * math.Sin(theta) / (111.320 * math.Cos(d.center.Lat*math.Pi/180))
	return model.Location{Lat: d.center.Lat + dLat, Lon: d.center.Lon + dLon}
}
