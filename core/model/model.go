package model

import (
	"fmt"
	"math"
	"time"
)

const earthRadiusM = 6371000.0

// Location is a WGS84 coordinate. It is comparable so it can key travel
// matrices and be matched against planned stops.
type Location struct {
	Lat float64
	Lon float64
}

// DistanceTo returns the great-circle distance to other in meters.
func (l Location) DistanceTo(other Location) float64 {
	lat1 := l.Lat * math.Pi / 180
	lat2 := other.Lat * math.Pi / 180
	dLat := (other.Lat - l.Lat) * math.Pi / 180
	dLon := (other.Lon - l.Lon) * math.Pi / 180
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return earthRadiusM * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

// Request is a single passenger trip. Requests are immutable once
// admitted: the planning layers hold pointers and never mutate them.
type Request struct {
	ID             string
	Origin         Location
	Destination    Location
	EarliestPickup time.Time
	LatestPickup   time.Time
	LatestArrival  time.Time
}

// Validate checks that the request time windows are ordered.
func (r *Request) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("request has no id")
	}
	if r.LatestPickup.Before(r.EarliestPickup) {
		return fmt.Errorf("request %s: latest pickup before earliest pickup", r.ID)
	}
	if r.LatestArrival.Before(r.LatestPickup) {
		return fmt.Errorf("request %s: latest arrival before latest pickup", r.ID)
	}
	return nil
}

// VehicleSnapshot is the read-only planning view of one vehicle at a
// point in time. Divertable is the first location from which the vehicle
// can still be redirected, reached at DivertableTime; everything before
// it is committed.
type VehicleSnapshot struct {
	ID             string
	Capacity       int
	Divertable     Location
	DivertableTime time.Time
	ServiceEnd     time.Time
}

// Validate checks that the snapshot is usable for planning.
func (s VehicleSnapshot) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("vehicle snapshot has no id")
	}
	if s.Capacity <= 0 {
		return fmt.Errorf("vehicle %s: capacity must be positive", s.ID)
	}
	return nil
}
