package simulator

import (
	"context"
	"time"

	"github.com/ridepool/dispatch/core/dispatch"
	"github.com/ridepool/dispatch/core/model"
	"github.com/ridepool/dispatch/core/solver/alns"
	"github.com/ridepool/dispatch/core/travel"
	"github.com/ridepool/dispatch/infra/logger"
)

// Config holds parameters for a simulation run.
type Config struct {
	Vehicles       int
	Capacity       int
	SpeedKph       float64
	Center         model.Location
	RadiusKm       float64
	RequestsPerMin float64
	Duration       time.Duration
	Seed           uint64
	Dispatch       dispatch.Config
}

// Result summarizes one simulation run.
type Result struct {
	Requested int
	Accepted  int
	Rejected  int
	Cycles    int
	Fallbacks int
}

// Run drives the dispatch manager through a full simulated day: synthetic
// requests arrive at a fixed rate and re-optimization fires at the
// configured interval, with vehicles advancing along their planned stops
// in simulated time.
func Run(ctx context.Context, cfg Config) (Result, error) {
	log := logger.New("simulator")
	est := travel.NewConstantSpeed(cfg.SpeedKph)
	start := time.Now().Truncate(time.Minute)
	fleet := NewFleet(cfg.Vehicles, cfg.Capacity, cfg.Center, start, start.Add(cfg.Duration+2*time.Hour), est)
	demand := NewDemand(cfg.Center, cfg.RadiusKm, est, cfg.Seed)

	manager, err := dispatch.NewManager(cfg.Dispatch, est, alns.New(est), fleet, fleet, log, nil)
	if err != nil {
		return Result{}, err
	}
	defer manager.Close()

	var res Result
	notes := manager.Notifications()
	done := make(chan struct{})
	go func() {
		defer close(done)
		for n := range notes {
			switch n.Kind {
			case "insertion_accepted":
				res.Accepted++
			case "insertion_rejected":
				res.Rejected++
			}
		}
	}()

	gap := time.Duration(float64(time.Minute) / cfg.RequestsPerMin)
	interval := cfg.Dispatch.Interval()
	nextRequest := start
	nextTick := start.Add(interval)
	for now := start; now.Before(start.Add(cfg.Duration)); {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		if !nextRequest.After(nextTick) {
			now = nextRequest
			fleet.Advance(now, manager.Schedule())
			res.Requested++
			manager.HandleRequest(ctx, demand.Next(now), now)
			nextRequest = nextRequest.Add(gap)
			continue
		}
		now = nextTick
		fleet.Advance(now, manager.Schedule())
		res.Cycles++
		if err := manager.Reoptimize(ctx, now); err != nil {
			res.Fallbacks++
			log.Warnf("cycle at %v fell back: %v", now, err)
		}
		nextTick = nextTick.Add(interval)
	}

	manager.Close()
	<-done
	log.Infof("simulated %v: %d requests, %d accepted, %d rejected, %d cycles (%d fallbacks)",
		cfg.Duration, res.Requested, res.Accepted, res.Rejected, res.Cycles, res.Fallbacks)
	return res, nil
}
