package alns

import (
	"math"

	"github.com/ridepool/dispatch/core/solver"
)

// step references one activity of a job inside a route.
type step struct {
	job      int
	delivery bool
}

// state is a working solution: one step list per problem vehicle plus the
// set of unassigned job indices.
type state struct {
	routes     [][]step
	unassigned map[int]bool
}

func newState(p *solver.Problem) *state {
	st := &state{routes: make([][]step, len(p.Vehicles)), unassigned: make(map[int]bool)}
	for j := range p.Jobs {
		st.unassigned[j] = true
	}
	return st
}

func (st *state) clone() *state {
	cp := &state{routes: make([][]step, len(st.routes)), unassigned: make(map[int]bool, len(st.unassigned))}
	for i, r := range st.routes {
		cp.routes[i] = append([]step(nil), r...)
	}
	for j := range st.unassigned {
		cp.unassigned[j] = true
	}
	return cp
}

// routeSchedule walks one route and returns the weighted drive cost. ok is
// false when a time window, the capacity or the vehicle's latest end is
// violated. Delivery-only jobs count toward the initial load.
func (s *Solver) routeSchedule(p *solver.Problem, vi int, steps []step) (float64, bool) {
	v := p.Vehicles[vi]
	load := 0
	for _, sp := range steps {
		if p.Jobs[sp.job].DeliveryOnly {
			load++
		}
	}
	if load > v.Capacity {
		return 0, false
	}
	loc := v.Start
	now := v.EarliestStart
	drive := 0.0
	for _, sp := range steps {
		job := p.Jobs[sp.job]
		if job.RequiredVehicle != "" && job.RequiredVehicle != v.ID {
			return 0, false
		}
		var target = job.Delivery
		var win = job.DeliveryWindow
		if !sp.delivery {
			target = job.Pickup
			win = job.PickupWindow
		}
		leg := s.est.TravelTime(loc, target, now)
		drive += leg.Seconds() * p.Objective.DriveWeight(now)
		now = now.Add(leg)
		if !win.Start.IsZero() && now.Before(win.Start) {
			now = win.Start
		}
		if !win.End.IsZero() && now.After(win.End) {
			return 0, false
		}
		if sp.delivery {
			load--
		} else {
			load++
			if load > v.Capacity {
				return 0, false
			}
		}
		now = now.Add(job.Service)
		loc = target
	}
	if load != 0 {
		return 0, false
	}
	if !v.LatestEnd.IsZero() && now.After(v.LatestEnd) {
		return 0, false
	}
	return drive, true
}

// cost evaluates a full state under the problem objective.
func (s *Solver) cost(p *solver.Problem, st *state) float64 {
	total := 0.0
	for vi, steps := range st.routes {
		drive, ok := s.routeSchedule(p, vi, steps)
		if !ok {
			return math.MaxFloat64
		}
		total += drive + p.Objective.ActivityCost*float64(len(steps))
		if len(steps) == 0 {
			total += p.Objective.IdlePenalty(p.Vehicles[vi].ID)
		}
	}
	for j := range st.unassigned {
		total += p.Objective.UnassignedPenalty(p.Jobs[j].Priority)
	}
	return total
}

// insertion is a candidate placement of one job into one route.
type insertion struct {
	vehicle int
	steps   []step
	delta   float64
}

// bestInsertion finds the cheapest feasible placement of job j across the
// allowed vehicles, returning the best and second-best delta for regret
// scoring. ok is false when no placement is feasible.
func (s *Solver) bestInsertion(p *solver.Problem, st *state, j int) (best insertion, second float64, ok bool) {
	job := p.Jobs[j]
	best.delta = math.MaxFloat64
	second = math.MaxFloat64
	for vi := range p.Vehicles {
		if job.RequiredVehicle != "" && job.RequiredVehicle != p.Vehicles[vi].ID {
			continue
		}
		base, baseOK := s.routeSchedule(p, vi, st.routes[vi])
		if !baseOK {
			continue
		}
		n := len(st.routes[vi])
		if job.DeliveryOnly {
			for pos := 0; pos <= n; pos++ {
				cand := spliceSteps(st.routes[vi], pos, step{job: j, delivery: true})
				drive, feasible := s.routeSchedule(p, vi, cand)
				if !feasible {
					continue
				}
				delta := drive - base
				if delta < best.delta {
					second = best.delta
					best = insertion{vehicle: vi, steps: cand, delta: delta}
				} else if delta < second {
					second = delta
				}
			}
			continue
		}
		for p1 := 0; p1 <= n; p1++ {
			withPickup := spliceSteps(st.routes[vi], p1, step{job: j})
			for p2 := p1 + 1; p2 <= n+1; p2++ {
				cand := spliceSteps(withPickup, p2, step{job: j, delivery: true})
				drive, feasible := s.routeSchedule(p, vi, cand)
				if !feasible {
					continue
				}
				delta := drive - base
				if delta < best.delta {
					second = best.delta
					best = insertion{vehicle: vi, steps: cand, delta: delta}
				} else if delta < second {
					second = delta
				}
			}
		}
	}
	return best, second, best.delta < math.MaxFloat64
}

func spliceSteps(steps []step, pos int, sp step) []step {
	out := make([]step, 0, len(steps)+1)
	out = append(out, steps[:pos]...)
	out = append(out, sp)
	out = append(out, steps[pos:]...)
	return out
}

// removeJob strips both activities of job j from the state and marks it
// unassigned.
func (st *state) removeJob(j int) {
	for vi, steps := range st.routes {
		kept := steps[:0:0]
		for _, sp := range steps {
			if sp.job != j {
				kept = append(kept, sp)
			}
		}
		st.routes[vi] = kept
	}
	st.unassigned[j] = true
}

// timeWindowOverlap returns the overlap of two delivery windows in seconds.
func timeWindowOverlap(a, b solver.TimeWindow) float64 {
	start := a.Start
	if b.Start.After(start) {
		start = b.Start
	}
	end := a.End
	if b.End.Before(end) {
		end = b.End
	}
	if end.Before(start) {
		return 0
	}
	return end.Sub(start).Seconds()
}
