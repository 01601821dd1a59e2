// Package alns implements an adaptive large neighborhood search for the
// pickup-and-delivery problem built by the batch path. Jobs are removed and
// reinserted in pairs, operators are chosen by adaptive roulette selection
// and worsening moves are accepted with a simulated-annealing criterion.
package alns

import (
	"context"
	"math"
	"math/rand/v2"
	"sort"

	"gonum.org/v1/gonum/stat/sampleuv"

	"github.com/ridepool/dispatch/core/solver"
	"github.com/ridepool/dispatch/core/travel"
)

const (
	defaultIterations = 2000
	initialTemp       = 1.0
	cooling           = 0.995
)

// Solver is the default embedded solver.
type Solver struct {
	est travel.Estimator
}

// New returns an ALNS solver using the given travel estimator.
func New(est travel.Estimator) *Solver {
	return &Solver{est: est}
}

// Solve implements solver.Solver. It returns solver.ErrNoSolution when the
// best plan found leaves a mandatory job unassigned, and the context error
// when interrupted; in both cases no partial solution is returned.
func (s *Solver) Solve(ctx context.Context, p solver.Problem) (solver.Solution, error) {
	src := rand.NewPCG(uint64(p.Seed), uint64(p.Seed)+1)
	rng := rand.New(src)
	limit := p.IterationLimit
	if limit <= 0 {
		limit = defaultIterations
	}

	curr := s.seed(&p)
	best := curr.clone()
	bestCost := s.cost(&p, best)
	currCost := bestCost

	remW := []float64{1, 1} // random, related
	insW := []float64{1, 1} // greedy, regret-2
	temp := initialTemp

	for iter := 0; iter < limit; iter++ {
		if err := ctx.Err(); err != nil {
			return solver.Solution{}, err
		}
		k := 1 + rng.IntN(3)
		rop := pickOperator(remW, src)
		iop := pickOperator(insW, src)

		cand := curr.clone()
		switch rop {
		case 0:
			s.randomRemoval(&p, cand, k, rng)
		case 1:
			s.relatedRemoval(&p, cand, k, rng)
		}
		// Repair over everything currently unassigned, not just the jobs the
		// removal operator took out, so jobs dropped in earlier iterations
		// keep getting retried.
		pending := unassignedList(cand)
		switch iop {
		case 0:
			s.greedyRepair(&p, cand, pending)
		case 1:
			s.regretRepair(&p, cand, pending)
		}
		candCost := s.cost(&p, cand)

		delta := candCost - currCost
		if delta < 0 || rng.Float64() < math.Exp(-delta/(temp+1e-9)) {
			curr = cand
			currCost = candCost
			if candCost < bestCost {
				best = cand.clone()
				bestCost = candCost
				remW[rop] += 0.1
				insW[iop] += 0.1
			} else {
				remW[rop] += 0.01
				insW[iop] += 0.01
			}
		} else {
			remW[rop] = math.Max(0.01, remW[rop]*0.999)
			insW[iop] = math.Max(0.01, insW[iop]*0.999)
		}
		temp *= cooling
	}

	for j := range best.unassigned {
		if p.Jobs[j].Priority == solver.Mandatory {
			return solver.Solution{}, solver.ErrNoSolution
		}
	}
	return s.materialize(&p, best, bestCost), nil
}

// seed builds the initial solution: mandatory jobs first, each placed at its
// cheapest feasible position, then optionals.
func (s *Solver) seed(p *solver.Problem) *state {
	st := newState(p)
	order := make([]int, 0, len(p.Jobs))
	for j := range p.Jobs {
		order = append(order, j)
	}
	sort.Slice(order, func(a, b int) bool {
		ja, jb := p.Jobs[order[a]], p.Jobs[order[b]]
		if ja.Priority != jb.Priority {
			return ja.Priority > jb.Priority
		}
		return ja.ID < jb.ID
	})
	for _, j := range order {
		if ins, _, ok := s.bestInsertion(p, st, j); ok {
			st.routes[ins.vehicle] = ins.steps
			delete(st.unassigned, j)
		}
	}
	return st
}

// randomRemoval strips k random movable jobs. Delivery-only continuity jobs
// are pinned and never removed.
func (s *Solver) randomRemoval(p *solver.Problem, st *state, k int, rng *rand.Rand) []int {
	movable := assignedMovable(p, st)
	removed := make([]int, 0, k)
	for i := 0; i < k && len(movable) > 0; i++ {
		idx := rng.IntN(len(movable))
		j := movable[idx]
		movable = append(movable[:idx], movable[idx+1:]...)
		st.removeJob(j)
		removed = append(removed, j)
	}
	return removed
}

// relatedRemoval removes a random seed job plus the jobs most related to it
// by pickup proximity and delivery-window overlap (Shaw removal).
func (s *Solver) relatedRemoval(p *solver.Problem, st *state, k int, rng *rand.Rand) []int {
	movable := assignedMovable(p, st)
	if len(movable) == 0 {
		return nil
	}
	seed := movable[rng.IntN(len(movable))]
	sj := p.Jobs[seed]
	type scored struct {
		job   int
		score float64
	}
	rel := make([]scored, 0, len(movable))
	for _, j := range movable {
		if j == seed {
			continue
		}
		job := p.Jobs[j]
		geo := sj.Pickup.DistanceTo(job.Pickup)
		overlap := timeWindowOverlap(sj.DeliveryWindow, job.DeliveryWindow)
		rel = append(rel, scored{job: j, score: geo - overlap})
	}
	sort.Slice(rel, func(a, b int) bool { return rel[a].score < rel[b].score })

	removed := []int{seed}
	st.removeJob(seed)
	for i := 0; i < len(rel) && len(removed) < k; i++ {
		st.removeJob(rel[i].job)
		removed = append(removed, rel[i].job)
	}
	return removed
}

// greedyRepair reinserts removed jobs cheapest-first.
func (s *Solver) greedyRepair(p *solver.Problem, st *state, removed []int) {
	pending := append([]int(nil), removed...)
	for len(pending) > 0 {
		bestJob := -1
		var bestIns insertion
		bestIns.delta = math.MaxFloat64
		for _, j := range pending {
			if ins, _, ok := s.bestInsertion(p, st, j); ok && ins.delta < bestIns.delta {
				bestIns = ins
				bestJob = j
			}
		}
		if bestJob < 0 {
			return
		}
		st.routes[bestIns.vehicle] = bestIns.steps
		delete(st.unassigned, bestJob)
		pending = deleteInt(pending, bestJob)
	}
}

// regretRepair reinserts removed jobs by largest regret-2 first: the job
// that loses the most if it misses its best slot goes in first.
func (s *Solver) regretRepair(p *solver.Problem, st *state, removed []int) {
	pending := append([]int(nil), removed...)
	for len(pending) > 0 {
		bestJob := -1
		var bestIns insertion
		bestRegret := -1.0
		for _, j := range pending {
			ins, second, ok := s.bestInsertion(p, st, j)
			if !ok {
				continue
			}
			regret := second - ins.delta
			if math.IsInf(regret, 1) || second == math.MaxFloat64 {
				regret = math.MaxFloat64
			}
			if regret > bestRegret || bestJob < 0 {
				bestRegret = regret
				bestIns = ins
				bestJob = j
			}
		}
		if bestJob < 0 {
			return
		}
		st.routes[bestIns.vehicle] = bestIns.steps
		delete(st.unassigned, bestJob)
		pending = deleteInt(pending, bestJob)
	}
}

// materialize converts the internal state into a solver.Solution with
// concrete activity times.
func (s *Solver) materialize(p *solver.Problem, st *state, cost float64) solver.Solution {
	sol := solver.Solution{Cost: cost}
	for vi, steps := range st.routes {
		v := p.Vehicles[vi]
		route := solver.Route{VehicleID: v.ID}
		loc := v.Start
		now := v.EarliestStart
		for _, sp := range steps {
			job := p.Jobs[sp.job]
			target := job.Pickup
			win := job.PickupWindow
			kind := solver.PickupActivity
			if sp.delivery {
				target = job.Delivery
				win = job.DeliveryWindow
				kind = solver.DeliverActivity
			}
			now = now.Add(s.est.TravelTime(loc, target, now))
			arrival := now
			if !win.Start.IsZero() && now.Before(win.Start) {
				now = win.Start
			}
			now = now.Add(job.Service)
			route.Activities = append(route.Activities, solver.Activity{
				JobID:     job.ID,
				Kind:      kind,
				Location:  target,
				Arrival:   arrival,
				Departure: now,
			})
			loc = target
		}
		sol.Routes = append(sol.Routes, route)
	}
	unassigned := make([]int, 0, len(st.unassigned))
	for j := range st.unassigned {
		unassigned = append(unassigned, j)
	}
	sort.Ints(unassigned)
	for _, j := range unassigned {
		sol.Unassigned = append(sol.Unassigned, p.Jobs[j].ID)
	}
	return sol
}

// pickOperator draws an operator index with probability proportional to its
// weight.
func pickOperator(weights []float64, src rand.Source) int {
	w := sampleuv.NewWeighted(weights, src)
	if idx, ok := w.Take(); ok {
		return idx
	}
	return 0
}

func unassignedList(st *state) []int {
	out := make([]int, 0, len(st.unassigned))
	for j := range st.unassigned {
		out = append(out, j)
	}
	sort.Ints(out)
	return out
}

func assignedMovable(p *solver.Problem, st *state) []int {
	movable := make([]int, 0, len(p.Jobs))
	for j := range p.Jobs {
		if st.unassigned[j] || p.Jobs[j].DeliveryOnly {
			continue
		}
		movable = append(movable, j)
	}
	return movable
}

func deleteInt(s []int, v int) []int {
	for i, x := range s {
		if x == v {
			return append(s[:i], s[i+1:]...)
		}
	}
	return s
}

var _ solver.Solver = (*Solver)(nil)
