package dispatch

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ridepool/dispatch/core/batch"
	"github.com/ridepool/dispatch/core/insertion"
	"github.com/ridepool/dispatch/core/logger"
	"github.com/ridepool/dispatch/core/metrics"
	"github.com/ridepool/dispatch/core/model"
	"github.com/ridepool/dispatch/core/schedule"
	"github.com/ridepool/dispatch/core/solver"
	"github.com/ridepool/dispatch/core/travel"
	"github.com/ridepool/dispatch/internal/eventbus"
)

// Manager is the dispatch orchestrator. It owns the fleet schedule between
// algorithm invocations, runs the online inserter for every spontaneous
// request and the batch path on every re-optimization tick, and hands
// diversions back to the task executor. Both paths run to completion before
// the next event is consumed; the single event loop is the serialization
// point the ownership model requires.
type Manager struct {
	cfg       Config
	inserter  *insertion.Inserter
	builder   *batch.Builder
	solver    solver.Solver
	snapshots SnapshotSource
	sink      TaskSink
	log       logger.Logger
	metrics   metrics.Sink
	bus       *eventbus.Bus[Notification]

	mu      sync.Mutex
	sched   *schedule.FleetSchedule
	pending map[string]*model.Request
}

// NewManager wires the dispatch core. est is the travel-time oracle shared
// by both algorithm paths.
func NewManager(cfg Config, est travel.Estimator, slv solver.Solver, src SnapshotSource, sink TaskSink, log logger.Logger, sink2 metrics.Sink) (*Manager, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.Nop{}
	}
	if sink2 == nil {
		sink2 = metrics.NopSink{}
	}
	return &Manager{
		cfg:       cfg,
		inserter:  insertion.New(est, cfg.Service(), cfg.PruneStrategy()),
		builder:   batch.NewBuilder(est, cfg.Service()),
		solver:    slv,
		snapshots: src,
		sink:      sink,
		log:       log,
		metrics:   sink2,
		bus:       eventbus.New[Notification](),
		sched:     schedule.New(),
		pending:   make(map[string]*model.Request),
	}, nil
}

// Notifications returns a subscription to decision notifications.
func (m *Manager) Notifications() <-chan Notification { return m.bus.Subscribe() }

// Schedule returns a copy of the current fleet schedule.
func (m *Manager) Schedule() *schedule.FleetSchedule {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sched.Clone()
}

// Close releases the notification bus.
func (m *Manager) Close() {
	m.bus.Close()
}

// Run consumes events until the context is canceled.
func (m *Manager) Run(ctx context.Context, events <-chan Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			switch e := ev.(type) {
			case RequestArrived:
				m.HandleRequest(ctx, e.Request, e.At)
			case ReoptimizeTick:
				if err := m.Reoptimize(ctx, e.At); err != nil {
					m.log.Warnf("cycle at %v kept previous schedule: %v", e.At, err)
				}
			case VehicleIdle:
				m.log.Debugf("vehicle %s idle at %v", e.VehicleID, e.At)
			}
		}
	}
}

// HandleRequest routes one request: prebooked requests whose pickup lies
// beyond the current horizon are parked for a future batch cycle, everything
// else goes through the online inserter immediately.
func (m *Manager) HandleRequest(ctx context.Context, req *model.Request, at time.Time) {
	if err := req.Validate(); err != nil {
		m.log.Errorf("dropping invalid request: %v", err)
		return
	}
	if req.EarliestPickup.After(at.Add(m.cfg.Horizon())) {
		m.mu.Lock()
		m.pending[req.ID] = req
		m.mu.Unlock()
		m.log.Debugf("request %s prebooked for %v", req.ID, req.EarliestPickup)
		return
	}
	m.InsertSpontaneous(ctx, req, at)
}

// InsertSpontaneous runs the online best-insertion heuristic for one
// request and applies the result to the fleet schedule. An infeasible
// insertion is not an error: the request is recorded as rejected and the
// schedule is left untouched.
func (m *Manager) InsertSpontaneous(ctx context.Context, req *model.Request, at time.Time) (string, bool) {
	started := time.Now()
	snaps, err := m.snapshots.Snapshots(ctx)
	if err != nil {
		m.log.Errorf("snapshots unavailable, rejecting request %s: %v", req.ID, err)
		m.rejectRequest(req, at, started)
		return "", false
	}
	m.mu.Lock()
	vehicleID, ok := m.inserter.Insert(req, m.sched, snaps)
	if !ok {
		m.sched.Reject(req.ID)
	}
	m.mu.Unlock()
	if !ok {
		m.rejectRequest(req, at, started)
		return "", false
	}
	m.log.Infof("request %s assigned to vehicle %s", req.ID, vehicleID)
	m.bus.Publish(Notification{Kind: "insertion_accepted", RequestID: req.ID, VehicleID: vehicleID, At: at})
	m.recordInsertion(metrics.InsertionEvent{
		RequestID: req.ID, VehicleID: vehicleID, Accepted: true,
		Elapsed: time.Since(started), Time: at,
	})
	return vehicleID, true
}

func (m *Manager) rejectRequest(req *model.Request, at time.Time, started time.Time) {
	m.log.Infof("request %s rejected: no feasible insertion", req.ID)
	m.bus.Publish(Notification{Kind: "insertion_rejected", RequestID: req.ID, At: at})
	m.recordInsertion(metrics.InsertionEvent{
		RequestID: req.ID, Accepted: false, Elapsed: time.Since(started), Time: at,
	})
}

// Reoptimize runs one batch cycle. On any failure the previous fleet
// schedule is kept unchanged; there is no partial-commit state.
func (m *Manager) Reoptimize(ctx context.Context, now time.Time) error {
	started := time.Now()
	snaps, err := m.snapshots.Snapshots(ctx)
	if err != nil {
		return m.fallback(now, started, fmt.Errorf("snapshots: %w", err))
	}
	if err := m.metrics.RecordFleetSize(len(snaps)); err != nil {
		m.log.Debugf("record fleet size: %v", err)
	}

	m.mu.Lock()
	prev := m.sched
	due := m.dueRequestsLocked(now)
	m.mu.Unlock()

	problem, jobs, err := m.builder.Build(prev, snaps, due, now)
	if err != nil {
		return m.fallback(now, started, fmt.Errorf("build problem: %w", err))
	}
	problem.Objective = batch.NewObjective(m.cfg.Objective, prev, snaps, now, m.cfg.Horizon())
	problem.IterationLimit = m.cfg.SolverIterations
	problem.Seed = m.cfg.SolverSeed

	sol, err := m.solver.Solve(ctx, problem)
	if err != nil {
		return m.fallback(now, started, fmt.Errorf("solve: %w", err))
	}
	next, divs, err := batch.Reconcile(sol, jobs, snaps, prev, m.cfg.Service())
	if err != nil {
		return m.fallback(now, started, fmt.Errorf("reconcile: %w", err))
	}

	m.mu.Lock()
	m.sched = next
	m.settlePendingLocked(now)
	m.mu.Unlock()

	m.applyDiversions(divs)
	m.log.Infof("cycle at %v: %d jobs, %d unassigned, %d diversions, cost %.1f",
		now, len(problem.Jobs), len(sol.Unassigned), len(divs), sol.Cost)
	m.bus.Publish(Notification{Kind: "cycle_applied", At: now})
	m.recordCycle(metrics.CycleEvent{
		Vehicles: len(snaps), Jobs: len(problem.Jobs), Unassigned: len(sol.Unassigned),
		Diversions: divs, Cost: sol.Cost, Elapsed: time.Since(started), Time: now,
	})
	return nil
}

func (m *Manager) fallback(now, started time.Time, err error) error {
	m.bus.Publish(Notification{Kind: "cycle_fallback", At: now})
	m.recordCycle(metrics.CycleEvent{Fallback: true, Elapsed: time.Since(started), Time: now})
	return err
}

// dueRequestsLocked returns pending requests whose earliest pickup falls
// within the current horizon, sorted for deterministic problem building.
func (m *Manager) dueRequestsLocked(now time.Time) []*model.Request {
	edge := now.Add(m.cfg.Horizon())
	var due []*model.Request
	for _, req := range m.pending {
		if req.EarliestPickup.Before(edge) && !req.LatestPickup.Before(now) {
			due = append(due, req)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].ID < due[j].ID })
	return due
}

// settlePendingLocked drops pending requests the new schedule absorbed and
// rejects those whose pickup window has lapsed.
func (m *Manager) settlePendingLocked(now time.Time) {
	for id, req := range m.pending {
		if _, assigned := m.sched.AssignedVehicle(id); assigned {
			delete(m.pending, id)
			continue
		}
		if req.LatestPickup.Before(now) {
			m.sched.Reject(id)
			delete(m.pending, id)
		}
	}
}

func (m *Manager) applyDiversions(divs []batch.Diversion) {
	for _, d := range divs {
		var err error
		switch d.Kind {
		case batch.Hold:
			err = m.sink.Hold(d.VehicleID, d.From)
		case batch.Wait:
			err = m.sink.Wait(d.VehicleID, d.Until)
		default:
			err = m.sink.Divert(d.VehicleID, d.Target, d.From)
		}
		if err != nil {
			m.log.Errorf("%s for vehicle %s: %v", d.Kind, d.VehicleID, err)
		}
	}
}

func (m *Manager) recordInsertion(ev metrics.InsertionEvent) {
	if err := m.metrics.RecordInsertion(ev); err != nil {
		m.log.Debugf("record insertion: %v", err)
	}
}

func (m *Manager) recordCycle(ev metrics.CycleEvent) {
	if err := m.metrics.RecordCycle(ev); err != nil {
		m.log.Debugf("record cycle: %v", err)
	}
}
