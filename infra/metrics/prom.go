package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	coremetrics "github.com/ridepool/dispatch/core/metrics"
)

// PromSink records dispatch events in Prometheus metrics.
type PromSink struct {
	insertions *prometheus.CounterVec
	latency    *prometheus.HistogramVec
	cycles     *prometheus.CounterVec
	cycleTime  prometheus.Histogram
	unassigned prometheus.Gauge
	fleet      prometheus.Gauge
}

// NewPromSink registers dispatch metrics on the default Prometheus
// registerer. The HTTP server is started separately with StartPromServer.
func NewPromSink(cfg coremetrics.Config) (coremetrics.Sink, error) {
	return NewPromSinkWithRegistry(cfg, prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global one.
func NewPromSinkWithRegistry(_ coremetrics.Config, reg prometheus.Registerer) (coremetrics.Sink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PromSink{
		insertions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dispatch_insertions_total",
			Help: "Total number of online insertion attempts",
		}, []string{"accepted"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dispatch_insertion_seconds",
			Help:    "Wall time of one online insertion attempt",
			Buckets: prometheus.DefBuckets,
		}, []string{"accepted"}),
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dispatch_cycles_total",
			Help: "Total number of batch re-optimization cycles",
		}, []string{"outcome"}),
		cycleTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "dispatch_cycle_seconds",
			Help:    "Wall time of one batch cycle",
			Buckets: prometheus.DefBuckets,
		}),
		unassigned: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dispatch_unassigned_jobs",
			Help: "Jobs the last cycle left unassigned",
		}),
		fleet: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dispatch_fleet_vehicles",
			Help: "Number of vehicles in the last snapshot set",
		}),
	}
	collectors := []prometheus.Collector{s.insertions, s.latency, s.cycles, s.cycleTime, s.unassigned, s.fleet}
	for i, c := range collectors {
		if err := reg.Register(c); err != nil {
			if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
				switch i {
				case 0:
					s.insertions = are.ExistingCollector.(*prometheus.CounterVec)
				case 1:
					s.latency = are.ExistingCollector.(*prometheus.HistogramVec)
				case 2:
					s.cycles = are.ExistingCollector.(*prometheus.CounterVec)
				case 3:
					s.cycleTime = are.ExistingCollector.(prometheus.Histogram)
				case 4:
					s.unassigned = are.ExistingCollector.(prometheus.Gauge)
				case 5:
					s.fleet = are.ExistingCollector.(prometheus.Gauge)
				}
				continue
			}
			return nil, err
		}
	}
	return s, nil
}

// RecordInsertion counts the attempt and observes its latency.
func (s *PromSink) RecordInsertion(ev coremetrics.InsertionEvent) error {
	accepted := strconv.FormatBool(ev.Accepted)
	s.insertions.WithLabelValues(accepted).Inc()
	s.latency.WithLabelValues(accepted).Observe(ev.Elapsed.Seconds())
	return nil
}

// RecordCycle counts the cycle outcome and updates the unassigned gauge.
func (s *PromSink) RecordCycle(ev coremetrics.CycleEvent) error {
	outcome := "applied"
	if ev.Fallback {
		outcome = "fallback"
	}
	s.cycles.WithLabelValues(outcome).Inc()
	s.cycleTime.Observe(ev.Elapsed.Seconds())
	if !ev.Fallback {
		s.unassigned.Set(float64(ev.Unassigned))
	}
	return nil
}

// RecordFleetSize sets the fleet gauge.
func (s *PromSink) RecordFleetSize(size int) error {
	s.fleet.Set(float64(size))
	return nil
}

// StartPromServer serves the default registry on /metrics and blocks.
func StartPromServer(port string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: ":" + port, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	return srv.ListenAndServe()
}
