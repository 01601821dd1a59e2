// Package app wires configuration, connectors and the dispatch core into
// a runnable service.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/ridepool/dispatch/config"
	"github.com/ridepool/dispatch/core/dispatch"
	coremetrics "github.com/ridepool/dispatch/core/metrics"
	"github.com/ridepool/dispatch/core/solver/alns"
	"github.com/ridepool/dispatch/core/travel"
	"github.com/ridepool/dispatch/infra/logger"
	"github.com/ridepool/dispatch/infra/metrics"
	"github.com/ridepool/dispatch/infra/mqtt"
)

// Service owns the dispatch manager and its MQTT connectors.
type Service struct {
	Manager *dispatch.Manager

	client      *mqtt.Client
	source      *mqtt.RequestSource
	interval    time.Duration
	log         logger.Logger
	promEnabled bool
	promPort    string
}

// New creates a Service from the configuration.
func New(cfg *config.Config) (*Service, error) {
	logg := logger.New("service")
	client, err := mqtt.NewClient(cfg.MQTT)
	if err != nil {
		return nil, fmt.Errorf("mqtt client: %w", err)
	}

	var sinks []coremetrics.Sink
	if cfg.Metrics.PrometheusEnabled {
		sink, err := metrics.NewPromSink(cfg.Metrics)
		if err != nil {
			return nil, fmt.Errorf("prom sink: %w", err)
		}
		sinks = append(sinks, sink)
	}
	if cfg.Metrics.InfluxEnabled {
		sinks = append(sinks, metrics.NewInfluxSinkWithFallback(cfg.Metrics))
	}
	var sink coremetrics.Sink
	if len(sinks) == 1 {
		sink = sinks[0]
	} else if len(sinks) > 1 {
		sink = metrics.NewMultiSink(sinks...)
	}

	fleet, err := mqtt.NewFleetState(client)
	if err != nil {
		return nil, fmt.Errorf("fleet state: %w", err)
	}
	source, err := mqtt.NewRequestSource(client)
	if err != nil {
		return nil, fmt.Errorf("request source: %w", err)
	}
	est := travel.NewConstantSpeed(cfg.Travel.SpeedKph)
	manager, err := dispatch.NewManager(
		cfg.Dispatch,
		est,
		alns.New(est),
		fleet,
		mqtt.NewTaskPublisher(client),
		logg,
		sink,
	)
	if err != nil {
		return nil, fmt.Errorf("dispatch manager: %w", err)
	}

	return &Service{
		Manager:     manager,
		client:      client,
		source:      source,
		interval:    cfg.Dispatch.Interval(),
		log:         logg,
		promEnabled: cfg.Metrics.PrometheusEnabled,
		promPort:    cfg.Metrics.PrometheusPort,
	}, nil
}

// Run starts the service and blocks until the context is cancelled.
func (s *Service) Run(ctx context.Context) error {
	events := make(chan dispatch.Event, 64)
	go s.Manager.Run(ctx, events)
	go s.pump(ctx, events)
	if s.promEnabled {
		go func() {
			if err := metrics.StartPromServer(s.promPort); err != nil {
				s.log.Errorf("prom server: %v", err)
			}
		}()
	}
	<-ctx.Done()
	return nil
}

// pump merges incoming requests and the re-optimization ticker into the
// single event stream the manager consumes.
func (s *Service) pump(ctx context.Context, events chan<- dispatch.Event) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-s.source.Events():
			events <- ev
		case t := <-ticker.C:
			events <- dispatch.ReoptimizeTick{At: t}
		}
	}
}

// Close releases connectors and the manager.
func (s *Service) Close() {
	s.source.Close()
	s.client.Close()
	s.Manager.Close()
}
