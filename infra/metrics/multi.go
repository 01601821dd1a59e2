package metrics

import coremetrics "github.com/ridepool/dispatch/core/metrics"

// MultiSink fans dispatch events out to multiple sinks.
type MultiSink struct {
	Sinks []coremetrics.Sink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...coremetrics.Sink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

// RecordInsertion forwards the event to all sinks, returning the first
// error encountered.
func (m *MultiSink) RecordInsertion(ev coremetrics.InsertionEvent) error {
	for _, s := range m.Sinks {
		if err := s.RecordInsertion(ev); err != nil {
			return err
		}
	}
	return nil
}

// RecordCycle forwards the event to all sinks.
func (m *MultiSink) RecordCycle(ev coremetrics.CycleEvent) error {
	for _, s := range m.Sinks {
		if err := s.RecordCycle(ev); err != nil {
			return err
		}
	}
	return nil
}

// RecordFleetSize forwards the fleet size to all sinks.
func (m *MultiSink) RecordFleetSize(size int) error {
	for _, s := range m.Sinks {
		if err := s.RecordFleetSize(size); err != nil {
			return err
		}
	}
	return nil
}
