package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/ridepool/dispatch/core/dispatch"
	"github.com/ridepool/dispatch/core/model"
	"github.com/ridepool/dispatch/infra/logger"
)

// stateMessage is the wire form of a vehicle state report.
type stateMessage struct {
	ID             string    `json:"id"`
	Capacity       int       `json:"capacity"`
	Lat            float64   `json:"lat"`
	Lon            float64   `json:"lon"`
	DivertableTime time.Time `json:"divertable_time"`
	ServiceEnd     time.Time `json:"service_end"`
}

// FleetState tracks the last reported state of every vehicle. Vehicles
// publish on <diversion_topic>/<id>/state; a snapshot is served from the
// most recent report of each.
type FleetState struct {
	client *Client
	log    logger.Logger

	mu     sync.RWMutex
	states map[string]model.VehicleSnapshot
}

var _ dispatch.SnapshotSource = (*FleetState)(nil)

// NewFleetState subscribes to the fleet state topics.
func NewFleetState(client *Client) (*FleetState, error) {
	f := &FleetState{
		client: client,
		log:    logger.New("mqtt-fleet"),
		states: make(map[string]model.VehicleSnapshot),
	}
	topic := fmt.Sprintf("%s/+/state", client.cfg.DiversionTopic)
	token := client.cli.Subscribe(topic, client.cfg.QoS, f.handle)
	if token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	return f, nil
}

func (f *FleetState) handle(_ paho.Client, msg paho.Message) {
	var m stateMessage
	if err := json.Unmarshal(msg.Payload(), &m); err != nil {
		f.log.Errorf("invalid state payload on %s: %v", msg.Topic(), err)
		return
	}
	snap := model.VehicleSnapshot{
		ID:             m.ID,
		Capacity:       m.Capacity,
		Divertable:     model.Location{Lat: m.Lat, Lon: m.Lon},
		DivertableTime: m.DivertableTime,
		ServiceEnd:     m.ServiceEnd,
	}
	if err := snap.Validate(); err != nil {
		f.log.Errorf("dropping state report: %v", err)
		return
	}
	f.mu.Lock()
	f.states[snap.ID] = snap
	f.mu.Unlock()
}

// Snapshots returns the last known state of every reporting vehicle.
func (f *FleetState) Snapshots(context.Context) ([]model.VehicleSnapshot, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]model.VehicleSnapshot, 0, len(f.states))
	for _, s := range f.states {
		out = append(out, s)
	}
	return out, nil
}
