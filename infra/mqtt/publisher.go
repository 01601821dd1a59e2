package mqtt

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/ridepool/dispatch/core/dispatch"
	"github.com/ridepool/dispatch/core/model"
	"github.com/ridepool/dispatch/infra/logger"
)

var _ dispatch.TaskSink = (*TaskPublisher)(nil)

// taskMessage is the wire form of a per-vehicle instruction.
type taskMessage struct {
	Kind  string    `json:"kind"` // divert | hold | wait
	Lat   float64   `json:"lat,omitempty"`
	Lon   float64   `json:"lon,omitempty"`
	From  time.Time `json:"from,omitempty"`
	Until time.Time `json:"until,omitempty"`
}

// TaskPublisher sends diversion instructions to vehicles, one topic per
// vehicle under the configured prefix.
type TaskPublisher struct {
	client *Client
	log    logger.Logger
}

// NewTaskPublisher returns a publisher on the client's diversion topic.
func NewTaskPublisher(client *Client) *TaskPublisher {
	return &TaskPublisher{client: client, log: logger.New("mqtt-tasks")}
}

// Divert redirects a vehicle to a new next stop.
func (p *TaskPublisher) Divert(vehicleID string, target model.Location, from time.Time) error {
	return p.publish(vehicleID, taskMessage{Kind: "divert", Lat: target.Lat, Lon: target.Lon, From: from})
}

// Hold tells a vehicle its route was cleared and it should stop after
// its committed work.
func (p *TaskPublisher) Hold(vehicleID string, from time.Time) error {
	return p.publish(vehicleID, taskMessage{Kind: "hold", From: from})
}

// Wait tells a vehicle to idle in place until the given instant.
func (p *TaskPublisher) Wait(vehicleID string, until time.Time) error {
	return p.publish(vehicleID, taskMessage{Kind: "wait", Until: until})
}

func (p *TaskPublisher) publish(vehicleID string, m taskMessage) error {
	payload, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal task: %w", err)
	}
	topic := fmt.Sprintf("%s/%s/task", p.client.cfg.DiversionTopic, vehicleID)
	token := p.client.cli.Publish(topic, p.client.cfg.QoS, false, payload)
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("publish %s: %w", topic, token.Error())
	}
	p.log.Debugf("published %s task to %s", m.Kind, topic)
	return nil
}
