package mqtt

import (
	"encoding/json"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/ridepool/dispatch/core/dispatch"
	"github.com/ridepool/dispatch/core/model"
	"github.com/ridepool/dispatch/infra/logger"
)

// requestMessage is the wire form of a trip request.
type requestMessage struct {
	ID             string    `json:"id"`
	OriginLat      float64   `json:"origin_lat"`
	OriginLon      float64   `json:"origin_lon"`
	DestLat        float64   `json:"dest_lat"`
	DestLon        float64   `json:"dest_lon"`
	EarliestPickup time.Time `json:"earliest_pickup"`
	LatestPickup   time.Time `json:"latest_pickup"`
	LatestArrival  time.Time `json:"latest_arrival"`
}

// RequestSource subscribes to the intake topic and turns incoming trip
// requests into dispatch events. Malformed payloads are logged and
// dropped; requests without an id get one minted.
type RequestSource struct {
	client *Client
	out    chan dispatch.Event
	log    logger.Logger
}

// NewRequestSource subscribes on the client's request topic.
func NewRequestSource(client *Client) (*RequestSource, error) {
	s := &RequestSource{
		client: client,
		out:    make(chan dispatch.Event, 128),
		log:    logger.New("mqtt-requests"),
	}
	token := client.cli.Subscribe(client.cfg.RequestTopic, client.cfg.QoS, s.handle)
	if token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	return s, nil
}

// Events returns the stream consumed by the dispatch loop.
func (s *RequestSource) Events() <-chan dispatch.Event { return s.out }

func (s *RequestSource) handle(_ paho.Client, msg paho.Message) {
	var m requestMessage
	if err := json.Unmarshal(msg.Payload(), &m); err != nil {
		s.log.Errorf("invalid request payload on %s: %v", msg.Topic(), err)
		return
	}
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	req := &model.Request{
		ID:             m.ID,
		Origin:         model.Location{Lat: m.OriginLat, Lon: m.OriginLon},
		Destination:    model.Location{Lat: m.DestLat, Lon: m.DestLon},
		EarliestPickup: m.EarliestPickup,
		LatestPickup:   m.LatestPickup,
		LatestArrival:  m.LatestArrival,
	}
	if err := req.Validate(); err != nil {
		s.log.Errorf("rejecting request: %v", err)
		return
	}
	select {
	case s.out <- dispatch.RequestArrived{Request: req, At: time.Now()}:
	default:
		s.log.Warnf("request channel full, dropping %s", req.ID)
	}
}

// Close stops the subscription. The events channel stays open; the
// dispatch loop shuts down on context cancellation, not channel close.
func (s *RequestSource) Close() {
	s.client.cli.Unsubscribe(s.client.cfg.RequestTopic)
}
