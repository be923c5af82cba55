package websocket

import (
	"encoding/json"
	"log/slog"

	"github.com/getmoxy/moxy/pkg/events"
	"github.com/getmoxy/moxy/pkg/metrics"
)

// Publisher adapts the connection manager to the events.Publisher port used
// by the rewrite endpoint.
type Publisher struct {
	manager *Manager
	logger  *slog.Logger
}

// PublisherOption configures a Publisher.
type PublisherOption func(*Publisher)

// WithPublisherLogger sets the logger.
func WithPublisherLogger(logger *slog.Logger) PublisherOption {
	return func(p *Publisher) { p.logger = logger }
}

// NewPublisher creates a publisher delivering through manager.
func NewPublisher(manager *Manager, opts ...PublisherOption) *Publisher {
	p := &Publisher{
		manager: manager,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Publish encodes the event once and queues it on every observer of
// clientID. A client id with no observers is a no-op; a full observer buffer
// drops the event for that observer only.
func (p *Publisher) Publish(clientID string, topic events.Topic, payload any) {
	if p.manager.CountForClient(clientID) == 0 {
		return
	}

	data, err := json.Marshal(events.Event{Topic: topic, Payload: payload})
	if err != nil {
		p.logger.Error("could not encode event",
			"client", clientID,
			"topic", string(topic),
			"error", err)
		return
	}

	sent, dropped := p.manager.Broadcast(clientID, data)
	if sent > 0 && metrics.EventsPublishedTotal != nil {
		if vec, err := metrics.EventsPublishedTotal.WithLabels(string(topic)); err == nil {
			_ = vec.Add(float64(sent))
		}
	}
	if dropped > 0 {
		p.logger.Debug("dropped events for slow observers",
			"client", clientID,
			"topic", string(topic),
			"dropped", dropped)
		if metrics.EventsDroppedTotal != nil {
			_ = metrics.EventsDroppedTotal.Add(float64(dropped))
		}
	}
}

var _ events.Publisher = (*Publisher)(nil)
