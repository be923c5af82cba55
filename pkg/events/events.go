// Package events defines the realtime event contract between the rewrite
// engine and the observers watching a client's traffic.
//
// Every intercepted exchange produces exactly two events: REQUEST_START when
// the mock-or-forward decision has been made, and REQUEST_END once the
// response is known. Events are addressed by client id; delivery is
// best-effort and never blocks the exchange that produced them.
package events

// Topic identifies the kind of event within a client's stream.
type Topic string

// Event topics.
const (
	TopicRequestStart Topic = "REQUEST_START"
	TopicRequestEnd   Topic = "REQUEST_END"
)

// Event is the envelope delivered to observers.
type Event struct {
	Topic   Topic `json:"topic"`
	Payload any   `json:"payload"`
}

// StartPayload is the payload of a REQUEST_START event.
// RequestData carries the parsed POST body for POST exchanges and the
// literal string "not POST request" for every other method.
type StartPayload struct {
	IsMock         bool                `json:"isMock"`
	Method         string              `json:"method"`
	Host           string              `json:"host"`
	Pathname       string              `json:"pathname"`
	URL            string              `json:"url"`
	RequestHeaders map[string][]string `json:"requestHeaders"`
	RequestData    any                 `json:"requestData"`
}

// EndPayload is the payload of a REQUEST_END event.
// Timecost is wall-clock milliseconds from REQUEST_START to completion and
// includes any configured mock delay.
type EndPayload struct {
	Status         int                 `json:"status"`
	RequestData    any                 `json:"requestData"`
	RequestHeaders map[string][]string `json:"requestHeaders"`
	ResponseBody   any                 `json:"responseBody"`
	Timecost       int64               `json:"timecost"`
}

// NotPOSTRequest is the RequestData sentinel for non-POST exchanges.
const NotPOSTRequest = "not POST request"

// Publisher delivers an event to whatever observers are bound to clientID.
// Implementations must be safe for concurrent use, must treat an unknown
// clientID as a no-op, and must not block or fail the calling exchange.
type Publisher interface {
	Publish(clientID string, topic Topic, payload any)
}

// PublisherFunc adapts a function to the Publisher interface.
type PublisherFunc func(clientID string, topic Topic, payload any)

// Publish calls f.
func (f PublisherFunc) Publish(clientID string, topic Topic, payload any) {
	f(clientID, topic, payload)
}

// NopPublisher discards all events.
type NopPublisher struct{}

// Publish does nothing.
func (NopPublisher) Publish(string, Topic, any) {}

var _ Publisher = (*NopPublisher)(nil)
var _ Publisher = (PublisherFunc)(nil)
