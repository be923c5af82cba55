// Package websocket delivers request events to observers over WebSocket.
//
// An observer subscribes with GET /api/events?clientId=<id>. Every exchange
// the rewrite endpoint processes for that client id is then pushed to it as a
// JSON event: REQUEST_START when the mock-or-forward decision is made and
// REQUEST_END once the response is known.
//
// Delivery is best-effort. Each connection has a bounded send buffer drained
// by its own writer goroutine; when the buffer is full the event is dropped
// for that observer rather than blocking the exchange that produced it.
package websocket
