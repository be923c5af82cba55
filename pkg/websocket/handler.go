package websocket

import (
	"log/slog"
	"net/http"

	ws "github.com/coder/websocket"
)

// DefaultMaxMessageSize caps inbound frames on the event stream. Observers
// are not expected to send anything beyond control frames.
const DefaultMaxMessageSize = 32 * 1024

// EventsHandler upgrades GET /api/events requests into observer connections.
type EventsHandler struct {
	manager        *Manager
	logger         *slog.Logger
	maxMessageSize int64
}

// EventsHandlerOption configures an EventsHandler.
type EventsHandlerOption func(*EventsHandler)

// WithEventsLogger sets the logger.
func WithEventsLogger(logger *slog.Logger) EventsHandlerOption {
	return func(h *EventsHandler) { h.logger = logger }
}

// WithMaxMessageSize sets the inbound frame size limit.
func WithMaxMessageSize(n int64) EventsHandlerOption {
	return func(h *EventsHandler) { h.maxMessageSize = n }
}

// NewEventsHandler creates the upgrade handler bound to a manager.
func NewEventsHandler(manager *Manager, opts ...EventsHandlerOption) *EventsHandler {
	h := &EventsHandler{
		manager:        manager,
		logger:         slog.Default(),
		maxMessageSize: DefaultMaxMessageSize,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// ServeHTTP implements http.Handler.
func (h *EventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	clientID := r.URL.Query().Get("clientId")
	if clientID == "" {
		http.Error(w, "clientId query parameter is required", http.StatusBadRequest)
		return
	}

	wsConn, err := ws.Accept(w, r, &ws.AcceptOptions{
		// Observers connect from arbitrary page origins.
		InsecureSkipVerify: true,
		CompressionMode:    ws.CompressionDisabled,
	})
	if err != nil {
		h.logger.Debug("websocket accept failed", "error", err)
		return
	}
	wsConn.SetReadLimit(h.maxMessageSize)

	conn := newConnection(wsConn, clientID, r.RemoteAddr)
	h.manager.Add(conn)
	h.logger.Info("observer connected",
		"connection", conn.ID(),
		"client", clientID,
		"remote", r.RemoteAddr)

	go h.serve(conn)
}

// serve runs the connection until the peer goes away, then cleans up.
func (h *EventsHandler) serve(conn *Connection) {
	defer func() {
		h.manager.Remove(conn.ID())
		_ = conn.CloseNormal()
		h.logger.Info("observer disconnected",
			"connection", conn.ID(),
			"client", conn.ClientID(),
			"events", conn.EventsSent())
	}()

	go conn.writePump()
	conn.discardInbound()
}
