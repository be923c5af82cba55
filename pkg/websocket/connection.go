package websocket

import (
	"context"
	"sync/atomic"
	"time"

	ws "github.com/coder/websocket"
	"github.com/google/uuid"
)

// sendBufferSize bounds the per-connection event backlog. A consistently
// slow observer loses events instead of stalling the exchanges it watches.
const sendBufferSize = 100

// Connection is one observer subscription: a WebSocket bound to a client id.
type Connection struct {
	id          string
	clientID    string
	remoteAddr  string
	conn        *ws.Conn
	connectedAt time.Time

	send       chan []byte
	eventsSent atomic.Int64

	ctx    context.Context
	cancel context.CancelFunc
	closed atomic.Bool
}

func newConnection(wsConn *ws.Conn, clientID, remoteAddr string) *Connection {
	ctx, cancel := context.WithCancel(context.Background())
	return &Connection{
		id:          uuid.NewString(),
		clientID:    clientID,
		remoteAddr:  remoteAddr,
		conn:        wsConn,
		connectedAt: time.Now(),
		send:        make(chan []byte, sendBufferSize),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// ID returns the unique connection id.
func (c *Connection) ID() string {
	return c.id
}

// ClientID returns the client id this observer watches.
func (c *Connection) ClientID() string {
	return c.clientID
}

// RemoteAddr returns the observer's remote address.
func (c *Connection) RemoteAddr() string {
	return c.remoteAddr
}

// ConnectedAt returns the connection establishment time.
func (c *Connection) ConnectedAt() time.Time {
	return c.connectedAt
}

// EventsSent returns the number of events written to the peer so far.
func (c *Connection) EventsSent() int64 {
	return c.eventsSent.Load()
}

// IsClosed reports whether the connection has been closed.
func (c *Connection) IsClosed() bool {
	return c.closed.Load()
}

// Send queues one event frame for delivery. It never blocks: when the send
// buffer is full the frame is dropped and ErrSendBufferFull returned.
func (c *Connection) Send(data []byte) error {
	if c.closed.Load() {
		return ErrConnectionClosed
	}
	select {
	case c.send <- data:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// writePump drains the send buffer onto the wire. It exits when the
// connection context ends or a write fails, cancelling the context so the
// read side unblocks too.
func (c *Connection) writePump() {
	for {
		select {
		case <-c.ctx.Done():
			return
		case data := <-c.send:
			if err := c.conn.Write(c.ctx, ws.MessageText, data); err != nil {
				c.cancel()
				return
			}
			c.eventsSent.Add(1)
		}
	}
}

// discardInbound consumes frames from the peer until the connection fails or
// closes. The event stream carries no client-to-server messages, but reading
// is what services close handshakes and control frames.
func (c *Connection) discardInbound() {
	for {
		if _, _, err := c.conn.Read(c.ctx); err != nil {
			return
		}
	}
}

// Close closes the connection with the given status. Calling Close more than
// once returns ErrConnectionClosed.
func (c *Connection) Close(code ws.StatusCode, reason string) error {
	if c.closed.Swap(true) {
		return ErrConnectionClosed
	}
	c.cancel()
	return c.conn.Close(code, reason)
}

// CloseNormal closes the connection with a normal closure status.
func (c *Connection) CloseNormal() error {
	return c.Close(ws.StatusNormalClosure, "")
}

// ConnectionInfo is the public view of one observer connection.
type ConnectionInfo struct {
	ID          string    `json:"id"`
	ClientID    string    `json:"clientId"`
	RemoteAddr  string    `json:"remoteAddr,omitempty"`
	ConnectedAt time.Time `json:"connectedAt"`
	EventsSent  int64     `json:"eventsSent"`
}

// Info returns public information about this connection.
func (c *Connection) Info() *ConnectionInfo {
	return &ConnectionInfo{
		ID:          c.id,
		ClientID:    c.clientID,
		RemoteAddr:  c.remoteAddr,
		ConnectedAt: c.connectedAt,
		EventsSent:  c.eventsSent.Load(),
	}
}
