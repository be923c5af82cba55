package websocket

import "errors"

var (
	// ErrConnectionClosed is returned when sending on a closed connection.
	ErrConnectionClosed = errors.New("connection closed")

	// ErrConnectionNotFound is returned when a connection id is unknown.
	ErrConnectionNotFound = errors.New("connection not found")

	// ErrSendBufferFull is returned when an observer's send buffer is full
	// and the event was dropped.
	ErrSendBufferFull = errors.New("send buffer full")
)
