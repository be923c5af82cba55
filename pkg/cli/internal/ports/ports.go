// Package ports provides port availability checking.
package ports

import (
	"fmt"
	"net"
)

// IsAvailable reports whether a port can be bound right now.
func IsAvailable(port int) bool {
	return Check(port) == nil
}

// Check binds the port briefly and returns the bind error if it is taken.
func Check(port int) error {
	addr := fmt.Sprintf(":%d", port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	_ = ln.Close()
	return nil
}
