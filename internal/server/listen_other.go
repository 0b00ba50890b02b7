//go:build !linux

package server

import (
	"fmt"
	"net"
)

// listenTCP ignores backlog; the platform default applies.
func listenTCP(addr string, _ int) (net.Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	return ln, nil
}
