//go:build !linux && !darwin

package netdiag

import (
	"fmt"
	"net"
)

// SetTOS is unavailable on this platform; the streams treat that as a
// non-fatal condition.
func SetTOS(conn *net.UDPConn, tos int) error {
	return fmt.Errorf("netdiag: TOS marking not supported on this platform")
}
