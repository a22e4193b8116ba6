//go:build !linux

package netdiag

import (
	"fmt"
	"net"
	"time"
)

// ResolveMAC has no raw-socket implementation on this platform.
func ResolveMAC(ip net.IP, timeout time.Duration) (net.HardwareAddr, error) {
	return nil, fmt.Errorf("netdiag: ARP probing not supported on this platform")
}
