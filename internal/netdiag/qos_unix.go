//go:build linux || darwin

package netdiag

import (
	"fmt"
	"net"

	"golang.org/x/sys/unix"
)

// SetTOS marks every datagram sent on conn with the given IP TOS byte. The
// values the streams use (160 for video, 224 for audio) are fixed by the
// protocol; marking is best-effort and callers only log failures.
func SetTOS(conn *net.UDPConn, tos int) error {
	raw, err := conn.SyscallConn()
	if err != nil {
		return fmt.Errorf("netdiag: raw conn: %w", err)
	}

	var sockErr error
	err = raw.Control(func(fd uintptr) {
		sockErr = unix.SetsockoptInt(int(fd), unix.IPPROTO_IP, unix.IP_TOS, tos)
		if v6Err := unix.SetsockoptInt(int(fd), unix.IPPROTO_IPV6, unix.IPV6_TCLASS, tos); v6Err != nil && sockErr == nil {
			// Dual-stack sockets want both; a v4-only socket rejecting the
			// v6 option is not a failure.
			log.Debug("IPV6_TCLASS not applied", "error", v6Err)
		}
	})
	if err != nil {
		return fmt.Errorf("netdiag: control: %w", err)
	}
	if sockErr != nil {
		return fmt.Errorf("netdiag: set IP_TOS: %w", sockErr)
	}
	return nil
}
