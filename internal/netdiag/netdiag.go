// Package netdiag answers small questions about the host's network
// position: which interface faces a client, what the host's own MAC is, and
// best-effort socket quality-of-service marking for the media streams.
package netdiag

import (
	"fmt"
	"net"

	"github.com/hgaiser/moonshine/internal/logging"
)

var log = logging.L("netdiag")

// Interface describes one usable local network interface.
type Interface struct {
	Name string
	MAC  net.HardwareAddr
	IP   net.IP
}

// PrimaryInterface returns the first up, non-loopback interface carrying an
// IPv4 address. Used to fill /serverinfo's mac field.
func PrimaryInterface() (Interface, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return Interface{}, fmt.Errorf("netdiag: list interfaces: %w", err)
	}

	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		if len(iface.HardwareAddr) == 0 {
			continue
		}

		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			ipNet, ok := addr.(*net.IPNet)
			if !ok {
				continue
			}
			if ip4 := ipNet.IP.To4(); ip4 != nil {
				return Interface{Name: iface.Name, MAC: iface.HardwareAddr, IP: ip4}, nil
			}
		}
	}

	return Interface{}, fmt.Errorf("netdiag: no usable interface found")
}

// InterfaceFor returns the local interface whose subnet contains ip.
func InterfaceFor(ip net.IP) (Interface, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return Interface{}, fmt.Errorf("netdiag: list interfaces: %w", err)
	}

	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			ipNet, ok := addr.(*net.IPNet)
			if !ok || !ipNet.Contains(ip) {
				continue
			}
			local := ipNet.IP.To4()
			if local == nil {
				local = ipNet.IP
			}
			return Interface{Name: iface.Name, MAC: iface.HardwareAddr, IP: local}, nil
		}
	}

	return Interface{}, fmt.Errorf("netdiag: no interface faces %s", ip)
}
