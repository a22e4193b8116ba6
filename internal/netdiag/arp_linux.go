//go:build linux

package netdiag

import (
	"bytes"
	"fmt"
	"net"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"golang.org/x/sys/unix"
)

func htons(v uint16) uint16 {
	return v<<8 | v>>8
}

// ResolveMAC sends an ARP who-has probe for ip out of the interface facing
// it and waits up to timeout for the reply. Requires CAP_NET_RAW; failures
// are expected when running unprivileged, so callers treat this as
// diagnostic information only.
func ResolveMAC(ip net.IP, timeout time.Duration) (net.HardwareAddr, error) {
	ip4 := ip.To4()
	if ip4 == nil {
		return nil, fmt.Errorf("netdiag: ARP probe needs an IPv4 address, got %s", ip)
	}

	iface, err := InterfaceFor(ip4)
	if err != nil {
		return nil, err
	}

	fd, err := unix.Socket(unix.AF_PACKET, unix.SOCK_RAW, int(htons(unix.ETH_P_ARP)))
	if err != nil {
		return nil, fmt.Errorf("netdiag: open packet socket: %w", err)
	}
	defer unix.Close(fd)

	netIface, err := net.InterfaceByName(iface.Name)
	if err != nil {
		return nil, fmt.Errorf("netdiag: interface %s: %w", iface.Name, err)
	}

	addr := &unix.SockaddrLinklayer{
		Protocol: htons(unix.ETH_P_ARP),
		Ifindex:  netIface.Index,
	}
	if err := unix.Bind(fd, addr); err != nil {
		return nil, fmt.Errorf("netdiag: bind packet socket: %w", err)
	}

	tv := unix.NsecToTimeval(timeout.Nanoseconds())
	if err := unix.SetsockoptTimeval(fd, unix.SOL_SOCKET, unix.SO_RCVTIMEO, &tv); err != nil {
		return nil, fmt.Errorf("netdiag: set receive timeout: %w", err)
	}

	eth := layers.Ethernet{
		SrcMAC:       iface.MAC,
		DstMAC:       net.HardwareAddr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff},
		EthernetType: layers.EthernetTypeARP,
	}
	arp := layers.ARP{
		AddrType:          layers.LinkTypeEthernet,
		Protocol:          layers.EthernetTypeIPv4,
		HwAddressSize:     6,
		ProtAddressSize:   4,
		Operation:         layers.ARPRequest,
		SourceHwAddress:   iface.MAC,
		SourceProtAddress: iface.IP.To4(),
		DstHwAddress:      net.HardwareAddr{0, 0, 0, 0, 0, 0},
		DstProtAddress:    ip4,
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true}
	if err := gopacket.SerializeLayers(buf, opts, &eth, &arp); err != nil {
		return nil, fmt.Errorf("netdiag: serialize ARP probe: %w", err)
	}

	if err := unix.Sendto(fd, buf.Bytes(), 0, addr); err != nil {
		return nil, fmt.Errorf("netdiag: send ARP probe: %w", err)
	}

	deadline := time.Now().Add(timeout)
	reply := make([]byte, 128)
	for time.Now().Before(deadline) {
		n, _, err := unix.Recvfrom(fd, reply, 0)
		if err != nil {
			if err == unix.EAGAIN || err == unix.EWOULDBLOCK || err == unix.EINTR {
				return nil, fmt.Errorf("netdiag: ARP probe timed out for %s", ip4)
			}
			return nil, fmt.Errorf("netdiag: receive ARP reply: %w", err)
		}

		packet := gopacket.NewPacket(reply[:n], layers.LayerTypeEthernet, gopacket.NoCopy)
		arpLayer := packet.Layer(layers.LayerTypeARP)
		if arpLayer == nil {
			continue
		}
		resp := arpLayer.(*layers.ARP)
		if resp.Operation != layers.ARPReply || !bytes.Equal(resp.SourceProtAddress, ip4) {
			continue
		}
		return net.HardwareAddr(resp.SourceHwAddress), nil
	}

	return nil, fmt.Errorf("netdiag: ARP probe timed out for %s", ip4)
}
