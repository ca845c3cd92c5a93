//go:build linux

package netio

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"time"

	"github.com/google/gopacket/layers"
	"golang.org/x/sys/unix"
)

const arpTimeout = 3 * time.Second

// ResolveGatewayMAC broadcasts an ARP request for gateway on iface and
// waits for the answer.
func ResolveGatewayMAC(
	ctx context.Context,
	iface *net.Interface,
	local netip.Addr,
	gateway netip.Addr,
) (net.HardwareAddr, error) {
	req, err := buildARPRequest(iface.HardwareAddr, local, gateway)
	if err != nil {
		return nil, err
	}

	proto := htons(uint16(layers.EthernetTypeARP))
	fd, err := unix.Socket(unix.AF_PACKET, unix.SOCK_RAW|unix.SOCK_CLOEXEC, int(proto))
	if err != nil {
		return nil, fmt.Errorf("failed to open arp socket: %w", err)
	}
	defer func() { _ = unix.Close(fd) }()

	sll := &unix.SockaddrLinklayer{Protocol: proto, Ifindex: iface.Index}
	if err := unix.Bind(fd, sll); err != nil {
		return nil, fmt.Errorf("failed to bind arp socket: %w", err)
	}

	tv := unix.NsecToTimeval(readTimeout.Nanoseconds())
	if err := unix.SetsockoptTimeval(fd, unix.SOL_SOCKET, unix.SO_RCVTIMEO, &tv); err != nil {
		return nil, err
	}

	dst := &unix.SockaddrLinklayer{Protocol: proto, Ifindex: iface.Index, Halen: 6}
	copy(dst.Addr[:], broadcastMAC)
	if err := unix.Sendto(fd, req, 0, dst); err != nil {
		return nil, fmt.Errorf("failed to send arp request: %w", err)
	}

	deadline := time.Now().Add(arpTimeout)
	buf := make([]byte, 128)
	for time.Now().Before(deadline) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		n, _, err := unix.Recvfrom(fd, buf, 0)
		if err != nil {
			if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EINTR) {
				continue
			}
			return nil, err
		}

		if mac, ok := parseARPReply(buf[:n], gateway); ok {
			return mac, nil
		}
	}

	return nil, fmt.Errorf("arp request for %s timed out", gateway)
}
