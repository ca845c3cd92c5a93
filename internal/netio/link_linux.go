//go:build linux

package netio

import (
	"errors"
	"fmt"
	"net"
	"net/netip"
	"sync/atomic"
	"time"

	"github.com/google/gopacket/layers"
	"golang.org/x/sys/unix"
)

const readTimeout = 200 * time.Millisecond

var _ Link = (*LinuxLink)(nil)

// LinuxLink is an AF_PACKET datagram socket bound to one interface. Frames
// are sent to the gateway hardware address; the kernel builds the link
// header.
type LinuxLink struct {
	fd      int
	ifIndex int
	proto   uint16
	gateway [8]byte
	closed  atomic.Bool
}

// NewLink opens the socket on iface. With local valid only datagrams
// addressed to it are read.
func NewLink(iface *net.Interface, gateway net.HardwareAddr, local netip.Addr) (*LinuxLink, error) {
	if len(gateway) != 6 {
		return nil, fmt.Errorf("invalid gateway hardware address %q", gateway)
	}

	proto := htons(uint16(layers.EthernetTypeIPv4))

	fd, err := unix.Socket(unix.AF_PACKET, unix.SOCK_DGRAM|unix.SOCK_CLOEXEC, int(proto))
	if err != nil {
		return nil, fmt.Errorf("failed to open packet socket: %w", err)
	}

	sll := &unix.SockaddrLinklayer{
		Protocol: proto,
		Ifindex:  iface.Index,
	}
	if err := unix.Bind(fd, sll); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("failed to bind packet socket to %s: %w", iface.Name, err)
	}

	tv := unix.NsecToTimeval(readTimeout.Nanoseconds())
	if err := unix.SetsockoptTimeval(fd, unix.SOL_SOCKET, unix.SO_RCVTIMEO, &tv); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("failed to set read timeout: %w", err)
	}

	l := &LinuxLink{
		fd:      fd,
		ifIndex: iface.Index,
		proto:   proto,
	}
	copy(l.gateway[:], gateway)

	if local.Is4() {
		if err := l.setFilter(inboundFilter(local)); err != nil {
			_ = unix.Close(fd)
			return nil, fmt.Errorf("failed to attach inbound filter: %w", err)
		}
	}

	return l, nil
}

func (l *LinuxLink) setFilter(raw []BPFInstruction) error {
	filter := make([]unix.SockFilter, len(raw))
	for i, r := range raw {
		filter[i] = unix.SockFilter{Code: r.Op, Jt: r.Jt, Jf: r.Jf, K: r.K}
	}

	fprog := &unix.SockFprog{
		Len:    uint16(len(filter)),
		Filter: &filter[0],
	}

	return unix.SetsockoptSockFprog(l.fd, unix.SOL_SOCKET, unix.SO_ATTACH_FILTER, fprog)
}

// ReadPacket blocks until an inbound datagram arrives or the link is
// closed. Datagrams this host transmitted are skipped.
func (l *LinuxLink) ReadPacket(buf []byte) (int, error) {
	for {
		if l.closed.Load() {
			return 0, net.ErrClosed
		}

		n, from, err := unix.Recvfrom(l.fd, buf, 0)
		if err != nil {
			if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EINTR) {
				continue
			}
			return 0, err
		}

		if sll, ok := from.(*unix.SockaddrLinklayer); ok && sll.Pkttype == unix.PACKET_OUTGOING {
			continue
		}

		return n, nil
	}
}

func (l *LinuxLink) WritePacket(data []byte) error {
	addr := &unix.SockaddrLinklayer{
		Protocol: l.proto,
		Ifindex:  l.ifIndex,
		Halen:    6,
		Addr:     l.gateway,
	}

	return unix.Sendto(l.fd, data, 0, addr)
}

func (l *LinuxLink) Close() error {
	if l.closed.Swap(true) {
		return nil
	}

	return unix.Close(l.fd)
}
