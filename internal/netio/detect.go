package netio

import (
	"bufio"
	"context"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net"
	"net/netip"
	"os"
	"strings"
)

var ErrNotFound = errors.New("not found")

const (
	procRoute = "/proc/net/route"
	procARP   = "/proc/net/arp"
)

// probeAddr is only used to ask the kernel which source address it would
// pick. Dialing UDP sends nothing.
var probeAddr = "1.1.1.1:53"

// Route describes the egress path the link side writes to. Zero fields are
// filled in by Detect.
type Route struct {
	Interface  *net.Interface
	LocalIP    netip.Addr
	Gateway    netip.Addr
	GatewayMAC net.HardwareAddr
}

func (r Route) complete() bool {
	return r.Interface != nil && r.LocalIP.IsValid() && len(r.GatewayMAC) == 6
}

// Detect completes hint from the host routing state. The gateway hardware
// address comes from the neighbor table, or from an ARP exchange when the
// table has no usable entry.
func Detect(ctx context.Context, hint Route) (Route, error) {
	r := hint
	if r.complete() {
		return r, nil
	}

	if r.Interface == nil || !r.LocalIP.IsValid() {
		iface, local, err := defaultInterface(ctx, r.Interface)
		if err != nil {
			return r, err
		}
		r.Interface, r.LocalIP = iface, local
	}

	if len(r.GatewayMAC) != 6 {
		if !r.Gateway.IsValid() {
			gw, err := readTable(procRoute, func(rd io.Reader) (netip.Addr, error) {
				return parseDefaultGateway(rd, r.Interface.Name)
			})
			if err != nil {
				return r, fmt.Errorf("failed to find default gateway: %w", err)
			}
			r.Gateway = gw
		}

		mac, err := readTable(procARP, func(rd io.Reader) (net.HardwareAddr, error) {
			return parseNeighbor(rd, r.Gateway)
		})
		if err != nil {
			mac, err = ResolveGatewayMAC(ctx, r.Interface, r.LocalIP, r.Gateway)
		}
		if err != nil {
			return r, fmt.Errorf("failed to resolve gateway %s: %w", r.Gateway, err)
		}
		r.GatewayMAC = mac
	}

	return r, nil
}

func readTable[T any](path string, parse func(io.Reader) (T, error)) (T, error) {
	f, err := os.Open(path)
	if err != nil {
		var zero T
		return zero, err
	}
	defer func() { _ = f.Close() }()

	return parse(f)
}

// defaultInterface returns the interface holding the source address the
// kernel picks for public destinations, or the first IPv4 address of want.
func defaultInterface(ctx context.Context, want *net.Interface) (*net.Interface, netip.Addr, error) {
	if want != nil {
		local, err := firstIPv4(want)
		return want, local, err
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "udp4", probeAddr)
	if err != nil {
		return nil, netip.Addr{}, fmt.Errorf("could not determine default interface: %w", err)
	}
	defer func() { _ = conn.Close() }()

	udpAddr, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok {
		return nil, netip.Addr{}, fmt.Errorf("could not determine local address")
	}
	local, _ := netip.AddrFromSlice(udpAddr.IP.To4())

	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, netip.Addr{}, fmt.Errorf("could not list interfaces: %w", err)
	}

	for _, iface := range ifaces {
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			if ipnet, ok := addr.(*net.IPNet); ok && ipnet.IP.Equal(udpAddr.IP) {
				return &iface, local, nil
			}
		}
	}

	return nil, netip.Addr{}, fmt.Errorf("%w: interface holding %s", ErrNotFound, local)
}

func firstIPv4(iface *net.Interface) (netip.Addr, error) {
	addrs, err := iface.Addrs()
	if err != nil {
		return netip.Addr{}, err
	}

	for _, addr := range addrs {
		ipnet, ok := addr.(*net.IPNet)
		if !ok {
			continue
		}
		if ip4 := ipnet.IP.To4(); ip4 != nil {
			return netip.AddrFrom4([4]byte(ip4)), nil
		}
	}

	return netip.Addr{}, fmt.Errorf("%w: ipv4 address on %s", ErrNotFound, iface.Name)
}

// parseDefaultGateway reads the kernel routing table format: hex addresses
// in host (little endian) order.
func parseDefaultGateway(r io.Reader, ifname string) (netip.Addr, error) {
	sc := bufio.NewScanner(r)
	sc.Scan() // header

	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) < 3 || fields[0] != ifname || fields[1] != "00000000" {
			continue
		}

		raw, err := hex.DecodeString(fields[2])
		if err != nil || len(raw) != 4 {
			continue
		}

		var b [4]byte
		binary.BigEndian.PutUint32(b[:], binary.LittleEndian.Uint32(raw))
		gw := netip.AddrFrom4(b)
		if gw.IsUnspecified() {
			continue
		}

		return gw, nil
	}
	if err := sc.Err(); err != nil {
		return netip.Addr{}, err
	}

	return netip.Addr{}, fmt.Errorf("%w: default route via %s", ErrNotFound, ifname)
}

// parseNeighbor looks ip up in the kernel ARP table.
func parseNeighbor(r io.Reader, ip netip.Addr) (net.HardwareAddr, error) {
	sc := bufio.NewScanner(r)
	sc.Scan() // header

	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) < 4 || fields[0] != ip.String() {
			continue
		}

		mac, err := net.ParseMAC(fields[3])
		if err != nil {
			return nil, err
		}
		if isZeroMAC(mac) {
			return nil, fmt.Errorf("%w: incomplete neighbor entry for %s", ErrNotFound, ip)
		}

		return mac, nil
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}

	return nil, fmt.Errorf("%w: neighbor %s", ErrNotFound, ip)
}

func isZeroMAC(mac net.HardwareAddr) bool {
	for _, b := range mac {
		if b != 0 {
			return false
		}
	}
	return true
}
