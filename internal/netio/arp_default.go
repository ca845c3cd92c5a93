//go:build !linux

package netio

import (
	"context"
	"net"
	"net/netip"
)

func ResolveGatewayMAC(context.Context, *net.Interface, netip.Addr, netip.Addr) (net.HardwareAddr, error) {
	return nil, ErrUnsupportedPlatform
}
