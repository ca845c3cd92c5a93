//go:build !linux

package netio

import (
	"net"
	"net/netip"
)

func NewLink(*net.Interface, net.HardwareAddr, netip.Addr) (Link, error) {
	return nil, ErrUnsupportedPlatform
}
