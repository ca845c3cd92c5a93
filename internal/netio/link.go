// Package netio moves datagrams between the tunnel device, the physical
// link and the engine.
package netio

import (
	"encoding/binary"
	"errors"
	"net/netip"
)

var ErrUnsupportedPlatform = errors.New("raw link access is not supported on this platform")

// Link reads inbound IPv4 datagrams from the physical interface and sends
// datagrams to the gateway.
type Link interface {
	ReadPacket(buf []byte) (int, error)
	WritePacket(data []byte) error
	Close() error
}

type BPFInstruction struct {
	Op uint16
	Jt uint8
	Jf uint8
	K  uint32
}

// inboundFilter accepts only datagrams addressed to local. Offsets start at
// the IP header since the socket strips the link header.
func inboundFilter(local netip.Addr) []BPFInstruction {
	dst := local.As4()

	return []BPFInstruction{
		// ld [16] (destination address)
		{Op: 0x20, K: 16},
		{Op: 0x15, Jt: 0, Jf: 1, K: binary.BigEndian.Uint32(dst[:])},
		// accept the whole datagram
		{Op: 0x6, K: 0x00040000},
		{Op: 0x6, K: 0},
	}
}

func htons(v uint16) uint16 {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	return binary.NativeEndian.Uint16(b[:])
}
