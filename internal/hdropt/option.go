// Package hdropt places IP and TCP header options into a packet's option
// area to reach, or avoid, a corruption goal.
package hdropt

import (
	"math/rand/v2"
	"net/netip"

	"github.com/holdensmagicalunicorn/sniffjoke/internal/packet"
)

// MaxOptionsLen is the option capacity of both the IPv4 and the TCP header.
const MaxOptionsLen = 40

type Kind uint8

const (
	KindIP Kind = iota + 1
	KindTCP
)

func (k Kind) String() string {
	switch k {
	case KindIP:
		return "IP"
	case KindTCP:
		return "TCP"
	default:
		return "UNKNOWN"
	}
}

func (k Kind) nopCode() byte {
	return 1
}

func (k Kind) endCode() byte {
	return 0
}

// Index identifies an option implementation in the catalog.
type Index uint8

const (
	IPNoop Index = iota + 1
	IPTimestamp
	IPTimestampOverflow
	IPLooseSourceRoute
	IPRecordRoute
	IPRouterAlert
	IPCipso
	IPSecurity
	IPStreamID
	TCPNop
	TCPMD5Sig
	TCPPawsCorrupt
	TCPTimestamp
	TCPMSS
	TCPSack
	TCPSackPermitted
	TCPWindowScale

	// SupportedOptions is one past the last valid index. Index 0 is unused.
	SupportedOptions = iota + 1
)

func (i Index) Valid() bool {
	return i >= IPNoop && i < SupportedOptions
}

func (i Index) Kind() Kind {
	switch {
	case i >= IPNoop && i <= IPStreamID:
		return KindIP
	case i >= TCPNop && i <= TCPWindowScale:
		return KindTCP
	default:
		return 0
	}
}

// Usage is the corruption policy of an option for this deployment.
type Usage uint8

const (
	Unassigned Usage = iota
	NotCorrupt
	OneShot
	TwoShot
)

func (u Usage) String() string {
	switch u {
	case NotCorrupt:
		return "NOT_CORRUPT"
	case OneShot:
		return "ONESHOT"
	case TwoShot:
		return "TWOSHOT"
	default:
		return "UNASSIGNED"
	}
}

// HopSource gives the estimated number of hops to a destination.
type HopSource interface {
	Hops(addr netip.Addr) (uint8, bool)
}

type applier interface {
	apply(a *Area) int
}

// Option is one catalog entry.
type Option struct {
	Index   Index
	Name    string
	Kind    Kind
	Code    byte
	Enabled bool
	Usage   Usage

	// shadow options share their wire code with a genuine option and are
	// never used to identify options already present in a packet.
	shadow bool
	impl   applier
}

// Apply writes the option at the tail of a and returns the number of bytes
// written; 0 means there was no room for it.
func (o *Option) Apply(a *Area) int {
	return o.impl.apply(a)
}

// Area is the option buffer of one header under injection.
type Area struct {
	buf   [MaxOptionsLen]byte
	used  int
	limit int

	rand *rand.Rand
	hops HopSource
	pkt  *packet.Packet
}

func (a *Area) Avail() int {
	return max(a.limit-a.used, 0)
}

func (a *Area) tail() []byte {
	return a.buf[a.used:a.limit]
}

// bestRandSize picks a length of fixedLen plus a whole number of blocks in
// [minBlocks, maxBlocks] that fits the free space, preferring to fill it. It
// returns 0 when even the smallest length does not fit.
func (a *Area) bestRandSize(fixedLen, minBlocks, maxBlocks, blockSize int) int {
	minLen := fixedLen + minBlocks*blockSize
	maxLen := fixedLen + maxBlocks*blockSize
	avail := a.Avail()

	switch {
	case avail == minLen || avail == maxLen:
		return avail
	case avail < minLen:
		return 0
	case avail > maxLen:
		return (a.rand.IntN(maxBlocks-minBlocks+1)+minBlocks)*blockSize + fixedLen
	default:
		return (avail-fixedLen)/blockSize*blockSize + fixedLen
	}
}
