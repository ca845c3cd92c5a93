package hdropt

import (
	"encoding/binary"

	"github.com/google/gopacket/layers"
)

// IPv4 option codes not named by gopacket.
const (
	ipOptRecordRoute   = 7
	ipOptTimestamp     = 68
	ipOptSecurity      = 130
	ipOptLSRR          = 131
	ipOptCipso         = 134
	ipOptStreamID      = 136
	ipOptRouterAlert   = 148
	ipOptNoop          = 1
	tsFlagOnly         = 0
	tsFlagWithAddress  = 1
	tcpOptMD5Signature = 19
)

func builtinOptions() []*Option {
	return []*Option{
		{Index: IPNoop, Name: "IP NOOP", Kind: KindIP, Code: ipOptNoop, Enabled: true, impl: single{ipOptNoop}},
		{Index: IPTimestamp, Name: "IP TIMESTAMP", Kind: KindIP, Code: ipOptTimestamp, Enabled: true, impl: ipTimestamp{}},
		{Index: IPTimestampOverflow, Name: "IP TIMESTAMP OVERFLOW", Kind: KindIP, Code: ipOptTimestamp, shadow: true, impl: ipTimestampOverflow{}},
		{Index: IPLooseSourceRoute, Name: "IP LSRR", Kind: KindIP, Code: ipOptLSRR, Enabled: true, impl: ipRoute{code: ipOptLSRR}},
		{Index: IPRecordRoute, Name: "IP RR", Kind: KindIP, Code: ipOptRecordRoute, Enabled: true, impl: ipRoute{code: ipOptRecordRoute, prefill: true}},
		{Index: IPRouterAlert, Name: "IP RA", Kind: KindIP, Code: ipOptRouterAlert, Enabled: true, impl: fixed{ipOptRouterAlert, 4, 0, 0}},
		{Index: IPCipso, Name: "IP CIPSO", Kind: KindIP, Code: ipOptCipso, Enabled: true, impl: ipCipso{}},
		{Index: IPSecurity, Name: "IP SEC", Kind: KindIP, Code: ipOptSecurity, Enabled: true, impl: ipSecurity{}},
		{Index: IPStreamID, Name: "IP SID", Kind: KindIP, Code: ipOptStreamID, Enabled: true, impl: ipStreamID{}},
		{Index: TCPNop, Name: "TCP NOP", Kind: KindTCP, Code: byte(layers.TCPOptionKindNop), Enabled: true, impl: single{byte(layers.TCPOptionKindNop)}},
		{Index: TCPMD5Sig, Name: "TCP MD5SIG", Kind: KindTCP, Code: tcpOptMD5Signature, Enabled: true, impl: tcpMD5{}},
		{Index: TCPPawsCorrupt, Name: "TCP PAWS CORRUPT", Kind: KindTCP, Code: byte(layers.TCPOptionKindTimestamps), Enabled: true, shadow: true, impl: tcpTimestamp{paws: true}},
		{Index: TCPTimestamp, Name: "TCP TIMESTAMP", Kind: KindTCP, Code: byte(layers.TCPOptionKindTimestamps), Enabled: true, impl: tcpTimestamp{}},
		{Index: TCPMSS, Name: "TCP MSS", Kind: KindTCP, Code: byte(layers.TCPOptionKindMSS), Enabled: true, impl: tcpMSS{}},
		{Index: TCPSack, Name: "TCP SACK", Kind: KindTCP, Code: byte(layers.TCPOptionKindSACK), Enabled: true, impl: tcpSack{}},
		{Index: TCPSackPermitted, Name: "TCP SACKPERM", Kind: KindTCP, Code: byte(layers.TCPOptionKindSACKPermitted), Enabled: true, impl: fixed{byte(layers.TCPOptionKindSACKPermitted), 2}},
		{Index: TCPWindowScale, Name: "TCP WINDOW", Kind: KindTCP, Code: byte(layers.TCPOptionKindWindowScale), Enabled: true, impl: tcpWindow{}},
	}
}

// single is a one byte option such as NOP.
type single struct{ code byte }

func (s single) apply(a *Area) int {
	if a.Avail() < 1 {
		return 0
	}
	a.tail()[0] = s.code

	return 1
}

// fixed writes a constant byte sequence.
type fixed []byte

func (f fixed) apply(a *Area) int {
	if a.Avail() < len(f) {
		return 0
	}

	return copy(a.tail(), f)
}

// ipTimestamp writes a timestamp+address option with some slots already
// filled, as a router on the path would have done.
type ipTimestamp struct{}

func (ipTimestamp) apply(a *Area) int {
	size := a.bestRandSize(4, 1, 4, 8)
	if size == 0 {
		return 0
	}

	b := a.tail()[:size]
	slots := (size - 4) / 8
	filled := a.rand.IntN(slots + 1)

	b[0] = ipOptTimestamp
	b[1] = byte(size)
	b[2] = byte(5 + filled*8)
	b[3] = tsFlagWithAddress
	for i := range slots {
		entry := b[4+i*8 : 12+i*8]
		if i < filled {
			binary.BigEndian.PutUint32(entry[0:4], a.rand.Uint32())
			binary.BigEndian.PutUint32(entry[4:8], a.rand.Uint32()&0x7fffffff)
		} else {
			clear(entry)
		}
	}

	return size
}

// ipTimestampOverflow writes a full timestamp option whose overflow counter
// wraps around at the last router before the destination.
type ipTimestampOverflow struct{}

func (ipTimestampOverflow) apply(a *Area) int {
	if a.hops == nil || a.pkt == nil {
		return 0
	}

	hops, ok := a.hops.Hops(a.pkt.DstIP())
	if !ok || hops < 1 || hops > 15 {
		return 0
	}

	size := a.bestRandSize(4, 1, 9, 4)
	if size == 0 {
		return 0
	}

	b := a.tail()[:size]
	b[0] = ipOptTimestamp
	b[1] = byte(size)
	b[2] = byte(size + 1)
	b[3] = byte(16-hops)<<4 | tsFlagOnly
	for i := 4; i < size; i += 4 {
		binary.BigEndian.PutUint32(b[i:i+4], a.rand.Uint32()&0x7fffffff)
	}

	return size
}

// ipRoute writes a source route or record route option.
type ipRoute struct {
	code    byte
	prefill bool
}

func (r ipRoute) apply(a *Area) int {
	size := a.bestRandSize(3, 1, 9, 4)
	if size == 0 {
		return 0
	}

	b := a.tail()[:size]
	slots := (size - 3) / 4
	filled := 0
	if r.prefill {
		filled = a.rand.IntN(slots)
	}

	b[0] = r.code
	b[1] = byte(size)
	b[2] = byte(4 + filled*4)
	for i := range slots {
		addr := b[3+i*4 : 7+i*4]
		if !r.prefill || i < filled {
			binary.BigEndian.PutUint32(addr, a.rand.Uint32())
		} else {
			clear(addr)
		}
	}

	return size
}

// ipCipso writes a CIPSO option with one restricted bitmap tag.
type ipCipso struct{}

func (ipCipso) apply(a *Area) int {
	size := a.bestRandSize(10, 0, 7, 4)
	if size == 0 {
		return 0
	}

	b := a.tail()[:size]
	b[0] = ipOptCipso
	b[1] = byte(size)
	binary.BigEndian.PutUint32(b[2:6], a.rand.Uint32())
	b[6] = 1
	b[7] = byte(size - 6)
	b[8] = 0
	b[9] = byte(a.rand.IntN(256))
	for i := 10; i < size; i++ {
		b[i] = byte(a.rand.IntN(256))
	}

	return size
}

var securityLevels = []uint16{0x0000, 0xf135, 0x789a, 0xbc4d, 0x5e26, 0xaf13, 0xd788, 0x6bc5}

// ipSecurity writes the eleven byte RFC 1108 basic security option.
type ipSecurity struct{}

func (ipSecurity) apply(a *Area) int {
	const size = 11
	if a.Avail() < size {
		return 0
	}

	b := a.tail()[:size]
	b[0] = ipOptSecurity
	b[1] = size
	binary.BigEndian.PutUint16(b[2:4], securityLevels[a.rand.IntN(len(securityLevels))])
	binary.BigEndian.PutUint16(b[4:6], uint16(a.rand.Uint32()))
	binary.BigEndian.PutUint16(b[6:8], uint16(a.rand.Uint32()))
	b[8], b[9], b[10] = byte(a.rand.IntN(256)), byte(a.rand.IntN(256)), byte(a.rand.IntN(256))

	return size
}

type ipStreamID struct{}

func (ipStreamID) apply(a *Area) int {
	if a.Avail() < 4 {
		return 0
	}

	b := a.tail()[:4]
	b[0] = ipOptStreamID
	b[1] = 4
	binary.BigEndian.PutUint16(b[2:4], uint16(a.rand.Uint32()))

	return 4
}

type tcpMD5 struct{}

func (tcpMD5) apply(a *Area) int {
	const size = 18
	if a.Avail() < size {
		return 0
	}

	b := a.tail()[:size]
	b[0] = tcpOptMD5Signature
	b[1] = size
	for i := 2; i < size; i += 4 {
		binary.BigEndian.PutUint32(b[i:min(i+4, size)], a.rand.Uint32())
	}

	return size
}

// tcpTimestamp writes a timestamp option. With paws set the value is far in
// the past so the receiver's PAWS check discards the segment.
type tcpTimestamp struct{ paws bool }

func (t tcpTimestamp) apply(a *Area) int {
	const size = 10
	if a.Avail() < size {
		return 0
	}

	b := a.tail()[:size]
	b[0] = byte(layers.TCPOptionKindTimestamps)
	b[1] = size
	tsval := a.rand.Uint32()
	if t.paws {
		tsval = uint32(a.rand.IntN(1 << 8))
	}
	binary.BigEndian.PutUint32(b[2:6], tsval)
	binary.BigEndian.PutUint32(b[6:10], a.rand.Uint32())

	return size
}

type tcpMSS struct{}

func (tcpMSS) apply(a *Area) int {
	if a.Avail() < 4 {
		return 0
	}

	b := a.tail()[:4]
	b[0] = byte(layers.TCPOptionKindMSS)
	b[1] = 4
	binary.BigEndian.PutUint16(b[2:4], uint16(536+a.rand.IntN(1460-536+1)))

	return 4
}

type tcpSack struct{}

func (tcpSack) apply(a *Area) int {
	size := a.bestRandSize(2, 1, 4, 8)
	if size == 0 {
		return 0
	}

	b := a.tail()[:size]
	b[0] = byte(layers.TCPOptionKindSACK)
	b[1] = byte(size)
	for i := 2; i < size; i += 8 {
		left := a.rand.Uint32()
		binary.BigEndian.PutUint32(b[i:i+4], left)
		binary.BigEndian.PutUint32(b[i+4:i+8], left+uint32(1+a.rand.IntN(1<<16)))
	}

	return size
}

type tcpWindow struct{}

func (tcpWindow) apply(a *Area) int {
	if a.Avail() < 3 {
		return 0
	}

	b := a.tail()[:3]
	b[0] = byte(layers.TCPOptionKindWindowScale)
	b[1] = 3
	b[2] = byte(a.rand.IntN(15))

	return 3
}
