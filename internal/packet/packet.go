package packet

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net/netip"
	"sync/atomic"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/rs/zerolog"

	"github.com/holdensmagicalunicorn/sniffjoke/internal/scramble"
)

var ErrMalformed = errors.New("malformed ipv4 packet")

const (
	IPv4HeaderLen = 20
	TCPHeaderLen  = 20
	MaxIPHeader   = 60
	MaxTCPHeader  = 60
)

type Source uint8

const (
	SourceUnassigned Source = iota
	SourceNetwork
	SourceTunnel
	SourceLocal
	SourceAny
)

func (s Source) String() string {
	switch s {
	case SourceNetwork:
		return "network"
	case SourceTunnel:
		return "tunnel"
	case SourceLocal:
		return "local"
	case SourceAny:
		return "any"
	default:
		return "unassigned"
	}
}

type Proto uint8

const (
	ProtoOtherIP Proto = iota
	ProtoTCP
	ProtoUDP
	ProtoICMP
	ProtoAny
)

func (p Proto) String() string {
	switch p {
	case ProtoTCP:
		return "tcp"
	case ProtoUDP:
		return "udp"
	case ProtoICMP:
		return "icmp"
	case ProtoAny:
		return "any"
	default:
		return "other"
	}
}

type Status uint8

const (
	StatusYetUnsent Status = iota
	StatusKeep
	StatusSend
	StatusAny
)

func (s Status) String() string {
	switch s {
	case StatusKeep:
		return "keep"
	case StatusSend:
		return "send"
	case StatusAny:
		return "any"
	default:
		return "yet_unsent"
	}
}

// Position hints where a derived packet is scheduled relative to the packet
// it was derived from.
type Position uint8

const (
	PositionUnassigned Position = iota
	PositionAnticipation
	PositionPosticipation
	PositionAny
)

var lastID atomic.Uint32

// NextID returns a fresh non-zero packet id.
func NextID() uint32 {
	for {
		if id := lastID.Add(1); id != 0 {
			return id
		}
	}
}

// Packet is a raw IPv4 datagram plus the tags the engine attaches to it.
// Buf always holds exactly TotalLength bytes.
type Packet struct {
	ID       uint32
	Source   Source
	Proto    Proto
	Status   Status
	Position Position

	// WTF is the scramble class a derived packet was produced with; genuine
	// packets carry scramble.None.
	WTF               scramble.Mask
	ChoosableScramble scramble.Mask
	// Applied lists the scrambles already realized on the packet by the
	// strategy that produced it; finalization leaves those alone.
	Applied scramble.Mask

	Buf       []byte
	IPHdrLen  int
	TCPHdrLen int
	DataLen   int
}

// New copies raw into a Packet. raw must start with an IPv4 header; bytes
// past the IP total length are discarded.
func New(source Source, raw []byte) (*Packet, error) {
	if len(raw) < IPv4HeaderLen {
		return nil, fmt.Errorf("%w: %d bytes", ErrMalformed, len(raw))
	}

	var ip4 layers.IPv4
	if err := ip4.DecodeFromBytes(raw, gopacket.NilDecodeFeedback); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}

	if ip4.Version != 4 {
		return nil, fmt.Errorf("%w: ip version %d", ErrMalformed, ip4.Version)
	}

	hdrLen := int(ip4.IHL) * 4
	totLen := int(ip4.Length)
	if hdrLen < IPv4HeaderLen || totLen < hdrLen || totLen > len(raw) {
		return nil, fmt.Errorf(
			"%w: ihl %d total %d captured %d", ErrMalformed, hdrLen, totLen, len(raw),
		)
	}

	p := &Packet{
		Source: source,
		Status: StatusYetUnsent,
		Buf:    append([]byte(nil), raw[:totLen]...),
	}
	p.IPHdrLen = hdrLen

	fragmented := ip4.FragOffset != 0 || ip4.Flags&layers.IPv4MoreFragments != 0

	switch {
	case fragmented:
		p.Proto = ProtoOtherIP
	case ip4.Protocol == layers.IPProtocolTCP:
		var tcp layers.TCP
		if err := tcp.DecodeFromBytes(p.Buf[hdrLen:], gopacket.NilDecodeFeedback); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
		}
		p.Proto = ProtoTCP
		p.TCPHdrLen = int(tcp.DataOffset) * 4
	case ip4.Protocol == layers.IPProtocolUDP:
		p.Proto = ProtoUDP
	case ip4.Protocol == layers.IPProtocolICMPv4:
		p.Proto = ProtoICMP
	default:
		p.Proto = ProtoOtherIP
	}

	p.updateDataLen()

	return p, nil
}

// Clone returns a deep copy with a cleared id and scramble tag.
func (p *Packet) Clone() *Packet {
	c := *p
	c.ID = 0
	c.WTF = scramble.None
	c.Applied = scramble.None
	c.Buf = append([]byte(nil), p.Buf...)

	return &c
}

func (p *Packet) updateDataLen() {
	p.DataLen = len(p.Buf) - p.IPHdrLen - p.TCPHdrLen
}

func (p *Packet) SrcIP() netip.Addr {
	return netip.AddrFrom4([4]byte(p.Buf[12:16]))
}

func (p *Packet) DstIP() netip.Addr {
	return netip.AddrFrom4([4]byte(p.Buf[16:20]))
}

func (p *Packet) IsTCP() bool {
	return p.Proto == ProtoTCP && p.TCPHdrLen >= TCPHeaderLen
}

// Payload is the transport payload for TCP and the IP payload otherwise.
func (p *Packet) Payload() []byte {
	return p.Buf[p.IPHdrLen+p.TCPHdrLen:]
}

// Selflog dumps the packet tags and main header fields at trace level.
func (p *Packet) Selflog(logger zerolog.Logger, msg string) {
	if logger.GetLevel() > zerolog.TraceLevel {
		return
	}

	ev := logger.Trace().
		Uint32("pkt_id", p.ID).
		Str("source", p.Source.String()).
		Str("proto", p.Proto.String()).
		Str("status", p.Status.String()).
		Str("wtf", p.WTF.String()).
		Str("src", p.SrcIP().String()).
		Str("dst", p.DstIP().String()).
		Uint8("ttl", p.TTL()).
		Uint16("ip_id", p.IPID()).
		Int("iphdrlen", p.IPHdrLen).
		Int("len", len(p.Buf))

	if p.IsTCP() {
		ev = ev.
			Uint16("sport", binary.BigEndian.Uint16(p.tcp()[0:2])).
			Uint16("dport", binary.BigEndian.Uint16(p.tcp()[2:4])).
			Uint32("seq", p.Seq()).
			Uint32("ack_seq", p.AckSeq()).
			Str("flags", p.TCPFlags().String()).
			Int("tcphdrlen", p.TCPHdrLen).
			Int("datalen", p.DataLen)
	}

	ev.Msg(msg)
}
