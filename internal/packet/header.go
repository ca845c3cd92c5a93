package packet

import (
	"encoding/binary"
	"fmt"
	"strings"
)

const (
	ipFlagDF     = 0x4000
	ipFlagMF     = 0x2000
	ipOffsetMask = 0x1fff
)

type TCPFlags uint8

const (
	FlagFIN TCPFlags = 1 << iota
	FlagSYN
	FlagRST
	FlagPSH
	FlagACK
	FlagURG
)

func (f TCPFlags) Has(o TCPFlags) bool {
	return f&o == o
}

func (f TCPFlags) String() string {
	var sb strings.Builder
	for _, x := range []struct {
		flag TCPFlags
		c    byte
	}{
		{FlagSYN, 'S'}, {FlagACK, 'A'}, {FlagPSH, 'P'},
		{FlagFIN, 'F'}, {FlagRST, 'R'}, {FlagURG, 'U'},
	} {
		if f.Has(x.flag) {
			sb.WriteByte(x.c)
		}
	}

	return sb.String()
}

func (p *Packet) tcp() []byte {
	return p.Buf[p.IPHdrLen:]
}

// ┌───────────┐
// │ IP HEADER │
// └───────────┘
func (p *Packet) TTL() uint8 {
	return p.Buf[8]
}

func (p *Packet) SetTTL(ttl uint8) {
	p.Buf[8] = ttl
}

func (p *Packet) IPID() uint16 {
	return binary.BigEndian.Uint16(p.Buf[4:6])
}

func (p *Packet) SetIPID(id uint16) {
	binary.BigEndian.PutUint16(p.Buf[4:6], id)
}

func (p *Packet) TotalLength() uint16 {
	return binary.BigEndian.Uint16(p.Buf[2:4])
}

func (p *Packet) setTotalLength() {
	binary.BigEndian.PutUint16(p.Buf[2:4], uint16(len(p.Buf)))
}

func (p *Packet) fragField() uint16 {
	return binary.BigEndian.Uint16(p.Buf[6:8])
}

func (p *Packet) setFragField(v uint16) {
	binary.BigEndian.PutUint16(p.Buf[6:8], v)
}

func (p *Packet) DontFragment() bool {
	return p.fragField()&ipFlagDF != 0
}

func (p *Packet) MoreFragments() bool {
	return p.fragField()&ipFlagMF != 0
}

func (p *Packet) SetMoreFragments(on bool) {
	v := p.fragField()
	if on {
		v |= ipFlagMF
	} else {
		v &^= ipFlagMF
	}
	p.setFragField(v)
}

// FragOffset is expressed in 8 byte units.
func (p *Packet) FragOffset() uint16 {
	return p.fragField() & ipOffsetMask
}

func (p *Packet) SetFragOffset(off uint16) {
	p.setFragField(p.fragField()&^ipOffsetMask | off&ipOffsetMask)
}

// IPOptions returns the option area of the IP header. The slice aliases Buf.
func (p *Packet) IPOptions() []byte {
	return p.Buf[IPv4HeaderLen:p.IPHdrLen]
}

// ResizeIPHeader sets the IP header length to n, keeping as many of the
// present option bytes as fit and zero filling the rest.
func (p *Packet) ResizeIPHeader(n int) error {
	if n < IPv4HeaderLen || n > MaxIPHeader || n%4 != 0 {
		return fmt.Errorf("invalid ip header length %d", n)
	}

	p.Buf = splice(p.Buf, IPv4HeaderLen, p.IPHdrLen, n-IPv4HeaderLen)
	p.IPHdrLen = n
	p.Buf[0] = 0x40 | byte(n/4)
	p.setTotalLength()

	return nil
}

// ┌────────────┐
// │ TCP HEADER │
// └────────────┘
func (p *Packet) Seq() uint32 {
	return binary.BigEndian.Uint32(p.tcp()[4:8])
}

func (p *Packet) SetSeq(seq uint32) {
	binary.BigEndian.PutUint32(p.tcp()[4:8], seq)
}

func (p *Packet) AckSeq() uint32 {
	return binary.BigEndian.Uint32(p.tcp()[8:12])
}

func (p *Packet) SetAckSeq(ack uint32) {
	binary.BigEndian.PutUint32(p.tcp()[8:12], ack)
}

func (p *Packet) TCPFlags() TCPFlags {
	return TCPFlags(p.tcp()[13] & 0x3f)
}

func (p *Packet) SetTCPFlag(f TCPFlags, on bool) {
	if on {
		p.tcp()[13] |= byte(f)
	} else {
		p.tcp()[13] &^= byte(f)
	}
}

func (p *Packet) Window() uint16 {
	return binary.BigEndian.Uint16(p.tcp()[14:16])
}

func (p *Packet) SetWindow(w uint16) {
	binary.BigEndian.PutUint16(p.tcp()[14:16], w)
}

// TCPOptions returns the option area of the TCP header. The slice aliases Buf.
func (p *Packet) TCPOptions() []byte {
	return p.Buf[p.IPHdrLen+TCPHeaderLen : p.IPHdrLen+p.TCPHdrLen]
}

func (p *Packet) ResizeTCPHeader(n int) error {
	if !p.IsTCP() {
		return fmt.Errorf("resize tcp header on %s packet", p.Proto)
	}
	if n < TCPHeaderLen || n > MaxTCPHeader || n%4 != 0 {
		return fmt.Errorf("invalid tcp header length %d", n)
	}

	start := p.IPHdrLen + TCPHeaderLen
	p.Buf = splice(p.Buf, start, start+p.TCPHdrLen-TCPHeaderLen, n-TCPHeaderLen)
	p.TCPHdrLen = n
	p.tcp()[12] = p.tcp()[12]&0x0f | byte(n/4)<<4
	p.setTotalLength()

	return nil
}

// ResizeTCPPayload truncates or zero extends the TCP payload to n bytes.
func (p *Packet) ResizeTCPPayload(n int) error {
	if !p.IsTCP() {
		return fmt.Errorf("resize tcp payload on %s packet", p.Proto)
	}
	if n < 0 {
		return fmt.Errorf("invalid payload length %d", n)
	}

	start := p.IPHdrLen + p.TCPHdrLen
	p.Buf = splice(p.Buf, start, len(p.Buf), n)
	p.setTotalLength()
	p.updateDataLen()

	return nil
}

// splice replaces buf[from:to] with a region of n bytes holding the old
// bytes of that region, truncated or zero padded.
func splice(buf []byte, from, to, n int) []byte {
	old := to - from
	out := make([]byte, 0, len(buf)-old+n)
	out = append(out, buf[:from]...)
	out = append(out, buf[from:from+min(old, n)]...)
	for range n - min(old, n) {
		out = append(out, 0)
	}

	return append(out, buf[to:]...)
}
