package packet

import (
	"errors"
	"fmt"
)

var ErrDontFragment = errors.New("packet forbids fragmentation")

// Split cuts the IP payload at byte offset at and returns the two resulting
// fragments. at must be a positive multiple of 8 smaller than the payload.
// Both fragments carry a copy of the original IP header; their checksums are
// left to the caller.
func (p *Packet) Split(at int) (*Packet, *Packet, error) {
	if p.DontFragment() {
		return nil, nil, ErrDontFragment
	}

	payload := len(p.Buf) - p.IPHdrLen
	if at <= 0 || at >= payload || at%8 != 0 {
		return nil, nil, fmt.Errorf("invalid fragment boundary %d for %d bytes", at, payload)
	}

	first := p.fragment(p.Buf[p.IPHdrLen : p.IPHdrLen+at])
	second := p.fragment(p.Buf[p.IPHdrLen+at:])

	first.SetMoreFragments(true)
	second.SetFragOffset(p.FragOffset() + uint16(at>>3))

	return first, second, nil
}

func (p *Packet) fragment(data []byte) *Packet {
	f := &Packet{
		Source:   p.Source,
		Proto:    ProtoOtherIP,
		Status:   p.Status,
		IPHdrLen: p.IPHdrLen,
		Buf:      make([]byte, 0, p.IPHdrLen+len(data)),
	}
	f.Buf = append(f.Buf, p.Buf[:p.IPHdrLen]...)
	f.Buf = append(f.Buf, data...)
	f.setTotalLength()
	f.updateDataLen()

	return f
}
