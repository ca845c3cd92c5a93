package packet

import "encoding/binary"

// FixChecksums recomputes the IP header checksum and, for unfragmented TCP
// segments, the TCP checksum.
func (p *Packet) FixChecksums() {
	binary.BigEndian.PutUint16(p.Buf[10:12], 0)
	binary.BigEndian.PutUint16(p.Buf[10:12], fold(sum(p.Buf[:p.IPHdrLen], 0)))

	if !p.IsTCP() {
		return
	}

	seg := p.tcp()
	binary.BigEndian.PutUint16(seg[16:18], 0)
	binary.BigEndian.PutUint16(seg[16:18], fold(sum(seg, p.pseudoHeaderSum(len(seg)))))
}

// CorruptChecksum xors the TCP checksum with a non-zero mask so the segment
// fails validation at the endpoint. It reports false on non TCP packets.
func (p *Packet) CorruptChecksum(mask uint16) bool {
	if !p.IsTCP() {
		return false
	}
	if mask == 0 {
		mask = 0xd34d
	}

	seg := p.tcp()
	binary.BigEndian.PutUint16(seg[16:18], binary.BigEndian.Uint16(seg[16:18])^mask)

	return true
}

// ChecksumsValid reports whether the stored checksums match the content.
func (p *Packet) ChecksumsValid() bool {
	if fold(sum(p.Buf[:p.IPHdrLen], 0)) != 0 {
		return false
	}
	if !p.IsTCP() {
		return true
	}

	seg := p.tcp()
	return fold(sum(seg, p.pseudoHeaderSum(len(seg)))) == 0
}

func (p *Packet) pseudoHeaderSum(segLen int) uint32 {
	s := sum(p.Buf[12:20], 0)
	s += uint32(p.Buf[9])
	s += uint32(segLen)

	return s
}

func sum(b []byte, initial uint32) uint32 {
	s := initial
	for i := 0; i+1 < len(b); i += 2 {
		s += uint32(binary.BigEndian.Uint16(b[i:]))
	}
	if len(b)%2 == 1 {
		s += uint32(b[len(b)-1]) << 8
	}

	return s
}

func fold(s uint32) uint16 {
	for s>>16 != 0 {
		s = s&0xffff + s>>16
	}

	return ^uint16(s)
}
