// Package packettest builds IPv4 datagrams for tests.
package packettest

import (
	"net"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

type TCPSpec struct {
	Src, Dst         net.IP
	SrcPort, DstPort uint16
	TTL              uint8
	ID               uint16
	DontFragment     bool
	Seq, Ack         uint32
	SYN, ACK         bool
	FIN, RST, PSH    bool
	IPOptions        []layers.IPv4Option
	TCPOptions       []layers.TCPOption
	Payload          []byte
}

func DefaultTCP() TCPSpec {
	return TCPSpec{
		Src:     net.IPv4(10, 0, 0, 2),
		Dst:     net.IPv4(93, 184, 216, 34),
		SrcPort: 40000,
		DstPort: 80,
		TTL:     64,
		ID:      0x1234,
		Seq:     1000,
		Ack:     5000,
		ACK:     true,
		PSH:     true,
		Payload: []byte("GET / HTTP/1.1\r\nHost: example.com\r\n\r\n"),
	}
}

// TCP serializes s with computed lengths and checksums.
func TCP(s TCPSpec) []byte {
	ip := &layers.IPv4{
		Version:  4,
		TTL:      s.TTL,
		Id:       s.ID,
		Protocol: layers.IPProtocolTCP,
		SrcIP:    s.Src.To4(),
		DstIP:    s.Dst.To4(),
		Options:  s.IPOptions,
	}
	if s.DontFragment {
		ip.Flags = layers.IPv4DontFragment
	}

	tcp := &layers.TCP{
		SrcPort: layers.TCPPort(s.SrcPort),
		DstPort: layers.TCPPort(s.DstPort),
		Seq:     s.Seq,
		Ack:     s.Ack,
		SYN:     s.SYN,
		ACK:     s.ACK,
		FIN:     s.FIN,
		RST:     s.RST,
		PSH:     s.PSH,
		Window:  65535,
		Options: s.TCPOptions,
	}
	_ = tcp.SetNetworkLayerForChecksum(ip)

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, ip, tcp, gopacket.Payload(s.Payload)); err != nil {
		panic(err)
	}

	return buf.Bytes()
}

// UDP serializes a minimal UDP datagram.
func UDP(payload []byte) []byte {
	ip := &layers.IPv4{
		Version:  4,
		TTL:      64,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    net.IPv4(10, 0, 0, 2).To4(),
		DstIP:    net.IPv4(1, 1, 1, 1).To4(),
	}
	udp := &layers.UDP{SrcPort: 5353, DstPort: 53}
	_ = udp.SetNetworkLayerForChecksum(ip)

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, ip, udp, gopacket.Payload(payload)); err != nil {
		panic(err)
	}

	return buf.Bytes()
}
