package netio

import (
	"bytes"
	"fmt"
	"net"
	"net/netip"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

var broadcastMAC = net.HardwareAddr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}

// buildARPRequest asks who has target, answering to srcMAC/srcIP.
func buildARPRequest(srcMAC net.HardwareAddr, srcIP, target netip.Addr) ([]byte, error) {
	if len(srcMAC) != 6 {
		return nil, fmt.Errorf("invalid source hardware address %q", srcMAC)
	}
	if !srcIP.Is4() || !target.Is4() {
		return nil, fmt.Errorf("arp needs ipv4 addresses, got %s and %s", srcIP, target)
	}

	src, dst := srcIP.As4(), target.As4()

	eth := &layers.Ethernet{
		SrcMAC:       srcMAC,
		DstMAC:       broadcastMAC,
		EthernetType: layers.EthernetTypeARP,
	}
	arp := &layers.ARP{
		AddrType:          layers.LinkTypeEthernet,
		Protocol:          layers.EthernetTypeIPv4,
		HwAddressSize:     6,
		ProtAddressSize:   4,
		Operation:         layers.ARPRequest,
		SourceHwAddress:   []byte(srcMAC),
		SourceProtAddress: src[:],
		DstHwAddress:      make([]byte, 6),
		DstProtAddress:    dst[:],
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, eth, arp); err != nil {
		return nil, fmt.Errorf("failed to serialize arp request: %w", err)
	}

	return buf.Bytes(), nil
}

// parseARPReply returns the sender hardware address when frame is an ARP
// reply from target.
func parseARPReply(frame []byte, target netip.Addr) (net.HardwareAddr, bool) {
	p := gopacket.NewPacket(frame, layers.LayerTypeEthernet, gopacket.NoCopy)

	arpLayer := p.Layer(layers.LayerTypeARP)
	if arpLayer == nil {
		return nil, false
	}
	reply, _ := arpLayer.(*layers.ARP)

	want := target.As4()
	if reply.Operation != layers.ARPReply || !bytes.Equal(reply.SourceProtAddress, want[:]) {
		return nil, false
	}

	return append(net.HardwareAddr(nil), reply.SourceHwAddress...), true
}
