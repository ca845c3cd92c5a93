package packet_test

import (
	"bytes"
	"slices"
	"testing"

	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holdensmagicalunicorn/sniffjoke/internal/packet"
	"github.com/holdensmagicalunicorn/sniffjoke/internal/packet/packettest"
	"github.com/holdensmagicalunicorn/sniffjoke/internal/scramble"
)

func TestNew(t *testing.T) {
	tcs := []struct {
		name   string
		raw    func() []byte
		assert func(t *testing.T, p *packet.Packet, err error)
	}{
		{
			name: "tcp segment",
			raw:  func() []byte { return packettest.TCP(packettest.DefaultTCP()) },
			assert: func(t *testing.T, p *packet.Packet, err error) {
				require.NoError(t, err)
				assert.Equal(t, packet.ProtoTCP, p.Proto)
				assert.Equal(t, 20, p.IPHdrLen)
				assert.Equal(t, 20, p.TCPHdrLen)
				assert.Equal(t, len(packettest.DefaultTCP().Payload), p.DataLen)
				assert.Equal(t, packet.StatusYetUnsent, p.Status)
				assert.True(t, p.ChecksumsValid())
			},
		},
		{
			name: "tcp with options",
			raw: func() []byte {
				s := packettest.DefaultTCP()
				s.TCPOptions = []layers.TCPOption{
					{OptionType: layers.TCPOptionKindMSS, OptionLength: 4, OptionData: []byte{0x05, 0xb4}},
				}
				return packettest.TCP(s)
			},
			assert: func(t *testing.T, p *packet.Packet, err error) {
				require.NoError(t, err)
				assert.Equal(t, 24, p.TCPHdrLen)
				assert.Equal(t, []byte{2, 4, 0x05, 0xb4}, p.TCPOptions())
			},
		},
		{
			name: "udp datagram",
			raw:  func() []byte { return packettest.UDP([]byte("q")) },
			assert: func(t *testing.T, p *packet.Packet, err error) {
				require.NoError(t, err)
				assert.Equal(t, packet.ProtoUDP, p.Proto)
				assert.Equal(t, 0, p.TCPHdrLen)
			},
		},
		{
			name: "trailing bytes are trimmed",
			raw: func() []byte {
				return append(packettest.TCP(packettest.DefaultTCP()), 0xde, 0xad)
			},
			assert: func(t *testing.T, p *packet.Packet, err error) {
				require.NoError(t, err)
				assert.Equal(t, int(p.TotalLength()), len(p.Buf))
			},
		},
		{
			name: "truncated",
			raw:  func() []byte { return packettest.TCP(packettest.DefaultTCP())[:12] },
			assert: func(t *testing.T, p *packet.Packet, err error) {
				assert.ErrorIs(t, err, packet.ErrMalformed)
				assert.Nil(t, p)
			},
		},
		{
			name: "ipv6 version nibble",
			raw: func() []byte {
				raw := packettest.TCP(packettest.DefaultTCP())
				raw[0] = 0x65
				return raw
			},
			assert: func(t *testing.T, p *packet.Packet, err error) {
				assert.ErrorIs(t, err, packet.ErrMalformed)
			},
		},
	}

	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			p, err := packet.New(packet.SourceTunnel, tc.raw())
			tc.assert(t, p, err)
		})
	}
}

func TestPacket_Clone(t *testing.T) {
	p, err := packet.New(packet.SourceTunnel, packettest.TCP(packettest.DefaultTCP()))
	require.NoError(t, err)
	p.ID = 42
	p.WTF = scramble.Guilty

	c := p.Clone()
	assert.Equal(t, uint32(0), c.ID)
	assert.Equal(t, scramble.None, c.WTF)
	assert.Equal(t, p.Buf, c.Buf)

	c.SetTTL(1)
	assert.NotEqual(t, p.TTL(), c.TTL())
}

func TestPacket_Resize(t *testing.T) {
	p, err := packet.New(packet.SourceTunnel, packettest.TCP(packettest.DefaultTCP()))
	require.NoError(t, err)
	payload := append([]byte(nil), p.Payload()...)

	require.NoError(t, p.ResizeIPHeader(28))
	assert.Equal(t, 28, p.IPHdrLen)
	assert.Equal(t, make([]byte, 8), p.IPOptions())
	assert.Equal(t, uint32(1000), p.Seq())

	require.NoError(t, p.ResizeTCPHeader(32))
	assert.Equal(t, 32, p.TCPHdrLen)
	assert.Equal(t, payload, p.Payload())
	assert.Equal(t, int(p.TotalLength()), len(p.Buf))

	require.NoError(t, p.ResizeTCPPayload(0))
	assert.Equal(t, 0, p.DataLen)
	assert.Equal(t, 28+32, len(p.Buf))

	p.FixChecksums()
	assert.True(t, p.ChecksumsValid())

	reparsed, err := packet.New(packet.SourceTunnel, p.Buf)
	require.NoError(t, err)
	assert.Equal(t, 28, reparsed.IPHdrLen)
	assert.Equal(t, 32, reparsed.TCPHdrLen)

	assert.Error(t, p.ResizeIPHeader(22))
	assert.Error(t, p.ResizeTCPHeader(64))
}

func TestPacket_ResizeTCPHeader_KeepsLowBits(t *testing.T) {
	p, err := packet.New(packet.SourceTunnel, packettest.TCP(packettest.DefaultTCP()))
	require.NoError(t, err)

	off := p.IPHdrLen + 12
	p.Buf[off] |= 0x0f

	require.NoError(t, p.ResizeTCPHeader(24))
	assert.Equal(t, byte(6), p.Buf[off]>>4)
	assert.Equal(t, byte(0x0f), p.Buf[off]&0x0f)
	assert.Equal(t, packet.FlagACK|packet.FlagPSH, p.TCPFlags())
}

func TestPacket_Fields(t *testing.T) {
	p, err := packet.New(packet.SourceTunnel, packettest.TCP(packettest.DefaultTCP()))
	require.NoError(t, err)

	assert.Equal(t, packet.FlagACK|packet.FlagPSH, p.TCPFlags())
	p.SetTCPFlag(packet.FlagPSH, false)
	p.SetTCPFlag(packet.FlagFIN, true)
	assert.Equal(t, "AF", p.TCPFlags().String())

	p.SetAckSeq(7)
	assert.Equal(t, uint32(7), p.AckSeq())

	assert.False(t, p.MoreFragments())
	p.SetMoreFragments(true)
	p.SetFragOffset(3)
	assert.True(t, p.MoreFragments())
	assert.Equal(t, uint16(3), p.FragOffset())

	assert.Equal(t, "10.0.0.2", p.SrcIP().String())
	assert.Equal(t, "93.184.216.34", p.DstIP().String())
}

func TestPacket_CorruptChecksum(t *testing.T) {
	p, err := packet.New(packet.SourceTunnel, packettest.TCP(packettest.DefaultTCP()))
	require.NoError(t, err)

	p.FixChecksums()
	require.True(t, p.ChecksumsValid())

	assert.True(t, p.CorruptChecksum(0))
	assert.False(t, p.ChecksumsValid())

	u, err := packet.New(packet.SourceTunnel, packettest.UDP(nil))
	require.NoError(t, err)
	assert.False(t, u.CorruptChecksum(0))
}

func TestNextID(t *testing.T) {
	a := packet.NextID()
	b := packet.NextID()
	assert.NotZero(t, a)
	assert.Greater(t, b, a)
}

func TestPacket_Split(t *testing.T) {
	spec := packettest.DefaultTCP()
	spec.Payload = bytes.Repeat([]byte("abcdefgh"), 16)
	p, err := packet.New(packet.SourceTunnel, packettest.TCP(spec))
	require.NoError(t, err)

	ipPayload := slices.Clone(p.Buf[p.IPHdrLen:])

	first, second, err := p.Split(72)
	require.NoError(t, err)

	assert.Equal(t, packet.ProtoOtherIP, first.Proto)
	assert.True(t, first.MoreFragments())
	assert.Equal(t, uint16(0), first.FragOffset())
	assert.Equal(t, int(first.TotalLength()), len(first.Buf))

	assert.False(t, second.MoreFragments())
	assert.Equal(t, uint16(9), second.FragOffset())
	assert.Equal(t, int(second.TotalLength()), len(second.Buf))

	joined := append(slices.Clone(first.Payload()), second.Payload()...)
	assert.Equal(t, ipPayload, joined)

	second.FixChecksums()
	reparsed, err := packet.New(packet.SourceTunnel, second.Buf)
	require.NoError(t, err)
	assert.Equal(t, packet.ProtoOtherIP, reparsed.Proto)

	_, _, err = p.Split(7)
	assert.Error(t, err)
	_, _, err = p.Split(len(ipPayload))
	assert.Error(t, err)

	spec.DontFragment = true
	df, err := packet.New(packet.SourceTunnel, packettest.TCP(spec))
	require.NoError(t, err)
	_, _, err = df.Split(8)
	assert.ErrorIs(t, err, packet.ErrDontFragment)
}
