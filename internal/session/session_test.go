package session

import (
	"context"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holdensmagicalunicorn/sniffjoke/internal/packet"
	"github.com/holdensmagicalunicorn/sniffjoke/internal/packet/packettest"
)

func TestWithCycleID(t *testing.T) {
	ctx := WithCycleID(context.Background())
	id, ok := CycleIDFrom(ctx)
	require.True(t, ok)
	assert.Regexp(t, "^[0-9a-f]{16}$", id)

	again, _ := CycleIDFrom(WithCycleID(ctx))
	assert.Equal(t, id, again)

	other, _ := CycleIDFrom(WithCycleID(context.Background()))
	assert.NotEqual(t, id, other)
}

func TestWithFlow(t *testing.T) {
	ctx := context.Background()
	_, ok := FlowFrom(ctx)
	assert.False(t, ok)

	k := Key{
		Src: netip.MustParseAddrPort("10.0.0.2:40000"),
		Dst: netip.MustParseAddrPort("93.184.216.34:80"),
	}
	got, ok := FlowFrom(WithFlow(ctx, k))
	require.True(t, ok)
	assert.Equal(t, k, got)
}

func TestCounter(t *testing.T) {
	mk := func(srcPort uint16) *packet.Packet {
		spec := packettest.DefaultTCP()
		spec.SrcPort = srcPort
		p, err := packet.New(packet.SourceTunnel, packettest.TCP(spec))
		require.NoError(t, err)
		return p
	}

	c := NewCounter(2)
	a, b, d := mk(1000), mk(1001), mk(1002)

	assert.Equal(t, 1, c.Touch(a))
	assert.Equal(t, 2, c.Touch(a))
	assert.Equal(t, 1, c.Touch(b))
	assert.Equal(t, 3, c.Touch(a))

	// b is the least recently used connection
	assert.Equal(t, 1, c.Touch(d))
	assert.Equal(t, 1, c.Touch(b))
	assert.Equal(t, 2, c.Len())

	c.Forget(b)
	assert.Equal(t, 1, c.Len())

	k, ok := KeyOf(a)
	require.True(t, ok)
	assert.Equal(t, "10.0.0.2:1000>93.184.216.34:80", k.String())

	udp, err := packet.New(packet.SourceTunnel, packettest.UDP(nil))
	require.NoError(t, err)
	assert.Equal(t, 1, c.Touch(udp))
	assert.Equal(t, 1, c.Touch(udp))
}
