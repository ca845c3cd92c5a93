package hacks

import (
	"github.com/holdensmagicalunicorn/sniffjoke/internal/hack"
	"github.com/holdensmagicalunicorn/sniffjoke/internal/packet"
	"github.com/holdensmagicalunicorn/sniffjoke/internal/scramble"
)

// shiftACK sends a copy of a segment whose acknowledgment number lies a
// full MTU behind. Shifted further than the window, the endpoint discards
// it even when INNOCENT.
type shiftACK struct {
	hack.Base
	mtu int
}

func newShiftACK(opts hack.FactoryOptions) hack.Hack {
	mtu := opts.MTU
	if mtu <= 0 {
		mtu = defaultMTU
	}

	return &shiftACK{
		Base: hack.NewBase(opts, hack.Descriptor{
			Name:      "unexpected ACK shift",
			Frequency: hack.Rare,
			Supported: scramble.All,
		}),
		mtu: mtu,
	}
}

func (h *shiftACK) Condition(pkt *packet.Packet, avail scramble.Mask) bool {
	return h.Usable(avail) != scramble.None && established(pkt)
}

func (h *shiftACK) Create(pkt *packet.Packet, avail scramble.Mask) hack.Result {
	c := pkt.Clone()

	mtu := uint32(h.mtu)
	c.SetIPID(jitterID(h.Rand, c.IPID()))
	c.SetAckSeq(c.AckSeq() - mtu + uint32(h.Rand.IntN(2))*mtu)

	usable := h.Usable(avail)
	c.Position = packet.PositionAny
	c.WTF = usable.Pick(h.Rand)
	c.ChoosableScramble = usable

	c.Selflog(h.Logger, "hacked packet")

	return hack.Result{Packets: []*packet.Packet{c}}
}
