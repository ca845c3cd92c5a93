package hacks

import (
	"github.com/holdensmagicalunicorn/sniffjoke/internal/hack"
	"github.com/holdensmagicalunicorn/sniffjoke/internal/packet"
	"github.com/holdensmagicalunicorn/sniffjoke/internal/scramble"
)

// fakeData duplicates a data segment with random payload of the same
// length and sequence number. Only scrambles that keep the copy away from
// the endpoint are supported.
type fakeData struct {
	hack.Base
}

func newFakeData(opts hack.FactoryOptions) hack.Hack {
	return &fakeData{
		Base: hack.NewBase(opts, hack.Descriptor{
			Name:      "Fake data",
			Frequency: hack.Common,
			Supported: scramble.Prescription | scramble.Guilty | scramble.Malformed,
		}),
	}
}

func (h *fakeData) Condition(pkt *packet.Packet, avail scramble.Mask) bool {
	return h.Usable(avail) != scramble.None && pkt.IsTCP() && pkt.DataLen > 0
}

func (h *fakeData) Create(pkt *packet.Packet, avail scramble.Mask) hack.Result {
	c := pkt.Clone()

	payload := c.Payload()
	for i := range payload {
		payload[i] = byte(h.Rand.Uint32())
	}
	c.SetIPID(jitterID(h.Rand, c.IPID()))

	usable := h.Usable(avail)
	c.Position = packet.PositionAny
	c.WTF = usable.Pick(h.Rand)
	c.ChoosableScramble = usable

	c.Selflog(h.Logger, "hacked packet")

	return hack.Result{Packets: []*packet.Packet{c}}
}
