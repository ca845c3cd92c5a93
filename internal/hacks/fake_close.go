package hacks

import (
	"github.com/holdensmagicalunicorn/sniffjoke/internal/hack"
	"github.com/holdensmagicalunicorn/sniffjoke/internal/packet"
	"github.com/holdensmagicalunicorn/sniffjoke/internal/scramble"
)

// fakeClose fabricates a premature close segment ahead of a data segment. A
// tracker that believes it stops reassembling the session, while the
// scramble keeps the endpoint from honouring it.
type fakeClose struct {
	hack.Base
	flag packet.TCPFlags
}

func newFakeCloseFIN(opts hack.FactoryOptions) hack.Hack {
	return newFakeClose(opts, "Fake FIN", packet.FlagFIN)
}

func newFakeCloseRST(opts hack.FactoryOptions) hack.Hack {
	return newFakeClose(opts, "Fake RST", packet.FlagRST)
}

func newFakeClose(opts hack.FactoryOptions, name string, flag packet.TCPFlags) hack.Hack {
	return &fakeClose{
		Base: hack.NewBase(opts, hack.Descriptor{
			Name:      name,
			Frequency: hack.Packets30Peek,
			Supported: scramble.Prescription | scramble.Guilty | scramble.Malformed,
		}),
		flag: flag,
	}
}

func (h *fakeClose) Condition(pkt *packet.Packet, avail scramble.Mask) bool {
	return h.Usable(avail) != scramble.None && established(pkt)
}

func (h *fakeClose) Create(pkt *packet.Packet, avail scramble.Mask) hack.Result {
	c := pkt.Clone()
	pkt.Selflog(h.Logger, "original packet")

	dataLen := c.DataLen
	if err := c.ResizeTCPPayload(0); err != nil {
		h.Logger.Debug().Err(err).Msg("cannot strip payload")
		return hack.Result{}
	}

	c.SetIPID(c.IPID() + uint16(h.Rand.IntN(10)))
	c.SetSeq(c.Seq() - uint32(dataLen) + 1)
	c.SetTCPFlag(packet.FlagPSH, false)
	c.SetTCPFlag(h.flag, true)

	usable := h.Usable(avail)
	c.Position = packet.PositionAnticipation
	c.WTF = usable.Pick(h.Rand)
	c.ChoosableScramble = usable

	c.Selflog(h.Logger, "hacked packet")

	return hack.Result{Packets: []*packet.Packet{c}}
}
