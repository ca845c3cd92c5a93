package hacks

import (
	"github.com/holdensmagicalunicorn/sniffjoke/internal/hack"
	"github.com/holdensmagicalunicorn/sniffjoke/internal/packet"
	"github.com/holdensmagicalunicorn/sniffjoke/internal/scramble"
)

// minDatagram is the size every IPv4 module forwards without further
// fragmentation (RFC 791).
const minDatagram = 68

// fragmentation splits one datagram into two legal fragments and drops the
// original. Both fragments are valid, so the strategy is INNOCENT only.
type fragmentation struct {
	hack.Base
}

func newFragmentation(opts hack.FactoryOptions) hack.Hack {
	return &fragmentation{
		Base: hack.NewBase(opts, hack.Descriptor{
			Name:       "Fragmentation",
			Frequency:  hack.Always,
			Supported:  scramble.Innocent,
			RemoveOrig: true,
		}),
	}
}

func (h *fragmentation) Init(permitted scramble.Mask) bool {
	if !permitted.Has(scramble.Innocent) {
		h.Logger.Info().
			Str("permitted", permitted.String()).
			Msg("fragmentation supports only the INNOCENT scramble")
		return false
	}

	return h.Base.Init(permitted)
}

func (h *fragmentation) Condition(pkt *packet.Packet, avail scramble.Mask) bool {
	if h.Usable(avail) == scramble.None {
		return false
	}

	payload := len(pkt.Buf) - pkt.IPHdrLen
	return !pkt.DontFragment() && pkt.IPHdrLen+payload/2 >= minDatagram
}

func (h *fragmentation) Create(pkt *packet.Packet, avail scramble.Mask) hack.Result {
	payload := len(pkt.Buf) - pkt.IPHdrLen
	// every fragment but the last carries a multiple of 8 bytes
	at := ((payload/2 + payload%2) >> 3) << 3

	first, second, err := pkt.Split(at)
	if err != nil {
		h.Logger.Debug().Err(err).Msg("cannot fragment")
		return hack.Result{}
	}

	usable := h.Usable(avail)
	for _, f := range []*packet.Packet{first, second} {
		f.SetIPID(jitterID(h.Rand, f.IPID()))
		f.WTF = scramble.Innocent
		f.ChoosableScramble = usable
		f.Position = packet.PositionUnassigned
		f.Selflog(h.Logger, "fragment created")
	}

	return hack.Result{
		Packets:    []*packet.Packet{first, second},
		RemoveOrig: true,
	}
}
