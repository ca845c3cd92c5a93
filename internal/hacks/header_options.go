package hacks

import (
	"github.com/holdensmagicalunicorn/sniffjoke/internal/hack"
	"github.com/holdensmagicalunicorn/sniffjoke/internal/hdropt"
	"github.com/holdensmagicalunicorn/sniffjoke/internal/packet"
	"github.com/holdensmagicalunicorn/sniffjoke/internal/scramble"
)

// headerOptions duplicates a segment and fills one of its option areas with
// random catalog options. Under MALFORMED the options are chosen to corrupt
// the header and the scramble is marked as applied.
type headerOptions struct {
	hack.Base
	kind    hdropt.Kind
	catalog *hdropt.Catalog
	injOpts []hdropt.InjectorOption
}

func newIPOptions(opts hack.FactoryOptions) hack.Hack {
	return newHeaderOptions(opts, "IP options", hdropt.KindIP, hack.Common)
}

func newTCPOptions(opts hack.FactoryOptions) hack.Hack {
	return newHeaderOptions(opts, "TCP options", hdropt.KindTCP, hack.Rare)
}

func newHeaderOptions(
	opts hack.FactoryOptions,
	name string,
	kind hdropt.Kind,
	freq hack.Frequency,
) hack.Hack {
	h := &headerOptions{
		Base: hack.NewBase(opts, hack.Descriptor{
			Name:      name,
			Frequency: freq,
			Supported: scramble.All,
		}),
		kind:    kind,
		catalog: opts.Catalog,
	}

	h.injOpts = append(h.injOpts,
		hdropt.WithLogger(h.Logger),
		hdropt.WithTolerant(opts.Tolerant),
	)
	if opts.MTU > 0 {
		h.injOpts = append(h.injOpts, hdropt.WithMTU(opts.MTU))
	}
	if opts.Hops != nil {
		h.injOpts = append(h.injOpts, hdropt.WithHops(opts.Hops))
	}

	return h
}

func (h *headerOptions) Init(permitted scramble.Mask) bool {
	if h.catalog == nil {
		h.Logger.Info().Msg("no option catalog, strategy disabled")
		return false
	}

	return h.Base.Init(permitted)
}

func (h *headerOptions) Condition(pkt *packet.Packet, avail scramble.Mask) bool {
	if h.Usable(avail) == scramble.None || !pkt.IsTCP() {
		return false
	}

	if h.kind == hdropt.KindIP {
		return pkt.IPHdrLen < packet.MaxIPHeader
	}

	return pkt.TCPHdrLen < packet.MaxTCPHeader && !pkt.TCPFlags().Has(packet.FlagSYN)
}

func (h *headerOptions) Create(pkt *packet.Packet, avail scramble.Mask) hack.Result {
	usable := h.Usable(avail)
	c := pkt.Clone()
	wtf := usable.Pick(h.Rand)

	inj, err := hdropt.NewInjector(h.kind, c, h.catalog, h.injOpts...)
	if err != nil {
		h.Logger.Debug().Err(err).Msg("present options not usable")
		return hack.Result{}
	}

	before := inj.OptLen()
	corrupt := wtf == scramble.Malformed
	if !inj.InjectRandomOpts(corrupt, false) {
		return hack.Result{}
	}
	if !corrupt && inj.OptLen() == before {
		return hack.Result{}
	}

	c.SetIPID(jitterID(h.Rand, c.IPID()))
	c.Position = packet.PositionAny
	c.WTF = wtf
	c.ChoosableScramble = usable
	if corrupt {
		c.Applied |= scramble.Malformed
	}

	c.Selflog(h.Logger, "hacked packet")

	return hack.Result{Packets: []*packet.Packet{c}}
}
