// Package hoptrack estimates how many routers separate this host from a
// remote peer, from the TTL left on the peer's SYN+ACK.
package hoptrack

import (
	"context"
	"net/netip"

	"github.com/rs/zerolog"

	"github.com/holdensmagicalunicorn/sniffjoke/internal/cache"
	"github.com/holdensmagicalunicorn/sniffjoke/internal/logging"
	"github.com/holdensmagicalunicorn/sniffjoke/internal/packet"
)

type Attrs struct {
	// DefaultTTL is returned for peers with no estimate.
	DefaultTTL uint8
}

// Tracker stores one hop count per remote address. It satisfies
// hdropt.HopSource.
type Tracker struct {
	logger zerolog.Logger
	nhops  cache.Cache[netip.Addr, uint8]
	attrs  Attrs
}

func New(logger zerolog.Logger, c cache.Cache[netip.Addr, uint8], attrs Attrs) *Tracker {
	return &Tracker{
		logger: logger,
		nhops:  c,
		attrs:  attrs,
	}
}

// Observe records the hop count of a SYN+ACK received from the network. It
// reports whether an estimate was stored.
func (t *Tracker) Observe(ctx context.Context, pkt *packet.Packet) bool {
	if pkt.Source != packet.SourceNetwork || !pkt.IsTCP() {
		return false
	}

	if !pkt.TCPFlags().Has(packet.FlagSYN | packet.FlagACK) {
		return false
	}

	ttl := pkt.TTL()
	nhops := calculateHops(ttl)
	if nhops == 0 {
		return false
	}

	remote := pkt.SrcIP()
	if !t.nhops.Set(remote, nhops) {
		return false
	}

	logger := logging.WithLocalScope(ctx, t.logger, "observe")
	logger.Trace().
		Str("remote", remote.String()).
		Uint8("nhops", nhops).
		Uint8("ttl_left", ttl).
		Msg("received syn+ack")

	return true
}

func (t *Tracker) Hops(addr netip.Addr) (uint8, bool) {
	return t.nhops.Get(addr)
}

// PrescriptionTTL is a TTL that expires one hop before addr. Without an
// estimate it returns the default TTL and false.
func (t *Tracker) PrescriptionTTL(addr netip.Addr) (uint8, bool) {
	nhops, ok := t.nhops.Get(addr)
	if !ok {
		return t.attrs.DefaultTTL, false
	}

	return max(nhops, 2) - 1, true
}

// calculateHops guesses the initial TTL from the one left (GoodbyeDPI
// heuristic). It returns 0 when the initial TTL is not recognizable.
func calculateHops(ttl uint8) uint8 {
	switch {
	case ttl > 98 && ttl < 128:
		return 128 - ttl
	case ttl > 34 && ttl < 64:
		return 64 - ttl
	default:
		return 0
	}
}
