package engine

import (
	"context"

	"github.com/holdensmagicalunicorn/sniffjoke/internal/hdropt"
	"github.com/holdensmagicalunicorn/sniffjoke/internal/packet"
	"github.com/holdensmagicalunicorn/sniffjoke/internal/scramble"
)

const (
	dropNoScramble    = "no_scramble"
	dropChecksum      = "checksum_unavailable"
	dropMalformedGoal = "malformed_goal"
)

// lastPktFix realizes the scramble of a derived packet and settles its
// checksums. A packet whose scramble cannot be realized must not be sent;
// the returned reason says why.
func (e *Engine) lastPktFix(ctx context.Context, pkt *packet.Packet) (string, bool) {
	wtf := pkt.WTF
	if wtf == scramble.None {
		wtf = scramble.Innocent
	}

	var prescriptionTTL uint8
	if wtf == scramble.Prescription {
		ttl, ok := e.prescriptionTTL(pkt)
		if !ok {
			// the hop count toward the destination is unknown
			wtf = e.downgrade(pkt)
			if wtf == scramble.None {
				return dropNoScramble, false
			}
		}
		prescriptionTTL = ttl
	}
	pkt.WTF = wtf

	switch wtf {
	case scramble.Prescription:
		pkt.SetTTL(prescriptionTTL)
		pkt.FixChecksums()
	case scramble.Guilty:
		pkt.FixChecksums()
		if !pkt.CorruptChecksum(uint16(e.rand.IntN(0xffff)) + 1) {
			return dropChecksum, false
		}
	case scramble.Malformed:
		if !pkt.Applied.Has(scramble.Malformed) && !e.malform(ctx, pkt) {
			return dropMalformedGoal, false
		}
		pkt.FixChecksums()
	default:
		pkt.FixChecksums()
	}

	return "", true
}

func (e *Engine) prescriptionTTL(pkt *packet.Packet) (uint8, bool) {
	if e.hops == nil {
		return 0, false
	}

	return e.hops.PrescriptionTTL(pkt.DstIP())
}

// downgrade picks another scramble among those the strategy allowed.
func (e *Engine) downgrade(pkt *packet.Packet) scramble.Mask {
	choosable := pkt.ChoosableScramble &^ scramble.Prescription
	choosable &= e.availableScrambles(pkt)

	return choosable.Pick(e.rand)
}

// malform corrupts the IP options and falls back to the TCP options.
func (e *Engine) malform(ctx context.Context, pkt *packet.Packet) bool {
	if e.catalog == nil {
		return false
	}

	for _, kind := range []hdropt.Kind{hdropt.KindIP, hdropt.KindTCP} {
		inj, err := hdropt.NewInjector(kind, pkt, e.catalog, e.injOpts...)
		if err != nil {
			e.logger.Debug().Ctx(ctx).
				Err(err).
				Str("kind", kind.String()).
				Msg("header options not usable")
			continue
		}

		if inj.InjectRandomOpts(true, false) {
			pkt.Applied |= scramble.Malformed
			return true
		}
	}

	return false
}
