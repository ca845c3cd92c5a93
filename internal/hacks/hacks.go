// Package hacks holds the built-in packet mangling strategies. Importing it
// registers every strategy in the default hack registry.
package hacks

import (
	"math/rand/v2"

	"github.com/holdensmagicalunicorn/sniffjoke/internal/hack"
	"github.com/holdensmagicalunicorn/sniffjoke/internal/packet"
	"github.com/holdensmagicalunicorn/sniffjoke/version"
)

func init() {
	hack.Register("fragmentation", version.StrategyAPI, newFragmentation)
	hack.Register("fake_close_fin", version.StrategyAPI, newFakeCloseFIN)
	hack.Register("fake_close_rst", version.StrategyAPI, newFakeCloseRST)
	hack.Register("shift_ack", version.StrategyAPI, newShiftACK)
	hack.Register("fake_data", version.StrategyAPI, newFakeData)
	hack.Register("ip_options", version.StrategyAPI, newIPOptions)
	hack.Register("tcp_options", version.StrategyAPI, newTCPOptions)
}

const defaultMTU = 1500

// jitterID moves an IP id by up to ten in either direction.
func jitterID(r *rand.Rand, id uint16) uint16 {
	return id - 10 + uint16(r.IntN(20))
}

// established matches a plain ACK segment of an open connection.
func established(pkt *packet.Packet) bool {
	if !pkt.IsTCP() {
		return false
	}

	f := pkt.TCPFlags()
	return !f.Has(packet.FlagSYN) &&
		!f.Has(packet.FlagRST) &&
		!f.Has(packet.FlagFIN) &&
		f.Has(packet.FlagACK)
}
