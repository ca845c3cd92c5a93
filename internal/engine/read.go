package engine

import (
	"github.com/holdensmagicalunicorn/sniffjoke/internal/packet"
)

// ReadPacket removes and returns the first packet ready to send in
// priority order, or nil when none is.
func (e *Engine) ReadPacket() *packet.Packet {
	pkt := e.queue.GetFiltered(packet.StatusSend, packet.SourceAny, packet.ProtoAny, false)
	if pkt == nil {
		return nil
	}

	e.queue.Remove(pkt)
	e.metrics.PacketOut(pkt.Source.String())
	pkt.Selflog(e.pktLogger, "packet released")

	return pkt
}

// Close discards every queued packet and returns how many there were.
func (e *Engine) Close() int {
	n := e.queue.Close()
	e.metrics.SetQueued(0)

	return n
}
