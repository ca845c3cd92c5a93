package session

import (
	"encoding/binary"
	"fmt"
	"net/netip"

	"github.com/holdensmagicalunicorn/sniffjoke/internal/cache"
	"github.com/holdensmagicalunicorn/sniffjoke/internal/packet"
)

// Key identifies one direction of a TCP connection.
type Key struct {
	Src netip.AddrPort
	Dst netip.AddrPort
}

func (k Key) String() string {
	return fmt.Sprintf("%s>%s", k.Src, k.Dst)
}

// KeyOf reports false for anything but a TCP segment.
func KeyOf(pkt *packet.Packet) (Key, bool) {
	if !pkt.IsTCP() {
		return Key{}, false
	}

	seg := pkt.Buf[pkt.IPHdrLen:]
	return Key{
		Src: netip.AddrPortFrom(pkt.SrcIP(), binary.BigEndian.Uint16(seg[0:2])),
		Dst: netip.AddrPortFrom(pkt.DstIP(), binary.BigEndian.Uint16(seg[2:4])),
	}, true
}

// Counter keeps the number of packets seen per connection for the most
// recently active connections.
type Counter struct {
	seen *cache.LRUCache[Key, int]
}

func NewCounter(capacity int) *Counter {
	return &Counter{seen: cache.NewLRUCache[Key, int](capacity, nil)}
}

// Touch counts pkt and returns the packets seen on its connection so far,
// pkt included. Non TCP packets always count as the first of their session.
func (c *Counter) Touch(pkt *packet.Packet) int {
	k, ok := KeyOf(pkt)
	if !ok {
		return 1
	}

	n, _ := c.seen.Get(k)
	n++
	c.seen.Set(k, n)

	return n
}

// Forget drops the count of the connection pkt belongs to.
func (c *Counter) Forget(pkt *packet.Packet) {
	if k, ok := KeyOf(pkt); ok {
		c.seen.Delete(k)
	}
}

func (c *Counter) Len() int {
	return c.seen.Len()
}
