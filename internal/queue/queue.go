// Package queue implements the multi level packet scheduler. Level 0 is
// drained first; packets within a level keep their insertion order.
package queue

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/holdensmagicalunicorn/sniffjoke/internal/packet"
)

const noSlot = -1

type slot struct {
	pkt   *packet.Packet
	level int
}

type cursor struct {
	level int
	pos   int
}

// Queue is not safe for concurrent use.
type Queue struct {
	logger zerolog.Logger

	slots []slot
	free  []int

	// levels[i] holds slot indices in FIFO order.
	levels [][]int
	byPtr  map[*packet.Packet]int
	byID   map[uint32]int

	cur cursor
}

func New(levels int, logger zerolog.Logger) (*Queue, error) {
	if levels < 1 {
		return nil, fmt.Errorf("invalid number of queue levels: %d", levels)
	}

	return &Queue{
		logger: logger,
		levels: make([][]int, levels),
		byPtr:  make(map[*packet.Packet]int),
		byID:   make(map[uint32]int),
		cur:    cursor{level: levels},
	}, nil
}

func (q *Queue) Levels() int {
	return len(q.levels)
}

func (q *Queue) Len() int {
	return len(q.byPtr)
}

// Insert appends pkt to the tail of level. A queued packet carrying the same
// non-zero id is removed first, so at most one packet per id is ever queued.
func (q *Queue) Insert(level int, pkt *packet.Packet) error {
	if level < 0 || level >= len(q.levels) {
		return fmt.Errorf("queue level %d out of range [0,%d)", level, len(q.levels))
	}

	if _, ok := q.byPtr[pkt]; ok {
		q.Remove(pkt)
	}

	if pkt.ID != 0 {
		if idx, ok := q.byID[pkt.ID]; ok {
			stale := q.slots[idx].pkt
			q.Remove(stale)
			q.logger.Trace().
				Uint32("pkt_id", pkt.ID).
				Int("level", level).
				Msg("stale packet with same id discarded")
		}
	}

	idx := q.alloc(pkt, level)
	q.levels[level] = append(q.levels[level], idx)
	q.byPtr[pkt] = idx
	if pkt.ID != 0 {
		q.byID[pkt.ID] = idx
	}

	return nil
}

// Remove unlinks pkt from whichever level holds it. It reports false when pkt
// is not queued.
func (q *Queue) Remove(pkt *packet.Packet) bool {
	idx, ok := q.byPtr[pkt]
	if !ok {
		return false
	}

	level := q.slots[idx].level
	list := q.levels[level]
	for i, v := range list {
		if v != idx {
			continue
		}

		q.levels[level] = append(list[:i], list[i+1:]...)
		if q.cur.level == level && i < q.cur.pos {
			q.cur.pos--
		}
		break
	}

	delete(q.byPtr, pkt)
	if pkt.ID != 0 && q.byID[pkt.ID] == idx {
		delete(q.byID, pkt.ID)
	}
	q.release(idx)

	return true
}

// Get walks the queue in level order, then FIFO order. With cont false the
// walk restarts from the head of level 0. It returns nil once every level is
// exhausted.
func (q *Queue) Get(cont bool) *packet.Packet {
	if !cont {
		q.cur = cursor{}
	}

	for q.cur.level < len(q.levels) {
		list := q.levels[q.cur.level]
		if q.cur.pos < len(list) {
			pkt := q.slots[list[q.cur.pos]].pkt
			q.cur.pos++
			return pkt
		}

		q.cur.level++
		q.cur.pos = 0
	}

	return nil
}

// GetFiltered advances the cursor like Get, skipping packets that do not
// match. StatusAny, SourceAny and ProtoAny match everything.
func (q *Queue) GetFiltered(
	status packet.Status,
	source packet.Source,
	proto packet.Proto,
	cont bool,
) *packet.Packet {
	for pkt := q.Get(cont); pkt != nil; pkt = q.Get(true) {
		if status != packet.StatusAny && pkt.Status != status {
			continue
		}
		if source != packet.SourceAny && pkt.Source != source {
			continue
		}
		if proto != packet.ProtoAny && pkt.Proto != proto {
			continue
		}

		return pkt
	}

	return nil
}

// GetByID does not move the cursor.
func (q *Queue) GetByID(id uint32) *packet.Packet {
	if id == 0 {
		return nil
	}

	idx, ok := q.byID[id]
	if !ok {
		return nil
	}

	return q.slots[idx].pkt
}

// LevelOf reports the level currently holding pkt.
func (q *Queue) LevelOf(pkt *packet.Packet) (int, bool) {
	idx, ok := q.byPtr[pkt]
	if !ok {
		return 0, false
	}

	return q.slots[idx].level, true
}

// Drain removes and returns every queued packet in priority order.
func (q *Queue) Drain() []*packet.Packet {
	out := make([]*packet.Packet, 0, q.Len())
	for _, list := range q.levels {
		for _, idx := range list {
			out = append(out, q.slots[idx].pkt)
		}
	}

	for i := range q.levels {
		q.levels[i] = q.levels[i][:0]
	}
	clear(q.byPtr)
	clear(q.byID)
	q.slots = q.slots[:0]
	q.free = q.free[:0]
	q.cur = cursor{level: len(q.levels)}

	return out
}

// Close discards every remaining packet exactly once and returns how many
// there were.
func (q *Queue) Close() int {
	n := len(q.Drain())
	q.logger.Debug().Int("discarded", n).Msg("queue closed")

	return n
}

func (q *Queue) alloc(pkt *packet.Packet, level int) int {
	if n := len(q.free); n > 0 {
		idx := q.free[n-1]
		q.free = q.free[:n-1]
		q.slots[idx] = slot{pkt: pkt, level: level}
		return idx
	}

	q.slots = append(q.slots, slot{pkt: pkt, level: level})

	return len(q.slots) - 1
}

func (q *Queue) release(idx int) {
	q.slots[idx] = slot{level: noSlot}
	q.free = append(q.free, idx)
}
