package hack

import (
	"math/rand/v2"
	"time"
)

type Frequency uint8

const (
	Never Frequency = iota
	Always
	Rare
	Common
	Heavy
	Packets10Peek
	Packets30Peek
	TimeBased5s
	TimeBased20s
	Startpeek
	Longpeek
)

func (f Frequency) String() string {
	switch f {
	case Never:
		return "NEVER"
	case Always:
		return "ALWAYS"
	case Rare:
		return "RARE"
	case Common:
		return "COMMON"
	case Heavy:
		return "HEAVY"
	case Packets10Peek:
		return "PACKETS10PEEK"
	case Packets30Peek:
		return "PACKETS30PEEK"
	case TimeBased5s:
		return "TIMEBASED5S"
	case TimeBased20s:
		return "TIMEBASED20S"
	case Startpeek:
		return "STARTPEEK"
	case Longpeek:
		return "LONGPEEK"
	default:
		return "UNKNOWN"
	}
}

// ShouldApply is the default scheduling policy. sessionPkts is the number of
// packets seen so far on the session the candidate belongs to, counting the
// candidate.
func ShouldApply(f Frequency, sessionPkts int, now time.Time, r *rand.Rand) bool {
	switch f {
	case Always:
		return true
	case Rare:
		return r.IntN(100) < 5
	case Common:
		return r.IntN(100) < 15
	case Heavy:
		return r.IntN(100) < 40
	case Packets10Peek:
		return nearMultiple(sessionPkts, 10)
	case Packets30Peek:
		return nearMultiple(sessionPkts, 30)
	case TimeBased5s:
		return now.Second()%5 == 0
	case TimeBased20s:
		return now.Second()%20 < 2
	case Startpeek:
		return sessionPkts <= 20 || r.IntN(100) < 2
	case Longpeek:
		return sessionPkts > 60 && r.IntN(100) < 50
	default:
		return false
	}
}

func nearMultiple(n, m int) bool {
	switch n % m {
	case 0, 1, m - 1:
		return true
	default:
		return false
	}
}
