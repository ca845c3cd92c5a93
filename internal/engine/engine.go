// Package engine runs the scheduling cycle: packets enter the queue,
// strategies derive extra packets from tunnel traffic and everything leaves
// the queue in priority order.
package engine

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/rs/zerolog"

	"github.com/holdensmagicalunicorn/sniffjoke/internal/hack"
	"github.com/holdensmagicalunicorn/sniffjoke/internal/hdropt"
	"github.com/holdensmagicalunicorn/sniffjoke/internal/hoptrack"
	"github.com/holdensmagicalunicorn/sniffjoke/internal/logging"
	"github.com/holdensmagicalunicorn/sniffjoke/internal/matcher"
	"github.com/holdensmagicalunicorn/sniffjoke/internal/metrics"
	"github.com/holdensmagicalunicorn/sniffjoke/internal/packet"
	"github.com/holdensmagicalunicorn/sniffjoke/internal/queue"
	"github.com/holdensmagicalunicorn/sniffjoke/internal/scramble"
	"github.com/holdensmagicalunicorn/sniffjoke/internal/session"
)

var ErrNoPool = errors.New("engine requires a hack pool")

const (
	MinLevels = 2
	MaxLevels = 16

	defaultMTU             = 1500
	defaultSessionCapacity = 4096
)

type Attrs struct {
	Levels int
	MTU    int
	// Active false forwards every packet untouched.
	Active   bool
	Tolerant bool
	// SessionCapacity bounds the connections whose packet count is kept.
	SessionCapacity int
	// Bypass lists destinations forwarded without mangling.
	Bypass *matcher.AddrMatcher

	PacketLogger *zerolog.Logger
	Rand         *rand.Rand
	Now          func() time.Time
}

// Engine is not safe for concurrent use; one I/O loop drives it.
type Engine struct {
	logger    zerolog.Logger
	pktLogger zerolog.Logger

	queue    *queue.Queue
	pool     *hack.Pool
	catalog  *hdropt.Catalog
	hops     *hoptrack.Tracker
	sessions *session.Counter
	metrics  *metrics.Recorder
	bypass   *matcher.AddrMatcher

	rand    *rand.Rand
	now     func() time.Time
	active  bool
	injOpts []hdropt.InjectorOption

	// analyzeLevel receives fresh packets; derived packets go one level
	// above or below it.
	analyzeLevel int
}

// New wires an engine. catalog, hops and recorder may be nil: MALFORMED
// and PRESCRIPTION then become unavailable and metrics are not recorded.
func New(
	logger zerolog.Logger,
	pool *hack.Pool,
	catalog *hdropt.Catalog,
	hops *hoptrack.Tracker,
	recorder *metrics.Recorder,
	attrs Attrs,
) (*Engine, error) {
	if pool == nil {
		return nil, ErrNoPool
	}
	if attrs.Levels < MinLevels || attrs.Levels > MaxLevels {
		return nil, fmt.Errorf(
			"queue levels must be between %d and %d, got %d",
			MinLevels, MaxLevels, attrs.Levels,
		)
	}

	logger = logging.WithScope(logger, "ENGINE")

	q, err := queue.New(attrs.Levels, logging.WithScope(logger, "QUEUE"))
	if err != nil {
		return nil, err
	}

	e := &Engine{
		logger:       logger,
		pktLogger:    logger,
		queue:        q,
		pool:         pool,
		catalog:      catalog,
		hops:         hops,
		metrics:      recorder,
		bypass:       attrs.Bypass,
		rand:         attrs.Rand,
		now:          attrs.Now,
		active:       attrs.Active,
		analyzeLevel: attrs.Levels / 2,
	}

	if attrs.PacketLogger != nil {
		e.pktLogger = *attrs.PacketLogger
	}
	if e.rand == nil {
		e.rand = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	if e.now == nil {
		e.now = time.Now
	}

	capacity := attrs.SessionCapacity
	if capacity <= 0 {
		capacity = defaultSessionCapacity
	}
	e.sessions = session.NewCounter(capacity)

	mtu := attrs.MTU
	if mtu <= 0 {
		mtu = defaultMTU
	}
	e.injOpts = []hdropt.InjectorOption{
		hdropt.WithMTU(mtu),
		hdropt.WithTolerant(attrs.Tolerant),
		hdropt.WithLogger(e.pktLogger),
	}
	if hops != nil {
		e.injOpts = append(e.injOpts, hdropt.WithHops(hops))
	}

	return e, nil
}

func (e *Engine) Queued() int {
	return e.queue.Len()
}

// WritePacket queues a datagram read from source. It returns an error
// wrapping packet.ErrMalformed for datagrams that cannot be parsed; the
// caller forwards those untouched.
func (e *Engine) WritePacket(source packet.Source, raw []byte) error {
	pkt, err := packet.New(source, raw)
	if err != nil {
		e.metrics.MalformedIn()
		return err
	}

	pkt.ID = packet.NextID()
	if err := e.queue.Insert(e.analyzeLevel, pkt); err != nil {
		return err
	}

	e.metrics.PacketIn(source.String(), pkt.Proto.String())
	pkt.Selflog(e.pktLogger, "packet queued")

	return nil
}

// Analyze offers every packet not yet examined to the strategy pool and
// marks it ready to send.
func (e *Engine) Analyze(ctx context.Context) {
	ctx = session.WithCycleID(ctx)

	for pkt := e.nextUnsent(false); pkt != nil; pkt = e.nextUnsent(true) {
		e.analyzePacket(ctx, pkt)
	}

	e.metrics.SetQueued(e.queue.Len())
}

func (e *Engine) nextUnsent(cont bool) *packet.Packet {
	return e.queue.GetFiltered(packet.StatusYetUnsent, packet.SourceAny, packet.ProtoAny, cont)
}

func (e *Engine) analyzePacket(ctx context.Context, pkt *packet.Packet) {
	if pkt.Source == packet.SourceNetwork && e.hops != nil {
		e.hops.Observe(ctx, pkt)
	}

	if !e.active || pkt.Source != packet.SourceTunnel || !pkt.IsTCP() {
		pkt.Status = packet.StatusSend
		return
	}

	if k, ok := session.KeyOf(pkt); ok {
		if e.bypass.Bypass(k.Dst) {
			e.metrics.Bypassed()
			pkt.Status = packet.StatusSend
			pkt.Selflog(e.pktLogger, "destination bypassed")
			return
		}
		ctx = session.WithFlow(ctx, k)
	}
	logger := logging.WithLocalScope(ctx, e.logger, "analyze")

	level, _ := e.queue.LevelOf(pkt)
	seen := e.sessions.Touch(pkt)
	avail := e.availableScrambles(pkt)

	for _, h := range e.pool.Hacks() {
		d := h.Descriptor()
		if !hack.ShouldApply(d.Frequency, seen, e.now(), e.rand) {
			continue
		}
		if !h.Condition(pkt, avail) {
			continue
		}

		res := h.Create(pkt, avail)
		logger.Debug().
			Str("hack", d.Name).
			Int("derived", len(res.Packets)).
			Bool("remove_orig", res.RemoveOrig).
			Msg("hack applied")

		for _, derived := range res.Packets {
			e.scheduleDerived(ctx, logger, level, d, derived)
		}

		if res.RemoveOrig {
			e.queue.Remove(pkt)
			pkt.Selflog(e.pktLogger, "original removed")
			return
		}
	}

	pkt.Status = packet.StatusSend
}

// availableScrambles lists what can be realized on a packet toward the
// destination of pkt right now.
func (e *Engine) availableScrambles(pkt *packet.Packet) scramble.Mask {
	avail := scramble.Innocent | scramble.Guilty
	if e.catalog != nil && e.catalog.Loaded() {
		avail |= scramble.Malformed
	}
	if e.hops != nil {
		if _, ok := e.hops.Hops(pkt.DstIP()); ok {
			avail |= scramble.Prescription
		}
	}

	return avail
}

func (e *Engine) levelFor(level int, pos packet.Position) int {
	switch pos {
	case packet.PositionAnticipation:
		level--
	case packet.PositionPosticipation:
		level++
	default:
		if e.rand.IntN(2) == 0 {
			level--
		} else {
			level++
		}
	}

	return min(max(level, 0), e.queue.Levels()-1)
}

func (e *Engine) scheduleDerived(
	ctx context.Context,
	logger zerolog.Logger,
	level int,
	d hack.Descriptor,
	derived *packet.Packet,
) {
	derived.ID = packet.NextID()
	derived.Source = packet.SourceLocal

	if reason, ok := e.lastPktFix(ctx, derived); !ok {
		logger.Debug().
			Str("hack", d.Name).
			Str("reason", reason).
			Msg("derived packet dropped")
		e.metrics.DerivedDropped(reason)
		return
	}

	derived.Status = packet.StatusSend
	if err := e.queue.Insert(e.levelFor(level, derived.Position), derived); err != nil {
		logger.Error().Err(err).Msg("failed to queue derived packet")
		return
	}

	e.metrics.HackApplied(d.Name, derived.WTF.String())
	derived.Selflog(e.pktLogger, "derived packet queued")
}
