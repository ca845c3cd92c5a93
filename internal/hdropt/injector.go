package hdropt

import (
	"errors"
	"fmt"
	"slices"

	"github.com/rs/zerolog"

	"github.com/holdensmagicalunicorn/sniffjoke/internal/packet"
)

var (
	ErrInvalidOption = errors.New("invalid option in header")
	ErrUnknownOption = errors.New("unknown option in header")
	ErrNotTCP        = errors.New("tcp injector on a non tcp packet")
)

const defaultMTU = 1500

// Occurrence locates one option instance inside the option area.
type Occurrence struct {
	Offset int
	Length int
}

type InjectorOption func(*Injector)

func WithMTU(mtu int) InjectorOption {
	return func(i *Injector) { i.mtu = mtu }
}

func WithLogger(logger zerolog.Logger) InjectorOption {
	return func(i *Injector) { i.logger = logger }
}

func WithHops(hops HopSource) InjectorOption {
	return func(i *Injector) { i.area.hops = hops }
}

// WithTolerant makes the session skip well formed options it does not know
// instead of failing. They are tracked as foreign occurrences.
func WithTolerant(tolerant bool) InjectorOption {
	return func(i *Injector) { i.tolerant = tolerant }
}

// Injector is a single pass over one header of one packet. Nothing reaches
// the packet until Complete runs.
type Injector struct {
	kind     Kind
	pkt      *packet.Packet
	logger   zerolog.Logger
	mtu      int
	tolerant bool

	avail   []*Option
	area    Area
	track   [SupportedOptions][]Occurrence
	foreign []Occurrence

	corruptRequest bool
	corruptDone    bool
}

// NewInjector copies the option area of pkt and identifies every option
// already present in it.
func NewInjector(
	kind Kind,
	pkt *packet.Packet,
	catalog *Catalog,
	opts ...InjectorOption,
) (*Injector, error) {
	i := &Injector{
		kind:   kind,
		pkt:    pkt,
		logger: zerolog.Nop(),
		mtu:    defaultMTU,
	}
	i.area.rand = catalog.rand
	i.area.pkt = pkt

	for _, opt := range opts {
		opt(i)
	}

	var present []byte
	switch kind {
	case KindIP:
		present = pkt.IPOptions()
	case KindTCP:
		if !pkt.IsTCP() {
			return nil, ErrNotTCP
		}
		present = pkt.TCPOptions()
	default:
		return nil, fmt.Errorf("invalid injector kind %d", kind)
	}

	i.area.used = copy(i.area.buf[:], present)
	i.area.limit = i.area.used

	for o := range catalog.Options(kind) {
		i.avail = append(i.avail, o)
	}

	if err := i.acquirePresentOptions(); err != nil {
		return nil, err
	}

	return i, nil
}

func (i *Injector) acquirePresentOptions() error {
	buf := i.area.buf[:i.area.used]

	for off := 0; off < len(buf); {
		code := buf[off]

		if code == i.kind.nopCode() {
			off++
			continue
		}
		if code == i.kind.endCode() {
			// new options replace the terminator and its padding
			clear(i.area.buf[off:i.area.used])
			i.area.used = off
			i.area.limit = off
			break
		}

		residual := len(buf) - off
		if residual < 2 {
			return fmt.Errorf(
				"%w: %s option %#02x without length, pkt %d",
				ErrInvalidOption, i.kind, code, i.pkt.ID,
			)
		}

		length := int(buf[off+1])
		if length == 0 || length > residual {
			return fmt.Errorf(
				"%w: %s option %#02x length %d residual %d, pkt %d",
				ErrInvalidOption, i.kind, code, length, residual, i.pkt.ID,
			)
		}

		if o := i.identify(code); o != nil {
			i.registerOccurrence(o, off, length)
		} else if i.tolerant {
			i.foreign = append(i.foreign, Occurrence{Offset: off, Length: length})
		} else {
			return fmt.Errorf(
				"%w: %s option %#02x length %d, pkt %d",
				ErrUnknownOption, i.kind, code, length, i.pkt.ID,
			)
		}

		off += length
	}

	return nil
}

func (i *Injector) identify(code byte) *Option {
	for _, o := range i.avail {
		if o.Code == code && !o.shadow {
			return o
		}
	}

	return nil
}

// evaluateInjectCoherence tells whether o may be placed now. counter is the
// number of placements of o already attempted in the current loop.
func (i *Injector) evaluateInjectCoherence(o *Option, counter int) bool {
	if !o.Enabled {
		return false
	}

	switch o.Usage {
	case NotCorrupt:
		return !i.corruptRequest
	case OneShot:
		return i.corruptRequest && !i.corruptDone
	case TwoShot:
		return i.corruptRequest && !i.corruptDone && counter <= 1
	default:
		return false
	}
}

func (i *Injector) registerOccurrence(o *Option, off, length int) {
	i.track[o.Index] = append(i.track[o.Index], Occurrence{Offset: off, Length: length})

	switch o.Usage {
	case OneShot:
		i.corruptDone = true
	case TwoShot:
		if len(i.track[o.Index]) > 1 {
			i.corruptDone = true
		}
	}
}

// place applies o once and records it. It reports false when o did not fit.
func (i *Injector) place(o *Option) bool {
	off := i.area.used
	n := o.Apply(&i.area)
	if n == 0 {
		return false
	}

	i.area.used += n
	i.registerOccurrence(o, off, n)

	i.logger.Trace().
		Str("opt", o.Name).
		Int("len", n).
		Int("avail", i.area.Avail()).
		Msg("option placed")

	return true
}

// Prepare declares the corruption goal and computes the room left for new
// options: the MTU headroom, bounded by the header capacity and rounded
// down to a multiple of 4. It fails without touching the session when no
// room is left.
func (i *Injector) Prepare(corrupt, stripPrevious bool) bool {
	used := i.area.used
	free := i.mtu - len(i.pkt.Buf)
	if stripPrevious {
		free += used
		used = 0
	}

	free = min(free, MaxOptionsLen-used)
	free -= free % 4
	if free <= 0 {
		return false
	}

	if stripPrevious {
		i.area.used = 0
		clear(i.track[:])
		i.foreign = nil
		i.corruptDone = false
	}

	i.area.limit = used + free
	i.corruptRequest = corrupt

	return true
}

func (i *Injector) injector(idx Index) {
	var requested *Option
	for _, o := range i.avail {
		if o.Index == idx {
			requested = o
			break
		}
	}

	if requested == nil {
		i.logger.Warn().
			Uint8("index", uint8(idx)).
			Str("kind", i.kind.String()).
			Msg("option not registered for this header")
		return
	}

	for counter := 0; i.evaluateInjectCoherence(requested, counter); counter++ {
		if !i.place(requested) {
			break
		}
	}
}

func (i *Injector) randomInjector() {
	shuffled := slices.Clone(i.avail)
	i.area.rand.Shuffle(len(shuffled), func(a, b int) {
		shuffled[a], shuffled[b] = shuffled[b], shuffled[a]
	})

	for _, o := range shuffled {
		for counter := 0; i.evaluateInjectCoherence(o, counter); counter++ {
			if !i.place(o) {
				break
			}

			if o.Usage == NotCorrupt {
				break
			}
		}
	}
}

func (i *Injector) IsGoalAchieved() bool {
	return i.corruptRequest == i.corruptDone
}

// RemoveOption cuts every tracked occurrence of idx out of the option area
// and commits the header. It reports false when idx has no occurrence.
func (i *Injector) RemoveOption(idx Index) bool {
	if !idx.Valid() || len(i.track[idx]) == 0 {
		return false
	}

	removed := slices.Clone(i.track[idx])
	i.track[idx] = nil

	slices.SortFunc(removed, func(a, b Occurrence) int { return b.Offset - a.Offset })
	for _, r := range removed {
		copy(i.area.buf[r.Offset:], i.area.buf[r.Offset+r.Length:i.area.used])
		i.area.used -= r.Length
		i.shiftOccurrences(r)
	}
	clear(i.area.buf[i.area.used:])
	i.area.limit = max(i.area.limit, i.area.used)

	i.recomputeCorruptDone()

	if err := i.Complete(); err != nil {
		i.logger.Error().Err(err).Msg("failed to commit header after removal")
	}

	return true
}

func (i *Injector) shiftOccurrences(cut Occurrence) {
	shift := func(occs []Occurrence) {
		for k := range occs {
			if occs[k].Offset > cut.Offset {
				occs[k].Offset -= cut.Length
			}
		}
	}

	for idx := range i.track {
		shift(i.track[idx])
	}
	shift(i.foreign)
}

func (i *Injector) recomputeCorruptDone() {
	i.corruptDone = false
	for _, o := range i.avail {
		switch n := len(i.track[o.Index]); {
		case o.Usage == OneShot && n > 0, o.Usage == TwoShot && n > 1:
			i.corruptDone = true
		}
	}
}

// Complete pads the option area to a multiple of 4 with the end of options
// code and writes it back into the packet header.
func (i *Injector) Complete() error {
	aligned := (i.area.used + 3) &^ 3
	for k := i.area.used; k < aligned; k++ {
		i.area.buf[k] = i.kind.endCode()
	}
	i.area.used = aligned
	i.area.limit = max(i.area.limit, aligned)

	switch i.kind {
	case KindIP:
		if err := i.pkt.ResizeIPHeader(packet.IPv4HeaderLen + aligned); err != nil {
			return err
		}
		copy(i.pkt.IPOptions(), i.area.buf[:aligned])
	case KindTCP:
		if err := i.pkt.ResizeTCPHeader(packet.TCPHeaderLen + aligned); err != nil {
			return err
		}
		copy(i.pkt.TCPOptions(), i.area.buf[:aligned])
	}

	return nil
}

func (i *Injector) finish() bool {
	achieved := i.IsGoalAchieved()

	i.logger.Trace().
		Str("kind", i.kind.String()).
		Bool("corrupt", i.corruptRequest).
		Bool("achieved", achieved).
		Int("optlen", i.area.used).
		Msg("injection evaluated")

	if !achieved {
		return false
	}

	if err := i.Complete(); err != nil {
		i.logger.Error().Err(err).Msg("failed to commit header options")
		return false
	}

	return true
}

// InjectSingleOpt places the option idx as many times as its usage allows.
// The packet is modified only when the goal is achieved.
func (i *Injector) InjectSingleOpt(corrupt, stripPrevious bool, idx Index) bool {
	if !i.Prepare(corrupt, stripPrevious) {
		return !corrupt && i.finish()
	}

	i.injector(idx)

	return i.finish()
}

// InjectRandomOpts tries every eligible option in random order.
// A corruption goal cannot be met without room, so a failed Prepare with
// corrupt set reports false.
func (i *Injector) InjectRandomOpts(corrupt, stripPrevious bool) bool {
	if !i.Prepare(corrupt, stripPrevious) {
		return !corrupt && i.finish()
	}

	i.randomInjector()

	return i.finish()
}

func (i *Injector) Occurrences(idx Index) []Occurrence {
	if !idx.Valid() {
		return nil
	}

	return slices.Clone(i.track[idx])
}

func (i *Injector) Foreign() []Occurrence {
	return slices.Clone(i.foreign)
}

func (i *Injector) FreeSpace() int {
	return i.area.Avail()
}

func (i *Injector) OptLen() int {
	return i.area.used
}
