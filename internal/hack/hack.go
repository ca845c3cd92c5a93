// Package hack defines the packet mangling strategy contract and the pool
// that loads strategies from a deployment manifest.
package hack

import (
	"math/rand/v2"

	"github.com/rs/zerolog"

	"github.com/holdensmagicalunicorn/sniffjoke/internal/hdropt"
	"github.com/holdensmagicalunicorn/sniffjoke/internal/packet"
	"github.com/holdensmagicalunicorn/sniffjoke/internal/scramble"
)

type Descriptor struct {
	Name      string
	Frequency Frequency
	// Supported is what the strategy can produce; Enabled is what this
	// deployment lets it produce.
	Supported  scramble.Mask
	Enabled    scramble.Mask
	RemoveOrig bool
}

// Result carries the packets derived from one source packet. RemoveOrig asks
// the caller to discard the source packet.
type Result struct {
	Packets    []*packet.Packet
	RemoveOrig bool
}

// Hack is one packet mangling strategy. Condition must not modify pkt.
// Create must not keep references to pkt or to the returned packets.
type Hack interface {
	Descriptor() Descriptor
	Condition(pkt *packet.Packet, avail scramble.Mask) bool
	Create(pkt *packet.Packet, avail scramble.Mask) Result
	// Init runs once with the scrambles the deployment permits. A false
	// return excludes the strategy.
	Init(permitted scramble.Mask) bool
}

type FactoryOptions struct {
	ForceAlways bool
	MTU         int
	Rand        *rand.Rand
	Logger      zerolog.Logger
	Catalog     *hdropt.Catalog
	Hops        hdropt.HopSource
	Tolerant    bool
}

type Factory func(opts FactoryOptions) Hack

// Base holds the state every strategy shares. Strategies embed it and
// override Init when they restrict the permitted scrambles.
type Base struct {
	Desc   Descriptor
	Rand   *rand.Rand
	Logger zerolog.Logger
}

func NewBase(opts FactoryOptions, desc Descriptor) Base {
	if opts.ForceAlways {
		desc.Frequency = Always
	}
	r := opts.Rand
	if r == nil {
		r = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}

	return Base{
		Desc:   desc,
		Rand:   r,
		Logger: opts.Logger.With().Str("hack", desc.Name).Logger(),
	}
}

func (b *Base) Descriptor() Descriptor {
	return b.Desc
}

// Init keeps the intersection of permitted and supported scrambles and
// fails when it is empty.
func (b *Base) Init(permitted scramble.Mask) bool {
	b.Desc.Enabled = permitted & b.Desc.Supported

	return b.Desc.Enabled != scramble.None
}

// Usable narrows avail to what the strategy may produce.
func (b *Base) Usable(avail scramble.Mask) scramble.Mask {
	return avail & b.Desc.Enabled
}
