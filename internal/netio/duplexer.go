package netio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/rs/zerolog"

	"github.com/holdensmagicalunicorn/sniffjoke/internal/engine"
	"github.com/holdensmagicalunicorn/sniffjoke/internal/logging"
	"github.com/holdensmagicalunicorn/sniffjoke/internal/packet"
)

const (
	defaultMTU     = 1500
	defaultBacklog = 256
	// headroom covers a link that hands over slightly more than the MTU.
	headroom = 64
)

type DuplexerAttrs struct {
	MTU     int
	Backlog int
}

type frame struct {
	source packet.Source
	data   []byte
}

// Duplexer reads datagrams from the tunnel and the link, runs them through
// the engine and writes what it releases to the opposite side.
type Duplexer struct {
	logger zerolog.Logger
	tun    io.ReadWriteCloser
	link   Link
	engine *engine.Engine
	mtu    int
	frames chan frame

	closeOnce sync.Once
}

func NewDuplexer(
	logger zerolog.Logger,
	tun io.ReadWriteCloser,
	link Link,
	e *engine.Engine,
	attrs DuplexerAttrs,
) *Duplexer {
	mtu := attrs.MTU
	if mtu <= 0 {
		mtu = defaultMTU
	}
	backlog := attrs.Backlog
	if backlog <= 0 {
		backlog = defaultBacklog
	}

	return &Duplexer{
		logger: logging.WithScope(logger, "NETIO"),
		tun:    tun,
		link:   link,
		engine: e,
		mtu:    mtu,
		frames: make(chan frame, backlog),
	}
}

// Run blocks until ctx is done or one of the devices fails. Both devices
// are closed on return.
func (d *Duplexer) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := d.readLoop(ctx, packet.SourceTunnel, d.tun.Read); err != nil {
			cancel(fmt.Errorf("tunnel: %w", err))
		}
	}()
	go func() {
		defer wg.Done()
		if err := d.readLoop(ctx, packet.SourceNetwork, d.link.ReadPacket); err != nil {
			cancel(fmt.Errorf("link: %w", err))
		}
	}()

	d.logger.Info().Int("mtu", d.mtu).Msg("relaying packets")

	d.mangleLoop(ctx)
	d.close()
	wg.Wait()

	dropped := d.engine.Close()
	d.logger.Info().Int("dropped", dropped).Msg("relay stopped")

	if err := context.Cause(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	return nil
}

func (d *Duplexer) readLoop(
	ctx context.Context,
	source packet.Source,
	read func([]byte) (int, error),
) error {
	buf := make([]byte, d.mtu+headroom)

	for {
		n, err := read(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if n == 0 {
			continue
		}

		f := frame{source: source, data: append([]byte(nil), buf[:n]...)}
		select {
		case d.frames <- f:
		case <-ctx.Done():
			return nil
		}
	}
}

func (d *Duplexer) mangleLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case f := <-d.frames:
			d.ingest(f)
		}

		// take everything already pending so one cycle sees the whole burst
	drain:
		for {
			select {
			case f := <-d.frames:
				d.ingest(f)
			default:
				break drain
			}
		}

		d.engine.Analyze(ctx)
		d.Flush()
	}
}

func (d *Duplexer) ingest(f frame) {
	err := d.engine.WritePacket(f.source, f.data)
	if err == nil {
		return
	}

	if errors.Is(err, packet.ErrMalformed) {
		d.logger.Trace().
			Str("source", f.source.String()).
			Int("len", len(f.data)).
			Msg("unparsable datagram forwarded untouched")
		d.forward(f.source, f.data)
		return
	}

	logging.ErrorUnwrapped(&d.logger, "failed to queue datagram", err)
}

// Flush writes every packet the engine released and returns how many were
// written.
func (d *Duplexer) Flush() int {
	n := 0
	for pkt := d.engine.ReadPacket(); pkt != nil; pkt = d.engine.ReadPacket() {
		if d.forward(pkt.Source, pkt.Buf) {
			n++
		}
	}

	return n
}

// forward sends network traffic to the tunnel and everything else, derived
// packets included, to the link.
func (d *Duplexer) forward(source packet.Source, data []byte) bool {
	var err error
	if source == packet.SourceNetwork {
		_, err = d.tun.Write(data)
	} else {
		err = d.link.WritePacket(data)
	}

	if err != nil {
		d.logger.Warn().
			Str("source", source.String()).
			Err(err).
			Msg("failed to write datagram")
		return false
	}

	return true
}

func (d *Duplexer) close() {
	d.closeOnce.Do(func() {
		if err := d.tun.Close(); err != nil {
			d.logger.Debug().Err(err).Msg("tunnel close")
		}
		if err := d.link.Close(); err != nil {
			d.logger.Debug().Err(err).Msg("link close")
		}
	})
}
