package main

import (
	"context"
	"fmt"
	"math/rand/v2"
	"net"
	"net/netip"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/holdensmagicalunicorn/sniffjoke/internal/cache"
	"github.com/holdensmagicalunicorn/sniffjoke/internal/config"
	"github.com/holdensmagicalunicorn/sniffjoke/internal/engine"
	"github.com/holdensmagicalunicorn/sniffjoke/internal/hack"
	_ "github.com/holdensmagicalunicorn/sniffjoke/internal/hacks"
	"github.com/holdensmagicalunicorn/sniffjoke/internal/hdropt"
	"github.com/holdensmagicalunicorn/sniffjoke/internal/hoptrack"
	"github.com/holdensmagicalunicorn/sniffjoke/internal/logging"
	"github.com/holdensmagicalunicorn/sniffjoke/internal/matcher"
	"github.com/holdensmagicalunicorn/sniffjoke/internal/metrics"
	"github.com/holdensmagicalunicorn/sniffjoke/internal/netio"
	"github.com/holdensmagicalunicorn/sniffjoke/internal/ptr"
	"github.com/holdensmagicalunicorn/sniffjoke/version"
)

func main() {
	ctx, stop := signal.NotifyContext(
		context.Background(),
		syscall.SIGINT,
		syscall.SIGTERM,
		syscall.SIGQUIT,
		syscall.SIGHUP,
	)
	defer stop()

	cmd := config.CreateCommand(runApp, version.Version, version.Commit, version.Build)
	if err := cmd.Run(ctx, os.Args); err != nil {
		log.Fatal().Err(err).Msg("sniffjoke stopped")
	}
}

func runApp(ctx context.Context, configDir string, cfg *config.Config) error {
	streams := logging.Setup(ctx, logging.Attrs{
		Level:       ptr.Deref(cfg.General.LogLevel),
		File:        ptr.Deref(cfg.General.LogFile),
		SessionFile: ptr.Deref(cfg.General.SessionLogFile),
		PacketFile:  ptr.Deref(cfg.General.PacketLogFile),
	})
	defer func() { _ = streams.Close() }()

	logger := logging.WithScope(streams.Main, "MAIN")

	if !ptr.Deref(cfg.General.Silent) {
		printBanner(configDir, cfg)
	}

	r := rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))

	catalog, err := createCatalog(logger, cfg, r)
	if err != nil {
		return err
	}

	hops := createHopTracker(ctx, streams.Session, cfg)

	pool, err := createPool(streams.Main, cfg, catalog, hops, r)
	if err != nil {
		return err
	}
	defer func() {
		if err := pool.Close(); err != nil {
			logging.WarnUnwrapped(&logger, "failed to release hacks", err)
		}
	}()

	recorder := metrics.NewRecorder()

	e, err := createEngine(streams, cfg, pool, catalog, hops, recorder, r)
	if err != nil {
		return err
	}

	if ptr.Deref(cfg.Metrics.Enable) {
		go func() {
			addr := cfg.Metrics.ListenAddr.String()
			if err := recorder.Serve(ctx, addr, logging.WithScope(streams.Main, "METRICS")); err != nil {
				logging.ErrorUnwrapped(&logger, "metrics endpoint failed", err)
			}
		}()
	}

	d, err := createDuplexer(ctx, logger, streams.Main, cfg, e)
	if err != nil {
		return err
	}

	logger.Info().
		Bool("active", ptr.Deref(cfg.Engine.Active)).
		Bool("testing", cfg.Testing()).
		Int("hacks", pool.Len()).
		Msg("sniffjoke started")

	return d.Run(ctx)
}

func createCatalog(logger zerolog.Logger, cfg *config.Config, r *rand.Rand) (*hdropt.Catalog, error) {
	catalog := hdropt.NewCatalog(r)

	if cfg.Testing() {
		logger.Warn().Msg("no option config given; header options stay unassigned and MALFORMED is unavailable")
		return catalog, nil
	}

	if err := catalog.LoadUsageFile(*cfg.Engine.OptionConfig); err != nil {
		return nil, err
	}

	return catalog, nil
}

func createHopTracker(ctx context.Context, logger zerolog.Logger, cfg *config.Config) *hoptrack.Tracker {
	c := cache.NewTTLCache[netip.Addr, uint8](ctx, cache.TTLCacheAttrs{
		NumOfShards:     16,
		CleanupInterval: ptr.Deref(cfg.Hops.CacheTTL),
		DefaultTTL:      ptr.Deref(cfg.Hops.CacheTTL),
	})

	return hoptrack.New(logger, c, hoptrack.Attrs{
		DefaultTTL: ptr.DerefOr(cfg.Hops.DefaultTTL, 64),
	})
}

func createPool(
	logger zerolog.Logger,
	cfg *config.Config,
	catalog *hdropt.Catalog,
	hops *hoptrack.Tracker,
	r *rand.Rand,
) (*hack.Pool, error) {
	factory := hack.FactoryOptions{
		MTU:      int(ptr.Deref(cfg.Engine.MTU)),
		Rand:     r,
		Logger:   logging.WithScope(logger, "HACK"),
		Catalog:  catalog,
		Tolerant: !ptr.DerefOr(cfg.Engine.StrictOptions, true),
	}
	if hops != nil {
		factory.Hops = hops
	}

	return hack.NewPool(hack.PoolConfig{
		Enabler:    ptr.Deref(cfg.Engine.Enabler),
		Location:   ptr.Deref(cfg.Engine.Location),
		OnlyPlugin: ptr.Deref(cfg.Engine.OnlyPlugin),
		Factory:    factory,
	}, logging.WithScope(logger, "POOL"))
}

func createEngine(
	streams *logging.Streams,
	cfg *config.Config,
	pool *hack.Pool,
	catalog *hdropt.Catalog,
	hops *hoptrack.Tracker,
	recorder *metrics.Recorder,
	r *rand.Rand,
) (*engine.Engine, error) {
	bypass, err := matcher.Parse(cfg.Engine.Bypass)
	if err != nil {
		return nil, err
	}

	return engine.New(streams.Main, pool, catalog, hops, recorder, engine.Attrs{
		Levels:       int(ptr.Deref(cfg.Engine.QueueLevels)),
		MTU:          int(ptr.Deref(cfg.Engine.MTU)),
		Active:       ptr.Deref(cfg.Engine.Active),
		Tolerant:     !ptr.DerefOr(cfg.Engine.StrictOptions, true),
		Bypass:       bypass,
		PacketLogger: &streams.Packet,
		Rand:         r,
	})
}

func createDuplexer(
	ctx context.Context,
	logger zerolog.Logger,
	base zerolog.Logger,
	cfg *config.Config,
	e *engine.Engine,
) (*netio.Duplexer, error) {
	hint, err := routeHint(cfg)
	if err != nil {
		return nil, err
	}

	route, err := netio.Detect(ctx, hint)
	if err != nil {
		return nil, err
	}

	logger.Info().
		Str("interface", route.Interface.Name).
		Str("local", route.LocalIP.String()).
		Str("gateway", route.GatewayMAC.String()).
		Msg("egress route")

	var link netio.Link
	link, err = netio.NewLink(route.Interface, route.GatewayMAC, route.LocalIP)
	if err != nil {
		return nil, err
	}

	tun, err := netio.OpenTUN(ptr.Deref(cfg.Network.TunName))
	if err != nil {
		_ = link.Close()
		return nil, err
	}

	return netio.NewDuplexer(base, tun, link, e, netio.DuplexerAttrs{
		MTU: int(ptr.Deref(cfg.Network.TunMTU)),
	}), nil
}

func routeHint(cfg *config.Config) (netio.Route, error) {
	var hint netio.Route

	if name := ptr.Deref(cfg.Network.Interface); name != "" {
		iface, err := net.InterfaceByName(name)
		if err != nil {
			return hint, fmt.Errorf("interface %q: %w", name, err)
		}
		hint.Interface = iface
	}

	hint.LocalIP = ptr.Deref(cfg.Network.LocalIP)
	hint.Gateway = ptr.Deref(cfg.Network.GatewayIP)
	hint.GatewayMAC = cfg.Network.GatewayMAC

	return hint, nil
}
