package main

import (
	"context"
	"fmt"
	"math/rand/v2"
	"net"
	"net/netip"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holdensmagicalunicorn/sniffjoke/internal/config"
	"github.com/holdensmagicalunicorn/sniffjoke/internal/hdropt"
	"github.com/holdensmagicalunicorn/sniffjoke/internal/logging"
	"github.com/holdensmagicalunicorn/sniffjoke/internal/matcher"
	"github.com/holdensmagicalunicorn/sniffjoke/internal/metrics"
	"github.com/holdensmagicalunicorn/sniffjoke/internal/ptr"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func usageFile(t *testing.T) string {
	var sb strings.Builder
	for i := hdropt.IPNoop; i < hdropt.SupportedOptions; i++ {
		fmt.Fprintf(&sb, "%d,%d\n", i, hdropt.OneShot)
	}
	return writeFile(t, "ipoptions.conf", sb.String())
}

func TestCreateCatalog(t *testing.T) {
	r := rand.New(rand.NewPCG(1, 2))

	cfg := config.Default()
	catalog, err := createCatalog(zerolog.Nop(), cfg, r)
	require.NoError(t, err)
	assert.False(t, catalog.Loaded())

	cfg.Engine.OptionConfig = ptr.Of(usageFile(t))
	catalog, err = createCatalog(zerolog.Nop(), cfg, r)
	require.NoError(t, err)
	assert.True(t, catalog.Loaded())

	cfg.Engine.OptionConfig = ptr.Of("/nonexistent/ipoptions.conf")
	_, err = createCatalog(zerolog.Nop(), cfg, r)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestCreateEngine(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := rand.New(rand.NewPCG(3, 4))
	cfg := config.Default()
	cfg.Engine.Enabler = ptr.Of(writeFile(t, "plugins-enabled.conf",
		"# test deployment\nfake_close_fin,GUILTY,PRESCRIPTION\nshift_ack,INNOCENT\nfragmentation,INNOCENT\n"))

	streams := logging.Setup(ctx, logging.Attrs{Level: zerolog.Disabled, Silent: true})
	catalog, err := createCatalog(zerolog.Nop(), cfg, r)
	require.NoError(t, err)

	hops := createHopTracker(ctx, zerolog.Nop(), cfg)
	_, known := hops.Hops(netip.MustParseAddr("192.0.2.1"))
	assert.False(t, known)

	pool, err := createPool(zerolog.Nop(), cfg, catalog, hops, r)
	require.NoError(t, err)
	assert.Equal(t, 3, pool.Len())

	e, err := createEngine(streams, cfg, pool, catalog, hops, metrics.NewRecorder(), r)
	require.NoError(t, err)
	assert.Equal(t, 0, e.Queued())

	cfg.Engine.Bypass = []string{"10.0.0.0/33"}
	_, err = createEngine(streams, cfg, pool, catalog, hops, nil, r)
	assert.ErrorIs(t, err, matcher.ErrInvalidRule)

	cfg.Engine.Bypass = nil
	cfg.Engine.QueueLevels = ptr.Of(uint8(1))
	_, err = createEngine(streams, cfg, pool, catalog, hops, nil, r)
	assert.Error(t, err)
}

func TestCreatePool_OnlyPlugin(t *testing.T) {
	r := rand.New(rand.NewPCG(5, 6))
	cfg := config.Default()
	cfg.Engine.Enabler = ptr.Of("/nonexistent")
	cfg.Engine.OnlyPlugin = ptr.Of("fake_data,GUILTY")

	pool, err := createPool(zerolog.Nop(), cfg, hdropt.NewCatalog(r), nil, r)
	require.NoError(t, err)
	require.Equal(t, 1, pool.Len())
	assert.Equal(t, "Fake data", pool.Hacks()[0].Descriptor().Name)
}

func TestRouteHint(t *testing.T) {
	cfg := config.Default()
	cfg.Network.LocalIP = ptr.Of(netip.MustParseAddr("10.0.0.2"))
	cfg.Network.GatewayMAC = net.HardwareAddr{1, 2, 3, 4, 5, 6}

	hint, err := routeHint(cfg)
	require.NoError(t, err)
	assert.Nil(t, hint.Interface)
	assert.Equal(t, netip.MustParseAddr("10.0.0.2"), hint.LocalIP)
	assert.False(t, hint.Gateway.IsValid())
	assert.Equal(t, net.HardwareAddr{1, 2, 3, 4, 5, 6}, hint.GatewayMAC)

	cfg.Network.Interface = ptr.Of("nosuchif9")
	_, err = routeHint(cfg)
	assert.ErrorContains(t, err, "nosuchif9")
}

func TestBannerItems(t *testing.T) {
	cfg := config.Default()
	items := bannerItems("", cfg)

	var texts []string
	for _, it := range items {
		texts = append(texts, it.Text)
	}
	joined := strings.Join(texts, "\n")

	assert.Contains(t, joined, "CONFIG    : (none)")
	assert.Contains(t, joined, "OPTIONS   : (testing mode)")
	assert.Contains(t, joined, "INTERFACE : (detect)")
	assert.Contains(t, joined, "HACKS     : /etc/sniffjoke/plugins-enabled.conf")
	assert.Contains(t, joined, "BYPASS    : 0 rules")

	cfg.Engine.OnlyPlugin = ptr.Of("shift_ack,INNOCENT")
	items = bannerItems("~/.config/sniffjoke/sniffjoke.toml", cfg)
	assert.Equal(t, "HACKS     : only shift_ack,INNOCENT", items[2].Text)
}
