package config

import (
	"context"
	"net/netip"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runCommand(t *testing.T, args []string) *Config {
	t.Helper()

	var capturedCfg *Config
	runFunc := func(ctx context.Context, configDir string, cfg *Config) error {
		capturedCfg = cfg
		return nil
	}

	cmd := CreateCommand(runFunc, "v0.0.0", "commit", "build")
	err := cmd.Run(context.Background(), args)
	require.NoError(t, err)
	require.NotNil(t, capturedCfg, "Run function was not called")

	return capturedCfg
}

func TestCreateCommand_Flags(t *testing.T) {
	tcs := []struct {
		name   string
		args   []string
		assert func(t *testing.T, cfg *Config)
	}{
		{
			name: "default values (no flags)",
			args: []string{"sniffjoke", "--clean"},
			assert: func(t *testing.T, cfg *Config) {
				assert.Equal(t, zerolog.InfoLevel, *cfg.General.LogLevel)
				assert.False(t, *cfg.General.Silent)
				assert.Empty(t, *cfg.General.LogFile)
				assert.Equal(t, uint8(5), *cfg.Engine.QueueLevels)
				assert.Equal(t, uint16(1500), *cfg.Engine.MTU)
				assert.Equal(t, "/etc/sniffjoke/plugins-enabled.conf", *cfg.Engine.Enabler)
				assert.True(t, *cfg.Engine.StrictOptions)
				assert.True(t, *cfg.Engine.Active)
				assert.Empty(t, cfg.Engine.Bypass)
				assert.True(t, cfg.Testing())
				assert.Equal(t, "sniffjoke0", *cfg.Network.TunName)
				assert.Empty(t, *cfg.Network.Interface)
				assert.Nil(t, cfg.Network.GatewayMAC)
				assert.Nil(t, cfg.Network.LocalIP)
				assert.False(t, *cfg.Metrics.Enable)
				assert.Equal(t, "127.0.0.1:9393", cfg.Metrics.ListenAddr.String())
				assert.Equal(t, uint8(64), *cfg.Hops.DefaultTTL)
				assert.Equal(t, 10*time.Minute, *cfg.Hops.CacheTTL)
			},
		},
		{
			name: "all flags set with custom values",
			args: []string{
				"sniffjoke",
				"--clean",
				"--log-level", "debug",
				"--silent",
				"--log-file", "/var/log/sniffjoke.log",
				"--session-log-file", "/var/log/sniffjoke-session.log",
				"--packet-log-file", "/var/log/sniffjoke-packet.log",
				"--queue-levels", "8",
				"--mtu", "1400",
				"--option-config", "/etc/sniffjoke/ipoptions.conf",
				"--enabler", "/tmp/enabler",
				"--location", "italy",
				"--only-plugin", "shift_ack,INNOCENT",
				"--strict-options=false",
				"--active=false",
				"--bypass", "10.0.0.0/8",
				"--bypass", "+10.0.0.1:22",
				"--tun-name", "joke1",
				"--interface", "eth0",
				"--tun-mtu", "1300",
				"--gateway-mac", "52:54:00:12:34:56",
				"--gateway-ip", "10.0.0.1",
				"--local-ip", "10.0.0.2",
				"--metrics",
				"--metrics-addr", "0.0.0.0:9100",
				"--default-ttl", "32",
				"--hop-cache-ttl", "30",
			},
			assert: func(t *testing.T, cfg *Config) {
				// General
				assert.Equal(t, zerolog.DebugLevel, *cfg.General.LogLevel)
				assert.True(t, *cfg.General.Silent)
				assert.Equal(t, "/var/log/sniffjoke.log", *cfg.General.LogFile)
				assert.Equal(t, "/var/log/sniffjoke-session.log", *cfg.General.SessionLogFile)
				assert.Equal(t, "/var/log/sniffjoke-packet.log", *cfg.General.PacketLogFile)

				// Engine
				assert.Equal(t, uint8(8), *cfg.Engine.QueueLevels)
				assert.Equal(t, uint16(1400), *cfg.Engine.MTU)
				assert.False(t, cfg.Testing())
				assert.Equal(t, "/tmp/enabler.italy", cfg.ManifestPath())
				assert.Equal(t, "shift_ack,INNOCENT", *cfg.Engine.OnlyPlugin)
				assert.False(t, *cfg.Engine.StrictOptions)
				assert.False(t, *cfg.Engine.Active)
				assert.Equal(t, []string{"10.0.0.0/8", "+10.0.0.1:22"}, cfg.Engine.Bypass)

				// Network
				assert.Equal(t, "joke1", *cfg.Network.TunName)
				assert.Equal(t, "eth0", *cfg.Network.Interface)
				assert.Equal(t, uint16(1300), *cfg.Network.TunMTU)
				assert.Equal(t, "52:54:00:12:34:56", cfg.Network.GatewayMAC.String())
				assert.Equal(t, netip.MustParseAddr("10.0.0.1"), *cfg.Network.GatewayIP)
				assert.Equal(t, netip.MustParseAddr("10.0.0.2"), *cfg.Network.LocalIP)

				// Metrics
				assert.True(t, *cfg.Metrics.Enable)
				assert.Equal(t, "0.0.0.0:9100", cfg.Metrics.ListenAddr.String())

				// Hops
				assert.Equal(t, uint8(32), *cfg.Hops.DefaultTTL)
				assert.Equal(t, 30*time.Second, *cfg.Hops.CacheTTL)
			},
		},
	}

	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			tc.assert(t, runCommand(t, tc.args))
		})
	}
}

func TestCreateCommand_InvalidFlags(t *testing.T) {
	tcs := []struct {
		name string
		args []string
	}{
		{"queue levels too low", []string{"sniffjoke", "--clean", "--queue-levels", "1"}},
		{"queue levels too high", []string{"sniffjoke", "--clean", "--queue-levels", "17"}},
		{"mtu too small", []string{"sniffjoke", "--clean", "--mtu", "100"}},
		{"bad only-plugin", []string{"sniffjoke", "--clean", "--only-plugin", "shift_ack INNOCENT"}},
		{"bad gateway mac", []string{"sniffjoke", "--clean", "--gateway-mac", "zz"}},
		{"ipv6 local ip", []string{"sniffjoke", "--clean", "--local-ip", "::1"}},
		{"bad bypass", []string{"sniffjoke", "--clean", "--bypass", "10.0.0.0/8:90-80"}},
		{"zero default ttl", []string{"sniffjoke", "--clean", "--default-ttl", "0"}},
	}

	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			called := false
			cmd := CreateCommand(func(context.Context, string, *Config) error {
				called = true
				return nil
			}, "v0.0.0", "commit", "build")

			err := cmd.Run(context.Background(), tc.args)
			assert.Error(t, err)
			assert.False(t, called)
		})
	}
}

func TestCreateCommand_OverrideTOML(t *testing.T) {
	tomlContent := `
[general]
    log-level = "debug"
    silent = true

[engine]
    queue-levels = 7
    mtu = 1450
    enabler = "/srv/sniffjoke/enabler"
    location = "france"
    strict-options = false

[network]
    tun-name = "joke9"
    gateway-mac = "aa:bb:cc:dd:ee:ff"

[metrics]
    enable = true
    listen-addr = "127.0.0.1:9000"

[hops]
    default-ttl = 100
    cache-ttl = 60
`
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "sniffjoke.toml")
	require.NoError(t, os.WriteFile(configPath, []byte(tomlContent), 0o644))

	cfg := runCommand(t, []string{
		"sniffjoke",
		"--config", configPath,
		"--log-level", "error",
		"--silent=false",
		"--queue-levels", "3",
		"--strict-options=true",
		"--metrics=false",
		"--default-ttl", "20",
	})

	// Overrides
	assert.Equal(t, zerolog.ErrorLevel, *cfg.General.LogLevel)
	assert.False(t, *cfg.General.Silent)
	assert.Equal(t, uint8(3), *cfg.Engine.QueueLevels)
	assert.True(t, *cfg.Engine.StrictOptions)
	assert.False(t, *cfg.Metrics.Enable)
	assert.Equal(t, uint8(20), *cfg.Hops.DefaultTTL)

	// TOML-only fields are preserved
	assert.Equal(t, uint16(1450), *cfg.Engine.MTU)
	assert.Equal(t, "/srv/sniffjoke/enabler.france", cfg.ManifestPath())
	assert.Equal(t, "joke9", *cfg.Network.TunName)
	assert.Equal(t, "aa:bb:cc:dd:ee:ff", cfg.Network.GatewayMAC.String())
	assert.Equal(t, "127.0.0.1:9000", cfg.Metrics.ListenAddr.String())
	assert.Equal(t, time.Minute, *cfg.Hops.CacheTTL)

	// Defaults fill the rest
	assert.True(t, *cfg.Engine.Active)
	assert.Equal(t, uint16(1500), *cfg.Network.TunMTU)
}

func TestCreateCommand_MissingConfig(t *testing.T) {
	cmd := CreateCommand(func(context.Context, string, *Config) error {
		return nil
	}, "v0.0.0", "commit", "build")

	err := cmd.Run(context.Background(), []string{"sniffjoke", "--config", "/nonexistent/sniffjoke.toml"})
	assert.ErrorContains(t, err, "no such file")
}
