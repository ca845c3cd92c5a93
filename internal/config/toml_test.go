package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocateConfig(t *testing.T) {
	tcs := []struct {
		name   string
		setup  func(t *testing.T) (string, []string)
		assert func(t *testing.T, path string, err error)
	}{
		{
			name: "custom dir exists",
			setup: func(t *testing.T) (string, []string) {
				path := filepath.Join(t.TempDir(), "custom.toml")
				require.NoError(t, os.WriteFile(path, []byte{}, 0o644))
				return path, nil
			},
			assert: func(t *testing.T, path string, err error) {
				assert.NoError(t, err)
				assert.NotEmpty(t, path)
			},
		},
		{
			name: "custom dir not found",
			setup: func(t *testing.T) (string, []string) {
				return "nonexistent.toml", nil
			},
			assert: func(t *testing.T, path string, err error) {
				assert.Error(t, err)
				assert.Empty(t, path)
			},
		},
		{
			name: "found in lookup dirs",
			setup: func(t *testing.T) (string, []string) {
				path := filepath.Join(t.TempDir(), "lookup.toml")
				require.NoError(t, os.WriteFile(path, []byte{}, 0o644))
				return "", []string{"", "nonexistent", path}
			},
			assert: func(t *testing.T, path string, err error) {
				assert.NoError(t, err)
				assert.NotEmpty(t, path)
			},
		},
		{
			name: "not found in lookup dirs",
			setup: func(t *testing.T) (string, []string) {
				return "", []string{"nonexistent"}
			},
			assert: func(t *testing.T, path string, err error) {
				assert.NoError(t, err)
				assert.Empty(t, path)
			},
		},
	}

	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			customDir, lookupDirs := tc.setup(t)
			path, err := locateConfig(customDir, lookupDirs)
			tc.assert(t, path, err)
		})
	}
}

func TestCandidatePaths(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "")
	t.Setenv("HOME", "/home/joker")
	assert.Equal(t, []string{
		"/etc/sniffjoke/sniffjoke.toml",
		"/home/joker/.config/sniffjoke/sniffjoke.toml",
	}, candidatePaths())

	t.Setenv("XDG_CONFIG_HOME", "/xdg")
	assert.Equal(t, "/xdg/sniffjoke/sniffjoke.toml", candidatePaths()[1])
}

func TestLookup(t *testing.T) {
	tcs := []struct {
		name      string
		data      map[string]any
		key       string
		parser    func(any) (uint8, error)
		errPtrVal error
		assert    func(t *testing.T, val *uint8, err error)
	}{
		{
			name:   "valid value",
			data:   map[string]any{"key": int64(10)},
			key:    "key",
			parser: parseIntFn[uint8](checkUint8),
			assert: func(t *testing.T, val *uint8, err error) {
				assert.NoError(t, err)
				assert.Equal(t, uint8(10), *val)
			},
		},
		{
			name:   "missing key",
			data:   map[string]any{},
			key:    "key",
			parser: parseIntFn[uint8](checkUint8),
			assert: func(t *testing.T, val *uint8, err error) {
				assert.NoError(t, err)
				assert.Nil(t, val)
			},
		},
		{
			name:   "invalid type",
			data:   map[string]any{"key": "string"},
			key:    "key",
			parser: parseIntFn[uint8](checkUint8),
			assert: func(t *testing.T, val *uint8, err error) {
				assert.ErrorContains(t, err, `field "key"`)
				assert.Nil(t, val)
			},
		},
		{
			name:      "existing error",
			data:      map[string]any{"key": int64(10)},
			key:       "key",
			parser:    parseIntFn[uint8](checkUint8),
			errPtrVal: errors.New("existing error"),
			assert: func(t *testing.T, val *uint8, err error) {
				assert.EqualError(t, err, "existing error")
				assert.Nil(t, val)
			},
		},
	}

	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.errPtrVal
			val := lookup(tc.data, tc.key, tc.parser, &err)
			tc.assert(t, val, err)
		})
	}
}

func TestLoadConfigFile(t *testing.T) {
	t.Run("full valid config", func(t *testing.T) {
		tomlContent := `
			[general]
				log-level = "trace"
				silent = true
				packet-log-file = "/tmp/packets.log"

			[engine]
				queue-levels = 6
				mtu = 1492
				option-config = "/etc/sniffjoke/ipoptions.conf"
				enabler = "/etc/sniffjoke/plugins-enabled.conf"
				only-plugin = "fake_data,MALFORMED"
				active = false
				bypass = [
					"10.0.0.0/8",
					"+10.1.1.1:443",
				]

			[network]
				tun-name = "joke0"
				interface = "eth1"
				gateway-ip = "10.1.1.1"
				local-ip = "10.1.1.5"

			[metrics]
				enable = true
				listen-addr = "0.0.0.0:9393"

			[hops]
				default-ttl = 48
				cache-ttl = 120
		`
		configPath := filepath.Join(t.TempDir(), "sniffjoke.toml")
		require.NoError(t, os.WriteFile(configPath, []byte(tomlContent), 0o644))

		cfg, err := loadConfigFile(configPath)
		require.NoError(t, err)
		require.NotNil(t, cfg)

		assert.Equal(t, zerolog.TraceLevel, *cfg.General.LogLevel)
		assert.True(t, *cfg.General.Silent)
		assert.Equal(t, "/tmp/packets.log", *cfg.General.PacketLogFile)
		assert.Nil(t, cfg.General.LogFile)

		assert.Equal(t, uint8(6), *cfg.Engine.QueueLevels)
		assert.Equal(t, uint16(1492), *cfg.Engine.MTU)
		assert.False(t, cfg.Testing())
		assert.Equal(t, "fake_data,MALFORMED", *cfg.Engine.OnlyPlugin)
		assert.False(t, *cfg.Engine.Active)
		assert.Equal(t, []string{"10.0.0.0/8", "+10.1.1.1:443"}, cfg.Engine.Bypass)

		assert.Equal(t, "joke0", *cfg.Network.TunName)
		assert.Equal(t, "eth1", *cfg.Network.Interface)
		assert.Equal(t, "10.1.1.1", cfg.Network.GatewayIP.String())
		assert.Equal(t, "10.1.1.5", cfg.Network.LocalIP.String())

		assert.True(t, *cfg.Metrics.Enable)
		assert.Equal(t, "0.0.0.0:9393", cfg.Metrics.ListenAddr.String())

		assert.Equal(t, uint8(48), *cfg.Hops.DefaultTTL)
		assert.Equal(t, 2*time.Minute, *cfg.Hops.CacheTTL)
	})

	t.Run("invalid value", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "sniffjoke.toml")
		require.NoError(t, os.WriteFile(configPath, []byte("[engine]\nqueue-levels = 99\n"), 0o644))

		_, err := loadConfigFile(configPath)
		assert.ErrorContains(t, err, "queue-levels")
	})
}
