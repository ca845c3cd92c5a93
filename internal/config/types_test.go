package config

import (
	"net"
	"net/netip"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/holdensmagicalunicorn/sniffjoke/internal/ptr"
)

func TestGeneralOptions_UnmarshalTOML(t *testing.T) {
	tcs := []struct {
		name    string
		input   any
		wantErr bool
		assert  func(t *testing.T, o GeneralOptions)
	}{
		{
			name: "valid general options",
			input: map[string]any{
				"log-level":        "debug",
				"silent":           true,
				"log-file":         "/var/log/sniffjoke.log",
				"packet-log-file":  "/var/log/packets.log",
				"session-log-file": "",
			},
			assert: func(t *testing.T, o GeneralOptions) {
				assert.Equal(t, zerolog.DebugLevel, *o.LogLevel)
				assert.True(t, *o.Silent)
				assert.Equal(t, "/var/log/sniffjoke.log", *o.LogFile)
				assert.Equal(t, "/var/log/packets.log", *o.PacketLogFile)
				assert.Equal(t, "", *o.SessionLogFile)
			},
		},
		{
			name:    "invalid log level",
			input:   map[string]any{"log-level": "loud"},
			wantErr: true,
		},
		{
			name:    "invalid type",
			input:   "invalid",
			wantErr: true,
		},
	}

	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			var o GeneralOptions
			err := o.UnmarshalTOML(tc.input)
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
				if tc.assert != nil {
					tc.assert(t, o)
				}
			}
		})
	}
}

func TestGeneralOptions_Merge(t *testing.T) {
	origin := &GeneralOptions{
		LogLevel: ptr.Of(zerolog.InfoLevel),
		Silent:   ptr.Of(false),
		LogFile:  ptr.Of("/a"),
	}
	overrides := &GeneralOptions{
		LogLevel: ptr.Of(zerolog.TraceLevel),
	}

	merged := origin.Merge(overrides)
	assert.Equal(t, zerolog.TraceLevel, *merged.LogLevel)
	assert.False(t, *merged.Silent)
	assert.Equal(t, "/a", *merged.LogFile)
	assert.NotSame(t, origin.LogFile, merged.LogFile)

	assert.Nil(t, (*GeneralOptions)(nil).Clone())
}

func TestEngineOptions_UnmarshalTOML(t *testing.T) {
	tcs := []struct {
		name    string
		input   any
		wantErr bool
		assert  func(t *testing.T, o EngineOptions)
	}{
		{
			name: "valid engine options",
			input: map[string]any{
				"queue-levels":   int64(16),
				"mtu":            int64(9000),
				"option-config":  "/etc/sniffjoke/ipoptions.conf",
				"enabler":        "/etc/sniffjoke/plugins-enabled.conf",
				"location":       "generic",
				"only-plugin":    "fake_close_fin,GUILTY,PRESCRIPTION",
				"strict-options": false,
				"active":         true,
				"bypass":         []any{"192.168.0.0/16", "+192.168.1.1:80-81"},
			},
			assert: func(t *testing.T, o EngineOptions) {
				assert.Equal(t, uint8(16), *o.QueueLevels)
				assert.Equal(t, uint16(9000), *o.MTU)
				assert.Equal(t, "/etc/sniffjoke/ipoptions.conf", *o.OptionConfig)
				assert.Equal(t, "generic", *o.Location)
				assert.Equal(t, "fake_close_fin,GUILTY,PRESCRIPTION", *o.OnlyPlugin)
				assert.False(t, *o.StrictOptions)
				assert.True(t, *o.Active)
				assert.Equal(t, []string{"192.168.0.0/16", "+192.168.1.1:80-81"}, o.Bypass)
			},
		},
		{
			name:    "queue levels out of range",
			input:   map[string]any{"queue-levels": int64(1)},
			wantErr: true,
		},
		{
			name:    "mtu wrong type",
			input:   map[string]any{"mtu": "1500"},
			wantErr: true,
		},
		{
			name:    "location with path separator",
			input:   map[string]any{"location": "../etc"},
			wantErr: true,
		},
		{
			name:    "only-plugin without scramble",
			input:   map[string]any{"only-plugin": "shift_ack,NOTHING"},
			wantErr: true,
		},
		{
			name:    "bypass not an array",
			input:   map[string]any{"bypass": "10.0.0.0/8"},
			wantErr: true,
		},
		{
			name:    "bypass with ipv6 entry",
			input:   map[string]any{"bypass": []any{"10.0.0.0/8", "::1"}},
			wantErr: true,
		},
		{
			name:    "bypass with non string entry",
			input:   map[string]any{"bypass": []any{int64(10)}},
			wantErr: true,
		},
		{
			name:    "empty enabler",
			input:   map[string]any{"enabler": " "},
			wantErr: true,
		},
	}

	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			var o EngineOptions
			err := o.UnmarshalTOML(tc.input)
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
				if tc.assert != nil {
					tc.assert(t, o)
				}
			}
		})
	}
}

func TestEngineOptions_Merge(t *testing.T) {
	origin := &EngineOptions{
		QueueLevels: ptr.Of(uint8(5)),
		Active:      ptr.Of(true),
	}
	origin.Bypass = []string{"10.0.0.0/8"}
	overrides := &EngineOptions{
		Active: ptr.Of(false),
	}

	merged := origin.Merge(overrides)
	assert.Equal(t, uint8(5), *merged.QueueLevels)
	assert.False(t, *merged.Active)
	assert.Nil(t, merged.MTU)
	assert.Equal(t, []string{"10.0.0.0/8"}, merged.Bypass)

	merged.Bypass[0] = "1.1.1.1"
	assert.Equal(t, "10.0.0.0/8", origin.Bypass[0])

	merged = origin.Merge(&EngineOptions{Bypass: []string{}})
	assert.Empty(t, merged.Bypass)

	clone := merged.Clone()
	*clone.QueueLevels = 9
	assert.Equal(t, uint8(5), *merged.QueueLevels)
}

func TestNetworkOptions_UnmarshalTOML(t *testing.T) {
	tcs := []struct {
		name    string
		input   any
		wantErr bool
		assert  func(t *testing.T, o NetworkOptions)
	}{
		{
			name: "valid network options",
			input: map[string]any{
				"tun-name":    "sniffjoke0",
				"interface":   "wlan0",
				"gateway-mac": "00:11:22:33:44:55",
				"gateway-ip":  "192.168.1.1",
				"local-ip":    "192.168.1.20",
				"tun-mtu":     int64(1400),
			},
			assert: func(t *testing.T, o NetworkOptions) {
				assert.Equal(t, "sniffjoke0", *o.TunName)
				assert.Equal(t, "wlan0", *o.Interface)
				assert.Equal(t, net.HardwareAddr{0, 0x11, 0x22, 0x33, 0x44, 0x55}, o.GatewayMAC)
				assert.Equal(t, netip.MustParseAddr("192.168.1.1"), *o.GatewayIP)
				assert.Equal(t, netip.MustParseAddr("192.168.1.20"), *o.LocalIP)
				assert.Equal(t, uint16(1400), *o.TunMTU)
			},
		},
		{
			name:  "empty interface means detect",
			input: map[string]any{"interface": ""},
			assert: func(t *testing.T, o NetworkOptions) {
				assert.Equal(t, "", *o.Interface)
			},
		},
		{
			name:    "long tun name",
			input:   map[string]any{"tun-name": "a-very-long-interface-name"},
			wantErr: true,
		},
		{
			name:    "eui-64 gateway mac",
			input:   map[string]any{"gateway-mac": "00:11:22:33:44:55:66:77"},
			wantErr: true,
		},
		{
			name:    "ipv6 gateway",
			input:   map[string]any{"gateway-ip": "fe80::1"},
			wantErr: true,
		},
	}

	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			var o NetworkOptions
			err := o.UnmarshalTOML(tc.input)
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
				if tc.assert != nil {
					tc.assert(t, o)
				}
			}
		})
	}
}

func TestNetworkOptions_Clone(t *testing.T) {
	o := &NetworkOptions{
		GatewayMAC: net.HardwareAddr{1, 2, 3, 4, 5, 6},
		LocalIP:    ptr.Of(netip.MustParseAddr("10.0.0.2")),
	}

	c := o.Clone()
	c.GatewayMAC[0] = 0xff
	assert.Equal(t, byte(1), o.GatewayMAC[0])
	assert.NotSame(t, o.LocalIP, c.LocalIP)

	merged := o.Merge(&NetworkOptions{GatewayMAC: net.HardwareAddr{6, 5, 4, 3, 2, 1}})
	assert.Equal(t, net.HardwareAddr{6, 5, 4, 3, 2, 1}, merged.GatewayMAC)
	assert.Equal(t, netip.MustParseAddr("10.0.0.2"), *merged.LocalIP)
}

func TestMetricsOptions_UnmarshalTOML(t *testing.T) {
	var o MetricsOptions
	err := o.UnmarshalTOML(map[string]any{"enable": true, "listen-addr": "[::1]:9393"})
	assert.NoError(t, err)
	assert.True(t, *o.Enable)
	assert.Equal(t, "[::1]:9393", o.ListenAddr.String())

	err = (&MetricsOptions{}).UnmarshalTOML(map[string]any{"listen-addr": "localhost"})
	assert.Error(t, err)
}

func TestHopsOptions_UnmarshalTOML(t *testing.T) {
	tcs := []struct {
		name    string
		input   any
		wantErr bool
		assert  func(t *testing.T, o HopsOptions)
	}{
		{
			name:  "valid hops options",
			input: map[string]any{"default-ttl": int64(128), "cache-ttl": int64(0)},
			assert: func(t *testing.T, o HopsOptions) {
				assert.Equal(t, uint8(128), *o.DefaultTTL)
				assert.Equal(t, time.Duration(0), *o.CacheTTL)
			},
		},
		{
			name:    "zero default ttl",
			input:   map[string]any{"default-ttl": int64(0)},
			wantErr: true,
		},
		{
			name:    "negative cache ttl",
			input:   map[string]any{"cache-ttl": int64(-1)},
			wantErr: true,
		},
	}

	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			var o HopsOptions
			err := o.UnmarshalTOML(tc.input)
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
				if tc.assert != nil {
					tc.assert(t, o)
				}
			}
		})
	}
}
