package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCheckHostPort(t *testing.T) {
	tcs := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"valid ipv4 port", "127.0.0.1:8080", false},
		{"valid ipv6 port", "[::1]:8080", false},
		{"invalid port range", "127.0.0.1:70000", true},
		{"invalid ip", "999.999.999.999:8080", true},
		{"missing port", "127.0.0.1", true},
		{"missing ip", ":8080", true},
	}

	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			err := checkHostPort(tc.input)
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestCheckNumbers(t *testing.T) {
	tcs := []struct {
		name    string
		check   func(int64) error
		input   int64
		wantErr bool
	}{
		{"uint8 max", checkUint8, 255, false},
		{"uint8 overflow", checkUint8, 256, true},
		{"uint8 non zero", checkUint8NonZero, 0, true},
		{"uint16 negative", checkUint16, -1, true},
		{"uint32 max", checkUint32, 1<<32 - 1, false},
		{"queue levels min", checkQueueLevels, 2, false},
		{"queue levels max", checkQueueLevels, 16, false},
		{"queue levels above", checkQueueLevels, 17, true},
		{"mtu min", checkMTU, 576, false},
		{"mtu below", checkMTU, 575, true},
	}

	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.check(tc.input)
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestCheckStrings(t *testing.T) {
	tcs := []struct {
		name    string
		check   func(string) error
		input   string
		wantErr bool
	}{
		{"log level", checkLogLevel, "trace", false},
		{"log level upper", checkLogLevel, "WARN", false},
		{"log level unknown", checkLogLevel, "fatal", true},
		{"ipv4", checkIPv4, "10.0.0.1", false},
		{"ipv4 mapped ipv6", checkIPv4, "::ffff:10.0.0.1", true},
		{"mac", checkMAC, "52:54:00:12:34:56", false},
		{"mac dashes", checkMAC, "52-54-00-12-34-56", false},
		{"mac garbage", checkMAC, "xx", true},
		{"iface", checkIfaceName, "eth0", false},
		{"iface empty", checkIfaceName, "", true},
		{"iface slash", checkIfaceName, "eth/0", true},
		{"iface optional", checkIfaceNameOrEmpty, "", false},
		{"location", checkLocation, "italy", false},
		{"location dotdot", checkLocation, "..", true},
		{"only plugin empty", checkOnlyPlugin, "", false},
		{"only plugin", checkOnlyPlugin, "fake_data,MALFORMED", false},
		{"only plugin no comma", checkOnlyPlugin, "fake_data", true},
	}

	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.check(tc.input)
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
