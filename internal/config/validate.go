package config

import (
	"errors"
	"fmt"
	"math"
	"net"
	"net/netip"
	"slices"
	"strconv"
	"strings"

	"github.com/holdensmagicalunicorn/sniffjoke/internal/matcher"
	"github.com/holdensmagicalunicorn/sniffjoke/internal/scramble"
)

const (
	minQueueLevels = 2
	maxQueueLevels = 16
	minMTU         = 576
	// IFNAMSIZ minus the terminator.
	maxIfaceName = 15
)

func checkLogLevel(v string) error {
	if !slices.Contains(availableLogLevels, strings.ToLower(v)) {
		return fmt.Errorf("invalid log level %q, expected one of %v", v, availableLogLevels)
	}

	return nil
}

func checkUint8(v int64) error {
	if v < 0 || math.MaxUint8 < v {
		return fmt.Errorf("out of range[%d-%d]", 0, math.MaxUint8)
	}

	return nil
}

func checkUint8NonZero(v int64) error {
	if v < 1 || math.MaxUint8 < v {
		return fmt.Errorf("out of range[%d-%d]", 1, math.MaxUint8)
	}

	return nil
}

func checkUint16(v int64) error {
	if v < 0 || math.MaxUint16 < v {
		return fmt.Errorf("out of range[%d-%d]", 0, math.MaxUint16)
	}

	return nil
}

func checkUint32(v int64) error {
	if v < 0 || math.MaxUint32 < v {
		return fmt.Errorf("out of range[%d-%d]", 0, uint32(math.MaxUint32))
	}

	return nil
}

func checkQueueLevels(v int64) error {
	if v < minQueueLevels || maxQueueLevels < v {
		return fmt.Errorf("out of range[%d-%d]", minQueueLevels, maxQueueLevels)
	}

	return nil
}

func checkMTU(v int64) error {
	if v < minMTU || math.MaxUint16 < v {
		return fmt.Errorf("out of range[%d-%d]", minMTU, math.MaxUint16)
	}

	return nil
}

func checkNonEmpty(v string) error {
	if strings.TrimSpace(v) == "" {
		return errors.New("must not be empty")
	}

	return nil
}

func checkHostPort(v string) error {
	host, port, err := net.SplitHostPort(v)
	if err != nil {
		return err
	}

	if _, err := netip.ParseAddr(host); err != nil {
		return fmt.Errorf("invalid ip address %q", host)
	}

	p, err := strconv.Atoi(port)
	if err != nil || p < 1 || p > math.MaxUint16 {
		return fmt.Errorf("invalid port %q", port)
	}

	return nil
}

func checkIPv4(v string) error {
	addr, err := netip.ParseAddr(v)
	if err != nil || !addr.Is4() {
		return fmt.Errorf("invalid ipv4 address %q", v)
	}

	return nil
}

func checkMAC(v string) error {
	mac, err := net.ParseMAC(v)
	if err != nil {
		return err
	}

	if len(mac) != 6 {
		return fmt.Errorf("expected a 6 byte hardware address, got %d", len(mac))
	}

	return nil
}

func checkIfaceName(v string) error {
	if v == "" || len(v) > maxIfaceName || strings.ContainsAny(v, "/ \t") {
		return fmt.Errorf("invalid interface name %q", v)
	}

	return nil
}

func checkIfaceNameOrEmpty(v string) error {
	if v == "" {
		return nil
	}

	return checkIfaceName(v)
}

// checkLocation keeps the manifest suffix a single path element.
func checkLocation(v string) error {
	if strings.ContainsAny(v, "/\\") || v == "." || v == ".." {
		return fmt.Errorf("invalid location %q", v)
	}

	return nil
}

func checkOnlyPlugin(v string) error {
	if v == "" {
		return nil
	}

	_, _, err := scramble.ParseEntry(v)
	return err
}

func checkBypass(v []string) error {
	for _, e := range v {
		if _, err := matcher.ParseRule(e); err != nil {
			return err
		}
	}

	return nil
}
