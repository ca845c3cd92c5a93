// Package matcher selects the destinations whose traffic is forwarded
// without mangling.
package matcher

import (
	"errors"
	"fmt"
	"net/netip"
	"strconv"
	"strings"
)

var ErrInvalidRule = errors.New("invalid bypass rule")

// Rule matches a destination prefix and an inclusive port range. A Mangle
// rule re-enables mangling inside a broader bypass rule.
type Rule struct {
	Prefix   netip.Prefix
	PortFrom uint16
	PortTo   uint16
	Mangle   bool
	Priority uint16
}

func (r Rule) Match(dst netip.AddrPort) bool {
	if !r.Prefix.Contains(dst.Addr()) {
		return false
	}

	return dst.Port() >= r.PortFrom && dst.Port() <= r.PortTo
}

func (r Rule) String() string {
	var sb strings.Builder
	if r.Mangle {
		sb.WriteByte('+')
	}
	sb.WriteString(r.Prefix.String())

	switch {
	case r.PortFrom == 0 && r.PortTo == 65535:
	case r.PortFrom == r.PortTo:
		fmt.Fprintf(&sb, ":%d", r.PortFrom)
	default:
		fmt.Fprintf(&sb, ":%d-%d", r.PortFrom, r.PortTo)
	}

	return sb.String()
}

// ParseRule reads "[+]addr[/bits][:port[-port]]". Without a port the rule
// covers every port. The priority is the prefix length, so the most
// specific network wins.
func ParseRule(s string) (Rule, error) {
	raw := strings.TrimSpace(s)

	var r Rule
	if rest, ok := strings.CutPrefix(raw, "+"); ok {
		r.Mangle = true
		raw = rest
	}

	network, ports, hasPorts := strings.Cut(raw, ":")

	prefix, err := parsePrefix(network)
	if err != nil {
		return Rule{}, fmt.Errorf("%w %q: %w", ErrInvalidRule, s, err)
	}
	r.Prefix = prefix.Masked()
	r.Priority = uint16(prefix.Bits())

	r.PortFrom, r.PortTo = 0, 65535
	if hasPorts {
		from, to, err := parsePorts(ports)
		if err != nil {
			return Rule{}, fmt.Errorf("%w %q: %w", ErrInvalidRule, s, err)
		}
		r.PortFrom, r.PortTo = from, to
	}

	return r, nil
}

func parsePrefix(s string) (netip.Prefix, error) {
	if strings.Contains(s, "/") {
		p, err := netip.ParsePrefix(s)
		if err != nil {
			return netip.Prefix{}, err
		}
		if !p.Addr().Is4() {
			return netip.Prefix{}, fmt.Errorf("not an ipv4 network")
		}
		return p, nil
	}

	addr, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Prefix{}, err
	}
	if !addr.Is4() {
		return netip.Prefix{}, fmt.Errorf("not an ipv4 address")
	}

	return netip.PrefixFrom(addr, addr.BitLen()), nil
}

func parsePorts(s string) (uint16, uint16, error) {
	rawFrom, rawTo, isRange := strings.Cut(s, "-")

	from, err := strconv.ParseUint(rawFrom, 10, 16)
	if err != nil {
		return 0, 0, fmt.Errorf("bad port %q", rawFrom)
	}
	if !isRange {
		return uint16(from), uint16(from), nil
	}

	to, err := strconv.ParseUint(rawTo, 10, 16)
	if err != nil {
		return 0, 0, fmt.Errorf("bad port %q", rawTo)
	}
	if to < from {
		return 0, 0, fmt.Errorf("port range %d-%d is reversed", from, to)
	}

	return uint16(from), uint16(to), nil
}
