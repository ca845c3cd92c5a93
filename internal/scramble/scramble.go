// Package scramble describes how a derived packet differs from a valid one.
package scramble

import (
	"errors"
	"fmt"
	"math/bits"
	"math/rand/v2"
	"strings"
)

var (
	ErrNoScramble   = errors.New("no valid scramble in list")
	ErrMissingComma = errors.New("missing comma separator")
)

type Mask uint8

const (
	// Innocent packets are structurally valid but semantically odd.
	Innocent Mask = 1 << iota
	// Prescription packets expire (TTL) before reaching the endpoint.
	Prescription
	// Guilty packets carry an invalid checksum.
	Guilty
	// Malformed packets are structurally invalid.
	Malformed

	None Mask = 0
	All  Mask = Innocent | Prescription | Guilty | Malformed
)

var keywords = []struct {
	name string
	mask Mask
}{
	{"PRESCRIPTION", Prescription},
	{"MALFORMED", Malformed},
	{"GUILTY", Guilty},
	{"INNOCENT", Innocent},
}

func (m Mask) Has(o Mask) bool {
	return m&o == o && o != None
}

// Any reports whether at least one bit of o is set in m.
func (m Mask) Any(o Mask) bool {
	return m&o != None
}

func (m Mask) Count() int {
	return bits.OnesCount8(uint8(m))
}

func (m Mask) String() string {
	if m == None {
		return "NONE"
	}

	var names []string
	for _, name := range []struct {
		n string
		m Mask
	}{
		{"INNOCENT", Innocent},
		{"PRESCRIPTION", Prescription},
		{"GUILTY", Guilty},
		{"MALFORMED", Malformed},
	} {
		if m.Has(name.m) {
			names = append(names, name.n)
		}
	}

	return strings.Join(names, ",")
}

// Pick returns one of the bits set in m chosen at random, or None when m is
// empty.
func (m Mask) Pick(r *rand.Rand) Mask {
	n := m.Count()
	if n == 0 {
		return None
	}

	target := r.IntN(n)
	for bit := Innocent; bit <= Malformed; bit <<= 1 {
		if !m.Has(bit) {
			continue
		}
		if target == 0 {
			return bit
		}
		target--
	}

	return None
}

// Parse matches each known keyword by substring against list, so
// "GUILTY,INNOCENT" and "INNOCENTGUILTY" parse the same way. Matching is
// case sensitive.
func Parse(list string) (Mask, error) {
	var m Mask
	for _, kw := range keywords {
		if strings.Contains(list, kw.name) {
			m |= kw.mask
		}
	}

	if m == None {
		return None, fmt.Errorf("%w: %q", ErrNoScramble, list)
	}

	return m, nil
}

// ParseEntry splits a "name,CAP[,CAP...]" entry.
func ParseEntry(entry string) (string, Mask, error) {
	name, list, ok := strings.Cut(entry, ",")
	if !ok {
		return "", None, fmt.Errorf("%w in %q", ErrMissingComma, entry)
	}

	m, err := Parse(list)
	if err != nil {
		return "", None, err
	}

	return strings.TrimSpace(name), m, nil
}
