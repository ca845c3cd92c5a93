package matcher

import (
	"net/netip"
	"sort"
	"sync"
)

// AddrMatcher holds bypass rules sorted by descending priority.
type AddrMatcher struct {
	mu    sync.RWMutex
	rules []Rule
}

func NewAddrMatcher() *AddrMatcher {
	return &AddrMatcher{
		rules: make([]Rule, 0),
	}
}

// Parse builds a matcher from "[+]addr[/bits][:port[-port]]" entries.
func Parse(entries []string) (*AddrMatcher, error) {
	m := NewAddrMatcher()
	for _, e := range entries {
		r, err := ParseRule(e)
		if err != nil {
			return nil, err
		}
		m.Add(r)
	}

	return m, nil
}

// Add inserts r after every rule of equal or higher priority.
func (m *AddrMatcher) Add(r Rule) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.rules = append(m.rules, r)

	sort.SliceStable(m.rules, func(i, j int) bool {
		return m.rules[i].Priority > m.rules[j].Priority
	})
}

func (m *AddrMatcher) Len() int {
	if m == nil {
		return 0
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.rules)
}

// Search returns the highest priority rule matching dst.
func (m *AddrMatcher) Search(dst netip.AddrPort) (Rule, bool) {
	if m == nil || !dst.IsValid() {
		return Rule{}, false
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	// sorted by priority, the first match wins
	for _, r := range m.rules {
		if r.Match(dst) {
			return r, true
		}
	}

	return Rule{}, false
}

// Bypass reports whether traffic toward dst must be left untouched.
func (m *AddrMatcher) Bypass(dst netip.AddrPort) bool {
	r, ok := m.Search(dst)
	return ok && !r.Mangle
}
