package hdropt

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"iter"
	"math/rand/v2"
	"os"
	"strconv"
	"strings"
)

var (
	ErrAlreadyLoaded = errors.New("option usage already loaded")
	ErrOptionConfig  = errors.New("invalid option configuration")
)

// Catalog holds one implementation per supported option. It is built once
// at startup and shared by every injector session; it is not safe for
// concurrent use.
type Catalog struct {
	table  [SupportedOptions]*Option
	rand   *rand.Rand
	loaded bool
}

// NewCatalog returns a catalog in testing mode: every option is present and
// none has a usage assigned until LoadUsage succeeds.
func NewCatalog(r *rand.Rand) *Catalog {
	if r == nil {
		r = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}

	c := &Catalog{rand: r}
	for _, o := range builtinOptions() {
		c.table[o.Index] = o
	}

	return c
}

func (c *Catalog) Loaded() bool {
	return c.loaded
}

func (c *Catalog) Get(idx Index) (*Option, bool) {
	if !idx.Valid() || c.table[idx] == nil {
		return nil, false
	}

	return c.table[idx], true
}

// Options yields the options of kind in index order.
func (c *Catalog) Options(kind Kind) iter.Seq[*Option] {
	return func(yield func(*Option) bool) {
		for _, o := range c.table {
			if o == nil || o.Kind != kind {
				continue
			}
			if !yield(o) {
				return
			}
		}
	}
}

func (c *Catalog) SetEnabled(idx Index, on bool) error {
	o, ok := c.Get(idx)
	if !ok {
		return fmt.Errorf("unknown option index %d", idx)
	}
	o.Enabled = on

	return nil
}

func (c *Catalog) LoadUsageFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open option config: %w", err)
	}
	defer func() { _ = f.Close() }()

	if err := c.LoadUsage(f); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	return nil
}

// LoadUsage reads "index,usage" lines. Every index from 1 to the last
// supported one must appear in ascending order; a line with usage 0 does not
// settle its index and the next line may repeat it. Blank and '#' lines are
// skipped. Nothing is applied unless the whole input is valid.
func (c *Catalog) LoadUsage(r io.Reader) error {
	if c.loaded {
		return ErrAlreadyLoaded
	}

	var usages [SupportedOptions]Usage
	expected := IPNoop
	lineno := 0

	sc := bufio.NewScanner(r)
	for sc.Scan() && expected < SupportedOptions {
		lineno++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		idx, usage, err := parseUsageLine(line)
		if err != nil {
			return fmt.Errorf("%w: line %d: %w", ErrOptionConfig, lineno, err)
		}

		if !idx.Valid() {
			return fmt.Errorf("%w: line %d: invalid index %d", ErrOptionConfig, lineno, idx)
		}
		if idx != expected {
			return fmt.Errorf(
				"%w: line %d: found index %d instead of the expected %d",
				ErrOptionConfig, lineno, idx, expected,
			)
		}

		if usage == Unassigned {
			continue
		}

		usages[idx] = usage
		expected++
	}

	if err := sc.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrOptionConfig, err)
	}

	if expected < SupportedOptions {
		return fmt.Errorf("%w: option index %d not found", ErrOptionConfig, expected)
	}

	for i := IPNoop; i < SupportedOptions; i++ {
		c.table[i].Usage = usages[i]
	}
	c.loaded = true

	return nil
}

func parseUsageLine(line string) (Index, Usage, error) {
	rawIdx, rawUsage, ok := strings.Cut(line, ",")
	if !ok {
		return 0, 0, fmt.Errorf("missing comma in %q", line)
	}

	idx, err := strconv.ParseUint(strings.TrimSpace(rawIdx), 10, 8)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid index %q", rawIdx)
	}

	usage, err := strconv.ParseUint(strings.TrimSpace(rawUsage), 10, 8)
	if err != nil || usage > uint64(TwoShot) {
		return 0, 0, fmt.Errorf("invalid usage %q", rawUsage)
	}

	return Index(idx), Usage(usage), nil
}
