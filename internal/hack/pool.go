package hack

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"

	"github.com/holdensmagicalunicorn/sniffjoke/internal/scramble"
	"github.com/holdensmagicalunicorn/sniffjoke/version"
)

var (
	ErrNoHacks       = errors.New("no hack loaded")
	ErrManifestEntry = errors.New("invalid manifest entry")
)

// minEntryLen is a one character name, the comma and the shortest
// scramble keyword.
const minEntryLen = len("x,GUILTY")

type PoolConfig struct {
	// Enabler is the manifest path. With Location set the file read is
	// "<Enabler>.<Location>".
	Enabler  string
	Location string
	// OnlyPlugin, when set, replaces the manifest with a single
	// "name,CAP[,CAP...]" entry applied with the Always frequency.
	OnlyPlugin string

	Registry *Registry
	CoreAPI  string
	Factory  FactoryOptions
}

// Pool holds the strategies that survived loading. It lives for the whole
// process.
type Pool struct {
	logger zerolog.Logger
	hacks  []Hack
}

func NewPool(cfg PoolConfig, logger zerolog.Logger) (*Pool, error) {
	if cfg.Registry == nil {
		cfg.Registry = defaultRegistry
	}
	if cfg.CoreAPI == "" {
		cfg.CoreAPI = version.StrategyAPI
	}

	p := &Pool{logger: logger}

	if cfg.OnlyPlugin != "" {
		p.logger.Debug().
			Str("entry", cfg.OnlyPlugin).
			Msg("single hack forced to always apply")

		name, mask, err := scramble.ParseEntry(cfg.OnlyPlugin)
		if err != nil {
			return nil, fmt.Errorf("%w: only-plugin: %w", ErrManifestEntry, err)
		}

		opts := cfg.Factory
		opts.ForceAlways = true
		if err := p.load(cfg, name, mask, opts); err != nil {
			return nil, err
		}
	} else {
		if err := p.loadManifestFile(cfg); err != nil {
			return nil, err
		}
	}

	if len(p.hacks) == 0 {
		return nil, ErrNoHacks
	}

	p.logger.Info().Int("count", len(p.hacks)).Msg("hacks loaded")

	return p, nil
}

func (p *Pool) loadManifestFile(cfg PoolConfig) error {
	path := cfg.Enabler
	if cfg.Location != "" {
		path += "." + cfg.Location
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open hack manifest: %w", err)
	}
	defer func() { _ = f.Close() }()

	if err := p.loadManifest(cfg, f); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	return nil
}

func (p *Pool) loadManifest(cfg PoolConfig, r io.Reader) error {
	sc := bufio.NewScanner(r)
	lineno := 0

	for sc.Scan() {
		lineno++
		line := strings.TrimRight(sc.Text(), "\r\n")
		if line == "" || line[0] == '#' || line[0] == ' ' {
			continue
		}

		if len(line) < minEntryLen {
			return fmt.Errorf("%w: line %d too short: %q", ErrManifestEntry, lineno, line)
		}

		name, mask, err := scramble.ParseEntry(line)
		if err != nil {
			return fmt.Errorf("%w: line %d: %w", ErrManifestEntry, lineno, err)
		}

		if err := p.load(cfg, name, mask, cfg.Factory); err != nil {
			return fmt.Errorf("line %d: %w", lineno, err)
		}
	}

	return sc.Err()
}

func (p *Pool) load(cfg PoolConfig, module string, permitted scramble.Mask, opts FactoryOptions) error {
	name := LogicalName(module)

	reg, err := cfg.Registry.lookup(name)
	if err != nil {
		return err
	}

	if err := CheckVersion(reg.apiVersion, cfg.CoreAPI); err != nil {
		return fmt.Errorf("hack %q: %w", name, err)
	}

	h := reg.factory(opts)
	if !h.Init(permitted) {
		p.logger.Debug().
			Str("hack", name).
			Str("permitted", permitted.String()).
			Msg("hack rejected the permitted scrambles, skipped")
		return nil
	}

	d := h.Descriptor()
	p.logger.Info().
		Str("hack", name).
		Str("desc", d.Name).
		Str("scramble", d.Enabled.String()).
		Str("frequency", d.Frequency.String()).
		Msg("hack accepted")

	p.hacks = append(p.hacks, h)

	return nil
}

func (p *Pool) Hacks() []Hack {
	return p.hacks
}

func (p *Pool) Len() int {
	return len(p.hacks)
}

// Close releases every hack implementing io.Closer.
func (p *Pool) Close() error {
	var errs []error
	for _, h := range p.hacks {
		c, ok := h.(io.Closer)
		if !ok {
			continue
		}

		p.logger.Debug().Str("hack", h.Descriptor().Name).Msg("releasing hack")
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", h.Descriptor().Name, err))
		}
	}
	p.hacks = nil

	return errors.Join(errs...)
}
