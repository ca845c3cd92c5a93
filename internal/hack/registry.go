package hack

import (
	"errors"
	"fmt"
	"path"
	"slices"
	"strconv"
	"strings"
	"sync"
)

var (
	ErrUnknownHack         = errors.New("unknown hack")
	ErrIncompatibleVersion = errors.New("incompatible strategy api version")
)

type registration struct {
	factory    Factory
	apiVersion string
}

// Registry maps logical strategy names to their factories.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]registration
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]registration)}
}

var defaultRegistry = NewRegistry()

// Register adds f to the default registry. It is meant to be called from
// init functions and panics on a duplicate name.
func Register(name, apiVersion string, f Factory) {
	defaultRegistry.Register(name, apiVersion, f)
}

func Default() *Registry {
	return defaultRegistry
}

func (r *Registry) Register(name, apiVersion string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[name]; ok {
		panic(fmt.Sprintf("hack %q registered twice", name))
	}

	r.entries[name] = registration{factory: f, apiVersion: apiVersion}
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	slices.Sort(names)

	return names
}

func (r *Registry) lookup(name string) (registration, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	reg, ok := r.entries[name]
	if !ok {
		return registration{}, fmt.Errorf("%w: %q", ErrUnknownHack, name)
	}

	return reg, nil
}

// LogicalName turns a manifest module reference such as
// "/usr/lib/sniffjoke/fake_close_fin.so" into "fake_close_fin".
func LogicalName(module string) string {
	base := path.Base(strings.TrimSpace(module))
	return strings.TrimSuffix(base, ".so")
}

// CheckVersion accepts a strategy declaring the same major version as the
// core and a minor version not newer than the core's.
func CheckVersion(declared, core string) error {
	dMajor, dMinor, err := parseAPIVersion(declared)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrIncompatibleVersion, err)
	}

	cMajor, cMinor, err := parseAPIVersion(core)
	if err != nil {
		return fmt.Errorf("%w: core: %w", ErrIncompatibleVersion, err)
	}

	if dMajor != cMajor || dMinor > cMinor {
		return fmt.Errorf(
			"%w: strategy declares %s, core provides %s",
			ErrIncompatibleVersion, declared, core,
		)
	}

	return nil
}

func parseAPIVersion(v string) (int, int, error) {
	rawMajor, rawMinor, ok := strings.Cut(v, ".")
	if !ok {
		return 0, 0, fmt.Errorf("malformed version %q", v)
	}

	major, err := strconv.Atoi(rawMajor)
	if err != nil || major < 0 {
		return 0, 0, fmt.Errorf("malformed major in %q", v)
	}

	minor, err := strconv.Atoi(rawMinor)
	if err != nil || minor < 0 {
		return 0, 0, fmt.Errorf("malformed minor in %q", v)
	}

	return major, minor, nil
}
