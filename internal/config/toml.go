package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/holdensmagicalunicorn/sniffjoke/internal/ptr"
)

const configFilename = "sniffjoke.toml"

// candidatePaths lists the system file first and the per-user ones after.
// Unset environment variables drop their entry.
func candidatePaths() []string {
	paths := []string{filepath.Join("/etc", "sniffjoke", configFilename)}

	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		paths = append(paths, filepath.Join(xdg, "sniffjoke", configFilename))
	}
	if home := os.Getenv("HOME"); home != "" {
		paths = append(paths, filepath.Join(home, ".config", "sniffjoke", configFilename))
	}

	return paths
}

// locateConfig returns explicit when given, failing if it does not exist,
// and the first existing candidate otherwise. No file at all is not an
// error.
func locateConfig(explicit string, candidates []string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file %s: %w", explicit, err)
		}
		return explicit, nil
	}

	for _, p := range candidates {
		if p == "" {
			continue
		}

		_, err := os.Stat(p)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("config file %s: %w", p, err)
		}
	}

	return "", nil
}

func loadConfigFile(path string) (*Config, error) {
	_ = os.Setenv("BURNTSUSHI_TOML_110", "1") // newlines inside inline tables

	var cfg *Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return cfg, nil
}

// lookup parses key of a decoded table. The first failure is kept in err and
// turns every later lookup into a no-op.
func lookup[T any](
	table map[string]any,
	key string,
	parse func(any) (T, error),
	err *error,
) *T {
	if err != nil && *err != nil {
		return nil
	}

	raw, ok := table[key]
	if !ok {
		return nil
	}

	v, parseErr := parse(raw)
	if parseErr != nil {
		*err = fmt.Errorf("field %q: %w", key, parseErr)
		return nil
	}

	return ptr.Of(v)
}

// lookupSection decodes a nested table through its own UnmarshalTOML.
func lookupSection[T any, PT interface {
	*T
	toml.Unmarshaler
}](table map[string]any, key string, err *error) *T {
	if err != nil && *err != nil {
		return nil
	}

	raw, ok := table[key]
	if !ok {
		return nil
	}

	var section T
	if decodeErr := PT(&section).UnmarshalTOML(raw); decodeErr != nil {
		*err = fmt.Errorf("section [%s]: %w", key, decodeErr)
		return nil
	}

	return &section
}
