package config

import (
	"fmt"
	"net"

	"github.com/rs/zerolog"
)

type integer interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 |
		~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64
}

func isOk[T any](p *T, err error) bool {
	return p != nil && err == nil
}

// parseIntFn accepts the int64 values the toml decoder produces.
func parseIntFn[T integer](check func(int64) error) func(any) (T, error) {
	return func(v any) (T, error) {
		i, ok := v.(int64)
		if !ok {
			return 0, fmt.Errorf("expected integer, got %T", v)
		}

		if check != nil {
			if err := check(i); err != nil {
				return 0, err
			}
		}

		return T(i), nil
	}
}

func parseStringFn(check func(string) error) func(any) (string, error) {
	return func(v any) (string, error) {
		s, ok := v.(string)
		if !ok {
			return "", fmt.Errorf("expected string, got %T", v)
		}

		if check != nil {
			if err := check(s); err != nil {
				return "", err
			}
		}

		return s, nil
	}
}

func parseStringSliceFn(check func([]string) error) func(any) ([]string, error) {
	return func(v any) ([]string, error) {
		raw, ok := v.([]any)
		if !ok {
			return nil, fmt.Errorf("expected array, got %T", v)
		}

		out := make([]string, 0, len(raw))
		for i, e := range raw {
			s, ok := e.(string)
			if !ok {
				return nil, fmt.Errorf("element %d: expected string, got %T", i, e)
			}
			out = append(out, s)
		}

		if check != nil {
			if err := check(out); err != nil {
				return nil, err
			}
		}

		return out, nil
	}
}

func parseBoolFn() func(any) (bool, error) {
	return func(v any) (bool, error) {
		b, ok := v.(bool)
		if !ok {
			return false, fmt.Errorf("expected boolean, got %T", v)
		}

		return b, nil
	}
}

func MustParseLogLevel(s string) zerolog.Level {
	level, err := zerolog.ParseLevel(s)
	if err != nil || level == zerolog.NoLevel {
		panic(fmt.Sprintf("invalid log level %q", s))
	}

	return level
}

func MustParseTCPAddr(s string) net.TCPAddr {
	addr, err := net.ResolveTCPAddr("tcp", s)
	if err != nil {
		panic(err)
	}

	return *addr
}

func MustParseMAC(s string) net.HardwareAddr {
	mac, err := net.ParseMAC(s)
	if err != nil {
		panic(err)
	}

	return mac
}

// intValidator adapts a toml check to a cli integer flag validator.
func intValidator(check func(int64) error) func(int) error {
	return func(v int) error {
		return check(int64(v))
	}
}
