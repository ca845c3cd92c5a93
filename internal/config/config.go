package config

import (
	"fmt"
	"net"
	"time"

	"github.com/rs/zerolog"

	"github.com/holdensmagicalunicorn/sniffjoke/internal/ptr"
)

type merger[T any] interface {
	Clone() T
	Merge(overrides T) T
}

var _ merger[*Config] = (*Config)(nil)

type Config struct {
	General *GeneralOptions `toml:"general"`
	Engine  *EngineOptions  `toml:"engine"`
	Network *NetworkOptions `toml:"network"`
	Metrics *MetricsOptions `toml:"metrics"`
	Hops    *HopsOptions    `toml:"hops"`
}

func (c *Config) UnmarshalTOML(data any) (err error) {
	m, ok := data.(map[string]any)
	if !ok {
		return fmt.Errorf("non-table type config")
	}

	c.General = lookupSection[GeneralOptions](m, "general", &err)
	c.Engine = lookupSection[EngineOptions](m, "engine", &err)
	c.Network = lookupSection[NetworkOptions](m, "network", &err)
	c.Metrics = lookupSection[MetricsOptions](m, "metrics", &err)
	c.Hops = lookupSection[HopsOptions](m, "hops", &err)

	return err
}

func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}

	return &Config{
		General: c.General.Clone(),
		Engine:  c.Engine.Clone(),
		Network: c.Network.Clone(),
		Metrics: c.Metrics.Clone(),
		Hops:    c.Hops.Clone(),
	}
}

func (origin *Config) Merge(overrides *Config) *Config {
	if overrides == nil {
		return origin.Clone()
	}

	if origin == nil {
		return overrides.Clone()
	}

	return &Config{
		General: origin.General.Merge(overrides.General),
		Engine:  origin.Engine.Merge(overrides.Engine),
		Network: origin.Network.Merge(overrides.Network),
		Metrics: origin.Metrics.Merge(overrides.Metrics),
		Hops:    origin.Hops.Merge(overrides.Hops),
	}
}

// Testing reports whether no option usage file was given. Every header
// option then stays unassigned and MALFORMED is unavailable.
func (c *Config) Testing() bool {
	if c.Engine == nil {
		return true
	}
	return ptr.Deref(c.Engine.OptionConfig) == ""
}

// ManifestPath is the strategy manifest actually read.
func (c *Config) ManifestPath() string {
	p := ptr.Deref(c.Engine.Enabler)
	if loc := ptr.Deref(c.Engine.Location); loc != "" {
		p += "." + loc
	}

	return p
}

// Default holds the value of every option neither the file nor the flags set.
func Default() *Config {
	return &Config{
		General: &GeneralOptions{
			LogLevel:       ptr.Of(zerolog.InfoLevel),
			Silent:         ptr.Of(false),
			LogFile:        ptr.Of(""),
			SessionLogFile: ptr.Of(""),
			PacketLogFile:  ptr.Of(""),
		},
		Engine: &EngineOptions{
			QueueLevels:   ptr.Of(uint8(5)),
			MTU:           ptr.Of(uint16(1500)),
			OptionConfig:  ptr.Of(""),
			Enabler:       ptr.Of("/etc/sniffjoke/plugins-enabled.conf"),
			Location:      ptr.Of(""),
			OnlyPlugin:    ptr.Of(""),
			StrictOptions: ptr.Of(true),
			Active:        ptr.Of(true),
		},
		Network: &NetworkOptions{
			TunName:   ptr.Of("sniffjoke0"),
			Interface: ptr.Of(""),
			TunMTU:    ptr.Of(uint16(1500)),
		},
		Metrics: &MetricsOptions{
			Enable:     ptr.Of(false),
			ListenAddr: &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 9393},
		},
		Hops: &HopsOptions{
			DefaultTTL: ptr.Of(uint8(64)),
			CacheTTL:   ptr.Of(10 * time.Minute),
		},
	}
}
