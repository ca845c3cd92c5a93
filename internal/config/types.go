package config

import (
	"fmt"
	"net"
	"net/netip"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/holdensmagicalunicorn/sniffjoke/internal/ptr"
)

// ┌─────────────────┐
// │ GENERAL OPTIONS │
// └─────────────────┘
var _ merger[*GeneralOptions] = (*GeneralOptions)(nil)

var availableLogLevels = []string{"info", "warn", "trace", "error", "debug"}

type GeneralOptions struct {
	LogLevel       *zerolog.Level `toml:"log-level"`
	Silent         *bool          `toml:"silent"`
	LogFile        *string        `toml:"log-file"`
	SessionLogFile *string        `toml:"session-log-file"`
	PacketLogFile  *string        `toml:"packet-log-file"`
}

func (o *GeneralOptions) UnmarshalTOML(data any) (err error) {
	m, ok := data.(map[string]any)
	if !ok {
		return fmt.Errorf("non-table type general config")
	}

	o.Silent = lookup(m, "silent", parseBoolFn(), &err)
	o.LogFile = lookup(m, "log-file", parseStringFn(nil), &err)
	o.SessionLogFile = lookup(m, "session-log-file", parseStringFn(nil), &err)
	o.PacketLogFile = lookup(m, "packet-log-file", parseStringFn(nil), &err)
	if p := lookup(m, "log-level", parseStringFn(checkLogLevel), &err); isOk(p, err) {
		o.LogLevel = ptr.Of(MustParseLogLevel(*p))
	}

	return err
}

func (o *GeneralOptions) Clone() *GeneralOptions {
	if o == nil {
		return nil
	}

	var newLevel *zerolog.Level
	if o.LogLevel != nil {
		newLevel = ptr.Of(MustParseLogLevel(strings.ToLower(o.LogLevel.String())))
	}

	return &GeneralOptions{
		LogLevel:       newLevel,
		Silent:         ptr.Copy(o.Silent),
		LogFile:        ptr.Copy(o.LogFile),
		SessionLogFile: ptr.Copy(o.SessionLogFile),
		PacketLogFile:  ptr.Copy(o.PacketLogFile),
	}
}

func (origin *GeneralOptions) Merge(overrides *GeneralOptions) *GeneralOptions {
	if overrides == nil {
		return origin.Clone()
	}

	if origin == nil {
		return overrides.Clone()
	}

	return &GeneralOptions{
		LogLevel:       ptr.Merge(overrides.LogLevel, origin.LogLevel),
		Silent:         ptr.Merge(overrides.Silent, origin.Silent),
		LogFile:        ptr.Merge(overrides.LogFile, origin.LogFile),
		SessionLogFile: ptr.Merge(overrides.SessionLogFile, origin.SessionLogFile),
		PacketLogFile:  ptr.Merge(overrides.PacketLogFile, origin.PacketLogFile),
	}
}

// ┌────────────────┐
// │ ENGINE OPTIONS │
// └────────────────┘
var _ merger[*EngineOptions] = (*EngineOptions)(nil)

type EngineOptions struct {
	QueueLevels *uint8  `toml:"queue-levels"`
	MTU         *uint16 `toml:"mtu"`
	// OptionConfig is the "index,usage" file. Empty means testing mode.
	OptionConfig *string `toml:"option-config"`
	Enabler      *string `toml:"enabler"`
	Location     *string `toml:"location"`
	OnlyPlugin   *string `toml:"only-plugin"`
	// StrictOptions refuses unknown options found in a received header.
	StrictOptions *bool `toml:"strict-options"`
	Active        *bool `toml:"active"`
	// Bypass holds "[+]addr[/bits][:port[-port]]" destinations forwarded
	// without mangling.
	Bypass []string `toml:"bypass"`
}

func (o *EngineOptions) UnmarshalTOML(data any) (err error) {
	m, ok := data.(map[string]any)
	if !ok {
		return fmt.Errorf("non-table type engine config")
	}

	o.QueueLevels = lookup(m, "queue-levels", parseIntFn[uint8](checkQueueLevels), &err)
	o.MTU = lookup(m, "mtu", parseIntFn[uint16](checkMTU), &err)
	o.OptionConfig = lookup(m, "option-config", parseStringFn(nil), &err)
	o.Enabler = lookup(m, "enabler", parseStringFn(checkNonEmpty), &err)
	o.Location = lookup(m, "location", parseStringFn(checkLocation), &err)
	o.OnlyPlugin = lookup(m, "only-plugin", parseStringFn(checkOnlyPlugin), &err)
	o.StrictOptions = lookup(m, "strict-options", parseBoolFn(), &err)
	o.Active = lookup(m, "active", parseBoolFn(), &err)

	if p := lookup(m, "bypass", parseStringSliceFn(checkBypass), &err); isOk(p, err) {
		o.Bypass = *p
	}

	return err
}

func (o *EngineOptions) Clone() *EngineOptions {
	if o == nil {
		return nil
	}

	return &EngineOptions{
		QueueLevels:   ptr.Copy(o.QueueLevels),
		MTU:           ptr.Copy(o.MTU),
		OptionConfig:  ptr.Copy(o.OptionConfig),
		Enabler:       ptr.Copy(o.Enabler),
		Location:      ptr.Copy(o.Location),
		OnlyPlugin:    ptr.Copy(o.OnlyPlugin),
		StrictOptions: ptr.Copy(o.StrictOptions),
		Active:        ptr.Copy(o.Active),
		Bypass:        ptr.CopySlice(o.Bypass),
	}
}

func (origin *EngineOptions) Merge(overrides *EngineOptions) *EngineOptions {
	if overrides == nil {
		return origin.Clone()
	}

	if origin == nil {
		return overrides.Clone()
	}

	return &EngineOptions{
		QueueLevels:   ptr.Merge(overrides.QueueLevels, origin.QueueLevels),
		MTU:           ptr.Merge(overrides.MTU, origin.MTU),
		OptionConfig:  ptr.Merge(overrides.OptionConfig, origin.OptionConfig),
		Enabler:       ptr.Merge(overrides.Enabler, origin.Enabler),
		Location:      ptr.Merge(overrides.Location, origin.Location),
		OnlyPlugin:    ptr.Merge(overrides.OnlyPlugin, origin.OnlyPlugin),
		StrictOptions: ptr.Merge(overrides.StrictOptions, origin.StrictOptions),
		Active:        ptr.Merge(overrides.Active, origin.Active),
		Bypass:        ptr.MergeSlice(overrides.Bypass, origin.Bypass),
	}
}

// ┌─────────────────┐
// │ NETWORK OPTIONS │
// └─────────────────┘
var _ merger[*NetworkOptions] = (*NetworkOptions)(nil)

// NetworkOptions left unset are detected from the routing state at
// startup.
type NetworkOptions struct {
	TunName    *string          `toml:"tun-name"`
	Interface  *string          `toml:"interface"`
	GatewayMAC net.HardwareAddr `toml:"gateway-mac"`
	GatewayIP  *netip.Addr      `toml:"gateway-ip"`
	LocalIP    *netip.Addr      `toml:"local-ip"`
	TunMTU     *uint16          `toml:"tun-mtu"`
}

func (o *NetworkOptions) UnmarshalTOML(data any) (err error) {
	m, ok := data.(map[string]any)
	if !ok {
		return fmt.Errorf("non-table type network config")
	}

	o.TunName = lookup(m, "tun-name", parseStringFn(checkIfaceName), &err)
	o.Interface = lookup(m, "interface", parseStringFn(checkIfaceNameOrEmpty), &err)
	o.TunMTU = lookup(m, "tun-mtu", parseIntFn[uint16](checkMTU), &err)

	if p := lookup(m, "gateway-mac", parseStringFn(checkMAC), &err); isOk(p, err) {
		o.GatewayMAC = MustParseMAC(*p)
	}
	if p := lookup(m, "gateway-ip", parseStringFn(checkIPv4), &err); isOk(p, err) {
		o.GatewayIP = ptr.Of(netip.MustParseAddr(*p))
	}
	if p := lookup(m, "local-ip", parseStringFn(checkIPv4), &err); isOk(p, err) {
		o.LocalIP = ptr.Of(netip.MustParseAddr(*p))
	}

	return err
}

func (o *NetworkOptions) Clone() *NetworkOptions {
	if o == nil {
		return nil
	}

	return &NetworkOptions{
		TunName:    ptr.Copy(o.TunName),
		Interface:  ptr.Copy(o.Interface),
		GatewayMAC: ptr.CopySlice(o.GatewayMAC),
		GatewayIP:  ptr.Copy(o.GatewayIP),
		LocalIP:    ptr.Copy(o.LocalIP),
		TunMTU:     ptr.Copy(o.TunMTU),
	}
}

func (origin *NetworkOptions) Merge(overrides *NetworkOptions) *NetworkOptions {
	if overrides == nil {
		return origin.Clone()
	}

	if origin == nil {
		return overrides.Clone()
	}

	return &NetworkOptions{
		TunName:    ptr.Merge(overrides.TunName, origin.TunName),
		Interface:  ptr.Merge(overrides.Interface, origin.Interface),
		GatewayMAC: ptr.MergeSlice(overrides.GatewayMAC, origin.GatewayMAC),
		GatewayIP:  ptr.Merge(overrides.GatewayIP, origin.GatewayIP),
		LocalIP:    ptr.Merge(overrides.LocalIP, origin.LocalIP),
		TunMTU:     ptr.Merge(overrides.TunMTU, origin.TunMTU),
	}
}

// ┌─────────────────┐
// │ METRICS OPTIONS │
// └─────────────────┘
var _ merger[*MetricsOptions] = (*MetricsOptions)(nil)

type MetricsOptions struct {
	Enable     *bool        `toml:"enable"`
	ListenAddr *net.TCPAddr `toml:"listen-addr"`
}

func (o *MetricsOptions) UnmarshalTOML(data any) (err error) {
	m, ok := data.(map[string]any)
	if !ok {
		return fmt.Errorf("non-table type metrics config")
	}

	o.Enable = lookup(m, "enable", parseBoolFn(), &err)
	if p := lookup(m, "listen-addr", parseStringFn(checkHostPort), &err); isOk(p, err) {
		o.ListenAddr = ptr.Of(MustParseTCPAddr(*p))
	}

	return err
}

func (o *MetricsOptions) Clone() *MetricsOptions {
	if o == nil {
		return nil
	}

	var newAddr *net.TCPAddr
	if o.ListenAddr != nil {
		newAddr = &net.TCPAddr{
			IP:   append(net.IP(nil), o.ListenAddr.IP...),
			Port: o.ListenAddr.Port,
			Zone: o.ListenAddr.Zone,
		}
	}

	return &MetricsOptions{
		Enable:     ptr.Copy(o.Enable),
		ListenAddr: newAddr,
	}
}

func (origin *MetricsOptions) Merge(overrides *MetricsOptions) *MetricsOptions {
	if overrides == nil {
		return origin.Clone()
	}

	if origin == nil {
		return overrides.Clone()
	}

	return &MetricsOptions{
		Enable:     ptr.Merge(overrides.Enable, origin.Enable),
		ListenAddr: ptr.Merge(overrides.ListenAddr, origin.ListenAddr),
	}
}

// ┌──────────────┐
// │ HOPS OPTIONS │
// └──────────────┘
var _ merger[*HopsOptions] = (*HopsOptions)(nil)

type HopsOptions struct {
	// DefaultTTL is used for PRESCRIPTION packets toward hosts whose
	// distance is unknown.
	DefaultTTL *uint8         `toml:"default-ttl"`
	CacheTTL   *time.Duration `toml:"cache-ttl"`
}

func (o *HopsOptions) UnmarshalTOML(data any) (err error) {
	m, ok := data.(map[string]any)
	if !ok {
		return fmt.Errorf("non-table type hops config")
	}

	o.DefaultTTL = lookup(m, "default-ttl", parseIntFn[uint8](checkUint8NonZero), &err)
	if p := lookup(m, "cache-ttl", parseIntFn[uint32](checkUint32), &err); isOk(p, err) {
		o.CacheTTL = ptr.Of(time.Duration(*p) * time.Second)
	}

	return err
}

func (o *HopsOptions) Clone() *HopsOptions {
	if o == nil {
		return nil
	}

	return &HopsOptions{
		DefaultTTL: ptr.Copy(o.DefaultTTL),
		CacheTTL:   ptr.Copy(o.CacheTTL),
	}
}

func (origin *HopsOptions) Merge(overrides *HopsOptions) *HopsOptions {
	if overrides == nil {
		return origin.Clone()
	}

	if origin == nil {
		return overrides.Clone()
	}

	return &HopsOptions{
		DefaultTTL: ptr.Merge(overrides.DefaultTTL, origin.DefaultTTL),
		CacheTTL:   ptr.Merge(overrides.CacheTTL, origin.CacheTTL),
	}
}
