package config

import (
	"context"
	"fmt"
	"net/netip"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/holdensmagicalunicorn/sniffjoke/internal/ptr"
)

func CreateCommand(
	runFunc func(ctx context.Context, configDir string, cfg *Config) error,
	version string,
	commit string,
	build string,
) *cli.Command {
	cli.RootCommandHelpTemplate = createHelpTemplate()

	cmd := &cli.Command{
		Name:        "sniffjoke",
		Description: "Transparent packet scrambler confusing passive sniffers and DPI",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name: "active",
				Usage: `
				Apply the hack pool to tunnel traffic. When false every packet
				is relayed untouched (default: true)`,
				OnlyOnce: true,
			},

			&cli.StringSliceFlag{
				Name: "bypass",
				Usage: `
				Destination '[+]addr[/bits][:port[-port]]' forwarded without mangling. A
				leading '+' mangles it again inside a broader entry. Can be repeated`,
				Validator: checkBypass,
			},

			&cli.BoolFlag{
				Name: "clean",
				Usage: `
				if set, all configuration files will be ignored`,
				OnlyOnce: true,
			},

			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage: `
				Custom location of the config file to load. Options given through the command
				line flags will override the options set in this file.`,
				OnlyOnce: true,
				Sources:  cli.EnvVars("SNIFFJOKE_CONFIG"),
			},

			&cli.IntFlag{
				Name: "default-ttl",
				Usage: `
				TTL given to PRESCRIPTION packets toward hosts of unknown distance (default: 64)`,
				OnlyOnce:  true,
				Validator: intValidator(checkUint8NonZero),
			},

			&cli.StringFlag{
				Name: "enabler",
				Usage: `
				Hack manifest listing one 'name,SCRAMBLE[,SCRAMBLE...]' entry per line
				(default: /etc/sniffjoke/plugins-enabled.conf)`,
				OnlyOnce:  true,
				Validator: checkNonEmpty,
			},

			&cli.StringFlag{
				Name: "gateway-ip",
				Usage: `
				IPv4 address of the default gateway (default: read from the routing table)`,
				OnlyOnce:  true,
				Validator: checkIPv4,
			},

			&cli.StringFlag{
				Name: "gateway-mac",
				Usage: `
				Hardware address of the default gateway (default: read from the neighbor table)`,
				OnlyOnce:  true,
				Validator: checkMAC,
			},

			&cli.IntFlag{
				Name: "hop-cache-ttl",
				Usage: `
				Seconds a learned hop count is kept; 0 keeps it forever (default: 600)`,
				OnlyOnce:  true,
				Validator: intValidator(checkUint32),
			},

			&cli.StringFlag{
				Name: "interface",
				Usage: `
				Physical interface to send packets through (default: the one holding the default route)`,
				OnlyOnce:  true,
				Validator: checkIfaceNameOrEmpty,
			},

			&cli.StringFlag{
				Name: "local-ip",
				Usage: `
				IPv4 address of the physical interface (default: detected)`,
				OnlyOnce:  true,
				Validator: checkIPv4,
			},

			&cli.StringFlag{
				Name: "location",
				Usage: `
				Location name; the manifest read becomes '<enabler>.<location>'`,
				OnlyOnce:  true,
				Validator: checkLocation,
			},

			&cli.StringFlag{
				Name: "log-file",
				Usage: `
				Also write the main log to this file, rotated by size`,
				OnlyOnce: true,
			},

			&cli.StringFlag{
				Name: "log-level",
				Usage: `
				Set log level (default: 'info')`,
				OnlyOnce:  true,
				Validator: checkLogLevel,
			},

			&cli.BoolFlag{
				Name: "metrics",
				Usage: `
				Serve prometheus metrics`,
				OnlyOnce: true,
			},

			&cli.StringFlag{
				Name: "metrics-addr",
				Usage: `
				Address the metrics endpoint listens on (default: 127.0.0.1:9393)`,
				OnlyOnce:  true,
				Validator: checkHostPort,
			},

			&cli.IntFlag{
				Name: "mtu",
				Usage: `
				Largest datagram the engine may produce (default: 1500)`,
				OnlyOnce:  true,
				Validator: intValidator(checkMTU),
			},

			&cli.StringFlag{
				Name: "only-plugin",
				Usage: `
				Load a single 'name,SCRAMBLE[,SCRAMBLE...]' hack applied to every packet,
				ignoring the manifest`,
				OnlyOnce:  true,
				Validator: checkOnlyPlugin,
			},

			&cli.StringFlag{
				Name: "option-config",
				Usage: `
				IP/TCP option usage file of 'index,usage' lines. Without it every option
				stays unassigned and MALFORMED is unavailable`,
				OnlyOnce: true,
			},

			&cli.StringFlag{
				Name: "packet-log-file",
				Usage: `
				Write per-packet traces to this file`,
				OnlyOnce: true,
			},

			&cli.IntFlag{
				Name: "queue-levels",
				Usage: `
				Number of priority levels of the packet queue (default: 5, min: 2, max: 16)`,
				OnlyOnce:  true,
				Validator: intValidator(checkQueueLevels),
			},

			&cli.StringFlag{
				Name: "session-log-file",
				Usage: `
				Write per-connection events to this file`,
				OnlyOnce: true,
			},

			&cli.BoolFlag{
				Name: "silent",
				Usage: `
				Do not show the banner and the configuration at start up`,
				OnlyOnce: true,
			},

			&cli.BoolFlag{
				Name: "strict-options",
				Usage: `
				Refuse to add options to headers carrying options this build does not know
				(default: true)`,
				OnlyOnce: true,
			},

			&cli.IntFlag{
				Name: "tun-mtu",
				Usage: `
				MTU of the tunnel device (default: 1500)`,
				OnlyOnce:  true,
				Validator: intValidator(checkMTU),
			},

			&cli.StringFlag{
				Name: "tun-name",
				Usage: `
				Name of the tunnel device (default: sniffjoke0)`,
				OnlyOnce:  true,
				Validator: checkIfaceName,
			},

			&cli.BoolFlag{
				Name: "version",
				Usage: `
				Print version; this may contain some other relevant information`,
				Aliases:  []string{"v"},
				OnlyOnce: true,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.Bool("version") {
				fmt.Printf("sniffjoke %s %s (%s)\n", version, commit, build)
				return nil
			}

			var tomlCfg *Config
			var configDir string
			if !cmd.Bool("clean") {
				c, err := locateConfig(cmd.String("config"), candidatePaths())
				if err != nil {
					return err
				}

				if c != "" {
					configDir = c
					tomlCfg, err = loadConfigFile(c)
					if err != nil {
						return fmt.Errorf("error parsing toml config: %w", err)
					}
				}
			}

			finalCfg := Default().Merge(tomlCfg).Merge(parseConfigFromArgs(cmd))

			return runFunc(ctx, strings.Replace(configDir, os.Getenv("HOME"), "~", 1), finalCfg)
		},
	}

	cli.HelpFlag = &cli.BoolFlag{
		Name:    "help",
		Aliases: []string{"h"},
		Usage: `
        show help`,
	}

	return cmd
}

func createHelpTemplate() string {
	return fmt.Sprintf(`DESCRIPTION:
  %s{{if .Copyright }}
COPYRIGHT:
  {{.Copyright}}{{end}}
USAGE:
  %s {{if .Flags}}%s{{end}}{{if .Commands}}
GLOBAL OPTIONS:
  {{range .VisibleFlags}}%s{{if .Aliases}}{{range .Aliases}}%s{{end}}{{end}} %s %s %s
	{{end}}{{end}}
	`,
		"{{.Name}} - {{.Description}}",
		"{{.Name}}",
		"[global options]",
		"--{{.Name}}",
		", -{{.}}",
		"{{.TypeName}}",
		"{{.Usage}}",
		"{{.DefaultText}}",
	)
}

// parseConfigFromArgs only carries the flags given explicitly so that they
// override the toml file and nothing else does.
func parseConfigFromArgs(cmd *cli.Command) *Config {
	cfg := &Config{
		General: &GeneralOptions{},
		Engine:  &EngineOptions{},
		Network: &NetworkOptions{},
		Metrics: &MetricsOptions{},
		Hops:    &HopsOptions{},
	}

	if cmd.IsSet("log-level") {
		cfg.General.LogLevel = ptr.Of(MustParseLogLevel(cmd.String("log-level")))
	}
	if cmd.IsSet("silent") {
		cfg.General.Silent = ptr.Of(cmd.Bool("silent"))
	}
	if cmd.IsSet("log-file") {
		cfg.General.LogFile = ptr.Of(cmd.String("log-file"))
	}
	if cmd.IsSet("session-log-file") {
		cfg.General.SessionLogFile = ptr.Of(cmd.String("session-log-file"))
	}
	if cmd.IsSet("packet-log-file") {
		cfg.General.PacketLogFile = ptr.Of(cmd.String("packet-log-file"))
	}

	if cmd.IsSet("queue-levels") {
		cfg.Engine.QueueLevels = ptr.Of(uint8(cmd.Int("queue-levels")))
	}
	if cmd.IsSet("mtu") {
		cfg.Engine.MTU = ptr.Of(uint16(cmd.Int("mtu")))
	}
	if cmd.IsSet("option-config") {
		cfg.Engine.OptionConfig = ptr.Of(cmd.String("option-config"))
	}
	if cmd.IsSet("enabler") {
		cfg.Engine.Enabler = ptr.Of(cmd.String("enabler"))
	}
	if cmd.IsSet("location") {
		cfg.Engine.Location = ptr.Of(cmd.String("location"))
	}
	if cmd.IsSet("only-plugin") {
		cfg.Engine.OnlyPlugin = ptr.Of(cmd.String("only-plugin"))
	}
	if cmd.IsSet("strict-options") {
		cfg.Engine.StrictOptions = ptr.Of(cmd.Bool("strict-options"))
	}
	if cmd.IsSet("active") {
		cfg.Engine.Active = ptr.Of(cmd.Bool("active"))
	}
	if cmd.IsSet("bypass") {
		cfg.Engine.Bypass = cmd.StringSlice("bypass")
	}

	if cmd.IsSet("tun-name") {
		cfg.Network.TunName = ptr.Of(cmd.String("tun-name"))
	}
	if cmd.IsSet("interface") {
		cfg.Network.Interface = ptr.Of(cmd.String("interface"))
	}
	if cmd.IsSet("tun-mtu") {
		cfg.Network.TunMTU = ptr.Of(uint16(cmd.Int("tun-mtu")))
	}
	if cmd.IsSet("gateway-mac") {
		cfg.Network.GatewayMAC = MustParseMAC(cmd.String("gateway-mac"))
	}
	if cmd.IsSet("gateway-ip") {
		cfg.Network.GatewayIP = ptr.Of(netip.MustParseAddr(cmd.String("gateway-ip")))
	}
	if cmd.IsSet("local-ip") {
		cfg.Network.LocalIP = ptr.Of(netip.MustParseAddr(cmd.String("local-ip")))
	}

	if cmd.IsSet("metrics") {
		cfg.Metrics.Enable = ptr.Of(cmd.Bool("metrics"))
	}
	if cmd.IsSet("metrics-addr") {
		cfg.Metrics.ListenAddr = ptr.Of(MustParseTCPAddr(cmd.String("metrics-addr")))
	}

	if cmd.IsSet("default-ttl") {
		cfg.Hops.DefaultTTL = ptr.Of(uint8(cmd.Int("default-ttl")))
	}
	if cmd.IsSet("hop-cache-ttl") {
		cfg.Hops.CacheTTL = ptr.Of(time.Duration(cmd.Int("hop-cache-ttl")) * time.Second)
	}

	return cfg
}
