package main

import (
	"fmt"

	"github.com/pterm/pterm"
	"github.com/pterm/pterm/putils"

	"github.com/holdensmagicalunicorn/sniffjoke/internal/config"
	"github.com/holdensmagicalunicorn/sniffjoke/internal/ptr"
	"github.com/holdensmagicalunicorn/sniffjoke/version"
)

func printBanner(configDir string, cfg *config.Config) {
	cyan := putils.LettersFromStringWithStyle("Sniff", pterm.NewStyle(pterm.FgCyan))
	purple := putils.LettersFromStringWithStyle("Joke", pterm.NewStyle(pterm.FgLightMagenta))
	_ = pterm.DefaultBigText.WithLetters(cyan, purple).Render()

	_ = pterm.DefaultBulletList.WithItems(bannerItems(configDir, cfg)).Render()

	pterm.DefaultBasicText.Println("Press 'CTRL + c' to quit")
}

func bannerItems(configDir string, cfg *config.Config) []pterm.BulletListItem {
	if configDir == "" {
		configDir = "(none)"
	}

	manifest := cfg.ManifestPath()
	if p := ptr.Deref(cfg.Engine.OnlyPlugin); p != "" {
		manifest = "only " + p
	}

	options := ptr.Deref(cfg.Engine.OptionConfig)
	if cfg.Testing() {
		options = "(testing mode)"
	}

	iface := ptr.Deref(cfg.Network.Interface)
	if iface == "" {
		iface = "(detect)"
	}

	return []pterm.BulletListItem{
		{Level: 0, Text: "VERSION   : " + version.Version},
		{Level: 0, Text: "CONFIG    : " + configDir},
		{Level: 0, Text: "HACKS     : " + manifest},
		{Level: 0, Text: "OPTIONS   : " + options},
		{Level: 0, Text: "TUN       : " + ptr.Deref(cfg.Network.TunName)},
		{Level: 0, Text: "INTERFACE : " + iface},
		{Level: 0, Text: "LEVELS    : " + fmt.Sprint(ptr.Deref(cfg.Engine.QueueLevels))},
		{Level: 0, Text: "ACTIVE    : " + fmt.Sprint(ptr.Deref(cfg.Engine.Active))},
		{Level: 0, Text: "BYPASS    : " + fmt.Sprint(len(cfg.Engine.Bypass), " rules")},
		{Level: 0, Text: "LOG LEVEL : " + ptr.Deref(cfg.General.LogLevel).String()},
	}
}
