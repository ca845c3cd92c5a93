package logging

import (
	"bytes"
	"context"
	"errors"
	"net/netip"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holdensmagicalunicorn/sniffjoke/internal/session"
)

func TestSetup_Console(t *testing.T) {
	var buf bytes.Buffer
	s := Setup(context.Background(), Attrs{Level: zerolog.DebugLevel, Console: &buf})
	defer func() { _ = s.Close() }()

	ctx := session.WithFlow(session.WithCycleID(context.Background()), session.Key{
		Src: netip.MustParseAddrPort("10.0.0.2:40000"),
		Dst: netip.MustParseAddrPort("93.184.216.34:80"),
	})
	logger := WithLocalScope(ctx, WithScope(s.Main, "QUEUE"), "insert")
	logger.Info().Msg("hello")
	s.Session.Info().Msg("from session")

	out := buf.String()
	assert.Contains(t, out, "[QUEUE]")
	assert.Contains(t, out, "insert;")
	assert.Contains(t, out, "10.0.0.2:40000>93.184.216.34:80;")
	assert.Contains(t, out, "hello;")
	assert.Contains(t, out, "[SESSION]")
}

func TestSetup_Files(t *testing.T) {
	dir := t.TempDir()
	attrs := Attrs{
		Level:       zerolog.InfoLevel,
		Silent:      true,
		File:        filepath.Join(dir, "main.log"),
		PacketFile:  filepath.Join(dir, "packet.log"),
		SessionFile: filepath.Join(dir, "session.log"),
	}

	s := Setup(context.Background(), attrs)
	s.Main.Info().Msg("main event")
	s.Packet.Info().Msg("packet event")
	s.Session.Info().Msg("session event")
	require.NoError(t, s.Close())

	read := func(name string) string {
		b, err := os.ReadFile(filepath.Join(dir, name))
		require.NoError(t, err)
		return string(b)
	}

	assert.Contains(t, read("main.log"), "main event")
	assert.NotContains(t, read("main.log"), "packet event")
	assert.Contains(t, read("packet.log"), `"scope":"PACKET"`)
	assert.Contains(t, read("session.log"), "session event")
}

func TestErrorUnwrapped(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	ErrorUnwrapped(&logger, "teardown", errors.Join(errors.New("first"), errors.New("second")))
	WarnUnwrapped(&logger, "single", errors.New("third"))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "first")
	assert.Contains(t, lines[1], "second")
	assert.Contains(t, lines[2], `"level":"warn"`)
}
