package logging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/holdensmagicalunicorn/sniffjoke/internal/session"
)

const (
	scopeFieldName      = "scope"
	localScopeFieldName = "local_scope"
	cycleIDFieldName    = "cycle_id"
	flowFieldName       = "flow"
)

// Rotation bounds the size of every log file.
type Rotation struct {
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

var defaultRotation = Rotation{MaxSizeMB: 50, MaxBackups: 3, MaxAgeDays: 28}

type Attrs struct {
	Level zerolog.Level
	// Silent disables console output. File output is unaffected.
	Silent bool

	File        string
	SessionFile string
	PacketFile  string
	Rotation    *Rotation

	// Console overrides os.Stdout; tests use it.
	Console io.Writer
}

// Streams are the three log streams of the process. Session and Packet
// write to their own file when one is configured and to Main otherwise.
type Streams struct {
	Main    zerolog.Logger
	Session zerolog.Logger
	Packet  zerolog.Logger

	closers []io.Closer
}

// Setup builds the log streams and installs Main as the global logger.
func Setup(ctx context.Context, attrs Attrs) *Streams {
	zerolog.SetGlobalLevel(attrs.Level)

	rot := defaultRotation
	if attrs.Rotation != nil {
		rot = *attrs.Rotation
	}

	s := &Streams{}

	var writers []io.Writer
	if !attrs.Silent {
		out := attrs.Console
		if out == nil {
			out = os.Stdout
		}
		writers = append(writers, newConsoleWriter(out))
	}
	if attrs.File != "" {
		writers = append(writers, s.fileWriter(attrs.File, rot))
	}

	var main zerolog.Logger
	switch len(writers) {
	case 0:
		main = zerolog.Nop()
	case 1:
		main = zerolog.New(writers[0])
	default:
		main = zerolog.New(zerolog.MultiLevelWriter(writers...))
	}
	s.Main = main.Hook(ctxHook{}).With().Timestamp().Ctx(ctx).Logger()

	s.Session = s.stream(s.Main, "SESSION", attrs.SessionFile, rot)
	s.Packet = s.stream(s.Main, "PACKET", attrs.PacketFile, rot)

	log.Logger = s.Main

	return s
}

func (s *Streams) stream(main zerolog.Logger, scope, path string, rot Rotation) zerolog.Logger {
	if path == "" {
		return WithScope(main, scope)
	}

	l := zerolog.New(s.fileWriter(path, rot)).Hook(ctxHook{})
	return l.With().Timestamp().Str(scopeFieldName, scope).Logger()
}

func (s *Streams) fileWriter(path string, rot Rotation) io.Writer {
	w := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    rot.MaxSizeMB,
		MaxBackups: rot.MaxBackups,
		MaxAge:     rot.MaxAgeDays,
		Compress:   rot.Compress,
	}
	s.closers = append(s.closers, w)

	return w
}

// Close flushes and closes every log file.
func (s *Streams) Close() error {
	var errs []error
	for _, c := range s.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil

	return errors.Join(errs...)
}

func newConsoleWriter(out io.Writer) zerolog.ConsoleWriter {
	return zerolog.ConsoleWriter{
		Out:        out,
		TimeFormat: time.RFC3339,
		// FormatPrepare renders the custom parts as [SCOPE], cycle id and
		// "info;" fragments before printing.
		FormatPrepare: func(m map[string]any) error {
			if v, ok := m[cycleIDFieldName].(string); !ok || v == "" {
				m[cycleIDFieldName] = ""
			}

			if v, ok := m[scopeFieldName].(string); ok && v != "" {
				m[scopeFieldName] = fmt.Sprintf("[%s]", v)
			} else {
				m[scopeFieldName] = "[main]"
			}

			for _, k := range []string{localScopeFieldName, flowFieldName, zerolog.MessageFieldName} {
				if v, ok := m[k].(string); ok && v != "" {
					m[k] = v + ";"
				} else {
					m[k] = ""
				}
			}

			return nil
		},
		FieldsExclude: []string{
			cycleIDFieldName,
			scopeFieldName,
			flowFieldName,
			localScopeFieldName,
		},
		PartsOrder: []string{
			zerolog.LevelFieldName,
			zerolog.TimestampFieldName,
			cycleIDFieldName,
			scopeFieldName,
			flowFieldName,
			localScopeFieldName,
			zerolog.MessageFieldName,
		},
	}
}

// WithScope names the component a sub-logger belongs to.
func WithScope(logger zerolog.Logger, scope string) zerolog.Logger {
	return logger.With().Str(scopeFieldName, scope).Logger()
}

func WithLocalScope(
	ctx context.Context,
	logger zerolog.Logger,
	localScope string,
) zerolog.Logger {
	return logger.With().Ctx(ctx).Str(localScopeFieldName, localScope).Logger()
}

// ctxHook copies the cycle id and flow of the context attached with
// .Ctx(ctx) into every event.
type ctxHook struct{}

func (h ctxHook) Run(e *zerolog.Event, level zerolog.Level, msg string) {
	ctx := e.GetCtx()
	if ctx == nil {
		return
	}

	if id, ok := session.CycleIDFrom(ctx); ok {
		e.Str(cycleIDFieldName, id)
	}

	if k, ok := session.FlowFrom(ctx); ok {
		e.Stringer(flowFieldName, k)
	}
}

type joinableError interface {
	Unwrap() []error
}

// ErrorUnwrapped logs each error of a joined error separately.
func ErrorUnwrapped(logger *zerolog.Logger, msg string, err error) {
	logUnwrapped(logger, zerolog.ErrorLevel, msg, err)
}

func WarnUnwrapped(logger *zerolog.Logger, msg string, err error) {
	logUnwrapped(logger, zerolog.WarnLevel, msg, err)
}

func logUnwrapped(logger *zerolog.Logger, level zerolog.Level, msg string, err error) {
	var joinedErrs joinableError

	if errors.As(err, &joinedErrs) {
		for _, e := range joinedErrs.Unwrap() {
			logger.WithLevel(level).Err(e).Msg(msg)
		}

		return
	}

	logger.WithLevel(level).Err(err).Msg(msg)
}
