// Package xlog provides the structured logger used across blabber's
// engine, driver, and CLI.
package xlog

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// Level mirrors zerolog's level vocabulary under names that read the same
// whether the caller is in internal/engine or cmd/blabberctl.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// ParseLevel parses a level name, defaulting to LevelInfo on anything
// unrecognized.
func ParseLevel(s string) Level {
	switch s {
	case "debug":
		return LevelDebug
	case "warn":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

func (l Level) zerolog() zerolog.Level {
	switch l {
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelWarn:
		return zerolog.WarnLevel
	case LevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Config configures a Logger.
type Config struct {
	Level  string // debug, info, warn, error
	Pretty bool   // human-readable console output instead of JSON
	Output io.Writer
}

// Logger is a structured logger wrapping zerolog.Logger with the
// Debug/Info/Warn/Error/With vocabulary the rest of blabber is built
// against. The zero value of Logger is a valid, silent logger, so engine
// and driver Options never need a special case for "no logger configured".
type Logger struct {
	z *zerolog.Logger
}

// New builds a Logger from cfg.
func New(cfg Config) Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if cfg.Pretty {
		out = zerolog.ConsoleWriter{Out: out}
	}

	z := zerolog.New(out).Level(ParseLevel(cfg.Level).zerolog()).With().Timestamp().Logger()
	return Logger{z: &z}
}

// Nop returns a Logger that discards everything. Equivalent to the zero
// value Logger{}.
func Nop() Logger {
	return Logger{}
}

// With returns a derived Logger carrying the given key-value fields on
// every subsequent entry.
func (l Logger) With(kv ...any) Logger {
	if l.z == nil {
		return l
	}
	ctx := l.z.With()
	for i := 0; i+1 < len(kv); i += 2 {
		key, _ := kv[i].(string)
		ctx = ctx.Interface(key, kv[i+1])
	}
	z := ctx.Logger()
	return Logger{z: &z}
}

func (l Logger) Debug(msg string, kv ...any) {
	if l.z == nil {
		return
	}
	logEvent(l.z.Debug(), msg, kv)
}

func (l Logger) Info(msg string, kv ...any) {
	if l.z == nil {
		return
	}
	logEvent(l.z.Info(), msg, kv)
}

func (l Logger) Warn(msg string, kv ...any) {
	if l.z == nil {
		return
	}
	logEvent(l.z.Warn(), msg, kv)
}

func (l Logger) Error(msg string, kv ...any) {
	if l.z == nil {
		return
	}
	logEvent(l.z.Error(), msg, kv)
}

func logEvent(e *zerolog.Event, msg string, kv []any) {
	for i := 0; i+1 < len(kv); i += 2 {
		key, _ := kv[i].(string)
		e = e.Interface(key, kv[i+1])
	}
	e.Msg(msg)
}
