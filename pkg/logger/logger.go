package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Logger represents a structured logger taking alternating key/value pairs
type Logger interface {
	Debug(msg string, keyvals ...interface{})
	Info(msg string, keyvals ...interface{})
	Warn(msg string, keyvals ...interface{})
	Error(msg string, keyvals ...interface{})
	With(keyvals ...interface{}) Logger
}

type zeroLogger struct {
	zl zerolog.Logger
}

// Options configures a logger
type Options struct {
	Level  string
	Pretty bool
	Output io.Writer
}

// NewLogger creates a JSON logger writing to stdout at the given level
func NewLogger(level string) Logger {
	return New(Options{Level: level})
}

// New creates a logger from options
func New(opts Options) Logger {
	out := opts.Output

	if out == nil {
		out = os.Stdout
	}

	if opts.Pretty {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	zl := zerolog.New(out).
		Level(parseLevel(opts.Level)).
		With().
		Timestamp().
		Logger()

	return &zeroLogger{zl: zl}
}

// NewNop returns a logger that discards everything
func NewNop() Logger {
	return &zeroLogger{zl: zerolog.Nop()}
}

func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func (l *zeroLogger) Debug(msg string, keyvals ...interface{}) {
	withFields(l.zl.Debug(), keyvals).Msg(msg)
}

func (l *zeroLogger) Info(msg string, keyvals ...interface{}) {
	withFields(l.zl.Info(), keyvals).Msg(msg)
}

func (l *zeroLogger) Warn(msg string, keyvals ...interface{}) {
	withFields(l.zl.Warn(), keyvals).Msg(msg)
}

func (l *zeroLogger) Error(msg string, keyvals ...interface{}) {
	withFields(l.zl.Error(), keyvals).Msg(msg)
}

// With returns a child logger that always carries the given fields
func (l *zeroLogger) With(keyvals ...interface{}) Logger {
	ctx := l.zl.With()

	for i := 0; i < len(keyvals); i += 2 {
		key := fieldKey(keyvals[i])

		if i+1 < len(keyvals) {
			ctx = ctx.Interface(key, fieldValue(keyvals[i+1]))
		} else {
			ctx = ctx.Str(key, "missing")
		}
	}

	return &zeroLogger{zl: ctx.Logger()}
}

func withFields(e *zerolog.Event, keyvals []interface{}) *zerolog.Event {
	for i := 0; i < len(keyvals); i += 2 {
		key := fieldKey(keyvals[i])

		if i+1 >= len(keyvals) {
			e = e.Str(key, "missing")
			break
		}

		switch v := keyvals[i+1].(type) {
		case error:
			e = e.AnErr(key, v)
		case string:
			e = e.Str(key, v)
		case time.Duration:
			e = e.Dur(key, v)
		case fmt.Stringer:
			e = e.Stringer(key, v)
		default:
			e = e.Interface(key, v)
		}
	}

	return e
}

func fieldKey(k interface{}) string {
	if s, ok := k.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", k)
}

func fieldValue(v interface{}) interface{} {
	if err, ok := v.(error); ok {
		return err.Error()
	}
	return v
}
