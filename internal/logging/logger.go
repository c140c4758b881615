package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger is a zerolog-backed structured logger. Children scoped by
// subsystem, correlation ID, or session ID are derived with Sub,
// WithCorrelation, and WithSession.
type Logger struct {
	zl zerolog.Logger
}

// New builds the root logger emitting one JSON object per line on w.
// A nil writer selects zerolog's console writer on stderr, which is
// what interactive runs want.
func New(w io.Writer, level string) *Logger {
	if w == nil {
		w = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	}
	zl := zerolog.New(w).With().Timestamp().Logger()
	zl = zl.Level(parseLevel(level))
	return &Logger{zl: zl}
}

// Sub derives a child tagged subsystem=name. Nested calls re-tag; the
// innermost name wins.
func (l *Logger) Sub(subsystem string) *Logger {
	return &Logger{zl: l.zl.With().Str("subsystem", subsystem).Logger()}
}

// WithCorrelation returns a child logger tagged with a request correlation ID.
// Internal failure detail is logged under this ID and never echoed to callers.
func (l *Logger) WithCorrelation(id string) *Logger {
	return &Logger{zl: l.zl.With().Str("correlation_id", id).Logger()}
}

// WithSession returns a child logger tagged with a conversation session ID.
func (l *Logger) WithSession(id string) *Logger {
	return &Logger{zl: l.zl.With().Str("session_id", id).Logger()}
}

// Level entry points delegate straight to zerolog; callers finish the
// event with zerolog's fluent API.
func (l *Logger) Debug() *zerolog.Event { return l.zl.Debug() }
func (l *Logger) Info() *zerolog.Event  { return l.zl.Info() }
func (l *Logger) Warn() *zerolog.Event  { return l.zl.Warn() }
func (l *Logger) Error() *zerolog.Event { return l.zl.Error() }
func (l *Logger) Fatal() *zerolog.Event { return l.zl.Fatal() }

// Zerolog hands back the wrapped logger for code that needs the full
// zerolog API.
func (l *Logger) Zerolog() zerolog.Logger { return l.zl }

var levelNames = map[string]zerolog.Level{
	"trace":  zerolog.TraceLevel,
	"debug":  zerolog.DebugLevel,
	"info":   zerolog.InfoLevel,
	"warn":   zerolog.WarnLevel,
	"error":  zerolog.ErrorLevel,
	"fatal":  zerolog.FatalLevel,
	"silent": zerolog.Disabled,
}

// parseLevel treats unrecognized names, including mixed-case spellings,
// as info.
func parseLevel(s string) zerolog.Level {
	if lv, ok := levelNames[s]; ok {
		return lv
	}
	return zerolog.InfoLevel
}
