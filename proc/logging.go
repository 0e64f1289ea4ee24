// logging.go - structured logging for the process core.
//
// Mirrors the teacher package's own logging.go: a small package-level
// Logger abstraction so the core has no hard dependency on a specific
// backend, wired by default to a concrete implementation (here,
// github.com/rs/zerolog, the same backend the teacher's own
// logiface-zerolog sibling module wires behind the identical kind of
// seam).
package proc

import (
	"os"
	"sync"

	"github.com/rs/zerolog"
)

// LogLevel mirrors the teacher's LogLevel gate, trimmed to what the core
// actually emits.
type LogLevel int32

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
)

// Logger is the structured-logging seam every kernel event is written
// through. Fields are always a flat map so any backend (zerolog, logrus,
// slog, a test spy) can render them without reflection.
type Logger interface {
	Log(level LogLevel, msg string, fields map[string]any)
}

// noopLogger discards everything; getGlobalLogger falls back to it when the
// package-wide logger has been set to nil, so the core never has to
// nil-check.
type noopLogger struct{}

func (noopLogger) Log(LogLevel, string, map[string]any) {}

// NewNoOpLogger returns a Logger that discards all records.
func NewNoOpLogger() Logger { return noopLogger{} }

// zerologLogger adapts Logger onto a zerolog.Logger.
type zerologLogger struct {
	z zerolog.Logger
}

// NewZerologLogger wraps z as a Logger.
func NewZerologLogger(z zerolog.Logger) Logger {
	return &zerologLogger{z: z}
}

func (l *zerologLogger) Log(level LogLevel, msg string, fields map[string]any) {
	var ev *zerolog.Event
	switch level {
	case LevelDebug:
		ev = l.z.Debug()
	case LevelWarn:
		ev = l.z.Warn()
	case LevelError:
		ev = l.z.Error()
	default:
		ev = l.z.Info()
	}
	for k, v := range fields {
		ev = ev.Interface(k, v)
	}
	ev.Msg(msg)
}

var globalLogger struct {
	sync.RWMutex
	logger Logger
}

func init() {
	globalLogger.logger = NewZerologLogger(zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, NoColor: true}).With().Timestamp().Logger())
}

// SetStructuredLogger installs the package-wide default logger used by any
// [Kernel] created with no explicit [WithLogger] option.
func SetStructuredLogger(l Logger) {
	globalLogger.Lock()
	defer globalLogger.Unlock()
	globalLogger.logger = l
}

func getGlobalLogger() Logger {
	globalLogger.RLock()
	defer globalLogger.RUnlock()
	if globalLogger.logger != nil {
		return globalLogger.logger
	}
	return NewNoOpLogger()
}
