package log

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	// "goroutine 123 [running]:" fits comfortably.
	stackBufSize       = 32
	goroutinePrefixLen = len("goroutine ")

	FormatConsole = "console"
	FormatJSON    = "json"
)

var (
	Logger    zerolog.Logger
	stackPool = sync.Pool{New: func() interface{} { return make([]byte, stackBufSize) }}
)

// goroutineID extracts the current goroutine ID from the first stack line.
func goroutineID() string {
	buf, ok := stackPool.Get().([]byte)
	if !ok {
		return "unknown"
	}
	defer stackPool.Put(buf) //nolint:staticcheck // buf is a slice, this is the correct usage

	n := runtime.Stack(buf, false)
	idx := goroutinePrefixLen
	start := idx
	for idx < n && buf[idx] >= '0' && buf[idx] <= '9' {
		idx++
	}
	if idx == start {
		return "unknown"
	}
	return string(buf[start:idx])
}

func goroutineHook() zerolog.Hook {
	return zerolog.HookFunc(func(e *zerolog.Event, level zerolog.Level, msg string) {
		e.Str("goid", goroutineID())
	})
}

func newLogger(out io.Writer, level zerolog.Level) zerolog.Logger {
	return zerolog.New(out).
		Level(level).
		With().
		Timestamp().
		Logger().
		Hook(goroutineHook())
}

func consoleWriter(out io.Writer) io.Writer {
	return zerolog.ConsoleWriter{
		Out:        out,
		TimeFormat: "15:04:05",
	}
}

func init() {
	Logger = newLogger(consoleWriter(os.Stderr), zerolog.InfoLevel)
	log.Logger = Logger
}

// Configure replaces the global logger according to the level name
// (debug, info, warn, error) and output format (console or json).
func Configure(level, format string) error {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	if lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	var out io.Writer
	switch strings.ToLower(format) {
	case "", FormatConsole:
		out = consoleWriter(os.Stderr)
	case FormatJSON:
		out = os.Stderr
	default:
		return fmt.Errorf("invalid log format %q", format)
	}

	Logger = newLogger(out, lvl)
	log.Logger = Logger
	return nil
}

// Info logs an info message with goroutine ID.
func Info() *zerolog.Event {
	return Logger.Info()
}

// Error logs an error message with goroutine ID.
func Error() *zerolog.Event {
	return Logger.Error()
}

// Warn logs a warning message with goroutine ID.
func Warn() *zerolog.Event {
	return Logger.Warn()
}

// Debug logs a debug message with goroutine ID.
func Debug() *zerolog.Event {
	return Logger.Debug()
}

// Fatal logs a fatal message with goroutine ID and exits.
func Fatal() *zerolog.Event {
	return Logger.Fatal()
}

// SetDebugMode switches the logger to debug level.
func SetDebugMode() {
	Logger = Logger.Level(zerolog.DebugLevel)
	log.Logger = Logger
}
