// Package logger is the process-wide leveled logger.
//
// Call sites use printf-style helpers (Debug, Info, Warn, Error). Output is
// produced by zerolog, either as human-readable console lines ("text") or as
// one JSON object per line ("json").
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

var (
	mu      sync.RWMutex
	current = newLogger(os.Stdout, "text")
)

func init() {
	SetLevel("INFO")
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
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

// ParseLevel converts a case-insensitive level name. Unknown names map to INFO.
func ParseLevel(level string) Level {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return LevelDebug
	case "WARN":
		return LevelWarn
	case "ERROR":
		return LevelError
	default:
		return LevelInfo
	}
}

func newLogger(out io.Writer, format string) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339
	if format != "json" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: "2006-01-02 15:04:05"}
	}
	return zerolog.New(out).With().Timestamp().Logger()
}

// SetLevel sets the minimum level that is written.
func SetLevel(level string) {
	zerolog.SetGlobalLevel(ParseLevel(level).zerolog())
}

// Configure sets level, format (text or json) and output (stdout, stderr or a
// file path). The returned closer releases the file when one was opened.
func Configure(level, format, output string) (io.Closer, error) {
	var (
		out    io.Writer = os.Stdout
		closer io.Closer = nopCloser{}
	)

	switch strings.ToLower(output) {
	case "", "stdout":
	case "stderr":
		out = os.Stderr
	default:
		f, err := os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file %q: %w", output, err)
		}
		out = f
		closer = f
	}

	mu.Lock()
	current = newLogger(out, strings.ToLower(format))
	mu.Unlock()

	SetLevel(level)
	return closer, nil
}

// With returns a structured logger tagged with a component name.
func With(component string) zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return current.With().Str("component", component).Logger()
}

func log(level Level, format string, v ...any) {
	mu.RLock()
	l := current
	mu.RUnlock()

	l.WithLevel(level.zerolog()).Msg(fmt.Sprintf(format, v...))
}

func Debug(format string, v ...any) {
	log(LevelDebug, format, v...)
}

func Info(format string, v ...any) {
	log(LevelInfo, format, v...)
}

func Warn(format string, v ...any) {
	log(LevelWarn, format, v...)
}

func Error(format string, v ...any) {
	log(LevelError, format, v...)
}
