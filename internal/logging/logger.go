package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// NewLogger builds the process-wide JSON logger. Source locations are
// included because conversation bugs tend to surface as a single odd
// log line long after the turn that caused them.
func NewLogger(level string) *slog.Logger {
	return NewLoggerTo(os.Stdout, level)
}

// NewLoggerTo is the writer-injectable variant used by tests.
func NewLoggerTo(w io.Writer, level string) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:     ParseLevel(level),
		AddSource: true,
	}))
}

// NewComponentLogger tags every record with the emitting binary so the
// webhook server and the sweeper can share one log stream.
func NewComponentLogger(level, component string) *slog.Logger {
	return NewLogger(level).With("component", component)
}

// ParseLevel maps a config string to a slog level, defaulting to info
// on anything unrecognized. "warning" is accepted as an alias because
// it keeps showing up in env files.
func ParseLevel(level string) slog.Level {
	s := strings.ToLower(strings.TrimSpace(level))
	if s == "warning" {
		s = "warn"
	}
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return l
}
