package plog

import (
	"fmt"
	"log/slog"
	"strings"
)

// Level is the informativeness of a log event. Error is the least verbose,
// Debug the most.
type Level int

const (
	LevelError Level = iota
	LevelInfo
	LevelDebug
)

// ParseLevel converts a configuration value ("Error", "Info", "Debug"; case-insensitive)
// into a Level.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "error":
		return LevelError, nil
	case "info":
		return LevelInfo, nil
	case "debug":
		return LevelDebug, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level %q (want Error, Info or Debug)", s)
	}
}

// String returns the configuration spelling of the level.
func (l Level) String() string {
	switch l {
	case LevelError:
		return "Error"
	case LevelInfo:
		return "Info"
	case LevelDebug:
		return "Debug"
	default:
		return fmt.Sprintf("Level(%d)", int(l))
	}
}

// code is the three letter prefix used in the log file.
func (l Level) code() string {
	switch l {
	case LevelError:
		return "ERR"
	case LevelInfo:
		return "INF"
	default:
		return "DBG"
	}
}

func (l Level) slogLevel() slog.Level {
	switch l {
	case LevelError:
		return slog.LevelError
	case LevelInfo:
		return slog.LevelInfo
	default:
		return slog.LevelDebug
	}
}

func levelFromSlog(l slog.Level) Level {
	switch {
	case l >= slog.LevelError:
		return LevelError
	case l >= slog.LevelInfo:
		return LevelInfo
	default:
		return LevelDebug
	}
}
