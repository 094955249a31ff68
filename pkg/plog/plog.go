// Package plog is the leveled, indentation-aware logger of a backup run.
//
// A Logger always writes to the console and, after a successful Attach, writes a
// second copy of every record to a log file. Losing the log file mid-run never
// stops the caller: the file is dropped, one error is reported on the console,
// and logging continues console-only.
//
// A Logger is not safe for concurrent use.
package plog

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/paulschiretz/pgl-treebackup/pkg/util"
)

// Logger writes records through a teeHandler. Loggers returned by Indent
// share their sinks and verbosity with the Logger they were derived from.
type Logger struct {
	h      *teeHandler
	indent int
}

// New creates a console-only Logger that emits records up to the given verbosity.
func New(console io.Writer, level Level) *Logger {
	out := newOutput(console)
	out.level.Set(level.slogLevel())
	return &Logger{h: &teeHandler{out: out}}
}

// SetLevel changes the verbosity threshold for this Logger and every Logger sharing its sinks.
func (l *Logger) SetLevel(level Level) {
	l.h.out.level.Set(level.slogLevel())
}

// Indent returns a Logger that renders its records n levels deep. Negative
// values are treated as zero.
func (l *Logger) Indent(n int) *Logger {
	if n < 0 {
		n = 0
	}
	return &Logger{h: l.h, indent: n}
}

// Attach opens path in append mode and mirrors all further records into it.
// On failure the error is logged to the console and returned; the Logger keeps
// working console-only.
func (l *Logger) Attach(path string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, util.UserWritableFilePerms)
	if err != nil {
		l.Error("Could not create run log, logging to console only", "path", path, "error", err)
		return fmt.Errorf("could not open log file %s: %w", path, err)
	}
	l.attachWriter(f, path)
	l.Debug("Run log created", "path", path)
	return nil
}

func (l *Logger) attachWriter(w io.WriteCloser, path string) {
	l.h.out.attach(w, path)
}

// FileEnabled reports whether records are currently mirrored into a log file.
func (l *Logger) FileEnabled() bool {
	return l.h.out.file != nil
}

// Close detaches and closes the log file, if any.
func (l *Logger) Close() error {
	return l.h.out.detach()
}

// Print emits msg at level with an explicit nesting depth.
func (l *Logger) Print(msg string, level Level, indent int, args ...any) {
	l.log(level, indent, msg, args)
}

// Debug logs a diagnostic message.
func (l *Logger) Debug(msg string, args ...any) {
	l.log(LevelDebug, l.indent, msg, args)
}

// Info logs a progress message.
func (l *Logger) Info(msg string, args ...any) {
	l.log(LevelInfo, l.indent, msg, args)
}

// Error logs a failure.
func (l *Logger) Error(msg string, args ...any) {
	l.log(LevelError, l.indent, msg, args)
}

func (l *Logger) log(level Level, indent int, msg string, args []any) {
	ctx := context.Background()
	if !l.h.Enabled(ctx, level.slogLevel()) {
		return
	}
	r := slog.NewRecord(time.Now(), level.slogLevel(), msg, 0)
	r.AddAttrs(slog.Int(indentKey, indent))
	r.Add(args...)
	_ = l.h.Handle(ctx, r)
}
