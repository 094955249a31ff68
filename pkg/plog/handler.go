package plog

import (
	"context"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// indentKey carries the nesting depth of a record. It is consumed by the
// handler and never rendered as an attribute.
const indentKey = "plog.indent"

// output is the sink state shared by every Logger derived from the same New call.
type output struct {
	level   slog.LevelVar
	console io.Writer
	styles  map[Level]lipgloss.Style

	file     io.WriteCloser
	filePath string
}

func newOutput(console io.Writer) *output {
	r := lipgloss.NewRenderer(console)
	return &output{
		console: console,
		styles: map[Level]lipgloss.Style{
			LevelError: r.NewStyle().Foreground(lipgloss.Color("1")),
			LevelInfo:  r.NewStyle().Foreground(lipgloss.Color("7")),
			LevelDebug: r.NewStyle().Foreground(lipgloss.Color("8")),
		},
	}
}

func (o *output) writeConsole(level Level, line string) {
	_, _ = io.WriteString(o.console, o.styles[level].Render(line)+"\n")
}

// writeFile appends line to the log file. A failed write disables the file
// for the rest of the run and reports the loss on the console only.
func (o *output) writeFile(level Level, line string) {
	if o.file == nil {
		return
	}
	if _, err := io.WriteString(o.file, level.code()+"\t"+line+"\n"); err != nil {
		path := o.filePath
		o.detach()
		var b strings.Builder
		b.WriteString("Lost access to log file, logging to console only")
		appendAttr(&b, "", slog.String("path", path))
		appendAttr(&b, "", slog.Any("error", err))
		o.writeConsole(LevelError, b.String())
	}
}

func (o *output) attach(f io.WriteCloser, path string) {
	o.detach()
	o.file = f
	o.filePath = path
}

func (o *output) detach() error {
	if o.file == nil {
		return nil
	}
	err := o.file.Close()
	o.file = nil
	o.filePath = ""
	return err
}

// teeHandler is a slog.Handler that renders a record once and writes it to the
// console and, while it is healthy, to the attached log file.
type teeHandler struct {
	out    *output
	attrs  []slog.Attr
	prefix string
}

// Enabled reports whether level passes the configured verbosity threshold.
func (h *teeHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.out.level.Level()
}

// Handle renders the record as "<indent><message> key=value ..." and writes it.
func (h *teeHandler) Handle(_ context.Context, r slog.Record) error {
	indent := 0
	var b strings.Builder
	b.WriteString(r.Message)

	// Keys in h.attrs already carry the group prefix they were added under.
	for _, a := range h.attrs {
		appendAttr(&b, "", a)
	}
	r.Attrs(func(a slog.Attr) bool {
		if a.Key == indentKey {
			indent = int(a.Value.Int64())
			return true
		}
		appendAttr(&b, h.prefix, a)
		return true
	})

	if indent < 0 {
		indent = 0
	}
	line := strings.Repeat(" ", indent*2) + b.String()
	level := levelFromSlog(r.Level)

	h.out.writeConsole(level, line)
	h.out.writeFile(level, line)
	return nil
}

// WithAttrs returns a new teeHandler with the given attributes added.
func (h *teeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	for _, a := range attrs {
		if h.prefix != "" {
			a.Key = h.prefix + a.Key
		}
		merged = append(merged, a)
	}
	return &teeHandler{out: h.out, attrs: merged, prefix: h.prefix}
}

// WithGroup returns a new teeHandler that qualifies later attribute keys with name.
func (h *teeHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &teeHandler{out: h.out, attrs: h.attrs, prefix: h.prefix + name + "."}
}

func appendAttr(b *strings.Builder, prefix string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	if a.Value.Kind() == slog.KindGroup {
		groupPrefix := prefix
		if a.Key != "" {
			groupPrefix += a.Key + "."
		}
		for _, ga := range a.Value.Group() {
			appendAttr(b, groupPrefix, ga)
		}
		return
	}
	b.WriteByte(' ')
	b.WriteString(prefix)
	b.WriteString(a.Key)
	b.WriteByte('=')
	b.WriteString(quoteIfNeeded(a.Value.String()))
}

func quoteIfNeeded(s string) string {
	if s == "" || strings.ContainsAny(s, " =\"\t\n") {
		return strconv.Quote(s)
	}
	return s
}

var _ slog.Handler = (*teeHandler)(nil)

