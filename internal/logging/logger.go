package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"opsconsole/internal/config"
)

const (
	ansiReset  = "\x1b[0m"
	ansiBlue   = "\x1b[34m"
	ansiYellow = "\x1b[33m"
	ansiRed    = "\x1b[31m"
	ansiGray   = "\x1b[90m"
)

var levelNames = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

// New builds a logger for configured sinks and returns a cleanup function.
// Params: cfg contains console/file sink settings.
// Returns: slog logger, cleanup callback, and setup error.
func New(cfg config.LogConfig) (*slog.Logger, func(), error) {
	var (
		handlers multiHandler
		closers  []io.Closer
	)

	if cfg.Console.Enabled {
		handler, err := newSinkHandler(cfg.Console, consoleWriter(cfg.Console.Format), true)
		if err != nil {
			return nil, nil, fmt.Errorf("build console handler: %w", err)
		}
		handlers = append(handlers, handler)
	}

	if cfg.File.Enabled {
		file, err := os.OpenFile(cfg.File.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file %q: %w", cfg.File.Path, err)
		}
		handler, err := newSinkHandler(cfg.File, file, false)
		if err != nil {
			_ = file.Close()
			return nil, nil, fmt.Errorf("build file handler: %w", err)
		}
		handlers = append(handlers, handler)
		closers = append(closers, file)
	}

	if len(handlers) == 0 {
		return nil, nil, fmt.Errorf("no log sinks enabled")
	}

	closeFn := func() {
		for _, closer := range closers {
			_ = closer.Close()
		}
	}

	if len(handlers) == 1 {
		return slog.New(handlers[0]), closeFn, nil
	}
	return slog.New(handlers), closeFn, nil
}

// consoleWriter picks the stdout writer for the console format.
// Params: sink format name.
// Returns: tinting writer for line output, plain stdout otherwise.
func consoleWriter(format string) io.Writer {
	if format == "line" {
		return &levelTintWriter{dst: os.Stdout}
	}
	return os.Stdout
}

// newSinkHandler builds one slog handler for a sink.
// Params: sink config, destination writer, and whether timestamps are dropped.
// Returns: configured handler or error.
//
// Console lines drop the time attribute; the terminal session provides it.
func newSinkHandler(sink config.LogSinkConfig, dst io.Writer, dropTime bool) (slog.Handler, error) {
	level, err := parseLevel(sink.Level)
	if err != nil {
		return nil, err
	}

	opts := &slog.HandlerOptions{Level: level}
	if dropTime {
		opts.ReplaceAttr = func(_ []string, attr slog.Attr) slog.Attr {
			if attr.Key == slog.TimeKey {
				return slog.Attr{}
			}
			return attr
		}
	}

	switch sink.Format {
	case "line":
		return slog.NewTextHandler(dst, opts), nil
	case "json":
		return slog.NewJSONHandler(dst, opts), nil
	default:
		return nil, fmt.Errorf("unsupported log format %q", sink.Format)
	}
}

// parseLevel converts a configured level name into slog.Level.
// Params: value is the lower-case level name.
// Returns: slog level or error.
func parseLevel(value string) (slog.Level, error) {
	level, ok := levelNames[strings.TrimSpace(strings.ToLower(value))]
	if !ok {
		return slog.LevelInfo, fmt.Errorf("unsupported level %q", value)
	}
	return level, nil
}

// multiHandler fans one record out to every sink handler.
// Params: sink handlers in registration order.
// Returns: composed handler behavior.
type multiHandler []slog.Handler

// Enabled reports whether any sink accepts the level.
// Params: ctx context and level.
// Returns: true when at least one sink is enabled for it.
func (m multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range m {
		if handler.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

// Handle forwards the record to every enabled sink.
// Params: ctx context and record to write.
// Returns: first sink error.
func (m multiHandler) Handle(ctx context.Context, record slog.Record) error {
	var firstErr error
	for _, handler := range m {
		if !handler.Enabled(ctx, record.Level) {
			continue
		}
		if err := handler.Handle(ctx, record.Clone()); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// WithAttrs attaches attrs to every sink.
// Params: attrs to attach.
// Returns: new fan-out handler.
func (m multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := make(multiHandler, len(m))
	for i, handler := range m {
		next[i] = handler.WithAttrs(attrs)
	}
	return next
}

// WithGroup opens a group on every sink.
// Params: group name.
// Returns: new fan-out handler.
func (m multiHandler) WithGroup(name string) slog.Handler {
	next := make(multiHandler, len(m))
	for i, handler := range m {
		next[i] = handler.WithGroup(name)
	}
	return next
}

// levelTintWriter colors whole console lines by their level token.
// Params: dst is the terminal writer.
// Returns: bytes written or write error.
type levelTintWriter struct {
	dst io.Writer
}

// Write wraps one rendered line in the level's ANSI color.
// Params: payload is one rendered slog line.
// Returns: payload-relative byte count or write error.
func (w *levelTintWriter) Write(payload []byte) (int, error) {
	tone := levelTint(payload)
	if tone == "" {
		return w.dst.Write(payload)
	}

	line := make([]byte, 0, len(payload)+len(tone)+len(ansiReset))
	line = append(line, tone...)
	line = append(line, payload...)
	line = append(line, ansiReset...)
	n, err := w.dst.Write(line)
	if n > len(payload) {
		n = len(payload)
	}
	return n, err
}

// levelTint maps the rendered level token to an ANSI sequence.
// Params: line is one rendered slog line.
// Returns: ANSI color or empty string for unknown levels.
func levelTint(line []byte) string {
	text := string(line)
	switch {
	case strings.Contains(text, "level=DEBUG"):
		return ansiGray
	case strings.Contains(text, "level=INFO"):
		return ansiBlue
	case strings.Contains(text, "level=WARN"):
		return ansiYellow
	case strings.Contains(text, "level=ERROR"):
		return ansiRed
	default:
		return ""
	}
}
