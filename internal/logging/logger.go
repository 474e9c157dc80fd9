package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"regexp"
	"strings"

	"bikeweather/internal/config"
)

const (
	ansiReset  = "\x1b[0m"
	ansiBlue   = "\x1b[34m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiCyan   = "\x1b[36m"
	ansiRed    = "\x1b[31m"
	ansiGray   = "\x1b[90m"
)

// LevelPanic is highest configurable level.
const LevelPanic = slog.Level(12)

var (
	stringPattern = regexp.MustCompile(`"[^"\n]*"`)
	statePattern  = regexp.MustCompile(`\b(?:from|to|state|effect|event)=[a-z_]+`)
	numberPattern = regexp.MustCompile(`\b\d+(?:\.\d+)?\b`)
)

// New builds a logger for configured sinks and returns a cleanup function.
// Params: cfg contains console/file sink settings.
// Returns: slog logger, cleanup callback, and setup error.
func New(cfg config.LogConfig) (*slog.Logger, func(), error) {
	return NewWithConsole(cfg, os.Stdout)
}

// NewWithConsole is New with explicit console destination.
func NewWithConsole(cfg config.LogConfig, console io.Writer) (*slog.Logger, func(), error) {
	var (
		handlers []slog.Handler
		closers  []io.Closer
	)

	if cfg.Console.Enabled {
		handler, err := consoleHandler(cfg.Console, console)
		if err != nil {
			return nil, nil, fmt.Errorf("build console handler: %w", err)
		}
		handlers = append(handlers, handler)
	}
	if cfg.File.Enabled {
		handler, closer, err := fileHandler(cfg.File)
		if err != nil {
			return nil, nil, fmt.Errorf("build file handler: %w", err)
		}
		handlers = append(handlers, handler)
		closers = append(closers, closer)
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
	return slog.New(teeHandler(handlers)), closeFn, nil
}

// Discard returns logger dropping every record.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: LevelPanic}))
}

func consoleHandler(sink config.LogSinkConfig, dst io.Writer) (slog.Handler, error) {
	level, err := ParseLevel(sink.Level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(_ []string, attr slog.Attr) slog.Attr {
			if attr.Key == slog.TimeKey {
				return slog.Attr{}
			}
			if attr.Key == slog.LevelKey {
				return slog.String(slog.LevelKey, levelName(attr.Value.Any()))
			}
			return attr
		},
	}
	switch strings.ToLower(strings.TrimSpace(sink.Format)) {
	case "line":
		return slog.NewTextHandler(colorWriter{dst: dst}, opts), nil
	case "json":
		return slog.NewJSONHandler(dst, opts), nil
	default:
		return nil, fmt.Errorf("unsupported console format %q", sink.Format)
	}
}

func fileHandler(sink config.LogSinkConfig) (slog.Handler, io.Closer, error) {
	level, err := ParseLevel(sink.Level)
	if err != nil {
		return nil, nil, err
	}
	file, err := os.OpenFile(sink.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open file %q: %w", sink.Path, err)
	}
	opts := &slog.HandlerOptions{Level: level}
	switch strings.ToLower(strings.TrimSpace(sink.Format)) {
	case "line":
		return slog.NewTextHandler(file, opts), file, nil
	case "json":
		return slog.NewJSONHandler(file, opts), file, nil
	default:
		_ = file.Close()
		return nil, nil, fmt.Errorf("unsupported file format %q", sink.Format)
	}
}

// ParseLevel converts configuration level into slog.Level.
// Params: level name (debug/info/warn/error/panic).
// Returns: slog level or error.
func ParseLevel(value string) (slog.Level, error) {
	switch strings.TrimSpace(strings.ToLower(value)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	case "panic":
		return LevelPanic, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unsupported level %q", value)
	}
}

func levelName(value any) string {
	level, ok := value.(slog.Level)
	if !ok {
		return fmt.Sprint(value)
	}
	if level >= LevelPanic {
		return "PANIC"
	}
	return level.String()
}

// teeHandler fans one record out to every enabled handler.
type teeHandler []slog.Handler

func (t teeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range t {
		if handler.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (t teeHandler) Handle(ctx context.Context, record slog.Record) error {
	for _, handler := range t {
		if !handler.Enabled(ctx, record.Level) {
			continue
		}
		if err := handler.Handle(ctx, record.Clone()); err != nil {
			return err
		}
	}
	return nil
}

func (t teeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := make(teeHandler, 0, len(t))
	for _, handler := range t {
		next = append(next, handler.WithAttrs(attrs))
	}
	return next
}

func (t teeHandler) WithGroup(name string) slog.Handler {
	next := make(teeHandler, 0, len(t))
	for _, handler := range t {
		next = append(next, handler.WithGroup(name))
	}
	return next
}

// colorWriter tints console lines by level and highlights state names,
// quoted strings, and numbers.
type colorWriter struct {
	dst io.Writer
}

func (w colorWriter) Write(payload []byte) (int, error) {
	line := string(payload)
	tone := levelColor(line)
	if tone == "" {
		return w.dst.Write(payload)
	}
	rendered := tone + highlight(line, tone) + ansiReset
	n, err := w.dst.Write([]byte(rendered))
	if n > len(payload) {
		n = len(payload)
	}
	return n, err
}

func levelColor(line string) string {
	switch {
	case strings.Contains(line, "level=DEBUG"):
		return ansiGray
	case strings.Contains(line, "level=INFO"):
		return ansiBlue
	case strings.Contains(line, "level=WARN"):
		return ansiYellow
	case strings.Contains(line, "level=ERROR"), strings.Contains(line, "level=PANIC"):
		return ansiRed
	default:
		return ""
	}
}

// highlight colors first-matching token class at each position; classes are
// tried in order strings, states, numbers.
func highlight(line, base string) string {
	type class struct {
		pattern *regexp.Regexp
		color   string
	}
	classes := []class{
		{pattern: stringPattern, color: ansiGreen},
		{pattern: statePattern, color: ansiCyan},
		{pattern: numberPattern, color: ansiYellow},
	}

	var builder strings.Builder
	builder.Grow(len(line) + 32)
	cursor := 0
	for cursor < len(line) {
		start, end, color := -1, -1, ""
		for _, c := range classes {
			loc := c.pattern.FindStringIndex(line[cursor:])
			if loc == nil {
				continue
			}
			if start == -1 || loc[0] < start {
				start, end, color = loc[0], loc[1], c.color
			}
		}
		if start == -1 || start == end {
			break
		}
		builder.WriteString(line[cursor : cursor+start])
		builder.WriteString(color)
		builder.WriteString(line[cursor+start : cursor+end])
		builder.WriteString(ansiReset)
		builder.WriteString(base)
		cursor += end
	}
	builder.WriteString(line[cursor:])
	return builder.String()
}
