package observe

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
)

// Logger is a minimal structured logging interface.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Context: methods should honor cancellation/deadlines where applicable.
// - Errors: logging must be best-effort and must not panic.
type Logger interface {
	Debug(ctx context.Context, msg string, fields ...Field)
	Info(ctx context.Context, msg string, fields ...Field)
	Warn(ctx context.Context, msg string, fields ...Field)
	Error(ctx context.Context, msg string, fields ...Field)

	// With returns a logger that adds fields to every entry.
	With(fields ...Field) Logger

	// WithCall returns a logger scoped to an outbound call.
	WithCall(meta CallMeta) Logger
}

// Field represents a structured log field.
type Field struct {
	Key   string
	Value any
}

// ParseLevel parses a string log level. Unknown values map to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

type slogLogger struct {
	l *slog.Logger
}

// NewLogger creates a JSON logger on stderr with the given level.
func NewLogger(level string) Logger {
	return NewLoggerWithWriter(level, os.Stderr)
}

// NewLoggerWithWriter creates a JSON logger writing to w.
func NewLoggerWithWriter(level string, w io.Writer) Logger {
	h := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:       ParseLevel(level),
		ReplaceAttr: replaceJSON,
	})
	return &slogLogger{l: slog.New(h)}
}

// NewConsoleLogger creates a human-readable logger writing to w.
// Color is disabled unless w is a terminal-backed *os.File.
func NewConsoleLogger(level string, w io.Writer) Logger {
	h := tint.NewHandler(w, &tint.Options{
		Level:       ParseLevel(level),
		TimeFormat:  time.Kitchen,
		NoColor:     !isTerminal(w),
		ReplaceAttr: redact,
	})
	return &slogLogger{l: slog.New(h)}
}

// NewLoggerFromConfig builds a logger for cfg.Format.
func NewLoggerFromConfig(cfg LoggingConfig) Logger {
	w := cfg.Output
	if w == nil {
		w = os.Stderr
	}
	if cfg.Format == "console" {
		return NewConsoleLogger(cfg.Level, w)
	}
	return NewLoggerWithWriter(cfg.Level, w)
}

// FromSlog adapts an existing slog.Logger.
func FromSlog(l *slog.Logger) Logger {
	return &slogLogger{l: l}
}

func (s *slogLogger) Debug(ctx context.Context, msg string, fields ...Field) {
	s.log(ctx, slog.LevelDebug, msg, fields)
}

func (s *slogLogger) Info(ctx context.Context, msg string, fields ...Field) {
	s.log(ctx, slog.LevelInfo, msg, fields)
}

func (s *slogLogger) Warn(ctx context.Context, msg string, fields ...Field) {
	s.log(ctx, slog.LevelWarn, msg, fields)
}

func (s *slogLogger) Error(ctx context.Context, msg string, fields ...Field) {
	s.log(ctx, slog.LevelError, msg, fields)
}

func (s *slogLogger) With(fields ...Field) Logger {
	if len(fields) == 0 {
		return s
	}
	return &slogLogger{l: s.l.With(toArgs(fields)...)}
}

func (s *slogLogger) WithCall(meta CallMeta) Logger {
	fields := []Field{
		{Key: "call.id", Value: meta.CallID()},
		{Key: "call.service", Value: meta.Service},
		{Key: "call.operation", Value: meta.Operation},
	}
	if meta.Model != "" {
		fields = append(fields, Field{Key: "call.model", Value: meta.Model})
	}
	return s.With(fields...)
}

func (s *slogLogger) log(ctx context.Context, level slog.Level, msg string, fields []Field) {
	if ctx == nil {
		ctx = context.Background()
	}
	if !s.l.Enabled(ctx, level) {
		return
	}
	s.l.Log(ctx, level, msg, toArgs(fields)...)
}

func toArgs(fields []Field) []any {
	args := make([]any, 0, len(fields))
	for _, f := range fields {
		args = append(args, slog.Any(f.Key, f.Value))
	}
	return args
}

// replaceJSON lowercases levels and applies redaction.
func replaceJSON(groups []string, a slog.Attr) slog.Attr {
	if len(groups) == 0 && a.Key == slog.LevelKey {
		if lvl, ok := a.Value.Any().(slog.Level); ok {
			return slog.String(slog.LevelKey, strings.ToLower(lvl.String()))
		}
	}
	return redact(groups, a)
}

func redact(_ []string, a slog.Attr) slog.Attr {
	if isRedactedField(a.Key) {
		return slog.String(a.Key, RedactedValue)
	}
	return a
}

var redactedKeys = func() map[string]bool {
	m := make(map[string]bool, len(RedactedFields))
	for _, k := range RedactedFields {
		m[k] = true
	}
	return m
}()

func isRedactedField(key string) bool {
	return redactedKeys[key]
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

type nopLogger struct{}

// NopLogger returns a logger that discards everything.
func NopLogger() Logger { return nopLogger{} }

func (nopLogger) Debug(context.Context, string, ...Field) {}
func (nopLogger) Info(context.Context, string, ...Field)  {}
func (nopLogger) Warn(context.Context, string, ...Field)  {}
func (nopLogger) Error(context.Context, string, ...Field) {}
func (l nopLogger) With(...Field) Logger                  { return l }
func (l nopLogger) WithCall(CallMeta) Logger              { return l }
