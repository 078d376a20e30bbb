// Package logger wraps slog with the attributes the render service logs on
// every line: service, component, job id and delivery path.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strings"
	"time"
)

// Attribute keys shared by every component.
const (
	KeyService   = "service"
	KeyComponent = "component"
	KeyRequestID = "request_id"
	KeyJobID     = "job_id"
	KeyDelivery  = "delivery"
	KeyError     = "error"
)

// Logger is a slog.Logger with render-service scoping helpers.
type Logger struct {
	*slog.Logger
}

type Config struct {
	Level       string    // debug, info, warn or error
	Format      string    // json or text
	Output      io.Writer // os.Stdout when nil
	AddSource   bool
	ServiceName string
}

func DefaultConfig(service string) Config {
	return Config{Level: "info", Format: "json", Output: os.Stdout, ServiceName: service}
}

func New(cfg Config) *Logger {
	h := newHandler(cfg)
	if cfg.ServiceName != "" {
		h = h.WithAttrs([]slog.Attr{slog.String(KeyService, cfg.ServiceName)})
	}
	return &Logger{Logger: slog.New(h)}
}

func newHandler(cfg Config) slog.Handler {
	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}
	opts := &slog.HandlerOptions{
		Level:       ParseLevel(cfg.Level),
		AddSource:   cfg.AddSource,
		ReplaceAttr: utcTime,
	}
	if strings.EqualFold(cfg.Format, "text") {
		return slog.NewTextHandler(out, opts)
	}
	return slog.NewJSONHandler(out, opts)
}

// utcTime renders the record time as RFC 3339 in UTC.
func utcTime(_ []string, a slog.Attr) slog.Attr {
	if a.Key != slog.TimeKey {
		return a
	}
	if t, ok := a.Value.Any().(time.Time); ok {
		a.Value = slog.StringValue(t.UTC().Format(time.RFC3339Nano))
	}
	return a
}

// Nop discards everything below error and writes nothing at all.
func Nop() *Logger {
	return New(Config{Output: io.Discard, Level: "error"})
}

// ParseLevel maps a level name to slog.Level, defaulting to info.
func ParseLevel(level string) slog.Level {
	var l slog.Level
	switch s := strings.ToLower(strings.TrimSpace(level)); s {
	case "warning":
		return slog.LevelWarn
	default:
		if err := l.UnmarshalText([]byte(s)); err != nil {
			return slog.LevelInfo
		}
		return l
	}
}

func (l *Logger) derive(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

func (l *Logger) WithComponent(name string) *Logger {
	return l.derive(slog.String(KeyComponent, name))
}

func (l *Logger) WithRequestID(id string) *Logger {
	return l.derive(slog.String(KeyRequestID, id))
}

func (l *Logger) WithJobID(id string) *Logger {
	return l.derive(slog.String(KeyJobID, id))
}

// WithDelivery tags lines with the path (queue or polling) that produced a job id.
func (l *Logger) WithDelivery(path string) *Logger {
	return l.derive(slog.String(KeyDelivery, path))
}

// WithError returns l unchanged when err is nil.
func (l *Logger) WithError(err error) *Logger {
	if err == nil {
		return l
	}
	return l.derive(slog.String(KeyError, err.Error()))
}

func (l *Logger) WithFields(fields map[string]any) *Logger {
	if len(fields) == 0 {
		return l
	}
	attrs := make([]any, 0, len(fields))
	for k, v := range fields {
		attrs = append(attrs, slog.Any(k, v))
	}
	return l.derive(attrs...)
}

// LogError logs err at error level together with the caller's file and line.
// A nil err logs nothing.
func (l *Logger) LogError(ctx context.Context, msg string, err error, args ...any) {
	if err == nil {
		return
	}
	if _, file, line, ok := runtime.Caller(1); ok {
		args = append(args, slog.Group("source", slog.String("file", file), slog.Int("line", line)))
	}
	l.FromContext(ctx).WithError(err).Error(msg, args...)
}

// LogFatal logs msg and exits the process with status 1.
func (l *Logger) LogFatal(msg string, err error, args ...any) {
	l.WithError(err).Error(msg, args...)
	os.Exit(1)
}
