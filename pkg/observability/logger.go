// Package observability provides structured logging, metrics, timing and
// health checks for tutorhub.
package observability

import (
	"context"
	"io"
	"log/slog"
	"os"
)

// LogFormat specifies the output format for logs.
type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

// LogLevel is a level name as accepted by LOG_LEVEL.
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// LogConfig configures the logger.
type LogConfig struct {
	Level  LogLevel
	Format LogFormat
	// Output defaults to os.Stderr.
	Output         io.Writer
	AddSource      bool
	ServiceName    string
	ServiceVersion string
}

// DefaultLogConfig is human-readable text on stderr.
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:          LogLevelInfo,
		Format:         LogFormatText,
		Output:         os.Stderr,
		ServiceName:    "tutorhub",
		ServiceVersion: "dev",
	}
}

// ProductionLogConfig is JSON on stdout with source locations.
func ProductionLogConfig() LogConfig {
	return LogConfig{
		Level:          LogLevelInfo,
		Format:         LogFormatJSON,
		Output:         os.Stdout,
		AddSource:      true,
		ServiceName:    "tutorhub",
		ServiceVersion: "unknown",
	}
}

// NewLogger creates a logger whose records carry the service attributes and
// the correlation and request IDs found in the logging context.
func NewLogger(cfg LogConfig) *slog.Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	opts := &slog.HandlerOptions{
		Level:     parseSlogLevel(cfg.Level),
		AddSource: cfg.AddSource,
	}

	var handler slog.Handler
	if cfg.Format == LogFormatJSON {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}

	var service []slog.Attr
	if cfg.ServiceName != "" {
		service = append(service, slog.String("service", cfg.ServiceName))
	}
	if cfg.ServiceVersion != "" {
		service = append(service, slog.String("version", cfg.ServiceVersion))
	}
	if len(service) > 0 {
		handler = handler.WithAttrs(service)
	}

	return slog.New(contextHandler{next: handler})
}

// LoggerFor builds the logger for an application environment. Production
// defaults to JSON; format and level override the defaults when set.
func LoggerFor(appEnv, level, format string) *slog.Logger {
	cfg := DefaultLogConfig()
	if appEnv == "production" {
		cfg = ProductionLogConfig()
	}
	if level != "" {
		cfg.Level = LogLevel(level)
	}
	if format != "" {
		cfg.Format = LogFormat(format)
	}
	if version := os.Getenv("TUTORHUB_VERSION"); version != "" {
		cfg.ServiceVersion = version
	}
	return NewLogger(cfg)
}

// parseSlogLevel accepts slog level names in any case ("warn", "ERROR",
// "info+2"). Anything else is info.
func parseSlogLevel(level LogLevel) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo
	}
	return l
}

// contextHandler adds request-scoped IDs from ctx to every record.
type contextHandler struct {
	next slog.Handler
}

func (h contextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h contextHandler) Handle(ctx context.Context, r slog.Record) error {
	if id := CorrelationIDFromContext(ctx); id != "" {
		r.AddAttrs(slog.String(CorrelationIDKey, id))
	}
	if id := RequestIDFromContext(ctx); id != "" {
		r.AddAttrs(slog.String(RequestIDKey, id))
	}
	return h.next.Handle(ctx, r)
}

func (h contextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return contextHandler{next: h.next.WithAttrs(attrs)}
}

func (h contextHandler) WithGroup(name string) slog.Handler {
	return contextHandler{next: h.next.WithGroup(name)}
}
