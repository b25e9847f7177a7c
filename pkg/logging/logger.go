package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

// LogLevel represents logging levels
type LogLevel string

const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

// ParseLevel maps a textual level to a LogLevel, defaulting to info.
func ParseLevel(s string) LogLevel {
	switch LogLevel(strings.ToLower(strings.TrimSpace(s))) {
	case LevelDebug:
		return LevelDebug
	case LevelWarn:
		return LevelWarn
	case LevelError:
		return LevelError
	default:
		return LevelInfo
	}
}

// Config holds logger configuration
type Config struct {
	Level       LogLevel
	ServiceName string
	Environment string
	Version     string
	Output      io.Writer
	AddSource   bool
}

// DefaultConfig returns a default logger configuration
func DefaultConfig(serviceName string) *Config {
	return &Config{
		Level:       LevelInfo,
		ServiceName: serviceName,
		Environment: envOr("ENVIRONMENT", "development"),
		Version:     envOr("VERSION", "unknown"),
		Output:      os.Stdout,
	}
}

// Logger wraps slog.Logger with the service identity and scanner helpers.
type Logger struct {
	*slog.Logger
	serviceName string
	environment string
	version     string
}

// New creates a new Logger instance
func New(config *Config) *Logger {
	level := slog.LevelInfo
	switch config.Level {
	case LevelDebug:
		level = slog.LevelDebug
	case LevelWarn:
		level = slog.LevelWarn
	case LevelError:
		level = slog.LevelError
	}

	output := config.Output
	if output == nil {
		output = os.Stdout
	}

	handler := slog.NewJSONHandler(output, &slog.HandlerOptions{
		Level:     level,
		AddSource: config.AddSource,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				if t, ok := a.Value.Any().(time.Time); ok {
					a.Value = slog.StringValue(t.UTC().Format(time.RFC3339Nano))
				}
			}
			return a
		},
	})

	base := slog.New(handler).With(
		slog.String("service", config.ServiceName),
		slog.String("environment", config.Environment),
		slog.String("version", config.Version),
	)

	return &Logger{
		Logger:      base,
		serviceName: config.ServiceName,
		environment: config.Environment,
		version:     config.Version,
	}
}

// Discard returns a logger that drops everything. Used by tests.
func Discard() *Logger {
	return New(&Config{Level: LevelError, ServiceName: "test", Output: io.Discard})
}

func (l *Logger) derive(inner *slog.Logger) *Logger {
	return &Logger{
		Logger:      inner,
		serviceName: l.serviceName,
		environment: l.environment,
		version:     l.version,
	}
}

// WithContext adds request-scoped identifiers carried by ctx.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	logger := l.Logger
	if v, ok := ctx.Value(RequestIDKey).(string); ok && v != "" {
		logger = logger.With(slog.String("requestId", v))
	}
	if v, ok := ctx.Value(CorrelationIDKey).(string); ok && v != "" {
		logger = logger.With(slog.String("correlationId", v))
	}
	if v, ok := ctx.Value(SessionIDKey).(string); ok && v != "" {
		logger = logger.With(slog.String("sessionId", v))
	}
	return l.derive(logger)
}

// WithSession tags entries with the scanner session and operation.
func (l *Logger) WithSession(sessionID, operation string) *Logger {
	return l.derive(l.Logger.With(
		slog.String("sessionId", sessionID),
		slog.String("operation", operation),
	))
}

func (l *Logger) WithError(err error) *Logger {
	if err == nil {
		return l
	}
	return l.derive(l.Logger.With(slog.String("error", err.Error())))
}

func (l *Logger) WithComponent(component string) *Logger {
	return l.derive(l.Logger.With(slog.String("component", component)))
}

// Event logs a structured business event.
func (l *Logger) Event(ctx context.Context, eventType string, attrs ...slog.Attr) {
	all := append([]slog.Attr{slog.String("eventType", eventType)}, attrs...)
	l.WithContext(ctx).LogAttrs(ctx, slog.LevelInfo, "event", all...)
}

// Audit logs an operator decision that must be traceable, such as a
// destination override.
func (l *Logger) Audit(ctx context.Context, action, actor string, attrs ...slog.Attr) {
	all := append([]slog.Attr{
		slog.String("auditAction", action),
		slog.String("actor", actor),
		slog.Time("auditTime", time.Now().UTC()),
	}, attrs...)
	l.WithContext(ctx).LogAttrs(ctx, slog.LevelInfo, "audit", all...)
}

// Performance logs how long an operation took.
func (l *Logger) Performance(ctx context.Context, operation string, duration time.Duration, attrs ...slog.Attr) {
	all := append([]slog.Attr{
		slog.String("operation", operation),
		slog.Int64("durationMs", duration.Milliseconds()),
	}, attrs...)
	l.WithContext(ctx).LogAttrs(ctx, slog.LevelInfo, "performance", all...)
}

// HTTPRequest logs an access entry.
func (l *Logger) HTTPRequest(ctx context.Context, method, path string, status int, duration time.Duration, attrs ...slog.Attr) {
	level := slog.LevelInfo
	switch {
	case status >= 500:
		level = slog.LevelError
	case status >= 400:
		level = slog.LevelWarn
	}
	all := append([]slog.Attr{
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", status),
		slog.Int64("durationMs", duration.Milliseconds()),
	}, attrs...)
	l.WithContext(ctx).LogAttrs(ctx, level, "http request", all...)
}

// SetDefault installs the logger as the process-wide slog default.
func (l *Logger) SetDefault() {
	slog.SetDefault(l.Logger)
}

type contextKey string

const (
	RequestIDKey     contextKey = "requestId"
	CorrelationIDKey contextKey = "correlationId"
	SessionIDKey     contextKey = "sessionId"
)

func ContextWithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

func ContextWithCorrelationID(ctx context.Context, correlationID string) context.Context {
	return context.WithValue(ctx, CorrelationIDKey, correlationID)
}

func ContextWithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, SessionIDKey, sessionID)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
