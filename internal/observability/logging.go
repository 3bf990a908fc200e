package observability

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"regexp"
	"strings"
)

// Logger wraps slog with the two habits the runtime needs everywhere:
// correlation ids riding in the context are appended to every record, and
// logged values are scrubbed for credentials before they reach the handler.
type Logger struct {
	logger  *slog.Logger
	redacts []*regexp.Regexp
}

// LogConfig controls output shape and scrubbing.
type LogConfig struct {
	// Level is the minimum record level: debug, info, warn, or error.
	Level string

	// Format selects "json" (the default) or "text" output.
	Format string

	// Output defaults to os.Stdout.
	Output io.Writer

	// AddSource includes the caller's file and line in each record.
	AddSource bool

	// RedactPatterns extends the default credential patterns.
	RedactPatterns []string
}

// ContextKey types the correlation values carried in a context.
type ContextKey string

const (
	// RequestIDKey correlates the records of one gateway request.
	RequestIDKey ContextKey = "request_id"

	// SessionIDKey correlates the records of one session.
	SessionIDKey ContextKey = "session_id"
)

// DefaultRedactPatterns matches the credentials that actually flow through
// this process: the model provider's API key, Home Assistant long-lived
// access tokens (JWTs), and key or token assignments that surface in
// config dumps and error text.
var DefaultRedactPatterns = []string{
	`sk-[a-zA-Z0-9]{20,}`,
	`eyJ[a-zA-Z0-9_-]+\.eyJ[a-zA-Z0-9_-]+\.[a-zA-Z0-9_-]+`,
	`(?i)(api[_-]?key|bearer|token|secret|password)[\s:=]+["']?([^\s"']{8,})["']?`,
}

// redactedMapKeys are map keys whose values are masked outright, whatever
// the value looks like.
var redactedMapKeys = map[string]bool{
	"token":         true,
	"access_token":  true,
	"api_key":       true,
	"apikey":        true,
	"password":      true,
	"secret":        true,
	"authorization": true,
}

// NewLogger builds a logger writing to cfg.Output. An unknown or empty
// level falls back to info.
func NewLogger(cfg LogConfig) *Logger {
	if cfg.Output == nil {
		cfg.Output = os.Stdout
	}

	opts := &slog.HandlerOptions{
		Level:     LogLevelFromString(cfg.Level),
		AddSource: cfg.AddSource,
	}
	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(cfg.Output, opts)
	} else {
		handler = slog.NewJSONHandler(cfg.Output, opts)
	}

	patterns := append(append([]string(nil), DefaultRedactPatterns...), cfg.RedactPatterns...)
	redacts := make([]*regexp.Regexp, 0, len(patterns))
	for _, pattern := range patterns {
		if re, err := regexp.Compile(pattern); err == nil {
			redacts = append(redacts, re)
		}
	}

	return &Logger{logger: slog.New(handler), redacts: redacts}
}

// Slog exposes the underlying slog.Logger for components that take one.
func (l *Logger) Slog() *slog.Logger { return l.logger }

func (l *Logger) Debug(ctx context.Context, msg string, args ...any) {
	l.log(ctx, slog.LevelDebug, msg, args...)
}

func (l *Logger) Info(ctx context.Context, msg string, args ...any) {
	l.log(ctx, slog.LevelInfo, msg, args...)
}

func (l *Logger) Warn(ctx context.Context, msg string, args ...any) {
	l.log(ctx, slog.LevelWarn, msg, args...)
}

// Error logs at error level. Errors passed as values are scrubbed like any
// other string.
func (l *Logger) Error(ctx context.Context, msg string, args ...any) {
	l.log(ctx, slog.LevelError, msg, args...)
}

func (l *Logger) log(ctx context.Context, level slog.Level, msg string, args ...any) {
	attrs := make([]any, 0, len(args)+4)
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok && requestID != "" {
		attrs = append(attrs, "request_id", requestID)
	}
	if sessionID, ok := ctx.Value(SessionIDKey).(string); ok && sessionID != "" {
		attrs = append(attrs, "session_id", sessionID)
	}
	for _, arg := range args {
		attrs = append(attrs, l.redactValue(arg))
	}
	l.logger.Log(ctx, level, l.redactString(msg), attrs...)
}

func (l *Logger) redactValue(v any) any {
	switch val := v.(type) {
	case string:
		return l.redactString(val)
	case error:
		return l.redactString(val.Error())
	case []byte:
		return l.redactString(string(val))
	case map[string]any:
		return l.redactMap(val)
	case map[string]string:
		m := make(map[string]any, len(val))
		for k, v := range val {
			m[k] = v
		}
		return l.redactMap(m)
	default:
		if b, err := json.Marshal(v); err == nil {
			return l.redactString(string(b))
		}
		return v
	}
}

func (l *Logger) redactString(s string) string {
	for _, re := range l.redacts {
		s = re.ReplaceAllString(s, "[REDACTED]")
	}
	return s
}

func (l *Logger) redactMap(m map[string]any) map[string]any {
	result := make(map[string]any, len(m))
	for k, v := range m {
		if redactedMapKeys[strings.ToLower(strings.ReplaceAll(k, "-", "_"))] {
			result[k] = "[REDACTED]"
			continue
		}
		result[k] = l.redactValue(v)
	}
	return result
}

// AddRequestID stamps a request ID onto the context.
func AddRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// AddSessionID stamps a session ID onto the context.
func AddSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, SessionIDKey, sessionID)
}

// GetSessionID returns the session ID carried by the context, if any.
// Session-scoped tools use it to pick their storage namespace.
func GetSessionID(ctx context.Context) string {
	if id, ok := ctx.Value(SessionIDKey).(string); ok {
		return id
	}
	return ""
}

// LogLevelFromString maps a config string to a slog.Level, defaulting to
// info for anything it does not recognize.
func LogLevelFromString(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
