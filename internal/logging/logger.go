// Package logging provides structured JSON logging with trace IDs.
package logging

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Logger is the logging interface used across the service.
type Logger interface {
	Debug(msg string, fields ...interface{})
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
	Fatal(msg string, fields ...interface{})

	DebugContext(ctx context.Context, msg string, fields ...interface{})
	InfoContext(ctx context.Context, msg string, fields ...interface{})
	WarnContext(ctx context.Context, msg string, fields ...interface{})
	ErrorContext(ctx context.Context, msg string, fields ...interface{})

	WithTraceID(traceID string) Logger
	WithComponent(component string) Logger
}

// Level is a logging severity.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelFatal
)

// String renders the level name.
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	case LevelFatal:
		return "FATAL"
	default:
		return "INFO"
	}
}

// ParseLevel converts a level name into a Level, defaulting to info.
func ParseLevel(s string) Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return LevelDebug
	case "INFO":
		return LevelInfo
	case "WARN", "WARNING":
		return LevelWarn
	case "ERROR":
		return LevelError
	case "FATAL":
		return LevelFatal
	default:
		return LevelInfo
	}
}

// Entry is one structured log line.
type Entry struct {
	Timestamp string                 `json:"timestamp"`
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	TraceID   string                 `json:"trace_id,omitempty"`
	Component string                 `json:"component,omitempty"`
	File      string                 `json:"file,omitempty"`
	Line      int                    `json:"line,omitempty"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

type contextKey string

// TraceIDKey carries the trace ID through a request context.
const TraceIDKey contextKey = "trace_id"

// StructuredLogger writes JSON entries to a writer. Fields are variadic
// key/value pairs.
type StructuredLogger struct {
	level     Level
	traceID   string
	component string
	useJSON   bool
	out       io.Writer
	mu        *sync.Mutex
}

// New creates a logger at the given level writing to stderr. JSON output is
// the default; set SWAGGER_MCP_LOG_JSON=false for text lines.
func New(level Level) Logger {
	return NewWithWriter(level, os.Stderr)
}

// NewWithWriter creates a logger writing to out.
func NewWithWriter(level Level, out io.Writer) Logger {
	useJSON := true
	if v := os.Getenv("SWAGGER_MCP_LOG_JSON"); v == "false" || v == "0" {
		useJSON = false
	}
	return &StructuredLogger{
		level:   level,
		useJSON: useJSON,
		out:     out,
		mu:      &sync.Mutex{},
	}
}

// WithTraceID returns a copy of the logger carrying the trace ID.
func (l *StructuredLogger) WithTraceID(traceID string) Logger {
	clone := *l
	clone.traceID = traceID
	return &clone
}

// WithComponent returns a copy of the logger carrying the component name.
func (l *StructuredLogger) WithComponent(component string) Logger {
	clone := *l
	clone.component = component
	return &clone
}

// Debug logs at debug level.
func (l *StructuredLogger) Debug(msg string, fields ...interface{}) {
	if l.level <= LevelDebug {
		l.write(LevelDebug, msg, "", fields...)
	}
}

// Info logs at info level.
func (l *StructuredLogger) Info(msg string, fields ...interface{}) {
	if l.level <= LevelInfo {
		l.write(LevelInfo, msg, "", fields...)
	}
}

// Warn logs at warn level.
func (l *StructuredLogger) Warn(msg string, fields ...interface{}) {
	if l.level <= LevelWarn {
		l.write(LevelWarn, msg, "", fields...)
	}
}

// Error logs at error level.
func (l *StructuredLogger) Error(msg string, fields ...interface{}) {
	if l.level <= LevelError {
		l.write(LevelError, msg, "", fields...)
	}
}

// Fatal logs at fatal level and exits.
func (l *StructuredLogger) Fatal(msg string, fields ...interface{}) {
	l.write(LevelFatal, msg, "", fields...)
	os.Exit(1)
}

// DebugContext logs at debug level with the context's trace ID.
func (l *StructuredLogger) DebugContext(ctx context.Context, msg string, fields ...interface{}) {
	if l.level <= LevelDebug {
		l.write(LevelDebug, msg, TraceIDFromContext(ctx), fields...)
	}
}

// InfoContext logs at info level with the context's trace ID.
func (l *StructuredLogger) InfoContext(ctx context.Context, msg string, fields ...interface{}) {
	if l.level <= LevelInfo {
		l.write(LevelInfo, msg, TraceIDFromContext(ctx), fields...)
	}
}

// WarnContext logs at warn level with the context's trace ID.
func (l *StructuredLogger) WarnContext(ctx context.Context, msg string, fields ...interface{}) {
	if l.level <= LevelWarn {
		l.write(LevelWarn, msg, TraceIDFromContext(ctx), fields...)
	}
}

// ErrorContext logs at error level with the context's trace ID.
func (l *StructuredLogger) ErrorContext(ctx context.Context, msg string, fields ...interface{}) {
	if l.level <= LevelError {
		l.write(LevelError, msg, TraceIDFromContext(ctx), fields...)
	}
}

func (l *StructuredLogger) write(level Level, msg, contextTraceID string, fields ...interface{}) {
	traceID := l.traceID
	if contextTraceID != "" {
		traceID = contextTraceID
	}

	_, file, line, ok := runtime.Caller(2)
	if !ok {
		file = "unknown"
		line = 0
	} else {
		parts := strings.Split(file, "/")
		file = parts[len(parts)-1]
	}

	var fieldMap map[string]interface{}
	if len(fields) > 0 {
		fieldMap = make(map[string]interface{}, len(fields)/2)
		for i := 0; i < len(fields); i += 2 {
			key := fmt.Sprintf("%v", fields[i])
			if i+1 < len(fields) {
				fieldMap[key] = fields[i+1]
			} else {
				fieldMap[key] = "(missing)"
			}
		}
	}

	entry := Entry{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Level:     level.String(),
		Message:   msg,
		TraceID:   traceID,
		Component: l.component,
		File:      file,
		Line:      line,
		Fields:    fieldMap,
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.useJSON {
		data, err := json.Marshal(entry)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to marshal log entry: %v\n", err)
			return
		}
		_, _ = fmt.Fprintln(l.out, string(data))
		return
	}
	l.writeText(entry)
}

func (l *StructuredLogger) writeText(entry Entry) {
	parts := []string{entry.Timestamp, fmt.Sprintf("[%s]", entry.Level)}
	if entry.TraceID != "" {
		short := entry.TraceID
		if len(short) > 8 {
			short = short[:8]
		}
		parts = append(parts, "trace:"+short)
	}
	if entry.Component != "" {
		parts = append(parts, "component:"+entry.Component)
	}
	parts = append(parts, entry.Message)
	for k, v := range entry.Fields {
		parts = append(parts, fmt.Sprintf("%s=%v", k, v))
	}
	if entry.File != "" && entry.Line > 0 {
		parts = append(parts, fmt.Sprintf("(%s:%d)", entry.File, entry.Line))
	}
	_, _ = fmt.Fprintln(l.out, strings.Join(parts, " "))
}

// GenerateTraceID returns a fresh trace ID.
func GenerateTraceID() string {
	return uuid.New().String()
}

// WithTraceID stores a trace ID on the context, generating one when empty.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	if traceID == "" {
		traceID = GenerateTraceID()
	}
	return context.WithValue(ctx, TraceIDKey, traceID)
}

// TraceIDFromContext extracts the trace ID, or "" when absent.
func TraceIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if traceID, ok := ctx.Value(TraceIDKey).(string); ok {
		return traceID
	}
	return ""
}

var (
	defaultLogger   Logger = New(LevelInfo)
	defaultLoggerMu sync.RWMutex
)

// SetDefault replaces the package-level logger.
func SetDefault(logger Logger) {
	defaultLoggerMu.Lock()
	defer defaultLoggerMu.Unlock()
	defaultLogger = logger
}

// Default returns the package-level logger.
func Default() Logger {
	defaultLoggerMu.RLock()
	defer defaultLoggerMu.RUnlock()
	return defaultLogger
}

// WithComponent returns the package-level logger scoped to a component.
func WithComponent(component string) Logger {
	return Default().WithComponent(component)
}

// Package-level convenience functions.

func Debug(msg string, fields ...interface{}) { Default().Debug(msg, fields...) }
func Info(msg string, fields ...interface{})  { Default().Info(msg, fields...) }
func Warn(msg string, fields ...interface{})  { Default().Warn(msg, fields...) }
func Error(msg string, fields ...interface{}) { Default().Error(msg, fields...) }
func Fatal(msg string, fields ...interface{}) { Default().Fatal(msg, fields...) }
