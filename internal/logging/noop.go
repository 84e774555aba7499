package logging

import "context"

// NoOpLogger discards all output. Used in tests.
type NoOpLogger struct{}

// NewNoOp creates a logger that drops everything.
func NewNoOp() Logger {
	return &NoOpLogger{}
}

func (n *NoOpLogger) Debug(msg string, fields ...interface{}) {}
func (n *NoOpLogger) Info(msg string, fields ...interface{})  {}
func (n *NoOpLogger) Warn(msg string, fields ...interface{})  {}
func (n *NoOpLogger) Error(msg string, fields ...interface{}) {}
func (n *NoOpLogger) Fatal(msg string, fields ...interface{}) {}

func (n *NoOpLogger) DebugContext(ctx context.Context, msg string, fields ...interface{}) {}
func (n *NoOpLogger) InfoContext(ctx context.Context, msg string, fields ...interface{})  {}
func (n *NoOpLogger) WarnContext(ctx context.Context, msg string, fields ...interface{})  {}
func (n *NoOpLogger) ErrorContext(ctx context.Context, msg string, fields ...interface{}) {}

// WithTraceID returns the same logger.
func (n *NoOpLogger) WithTraceID(traceID string) Logger { return n }

// WithComponent returns the same logger.
func (n *NoOpLogger) WithComponent(component string) Logger { return n }
