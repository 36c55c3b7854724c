package observability

import (
	"context"
	"time"
)

type SanitizerFunc func(key string, value any) any

// ErrorNotifier receives error-level entries out of band (SNS alerts).
type ErrorNotifier interface {
	Notify(ctx context.Context, entry LogEntry) error
}

// LogEntry is the backend-neutral shape of one structured log line.
type LogEntry struct {
	Timestamp time.Time      `json:"timestamp"`
	Level     string         `json:"level"`
	Message   string         `json:"message"`
	Fields    map[string]any `json:"fields,omitempty"`

	Service   string `json:"service,omitempty"`
	RequestID string `json:"request_id,omitempty"`
	TraceID   string `json:"trace_id,omitempty"`
}

// StructuredLogger is the logging surface handed to every Lambda invocation.
//
// Loggers are immutable: With* calls return a derived logger and leave the receiver untouched.
type StructuredLogger interface {
	Debug(message string, fields ...map[string]any)
	Info(message string, fields ...map[string]any)
	Warn(message string, fields ...map[string]any)
	Error(message string, fields ...map[string]any)

	WithField(key string, value any) StructuredLogger
	WithFields(fields map[string]any) StructuredLogger

	WithService(service string) StructuredLogger
	WithRequestID(requestID string) StructuredLogger
	WithTraceID(traceID string) StructuredLogger

	Flush(ctx context.Context) error
	Close() error
	IsHealthy() bool
	GetStats() LoggerStats
}

type LoggerStats struct {
	LastFlush      time.Time     `json:"last_flush"`
	LastError      string        `json:"last_error,omitempty"`
	EntriesLogged  int64         `json:"entries_logged"`
	EntriesDropped int64         `json:"entries_dropped"`
	FlushCount     int64         `json:"flush_count"`
	ErrorCount     int64         `json:"error_count"`
	AverageFlush   time.Duration `json:"average_flush_time"`
}

// LoggerConfig configures logger implementations.
type LoggerConfig struct {
	Service      string        `json:"service" mapstructure:"service"`
	Format       string        `json:"format" mapstructure:"format"`
	Level        string        `json:"level" mapstructure:"level"`
	RetryDelay   time.Duration `json:"retry_delay" mapstructure:"retry_delay"`
	BufferSize   int           `json:"buffer_size" mapstructure:"buffer_size"`
	MaxRetries   int           `json:"max_retries" mapstructure:"max_retries"`
	EnableStack  bool          `json:"enable_stack" mapstructure:"enable_stack"`
	EnableCaller bool          `json:"enable_caller" mapstructure:"enable_caller"`
}

// MergeFields flattens field sets left to right; later keys win.
func MergeFields(fieldSets ...map[string]any) map[string]any {
	out := make(map[string]any)
	for _, set := range fieldSets {
		for k, v := range set {
			out[k] = v
		}
	}
	return out
}
