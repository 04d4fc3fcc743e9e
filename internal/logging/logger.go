// Package logging provides structured logging on top of logrus, with request
// context propagation (trace id, user id, role).
package logging

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Logger is a service-scoped logrus logger.
type Logger struct {
	*logrus.Logger
	service string
}

// New creates a logger for a service. format is "json" or "text".
func New(service, level, format string) *Logger {
	l := logrus.New()
	l.SetOutput(os.Stdout)

	lvl, err := logrus.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		lvl = logrus.InfoLevel
	}
	l.SetLevel(lvl)

	if strings.EqualFold(format, "text") {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: time.RFC3339})
	} else {
		l.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	}

	return &Logger{Logger: l, service: service}
}

// NewDefault creates an info-level JSON logger.
func NewDefault(service string) *Logger {
	return New(service, "info", "json")
}

// NewDiscard returns a logger that writes nowhere; used by tests.
func NewDiscard() *Logger {
	l := New("test", "panic", "json")
	l.SetOutput(io.Discard)
	return l
}

// Service returns the service name attached to every entry.
func (l *Logger) Service() string {
	return l.service
}

// Named returns a logger sharing output and level with a different service name.
func (l *Logger) Named(service string) *Logger {
	return &Logger{Logger: l.Logger, service: service}
}

func (l *Logger) base() *logrus.Entry {
	return l.Logger.WithField("service", l.service)
}

// WithField starts an entry with a single field.
func (l *Logger) WithField(key string, value interface{}) *logrus.Entry {
	return l.base().WithField(key, value)
}

// WithFields starts an entry with the given fields.
func (l *Logger) WithFields(fields map[string]interface{}) *logrus.Entry {
	return l.base().WithFields(logrus.Fields(fields))
}

// WithError starts an entry carrying err.
func (l *Logger) WithError(err error) *logrus.Entry {
	return l.base().WithError(err)
}

// WithContext starts an entry with trace, user and role fields from ctx.
func (l *Logger) WithContext(ctx context.Context) *logrus.Entry {
	entry := l.base()
	if ctx == nil {
		return entry
	}
	if traceID := GetTraceID(ctx); traceID != "" {
		entry = entry.WithField("trace_id", traceID)
	}
	if userID := GetUserID(ctx); userID != "" {
		entry = entry.WithField("user_id", userID)
	}
	if role := GetRole(ctx); role != "" {
		entry = entry.WithField("role", role)
	}
	return entry
}

// LogRequest records a completed HTTP request.
func (l *Logger) LogRequest(ctx context.Context, method, path string, status int, duration time.Duration) {
	entry := l.WithContext(ctx).WithFields(logrus.Fields{
		"method":      method,
		"path":        path,
		"status":      status,
		"duration_ms": duration.Milliseconds(),
	})
	switch {
	case status >= 500:
		entry.Error("request failed")
	case status >= 400:
		entry.Warn("request rejected")
	default:
		entry.Info("request completed")
	}
}

// LogSecurityEvent records an authentication or abuse related event.
func (l *Logger) LogSecurityEvent(ctx context.Context, event string, fields map[string]interface{}) {
	l.WithContext(ctx).WithFields(logrus.Fields(fields)).WithField("security_event", event).Warn("security event")
}
