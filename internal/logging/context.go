package logging

import (
	"context"

	"github.com/google/uuid"
)

type contextKey string

const (
	TraceIDKey contextKey = "trace_id"
	UserIDKey  contextKey = "user_id"
	RoleKey    contextKey = "role"
)

// NewTraceID returns a fresh random trace id.
func NewTraceID() string {
	return uuid.NewString()
}

func WithTraceID(ctx context.Context, traceID string) context.Context {
	if traceID == "" {
		return ctx
	}
	return context.WithValue(ctx, TraceIDKey, traceID)
}

func WithUserID(ctx context.Context, userID string) context.Context {
	if userID == "" {
		return ctx
	}
	return context.WithValue(ctx, UserIDKey, userID)
}

func WithRole(ctx context.Context, role string) context.Context {
	if role == "" {
		return ctx
	}
	return context.WithValue(ctx, RoleKey, role)
}

func GetTraceID(ctx context.Context) string {
	return stringValue(ctx, TraceIDKey)
}

func GetUserID(ctx context.Context) string {
	return stringValue(ctx, UserIDKey)
}

func GetRole(ctx context.Context) string {
	return stringValue(ctx, RoleKey)
}

func stringValue(ctx context.Context, key contextKey) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(key).(string)
	return v
}
