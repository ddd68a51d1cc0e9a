package logger

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type contextKey int

const (
	requestIDKey contextKey = iota
	usernameKey
	roomIDKey
	channelIDKey
)

func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// WithIdentity records who a signaling connection belongs to so every log
// line emitted for it carries the same fields.
func WithIdentity(ctx context.Context, username, roomID, channelID string) context.Context {
	ctx = context.WithValue(ctx, usernameKey, username)
	ctx = context.WithValue(ctx, roomIDKey, roomID)
	return context.WithValue(ctx, channelIDKey, channelID)
}

// ContextLogger decorates a logger with fields carried in a context.
type ContextLogger struct {
	logger *zap.SugaredLogger
}

func NewContextLogger(logger *zap.SugaredLogger) *ContextLogger {
	return &ContextLogger{logger: logger}
}

func (cl *ContextLogger) WithContext(ctx context.Context) *zap.SugaredLogger {
	var fields []interface{}

	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		fields = append(fields, "trace_id", sc.TraceID().String())
	}
	for _, kv := range []struct {
		key   contextKey
		field string
	}{
		{requestIDKey, "request_id"},
		{usernameKey, "username"},
		{roomIDKey, "room_id"},
		{channelIDKey, "channel_id"},
	} {
		if v, ok := ctx.Value(kv.key).(string); ok && v != "" {
			fields = append(fields, kv.field, v)
		}
	}

	if len(fields) == 0 {
		return cl.logger
	}
	return cl.logger.With(fields...)
}
