// Package context 拓展上下文功能，在请求链路中传递用户身份与追踪信息.
package context

import (
	"context"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

type ContextKey string

const (
	UserIDKey ContextKey = "userID"
)

// WithUserID 将已认证用户 ID 存入 context.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

// GetUserID 从 context 中获取用户 ID，未认证时返回空串.
func GetUserID(ctx context.Context) string {
	id, _ := ctx.Value(UserIDKey).(string)

	return id
}

// WithTraceContext 创建带有追踪上下文的logger.
func WithTraceContext(ctx context.Context, logger zerolog.Logger) zerolog.Logger {
	span := trace.SpanFromContext(ctx)
	if span.IsRecording() {
		return logger.With().
			Str("trace_id", span.SpanContext().TraceID().String()).
			Str("span_id", span.SpanContext().SpanID().String()).
			Logger()
	}

	return logger
}
