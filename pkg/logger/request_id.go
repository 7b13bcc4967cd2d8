package logger

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RequestIDHeader - HTTP заголовок, в котором передается идентификатор запроса.
const RequestIDHeader = "X-Request-ID"

type requestIDKeyType struct{}

var requestIDKey = requestIDKeyType{}

// NewRequestIDContext создает контекст с идентификатором запроса.
// Пустой requestID заменяется сгенерированным.
func NewRequestIDContext(ctx context.Context, requestID string) context.Context {
	if requestID == "" {
		requestID = GenerateRequestID()
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

// GetRequestID извлекает идентификатор запроса из контекста.
func GetRequestID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(requestIDKey).(string)
	return id, ok && id != ""
}

// EnsureRequestID возвращает идентификатор из контекста или создает новый.
func EnsureRequestID(ctx context.Context) (context.Context, string) {
	if id, ok := GetRequestID(ctx); ok {
		return ctx, id
	}
	id := GenerateRequestID()
	return NewRequestIDContext(ctx, id), id
}

// GenerateRequestID генерирует новый идентификатор запроса.
func GenerateRequestID() string {
	return uuid.New().String()
}

// WithRequestID возвращает копию логгера с полем request_id.
func (l *Logger) WithRequestID(ctx context.Context) *Logger {
	if id, ok := GetRequestID(ctx); ok {
		return l.With(zap.String(RequestID, id))
	}
	return l
}
