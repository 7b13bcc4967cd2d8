package logger

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Ошибки logger.
var (
	ErrLoggerNotFound   = errors.New("logger not found in context")
	ErrInitGlobalLogger = errors.New("failed to initialize global logger")
)

var (
	globalLoggerMu sync.RWMutex
	globalLogger   *Logger
	fallbackLogger *Logger
)

type loggerKeyType struct{}

var loggerKey = loggerKeyType{}

func init() {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	zl, err := cfg.Build()
	if err != nil {
		zl = zap.NewNop()
	}
	fallbackLogger = &Logger{l: zl.With(zap.String("logger", "fallback"))}
}

// NewContext кладет logger в контекст.
func NewContext(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// FromContext извлекает logger из контекста.
func FromContext(ctx context.Context) (*Logger, error) {
	if ctx == nil {
		return nil, fmt.Errorf("context validation: %w", ErrLoggerNotFound)
	}
	logger, ok := ctx.Value(loggerKey).(*Logger)
	if !ok {
		return nil, fmt.Errorf("logger lookup: %w", ErrLoggerNotFound)
	}
	return logger, nil
}

// InitGlobalLogger инициализирует глобальный logger, если он еще не задан.
func InitGlobalLogger(env Environment, level string) error {
	globalLoggerMu.Lock()
	defer globalLoggerMu.Unlock()

	if globalLogger != nil {
		return nil
	}

	l, err := NewLogger(env, level)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInitGlobalLogger, err)
	}
	globalLogger = l
	return nil
}

// SetGlobalLogger заменяет глобальный logger. nil сбрасывает его.
func SetGlobalLogger(logger *Logger) {
	globalLoggerMu.Lock()
	defer globalLoggerMu.Unlock()
	globalLogger = logger
}

// Log возвращает logger из контекста, затем глобальный, затем резервный.
func Log(ctx context.Context) *Logger {
	if ctx != nil {
		if logger, ok := ctx.Value(loggerKey).(*Logger); ok {
			return logger
		}
	}

	globalLoggerMu.RLock()
	defer globalLoggerMu.RUnlock()
	if globalLogger != nil {
		return globalLogger
	}
	return fallbackLogger
}
