package proxy

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/gofiber/fiber/v3"
	"go.uber.org/zap"

	"authpipe/pkg/logger"
)

const localsRequestContext = "requestContext"

// requestContext возвращает контекст запроса с идентификатором запроса.
func requestContext(c fiber.Ctx) context.Context {
	if ctx, ok := c.Locals(localsRequestContext).(context.Context); ok {
		return ctx
	}
	return c.Context()
}

// NewRequestIDMiddleware берет X-Request-ID из запроса или создает новый и
// возвращает его в ответе.
func NewRequestIDMiddleware() fiber.Handler {
	return func(c fiber.Ctx) error {
		requestID := c.Get(logger.RequestIDHeader)
		if requestID == "" {
			requestID = logger.GenerateRequestID()
		}

		c.Locals(localsRequestContext, logger.NewRequestIDContext(c.Context(), requestID))
		c.Set(logger.RequestIDHeader, requestID)
		return c.Next()
	}
}

// NewLoggerMiddleware логирует запросы к прокси.
func NewLoggerMiddleware() fiber.Handler {
	return func(c fiber.Ctx) error {
		requestCtx := requestContext(c)
		start := time.Now()

		log := logger.Log(requestCtx).With(
			zap.String("path", c.Path()),
			zap.String("method", c.Method()),
			zap.String("ip", c.IP()),
		)

		log.Debug(requestCtx, "request started")

		err := c.Next()

		fields := []zap.Field{
			zap.Int("status", c.Response().StatusCode()),
			zap.Duration("latency", time.Since(start)),
		}

		if err != nil {
			log.Error(requestCtx, "request failed", append(fields, zap.Error(err))...)
			return fmt.Errorf("request processing error: %w", err)
		}

		log.Info(requestCtx, "request completed", fields...)
		return nil
	}
}

// NewRecoveryMiddleware перехватывает панику обработчика и отвечает 500.
func NewRecoveryMiddleware() fiber.Handler {
	return func(c fiber.Ctx) (err error) {
		requestCtx := requestContext(c)
		log := logger.Log(requestCtx)

		defer func() {
			if r := recover(); r != nil {
				log.Error(requestCtx, "proxy panic",
					zap.String("error", fmt.Sprintf("%v", r)),
					zap.String("stack", string(debug.Stack())),
				)

				err = c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
					"error": "Internal Server Error",
				})
			}
		}()

		return c.Next()
	}
}
