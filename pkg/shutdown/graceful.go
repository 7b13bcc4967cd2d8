// Package shutdown предоставляет корректное завершение приложения:
// ожидание SIGINT/SIGTERM или отмены контекста и запуск хуков с таймаутом.
package shutdown

import (
	"context"
	"errors"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"authpipe/pkg/logger"
)

// Hook - действие, выполняемое при завершении.
type Hook func(ctx context.Context) error

const (
	LogShutdownStarted = "shutdown started"
	LogHookFailed      = "shutdown hook failed"
	LogShutdownTimeout = "shutdown timed out"
)

// Wait блокируется до сигнала SIGINT/SIGTERM или отмены ctx, затем
// параллельно выполняет хуки в пределах timeout и возвращает их ошибки.
func Wait(ctx context.Context, timeout time.Duration, hooks ...Hook) error {
	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	<-sigCtx.Done()
	stop()

	log := logger.Log(ctx)
	log.Info(ctx, LogShutdownStarted, zap.Int("hooks", len(hooks)))

	hookCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	var (
		mu   sync.Mutex
		errs []error
		wg   sync.WaitGroup
	)
	for _, hook := range hooks {
		wg.Add(1)
		go func(fn Hook) {
			defer wg.Done()
			if err := fn(hookCtx); err != nil {
				log.Warn(ctx, LogHookFailed, zap.Error(err))
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		}(hook)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-hookCtx.Done():
		log.Warn(ctx, LogShutdownTimeout, zap.Duration("timeout", timeout))
		mu.Lock()
		errs = append(errs, hookCtx.Err())
		mu.Unlock()
	}

	mu.Lock()
	defer mu.Unlock()
	return errors.Join(errs...)
}
