// Package resilience содержит механизмы отказоустойчивости вызовов бэкенда.
package resilience

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"authpipe/pkg/logger"
)

// CircuitState представляет состояние Circuit Breaker.
type CircuitState int

// Состояния Circuit Breaker.
const (
	// StateClosed - нормальное состояние, запросы проходят.
	StateClosed CircuitState = iota
	// StateOpen - бэкенд недоступен, запросы отклоняются без сети.
	StateOpen
	// StateHalfOpen - пробные запросы после таймаута.
	StateHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Константы для логирования.
const (
	LogCircuitStateChange = "circuit breaker state changed"
	LogCircuitTrip        = "circuit breaker tripped"
	LogCircuitReset       = "circuit breaker reset"
	LogCircuitAllowRetry  = "circuit breaker allowing probe request"
	LogCircuitReject      = "circuit breaker rejected request"
	LogCircuitIgnored     = "circuit breaker ignored cancelled request"
)

// ErrCircuitOpen возвращается, когда Circuit Breaker находится в открытом состоянии.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitBreakerConfig содержит настройки Circuit Breaker.
type CircuitBreakerConfig struct {
	// ErrorThreshold - количество ошибок подряд до перехода в открытое состояние.
	ErrorThreshold int
	// Timeout - время в открытом состоянии до пробного запроса.
	Timeout time.Duration
	// SuccessThreshold - количество успешных пробных запросов для закрытия.
	SuccessThreshold int
}

// DefaultCircuitBreakerConfig возвращает конфигурацию Circuit Breaker по умолчанию.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		ErrorThreshold:   5,
		Timeout:          10 * time.Second,
		SuccessThreshold: 2,
	}
}

// CircuitBreaker реализует паттерн Circuit Breaker.
type CircuitBreaker struct {
	name string
	now  func() time.Time

	mu              sync.Mutex
	state           CircuitState
	config          CircuitBreakerConfig
	failures        int
	successes       int
	lastStateChange time.Time
}

// NewCircuitBreaker создает новый экземпляр Circuit Breaker.
func NewCircuitBreaker(name string, config CircuitBreakerConfig) *CircuitBreaker {
	return newCircuitBreaker(name, config, time.Now)
}

func newCircuitBreaker(name string, config CircuitBreakerConfig, now func() time.Time) *CircuitBreaker {
	return &CircuitBreaker{
		name:            name,
		now:             now,
		state:           StateClosed,
		config:          config,
		lastStateChange: now(),
	}
}

// Execute выполняет функцию с защитой Circuit Breaker.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func() error) error {
	if !cb.AllowRequest(ctx) {
		return ErrCircuitOpen
	}

	err := fn()
	cb.RecordResult(ctx, err)
	return err
}

// AllowRequest проверяет возможность выполнения запроса.
func (cb *CircuitBreaker) AllowRequest(ctx context.Context) bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	log := cb.logger(ctx)

	switch cb.state {
	case StateClosed:
		return true
	case StateOpen:
		if cb.now().Sub(cb.lastStateChange) < cb.config.Timeout {
			log.Debug(ctx, LogCircuitReject)
			return false
		}
		cb.setState(ctx, log, StateHalfOpen)
		log.Info(ctx, LogCircuitAllowRetry)
		return true
	case StateHalfOpen:
		return true
	default:
		return false
	}
}

// RecordResult записывает результат выполнения функции. Отмена вызывающим
// (context.Canceled) не считается ни ошибкой, ни успехом.
func (cb *CircuitBreaker) RecordResult(ctx context.Context, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	log := cb.logger(ctx)

	if errors.Is(err, context.Canceled) {
		log.Debug(ctx, LogCircuitIgnored)
		return
	}

	if err != nil {
		cb.onFailure(ctx, log)
		return
	}

	cb.onSuccess(ctx, log)
}

func (cb *CircuitBreaker) onFailure(ctx context.Context, log *logger.Logger) {
	switch cb.state {
	case StateClosed:
		cb.failures++
		if cb.failures >= cb.config.ErrorThreshold {
			log.Warn(ctx, LogCircuitTrip, zap.Int("failures", cb.failures))
			cb.setState(ctx, log, StateOpen)
		}
	case StateHalfOpen:
		log.Warn(ctx, LogCircuitTrip, zap.Int("failures", cb.failures))
		cb.setState(ctx, log, StateOpen)
	}
}

func (cb *CircuitBreaker) onSuccess(ctx context.Context, log *logger.Logger) {
	switch cb.state {
	case StateClosed:
		cb.failures = 0
	case StateHalfOpen:
		cb.successes++
		if cb.successes >= cb.config.SuccessThreshold {
			log.Info(ctx, LogCircuitReset)
			cb.setState(ctx, log, StateClosed)
		}
	}
}

// setState вызывается под cb.mu.
func (cb *CircuitBreaker) setState(ctx context.Context, log *logger.Logger, state CircuitState) {
	cb.state = state
	cb.lastStateChange = cb.now()
	cb.successes = 0
	if state == StateClosed {
		cb.failures = 0
	}
	log.Info(ctx, LogCircuitStateChange, zap.Stringer("new_state", state))
}

func (cb *CircuitBreaker) logger(ctx context.Context) *logger.Logger {
	return logger.Log(ctx).With(
		zap.String("circuit_breaker", cb.name),
		zap.Stringer("circuit_state", cb.state),
	)
}

// GetState возвращает текущее состояние Circuit Breaker.
func (cb *CircuitBreaker) GetState() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}
