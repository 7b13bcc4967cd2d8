package resilience

import (
	"context"

	"go.uber.org/zap"

	"authpipe/pkg/logger"
)

// Policy объединяет Circuit Breaker и повторы для вызовов одного бэкенда.
type Policy struct {
	name           string
	circuitBreaker *CircuitBreaker
	retry          *Retry
}

// NewPolicy создает политику отказоустойчивости.
func NewPolicy(name string, cbConfig CircuitBreakerConfig, retryConfig RetryConfig) *Policy {
	return &Policy{
		name:           name,
		circuitBreaker: NewCircuitBreaker(name, cbConfig),
		retry:          NewRetry(name, retryConfig),
	}
}

// NewDefaultPolicy создает политику с настройками по умолчанию.
func NewDefaultPolicy(name string) *Policy {
	return NewPolicy(name, DefaultCircuitBreakerConfig(), DefaultRetryConfig())
}

// Execute выполняет операцию под Circuit Breaker. Повторы применяются
// только когда retryable == true: неидемпотентные запросы нельзя отправлять дважды.
func (p *Policy) Execute(ctx context.Context, operation string, retryable bool, fn func() error) error {
	logger.Log(ctx).Debug(ctx, "executing operation with resilience",
		zap.String("policy", p.name),
		zap.String("operation", operation),
		zap.Bool("retryable", retryable))

	if !retryable {
		return p.circuitBreaker.Execute(ctx, fn)
	}

	return p.retry.Execute(ctx, func() error {
		return p.circuitBreaker.Execute(ctx, fn)
	})
}

// State возвращает состояние Circuit Breaker политики.
func (p *Policy) State() CircuitState {
	return p.circuitBreaker.GetState()
}
