package config

import (
	"time"

	"authpipe/internal/sessiond/resilience"
)

// ResilienceConfig содержит настройки Circuit Breaker и повторов.
type ResilienceConfig struct {
	ErrorThreshold   int           `yaml:"error_threshold" env:"SESSIOND_CB_ERROR_THRESHOLD" env-default:"5" validate:"gt=0"`
	OpenTimeout      time.Duration `yaml:"open_timeout" env:"SESSIOND_CB_OPEN_TIMEOUT" env-default:"10s" validate:"gt=0"`
	SuccessThreshold int           `yaml:"success_threshold" env:"SESSIOND_CB_SUCCESS_THRESHOLD" env-default:"2" validate:"gt=0"`
	RetryAttempts    int           `yaml:"retry_attempts" env:"SESSIOND_RETRY_ATTEMPTS" env-default:"3" validate:"gt=0"`
	RetryBackoff     time.Duration `yaml:"retry_backoff" env:"SESSIOND_RETRY_BACKOFF" env-default:"100ms"`
	RetryMaxBackoff  time.Duration `yaml:"retry_max_backoff" env:"SESSIOND_RETRY_MAX_BACKOFF" env-default:"1s"`
}

// CircuitBreaker возвращает настройки Circuit Breaker.
func (c *ResilienceConfig) CircuitBreaker() resilience.CircuitBreakerConfig {
	return resilience.CircuitBreakerConfig{
		ErrorThreshold:   c.ErrorThreshold,
		Timeout:          c.OpenTimeout,
		SuccessThreshold: c.SuccessThreshold,
	}
}

// Retry возвращает настройки повторов.
func (c *ResilienceConfig) Retry() resilience.RetryConfig {
	cfg := resilience.DefaultRetryConfig()
	cfg.MaxAttempts = c.RetryAttempts
	cfg.InitialBackoff = c.RetryBackoff
	cfg.MaxBackoff = c.RetryMaxBackoff
	return cfg
}
