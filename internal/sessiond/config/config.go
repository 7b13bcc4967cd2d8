// Package config содержит конфигурацию клиента сессии.
package config

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	pkgconfig "authpipe/pkg/config"
	"authpipe/pkg/logger"
)

// ServiceName - имя сервиса в логах.
const ServiceName = "sessiond"

// Константы ошибок и сообщений для конфигурации.
const (
	LogConfigLoaded     = "session client configuration"
	ErrFailedLoadConfig = "failed to load session client configuration"
)

// Config представляет полную конфигурацию клиента сессии.
type Config struct {
	Backend    BackendConfig    `yaml:"backend"`
	Auth       AuthConfig       `yaml:"auth"`
	HTTP       HTTPConfig       `yaml:"http"`
	Redis      RedisConfig      `yaml:"redis"`
	Resilience ResilienceConfig `yaml:"resilience"`
	Logging    LoggingConfig    `yaml:"logging"`
	Shutdown   ShutdownConfig   `yaml:"shutdown"`
}

// Load загружает конфигурацию из файла path (если он есть) и окружения.
func Load(ctx context.Context, path string) (*Config, error) {
	cfg, err := pkgconfig.Load[Config](ctx, ServiceName, path)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", ErrFailedLoadConfig, err)
	}

	logger.Log(ctx).Info(ctx, LogConfigLoaded,
		zap.String("backend_url", cfg.Backend.BaseURL),
		zap.Duration("request_timeout", cfg.Backend.RequestTimeout),
		zap.Duration("refresh_timeout", cfg.Backend.RefreshTimeout),
		zap.Duration("expiry_buffer", cfg.Auth.ExpiryBuffer),
		zap.Duration("keepalive_interval", cfg.Auth.KeepaliveInterval),
		zap.String("proxy_address", cfg.HTTP.GetAddress()),
		zap.Bool("redis_enabled", cfg.Redis.Enabled),
		zap.String("log_level", cfg.Logging.Level),
		zap.String("log_mode", cfg.Logging.Mode))

	return cfg, nil
}
