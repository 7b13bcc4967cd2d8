package config

import (
	"time"

	"authpipe/pkg/logger"
)

// LoggingConfig представляет конфигурацию логирования.
type LoggingConfig struct {
	Level string `yaml:"level" env:"SESSIOND_LOGGER_LEVEL" env-default:"info" validate:"oneof=debug info warn error"`
	Mode  string `yaml:"mode" env:"SESSIOND_LOGGER_MODE" env-default:"production" validate:"oneof=development production"`
}

// GetEnvironment возвращает режим работы логгера.
func (c *LoggingConfig) GetEnvironment() logger.Environment {
	if c.Mode == "development" {
		return logger.Development
	}
	return logger.Production
}

// ShutdownConfig представляет конфигурацию для корректного завершения работы.
type ShutdownConfig struct {
	Timeout int `yaml:"timeout" env:"SESSIOND_GRACEFUL_SHUTDOWN_TIMEOUT" env-default:"5" validate:"gt=0"`
}

// GetTimeout возвращает таймаут завершения работы в виде Duration.
func (c *ShutdownConfig) GetTimeout() time.Duration {
	return time.Duration(c.Timeout) * time.Second
}
