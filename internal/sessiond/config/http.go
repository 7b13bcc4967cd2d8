package config

import (
	"fmt"
	"time"
)

// HTTPConfig представляет конфигурацию локального прокси.
type HTTPConfig struct {
	Enabled      bool          `yaml:"enabled" env:"SESSIOND_HTTP_ENABLED" env-default:"true"`
	Host         string        `yaml:"host" env:"SESSIOND_HTTP_HOST" env-default:"127.0.0.1"`
	Port         int           `yaml:"port" env:"SESSIOND_HTTP_PORT" env-default:"8787" validate:"gte=0,lte=65535"`
	ReadTimeout  time.Duration `yaml:"read_timeout" env:"SESSIOND_HTTP_READ_TIMEOUT" env-default:"5s"`
	WriteTimeout time.Duration `yaml:"write_timeout" env:"SESSIOND_HTTP_WRITE_TIMEOUT" env-default:"30s"`
}

// GetAddress возвращает адрес HTTP сервера.
func (c *HTTPConfig) GetAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
