package config

import (
	"strconv"
	"time"
)

// RedisConfig представляет конфигурацию для Redis. При Enabled == false
// профили кэшируются в памяти процесса.
type RedisConfig struct {
	Enabled        bool          `yaml:"enabled" env:"SESSIOND_REDIS_ENABLED" env-default:"false"`
	Host           string        `yaml:"host" env:"SESSIOND_REDIS_HOST" env-default:"localhost"`
	Port           int           `yaml:"port" env:"SESSIOND_REDIS_PORT" env-default:"6379"`
	Password       string        `yaml:"password" env:"SESSIOND_REDIS_PASSWORD" env-default:""`
	DB             int           `yaml:"db" env:"SESSIOND_REDIS_DB" env-default:"0"`
	ConnectTimeout time.Duration `yaml:"connect_timeout" env:"SESSIOND_REDIS_CONNECT_TIMEOUT" env-default:"5s"`
	ReadTimeout    time.Duration `yaml:"read_timeout" env:"SESSIOND_REDIS_READ_TIMEOUT" env-default:"3s"`
	WriteTimeout   time.Duration `yaml:"write_timeout" env:"SESSIOND_REDIS_WRITE_TIMEOUT" env-default:"3s"`
	PoolSize       int           `yaml:"pool_size" env:"SESSIOND_REDIS_POOL_SIZE" env-default:"10"`
	MinIdle        int           `yaml:"min_idle" env:"SESSIOND_REDIS_MIN_IDLE" env-default:"2"`
	IdleTimeout    time.Duration `yaml:"idle_timeout" env:"SESSIOND_REDIS_IDLE_TIMEOUT" env-default:"5m"`
	KeyPrefix      string        `yaml:"key_prefix" env:"SESSIOND_REDIS_KEY_PREFIX" env-default:"sessiond:"`
	DefaultTTL     time.Duration `yaml:"default_ttl" env:"SESSIOND_REDIS_DEFAULT_TTL" env-default:"5m"`
}

// GetAddressString возвращает адрес Redis строкой.
func (c *RedisConfig) GetAddressString() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}
