// Package cache содержит реализации кэша профилей: Redis и память процесса.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"authpipe/internal/sessiond/config"
	"authpipe/internal/sessiond/ports/cache"
	"authpipe/pkg/logger"
)

// Константы для логирования.
const (
	LogMethodGet    = "get"
	LogMethodSet    = "set"
	LogMethodDelete = "delete"

	ErrorFailedToConnect = "failed to connect to redis"
	ErrorFailedToGet     = "failed to get value from redis"
	ErrorFailedToSet     = "failed to set value in redis"
	ErrorFailedToDelete  = "failed to delete value from redis"
	ErrorFailedToClose   = "failed to close redis connection"
)

// RedisCache реализует интерфейс Cache с использованием Redis.
type RedisCache struct {
	client     *redis.Client
	prefix     string
	defaultTTL time.Duration
}

// NewRedisCache создает RedisCache и проверяет соединение.
func NewRedisCache(ctx context.Context, cfg *config.RedisConfig) (cache.Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:            cfg.GetAddressString(),
		Password:        cfg.Password,
		DB:              cfg.DB,
		DialTimeout:     cfg.ConnectTimeout,
		ReadTimeout:     cfg.ReadTimeout,
		WriteTimeout:    cfg.WriteTimeout,
		PoolSize:        cfg.PoolSize,
		MinIdleConns:    cfg.MinIdle,
		ConnMaxIdleTime: cfg.IdleTimeout,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%s: %w", ErrorFailedToConnect, err)
	}

	return &RedisCache{
		client:     client,
		prefix:     cfg.KeyPrefix,
		defaultTTL: cfg.DefaultTTL,
	}, nil
}

// Get получает значение по ключу. Для отсутствующего ключа возвращает пустую строку.
func (c *RedisCache) Get(ctx context.Context, key string) (string, error) {
	value, err := c.client.Get(ctx, c.prefix+key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", nil
		}
		logger.Log(ctx).Error(ctx, ErrorFailedToGet, zap.String("method", LogMethodGet), zap.Error(err))
		return "", fmt.Errorf("%s: %w", ErrorFailedToGet, err)
	}

	return value, nil
}

// Set устанавливает значение для ключа с временем жизни. Нулевой ttl
// заменяется значением по умолчанию.
func (c *RedisCache) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	if ttl == 0 {
		ttl = c.defaultTTL
	}

	if err := c.client.Set(ctx, c.prefix+key, value, ttl).Err(); err != nil {
		logger.Log(ctx).Error(ctx, ErrorFailedToSet, zap.String("method", LogMethodSet), zap.Error(err))
		return fmt.Errorf("%s: %w", ErrorFailedToSet, err)
	}

	return nil
}

// Delete удаляет значение по ключу.
func (c *RedisCache) Delete(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, c.prefix+key).Err(); err != nil {
		logger.Log(ctx).Error(ctx, ErrorFailedToDelete, zap.String("method", LogMethodDelete), zap.Error(err))
		return fmt.Errorf("%s: %w", ErrorFailedToDelete, err)
	}

	return nil
}

// Close закрывает соединение с Redis.
func (c *RedisCache) Close() error {
	if err := c.client.Close(); err != nil {
		return fmt.Errorf("%s: %w", ErrorFailedToClose, err)
	}
	return nil
}
