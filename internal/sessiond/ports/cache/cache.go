// Package cache определяет интерфейс кэша профилей пользователей.
package cache

import (
	"context"
	"time"
)

// Cache определяет интерфейс для работы с кэшем.
// Отсутствие ключа - не ошибка: Get возвращает пустую строку.
type Cache interface {
	Get(ctx context.Context, key string) (string, error)

	Set(ctx context.Context, key string, value string, ttl time.Duration) error

	Delete(ctx context.Context, key string) error

	Close() error
}
