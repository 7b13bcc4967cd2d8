package cache

import (
	"context"
	"sync"
	"time"

	"authpipe/internal/sessiond/ports/cache"
)

type memoryEntry struct {
	value     string
	expiresAt time.Time
}

// MemoryCache хранит значения в памяти процесса. Используется, когда Redis не настроен.
type MemoryCache struct {
	now        func() time.Time
	defaultTTL time.Duration

	mu      sync.Mutex
	entries map[string]memoryEntry
}

// NewMemoryCache создает MemoryCache.
func NewMemoryCache(defaultTTL time.Duration) cache.Cache {
	return newMemoryCache(defaultTTL, time.Now)
}

func newMemoryCache(defaultTTL time.Duration, now func() time.Time) *MemoryCache {
	return &MemoryCache{
		now:        now,
		defaultTTL: defaultTTL,
		entries:    make(map[string]memoryEntry),
	}
}

// Get возвращает значение или пустую строку, если ключа нет или он истек.
func (c *MemoryCache) Get(_ context.Context, key string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return "", nil
	}
	if !entry.expiresAt.IsZero() && !c.now().Before(entry.expiresAt) {
		delete(c.entries, key)
		return "", nil
	}
	return entry.value, nil
}

// Set сохраняет значение. Нулевой ttl заменяется значением по умолчанию,
// отрицательный означает хранение без срока.
func (c *MemoryCache) Set(_ context.Context, key string, value string, ttl time.Duration) error {
	if ttl == 0 {
		ttl = c.defaultTTL
	}

	entry := memoryEntry{value: value}
	if ttl > 0 {
		entry.expiresAt = c.now().Add(ttl)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry
	return nil
}

// Delete удаляет значение.
func (c *MemoryCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
	return nil
}

// Close очищает кэш.
func (c *MemoryCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]memoryEntry)
	return nil
}
