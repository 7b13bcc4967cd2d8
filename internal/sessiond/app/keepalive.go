package app

import (
	"context"
	"time"

	"go.uber.org/zap"

	"authpipe/pkg/logger"
)

// Константы для логирования.
const (
	LogKeepaliveStarted = "session keepalive started"
	LogKeepaliveStopped = "session keepalive stopped"
	LogKeepaliveRefresh = "refreshing token ahead of expiry"
)

// Keepalive заранее обновляет токен, пока сессия активна.
type Keepalive struct {
	store     *TokenStore
	refresher Refresher
	interval  time.Duration
	buffer    time.Duration
}

// NewKeepalive создает Keepalive, проверяющий токен каждые interval.
// Токен обновляется, если он истечет раньше следующей проверки с учетом запаса хранилища.
func NewKeepalive(store *TokenStore, refresher Refresher, interval time.Duration) *Keepalive {
	return &Keepalive{
		store:     store,
		refresher: refresher,
		interval:  interval,
		buffer:    store.buffer + interval,
	}
}

// Run проверяет токен до отмены ctx.
func (k *Keepalive) Run(ctx context.Context) {
	if k.interval <= 0 {
		return
	}

	log := logger.Log(ctx).With(zap.Duration("interval", k.interval))
	log.Info(ctx, LogKeepaliveStarted)
	defer log.Info(ctx, LogKeepaliveStopped)

	ticker := time.NewTicker(k.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			k.Check(ctx)
		}
	}
}

// Check обновляет токен, если он скоро истечет. Без токена ничего не делает:
// восстановление сессии выполняет SessionGate. Возвращает true, если было обновление.
func (k *Keepalive) Check(ctx context.Context) bool {
	if k.store.Get() == "" || !k.store.IsExpired(k.buffer) {
		return false
	}
	logger.Log(ctx).Debug(ctx, LogKeepaliveRefresh)
	return k.refresher.Refresh(ctx)
}
