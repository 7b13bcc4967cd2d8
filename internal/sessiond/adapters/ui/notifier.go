// Package ui содержит реализации уведомлений и навигации для процесса без
// графического интерфейса: события пишутся в лог и доступны через локальный прокси.
package ui

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"authpipe/internal/sessiond/ports/ui"
	"authpipe/pkg/logger"
)

// LogNotification - сообщение пользователю в журнале уведомлений.
const LogNotification = "user notification"

// DefaultCapacity - сколько последних уведомлений хранится.
const DefaultCapacity = 20

// Notice - уведомление, показанное пользователю.
type Notice struct {
	Level   ui.Level  `json:"level"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// Journal пишет уведомления в лог и хранит последние из них.
type Journal struct {
	capacity int

	mu      sync.Mutex
	notices []Notice
}

// NewJournal создает Journal, хранящий не больше capacity уведомлений.
func NewJournal(capacity int) *Journal {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Journal{capacity: capacity}
}

// Notify записывает уведомление.
func (j *Journal) Notify(ctx context.Context, level ui.Level, message string) {
	log := logger.Log(ctx).With(zap.String("level", string(level)))
	switch level {
	case ui.LevelError:
		log.Error(ctx, LogNotification, zap.String("message", message))
	case ui.LevelWarning:
		log.Warn(ctx, LogNotification, zap.String("message", message))
	default:
		log.Info(ctx, LogNotification, zap.String("message", message))
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	j.notices = append(j.notices, Notice{Level: level, Message: message, At: time.Now()})
	if over := len(j.notices) - j.capacity; over > 0 {
		j.notices = append([]Notice(nil), j.notices[over:]...)
	}
}

// Recent возвращает сохраненные уведомления, старые первыми.
func (j *Journal) Recent() []Notice {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]Notice(nil), j.notices...)
}
