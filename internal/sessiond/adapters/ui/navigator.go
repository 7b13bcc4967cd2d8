package ui

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"authpipe/pkg/logger"
)

// LogNavigate пишется при каждом переходе.
const LogNavigate = "navigating"

// Location запоминает текущую страницу пользователя. Переход на ту же
// страницу не повторяется.
type Location struct {
	mu      sync.RWMutex
	current string
	onMove  func(target string)
}

// NewLocation создает Location с начальной страницей start. onMove, если
// задан, вызывается при каждом фактическом переходе.
func NewLocation(start string, onMove func(target string)) *Location {
	return &Location{current: start, onMove: onMove}
}

// Navigate переходит на target.
func (l *Location) Navigate(ctx context.Context, target string) {
	l.mu.Lock()
	if l.current == target {
		l.mu.Unlock()
		return
	}
	from := l.current
	l.current = target
	l.mu.Unlock()

	logger.Log(ctx).Info(ctx, LogNavigate, zap.String("from", from), zap.String("to", target))
	if l.onMove != nil {
		l.onMove(target)
	}
}

// Current возвращает текущую страницу.
func (l *Location) Current() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.current
}
