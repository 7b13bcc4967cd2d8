// Package app содержит жизненный цикл токена доступа и конвейер
// аутентифицированных запросов к бэкенду.
package app

import (
	"sync"
	"time"

	"authpipe/internal/sessiond/domain/entities"
)

// DefaultExpiryBuffer - запас до истечения, при котором токен уже считается просроченным.
const DefaultExpiryBuffer = 60 * time.Second

// Listener получает события изменения сессии. Вызывается синхронно,
// вне блокировки хранилища.
type Listener func(event entities.SessionEvent)

// TokenStore хранит единственный токен доступа в памяти процесса.
type TokenStore struct {
	now    func() time.Time
	buffer time.Duration

	mu    sync.RWMutex
	token entities.AccessToken

	listenersMu sync.Mutex
	listeners   map[int]Listener
	nextID      int
}

// TokenStoreOption настраивает TokenStore.
type TokenStoreOption func(*TokenStore)

// WithClock подменяет источник текущего времени.
func WithClock(now func() time.Time) TokenStoreOption {
	return func(s *TokenStore) {
		s.now = now
	}
}

// WithExpiryBuffer задает запас по умолчанию для IsAuthenticated.
func WithExpiryBuffer(buffer time.Duration) TokenStoreOption {
	return func(s *TokenStore) {
		if buffer >= 0 {
			s.buffer = buffer
		}
	}
}

// NewTokenStore создает пустое хранилище токена.
func NewTokenStore(opts ...TokenStoreOption) *TokenStore {
	s := &TokenStore{
		now:       time.Now,
		buffer:    DefaultExpiryBuffer,
		listeners: make(map[int]Listener),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Set сохраняет токен со сроком жизни expiresIn, заменяя предыдущий.
// Пустой токен равносилен Clear.
func (s *TokenStore) Set(token string, expiresIn time.Duration) {
	if token == "" {
		s.Clear()
		return
	}

	s.mu.Lock()
	s.token = entities.AccessToken{Value: token, ExpiresAt: s.now().Add(expiresIn)}
	s.mu.Unlock()

	s.publish(entities.EventTokenSet)
}

// Get возвращает текущий токен или пустую строку.
func (s *TokenStore) Get() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token.Value
}

// Token возвращает копию текущего токена вместе со сроком действия.
func (s *TokenStore) Token() entities.AccessToken {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// IsExpired сообщает, что токена нет или до его истечения осталось не больше buffer.
func (s *TokenStore) IsExpired(buffer time.Duration) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.token.Empty() {
		return true
	}
	return !s.now().Before(s.token.ExpiresAt.Add(-buffer))
}

// IsAuthenticated сообщает, что токен есть и не истекает в пределах запаса по умолчанию.
func (s *TokenStore) IsAuthenticated() bool {
	return !s.IsExpired(s.buffer)
}

// Clear удаляет токен. Повторный вызов ничего не делает.
func (s *TokenStore) Clear() {
	s.mu.Lock()
	had := !s.token.Empty()
	s.token = entities.AccessToken{}
	s.mu.Unlock()

	if had {
		s.publish(entities.EventTokenCleared)
	}
}

// Subscribe регистрирует слушателя и возвращает функцию отписки.
func (s *TokenStore) Subscribe(listener Listener) func() {
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()

	id := s.nextID
	s.nextID++
	s.listeners[id] = listener

	return func() {
		s.listenersMu.Lock()
		defer s.listenersMu.Unlock()
		delete(s.listeners, id)
	}
}

func (s *TokenStore) publish(event entities.SessionEvent) {
	s.listenersMu.Lock()
	listeners := make([]Listener, 0, len(s.listeners))
	for _, l := range s.listeners {
		listeners = append(listeners, l)
	}
	s.listenersMu.Unlock()

	for _, l := range listeners {
		l(event)
	}
}
