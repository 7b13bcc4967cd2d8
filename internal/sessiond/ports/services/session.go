// Package services определяет интерфейсы сервисов, которые использует локальный прокси.
package services

import (
	"context"
	"net/http"

	"authpipe/internal/sessiond/domain/entities"
)

// Transport выполняет аутентифицированные запросы к бэкенду.
type Transport interface {
	Request(ctx context.Context, method, url string, body any) (*http.Response, error)
}

// Session сообщает состояние токена доступа.
type Session interface {
	Token() entities.AccessToken
	IsAuthenticated() bool
}

// Gate проверяет готовность сессии и права пользователя.
type Gate interface {
	AuthReady(ctx context.Context) bool
	Identity(ctx context.Context) (*entities.Identity, error)
	EnsureAdmin(ctx context.Context) (*entities.Identity, error)
}

// AuthService выполняет выход пользователя.
type AuthService interface {
	Logout(ctx context.Context) error
}
