// Package entities содержит доменные сущности клиента сессии.
package entities

import "time"

// AccessToken - краткоживущий bearer токен, хранящийся только в памяти.
type AccessToken struct {
	Value     string
	ExpiresAt time.Time
}

// Empty сообщает, что токен не задан.
func (t AccessToken) Empty() bool {
	return t.Value == ""
}

// TokenGrant - ответ /login и /refresh.
type TokenGrant struct {
	AccessToken string `json:"accessToken"`
	ExpiresIn   int64  `json:"expiresIn"`
}

// SessionEvent - изменение состояния сессии, о котором уведомляются подписчики.
type SessionEvent int

const (
	// EventTokenSet - сохранен новый токен доступа.
	EventTokenSet SessionEvent = iota
	// EventTokenCleared - токен доступа удален.
	EventTokenCleared
)

func (e SessionEvent) String() string {
	switch e {
	case EventTokenSet:
		return "token_set"
	case EventTokenCleared:
		return "token_cleared"
	default:
		return "unknown"
	}
}
