package entities

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Коды ошибок, о которых договорились сервер и клиент.
const (
	CodeAccountBanned        = "ACCOUNT_BANNED"
	CodeRateLimitExceeded    = "RATE_LIMIT_EXCEEDED"
	CodeSessionLimitExceeded = "SESSION_LIMIT_EXCEEDED"
)

// Ошибки жизненного цикла сессии.
var (
	ErrAccountBanned = errors.New("account banned")
	ErrRateLimited   = errors.New("rate limit exceeded")
	ErrSessionLimit  = errors.New("session limit exceeded")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrForbidden     = errors.New("forbidden")
	ErrRefreshFailed = errors.New("token refresh failed")
	ErrNotAdmin      = errors.New("admin role required")
	ErrRequestFailed = errors.New("request failed")
)

// APIError - нормализованная ошибка ответа сервера.
type APIError struct {
	Message    string        `json:"error"`
	Code       string        `json:"code,omitempty"`
	Status     int           `json:"status"`
	RetryAfter time.Duration `json:"-"`
	Limit      int           `json:"limit,omitempty"`
	Remaining  int           `json:"remaining,omitempty"`
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%d %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("%d: %s", e.Status, e.Message)
}

// Unwrap сопоставляет ошибку с сигнальной по коду и статусу.
func (e *APIError) Unwrap() error {
	switch {
	case e.Status == http.StatusForbidden && e.Code == CodeAccountBanned:
		return ErrAccountBanned
	case e.Status == http.StatusTooManyRequests && e.Code == CodeSessionLimitExceeded:
		return ErrSessionLimit
	case e.Status == http.StatusTooManyRequests:
		return ErrRateLimited
	case e.Status == http.StatusUnauthorized:
		return ErrUnauthorized
	case e.Status == http.StatusForbidden:
		return ErrForbidden
	default:
		return ErrRequestFailed
	}
}

// ErrorBody - форма тела ошибки сервера.
type ErrorBody struct {
	Error      string `json:"error"`
	Code       string `json:"code"`
	Message    string `json:"message"`
	RetryAfter int64  `json:"retryAfter"`
	Limit      int    `json:"limit"`
	Remaining  int    `json:"remaining"`
}

// Sentinel возвращает код из поля code, а если его нет - из error,
// когда там записан машинный код (например, ACCOUNT_BANNED).
func (b ErrorBody) Sentinel() string {
	if b.Code != "" {
		return b.Code
	}
	if isMachineCode(b.Error) {
		return b.Error
	}
	return ""
}

// Text возвращает человекочитаемое сообщение: message имеет приоритет над
// машинным кодом в error, иначе используется error.
func (b ErrorBody) Text() string {
	if b.Error != "" && !isMachineCode(b.Error) {
		return b.Error
	}
	if b.Message != "" {
		return b.Message
	}
	return b.Error
}

func isMachineCode(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if (r < 'A' || r > 'Z') && r != '_' && (r < '0' || r > '9') {
			return false
		}
	}
	return strings.ContainsRune(s, '_')
}
