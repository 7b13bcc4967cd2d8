package app

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"

	"authpipe/internal/sessiond/domain/entities"
	"authpipe/internal/sessiond/ports/transport"
	"authpipe/internal/sessiond/resilience"
	"authpipe/pkg/logger"
)

// Константы для логирования.
const (
	LogLoginSucceeded  = "logged in"
	LogLoginFailed     = "login failed"
	LogLogoutRejected  = "logout rejected by server"
	LogLogoutCompleted = "logged out"

	ErrBuildLoginRequest  = "failed to build login request"
	ErrSendLoginRequest   = "failed to send login request"
	ErrBuildLogoutRequest = "failed to build logout request"
	ErrSendLogoutRequest  = "failed to send logout request"
)

// Credentials - тело запроса входа.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthServiceConfig содержит абсолютные URL эндпоинтов входа и выхода.
type AuthServiceConfig struct {
	LoginURL  string
	LogoutURL string
}

// AuthService выполняет вход, выход и получение профиля.
type AuthService struct {
	store  *TokenStore
	sender transport.Sender
	gate   *SessionGate
	retry  *resilience.Retry
	cfg    AuthServiceConfig
}

// NewAuthService создает AuthService. retry применяется только к сетевым
// ошибкам запроса выхода.
func NewAuthService(
	store *TokenStore,
	sender transport.Sender,
	gate *SessionGate,
	retry *resilience.Retry,
	cfg AuthServiceConfig,
) *AuthService {
	return &AuthService{
		store:  store,
		sender: sender,
		gate:   gate,
		retry:  retry,
		cfg:    cfg,
	}
}

// Login входит по email и паролю. Refresh cookie сохраняется в хранилище
// cookie отправителя, токен доступа - в TokenStore.
func (s *AuthService) Login(ctx context.Context, creds Credentials) error {
	ctx, requestID := logger.EnsureRequestID(ctx)
	log := logger.Log(ctx).With(zap.String("email", creds.Email))

	payload, err := json.Marshal(creds)
	if err != nil {
		return fmt.Errorf("%s: %w", ErrBuildLoginRequest, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.LoginURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("%s: %w", ErrBuildLoginRequest, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set(logger.RequestIDHeader, requestID)

	resp, err := s.sender.Send(req)
	if err != nil {
		log.Error(ctx, LogLoginFailed, zap.Error(err))
		return fmt.Errorf("%s: %w", ErrSendLoginRequest, err)
	}
	defer drainAndClose(resp)

	if !isSuccess(resp.StatusCode) {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		apiErr := newAPIError(resp.StatusCode, raw)
		log.Warn(ctx, LogLoginFailed, zap.Error(apiErr))
		return apiErr
	}

	token, lifetime, err := decodeGrant(resp.Body, s.store.now())
	if err != nil {
		log.Error(ctx, LogLoginFailed, zap.Error(err))
		return err
	}

	s.gate.ForgetIdentity(ctx, s.store.Get())
	s.store.Set(token, lifetime)
	log.Info(ctx, LogLoginSucceeded)
	return nil
}

// Logout сообщает серверу о выходе и всегда очищает локальное состояние,
// даже если сервер недоступен. Возвращает сетевую ошибку для информации.
func (s *AuthService) Logout(ctx context.Context) error {
	ctx, requestID := logger.EnsureRequestID(ctx)
	log := logger.Log(ctx)

	token := s.store.Get()
	defer func() {
		s.store.Clear()
		s.gate.ForgetIdentity(ctx, token)
		log.Info(ctx, LogLogoutCompleted)
	}()

	err := s.retry.Execute(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.LogoutURL, http.NoBody)
		if err != nil {
			return fmt.Errorf("%s: %w", ErrBuildLogoutRequest, err)
		}
		req.Header.Set(logger.RequestIDHeader, requestID)
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}

		resp, err := s.sender.Send(req)
		if err != nil {
			return fmt.Errorf("%s: %w", ErrSendLogoutRequest, err)
		}
		defer drainAndClose(resp)

		if !isSuccess(resp.StatusCode) {
			log.Warn(ctx, LogLogoutRejected, zap.Int("status", resp.StatusCode))
		}
		return nil
	})
	if err != nil {
		log.Warn(ctx, ErrSendLogoutRequest, zap.Error(err))
	}
	return err
}

// Me возвращает профиль текущего пользователя.
func (s *AuthService) Me(ctx context.Context) (*entities.Identity, error) {
	return s.gate.Identity(ctx)
}
