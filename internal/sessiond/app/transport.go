package app

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"authpipe/internal/sessiond/domain/entities"
	"authpipe/internal/sessiond/ports/transport"
	"authpipe/internal/sessiond/ports/ui"
	"authpipe/pkg/logger"
)

// Константы для логирования и ошибок транспорта.
const (
	LogRequestSent         = "request sent"
	LogRetryAfterRefresh   = "retrying request after token refresh"
	LogSessionLost         = "session could not be refreshed"
	LogRefreshWaitAborted  = "request cancelled while waiting for token refresh"
	LogAccountBanned       = "account banned"
	LogRateLimited         = "request rate limited"
	LogErrorBodyUnreadable = "failed to read error body"

	ErrEncodeBody    = "failed to encode request body"
	ErrBuildRequest  = "failed to build request"
	ErrSendRequest   = "failed to send request"
	ErrResolveTarget = "failed to resolve request url"
	ErrAwaitRefresh  = "request cancelled during token refresh"
)

// Сообщения пользователю.
const (
	MsgAccountBanned = "Your account has been banned."
	MsgRateLimited   = "Too many requests. Please try again later."
	MsgSessionLimit  = "Too many active sessions. Please sign out on another device."
)

const maxErrorBody = 64 << 10

// RequestBody - тело запроса с явным типом содержимого.
type RequestBody struct {
	Data        []byte
	ContentType string
}

// TransportConfig содержит параметры AuthenticatedTransport.
type TransportConfig struct {
	// BaseURL - адрес бэкенда, относительно которого разрешаются пути.
	BaseURL string
	// RefreshPath - путь эндпоинта обновления; 401 от него не вызывает обновление.
	RefreshPath string
	// LoginPage - страница входа для перенаправления.
	LoginPage string
	// BanRedirectDelay - задержка перед переходом на страницу входа после блокировки.
	BanRedirectDelay time.Duration
}

// AuthenticatedTransport выполняет запросы с bearer токеном и прозрачно
// повторяет запрос один раз после обновления токена.
type AuthenticatedTransport struct {
	store      *TokenStore
	refresher  Refresher
	sender     transport.Sender
	notifier   ui.Notifier
	redirector *Redirector
	cfg        TransportConfig
	base       *url.URL
}

// NewAuthenticatedTransport создает транспорт.
func NewAuthenticatedTransport(
	store *TokenStore,
	refresher Refresher,
	sender transport.Sender,
	notifier ui.Notifier,
	redirector *Redirector,
	cfg TransportConfig,
) (*AuthenticatedTransport, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", ErrResolveTarget, err)
	}
	return &AuthenticatedTransport{
		store:      store,
		refresher:  refresher,
		sender:     sender,
		notifier:   notifier,
		redirector: redirector,
		cfg:        cfg,
		base:       base,
	}, nil
}

// Request выполняет запрос method к url. body может быть nil, []byte,
// string, io.Reader, RequestBody или любым значением, сериализуемым в JSON.
//
// Блокировка аккаунта и превышение лимитов возвращаются как *entities.APIError.
// Если обновить токен после 401 не удалось, возвращается исходный ответ 401.
// Если ctx отменен во время ожидания обновления, возвращается ошибка ctx, а
// токен и текущая страница не меняются.
func (t *AuthenticatedTransport) Request(ctx context.Context, method, rawURL string, body any) (*http.Response, error) {
	payload, contentType, err := encodeBody(body)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", ErrEncodeBody, err)
	}

	target, err := t.resolve(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", ErrResolveTarget, err)
	}

	ctx, _ = logger.EnsureRequestID(ctx)
	log := logger.Log(ctx).With(zap.String("method", method), zap.String("url", target.Redacted()))

	resp, err := t.send(ctx, method, target, payload, contentType)
	if err != nil {
		return nil, err
	}
	log.Debug(ctx, LogRequestSent, zap.Int("status", resp.StatusCode))

	if apiErr := t.inspect(ctx, resp); apiErr != nil {
		return nil, apiErr
	}

	if resp.StatusCode != http.StatusUnauthorized || t.isRefreshEndpoint(target) {
		return resp, nil
	}

	if !t.refresher.Refresh(ctx) {
		if ctxErr := ctx.Err(); ctxErr != nil {
			drainAndClose(resp)
			log.Debug(ctx, LogRefreshWaitAborted, zap.Error(ctxErr))
			return nil, fmt.Errorf("%s: %w", ErrAwaitRefresh, ctxErr)
		}
		log.Warn(ctx, LogSessionLost)
		t.store.Clear()
		t.redirector.Redirect(ctx, t.cfg.LoginPage, 0)
		return resp, nil
	}

	drainAndClose(resp)
	log.Info(ctx, LogRetryAfterRefresh)

	retried, err := t.send(ctx, method, target, payload, contentType)
	if err != nil {
		return nil, err
	}
	if apiErr := t.inspect(ctx, retried); apiErr != nil {
		return nil, apiErr
	}
	return retried, nil
}

func (t *AuthenticatedTransport) send(
	ctx context.Context,
	method string,
	target *url.URL,
	payload []byte,
	contentType string,
) (*http.Response, error) {
	var reader io.Reader = http.NoBody
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target.String(), reader)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", ErrBuildRequest, err)
	}

	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token := t.store.Get(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if requestID, ok := logger.GetRequestID(ctx); ok {
		req.Header.Set(logger.RequestIDHeader, requestID)
	}

	resp, err := t.sender.Send(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", ErrSendRequest, err)
	}
	return resp, nil
}

// inspect обрабатывает блокировку аккаунта и превышение лимитов. Для
// остальных ответов тело остается непрочитанным.
func (t *AuthenticatedTransport) inspect(ctx context.Context, resp *http.Response) *entities.APIError {
	switch resp.StatusCode {
	case http.StatusForbidden:
		body, ok := peekErrorBody(ctx, resp)
		if !ok || body.Sentinel() != entities.CodeAccountBanned {
			return nil
		}
		drainAndClose(resp)
		return t.onBanned(ctx, body)
	case http.StatusTooManyRequests:
		body, _ := peekErrorBody(ctx, resp)
		drainAndClose(resp)
		return t.onRateLimited(ctx, resp, body)
	default:
		return nil
	}
}

func (t *AuthenticatedTransport) onBanned(ctx context.Context, body entities.ErrorBody) *entities.APIError {
	message := body.Text()
	if message == "" || message == entities.CodeAccountBanned {
		message = MsgAccountBanned
	}

	logger.Log(ctx).Warn(ctx, LogAccountBanned)
	t.store.Clear()
	t.notifier.Notify(ctx, ui.LevelError, message)
	t.redirector.Redirect(ctx, t.cfg.LoginPage, t.cfg.BanRedirectDelay)

	return &entities.APIError{
		Message: message,
		Code:    entities.CodeAccountBanned,
		Status:  http.StatusForbidden,
	}
}

func (t *AuthenticatedTransport) onRateLimited(
	ctx context.Context,
	resp *http.Response,
	body entities.ErrorBody,
) *entities.APIError {
	apiErr := &entities.APIError{
		Message:    body.Text(),
		Code:       body.Sentinel(),
		Status:     http.StatusTooManyRequests,
		RetryAfter: retryAfter(resp.Header, body),
		Limit:      headerInt(resp.Header, "X-RateLimit-Limit", body.Limit),
		Remaining:  headerInt(resp.Header, "X-RateLimit-Remaining", body.Remaining),
	}
	if apiErr.Code == "" {
		apiErr.Code = entities.CodeRateLimitExceeded
	}

	notice := MsgRateLimited
	if apiErr.Code == entities.CodeSessionLimitExceeded {
		notice = MsgSessionLimit
	}
	if apiErr.Message == "" {
		apiErr.Message = notice
	}

	logger.Log(ctx).Warn(ctx, LogRateLimited,
		zap.String("code", apiErr.Code),
		zap.Duration("retry_after", apiErr.RetryAfter),
		zap.Int("limit", apiErr.Limit),
		zap.Int("remaining", apiErr.Remaining))
	t.notifier.Notify(ctx, ui.LevelWarning, notice)

	return apiErr
}

func (t *AuthenticatedTransport) resolve(rawURL string) (*url.URL, error) {
	ref, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	if ref.IsAbs() {
		return ref, nil
	}

	resolved := *t.base
	resolved.Path = strings.TrimRight(t.base.Path, "/") + "/" + strings.TrimLeft(ref.Path, "/")
	resolved.RawPath = ""
	resolved.RawQuery = ref.RawQuery
	resolved.Fragment = ""
	return &resolved, nil
}

func (t *AuthenticatedTransport) isRefreshEndpoint(target *url.URL) bool {
	refresh, err := t.resolve(t.cfg.RefreshPath)
	if err != nil {
		return false
	}
	return target.Host == refresh.Host &&
		strings.TrimRight(target.Path, "/") == strings.TrimRight(refresh.Path, "/")
}

// peekErrorBody разбирает тело ошибки и возвращает его обратно в ответ,
// чтобы вызывающий код мог прочитать его сам.
func peekErrorBody(ctx context.Context, resp *http.Response) (entities.ErrorBody, bool) {
	var body entities.ErrorBody
	if resp.Body == nil {
		return body, false
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	_ = resp.Body.Close()
	resp.Body = io.NopCloser(bytes.NewReader(raw))
	if err != nil {
		logger.Log(ctx).Debug(ctx, LogErrorBodyUnreadable, zap.Error(err))
		return body, false
	}

	if err := json.Unmarshal(raw, &body); err != nil {
		return body, false
	}
	return body, true
}

func encodeBody(body any) ([]byte, string, error) {
	switch v := body.(type) {
	case nil:
		return nil, "", nil
	case RequestBody:
		return v.Data, v.ContentType, nil
	case *RequestBody:
		if v == nil {
			return nil, "", nil
		}
		return v.Data, v.ContentType, nil
	case []byte:
		return v, "application/json", nil
	case string:
		return []byte(v), "application/json", nil
	case io.Reader:
		data, err := io.ReadAll(v)
		if err != nil {
			return nil, "", err
		}
		return data, "application/json", nil
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return nil, "", err
		}
		return data, "application/json", nil
	}
}

func retryAfter(header http.Header, body entities.ErrorBody) time.Duration {
	if body.RetryAfter > 0 {
		return time.Duration(body.RetryAfter) * time.Second
	}
	value := header.Get("Retry-After")
	if value == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}

func headerInt(header http.Header, name string, fromBody int) int {
	if fromBody != 0 {
		return fromBody
	}
	if n, err := strconv.Atoi(header.Get(name)); err == nil {
		return n
	}
	return 0
}
