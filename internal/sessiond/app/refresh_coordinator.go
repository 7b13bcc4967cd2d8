package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"authpipe/internal/sessiond/domain/entities"
	"authpipe/internal/sessiond/ports/transport"
	"authpipe/pkg/logger"
)

// Константы для логирования.
const (
	LogRefreshStarted   = "refreshing access token"
	LogRefreshSucceeded = "access token refreshed"
	LogRefreshFailed    = "access token refresh failed"
	LogRefreshAbandoned = "stopped waiting for token refresh"

	ErrBuildRefreshRequest = "failed to build refresh request"
	ErrSendRefreshRequest  = "failed to send refresh request"
)

// DefaultRefreshTimeout ограничивает общий запрос обновления.
const DefaultRefreshTimeout = 10 * time.Second

const refreshKey = "refresh"

// Refresher обновляет токен доступа.
type Refresher interface {
	Refresh(ctx context.Context) bool
}

// RefreshCoordinator выполняет не больше одного обновления токена
// одновременно. Все, кто вызвал Refresh во время обновления, получают его результат.
type RefreshCoordinator struct {
	store    *TokenStore
	sender   transport.Sender
	endpoint string
	timeout  time.Duration

	group singleflight.Group
}

// NewRefreshCoordinator создает координатор обновления. endpoint -
// абсолютный URL эндпоинта обновления.
func NewRefreshCoordinator(
	store *TokenStore,
	sender transport.Sender,
	endpoint string,
	timeout time.Duration,
) *RefreshCoordinator {
	if timeout <= 0 {
		timeout = DefaultRefreshTimeout
	}
	return &RefreshCoordinator{
		store:    store,
		sender:   sender,
		endpoint: endpoint,
		timeout:  timeout,
	}
}

// Refresh обновляет токен по refresh cookie. Если обновление уже идет,
// вызывающий присоединяется к нему. Отмена ctx прекращает ожидание, но не
// сам запрос: он выполняется с собственным таймаутом. false при отмененном
// ctx не означает, что обновление не удалось.
func (c *RefreshCoordinator) Refresh(ctx context.Context) bool {
	ch := c.group.DoChan(refreshKey, func() (any, error) {
		opCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
		defer cancel()
		return nil, c.refresh(opCtx)
	})

	select {
	case res := <-ch:
		return res.Err == nil
	case <-ctx.Done():
		select {
		case res := <-ch:
			return res.Err == nil
		default:
		}
		logger.Log(ctx).Debug(ctx, LogRefreshAbandoned, zap.Error(ctx.Err()))
		return false
	}
}

func (c *RefreshCoordinator) refresh(ctx context.Context) error {
	ctx, requestID := logger.EnsureRequestID(ctx)
	log := logger.Log(ctx).With(zap.String("endpoint", c.endpoint))
	log.Debug(ctx, LogRefreshStarted)

	err := c.exchange(ctx, requestID)
	if err != nil {
		c.store.Clear()
		log.Warn(ctx, LogRefreshFailed, zap.Error(err))
		return err
	}

	log.Info(ctx, LogRefreshSucceeded)
	return nil
}

func (c *RefreshCoordinator) exchange(ctx context.Context, requestID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, http.NoBody)
	if err != nil {
		return fmt.Errorf("%s: %w", ErrBuildRefreshRequest, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set(logger.RequestIDHeader, requestID)

	resp, err := c.sender.Send(req)
	if err != nil {
		return fmt.Errorf("%s: %w", ErrSendRefreshRequest, err)
	}
	defer drainAndClose(resp)

	if !isSuccess(resp.StatusCode) {
		return fmt.Errorf("%w: status %d", entities.ErrRefreshFailed, resp.StatusCode)
	}

	token, lifetime, err := decodeGrant(resp.Body, c.store.now())
	if err != nil {
		return fmt.Errorf("%w: %w", entities.ErrRefreshFailed, err)
	}

	c.store.Set(token, lifetime)
	return nil
}
