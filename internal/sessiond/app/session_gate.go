package app

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/sync/singleflight"

	"authpipe/internal/sessiond/domain/entities"
	"authpipe/internal/sessiond/ports/cache"
	"authpipe/pkg/logger"
)

// Константы для логирования.
const (
	LogRehydrating       = "rehydrating session from refresh cookie"
	LogSessionReady      = "session ready"
	LogAuthRequired      = "authentication required"
	LogAdminRequired     = "admin role required"
	LogIdentityCacheMiss = "identity cache miss"
	LogIdentityCacheFail = "identity cache unavailable"

	ErrFetchIdentity = "failed to fetch identity"
)

const (
	identityKeyPrefix      = "identity:"
	DefaultIdentityTTL     = 5 * time.Minute
	DefaultIdentityTimeout = 10 * time.Second
)

// GateOptions задает требования к сессии.
type GateOptions struct {
	RequireAuth  bool
	RequireAdmin bool
	// Redirect включает переход на страницу входа или на главную при отказе.
	Redirect bool
}

// DefaultGateOptions требует аутентификацию с переходом на страницу входа.
func DefaultGateOptions() GateOptions {
	return GateOptions{RequireAuth: true, Redirect: true}
}

// GateConfig содержит параметры SessionGate.
type GateConfig struct {
	LoginPage    string
	HomePage     string
	MePath       string
	IdentityTTL  time.Duration
	// FetchTimeout ограничивает общий запрос профиля.
	FetchTimeout time.Duration
}

// SessionGate восстанавливает сессию при старте и проверяет доступ.
type SessionGate struct {
	store      *TokenStore
	refresher  Refresher
	api        *API
	cache      cache.Cache
	redirector *Redirector
	cfg        GateConfig

	once  sync.Once
	done  chan struct{}
	ready bool

	identities singleflight.Group
}

// NewSessionGate создает SessionGate.
func NewSessionGate(
	store *TokenStore,
	refresher Refresher,
	api *API,
	identityCache cache.Cache,
	redirector *Redirector,
	cfg GateConfig,
) *SessionGate {
	if cfg.IdentityTTL <= 0 {
		cfg.IdentityTTL = DefaultIdentityTTL
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = DefaultIdentityTimeout
	}
	return &SessionGate{
		store:      store,
		refresher:  refresher,
		api:        api,
		cache:      identityCache,
		redirector: redirector,
		cfg:        cfg,
		done:       make(chan struct{}),
	}
}

// Start запускает восстановление сессии, если оно еще не запускалось.
func (g *SessionGate) Start(ctx context.Context) {
	g.once.Do(func() {
		go g.rehydrate(context.WithoutCancel(ctx))
	})
}

func (g *SessionGate) rehydrate(ctx context.Context) {
	defer close(g.done)

	log := logger.Log(ctx)
	if g.store.IsAuthenticated() {
		g.ready = true
	} else {
		log.Info(ctx, LogRehydrating)
		g.ready = g.refresher.Refresh(ctx)
	}
	log.Info(ctx, LogSessionReady, zap.Bool("authenticated", g.ready))
}

// AuthReady ждет завершения восстановления сессии. Все вызовы получают
// результат одного и того же восстановления. При отмене ctx возвращает false.
func (g *SessionGate) AuthReady(ctx context.Context) bool {
	g.Start(ctx)

	select {
	case <-g.done:
		return g.ready
	case <-ctx.Done():
		return false
	}
}

// RequireAuth проверяет доступ к ресурсу и при отказе, если это разрешено
// opts.Redirect, планирует переход. Отмена ctx дает отказ без перехода.
func (g *SessionGate) RequireAuth(ctx context.Context, opts GateOptions) bool {
	g.AuthReady(ctx)
	if ctx.Err() != nil {
		return false
	}

	log := logger.Log(ctx)

	if opts.RequireAuth && g.store.Get() == "" {
		log.Info(ctx, LogAuthRequired)
		if opts.Redirect {
			g.redirector.Redirect(ctx, g.cfg.LoginPage, 0)
		}
		return false
	}

	if opts.RequireAdmin {
		if _, err := g.EnsureAdmin(ctx); err != nil {
			log.Info(ctx, LogAdminRequired, zap.Error(err))
			if opts.Redirect && ctx.Err() == nil {
				g.redirector.Redirect(ctx, g.cfg.HomePage, 0)
			}
			return false
		}
	}

	return true
}

// EnsureAdmin возвращает профиль, если пользователь - администратор.
func (g *SessionGate) EnsureAdmin(ctx context.Context) (*entities.Identity, error) {
	identity, err := g.Identity(ctx)
	if err != nil {
		return nil, err
	}
	if !identity.IsAdmin() {
		return nil, entities.ErrNotAdmin
	}
	return identity, nil
}

// Identity возвращает профиль текущего пользователя. Профиль кэшируется
// по хэшу токена, поэтому новый токен всегда приводит к новому запросу.
// Одновременные вызовы делят один запрос, который не зависит от отмены ctx
// отдельного вызывающего.
func (g *SessionGate) Identity(ctx context.Context) (*entities.Identity, error) {
	token := g.store.Get()
	if token == "" {
		return nil, entities.ErrUnauthorized
	}

	key := identityKey(token)
	if identity, ok := g.cachedIdentity(ctx, key); ok {
		return identity, nil
	}

	ch := g.identities.DoChan(key, func() (any, error) {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.cfg.FetchTimeout)
		defer cancel()

		identity, err := Decode[entities.Identity](ctx, g.api, http.MethodGet, g.cfg.MePath, nil)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", ErrFetchIdentity, err)
		}
		if identity == nil {
			return nil, fmt.Errorf("%s: %w", ErrFetchIdentity, ErrNotJSON)
		}
		if current := g.store.Get(); current != "" {
			g.storeIdentity(ctx, identityKey(current), identity)
		}
		return identity, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*entities.Identity), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// ForgetIdentity удаляет профиль, закэшированный для token.
func (g *SessionGate) ForgetIdentity(ctx context.Context, token string) {
	if token == "" {
		return
	}
	if err := g.cache.Delete(ctx, identityKey(token)); err != nil {
		logger.Log(ctx).Warn(ctx, LogIdentityCacheFail, zap.Error(err))
	}
}

func (g *SessionGate) cachedIdentity(ctx context.Context, key string) (*entities.Identity, bool) {
	log := logger.Log(ctx)

	raw, err := g.cache.Get(ctx, key)
	if err != nil {
		log.Warn(ctx, LogIdentityCacheFail, zap.Error(err))
		return nil, false
	}
	if raw == "" {
		log.Debug(ctx, LogIdentityCacheMiss)
		return nil, false
	}

	var identity entities.Identity
	if err := json.Unmarshal([]byte(raw), &identity); err != nil {
		log.Warn(ctx, LogIdentityCacheFail, zap.Error(err))
		return nil, false
	}
	return &identity, true
}

func (g *SessionGate) storeIdentity(ctx context.Context, key string, identity *entities.Identity) {
	raw, err := json.Marshal(identity)
	if err != nil {
		return
	}
	if err := g.cache.Set(ctx, key, string(raw), g.cfg.IdentityTTL); err != nil {
		logger.Log(ctx).Warn(ctx, LogIdentityCacheFail, zap.Error(err))
	}
}

// identityKey хэширует токен: в кэше не хранятся сами токены.
func identityKey(token string) string {
	sum := blake2b.Sum256([]byte(token))
	return identityKeyPrefix + hex.EncodeToString(sum[:])
}
