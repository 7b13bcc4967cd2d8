package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"
	"go.uber.org/zap"

	cacheadapter "authpipe/internal/sessiond/adapters/cache"
	"authpipe/internal/sessiond/adapters/http/proxy"
	"authpipe/internal/sessiond/adapters/http/sender"
	uiadapter "authpipe/internal/sessiond/adapters/ui"
	"authpipe/internal/sessiond/app"
	"authpipe/internal/sessiond/config"
	"authpipe/internal/sessiond/domain/entities"
	"authpipe/internal/sessiond/ports/cache"
	"authpipe/internal/sessiond/resilience"
	"authpipe/pkg/logger"
	"authpipe/pkg/shutdown"
)

// Константы для переменных окружения.
const (
	EnvLoggerMode  = "SESSIOND_LOGGER_MODE"
	EnvLoggerLevel = "SESSIOND_LOGGER_LEVEL"
	EnvConfigPath  = "SESSIOND_CONFIG_PATH"
)

// Константы для сообщений об ошибках.
const (
	ErrInitLogger           = "failed to initialize logger"
	ErrSyncLogger           = "failed to sync logger"
	ErrLoadConfig           = "failed to load configuration"
	ErrInitLoggerWithConfig = "failed to initialize logger with configuration settings"
	ErrCreateSender         = "failed to create backend sender"
	ErrCreateRedisClient    = "failed to create Redis client"
	ErrCreateTransport      = "failed to create authenticated transport"
	ErrReadCredentials      = "failed to read credentials"
	ErrLogin                = "login failed"
	ErrStartHTTPServer      = "failed to start HTTP server"
	ErrShutdown             = "shutdown finished with errors"
)

// Константы для игнорируемых ошибок.
const (
	ErrSyncStderr = "sync /dev/stderr: invalid argument"
	ErrSyncStdout = "sync /dev/stdout: invalid argument"
)

// Константы для сообщений сервиса.
const (
	LogServiceStarted      = "sessiond service started"
	LogServiceShutdownDone = "sessiond service shutdown complete"
	LogInitSender          = "initializing backend sender"
	LogInitCache           = "initializing cache"
	LogInitSession         = "initializing session pipeline"
	LogRehydrating         = "restoring session from refresh cookie"
	LogSessionRestored     = "session restored"
	LogSessionAnonymous    = "no active session"
	LogLoggingIn           = "logging in with configured credentials"
	LogSessionEvent        = "session state changed"
	LogKeepaliveStarted    = "keepalive started"
	LogStoppingKeepalive   = "stopping keepalive"
	LogLoggingOut          = "logging out"
	LogInitHTTPServer      = "initializing HTTP server"
	LogStartingHTTP        = "starting HTTP server"
	LogStoppingHTTP        = "stopping HTTP server"
	LogClosingCache        = "closing cache"
	LogNavigated           = "navigated"
)

// noticeCapacity - сколько последних уведомлений хранит журнал.
const noticeCapacity = 50

func main() {
	env := logger.Development
	if strings.ToLower(os.Getenv(EnvLoggerMode)) == "production" {
		env = logger.Production
	}

	log, err := logger.NewLogger(env, os.Getenv(EnvLoggerLevel))
	if err != nil {
		panic(ErrInitLogger + ": " + err.Error())
	}

	logger.SetGlobalLogger(log)

	ctx := logger.NewRequestIDContext(context.Background(), "")

	var exitCode int

	func() {
		defer func() {
			if err := log.Sync(); err != nil {
				errMsg := err.Error()
				if strings.Contains(errMsg, ErrSyncStderr) || strings.Contains(errMsg, ErrSyncStdout) {
					return
				}
				if _, writeErr := fmt.Fprintf(os.Stderr, "%s: %v\n", ErrSyncLogger, err); writeErr != nil {
					panic(writeErr)
				}
			}
		}()

		cfg, err := config.Load(ctx, os.Getenv(EnvConfigPath))
		if err != nil {
			log.Error(ctx, ErrLoadConfig, zap.Error(err))
			exitCode = 1
			return
		}

		finalLogger, err := logger.NewLogger(cfg.Logging.GetEnvironment(), cfg.Logging.Level)
		if err != nil {
			log.Error(ctx, ErrInitLoggerWithConfig, zap.Error(err))
			exitCode = 1
			return
		}
		logger.SetGlobalLogger(finalLogger)
		log = finalLogger

		log.Info(ctx, LogServiceStarted,
			zap.String("environment", string(cfg.Logging.GetEnvironment())),
			zap.String("log_level", cfg.Logging.Level),
			zap.String("backend", cfg.Backend.BaseURL),
			zap.String("startup_time", time.Now().Format(time.RFC3339)))

		log.Info(ctx, LogInitSender)
		policy := resilience.NewPolicy("backend", cfg.Resilience.CircuitBreaker(), cfg.Resilience.Retry())
		backend, err := sender.New(policy, cfg.Backend.RequestTimeout)
		if err != nil {
			log.Error(ctx, ErrCreateSender, zap.Error(err))
			exitCode = 1
			return
		}

		log.Info(ctx, LogInitCache, zap.Bool("redis", cfg.Redis.Enabled))
		var identityCache cache.Cache
		if cfg.Redis.Enabled {
			identityCache, err = cacheadapter.NewRedisCache(ctx, &cfg.Redis)
			if err != nil {
				log.Error(ctx, ErrCreateRedisClient, zap.Error(err))
				exitCode = 1
				return
			}
		} else {
			identityCache = cacheadapter.NewMemoryCache(cfg.Auth.IdentityTTL)
		}

		log.Info(ctx, LogInitSession)
		journal := uiadapter.NewJournal(noticeCapacity)
		location := uiadapter.NewLocation(cfg.Auth.HomePage, func(target string) {
			log.Info(ctx, LogNavigated, zap.String("target", target))
		})
		redirector := app.NewRedirector(location, nil)

		store := app.NewTokenStore(app.WithExpiryBuffer(cfg.Auth.ExpiryBuffer))
		unsubscribe := store.Subscribe(func(event entities.SessionEvent) {
			log.Info(ctx, LogSessionEvent, zap.Stringer("event", event))
		})
		defer unsubscribe()

		refresher := app.NewRefreshCoordinator(store, backend,
			cfg.Backend.Endpoint(cfg.Backend.RefreshPath), cfg.Backend.RefreshTimeout)

		transport, err := app.NewAuthenticatedTransport(store, refresher, backend, journal, redirector,
			app.TransportConfig{
				BaseURL:          cfg.Backend.BaseURL,
				RefreshPath:      cfg.Backend.RefreshPath,
				LoginPage:        cfg.Auth.LoginPage,
				BanRedirectDelay: cfg.Auth.BanRedirectDelay,
			})
		if err != nil {
			log.Error(ctx, ErrCreateTransport, zap.Error(err))
			exitCode = 1
			return
		}

		api := app.NewAPI(transport)
		gate := app.NewSessionGate(store, refresher, api, identityCache, redirector, app.GateConfig{
			LoginPage:    cfg.Auth.LoginPage,
			HomePage:     cfg.Auth.HomePage,
			MePath:       cfg.Backend.MePath,
			IdentityTTL:  cfg.Auth.IdentityTTL,
			FetchTimeout: cfg.Backend.RequestTimeout,
		})
		authService := app.NewAuthService(store, backend, gate,
			resilience.NewRetry("logout", cfg.Resilience.Retry()),
			app.AuthServiceConfig{
				LoginURL:  cfg.Backend.Endpoint(cfg.Backend.LoginPath),
				LogoutURL: cfg.Backend.Endpoint(cfg.Backend.LogoutPath),
			})

		log.Info(ctx, LogRehydrating)
		gate.Start(ctx)
		if gate.AuthReady(ctx) {
			log.Info(ctx, LogSessionRestored)
		} else if cfg.Auth.Email != "" {
			log.Info(ctx, LogLoggingIn, zap.String("email", cfg.Auth.Email))
			creds, err := credentials(&cfg.Auth, os.Stderr)
			if err != nil {
				log.Error(ctx, ErrReadCredentials, zap.Error(err))
			} else if err := authService.Login(ctx, creds); err != nil {
				log.Error(ctx, ErrLogin, zap.Error(err))
			}
		} else {
			log.Info(ctx, LogSessionAnonymous)
		}

		keepaliveCtx, stopKeepalive := context.WithCancel(ctx)
		defer stopKeepalive()
		if cfg.Auth.KeepaliveEnabled() {
			keepalive := app.NewKeepalive(store, refresher, cfg.Auth.KeepaliveInterval)
			log.Info(ctx, LogKeepaliveStarted, zap.Duration("interval", cfg.Auth.KeepaliveInterval))
			go keepalive.Run(keepaliveCtx)
		}

		hooks := []shutdown.Hook{
			func(ctx context.Context) error {
				log.Info(ctx, LogStoppingKeepalive)
				stopKeepalive()
				return nil
			},
		}

		if cfg.HTTP.Enabled {
			log.Info(ctx, LogInitHTTPServer)
			server := fiber.New(fiber.Config{
				ReadTimeout:  cfg.HTTP.ReadTimeout,
				WriteTimeout: cfg.HTTP.WriteTimeout,
			})

			proxy.SetupRouter(server, proxy.NewHandler(transport, store, gate, authService, location, journal))

			log.Info(ctx, LogStartingHTTP, zap.String("address", cfg.HTTP.GetAddress()))
			go func() {
				if err := server.Listen(cfg.HTTP.GetAddress()); err != nil {
					log.Error(ctx, ErrStartHTTPServer, zap.Error(err))
				}
			}()

			hooks = append(hooks, func(ctx context.Context) error {
				log.Info(ctx, LogStoppingHTTP)
				return server.Shutdown()
			})
		}

		hooks = append(hooks,
			func(ctx context.Context) error {
				if store.Get() == "" {
					return nil
				}
				log.Info(ctx, LogLoggingOut)
				return authService.Logout(ctx)
			},
			func(ctx context.Context) error {
				log.Info(ctx, LogClosingCache)
				return identityCache.Close()
			},
		)

		if err := shutdown.Wait(ctx, cfg.Shutdown.GetTimeout(), hooks...); err != nil {
			log.Warn(ctx, ErrShutdown, zap.Error(err))
		}

		log.Info(ctx, LogServiceShutdownDone)
	}()

	if exitCode != 0 {
		os.Exit(exitCode)
	}
}
