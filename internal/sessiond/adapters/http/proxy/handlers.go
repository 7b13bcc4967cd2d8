// Package proxy содержит локальный HTTP прокси: запросы к /api/* уходят на
// бэкенд с токеном текущей сессии, /session отражает ее состояние.
package proxy

import (
	"errors"
	"io"
	"time"

	"github.com/gofiber/fiber/v3"
	"go.uber.org/zap"

	uiadapter "authpipe/internal/sessiond/adapters/ui"
	"authpipe/internal/sessiond/app"
	"authpipe/internal/sessiond/domain/entities"
	"authpipe/internal/sessiond/ports/services"
	"authpipe/pkg/logger"
)

// Константы для логирования.
const (
	LogHandlerForward = "proxy handler: forward"
	LogHandlerSession = "proxy handler: session"
	LogHandlerLogout  = "proxy handler: logout"
	LogHandlerAdmin   = "proxy handler: admin"

	ErrorBackendUnreachable = "backend unreachable"
	ErrorReadBackend        = "failed to read backend response"
)

// Заголовки ответа бэкенда, которые передаются клиенту прокси.
var forwardedHeaders = []string{
	fiber.HeaderContentType,
	fiber.HeaderCacheControl,
	fiber.HeaderRetryAfter,
	"X-RateLimit-Limit",
	"X-RateLimit-Remaining",
}

// ErrorResponse - тело ответа прокси с ошибкой.
type ErrorResponse struct {
	Error  string `json:"error"`
	Code   string `json:"code,omitempty"`
	Status int    `json:"status"`
}

// SessionResponse - состояние сессии.
type SessionResponse struct {
	Authenticated bool               `json:"authenticated"`
	ExpiresAt     *time.Time         `json:"expiresAt,omitempty"`
	Identity      *entities.Identity `json:"identity,omitempty"`
	Location      string             `json:"location,omitempty"`
	Notices       []uiadapter.Notice `json:"notices"`
}

// Locator сообщает текущую страницу пользователя.
type Locator interface {
	Current() string
}

// NoticeSource отдает последние уведомления.
type NoticeSource interface {
	Recent() []uiadapter.Notice
}

// Handler содержит обработчики прокси.
type Handler struct {
	transport services.Transport
	session   services.Session
	gate      services.Gate
	auth      services.AuthService
	locator   Locator
	notices   NoticeSource
}

// NewHandler создает обработчики прокси.
func NewHandler(
	transport services.Transport,
	session services.Session,
	gate services.Gate,
	auth services.AuthService,
	locator Locator,
	notices NoticeSource,
) *Handler {
	return &Handler{
		transport: transport,
		session:   session,
		gate:      gate,
		auth:      auth,
		locator:   locator,
		notices:   notices,
	}
}

// Health отвечает, что прокси работает.
func (h *Handler) Health(c fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

// Forward передает запрос бэкенду через аутентифицированный транспорт.
func (h *Handler) Forward(c fiber.Ctx) error {
	requestCtx := requestContext(c)
	log := logger.Log(requestCtx).With(zap.String("target", c.OriginalURL()))
	log.Debug(requestCtx, LogHandlerForward)

	var body any
	if raw := c.Body(); len(raw) > 0 {
		body = app.RequestBody{
			Data:        append([]byte(nil), raw...),
			ContentType: c.Get(fiber.HeaderContentType),
		}
	}

	resp, err := h.transport.Request(requestCtx, c.Method(), c.OriginalURL(), body)
	if err != nil {
		log.Warn(requestCtx, ErrorBackendUnreachable, zap.Error(err))
		return sendError(c, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Error(requestCtx, ErrorReadBackend, zap.Error(err))
		return sendError(c, err)
	}

	for _, name := range forwardedHeaders {
		if value := resp.Header.Get(name); value != "" {
			c.Set(name, value)
		}
	}
	return c.Status(resp.StatusCode).Send(payload)
}

// Session возвращает состояние сессии после ее восстановления.
func (h *Handler) Session(c fiber.Ctx) error {
	requestCtx := requestContext(c)
	logger.Log(requestCtx).Debug(requestCtx, LogHandlerSession)

	h.gate.AuthReady(requestCtx)

	response := SessionResponse{
		Authenticated: h.session.IsAuthenticated(),
		Notices:       []uiadapter.Notice{},
	}
	if token := h.session.Token(); !token.Empty() {
		expiresAt := token.ExpiresAt
		response.ExpiresAt = &expiresAt
	}
	if response.Authenticated {
		if identity, err := h.gate.Identity(requestCtx); err == nil {
			response.Identity = identity
		}
	}
	if h.locator != nil {
		response.Location = h.locator.Current()
	}
	if h.notices != nil {
		response.Notices = h.notices.Recent()
	}

	return c.JSON(response)
}

// Logout завершает сессию. Локальное состояние очищается всегда.
func (h *Handler) Logout(c fiber.Ctx) error {
	requestCtx := requestContext(c)
	log := logger.Log(requestCtx)
	log.Info(requestCtx, LogHandlerLogout)

	if err := h.auth.Logout(requestCtx); err != nil {
		log.Warn(requestCtx, ErrorBackendUnreachable, zap.Error(err))
	}
	return c.JSON(fiber.Map{"message": "logged out"})
}

// Admin возвращает профиль, если пользователь - администратор.
func (h *Handler) Admin(c fiber.Ctx) error {
	requestCtx := requestContext(c)
	logger.Log(requestCtx).Debug(requestCtx, LogHandlerAdmin)

	h.gate.AuthReady(requestCtx)

	identity, err := h.gate.EnsureAdmin(requestCtx)
	if err != nil {
		return sendError(c, err)
	}
	return c.JSON(identity)
}

func sendError(c fiber.Ctx, err error) error {
	var apiErr *entities.APIError
	if errors.As(err, &apiErr) {
		return c.Status(apiErr.Status).JSON(ErrorResponse{
			Error:  apiErr.Message,
			Code:   apiErr.Code,
			Status: apiErr.Status,
		})
	}

	status := fiber.StatusBadGateway
	switch {
	case errors.Is(err, entities.ErrUnauthorized):
		status = fiber.StatusUnauthorized
	case errors.Is(err, entities.ErrNotAdmin):
		status = fiber.StatusForbidden
	}

	return c.Status(status).JSON(ErrorResponse{
		Error:  err.Error(),
		Status: status,
	})
}
