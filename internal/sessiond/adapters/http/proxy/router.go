package proxy

import (
	"github.com/gofiber/fiber/v3"
)

// SetupRouter настраивает маршрутизацию прокси.
func SetupRouter(app *fiber.App, handler *Handler) {
	app.Use(NewRequestIDMiddleware())
	app.Use(NewLoggerMiddleware())
	app.Use(NewRecoveryMiddleware())

	app.Get("/healthz", handler.Health)

	app.Get("/session", handler.Session)
	app.Post("/session/logout", handler.Logout)
	app.Get("/session/admin", handler.Admin)

	// Все запросы к API бэкенда.
	app.All("/api/*", handler.Forward)

	app.Use(func(c fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{
			Error:  "Route not found",
			Status: fiber.StatusNotFound,
		})
	})
}
