package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/iamgideonidoko/flowauth/internal/metrics"
	"github.com/iamgideonidoko/flowauth/internal/middleware"
	"github.com/iamgideonidoko/flowauth/pkg/logger"
)

type RouteOptions struct {
	CORSOrigins   []string
	RateLimit     fiber.Handler
	EnableMetrics bool
}

// NewApp builds the fiber application with the shared error handler.
func NewApp() *fiber.App {
	return fiber.New(fiber.Config{
		ServerHeader: "FlowAuth",
		AppName:      "FlowAuth API v1.0",
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			var fe *fiber.Error
			if errors.As(err, &fe) {
				code = fe.Code
			}
			logger.Error("Request error", map[string]any{
				"error": err.Error(),
				"path":  c.Path(),
				"code":  code,
			})
			return c.Status(code).JSON(fiber.Map{
				"error":      err.Error(),
				"request_id": middleware.GetRequestID(c),
			})
		},
	})
}

// SetupRoutes registers middleware and every route on app.
func SetupRoutes(app *fiber.App, h *Handler, opts RouteOptions) {
	app.Use(middleware.Recover())
	app.Use(middleware.RequestID())
	app.Use(middleware.Logger())
	app.Use(middleware.CORS(opts.CORSOrigins))

	if opts.EnableMetrics {
		app.Use(metrics.Middleware())
		app.Get("/metrics", metrics.Handler())
	}
	app.Get("/health", h.Health)

	v1 := app.Group("/v1")
	if opts.RateLimit != nil {
		v1.Use(opts.RateLimit)
	}

	v1.Post("/fingerprints", h.Assess)
	v1.Post("/fingerprints/refresh", h.Refresh)
	v1.Get("/fingerprints/history", h.History)

	devices := v1.Group("/devices")
	devices.Get("/trusted", h.TrustedDevices)
	devices.Get("/:visitorId/trust", h.DeviceTrust)
	devices.Put("/:visitorId/trust", h.TrustDevice)
	devices.Delete("/:visitorId/trust", h.UntrustDevice)

	auth := v1.Group("/auth")
	auth.Post("/login", h.Login)
	auth.Post("/register", h.Register)
	auth.Post("/biometric", h.Biometric)
	auth.Post("/logout", h.Logout)
	auth.Get("/sessions/:id", h.Session)
}
