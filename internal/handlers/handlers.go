package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/iamgideonidoko/flowauth/internal/middleware"
	"github.com/iamgideonidoko/flowauth/internal/models"
	"github.com/iamgideonidoko/flowauth/internal/services"
	"github.com/iamgideonidoko/flowauth/internal/store"
	"github.com/iamgideonidoko/flowauth/pkg/logger"
	"github.com/iamgideonidoko/flowauth/pkg/validator"
)

type Handler struct {
	fingerprints *services.FingerprintService
	trust        *services.TrustManager
	sessions     *services.SessionService
	store        store.Store
}

func NewHandler(
	fingerprints *services.FingerprintService,
	trust *services.TrustManager,
	sessions *services.SessionService,
	s store.Store,
) *Handler {
	return &Handler{
		fingerprints: fingerprints,
		trust:        trust,
		sessions:     sessions,
		store:        s,
	}
}

type deviceParams struct {
	VisitorID string `json:"visitorId" validate:"required,max=128"`
}

// Assess handles POST /v1/fingerprints.
func (h *Handler) Assess(c *fiber.Ctx) error {
	requestID := middleware.GetRequestID(c)

	var req models.AssessRequest
	if err := parse(c, &req); err != nil {
		return respondError(c, requestID, err)
	}

	result, err := h.fingerprints.Assess(c.Context(), collectorFor(req.Fingerprint), req.Account)
	if err != nil {
		return respondError(c, requestID, err)
	}

	return c.Status(fiber.StatusOK).JSON(result)
}

// Refresh handles POST /v1/fingerprints/refresh.
func (h *Handler) Refresh(c *fiber.Ctx) error {
	requestID := middleware.GetRequestID(c)

	var req models.AssessRequest
	if err := parse(c, &req); err != nil {
		return respondError(c, requestID, err)
	}

	result, err := h.fingerprints.Refresh(c.Context(), collectorFor(req.Fingerprint), req.Account)
	if err != nil {
		return respondError(c, requestID, err)
	}

	return c.Status(fiber.StatusOK).JSON(result)
}

// History handles GET /v1/fingerprints/history.
func (h *Handler) History(c *fiber.Ctx) error {
	account := validator.SanitizeString(c.Query("account"))
	history := h.fingerprints.History(c.Context(), account)

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"account":      account,
		"count":        len(history),
		"fingerprints": history,
	})
}

// TrustedDevices handles GET /v1/devices/trusted.
func (h *Handler) TrustedDevices(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"devices": h.trust.List(c.Context()),
	})
}

// DeviceTrust handles GET /v1/devices/:visitorId/trust.
func (h *Handler) DeviceTrust(c *fiber.Ctx) error {
	requestID := middleware.GetRequestID(c)

	visitorID, err := visitorParam(c)
	if err != nil {
		return respondError(c, requestID, err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"visitorId": visitorID,
		"trusted":   h.trust.IsTrusted(c.Context(), visitorID),
	})
}

// TrustDevice handles PUT /v1/devices/:visitorId/trust.
func (h *Handler) TrustDevice(c *fiber.Ctx) error {
	requestID := middleware.GetRequestID(c)

	visitorID, err := visitorParam(c)
	if err != nil {
		return respondError(c, requestID, err)
	}

	if err := h.trust.Trust(c.Context(), visitorID); err != nil {
		return respondError(c, requestID, err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"visitorId": visitorID,
		"trusted":   true,
	})
}

// UntrustDevice handles DELETE /v1/devices/:visitorId/trust.
func (h *Handler) UntrustDevice(c *fiber.Ctx) error {
	requestID := middleware.GetRequestID(c)

	visitorID, err := visitorParam(c)
	if err != nil {
		return respondError(c, requestID, err)
	}

	if err := h.trust.Untrust(c.Context(), visitorID); err != nil {
		return respondError(c, requestID, err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"visitorId": visitorID,
		"trusted":   false,
	})
}

// Login handles POST /v1/auth/login.
func (h *Handler) Login(c *fiber.Ctx) error {
	requestID := middleware.GetRequestID(c)

	var req models.LoginRequest
	if err := parse(c, &req); err != nil {
		return respondError(c, requestID, err)
	}

	result, err := h.sessions.Login(c.Context(), req.Email, req.RememberMe, collectorFor(req.Fingerprint))
	if err != nil {
		return respondAuthError(c, requestID, result, err)
	}

	return c.Status(fiber.StatusOK).JSON(result)
}

// Register handles POST /v1/auth/register.
func (h *Handler) Register(c *fiber.Ctx) error {
	requestID := middleware.GetRequestID(c)

	var req models.RegisterRequest
	if err := parse(c, &req); err != nil {
		return respondError(c, requestID, err)
	}
	req.Name = validator.SanitizeString(req.Name)

	result, err := h.sessions.Register(c.Context(), req.Name, req.Email, collectorFor(req.Fingerprint))
	if err != nil {
		return respondAuthError(c, requestID, result, err)
	}

	return c.Status(fiber.StatusCreated).JSON(result)
}

// Biometric handles POST /v1/auth/biometric.
func (h *Handler) Biometric(c *fiber.Ctx) error {
	requestID := middleware.GetRequestID(c)

	var req models.BiometricRequest
	if err := parse(c, &req); err != nil {
		return respondError(c, requestID, err)
	}

	result, err := h.sessions.BiometricLogin(c.Context(), req.SessionID, collectorFor(req.Fingerprint))
	if err != nil {
		return respondAuthError(c, requestID, result, err)
	}

	return c.Status(fiber.StatusOK).JSON(result)
}

// Logout handles POST /v1/auth/logout.
func (h *Handler) Logout(c *fiber.Ctx) error {
	requestID := middleware.GetRequestID(c)

	var req models.LogoutRequest
	if err := parse(c, &req); err != nil {
		return respondError(c, requestID, err)
	}

	if err := h.sessions.Logout(c.Context(), req.SessionID); err != nil {
		return respondError(c, requestID, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// Session handles GET /v1/auth/sessions/:id.
func (h *Handler) Session(c *fiber.Ctx) error {
	requestID := middleware.GetRequestID(c)

	user, err := h.sessions.Session(c.Context(), c.Params("id"))
	if err != nil {
		return respondError(c, requestID, err)
	}

	return c.Status(fiber.StatusOK).JSON(user)
}

// Health handles GET /health.
func (h *Handler) Health(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.Context(), 2*time.Second)
	defer cancel()

	if err := h.store.Ping(ctx); err != nil {
		logger.Warn("Health check failed", map[string]any{"error": err.Error()})
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"status":  "unhealthy",
			"service": "flowauth-api",
		})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status":  "healthy",
		"service": "flowauth-api",
	})
}

func parse(c *fiber.Ctx, out any) error {
	if err := c.BodyParser(out); err != nil {
		return errInvalidBody
	}
	return validator.Struct(out)
}

func visitorParam(c *fiber.Ctx) (string, error) {
	p := deviceParams{VisitorID: c.Params("visitorId")}
	if err := validator.Struct(p); err != nil {
		return "", err
	}
	return p.VisitorID, nil
}

func collectorFor(fp models.DeviceFingerprint) services.Collector {
	return services.NewPayloadCollector(fp, time.Now)
}
