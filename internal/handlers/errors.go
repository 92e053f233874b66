package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/iamgideonidoko/flowauth/internal/services"
	"github.com/iamgideonidoko/flowauth/pkg/logger"
	"github.com/iamgideonidoko/flowauth/pkg/validator"
)

var errInvalidBody = errors.New("invalid request body")

// respondError maps service errors onto HTTP statuses. Unknown errors are
// logged and reported without detail.
func respondError(c *fiber.Ctx, requestID string, err error) error {
	log := logger.WithField("request_id", requestID)

	var (
		verr *validator.ValidationError
		cerr *services.CollectorError
	)

	switch {
	case errors.Is(err, errInvalidBody):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":      "Invalid request body",
			"request_id": requestID,
		})

	case errors.As(err, &verr):
		log.Warn("Request validation failed", map[string]any{"error": err.Error()})
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":      "Validation failed",
			"fields":     verr.Fields,
			"request_id": requestID,
		})

	case errors.As(err, &cerr):
		log.Warn("Fingerprint collection failed", map[string]any{"error": err.Error()})
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"error":      cerr.Error(),
			"request_id": requestID,
		})

	case errors.Is(err, services.ErrVerificationRequired), errors.Is(err, services.ErrBiometricBlocked):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error":      err.Error(),
			"request_id": requestID,
		})

	case errors.Is(err, services.ErrNoAccount), errors.Is(err, services.ErrSessionNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error":      err.Error(),
			"request_id": requestID,
		})
	}

	log.Error("Request failed", map[string]any{
		"error": err.Error(),
		"path":  c.Path(),
	})
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error":      "Internal server error",
		"request_id": requestID,
	})
}

// respondAuthError is respondError for refused sign-ins, which also carry
// the assessment that caused the refusal.
func respondAuthError(c *fiber.Ctx, requestID string, result *services.AuthResult, err error) error {
	refused := errors.Is(err, services.ErrVerificationRequired) || errors.Is(err, services.ErrBiometricBlocked)
	if !refused || result == nil || result.Assessment == nil {
		return respondError(c, requestID, err)
	}

	logger.WithField("request_id", requestID).Warn("Sign-in refused", map[string]any{
		"visitor_id": result.Assessment.Fingerprint.VisitorID,
		"risk_score": result.Assessment.Analysis.RiskScore,
	})
	return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
		"error":      err.Error(),
		"assessment": result.Assessment,
		"request_id": requestID,
	})
}
