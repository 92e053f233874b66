package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/iamgideonidoko/flowauth/internal/config"
	"github.com/iamgideonidoko/flowauth/pkg/logger"
)

// Limiter counts requests per identifier in a fixed window.
type Limiter interface {
	CheckRateLimit(ctx context.Context, identifier string, limit int, window time.Duration) (bool, error)
}

type RateLimiter struct {
	limiter  Limiter
	fallback *MemoryLimiter
	config   *config.RateLimitConfig
}

// NewRateLimiter limits through limiter and falls back to process memory
// when it errors. A nil limiter uses process memory only.
func NewRateLimiter(limiter Limiter, config *config.RateLimitConfig) *RateLimiter {
	return &RateLimiter{
		limiter:  limiter,
		fallback: NewMemoryLimiter(),
		config:   config,
	}
}

// LimitByIP rate limits requests by IP address.
func (rl *RateLimiter) LimitByIP() fiber.Handler {
	return func(c *fiber.Ctx) error {
		identifier := fmt.Sprintf("ip:%s", c.IP())

		allowed, err := rl.check(c.Context(), identifier)
		if err != nil {
			return c.Next()
		}

		if !allowed {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":       "Rate limit exceeded",
				"retry_after": rl.config.Window.Seconds(),
			})
		}

		return c.Next()
	}
}

// Stop releases the fallback limiter.
func (rl *RateLimiter) Stop() {
	rl.fallback.Stop()
}

func (rl *RateLimiter) check(ctx context.Context, identifier string) (bool, error) {
	if rl.limiter != nil {
		allowed, err := rl.limiter.CheckRateLimit(ctx, identifier, rl.config.Requests, rl.config.Window)
		if err == nil {
			return allowed, nil
		}
		logger.Warn("Rate limit backend unavailable, using in-memory limiter", map[string]any{
			"error": err.Error(),
		})
	}
	return rl.fallback.CheckRateLimit(ctx, identifier, rl.config.Requests, rl.config.Window)
}

func CORS(origins []string) fiber.Handler {
	allowedOrigins := make(map[string]bool)
	for _, origin := range origins {
		allowedOrigins[origin] = true
	}

	return func(c *fiber.Ctx) error {
		origin := c.Get("Origin")

		if origin != "" && (allowedOrigins["*"] || allowedOrigins[origin]) {
			c.Set("Access-Control-Allow-Origin", origin)
			c.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			c.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
			c.Set("Access-Control-Max-Age", "3600")
			c.Vary("Origin")
		}

		if c.Method() == fiber.MethodOptions {
			return c.SendStatus(http.StatusNoContent)
		}

		return c.Next()
	}
}

// Logger writes one structured access log line per request.
func Logger() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		var fe *fiber.Error
		if errors.As(err, &fe) {
			status = fe.Code
		}

		fields := map[string]any{
			"method":      c.Method(),
			"path":        c.Path(),
			"status":      status,
			"duration_ms": time.Since(start).Milliseconds(),
			"ip":          AnonymizeIP(c.IP()),
		}
		if id, ok := c.Locals(RequestIDKey).(string); ok {
			fields["request_id"] = id
		}

		if status >= fiber.StatusInternalServerError {
			logger.Error("Request completed", fields)
		} else {
			logger.Info("Request completed", fields)
		}

		return err
	}
}

func Recover() fiber.Handler {
	return func(c *fiber.Ctx) (err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("Recovered from panic", map[string]any{
					"panic": fmt.Sprint(r),
					"path":  c.Path(),
				})
				err = c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
					"error": "Internal server error",
				})
			}
		}()
		return c.Next()
	}
}

// AnonymizeIP removes the last octet for GDPR compliance.
func AnonymizeIP(ip string) string {
	parts := strings.Split(ip, ".")
	if len(parts) == 4 {
		return fmt.Sprintf("%s.%s.%s.0", parts[0], parts[1], parts[2])
	}
	return ip
}
