package middleware

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iamgideonidoko/flowauth/internal/config"
	"github.com/iamgideonidoko/flowauth/internal/store"
)

type brokenLimiter struct{}

func (brokenLimiter) CheckRateLimit(context.Context, string, int, time.Duration) (bool, error) {
	return false, errors.New("redis down")
}

func newLimitedApp(t *testing.T, limiter Limiter, requests int) *fiber.App {
	t.Helper()
	rl := NewRateLimiter(limiter, &config.RateLimitConfig{Requests: requests, Window: time.Minute})
	t.Cleanup(rl.Stop)

	app := fiber.New()
	app.Get("/", rl.LimitByIP(), func(c *fiber.Ctx) error { return c.SendString("ok") })
	return app
}

func statusOf(t *testing.T, app *fiber.App, method, path string) int {
	t.Helper()
	resp, err := app.Test(httptest.NewRequest(method, path, nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	return resp.StatusCode
}

func TestMemoryLimiter(t *testing.T) {
	l := NewMemoryLimiter()
	defer l.Stop()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		allowed, err := l.CheckRateLimit(ctx, "ip:a", 2, time.Minute)
		require.NoError(t, err)
		assert.True(t, allowed)
	}

	allowed, _ := l.CheckRateLimit(ctx, "ip:a", 2, time.Minute)
	assert.False(t, allowed, "third request in the window should be refused")

	allowed, _ = l.CheckRateLimit(ctx, "ip:b", 2, time.Minute)
	assert.True(t, allowed, "identifiers are counted separately")

	now = now.Add(time.Minute)
	allowed, _ = l.CheckRateLimit(ctx, "ip:a", 2, time.Minute)
	assert.True(t, allowed, "a new window starts after the period")

	now = now.Add(2 * time.Minute)
	l.sweep()
	assert.Empty(t, l.windows)
}

func TestRateLimiter_InMemoryOnly(t *testing.T) {
	app := newLimitedApp(t, nil, 2)

	assert.Equal(t, fiber.StatusOK, statusOf(t, app, "GET", "/"))
	assert.Equal(t, fiber.StatusOK, statusOf(t, app, "GET", "/"))
	assert.Equal(t, fiber.StatusTooManyRequests, statusOf(t, app, "GET", "/"))
}

func TestRateLimiter_FallsBackWhenBackendFails(t *testing.T) {
	app := newLimitedApp(t, brokenLimiter{}, 1)

	assert.Equal(t, fiber.StatusOK, statusOf(t, app, "GET", "/"))
	assert.Equal(t, fiber.StatusTooManyRequests, statusOf(t, app, "GET", "/"))
}

func TestRateLimiter_Redis(t *testing.T) {
	mr := miniredis.RunT(t)
	rs := store.NewRedisStoreFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "test")
	t.Cleanup(func() { _ = rs.Close() })

	app := newLimitedApp(t, rs, 1)

	assert.Equal(t, fiber.StatusOK, statusOf(t, app, "GET", "/"))
	assert.Equal(t, fiber.StatusTooManyRequests, statusOf(t, app, "GET", "/"))
}

func TestCORS(t *testing.T) {
	app := fiber.New()
	app.Use(CORS([]string{"https://app.example"}))
	app.Get("/", func(c *fiber.Ctx) error { return c.SendString("ok") })

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Origin", "https://app.example")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, "https://app.example", resp.Header.Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Origin", "https://evil.example")
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest("OPTIONS", "/", nil)
	req.Header.Set("Origin", "https://app.example")
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNoContent, resp.StatusCode)
}

func TestRecover(t *testing.T) {
	app := fiber.New()
	app.Use(Recover())
	app.Get("/panic", func(c *fiber.Ctx) error { panic("boom") })

	assert.Equal(t, fiber.StatusInternalServerError, statusOf(t, app, "GET", "/panic"))
}

func TestRequestID(t *testing.T) {
	app := fiber.New()
	app.Use(RequestID())
	app.Get("/", func(c *fiber.Ctx) error { return c.SendString(GetRequestID(c)) })

	resp, err := app.Test(httptest.NewRequest("GET", "/", nil))
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Header.Get(RequestIDHeader))

	const inbound = "5b1f6a52-5f7e-4a3c-9b7e-0d9a2f0c1e11"
	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set(RequestIDHeader, inbound)
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, inbound, resp.Header.Get(RequestIDHeader))

	req = httptest.NewRequest("GET", "/", nil)
	req.Header.Set(RequestIDHeader, "not-a-uuid")
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.NotEqual(t, "not-a-uuid", resp.Header.Get(RequestIDHeader))
}

func TestAnonymizeIP(t *testing.T) {
	tests := []struct {
		ip   string
		want string
	}{
		{"192.168.1.42", "192.168.1.0"},
		{"10.0.0.1", "10.0.0.0"},
		{"2001:db8::1", "2001:db8::1"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := AnonymizeIP(tt.ip); got != tt.want {
			t.Errorf("AnonymizeIP(%q) = %q, want %q", tt.ip, got, tt.want)
		}
	}
}
