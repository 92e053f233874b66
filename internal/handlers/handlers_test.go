package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iamgideonidoko/flowauth/internal/config"
	"github.com/iamgideonidoko/flowauth/internal/models"
	"github.com/iamgideonidoko/flowauth/internal/services"
	"github.com/iamgideonidoko/flowauth/internal/store"
	"github.com/iamgideonidoko/flowauth/pkg/risk"
)

type brokenStore struct {
	store.Store
}

func (brokenStore) Update(context.Context, string, store.UpdateFunc) error {
	return errors.New("disk full")
}

func (brokenStore) Ping(context.Context) error {
	return errors.New("disk full")
}

func newTestApp(t *testing.T, s store.Store) *fiber.App {
	t.Helper()

	trust := services.NewTrustManager(s)
	fps := services.NewFingerprintService(
		services.NewHistoryRecorder(s),
		trust,
		risk.NewAnalyzer(),
		&config.RiskConfig{HistoryScope: config.ScopeGlobal},
	)
	sessions := services.NewSessionService(s, fps, trust)

	app := NewApp()
	SetupRoutes(app, NewHandler(fps, trust, sessions, s), RouteOptions{CORSOrigins: []string{"*"}})
	return app
}

func fingerprintBody(visitorID string) map[string]any {
	return map[string]any{
		"visitorId":  visitorID,
		"confidence": 0.9,
		"timestamp":  time.Now().UnixMilli(),
		"components": map[string]any{
			"userAgent":           "Mozilla/5.0",
			"language":            "en-US",
			"hardwareConcurrency": 8,
			"deviceMemory":        8,
			"screenResolution":    "1920x1080",
		},
	}
}

func riskyFingerprintBody(visitorID string) map[string]any {
	body := fingerprintBody(visitorID)
	body["confidence"] = 0.2
	components := body["components"].(map[string]any)
	components["hasLiedOs"] = true
	components["hasLiedLanguages"] = true
	return body
}

func do(t *testing.T, app *fiber.App, method, path string, body any) (int, []byte) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	out, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, out
}

func TestAssessEndpoint(t *testing.T) {
	app := newTestApp(t, store.NewMemoryStore())

	code, body := do(t, app, http.MethodPost, "/v1/fingerprints", map[string]any{
		"fingerprint": fingerprintBody("visitor-1"),
	})
	require.Equal(t, fiber.StatusOK, code, string(body))

	var a models.Assessment
	require.NoError(t, json.Unmarshal(body, &a))
	assert.Equal(t, "visitor-1", a.Fingerprint.VisitorID)
	assert.Equal(t, models.RiskLow, a.Analysis.RiskLevel)
	assert.Equal(t, 100, a.Analysis.DeviceTrust)
	assert.NotNil(t, a.Analysis.Factors)
	assert.False(t, a.Trusted)

	code, body = do(t, app, http.MethodGet, "/v1/fingerprints/history", nil)
	require.Equal(t, fiber.StatusOK, code)

	var history struct {
		Count        int                        `json:"count"`
		Fingerprints []models.DeviceFingerprint `json:"fingerprints"`
	}
	require.NoError(t, json.Unmarshal(body, &history))
	assert.Equal(t, 1, history.Count)
}

func TestRefreshEndpointDoesNotRecord(t *testing.T) {
	app := newTestApp(t, store.NewMemoryStore())

	code, _ := do(t, app, http.MethodPost, "/v1/fingerprints/refresh", map[string]any{
		"fingerprint": fingerprintBody("visitor-1"),
	})
	require.Equal(t, fiber.StatusOK, code)

	_, body := do(t, app, http.MethodGet, "/v1/fingerprints/history", nil)
	assert.Contains(t, string(body), `"count":0`)
}

func TestAssessValidation(t *testing.T) {
	app := newTestApp(t, store.NewMemoryStore())

	t.Run("MalformedBody", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/v1/fingerprints", bytes.NewBufferString("{"))
		req.Header.Set("Content-Type", "application/json")
		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	})

	t.Run("MissingVisitorID", func(t *testing.T) {
		fp := fingerprintBody("")
		code, body := do(t, app, http.MethodPost, "/v1/fingerprints", map[string]any{"fingerprint": fp})
		require.Equal(t, fiber.StatusBadRequest, code)

		var resp struct {
			Fields    map[string]string `json:"fields"`
			RequestID string            `json:"request_id"`
		}
		require.NoError(t, json.Unmarshal(body, &resp))
		assert.Contains(t, resp.Fields, "fingerprint.visitorId")
		assert.NotEmpty(t, resp.RequestID)
	})
}

func TestTrustEndpoints(t *testing.T) {
	app := newTestApp(t, store.NewMemoryStore())

	code, _ := do(t, app, http.MethodPut, "/v1/devices/device-a/trust", nil)
	require.Equal(t, fiber.StatusOK, code)

	code, body := do(t, app, http.MethodGet, "/v1/devices/device-a/trust", nil)
	require.Equal(t, fiber.StatusOK, code)
	assert.JSONEq(t, `{"visitorId":"device-a","trusted":true}`, string(body))

	_, body = do(t, app, http.MethodGet, "/v1/devices/trusted", nil)
	assert.JSONEq(t, `{"devices":["device-a"]}`, string(body))

	code, _ = do(t, app, http.MethodDelete, "/v1/devices/device-a/trust", nil)
	require.Equal(t, fiber.StatusOK, code)

	_, body = do(t, app, http.MethodGet, "/v1/devices/trusted", nil)
	assert.JSONEq(t, `{"devices":[]}`, string(body))
}

func TestTrustStorageFailure(t *testing.T) {
	app := newTestApp(t, brokenStore{Store: store.NewMemoryStore()})

	code, body := do(t, app, http.MethodPut, "/v1/devices/device-a/trust", nil)
	assert.Equal(t, fiber.StatusInternalServerError, code)
	assert.NotContains(t, string(body), "disk full")
}

func TestLoginFlow(t *testing.T) {
	app := newTestApp(t, store.NewMemoryStore())

	code, body := do(t, app, http.MethodPost, "/v1/auth/login", map[string]any{
		"email":       "alice@example.com",
		"fingerprint": fingerprintBody("laptop"),
	})
	require.Equal(t, fiber.StatusOK, code, string(body))

	var res services.AuthResult
	require.NoError(t, json.Unmarshal(body, &res))
	require.NotNil(t, res.User)
	assert.Equal(t, "alice", res.User.Name)

	code, _ = do(t, app, http.MethodGet, "/v1/auth/sessions/"+res.User.ID, nil)
	assert.Equal(t, fiber.StatusOK, code)

	code, _ = do(t, app, http.MethodPost, "/v1/auth/logout", map[string]any{"sessionId": res.User.ID})
	assert.Equal(t, fiber.StatusNoContent, code)

	code, _ = do(t, app, http.MethodGet, "/v1/auth/sessions/"+res.User.ID, nil)
	assert.Equal(t, fiber.StatusNotFound, code)
}

func TestLoginHighRiskForbidden(t *testing.T) {
	app := newTestApp(t, store.NewMemoryStore())

	code, body := do(t, app, http.MethodPost, "/v1/auth/login", map[string]any{
		"email":       "mallory@example.com",
		"fingerprint": riskyFingerprintBody("unknown"),
	})
	require.Equal(t, fiber.StatusForbidden, code)

	var resp struct {
		Error      string            `json:"error"`
		Assessment models.Assessment `json:"assessment"`
	}
	require.NoError(t, json.Unmarshal(body, &resp))
	assert.Equal(t, models.RiskHigh, resp.Assessment.Analysis.RiskLevel)
	assert.Equal(t, 60, resp.Assessment.Analysis.RiskScore)
}

func TestRegisterAndBiometric(t *testing.T) {
	app := newTestApp(t, store.NewMemoryStore())

	code, body := do(t, app, http.MethodPost, "/v1/auth/register", map[string]any{
		"name":        "Alice",
		"email":       "alice@example.com",
		"fingerprint": fingerprintBody("home"),
	})
	require.Equal(t, fiber.StatusCreated, code, string(body))

	var reg services.AuthResult
	require.NoError(t, json.Unmarshal(body, &reg))
	assert.Equal(t, []string{"home"}, reg.User.TrustedDevices)

	code, _ = do(t, app, http.MethodPost, "/v1/auth/biometric", map[string]any{
		"sessionId":   reg.User.ID,
		"fingerprint": riskyFingerprintBody("stranger"),
	})
	assert.Equal(t, fiber.StatusForbidden, code)

	code, _ = do(t, app, http.MethodPost, "/v1/auth/biometric", map[string]any{
		"sessionId":   reg.User.ID,
		"fingerprint": riskyFingerprintBody("home"),
	})
	assert.Equal(t, fiber.StatusOK, code)

	code, _ = do(t, app, http.MethodPost, "/v1/auth/biometric", map[string]any{
		"sessionId":   "3f0c6a9e-2b1d-4c5e-8f7a-9b0c1d2e3f4a",
		"fingerprint": fingerprintBody("home"),
	})
	assert.Equal(t, fiber.StatusNotFound, code)

	code, _ = do(t, app, http.MethodPost, "/v1/auth/biometric", map[string]any{
		"sessionId":   "not-a-uuid",
		"fingerprint": fingerprintBody("home"),
	})
	assert.Equal(t, fiber.StatusBadRequest, code)
}

func TestHealth(t *testing.T) {
	code, body := do(t, newTestApp(t, store.NewMemoryStore()), http.MethodGet, "/health", nil)
	assert.Equal(t, fiber.StatusOK, code)
	assert.Contains(t, string(body), "healthy")

	code, _ = do(t, newTestApp(t, brokenStore{Store: store.NewMemoryStore()}), http.MethodGet, "/health", nil)
	assert.Equal(t, fiber.StatusServiceUnavailable, code)
}
