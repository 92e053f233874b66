package services

import (
	"context"
	"errors"
	"time"

	"github.com/iamgideonidoko/flowauth/internal/config"
	"github.com/iamgideonidoko/flowauth/internal/models"
	"github.com/iamgideonidoko/flowauth/internal/store"
	"github.com/iamgideonidoko/flowauth/pkg/risk"
)

var (
	testNow    = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	errBackend = errors.New("backend unavailable")
)

func testFingerprint(visitorID string) models.DeviceFingerprint {
	return models.DeviceFingerprint{
		VisitorID:  visitorID,
		Confidence: 0.95,
		Timestamp:  testNow.UnixMilli(),
		Components: models.Components{
			UserAgent:           "Mozilla/5.0 (X11; Linux x86_64)",
			Language:            "en-US",
			Platform:            "Linux x86_64",
			ColorDepth:          24,
			PixelRatio:          1,
			HardwareConcurrency: 8,
			ScreenResolution:    "1920x1080",
			Timezone:            "Europe/Berlin",
			Plugins:             []string{},
			Fonts:               []string{"Arial"},
		},
	}
}

// highRiskFingerprint scores 60: lied languages, lied OS and low confidence.
func highRiskFingerprint(visitorID string) models.DeviceFingerprint {
	fp := testFingerprint(visitorID)
	fp.Confidence = 0.3
	fp.Components.HasLiedLanguages = true
	fp.Components.HasLiedOS = true
	return fp
}

func newTestFingerprintService(s store.Store, scope string) (*FingerprintService, *TrustManager) {
	trust := NewTrustManager(s)
	analyzer := risk.NewAnalyzer(risk.WithClock(func() time.Time { return testNow }))
	svc := NewFingerprintService(NewHistoryRecorder(s), trust, analyzer, &config.RiskConfig{HistoryScope: scope})
	return svc, trust
}

func payload(fp models.DeviceFingerprint) Collector {
	return NewPayloadCollector(fp, func() time.Time { return testNow })
}

// failingStore wraps a store and fails reads and/or writes on demand.
type failingStore struct {
	store.Store
	failGet    bool
	failUpdate bool
}

func (s *failingStore) Get(ctx context.Context, key string) ([]byte, error) {
	if s.failGet {
		return nil, errBackend
	}
	return s.Store.Get(ctx, key)
}

func (s *failingStore) Update(ctx context.Context, key string, fn store.UpdateFunc) error {
	if s.failUpdate {
		return errBackend
	}
	return s.Store.Update(ctx, key, fn)
}

// countingStore counts Update calls that resulted in a write.
type countingStore struct {
	store.Store
	writes int
}

func (s *countingStore) Update(ctx context.Context, key string, fn store.UpdateFunc) error {
	return s.Store.Update(ctx, key, func(current []byte) ([]byte, error) {
		next, err := fn(current)
		if err == nil {
			s.writes++
		}
		return next, err
	})
}

// stubCollector fails at the configured step.
type stubCollector struct {
	fp      models.DeviceFingerprint
	initErr error
	getErr  error
}

func (c *stubCollector) Initialize(context.Context) error {
	return c.initErr
}

func (c *stubCollector) GetFingerprint(context.Context) (models.DeviceFingerprint, error) {
	if c.getErr != nil {
		return models.DeviceFingerprint{}, c.getErr
	}
	return c.fp, nil
}
