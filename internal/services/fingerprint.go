package services

import (
	"context"
	"slices"

	"github.com/iamgideonidoko/flowauth/internal/config"
	"github.com/iamgideonidoko/flowauth/internal/metrics"
	"github.com/iamgideonidoko/flowauth/internal/models"
	"github.com/iamgideonidoko/flowauth/internal/store"
	"github.com/iamgideonidoko/flowauth/internal/syncutil"
	"github.com/iamgideonidoko/flowauth/pkg/logger"
	"github.com/iamgideonidoko/flowauth/pkg/risk"
)

type FingerprintService struct {
	history  *HistoryRecorder
	trust    *TrustManager
	analyzer *risk.Analyzer
	scope    string
	locks    syncutil.KeyedMutex
}

func NewFingerprintService(
	history *HistoryRecorder,
	trust *TrustManager,
	analyzer *risk.Analyzer,
	cfg *config.RiskConfig,
) *FingerprintService {
	scope := config.ScopeGlobal
	if cfg != nil && cfg.HistoryScope != "" {
		scope = cfg.HistoryScope
	}

	return &FingerprintService{
		history:  history,
		trust:    trust,
		analyzer: analyzer,
		scope:    scope,
	}
}

// HistoryKey returns the store key of the history an account is scored
// against. Without account scoping, or without an account, every request
// shares the global history.
func (s *FingerprintService) HistoryKey(account string) string {
	if s.scope != config.ScopeAccount || account == "" {
		return store.KeyFingerprints
	}
	return store.KeyFingerprints + ":" + account
}

// Assess collects a fingerprint, scores it against the history recorded so
// far and then appends it. The fingerprint never counts against itself.
func (s *FingerprintService) Assess(ctx context.Context, c Collector, account string) (*models.Assessment, error) {
	fp, err := collect(ctx, c)
	if err != nil {
		return nil, err
	}

	key := s.HistoryKey(account)
	unlock := s.locks.Lock(key)
	analysis := s.analyzer.Analyze(fp, withoutSample(s.history.List(ctx, key), fp))
	err = s.history.Record(ctx, key, fp)
	unlock()
	if err != nil {
		return nil, err
	}

	return s.finish(ctx, fp, analysis, true), nil
}

// Refresh collects and scores a fingerprint without recording it. A sample
// that was already recorded by Assess is scored as Assess scored it.
func (s *FingerprintService) Refresh(ctx context.Context, c Collector, account string) (*models.Assessment, error) {
	fp, err := collect(ctx, c)
	if err != nil {
		return nil, err
	}

	history := withoutSample(s.history.List(ctx, s.HistoryKey(account)), fp)
	analysis := s.analyzer.Analyze(fp, history)
	return s.finish(ctx, fp, analysis, false), nil
}

// withoutSample drops the recorded copies of fp, matched by visitor id and
// capture time.
func withoutSample(history []models.DeviceFingerprint, fp models.DeviceFingerprint) []models.DeviceFingerprint {
	return slices.DeleteFunc(history, func(h models.DeviceFingerprint) bool {
		return h.VisitorID == fp.VisitorID && h.Timestamp == fp.Timestamp
	})
}

// History returns the recorded fingerprints for account, oldest first.
func (s *FingerprintService) History(ctx context.Context, account string) []models.DeviceFingerprint {
	return s.history.List(ctx, s.HistoryKey(account))
}

func (s *FingerprintService) finish(ctx context.Context, fp models.DeviceFingerprint, analysis models.FraudAnalysis, recorded bool) *models.Assessment {
	trusted := s.trust.IsTrusted(ctx, fp.VisitorID)

	metrics.ObserveAnalysis(string(analysis.RiskLevel), analysis.RiskScore)
	logger.Info("Fingerprint analyzed", map[string]any{
		"visitor_id":  fp.VisitorID,
		"captured_at": fp.CapturedAt(),
		"risk_score":  analysis.RiskScore,
		"risk_level":  string(analysis.RiskLevel),
		"factors":     len(analysis.Factors),
		"trusted":     trusted,
		"recorded":    recorded,
	})

	if !trusted && analysis.RiskLevel == models.RiskHigh {
		logger.Warn("Unrecognized high-risk device", map[string]any{
			"visitor_id": fp.VisitorID,
			"factors":    analysis.Factors,
		})
	}

	return &models.Assessment{
		Fingerprint: fp,
		Analysis:    analysis,
		Trusted:     trusted,
	}
}
