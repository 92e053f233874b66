package risk

import (
	"time"

	"github.com/iamgideonidoko/flowauth/internal/models"
)

// Tier thresholds (lower bound inclusive).
const (
	HighRiskScore   = 50
	MediumRiskScore = 25
)

// Churn detection: more than ChurnLimit fingerprints inside ChurnWindow.
const (
	ChurnWindow = 24 * time.Hour
	ChurnLimit  = 10
	ChurnPoints = 30
	churnFactor = "Excessive login attempts from different devices"
	maxTrustPct = 100
)

// rule is a single fingerprint check. Rules are evaluated in slice order so
// the resulting factor list is deterministic.
type rule struct {
	points  int
	factor  string
	matches func(fp models.DeviceFingerprint) bool
}

var fingerprintRules = []rule{
	{
		points:  15,
		factor:  "Inconsistent language settings detected",
		matches: func(fp models.DeviceFingerprint) bool { return fp.Components.HasLiedLanguages },
	},
	{
		points:  10,
		factor:  "Screen resolution inconsistencies",
		matches: func(fp models.DeviceFingerprint) bool { return fp.Components.HasLiedResolution },
	},
	{
		points: 20,
		factor: "Browser/OS spoofing detected",
		matches: func(fp models.DeviceFingerprint) bool {
			return fp.Components.HasLiedOS || fp.Components.HasLiedBrowser
		},
	},
	{
		points:  5,
		factor:  "Ad blocker detected",
		matches: func(fp models.DeviceFingerprint) bool { return fp.Components.AdBlock },
	},
	{
		points:  5,
		factor:  "Unusually high CPU core count",
		matches: func(fp models.DeviceFingerprint) bool { return fp.Components.HardwareConcurrency > 16 },
	},
	{
		points: 5,
		factor: "Unusually high device memory",
		matches: func(fp models.DeviceFingerprint) bool {
			return fp.Components.DeviceMemory != nil && *fp.Components.DeviceMemory > 32
		},
	},
	{
		points:  25,
		factor:  "Low fingerprint confidence",
		matches: func(fp models.DeviceFingerprint) bool { return fp.Confidence < 0.5 },
	},
}

// Analyzer scores fingerprints against previously observed ones.
type Analyzer struct {
	now      func() time.Time
	behavior BehaviorProvider
}

type Option func(*Analyzer)

// WithClock overrides the time source used by the churn rule.
func WithClock(now func() time.Time) Option {
	return func(a *Analyzer) {
		a.now = now
	}
}

// WithBehaviorProvider sets the source of behavioural signals.
func WithBehaviorProvider(p BehaviorProvider) Option {
	return func(a *Analyzer) {
		a.behavior = p
	}
}

func NewAnalyzer(opts ...Option) *Analyzer {
	a := &Analyzer{
		now:      time.Now,
		behavior: DefaultBehavior,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Analyze computes the fraud analysis for fp. history must not contain fp
// itself. Analyze never fails and performs no I/O.
func (a *Analyzer) Analyze(fp models.DeviceFingerprint, history []models.DeviceFingerprint) models.FraudAnalysis {
	score := 0
	factors := make([]string, 0, len(fingerprintRules)+1)

	for _, r := range fingerprintRules {
		if r.matches(fp) {
			score += r.points
			factors = append(factors, r.factor)
		}
	}

	if CountRecent(history, a.now(), ChurnWindow) > ChurnLimit {
		score += ChurnPoints
		factors = append(factors, churnFactor)
	}

	signals := a.behavior.Signals(fp)

	return models.FraudAnalysis{
		RiskScore:           score,
		RiskLevel:           Classify(score),
		Factors:             factors,
		DeviceTrust:         DeviceTrust(score),
		LocationConsistency: signals.LocationConsistency,
		BehaviorAnalysis:    signals.Behavior,
	}
}

// Classify maps a risk score to its tier.
func Classify(score int) models.RiskLevel {
	switch {
	case score >= HighRiskScore:
		return models.RiskHigh
	case score >= MediumRiskScore:
		return models.RiskMedium
	default:
		return models.RiskLow
	}
}

// DeviceTrust is the inverse of the risk score, floored at zero.
func DeviceTrust(score int) int {
	return max(0, maxTrustPct-score)
}

// CountRecent counts history entries captured less than window before now.
// Entries stamped in the future count as recent.
func CountRecent(history []models.DeviceFingerprint, now time.Time, window time.Duration) int {
	nowMs := now.UnixMilli()
	windowMs := window.Milliseconds()

	count := 0
	for _, fp := range history {
		if nowMs-fp.Timestamp < windowMs {
			count++
		}
	}
	return count
}
