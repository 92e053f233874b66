package risk

import "github.com/iamgideonidoko/flowauth/internal/models"

// BehaviorSignals are the non-fingerprint inputs surfaced on an analysis.
// They do not contribute to the risk score.
type BehaviorSignals struct {
	LocationConsistency bool
	Behavior            models.BehaviorAnalysis
}

// BehaviorProvider supplies behavioural telemetry for a fingerprint.
// No real telemetry exists yet; implementations plug in here.
type BehaviorProvider interface {
	Signals(fp models.DeviceFingerprint) BehaviorSignals
}

// StaticBehavior returns the same signals for every fingerprint.
type StaticBehavior BehaviorSignals

func (s StaticBehavior) Signals(models.DeviceFingerprint) BehaviorSignals {
	return BehaviorSignals(s)
}

var DefaultBehavior = StaticBehavior{LocationConsistency: true}
