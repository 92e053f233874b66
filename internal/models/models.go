package models

import "time"

type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// DeviceFingerprint is a single snapshot produced by the collector.
// It is never mutated once captured.
type DeviceFingerprint struct {
	VisitorID  string     `json:"visitorId" validate:"required,max=128"`
	Confidence float64    `json:"confidence" validate:"gte=0,lte=1"`
	Components Components `json:"components"`
	Timestamp  int64      `json:"timestamp" validate:"gte=0"`
}

// CapturedAt returns the capture time of the fingerprint.
func (f DeviceFingerprint) CapturedAt() time.Time {
	return time.UnixMilli(f.Timestamp)
}

type Components struct {
	// navigator / locale
	UserAgent string  `json:"userAgent" validate:"max=1000"`
	Language  string  `json:"language" validate:"max=64"`
	Platform  string  `json:"platform" validate:"max=128"`
	CPUClass  *string `json:"cpuClass,omitempty"`

	// hardware
	ColorDepth          int      `json:"colorDepth" validate:"gte=0"`
	DeviceMemory        *float64 `json:"deviceMemory,omitempty" validate:"omitempty,gte=0"`
	PixelRatio          float64  `json:"pixelRatio" validate:"gte=0"`
	HardwareConcurrency int      `json:"hardwareConcurrency" validate:"gte=0,lte=1024"`

	// screen
	ScreenResolution          string `json:"screenResolution" validate:"max=32"`
	AvailableScreenResolution string `json:"availableScreenResolution" validate:"max=32"`

	// time
	TimezoneOffset int    `json:"timezoneOffset"`
	Timezone       string `json:"timezone" validate:"max=64"`

	// storage capabilities
	SessionStorage bool `json:"sessionStorage"`
	LocalStorage   bool `json:"localStorage"`
	IndexedDB      bool `json:"indexedDB"`
	AddBehavior    bool `json:"addBehavior"`
	OpenDatabase   bool `json:"openDatabase"`

	// rendering / media
	Plugins                []string `json:"plugins"`
	Canvas                 string   `json:"canvas"`
	WebGL                  string   `json:"webgl"`
	WebGLVendorAndRenderer string   `json:"webglVendorAndRenderer"`
	Fonts                  []string `json:"fonts"`
	Audio                  string   `json:"audio"`
	EnumerateDevices       []string `json:"enumerateDevices"`

	// spoofing detection
	AdBlock           bool `json:"adBlock"`
	HasLiedLanguages  bool `json:"hasLiedLanguages"`
	HasLiedResolution bool `json:"hasLiedResolution"`
	HasLiedOS         bool `json:"hasLiedOs"`
	HasLiedBrowser    bool `json:"hasLiedBrowser"`

	TouchSupport TouchSupport `json:"touchSupport"`
}

type TouchSupport struct {
	MaxTouchPoints int  `json:"maxTouchPoints" validate:"gte=0"`
	TouchEvent     bool `json:"touchEvent"`
	TouchStart     bool `json:"touchStart"`
}

// FraudAnalysis is computed per request and never stored on its own.
type FraudAnalysis struct {
	RiskScore           int              `json:"riskScore"`
	RiskLevel           RiskLevel        `json:"riskLevel"`
	Factors             []string         `json:"factors"`
	DeviceTrust         int              `json:"deviceTrust"`
	LocationConsistency bool             `json:"locationConsistency"`
	BehaviorAnalysis    BehaviorAnalysis `json:"behaviorAnalysis"`
}

type BehaviorAnalysis struct {
	TypingPattern float64 `json:"typingPattern"`
	MouseMovement float64 `json:"mouseMovement"`
	ClickPattern  float64 `json:"clickPattern"`
}

// Assessment bundles a fingerprint with its analysis and trust status.
type Assessment struct {
	Fingerprint DeviceFingerprint `json:"fingerprint"`
	Analysis    FraudAnalysis     `json:"analysis"`
	Trusted     bool              `json:"trusted"`
}

// User is the persisted session record.
type User struct {
	ID                string             `json:"id"`
	Name              string             `json:"name"`
	Email             string             `json:"email"`
	JoinedAt          time.Time          `json:"joinedAt"`
	RememberMe        bool               `json:"rememberMe"`
	DeviceFingerprint *DeviceFingerprint `json:"deviceFingerprint,omitempty"`
	FraudAnalysis     *FraudAnalysis     `json:"fraudAnalysis,omitempty"`
	TrustedDevices    []string           `json:"trustedDevices"`
}

type AssessRequest struct {
	Account     string            `json:"account" validate:"omitempty,max=254"`
	Fingerprint DeviceFingerprint `json:"fingerprint"`
}

type LoginRequest struct {
	Email       string            `json:"email" validate:"required,email,max=254"`
	RememberMe  bool              `json:"rememberMe"`
	Fingerprint DeviceFingerprint `json:"fingerprint"`
}

type RegisterRequest struct {
	Name        string            `json:"name" validate:"required,max=100"`
	Email       string            `json:"email" validate:"required,email,max=254"`
	Fingerprint DeviceFingerprint `json:"fingerprint"`
}

type BiometricRequest struct {
	SessionID   string            `json:"sessionId" validate:"required,uuid"`
	Fingerprint DeviceFingerprint `json:"fingerprint"`
}

type LogoutRequest struct {
	SessionID string `json:"sessionId" validate:"required,uuid"`
}
