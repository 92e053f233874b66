package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/iamgideonidoko/flowauth/internal/metrics"
	"github.com/iamgideonidoko/flowauth/internal/models"
	"github.com/iamgideonidoko/flowauth/internal/store"
	"github.com/iamgideonidoko/flowauth/pkg/logger"
)

var (
	ErrVerificationRequired = errors.New("additional verification required due to suspicious activity")
	ErrBiometricBlocked     = errors.New("device not recognized, use email login for verification")
	ErrNoAccount            = errors.New("no account found, register first")
	ErrSessionNotFound      = errors.New("session not found")
)

// AuthResult is returned by every session operation. Assessment is set
// even when the operation is refused.
type AuthResult struct {
	User       *models.User       `json:"user,omitempty"`
	Assessment *models.Assessment `json:"assessment,omitempty"`
}

// SessionService runs the simulated sign-in flows on top of the
// fingerprint assessment. Records are stored under store.KeyUserPrefix.
type SessionService struct {
	store        store.Store
	fingerprints *FingerprintService
	trust        *TrustManager
	now          func() time.Time
}

func NewSessionService(s store.Store, fingerprints *FingerprintService, trust *TrustManager) *SessionService {
	return &SessionService{
		store:        s,
		fingerprints: fingerprints,
		trust:        trust,
		now:          time.Now,
	}
}

// Login refuses high-risk devices and otherwise opens a session named after
// the local part of email.
func (s *SessionService) Login(ctx context.Context, email string, rememberMe bool, c Collector) (*AuthResult, error) {
	assessment, err := s.fingerprints.Refresh(ctx, c, email)
	if err != nil {
		return nil, err
	}

	result := &AuthResult{Assessment: assessment}
	if assessment.Analysis.RiskLevel == models.RiskHigh {
		metrics.SessionsTotal.WithLabelValues("login_refused").Inc()
		return result, ErrVerificationRequired
	}

	user := s.newUser(localPart(email), email, assessment)
	user.RememberMe = rememberMe
	user.TrustedDevices = s.trust.List(ctx)

	if err := s.save(ctx, user); err != nil {
		return nil, err
	}

	metrics.SessionsTotal.WithLabelValues("login").Inc()
	logger.Info("Login successful", map[string]any{
		"session_id":   user.ID,
		"device_trust": assessment.Analysis.DeviceTrust,
	})

	result.User = user
	return result, nil
}

// Register opens a session and trusts the registering device.
func (s *SessionService) Register(ctx context.Context, name, email string, c Collector) (*AuthResult, error) {
	assessment, err := s.fingerprints.Refresh(ctx, c, email)
	if err != nil {
		return nil, err
	}

	visitorID := assessment.Fingerprint.VisitorID
	if err := s.trust.Trust(ctx, visitorID); err != nil {
		return nil, err
	}
	assessment.Trusted = true

	user := s.newUser(name, email, assessment)
	user.TrustedDevices = []string{visitorID}

	if err := s.save(ctx, user); err != nil {
		return nil, err
	}

	metrics.SessionsTotal.WithLabelValues("register").Inc()
	logger.Info("Account registered", map[string]any{
		"session_id": user.ID,
		"visitor_id": visitorID,
	})

	return &AuthResult{User: user, Assessment: assessment}, nil
}

// BiometricLogin resumes an existing session from the device alone. An
// untrusted device with high risk is refused.
func (s *SessionService) BiometricLogin(ctx context.Context, sessionID string, c Collector) (*AuthResult, error) {
	user, err := s.Session(ctx, sessionID)
	if errors.Is(err, ErrSessionNotFound) {
		metrics.SessionsTotal.WithLabelValues("biometric_no_account").Inc()
		return nil, ErrNoAccount
	}
	if err != nil {
		return nil, err
	}

	assessment, err := s.fingerprints.Refresh(ctx, c, user.Email)
	if err != nil {
		return nil, err
	}

	result := &AuthResult{Assessment: assessment}
	if !assessment.Trusted && assessment.Analysis.RiskLevel == models.RiskHigh {
		metrics.SessionsTotal.WithLabelValues("biometric_refused").Inc()
		logger.Warn("Biometric login blocked", map[string]any{
			"session_id": sessionID,
			"visitor_id": assessment.Fingerprint.VisitorID,
		})
		return result, ErrBiometricBlocked
	}

	fp := assessment.Fingerprint
	analysis := assessment.Analysis
	user.DeviceFingerprint = &fp
	user.FraudAnalysis = &analysis
	user.TrustedDevices = s.trust.List(ctx)

	if err := s.save(ctx, user); err != nil {
		return nil, err
	}

	metrics.SessionsTotal.WithLabelValues("biometric").Inc()
	result.User = user
	return result, nil
}

// Logout removes the session. Unknown sessions are ignored.
func (s *SessionService) Logout(ctx context.Context, sessionID string) error {
	if err := s.store.Delete(ctx, store.KeyUserPrefix+sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	metrics.SessionsTotal.WithLabelValues("logout").Inc()
	return nil
}

// Session loads a stored session. Missing and malformed records both report
// ErrSessionNotFound.
func (s *SessionService) Session(ctx context.Context, sessionID string) (*models.User, error) {
	raw, err := s.store.Get(ctx, store.KeyUserPrefix+sessionID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	var user models.User
	if err := json.Unmarshal(raw, &user); err != nil {
		logger.Warn("Discarding malformed session record", map[string]any{
			"session_id": sessionID,
			"error":      err.Error(),
		})
		return nil, ErrSessionNotFound
	}
	if user.TrustedDevices == nil {
		user.TrustedDevices = []string{}
	}
	return &user, nil
}

func (s *SessionService) newUser(name, email string, assessment *models.Assessment) *models.User {
	fp := assessment.Fingerprint
	analysis := assessment.Analysis
	return &models.User{
		ID:                uuid.New().String(),
		Name:              name,
		Email:             email,
		JoinedAt:          s.now().UTC(),
		DeviceFingerprint: &fp,
		FraudAnalysis:     &analysis,
		TrustedDevices:    []string{},
	}
}

func (s *SessionService) save(ctx context.Context, user *models.User) error {
	data, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	if err := store.Put(ctx, s.store, store.KeyUserPrefix+user.ID, data); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

func localPart(email string) string {
	name, _, _ := strings.Cut(email, "@")
	return name
}
