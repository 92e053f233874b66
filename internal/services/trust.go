package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/iamgideonidoko/flowauth/internal/metrics"
	"github.com/iamgideonidoko/flowauth/internal/store"
	"github.com/iamgideonidoko/flowauth/pkg/logger"
)

// TrustManager maintains the set of trusted visitor ids. Insertion order is
// preserved and there is no cap.
type TrustManager struct {
	store store.Store
}

func NewTrustManager(s store.Store) *TrustManager {
	return &TrustManager{store: s}
}

// IsTrusted reports whether visitorID is in the trusted set. Read failures
// count as untrusted.
func (m *TrustManager) IsTrusted(ctx context.Context, visitorID string) bool {
	return slices.Contains(m.List(ctx), visitorID)
}

// List returns the trusted visitor ids, oldest first.
func (m *TrustManager) List(ctx context.Context) []string {
	raw, err := m.store.Get(ctx, store.KeyTrustedDevices)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			logger.Warn("Failed to read trusted devices", map[string]any{
				"error": err.Error(),
			})
		}
		return []string{}
	}
	return decodeTrusted(raw)
}

// Trust adds visitorID to the set. Trusting an already trusted id does not
// write.
func (m *TrustManager) Trust(ctx context.Context, visitorID string) error {
	changed := false
	err := m.store.Update(ctx, store.KeyTrustedDevices, func(current []byte) ([]byte, error) {
		changed = false
		ids := decodeTrusted(current)
		if slices.Contains(ids, visitorID) {
			return nil, store.ErrUnchanged
		}
		changed = true
		return json.Marshal(append(ids, visitorID))
	})
	if err != nil {
		return fmt.Errorf("failed to trust device: %w", err)
	}

	if changed {
		metrics.TrustChangesTotal.WithLabelValues("trust").Inc()
		logger.Info("Device trusted", map[string]any{"visitor_id": visitorID})
	}
	return nil
}

// Untrust removes every occurrence of visitorID. Removing an unknown id does
// not write.
func (m *TrustManager) Untrust(ctx context.Context, visitorID string) error {
	changed := false
	err := m.store.Update(ctx, store.KeyTrustedDevices, func(current []byte) ([]byte, error) {
		changed = false
		ids := decodeTrusted(current)
		kept := slices.DeleteFunc(slices.Clone(ids), func(id string) bool { return id == visitorID })
		if len(kept) == len(ids) {
			return nil, store.ErrUnchanged
		}
		changed = true
		return json.Marshal(kept)
	})
	if err != nil {
		return fmt.Errorf("failed to untrust device: %w", err)
	}

	if changed {
		metrics.TrustChangesTotal.WithLabelValues("untrust").Inc()
		logger.Info("Device untrusted", map[string]any{"visitor_id": visitorID})
	}
	return nil
}

func decodeTrusted(raw []byte) []string {
	ids := []string{}
	if len(raw) == 0 {
		return ids
	}
	if err := json.Unmarshal(raw, &ids); err != nil {
		logger.Warn("Discarding malformed trusted device list", map[string]any{
			"error": err.Error(),
		})
		return []string{}
	}
	if ids == nil {
		ids = []string{}
	}
	return ids
}
