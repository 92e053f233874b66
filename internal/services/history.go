package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/iamgideonidoko/flowauth/internal/metrics"
	"github.com/iamgideonidoko/flowauth/internal/models"
	"github.com/iamgideonidoko/flowauth/internal/store"
	"github.com/iamgideonidoko/flowauth/pkg/logger"
)

// MaxHistory is the number of fingerprints kept per history key.
const MaxHistory = 50

// HistoryRecorder keeps a bounded, oldest-first log of observed fingerprints.
type HistoryRecorder struct {
	store store.Store
}

func NewHistoryRecorder(s store.Store) *HistoryRecorder {
	return &HistoryRecorder{store: s}
}

// List returns the stored history for key. Unreadable or malformed records
// yield an empty history.
func (r *HistoryRecorder) List(ctx context.Context, key string) []models.DeviceFingerprint {
	raw, err := r.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			logger.Warn("Failed to read fingerprint history", map[string]any{
				"key":   key,
				"error": err.Error(),
			})
		}
		return []models.DeviceFingerprint{}
	}
	return decodeHistory(key, raw)
}

// Record appends fp to the history under key and evicts the oldest entries
// beyond MaxHistory, in one atomic store update.
func (r *HistoryRecorder) Record(ctx context.Context, key string, fp models.DeviceFingerprint) error {
	var size int
	err := r.store.Update(ctx, key, func(current []byte) ([]byte, error) {
		history := decodeHistory(key, current)
		history = append(history, fp)
		if len(history) > MaxHistory {
			history = history[len(history)-MaxHistory:]
		}
		size = len(history)
		return json.Marshal(history)
	})
	if err != nil {
		return fmt.Errorf("failed to record fingerprint: %w", err)
	}

	metrics.HistorySize.Set(float64(size))
	logger.Debug("Fingerprint recorded", map[string]any{
		"key":        key,
		"visitor_id": fp.VisitorID,
		"size":       size,
	})
	return nil
}

func decodeHistory(key string, raw []byte) []models.DeviceFingerprint {
	history := []models.DeviceFingerprint{}
	if len(raw) == 0 {
		return history
	}
	if err := json.Unmarshal(raw, &history); err != nil {
		logger.Warn("Discarding malformed fingerprint history", map[string]any{
			"key":   key,
			"error": err.Error(),
		})
		return []models.DeviceFingerprint{}
	}
	if history == nil {
		history = []models.DeviceFingerprint{}
	}
	return history
}
