package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/iamgideonidoko/flowauth/internal/models"
	"github.com/iamgideonidoko/flowauth/pkg/validator"
)

var ErrCollectorNotInitialized = errors.New("collector not initialized")

// Collector produces device fingerprints. Initialize must be safe to call
// more than once.
type Collector interface {
	Initialize(ctx context.Context) error
	GetFingerprint(ctx context.Context) (models.DeviceFingerprint, error)
}

// CollectorError marks a failure inside the fingerprint collector, as
// opposed to a storage or scoring failure.
type CollectorError struct {
	Op  string
	Err error
}

func (e *CollectorError) Error() string {
	return fmt.Sprintf("collector %s: %v", e.Op, e.Err)
}

func (e *CollectorError) Unwrap() error {
	return e.Err
}

// PayloadCollector serves a fingerprint that was captured client side and
// submitted with the request.
type PayloadCollector struct {
	now func() time.Time

	mu          sync.Mutex
	fp          models.DeviceFingerprint
	initialized bool
}

func NewPayloadCollector(fp models.DeviceFingerprint, now func() time.Time) *PayloadCollector {
	if now == nil {
		now = time.Now
	}
	return &PayloadCollector{fp: fp, now: now}
}

// Initialize validates the submitted payload and stamps a missing capture
// time. Calls after a successful one are no-ops.
func (c *PayloadCollector) Initialize(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.initialized {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validator.Struct(c.fp); err != nil {
		return err
	}
	if c.fp.Timestamp == 0 {
		c.fp.Timestamp = c.now().UnixMilli()
	}
	c.initialized = true
	return nil
}

func (c *PayloadCollector) GetFingerprint(ctx context.Context) (models.DeviceFingerprint, error) {
	if err := ctx.Err(); err != nil {
		return models.DeviceFingerprint{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.initialized {
		return models.DeviceFingerprint{}, ErrCollectorNotInitialized
	}
	return c.fp, nil
}

// collect initializes c and reads one fingerprint, wrapping failures in
// CollectorError.
func collect(ctx context.Context, c Collector) (models.DeviceFingerprint, error) {
	if err := c.Initialize(ctx); err != nil {
		return models.DeviceFingerprint{}, asCollectorError("initialize", err)
	}

	fp, err := c.GetFingerprint(ctx)
	if err != nil {
		return models.DeviceFingerprint{}, asCollectorError("get fingerprint", err)
	}
	return fp, nil
}

func asCollectorError(op string, err error) error {
	var ce *CollectorError
	if errors.As(err, &ce) {
		return err
	}
	return &CollectorError{Op: op, Err: err}
}
