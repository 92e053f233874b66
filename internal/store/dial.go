package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/iamgideonidoko/flowauth/pkg/logger"
)

// ErrUnreachable is returned by Dial when a backend never became healthy.
var ErrUnreachable = errors.New("store backend unreachable")

// Backoff bounds the connection attempts made by Dial. The wait doubles
// after every failed attempt up to Max.
type Backoff struct {
	Attempts int
	First    time.Duration
	Max      time.Duration
}

var DefaultBackoff = Backoff{
	Attempts: 5,
	First:    100 * time.Millisecond,
	Max:      5 * time.Second,
}

// Dial opens a store backend at startup and waits for it to answer Ping.
// A handle that opens but fails Ping is closed before the next attempt.
// backend names the driver in log lines and errors.
func Dial[S Store](ctx context.Context, backend string, b Backoff, open func() (S, error)) (S, error) {
	var (
		zero    S
		lastErr error
	)
	wait := b.First

	for attempt := 1; attempt <= b.Attempts; attempt++ {
		s, err := open()
		if err == nil {
			if err = s.Ping(ctx); err == nil {
				return s, nil
			}
			_ = s.Close()
		}
		lastErr = err

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return zero, err
		}
		if attempt == b.Attempts {
			break
		}

		logger.Warn("Store backend unreachable, retrying", map[string]any{
			"backend": backend,
			"attempt": attempt,
			"wait_ms": wait.Milliseconds(),
			"error":   err.Error(),
		})

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(wait):
		}
		wait = min(2*wait, b.Max)
	}

	return zero, fmt.Errorf("%w: %s after %d attempts: %v", ErrUnreachable, backend, b.Attempts, lastErr)
}
