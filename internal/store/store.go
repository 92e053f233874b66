// Package store provides the durable key-value records behind fingerprint
// history, trusted devices and sessions.
package store

import (
	"context"
	"errors"
)

var (
	ErrNotFound = errors.New("record not found")

	// ErrUnchanged may be returned by an UpdateFunc to skip the write.
	// Update then returns nil.
	ErrUnchanged = errors.New("record unchanged")

	ErrConflict = errors.New("concurrent update conflict")
)

// Record keys.
const (
	KeyFingerprints   = "flowauth_fingerprints"
	KeyTrustedDevices = "flowauth_trusted_devices"
	KeyUserPrefix     = "flowauth_user:"
)

// UpdateFunc receives the current value (nil when absent) and returns the
// value to write. It may be invoked more than once if the backend retries,
// so it must not have side effects.
type UpdateFunc func(current []byte) ([]byte, error)

// Store is a string-keyed record store. Update is an atomic
// read-modify-write: either the returned value is written or nothing is.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Update(ctx context.Context, key string, fn UpdateFunc) error
	Delete(ctx context.Context, key string) error
	Ping(ctx context.Context) error
	Close() error
}

// Put overwrites key with value.
func Put(ctx context.Context, s Store, key string, value []byte) error {
	return s.Update(ctx, key, func([]byte) ([]byte, error) {
		return value, nil
	})
}

// apply runs fn and reports whether the result should be written.
func apply(fn UpdateFunc, current []byte) ([]byte, bool, error) {
	next, err := fn(current)
	if errors.Is(err, ErrUnchanged) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return next, true, nil
}
