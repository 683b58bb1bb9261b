// Package kv is the small key-value layer gitquest uses for short-lived
// state: throttle markers and cached responses. Redis backs it in
// production; the in-memory store serves single-node setups and tests.
package kv

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a key does not exist in the store.
var ErrNotFound = errors.New("kv: key not found")

// Store is a TTL-aware key-value store.
type Store interface {
	// Set stores a value. A zero TTL never expires.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Get returns ErrNotFound for missing or expired keys.
	Get(ctx context.Context, key string) ([]byte, error)

	// Delete removes a key. Missing keys are not an error.
	Delete(ctx context.Context, key string) error

	// SetNX sets a value only if the key is absent and reports whether it did.
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)

	// Ping checks the backend is reachable.
	Ping(ctx context.Context) error

	Close() error
}
