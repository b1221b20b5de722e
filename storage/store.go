// Package storage defines the durable key-value surface this subsystem
// owns: the operation-hash to transaction-hash mapping (TTL ~1h) and the
// per-caller rate-limit counters (TTL 60s). Nothing else is persisted.
package storage

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("entry not found")

// Store is the minimal contract both backends satisfy. The only atomicity
// guarantee is per-key increment-with-expiry; wrapping logic must not
// assume anything stronger.
type Store interface {
	// Set writes a value under key with the given TTL, overwriting any
	// previous value.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Get returns the value for key, or ErrNotFound if the key is absent
	// or expired.
	Get(ctx context.Context, key string) ([]byte, error)

	// Increment atomically increments the counter under key and returns
	// the new count. The first increment in a window starts the expiry
	// clock; the counter vanishes once the window elapses.
	Increment(ctx context.Context, key string, window time.Duration) (int64, error)

	Close() error
}
