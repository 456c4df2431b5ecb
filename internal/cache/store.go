// Package cache provides the ephemeral key/value store used for hot policy
// reads, live challenge state, and rate-limit counters. Every entry carries
// an expiration; nothing in this package persists across a cache restart, and
// the callers are written to tolerate that (the durable store stays
// authoritative).
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrMiss is returned by Get when the key is absent or expired.
var ErrMiss = errors.New("cache: miss")

// Store is the minimal TTL-native contract the core depends on. The Redis
// implementation below is used in production; tests substitute an in-memory
// fake.
type Store interface {
	// Get returns the value at key, or ErrMiss.
	Get(ctx context.Context, key string) (string, error)

	// Set writes key=value. A zero ttl means no expiration.
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// Delete removes key; removing an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// Exists reports whether key is present and unexpired.
	Exists(ctx context.Context, key string) (bool, error)

	// TTL returns the remaining lifetime of key, 0 when the key is absent or
	// has no expiration.
	TTL(ctx context.Context, key string) (time.Duration, error)
}
