// Package ratelimit implements the per-user cool-down applied after an
// exhausted challenge attempt budget. It is a thin veneer over the ephemeral
// cache's native key expiration: a user is limited exactly while their key is
// present and unexpired, so no cleanup process exists anywhere.
package ratelimit

import (
	"context"
	"strconv"
	"time"

	"github.com/osokin/go-group-warden/internal/cache"
)

// Limiter tracks cool-down windows keyed by user.
type Limiter struct {
	Store cache.Store
}

// NewLimiter constructs a Limiter over the given store.
func NewLimiter(s cache.Store) *Limiter { return &Limiter{Store: s} }

// Limit starts (or restarts) a cool-down window for the user.
func (l *Limiter) Limit(ctx context.Context, userID int64, d time.Duration) error {
	return l.Store.Set(ctx, cache.RateLimitKey(userID), strconv.FormatInt(int64(d.Seconds()), 10), d)
}

// Limited reports whether the user is currently cooling down.
func (l *Limiter) Limited(ctx context.Context, userID int64) (bool, error) {
	return l.Store.Exists(ctx, cache.RateLimitKey(userID))
}

// Remaining returns how long the user's cool-down still lasts; zero when no
// window is active.
func (l *Limiter) Remaining(ctx context.Context, userID int64) (time.Duration, error) {
	return l.Store.TTL(ctx, cache.RateLimitKey(userID))
}
