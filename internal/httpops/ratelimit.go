// Per-client token-bucket rate limiting for the inspection API, keyed by
// client IP. Buckets live in process memory with opportunistic eviction of
// idle entries; a single-instance deployment needs nothing distributed here.
package httpops

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// visitor holds one bucket and the last time it was used.
type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter enforces a per-IP token bucket. Safe for concurrent use.
type RateLimiter struct {
	rps   rate.Limit
	burst int

	mu       sync.Mutex
	visitors map[string]*visitor
	ttl      time.Duration
	cleanupN uint64
}

// NewRateLimiter constructs a limiter with the given tokens-per-second and
// burst size. A burst below 1 is coerced to 1.
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		rps:      rate.Limit(rps),
		burst:    burst,
		visitors: make(map[string]*visitor),
		ttl:      10 * time.Minute,
	}
}

// getVisitor returns the bucket for key, creating it if absent. Idle entries
// are evicted in batches, before the requested key is touched, so a stale
// bucket for that key can itself be reclaimed.
func (rl *RateLimiter) getVisitor(key string) *rate.Limiter {
	now := time.Now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.cleanupN++
	if rl.cleanupN >= 5000 {
		for k, v := range rl.visitors {
			if now.Sub(v.lastSeen) >= rl.ttl {
				delete(rl.visitors, k)
			}
		}
		rl.cleanupN = 0
	}

	if v, ok := rl.visitors[key]; ok {
		v.lastSeen = now
		return v.limiter
	}

	lim := rate.NewLimiter(rl.rps, rl.burst)
	rl.visitors[key] = &visitor{limiter: lim, lastSeen: now}
	return lim
}

// Handler rejects over-limit requests with 429 and a Retry-After hint.
func (rl *RateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.getVisitor("ip:" + c.ClientIP()).Allow() {
			rid, _ := c.Get(requestIDKey)
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"request_id": asString(rid),
				"code":       "rate_limited",
				"message":    "rate limit exceeded",
			})
			return
		}
		c.Next()
	}
}
