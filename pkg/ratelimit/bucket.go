// Package ratelimit implements admission control for inbound requests: a
// continuous token bucket primitive, a keyed bucket registry with idle
// eviction, and a path-rule driven admission controller.
package ratelimit

import (
	"sync"
	"time"
)

// Decision is the outcome of one admission check. It carries everything a
// caller needs to build rate limit response headers: the rule limit, the
// remaining tokens, and the wait hint on denial.
type Decision struct {
	Allowed    bool
	Exempt     bool
	Limit      int64
	Remaining  int64
	RetryAfter time.Duration
	Rule       string
}

// BucketParams fixes a bucket's shape at creation time. Parameters are
// immutable for the bucket's lifetime.
type BucketParams struct {
	Capacity     int64
	RefillTokens int64
	RefillPeriod time.Duration
}

func (p BucketParams) refillPerSecond() float64 {
	return float64(p.RefillTokens) / p.RefillPeriod.Seconds()
}

// tokenBucket is a continuously refilling token bucket. Refill and consume
// are applied as one atomic unit under the bucket mutex so two concurrent
// callers can never both spend the same marginal token.
type tokenBucket struct {
	mu sync.Mutex

	capacity     float64
	tokens       float64
	refillPerSec float64
	lastRefill   time.Time
	lastSeen     time.Time
}

func newTokenBucket(params BucketParams, now time.Time) *tokenBucket {
	return &tokenBucket{
		capacity:     float64(params.Capacity),
		tokens:       float64(params.Capacity),
		refillPerSec: params.refillPerSecond(),
		lastRefill:   now,
		lastSeen:     now,
	}
}

// tryConsume refills for elapsed time, then attempts to subtract cost.
// On denial the token count is left unchanged and retryAfter reports how
// long until the deficit refills.
func (b *tokenBucket) tryConsume(cost float64, now time.Time) (allowed bool, remaining float64, retryAfter time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if elapsed := now.Sub(b.lastRefill); elapsed > 0 {
		b.tokens += elapsed.Seconds() * b.refillPerSec
		if b.tokens > b.capacity {
			b.tokens = b.capacity
		}
	}
	b.lastRefill = now
	b.lastSeen = now

	if b.tokens >= cost {
		b.tokens -= cost
		return true, b.tokens, 0
	}

	deficit := cost - b.tokens
	retryAfter = time.Duration(deficit / b.refillPerSec * float64(time.Second))
	return false, b.tokens, retryAfter
}

// idleSince reports the last access time for eviction decisions.
func (b *tokenBucket) idleSince() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastSeen
}
