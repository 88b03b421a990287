package ratelimit

import (
	"sync"
	"time"

	"github.com/gitfolio/gitfolio/pkg/observability"
)

// Registry owns the key→bucket map. Buckets are created lazily on first
// reference with parameters fixed at that moment, and evicted by a background
// sweeper once idle longer than the TTL. All map access goes through the
// registry mutex; per-bucket state is guarded by the bucket's own mutex.
type Registry struct {
	mu      sync.Mutex
	buckets map[string]*tokenBucket

	idleTTL time.Duration

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewRegistry creates a registry and starts its eviction sweeper. Stop must
// be called to release the sweeper goroutine.
func NewRegistry(idleTTL, sweepInterval time.Duration) *Registry {
	r := &Registry{
		buckets: make(map[string]*tokenBucket),
		idleTTL: idleTTL,
		stopCh:  make(chan struct{}),
	}
	r.wg.Add(1)
	go r.sweepLoop(sweepInterval)
	return r
}

// Consume resolves the bucket for key, creating it with params if absent,
// and attempts to take cost tokens from it.
func (r *Registry) Consume(key string, params BucketParams, cost int64) Decision {
	now := time.Now()
	b := r.getOrCreate(key, params, now)
	allowed, remaining, retryAfter := b.tryConsume(float64(cost), now)

	return Decision{
		Allowed:    allowed,
		Limit:      params.Capacity,
		Remaining:  int64(remaining),
		RetryAfter: retryAfter,
	}
}

func (r *Registry) getOrCreate(key string, params BucketParams, now time.Time) *tokenBucket {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.buckets[key]; ok {
		return b
	}
	b := newTokenBucket(params, now)
	r.buckets[key] = b
	return b
}

// Len reports the number of live buckets.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.buckets)
}

func (r *Registry) sweepLoop(interval time.Duration) {
	defer r.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.sweep(time.Now())
		case <-r.stopCh:
			return
		}
	}
}

func (r *Registry) sweep(now time.Time) {
	cutoff := now.Add(-r.idleTTL)

	r.mu.Lock()
	defer r.mu.Unlock()
	evicted := 0
	for key, b := range r.buckets {
		if b.idleSince().Before(cutoff) {
			delete(r.buckets, key)
			evicted++
		}
	}
	if evicted > 0 {
		observability.Debugf("Rate limit registry evicted %d idle buckets (%d remain)", evicted, len(r.buckets))
	}
}

// Stop terminates the eviction sweeper.
func (r *Registry) Stop() {
	r.stopOnce.Do(func() {
		close(r.stopCh)
		r.wg.Wait()
	})
}
