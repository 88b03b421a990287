package ratelimit

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	r := NewRegistry(time.Hour, time.Hour)
	t.Cleanup(r.Stop)
	return r
}

func TestRegistryConcurrentConsumesExactlyCapacity(t *testing.T) {
	// N goroutines race on one key with no refill in the window; exactly
	// K must win.
	const (
		n = 64
		k = 10
	)
	r := newTestRegistry(t)
	params := BucketParams{Capacity: k, RefillTokens: 1, RefillPeriod: time.Hour}

	var (
		wg      sync.WaitGroup
		allowed int64
	)
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if d := r.Consume("client:analyze", params, 1); d.Allowed {
				atomic.AddInt64(&allowed, 1)
			}
		}()
	}
	close(start)
	wg.Wait()

	if allowed != k {
		t.Errorf("allowed = %d, want exactly %d", allowed, k)
	}
}

func TestRegistrySingleBucketPerKey(t *testing.T) {
	r := newTestRegistry(t)
	params := BucketParams{Capacity: 100, RefillTokens: 1, RefillPeriod: time.Hour}

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Consume("same-key", params, 1)
		}()
	}
	wg.Wait()

	if got := r.Len(); got != 1 {
		t.Errorf("registry holds %d buckets for one key, want 1", got)
	}
}

func TestRegistryIsolatesKeys(t *testing.T) {
	r := newTestRegistry(t)
	params := BucketParams{Capacity: 1, RefillTokens: 1, RefillPeriod: time.Hour}

	if d := r.Consume("a", params, 1); !d.Allowed {
		t.Fatal("first consume on key a should pass")
	}
	if d := r.Consume("a", params, 1); d.Allowed {
		t.Fatal("second consume on key a should be denied")
	}
	if d := r.Consume("b", params, 1); !d.Allowed {
		t.Error("key b must not be affected by key a's exhaustion")
	}
}

func TestRegistrySweepEvictsIdleBuckets(t *testing.T) {
	r := NewRegistry(50*time.Millisecond, time.Hour)
	defer r.Stop()
	params := BucketParams{Capacity: 5, RefillTokens: 5, RefillPeriod: time.Minute}

	for i := 0; i < 4; i++ {
		r.Consume(fmt.Sprintf("key-%d", i), params, 1)
	}
	if r.Len() != 4 {
		t.Fatalf("expected 4 buckets, got %d", r.Len())
	}

	r.sweep(time.Now().Add(time.Second))
	if got := r.Len(); got != 0 {
		t.Errorf("idle buckets not evicted, %d remain", got)
	}
}

func TestRegistrySweepKeepsActiveBuckets(t *testing.T) {
	r := NewRegistry(time.Minute, time.Hour)
	defer r.Stop()
	params := BucketParams{Capacity: 5, RefillTokens: 5, RefillPeriod: time.Minute}

	r.Consume("active", params, 1)
	r.sweep(time.Now())
	if got := r.Len(); got != 1 {
		t.Errorf("recently used bucket evicted, %d remain", got)
	}
}
