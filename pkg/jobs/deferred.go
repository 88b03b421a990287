package jobs

import (
	"context"
	"time"

	"github.com/gitfolio/gitfolio/pkg/faults"
)

type outcome[T any] struct {
	value T
	err   error
}

// Await runs work in its own goroutine and waits up to timeout for it to
// finish. On expiry the caller gets a Timeout fault but the work keeps
// running to completion; the work's context is detached from the caller's
// cancellation so its result can still be persisted and fetched later.
func Await[T any](ctx context.Context, timeout time.Duration, work func(context.Context) (T, error)) (T, error) {
	done := make(chan outcome[T], 1)
	go func() {
		v, err := work(context.WithoutCancel(ctx))
		done <- outcome[T]{value: v, err: err}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var zero T
	select {
	case out := <-done:
		return out.value, out.err
	case <-timer.C:
		return zero, faults.Newf(faults.KindTimeout,
			"request timed out after %s; the work continues and its result can be fetched later", timeout)
	case <-ctx.Done():
		return zero, faults.Wrap(faults.KindTimeout, "request cancelled before work finished", ctx.Err())
	}
}
