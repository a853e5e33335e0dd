package herd

import (
	"context"
	"fmt"
	"time"
)

// RunWithTimeout runs fn on its own goroutine bounded by d, and
// translates the outcome into a (result, error string) pair the way the
// original scheduler's async_wrapper did: callers that only need to log
// the failure and move on to the next phase don't need to unwrap a Go
// error, they just get a string that is empty on success.
//
// fn is expected to respect ctx; RunWithTimeout does not kill the
// goroutine if fn ignores cancellation, it only stops waiting for it —
// the same leak-on-misbehaving-fn tradeoff the teacher's
// context.WithTimeout-based phase wrapping in reconciler.go accepts.
func RunWithTimeout[T any](ctx context.Context, d time.Duration, fn func(ctx context.Context) (T, error)) (T, string) {
	timeoutCtx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	type outcome struct {
		val T
		err error
	}
	ch := make(chan outcome, 1)
	go func() {
		v, err := fn(timeoutCtx)
		ch <- outcome{v, err}
	}()

	select {
	case o := <-ch:
		if o.err != nil {
			return o.val, o.err.Error()
		}
		return o.val, ""
	case <-timeoutCtx.Done():
		var zero T
		return zero, fmt.Sprintf("timed out after %s: %v", d, timeoutCtx.Err())
	}
}
