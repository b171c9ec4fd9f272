package resilience

import (
	"context"
	"fmt"
	"time"
)

type outcome[T any] struct {
	val T
	err error
}

// CallWithTimeout runs fn under a deadline of timeout and returns its result.
// When the deadline passes first the caller gets context.DeadlineExceeded
// at once; fn keeps its cancelled context and whatever it returns later is
// dropped. A non-positive timeout calls fn directly.
func CallWithTimeout[T any](ctx context.Context, timeout time.Duration, name string, fn func(ctx context.Context) (T, error)) (T, error) {
	if timeout <= 0 {
		return fn(ctx)
	}
	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	out := make(chan outcome[T], 1)
	go func() {
		v, err := fn(tctx)
		out <- outcome[T]{v, err}
	}()

	var zero T
	select {
	case o := <-out:
		return o.val, o.err
	case <-tctx.Done():
		if err := ctx.Err(); err != nil {
			return zero, fmt.Errorf("%s: %w", name, err)
		}
		return zero, fmt.Errorf("%s: %w after %v", name, context.DeadlineExceeded, timeout)
	}
}
