package engine

import (
	"context"
	"time"

	"github.com/felixgeelhaar/fortify/retry"
	"github.com/felixgeelhaar/fortify/timeout"
)

// callResilient is the single wrapper around collaborator calls: bounded
// exponential retry with a per-attempt timeout, so a hung call is a
// transient failure like any other. Exhausting the budget is a
// CheckError, never a Fail.
func callResilient[T any](ctx context.Context, attempts int, delay, limit time.Duration, fn func(context.Context) (T, error)) (T, error) {
	r := retry.New[T](retry.Config{
		MaxAttempts:   attempts,
		InitialDelay:  delay,
		BackoffPolicy: retry.BackoffExponential,
	})
	t := timeout.New[T](timeout.Config{
		DefaultTimeout: limit,
	})

	return r.Do(ctx, func(ctx context.Context) (T, error) {
		return t.Execute(ctx, limit, fn)
	})
}
