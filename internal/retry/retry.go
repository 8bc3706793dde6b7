// Package retry provides a bounded retry-with-delay primitive for polling
// external tools and endpoints that need time to become ready.
package retry

import (
	"context"
	"fmt"
	"time"
)

// ExhaustedError is returned when every attempt evaluated the predicate to
// false. It carries a caller-supplied description of what was being waited
// for, so the user-facing message names the step that gave up.
type ExhaustedError struct {
	// What describes the operation being retried (e.g. "webview process listing").
	What string

	// Attempts is the number of evaluations performed.
	Attempts int
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%s: no acceptable result after %d attempts", e.What, e.Attempts)
}

// Do runs op until accept returns true for its result, up to attempts
// evaluations, sleeping delay between evaluations. The last attempt performs
// no trailing delay.
//
// Errors from op propagate immediately without retrying: an error means the
// tool is broken or missing, not that the result isn't ready yet. Only a
// rejected result is retried.
//
// Parameters:
//   - ctx: Context for cancellation; checked during delays
//   - op: The operation producing a candidate result
//   - accept: Predicate deciding whether the result is acceptable
//   - attempts: Maximum number of evaluations (must be >= 1)
//   - delay: Sleep between evaluations
//   - what: Description used in the exhaustion error
//
// Returns:
//   - T: The first accepted result
//   - error: op's error, ctx.Err() on cancellation, or *ExhaustedError
func Do[T any](ctx context.Context, op func(context.Context) (T, error), accept func(T) bool, attempts int, delay time.Duration, what string) (T, error) {
	var zero T
	if attempts < 1 {
		return zero, fmt.Errorf("retry %s: attempts must be >= 1, got %d", what, attempts)
	}

	for i := 1; ; i++ {
		result, err := op(ctx)
		if err != nil {
			return zero, err
		}
		if accept(result) {
			return result, nil
		}
		if i >= attempts {
			return zero, &ExhaustedError{What: what, Attempts: attempts}
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-timer.C:
		}
	}
}
