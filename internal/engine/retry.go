package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tigertag/tigertag-server/internal/domain"
	"github.com/tigertag/tigertag-server/internal/errors"
)

// RetryPolicy bounds how often a remote call is attempted.
// Attempt n (1-based) is followed by a wait of n*Delay.
type RetryPolicy struct {
	Tries int
	Delay time.Duration
}

// DefaultRetryPolicy is five attempts with a one second step.
var DefaultRetryPolicy = RetryPolicy{Tries: 5, Delay: time.Second}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Retry calls fn until it succeeds, returns a Permanent error, the context
// ends, or the policy is exhausted. Exhaustion yields a TransientEngine
// error wrapping the last failure.
func Retry[T any](ctx context.Context, p RetryPolicy, logger *slog.Logger, op string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	tries := max(p.Tries, 1)

	var lastErr error
	for attempt := 1; attempt <= tries; attempt++ {
		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}

		var perm *permanentError
		if errors.As(err, &perm) {
			return zero, perm.err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return zero, ctxErr
		}

		lastErr = err
		logger.Warn("remote call failed",
			"op", op,
			"attempt", attempt,
			"tries", tries,
			"error", err,
		)

		if attempt == tries {
			break
		}
		timer := time.NewTimer(time.Duration(attempt) * p.Delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-timer.C:
		}
	}

	return zero, errors.TransientEngine(fmt.Sprintf("%s failed after %d tries", op, tries), lastErr)
}

// DeferOnTransient turns an exhausted-retry error into a deferral (nil
// computation, nil error) so the resource is retried on a later run instead
// of being recorded as having no tags.
func DeferOnTransient(logger *slog.Logger, path string, c *domain.TagComputation, err error) (*domain.TagComputation, error) {
	if err != nil && errors.Is(err, errors.ErrTransientEngine) {
		logger.Warn("deferring resource after repeated failures", "location", path, "error", err)
		return nil, nil
	}
	return c, err
}
