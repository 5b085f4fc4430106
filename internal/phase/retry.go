package phase

import (
	"context"
	"errors"
	"time"

	"github.com/intelstack/tipforge/internal/bridge"
	"github.com/intelstack/tipforge/internal/log"
)

// RetryPolicy bounds the exponential backoff phase bodies use for transient
// bridge errors. The runner itself never retries.
type RetryPolicy struct {
	MaxAttempts int
	Initial     time.Duration
	Max         time.Duration
}

// DefaultRetry is the policy shipped phases use.
var DefaultRetry = RetryPolicy{
	MaxAttempts: 3,
	Initial:     2 * time.Second,
	Max:         30 * time.Second,
}

// retryable reports whether an error is worth retrying: timeouts and an
// unreachable target may clear up, everything else will not.
func retryable(err error) bool {
	return errors.Is(err, bridge.ErrTimeout) || errors.Is(err, bridge.ErrTargetUnreachable)
}

// Retry runs op with bounded exponential backoff on transient errors.
// Non-transient errors and context cancellation surface immediately.
func Retry(ctx context.Context, policy RetryPolicy, op func(context.Context) error) error {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}

	delay := policy.Initial
	var err error
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		err = op(ctx)
		if err == nil || !retryable(err) {
			return err
		}
		if attempt == policy.MaxAttempts {
			break
		}

		log.Warn("transient error, retrying", "attempt", attempt, "delay", delay, "error", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}

		delay *= 2
		if delay > policy.Max {
			delay = policy.Max
		}
	}
	return err
}
