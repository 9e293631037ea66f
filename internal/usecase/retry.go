package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"SocialMonitor/internal/config"
	"SocialMonitor/internal/domain"
)

// withRetry invokes fn, retrying transient failures up to policy.MaxRetries
// extra attempts with exponential backoff (backoffBase * 2^attempt, capped).
// Non-transient errors return immediately. Each attempt runs under
// policy.AttemptTimeout when one is configured. Returns the number of
// attempts made alongside the final error.
func withRetry(ctx context.Context, logger *slog.Logger, policy config.RetryConfig, op string, fn func(context.Context) error) (int, error) {
	var lastErr error

	for attempt := 0; attempt <= policy.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := backoffDelay(policy, attempt-1)
			logger.Warn("retrying after transient failure",
				"op", op, "attempt", attempt+1, "delay", delay, "error", lastErr)
			if err := sleep(ctx, delay); err != nil {
				return attempt, err
			}
		}

		attemptCtx := ctx
		cancel := func() {}
		if policy.AttemptTimeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, policy.AttemptTimeout)
		}
		err := fn(attemptCtx)
		cancel()

		if err == nil {
			return attempt + 1, nil
		}
		// A timed-out attempt is transient by definition.
		if attemptCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
			err = domain.Transient(err)
		}
		lastErr = err

		if !domain.IsTransient(err) {
			return attempt + 1, err
		}
	}

	return policy.MaxRetries + 1, fmt.Errorf("%s: retries exhausted: %w", op, lastErr)
}

func backoffDelay(policy config.RetryConfig, attempt int) time.Duration {
	delay := policy.BackoffBase
	for i := 0; i < attempt; i++ {
		delay *= 2
		if policy.BackoffCap > 0 && delay >= policy.BackoffCap {
			return policy.BackoffCap
		}
	}
	if policy.BackoffCap > 0 && delay > policy.BackoffCap {
		return policy.BackoffCap
	}
	return delay
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
