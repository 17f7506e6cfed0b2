package b2uploader

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

type attemptFunc func(ctx context.Context, attempt int) (*StoredObject, error)

// withRetry runs fn until it succeeds, the attempt budget is spent, or ctx
// is done. Every attempt starts from scratch.
func (m *Manager) withRetry(ctx context.Context, job *Job, fn attemptFunc) (*StoredObject, int, error) {
	var (
		obj      *StoredObject
		attempts int
		lastErr  error
	)

	retries := uint64(0)
	if m.maxAttempts > 1 {
		retries = uint64(m.maxAttempts - 1)
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(m.retryDelay), retries),
		ctx,
	)

	op := func() error {
		attempts++
		out, err := fn(ctx, attempts)
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}
		obj = out
		return nil
	}

	notify := func(err error, wait time.Duration) {
		m.logger.Error("upload attempt failed",
			"path", job.Path,
			"attempt", attempts,
			"max_attempts", m.maxAttempts,
			"retry_in", wait,
			"error", err,
		)
	}

	if err := backoff.RetryNotify(op, policy, notify); err == nil {
		return obj, attempts, nil
	}

	if ctx.Err() != nil {
		return nil, attempts, fmt.Errorf("%w: %s: %w", ErrUploadAborted, job.Path, context.Cause(ctx))
	}

	return nil, attempts, fmt.Errorf("%w: %s after %d attempts: %w", ErrRetriesExhausted, job.Path, attempts, lastErr)
}
