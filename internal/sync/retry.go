package sync

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// RetryPolicy retries transient failures with a fixed delay between attempts
type RetryPolicy struct {
	// MaxRetries is the number of retries after the first attempt
	MaxRetries int

	// Delay is the fixed wait before each retry
	Delay time.Duration

	// Logger for retry events
	Logger *zap.Logger

	// wait is replaced in tests
	wait func(ctx context.Context, d time.Duration) error
}

// NewRetryPolicy creates a fixed-delay policy
func NewRetryPolicy(maxRetries int, delay time.Duration, logger *zap.Logger) *RetryPolicy {
	if maxRetries < 0 {
		maxRetries = 0
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RetryPolicy{
		MaxRetries: maxRetries,
		Delay:      delay,
		Logger:     logger,
	}
}

// NoRetryPolicy returns a policy that never retries
func NoRetryPolicy() *RetryPolicy {
	return NewRetryPolicy(0, 0, nil)
}

// RetryableFunc is a function that can be retried
type RetryableFunc func(ctx context.Context) error

// RetryResult reports how an operation ended
type RetryResult struct {
	Attempts int   // Number of times fn was called
	Err      error // Last error, nil on success
}

// Execute runs fn until it succeeds, fails with a non-transient error,
// exhausts MaxRetries or ctx is done.
func (p *RetryPolicy) Execute(ctx context.Context, operation string, fn RetryableFunc) RetryResult {
	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	attempt := 0
	for {
		attempt++

		err := fn(ctx)
		if err == nil {
			if attempt > 1 {
				logger.Info("operation succeeded after retries",
					zap.String("operation", operation),
					zap.Int("attempts", attempt),
				)
			}
			return RetryResult{Attempts: attempt}
		}

		if !p.shouldRetry(attempt, err) {
			if attempt > 1 {
				logger.Error("operation failed after retries",
					zap.String("operation", operation),
					zap.Int("attempts", attempt),
					zap.Error(err),
				)
			}
			return RetryResult{Attempts: attempt, Err: err}
		}

		logger.Warn("operation failed, retrying",
			zap.String("operation", operation),
			zap.Int("attempt", attempt),
			zap.Int("max_retries", p.MaxRetries),
			zap.Duration("delay", p.Delay),
			zap.Error(err),
		)

		if waitErr := p.sleep(ctx, p.Delay); waitErr != nil {
			return RetryResult{
				Attempts: attempt,
				Err:      fmt.Errorf("retry aborted: %w (last error: %v)", waitErr, err),
			}
		}
	}
}

// Retry is Execute without the attempt count
func (p *RetryPolicy) Retry(ctx context.Context, operation string, fn RetryableFunc) error {
	res := p.Execute(ctx, operation, fn)
	if res.Err != nil {
		return fmt.Errorf("operation failed after %d attempts: %w", res.Attempts, res.Err)
	}
	return nil
}

// shouldRetry determines if an operation should be retried
func (p *RetryPolicy) shouldRetry(attempt int, err error) bool {
	if attempt > p.MaxRetries {
		return false
	}
	_, retryable := ClassifyError(err)
	return retryable
}

func (p *RetryPolicy) sleep(ctx context.Context, d time.Duration) error {
	if p.wait != nil {
		return p.wait(ctx, d)
	}
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
