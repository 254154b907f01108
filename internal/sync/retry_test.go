package sync

import (
	"context"
	"errors"
	"fmt"
	"os"
	"syscall"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/juste-un-gars/anemone_transfer/internal/transfer"
)

func TestNoRetryPolicy(t *testing.T) {
	policy := NoRetryPolicy()

	if policy.MaxRetries != 0 {
		t.Errorf("expected MaxRetries=0, got %d", policy.MaxRetries)
	}
}

func TestNewRetryPolicyClampsNegative(t *testing.T) {
	policy := NewRetryPolicy(-4, time.Second, nil)
	if policy.MaxRetries != 0 {
		t.Errorf("expected MaxRetries=0, got %d", policy.MaxRetries)
	}
	if policy.Logger == nil {
		t.Error("expected a default logger")
	}
}

func TestRetrySuccess(t *testing.T) {
	policy := NewRetryPolicy(3, 0, zap.NewNop())

	attempts := 0
	res := policy.Execute(context.Background(), "test", func(ctx context.Context) error {
		attempts++
		return nil
	})

	if res.Err != nil {
		t.Errorf("expected no error, got %v", res.Err)
	}
	if res.Attempts != 1 || attempts != 1 {
		t.Errorf("expected 1 attempt, got %d", res.Attempts)
	}
}

func TestRetrySuccessAfterFailures(t *testing.T) {
	policy := NewRetryPolicy(3, 0, zap.NewNop())

	attempts := 0
	res := policy.Execute(context.Background(), "test", func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return errors.New("connection reset by peer")
		}
		return nil
	})

	if res.Err != nil {
		t.Errorf("expected no error, got %v", res.Err)
	}
	if res.Attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", res.Attempts)
	}
}

func TestRetryMaxRetriesExceeded(t *testing.T) {
	policy := NewRetryPolicy(2, 0, zap.NewNop())

	attempts := 0
	res := policy.Execute(context.Background(), "test", func(ctx context.Context) error {
		attempts++
		return fmt.Errorf("attempt %d: %w", attempts, transfer.ErrNotConnected)
	})

	if res.Err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if res.Attempts != 3 {
		t.Errorf("expected 3 attempts (1 + 2 retries), got %d", res.Attempts)
	}
	if res.Err.Error() != "attempt 3: not connected" {
		t.Errorf("expected the last error, got %v", res.Err)
	}
}

func TestRetryNonRetryableError(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"not found", fmt.Errorf("download: %w", transfer.ErrNotFound)},
		{"os not exist", &os.PathError{Op: "open", Path: "/x", Err: os.ErrNotExist}},
		{"permission", &os.PathError{Op: "open", Path: "/x", Err: syscall.EACCES}},
		{"unknown", errors.New("invalid argument")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			policy := NewRetryPolicy(5, 0, zap.NewNop())
			res := policy.Execute(context.Background(), "test", func(ctx context.Context) error {
				return tt.err
			})
			if res.Attempts != 1 {
				t.Errorf("expected 1 attempt, got %d", res.Attempts)
			}
			if !errors.Is(res.Err, tt.err) {
				t.Errorf("expected %v, got %v", tt.err, res.Err)
			}
		})
	}
}

func TestRetryFixedDelay(t *testing.T) {
	policy := NewRetryPolicy(3, 5*time.Second, zap.NewNop())
	var waits []time.Duration
	policy.wait = func(ctx context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}

	policy.Execute(context.Background(), "test", func(ctx context.Context) error {
		return syscall.ECONNREFUSED
	})

	if len(waits) != 3 {
		t.Fatalf("expected 3 waits, got %d", len(waits))
	}
	for i, d := range waits {
		if d != 5*time.Second {
			t.Errorf("wait %d = %v, expected fixed 5s", i, d)
		}
	}
}

func TestRetryContextCancellation(t *testing.T) {
	policy := NewRetryPolicy(10, time.Hour, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0
	done := make(chan RetryResult, 1)
	go func() {
		done <- policy.Execute(ctx, "test", func(ctx context.Context) error {
			attempts++
			return transfer.ErrNotConnected
		})
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case res := <-done:
		if !errors.Is(res.Err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", res.Err)
		}
		if res.Attempts != 1 {
			t.Errorf("expected 1 attempt, got %d", res.Attempts)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("retry did not stop on cancellation")
	}
}

func TestRetryWrapsAttempts(t *testing.T) {
	policy := NewRetryPolicy(1, 0, zap.NewNop())
	err := policy.Retry(context.Background(), "test", func(ctx context.Context) error {
		return transfer.ErrNotConnected
	})
	if !errors.Is(err, transfer.ErrNotConnected) {
		t.Errorf("expected wrapped ErrNotConnected, got %v", err)
	}
}
