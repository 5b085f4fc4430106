package phase

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/intelstack/tipforge/internal/bridge"
)

var fastRetry = RetryPolicy{MaxAttempts: 3, Initial: time.Millisecond, Max: 4 * time.Millisecond}

func TestRetry_SucceedsFirstTry(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastRetry, func(ctx context.Context) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestRetry_NonTransientSurfacesImmediately(t *testing.T) {
	calls := 0
	permanent := errors.New("syntax invalid")
	err := Retry(context.Background(), fastRetry, func(ctx context.Context) error {
		calls++
		return permanent
	})
	if !errors.Is(err, permanent) {
		t.Fatalf("Retry = %v, want the permanent error", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 (no retry on non-transient errors)", calls)
	}
}

func TestRetry_TransientRecovers(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastRetry, func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return fmt.Errorf("exec: %w", bridge.ErrTimeout)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestRetry_ExhaustsAttempts(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastRetry, func(ctx context.Context) error {
		calls++
		return bridge.ErrTargetUnreachable
	})
	if !errors.Is(err, bridge.ErrTargetUnreachable) {
		t.Fatalf("Retry = %v, want the last transient error", err)
	}
	if calls != fastRetry.MaxAttempts {
		t.Errorf("calls = %d, want %d", calls, fastRetry.MaxAttempts)
	}
}

func TestRetry_CancellationStopsBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	err := Retry(ctx, RetryPolicy{MaxAttempts: 5, Initial: time.Minute, Max: time.Minute}, func(ctx context.Context) error {
		calls++
		cancel()
		return bridge.ErrTimeout
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Retry = %v, want context.Canceled", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}
