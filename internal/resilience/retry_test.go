package resilience

import (
	"context"
	"errors"
	"io/fs"
	"testing"
	"time"
)

func fastConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:   3,
		BaseDelay:    time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		JitterFactor: 0.1,
		IsRetryable:  IsRetryableFS,
	}
}

func TestRetrySucceedsAfterTransientError(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastConfig(), func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
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

func TestRetryStopsOnNonRetryable(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastConfig(), func() error {
		calls++
		return fs.ErrPermission
	})
	if !errors.Is(err, fs.ErrPermission) {
		t.Fatalf("err = %v, want permission error", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 for non-retryable error", calls)
	}
}

func TestRetryExhaustsAttempts(t *testing.T) {
	calls := 0
	wantErr := errors.New("still broken")
	err := Retry(context.Background(), fastConfig(), func() error {
		calls++
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("err = %v, want %v", err, wantErr)
	}
	if calls != 4 { // initial attempt plus MaxRetries
		t.Errorf("calls = %d, want 4", calls)
	}
}

func TestRetryHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Retry(ctx, fastConfig(), func() error { return errors.New("never reached") })
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestRetryDefaultsToFSRetryability(t *testing.T) {
	cfg := RetryConfig{
		MaxRetries:   2,
		BaseDelay:    time.Millisecond,
		MaxDelay:     time.Millisecond,
		JitterFactor: 0.1,
		// IsRetryable left nil: IsRetryableFS applies.
	}

	calls := 0
	err := Retry(context.Background(), cfg, func() error {
		calls++
		return fs.ErrNotExist
	})
	if !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("err = %v, want not-exist error", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 under the default classifier", calls)
	}
}

func TestIsRetryableFS(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"not exist", fs.ErrNotExist, false},
		{"permission", fs.ErrPermission, false},
		{"invalid", fs.ErrInvalid, false},
		{"exist", fs.ErrExist, false},
		{"wrapped not exist", errors.Join(errors.New("open"), fs.ErrNotExist), false},
		{"other", errors.New("device busy"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryableFS(tt.err); got != tt.want {
				t.Errorf("IsRetryableFS(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestBackoffDelayCapped(t *testing.T) {
	cfg := fastConfig()
	for attempt := 0; attempt < 10; attempt++ {
		d := backoffDelay(cfg, attempt)
		// Jitter is at most half the factor in either direction.
		limit := time.Duration(float64(cfg.MaxDelay) * (1 + cfg.JitterFactor))
		if d < 0 || d > limit {
			t.Errorf("attempt %d delay %v outside [0, %v]", attempt, d, limit)
		}
	}
}
