package errors

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestDefaultRetryConfig(t *testing.T) {
	config := DefaultRetryConfig()

	if config.MaxRetries != 3 {
		t.Errorf("MaxRetries = %v, want 3", config.MaxRetries)
	}
	if config.InitialBackoff != 500*time.Millisecond {
		t.Errorf("InitialBackoff = %v, want 500ms", config.InitialBackoff)
	}
	if config.MaxBackoff != 10*time.Second {
		t.Errorf("MaxBackoff = %v, want 10s", config.MaxBackoff)
	}
	if config.RetryableErrors == nil {
		t.Error("RetryableErrors function is nil")
	}
}

func TestDeviceRetryConfig(t *testing.T) {
	config := DeviceRetryConfig(4)
	if config.MaxRetries != 4 {
		t.Errorf("MaxRetries = %v, want 4", config.MaxRetries)
	}
	if config.RetryableErrors(NewNetworkError("x", nil)) {
		t.Error("network errors should not be retried when opening a drive")
	}
	if !config.RetryableErrors(NewDeviceError("x", nil)) {
		t.Error("device errors should be retried")
	}
}

func fastConfig(retries int) RetryConfig {
	return RetryConfig{
		MaxRetries:      retries,
		InitialBackoff:  time.Millisecond,
		MaxBackoff:      5 * time.Millisecond,
		Multiplier:      2.0,
		RetryableErrors: IsRetryable,
	}
}

func TestRetryWithBackoff_Success(t *testing.T) {
	attemptCount := 0
	err := RetryWithBackoff(context.Background(), fastConfig(3), func() error {
		attemptCount++
		if attemptCount < 3 {
			return NewDeviceError("drive busy", nil)
		}
		return nil
	})

	if err != nil {
		t.Errorf("Expected success, got error: %v", err)
	}
	if attemptCount != 3 {
		t.Errorf("Expected 3 attempts, got %d", attemptCount)
	}
}

func TestRetryWithBackoff_MaxRetriesExceeded(t *testing.T) {
	attemptCount := 0
	err := RetryWithBackoff(context.Background(), fastConfig(2), func() error {
		attemptCount++
		return NewNetworkError("still failing", nil)
	})

	if err == nil {
		t.Fatal("Expected error, got nil")
	}
	if attemptCount != 3 {
		t.Errorf("Expected 3 attempts, got %d", attemptCount)
	}
	if !strings.Contains(err.Error(), "max retries (2) exceeded") {
		t.Errorf("unexpected error: %v", err)
	}
	if !IsNetworkError(err) {
		t.Error("wrapped error should keep its type")
	}
}

func TestRetryWithBackoff_NonRetryableError(t *testing.T) {
	attemptCount := 0
	err := RetryWithBackoff(context.Background(), fastConfig(3), func() error {
		attemptCount++
		return NewValidationError("bad input")
	})

	if err == nil {
		t.Fatal("Expected error, got nil")
	}
	if attemptCount != 1 {
		t.Errorf("Expected 1 attempt, got %d", attemptCount)
	}
}

func TestRetryWithBackoff_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := fastConfig(10)
	cfg.InitialBackoff = time.Second
	cfg.MaxBackoff = time.Second

	attemptCount := 0
	err := RetryWithBackoff(ctx, cfg, func() error {
		attemptCount++
		cancel()
		return NewDeviceError("busy", nil)
	})

	if err == nil || !strings.Contains(err.Error(), "retry cancelled") {
		t.Fatalf("Expected cancellation error, got %v", err)
	}
	if attemptCount != 1 {
		t.Errorf("Expected 1 attempt, got %d", attemptCount)
	}
}

func TestRetryWithBackoff_OnRetry(t *testing.T) {
	var attempts []int
	cfg := fastConfig(2)
	cfg.OnRetry = func(attempt int, err error, wait time.Duration) {
		attempts = append(attempts, attempt)
	}

	_ = RetryWithBackoff(context.Background(), cfg, func() error {
		return NewDeviceError("busy", nil)
	})

	if len(attempts) != 2 || attempts[0] != 1 || attempts[1] != 2 {
		t.Errorf("OnRetry attempts = %v, want [1 2]", attempts)
	}
}

func TestCalculateBackoff(t *testing.T) {
	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{0, 100 * time.Millisecond},
		{1, 200 * time.Millisecond},
		{2, 400 * time.Millisecond},
		{3, 800 * time.Millisecond},
		{4, time.Second},
		{10, time.Second},
	}

	for _, tt := range tests {
		got := calculateBackoff(tt.attempt, 100*time.Millisecond, time.Second, 2.0)
		if got != tt.expected {
			t.Errorf("calculateBackoff(%d) = %v, want %v", tt.attempt, got, tt.expected)
		}
	}
}

func TestApplyJitter(t *testing.T) {
	if got := applyJitter(time.Second, 0, 2*time.Second); got != time.Second {
		t.Errorf("zero jitter changed backoff: %v", got)
	}
	for i := 0; i < 50; i++ {
		got := applyJitter(time.Second, 0.25, 2*time.Second)
		if got < 750*time.Millisecond || got > 1250*time.Millisecond {
			t.Fatalf("jittered backoff out of range: %v", got)
		}
	}
}
