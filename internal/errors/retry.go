package errors

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"
)

// RetryConfig defines retry behavior configuration
type RetryConfig struct {
	// MaxRetries is the maximum number of retry attempts after the first call
	MaxRetries int
	// InitialBackoff is the initial backoff duration
	InitialBackoff time.Duration
	// MaxBackoff is the maximum backoff duration
	MaxBackoff time.Duration
	// Multiplier is the backoff multiplier for exponential backoff
	Multiplier float64
	// Jitter spreads each wait by up to this fraction in either direction
	Jitter float64
	// RetryableErrors is a function to determine if an error is retryable
	RetryableErrors func(error) bool
	// OnRetry is called before each wait, mostly for logging
	OnRetry func(attempt int, err error, wait time.Duration)
}

// DefaultRetryConfig returns a default retry configuration
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:     3,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     10 * time.Second,
		Multiplier:     2.0,
		RetryableErrors: func(err error) bool {
			return IsRetryable(err)
		},
	}
}

// DeviceRetryConfig returns the retry configuration used when opening a
// drive that may still be spinning up or loading the tray.
func DeviceRetryConfig(retries int) RetryConfig {
	cfg := DefaultRetryConfig()
	cfg.MaxRetries = retries
	cfg.InitialBackoff = 2 * time.Second
	cfg.MaxBackoff = 8 * time.Second
	cfg.RetryableErrors = func(err error) bool {
		return IsDeviceError(err) && IsRetryable(err)
	}
	return cfg
}

// RetryWithBackoff executes a function with exponential backoff retry logic
func RetryWithBackoff(ctx context.Context, config RetryConfig, fn func() error) error {
	var lastErr error

	for attempt := 0; attempt <= config.MaxRetries; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if config.RetryableErrors != nil && !config.RetryableErrors(err) {
			return err
		}

		if attempt == config.MaxRetries {
			break
		}

		backoff := calculateBackoff(attempt, config.InitialBackoff, config.MaxBackoff, config.Multiplier)
		if IsRateLimitError(err) {
			backoff = config.MaxBackoff
		}
		backoff = applyJitter(backoff, config.Jitter, config.MaxBackoff)

		if config.OnRetry != nil {
			config.OnRetry(attempt+1, err, backoff)
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("retry cancelled: %w", ctx.Err())
		case <-timer.C:
		}
	}

	return fmt.Errorf("max retries (%d) exceeded: %w", config.MaxRetries, lastErr)
}

// calculateBackoff calculates the backoff duration for a given attempt
func calculateBackoff(attempt int, initial, max time.Duration, multiplier float64) time.Duration {
	backoff := float64(initial) * math.Pow(multiplier, float64(attempt))
	if backoff > float64(max) {
		backoff = float64(max)
	}
	return time.Duration(backoff)
}

func applyJitter(backoff time.Duration, fraction float64, max time.Duration) time.Duration {
	if fraction <= 0 {
		return backoff
	}
	delta := time.Duration(float64(backoff) * fraction * (2*rand.Float64() - 1))
	backoff += delta
	if backoff < 0 {
		backoff = 0
	}
	if backoff > max {
		backoff = max
	}
	return backoff
}
