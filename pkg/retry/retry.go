package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"
)

// Config defines retry behavior with exponential backoff
type Config struct {
	MaxRetries       int
	InitialDelay     time.Duration
	MaxDelay         time.Duration
	Multiplier       float64
	JitterFactor     float64 // 0.0-1.0, default 0.1 for +/-10% jitter to prevent thundering herd
	MaxSameErrorType int     // After N consecutive same-type errors, treat as permanent (default: 5)
}

// DefaultConfig returns the defaults used for entity-store queries and blob reads:
// 3 retries with 100ms initial delay, capped at 5s, doubling each time, with 10% jitter
func DefaultConfig() *Config {
	return &Config{
		MaxRetries:       3,
		InitialDelay:     100 * time.Millisecond,
		MaxDelay:         5 * time.Second,
		Multiplier:       2.0,
		JitterFactor:     0.1, // +/-10% jitter to prevent thundering herd
		MaxSameErrorType: 5,   // Escalate to permanent after 5 consecutive same-type errors
	}
}

// applyJitter adds random jitter to a delay to prevent thundering herd.
// Returns the delay with jitter applied if jitterFactor > 0.
// Jitter is calculated as: delay +/- (delay * jitterFactor * random(-1 to +1))
func applyJitter(delay time.Duration, jitterFactor float64) time.Duration {
	if jitterFactor <= 0 {
		return delay
	}
	// Random value between -jitterFactor and +jitterFactor
	jitter := float64(delay) * jitterFactor * (rand.Float64()*2 - 1)
	return time.Duration(float64(delay) + jitter)
}

// Do executes fn with exponential backoff retry logic
// Returns nil on success, or last error after all retries exhausted
// Respects context cancellation during wait periods
func Do(ctx context.Context, cfg *Config, fn func() error) error {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	var lastErr error
	delay := cfg.InitialDelay

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err

			if attempt < cfg.MaxRetries {
				select {
				case <-time.After(applyJitter(delay, cfg.JitterFactor)):
					delay = time.Duration(float64(delay) * cfg.Multiplier)
					if delay > cfg.MaxDelay {
						delay = cfg.MaxDelay
					}
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		}
	}

	return lastErr
}

// DoWithResult executes fn and returns both result and error
// Useful for functions that return values (like pgxpool.New)
// Respects context cancellation during wait periods
func DoWithResult[T any](ctx context.Context, cfg *Config, fn func() (T, error)) (T, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	var result T
	var lastErr error
	delay := cfg.InitialDelay

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		r, err := fn()
		if err == nil {
			return r, nil
		}

		lastErr = err
		result = r // Keep last result even on error

		if attempt < cfg.MaxRetries {
			select {
			case <-time.After(applyJitter(delay, cfg.JitterFactor)):
				delay = time.Duration(float64(delay) * cfg.Multiplier)
				if delay > cfg.MaxDelay {
					delay = cfg.MaxDelay
				}
			case <-ctx.Done():
				return result, ctx.Err()
			}
		}
	}

	return result, lastErr
}

// RetryableError is an interface for errors that explicitly declare their retryability.
type RetryableError interface {
	error
	IsRetryable() bool
}

var retryablePatterns = []string{
	// Connection errors
	"connection refused",
	"connection reset",
	"broken pipe",
	"no such host",
	"timeout",
	"timed out",
	"temporary failure",
	"too many connections",
	"deadlock",
	"network is unreachable",
	"unexpected eof",
	// HTTP status codes from object storage
	"429",
	"500",
	"502",
	"503",
	"504",
	// Object storage throttling
	"slow down",
	"slowdown",
	"service unavailable",
	"too many requests",
	"request time too skewed",
}

// IsRetryable determines if an error is transient and worth retrying.
// Missing objects, bad credentials and malformed SQL fail immediately.
//
// The function checks errors in this order:
// 1. If the error implements RetryableError, use its IsRetryable() method
// 2. Context cancellation is never retried
// 3. Otherwise, pattern-match against known transient error strings
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var r RetryableError
	if errors.As(err, &r) {
		return r.IsRetryable()
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	errStr := strings.ToLower(err.Error())
	for _, pattern := range retryablePatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}

	return false
}

// classifyErrorType extracts a category from err to detect repeated failures of the same kind.
func classifyErrorType(err error) string {
	if err == nil {
		return "nil"
	}

	errStr := strings.ToLower(err.Error())

	for _, code := range []string{"503", "502", "504", "500", "429"} {
		if strings.Contains(errStr, code) {
			return code
		}
	}

	switch {
	case strings.Contains(errStr, "connection refused") || strings.Contains(errStr, "connection reset"):
		return "connection"
	case strings.Contains(errStr, "timeout") || strings.Contains(errStr, "timed out"):
		return "timeout"
	case strings.Contains(errStr, "broken pipe"):
		return "broken_pipe"
	case strings.Contains(errStr, "slow down") || strings.Contains(errStr, "slowdown") || strings.Contains(errStr, "too many requests"):
		return "throttled"
	}

	return "unknown"
}

// DoIfRetryable only retries if the error is transient.
// Permanent errors return immediately. After MaxSameErrorType consecutive failures of
// the same type the error is escalated to permanent.
// Respects context cancellation during wait periods.
func DoIfRetryable(ctx context.Context, cfg *Config, fn func() error) error {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	var lastErr error
	delay := cfg.InitialDelay
	sameErrorCount := 0
	var lastErrorType string

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if !IsRetryable(err) {
			return err
		}

		currentErrorType := classifyErrorType(err)
		if currentErrorType == lastErrorType {
			sameErrorCount++
			if cfg.MaxSameErrorType > 0 && sameErrorCount >= cfg.MaxSameErrorType {
				return fmt.Errorf("repeated error (%d times, type=%s): %w", sameErrorCount, currentErrorType, err)
			}
		} else {
			sameErrorCount = 1
			lastErrorType = currentErrorType
		}

		if attempt < cfg.MaxRetries {
			select {
			case <-time.After(applyJitter(delay, cfg.JitterFactor)):
				delay = time.Duration(float64(delay) * cfg.Multiplier)
				if delay > cfg.MaxDelay {
					delay = cfg.MaxDelay
				}
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	return lastErr
}
