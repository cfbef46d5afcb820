// Package retry classifies agent exit failures as retryable or fatal and
// computes exponential backoff delays. Rate-limit handling proper lives
// in internal/fallback — this package only decides whether the
// RalphLoop's inner attempt loop should try again.
package retry

import (
	"fmt"
	"strings"
	"time"
)

// Config tunes retry attempts and backoff.
type Config struct {
	MaxAttempts       int
	InitialDelayMs    int64
	MaxDelayMs        int64
	BackoffMultiplier float64
	// RetryableExitCodes are exit codes treated as retryable regardless
	// of output content (e.g. network/timeout codes a given agent CLI
	// uses consistently).
	RetryableExitCodes []int
}

// DefaultConfig returns the standard retry tuning.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:       3,
		InitialDelayMs:    1000,
		MaxDelayMs:        30000,
		BackoffMultiplier: 2.0,
	}
}

var retryableSubstrings = []string{
	"rate limit",
	"429",
	"too many requests",
	"overloaded",
	"connection reset",
	"timeout",
	"temporary failure",
}

// ShouldRetryAgent reports whether a failed agent run should be retried,
// based on the exit code and a tail slice of its output.
func (c Config) ShouldRetryAgent(exitCode int, outputTail string) bool {
	for _, code := range c.RetryableExitCodes {
		if code == exitCode {
			return true
		}
	}
	lower := strings.ToLower(outputTail)
	for _, sub := range retryableSubstrings {
		if strings.Contains(lower, sub) {
			return true
		}
	}
	return false
}

// DelayForAttempt returns the backoff delay before the given attempt
// number (1-indexed: attempt 1 has already happened, this is the delay
// before attempt+1). delay(1) = InitialDelayMs; delay(k+1) = min(delay(k)
// * multiplier, MaxDelayMs).
func (c Config) DelayForAttempt(attempt int) time.Duration {
	delay := float64(c.InitialDelayMs)
	for i := 1; i < attempt; i++ {
		delay *= c.BackoffMultiplier
		if delay > float64(c.MaxDelayMs) {
			delay = float64(c.MaxDelayMs)
			break
		}
	}
	if delay > float64(c.MaxDelayMs) {
		delay = float64(c.MaxDelayMs)
	}
	return time.Duration(delay) * time.Millisecond
}

// FormatRetryNote renders a single human-readable progress-log line.
func FormatRetryNote(attempt int, reason string, delay time.Duration) string {
	return fmt.Sprintf("retry attempt %d: %s; backing off %s", attempt, reason, delay)
}
