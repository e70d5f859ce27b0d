package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"time"

	"github.com/aws/smithy-go"
)

// DefaultMaxRetries is the default maximum number of retries for transient errors.
const DefaultMaxRetries = 3

// Policy defines retry behavior for transient S3 and response endpoint errors.
type Policy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// DefaultPolicy returns a sensible default retry policy.
func DefaultPolicy() *Policy {
	return &Policy{
		MaxRetries: DefaultMaxRetries,
		BaseDelay:  500 * time.Millisecond,
		MaxDelay:   10 * time.Second,
	}
}

// Do executes fn with exponential backoff and jitter.
// It retries only if shouldRetry returns true for the error.
func Do(ctx context.Context, policy *Policy, fn func() error, shouldRetry func(error) bool) error {
	if policy == nil {
		policy = DefaultPolicy()
	}

	var lastErr error
	for attempt := 0; attempt <= policy.MaxRetries; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}

		if !shouldRetry(lastErr) {
			return lastErr
		}

		if attempt < policy.MaxRetries {
			if ctx.Err() != nil {
				return fmt.Errorf("retry cancelled: %w", errors.Join(ctx.Err(), lastErr))
			}
			delay := backoff(attempt, policy.BaseDelay, policy.MaxDelay)
			select {
			case <-ctx.Done():
				return fmt.Errorf("retry cancelled: %w", errors.Join(ctx.Err(), lastErr))
			case <-time.After(delay):
			}
		}
	}

	return fmt.Errorf("max retries (%d) exceeded: %w", policy.MaxRetries, lastErr)
}

// backoff returns exponential backoff with full jitter.
func backoff(attempt int, base, max time.Duration) time.Duration {
	d := float64(base) * math.Pow(2, float64(attempt))
	if d > float64(max) {
		d = float64(max)
	}
	return time.Duration(rand.Float64() * d)
}

var transientCodes = map[string]bool{
	"Throttling":                     true,
	"ThrottlingException":            true,
	"ThrottledException":             true,
	"RequestThrottled":               true,
	"RequestThrottledException":      true,
	"TooManyRequestsException":       true,
	"SlowDown":                       true,
	"RequestTimeout":                 true,
	"RequestTimeoutException":        true,
	"InternalError":                  true,
	"ServiceUnavailable":             true,
	"ProvisionedThroughputExceeded":  true,
	"EC2ThrottledException":          true,
	"TransactionInProgressException": true,
}

var transientPatterns = []string{
	"throttl",
	"rate exceed",
	"too many requests",
	"request limit",
	"service unavailable",
	"internal server error",
	"connection reset",
	"connection refused",
	"timeout",
	"tls handshake",
	"temporary failure",
	"unexpected eof",
}

// IsTransient reports whether err is likely transient and retryable.
// Cancellation and deadline errors are never transient: the invocation is over.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var ae smithy.APIError
	if errors.As(err, &ae) && transientCodes[ae.ErrorCode()] {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, pattern := range transientPatterns {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}
