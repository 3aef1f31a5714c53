package provider

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/kokodak/ttd-dr/pkg/logger"
)

// rateLimitBuffer is added on top of a server-reported retry-after duration
// to avoid racing the quota window's edge.
const rateLimitBuffer = 5.0

// defaultRateLimitDelay is used when a rate-limit error carries no
// parseable retry-after duration (60s default window + the buffer).
const defaultRateLimitDelay = 60.0 + rateLimitBuffer

var retryAfterPattern = regexp.MustCompile(`(?i)retry in (\d+(?:\.\d+)?)\s*s`)

// parseRetryAfter extracts a "retry in N[.N]s" duration from an error
// message, or returns false if none is present.
func parseRetryAfter(errStr string) (float64, bool) {
	match := retryAfterPattern.FindStringSubmatch(errStr)
	if match == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(match[1], 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func isRateLimitError(errStr string) bool {
	return strings.Contains(errStr, "429") || strings.Contains(errStr, "RESOURCE_EXHAUSTED")
}

func isTransientError(errStr string) bool {
	for _, keyword := range []string{"timeout", "502", "503"} {
		if strings.Contains(errStr, keyword) {
			return true
		}
	}
	return false
}

// ProviderFailure is returned once retries are exhausted. It carries
// operator-facing remediation guidance per spec.md §7.
type ProviderFailure struct {
	Operation string
	Attempts  int
	MaxRetries int
	Cause     error
}

func (e *ProviderFailure) Error() string {
	return fmt.Sprintf(
		"gemini API %s failed: %v\nAttempts: %d/%d\nPlease check:\n1. API key is valid\n2. Rate limits not exceeded\n3. Network connectivity\n4. Gemini API status: https://status.cloud.google.com/",
		e.Operation, e.Cause, e.Attempts, e.MaxRetries,
	)
}

func (e *ProviderFailure) Unwrap() error { return e.Cause }

// withRetry executes fn, retrying rate-limit and transient failures per the
// taxonomy: rate-limit errors wait for the server's reported retry-after
// duration plus a fixed buffer (or a 65s default); transient errors
// (timeout, 502, 503) follow the client's configured exponential backoff
// schedule. Any other error is fatal and is not retried.
func (c *Client) withRetry(ctx context.Context, operation string, fn func() error) error {
	var lastErr error

	for attempt := 0; attempt < c.maxRetries; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err
		errStr := err.Error()

		rateLimited := isRateLimitError(errStr)
		transient := isTransientError(errStr)
		lastAttempt := attempt == c.maxRetries-1

		if (rateLimited || transient) && !lastAttempt {
			delay := c.delayFor(attempt, rateLimited, errStr)
			logger.Warn(fmt.Sprintf(
				"%s failed (attempt %d/%d): %s. retrying in %.1fs...",
				operation, attempt+1, c.maxRetries, errStr, delay,
			))
			if sleepErr := sleepCtx(ctx, delay); sleepErr != nil {
				return sleepErr
			}
			continue
		}

		logger.Error(fmt.Sprintf("%s failed after %d attempts: %s", operation, attempt+1, errStr))
		return &ProviderFailure{Operation: operation, Attempts: attempt + 1, MaxRetries: c.maxRetries, Cause: err}
	}

	return &ProviderFailure{Operation: operation, Attempts: c.maxRetries, MaxRetries: c.maxRetries, Cause: lastErr}
}

func (c *Client) delayFor(attempt int, rateLimited bool, errStr string) float64 {
	if rateLimited {
		if retryAfter, ok := parseRetryAfter(errStr); ok {
			return retryAfter + rateLimitBuffer
		}
		return defaultRateLimitDelay
	}
	if attempt < len(c.retryDelays) {
		return c.retryDelays[attempt]
	}
	return c.retryDelays[len(c.retryDelays)-1]
}

func sleepCtx(ctx context.Context, seconds float64) error {
	timer := time.NewTimer(time.Duration(seconds * float64(time.Second)))
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
