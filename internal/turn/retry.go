package turn

import (
	"os"
	"strconv"
	"time"
)

// maxStreamAttempts caps retries at five attempts per streaming request.
const maxStreamAttempts = 5

// defaultRateLimitRetryWaitMS is the configurable base for the exponential
// backoff (base * 2^(attempt-1)), read from OPENAI_RATE_LIMIT_RETRY_WAIT_MS.
const defaultRateLimitRetryWaitMS = 2500

// retryBase reads OPENAI_RATE_LIMIT_RETRY_WAIT_MS, falling back to the
// default above when unset or unparsable.
func retryBase() time.Duration {
	if raw := os.Getenv("OPENAI_RATE_LIMIT_RETRY_WAIT_MS"); raw != "" {
		if ms, err := strconv.ParseInt(raw, 10, 64); err == nil && ms > 0 {
			return time.Duration(ms) * time.Millisecond
		}
	}
	return defaultRateLimitRetryWaitMS * time.Millisecond
}

// backoffDuration computes base * 2^(attempt-1) for attempt >= 1.
func backoffDuration(base time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
	}
	return d
}
