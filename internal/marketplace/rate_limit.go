package marketplace

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// RateLimitError is returned when the marketplace answers 429.
// Cycles do not retry; RetryAfter is reported for diagnostics.
type RateLimitError struct {
	RetryAfter time.Duration
	Message    string
}

func (e *RateLimitError) Error() string {
	if e == nil {
		return "rate limit"
	}
	if e.Message != "" {
		return e.Message + " (retry after " + e.RetryAfter.String() + ")"
	}
	return "rate limit exceeded"
}

func rateLimitErrorFromHeaders(headers http.Header, msg string) *RateLimitError {
	retryAfter := 30 * time.Second
	if v := strings.TrimSpace(headers.Get("Retry-After")); v != "" {
		if secs, err := strconv.ParseInt(v, 10, 64); err == nil && secs >= 0 {
			retryAfter = time.Duration(secs) * time.Second
		} else if at, err := http.ParseTime(v); err == nil {
			if d := time.Until(at); d > 0 {
				retryAfter = d
			}
		}
	}
	return &RateLimitError{RetryAfter: retryAfter, Message: msg}
}
