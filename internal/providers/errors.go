package providers

import (
	"errors"
	"fmt"
	"strings"
)

// RateLimitError is returned for 429-class responses. Daily distinguishes
// a period-exhausted limit (the caller must stop issuing billed requests
// for the rest of the period, no retry) from a transient burst limit
// (defer this item, continue with the next).
type RateLimitError struct {
	Daily      bool
	StatusCode int
	Message    string
}

func (e *RateLimitError) Error() string {
	kind := "rate limited"
	if e.Daily {
		kind = "daily rate limit reached"
	}
	return fmt.Sprintf("%s (status %d): %s", kind, e.StatusCode, e.Message)
}

// IsRateLimit reports whether err is a rate-limit error.
func IsRateLimit(err error) bool {
	var rle *RateLimitError
	return errors.As(err, &rle)
}

// IsDailyLimit reports whether err is a daily-limit rate-limit error.
func IsDailyLimit(err error) bool {
	var rle *RateLimitError
	return errors.As(err, &rle) && rle.Daily
}

// dailyIndicators are substrings a 429 body may carry when the limit is
// period-based rather than burst-based.
var dailyIndicators = []string{"daily", "quota", "per day", "24 hour", "24-hour"}

// classifyRateLimit builds a RateLimitError from a 429 response body.
func classifyRateLimit(statusCode int, body string) *RateLimitError {
	lower := strings.ToLower(body)
	daily := false
	for _, ind := range dailyIndicators {
		if strings.Contains(lower, ind) {
			daily = true
			break
		}
	}
	msg := body
	if len(msg) > 300 {
		msg = msg[:300]
	}
	return &RateLimitError{Daily: daily, StatusCode: statusCode, Message: msg}
}
