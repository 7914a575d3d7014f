package providers

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestClassifyRateLimit(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		daily bool
	}{
		{"daily keyword", `{"error": "Daily limit exceeded for your plan"}`, true},
		{"quota keyword", `{"error": "You have exhausted your quota"}`, true},
		{"per day", `{"error": "maximum requests per day reached"}`, true},
		{"24 hour window", `{"error": "limit resets in 24 hours"}`, true},
		{"burst limit", `{"error": "Too many requests, slow down"}`, false},
		{"empty body", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classifyRateLimit(429, tt.body)
			if err.Daily != tt.daily {
				t.Errorf("classifyRateLimit(%q).Daily = %v, want %v", tt.body, err.Daily, tt.daily)
			}
			if !IsRateLimit(err) {
				t.Error("classified error must satisfy IsRateLimit")
			}
			if IsDailyLimit(err) != tt.daily {
				t.Errorf("IsDailyLimit() = %v, want %v", IsDailyLimit(err), tt.daily)
			}
		})
	}
}

func TestClassifyRateLimitTruncatesMessage(t *testing.T) {
	body := strings.Repeat("x", 1000)
	err := classifyRateLimit(429, body)
	if len(err.Message) > 300 {
		t.Errorf("message length = %d, want <= 300", len(err.Message))
	}
}

func TestIsRateLimitWrappedErrors(t *testing.T) {
	inner := &RateLimitError{Daily: true, StatusCode: 429, Message: "daily limit"}
	wrapped := fmt.Errorf("round 2 failed: %w", inner)

	if !IsRateLimit(wrapped) {
		t.Error("IsRateLimit should see through wrapping")
	}
	if !IsDailyLimit(wrapped) {
		t.Error("IsDailyLimit should see through wrapping")
	}
	if IsRateLimit(errors.New("some other error")) {
		t.Error("ordinary errors are not rate limits")
	}
}
