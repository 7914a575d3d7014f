package providers

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"
)

// MockClient is a configurable in-memory LLMClient for tests.
type MockClient struct {
	// Responses are returned in order; the last one repeats once exhausted.
	Responses []string

	// FailAfter causes requests beyond this count to fail with FailErr.
	// Zero means never fail; negative means fail from the first call.
	FailAfter int64
	FailErr   error

	// RateLimitAfter causes requests beyond this count to return a
	// rate-limit error. Zero means never; negative means from the first
	// call. DailyLimit controls its classification.
	RateLimitAfter int64
	DailyLimit     bool

	// Per-call token accounting used for cost-governor tests.
	PromptTokens     int
	CompletionTokens int
	CostPerCall      float64

	Delay time.Duration

	requestCount int64
}

// NewMockClient creates a mock that returns the given responses in order.
func NewMockClient(responses ...string) *MockClient {
	return &MockClient{Responses: responses}
}

// Name returns the client identifier.
func (m *MockClient) Name() string {
	return "mock"
}

// RequestCount returns the number of Chat calls made.
func (m *MockClient) RequestCount() int64 {
	return atomic.LoadInt64(&m.requestCount)
}

// Chat returns the next configured response or failure.
func (m *MockClient) Chat(ctx context.Context, req *ChatRequest) (*ChatResult, error) {
	n := atomic.AddInt64(&m.requestCount, 1)

	if m.Delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(m.Delay):
		}
	}

	if m.RateLimitAfter != 0 && n > m.RateLimitAfter {
		return nil, &RateLimitError{
			Daily:      m.DailyLimit,
			StatusCode: 429,
			Message:    "mock rate limit",
		}
	}

	if m.FailAfter != 0 && n > m.FailAfter {
		err := m.FailErr
		if err == nil {
			err = fmt.Errorf("mock failure on request %d", n)
		}
		return nil, err
	}

	if len(m.Responses) == 0 {
		return nil, fmt.Errorf("mock client has no responses configured")
	}

	idx := int(n) - 1
	if idx >= len(m.Responses) {
		idx = len(m.Responses) - 1
	}

	return &ChatResult{
		RequestID:        req.RequestID,
		Provider:         "mock",
		ModelUsed:        req.Model,
		Content:          m.Responses[idx],
		PromptTokens:     m.PromptTokens,
		CompletionTokens: m.CompletionTokens,
		TotalTokens:      m.PromptTokens + m.CompletionTokens,
		CostUSD:          m.CostPerCall,
		Attempts:         1,
		Success:          true,
	}, nil
}

var _ LLMClient = (*MockClient)(nil)
