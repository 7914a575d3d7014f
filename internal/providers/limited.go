package providers

import "context"

// RateLimitedClient wraps an LLMClient with a client-side token bucket so
// the caller stays under the provider's request-per-minute ceiling. A 429
// that slips through anyway drains the bucket before the error is
// returned unchanged for the caller to classify.
type RateLimitedClient struct {
	inner   LLMClient
	limiter *RateLimiter
}

// NewRateLimitedClient wraps client with the given limiter.
func NewRateLimitedClient(client LLMClient, limiter *RateLimiter) *RateLimitedClient {
	return &RateLimitedClient{inner: client, limiter: limiter}
}

func (c *RateLimitedClient) Name() string {
	return c.inner.Name()
}

// Chat waits for a rate-limit token, then delegates.
func (c *RateLimitedClient) Chat(ctx context.Context, req *ChatRequest) (*ChatResult, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	result, err := c.inner.Chat(ctx, req)
	if IsRateLimit(err) {
		c.limiter.Record429()
	}
	return result, err
}

// Limiter exposes the underlying limiter for status reporting.
func (c *RateLimitedClient) Limiter() *RateLimiter {
	return c.limiter
}

var _ LLMClient = (*RateLimitedClient)(nil)
