package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"time"
)

// httpDoer abstracts *http.Client for testing.
type httpDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

func newHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}

// veniceRequest is the OpenAI-compatible chat completion request body.
type veniceRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

// veniceResponse is the chat completion response body.
type veniceResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    any    `json:"code"`
	} `json:"error,omitempty"`
}

// doRequest makes an HTTP request with retry for transient failures.
// Returns the attempt count alongside the response for call records.
//
// 429 is deliberately excluded from retry: rate limits are classified and
// returned to the caller, which decides between stopping the run (daily)
// and deferring the page (burst).
func (c *VeniceClient) doRequest(ctx context.Context, path string, body *veniceRequest) (*veniceResponse, int, error) {
	var lastErr error

	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, attempt, err
		}

		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return nil, attempt, fmt.Errorf("failed to marshal request: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+path, bytes.NewReader(bodyBytes))
		if err != nil {
			return nil, attempt, fmt.Errorf("failed to create request: %w", err)
		}

		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.apiKey)

		resp, err := c.client.Do(req)
		if err != nil {
			// Network error - retry
			lastErr = fmt.Errorf("request failed: %w", err)
			c.sleepWithJitter(ctx, attempt)
			continue
		}

		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("failed to read response: %w", err)
			c.sleepWithJitter(ctx, attempt)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			return nil, attempt + 1, classifyRateLimit(resp.StatusCode, string(respBody))
		}

		if c.shouldRetry(resp.StatusCode) {
			lastErr = fmt.Errorf("venice error (status %d): %s", resp.StatusCode, string(respBody))
			c.sleepWithJitter(ctx, attempt)
			continue
		}

		// Non-retryable error
		if resp.StatusCode != http.StatusOK {
			return nil, attempt + 1, fmt.Errorf("venice error (status %d): %s", resp.StatusCode, string(respBody))
		}

		var vResp veniceResponse
		if err := json.Unmarshal(respBody, &vResp); err != nil {
			return nil, attempt + 1, fmt.Errorf("failed to unmarshal response: %w", err)
		}

		if vResp.Error != nil {
			return nil, attempt + 1, fmt.Errorf("venice API error: %s", vResp.Error.Message)
		}
		if len(vResp.Choices) == 0 {
			// Empty choices - likely transient, worth retrying
			lastErr = fmt.Errorf("empty choices in response (model=%s, id=%s)", vResp.Model, vResp.ID)
			c.sleepWithJitter(ctx, attempt)
			continue
		}

		return &vResp, attempt + 1, nil
	}

	return nil, c.maxRetries, fmt.Errorf("max retries (%d) exceeded: %w", c.maxRetries, lastErr)
}

// shouldRetry returns true for status codes that should be retried.
func (c *VeniceClient) shouldRetry(statusCode int) bool {
	switch statusCode {
	case 520, 521, 522, 523, 524: // Cloudflare errors
		return true
	default:
		return statusCode >= 500
	}
}

// sleepWithJitter sleeps for an exponentially backed-off duration with
// jitter, respecting context cancellation.
func (c *VeniceClient) sleepWithJitter(ctx context.Context, attempt int) {
	baseDelay := c.retryDelay * time.Duration(1<<attempt)
	if baseDelay > 10*time.Second {
		baseDelay = 10 * time.Second
	}
	jitter := time.Duration(rand.Int63n(int64(baseDelay) / 2))

	select {
	case <-ctx.Done():
	case <-time.After(baseDelay + jitter):
	}
}
