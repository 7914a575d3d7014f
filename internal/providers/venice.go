package providers

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const (
	VeniceName    = "venice"
	VeniceBaseURL = "https://api.venice.ai/api/v1"
)

// VeniceConfig holds configuration for the Venice client.
type VeniceConfig struct {
	APIKey       string
	BaseURL      string
	DefaultModel string
	Timeout      time.Duration
	// Retry behavior for transient (non-429) failures
	MaxRetries int
	RetryDelay time.Duration
}

// VeniceClient implements LLMClient against the Venice OpenAI-compatible
// chat completion API.
//
// 429 responses are never retried here: a daily-limit 429 must stop the
// whole processing run and a burst 429 defers the current page, so both
// are surfaced immediately as *RateLimitError for the caller to route.
type VeniceClient struct {
	apiKey       string
	baseURL      string
	defaultModel string
	client       httpDoer
	maxRetries   int
	retryDelay   time.Duration
}

// NewVeniceClient creates a new Venice client.
func NewVeniceClient(cfg VeniceConfig) *VeniceClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = VeniceBaseURL
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = "llama-3.3-70b"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = time.Second
	}

	return &VeniceClient{
		apiKey:       cfg.APIKey,
		baseURL:      cfg.BaseURL,
		defaultModel: cfg.DefaultModel,
		client:       newHTTPClient(cfg.Timeout),
		maxRetries:   cfg.MaxRetries,
		retryDelay:   cfg.RetryDelay,
	}
}

// Name returns the client identifier.
func (c *VeniceClient) Name() string {
	return VeniceName
}

// Chat sends a chat completion request.
func (c *VeniceClient) Chat(ctx context.Context, req *ChatRequest) (*ChatResult, error) {
	start := time.Now()

	requestID := req.RequestID
	if requestID == "" {
		requestID = uuid.New().String()
	}

	model := req.Model
	if model == "" {
		model = c.defaultModel
	}

	body := &veniceRequest{
		Model:       model,
		Messages:    req.Messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}

	resp, attempts, err := c.doRequest(ctx, "/chat/completions", body)
	if err != nil {
		return &ChatResult{
			RequestID:     requestID,
			Provider:      VeniceName,
			ModelUsed:     model,
			Attempts:      attempts,
			Success:       false,
			ErrorType:     errorType(err),
			ErrorMessage:  err.Error(),
			ExecutionTime: time.Since(start),
		}, err
	}

	result := &ChatResult{
		RequestID:        requestID,
		Provider:         VeniceName,
		ModelUsed:        resp.Model,
		Attempts:         attempts,
		Success:          true,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
		ExecutionTime:    time.Since(start),
	}
	if result.ModelUsed == "" {
		result.ModelUsed = model
	}
	if len(resp.Choices) > 0 {
		result.Content = resp.Choices[0].Message.Content
	}
	result.CostUSD = CalculateCost(result.ModelUsed, result.PromptTokens, result.CompletionTokens)

	return result, nil
}

func errorType(err error) string {
	if IsDailyLimit(err) {
		return "daily_rate_limit"
	}
	if IsRateLimit(err) {
		return "rate_limit"
	}
	return "api_error"
}

// Verify interface
var _ LLMClient = (*VeniceClient)(nil)
