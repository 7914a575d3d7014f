package providers

// costPerToken stores per-1K-token pricing for known models.
// Prices in USD per 1K tokens: [input, output]. Unknown models cost 0;
// the budget governor treats that as "unpriced" and still records tokens.
var costPerToken = map[string][2]float64{
	"llama-3.3-70b":     {0.0007, 0.0028},
	"llama-3.2-3b":      {0.00006, 0.00006},
	"llama-3.1-405b":    {0.0015, 0.006},
	"qwen-2.5-qwq-32b":  {0.0005, 0.002},
	"qwen3-235b":        {0.0009, 0.0036},
	"mistral-31-24b":    {0.0005, 0.002},
	"deepseek-r1-671b":  {0.0035, 0.014},
	"venice-uncensored": {0.0005, 0.002},
}

// CalculateCost returns the USD cost of a call, or 0 for unknown models.
func CalculateCost(model string, inputTokens, outputTokens int) float64 {
	prices, ok := costPerToken[model]
	if !ok {
		return 0
	}
	inputCost := float64(inputTokens) / 1000.0 * prices[0]
	outputCost := float64(outputTokens) / 1000.0 * prices[1]
	return inputCost + outputCost
}

// KnownModel reports whether pricing exists for a model.
func KnownModel(model string) bool {
	_, ok := costPerToken[model]
	return ok
}
