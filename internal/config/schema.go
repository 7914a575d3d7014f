package config

// Config holds pagemill configuration.
// Stored at: {home}/config.yaml
type Config struct {
	LLM        LLMCfg        `mapstructure:"llm" yaml:"llm"`
	OCR        OCRCfg        `mapstructure:"ocr" yaml:"ocr"`
	Quality    QualityCfg    `mapstructure:"quality" yaml:"quality"`
	Rescan     RescanCfg     `mapstructure:"rescan" yaml:"rescan"`
	Correction CorrectionCfg `mapstructure:"correction" yaml:"correction"`
	Budget     BudgetCfg     `mapstructure:"budget" yaml:"budget"`
	Pipeline   PipelineCfg   `mapstructure:"pipeline" yaml:"pipeline"`
}

// LLMCfg configures the chat completion provider used for correction
// and the optional remote quality classifier.
type LLMCfg struct {
	Model       string  `mapstructure:"model" yaml:"model"`
	APIKey      string  `mapstructure:"api_key" yaml:"api_key"` // Supports ${ENV_VAR} syntax
	BaseURL     string  `mapstructure:"base_url" yaml:"base_url"`
	RateLimit   float64 `mapstructure:"rate_limit" yaml:"rate_limit"` // Requests per minute
	Temperature float64 `mapstructure:"temperature" yaml:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens" yaml:"max_tokens"`
	Enabled     bool    `mapstructure:"enabled" yaml:"enabled"`
}

// OCRCfg configures local OCR extraction.
type OCRCfg struct {
	Engine     string   `mapstructure:"engine" yaml:"engine"` // "tesseract"
	Languages  []string `mapstructure:"languages" yaml:"languages"`
	MaxRetries int      `mapstructure:"max_retries" yaml:"max_retries"` // Per-extraction transient retries
}

// QualityCfg configures the quality assessor thresholds.
// These are tuning defaults, not fixed constants.
type QualityCfg struct {
	MinTextLength       int  `mapstructure:"min_text_length" yaml:"min_text_length"`
	UseRemoteClassifier bool `mapstructure:"use_remote_classifier" yaml:"use_remote_classifier"`
}

// RescanCfg configures the rescan engine.
type RescanCfg struct {
	MaxAttempts int `mapstructure:"max_attempts" yaml:"max_attempts"`
}

// CorrectionCfg configures the two-round correction workflow.
type CorrectionCfg struct {
	DocumentType string `mapstructure:"document_type" yaml:"document_type"`
	Enabled      bool   `mapstructure:"enabled" yaml:"enabled"`
}

// BudgetCfg configures the cost governor.
type BudgetCfg struct {
	MaxDailyCostUSD float64 `mapstructure:"max_daily_cost_usd" yaml:"max_daily_cost_usd"`
	TokenBuffer     float64 `mapstructure:"token_buffer" yaml:"token_buffer"` // Fractional safety buffer on estimates
}

// PipelineCfg configures batch execution.
type PipelineCfg struct {
	Workers   int `mapstructure:"workers" yaml:"workers"`
	BatchSize int `mapstructure:"batch_size" yaml:"batch_size"`
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		LLM: LLMCfg{
			Model:       "llama-3.3-70b",
			APIKey:      "${PAGEMILL_API_KEY}",
			BaseURL:     "https://api.venice.ai/api/v1",
			RateLimit:   60.0,
			Temperature: 0.1,
			MaxTokens:   4000,
			Enabled:     true,
		},
		OCR: OCRCfg{
			Engine:     "tesseract",
			Languages:  []string{"eng"},
			MaxRetries: 2,
		},
		Quality: QualityCfg{
			MinTextLength:       10,
			UseRemoteClassifier: false,
		},
		Rescan: RescanCfg{
			MaxAttempts: 3,
		},
		Correction: CorrectionCfg{
			DocumentType: "Legal Document",
			Enabled:      true,
		},
		Budget: BudgetCfg{
			MaxDailyCostUSD: 5.0,
			TokenBuffer:     0.03,
		},
		Pipeline: PipelineCfg{
			Workers:   4,
			BatchSize: 50,
		},
	}
}
