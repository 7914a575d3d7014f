package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/pagemill/pagemill/internal/budget"
	"github.com/pagemill/pagemill/internal/config"
	"github.com/pagemill/pagemill/internal/correct"
	"github.com/pagemill/pagemill/internal/home"
	"github.com/pagemill/pagemill/internal/ocr"
	"github.com/pagemill/pagemill/internal/providers"
	"github.com/pagemill/pagemill/internal/quality"
	"github.com/pagemill/pagemill/internal/rescan"
	"github.com/pagemill/pagemill/internal/store"
)

// app wires the configuration, home directory, store and engines for a
// command invocation.
type app struct {
	cfg    *config.Config
	home   *home.Dir
	store  *store.Store
	logger *slog.Logger
}

// newApp loads config, opens the store and runs migrations.
func newApp(ctx context.Context) (*app, error) {
	h, err := home.New(homeDirFlag)
	if err != nil {
		return nil, err
	}
	if err := h.EnsureExists(); err != nil {
		return nil, err
	}

	path := cfgFile
	if path == "" && h.ConfigExists() {
		path = h.ConfigPath()
	}
	cm, err := config.NewManager(path)
	if err != nil {
		return nil, err
	}

	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	st, err := store.Open(h.DBPath(), logger)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, err
	}

	return &app{cfg: cm.Get(), home: h, store: st, logger: logger}, nil
}

func (a *app) Close() {
	if a.store != nil {
		a.store.Close()
	}
}

// llmClient builds the rate-limited Venice client.
func (a *app) llmClient() (providers.LLMClient, error) {
	key := a.cfg.ResolvedAPIKey()
	if key == "" {
		return nil, fmt.Errorf("no LLM API key configured (set PAGEMILL_API_KEY or llm.api_key)")
	}
	client := providers.NewVeniceClient(providers.VeniceConfig{
		APIKey:       key,
		BaseURL:      a.cfg.LLM.BaseURL,
		DefaultModel: a.cfg.LLM.Model,
	})
	limiter := providers.NewRateLimiter(int(a.cfg.LLM.RateLimit))
	return providers.NewRateLimitedClient(client, limiter), nil
}

// governor builds the cost governor over the shared ledger.
func (a *app) governor() *budget.Governor {
	return budget.New(a.store, a.cfg.Budget.MaxDailyCostUSD, a.cfg.Budget.TokenBuffer, a.logger)
}

// assessor builds the quality assessor. The remote classifier is only
// wired when both the classifier and the LLM are enabled.
func (a *app) assessor(gov *budget.Governor) (*quality.Assessor, error) {
	var client providers.LLMClient
	useRemote := a.cfg.Quality.UseRemoteClassifier && a.cfg.LLM.Enabled
	if useRemote {
		var err error
		client, err = a.llmClient()
		if err != nil {
			return nil, err
		}
	}
	return quality.NewAssessor(a.store, gov, client, quality.Options{
		MinTextLength: a.cfg.Quality.MinTextLength,
		UseRemote:     useRemote,
		Model:         a.cfg.LLM.Model,
		Temperature:   a.cfg.LLM.Temperature,
	}, a.logger), nil
}

// rescanner builds the rescan engine with the configured OCR provider.
func (a *app) rescanner(assessor *quality.Assessor) *rescan.Engine {
	provider := ocr.NewTesseractProvider(a.cfg.OCR.Languages, a.cfg.OCR.MaxRetries, a.logger)
	return rescan.New(a.store, provider, assessor, a.cfg.Rescan.MaxAttempts, a.logger)
}

// corrector builds the correction engine, or nil when correction is off.
func (a *app) corrector(gov *budget.Governor) (*correct.Engine, error) {
	if !a.cfg.Correction.Enabled || !a.cfg.LLM.Enabled {
		return nil, nil
	}
	client, err := a.llmClient()
	if err != nil {
		return nil, err
	}
	return correct.New(a.store, gov, client, correct.Options{
		Model:         a.cfg.LLM.Model,
		Temperature:   a.cfg.LLM.Temperature,
		MaxTokens:     a.cfg.LLM.MaxTokens,
		DocumentType:  a.cfg.Correction.DocumentType,
		SkipCorrected: true,
	}, a.logger), nil
}
