// Package rescan drives bounded OCR reprocessing for pages flagged as low
// quality. Each attempt uses the next recognition strategy; new text only
// replaces the old after validation, via an atomic rename, so a crash
// mid-attempt never leaves partial text behind.
package rescan

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/pagemill/pagemill/internal/home"
	"github.com/pagemill/pagemill/internal/ocr"
	"github.com/pagemill/pagemill/internal/quality"
	"github.com/pagemill/pagemill/internal/store"
)

// DefaultMaxAttempts bounds automatic rescans per page.
const DefaultMaxAttempts = 3

// Outcome describes one rescan attempt.
type Outcome struct {
	// Skipped is true when the page was terminal or out of attempts and
	// no work was performed.
	Skipped  bool
	Attempt  int
	Strategy ocr.Strategy
	// Accepted is true when the new text replaced the old.
	Accepted     bool
	RejectReason string
	// Failed is true when this attempt exhausted the cap and the page
	// became terminal.
	Failed  bool
	Verdict *quality.Verdict
}

// Engine re-runs OCR on low-quality pages.
type Engine struct {
	store       *store.Store
	provider    ocr.Provider
	assessor    *quality.Assessor
	maxAttempts int
	logger      *slog.Logger
}

// New creates a rescan engine.
func New(st *store.Store, provider ocr.Provider, assessor *quality.Assessor, maxAttempts int, logger *slog.Logger) *Engine {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:       st,
		provider:    provider,
		assessor:    assessor,
		maxAttempts: maxAttempts,
		logger:      logger,
	}
}

// MaxAttempts returns the configured attempt cap.
func (e *Engine) MaxAttempts() int {
	return e.maxAttempts
}

// Rescan performs one attempt for the page. The caller must hold the
// page claim. Terminal pages are a no-op. The attempt counter advances
// even when the new text is rejected, so the cap is always respected.
func (e *Engine) Rescan(ctx context.Context, page *store.Page) (*Outcome, error) {
	if page.QualityStatus == store.StatusFailed || page.QualityStatus == store.StatusAcceptable {
		return &Outcome{Skipped: true}, nil
	}
	if page.RescanAttempts >= e.maxAttempts {
		if err := e.store.MarkFailed(ctx, page.ID, 0); err != nil {
			return nil, err
		}
		return &Outcome{Skipped: true, Failed: true}, nil
	}

	strategy := ocr.StrategyFor(page.RescanAttempts)
	attempt := page.RescanAttempts + 1

	e.logger.Info("rescanning page",
		"page_id", page.ID,
		"attempt", attempt,
		"max_attempts", e.maxAttempts,
		"strategy", strategy.String())

	oldText, err := e.readCurrent(page)
	if err != nil {
		return nil, err
	}

	outcome := &Outcome{Attempt: attempt, Strategy: strategy}

	newText, extractErr := e.provider.Extract(ctx, page.ImagePath, strategy)
	if extractErr != nil {
		e.logger.Warn("ocr extraction failed", "page_id", page.ID, "attempt", attempt, "error", extractErr)
		outcome.RejectReason = "extraction_failed"
	} else if reason := e.validate(oldText, newText); reason != "" {
		e.logger.Info("rescan text rejected",
			"page_id", page.ID, "attempt", attempt, "reason", reason)
		outcome.RejectReason = reason
	} else {
		textPath := page.TextPath
		if textPath == "" {
			textPath = home.TextPathFor(page.ImagePath)
		}
		if err := writeAtomic(textPath, newText); err != nil {
			return nil, fmt.Errorf("failed to write text for page %s: %w", page.ID, err)
		}
		page.TextPath = textPath
		outcome.Accepted = true
	}

	// The counter advances whether or not the text was accepted.
	if err := e.store.RecordRescanAttempt(ctx, page.ID, attempt, page.TextPath); err != nil {
		return nil, err
	}
	page.RescanAttempts = attempt

	verdict, err := e.assessor.Assess(ctx, page)
	if err != nil {
		return nil, err
	}
	outcome.Verdict = verdict

	if verdict.Score == 0 && attempt >= e.maxAttempts {
		if err := e.store.MarkFailed(ctx, page.ID, 0); err != nil {
			return nil, err
		}
		outcome.Failed = true
		e.logger.Warn("page exhausted rescan attempts",
			"page_id", page.ID, "attempts", attempt)
	}

	return outcome, nil
}

// validate returns a rejection reason or "" when the candidate text may
// replace the current text. It must be non-degenerate and no shorter.
func (e *Engine) validate(oldText, newText string) string {
	candidate := strings.TrimSpace(newText)
	if candidate == "" {
		return "empty"
	}
	if v := e.assessor.AssessText(candidate); v.Score == 0 {
		return "degenerate"
	}
	if len(candidate) < len(strings.TrimSpace(oldText)) {
		return "shorter"
	}
	return ""
}

func (e *Engine) readCurrent(page *store.Page) (string, error) {
	if page.TextPath == "" {
		return "", nil
	}
	data, err := os.ReadFile(page.TextPath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("failed to read current text for page %s: %w", page.ID, err)
	}
	return string(data), nil
}
