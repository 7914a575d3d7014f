// Package correct runs the two-round LLM correction workflow: Round 1
// repairs OCR artifacts without semantic change, Round 2 assesses the
// repair and produces a confidence verdict. A correction record exists
// only when both rounds succeed; any failure defers the page untouched.
package correct

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/pagemill/pagemill/internal/budget"
	"github.com/pagemill/pagemill/internal/providers"
	"github.com/pagemill/pagemill/internal/store"
)

// Deferred reasons.
const (
	DeferEmptyText        = "empty_text"
	DeferEmptyCorrection  = "empty_correction"
	DeferNoChanges        = "no_changes"
	DeferUnparsable       = "unparsable_assessment"
	DeferBudget           = "budget_exceeded"
	DeferAlreadyCorrected = "already_corrected"
)

// Outcome reports what happened to one page. Exactly one of Record and
// DeferReason is meaningful: a nil Record means the page was deferred and
// its state is unchanged.
type Outcome struct {
	Record      *store.Correction
	DeferReason string
}

// Deferred reports whether the page was deferred.
func (o *Outcome) Deferred() bool {
	return o.Record == nil
}

// TransientDefer reports whether a defer reason is a transient model
// failure worth retrying on a later run. The other reasons are properties
// of the page content and will not change on a retry.
func TransientDefer(reason string) bool {
	return reason == DeferUnparsable || reason == DeferEmptyCorrection
}

// Options configures the correction engine.
type Options struct {
	Model        string
	Temperature  float64
	MaxTokens    int
	DocumentType string
	// SkipCorrected skips pages that already have a correction record.
	SkipCorrected bool
}

// Engine performs two-round LLM correction.
type Engine struct {
	store    *store.Store
	governor *budget.Governor
	client   providers.LLMClient
	opts     Options
	logger   *slog.Logger
}

// New creates a correction engine.
func New(st *store.Store, gov *budget.Governor, client providers.LLMClient, opts Options, logger *slog.Logger) *Engine {
	if opts.DocumentType == "" {
		opts.DocumentType = "Legal Document"
	}
	if opts.Temperature == 0 {
		opts.Temperature = 0.1
	}
	if opts.MaxTokens == 0 {
		opts.MaxTokens = 4000
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{store: st, governor: gov, client: client, opts: opts, logger: logger}
}

// Correct runs both rounds for a page. Budget exhaustion and rate limits
// propagate as errors for the driver to route; all other failures are
// absorbed into a deferred outcome with the page state unchanged.
func (e *Engine) Correct(ctx context.Context, page *store.Page) (*Outcome, error) {
	if e.opts.SkipCorrected && page.HasCorrectedText {
		return &Outcome{DeferReason: DeferAlreadyCorrected}, nil
	}

	original, err := e.readText(page)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(original) == "" {
		return &Outcome{DeferReason: DeferEmptyText}, nil
	}

	start := time.Now()

	corrected, cost1, err := e.roundOne(ctx, page, original)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(corrected) == "" {
		e.logger.Warn("correction round returned empty text", "page_id", page.ID)
		return &Outcome{DeferReason: DeferEmptyCorrection}, nil
	}
	if strings.TrimSpace(corrected) == strings.TrimSpace(original) {
		e.logger.Info("correction made no changes", "page_id", page.ID)
		return &Outcome{DeferReason: DeferNoChanges}, nil
	}

	assessment, cost2, err := e.roundTwo(ctx, page, original, corrected)
	if err != nil {
		return nil, err
	}
	if assessment == nil {
		// Round 2 output unrecoverable after lenient parsing. The spend
		// is already in the ledger; the page state stays unchanged.
		return &Outcome{DeferReason: DeferUnparsable}, nil
	}

	record := &store.Correction{
		PageID:           page.ID,
		OriginalText:     original,
		CorrectedText:    corrected,
		QualityScore:     assessment.QualityScore,
		ImprovementLevel: assessment.ImprovementLevel,
		MajorCorrections: assessment.MajorCorrections,
		Confidence:       assessment.Confidence,
		NeedsReview:      assessment.NeedsReview,
		Model:            e.opts.Model,
		APICostUSD:       cost1 + cost2,
		ProcessingTimeMS: int(time.Since(start).Milliseconds()),
	}

	if _, err := e.store.SaveCorrection(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to save correction for page %s: %w", page.ID, err)
	}

	if assessment.NeedsReview || assessment.Confidence == "low" {
		if err := e.store.SetNeedsManualReview(ctx, page.ID, true); err != nil {
			return nil, err
		}
		e.logger.Info("correction routed to human review",
			"page_id", page.ID,
			"confidence", assessment.Confidence,
			"needs_review", assessment.NeedsReview)
	}

	e.logger.Info("page corrected",
		"page_id", page.ID,
		"quality_score", assessment.QualityScore,
		"improvement", assessment.ImprovementLevel,
		"confidence", assessment.Confidence,
		"cost_usd", record.APICostUSD)

	return &Outcome{Record: record}, nil
}

// roundOne sends the correction request and returns the corrected text.
func (e *Engine) roundOne(ctx context.Context, page *store.Page, original string) (string, float64, error) {
	prompt := correctionPrompt(e.opts.DocumentType, original)
	if err := e.checkBudget(ctx, prompt, original); err != nil {
		return "", 0, err
	}

	result, err := e.chat(ctx, page, "correct", prompt)
	if err != nil {
		return "", 0, err
	}

	text := strings.TrimSpace(result.Content)
	// Some models wrap plain text in a fence anyway.
	if stripped := stripCodeFences(text); stripped != "" {
		text = stripped
	}
	return text, result.CostUSD, nil
}

// roundTwo sends the assessment request. A parse failure returns a nil
// assessment with nil error: the round is failed, not the run.
func (e *Engine) roundTwo(ctx context.Context, page *store.Page, original, corrected string) (*Assessment, float64, error) {
	prompt := assessmentPrompt(original, corrected)
	if err := e.checkBudget(ctx, prompt, corrected); err != nil {
		return nil, 0, err
	}

	result, err := e.chat(ctx, page, "assess", prompt)
	if err != nil {
		return nil, 0, err
	}

	assessment, parseErr := parseAssessment(result.Content)
	if parseErr != nil {
		e.logger.Warn("assessment output unparsable",
			"page_id", page.ID, "error", parseErr)
		return nil, result.CostUSD, nil
	}
	return assessment, result.CostUSD, nil
}

func (e *Engine) checkBudget(ctx context.Context, prompt, text string) error {
	tokens := e.governor.EstimateTokens(prompt, text)
	estCost := e.governor.EstimateCost(e.opts.Model, tokens)
	exceeded, err := e.governor.WouldExceedBudget(ctx, estCost)
	if err != nil {
		return err
	}
	if exceeded {
		return budget.ErrBudgetExceeded
	}
	return nil
}

func (e *Engine) chat(ctx context.Context, page *store.Page, operation, prompt string) (*providers.ChatResult, error) {
	result, err := e.client.Chat(ctx, &providers.ChatRequest{
		Model:       e.opts.Model,
		Temperature: e.opts.Temperature,
		MaxTokens:   e.opts.MaxTokens,
		Messages: []providers.Message{
			{Role: "user", Content: prompt},
		},
	})
	if err != nil {
		return nil, err
	}

	if err := e.governor.RecordSpend(ctx, &store.LedgerEntry{
		Model:        result.ModelUsed,
		Operation:    operation,
		PageID:       page.ID,
		InputTokens:  result.PromptTokens,
		OutputTokens: result.CompletionTokens,
		CostUSD:      result.CostUSD,
	}); err != nil {
		e.logger.Error("failed to record spend", "page_id", page.ID, "error", err)
	}
	return result, nil
}

func (e *Engine) readText(page *store.Page) (string, error) {
	if page.TextPath == "" {
		return "", nil
	}
	data, err := os.ReadFile(page.TextPath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("failed to read text for page %s: %w", page.ID, err)
	}
	return string(data), nil
}
