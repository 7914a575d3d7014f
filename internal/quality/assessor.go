package quality

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/pagemill/pagemill/internal/budget"
	"github.com/pagemill/pagemill/internal/providers"
	"github.com/pagemill/pagemill/internal/store"
)

// classifyPrompt asks for a binary verdict only. Anything other than a
// clear ACCEPTABLE is treated as failure.
const classifyPrompt = `You are evaluating OCR output from a scanned document page.

Respond with exactly one word:
CATASTROPHIC_FAILURE - if the text is unreadable garbage, mostly noise, or clearly not the content of a real document page
ACCEPTABLE - if the text is readable document content, even with minor OCR errors

Text to evaluate:
`

// Options configures an Assessor.
type Options struct {
	MinTextLength int
	// UseRemote enables the paid classifier pass for text that survives
	// the local heuristics.
	UseRemote   bool
	Model       string
	Temperature float64
}

// Assessor scores page text and persists the verdict.
type Assessor struct {
	store    *store.Store
	governor *budget.Governor
	client   providers.LLMClient
	opts     Options
	logger   *slog.Logger
}

// NewAssessor creates an assessor. client may be nil when UseRemote is off.
func NewAssessor(st *store.Store, gov *budget.Governor, client providers.LLMClient, opts Options, logger *slog.Logger) *Assessor {
	if opts.MinTextLength <= 0 {
		opts.MinTextLength = DefaultMinTextLength
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Assessor{store: st, governor: gov, client: client, opts: opts, logger: logger}
}

// Assess reads the page's canonical text, scores it, and writes the
// verdict to the page row. Remote classifier failures are absorbed and
// scored as 0; they never surface as errors, except for rate limits and
// an exhausted budget, which the driver must route. Those leave the page
// verdict untouched: a budget ceiling stops billed work, it does not
// downgrade good text.
func (a *Assessor) Assess(ctx context.Context, page *store.Page) (*Verdict, error) {
	text, err := a.readText(page)
	if err != nil {
		return nil, err
	}

	verdict := Evaluate(text, a.opts.MinTextLength)

	if verdict.Score > 0 && a.opts.UseRemote && a.client != nil {
		remote, err := a.classify(ctx, page, text)
		if err != nil {
			if providers.IsRateLimit(err) || errors.Is(err, budget.ErrBudgetExceeded) {
				return nil, err
			}
			a.logger.Warn("remote classifier failed, scoring conservatively",
				"page_id", page.ID, "error", err)
			verdict = failVerdict(ReasonClassifierErr)
		} else {
			verdict = *remote
		}
	}

	if err := a.store.SetQuality(ctx, page.ID, verdict.Score, verdict.Status); err != nil {
		return nil, fmt.Errorf("failed to persist verdict for page %s: %w", page.ID, err)
	}

	a.logger.Info("page assessed",
		"page_id", page.ID,
		"score", verdict.Score,
		"status", string(verdict.Status),
		"reasons", strings.Join(verdict.Reasons, ","))

	return &verdict, nil
}

// AssessText scores text without touching the store. Used by the rescan
// engine to validate candidate text before persisting it.
func (a *Assessor) AssessText(text string) Verdict {
	return Evaluate(text, a.opts.MinTextLength)
}

func (a *Assessor) readText(page *store.Page) (string, error) {
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

// classify sends the text to the remote binary classifier. The caller has
// already passed the local heuristics; only rate-limit errors propagate.
func (a *Assessor) classify(ctx context.Context, page *store.Page, text string) (*Verdict, error) {
	tokens := a.governor.EstimateTokens(classifyPrompt, text)
	estCost := a.governor.EstimateCost(a.opts.Model, tokens)
	exceeded, err := a.governor.WouldExceedBudget(ctx, estCost)
	if err != nil {
		return nil, err
	}
	if exceeded {
		return nil, budget.ErrBudgetExceeded
	}

	result, err := a.client.Chat(ctx, &providers.ChatRequest{
		Model:       a.opts.Model,
		Temperature: a.opts.Temperature,
		MaxTokens:   10,
		Messages: []providers.Message{
			{Role: "user", Content: classifyPrompt + text},
		},
	})
	if err != nil {
		return nil, err
	}

	ledgerErr := a.governor.RecordSpend(ctx, &store.LedgerEntry{
		Model:        result.ModelUsed,
		Operation:    "classify",
		PageID:       page.ID,
		InputTokens:  result.PromptTokens,
		OutputTokens: result.CompletionTokens,
		CostUSD:      result.CostUSD,
	})
	if ledgerErr != nil {
		a.logger.Error("failed to record classifier spend", "page_id", page.ID, "error", ledgerErr)
	}

	answer := strings.ToUpper(strings.TrimSpace(result.Content))
	v := Verdict{Billed: true, CostUSD: result.CostUSD}
	if strings.Contains(answer, "ACCEPTABLE") && !strings.Contains(answer, "CATASTROPHIC") {
		v.Score = 100
		v.Status = store.StatusAcceptable
	} else {
		// Ambiguous answers score as failure, never as success
		v.Score = 0
		v.Status = store.StatusNeedsRescan
		v.Reasons = []string{ReasonClassifier}
	}
	return &v, nil
}
