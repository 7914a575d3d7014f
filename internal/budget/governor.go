// Package budget enforces the daily spend ceiling and routes rate-limit
// signals. The remaining budget is always derived from the persistent cost
// ledger, never from an in-memory counter, so a restarted process recovers
// the correct remaining budget.
package budget

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pagemill/pagemill/internal/providers"
	"github.com/pagemill/pagemill/internal/store"
)

// ErrBudgetExceeded signals the daily cost ceiling has been reached.
// Like a daily rate limit, it stops all further billed work in the run.
var ErrBudgetExceeded = errors.New("daily cost budget exceeded")

// Action tells the batch driver how to react to a billed-call error.
type Action int

const (
	// ActionNone: not a rate-limit condition, handle as an ordinary error.
	ActionNone Action = iota
	// ActionDeferPage: skip this page, continue with the next.
	ActionDeferPage
	// ActionStopAll: stop issuing billed requests for the rest of the run.
	ActionStopAll
)

func (a Action) String() string {
	switch a {
	case ActionDeferPage:
		return "defer_page"
	case ActionStopAll:
		return "stop_all"
	default:
		return "none"
	}
}

// Governor tracks spend against a rolling 24-hour ceiling.
type Governor struct {
	store       *store.Store
	maxDailyUSD float64
	tokenBuffer float64
	logger      *slog.Logger
}

// New creates a governor. tokenBuffer is a fractional safety margin added
// to token estimates (0.03 = 3%).
func New(st *store.Store, maxDailyUSD, tokenBuffer float64, logger *slog.Logger) *Governor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Governor{
		store:       st,
		maxDailyUSD: maxDailyUSD,
		tokenBuffer: tokenBuffer,
		logger:      logger,
	}
}

// EstimateTokens estimates the token load of a call that sends prompt plus
// text and may echo the text back in full: prompt tokens plus twice the
// text tokens, plus the safety buffer. Uses the ~4 chars/token heuristic.
func (g *Governor) EstimateTokens(prompt, text string) int {
	promptTokens := len(prompt) / 4
	textTokens := len(text) / 4
	estimate := float64(promptTokens+2*textTokens) * (1 + g.tokenBuffer)
	return int(estimate) + 1
}

// EstimateCost converts a token estimate to USD for the given model.
// Input and output token split is assumed even, which overestimates for
// models with cheap input pricing; the governor prefers to stop early.
func (g *Governor) EstimateCost(model string, tokens int) float64 {
	half := tokens / 2
	return providers.CalculateCost(model, half, tokens-half)
}

// SpentLast24h returns total ledger spend in the rolling window.
func (g *Governor) SpentLast24h(ctx context.Context) (float64, error) {
	return g.store.SpendSince(ctx, time.Now().Add(-24*time.Hour))
}

// WouldExceedBudget reports whether spending estimatedCost now would push
// the rolling 24-hour total past the ceiling. A zero or negative ceiling
// disables the check.
func (g *Governor) WouldExceedBudget(ctx context.Context, estimatedCost float64) (bool, error) {
	if g.maxDailyUSD <= 0 {
		return false, nil
	}
	spent, err := g.SpentLast24h(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to read cost ledger: %w", err)
	}
	exceeds := spent+estimatedCost > g.maxDailyUSD
	if exceeds {
		g.logger.Warn("daily budget would be exceeded",
			"spent_24h", spent,
			"estimated_cost", estimatedCost,
			"max_daily_usd", g.maxDailyUSD)
	}
	return exceeds, nil
}

// RecordSpend appends a billed call to the ledger.
func (g *Governor) RecordSpend(ctx context.Context, entry *store.LedgerEntry) error {
	if err := g.store.AppendSpend(ctx, entry); err != nil {
		return fmt.Errorf("failed to record spend: %w", err)
	}
	g.logger.Debug("recorded spend",
		"model", entry.Model,
		"operation", entry.Operation,
		"cost_usd", entry.CostUSD)
	return nil
}

// HandleRateLimit maps a billed-call error to a driver action. Daily-limit
// responses and an exhausted budget stop the whole run; burst limits defer
// only the current page.
func (g *Governor) HandleRateLimit(err error) Action {
	if errors.Is(err, ErrBudgetExceeded) || providers.IsDailyLimit(err) {
		return ActionStopAll
	}
	if providers.IsRateLimit(err) {
		return ActionDeferPage
	}
	return ActionNone
}
