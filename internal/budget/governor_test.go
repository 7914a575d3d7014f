package budget

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/pagemill/pagemill/internal/providers"
	"github.com/pagemill/pagemill/internal/store"
)

func mustStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"), slog.Default())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	if err := s.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return s
}

func TestEstimateTokens(t *testing.T) {
	g := New(mustStore(t), 5.0, 0.03, slog.Default())

	prompt := make([]byte, 400) // ~100 tokens
	text := make([]byte, 800)   // ~200 tokens
	got := g.EstimateTokens(string(prompt), string(text))

	// prompt + 2x text plus 3% buffer: (100 + 400) * 1.03
	want := 515
	if got < want || got > want+2 {
		t.Errorf("EstimateTokens() = %d, want about %d", got, want)
	}
}

func TestEstimateTokensBufferScales(t *testing.T) {
	s := mustStore(t)
	small := New(s, 5.0, 0.0, slog.Default())
	large := New(s, 5.0, 0.5, slog.Default())

	text := string(make([]byte, 4000))
	if small.EstimateTokens("", text) >= large.EstimateTokens("", text) {
		t.Error("a larger buffer must yield a larger estimate")
	}
}

func TestWouldExceedBudget(t *testing.T) {
	s := mustStore(t)
	ctx := context.Background()
	g := New(s, 1.0, 0.03, slog.Default())

	exceeds, err := g.WouldExceedBudget(ctx, 0.50)
	if err != nil {
		t.Fatalf("WouldExceedBudget() error = %v", err)
	}
	if exceeds {
		t.Error("empty ledger should leave headroom")
	}

	// Spend recorded through the governor lands in the persistent ledger.
	if err := g.RecordSpend(ctx, &store.LedgerEntry{Model: "llama-3.3-70b", CostUSD: 0.90}); err != nil {
		t.Fatalf("RecordSpend() error = %v", err)
	}

	exceeds, err = g.WouldExceedBudget(ctx, 0.50)
	if err != nil {
		t.Fatalf("WouldExceedBudget() error = %v", err)
	}
	if !exceeds {
		t.Error("0.90 spent + 0.50 estimated must exceed a 1.00 ceiling")
	}

	// A fresh governor over the same store sees the same spend: the
	// budget survives a process restart.
	fresh := New(s, 1.0, 0.03, slog.Default())
	exceeds, err = fresh.WouldExceedBudget(ctx, 0.50)
	if err != nil {
		t.Fatalf("WouldExceedBudget() error = %v", err)
	}
	if !exceeds {
		t.Error("restarted governor must recover spend from the ledger")
	}
}

func TestWouldExceedBudgetDisabled(t *testing.T) {
	g := New(mustStore(t), 0, 0.03, slog.Default())
	exceeds, err := g.WouldExceedBudget(context.Background(), 1000.0)
	if err != nil {
		t.Fatalf("WouldExceedBudget() error = %v", err)
	}
	if exceeds {
		t.Error("zero ceiling disables the check")
	}
}

func TestHandleRateLimit(t *testing.T) {
	g := New(mustStore(t), 5.0, 0.03, slog.Default())

	tests := []struct {
		name string
		err  error
		want Action
	}{
		{"daily limit", &providers.RateLimitError{Daily: true, StatusCode: 429}, ActionStopAll},
		{"burst limit", &providers.RateLimitError{StatusCode: 429}, ActionDeferPage},
		{"budget exhausted", ErrBudgetExceeded, ActionStopAll},
		{"ordinary error", errors.New("connection reset"), ActionNone},
		{"nil", nil, ActionNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := g.HandleRateLimit(tt.err); got != tt.want {
				t.Errorf("HandleRateLimit() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEstimateCostKnownAndUnknownModels(t *testing.T) {
	g := New(mustStore(t), 5.0, 0.03, slog.Default())

	if cost := g.EstimateCost("llama-3.3-70b", 10000); cost <= 0 {
		t.Errorf("EstimateCost(known) = %f, want > 0", cost)
	}
	if cost := g.EstimateCost("some-unknown-model", 10000); cost != 0 {
		t.Errorf("EstimateCost(unknown) = %f, want 0", cost)
	}
}
