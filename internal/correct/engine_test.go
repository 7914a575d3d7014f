package correct

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/pagemill/pagemill/internal/budget"
	"github.com/pagemill/pagemill/internal/providers"
	"github.com/pagemill/pagemill/internal/store"
)

const rawText = "Exhibit l4 - Deposition of John Srnith, taken on March 3, l998."
const fixedText = "Exhibit 14 - Deposition of John Smith, taken on March 3, 1998."

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

// acceptablePage creates a claimed page in the acceptable state.
func acceptablePage(t *testing.T, s *store.Store, text string) *store.Page {
	t.Helper()
	ctx := context.Background()

	textPath := filepath.Join(t.TempDir(), "page_0001.txt")
	if err := os.WriteFile(textPath, []byte(text), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	id, err := s.CreatePage(ctx, "batch-a", 1, "/img/page_0001.png", textPath)
	if err != nil {
		t.Fatalf("CreatePage() error = %v", err)
	}
	s.ClaimPage(ctx, id, store.StatusUnchecked)
	s.SetQuality(ctx, id, 100, store.StatusAcceptable)
	if _, err := s.ClaimPage(ctx, id, store.StatusAcceptable); err != nil {
		t.Fatalf("ClaimPage() error = %v", err)
	}

	page, err := s.GetPage(ctx, id)
	if err != nil {
		t.Fatalf("GetPage() error = %v", err)
	}
	return page
}

func testEngine(s *store.Store, client providers.LLMClient) *Engine {
	gov := budget.New(s, 5.0, 0.03, slog.Default())
	return New(s, gov, client, Options{Model: "llama-3.3-70b"}, slog.Default())
}

func TestCorrectBothRoundsSucceed(t *testing.T) {
	s := mustStore(t)
	ctx := context.Background()
	page := acceptablePage(t, s, rawText)

	mock := providers.NewMockClient(fixedText, validAssessment)
	mock.CostPerCall = 0.01

	outcome, err := testEngine(s, mock).Correct(ctx, page)
	if err != nil {
		t.Fatalf("Correct() error = %v", err)
	}
	if outcome.Deferred() {
		t.Fatalf("outcome deferred with reason %q, want a record", outcome.DeferReason)
	}

	rec := outcome.Record
	if rec.OriginalText != rawText || rec.CorrectedText != fixedText {
		t.Errorf("record texts = %q / %q", rec.OriginalText, rec.CorrectedText)
	}
	if rec.QualityScore != 85 || rec.Confidence != "high" {
		t.Errorf("record verdict = %d/%s, want 85/high", rec.QualityScore, rec.Confidence)
	}
	if rec.APICostUSD < 0.019 || rec.APICostUSD > 0.021 {
		t.Errorf("record cost = %f, want both rounds summed", rec.APICostUSD)
	}

	// Record persisted, page flagged, both billed calls in the ledger.
	n, _ := s.CountCorrections(ctx, page.ID)
	if n != 1 {
		t.Errorf("corrections = %d, want 1", n)
	}
	got, _ := s.GetPage(ctx, page.ID)
	if !got.HasCorrectedText {
		t.Error("page should be flagged as corrected")
	}
	if got.NeedsManualReview {
		t.Error("high-confidence correction should not need review")
	}
	ledger, _ := s.CountLedgerEntries(ctx)
	if ledger != 2 {
		t.Errorf("ledger entries = %d, want 2", ledger)
	}
}

func TestCorrectRoundTwoUnparsableLeavesNoRecord(t *testing.T) {
	s := mustStore(t)
	ctx := context.Background()
	page := acceptablePage(t, s, rawText)

	mock := providers.NewMockClient(fixedText, "I think the correction went quite well overall!")

	outcome, err := testEngine(s, mock).Correct(ctx, page)
	if err != nil {
		t.Fatalf("Correct() error = %v", err)
	}
	if !outcome.Deferred() || outcome.DeferReason != DeferUnparsable {
		t.Fatalf("outcome = %+v, want deferred unparsable", outcome)
	}

	// A record exists only when both rounds succeed.
	n, _ := s.CountCorrections(ctx, page.ID)
	if n != 0 {
		t.Errorf("corrections = %d, want 0 after round-2 parse failure", n)
	}
	got, _ := s.GetPage(ctx, page.ID)
	if got.HasCorrectedText {
		t.Error("page must not be flagged as corrected")
	}
}

func TestCorrectLowConfidenceRoutesToReview(t *testing.T) {
	s := mustStore(t)
	ctx := context.Background()
	page := acceptablePage(t, s, rawText)

	lowConf := `{"quality_score": 60, "improvement_level": "significant",
		"major_corrections": ["rewrote a name"], "confidence": "low", "needs_review": false}`
	mock := providers.NewMockClient(fixedText, lowConf)

	outcome, err := testEngine(s, mock).Correct(ctx, page)
	if err != nil {
		t.Fatalf("Correct() error = %v", err)
	}
	if outcome.Deferred() {
		t.Fatalf("outcome deferred: %q", outcome.DeferReason)
	}

	// Low confidence is stored but never auto-approved.
	n, _ := s.CountCorrections(ctx, page.ID)
	if n != 1 {
		t.Errorf("corrections = %d, want 1 (record still stored)", n)
	}
	got, _ := s.GetPage(ctx, page.ID)
	if !got.NeedsManualReview {
		t.Error("low-confidence correction should set the review flag")
	}
}

func TestCorrectNoChangesDefers(t *testing.T) {
	s := mustStore(t)
	ctx := context.Background()
	page := acceptablePage(t, s, fixedText)

	mock := providers.NewMockClient(fixedText)

	outcome, err := testEngine(s, mock).Correct(ctx, page)
	if err != nil {
		t.Fatalf("Correct() error = %v", err)
	}
	if !outcome.Deferred() || outcome.DeferReason != DeferNoChanges {
		t.Fatalf("outcome = %+v, want deferred no_changes", outcome)
	}
	if mock.RequestCount() != 1 {
		t.Errorf("requests = %d, round 2 should not run for a no-op", mock.RequestCount())
	}
}

func TestCorrectEmptyTextDefers(t *testing.T) {
	s := mustStore(t)
	ctx := context.Background()
	page := acceptablePage(t, s, "   ")

	mock := providers.NewMockClient(fixedText)

	outcome, err := testEngine(s, mock).Correct(ctx, page)
	if err != nil {
		t.Fatalf("Correct() error = %v", err)
	}
	if !outcome.Deferred() || outcome.DeferReason != DeferEmptyText {
		t.Fatalf("outcome = %+v, want deferred empty_text", outcome)
	}
	if mock.RequestCount() != 0 {
		t.Error("no billed calls should happen for empty text")
	}
}

func TestCorrectRateLimitPropagates(t *testing.T) {
	s := mustStore(t)
	ctx := context.Background()
	page := acceptablePage(t, s, rawText)

	mock := &providers.MockClient{RateLimitAfter: -1, DailyLimit: true}

	_, err := testEngine(s, mock).Correct(ctx, page)
	if !providers.IsDailyLimit(err) {
		t.Fatalf("Correct() error = %v, want daily limit to propagate", err)
	}

	n, _ := s.CountCorrections(ctx, page.ID)
	if n != 0 {
		t.Errorf("corrections = %d, want 0", n)
	}
}

func TestCorrectBudgetExhaustedStopsBeforeCall(t *testing.T) {
	s := mustStore(t)
	ctx := context.Background()
	page := acceptablePage(t, s, rawText)

	// Ledger already holds more than the ceiling.
	s.AppendSpend(ctx, &store.LedgerEntry{Model: "llama-3.3-70b", CostUSD: 10.0})

	mock := providers.NewMockClient(fixedText, validAssessment)
	gov := budget.New(s, 5.0, 0.03, slog.Default())
	e := New(s, gov, mock, Options{Model: "llama-3.3-70b"}, slog.Default())

	_, err := e.Correct(ctx, page)
	if err != budget.ErrBudgetExceeded {
		t.Fatalf("Correct() error = %v, want ErrBudgetExceeded", err)
	}
	if mock.RequestCount() != 0 {
		t.Error("no billed calls once the budget is exhausted")
	}
}

func TestCorrectSkipsAlreadyCorrected(t *testing.T) {
	s := mustStore(t)
	ctx := context.Background()
	page := acceptablePage(t, s, rawText)
	page.HasCorrectedText = true

	mock := providers.NewMockClient(fixedText, validAssessment)
	gov := budget.New(s, 5.0, 0.03, slog.Default())
	e := New(s, gov, mock, Options{Model: "llama-3.3-70b", SkipCorrected: true}, slog.Default())

	outcome, err := e.Correct(ctx, page)
	if err != nil {
		t.Fatalf("Correct() error = %v", err)
	}
	if !outcome.Deferred() || outcome.DeferReason != DeferAlreadyCorrected {
		t.Fatalf("outcome = %+v, want deferred already_corrected", outcome)
	}
	if mock.RequestCount() != 0 {
		t.Error("already-corrected pages must not be re-billed")
	}
}
