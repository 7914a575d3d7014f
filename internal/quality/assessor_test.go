package quality

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/pagemill/pagemill/internal/budget"
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

func mustPageWithText(t *testing.T, s *store.Store, text string) *store.Page {
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
	if _, err := s.ClaimPage(ctx, id, store.StatusUnchecked); err != nil {
		t.Fatalf("ClaimPage() error = %v", err)
	}
	page, err := s.GetPage(ctx, id)
	if err != nil {
		t.Fatalf("GetPage() error = %v", err)
	}
	return page
}

func testGovernor(s *store.Store) *budget.Governor {
	return budget.New(s, 5.0, 0.03, slog.Default())
}

func TestAssessLocalDegenerate(t *testing.T) {
	s := mustStore(t)
	ctx := context.Background()
	page := mustPageWithText(t, s, "0 0 00 0")

	a := NewAssessor(s, testGovernor(s), nil, Options{}, slog.Default())
	verdict, err := a.Assess(ctx, page)
	if err != nil {
		t.Fatalf("Assess() error = %v", err)
	}
	if verdict.Score != 0 || verdict.Status != store.StatusNeedsRescan {
		t.Errorf("verdict = %+v, want score 0 needs_rescan", verdict)
	}

	got, _ := s.GetPage(ctx, page.ID)
	if got.QualityStatus != store.StatusNeedsRescan {
		t.Errorf("persisted status = %s, want needs_rescan", got.QualityStatus)
	}
	if got.QualityScore == nil || *got.QualityScore != 0 {
		t.Errorf("persisted score = %v, want 0", got.QualityScore)
	}
}

func TestAssessRemoteAcceptable(t *testing.T) {
	s := mustStore(t)
	ctx := context.Background()
	page := mustPageWithText(t, s, "Deposition of John Smith, March 3, 1998. Page one of twelve.")

	mock := &providers.MockClient{
		Responses:        []string{"ACCEPTABLE"},
		PromptTokens:     100,
		CompletionTokens: 5,
		CostPerCall:      0.001,
	}
	a := NewAssessor(s, testGovernor(s), mock, Options{UseRemote: true, Model: "llama-3.3-70b"}, slog.Default())

	verdict, err := a.Assess(ctx, page)
	if err != nil {
		t.Fatalf("Assess() error = %v", err)
	}
	if verdict.Score != 100 || verdict.Status != store.StatusAcceptable {
		t.Errorf("verdict = %+v, want score 100 acceptable", verdict)
	}
	if !verdict.Billed {
		t.Error("remote verdict should be marked billed")
	}

	// The billed call must land in the ledger.
	n, err := s.CountLedgerEntries(ctx)
	if err != nil {
		t.Fatalf("CountLedgerEntries() error = %v", err)
	}
	if n != 1 {
		t.Errorf("ledger entries = %d, want 1", n)
	}
}

func TestAssessRemoteAmbiguousScoresZero(t *testing.T) {
	s := mustStore(t)
	ctx := context.Background()
	page := mustPageWithText(t, s, "Deposition of John Smith, March 3, 1998. Page one of twelve.")

	// Neither keyword clearly present: conservative failure.
	mock := providers.NewMockClient("I am not sure about this one.")
	a := NewAssessor(s, testGovernor(s), mock, Options{UseRemote: true, Model: "llama-3.3-70b"}, slog.Default())

	verdict, err := a.Assess(ctx, page)
	if err != nil {
		t.Fatalf("Assess() error = %v", err)
	}
	if verdict.Score != 0 {
		t.Errorf("ambiguous classifier answer scored %d, want 0", verdict.Score)
	}
}

func TestAssessRemoteErrorScoresZero(t *testing.T) {
	s := mustStore(t)
	ctx := context.Background()
	page := mustPageWithText(t, s, "Deposition of John Smith, March 3, 1998. Page one of twelve.")

	// No responses configured: every call errors.
	mock := &providers.MockClient{}
	a := NewAssessor(s, testGovernor(s), mock, Options{UseRemote: true, Model: "llama-3.3-70b"}, slog.Default())

	verdict, err := a.Assess(ctx, page)
	if err != nil {
		t.Fatalf("Assess() should absorb classifier errors, got %v", err)
	}
	if verdict.Score != 0 || verdict.Status != store.StatusNeedsRescan {
		t.Errorf("verdict = %+v, want conservative score 0", verdict)
	}
}

func TestAssessRateLimitPropagates(t *testing.T) {
	s := mustStore(t)
	ctx := context.Background()
	page := mustPageWithText(t, s, "Deposition of John Smith, March 3, 1998. Page one of twelve.")

	mock := &providers.MockClient{RateLimitAfter: -1, DailyLimit: true}
	a := NewAssessor(s, testGovernor(s), mock, Options{UseRemote: true, Model: "llama-3.3-70b"}, slog.Default())

	_, err := a.Assess(ctx, page)
	if !providers.IsDailyLimit(err) {
		t.Fatalf("Assess() error = %v, want daily rate limit to propagate", err)
	}
}

func TestAssessBudgetExhaustedPropagatesWithoutVerdict(t *testing.T) {
	s := mustStore(t)
	ctx := context.Background()
	page := mustPageWithText(t, s, "Deposition of John Smith, March 3, 1998. Page one of twelve.")

	// Ledger already holds more than the ceiling; good text must not be
	// downgraded just because the classifier can no longer run.
	if err := s.AppendSpend(ctx, &store.LedgerEntry{Model: "llama-3.3-70b", CostUSD: 10.0}); err != nil {
		t.Fatalf("AppendSpend() error = %v", err)
	}

	mock := providers.NewMockClient("ACCEPTABLE")
	a := NewAssessor(s, testGovernor(s), mock, Options{UseRemote: true, Model: "llama-3.3-70b"}, slog.Default())

	_, err := a.Assess(ctx, page)
	if !errors.Is(err, budget.ErrBudgetExceeded) {
		t.Fatalf("Assess() error = %v, want ErrBudgetExceeded to propagate", err)
	}
	if mock.RequestCount() != 0 {
		t.Errorf("classifier called %d times over budget, want 0", mock.RequestCount())
	}

	// No verdict was written; the page still holds the claim untouched.
	got, _ := s.GetPage(ctx, page.ID)
	if got.QualityStatus != store.StatusProcessing {
		t.Errorf("status = %s, want processing (no verdict written)", got.QualityStatus)
	}
	if got.QualityScore != nil {
		t.Errorf("score = %v, want none", *got.QualityScore)
	}
}

func TestAssessLocalSkipsRemoteForDegenerateText(t *testing.T) {
	s := mustStore(t)
	ctx := context.Background()
	page := mustPageWithText(t, s, "0 0 00 0")

	mock := providers.NewMockClient("ACCEPTABLE")
	a := NewAssessor(s, testGovernor(s), mock, Options{UseRemote: true, Model: "llama-3.3-70b"}, slog.Default())

	if _, err := a.Assess(ctx, page); err != nil {
		t.Fatalf("Assess() error = %v", err)
	}
	if mock.RequestCount() != 0 {
		t.Errorf("classifier called %d times for locally-failed text, want 0", mock.RequestCount())
	}
}

func TestAssessMissingTextFile(t *testing.T) {
	s := mustStore(t)
	ctx := context.Background()

	id, err := s.CreatePage(ctx, "batch-a", 1, "/img/page_0001.png", "/nonexistent/file.txt")
	if err != nil {
		t.Fatalf("CreatePage() error = %v", err)
	}
	s.ClaimPage(ctx, id, store.StatusUnchecked)
	page, _ := s.GetPage(ctx, id)

	a := NewAssessor(s, testGovernor(s), nil, Options{}, slog.Default())
	verdict, err := a.Assess(ctx, page)
	if err != nil {
		t.Fatalf("Assess() error = %v", err)
	}
	if verdict.Score != 0 {
		t.Errorf("missing text scored %d, want 0", verdict.Score)
	}
}
