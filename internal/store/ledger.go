package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// LedgerEntry is one billed API call. The ledger is append-only; the
// rolling daily total is always recomputed by aggregation so a restarted
// process recovers the correct remaining budget.
type LedgerEntry struct {
	ID           string    `json:"id" yaml:"id"`
	Model        string    `json:"model" yaml:"model"`
	Operation    string    `json:"operation,omitempty" yaml:"operation,omitempty"` // e.g. "classify", "correct", "assess"
	PageID       string    `json:"page_id,omitempty" yaml:"page_id,omitempty"`
	InputTokens  int       `json:"input_tokens" yaml:"input_tokens"`
	OutputTokens int       `json:"output_tokens" yaml:"output_tokens"`
	CostUSD      float64   `json:"cost_usd" yaml:"cost_usd"`
	CreatedAt    time.Time `json:"created_at" yaml:"created_at"`
}

// AppendSpend appends a ledger entry. Entries are never mutated.
func (s *Store) AppendSpend(ctx context.Context, e *LedgerEntry) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cost_ledger (id, model, operation, page_id, input_tokens, output_tokens, cost_usd)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Model, e.Operation, e.PageID, e.InputTokens, e.OutputTokens, e.CostUSD,
	)
	if err != nil {
		return fmt.Errorf("failed to append ledger entry: %w", err)
	}
	return nil
}

// SpendSince returns the total cost of ledger entries at or after the cutoff.
func (s *Store) SpendSince(ctx context.Context, cutoff time.Time) (float64, error) {
	var total float64
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(cost_usd), 0) FROM cost_ledger WHERE created_at >= ?`,
		cutoff.UTC(),
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to aggregate ledger: %w", err)
	}
	return total, nil
}

// CountLedgerEntries returns the total number of ledger entries.
func (s *Store) CountLedgerEntries(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM cost_ledger`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count ledger entries: %w", err)
	}
	return n, nil
}
