package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrNoCorrection is returned when a page has no correction records.
var ErrNoCorrection = errors.New("no correction record")

// Correction is one immutable LLM correction record for a page.
// Records are append-only; the latest is authoritative for display but
// originals are never deleted or overwritten.
type Correction struct {
	ID     string `json:"id" yaml:"id"`
	PageID string `json:"page_id" yaml:"page_id"`

	OriginalText  string `json:"original_text" yaml:"original_text"`
	CorrectedText string `json:"corrected_text" yaml:"corrected_text"`

	QualityScore     int      `json:"quality_score" yaml:"quality_score"`
	ImprovementLevel string   `json:"improvement_level" yaml:"improvement_level"`
	MajorCorrections []string `json:"major_corrections,omitempty" yaml:"major_corrections,omitempty"`
	Confidence       string   `json:"confidence" yaml:"confidence"`
	NeedsReview      bool     `json:"needs_review" yaml:"needs_review"`

	Model            string  `json:"model" yaml:"model"`
	APICostUSD       float64 `json:"api_cost_usd" yaml:"api_cost_usd"`
	ProcessingTimeMS int     `json:"processing_time_ms" yaml:"processing_time_ms"`

	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
}

// SaveCorrection persists a completed correction record and marks the page
// as having corrected text, in one transaction. Callers must only invoke
// this after both correction rounds succeeded; partial results are never
// persisted.
func (s *Store) SaveCorrection(ctx context.Context, c *Correction) (string, error) {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}

	major, err := json.Marshal(c.MajorCorrections)
	if err != nil {
		return "", fmt.Errorf("failed to serialize major corrections: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO corrections (
			id, page_id, original_text, corrected_text, quality_score,
			improvement_level, major_corrections, confidence, needs_review,
			model, api_cost_usd, processing_time_ms
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.PageID, c.OriginalText, c.CorrectedText, c.QualityScore,
		c.ImprovementLevel, string(major), c.Confidence, c.NeedsReview,
		c.Model, c.APICostUSD, c.ProcessingTimeMS,
	)
	if err != nil {
		return "", fmt.Errorf("failed to insert correction: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE pages SET has_corrected_text = TRUE, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`, c.PageID,
	)
	if err != nil {
		return "", fmt.Errorf("failed to update page correction flag: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit correction: %w", err)
	}
	return c.ID, nil
}

// LatestCorrection returns the most recent correction record for a page.
func (s *Store) LatestCorrection(ctx context.Context, pageID string) (*Correction, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, page_id, original_text, corrected_text,
			COALESCE(quality_score, 0), COALESCE(improvement_level, ''),
			COALESCE(major_corrections, '[]'), COALESCE(confidence, ''),
			COALESCE(needs_review, FALSE), model, COALESCE(api_cost_usd, 0),
			COALESCE(processing_time_ms, 0), created_at
		FROM corrections WHERE page_id = ?
		ORDER BY created_at DESC, rowid DESC LIMIT 1`, pageID)

	var (
		c     Correction
		major string
	)
	err := row.Scan(
		&c.ID, &c.PageID, &c.OriginalText, &c.CorrectedText,
		&c.QualityScore, &c.ImprovementLevel, &major, &c.Confidence,
		&c.NeedsReview, &c.Model, &c.APICostUSD,
		&c.ProcessingTimeMS, &c.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoCorrection
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get correction for page %s: %w", pageID, err)
	}

	if err := json.Unmarshal([]byte(major), &c.MajorCorrections); err != nil {
		// Old rows may hold malformed JSON; surface the raw value instead
		// of failing the read.
		c.MajorCorrections = []string{major}
	}
	return &c, nil
}

// CountCorrections returns the number of correction records for a page.
func (s *Store) CountCorrections(ctx context.Context, pageID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM corrections WHERE page_id = ?`, pageID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count corrections: %w", err)
	}
	return n, nil
}
