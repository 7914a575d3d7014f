package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrPageNotFound is returned when a page ID does not exist.
var ErrPageNotFound = errors.New("page not found")

// Page is one scanned image's text-quality lifecycle record.
type Page struct {
	ID        string `json:"id" yaml:"id"`
	BatchID   string `json:"batch_id" yaml:"batch_id"`
	PageNum   int    `json:"page_num" yaml:"page_num"`
	ImagePath string `json:"image_path" yaml:"image_path"`
	TextPath  string `json:"text_path,omitempty" yaml:"text_path,omitempty"`

	QualityScore      *int       `json:"quality_score,omitempty" yaml:"quality_score,omitempty"`
	QualityStatus     Status     `json:"quality_status" yaml:"quality_status"`
	RescanAttempts    int        `json:"rescan_attempts" yaml:"rescan_attempts"`
	LastAttemptAt     *time.Time `json:"last_attempt_at,omitempty" yaml:"last_attempt_at,omitempty"`
	NeedsManualReview bool       `json:"needs_manual_review" yaml:"needs_manual_review"`
	HasCorrectedText  bool       `json:"has_corrected_text" yaml:"has_corrected_text"`

	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt time.Time `json:"updated_at" yaml:"updated_at"`
}

const pageColumns = `id, batch_id, page_num, image_path, COALESCE(text_path, ''),
	quality_score, quality_status, COALESCE(rescan_attempts, 0),
	last_attempt_at, COALESCE(needs_manual_review, FALSE),
	COALESCE(has_corrected_text, FALSE), created_at, updated_at`

func scanPage(row interface{ Scan(...any) error }) (*Page, error) {
	var (
		p      Page
		status string
	)
	err := row.Scan(
		&p.ID, &p.BatchID, &p.PageNum, &p.ImagePath, &p.TextPath,
		&p.QualityScore, &status, &p.RescanAttempts,
		&p.LastAttemptAt, &p.NeedsManualReview,
		&p.HasCorrectedText, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.QualityStatus = Status(status)
	return &p, nil
}

// CreatePage inserts a new page row in the unchecked state.
// Returns the generated page ID.
func (s *Store) CreatePage(ctx context.Context, batchID string, pageNum int, imagePath, textPath string) (string, error) {
	id := uuid.New().String()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pages (id, batch_id, page_num, image_path, text_path, quality_status)
		VALUES (?, ?, ?, ?, ?, ?)`,
		id, batchID, pageNum, imagePath, textPath, string(StatusUnchecked),
	)
	if err != nil {
		return "", fmt.Errorf("failed to create page: %w", err)
	}
	return id, nil
}

// GetPage returns a page by ID.
func (s *Store) GetPage(ctx context.Context, id string) (*Page, error) {
	row := s.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT %s FROM pages WHERE id = ?", pageColumns), id)
	p, err := scanPage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPageNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get page %s: %w", id, err)
	}
	return p, nil
}

// ListByStatus returns up to limit pages with the given status, oldest first.
func (s *Store) ListByStatus(ctx context.Context, status Status, limit int) ([]*Page, error) {
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf("SELECT %s FROM pages WHERE quality_status = ? ORDER BY batch_id, page_num LIMIT ?", pageColumns),
		string(status), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list pages: %w", err)
	}
	defer rows.Close()
	return collectPages(rows)
}

// ListCandidates returns pages eligible for a pipeline pass: unchecked
// pages plus flagged pages that still have rescan attempts remaining.
func (s *Store) ListCandidates(ctx context.Context, maxAttempts, limit int) ([]*Page, error) {
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT %s FROM pages
			WHERE quality_status = ?
			   OR (quality_status = ? AND COALESCE(rescan_attempts, 0) < ?)
			   OR quality_status = ?
			ORDER BY batch_id, page_num LIMIT ?`, pageColumns),
		string(StatusUnchecked), string(StatusNeedsRescan), maxAttempts,
		string(StatusNeedsCorrection), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list candidate pages: %w", err)
	}
	defer rows.Close()
	return collectPages(rows)
}

func collectPages(rows *sql.Rows) ([]*Page, error) {
	var pages []*Page
	for rows.Next() {
		p, err := scanPage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan page: %w", err)
		}
		pages = append(pages, p)
	}
	return pages, rows.Err()
}

// ClaimPage atomically moves a page from its expected status to processing.
// Returns false if another worker got there first (or the status changed).
// This is the per-page claim that keeps overlapping runs from
// double-processing a page.
func (s *Store) ClaimPage(ctx context.Context, id string, expected Status) (bool, error) {
	if err := expected.ValidateTransition(StatusProcessing); err != nil {
		return false, err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE pages SET quality_status = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND quality_status = ?`,
		string(StatusProcessing), id, string(expected),
	)
	if err != nil {
		return false, fmt.Errorf("failed to claim page %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// ReleasePage moves a claimed page to its verdict status.
func (s *Store) ReleasePage(ctx context.Context, id string, to Status) error {
	if err := StatusProcessing.ValidateTransition(to); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE pages SET quality_status = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND quality_status = ?`,
		string(to), id, string(StatusProcessing),
	)
	if err != nil {
		return fmt.Errorf("failed to release page %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("page %s was not in processing state", id)
	}
	return nil
}

// SetQuality records a quality verdict for a claimed page.
// Owned by the quality assessor; only it writes quality_score.
func (s *Store) SetQuality(ctx context.Context, id string, score int, to Status) error {
	if err := StatusProcessing.ValidateTransition(to); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE pages SET quality_score = ?, quality_status = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`,
		score, string(to), id,
	)
	if err != nil {
		return fmt.Errorf("failed to set quality for page %s: %w", id, err)
	}
	return nil
}

// RecordRescanAttempt advances the attempt counter and optionally updates
// the text path after a successful re-extraction. Owned by the rescan engine.
func (s *Store) RecordRescanAttempt(ctx context.Context, id string, attempts int, textPath string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE pages SET rescan_attempts = ?, text_path = COALESCE(NULLIF(?, ''), text_path),
			last_attempt_at = CURRENT_TIMESTAMP, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`,
		attempts, textPath, id,
	)
	if err != nil {
		return fmt.Errorf("failed to record rescan attempt for page %s: %w", id, err)
	}
	return nil
}

// MarkFailed moves a claimed page to the terminal failed state and flags
// it for manual review.
func (s *Store) MarkFailed(ctx context.Context, id string, score int) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE pages SET quality_status = ?, quality_score = ?, needs_manual_review = TRUE,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`,
		string(StatusFailed), score, id,
	)
	if err != nil {
		return fmt.Errorf("failed to mark page %s failed: %w", id, err)
	}
	return nil
}

// SetNeedsManualReview flags a page for human review without changing status.
func (s *Store) SetNeedsManualReview(ctx context.Context, id string, needs bool) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE pages SET needs_manual_review = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		needs, id,
	)
	if err != nil {
		return fmt.Errorf("failed to update review flag for page %s: %w", id, err)
	}
	return nil
}

// ResetForRetry deliberately moves a failed page back to unchecked,
// clearing the attempt counter and review flag. Distinct from automatic
// transitions; this is the operator's escape hatch.
func (s *Store) ResetForRetry(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE pages SET quality_status = ?, quality_score = NULL, rescan_attempts = 0,
			needs_manual_review = FALSE, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND quality_status = ?`,
		string(StatusUnchecked), id, string(StatusFailed),
	)
	if err != nil {
		return fmt.Errorf("failed to reset page %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("page %s is not in failed state", id)
	}
	return nil
}

// ListNeedsReview returns pages flagged for human review, oldest first.
func (s *Store) ListNeedsReview(ctx context.Context, limit int) ([]*Page, error) {
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf("SELECT %s FROM pages WHERE needs_manual_review = TRUE ORDER BY batch_id, page_num LIMIT ?", pageColumns),
		limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list review pages: %w", err)
	}
	defer rows.Close()
	return collectPages(rows)
}

// CountByStatus returns page counts grouped by quality status.
func (s *Store) CountByStatus(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT quality_status, COUNT(*) FROM pages GROUP BY quality_status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count pages: %w", err)
	}
	defer rows.Close()

	counts := make(map[Status]int)
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[Status(status)] = n
	}
	return counts, rows.Err()
}
