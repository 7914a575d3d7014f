package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// QueueStatus is the lifecycle state of a reprocessing queue entry.
// Entries move forward only, except the manual failed -> queued retry path.
type QueueStatus string

const (
	QueueStatusQueued     QueueStatus = "queued"
	QueueStatusProcessing QueueStatus = "processing"
	QueueStatusCompleted  QueueStatus = "completed"
	QueueStatusFailed     QueueStatus = "failed"
)

// QueueEntry is a work item for pages whose OCR is judged unusable.
type QueueEntry struct {
	ID       string      `json:"id" yaml:"id"`
	PageID   string      `json:"page_id" yaml:"page_id"`
	Reason   string      `json:"reason" yaml:"reason"`
	Priority int         `json:"priority" yaml:"priority"`
	Status   QueueStatus `json:"status" yaml:"status"`

	CreatedAt    time.Time  `json:"created_at" yaml:"created_at"`
	StartedAt    *time.Time `json:"started_at,omitempty" yaml:"started_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty" yaml:"completed_at,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty" yaml:"error_message,omitempty"`
}

// Enqueue adds a page to the reprocessing queue. Idempotent: if an active
// (queued or processing) entry already exists for the page, this is a
// no-op and returns false.
func (s *Store) Enqueue(ctx context.Context, pageID, reason string, priority int) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var existing int
	err = tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM reprocess_queue
		WHERE page_id = ? AND status IN (?, ?)`,
		pageID, string(QueueStatusQueued), string(QueueStatusProcessing),
	).Scan(&existing)
	if err != nil {
		return false, fmt.Errorf("failed to check active queue entries: %w", err)
	}
	if existing > 0 {
		return false, nil
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO reprocess_queue (id, page_id, reason, priority, status)
		VALUES (?, ?, ?, ?, ?)`,
		uuid.New().String(), pageID, reason, priority, string(QueueStatusQueued),
	)
	if err != nil {
		return false, fmt.Errorf("failed to enqueue page %s: %w", pageID, err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit enqueue: %w", err)
	}
	return true, nil
}

// ListQueue returns queue entries, optionally filtered by status,
// highest priority first then oldest first.
func (s *Store) ListQueue(ctx context.Context, status QueueStatus) ([]*QueueEntry, error) {
	query := `
		SELECT id, page_id, COALESCE(reason, ''), COALESCE(priority, 0), status,
			created_at, started_at, completed_at, COALESCE(error_message, '')
		FROM reprocess_queue`
	args := []any{}
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY priority DESC, created_at ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list queue: %w", err)
	}
	defer rows.Close()

	var entries []*QueueEntry
	for rows.Next() {
		var (
			e      QueueEntry
			status string
		)
		err := rows.Scan(&e.ID, &e.PageID, &e.Reason, &e.Priority, &status,
			&e.CreatedAt, &e.StartedAt, &e.CompletedAt, &e.ErrorMessage)
		if err != nil {
			return nil, fmt.Errorf("failed to scan queue entry: %w", err)
		}
		e.Status = QueueStatus(status)
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

// ClaimQueueEntry moves a queued entry to processing.
// Returns false if the entry was already claimed or completed.
func (s *Store) ClaimQueueEntry(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE reprocess_queue SET status = ?, started_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status = ?`,
		string(QueueStatusProcessing), id, string(QueueStatusQueued),
	)
	if err != nil {
		return false, fmt.Errorf("failed to claim queue entry %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// CompleteQueueEntry marks a processing entry completed.
func (s *Store) CompleteQueueEntry(ctx context.Context, id string) error {
	return s.finishQueueEntry(ctx, id, QueueStatusCompleted, "")
}

// FailQueueEntry marks a processing entry failed with an error message.
func (s *Store) FailQueueEntry(ctx context.Context, id, errMsg string) error {
	return s.finishQueueEntry(ctx, id, QueueStatusFailed, errMsg)
}

func (s *Store) finishQueueEntry(ctx context.Context, id string, status QueueStatus, errMsg string) error {
	var msg sql.NullString
	if errMsg != "" {
		msg = sql.NullString{String: errMsg, Valid: true}
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE reprocess_queue SET status = ?, completed_at = CURRENT_TIMESTAMP, error_message = ?
		WHERE id = ? AND status = ?`,
		string(status), msg, id, string(QueueStatusProcessing),
	)
	if err != nil {
		return fmt.Errorf("failed to finish queue entry %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("queue entry %s is not processing", id)
	}
	return nil
}

// RetryQueueEntry moves a failed entry back to queued. Manual path only.
func (s *Store) RetryQueueEntry(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE reprocess_queue SET status = ?, started_at = NULL, completed_at = NULL,
			error_message = NULL
		WHERE id = ? AND status = ?`,
		string(QueueStatusQueued), id, string(QueueStatusFailed),
	)
	if err != nil {
		return fmt.Errorf("failed to retry queue entry %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("queue entry %s is not failed", id)
	}
	return nil
}
