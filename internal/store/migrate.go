package store

import (
	"context"
	"fmt"
	"strings"
)

// Migrate idempotently ensures all tables and columns exist.
// Check-then-create throughout: the indexer, the standalone assess pass,
// and the correction processor all call this on startup against a shared
// database, so concurrent first use must not conflict.
func (s *Store) Migrate(ctx context.Context) error {
	if err := s.ensureTables(ctx); err != nil {
		return err
	}
	if err := s.ensurePageColumns(ctx); err != nil {
		return err
	}
	return s.ensureIndexes(ctx)
}

func (s *Store) ensureTables(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS pages (
			id TEXT PRIMARY KEY,
			batch_id TEXT NOT NULL,
			page_num INTEGER NOT NULL,
			image_path TEXT NOT NULL,
			text_path TEXT,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS corrections (
			id TEXT PRIMARY KEY,
			page_id TEXT NOT NULL,
			original_text TEXT NOT NULL,
			corrected_text TEXT NOT NULL,
			quality_score INTEGER,
			improvement_level TEXT,
			major_corrections TEXT,
			confidence TEXT,
			needs_review BOOLEAN DEFAULT FALSE,
			model TEXT NOT NULL,
			api_cost_usd REAL DEFAULT 0.0,
			processing_time_ms INTEGER,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (page_id) REFERENCES pages (id) ON DELETE CASCADE
		)`,
		`CREATE TABLE IF NOT EXISTS reprocess_queue (
			id TEXT PRIMARY KEY,
			page_id TEXT NOT NULL,
			reason TEXT,
			priority INTEGER DEFAULT 0,
			status TEXT DEFAULT 'queued',
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			started_at TIMESTAMP,
			completed_at TIMESTAMP,
			error_message TEXT,
			FOREIGN KEY (page_id) REFERENCES pages (id) ON DELETE CASCADE
		)`,
		`CREATE TABLE IF NOT EXISTS cost_ledger (
			id TEXT PRIMARY KEY,
			model TEXT NOT NULL,
			operation TEXT,
			page_id TEXT,
			input_tokens INTEGER DEFAULT 0,
			output_tokens INTEGER DEFAULT 0,
			cost_usd REAL NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}
	return nil
}

// ensurePageColumns adds quality columns to pages if missing.
// ALTER TABLE has no IF NOT EXISTS in SQLite, so inspect the schema first
// and tolerate duplicate-column races from concurrent migrators.
func (s *Store) ensurePageColumns(ctx context.Context) error {
	existing, err := s.tableColumns(ctx, "pages")
	if err != nil {
		return err
	}

	required := []struct {
		name string
		def  string
	}{
		{"quality_score", "INTEGER DEFAULT NULL"},
		{"quality_status", "TEXT DEFAULT 'unchecked'"},
		{"rescan_attempts", "INTEGER DEFAULT 0"},
		{"last_attempt_at", "TIMESTAMP"},
		{"needs_manual_review", "BOOLEAN DEFAULT FALSE"},
		{"has_corrected_text", "BOOLEAN DEFAULT FALSE"},
	}

	for _, col := range required {
		if _, ok := existing[col.name]; ok {
			continue
		}
		stmt := fmt.Sprintf("ALTER TABLE pages ADD COLUMN %s %s", col.name, col.def)
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			if strings.Contains(strings.ToLower(err.Error()), "duplicate column name") {
				continue
			}
			return fmt.Errorf("failed to add column %s: %w", col.name, err)
		}
		s.logger.Info("added column to pages table", "column", col.name)
	}
	return nil
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	stmts := []string{
		`CREATE INDEX IF NOT EXISTS idx_pages_quality_status ON pages(quality_status)`,
		`CREATE INDEX IF NOT EXISTS idx_pages_batch ON pages(batch_id, page_num)`,
		`CREATE INDEX IF NOT EXISTS idx_corrections_page ON corrections(page_id, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_queue_page_status ON reprocess_queue(page_id, status)`,
		`CREATE INDEX IF NOT EXISTS idx_ledger_created ON cost_ledger(created_at)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}
	return nil
}

// tableColumns returns the column names of a table via PRAGMA table_info.
func (s *Store) tableColumns(ctx context.Context, table string) (map[string]struct{}, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return nil, fmt.Errorf("failed to inspect table %s: %w", table, err)
	}
	defer rows.Close()

	cols := make(map[string]struct{})
	for rows.Next() {
		var (
			cid     int
			name    string
			ctype   string
			notNull int
			dflt    any
			pk      int
		)
		if err := rows.Scan(&cid, &name, &ctype, &notNull, &dflt, &pk); err != nil {
			return nil, fmt.Errorf("failed to scan column info: %w", err)
		}
		cols[name] = struct{}{}
	}
	return cols, rows.Err()
}
