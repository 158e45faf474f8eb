package audit

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/symptom-checker-server/internal/domain"
)

// SQLiteStore implements the Store interface using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
}

// NewSQLiteStore creates a new SQLite audit store.
// It creates the database file and schema if they don't exist.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLiteStore{
		db:     db,
		dbPath: dbPath,
	}, nil
}

// createSchema creates the database tables and indexes.
func createSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS analysis_audit (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		request_id TEXT NOT NULL,
		outcome TEXT NOT NULL,
		gateway TEXT NOT NULL DEFAULT '',
		symptom_count INTEGER NOT NULL DEFAULT 0,
		diagnosis_count INTEGER NOT NULL DEFAULT 0,
		had_image INTEGER NOT NULL DEFAULT 0,
		duration_ms INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_analysis_audit_created_at ON analysis_audit(created_at);
	CREATE INDEX IF NOT EXISTS idx_analysis_audit_outcome ON analysis_audit(outcome);
	`

	_, err := db.Exec(schema)
	return err
}

// Record appends an audit entry.
func (s *SQLiteStore) Record(ctx context.Context, record *domain.AnalysisRecord) error {
	if err := validateRecord(record); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO analysis_audit (
			request_id, outcome, gateway, symptom_count, diagnosis_count,
			had_image, duration_ms, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		record.RequestID,
		string(record.Outcome),
		record.Gateway,
		record.SymptomCount,
		record.DiagnosisCount,
		record.HadImage,
		record.DurationMs,
		record.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get insert ID: %w", err)
	}
	record.ID = id
	return nil
}

// Summary counts entries by outcome.
func (s *SQLiteStore) Summary(ctx context.Context, since *time.Time) (*domain.AuditSummary, error) {
	query := "SELECT outcome, COUNT(*) FROM analysis_audit"
	var args []interface{}
	if since != nil {
		query += " WHERE created_at >= ?"
		args = append(args, since.UTC())
	}
	query += " GROUP BY outcome"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query: %w", err)
	}
	defer rows.Close()

	summary := newSummary(since)
	for rows.Next() {
		var outcome string
		var count int64
		if err := rows.Scan(&outcome, &count); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		summary.ByOutcome[domain.AnalysisOutcome(outcome)] = count
		summary.Total += count
	}
	return summary, rows.Err()
}

// List returns entries newest first.
func (s *SQLiteStore) List(ctx context.Context, limit, offset int) ([]*domain.AnalysisRecord, error) {
	limit, offset = clampPage(limit, offset)

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, request_id, outcome, gateway, symptom_count, diagnosis_count,
			had_image, duration_ms, created_at
		FROM analysis_audit
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query: %w", err)
	}
	defer rows.Close()

	result := []*domain.AnalysisRecord{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		result = append(result, rec)
	}
	return result, rows.Err()
}

// Ping checks the database.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the store and releases resources.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
