package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/symptom-checker-server/internal/database"
	"github.com/symptom-checker-server/internal/domain"
)

// PostgresStore implements the Store interface using PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL audit store over an open connection.
// It expects the schema to already exist (created via migrations).
func NewPostgresStore(db *sql.DB) (*PostgresStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	return &PostgresStore{db: db}, nil
}

// NewPostgresStoreFromConfig connects, applies the embedded migrations and returns a store.
func NewPostgresStoreFromConfig(ctx context.Context, cfg domain.AuditConfig, logger *logrus.Logger) (*PostgresStore, error) {
	conn, err := database.NewConnection(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	runner, err := database.NewMigrationRunner(cfg.PostgresURL, logger)
	if err != nil {
		conn.Close()
		return nil, err
	}
	defer func() {
		if cerr := runner.Close(); cerr != nil {
			logger.WithError(cerr).Warn("Failed to close migration runner")
		}
	}()

	if err := runner.Up(ctx); err != nil {
		conn.Close()
		return nil, err
	}

	return NewPostgresStore(conn.SQL)
}

// Record appends an audit entry.
func (s *PostgresStore) Record(ctx context.Context, record *domain.AnalysisRecord) error {
	if err := validateRecord(record); err != nil {
		return err
	}

	query := `
		INSERT INTO analysis_audit (
			request_id, outcome, gateway, symptom_count, diagnosis_count,
			had_image, duration_ms, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`

	err := s.db.QueryRowContext(ctx, query,
		record.RequestID,
		string(record.Outcome),
		record.Gateway,
		record.SymptomCount,
		record.DiagnosisCount,
		record.HadImage,
		record.DurationMs,
		record.CreatedAt,
	).Scan(&record.ID)
	if err != nil {
		return fmt.Errorf("failed to save audit record: %w", err)
	}
	return nil
}

// Summary counts entries by outcome.
func (s *PostgresStore) Summary(ctx context.Context, since *time.Time) (*domain.AuditSummary, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if since != nil {
		rows, err = s.db.QueryContext(ctx,
			"SELECT outcome, COUNT(*) FROM analysis_audit WHERE created_at >= $1 GROUP BY outcome", *since)
	} else {
		rows, err = s.db.QueryContext(ctx,
			"SELECT outcome, COUNT(*) FROM analysis_audit GROUP BY outcome")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to summarize audit records: %w", err)
	}
	defer rows.Close()

	summary := newSummary(since)
	for rows.Next() {
		var outcome string
		var count int64
		if err := rows.Scan(&outcome, &count); err != nil {
			return nil, fmt.Errorf("failed to scan summary row: %w", err)
		}
		summary.ByOutcome[domain.AnalysisOutcome(outcome)] = count
		summary.Total += count
	}
	return summary, rows.Err()
}

// List returns entries newest first.
func (s *PostgresStore) List(ctx context.Context, limit, offset int) ([]*domain.AnalysisRecord, error) {
	limit, offset = clampPage(limit, offset)

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, request_id, outcome, gateway, symptom_count, diagnosis_count,
			had_image, duration_ms, created_at
		FROM analysis_audit
		ORDER BY created_at DESC, id DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit records: %w", err)
	}
	defer rows.Close()

	result := []*domain.AnalysisRecord{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit record: %w", err)
		}
		result = append(result, rec)
	}
	return result, rows.Err()
}

// Ping checks the database.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the store and releases resources.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
