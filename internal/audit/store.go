// Package audit records one non-identifying entry per analysis attempt. Entries hold
// counts and outcomes only; no submission content is stored.
package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/symptom-checker-server/internal/domain"
)

// Store defines the interface for audit storage operations.
type Store interface {
	// Record appends one entry and sets its ID.
	Record(ctx context.Context, record *domain.AnalysisRecord) error

	// Summary counts entries by outcome, optionally only those created at or after since.
	Summary(ctx context.Context, since *time.Time) (*domain.AuditSummary, error)

	// List returns entries newest first with pagination.
	List(ctx context.Context, limit, offset int) ([]*domain.AnalysisRecord, error)

	// Ping checks the backing database.
	Ping(ctx context.Context) error

	// Close closes the store and releases resources.
	Close() error
}

// scanner is an interface for sql.Row and sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(s scanner) (*domain.AnalysisRecord, error) {
	rec := &domain.AnalysisRecord{}
	var outcome string
	err := s.Scan(
		&rec.ID, &rec.RequestID, &outcome, &rec.Gateway,
		&rec.SymptomCount, &rec.DiagnosisCount, &rec.HadImage,
		&rec.DurationMs, &rec.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	rec.Outcome = domain.AnalysisOutcome(outcome)
	return rec, nil
}

func validateRecord(record *domain.AnalysisRecord) error {
	if record == nil {
		return fmt.Errorf("audit record is nil")
	}
	if !record.Outcome.IsValid() {
		return fmt.Errorf("invalid audit outcome %q", record.Outcome)
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	return nil
}

func newSummary(since *time.Time) *domain.AuditSummary {
	return &domain.AuditSummary{
		ByOutcome: map[domain.AnalysisOutcome]int64{},
		Since:     since,
	}
}

// maxListLimit caps a single List page.
const maxListLimit = 500

func clampPage(limit, offset int) (int, int) {
	if limit <= 0 || limit > maxListLimit {
		limit = maxListLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// NopStore discards records. It backs the "none" driver.
type NopStore struct{}

func (NopStore) Record(ctx context.Context, record *domain.AnalysisRecord) error { return nil }

func (NopStore) Summary(ctx context.Context, since *time.Time) (*domain.AuditSummary, error) {
	return newSummary(since), nil
}

func (NopStore) List(ctx context.Context, limit, offset int) ([]*domain.AnalysisRecord, error) {
	return []*domain.AnalysisRecord{}, nil
}

func (NopStore) Ping(ctx context.Context) error { return nil }
func (NopStore) Close() error                   { return nil }

// New opens the store selected by cfg.Driver.
func New(ctx context.Context, cfg domain.AuditConfig, logger *logrus.Logger) (Store, error) {
	switch cfg.Driver {
	case "", "sqlite":
		path := cfg.SQLitePath
		if path == "" {
			path = "data/audit.db"
		}
		store, err := NewSQLiteStore(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite audit store: %w", err)
		}
		logger.WithField("path", path).Info("SQLite audit store opened")
		return store, nil
	case "postgres":
		store, err := NewPostgresStoreFromConfig(ctx, cfg, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres audit store: %w", err)
		}
		return store, nil
	case "none":
		logger.Info("Audit trail disabled")
		return NopStore{}, nil
	default:
		return nil, fmt.Errorf("unknown audit driver %q", cfg.Driver)
	}
}
