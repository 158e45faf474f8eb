package database

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/sirupsen/logrus"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// MigrationRunner handles database migrations
type MigrationRunner struct {
	migrate *migrate.Migrate
	log     *logrus.Logger
}

// NewMigrationRunner creates a migration runner over the embedded audit schema.
func NewMigrationRunner(databaseURL string, logger *logrus.Logger) (*MigrationRunner, error) {
	source, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return nil, fmt.Errorf("loading embedded migrations: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, migrateURL(databaseURL))
	if err != nil {
		return nil, fmt.Errorf("creating migration instance: %w", err)
	}

	return &MigrationRunner{
		migrate: m,
		log:     logger,
	}, nil
}

// migrateURL points a postgres:// URL at the pgx v5 migrate driver.
func migrateURL(databaseURL string) string {
	for _, scheme := range []string{"postgres://", "postgresql://"} {
		if strings.HasPrefix(databaseURL, scheme) {
			return "pgx5://" + strings.TrimPrefix(databaseURL, scheme)
		}
	}
	return databaseURL
}

// Up applies every pending audit schema migration.
func (mr *MigrationRunner) Up(ctx context.Context) error {
	return mr.apply(ctx, "up", mr.migrate.Up)
}

// Down reverts the most recent audit schema migration.
func (mr *MigrationRunner) Down(ctx context.Context) error {
	return mr.apply(ctx, "down", func() error { return mr.migrate.Steps(-1) })
}

// apply runs step, asking migrate to stop after the current file when ctx ends.
func (mr *MigrationRunner) apply(ctx context.Context, direction string, step func() error) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			mr.migrate.GracefulStop <- true
		case <-done:
		}
	}()

	entry := mr.log.WithField("direction", direction)
	entry.Info("Migrating audit schema")

	if err := step(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			entry.Info("Audit schema already current")
			return nil
		}
		return fmt.Errorf("migrating audit schema %s: %w", direction, err)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("migrating audit schema %s: %w", direction, err)
	}

	version, dirty, err := mr.Version()
	if err != nil {
		entry.WithError(err).Warn("Could not read audit schema version")
		return nil
	}
	entry.WithFields(logrus.Fields{
		"version": version,
		"dirty":   dirty,
	}).Info("Audit schema migrated")
	return nil
}

// Version reports the applied schema version. A database with no migrations applied
// reports version 0.
func (mr *MigrationRunner) Version() (uint, bool, error) {
	version, dirty, err := mr.migrate.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return version, dirty, err
}

// Close closes the migration runner
func (mr *MigrationRunner) Close() error {
	sourceErr, dbErr := mr.migrate.Close()
	if sourceErr != nil {
		return fmt.Errorf("closing migration source: %w", sourceErr)
	}
	if dbErr != nil {
		return fmt.Errorf("closing migration database: %w", dbErr)
	}
	return nil
}
