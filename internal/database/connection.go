package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/sirupsen/logrus"

	"github.com/symptom-checker-server/internal/domain"
)

// DB wraps a database/sql pool opened through the pgx driver.
type DB struct {
	SQL *sql.DB
	log *logrus.Logger
}

// NewConnection opens and pings a PostgreSQL pool for the audit trail.
func NewConnection(ctx context.Context, config domain.AuditConfig, logger *logrus.Logger) (*DB, error) {
	if config.PostgresURL == "" {
		return nil, errors.New("postgres_url is required")
	}

	pool, err := sql.Open("pgx", config.PostgresURL)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Configure connection pool settings
	maxOpen := config.MaxOpenConns
	if maxOpen <= 0 {
		maxOpen = 25
	}
	maxIdle := config.MaxIdleConns
	if maxIdle <= 0 {
		maxIdle = 5
	}
	lifetime := config.ConnMaxLifetime
	if lifetime <= 0 {
		lifetime = 5 * time.Minute
	}
	pool.SetMaxOpenConns(maxOpen)
	pool.SetMaxIdleConns(maxIdle)
	pool.SetConnMaxLifetime(lifetime)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.PingContext(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	logger.WithFields(logrus.Fields{
		"max_open_conns": maxOpen,
		"max_idle_conns": maxIdle,
	}).Info("Database connection pool established")

	return &DB{SQL: pool, log: logger}, nil
}

// Close closes the database connection pool
func (db *DB) Close() error {
	if db.SQL == nil {
		return nil
	}
	err := db.SQL.Close()
	db.log.Info("Database connection pool closed")
	return err
}

// Health checks the database connection health
func (db *DB) Health(ctx context.Context) error {
	return db.SQL.PingContext(ctx)
}

// Stats returns connection pool statistics
func (db *DB) Stats() sql.DBStats {
	return db.SQL.Stats()
}
