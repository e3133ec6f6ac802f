// Package postgres opens the PostgreSQL-backed chat room store through
// github.com/lib/pq.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"

	"github.com/example/chatrooms/internal/persistence"
	"github.com/example/chatrooms/internal/persistence/migration"
	"github.com/example/chatrooms/internal/persistence/sqlstore"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Config holds PostgreSQL connection settings.
type Config struct {
	// DSN is a lib/pq connection string or postgres:// URL.
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DefaultConfig returns pool settings for the server binary.
func DefaultConfig(dsn string) Config {
	return Config{
		DSN:             dsn,
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
	}
}

// Open connects, migrates and returns the store.
func Open(ctx context.Context, cfg Config, logger *slog.Logger, opts ...sqlstore.Option) (*sqlstore.Store, error) {
	if cfg.DSN == "" {
		return nil, errors.New("postgres: DSN cannot be empty")
	}
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres database: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres database: %w", err)
	}

	runner := migration.NewRunner(db, migrations, "migrations", sqlstore.RebindDollar, logger)
	if err := runner.Run(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate postgres database: %w", err)
	}

	opts = append([]sqlstore.Option{sqlstore.WithLogger(logger)}, opts...)
	return sqlstore.New(db, Dialect{}, opts...), nil
}

// Dialect adapts the shared store to PostgreSQL.
type Dialect struct{}

// Name implements sqlstore.Dialect.
func (Dialect) Name() string { return "postgres" }

// Rebind implements sqlstore.Dialect.
func (Dialect) Rebind(query string) string { return sqlstore.RebindDollar(query) }

// MapError maps SQLSTATE codes to persistence errors.
func (Dialect) MapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return persistence.ErrNotFound
	}

	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return err
	}
	switch pqErr.Code {
	case "23505": // unique_violation
		return fmt.Errorf("%w: %v", persistence.ErrDuplicate, err)
	case "23503", "23514", "23502": // foreign_key, check, not_null
		return fmt.Errorf("%w: %v", persistence.ErrConstraintViolation, err)
	}
	return err
}

// Retryable reports serialization failures and deadlocks.
func (Dialect) Retryable(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	switch pqErr.Code {
	case "40001", "40P01", "55P03":
		return true
	}
	return false
}
