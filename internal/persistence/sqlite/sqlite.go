// Package sqlite opens the SQLite-backed chat room store using the pure-Go
// modernc.org/sqlite driver and applies the embedded schema migrations.
package sqlite

import (
	"context"
	"embed"
	"fmt"
	"log/slog"

	"github.com/example/chatrooms/internal/persistence/migration"
	"github.com/example/chatrooms/internal/persistence/sqlstore"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Open connects to the database described by cfg, migrates it to the
// latest schema and returns the store.
func Open(ctx context.Context, cfg Config, logger *slog.Logger, opts ...sqlstore.Option) (*sqlstore.Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := openDB(cfg)
	if err != nil {
		return nil, err
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping SQLite database: %w", err)
	}

	runner := migration.NewRunner(db, migrations, "migrations", nil, logger)
	if err := runner.Run(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate SQLite database: %w", err)
	}

	opts = append([]sqlstore.Option{sqlstore.WithLogger(logger)}, opts...)
	return sqlstore.New(db, Dialect{}, opts...), nil
}
