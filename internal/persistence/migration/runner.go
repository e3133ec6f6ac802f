package migration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"time"
)

const versionTableSQL = `
CREATE TABLE IF NOT EXISTS schema_migrations (
	version TEXT PRIMARY KEY,
	applied_at TEXT NOT NULL,
	checksum TEXT,
	execution_time_ms INTEGER
)`

// Runner applies the migrations found in one directory of an fs.FS.
type Runner struct {
	db     *sql.DB
	fsys   fs.FS
	dir    string
	rebind func(string) string
	logger *slog.Logger
}

// NewRunner builds a runner. rebind converts "?" placeholders to the
// driver's syntax and may be nil for drivers that accept "?".
func NewRunner(db *sql.DB, fsys fs.FS, dir string, rebind func(string) string, logger *slog.Logger) *Runner {
	if rebind == nil {
		rebind = func(query string) string { return query }
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{db: db, fsys: fsys, dir: dir, rebind: rebind, logger: logger.With("component", "migration")}
}

// Run applies every pending migration in version order.
func (r *Runner) Run(ctx context.Context) error {
	status, err := r.Status(ctx)
	if err != nil {
		return err
	}

	if len(status.Pending) == 0 {
		r.logger.InfoContext(ctx, "schema up to date", "version", status.CurrentVersion)
		return nil
	}

	r.logger.InfoContext(ctx, "applying migrations", "current_version", status.CurrentVersion, "pending", len(status.Pending))
	for _, m := range status.Pending {
		start := time.Now()
		if err := r.apply(ctx, m); err != nil {
			r.logger.ErrorContext(ctx, "migration failed", "version", m.Version, "file", m.FilePath, "error", err)
			return err
		}
		r.logger.InfoContext(ctx, "migration applied", "version", m.Version, "description", m.Description, "duration", time.Since(start))
	}
	return nil
}

// Status reports applied and pending migrations, verifying that applied
// scripts have not changed since.
func (r *Runner) Status(ctx context.Context) (Status, error) {
	if _, err := r.db.ExecContext(ctx, versionTableSQL); err != nil {
		return Status{}, newMigrationError("", "", "create schema_migrations table", err)
	}

	migrations, err := Scan(r.fsys, r.dir)
	if err != nil {
		return Status{}, err
	}

	applied, err := r.applied(ctx)
	if err != nil {
		return Status{}, err
	}

	byVersion := make(map[string]AppliedMigration, len(applied))
	for _, a := range applied {
		byVersion[a.Version] = a
	}

	status := Status{Applied: applied}
	for _, m := range migrations {
		a, ok := byVersion[m.Version]
		if !ok {
			status.Pending = append(status.Pending, m)
			continue
		}
		if a.Checksum != "" && a.Checksum != m.Checksum {
			return Status{}, newMigrationError(m.Version, m.FilePath, "verify checksum", ErrChecksumMismatch)
		}
		status.CurrentVersion = m.Version
	}
	return status, nil
}

func (r *Runner) applied(ctx context.Context) ([]AppliedMigration, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT version, applied_at, COALESCE(execution_time_ms, 0), COALESCE(checksum, '')
		FROM schema_migrations
		ORDER BY version ASC`)
	if err != nil {
		return nil, newMigrationError("", "", "query applied versions", err)
	}
	defer rows.Close()

	var out []AppliedMigration
	for rows.Next() {
		var a AppliedMigration
		var appliedAt string
		var ms int64
		if err := rows.Scan(&a.Version, &appliedAt, &ms, &a.Checksum); err != nil {
			return nil, newMigrationError("", "", "scan applied version", err)
		}
		a.AppliedAt, _ = time.Parse(time.RFC3339, appliedAt)
		a.ExecutionTime = time.Duration(ms) * time.Millisecond
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, newMigrationError("", "", "iterate applied versions", err)
	}
	return out, nil
}

func (r *Runner) apply(ctx context.Context, m Migration) (err error) {
	statements := splitStatements(m.SQL)
	if len(statements) == 0 {
		return newMigrationError(m.Version, m.FilePath, "parse SQL", fmt.Errorf("%w: no statements", ErrInvalidMigrationFile))
	}

	start := time.Now()
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return newMigrationError(m.Version, m.FilePath, "begin transaction", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				r.logger.ErrorContext(ctx, "rollback failed", "version", m.Version, "error", rbErr)
			}
		}
	}()

	for i, stmt := range statements {
		if _, err = tx.ExecContext(ctx, stmt); err != nil {
			return newMigrationError(m.Version, m.FilePath, fmt.Sprintf("execute statement %d", i+1), fmt.Errorf("%w: %v", ErrMigrationFailed, err))
		}
	}

	_, err = tx.ExecContext(ctx, r.rebind(`INSERT INTO schema_migrations (version, applied_at, checksum, execution_time_ms) VALUES (?, ?, ?, ?)`),
		m.Version, time.Now().UTC().Format(time.RFC3339), m.Checksum, time.Since(start).Milliseconds())
	if err != nil {
		return newMigrationError(m.Version, m.FilePath, "record migration", err)
	}

	if err = tx.Commit(); err != nil {
		return newMigrationError(m.Version, m.FilePath, "commit transaction", err)
	}
	return nil
}
