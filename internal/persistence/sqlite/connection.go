package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/example/chatrooms/internal/persistence"
)

// Config holds SQLite connection settings.
type Config struct {
	// DSN is a file path or a "file:" URI understood by modernc.org/sqlite.
	DSN string

	// BusyTimeout sets how long to wait for database locks.
	BusyTimeout time.Duration

	// JournalMode sets the SQLite journal mode (WAL, DELETE, MEMORY, ...).
	JournalMode string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DefaultConfig returns settings suitable for the server binary.
func DefaultConfig(dsn string) Config {
	return Config{
		DSN:             dsn,
		BusyTimeout:     30 * time.Second,
		JournalMode:     "WAL",
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
	}
}

// TempFileConfig returns settings for tests backed by a temporary file.
func TempFileConfig(path string) Config {
	return Config{
		DSN:             path,
		BusyTimeout:     5 * time.Second,
		JournalMode:     "MEMORY",
		MaxOpenConns:    1,
		MaxIdleConns:    1,
		ConnMaxLifetime: time.Minute,
	}
}

var validJournalModes = map[string]bool{
	"DELETE":   true,
	"TRUNCATE": true,
	"PERSIST":  true,
	"MEMORY":   true,
	"WAL":      true,
	"OFF":      true,
}

// Validate checks the configuration.
func (c Config) Validate() error {
	var problems []string
	if strings.TrimSpace(c.DSN) == "" {
		problems = append(problems, "DSN cannot be empty")
	}
	if c.BusyTimeout < 0 {
		problems = append(problems, "BusyTimeout cannot be negative")
	}
	if c.JournalMode != "" && !validJournalModes[strings.ToUpper(c.JournalMode)] {
		problems = append(problems, fmt.Sprintf("invalid journal mode: %s", c.JournalMode))
	}
	if c.MaxOpenConns < 0 || c.MaxIdleConns < 0 || c.ConnMaxLifetime < 0 {
		problems = append(problems, "connection pool settings cannot be negative")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid SQLite configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// connectionString adds busy_timeout, foreign_keys and journal_mode pragmas
// so that every pooled connection gets them.
func (c Config) connectionString() string {
	dsn := c.DSN
	if !strings.HasPrefix(dsn, "file:") {
		dsn = "file:" + dsn
	}

	base, rawQuery, _ := strings.Cut(dsn, "?")
	values, err := url.ParseQuery(rawQuery)
	if err != nil {
		values = url.Values{}
	}

	existing := strings.Join(values["_pragma"], ",")
	addPragma := func(name, value string) {
		if !strings.Contains(existing, name) {
			values.Add("_pragma", fmt.Sprintf("%s(%s)", name, value))
		}
	}
	if c.BusyTimeout > 0 {
		addPragma("busy_timeout", fmt.Sprint(c.BusyTimeout.Milliseconds()))
	}
	addPragma("foreign_keys", "1")
	if c.JournalMode != "" {
		addPragma("journal_mode", strings.ToUpper(c.JournalMode))
	}

	return base + "?" + values.Encode()
}

func openDB(cfg Config) (*sql.DB, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", cfg.connectionString())
	if err != nil {
		return nil, fmt.Errorf("open SQLite database: %w", err)
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
	return db, nil
}

// Dialect adapts the shared store to SQLite.
type Dialect struct{}

// Name implements sqlstore.Dialect.
func (Dialect) Name() string { return "sqlite" }

// Rebind implements sqlstore.Dialect; SQLite accepts "?" as is.
func (Dialect) Rebind(query string) string { return query }

// MapError maps SQLite result codes to persistence errors.
func (Dialect) MapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return persistence.ErrNotFound
	}

	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return fmt.Errorf("%w: %v", persistence.ErrDuplicate, err)
		case sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY, sqlite3.SQLITE_CONSTRAINT_CHECK, sqlite3.SQLITE_CONSTRAINT_NOTNULL:
			return fmt.Errorf("%w: %v", persistence.ErrConstraintViolation, err)
		}
	}

	msg := err.Error()
	switch {
	case strings.Contains(msg, "UNIQUE constraint failed"):
		return fmt.Errorf("%w: %v", persistence.ErrDuplicate, err)
	case strings.Contains(msg, "FOREIGN KEY constraint failed"), strings.Contains(msg, "CHECK constraint failed"):
		return fmt.Errorf("%w: %v", persistence.ErrConstraintViolation, err)
	}
	return err
}

// Retryable reports SQLITE_BUSY and SQLITE_LOCKED.
func (Dialect) Retryable(err error) bool {
	if err == nil {
		return false
	}
	var se *sqlite.Error
	if errors.As(err, &se) {
		primary := se.Code() & 0xff
		return primary == sqlite3.SQLITE_BUSY || primary == sqlite3.SQLITE_LOCKED
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "database is busy")
}
