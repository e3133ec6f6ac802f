// Package sqlstore implements the persistence repositories on database/sql.
// Driver differences are confined to a Dialect supplied by the sqlite and
// postgres packages.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/example/chatrooms/internal/persistence"
)

// timestampLayout is fixed width so text comparison orders chronologically.
const timestampLayout = "2006-01-02T15:04:05.000000Z"

var (
	_ persistence.UserRepository     = (*Store)(nil)
	_ persistence.ChatRoomRepository = (*Store)(nil)
)

// RetryConfig configures retries of lock contention errors.
type RetryConfig struct {
	MaxRetries    int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// DefaultRetryConfig returns 3 retries starting at 100ms, doubling up to 5s.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:    3,
		InitialDelay:  100 * time.Millisecond,
		MaxDelay:      5 * time.Second,
		BackoffFactor: 2.0,
	}
}

// Store is a database/sql backed implementation of the user and chat room
// repositories.
type Store struct {
	db          *sql.DB
	dialect     Dialect
	retry       RetryConfig
	now         func() time.Time
	idGenerator func() string
	logger      *slog.Logger
}

// Option customises a Store.
type Option func(*Store)

// WithClock overrides the time source used for created/updated timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithIDGenerator overrides the generator used for new user and room ids.
func WithIDGenerator(gen func() string) Option {
	return func(s *Store) {
		if gen != nil {
			s.idGenerator = gen
		}
	}
}

// WithRetry overrides the lock contention retry policy.
func WithRetry(cfg RetryConfig) Option {
	return func(s *Store) { s.retry = cfg }
}

// WithLogger sets the logger used for retry diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New wraps an open database.
func New(db *sql.DB, dialect Dialect, opts ...Option) *Store {
	s := &Store{
		db:          db,
		dialect:     dialect,
		retry:       DefaultRetryConfig(),
		now:         time.Now,
		idGenerator: uuid.NewString,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DB returns the underlying database handle.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Dialect returns the store's dialect.
func (s *Store) Dialect() Dialect {
	return s.dialect
}

// Close closes the database.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// TxFunc runs inside a transaction.
type TxFunc func(tx *sql.Tx) error

// WithTransaction runs fn in a transaction, committing when it returns nil
// and rolling back on error or panic.
func (s *Store) WithTransaction(ctx context.Context, fn TxFunc) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", s.dialect.MapError(err))
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return fmt.Errorf("transaction failed (rollback error: %v): %w", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", s.dialect.MapError(err))
	}
	return nil
}

// withRetry runs fn again while the dialect reports lock contention.
func (s *Store) withRetry(ctx context.Context, op string, fn func() error) error {
	delay := s.retry.InitialDelay
	var lastErr error

	for attempt := 0; attempt <= s.retry.MaxRetries; attempt++ {
		if attempt > 0 {
			s.logger.WarnContext(ctx, "retrying database operation", "operation", op, "attempt", attempt, "error", lastErr)
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
			delay = time.Duration(float64(delay) * s.retry.BackoffFactor)
			if delay > s.retry.MaxDelay {
				delay = s.retry.MaxDelay
			}
		}

		err := fn()
		if err == nil {
			return nil
		}
		if !s.dialect.Retryable(err) {
			return err
		}
		lastErr = err
	}

	return fmt.Errorf("%s failed after %d retries: %w", op, s.retry.MaxRetries, lastErr)
}

// inTx combines the retry helper with a transaction; fn may run more than once.
func (s *Store) inTx(ctx context.Context, op string, fn TxFunc) error {
	return s.withRetry(ctx, op, func() error {
		return s.WithTransaction(ctx, fn)
	})
}

func (s *Store) q(query string) string {
	return s.dialect.Rebind(query)
}

func (s *Store) timestamp() string {
	return formatTime(s.now())
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

func parseTime(value string) (time.Time, error) {
	t, err := time.Parse(timestampLayout, value)
	if err != nil {
		// Rows written by hand or older tooling may use plain RFC3339.
		if t2, err2 := time.Parse(time.RFC3339Nano, value); err2 == nil {
			return t2.UTC(), nil
		}
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", value, err)
	}
	return t, nil
}

// queryer is satisfied by *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}
