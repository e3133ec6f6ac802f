package testfixtures

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/example/chatrooms/internal/persistence"
	"github.com/example/chatrooms/internal/persistence/sqlite"
	"github.com/example/chatrooms/internal/persistence/sqlstore"
)

// SQLiteHarness provides repository access backed by a migrated SQLite
// database in a temporary file.
type SQLiteHarness struct {
	Store     *sqlstore.Store
	Users     persistence.UserRepository
	ChatRooms persistence.ChatRoomRepository

	cleanup func()
}

// Close releases resources associated with the harness.
func (h *SQLiteHarness) Close() {
	if h != nil && h.cleanup != nil {
		h.cleanup()
		h.cleanup = nil
	}
}

// NewSQLiteHarness opens and migrates a temporary database. Cleanup is
// registered with tb; calling Close earlier is allowed.
func NewSQLiteHarness(tb testing.TB, opts ...sqlstore.Option) *SQLiteHarness {
	tb.Helper()

	path := filepath.Join(tb.TempDir(), "chatrooms.db")
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	store, err := sqlite.Open(context.Background(), sqlite.TempFileConfig(path), logger, opts...)
	if err != nil {
		tb.Fatalf("failed to open storage: %v", err)
	}

	harness := &SQLiteHarness{
		Store:     store,
		Users:     store,
		ChatRooms: store,
		cleanup: func() {
			_ = store.Close()
		},
	}

	tb.Cleanup(harness.Close)
	return harness
}
