package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/samber/lo"

	"github.com/example/chatrooms/internal/persistence"
)

const userColumns = `id, email, display_name, created_at, updated_at`

// GetUser retrieves a user by id.
func (s *Store) GetUser(ctx context.Context, id string) (persistence.User, error) {
	if id == "" {
		return persistence.User{}, persistence.ErrNotFound
	}
	return s.getUser(ctx, s.db, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
}

// GetUserByEmail retrieves a user by email, ignoring case.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (persistence.User, error) {
	normalized := normalizeEmail(email)
	if normalized == "" {
		return persistence.User{}, persistence.ErrNotFound
	}
	return s.getUser(ctx, s.db, `SELECT `+userColumns+` FROM users WHERE email = ?`, normalized)
}

// ListUsersByIDs returns the users that exist among ids, ordered by email.
func (s *Store) ListUsersByIDs(ctx context.Context, ids []string) ([]persistence.User, error) {
	ids = lo.Uniq(lo.Compact(ids))
	if len(ids) == 0 {
		return []persistence.User{}, nil
	}

	query := `SELECT ` + userColumns + ` FROM users WHERE id IN (` + placeholders(len(ids)) + `) ORDER BY email`
	rows, err := s.db.QueryContext(ctx, s.q(query), lo.ToAnySlice(ids)...)
	if err != nil {
		return nil, s.dialect.MapError(err)
	}
	defer rows.Close()

	users := make([]persistence.User, 0, len(ids))
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, s.dialect.MapError(err)
	}
	return users, nil
}

func (s *Store) getUser(ctx context.Context, q queryer, query string, arg string) (persistence.User, error) {
	user, err := scanUser(q.QueryRowContext(ctx, s.q(query), arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return persistence.User{}, persistence.ErrNotFound
		}
		return persistence.User{}, s.dialect.MapError(err)
	}
	return user, nil
}

// upsertUsers creates missing users keyed on email and returns the stored
// ids in input order. Existing users keep their id and display name.
func (s *Store) upsertUsers(ctx context.Context, tx *sql.Tx, users []persistence.User) ([]string, error) {
	ids := make([]string, 0, len(users))
	now := s.timestamp()

	for _, user := range users {
		email := normalizeEmail(user.Email)
		if email == "" {
			return nil, fmt.Errorf("participant email is required: %w", persistence.ErrConstraintViolation)
		}

		id := user.ID
		if id == "" {
			id = s.idGenerator()
		}

		_, err := tx.ExecContext(ctx, s.q(`
			INSERT INTO users (id, email, display_name, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT (email) DO NOTHING`),
			id, email, strings.TrimSpace(user.DisplayName), now, now)
		if err != nil {
			return nil, s.dialect.MapError(err)
		}

		var stored string
		if err := tx.QueryRowContext(ctx, s.q(`SELECT id FROM users WHERE email = ?`), email).Scan(&stored); err != nil {
			return nil, s.dialect.MapError(err)
		}
		ids = append(ids, stored)
	}

	return lo.Uniq(ids), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (persistence.User, error) {
	var user persistence.User
	var createdAt, updatedAt string
	if err := row.Scan(&user.ID, &user.Email, &user.DisplayName, &createdAt, &updatedAt); err != nil {
		return persistence.User{}, err
	}

	var err error
	if user.CreatedAt, err = parseTime(createdAt); err != nil {
		return persistence.User{}, err
	}
	if user.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return persistence.User{}, err
	}
	return user, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
