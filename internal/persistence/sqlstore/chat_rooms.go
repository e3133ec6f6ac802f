package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/samber/lo"

	"github.com/example/chatrooms/internal/persistence"
)

const roomColumns = `r.id, r.remote_room_id, r.name, r.object_type, r.object_id, r.tags, r.is_archived, r.is_deleted, r.created_by, r.created_at, r.updated_at`

// CreateChatRoom inserts room and upserts its participants by email in one
// transaction.
func (s *Store) CreateChatRoom(ctx context.Context, room persistence.ChatRoom, participants []persistence.User) (persistence.ChatRoom, error) {
	if room.ID == "" {
		room.ID = s.idGenerator()
	}
	if strings.TrimSpace(room.Name) == "" {
		return persistence.ChatRoom{}, fmt.Errorf("chat room name is required: %w", persistence.ErrConstraintViolation)
	}

	tags, err := encodeTags(room.Tags)
	if err != nil {
		return persistence.ChatRoom{}, err
	}

	err = s.inTx(ctx, "create chat room", func(tx *sql.Tx) error {
		now := s.timestamp()
		_, err := tx.ExecContext(ctx, s.q(`
			INSERT INTO chat_rooms (id, remote_room_id, name, object_type, object_id, tags, is_archived, is_deleted, created_by, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
			room.ID, nullString(room.RemoteRoomID), room.Name, room.ObjectType, room.ObjectID, tags,
			room.IsArchived, false, room.CreatedBy, now, now)
		if err != nil {
			return s.dialect.MapError(err)
		}

		ids, err := s.upsertUsers(ctx, tx, participants)
		if err != nil {
			return err
		}
		return s.linkParticipants(ctx, tx, room.ID, ids)
	})
	if err != nil {
		return persistence.ChatRoom{}, err
	}

	return s.getChatRoom(ctx, s.db, room.ID)
}

// GetChatRoom retrieves a non-deleted room with its participants.
func (s *Store) GetChatRoom(ctx context.Context, id string) (persistence.ChatRoom, error) {
	if id == "" {
		return persistence.ChatRoom{}, persistence.ErrNotFound
	}
	return s.getChatRoom(ctx, s.db, id)
}

// UpdateChatRoom overwrites the room's mutable fields. A nil participants
// slice leaves membership untouched; a non-nil slice replaces it.
func (s *Store) UpdateChatRoom(ctx context.Context, room persistence.ChatRoom, participants []persistence.User) (persistence.ChatRoom, error) {
	if room.ID == "" {
		return persistence.ChatRoom{}, persistence.ErrNotFound
	}

	tags, err := encodeTags(room.Tags)
	if err != nil {
		return persistence.ChatRoom{}, err
	}

	err = s.inTx(ctx, "update chat room", func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, s.q(`
			UPDATE chat_rooms
			SET remote_room_id = ?, name = ?, object_type = ?, object_id = ?, tags = ?, is_archived = ?, is_deleted = ?, updated_at = ?
			WHERE id = ?`),
			nullString(room.RemoteRoomID), room.Name, room.ObjectType, room.ObjectID, tags,
			room.IsArchived, room.IsDeleted, s.timestamp(), room.ID)
		if err != nil {
			return s.dialect.MapError(err)
		}
		if affected, err := result.RowsAffected(); err != nil {
			return fmt.Errorf("rows affected: %w", err)
		} else if affected == 0 {
			return persistence.ErrNotFound
		}

		if participants == nil {
			return nil
		}
		if _, err := tx.ExecContext(ctx, s.q(`DELETE FROM chat_room_participants WHERE chat_room_id = ?`), room.ID); err != nil {
			return s.dialect.MapError(err)
		}
		ids, err := s.upsertUsers(ctx, tx, participants)
		if err != nil {
			return err
		}
		return s.linkParticipants(ctx, tx, room.ID, ids)
	})
	if err != nil {
		return persistence.ChatRoom{}, err
	}

	return s.getChatRoomAny(ctx, s.db, room.ID)
}

// DeleteChatRoom removes the room and its memberships.
func (s *Store) DeleteChatRoom(ctx context.Context, id string) error {
	if id == "" {
		return persistence.ErrNotFound
	}
	return s.inTx(ctx, "delete chat room", func(tx *sql.Tx) error {
		return s.deleteRoom(ctx, tx, id)
	})
}

// FindMatchingChatRoom returns the oldest non-deleted room for the same
// object and tag set that shares at least one participant email.
func (s *Store) FindMatchingChatRoom(ctx context.Context, match persistence.ChatRoomMatch) (persistence.ChatRoom, error) {
	emails := lo.Uniq(lo.Compact(lo.Map(match.Emails, func(e string, _ int) string { return normalizeEmail(e) })))
	if len(emails) == 0 {
		return persistence.ChatRoom{}, persistence.ErrNotFound
	}

	tags, err := encodeTags(match.Tags)
	if err != nil {
		return persistence.ChatRoom{}, err
	}

	query := `
		SELECT ` + roomColumns + `
		FROM chat_rooms r
		WHERE r.object_type = ? AND r.object_id = ? AND r.tags = ? AND r.is_deleted = ?
		  AND EXISTS (
			SELECT 1 FROM chat_room_participants p
			JOIN users u ON u.id = p.user_id
			WHERE p.chat_room_id = r.id AND u.email IN (` + placeholders(len(emails)) + `)
		  )
		ORDER BY r.created_at ASC, r.id ASC
		LIMIT 1`

	args := append([]any{match.ObjectType, match.ObjectID, tags, false}, lo.ToAnySlice(emails)...)
	room, err := scanChatRoom(s.db.QueryRowContext(ctx, s.q(query), args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return persistence.ChatRoom{}, persistence.ErrNotFound
		}
		return persistence.ChatRoom{}, s.dialect.MapError(err)
	}

	rooms := []persistence.ChatRoom{room}
	if err := s.loadParticipants(ctx, s.db, rooms); err != nil {
		return persistence.ChatRoom{}, err
	}
	return rooms[0], nil
}

// ListChatRooms returns non-deleted rooms matching filter, newest first.
func (s *Store) ListChatRooms(ctx context.Context, filter persistence.ChatRoomFilter) ([]persistence.ChatRoom, error) {
	conds := []string{"r.is_deleted = ?"}
	args := []any{false}

	if filter.UserID != "" {
		conds = append(conds, `(r.created_by = ? OR EXISTS (
			SELECT 1 FROM chat_room_participants p WHERE p.chat_room_id = r.id AND p.user_id = ?))`)
		args = append(args, filter.UserID, filter.UserID)
	}
	if filter.Name != "" {
		conds = append(conds, `LOWER(r.name) LIKE ? ESCAPE '\'`)
		args = append(args, containsPattern(filter.Name))
	}
	if filter.ObjectType != "" {
		conds = append(conds, `LOWER(r.object_type) LIKE ? ESCAPE '\'`)
		args = append(args, containsPattern(filter.ObjectType))
	}
	if filter.ObjectID != "" {
		conds = append(conds, `LOWER(r.object_id) LIKE ? ESCAPE '\'`)
		args = append(args, containsPattern(filter.ObjectID))
	}
	if filter.ParticipantEmail != "" {
		conds = append(conds, `EXISTS (
			SELECT 1 FROM chat_room_participants p
			JOIN users u ON u.id = p.user_id
			WHERE p.chat_room_id = r.id AND u.email LIKE ? ESCAPE '\')`)
		args = append(args, containsPattern(filter.ParticipantEmail))
	}
	if filter.Archived != nil {
		conds = append(conds, "r.is_archived = ?")
		args = append(args, *filter.Archived)
	}

	query := `SELECT ` + roomColumns + ` FROM chat_rooms r WHERE ` + strings.Join(conds, " AND ") +
		` ORDER BY r.created_at DESC, r.id ASC`

	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, s.dialect.MapError(err)
	}
	defer rows.Close()

	rooms := []persistence.ChatRoom{}
	for rows.Next() {
		room, err := scanChatRoom(rows)
		if err != nil {
			return nil, err
		}
		rooms = append(rooms, room)
	}
	if err := rows.Err(); err != nil {
		return nil, s.dialect.MapError(err)
	}

	if err := s.loadParticipants(ctx, s.db, rooms); err != nil {
		return nil, err
	}
	return rooms, nil
}

// UpsertParticipants adds participants keyed on email; members already
// present are left as they are.
func (s *Store) UpsertParticipants(ctx context.Context, roomID string, participants []persistence.User) (persistence.ChatRoom, error) {
	err := s.inTx(ctx, "upsert participants", func(tx *sql.Tx) error {
		if err := s.ensureRoom(ctx, tx, roomID); err != nil {
			return err
		}
		ids, err := s.upsertUsers(ctx, tx, participants)
		if err != nil {
			return err
		}
		return s.linkParticipants(ctx, tx, roomID, ids)
	})
	if err != nil {
		return persistence.ChatRoom{}, err
	}
	return s.getChatRoom(ctx, s.db, roomID)
}

// AddParticipants links existing users to the room.
func (s *Store) AddParticipants(ctx context.Context, roomID string, userIDs []string) (persistence.ChatRoom, error) {
	userIDs = lo.Uniq(lo.Compact(userIDs))

	err := s.inTx(ctx, "add participants", func(tx *sql.Tx) error {
		if err := s.ensureRoom(ctx, tx, roomID); err != nil {
			return err
		}
		if len(userIDs) == 0 {
			return nil
		}

		var count int
		query := `SELECT COUNT(*) FROM users WHERE id IN (` + placeholders(len(userIDs)) + `)`
		if err := tx.QueryRowContext(ctx, s.q(query), lo.ToAnySlice(userIDs)...).Scan(&count); err != nil {
			return s.dialect.MapError(err)
		}
		if count != len(userIDs) {
			return fmt.Errorf("unknown user in %v: %w", userIDs, persistence.ErrNotFound)
		}
		return s.linkParticipants(ctx, tx, roomID, userIDs)
	})
	if err != nil {
		return persistence.ChatRoom{}, err
	}
	return s.getChatRoom(ctx, s.db, roomID)
}

// RemoveParticipants unlinks users from the room and deletes the room when
// nobody is left.
func (s *Store) RemoveParticipants(ctx context.Context, roomID string, userIDs []string) (room persistence.ChatRoom, deleted bool, err error) {
	userIDs = lo.Uniq(lo.Compact(userIDs))

	err = s.inTx(ctx, "remove participants", func(tx *sql.Tx) error {
		deleted = false
		if err := s.ensureRoom(ctx, tx, roomID); err != nil {
			return err
		}

		if len(userIDs) > 0 {
			query := `DELETE FROM chat_room_participants WHERE chat_room_id = ? AND user_id IN (` + placeholders(len(userIDs)) + `)`
			args := append([]any{roomID}, lo.ToAnySlice(userIDs)...)
			if _, err := tx.ExecContext(ctx, s.q(query), args...); err != nil {
				return s.dialect.MapError(err)
			}
		}

		var remaining int
		if err := tx.QueryRowContext(ctx, s.q(`SELECT COUNT(*) FROM chat_room_participants WHERE chat_room_id = ?`), roomID).Scan(&remaining); err != nil {
			return s.dialect.MapError(err)
		}
		if remaining > 0 {
			return nil
		}

		deleted = true
		return s.deleteRoom(ctx, tx, roomID)
	})
	if err != nil {
		return persistence.ChatRoom{}, false, err
	}
	if deleted {
		return persistence.ChatRoom{}, true, nil
	}

	room, err = s.getChatRoom(ctx, s.db, roomID)
	return room, false, err
}

func (s *Store) ensureRoom(ctx context.Context, tx *sql.Tx, roomID string) error {
	if roomID == "" {
		return persistence.ErrNotFound
	}
	var one int
	err := tx.QueryRowContext(ctx, s.q(`SELECT 1 FROM chat_rooms WHERE id = ? AND is_deleted = ?`), roomID, false).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return persistence.ErrNotFound
	}
	return s.dialect.MapError(err)
}

func (s *Store) deleteRoom(ctx context.Context, tx *sql.Tx, id string) error {
	if _, err := tx.ExecContext(ctx, s.q(`DELETE FROM chat_room_participants WHERE chat_room_id = ?`), id); err != nil {
		return s.dialect.MapError(err)
	}
	result, err := tx.ExecContext(ctx, s.q(`DELETE FROM chat_rooms WHERE id = ?`), id)
	if err != nil {
		return s.dialect.MapError(err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return persistence.ErrNotFound
	}
	return nil
}

func (s *Store) linkParticipants(ctx context.Context, tx *sql.Tx, roomID string, userIDs []string) error {
	for _, userID := range userIDs {
		_, err := tx.ExecContext(ctx, s.q(`
			INSERT INTO chat_room_participants (chat_room_id, user_id)
			VALUES (?, ?)
			ON CONFLICT DO NOTHING`), roomID, userID)
		if err != nil {
			return s.dialect.MapError(err)
		}
	}
	return nil
}

func (s *Store) getChatRoom(ctx context.Context, q queryer, id string) (persistence.ChatRoom, error) {
	return s.selectChatRoom(ctx, q, `SELECT `+roomColumns+` FROM chat_rooms r WHERE r.id = ? AND r.is_deleted = ?`, id, false)
}

// getChatRoomAny also returns soft-deleted rooms, used right after updates.
func (s *Store) getChatRoomAny(ctx context.Context, q queryer, id string) (persistence.ChatRoom, error) {
	return s.selectChatRoom(ctx, q, `SELECT `+roomColumns+` FROM chat_rooms r WHERE r.id = ?`, id)
}

func (s *Store) selectChatRoom(ctx context.Context, q queryer, query string, args ...any) (persistence.ChatRoom, error) {
	room, err := scanChatRoom(q.QueryRowContext(ctx, s.q(query), args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return persistence.ChatRoom{}, persistence.ErrNotFound
		}
		return persistence.ChatRoom{}, s.dialect.MapError(err)
	}

	rooms := []persistence.ChatRoom{room}
	if err := s.loadParticipants(ctx, q, rooms); err != nil {
		return persistence.ChatRoom{}, err
	}
	return rooms[0], nil
}

// loadParticipants fills Participants on every room with one query.
func (s *Store) loadParticipants(ctx context.Context, q queryer, rooms []persistence.ChatRoom) error {
	if len(rooms) == 0 {
		return nil
	}

	ids := lo.Map(rooms, func(r persistence.ChatRoom, _ int) string { return r.ID })
	query := `
		SELECT p.chat_room_id, u.id, u.email, u.display_name, u.created_at, u.updated_at
		FROM chat_room_participants p
		JOIN users u ON u.id = p.user_id
		WHERE p.chat_room_id IN (` + placeholders(len(ids)) + `)
		ORDER BY u.email ASC`

	rows, err := q.QueryContext(ctx, s.q(query), lo.ToAnySlice(ids)...)
	if err != nil {
		return s.dialect.MapError(err)
	}
	defer rows.Close()

	byRoom := make(map[string][]persistence.User, len(rooms))
	for rows.Next() {
		var roomID string
		var user persistence.User
		var createdAt, updatedAt string
		if err := rows.Scan(&roomID, &user.ID, &user.Email, &user.DisplayName, &createdAt, &updatedAt); err != nil {
			return s.dialect.MapError(err)
		}
		if user.CreatedAt, err = parseTime(createdAt); err != nil {
			return err
		}
		if user.UpdatedAt, err = parseTime(updatedAt); err != nil {
			return err
		}
		byRoom[roomID] = append(byRoom[roomID], user)
	}
	if err := rows.Err(); err != nil {
		return s.dialect.MapError(err)
	}

	for i := range rooms {
		rooms[i].Participants = byRoom[rooms[i].ID]
		if rooms[i].Participants == nil {
			rooms[i].Participants = []persistence.User{}
		}
	}
	return nil
}

func scanChatRoom(row rowScanner) (persistence.ChatRoom, error) {
	var room persistence.ChatRoom
	var remoteID sql.NullString
	var tags, createdAt, updatedAt string

	err := row.Scan(&room.ID, &remoteID, &room.Name, &room.ObjectType, &room.ObjectID, &tags,
		&room.IsArchived, &room.IsDeleted, &room.CreatedBy, &createdAt, &updatedAt)
	if err != nil {
		return persistence.ChatRoom{}, err
	}

	room.RemoteRoomID = remoteID.String
	if err := json.Unmarshal([]byte(tags), &room.Tags); err != nil {
		return persistence.ChatRoom{}, fmt.Errorf("decode tags of room %s: %w", room.ID, err)
	}
	if room.CreatedAt, err = parseTime(createdAt); err != nil {
		return persistence.ChatRoom{}, err
	}
	if room.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return persistence.ChatRoom{}, err
	}
	return room, nil
}

func encodeTags(tags []string) (string, error) {
	encoded, err := json.Marshal(persistence.NormalizeTags(tags))
	if err != nil {
		return "", fmt.Errorf("encode tags: %w", err)
	}
	return string(encoded), nil
}

func containsPattern(value string) string {
	escaped := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(strings.ToLower(strings.TrimSpace(value)))
	return "%" + escaped + "%"
}

func nullString(value string) sql.NullString {
	return sql.NullString{String: value, Valid: value != ""}
}
