package sqlite_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/chatrooms/internal/persistence"
	"github.com/example/chatrooms/internal/persistence/sqlstore"
	"github.com/example/chatrooms/internal/testfixtures"
)

func newHarness(t *testing.T) (*testfixtures.SQLiteHarness, *testfixtures.Clock) {
	t.Helper()
	clock := testfixtures.NewClock(time.Time{})
	ids := testfixtures.NewIDGenerator("rec")
	h := testfixtures.NewSQLiteHarness(t, sqlstore.WithClock(clock.NowFunc()), sqlstore.WithIDGenerator(ids.NextFunc()))
	return h, clock
}

func users(emails ...string) []persistence.User {
	out := make([]persistence.User, 0, len(emails))
	for _, email := range emails {
		out = append(out, persistence.User{Email: email})
	}
	return out
}

func emailsOf(room persistence.ChatRoom) []string {
	out := make([]string, 0, len(room.Participants))
	for _, p := range room.Participants {
		out = append(out, p.Email)
	}
	return out
}

func TestChatRoomRepository_CreateAndGet(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h, clock := newHarness(t)

	room, err := h.ChatRooms.CreateChatRoom(ctx, persistence.ChatRoom{
		RemoteRoomID: "5f0c2d9e-0000-4000-8000-000000000001",
		Name:         "Invoice 42",
		ObjectType:   "invoice",
		ObjectID:     "42",
		Tags:         []string{"urgent", "billing", "urgent"},
		CreatedBy:    "creator",
	}, users("Alice@Example.com", "bob@example.com", "alice@example.com"))
	require.NoError(t, err)

	assert.NotEmpty(t, room.ID)
	assert.Equal(t, []string{"billing", "urgent"}, room.Tags)
	assert.Equal(t, []string{"alice@example.com", "bob@example.com"}, emailsOf(room))
	assert.True(t, room.CreatedAt.Equal(clock.Now()))

	fetched, err := h.ChatRooms.GetChatRoom(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, room.RemoteRoomID, fetched.RemoteRoomID)
	assert.Equal(t, "invoice", fetched.ObjectType)

	alice, err := h.Users.GetUserByEmail(ctx, "ALICE@example.com")
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", alice.Email)

	_, err = h.ChatRooms.GetChatRoom(ctx, "missing")
	assert.ErrorIs(t, err, persistence.ErrNotFound)
}

func TestChatRoomRepository_ParticipantsAreUpsertedByEmail(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h, _ := newHarness(t)

	first, err := h.ChatRooms.CreateChatRoom(ctx, persistence.ChatRoom{Name: "one"},
		[]persistence.User{{ID: "u-alice", Email: "alice@example.com", DisplayName: "Alice"}})
	require.NoError(t, err)

	second, err := h.ChatRooms.CreateChatRoom(ctx, persistence.ChatRoom{Name: "two"},
		[]persistence.User{{ID: "ignored", Email: "ALICE@example.com", DisplayName: "Other"}})
	require.NoError(t, err)

	require.Len(t, first.Participants, 1)
	require.Len(t, second.Participants, 1)
	assert.Equal(t, "u-alice", second.Participants[0].ID)
	assert.Equal(t, "Alice", second.Participants[0].DisplayName)

	listed, err := h.Users.ListUsersByIDs(ctx, []string{"u-alice", "ignored", "u-alice"})
	require.NoError(t, err)
	require.Len(t, listed, 1)
}

func TestChatRoomRepository_FindMatchingChatRoom(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h, clock := newHarness(t)

	existing, err := h.ChatRooms.CreateChatRoom(ctx, persistence.ChatRoom{
		Name: "Deal", ObjectType: "deal", ObjectID: "7", Tags: []string{"b", "a"},
	}, users("alice@example.com", "bob@example.com"))
	require.NoError(t, err)
	clock.Advance(time.Minute)

	tests := []struct {
		name    string
		match   persistence.ChatRoomMatch
		wantHit bool
	}{
		{
			name:    "same object, tag set and overlapping email",
			match:   persistence.ChatRoomMatch{ObjectType: "deal", ObjectID: "7", Tags: []string{"a", "b"}, Emails: []string{"BOB@example.com", "carol@example.com"}},
			wantHit: true,
		},
		{
			name:  "different tag set",
			match: persistence.ChatRoomMatch{ObjectType: "deal", ObjectID: "7", Tags: []string{"a"}, Emails: []string{"bob@example.com"}},
		},
		{
			name:  "no overlapping email",
			match: persistence.ChatRoomMatch{ObjectType: "deal", ObjectID: "7", Tags: []string{"a", "b"}, Emails: []string{"carol@example.com"}},
		},
		{
			name:  "different object",
			match: persistence.ChatRoomMatch{ObjectType: "deal", ObjectID: "8", Tags: []string{"a", "b"}, Emails: []string{"bob@example.com"}},
		},
		{
			name:  "no emails",
			match: persistence.ChatRoomMatch{ObjectType: "deal", ObjectID: "7", Tags: []string{"a", "b"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			found, err := h.ChatRooms.FindMatchingChatRoom(ctx, tt.match)
			if !tt.wantHit {
				assert.ErrorIs(t, err, persistence.ErrNotFound)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, existing.ID, found.ID)
		})
	}

	t.Run("soft deleted rooms never match", func(t *testing.T) {
		existing.IsDeleted = true
		_, err := h.ChatRooms.UpdateChatRoom(ctx, existing, nil)
		require.NoError(t, err)

		_, err = h.ChatRooms.FindMatchingChatRoom(ctx, tests[0].match)
		assert.ErrorIs(t, err, persistence.ErrNotFound)
	})
}

func TestChatRoomRepository_ListChatRooms(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h, clock := newHarness(t)

	mine, err := h.ChatRooms.CreateChatRoom(ctx, persistence.ChatRoom{
		Name: "Quarterly Sales", ObjectType: "report", ObjectID: "Q1-2024", CreatedBy: "creator",
	}, users("dave@example.com", "erin@example.com"))
	require.NoError(t, err)
	clock.Advance(time.Minute)

	shared, err := h.ChatRooms.CreateChatRoom(ctx, persistence.ChatRoom{
		Name: "Support 100%", ObjectType: "ticket", ObjectID: "9", CreatedBy: "someone-else", IsArchived: true,
	}, users("alice@example.com", "bob@example.com"))
	require.NoError(t, err)
	clock.Advance(time.Minute)

	_, err = h.ChatRooms.CreateChatRoom(ctx, persistence.ChatRoom{
		Name: "Unrelated", ObjectType: "ticket", ObjectID: "10", CreatedBy: "someone-else",
	}, users("zed@example.com", "yan@example.com"))
	require.NoError(t, err)

	alice, err := h.Users.GetUserByEmail(ctx, "alice@example.com")
	require.NoError(t, err)

	archived := true
	tests := []struct {
		name   string
		filter persistence.ChatRoomFilter
		want   []string
	}{
		{name: "created by", filter: persistence.ChatRoomFilter{UserID: "creator"}, want: []string{mine.ID}},
		{name: "participant", filter: persistence.ChatRoomFilter{UserID: alice.ID}, want: []string{shared.ID}},
		{name: "name contains ignoring case", filter: persistence.ChatRoomFilter{Name: "sales"}, want: []string{mine.ID}},
		{name: "literal percent", filter: persistence.ChatRoomFilter{Name: "100%"}, want: []string{shared.ID}},
		{name: "object id contains", filter: persistence.ChatRoomFilter{ObjectID: "q1"}, want: []string{mine.ID}},
		{name: "participant email contains", filter: persistence.ChatRoomFilter{ParticipantEmail: "BOB@"}, want: []string{shared.ID}},
		{name: "archived only", filter: persistence.ChatRoomFilter{Archived: &archived}, want: []string{shared.ID}},
		{name: "object type newest first", filter: persistence.ChatRoomFilter{ObjectType: "ticket"}, want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rooms, err := h.ChatRooms.ListChatRooms(ctx, tt.filter)
			require.NoError(t, err)
			if tt.want == nil {
				require.Len(t, rooms, 2)
				assert.Equal(t, "Unrelated", rooms[0].Name)
				return
			}
			ids := make([]string, 0, len(rooms))
			for _, r := range rooms {
				ids = append(ids, r.ID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestChatRoomRepository_ParticipantMaintenance(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h, _ := newHarness(t)

	room, err := h.ChatRooms.CreateChatRoom(ctx, persistence.ChatRoom{Name: "Ops"}, users("alice@example.com", "bob@example.com"))
	require.NoError(t, err)

	room, err = h.ChatRooms.UpsertParticipants(ctx, room.ID, users("carol@example.com", "alice@example.com"))
	require.NoError(t, err)
	assert.Equal(t, []string{"alice@example.com", "bob@example.com", "carol@example.com"}, emailsOf(room))

	_, err = h.ChatRooms.AddParticipants(ctx, room.ID, []string{"no-such-user"})
	assert.ErrorIs(t, err, persistence.ErrNotFound)

	other, err := h.ChatRooms.CreateChatRoom(ctx, persistence.ChatRoom{Name: "Other"}, users("dave@example.com"))
	require.NoError(t, err)
	dave := other.Participants[0]

	room, err = h.ChatRooms.AddParticipants(ctx, room.ID, []string{dave.ID, dave.ID})
	require.NoError(t, err)
	assert.Len(t, room.Participants, 4)

	ids := make([]string, 0, len(room.Participants))
	for _, p := range room.Participants {
		ids = append(ids, p.ID)
	}

	room, deleted, err := h.ChatRooms.RemoveParticipants(ctx, room.ID, ids[:2])
	require.NoError(t, err)
	assert.False(t, deleted)
	assert.Len(t, room.Participants, 2)

	_, deleted, err = h.ChatRooms.RemoveParticipants(ctx, room.ID, ids[2:])
	require.NoError(t, err)
	assert.True(t, deleted)

	_, err = h.ChatRooms.GetChatRoom(ctx, room.ID)
	assert.ErrorIs(t, err, persistence.ErrNotFound)

	_, _, err = h.ChatRooms.RemoveParticipants(ctx, room.ID, ids)
	assert.ErrorIs(t, err, persistence.ErrNotFound)
}

func TestChatRoomRepository_UpdateAndDelete(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h, clock := newHarness(t)

	room, err := h.ChatRooms.CreateChatRoom(ctx, persistence.ChatRoom{Name: "Draft", Tags: []string{"x"}}, users("alice@example.com", "bob@example.com"))
	require.NoError(t, err)

	clock.Advance(time.Hour)
	room.Name = "Final"
	room.Tags = []string{"y"}
	room.IsArchived = true
	updated, err := h.ChatRooms.UpdateChatRoom(ctx, room, users("carol@example.com"))
	require.NoError(t, err)
	assert.Equal(t, "Final", updated.Name)
	assert.Equal(t, []string{"y"}, updated.Tags)
	assert.True(t, updated.IsArchived)
	assert.Equal(t, []string{"carol@example.com"}, emailsOf(updated))
	assert.True(t, updated.UpdatedAt.After(updated.CreatedAt))

	_, err = h.ChatRooms.UpdateChatRoom(ctx, persistence.ChatRoom{ID: "missing", Name: "x"}, nil)
	assert.ErrorIs(t, err, persistence.ErrNotFound)

	require.NoError(t, h.ChatRooms.DeleteChatRoom(ctx, room.ID))
	err = h.ChatRooms.DeleteChatRoom(ctx, room.ID)
	assert.True(t, errors.Is(err, persistence.ErrNotFound))
}

func TestChatRoomRepository_DuplicateRemoteRoomID(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h, _ := newHarness(t)

	remoteID := "5f0c2d9e-0000-4000-8000-000000000009"
	_, err := h.ChatRooms.CreateChatRoom(ctx, persistence.ChatRoom{Name: "a", RemoteRoomID: remoteID}, users("alice@example.com"))
	require.NoError(t, err)

	_, err = h.ChatRooms.CreateChatRoom(ctx, persistence.ChatRoom{Name: "b", RemoteRoomID: remoteID}, users("bob@example.com"))
	assert.ErrorIs(t, err, persistence.ErrDuplicate)

	rooms, err := h.ChatRooms.ListChatRooms(ctx, persistence.ChatRoomFilter{})
	require.NoError(t, err)
	assert.Len(t, rooms, 1)
}
