package testfixtures

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChatRoomFixtureDefaults(t *testing.T) {
	fixture := NewChatRoomFixture()

	require.Len(t, fixture.Participants, 2)
	assert.Equal(t, fixture.Participants[0].ID, fixture.CreatedBy)
	assert.NotEmpty(t, fixture.RemoteRoomID)

	input := fixture.Input()
	assert.Equal(t, fixture.Name, input.Name)
	require.Len(t, input.Participants, 2)
	assert.Equal(t, fixture.Participants[1].Email, input.Participants[1].Email)
}

func TestChatRoomFixtureOptions(t *testing.T) {
	owner := NewParticipantFixture(WithParticipantID("owner"), WithParticipantEmail("owner@example.com"))
	fixture := NewChatRoomFixture(
		WithChatRoomID("room-x"),
		WithObject("ticket", "42"),
		WithTags(" b", "a", "b"),
		WithParticipants(owner),
		WithArchived(true),
	)

	room := fixture.Application()
	assert.Equal(t, "room-x", room.ID)
	assert.Equal(t, "ticket", room.ObjectType)
	assert.Equal(t, []string{"a", "b"}, room.Tags)
	assert.Equal(t, "owner", room.CreatedBy)
	assert.True(t, room.IsArchived)
}

func TestChatRoomFixturePersists(t *testing.T) {
	harness := NewSQLiteHarness(t)
	fixture := NewChatRoomFixture(WithTags("ops"))
	room, users := fixture.Persistence()

	ctx := context.Background()
	_, err := harness.ChatRooms.CreateChatRoom(ctx, room, users)
	require.NoError(t, err)

	stored, err := harness.ChatRooms.GetChatRoom(ctx, fixture.ID)
	require.NoError(t, err)
	assert.Equal(t, fixture.RemoteRoomID, stored.RemoteRoomID)
	assert.Equal(t, []string{"ops"}, stored.Tags)
	assert.Len(t, stored.Participants, 2)

	user, err := harness.Users.GetUserByEmail(ctx, fixture.Participants[1].Email)
	require.NoError(t, err)
	assert.Equal(t, fixture.Participants[1].ID, user.ID)
}
