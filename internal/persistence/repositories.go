package persistence

import "context"

// UserRepository reads local user accounts.
type UserRepository interface {
	GetUser(ctx context.Context, id string) (User, error)
	GetUserByEmail(ctx context.Context, email string) (User, error)
	ListUsersByIDs(ctx context.Context, ids []string) ([]User, error)
}

// ChatRoomRepository stores chat room associations and their participants.
// Participant slices passed in are upserted by email; users that do not
// exist yet are created with the supplied ID.
type ChatRoomRepository interface {
	CreateChatRoom(ctx context.Context, room ChatRoom, participants []User) (ChatRoom, error)
	GetChatRoom(ctx context.Context, id string) (ChatRoom, error)
	UpdateChatRoom(ctx context.Context, room ChatRoom, participants []User) (ChatRoom, error)
	DeleteChatRoom(ctx context.Context, id string) error
	FindMatchingChatRoom(ctx context.Context, match ChatRoomMatch) (ChatRoom, error)
	ListChatRooms(ctx context.Context, filter ChatRoomFilter) ([]ChatRoom, error)
	UpsertParticipants(ctx context.Context, roomID string, participants []User) (ChatRoom, error)
	AddParticipants(ctx context.Context, roomID string, userIDs []string) (ChatRoom, error)
	// RemoveParticipants reports deleted=true when the room lost its last
	// participant and was removed.
	RemoveParticipants(ctx context.Context, roomID string, userIDs []string) (room ChatRoom, deleted bool, err error)
}
