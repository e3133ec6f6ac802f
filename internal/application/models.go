package application

import (
	"time"

	"github.com/google/uuid"

	"github.com/example/chatrooms/internal/chatclient"
)

// Principal identifies the user invoking a service method. Email is the
// identity shared with the chat service; UserID is filled in once the
// user has a local participant record.
type Principal struct {
	UserID string
	Email  string
	Name   string
}

// Participant is a local chat room member.
type Participant struct {
	ID    string
	Email string
	Name  string
}

// ChatRoom associates a domain object with a remote chat room.
type ChatRoom struct {
	ID           string
	RemoteRoomID string
	Name         string
	ObjectType   string
	ObjectID     string
	Tags         []string
	IsArchived   bool
	CreatedBy    string
	Participants []Participant
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ChatRoomDetails is a local room plus the remote view for the caller.
// Remote is nil when the room has no remote counterpart or the caller is
// not a remote participant.
type ChatRoomDetails struct {
	Room   ChatRoom
	Remote *chatclient.Room
}

// RemoteMember ties a principal's local room membership to their identity
// in the remote room.
type RemoteMember struct {
	Room         ChatRoom
	RemoteRoomID uuid.UUID
	Participant  chatclient.Participant
}

// ParticipantInput identifies a participant by email.
type ParticipantInput struct {
	Name  string `json:"name"`
	Email string `json:"email" validate:"required,email"`
}

// ChatRoomInput captures caller provided chat room fields.
type ChatRoomInput struct {
	Name         string             `json:"name" validate:"required,max=255"`
	ObjectType   string             `json:"object_type" validate:"required,max=100"`
	ObjectID     string             `json:"object_id" validate:"required,max=255"`
	Tags         []string           `json:"tags" validate:"omitempty,dive,max=100"`
	IsArchived   bool               `json:"is_archived"`
	Participants []ParticipantInput `json:"participants" validate:"required,dive"`
}

// CreateChatRoomParams wraps the data required to create a chat room.
type CreateChatRoomParams struct {
	Principal Principal
	Input     ChatRoomInput
}

// UpdateChatRoomParams describes a partial update; nil fields are left as
// they are and Participants are added by email.
type UpdateChatRoomParams struct {
	Principal    Principal
	RoomID       string
	Name         *string
	Tags         *[]string
	IsArchived   *bool
	Participants []ParticipantInput
}

// ListFilter narrows a user's chat room listing with case-insensitive
// substring matches.
type ListFilter struct {
	Name             string
	ObjectID         string
	ObjectType       string
	ParticipantEmail string
}

// ChatRoomMatch identifies an existing room for idempotent creation.
type ChatRoomMatch struct {
	ObjectType string
	ObjectID   string
	Tags       []string
	Emails     []string
}

// ChatRoomQuery is the repository form of a listing request.
type ChatRoomQuery struct {
	UserID string
	ListFilter
	Archived *bool
}
