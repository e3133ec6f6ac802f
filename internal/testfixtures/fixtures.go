package testfixtures

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/example/chatrooms/internal/application"
	"github.com/example/chatrooms/internal/persistence"
)

var (
	participantCounter uint64
	chatRoomCounter    uint64
)

var referenceTime = time.Date(2024, time.January, 2, 15, 4, 5, 0, time.UTC)

// ReferenceTime returns the canonical baseline timestamp used by fixtures.
func ReferenceTime() time.Time {
	return referenceTime
}

// ----------------------------- Participant fixtures -----------------------------

// ParticipantFixture represents a deterministic chat participant.
type ParticipantFixture struct {
	ID        string
	Email     string
	Name      string
	CreatedAt time.Time
}

// ParticipantOption configures the generated participant fixture.
type ParticipantOption func(*ParticipantFixture)

// NewParticipantFixture returns a deterministic participant fixture with optional overrides.
func NewParticipantFixture(opts ...ParticipantOption) ParticipantFixture {
	idx := atomic.AddUint64(&participantCounter, 1)
	id := fmt.Sprintf("user-%03d", idx)
	fixture := ParticipantFixture{
		ID:        id,
		Email:     fmt.Sprintf("%s@example.com", id),
		Name:      fmt.Sprintf("User %03d", idx),
		CreatedAt: referenceTime.Add(time.Duration(idx) * time.Minute),
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithParticipantID overrides the generated participant ID.
func WithParticipantID(id string) ParticipantOption {
	return func(f *ParticipantFixture) {
		f.ID = id
	}
}

// WithParticipantEmail overrides the generated email address.
func WithParticipantEmail(email string) ParticipantOption {
	return func(f *ParticipantFixture) {
		f.Email = email
	}
}

// WithParticipantName overrides the generated display name.
func WithParticipantName(name string) ParticipantOption {
	return func(f *ParticipantFixture) {
		f.Name = name
	}
}

// Application returns the fixture as an application.Participant value.
func (f ParticipantFixture) Application() application.Participant {
	return application.Participant{ID: f.ID, Email: f.Email, Name: f.Name}
}

// Principal returns the fixture as the calling principal.
func (f ParticipantFixture) Principal() application.Principal {
	return application.Principal{UserID: f.ID, Email: f.Email, Name: f.Name}
}

// Input returns the fixture as an application.ParticipantInput.
func (f ParticipantFixture) Input() application.ParticipantInput {
	return application.ParticipantInput{Email: f.Email, Name: f.Name}
}

// Persistence returns the fixture as a persistence.User value.
func (f ParticipantFixture) Persistence() persistence.User {
	return persistence.User{
		ID:          f.ID,
		Email:       f.Email,
		DisplayName: f.Name,
		CreatedAt:   f.CreatedAt,
		UpdatedAt:   f.CreatedAt,
	}
}

// ----------------------------- Chat room fixtures -----------------------------

// ChatRoomFixture represents a deterministic chat room association.
type ChatRoomFixture struct {
	ID           string
	RemoteRoomID string
	Name         string
	ObjectType   string
	ObjectID     string
	Tags         []string
	IsArchived   bool
	CreatedBy    string
	Participants []ParticipantFixture
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ChatRoomOption configures the generated chat room fixture.
type ChatRoomOption func(*ChatRoomFixture)

// NewChatRoomFixture returns a chat room fixture with two participants,
// the first of whom created the room.
func NewChatRoomFixture(opts ...ChatRoomOption) ChatRoomFixture {
	idx := atomic.AddUint64(&chatRoomCounter, 1)
	id := fmt.Sprintf("room-%03d", idx)
	created := referenceTime.Add(time.Duration(idx) * time.Hour)
	participants := []ParticipantFixture{NewParticipantFixture(), NewParticipantFixture()}
	fixture := ChatRoomFixture{
		ID:           id,
		RemoteRoomID: uuid.NewSHA1(uuid.NameSpaceURL, []byte(id)).String(),
		Name:         fmt.Sprintf("Room %03d", idx),
		ObjectType:   "incident",
		ObjectID:     fmt.Sprintf("%d", idx),
		Tags:         []string{},
		CreatedBy:    participants[0].ID,
		Participants: participants,
		CreatedAt:    created,
		UpdatedAt:    created,
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithChatRoomID overrides the generated room ID.
func WithChatRoomID(id string) ChatRoomOption {
	return func(f *ChatRoomFixture) {
		f.ID = id
	}
}

// WithRemoteRoomID overrides the remote room ID; empty means no remote room.
func WithRemoteRoomID(id string) ChatRoomOption {
	return func(f *ChatRoomFixture) {
		f.RemoteRoomID = id
	}
}

// WithChatRoomName overrides the generated room name.
func WithChatRoomName(name string) ChatRoomOption {
	return func(f *ChatRoomFixture) {
		f.Name = name
	}
}

// WithObject sets the object reference.
func WithObject(objectType, objectID string) ChatRoomOption {
	return func(f *ChatRoomFixture) {
		f.ObjectType = objectType
		f.ObjectID = objectID
	}
}

// WithTags sets the normalized tag set.
func WithTags(tags ...string) ChatRoomOption {
	return func(f *ChatRoomFixture) {
		f.Tags = persistence.NormalizeTags(tags)
	}
}

// WithArchived sets the archived flag.
func WithArchived(archived bool) ChatRoomOption {
	return func(f *ChatRoomFixture) {
		f.IsArchived = archived
	}
}

// WithParticipants replaces the participants; the creator becomes the first one.
func WithParticipants(participants ...ParticipantFixture) ChatRoomOption {
	return func(f *ChatRoomFixture) {
		f.Participants = participants
		if len(participants) > 0 {
			f.CreatedBy = participants[0].ID
		}
	}
}

// Application returns the fixture as an application.ChatRoom value.
func (f ChatRoomFixture) Application() application.ChatRoom {
	return application.ChatRoom{
		ID:           f.ID,
		RemoteRoomID: f.RemoteRoomID,
		Name:         f.Name,
		ObjectType:   f.ObjectType,
		ObjectID:     f.ObjectID,
		Tags:         append([]string{}, f.Tags...),
		IsArchived:   f.IsArchived,
		CreatedBy:    f.CreatedBy,
		Participants: lo.Map(f.Participants, func(p ParticipantFixture, _ int) application.Participant { return p.Application() }),
		CreatedAt:    f.CreatedAt,
		UpdatedAt:    f.UpdatedAt,
	}
}

// Persistence returns the fixture as a persistence.ChatRoom and the users
// to upsert alongside it.
func (f ChatRoomFixture) Persistence() (persistence.ChatRoom, []persistence.User) {
	users := lo.Map(f.Participants, func(p ParticipantFixture, _ int) persistence.User { return p.Persistence() })
	return persistence.ChatRoom{
		ID:           f.ID,
		RemoteRoomID: f.RemoteRoomID,
		Name:         f.Name,
		ObjectType:   f.ObjectType,
		ObjectID:     f.ObjectID,
		Tags:         append([]string{}, f.Tags...),
		IsArchived:   f.IsArchived,
		CreatedBy:    f.CreatedBy,
		CreatedAt:    f.CreatedAt,
		UpdatedAt:    f.UpdatedAt,
	}, users
}

// Input returns the fixture as the input for creating it.
func (f ChatRoomFixture) Input() application.ChatRoomInput {
	return application.ChatRoomInput{
		Name:         f.Name,
		ObjectType:   f.ObjectType,
		ObjectID:     f.ObjectID,
		Tags:         append([]string{}, f.Tags...),
		IsArchived:   f.IsArchived,
		Participants: lo.Map(f.Participants, func(p ParticipantFixture, _ int) application.ParticipantInput { return p.Input() }),
	}
}
