package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/example/chatrooms/internal/chatclient"
	"github.com/example/chatrooms/internal/createguard"
	"github.com/example/chatrooms/internal/objecttype"
	"github.com/example/chatrooms/internal/persistence"
)

// ChatRoomRepository captures the persistence operations needed by the service.
type ChatRoomRepository interface {
	// CreateChatRoom stores room and upserts room.Participants by email in one transaction.
	CreateChatRoom(ctx context.Context, room ChatRoom) (ChatRoom, error)
	GetChatRoom(ctx context.Context, id string) (ChatRoom, error)
	// UpdateChatRoom stores room's fields; a non-nil participants slice replaces the membership.
	UpdateChatRoom(ctx context.Context, room ChatRoom, participants []Participant) (ChatRoom, error)
	FindMatchingChatRoom(ctx context.Context, match ChatRoomMatch) (ChatRoom, error)
	ListChatRooms(ctx context.Context, query ChatRoomQuery) ([]ChatRoom, error)
	UpsertParticipants(ctx context.Context, roomID string, participants []Participant) (ChatRoom, error)
	AddParticipants(ctx context.Context, roomID string, userIDs []string) (ChatRoom, error)
	RemoveParticipants(ctx context.Context, roomID string, userIDs []string) (ChatRoom, bool, error)
	GetParticipantByEmail(ctx context.Context, email string) (Participant, error)
}

// RemoteRooms is the part of the chat service client the service calls.
type RemoteRooms interface {
	CreateRoom(ctx context.Context, input chatclient.RoomInput) (chatclient.Room, error)
	GetRoom(ctx context.Context, roomID uuid.UUID, opts chatclient.GetRoomOptions) (chatclient.Room, error)
	UpdateRoom(ctx context.Context, roomID uuid.UUID, update chatclient.RoomUpdate) (chatclient.Room, error)
	DeleteRoom(ctx context.Context, roomID, participantID uuid.UUID) error
	ParticipantByEmail(ctx context.Context, roomID uuid.UUID, email string) (chatclient.Participant, bool, error)
}

// ObjectResolver looks up the domain object a room is attached to.
type ObjectResolver interface {
	ResolveByID(ctx context.Context, typeName, id string) (objecttype.Record, bool)
}

// CreateGuard serialises room creation for the same object and tag set.
type CreateGuard interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// ChatRoomService orchestrates validation, remote calls and persistence for chat rooms.
type ChatRoomService struct {
	rooms       ChatRoomRepository
	remote      RemoteRooms
	objects     ObjectResolver
	guard       CreateGuard
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
}

// ChatRoomServiceOption configures optional collaborators.
type ChatRoomServiceOption func(*ChatRoomService)

// WithObjectResolver makes CreateChatRoom reject objects the resolver cannot find.
func WithObjectResolver(resolver ObjectResolver) ChatRoomServiceOption {
	return func(s *ChatRoomService) { s.objects = resolver }
}

// WithCreateGuard replaces the default no-op creation guard.
func WithCreateGuard(guard CreateGuard) ChatRoomServiceOption {
	return func(s *ChatRoomService) {
		if guard != nil {
			s.guard = guard
		}
	}
}

// NewChatRoomService constructs a chat room service with the provided dependencies.
func NewChatRoomService(rooms ChatRoomRepository, remote RemoteRooms, idGenerator func() string, now func() time.Time, opts ...ChatRoomServiceOption) *ChatRoomService {
	return NewChatRoomServiceWithLogger(rooms, remote, idGenerator, now, nil, opts...)
}

// NewChatRoomServiceWithLogger constructs a chat room service with a specified logger.
func NewChatRoomServiceWithLogger(rooms ChatRoomRepository, remote RemoteRooms, idGenerator func() string, now func() time.Time, logger *slog.Logger, opts ...ChatRoomServiceOption) *ChatRoomService {
	if idGenerator == nil {
		idGenerator = uuid.NewString
	}
	if now == nil {
		now = time.Now
	}
	s := &ChatRoomService{
		rooms:       rooms,
		remote:      remote,
		guard:       createguard.Noop{},
		idGenerator: idGenerator,
		now:         now,
		logger:      defaultLogger(logger),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *ChatRoomService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "ChatRoomService", operation, attrs...)
}

func (s *ChatRoomService) ready() error {
	if s == nil {
		return fmt.Errorf("ChatRoomService is nil")
	}
	if s.rooms == nil {
		return fmt.Errorf("chat room repository not configured")
	}
	return nil
}

// CreateChatRoom returns the existing room for the same object, tag set and
// an overlapping participant, or creates the remote room and then records
// it locally. created reports which of the two happened.
//
// The remote room is created before the local transaction runs. When the
// local write fails afterwards the remote room is left behind and its id is
// logged.
func (s *ChatRoomService) CreateChatRoom(ctx context.Context, params CreateChatRoomParams) (room ChatRoom, created bool, err error) {
	if err = s.ready(); err != nil {
		return
	}
	if s.remote == nil {
		err = fmt.Errorf("remote chat client not configured")
		return
	}

	input := params.Input
	logger := s.loggerWith(ctx, "CreateChatRoom",
		"principal_email", params.Principal.Email,
		"object_type", input.ObjectType,
		"object_id", input.ObjectID,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to create chat room", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("chat_room_id", room.ID, "remote_room_id", room.RemoteRoomID, "created", created).InfoContext(ctx, "chat room ready")
	}()

	if normalizeEmail(params.Principal.Email) == "" {
		err = ErrUnauthorized
		return
	}

	vErr := validateChatRoomInput(input)
	if !vErr.HasErrors() && s.objects != nil {
		if _, ok := s.objects.ResolveByID(ctx, input.ObjectType, input.ObjectID); !ok {
			vErr.add("object_id", "object not found")
		}
	}
	if vErr.HasErrors() {
		err = vErr
		return
	}

	var creatorID string
	creatorID, err = s.principalUserID(ctx, params.Principal)
	if err != nil {
		return
	}
	if creatorID == "" {
		creatorID = s.idGenerator()
	}

	participants := s.participantsWithCreator(input.Participants, params.Principal, creatorID)
	emails := lo.Map(participants, func(p Participant, _ int) string { return p.Email })
	tags := persistence.NormalizeTags(input.Tags)
	objectType := strings.TrimSpace(input.ObjectType)
	objectID := strings.TrimSpace(input.ObjectID)

	var release func()
	release, err = s.guard.Acquire(ctx, createguard.Key(objectType, objectID, tags))
	if err != nil {
		return
	}
	defer release()

	room, err = s.rooms.FindMatchingChatRoom(ctx, ChatRoomMatch{
		ObjectType: objectType,
		ObjectID:   objectID,
		Tags:       tags,
		Emails:     emails,
	})
	if err == nil {
		return room, false, nil
	}
	if err = mapChatRoomRepoError(err); !errors.Is(err, ErrNotFound) {
		return
	}
	err = nil

	var remote chatclient.Room
	remote, err = s.remote.CreateRoom(ctx, chatclient.RoomInput{
		Name: strings.TrimSpace(input.Name),
		Participants: lo.Map(participants, func(p Participant, _ int) chatclient.ParticipantInput {
			return chatclient.ParticipantInput{Name: p.Name, Email: p.Email}
		}),
		Tags:       tags,
		IsArchived: input.IsArchived,
		ObjectType: objectType,
		ObjectID:   objectID,
	})
	if err != nil {
		return
	}
	if remote.ID == uuid.Nil {
		err = ErrRemoteRoomMissing
		return
	}

	now := s.now()
	room, err = s.rooms.CreateChatRoom(ctx, ChatRoom{
		ID:           s.idGenerator(),
		RemoteRoomID: remote.ID.String(),
		Name:         strings.TrimSpace(input.Name),
		ObjectType:   objectType,
		ObjectID:     objectID,
		Tags:         tags,
		IsArchived:   input.IsArchived,
		CreatedBy:    creatorID,
		Participants: participants,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		logger.ErrorContext(ctx, "remote chat room created but not recorded locally", "orphaned_remote_room_id", remote.ID.String(), "error", err)
		err = mapChatRoomRepoError(err)
		return
	}

	return room, true, nil
}

// GetChatRoom returns a stored chat room.
func (s *ChatRoomService) GetChatRoom(ctx context.Context, id string) (room ChatRoom, err error) {
	if err = s.ready(); err != nil {
		return
	}
	room, err = s.rooms.GetChatRoom(ctx, id)
	return room, mapChatRoomRepoError(err)
}

// GetChatRoomDetails returns the room with the remote view for the
// principal, including the last lastN messages when lastN is set.
func (s *ChatRoomService) GetChatRoomDetails(ctx context.Context, principal Principal, id string, lastN *int) (details ChatRoomDetails, err error) {
	if err = s.ready(); err != nil {
		return
	}

	logger := s.loggerWith(ctx, "GetChatRoomDetails", "principal_email", principal.Email, "chat_room_id", id)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to load chat room", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("has_remote", details.Remote != nil).InfoContext(ctx, "chat room loaded")
	}()

	details.Room, err = s.memberRoom(ctx, principal, id)
	if err != nil || s.remote == nil {
		return
	}

	remoteID, parseErr := uuid.Parse(details.Room.RemoteRoomID)
	if parseErr != nil {
		return
	}
	participant, ok := s.RemoteParticipantByEmail(ctx, details.Room.RemoteRoomID, principal.Email)
	if !ok {
		return
	}

	var remote chatclient.Room
	remote, err = s.remote.GetRoom(ctx, remoteID, chatclient.GetRoomOptions{
		ParticipantID: participant.ID,
		LastNMessages: lastN,
	})
	if err != nil {
		return
	}
	details.Remote = &remote
	return
}

// UpdateChatRoom applies a partial update remotely and then locally.
func (s *ChatRoomService) UpdateChatRoom(ctx context.Context, params UpdateChatRoomParams) (room ChatRoom, err error) {
	if err = s.ready(); err != nil {
		return
	}

	logger := s.loggerWith(ctx, "UpdateChatRoom", "principal_email", params.Principal.Email, "chat_room_id", params.RoomID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to update chat room", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "chat room updated")
	}()

	var existing ChatRoom
	existing, err = s.memberRoom(ctx, params.Principal, params.RoomID)
	if err != nil {
		return
	}

	vErr := &ValidationError{}
	if params.Name != nil && strings.TrimSpace(*params.Name) == "" {
		vErr.add("name", "is required")
	}
	if len(params.Participants) > 0 {
		vErr.merge(validateParticipantInputs(params.Participants))
	}
	if vErr.HasErrors() {
		err = vErr
		return
	}

	updated := existing
	update := chatclient.RoomUpdate{IsArchived: params.IsArchived}
	if params.Name != nil {
		name := strings.TrimSpace(*params.Name)
		updated.Name = name
		update.Name = &name
	}
	if params.Tags != nil {
		tags := persistence.NormalizeTags(*params.Tags)
		updated.Tags = tags
		update.Tags = &tags
	}
	if params.IsArchived != nil {
		updated.IsArchived = *params.IsArchived
	}

	var members []Participant
	if len(params.Participants) > 0 {
		members = mergeParticipants(existing.Participants, params.Participants)
		update.Participants = lo.Map(params.Participants, func(p ParticipantInput, _ int) chatclient.ParticipantInput {
			return chatclient.ParticipantInput{Name: strings.TrimSpace(p.Name), Email: normalizeEmail(p.Email)}
		})
	}

	if remoteID, parseErr := uuid.Parse(existing.RemoteRoomID); parseErr == nil && s.remote != nil {
		if _, err = s.remote.UpdateRoom(ctx, remoteID, update); err != nil {
			return
		}
	}

	updated.UpdatedAt = s.now()
	room, err = s.rooms.UpdateChatRoom(ctx, updated, members)
	err = mapChatRoomRepoError(err)
	return
}

// LeaveChatRoom removes the principal from the room locally and then from
// the remote room. deleted reports that the local room had no participants
// left and was removed.
func (s *ChatRoomService) LeaveChatRoom(ctx context.Context, principal Principal, id string) (deleted bool, err error) {
	if err = s.ready(); err != nil {
		return
	}

	logger := s.loggerWith(ctx, "LeaveChatRoom", "principal_email", principal.Email, "chat_room_id", id)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to leave chat room", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("deleted", deleted).InfoContext(ctx, "chat room left")
	}()

	var room ChatRoom
	room, err = s.memberRoom(ctx, principal, id)
	if err != nil {
		return
	}

	member, isParticipant := lo.Find(room.Participants, func(p Participant) bool {
		return strings.EqualFold(p.Email, principal.Email)
	})
	if !isParticipant {
		err = ErrNotFound
		return
	}

	// Resolve the remote participant before the local membership disappears.
	var remoteParticipant chatclient.Participant
	var onRemote bool
	if room.RemoteRoomID != "" {
		remoteParticipant, onRemote = s.RemoteParticipantByEmail(ctx, room.RemoteRoomID, principal.Email)
	}

	_, deleted, err = s.rooms.RemoveParticipants(ctx, room.ID, []string{member.ID})
	if err != nil {
		err = mapChatRoomRepoError(err)
		return
	}

	if onRemote {
		remoteID, _ := uuid.Parse(room.RemoteRoomID)
		err = s.remote.DeleteRoom(ctx, remoteID, remoteParticipant.ID)
	}
	return
}

// AddParticipants links existing local users to the room.
func (s *ChatRoomService) AddParticipants(ctx context.Context, principal Principal, id string, userIDs []string) (room ChatRoom, err error) {
	if err = s.ready(); err != nil {
		return
	}

	logger := s.loggerWith(ctx, "AddParticipants", "principal_email", principal.Email, "chat_room_id", id, "count", len(userIDs))
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to add participants", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "participants added")
	}()

	if len(lo.Compact(userIDs)) == 0 {
		vErr := &ValidationError{}
		vErr.add("participant_ids", "at least one participant id is required")
		err = vErr
		return
	}
	if _, err = s.memberRoom(ctx, principal, id); err != nil {
		return
	}

	room, err = s.rooms.AddParticipants(ctx, id, userIDs)
	err = mapChatRoomRepoError(err)
	return
}

// RemoveParticipants unlinks users from the room; the room is deleted when
// none remain.
func (s *ChatRoomService) RemoveParticipants(ctx context.Context, principal Principal, id string, userIDs []string) (room ChatRoom, deleted bool, err error) {
	if err = s.ready(); err != nil {
		return
	}

	logger := s.loggerWith(ctx, "RemoveParticipants", "principal_email", principal.Email, "chat_room_id", id, "count", len(userIDs))
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to remove participants", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("deleted", deleted).InfoContext(ctx, "participants removed")
	}()

	if _, err = s.memberRoom(ctx, principal, id); err != nil {
		return
	}

	room, deleted, err = s.rooms.RemoveParticipants(ctx, id, userIDs)
	err = mapChatRoomRepoError(err)
	return
}

// UpsertParticipants adds participants by email; repeating a call is harmless.
func (s *ChatRoomService) UpsertParticipants(ctx context.Context, id string, participants []ParticipantInput) (room ChatRoom, err error) {
	if err = s.ready(); err != nil {
		return
	}

	logger := s.loggerWith(ctx, "UpsertParticipants", "chat_room_id", id, "count", len(participants))
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to upsert participants", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "participants upserted")
	}()

	if vErr := validateParticipantInputs(participants); vErr.HasErrors() {
		err = vErr
		return
	}

	room, err = s.rooms.UpsertParticipants(ctx, id, toParticipants(participants))
	err = mapChatRoomRepoError(err)
	return
}

// ListChatRoomsForUser returns rooms the principal created or takes part in.
func (s *ChatRoomService) ListChatRoomsForUser(ctx context.Context, principal Principal, filter ListFilter) ([]ChatRoom, error) {
	return s.list(ctx, "ListChatRoomsForUser", principal, filter, nil)
}

// ArchivedChatRooms returns the principal's archived rooms.
func (s *ChatRoomService) ArchivedChatRooms(ctx context.Context, principal Principal) ([]ChatRoom, error) {
	archived := true
	return s.list(ctx, "ArchivedChatRooms", principal, ListFilter{}, &archived)
}

func (s *ChatRoomService) list(ctx context.Context, operation string, principal Principal, filter ListFilter, archived *bool) (rooms []ChatRoom, err error) {
	if err = s.ready(); err != nil {
		return
	}

	logger := s.loggerWith(ctx, operation, "principal_email", principal.Email)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to list chat rooms", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("result_count", len(rooms)).InfoContext(ctx, "chat rooms listed")
	}()

	var userID string
	userID, err = s.principalUserID(ctx, principal)
	if err != nil {
		return
	}
	if userID == "" {
		return []ChatRoom{}, nil
	}

	rooms, err = s.rooms.ListChatRooms(ctx, ChatRoomQuery{UserID: userID, ListFilter: filter, Archived: archived})
	err = mapChatRoomRepoError(err)
	return
}

// RemoteMember resolves the principal's remote participant in a room they
// belong to locally. Rooms without a remote counterpart are reported as not
// found; principals missing from the remote room are unauthorized.
func (s *ChatRoomService) RemoteMember(ctx context.Context, principal Principal, id string) (member RemoteMember, err error) {
	if err = s.ready(); err != nil {
		return
	}
	if member.Room, err = s.memberRoom(ctx, principal, id); err != nil {
		return
	}

	remoteID, parseErr := uuid.Parse(member.Room.RemoteRoomID)
	if parseErr != nil {
		err = ErrNotFound
		return
	}
	participant, ok := s.RemoteParticipantByEmail(ctx, member.Room.RemoteRoomID, principal.Email)
	if !ok {
		err = ErrUnauthorized
		return
	}
	member.RemoteRoomID = remoteID
	member.Participant = participant
	return
}

// RemoteParticipantByEmail finds the remote participant with email in the
// remote room. Lookup failures are logged and reported as absence.
func (s *ChatRoomService) RemoteParticipantByEmail(ctx context.Context, remoteRoomID, email string) (chatclient.Participant, bool) {
	if s == nil || s.remote == nil {
		return chatclient.Participant{}, false
	}
	roomID, err := uuid.Parse(remoteRoomID)
	if err != nil || normalizeEmail(email) == "" {
		return chatclient.Participant{}, false
	}

	participant, found, err := s.remote.ParticipantByEmail(ctx, roomID, normalizeEmail(email))
	if err != nil {
		s.loggerWith(ctx, "RemoteParticipantByEmail", "remote_room_id", remoteRoomID).
			WarnContext(ctx, "remote participant lookup failed", "error", err, "error_kind", ErrorKind(err))
		return chatclient.Participant{}, false
	}
	return participant, found
}

// ResolveObject looks up a domain object through the configured resolver.
func (s *ChatRoomService) ResolveObject(ctx context.Context, objectType, objectID string) (objecttype.Record, bool) {
	if s == nil || s.objects == nil {
		return objecttype.Record{}, false
	}
	return s.objects.ResolveByID(ctx, objectType, objectID)
}

// memberRoom loads a room the principal created or participates in.
func (s *ChatRoomService) memberRoom(ctx context.Context, principal Principal, id string) (ChatRoom, error) {
	if normalizeEmail(principal.Email) == "" && principal.UserID == "" {
		return ChatRoom{}, ErrUnauthorized
	}

	room, err := s.rooms.GetChatRoom(ctx, id)
	if err != nil {
		return ChatRoom{}, mapChatRoomRepoError(err)
	}

	if principal.UserID != "" && room.CreatedBy == principal.UserID {
		return room, nil
	}
	for _, p := range room.Participants {
		if (principal.UserID != "" && p.ID == principal.UserID) || (principal.Email != "" && strings.EqualFold(p.Email, principal.Email)) {
			return room, nil
		}
	}
	if principal.UserID == "" {
		if userID, err := s.principalUserID(ctx, principal); err == nil && userID != "" && userID == room.CreatedBy {
			return room, nil
		}
	}
	return ChatRoom{}, ErrUnauthorized
}

// principalUserID returns the local participant id for the principal, or
// "" when the principal has never been recorded.
func (s *ChatRoomService) principalUserID(ctx context.Context, principal Principal) (string, error) {
	if principal.UserID != "" {
		return principal.UserID, nil
	}
	email := normalizeEmail(principal.Email)
	if email == "" {
		return "", nil
	}
	participant, err := s.rooms.GetParticipantByEmail(ctx, email)
	if err != nil {
		if err = mapChatRoomRepoError(err); errors.Is(err, ErrNotFound) {
			return "", nil
		}
		return "", err
	}
	return participant.ID, nil
}

func (s *ChatRoomService) participantsWithCreator(inputs []ParticipantInput, principal Principal, creatorID string) []Participant {
	participants := toParticipants(inputs)
	creatorEmail := normalizeEmail(principal.Email)

	for i := range participants {
		if participants[i].Email == creatorEmail {
			participants[i].ID = creatorID
			if participants[i].Name == "" {
				participants[i].Name = strings.TrimSpace(principal.Name)
			}
			return participants
		}
	}
	return append(participants, Participant{ID: creatorID, Email: creatorEmail, Name: strings.TrimSpace(principal.Name)})
}

func toParticipants(inputs []ParticipantInput) []Participant {
	participants := lo.Map(inputs, func(p ParticipantInput, _ int) Participant {
		return Participant{Email: normalizeEmail(p.Email), Name: strings.TrimSpace(p.Name)}
	})
	participants = lo.Filter(participants, func(p Participant, _ int) bool { return p.Email != "" })
	return lo.UniqBy(participants, func(p Participant) string { return p.Email })
}

func mergeParticipants(existing []Participant, additions []ParticipantInput) []Participant {
	merged := append([]Participant(nil), existing...)
	merged = append(merged, toParticipants(additions)...)
	return lo.UniqBy(merged, func(p Participant) string { return normalizeEmail(p.Email) })
}

func mapChatRoomRepoError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, persistence.ErrNotFound) {
		return ErrNotFound
	}
	if errors.Is(err, persistence.ErrDuplicate) {
		return ErrAlreadyExists
	}
	if errors.Is(err, persistence.ErrConstraintViolation) {
		vErr := &ValidationError{}
		vErr.add("chat_room", "violates a storage constraint")
		return vErr
	}
	return err
}
