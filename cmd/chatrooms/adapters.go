package main

import (
	"context"

	"github.com/samber/lo"

	"github.com/example/chatrooms/internal/application"
	"github.com/example/chatrooms/internal/persistence"
)

type chatRoomRepositoryAdapter struct {
	rooms persistence.ChatRoomRepository
	users persistence.UserRepository
}

func newChatRoomRepositoryAdapter(rooms persistence.ChatRoomRepository, users persistence.UserRepository) *chatRoomRepositoryAdapter {
	return &chatRoomRepositoryAdapter{rooms: rooms, users: users}
}

func (a *chatRoomRepositoryAdapter) CreateChatRoom(ctx context.Context, room application.ChatRoom) (application.ChatRoom, error) {
	stored, err := a.rooms.CreateChatRoom(ctx, toPersistenceChatRoom(room), toPersistenceUsers(room.Participants))
	if err != nil {
		return application.ChatRoom{}, err
	}
	return toApplicationChatRoom(stored), nil
}

func (a *chatRoomRepositoryAdapter) GetChatRoom(ctx context.Context, id string) (application.ChatRoom, error) {
	stored, err := a.rooms.GetChatRoom(ctx, id)
	if err != nil {
		return application.ChatRoom{}, err
	}
	return toApplicationChatRoom(stored), nil
}

func (a *chatRoomRepositoryAdapter) UpdateChatRoom(ctx context.Context, room application.ChatRoom, participants []application.Participant) (application.ChatRoom, error) {
	// nil keeps the current membership.
	var users []persistence.User
	if participants != nil {
		users = toPersistenceUsers(participants)
	}
	stored, err := a.rooms.UpdateChatRoom(ctx, toPersistenceChatRoom(room), users)
	if err != nil {
		return application.ChatRoom{}, err
	}
	return toApplicationChatRoom(stored), nil
}

func (a *chatRoomRepositoryAdapter) FindMatchingChatRoom(ctx context.Context, match application.ChatRoomMatch) (application.ChatRoom, error) {
	stored, err := a.rooms.FindMatchingChatRoom(ctx, persistence.ChatRoomMatch{
		ObjectType: match.ObjectType,
		ObjectID:   match.ObjectID,
		Tags:       match.Tags,
		Emails:     match.Emails,
	})
	if err != nil {
		return application.ChatRoom{}, err
	}
	return toApplicationChatRoom(stored), nil
}

func (a *chatRoomRepositoryAdapter) ListChatRooms(ctx context.Context, query application.ChatRoomQuery) ([]application.ChatRoom, error) {
	models, err := a.rooms.ListChatRooms(ctx, persistence.ChatRoomFilter{
		UserID:           query.UserID,
		Name:             query.Name,
		ObjectType:       query.ObjectType,
		ObjectID:         query.ObjectID,
		ParticipantEmail: query.ParticipantEmail,
		Archived:         query.Archived,
	})
	if err != nil {
		return nil, err
	}
	return lo.Map(models, func(m persistence.ChatRoom, _ int) application.ChatRoom { return toApplicationChatRoom(m) }), nil
}

func (a *chatRoomRepositoryAdapter) UpsertParticipants(ctx context.Context, roomID string, participants []application.Participant) (application.ChatRoom, error) {
	stored, err := a.rooms.UpsertParticipants(ctx, roomID, toPersistenceUsers(participants))
	if err != nil {
		return application.ChatRoom{}, err
	}
	return toApplicationChatRoom(stored), nil
}

func (a *chatRoomRepositoryAdapter) AddParticipants(ctx context.Context, roomID string, userIDs []string) (application.ChatRoom, error) {
	stored, err := a.rooms.AddParticipants(ctx, roomID, userIDs)
	if err != nil {
		return application.ChatRoom{}, err
	}
	return toApplicationChatRoom(stored), nil
}

func (a *chatRoomRepositoryAdapter) RemoveParticipants(ctx context.Context, roomID string, userIDs []string) (application.ChatRoom, bool, error) {
	stored, deleted, err := a.rooms.RemoveParticipants(ctx, roomID, userIDs)
	if err != nil {
		return application.ChatRoom{}, false, err
	}
	return toApplicationChatRoom(stored), deleted, nil
}

func (a *chatRoomRepositoryAdapter) GetParticipantByEmail(ctx context.Context, email string) (application.Participant, error) {
	user, err := a.users.GetUserByEmail(ctx, email)
	if err != nil {
		return application.Participant{}, err
	}
	return toApplicationParticipant(user), nil
}

func toPersistenceChatRoom(room application.ChatRoom) persistence.ChatRoom {
	return persistence.ChatRoom{
		ID:           room.ID,
		RemoteRoomID: room.RemoteRoomID,
		Name:         room.Name,
		ObjectType:   room.ObjectType,
		ObjectID:     room.ObjectID,
		Tags:         room.Tags,
		IsArchived:   room.IsArchived,
		CreatedBy:    room.CreatedBy,
		CreatedAt:    room.CreatedAt,
		UpdatedAt:    room.UpdatedAt,
	}
}

func toApplicationChatRoom(room persistence.ChatRoom) application.ChatRoom {
	return application.ChatRoom{
		ID:           room.ID,
		RemoteRoomID: room.RemoteRoomID,
		Name:         room.Name,
		ObjectType:   room.ObjectType,
		ObjectID:     room.ObjectID,
		Tags:         room.Tags,
		IsArchived:   room.IsArchived,
		CreatedBy:    room.CreatedBy,
		Participants: lo.Map(room.Participants, func(u persistence.User, _ int) application.Participant { return toApplicationParticipant(u) }),
		CreatedAt:    room.CreatedAt,
		UpdatedAt:    room.UpdatedAt,
	}
}

func toPersistenceUsers(participants []application.Participant) []persistence.User {
	return lo.Map(participants, func(p application.Participant, _ int) persistence.User {
		return persistence.User{ID: p.ID, Email: p.Email, DisplayName: p.Name}
	})
}

func toApplicationParticipant(user persistence.User) application.Participant {
	return application.Participant{ID: user.ID, Email: user.Email, Name: user.DisplayName}
}
