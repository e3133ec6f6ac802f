package application

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/example/chatrooms/internal/chatclient"
	"github.com/example/chatrooms/internal/createguard"
	"github.com/example/chatrooms/internal/objecttype"
	"github.com/example/chatrooms/internal/persistence"
)

type chatRoomRepoStub struct {
	mu    sync.Mutex
	rooms map[string]ChatRoom
	users map[string]Participant

	createErr error
	findCalls int
}

func newChatRoomRepoStub() *chatRoomRepoStub {
	return &chatRoomRepoStub{rooms: map[string]ChatRoom{}, users: map[string]Participant{}}
}

func (r *chatRoomRepoStub) upsertUsersLocked(participants []Participant) []Participant {
	out := make([]Participant, 0, len(participants))
	for _, p := range participants {
		if existing, ok := r.users[p.Email]; ok {
			out = append(out, existing)
			continue
		}
		if p.ID == "" {
			p.ID = "user-" + p.Email
		}
		r.users[p.Email] = p
		out = append(out, p)
	}
	return out
}

func (r *chatRoomRepoStub) CreateChatRoom(_ context.Context, room ChatRoom) (ChatRoom, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return ChatRoom{}, r.createErr
	}
	room.Participants = r.upsertUsersLocked(room.Participants)
	r.rooms[room.ID] = room
	return room, nil
}

func (r *chatRoomRepoStub) GetChatRoom(_ context.Context, id string) (ChatRoom, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[id]
	if !ok {
		return ChatRoom{}, persistence.ErrNotFound
	}
	return room, nil
}

func (r *chatRoomRepoStub) UpdateChatRoom(_ context.Context, room ChatRoom, participants []Participant) (ChatRoom, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if participants != nil {
		room.Participants = r.upsertUsersLocked(participants)
	}
	r.rooms[room.ID] = room
	return room, nil
}

func (r *chatRoomRepoStub) FindMatchingChatRoom(_ context.Context, match ChatRoomMatch) (ChatRoom, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.findCalls++
	for _, room := range r.rooms {
		if room.ObjectType != match.ObjectType || room.ObjectID != match.ObjectID {
			continue
		}
		if strings.Join(room.Tags, ",") != strings.Join(match.Tags, ",") {
			continue
		}
		if lo.SomeBy(room.Participants, func(p Participant) bool { return lo.Contains(match.Emails, p.Email) }) {
			return room, nil
		}
	}
	return ChatRoom{}, persistence.ErrNotFound
}

func (r *chatRoomRepoStub) ListChatRooms(_ context.Context, query ChatRoomQuery) ([]ChatRoom, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []ChatRoom
	for _, room := range r.rooms {
		member := room.CreatedBy == query.UserID || lo.SomeBy(room.Participants, func(p Participant) bool { return p.ID == query.UserID })
		if !member {
			continue
		}
		if query.Archived != nil && room.IsArchived != *query.Archived {
			continue
		}
		if query.Name != "" && !strings.Contains(strings.ToLower(room.Name), strings.ToLower(query.Name)) {
			continue
		}
		out = append(out, room)
	}
	return out, nil
}

func (r *chatRoomRepoStub) UpsertParticipants(_ context.Context, roomID string, participants []Participant) (ChatRoom, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[roomID]
	if !ok {
		return ChatRoom{}, persistence.ErrNotFound
	}
	merged := append(append([]Participant(nil), room.Participants...), r.upsertUsersLocked(participants)...)
	room.Participants = lo.UniqBy(merged, func(p Participant) string { return p.ID })
	r.rooms[roomID] = room
	return room, nil
}

func (r *chatRoomRepoStub) AddParticipants(_ context.Context, roomID string, userIDs []string) (ChatRoom, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[roomID]
	if !ok {
		return ChatRoom{}, persistence.ErrNotFound
	}
	for _, user := range r.users {
		if lo.Contains(userIDs, user.ID) && !lo.ContainsBy(room.Participants, func(p Participant) bool { return p.ID == user.ID }) {
			room.Participants = append(room.Participants, user)
		}
	}
	r.rooms[roomID] = room
	return room, nil
}

func (r *chatRoomRepoStub) RemoveParticipants(_ context.Context, roomID string, userIDs []string) (ChatRoom, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[roomID]
	if !ok {
		return ChatRoom{}, false, persistence.ErrNotFound
	}
	room.Participants = lo.Reject(room.Participants, func(p Participant, _ int) bool { return lo.Contains(userIDs, p.ID) })
	if len(room.Participants) == 0 {
		delete(r.rooms, roomID)
		return ChatRoom{}, true, nil
	}
	r.rooms[roomID] = room
	return room, false, nil
}

func (r *chatRoomRepoStub) GetParticipantByEmail(_ context.Context, email string) (Participant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.users[email]
	if !ok {
		return Participant{}, persistence.ErrNotFound
	}
	return p, nil
}

func (r *chatRoomRepoStub) roomCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms)
}

type remoteRoomsStub struct {
	mu        sync.Mutex
	rooms     map[uuid.UUID]chatclient.Room
	createErr error
	missingID bool

	createCalls int
	updates     []chatclient.RoomUpdate
	deletes     []uuid.UUID
	getOptions  []chatclient.GetRoomOptions
}

func newRemoteRoomsStub() *remoteRoomsStub {
	return &remoteRoomsStub{rooms: map[uuid.UUID]chatclient.Room{}}
}

func (r *remoteRoomsStub) CreateRoom(_ context.Context, input chatclient.RoomInput) (chatclient.Room, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.createCalls++
	if r.createErr != nil {
		return chatclient.Room{}, r.createErr
	}
	if r.missingID {
		return chatclient.Room{Name: input.Name}, nil
	}
	room := chatclient.Room{ID: uuid.New(), Name: input.Name, Tags: input.Tags}
	for _, p := range input.Participants {
		room.Participants = append(room.Participants, chatclient.Participant{ID: uuid.New(), Name: p.Name, Email: p.Email})
	}
	r.rooms[room.ID] = room
	return room, nil
}

func (r *remoteRoomsStub) GetRoom(_ context.Context, roomID uuid.UUID, opts chatclient.GetRoomOptions) (chatclient.Room, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.getOptions = append(r.getOptions, opts)
	room, ok := r.rooms[roomID]
	if !ok {
		return chatclient.Room{}, &chatclient.RemoteServiceError{Method: "GET", StatusCode: 404}
	}
	return room, nil
}

func (r *remoteRoomsStub) UpdateRoom(_ context.Context, roomID uuid.UUID, update chatclient.RoomUpdate) (chatclient.Room, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, update)
	return r.rooms[roomID], nil
}

func (r *remoteRoomsStub) DeleteRoom(_ context.Context, roomID, participantID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deletes = append(r.deletes, roomID)
	room := r.rooms[roomID]
	room.Participants = lo.Reject(room.Participants, func(p chatclient.Participant, _ int) bool { return p.ID == participantID })
	r.rooms[roomID] = room
	return nil
}

func (r *remoteRoomsStub) ParticipantByEmail(_ context.Context, roomID uuid.UUID, email string) (chatclient.Participant, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[roomID]
	if !ok {
		return chatclient.Participant{}, false, nil
	}
	p, found := lo.Find(room.Participants, func(p chatclient.Participant) bool { return strings.EqualFold(p.Email, email) })
	return p, found, nil
}

type objectResolverStub map[string]bool

func (o objectResolverStub) ResolveByID(_ context.Context, typeName, id string) (objecttype.Record, bool) {
	if o[typeName+"/"+id] {
		return objecttype.Record{Type: typeName, ID: id}, true
	}
	return objecttype.Record{}, false
}

var serviceNow = time.Date(2024, time.March, 14, 9, 0, 0, 0, time.UTC)

func sequentialIDs(prefix string) func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("%s-%d", prefix, n)
	}
}

func newTestChatRoomService(repo *chatRoomRepoStub, remote *remoteRoomsStub, opts ...ChatRoomServiceOption) *ChatRoomService {
	return NewChatRoomService(repo, remote, sequentialIDs("id"), func() time.Time { return serviceNow }, opts...)
}

func createParams() CreateChatRoomParams {
	return CreateChatRoomParams{
		Principal: Principal{Email: "Owner@Example.com", Name: "Owner"},
		Input: ChatRoomInput{
			Name:       "  Incident 42  ",
			ObjectType: "incident",
			ObjectID:   "42",
			Tags:       []string{"ops", " urgent ", "ops"},
			Participants: []ParticipantInput{
				{Name: "Alice", Email: "alice@example.com"},
				{Name: "Bob", Email: "BOB@example.com"},
			},
		},
	}
}

func TestChatRoomService_CreateChatRoom(t *testing.T) {
	t.Run("requires an authenticated principal", func(t *testing.T) {
		svc := newTestChatRoomService(newChatRoomRepoStub(), newRemoteRoomsStub())
		params := createParams()
		params.Principal = Principal{}

		_, _, err := svc.CreateChatRoom(context.Background(), params)
		if !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("expected ErrUnauthorized, got %v", err)
		}
	})

	t.Run("validates input before calling the remote service", func(t *testing.T) {
		remote := newRemoteRoomsStub()
		svc := newTestChatRoomService(newChatRoomRepoStub(), remote)

		_, _, err := svc.CreateChatRoom(context.Background(), CreateChatRoomParams{
			Principal: Principal{Email: "owner@example.com"},
			Input: ChatRoomInput{
				Name:         " ",
				Participants: []ParticipantInput{{Email: "a@example.com"}, {Email: "A@example.com"}, {Email: "nope"}},
			},
		})

		var vErr *ValidationError
		if !errors.As(err, &vErr) {
			t.Fatalf("expected ValidationError, got %v", err)
		}
		for _, field := range []string{"name", "object_type", "object_id", "participants[2].email"} {
			if _, ok := vErr.FieldErrors[field]; !ok {
				t.Errorf("expected %s validation error, got %v", field, vErr.FieldErrors)
			}
		}
		if remote.createCalls != 0 {
			t.Fatalf("expected no remote calls, got %d", remote.createCalls)
		}
	})

	t.Run("requires two distinct participants", func(t *testing.T) {
		svc := newTestChatRoomService(newChatRoomRepoStub(), newRemoteRoomsStub())
		params := createParams()
		params.Input.Participants = []ParticipantInput{{Email: "a@example.com"}, {Email: " A@EXAMPLE.com "}}

		_, _, err := svc.CreateChatRoom(context.Background(), params)
		var vErr *ValidationError
		if !errors.As(err, &vErr) {
			t.Fatalf("expected ValidationError, got %v", err)
		}
		if _, ok := vErr.FieldErrors["participants"]; !ok {
			t.Fatalf("expected participants error, got %v", vErr.FieldErrors)
		}
	})

	t.Run("rejects unknown objects when a resolver is configured", func(t *testing.T) {
		remote := newRemoteRoomsStub()
		svc := newTestChatRoomService(newChatRoomRepoStub(), remote, WithObjectResolver(objectResolverStub{"incident/7": true}))

		_, _, err := svc.CreateChatRoom(context.Background(), createParams())
		var vErr *ValidationError
		if !errors.As(err, &vErr) {
			t.Fatalf("expected ValidationError, got %v", err)
		}
		if vErr.FieldErrors["object_id"] != "object not found" {
			t.Fatalf("expected object_id error, got %v", vErr.FieldErrors)
		}
		if remote.createCalls != 0 {
			t.Fatalf("expected no remote calls, got %d", remote.createCalls)
		}
	})

	t.Run("creates remote room then stores it locally", func(t *testing.T) {
		repo := newChatRoomRepoStub()
		remote := newRemoteRoomsStub()
		svc := newTestChatRoomService(repo, remote, WithObjectResolver(objectResolverStub{"incident/42": true}))

		room, created, err := svc.CreateChatRoom(context.Background(), createParams())
		if err != nil {
			t.Fatalf("expected success, got %v", err)
		}
		if !created {
			t.Fatalf("expected a new room")
		}
		if room.Name != "Incident 42" {
			t.Fatalf("expected trimmed name, got %q", room.Name)
		}
		if strings.Join(room.Tags, ",") != "ops,urgent" {
			t.Fatalf("expected normalized tags, got %v", room.Tags)
		}
		if _, err := uuid.Parse(room.RemoteRoomID); err != nil {
			t.Fatalf("expected remote room id, got %q", room.RemoteRoomID)
		}
		if !room.CreatedAt.Equal(serviceNow) {
			t.Fatalf("expected created at %v, got %v", serviceNow, room.CreatedAt)
		}

		emails := lo.Map(room.Participants, func(p Participant, _ int) string { return p.Email })
		for _, want := range []string{"alice@example.com", "bob@example.com", "owner@example.com"} {
			if !lo.Contains(emails, want) {
				t.Errorf("expected participant %s in %v", want, emails)
			}
		}
		creator, _ := lo.Find(room.Participants, func(p Participant) bool { return p.Email == "owner@example.com" })
		if room.CreatedBy == "" || creator.ID != room.CreatedBy {
			t.Fatalf("expected creator %q to be a participant, got %+v", room.CreatedBy, room.Participants)
		}
	})

	t.Run("returns the existing room for a matching request", func(t *testing.T) {
		repo := newChatRoomRepoStub()
		remote := newRemoteRoomsStub()
		svc := newTestChatRoomService(repo, remote)

		first, _, err := svc.CreateChatRoom(context.Background(), createParams())
		if err != nil {
			t.Fatalf("create: %v", err)
		}

		params := createParams()
		params.Input.Tags = []string{"urgent", "ops"}
		params.Principal = Principal{Email: "someone-else@example.com"}
		second, created, err := svc.CreateChatRoom(context.Background(), params)
		if err != nil {
			t.Fatalf("second create: %v", err)
		}
		if created {
			t.Fatalf("expected existing room to be returned")
		}
		if second.ID != first.ID {
			t.Fatalf("expected room %s, got %s", first.ID, second.ID)
		}
		if remote.createCalls != 1 {
			t.Fatalf("expected one remote create, got %d", remote.createCalls)
		}
	})

	t.Run("different tags create a separate room", func(t *testing.T) {
		repo := newChatRoomRepoStub()
		svc := newTestChatRoomService(repo, newRemoteRoomsStub())

		if _, _, err := svc.CreateChatRoom(context.Background(), createParams()); err != nil {
			t.Fatalf("create: %v", err)
		}
		params := createParams()
		params.Input.Tags = []string{"ops"}
		if _, created, err := svc.CreateChatRoom(context.Background(), params); err != nil || !created {
			t.Fatalf("expected a new room, created=%v err=%v", created, err)
		}
		if repo.roomCount() != 2 {
			t.Fatalf("expected 2 rooms, got %d", repo.roomCount())
		}
	})

	t.Run("concurrent identical requests create one room", func(t *testing.T) {
		repo := newChatRoomRepoStub()
		remote := newRemoteRoomsStub()
		svc := newTestChatRoomService(repo, remote, WithCreateGuard(createguard.NewLocal()))

		var wg sync.WaitGroup
		ids := make([]string, 8)
		errs := make([]error, 8)
		for i := range ids {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				room, _, err := svc.CreateChatRoom(context.Background(), createParams())
				ids[i], errs[i] = room.ID, err
			}(i)
		}
		wg.Wait()

		for _, err := range errs {
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		}
		if len(lo.Uniq(ids)) != 1 {
			t.Fatalf("expected a single room id, got %v", lo.Uniq(ids))
		}
		if remote.createCalls != 1 {
			t.Fatalf("expected one remote create, got %d", remote.createCalls)
		}
	})

	t.Run("missing remote id persists nothing", func(t *testing.T) {
		repo := newChatRoomRepoStub()
		remote := newRemoteRoomsStub()
		remote.missingID = true
		svc := newTestChatRoomService(repo, remote)

		_, _, err := svc.CreateChatRoom(context.Background(), createParams())
		if !errors.Is(err, ErrRemoteRoomMissing) {
			t.Fatalf("expected ErrRemoteRoomMissing, got %v", err)
		}
		if repo.roomCount() != 0 {
			t.Fatalf("expected no rooms stored, got %d", repo.roomCount())
		}
	})

	t.Run("remote failures propagate and persist nothing", func(t *testing.T) {
		repo := newChatRoomRepoStub()
		remote := newRemoteRoomsStub()
		remote.createErr = &chatclient.RemoteServiceError{Method: "POST", StatusCode: 500}
		svc := newTestChatRoomService(repo, remote)

		_, _, err := svc.CreateChatRoom(context.Background(), createParams())
		var remoteErr *chatclient.RemoteServiceError
		if !errors.As(err, &remoteErr) || remoteErr.StatusCode != 500 {
			t.Fatalf("expected remote error, got %v", err)
		}
		if repo.roomCount() != 0 {
			t.Fatalf("expected no rooms stored, got %d", repo.roomCount())
		}
	})

	t.Run("maps duplicate storage errors", func(t *testing.T) {
		repo := newChatRoomRepoStub()
		repo.createErr = fmt.Errorf("insert: %w", persistence.ErrDuplicate)
		svc := newTestChatRoomService(repo, newRemoteRoomsStub())

		_, _, err := svc.CreateChatRoom(context.Background(), createParams())
		if !errors.Is(err, ErrAlreadyExists) {
			t.Fatalf("expected ErrAlreadyExists, got %v", err)
		}
	})
}

func createdRoom(t *testing.T, svc *ChatRoomService) ChatRoom {
	t.Helper()
	room, _, err := svc.CreateChatRoom(context.Background(), createParams())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	return room
}

func TestChatRoomService_GetChatRoomDetails(t *testing.T) {
	t.Run("returns the remote view for members", func(t *testing.T) {
		remote := newRemoteRoomsStub()
		svc := newTestChatRoomService(newChatRoomRepoStub(), remote)
		room := createdRoom(t, svc)
		lastN := 5

		details, err := svc.GetChatRoomDetails(context.Background(), Principal{Email: "alice@example.com"}, room.ID, &lastN)
		if err != nil {
			t.Fatalf("expected success, got %v", err)
		}
		if details.Remote == nil || details.Remote.ID.String() != room.RemoteRoomID {
			t.Fatalf("expected remote room, got %+v", details.Remote)
		}
		opts := remote.getOptions[len(remote.getOptions)-1]
		if opts.LastNMessages == nil || *opts.LastNMessages != 5 || opts.ParticipantID == uuid.Nil {
			t.Fatalf("unexpected remote options %+v", opts)
		}
	})

	t.Run("rejects non members", func(t *testing.T) {
		svc := newTestChatRoomService(newChatRoomRepoStub(), newRemoteRoomsStub())
		room := createdRoom(t, svc)

		_, err := svc.GetChatRoomDetails(context.Background(), Principal{Email: "mallory@example.com"}, room.ID, nil)
		if !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("expected ErrUnauthorized, got %v", err)
		}
	})

	t.Run("reports unknown rooms", func(t *testing.T) {
		svc := newTestChatRoomService(newChatRoomRepoStub(), newRemoteRoomsStub())

		_, err := svc.GetChatRoomDetails(context.Background(), Principal{Email: "alice@example.com"}, "missing", nil)
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestChatRoomService_UpdateChatRoom(t *testing.T) {
	repo := newChatRoomRepoStub()
	remote := newRemoteRoomsStub()
	svc := newTestChatRoomService(repo, remote)
	room := createdRoom(t, svc)

	name := "  Renamed  "
	tags := []string{"b", "a", "b"}
	archived := true
	updated, err := svc.UpdateChatRoom(context.Background(), UpdateChatRoomParams{
		Principal:    Principal{Email: "owner@example.com"},
		RoomID:       room.ID,
		Name:         &name,
		Tags:         &tags,
		IsArchived:   &archived,
		Participants: []ParticipantInput{{Email: "Carol@example.com", Name: "Carol"}},
	})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}

	if updated.Name != "Renamed" || !updated.IsArchived || strings.Join(updated.Tags, ",") != "a,b" {
		t.Fatalf("unexpected room %+v", updated)
	}
	if len(updated.Participants) != 4 {
		t.Fatalf("expected 4 participants, got %+v", updated.Participants)
	}
	if len(remote.updates) != 1 {
		t.Fatalf("expected one remote update, got %d", len(remote.updates))
	}
	sent := remote.updates[0]
	if sent.Name == nil || *sent.Name != "Renamed" || len(sent.Participants) != 1 || sent.Participants[0].Email != "carol@example.com" {
		t.Fatalf("unexpected remote update %+v", sent)
	}

	t.Run("rejects blank names", func(t *testing.T) {
		blank := " "
		_, err := svc.UpdateChatRoom(context.Background(), UpdateChatRoomParams{
			Principal: Principal{Email: "owner@example.com"},
			RoomID:    room.ID,
			Name:      &blank,
		})
		var vErr *ValidationError
		if !errors.As(err, &vErr) {
			t.Fatalf("expected ValidationError, got %v", err)
		}
	})

	t.Run("rejects non members", func(t *testing.T) {
		_, err := svc.UpdateChatRoom(context.Background(), UpdateChatRoomParams{
			Principal: Principal{Email: "mallory@example.com"},
			RoomID:    room.ID,
		})
		if !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("expected ErrUnauthorized, got %v", err)
		}
	})
}

func TestChatRoomService_LeaveChatRoom(t *testing.T) {
	repo := newChatRoomRepoStub()
	remote := newRemoteRoomsStub()
	svc := newTestChatRoomService(repo, remote)
	room := createdRoom(t, svc)

	deleted, err := svc.LeaveChatRoom(context.Background(), Principal{Email: "alice@example.com"}, room.ID)
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if deleted {
		t.Fatalf("room should survive while participants remain")
	}
	if len(remote.deletes) != 1 {
		t.Fatalf("expected remote leave, got %d", len(remote.deletes))
	}

	stored, err := svc.GetChatRoom(context.Background(), room.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if lo.ContainsBy(stored.Participants, func(p Participant) bool { return p.Email == "alice@example.com" }) {
		t.Fatalf("expected alice to be removed, got %+v", stored.Participants)
	}

	t.Run("leaving twice is rejected", func(t *testing.T) {
		_, err := svc.LeaveChatRoom(context.Background(), Principal{Email: "alice@example.com"}, room.ID)
		if !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("expected ErrUnauthorized, got %v", err)
		}
	})

	t.Run("last participant deletes the room", func(t *testing.T) {
		for _, email := range []string{"bob@example.com", "owner@example.com"} {
			deleted, err = svc.LeaveChatRoom(context.Background(), Principal{Email: email}, room.ID)
			if err != nil {
				t.Fatalf("leave %s: %v", email, err)
			}
		}
		if !deleted {
			t.Fatalf("expected the empty room to be deleted")
		}
		if _, err := svc.GetChatRoom(context.Background(), room.ID); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestChatRoomService_Participants(t *testing.T) {
	repo := newChatRoomRepoStub()
	svc := newTestChatRoomService(repo, newRemoteRoomsStub())
	room := createdRoom(t, svc)
	owner := Principal{Email: "owner@example.com"}

	t.Run("upsert is idempotent", func(t *testing.T) {
		input := []ParticipantInput{{Email: "dave@example.com"}, {Email: "DAVE@example.com"}}
		first, err := svc.UpsertParticipants(context.Background(), room.ID, input)
		if err != nil {
			t.Fatalf("upsert: %v", err)
		}
		second, err := svc.UpsertParticipants(context.Background(), room.ID, input)
		if err != nil {
			t.Fatalf("upsert again: %v", err)
		}
		if len(first.Participants) != 4 || len(second.Participants) != 4 {
			t.Fatalf("expected 4 participants, got %d then %d", len(first.Participants), len(second.Participants))
		}
	})

	t.Run("upsert validates emails", func(t *testing.T) {
		_, err := svc.UpsertParticipants(context.Background(), room.ID, []ParticipantInput{{Email: "bad"}})
		var vErr *ValidationError
		if !errors.As(err, &vErr) {
			t.Fatalf("expected ValidationError, got %v", err)
		}
	})

	t.Run("add requires ids", func(t *testing.T) {
		_, err := svc.AddParticipants(context.Background(), owner, room.ID, []string{""})
		var vErr *ValidationError
		if !errors.As(err, &vErr) {
			t.Fatalf("expected ValidationError, got %v", err)
		}
	})

	t.Run("remove then add by id", func(t *testing.T) {
		dave, err := repo.GetParticipantByEmail(context.Background(), "dave@example.com")
		if err != nil {
			t.Fatalf("lookup: %v", err)
		}
		removed, deleted, err := svc.RemoveParticipants(context.Background(), owner, room.ID, []string{dave.ID})
		if err != nil || deleted {
			t.Fatalf("remove: deleted=%v err=%v", deleted, err)
		}
		if len(removed.Participants) != 3 {
			t.Fatalf("expected 3 participants, got %d", len(removed.Participants))
		}
		added, err := svc.AddParticipants(context.Background(), owner, room.ID, []string{dave.ID})
		if err != nil {
			t.Fatalf("add: %v", err)
		}
		if len(added.Participants) != 4 {
			t.Fatalf("expected 4 participants, got %d", len(added.Participants))
		}
	})
}

func TestChatRoomService_ListChatRooms(t *testing.T) {
	svc := newTestChatRoomService(newChatRoomRepoStub(), newRemoteRoomsStub())
	room := createdRoom(t, svc)

	archived := true
	if _, err := svc.UpdateChatRoom(context.Background(), UpdateChatRoomParams{
		Principal:  Principal{Email: "owner@example.com"},
		RoomID:     room.ID,
		IsArchived: &archived,
	}); err != nil {
		t.Fatalf("archive: %v", err)
	}

	rooms, err := svc.ListChatRoomsForUser(context.Background(), Principal{Email: "bob@example.com"}, ListFilter{Name: "incident"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rooms) != 1 {
		t.Fatalf("expected 1 room, got %d", len(rooms))
	}

	archivedRooms, err := svc.ArchivedChatRooms(context.Background(), Principal{Email: "owner@example.com"})
	if err != nil {
		t.Fatalf("archived: %v", err)
	}
	if len(archivedRooms) != 1 {
		t.Fatalf("expected 1 archived room, got %d", len(archivedRooms))
	}

	unknown, err := svc.ListChatRoomsForUser(context.Background(), Principal{Email: "nobody@example.com"}, ListFilter{})
	if err != nil {
		t.Fatalf("list unknown: %v", err)
	}
	if len(unknown) != 0 {
		t.Fatalf("expected no rooms, got %d", len(unknown))
	}
}

func TestChatRoomService_RemoteMember(t *testing.T) {
	remote := newRemoteRoomsStub()
	svc := newTestChatRoomService(newChatRoomRepoStub(), remote)
	room := createdRoom(t, svc)

	member, err := svc.RemoteMember(context.Background(), Principal{Email: "Bob@example.com"}, room.ID)
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if member.RemoteRoomID.String() != room.RemoteRoomID || member.Participant.Email != "bob@example.com" {
		t.Fatalf("unexpected member %+v", member)
	}

	if _, err := svc.RemoteMember(context.Background(), Principal{Email: "mallory@example.com"}, room.ID); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestChatRoomService_NilService(t *testing.T) {
	var svc *ChatRoomService
	if _, _, err := svc.CreateChatRoom(context.Background(), createParams()); err == nil {
		t.Fatalf("expected error from nil service")
	}
	if _, ok := svc.RemoteParticipantByEmail(context.Background(), uuid.NewString(), "a@example.com"); ok {
		t.Fatalf("expected no participant from nil service")
	}
	if _, ok := svc.ResolveObject(context.Background(), "incident", "1"); ok {
		t.Fatalf("expected no object from nil service")
	}
}
