package testfixtures

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/samber/lo"

	"github.com/example/chatrooms/internal/chatclient"
)

// ChatServerToken is the bearer token accepted by ChatServer.
const ChatServerToken = "test-organisation-token"

const uuidPattern = `{%s:[0-9a-fA-F-]{36}}`

// RecordedRequest captures one request received by ChatServer.
type RecordedRequest struct {
	Method string
	Path   string
	Query  url.Values
	Header http.Header
	Body   []byte
}

// Upload captures a file posted to the presigned upload endpoint.
type Upload struct {
	Fields      map[string]string
	Filename    string
	ContentType string
	Content     []byte
}

// ChatServer is an in-memory stand-in for the remote chat service.
type ChatServer struct {
	*httptest.Server

	mu           sync.Mutex
	requests     []RecordedRequest
	rooms        map[uuid.UUID]*chatclient.Room
	roomOrder    []uuid.UUID
	participants map[uuid.UUID]chatclient.Participant
	chats        map[uuid.UUID]chatclient.Chat
	chatOrder    []uuid.UUID
	attachments  map[uuid.UUID]chatclient.Attachment
	uploads      []Upload
}

// NewChatServer starts a stub remote chat service closed on test cleanup.
func NewChatServer(tb testing.TB) *ChatServer {
	tb.Helper()

	s := &ChatServer{
		rooms:        make(map[uuid.UUID]*chatclient.Room),
		participants: make(map[uuid.UUID]chatclient.Participant),
		chats:        make(map[uuid.UUID]chatclient.Chat),
		attachments:  make(map[uuid.UUID]chatclient.Attachment),
	}
	s.Server = httptest.NewServer(s.routes())
	tb.Cleanup(s.Close)
	return s
}

// NewClient returns a client pointed at the stub.
func (s *ChatServer) NewClient(tb testing.TB) *chatclient.Client {
	tb.Helper()
	client, err := chatclient.NewClient(chatclient.Config{
		BaseURL:           s.URL,
		OrganisationToken: ChatServerToken,
		Timeout:           5 * time.Second,
		HTTPClient:        s.Client(),
	})
	if err != nil {
		tb.Fatalf("failed to create chat client: %v", err)
	}
	tb.Cleanup(client.Close)
	return client
}

// Requests returns a copy of every request received so far.
func (s *ChatServer) Requests() []RecordedRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]RecordedRequest(nil), s.requests...)
}

// RequestsTo returns the recorded requests matching method and path.
func (s *ChatServer) RequestsTo(method, path string) []RecordedRequest {
	return lo.Filter(s.Requests(), func(r RecordedRequest, _ int) bool {
		return r.Method == method && r.Path == path
	})
}

// RoomCount reports how many rooms currently exist.
func (s *ChatServer) RoomCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rooms)
}

// Uploads returns files received on the presigned upload endpoint.
func (s *ChatServer) Uploads() []Upload {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Upload(nil), s.uploads...)
}

// SeedRoom stores a room directly, bypassing the API.
func (s *ChatServer) SeedRoom(name string, participants ...chatclient.ParticipantInput) chatclient.Room {
	s.mu.Lock()
	defer s.mu.Unlock()
	room := &chatclient.Room{ID: uuid.New(), Name: name, Tags: []string{}}
	for _, p := range participants {
		room.Participants = append(room.Participants, s.upsertParticipantLocked(p))
	}
	s.rooms[room.ID] = room
	s.roomOrder = append(s.roomOrder, room.ID)
	return *room
}

func (s *ChatServer) routes() http.Handler {
	r := mux.NewRouter()
	r.Use(s.record, s.authorize)

	id := func(name string) string { return strings.ReplaceAll(uuidPattern, "%s", name) }

	r.HandleFunc("/uploads", s.handleUpload).Methods(http.MethodPost)

	r.HandleFunc("/rooms/search", s.searchRooms).Methods(http.MethodGet)
	r.HandleFunc("/rooms/chats/", s.createChat).Methods(http.MethodPost)
	r.HandleFunc("/rooms/chats/"+id("id")+"/", s.getChat).Methods(http.MethodGet)
	r.HandleFunc("/rooms/attachments/", s.createAttachments).Methods(http.MethodPost)
	r.HandleFunc("/rooms/attachments/"+id("id")+"/", s.updateAttachment).Methods(http.MethodPut)
	r.HandleFunc("/rooms/attachments/"+id("id")+"/", s.deleteAttachment).Methods(http.MethodDelete)
	r.HandleFunc("/rooms/attachments/"+id("id")+"/generate-presigned-url/", s.presign).Methods(http.MethodGet)
	r.HandleFunc("/rooms/participant/"+id("id")+"/", s.getParticipant).Methods(http.MethodGet)
	r.HandleFunc("/rooms/unread/"+id("pid")+"/", s.roomsForParticipant).Methods(http.MethodGet)

	r.HandleFunc("/rooms/", s.createRoom).Methods(http.MethodPost)
	r.HandleFunc("/rooms/", s.listRooms).Methods(http.MethodGet)
	r.HandleFunc("/rooms/"+id("id")+"/", s.getRoom).Methods(http.MethodGet)
	r.HandleFunc("/rooms/"+id("id")+"/", s.updateRoom).Methods(http.MethodPatch)
	r.HandleFunc("/rooms/"+id("id")+"/chats/", s.listChats).Methods(http.MethodGet)
	r.HandleFunc("/rooms/"+id("id")+"/chats/", s.updateChat).Methods(http.MethodPatch)
	r.HandleFunc("/rooms/"+id("id")+"/chats", s.deleteChat).Methods(http.MethodDelete)
	r.HandleFunc("/rooms/"+id("id")+"/chats/search", s.searchChats).Methods(http.MethodGet)
	r.HandleFunc("/rooms/"+id("id")+"/participants/", s.listParticipants).Methods(http.MethodGet)
	r.HandleFunc("/rooms/"+id("id")+"/add-participant/", s.addParticipants).Methods(http.MethodPost)
	r.HandleFunc("/rooms/"+id("id")+"/add-participants-by-ids/", s.addParticipantsByIDs).Methods(http.MethodPost)
	r.HandleFunc("/rooms/"+id("id")+"/add-participants-by-emails/", s.addParticipantsByEmails).Methods(http.MethodPost)
	r.HandleFunc("/rooms/"+id("id")+"/remove-participant/"+id("pid")+"/", s.removeParticipant).Methods(http.MethodPost)
	r.HandleFunc("/rooms/"+id("id")+"/generate-token/", s.generateToken).Methods(http.MethodPost)
	r.HandleFunc("/rooms/"+id("pid")+"/rooms-never-opened/", s.roomsForParticipant).Methods(http.MethodGet)
	r.HandleFunc("/rooms/"+id("id")+"/"+id("pid"), s.deleteRoom).Methods(http.MethodDelete)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeStubJSON(w, http.StatusNotFound, map[string]any{"detail": "Not Found"})
	})
	return r
}

func (s *ChatServer) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_ = r.Body.Close()
		r.Body = io.NopCloser(strings.NewReader(string(body)))

		s.mu.Lock()
		s.requests = append(s.requests, RecordedRequest{
			Method: r.Method,
			Path:   r.URL.Path,
			Query:  r.URL.Query(),
			Header: r.Header.Clone(),
			Body:   body,
		})
		s.mu.Unlock()

		next.ServeHTTP(w, r)
	})
}

func (s *ChatServer) authorize(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/uploads" && r.Header.Get("Authorization") != "Bearer "+ChatServerToken {
			writeStubJSON(w, http.StatusUnauthorized, map[string]any{"detail": "Invalid organisation token"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// --- rooms ---

func (s *ChatServer) createRoom(w http.ResponseWriter, r *http.Request) {
	var input chatclient.RoomInput
	if !decodeStub(w, r, &input) {
		return
	}
	if len(input.Participants) < 2 {
		writeStubJSON(w, http.StatusUnprocessableEntity, map[string]any{"participants": []string{"At least two participants must be provided."}})
		return
	}

	s.mu.Lock()
	room := &chatclient.Room{ID: uuid.New(), Name: input.Name, Tags: input.Tags, IsArchived: input.IsArchived}
	for _, p := range input.Participants {
		room.Participants = appendUniqueParticipant(room.Participants, s.upsertParticipantLocked(p))
	}
	s.rooms[room.ID] = room
	s.roomOrder = append(s.roomOrder, room.ID)
	out := *room
	s.mu.Unlock()

	writeStubJSON(w, http.StatusCreated, out)
}

func (s *ChatServer) listRooms(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	rooms := s.roomsLocked(func(*chatclient.Room) bool { return true })
	s.mu.Unlock()
	writeStubJSON(w, http.StatusOK, paginate(rooms, r.URL.Query()))
}

func (s *ChatServer) searchRooms(w http.ResponseWriter, r *http.Request) {
	name := strings.ToLower(r.URL.Query().Get("name"))
	email := r.URL.Query().Get("participant_email")

	s.mu.Lock()
	rooms := s.roomsLocked(func(room *chatclient.Room) bool {
		if name != "" && !strings.Contains(strings.ToLower(room.Name), name) {
			return false
		}
		if email != "" && !lo.ContainsBy(room.Participants, func(p chatclient.Participant) bool { return strings.EqualFold(p.Email, email) }) {
			return false
		}
		return true
	})
	s.mu.Unlock()
	writeStubJSON(w, http.StatusOK, paginate(rooms, r.URL.Query()))
}

func (s *ChatServer) roomsForParticipant(w http.ResponseWriter, r *http.Request) {
	pid, _ := uuid.Parse(mux.Vars(r)["pid"])
	s.mu.Lock()
	rooms := s.roomsLocked(func(room *chatclient.Room) bool {
		return lo.ContainsBy(room.Participants, func(p chatclient.Participant) bool { return p.ID == pid })
	})
	s.mu.Unlock()
	writeStubJSON(w, http.StatusOK, paginate(rooms, r.URL.Query()))
}

func (s *ChatServer) getRoom(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.roomLocked(w, r)
	if !ok {
		return
	}
	out := *room
	if raw := r.URL.Query().Get("last_n_messages"); raw != "" {
		n, _ := strconv.Atoi(raw)
		chats := s.chatsInRoomLocked(room.ID)
		if n >= 0 && len(chats) > n {
			chats = chats[len(chats)-n:]
		}
		out.LastChat = chats
	}
	writeStubJSON(w, http.StatusOK, out)
}

func (s *ChatServer) updateRoom(w http.ResponseWriter, r *http.Request) {
	var update chatclient.RoomUpdate
	if !decodeStub(w, r, &update) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.roomLocked(w, r)
	if !ok {
		return
	}
	if update.Name != nil {
		room.Name = *update.Name
	}
	if update.Tags != nil {
		room.Tags = *update.Tags
	}
	if update.IsArchived != nil {
		room.IsArchived = *update.IsArchived
	}
	for _, p := range update.Participants {
		room.Participants = appendUniqueParticipant(room.Participants, s.upsertParticipantLocked(p))
	}
	writeStubJSON(w, http.StatusOK, *room)
}

func (s *ChatServer) deleteRoom(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.roomLocked(w, r)
	if !ok {
		return
	}
	pid, _ := uuid.Parse(mux.Vars(r)["pid"])
	if !lo.ContainsBy(room.Participants, func(p chatclient.Participant) bool { return p.ID == pid }) {
		writeStubJSON(w, http.StatusForbidden, map[string]any{"detail": "Participant is not a member of this room"})
		return
	}
	delete(s.rooms, room.ID)
	s.roomOrder = lo.Without(s.roomOrder, room.ID)
	w.WriteHeader(http.StatusNoContent)
}

// --- participants ---

func (s *ChatServer) listParticipants(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	room, ok := s.roomLocked(w, r)
	if !ok {
		s.mu.Unlock()
		return
	}
	participants := append([]chatclient.Participant(nil), room.Participants...)
	s.mu.Unlock()

	if email := r.URL.Query().Get("email"); email != "" {
		participants = lo.Filter(participants, func(p chatclient.Participant, _ int) bool {
			return strings.EqualFold(p.Email, email)
		})
	}
	writeStubJSON(w, http.StatusOK, paginate(participants, r.URL.Query()))
}

func (s *ChatServer) addParticipants(w http.ResponseWriter, r *http.Request) {
	var inputs []chatclient.ParticipantInput
	if !decodeStub(w, r, &inputs) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.roomLocked(w, r)
	if !ok {
		return
	}
	for _, p := range inputs {
		room.Participants = appendUniqueParticipant(room.Participants, s.upsertParticipantLocked(p))
	}
	writeStubJSON(w, http.StatusOK, *room)
}

func (s *ChatServer) addParticipantsByIDs(w http.ResponseWriter, r *http.Request) {
	var ids []uuid.UUID
	if !decodeStub(w, r, &ids) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.roomLocked(w, r)
	if !ok {
		return
	}
	for _, id := range ids {
		if p, found := s.participants[id]; found {
			room.Participants = appendUniqueParticipant(room.Participants, p)
		}
	}
	writeStubJSON(w, http.StatusOK, *room)
}

func (s *ChatServer) addParticipantsByEmails(w http.ResponseWriter, r *http.Request) {
	var emails []string
	if !decodeStub(w, r, &emails) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.roomLocked(w, r)
	if !ok {
		return
	}
	for _, email := range emails {
		room.Participants = appendUniqueParticipant(room.Participants, s.upsertParticipantLocked(chatclient.ParticipantInput{Email: email}))
	}
	writeStubJSON(w, http.StatusOK, *room)
}

func (s *ChatServer) removeParticipant(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.roomLocked(w, r)
	if !ok {
		return
	}
	pid, _ := uuid.Parse(mux.Vars(r)["pid"])
	room.Participants = lo.Reject(room.Participants, func(p chatclient.Participant, _ int) bool { return p.ID == pid })
	writeStubJSON(w, http.StatusOK, *room)
}

func (s *ChatServer) getParticipant(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, _ := uuid.Parse(mux.Vars(r)["id"])
	p, ok := s.participants[id]
	if !ok {
		writeStubJSON(w, http.StatusNotFound, map[string]any{"detail": "Participant not found"})
		return
	}
	writeStubJSON(w, http.StatusOK, p)
}

func (s *ChatServer) generateToken(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, _ := uuid.Parse(mux.Vars(r)["id"])
	p, ok := s.participants[id]
	if !ok {
		writeStubJSON(w, http.StatusNotFound, map[string]any{"detail": "Participant not found"})
		return
	}
	p.Token = uuid.NewString()
	s.participants[id] = p
	writeStubJSON(w, http.StatusOK, p)
}

// --- chats ---

func (s *ChatServer) createChat(w http.ResponseWriter, r *http.Request) {
	var input chatclient.ChatInput
	if !decodeStub(w, r, &input) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[input.RoomID]; !ok {
		writeStubJSON(w, http.StatusNotFound, map[string]any{"detail": "Room not found"})
		return
	}
	chat := chatclient.Chat{ID: uuid.New(), Content: input.Content, RoomID: input.RoomID}
	if p, ok := s.participants[input.ParticipantID]; ok {
		chat.CreatedBy = &p
	}
	for _, id := range input.Attachments {
		if a, ok := s.attachments[id]; ok {
			chat.Attachments = append(chat.Attachments, a)
		}
	}
	s.chats[chat.ID] = chat
	s.chatOrder = append(s.chatOrder, chat.ID)
	writeStubJSON(w, http.StatusCreated, chat)
}

func (s *ChatServer) getChat(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, _ := uuid.Parse(mux.Vars(r)["id"])
	chat, ok := s.chats[id]
	if !ok {
		writeStubJSON(w, http.StatusNotFound, map[string]any{"detail": "Chat not found"})
		return
	}
	writeStubJSON(w, http.StatusOK, chat)
}

func (s *ChatServer) updateChat(w http.ResponseWriter, r *http.Request) {
	var update chatclient.ChatUpdate
	if !decodeStub(w, r, &update) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	id, _ := uuid.Parse(mux.Vars(r)["id"])
	chat, ok := s.chats[id]
	if !ok {
		writeStubJSON(w, http.StatusNotFound, map[string]any{"detail": "Chat not found"})
		return
	}
	if update.Content != nil {
		chat.Content = *update.Content
	}
	s.chats[id] = chat
	writeStubJSON(w, http.StatusOK, chat)
}

func (s *ChatServer) deleteChat(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, _ := uuid.Parse(mux.Vars(r)["id"])
	if _, ok := s.chats[id]; !ok {
		writeStubJSON(w, http.StatusNotFound, map[string]any{"detail": "Chat not found"})
		return
	}
	delete(s.chats, id)
	s.chatOrder = lo.Without(s.chatOrder, id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *ChatServer) listChats(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	room, ok := s.roomLocked(w, r)
	if !ok {
		s.mu.Unlock()
		return
	}
	chats := s.chatsInRoomLocked(room.ID)
	s.mu.Unlock()

	if raw := r.URL.Query().Get("participant_id"); raw != "" {
		pid, _ := uuid.Parse(raw)
		chats = lo.Filter(chats, func(c chatclient.Chat, _ int) bool { return c.CreatedBy != nil && c.CreatedBy.ID == pid })
	}
	writeStubJSON(w, http.StatusOK, paginate(chats, r.URL.Query()))
}

func (s *ChatServer) searchChats(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	if query.Get("participant_id") == "" {
		writeStubJSON(w, http.StatusUnprocessableEntity, map[string]any{"detail": "participant_id is required"})
		return
	}
	s.mu.Lock()
	room, ok := s.roomLocked(w, r)
	if !ok {
		s.mu.Unlock()
		return
	}
	chats := s.chatsInRoomLocked(room.ID)
	s.mu.Unlock()

	content := strings.ToLower(query.Get("content"))
	email := query.Get("participant_email")
	chats = lo.Filter(chats, func(c chatclient.Chat, _ int) bool {
		if content != "" && !strings.Contains(strings.ToLower(c.Content), content) {
			return false
		}
		if email != "" && (c.CreatedBy == nil || !strings.EqualFold(c.CreatedBy.Email, email)) {
			return false
		}
		return true
	})
	writeStubJSON(w, http.StatusOK, paginate(chats, query))
}

// --- attachments ---

func (s *ChatServer) createAttachments(w http.ResponseWriter, r *http.Request) {
	var inputs []chatclient.AttachmentInput
	if !decodeStub(w, r, &inputs) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]chatclient.Attachment, 0, len(inputs))
	for _, input := range inputs {
		attachment := s.newAttachmentLocked(input)
		s.attachments[attachment.ID] = attachment
		out = append(out, attachment)
	}
	writeStubJSON(w, http.StatusCreated, out)
}

func (s *ChatServer) updateAttachment(w http.ResponseWriter, r *http.Request) {
	var input chatclient.AttachmentInput
	if !decodeStub(w, r, &input) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	id, _ := uuid.Parse(mux.Vars(r)["id"])
	attachment, ok := s.attachments[id]
	if !ok {
		writeStubJSON(w, http.StatusNotFound, map[string]any{"detail": "Attachment not found"})
		return
	}
	attachment.Filename = input.Filename
	if input.MimeType != "" {
		attachment.MimeType = input.MimeType
	}
	s.attachments[id] = attachment
	writeStubJSON(w, http.StatusOK, attachment)
}

func (s *ChatServer) presign(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, _ := uuid.Parse(mux.Vars(r)["id"])
	attachment, ok := s.attachments[id]
	if !ok {
		writeStubJSON(w, http.StatusNotFound, map[string]any{"detail": "Attachment not found"})
		return
	}
	attachment.PresignedData = s.presignedLocked(attachment.S3Key)
	s.attachments[id] = attachment
	writeStubJSON(w, http.StatusOK, attachment)
}

func (s *ChatServer) deleteAttachment(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, _ := uuid.Parse(mux.Vars(r)["id"])
	if _, ok := s.attachments[id]; !ok {
		writeStubJSON(w, http.StatusNotFound, map[string]any{"detail": "Attachment not found"})
		return
	}
	delete(s.attachments, id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *ChatServer) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(10 << 20); err != nil {
		http.Error(w, "<Error><Code>MalformedPOSTRequest</Code></Error>", http.StatusBadRequest)
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "<Error><Code>MissingFile</Code></Error>", http.StatusBadRequest)
		return
	}
	defer file.Close()
	content, _ := io.ReadAll(file)

	fields := make(map[string]string, len(r.MultipartForm.Value))
	for key, values := range r.MultipartForm.Value {
		if len(values) > 0 {
			fields[key] = values[0]
		}
	}

	s.mu.Lock()
	s.uploads = append(s.uploads, Upload{
		Fields:      fields,
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Content:     content,
	})
	s.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

// --- helpers ---

func (s *ChatServer) roomLocked(w http.ResponseWriter, r *http.Request) (*chatclient.Room, bool) {
	id, _ := uuid.Parse(mux.Vars(r)["id"])
	room, ok := s.rooms[id]
	if !ok {
		writeStubJSON(w, http.StatusNotFound, map[string]any{"detail": "Room not found"})
		return nil, false
	}
	return room, true
}

func (s *ChatServer) roomsLocked(keep func(*chatclient.Room) bool) []chatclient.Room {
	var out []chatclient.Room
	for _, id := range s.roomOrder {
		if room, ok := s.rooms[id]; ok && keep(room) {
			out = append(out, *room)
		}
	}
	return out
}

func (s *ChatServer) chatsInRoomLocked(roomID uuid.UUID) []chatclient.Chat {
	var out []chatclient.Chat
	for _, id := range s.chatOrder {
		if chat, ok := s.chats[id]; ok && chat.RoomID == roomID {
			out = append(out, chat)
		}
	}
	return out
}

func (s *ChatServer) upsertParticipantLocked(input chatclient.ParticipantInput) chatclient.Participant {
	for id, p := range s.participants {
		if strings.EqualFold(p.Email, input.Email) {
			if input.Name != "" {
				p.Name = input.Name
			}
			if input.Data != nil {
				p.Data = input.Data
			}
			s.participants[id] = p
			return p
		}
	}
	name := input.Name
	if name == "" {
		name = input.Email
	}
	p := chatclient.Participant{ID: uuid.New(), Name: name, Email: input.Email, Timezone: "UTC", Data: input.Data}
	s.participants[p.ID] = p
	return p
}

func (s *ChatServer) newAttachmentLocked(input chatclient.AttachmentInput) chatclient.Attachment {
	id := uuid.New()
	key := "attachments/" + id.String() + "/" + input.Filename
	createdBy := input.ParticipantID
	return chatclient.Attachment{
		ID:            id,
		URL:           s.URL + "/files/" + key,
		Filename:      input.Filename,
		S3Key:         key,
		MimeType:      input.MimeType,
		CreatedBy:     &createdBy,
		PresignedData: s.presignedLocked(key),
		DownloadURL:   s.URL + "/files/" + key + "?signature=stub",
	}
}

func (s *ChatServer) presignedLocked(key string) *chatclient.PresignedUpload {
	return &chatclient.PresignedUpload{
		URL: s.URL + "/uploads",
		Fields: map[string]string{
			"key":    key,
			"policy": "stub-policy",
		},
	}
}

func appendUniqueParticipant(list []chatclient.Participant, p chatclient.Participant) []chatclient.Participant {
	if lo.ContainsBy(list, func(existing chatclient.Participant) bool { return existing.ID == p.ID }) {
		return list
	}
	return append(list, p)
}

func paginate[T any](items []T, query url.Values) chatclient.Page[T] {
	page, _ := strconv.Atoi(query.Get("page"))
	size, _ := strconv.Atoi(query.Get("size"))
	if page <= 0 {
		page = chatclient.DefaultPage
	}
	if size <= 0 {
		size = chatclient.DefaultPageSize
	}
	start := min((page-1)*size, len(items))
	end := min(start+size, len(items))
	out := append([]T{}, items[start:end]...)
	return chatclient.Page[T]{Items: out, Total: len(items), Page: page, Size: size}
}

func decodeStub(w http.ResponseWriter, r *http.Request, out any) bool {
	if err := json.NewDecoder(r.Body).Decode(out); err != nil {
		writeStubJSON(w, http.StatusBadRequest, map[string]any{"detail": "malformed body: " + err.Error()})
		return false
	}
	return true
}

func writeStubJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
