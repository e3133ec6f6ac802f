package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/example/chatrooms/internal/application"
	"github.com/example/chatrooms/internal/chatclient"
)

type chatRoomService interface {
	CreateChatRoom(ctx context.Context, params application.CreateChatRoomParams) (application.ChatRoom, bool, error)
	GetChatRoomDetails(ctx context.Context, principal application.Principal, id string, lastN *int) (application.ChatRoomDetails, error)
	UpdateChatRoom(ctx context.Context, params application.UpdateChatRoomParams) (application.ChatRoom, error)
	LeaveChatRoom(ctx context.Context, principal application.Principal, id string) (bool, error)
	ListChatRoomsForUser(ctx context.Context, principal application.Principal, filter application.ListFilter) ([]application.ChatRoom, error)
	ArchivedChatRooms(ctx context.Context, principal application.Principal) ([]application.ChatRoom, error)
}

type roomSearcher interface {
	SearchRooms(ctx context.Context, opts chatclient.SearchRoomsOptions) (chatclient.Page[chatclient.Room], error)
}

type RoomHandler struct {
	service   chatRoomService
	search    roomSearcher
	responder responder
	logger    *slog.Logger
}

func NewRoomHandler(service chatRoomService, search roomSearcher, logger *slog.Logger) *RoomHandler {
	base := defaultLogger(logger)
	return &RoomHandler{service: service, search: search, responder: newResponder(base), logger: base}
}

func (h *RoomHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return handlerLogger(ctx, h.logger, "RoomHandler", operation, attrs...)
}

func (h *RoomHandler) ready(w http.ResponseWriter) bool {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return false
	}
	return true
}

func (h *RoomHandler) Create(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}

	principal, _ := PrincipalFromContext(r.Context())

	var req createRoomRequest
	if err := decodeBody(r, &req); err != nil {
		h.log(r.Context(), "Create", "principal_email", principal.Email, "error_kind", "bad_request").ErrorContext(r.Context(), "failed to decode room request", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	logger := h.log(r.Context(), "Create", "principal_email", principal.Email)

	room, created, err := h.service.CreateChatRoom(r.Context(), application.CreateChatRoomParams{
		Principal: principal,
		Input:     req.toInput(),
	})
	if err != nil {
		logger.ErrorContext(r.Context(), "room creation failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	logger.With("chat_room_id", room.ID, "created", created).InfoContext(r.Context(), "room ready")
	h.responder.writeJSON(r.Context(), w, status, roomResponse{Room: toChatRoomDTO(room), Created: created})
}

func (h *RoomHandler) Get(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	roomID := pathValue(r, "id")
	logger := h.log(r.Context(), "Get", "principal_email", principal.Email, "chat_room_id", roomID)

	lastN, err := queryInt(r, "last_n_messages")
	if err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, err)
		return
	}

	details, err := h.service.GetChatRoomDetails(r.Context(), principal, roomID, lastN)
	if err != nil {
		logger.ErrorContext(r.Context(), "room lookup failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "room loaded")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, roomDetailsResponse{Room: toChatRoomDTO(details.Room), Remote: details.Remote})
}

func (h *RoomHandler) Update(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	roomID := pathValue(r, "id")

	var req updateRoomRequest
	if err := decodeBody(r, &req); err != nil {
		h.log(r.Context(), "Update", "principal_email", principal.Email, "chat_room_id", roomID, "error_kind", "bad_request").ErrorContext(r.Context(), "failed to decode room update", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	logger := h.log(r.Context(), "Update", "principal_email", principal.Email, "chat_room_id", roomID)

	room, err := h.service.UpdateChatRoom(r.Context(), application.UpdateChatRoomParams{
		Principal:    principal,
		RoomID:       roomID,
		Name:         req.Name,
		Tags:         req.Tags,
		IsArchived:   req.IsArchived,
		Participants: req.Participants,
	})
	if err != nil {
		logger.ErrorContext(r.Context(), "room update failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "room updated")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, roomResponse{Room: toChatRoomDTO(room)})
}

func (h *RoomHandler) Leave(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	roomID := pathValue(r, "id")
	logger := h.log(r.Context(), "Leave", "principal_email", principal.Email, "chat_room_id", roomID)

	deleted, err := h.service.LeaveChatRoom(r.Context(), principal, roomID)
	if err != nil {
		logger.ErrorContext(r.Context(), "leaving room failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.With("deleted", deleted).InfoContext(r.Context(), "room left")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, leaveRoomResponse{Left: true, Deleted: deleted})
}

func (h *RoomHandler) List(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	logger := h.log(r.Context(), "List", "principal_email", principal.Email)

	rooms, err := h.service.ListChatRoomsForUser(r.Context(), principal, application.ListFilter{
		Name:             queryValue(r, "name"),
		ObjectID:         queryValue(r, "object_id"),
		ObjectType:       queryValue(r, "object_type"),
		ParticipantEmail: queryValue(r, "participant_email"),
	})
	if err != nil {
		logger.ErrorContext(r.Context(), "room list failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.With("result_count", len(rooms)).InfoContext(r.Context(), "rooms listed")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, listRoomsResponse{Rooms: toChatRoomDTOs(rooms)})
}

func (h *RoomHandler) Archived(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	logger := h.log(r.Context(), "Archived", "principal_email", principal.Email)

	rooms, err := h.service.ArchivedChatRooms(r.Context(), principal)
	if err != nil {
		logger.ErrorContext(r.Context(), "archived room list failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.With("result_count", len(rooms)).InfoContext(r.Context(), "archived rooms listed")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, listRoomsResponse{Rooms: toChatRoomDTOs(rooms)})
}

// Search queries the remote organisation-wide room index.
func (h *RoomHandler) Search(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.search == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	logger := h.log(r.Context(), "Search")
	page, err := h.search.SearchRooms(r.Context(), chatclient.SearchRoomsOptions{
		Name:             queryValue(r, "name"),
		ParticipantEmail: queryValue(r, "participant_email"),
	})
	if err != nil {
		logger.ErrorContext(r.Context(), "room search failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.With("result_count", len(page.Items)).InfoContext(r.Context(), "rooms searched")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, page)
}

type createRoomRequest struct {
	Name         string                         `json:"name"`
	ObjectType   string                         `json:"object_type"`
	ObjectID     string                         `json:"object_id"`
	Tags         []string                       `json:"tags"`
	IsArchived   bool                           `json:"is_archived"`
	Participants []application.ParticipantInput `json:"participants"`
}

func (r createRoomRequest) toInput() application.ChatRoomInput {
	return application.ChatRoomInput{
		Name:         r.Name,
		ObjectType:   r.ObjectType,
		ObjectID:     r.ObjectID,
		Tags:         r.Tags,
		IsArchived:   r.IsArchived,
		Participants: r.Participants,
	}
}

type updateRoomRequest struct {
	Name         *string                        `json:"name"`
	Tags         *[]string                      `json:"tags"`
	IsArchived   *bool                          `json:"is_archived"`
	Participants []application.ParticipantInput `json:"participants"`
}

type roomResponse struct {
	Room    chatRoomDTO `json:"room"`
	Created bool        `json:"created,omitempty"`
}

type roomDetailsResponse struct {
	Room   chatRoomDTO      `json:"room"`
	Remote *chatclient.Room `json:"remote,omitempty"`
}

type leaveRoomResponse struct {
	Left    bool `json:"left"`
	Deleted bool `json:"deleted"`
}

type listRoomsResponse struct {
	Rooms []chatRoomDTO `json:"rooms"`
}

type participantDTO struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type chatRoomDTO struct {
	ID           string           `json:"id"`
	RemoteRoomID string           `json:"remote_room_id"`
	Name         string           `json:"name"`
	ObjectType   string           `json:"object_type"`
	ObjectID     string           `json:"object_id"`
	Tags         []string         `json:"tags"`
	IsArchived   bool             `json:"is_archived"`
	CreatedBy    string           `json:"created_by"`
	Participants []participantDTO `json:"participants"`
	CreatedAt    string           `json:"created_at"`
	UpdatedAt    string           `json:"updated_at"`
}

func toChatRoomDTO(room application.ChatRoom) chatRoomDTO {
	tags := room.Tags
	if tags == nil {
		tags = []string{}
	}
	participants := make([]participantDTO, 0, len(room.Participants))
	for _, p := range room.Participants {
		participants = append(participants, participantDTO{ID: p.ID, Email: p.Email, Name: p.Name})
	}
	return chatRoomDTO{
		ID:           room.ID,
		RemoteRoomID: room.RemoteRoomID,
		Name:         room.Name,
		ObjectType:   room.ObjectType,
		ObjectID:     room.ObjectID,
		Tags:         tags,
		IsArchived:   room.IsArchived,
		CreatedBy:    room.CreatedBy,
		Participants: participants,
		CreatedAt:    room.CreatedAt.UTC().Format(time.RFC3339Nano),
		UpdatedAt:    room.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func toChatRoomDTOs(rooms []application.ChatRoom) []chatRoomDTO {
	out := make([]chatRoomDTO, 0, len(rooms))
	for _, room := range rooms {
		out = append(out, toChatRoomDTO(room))
	}
	return out
}
