package http

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/example/chatrooms/internal/application"
	"github.com/example/chatrooms/internal/chatclient"
)

// roomMembership resolves a local room id to the caller's remote identity.
type roomMembership interface {
	RemoteMember(ctx context.Context, principal application.Principal, id string) (application.RemoteMember, error)
}

type remoteChats interface {
	CreateChat(ctx context.Context, input chatclient.ChatInput) (chatclient.Chat, error)
	GetChatsInRoom(ctx context.Context, roomID uuid.UUID, opts chatclient.ChatsInRoomOptions) (chatclient.Page[chatclient.Chat], error)
	SearchChats(ctx context.Context, roomID uuid.UUID, opts chatclient.SearchChatsOptions) (chatclient.Page[chatclient.Chat], error)
	GetChat(ctx context.Context, chatID uuid.UUID) (chatclient.Chat, error)
	UpdateChat(ctx context.Context, chatID uuid.UUID, update chatclient.ChatUpdate) (chatclient.Chat, error)
	DeleteChat(ctx context.Context, chatID uuid.UUID) error
}

type ChatHandler struct {
	members   roomMembership
	chats     remoteChats
	responder responder
	logger    *slog.Logger
}

func NewChatHandler(members roomMembership, chats remoteChats, logger *slog.Logger) *ChatHandler {
	base := defaultLogger(logger)
	return &ChatHandler{members: members, chats: chats, responder: newResponder(base), logger: base}
}

func (h *ChatHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return handlerLogger(ctx, h.logger, "ChatHandler", operation, attrs...)
}

func (h *ChatHandler) ready(w http.ResponseWriter) bool {
	if h == nil || h.members == nil || h.chats == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return false
	}
	return true
}

// member resolves roomID for the caller, writing the error response itself.
func (h *ChatHandler) member(w http.ResponseWriter, r *http.Request, logger *slog.Logger, roomID string) (application.RemoteMember, bool) {
	return resolveMember(w, r, h.members, h.responder, logger, roomID)
}

func resolveMember(w http.ResponseWriter, r *http.Request, members roomMembership, resp responder, logger *slog.Logger, roomID string) (application.RemoteMember, bool) {
	if strings.TrimSpace(roomID) == "" {
		resp.writeError(r.Context(), w, http.StatusBadRequest, errInvalidRoomID)
		return application.RemoteMember{}, false
	}
	principal, _ := PrincipalFromContext(r.Context())
	member, err := members.RemoteMember(r.Context(), principal, roomID)
	if err != nil {
		logger.ErrorContext(r.Context(), "room membership check failed", "error", err, "error_kind", application.ErrorKind(err))
		resp.handleServiceError(r.Context(), w, err)
		return application.RemoteMember{}, false
	}
	return member, true
}

func (h *ChatHandler) Create(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}

	var req createChatRequest
	if err := decodeBody(r, &req); err != nil {
		h.log(r.Context(), "Create", "error_kind", "bad_request").ErrorContext(r.Context(), "failed to decode chat request", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	logger := h.log(r.Context(), "Create", "chat_room_id", req.RoomID)
	member, ok := h.member(w, r, logger, req.RoomID)
	if !ok {
		return
	}

	chat, err := h.chats.CreateChat(r.Context(), chatclient.ChatInput{
		Content:       req.Content,
		RoomID:        member.RemoteRoomID,
		ParticipantID: member.Participant.ID,
		Attachments:   req.Attachments,
	})
	if err != nil {
		logger.ErrorContext(r.Context(), "chat creation failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.With("chat_id", chat.ID).InfoContext(r.Context(), "chat created")
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, chat)
}

// InRoom lists a room's messages; mine=true restricts them to the caller's.
func (h *ChatHandler) InRoom(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}

	roomID := queryValue(r, "room_id")
	logger := h.log(r.Context(), "InRoom", "chat_room_id", roomID)
	member, ok := h.member(w, r, logger, roomID)
	if !ok {
		return
	}

	var opts chatclient.ChatsInRoomOptions
	if mine, _ := strconv.ParseBool(queryValue(r, "mine")); mine {
		opts.ParticipantID = member.Participant.ID
	}

	page, err := h.chats.GetChatsInRoom(r.Context(), member.RemoteRoomID, opts)
	if err != nil {
		logger.ErrorContext(r.Context(), "chat list failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.With("result_count", len(page.Items)).InfoContext(r.Context(), "chats listed")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, page)
}

func (h *ChatHandler) Search(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}

	roomID := queryValue(r, "room_id")
	logger := h.log(r.Context(), "Search", "chat_room_id", roomID)
	member, ok := h.member(w, r, logger, roomID)
	if !ok {
		return
	}

	page, err := h.chats.SearchChats(r.Context(), member.RemoteRoomID, chatclient.SearchChatsOptions{
		ParticipantID:    member.Participant.ID,
		Content:          queryValue(r, "content"),
		ParticipantEmail: queryValue(r, "participant_email"),
	})
	if err != nil {
		logger.ErrorContext(r.Context(), "chat search failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.With("result_count", len(page.Items)).InfoContext(r.Context(), "chats searched")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, page)
}

func (h *ChatHandler) Get(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}

	chatID, ok := pathUUID(r, "id")
	if !ok {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidChatID)
		return
	}
	logger := h.log(r.Context(), "Get", "chat_id", chatID)

	chat, err := h.chats.GetChat(r.Context(), chatID)
	if err != nil {
		logger.ErrorContext(r.Context(), "chat lookup failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, chat)
}

func (h *ChatHandler) Update(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}

	chatID, ok := pathUUID(r, "id")
	if !ok {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidChatID)
		return
	}

	var req chatclient.ChatUpdate
	if err := decodeBody(r, &req); err != nil {
		h.log(r.Context(), "Update", "chat_id", chatID, "error_kind", "bad_request").ErrorContext(r.Context(), "failed to decode chat update", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}
	logger := h.log(r.Context(), "Update", "chat_id", chatID)

	chat, err := h.chats.UpdateChat(r.Context(), chatID, req)
	if err != nil {
		logger.ErrorContext(r.Context(), "chat update failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "chat updated")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, chat)
}

func (h *ChatHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}

	chatID, ok := pathUUID(r, "id")
	if !ok {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidChatID)
		return
	}
	logger := h.log(r.Context(), "Delete", "chat_id", chatID)

	if err := h.chats.DeleteChat(r.Context(), chatID); err != nil {
		logger.ErrorContext(r.Context(), "chat delete failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "chat deleted")
	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

type createChatRequest struct {
	RoomID      string      `json:"room_id"`
	Content     string      `json:"content"`
	Attachments []uuid.UUID `json:"attachments"`
}
