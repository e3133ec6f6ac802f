package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/example/chatrooms/internal/application"
	"github.com/example/chatrooms/internal/chatclient"
)

type remoteParticipants interface {
	GetParticipants(ctx context.Context, roomID uuid.UUID, opts chatclient.ParticipantListOptions) (chatclient.Page[chatclient.Participant], error)
	AddParticipantsByIDs(ctx context.Context, roomID uuid.UUID, participantIDs []uuid.UUID) (chatclient.Room, error)
	AddParticipantsByEmails(ctx context.Context, roomID uuid.UUID, emails []string) (chatclient.Room, error)
	RemoveParticipant(ctx context.Context, roomID, participantID uuid.UUID) (chatclient.Room, error)
}

// participantRecorder mirrors remote membership changes into local storage.
type participantRecorder interface {
	UpsertParticipants(ctx context.Context, id string, participants []application.ParticipantInput) (application.ChatRoom, error)
}

type ParticipantHandler struct {
	members   roomMembership
	remote    remoteParticipants
	local     participantRecorder
	responder responder
	logger    *slog.Logger
}

func NewParticipantHandler(members roomMembership, remote remoteParticipants, local participantRecorder, logger *slog.Logger) *ParticipantHandler {
	base := defaultLogger(logger)
	return &ParticipantHandler{members: members, remote: remote, local: local, responder: newResponder(base), logger: base}
}

func (h *ParticipantHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return handlerLogger(ctx, h.logger, "ParticipantHandler", operation, attrs...)
}

func (h *ParticipantHandler) ready(w http.ResponseWriter) bool {
	if h == nil || h.members == nil || h.remote == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return false
	}
	return true
}

func (h *ParticipantHandler) List(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}

	roomID := queryValue(r, "room_id")
	logger := h.log(r.Context(), "List", "chat_room_id", roomID)

	opts, err := listOptions(r)
	if err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, err)
		return
	}
	member, ok := resolveMember(w, r, h.members, h.responder, logger, roomID)
	if !ok {
		return
	}

	page, err := h.remote.GetParticipants(r.Context(), member.RemoteRoomID, chatclient.ParticipantListOptions{
		ListOptions: opts,
		Email:       queryValue(r, "email"),
	})
	if err != nil {
		logger.ErrorContext(r.Context(), "participant list failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.With("result_count", len(page.Items)).InfoContext(r.Context(), "participants listed")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, page)
}

func (h *ParticipantHandler) AddByIDs(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}

	var req addByIDsRequest
	if err := decodeBody(r, &req); err != nil {
		h.log(r.Context(), "AddByIDs", "error_kind", "bad_request").ErrorContext(r.Context(), "failed to decode participant request", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	logger := h.log(r.Context(), "AddByIDs", "chat_room_id", req.RoomID, "count", len(req.ParticipantIDs))
	member, ok := resolveMember(w, r, h.members, h.responder, logger, req.RoomID)
	if !ok {
		return
	}

	room, err := h.remote.AddParticipantsByIDs(r.Context(), member.RemoteRoomID, req.ParticipantIDs)
	if err != nil {
		logger.ErrorContext(r.Context(), "adding participants failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.record(r.Context(), logger, member.Room.ID, room.Participants)
	logger.InfoContext(r.Context(), "participants added")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, room)
}

func (h *ParticipantHandler) AddByEmails(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}

	var req addByEmailsRequest
	if err := decodeBody(r, &req); err != nil {
		h.log(r.Context(), "AddByEmails", "error_kind", "bad_request").ErrorContext(r.Context(), "failed to decode participant request", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	logger := h.log(r.Context(), "AddByEmails", "chat_room_id", req.RoomID, "count", len(req.Emails))
	member, ok := resolveMember(w, r, h.members, h.responder, logger, req.RoomID)
	if !ok {
		return
	}

	room, err := h.remote.AddParticipantsByEmails(r.Context(), member.RemoteRoomID, req.Emails)
	if err != nil {
		logger.ErrorContext(r.Context(), "adding participants failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.record(r.Context(), logger, member.Room.ID, room.Participants)
	logger.InfoContext(r.Context(), "participants added")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, room)
}

func (h *ParticipantHandler) Remove(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}

	roomID := queryValue(r, "room_id")
	logger := h.log(r.Context(), "Remove", "chat_room_id", roomID)

	participantID, err := uuid.Parse(queryValue(r, "participant_id"))
	if err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidPartID)
		return
	}
	member, ok := resolveMember(w, r, h.members, h.responder, logger, roomID)
	if !ok {
		return
	}

	room, err := h.remote.RemoveParticipant(r.Context(), member.RemoteRoomID, participantID)
	if err != nil {
		logger.ErrorContext(r.Context(), "removing participant failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.With("participant_id", participantID).InfoContext(r.Context(), "participant removed")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, room)
}

// record mirrors the remote participant list locally. Failures are logged
// only; the remote change has already happened.
func (h *ParticipantHandler) record(ctx context.Context, logger *slog.Logger, roomID string, participants []chatclient.Participant) {
	if h.local == nil || len(participants) == 0 {
		return
	}
	inputs := lo.Map(participants, func(p chatclient.Participant, _ int) application.ParticipantInput {
		return application.ParticipantInput{Name: p.Name, Email: p.Email}
	})
	if _, err := h.local.UpsertParticipants(ctx, roomID, inputs); err != nil {
		logger.WarnContext(ctx, "failed to record participants locally", "error", err, "error_kind", application.ErrorKind(err))
	}
}

type addByIDsRequest struct {
	RoomID         string      `json:"room_id"`
	ParticipantIDs []uuid.UUID `json:"participant_ids"`
}

type addByEmailsRequest struct {
	RoomID string   `json:"room_id"`
	Emails []string `json:"emails"`
}
