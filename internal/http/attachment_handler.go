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

type remoteAttachments interface {
	CreateAttachments(ctx context.Context, inputs []chatclient.AttachmentInput) ([]chatclient.Attachment, error)
	UpdateAttachment(ctx context.Context, attachmentID uuid.UUID, input chatclient.AttachmentInput) (chatclient.Attachment, error)
	GeneratePresignedURL(ctx context.Context, attachmentID uuid.UUID) (chatclient.Attachment, error)
	DeleteAttachment(ctx context.Context, attachmentID uuid.UUID) error
}

type AttachmentHandler struct {
	members     roomMembership
	attachments remoteAttachments
	responder   responder
	logger      *slog.Logger
}

func NewAttachmentHandler(members roomMembership, attachments remoteAttachments, logger *slog.Logger) *AttachmentHandler {
	base := defaultLogger(logger)
	return &AttachmentHandler{members: members, attachments: attachments, responder: newResponder(base), logger: base}
}

func (h *AttachmentHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return handlerLogger(ctx, h.logger, "AttachmentHandler", operation, attrs...)
}

func (h *AttachmentHandler) ready(w http.ResponseWriter) bool {
	if h == nil || h.members == nil || h.attachments == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return false
	}
	return true
}

// Create registers attachment descriptors owned by the caller's remote
// participant and returns them with presigned upload data.
func (h *AttachmentHandler) Create(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}

	var req createAttachmentsRequest
	if err := decodeBody(r, &req); err != nil {
		h.log(r.Context(), "Create", "error_kind", "bad_request").ErrorContext(r.Context(), "failed to decode attachment request", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	logger := h.log(r.Context(), "Create", "chat_room_id", req.RoomID, "count", len(req.Files))
	member, ok := resolveMember(w, r, h.members, h.responder, logger, req.RoomID)
	if !ok {
		return
	}

	inputs := lo.Map(req.Files, func(f attachmentFile, _ int) chatclient.AttachmentInput {
		return chatclient.AttachmentInput{Filename: f.Filename, MimeType: f.MimeType, ParticipantID: member.Participant.ID}
	})
	attachments, err := h.attachments.CreateAttachments(r.Context(), inputs)
	if err != nil {
		logger.ErrorContext(r.Context(), "attachment creation failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "attachments created")
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, attachmentsResponse{Attachments: attachments})
}

func (h *AttachmentHandler) Update(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}

	attachmentID, ok := pathUUID(r, "id")
	if !ok {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidAttachID)
		return
	}

	var req updateAttachmentRequest
	if err := decodeBody(r, &req); err != nil {
		h.log(r.Context(), "Update", "attachment_id", attachmentID, "error_kind", "bad_request").ErrorContext(r.Context(), "failed to decode attachment update", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	logger := h.log(r.Context(), "Update", "attachment_id", attachmentID, "chat_room_id", req.RoomID)
	member, ok := resolveMember(w, r, h.members, h.responder, logger, req.RoomID)
	if !ok {
		return
	}

	attachment, err := h.attachments.UpdateAttachment(r.Context(), attachmentID, chatclient.AttachmentInput{
		Filename:      req.Filename,
		MimeType:      req.MimeType,
		ParticipantID: member.Participant.ID,
	})
	if err != nil {
		logger.ErrorContext(r.Context(), "attachment update failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "attachment updated")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, attachment)
}

func (h *AttachmentHandler) PresignedURL(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}

	attachmentID, ok := pathUUID(r, "id")
	if !ok {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidAttachID)
		return
	}
	logger := h.log(r.Context(), "PresignedURL", "attachment_id", attachmentID)

	attachment, err := h.attachments.GeneratePresignedURL(r.Context(), attachmentID)
	if err != nil {
		logger.ErrorContext(r.Context(), "presigned url generation failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "presigned url generated")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, attachment)
}

func (h *AttachmentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}

	attachmentID, ok := pathUUID(r, "id")
	if !ok {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidAttachID)
		return
	}
	logger := h.log(r.Context(), "Delete", "attachment_id", attachmentID)

	if err := h.attachments.DeleteAttachment(r.Context(), attachmentID); err != nil {
		logger.ErrorContext(r.Context(), "attachment delete failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "attachment deleted")
	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

type attachmentFile struct {
	Filename string `json:"filename"`
	MimeType string `json:"mime_type"`
}

type createAttachmentsRequest struct {
	RoomID string           `json:"room_id"`
	Files  []attachmentFile `json:"files"`
}

type updateAttachmentRequest struct {
	RoomID   string `json:"room_id"`
	Filename string `json:"filename"`
	MimeType string `json:"mime_type"`
}

type attachmentsResponse struct {
	Attachments []chatclient.Attachment `json:"attachments"`
}
