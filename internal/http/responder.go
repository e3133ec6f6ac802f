package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/example/chatrooms/internal/application"
	"github.com/example/chatrooms/internal/chatclient"
)

var (
	errBadRequestBody  = errors.New("request body is malformed")
	errMissingIdentity = errors.New("X-User-Email header is required")
	errInvalidRoomID   = errors.New("room_id is required")
	errInvalidChatID   = errors.New("chat id must be a UUID")
	errInvalidAttachID = errors.New("attachment id must be a UUID")
	errInvalidPartID   = errors.New("participant_id must be a UUID")
	errInvalidQuery    = errors.New("query parameter is invalid")
)

type responder struct {
	logger *slog.Logger
}

func newResponder(logger *slog.Logger) responder {
	if logger == nil {
		logger = slog.Default()
	}
	return responder{logger: logger}
}

func (r responder) writeJSON(ctx context.Context, w http.ResponseWriter, status int, payload any) {
	if w == nil {
		return
	}

	if status == http.StatusNoContent || payload == nil {
		w.WriteHeader(status)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		r.loggerFor(ctx).ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (r responder) writeError(ctx context.Context, w http.ResponseWriter, status int, err error) {
	message := http.StatusText(status)
	if err != nil {
		if msg := strings.TrimSpace(err.Error()); msg != "" {
			message = msg
		}
		r.loggerFor(ctx).ErrorContext(ctx, "request failed", "status", status, "error", err)
	}

	r.writeJSON(ctx, w, status, errorResponse{Message: message})
}

// handleServiceError maps service and client errors to responses. Remote
// error statuses and payloads are relayed unchanged.
func (r responder) handleServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		r.writeError(ctx, w, http.StatusInternalServerError, errors.New("unknown error"))
		return
	}

	switch {
	case errors.Is(err, application.ErrUnauthorized):
		r.writeJSON(ctx, w, http.StatusForbidden, errorResponse{
			ErrorCode: "FORBIDDEN",
			Message:   "you are not allowed to perform this operation",
		})
		return
	case errors.Is(err, application.ErrNotFound):
		r.writeJSON(ctx, w, http.StatusNotFound, errorResponse{Message: "resource not found"})
		return
	case errors.Is(err, application.ErrAlreadyExists):
		r.writeJSON(ctx, w, http.StatusConflict, errorResponse{Message: "resource already exists"})
		return
	case errors.Is(err, application.ErrRemoteRoomMissing):
		r.writeJSON(ctx, w, http.StatusBadGateway, errorResponse{ErrorCode: "REMOTE_ROOM_MISSING", Message: "chat service did not return a room id"})
		return
	case errors.Is(err, context.DeadlineExceeded):
		r.writeJSON(ctx, w, http.StatusGatewayTimeout, errorResponse{Message: "chat service timed out"})
		return
	}

	var vErr *application.ValidationError
	if errors.As(err, &vErr) {
		r.writeJSON(ctx, w, http.StatusUnprocessableEntity, errorResponse{
			Message: "validation failed",
			Errors:  vErr.FieldErrors,
		})
		return
	}

	var cvErr *chatclient.ValidationError
	if errors.As(err, &cvErr) {
		r.writeJSON(ctx, w, http.StatusUnprocessableEntity, errorResponse{
			Message: "validation failed",
			Errors:  map[string]string{cvErr.Field: cvErr.Message},
		})
		return
	}

	var remote *chatclient.RemoteServiceError
	if errors.As(err, &remote) {
		if remote.IsTransportFailure() {
			r.writeJSON(ctx, w, http.StatusBadGateway, errorResponse{ErrorCode: "REMOTE_UNAVAILABLE", Message: "chat service is unavailable"})
			return
		}
		var payload any = remote.Payload
		if len(remote.Payload) == 0 {
			payload = map[string]any{"detail": http.StatusText(remote.StatusCode)}
		}
		r.writeJSON(ctx, w, remote.StatusCode, payload)
		return
	}

	var decodeErr *chatclient.DecodeError
	if errors.As(err, &decodeErr) {
		r.writeJSON(ctx, w, http.StatusBadGateway, errorResponse{ErrorCode: "REMOTE_RESPONSE", Message: "chat service returned an unexpected response"})
		return
	}

	r.writeJSON(ctx, w, http.StatusInternalServerError, errorResponse{Message: "internal server error"})
}

func (r responder) loggerFor(ctx context.Context) *slog.Logger {
	if logger := LoggerFromContext(ctx); logger != nil {
		return logger
	}
	return r.logger
}

type errorResponse struct {
	ErrorCode string            `json:"error_code,omitempty"`
	Message   string            `json:"message"`
	Errors    map[string]string `json:"errors,omitempty"`
}
