package application

import (
	"context"
	"errors"
	"log/slog"

	"github.com/example/chatrooms/internal/chatclient"
	"github.com/example/chatrooms/internal/logging"
)

func defaultLogger(logger *slog.Logger) *slog.Logger {
	if logger != nil {
		return logger
	}
	return slog.Default()
}

func serviceLogger(ctx context.Context, base *slog.Logger, serviceName, operation string, attrs ...any) *slog.Logger {
	logger := logging.FromContextOr(ctx, base)

	pairs := []any{"service", serviceName}
	if operation != "" {
		pairs = append(pairs, "operation", operation)
	}
	if len(attrs) > 0 {
		pairs = append(pairs, attrs...)
	}
	return logger.With(pairs...)
}

// ErrorKind maps sentinel, validation and remote errors to a stable logging label.
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}
	switch {
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrAlreadyExists):
		return "already_exists"
	case errors.Is(err, ErrRemoteRoomMissing):
		return "remote_room_missing"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	}

	var vErr *ValidationError
	if errors.As(err, &vErr) {
		return "validation"
	}
	var cvErr *chatclient.ValidationError
	if errors.As(err, &cvErr) {
		return "validation"
	}
	var remote *chatclient.RemoteServiceError
	if errors.As(err, &remote) {
		if remote.IsTransportFailure() {
			return "remote_unavailable"
		}
		return "remote"
	}
	var decodeErr *chatclient.DecodeError
	if errors.As(err, &decodeErr) {
		return "remote_response"
	}

	return "unexpected"
}
