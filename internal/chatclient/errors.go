package chatclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// RemoteServiceError is the single normalized failure returned by every
// remote operation. StatusCode is zero when no response was received.
type RemoteServiceError struct {
	Method     string
	URL        string
	StatusCode int

	// Payload is the remote error body when it was a JSON object, or
	// {"detail": ...} wrapping the raw text or transport failure.
	Payload map[string]any

	// Err is the underlying transport error for connection-level failures.
	Err error
}

// Error implements the error interface.
func (e *RemoteServiceError) Error() string {
	if e == nil {
		return ""
	}
	if e.StatusCode == 0 {
		return fmt.Sprintf("chatclient: %s %s: transport failure: %s", e.Method, e.URL, e.Detail())
	}
	return fmt.Sprintf("chatclient: %s %s: status %d: %s", e.Method, e.URL, e.StatusCode, e.Detail())
}

// Unwrap exposes the transport error, if any.
func (e *RemoteServiceError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Detail returns the "detail" entry of the payload, or the whole payload
// rendered as JSON when the remote service used a different shape.
func (e *RemoteServiceError) Detail() string {
	if e == nil || len(e.Payload) == 0 {
		return ""
	}
	if detail, ok := e.Payload["detail"].(string); ok {
		return detail
	}
	encoded, err := json.Marshal(e.Payload)
	if err != nil {
		return fmt.Sprint(e.Payload)
	}
	return string(encoded)
}

// IsTransportFailure reports whether no HTTP response was received.
func (e *RemoteServiceError) IsTransportFailure() bool {
	return e != nil && e.StatusCode == 0
}

// IsNotFound reports whether err is a RemoteServiceError with status 404.
func IsNotFound(err error) bool {
	return StatusCode(err) == http.StatusNotFound
}

// IsTransportFailure reports whether err is a RemoteServiceError raised
// before any response was received.
func IsTransportFailure(err error) bool {
	var remoteErr *RemoteServiceError
	return errors.As(err, &remoteErr) && remoteErr.IsTransportFailure()
}

// StatusCode extracts the remote HTTP status from err, or zero.
func StatusCode(err error) int {
	var remoteErr *RemoteServiceError
	if errors.As(err, &remoteErr) {
		return remoteErr.StatusCode
	}
	return 0
}

// DecodeError reports a successful response whose body did not match the
// shape expected by the operation.
type DecodeError struct {
	Operation string
	Err       error
}

// Error implements the error interface.
func (e *DecodeError) Error() string {
	return fmt.Sprintf("chatclient: %s: decoding response: %v", e.Operation, e.Err)
}

// Unwrap returns the underlying json error.
func (e *DecodeError) Unwrap() error {
	return e.Err
}

// ValidationError is returned before any request is sent when an operation
// argument is missing or malformed.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("chatclient: %s: %s", e.Field, e.Message)
}

func invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}
