package types

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// TerminalError is a response-shaped failure. The dispatch loop returns it
// to the caller as-is and never retries it.
type TerminalError struct {
	Status  int
	Type    string
	Message string
}

func (e *TerminalError) Error() string {
	return fmt.Sprintf("%d %s: %s", e.Status, e.Type, e.Message)
}

// Body renders {"error":{"code":N,"message":"...","status":"..."}}.
func (e *TerminalError) Body() []byte {
	body, _ := json.Marshal(map[string]any{
		"error": map[string]any{
			"code":    e.Status,
			"message": e.Message,
			"status":  e.Type,
		},
	})
	return body
}

// WriteTo writes the error as a JSON response.
func (e *TerminalError) WriteTo(w http.ResponseWriter) {
	w.Header().Set(HeaderContentType, "application/json")
	w.WriteHeader(e.Status)
	_, _ = w.Write(e.Body())
}

// Unauthorized is returned when no usable credential was presented.
func Unauthorized(msg string) *TerminalError {
	return &TerminalError{Status: http.StatusUnauthorized, Type: "UNAUTHENTICATED", Message: msg}
}

// Forbidden is returned when the credential may not use the requested backend.
func Forbidden(msg string) *TerminalError {
	return &TerminalError{Status: http.StatusForbidden, Type: "PERMISSION_DENIED", Message: msg}
}

// Unavailable covers configuration errors and pool exhaustion.
func Unavailable(msg string) *TerminalError {
	return &TerminalError{Status: http.StatusServiceUnavailable, Type: "UNAVAILABLE", Message: msg}
}

// Internal covers transform failures.
func Internal(msg string) *TerminalError {
	return &TerminalError{Status: http.StatusInternalServerError, Type: "INTERNAL", Message: msg}
}

// BadGateway is returned when retries ran out without any upstream response.
func BadGateway(msg string) *TerminalError {
	return &TerminalError{Status: http.StatusBadGateway, Type: "BAD_GATEWAY", Message: msg}
}

// BadRequest is returned for unreadable requests and unsupported operations.
func BadRequest(msg string) *TerminalError {
	return &TerminalError{Status: http.StatusBadRequest, Type: "INVALID_ARGUMENT", Message: msg}
}

// TooLarge is returned when the request body exceeds the configured limit.
func TooLarge(msg string) *TerminalError {
	return &TerminalError{Status: http.StatusRequestEntityTooLarge, Type: "INVALID_ARGUMENT", Message: msg}
}
