package domain

import (
	"encoding/json"
	"errors"
	"net/http"
)

// Sentinel errors crossing the application boundary. Remote-call errors never
// propagate past their component; these are the only error values handlers
// are expected to branch on.
var (
	// ErrNotFound reports that a target could not be located in any
	// administered scope. The resolver keeps this distinct from transport
	// errors, which are swallowed per probe.
	ErrNotFound = errors.New("target not locatable in any administered scope")

	// ErrInvalidTarget reports a malformed target reference, rejected
	// before any remote call is attempted.
	ErrInvalidTarget = errors.New("invalid target reference")

	// ErrStopIteration is returned by an IterMembers callback to end the
	// walk early without error.
	ErrStopIteration = errors.New("stop iteration")
)

// ErrorCode represents a specific error condition on the HTTP surface.
type ErrorCode string

const (
	ErrInvalidAPIKey ErrorCode = "InvalidAPIKey" // HTTP 401/403
	ErrBadRequest    ErrorCode = "BadRequest"    // HTTP 400
	ErrTargetUnknown ErrorCode = "TargetUnknown" // HTTP 404
	ErrInternal      ErrorCode = "InternalServerError"
)

// ErrorResponse is the standard error format returned to admin API clients.
type ErrorResponse struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details string    `json:"details,omitempty"`
}

// NewErrorResponse creates a new ErrorResponse struct.
func NewErrorResponse(code ErrorCode, message string, details string) ErrorResponse {
	return ErrorResponse{
		Code:    code,
		Message: message,
		Details: details,
	}
}

// WriteJSON sends an ErrorResponse as JSON with the given HTTP status code.
func (er ErrorResponse) WriteJSON(w http.ResponseWriter, httpStatusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatusCode)
	json.NewEncoder(w).Encode(er) // Best effort, error from Encode is not typically handled here.
}
