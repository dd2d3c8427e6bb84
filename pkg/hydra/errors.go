package hydra

import (
	"errors"
	"fmt"
)

// ErrUnsupportedOperation is returned when the request builder is handed an
// operation type it does not know. This is a programmer error and is never
// retried.
var ErrUnsupportedOperation = errors.New("unsupported fetch operation")

// APIError represents a non-2xx response from the API. Transport failures
// propagate unchanged; this type only wraps responses the server did send.
type APIError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s", e.Message, e.Details)
	}
	return e.Message
}

// NewAPIError creates a new API error.
func NewAPIError(code int, message, details string) *APIError {
	return &APIError{Code: code, Message: message, Details: details}
}
