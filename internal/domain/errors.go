package domain

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrOperationInProgress is returned when an auth operation is attempted
// while another one is still in flight.
var ErrOperationInProgress = errors.New("another authentication operation is in progress")

// ErrMalformedToken is returned when a credential fails the structural check.
var ErrMalformedToken = errors.New("malformed credential token")

// ErrNotAuthenticated is returned when an operation requires a signed-in
// session and none is present.
var ErrNotAuthenticated = errors.New("not authenticated")

// CodeValidation is the server-side error code for validation failures.
// Responses carrying it render inline per field and never produce a toast.
const CodeValidation = "VALIDATION_ERROR"

// ValidationError is a client-detected, field-scoped validation failure.
// It is never retried and never surfaced as a generic toast.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "validation failed"
	}
	names := make([]string, 0, len(e.Fields))
	for f := range e.Fields {
		names = append(names, f)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, f := range names {
		parts = append(parts, fmt.Sprintf("%s: %s", f, e.Fields[f]))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// APIError is an error response from the request-response API,
// carrying the server's {message, code, details} envelope.
type APIError struct {
	Status  int
	Code    string
	Message string
	Details map[string]string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error %d (%s): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("api error %d: %s", e.Status, e.Message)
}

// IsAuthError reports whether err is a definitive 401/403 from the server.
func IsAuthError(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status == 401 || apiErr.Status == 403
	}
	return false
}

// IsValidationError reports whether err is a validation failure, either
// client-detected or flagged by the server with CodeValidation.
func IsValidationError(err error) bool {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == CodeValidation
	}
	return false
}

// IsRetryable reports whether err may be retried: network-level failures and
// 5xx responses are transient, any 4xx is definitive, validation never retries.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var verr *ValidationError
	if errors.As(err, &verr) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status >= 500
	}
	// No HTTP status at all means the request never completed.
	return true
}

// UserMessage extracts the text a toast should carry for err.
func UserMessage(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return "Something went wrong. Please try again."
}
