// Package apperror defines the error taxonomy shared by the resource clients,
// the request cache and the mutation layer.
//
// Every failure that crosses a package boundary is an *AppError wrapping one
// of the sentinel errors below, so callers branch with errors.Is:
//
//	if errors.Is(err, apperror.ErrNotFound) { ... }
//
// Status failures additionally match ErrStatus regardless of which status
// sentinel they carry.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrValidation   = errors.New("Validation Error")
	ErrConflict     = errors.New("conflict")
	ErrForbidden    = errors.New("forbidden")
	ErrUnauthorized = errors.New("unauthorized")

	ErrNetwork    = errors.New("network failure")
	ErrStatus     = errors.New("unexpected status")
	ErrShape      = errors.New("shape mismatch")
	ErrConversion = errors.New("conversion failure")
)

// GenericMessage is shown to users when a failure carries no server message.
const GenericMessage = "Something went wrong. Please try again later."

type AppError struct {
	Err     error  // sentinel
	Message string // Human-readable error message
	Field   string // Optional: field causing the error

	// Status is the HTTP status for StatusFailure errors, 0 otherwise.
	Status int
	// ServerMessage is the message the backend put in the error body, if any.
	ServerMessage string
	// Cause is the lower-level error (transport, decoder, strconv).
	Cause error
}

func (e *AppError) Error() string {
	return e.Message
}

// Unwrap exposes both the sentinel and the underlying cause to errors.Is/As.
func (e *AppError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Err}
	}
	return []error{e.Err, e.Cause}
}

// Is reports every status failure as ErrStatus.
func (e *AppError) Is(target error) bool {
	return target == ErrStatus && e.Status != 0
}

func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

func Conflict(resource, id string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: fmt.Sprintf("%s conflict with id %s", resource, id),
	}
}

// Forbidden returns an AppError indicating the caller lacks permission.
func Forbidden(message string) *AppError {
	return &AppError{
		Err:     ErrForbidden,
		Message: message,
	}
}

// NetworkFailure wraps a transport-level error (no connectivity, reset, DNS).
func NetworkFailure(op string, cause error) *AppError {
	return &AppError{
		Err:     ErrNetwork,
		Message: fmt.Sprintf("%s failed: %v", op, cause),
		Cause:   cause,
	}
}

// StatusFailure describes a non-2xx response. The sentinel is picked from the
// status so that a 404 from the backend matches ErrNotFound like a local
// lookup would.
func StatusFailure(op string, status int, serverMessage string) *AppError {
	msg := fmt.Sprintf("%s failed, status=%d", op, status)
	if serverMessage != "" {
		msg += ": " + serverMessage
	}
	return &AppError{
		Err:           sentinelForStatus(status),
		Message:       msg,
		Status:        status,
		ServerMessage: serverMessage,
	}
}

// ShapeMismatch reports a response body that does not satisfy the structural
// contract of an endpoint.
func ShapeMismatch(endpoint string, cause error) *AppError {
	msg := fmt.Sprintf("unexpected response shape for %s", endpoint)
	if cause != nil {
		msg += ": " + cause.Error()
	}
	return &AppError{
		Err:     ErrShape,
		Message: msg,
		Cause:   cause,
	}
}

// ConversionFailed reports a value that could not be coerced, e.g. a
// non-numeric id.
func ConversionFailed(value string, cause error) *AppError {
	return &AppError{
		Err:     ErrConversion,
		Message: fmt.Sprintf("cannot convert value %q to number", value),
		Cause:   cause,
	}
}

func sentinelForStatus(status int) error {
	switch status {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return ErrValidation
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusConflict:
		return ErrConflict
	default:
		return ErrStatus
	}
}

// UserMessage returns the text to show for a failed operation: the server's
// own message when it sent one, a client-side validation message, or the
// generic fallback phrase.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		if appErr.ServerMessage != "" {
			return appErr.ServerMessage
		}
		if errors.Is(appErr.Err, ErrValidation) && appErr.Status == 0 {
			return appErr.Message
		}
	}
	return GenericMessage
}
