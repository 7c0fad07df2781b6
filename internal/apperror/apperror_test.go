package apperror

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"testing"
)

func TestErrorsIs(t *testing.T) {
	_, parseErr := strconv.ParseInt("abc", 10, 64)

	tests := []struct {
		name      string
		err       error
		target    error
		wantMatch bool
	}{
		{
			name:      "NotFound wraps ErrNotFound",
			err:       NotFound("snippet", "42"),
			target:    ErrNotFound,
			wantMatch: true,
		},
		{
			name:      "ValidationFailed wraps ErrValidation",
			err:       ValidationFailed("code", "code is required"),
			target:    ErrValidation,
			wantMatch: true,
		},
		{
			name:      "Conflict wraps ErrConflict",
			err:       Conflict("user", "alice"),
			target:    ErrConflict,
			wantMatch: true,
		},
		{
			name:      "NotFound does NOT match ErrValidation",
			err:       NotFound("snippet", "42"),
			target:    ErrValidation,
			wantMatch: false,
		},
		{
			name:      "404 status maps to ErrNotFound",
			err:       StatusFailure("load snippet", http.StatusNotFound, ""),
			target:    ErrNotFound,
			wantMatch: true,
		},
		{
			name:      "404 status also matches ErrStatus",
			err:       StatusFailure("load snippet", http.StatusNotFound, ""),
			target:    ErrStatus,
			wantMatch: true,
		},
		{
			name:      "401 status maps to ErrUnauthorized",
			err:       StatusFailure("load me", http.StatusUnauthorized, ""),
			target:    ErrUnauthorized,
			wantMatch: true,
		},
		{
			name:      "422 status maps to ErrValidation",
			err:       StatusFailure("register", http.StatusUnprocessableEntity, "bad"),
			target:    ErrValidation,
			wantMatch: true,
		},
		{
			name:      "client validation is not a status failure",
			err:       ValidationFailed("title", "title is required"),
			target:    ErrStatus,
			wantMatch: false,
		},
		{
			name:      "network failure keeps its cause",
			err:       NetworkFailure("load snippets", context.Canceled),
			target:    context.Canceled,
			wantMatch: true,
		},
		{
			name:      "conversion failure keeps strconv cause",
			err:       ConversionFailed("abc", parseErr),
			target:    strconv.ErrSyntax,
			wantMatch: true,
		},
		{
			name:      "wrapped shape mismatch still matches",
			err:       fmt.Errorf("api: %w", ShapeMismatch("/snippets", nil)),
			target:    ErrShape,
			wantMatch: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := errors.Is(tt.err, tt.target)
			if got != tt.wantMatch {
				t.Errorf("errors.Is(%v, %v) = %v, want %v", tt.err, tt.target, got, tt.wantMatch)
			}
		})
	}
}

func TestErrorMessages(t *testing.T) {
	tests := []struct {
		name        string
		err         *AppError
		wantMessage string
	}{
		{
			name:        "NotFound message includes resource and id",
			err:         NotFound("snippet", "42"),
			wantMessage: "snippet not found with id 42",
		},
		{
			name:        "status failure without server message",
			err:         StatusFailure("load snippets", 500, ""),
			wantMessage: "load snippets failed, status=500",
		},
		{
			name:        "status failure with server message",
			err:         StatusFailure("create snippet", 400, "code must not be empty"),
			wantMessage: "create snippet failed, status=400: code must not be empty",
		},
		{
			name:        "shape mismatch names the endpoint",
			err:         ShapeMismatch("/snippets/{id}", errors.New("id is required")),
			wantMessage: "unexpected response shape for /snippets/{id}: id is required",
		},
		{
			name:        "conversion failure quotes the value",
			err:         ConversionFailed("x1", nil),
			wantMessage: `cannot convert value "x1" to number`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.wantMessage {
				t.Errorf("Error() = %q, want %q", got, tt.wantMessage)
			}
		})
	}
}

func TestUserMessage(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil error", nil, ""},
		{"server message is shown verbatim", StatusFailure("mark", 409, "already marked"), "already marked"},
		{"status without message falls back", StatusFailure("mark", 500, ""), GenericMessage},
		{"client validation shows its message", ValidationFailed("body", "comment is empty"), "comment is empty"},
		{"plain error falls back", errors.New("boom"), GenericMessage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := UserMessage(tt.err); got != tt.want {
				t.Errorf("UserMessage() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestValidationFailedField(t *testing.T) {
	err := ValidationFailed("username", "username is required")

	if err.Field != "username" {
		t.Errorf("Field = %q, want %q", err.Field, "username")
	}
}
