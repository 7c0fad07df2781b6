package apitest

// RESPONSE HELPERS:
// Every handler answers through writeJSON or writeError so the fake backend
// speaks exactly one dialect:
//
//	success: the payload, wrapped as {"data": payload} when enveloping is on
//	failure: {"error": "not_found", "message": "snippet not found with id 42"}
//
// The client's mapper reads "message" (or "error") out of failure bodies, so
// the message is what the user ends up seeing.

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// writeJSON sends a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			slog.Error("apitest: failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// reply writes a 2xx payload, enveloped when the server is configured to.
func (s *Server) reply(w http.ResponseWriter, status int, data any) {
	if s.enveloped() {
		data = map[string]any{"data": data}
	}
	writeJSON(w, status, data)
}

// writeError sends the standard error body. The machine-readable type is
// derived from the status.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: errorType(status), Message: message})
}

func errorType(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "validation_error"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	default:
		return "internal_error"
	}
}

// decodeBody reads a JSON request body into dst and answers 400 when it
// cannot. It reports whether the handler should continue.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}
