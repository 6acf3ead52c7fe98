package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/propbook-app/propbook/internal/model"
)

// jsonResponse writes a JSON response with the given status code.
func jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			slog.Error("encoding response", "error", err)
		}
	}
}

// jsonError writes a JSON error response.
func jsonError(w http.ResponseWriter, status int, message string) {
	jsonResponse(w, status, map[string]any{"error": message})
}

// domainError maps a store/ledger error onto an HTTP status using the
// shared error taxonomy. Clients can retry on "retryable": true
// (storage faults); everything else is terminal.
func domainError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, model.ErrInvalidArgument):
		status = http.StatusBadRequest
	case errors.Is(err, model.ErrUnauthorized):
		status = http.StatusForbidden
	case errors.Is(err, model.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, model.ErrInvalidStateTransition):
		status = http.StatusConflict
	case errors.Is(err, model.ErrStorageUnavailable):
		status = http.StatusServiceUnavailable
	}

	message := err.Error()
	if status == http.StatusInternalServerError {
		slog.Error("internal error", "error", err)
		message = "internal error"
	}

	jsonResponse(w, status, map[string]any{
		"error":     message,
		"retryable": errors.Is(err, model.ErrStorageUnavailable),
	})
}

// decodeJSON decodes a JSON request body into the given target.
func decodeJSON(r *http.Request, target any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(target)
}

// pathID parses a positive integer path value.
func pathID(r *http.Request, name string) (int64, bool) {
	id, err := parseID(r.PathValue(name))
	return id, err == nil
}
