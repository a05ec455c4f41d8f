package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/atlekbai/source_registry/internal/source"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Details string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message, details string) {
	writeJSON(w, status, ErrorResponse{
		Error:   message,
		Code:    code,
		Details: details,
	})
}

// writeSourceError maps source errors onto HTTP statuses.
func writeSourceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, source.ErrNotFound):
		writeError(w, http.StatusNotFound, "SOURCE_NOT_FOUND", "Source not found", err.Error())
	case errors.Is(err, source.ErrUsage):
		writeError(w, http.StatusBadRequest, "INVALID_CALL", "Invalid source call", err.Error())
	case errors.Is(err, source.ErrConfiguration),
		errors.Is(err, source.ErrColumnMismatch),
		errors.Is(err, source.ErrAmbiguousTranslation):
		writeError(w, http.StatusUnprocessableEntity, "SOURCE_MISCONFIGURED", "Source does not fit its entity", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Query failed", err.Error())
	}
}
