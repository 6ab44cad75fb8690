package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Harshitk-cp/dissent/internal/domain"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeDomainError maps pipeline and replay errors onto HTTP statuses.
func writeDomainError(w http.ResponseWriter, err error) {
	var insufficient *domain.InsufficientInputError
	switch {
	case errors.Is(err, domain.ErrEventNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrInvalidEventID), errors.Is(err, domain.ErrEmptyIncident):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrIncidentConflict):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrNotLoadable), errors.As(err, &insufficient):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusServiceUnavailable, "analysis cancelled")
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
