package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/vedran77/pulseboard/internal/service"
	"github.com/vedran77/pulseboard/pkg/validator"
)

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code string, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	})
}

func writeValidationErrors(w http.ResponseWriter, message string, errs validator.ValidationErrors) {
	body := map[string]any{
		"code":    "VALIDATION_ERROR",
		"message": message,
	}
	if errs.HasErrors() {
		body["fields"] = errs
	}
	writeJSON(w, http.StatusBadRequest, map[string]any{"error": body})
}

// writeServiceError maps a service error onto its HTTP status. Unknown
// errors are logged and reported as INTERNAL.
func writeServiceError(w http.ResponseWriter, r *http.Request, op string, err error) {
	var svcErr *service.Error
	switch {
	case errors.Is(err, service.ErrValidation):
		if errors.As(err, &svcErr) {
			writeValidationErrors(w, svcErr.Message, svcErr.Fields)
			return
		}
		writeValidationErrors(w, err.Error(), nil)
	case errors.Is(err, service.ErrForbidden):
		writeError(w, http.StatusForbidden, "FORBIDDEN", err.Error())
	case errors.Is(err, service.ErrNotFound):
		writeError(w, http.StatusNotFound, "NOT_FOUND", err.Error())
	default:
		zerolog.Ctx(r.Context()).Error().Err(err).Str("op", op).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "INTERNAL", "Something went wrong")
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return false
	}
	return true
}

func pathID(w http.ResponseWriter, r *http.Request, what string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ID", "Invalid "+what+" ID")
		return uuid.Nil, false
	}
	return id, true
}
