package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/stratamed/policymatch/internal/types"
)

// statusForError maps domain errors onto HTTP statuses. Unknown ids map to
// 404, illegal lifecycle transitions to 409, payloads and expressions the
// validators reject to 422, oversized documents to 413. Anything else is
// a 500.
func statusForError(err error) int {
	var (
		validation *types.ValidationError
		unknown    *types.UnknownFieldError
		schema     *types.SchemaError
		transition *types.InvalidTransitionError
	)
	switch {
	case errors.Is(err, types.ErrRuleNotFound),
		errors.Is(err, types.ErrChunkNotFound),
		errors.Is(err, types.ErrDocumentNotFound):
		return http.StatusNotFound
	case errors.As(err, &transition):
		return http.StatusConflict
	case errors.As(err, &validation), errors.As(err, &unknown), errors.As(err, &schema):
		return http.StatusUnprocessableEntity
	case errors.Is(err, types.ErrDocumentTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, types.ErrEmptyDocument):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *Service) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to write response", "error", err)
	}
}

func (s *Service) writeError(w http.ResponseWriter, status int, err error) {
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}

// writeDomainError translates a domain error via statusForError. Server
// faults are logged here; client faults are the caller's problem and only
// surface in the response body.
func (s *Service) writeDomainError(w http.ResponseWriter, err error) {
	status := statusForError(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "error", err)
	}
	s.writeError(w, status, err)
}
