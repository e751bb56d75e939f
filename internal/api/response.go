package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gyaneshwarpardhi/curriculumgraph/internal/config"
	"github.com/gyaneshwarpardhi/curriculumgraph/internal/curriculum"
	"github.com/gyaneshwarpardhi/curriculumgraph/internal/engine"
	"github.com/gyaneshwarpardhi/curriculumgraph/internal/filter"
	"github.com/gyaneshwarpardhi/curriculumgraph/internal/session"
)

// writeJSON encodes v as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// errorResponse is the standard error envelope.
type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// writeFailure maps a component error to its HTTP status.
func writeFailure(w http.ResponseWriter, err error) {
	writeError(w, statusOf(err), err.Error())
}

func statusOf(err error) int {
	var se *curriculum.StatusError
	switch {
	case errors.Is(err, config.ErrInvalid):
		return http.StatusUnprocessableEntity
	case errors.Is(err, filter.ErrInvalidGrade):
		return http.StatusBadRequest
	case errors.Is(err, filter.ErrLevelDisabled):
		return http.StatusConflict
	case errors.Is(err, filter.ErrUnknownOption):
		return http.StatusUnprocessableEntity
	case errors.Is(err, session.ErrUnauthorized), errors.Is(err, session.ErrNoCredential):
		return http.StatusUnauthorized
	case errors.Is(err, engine.ErrQueueFull):
		return http.StatusTooManyRequests
	case errors.Is(err, engine.ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.As(err, &se):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
