package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/lcalzada-xor/cyberiq/internal/core/domain"
)

// ErrorResponse is the body of every non-2xx JSON answer.
type ErrorResponse struct {
	Error string `json:"error"`
}

// StatusFor maps pipeline errors onto HTTP status codes.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrAllSourcesFailed):
		return http.StatusServiceUnavailable
	case errors.Is(err, domain.ErrEmptyQuery),
		errors.Is(err, domain.ErrIntentResolutionFailed),
		errors.Is(err, domain.ErrInvalidIntent),
		errors.Is(err, domain.ErrInvalidYearFilter),
		errors.Is(err, domain.ErrInvalidSince):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrRecordNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("JSON encode error: %v", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	if status == http.StatusInternalServerError {
		log.Printf("Request failed: %v", err)
	}
	writeJSON(w, status, ErrorResponse{Error: err.Error()})
}
