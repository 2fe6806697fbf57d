package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/lcalzada-xor/cyberiq/internal/core/domain"
	"github.com/lcalzada-xor/cyberiq/internal/core/ports"
)

// maxQueryBody bounds a POST /query body.
const maxQueryBody = 64 << 10

// QueryRequest is the body of POST /query.
type QueryRequest struct {
	Query    string `json:"query"`
	Page     int    `json:"page,omitempty"`
	PageSize int    `json:"page_size,omitempty"`
}

// QueryHandler serves questions, single-record lookups and stats.
type QueryHandler struct {
	Service ports.QueryService
}

// NewQueryHandler creates a new QueryHandler
func NewQueryHandler(service ports.QueryService) *QueryHandler {
	return &QueryHandler{Service: service}
}

// HandleQuery answers POST /query
func (h *QueryHandler) HandleQuery(w http.ResponseWriter, r *http.Request) {
	var req QueryRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxQueryBody)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(w, domain.ErrEmptyQuery)
		return
	}

	answer, err := h.Service.Answer(r.Context(), req.Query, domain.PageRequest{Page: req.Page, PageSize: req.PageSize})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, answer)
}

// HandleLookup answers GET /vulnerabilities/{id}
func (h *QueryHandler) HandleLookup(w http.ResponseWriter, r *http.Request) {
	record, err := h.Service.Lookup(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

// HandleStats answers GET /stats
func (h *QueryHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Service.Stats(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
