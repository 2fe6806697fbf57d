package handlers

import (
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/lcalzada-xor/cyberiq/internal/core/domain"
	"github.com/lcalzada-xor/cyberiq/internal/core/ports"
	"github.com/lcalzada-xor/cyberiq/internal/core/services/export"
)

// AnswerRenderer renders a whole answer, e.g. to PDF.
type AnswerRenderer interface {
	ExportAnswer(answer domain.QueryAnswer) ([]byte, error)
}

// ExportHandler handles data export
type ExportHandler struct {
	Service ports.QueryService
	PDF     AnswerRenderer
}

// NewExportHandler creates a new ExportHandler
func NewExportHandler(service ports.QueryService, pdf AnswerRenderer) *ExportHandler {
	return &ExportHandler{
		Service: service,
		PDF:     pdf,
	}
}

// HandleExport answers GET /export/{format}?q=&page=&page_size=
func (h *ExportHandler) HandleExport(w http.ResponseWriter, r *http.Request) {
	format := strings.ToLower(mux.Vars(r)["format"])
	switch format {
	case "csv", "json":
	case "pdf":
		if h.PDF == nil {
			writeJSON(w, http.StatusNotImplemented, ErrorResponse{Error: "pdf export not configured"})
			return
		}
	default:
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: fmt.Sprintf("unsupported export format %q", format)})
		return
	}

	params := r.URL.Query()
	q := strings.TrimSpace(params.Get("q"))
	if q == "" {
		writeError(w, domain.ErrEmptyQuery)
		return
	}
	page, _ := strconv.Atoi(params.Get("page"))
	size, _ := strconv.Atoi(params.Get("page_size"))

	answer, err := h.Service.Answer(r.Context(), q, domain.PageRequest{Page: page, PageSize: size})
	if err != nil {
		writeError(w, err)
		return
	}

	filename := "cyberiq_" + answer.ID
	switch format {
	case "csv":
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", "attachment; filename="+filename+".csv")
		if err := export.ExportCSV(w, answer.Page.Records); err != nil {
			log.Printf("CSV export error: %v", err)
		}
	case "json":
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Content-Disposition", "attachment; filename="+filename+".json")
		if err := export.ExportJSON(w, answer.Page.Records); err != nil {
			log.Printf("JSON export error: %v", err)
		}
	case "pdf":
		data, err := h.PDF.ExportAnswer(answer)
		if err != nil {
			log.Printf("PDF export error: %v", err)
			writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "pdf generation failed"})
			return
		}
		w.Header().Set("Content-Type", "application/pdf")
		w.Header().Set("Content-Disposition", "attachment; filename="+filename+".pdf")
		w.Write(data)
	}
}
