package handlers

import (
	"net/http"
	"time"

	"github.com/lcalzada-xor/cyberiq/internal/core/domain"
)

// CacheView reads a source's cached window without fetching.
type CacheView interface {
	Name() domain.Source
	Cached(windowDays int) ([]domain.VulnerabilityRecord, bool)
}

// SourceView is one source window reported by the health endpoint.
type SourceView struct {
	View       CacheView
	WindowDays int
}

// TechniqueView reports what the ATT&CK catalog holds without loading it.
type TechniqueView interface {
	Stats() domain.TechniqueStats
}

// SourceHealth is the cache state of one source.
type SourceHealth struct {
	Loaded  bool `json:"loaded"`
	Records int  `json:"records"`
}

// HealthResponse is the body of GET /.
type HealthResponse struct {
	Status  string                         `json:"status"`
	Service string                         `json:"service"`
	Version string                         `json:"version"`
	Uptime  string                         `json:"uptime"`
	Sources map[domain.Source]SourceHealth `json:"sources"`
	Mitre   *domain.TechniqueStats         `json:"mitre,omitempty"`
}

// HealthHandler reports liveness and what each source cache holds.
type HealthHandler struct {
	Service string
	Version string
	Sources []SourceView
	// Techniques is optional.
	Techniques TechniqueView
	started    time.Time
}

// NewHealthHandler creates a new HealthHandler
func NewHealthHandler(service, version string, sources []SourceView) *HealthHandler {
	return &HealthHandler{Service: service, Version: version, Sources: sources, started: time.Now()}
}

// HandleHealth answers GET /
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:  "ok",
		Service: h.Service,
		Version: h.Version,
		Uptime:  time.Since(h.started).Round(time.Second).String(),
		Sources: make(map[domain.Source]SourceHealth, len(h.Sources)),
	}
	for _, s := range h.Sources {
		records, ok := s.View.Cached(s.WindowDays)
		resp.Sources[s.View.Name()] = SourceHealth{Loaded: ok, Records: len(records)}
	}
	if h.Techniques != nil {
		stats := h.Techniques.Stats()
		resp.Mitre = &stats
	}
	writeJSON(w, http.StatusOK, resp)
}
