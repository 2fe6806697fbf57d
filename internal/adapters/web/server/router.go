package server

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lcalzada-xor/cyberiq/internal/adapters/web/middleware"
)

func SetupRoutes(s *Server) *mux.Router {
	r := mux.NewRouter()

	// Public
	if s.HealthHandler != nil {
		r.HandleFunc("/", s.HealthHandler.HandleHealth).Methods(http.MethodGet)
	}
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	// Protected API
	api := r.NewRoute().Subrouter()
	api.Use(middleware.APIKeyMiddleware(s.Options.APIKeyHash))

	limited := middleware.RateLimitMiddleware(s.limiter)

	api.Handle("/query", limited(http.HandlerFunc(s.QueryHandler.HandleQuery))).Methods(http.MethodPost)
	api.Handle("/export/{format}", limited(http.HandlerFunc(s.ExportHandler.HandleExport))).Methods(http.MethodGet)
	api.HandleFunc("/stats", s.QueryHandler.HandleStats).Methods(http.MethodGet)
	api.HandleFunc("/vulnerabilities/{id}", s.QueryHandler.HandleLookup).Methods(http.MethodGet)

	if s.WSManager != nil {
		api.HandleFunc("/ws", s.WSManager.HandleWebSocket).Methods(http.MethodGet)
	}

	return r
}
