package server

import (
	"context"
	"log"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/lcalzada-xor/cyberiq/internal/adapters/web/handlers"
	"github.com/lcalzada-xor/cyberiq/internal/adapters/web/middleware"
	"github.com/lcalzada-xor/cyberiq/internal/adapters/web/websocket"
	"github.com/lcalzada-xor/cyberiq/internal/core/ports"
)

// Options tunes the HTTP surface.
type Options struct {
	// APIKeyHash is the bcrypt hash of the API key. Empty leaves the API open.
	APIKeyHash []byte
	// RateLimit is the number of /query and /export requests per client per minute.
	RateLimit int
}

// Server handles HTTP and WebSocket connections.
type Server struct {
	Addr          string
	Options       Options
	QueryHandler  *handlers.QueryHandler
	ExportHandler *handlers.ExportHandler
	HealthHandler *handlers.HealthHandler
	WSManager     *websocket.WSManager
	limiter       *middleware.RateLimiter
	srv           *http.Server
}

// NewServer creates a new web server.
func NewServer(addr string, service ports.QueryService, health *handlers.HealthHandler, pdf handlers.AnswerRenderer, ws *websocket.WSManager, opts Options) *Server {
	return &Server{
		Addr:          addr,
		Options:       opts,
		QueryHandler:  handlers.NewQueryHandler(service),
		ExportHandler: handlers.NewExportHandler(service, pdf),
		HealthHandler: health,
		WSManager:     ws,
		limiter:       middleware.NewRateLimiter(opts.RateLimit, time.Minute),
	}
}

// Handler returns the instrumented route tree. The request id wraps the
// router so unmatched routes carry one too.
func (s *Server) Handler() http.Handler {
	return otelhttp.NewHandler(middleware.RequestIDMiddleware(SetupRoutes(s)), "cyberiq-server")
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	go s.limiter.Run(ctx)

	s.srv = &http.Server{
		Addr:              s.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		log.Println("Web Server shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if s.WSManager != nil {
			s.WSManager.Close()
		}
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("Web Server shutdown error: %v", err)
		}
	}()

	log.Printf("Web server listening on %s", s.Addr)
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
