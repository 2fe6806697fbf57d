package grpc

import (
	"log/slog"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/lcalzada-xor/cyberiq/internal/core/domain"
	"github.com/lcalzada-xor/cyberiq/internal/telemetry"
)

// ServiceName is the overall health entry.
const ServiceName = telemetry.ServiceName

// SourceService names the health entry of one source, e.g. "cyberiq.kev".
func SourceService(source domain.Source) string {
	return ServiceName + "." + string(source)
}

// HealthServer reports overall and per-source serving status over
// grpc.health.v1.Health.
type HealthServer struct {
	health *health.Server
}

// NewHealthServer starts every source as NOT_SERVING until its first fetch.
// The overall service is SERVING from the start.
func NewHealthServer(sources []domain.Source) *HealthServer {
	h := &HealthServer{health: health.NewServer()}
	h.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	h.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	for _, src := range sources {
		h.health.SetServingStatus(SourceService(src), healthpb.HealthCheckResponse_NOT_SERVING)
	}
	return h
}

// OnSourceState maps a fetch outcome to a health status. Cache hits and
// fetches are SERVING, failures NOT_SERVING; Pending is ignored.
func (h *HealthServer) OnSourceState(source domain.Source, state domain.FetchState) {
	switch state {
	case domain.FetchCacheHit, domain.FetchFetched:
		h.health.SetServingStatus(SourceService(source), healthpb.HealthCheckResponse_SERVING)
	case domain.FetchFailed:
		slog.Debug("source marked not serving", "source", source)
		h.health.SetServingStatus(SourceService(source), healthpb.HealthCheckResponse_NOT_SERVING)
	}
}

// Shutdown flips every entry to NOT_SERVING ahead of GracefulStop.
func (h *HealthServer) Shutdown() {
	h.health.Shutdown()
}

// Health exposes the underlying health service.
func (h *HealthServer) Health() healthpb.HealthServer {
	return h.health
}

// NewGrpcServer registers the health service on a new gRPC server.
func NewGrpcServer(h *HealthServer) *grpc.Server {
	s := grpc.NewServer()
	healthpb.RegisterHealthServer(s, h.health)
	return s
}
