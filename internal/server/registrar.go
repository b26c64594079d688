package server

import (
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Registrar is a common interface for all gRPC service registrars
type Registrar interface {
	Register(s *grpc.Server)
}

// HealthRegistrar exposes the standard gRPC health service. The matching
// service name reports SERVING until Shutdown is called.
type HealthRegistrar struct {
	srv     *health.Server
	service string
}

// NewHealthRegistrar creates a registrar for service.
func NewHealthRegistrar(service string) *HealthRegistrar {
	return &HealthRegistrar{srv: health.NewServer(), service: service}
}

// Register implements Registrar.
func (h *HealthRegistrar) Register(s *grpc.Server) {
	healthpb.RegisterHealthServer(s, h.srv)
	h.srv.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	h.srv.SetServingStatus(h.service, healthpb.HealthCheckResponse_SERVING)
}

// Shutdown flips every service to NOT_SERVING so probes drain before stop.
func (h *HealthRegistrar) Shutdown() {
	h.srv.Shutdown()
}
