package order

import (
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// HealthModule registers the standard gRPC health service.
type HealthModule struct {
	server  *health.Server
	service string
}

func NewHealthModule(service string) *HealthModule {
	return &HealthModule{
		server:  health.NewServer(),
		service: service,
	}
}

func (m *HealthModule) RegisterGRPCService(s *grpc.Server) {
	healthpb.RegisterHealthServer(s, m.server)
	m.server.SetServingStatus(m.service, healthpb.HealthCheckResponse_SERVING)
	m.server.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
}

// Shutdown marks every service as not serving.
func (m *HealthModule) Shutdown() {
	m.server.Shutdown()
}
