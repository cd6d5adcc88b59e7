package dispatch

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// HealthService is the gRPC health service name of the dispatch daemon.
const HealthService = "layanan.dispatch"

// GRPCProbe checks a dispatch daemon through the standard gRPC health protocol.
type GRPCProbe struct {
	addr    string
	timeout time.Duration
}

func NewGRPCProbe(addr string) *GRPCProbe {
	return &GRPCProbe{addr: addr, timeout: 2 * time.Second}
}

func (p *GRPCProbe) Check(ctx context.Context) (string, error) {
	conn, err := grpc.NewClient(p.addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return "", fmt.Errorf("dial dispatch daemon %s: %w", p.addr, err)
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: HealthService})
	if err != nil {
		return "", fmt.Errorf("dispatch daemon health: %w", err)
	}
	return resp.GetStatus().String(), nil
}

// HealthServer exposes a LocalService's running state over gRPC health, so a
// separate process can probe it.
type HealthServer struct {
	server *grpc.Server
	health *health.Server
	logger *zerolog.Logger
}

func NewHealthServer(logger *zerolog.Logger) *HealthServer {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	hs := health.NewServer()
	hs.SetServingStatus(HealthService, healthpb.HealthCheckResponse_NOT_SERVING)
	srv := grpc.NewServer(grpc.UnaryInterceptor(chainUnaryInterceptors(
		recoveryInterceptor(logger),
		loggingInterceptor(logger),
	)))
	healthpb.RegisterHealthServer(srv, hs)
	return &HealthServer{server: srv, health: hs, logger: logger}
}

// SetRunning flips the advertised status.
func (h *HealthServer) SetRunning(running bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if running {
		status = healthpb.HealthCheckResponse_SERVING
	}
	h.health.SetServingStatus(HealthService, status)
}

func (h *HealthServer) Serve(lis net.Listener) error {
	h.logger.Info().Str("addr", lis.Addr().String()).Msg("dispatch health listening")
	return h.server.Serve(lis)
}

func (h *HealthServer) Stop() {
	h.health.Shutdown()
	h.server.GracefulStop()
}
