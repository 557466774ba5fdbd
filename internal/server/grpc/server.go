package internalgrpc

import (
	"context"
	"fmt"
	"net"

	grpc_middleware "github.com/grpc-ecosystem/go-grpc-middleware"
	grpc_zap "github.com/grpc-ecosystem/go-grpc-middleware/logging/zap"
	grpc_recovery "github.com/grpc-ecosystem/go-grpc-middleware/recovery"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const ServiceName = "revenue-admin"

type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	GetInstance() *zap.Logger
}

// Server exposes the standard gRPC health service for orchestrators and load balancers.
type Server struct {
	logger Logger
	addr   string
	server *grpc.Server
	health *health.Server
}

func NewServer(logger Logger, host string, port string) *Server {
	server := grpc.NewServer(
		grpc.UnaryInterceptor(grpc_middleware.ChainUnaryServer(
			grpc_zap.UnaryServerInterceptor(logger.GetInstance()),
			grpc_recovery.UnaryServerInterceptor(),
		)),
		grpc.StreamInterceptor(grpc_middleware.ChainStreamServer(
			grpc_zap.StreamServerInterceptor(logger.GetInstance()),
			grpc_recovery.StreamServerInterceptor(),
		)),
	)

	healthServer := health.NewServer()
	healthServer.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(server, healthServer)

	return &Server{
		logger: logger,
		addr:   net.JoinHostPort(host, port),
		server: server,
		health: healthServer,
	}
}

func (s *Server) Start(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("cannot listen on %s, %w", s.addr, err)
	}

	return s.Serve(lis)
}

func (s *Server) Serve(lis net.Listener) error {
	s.logger.Info("grpc health server is listening", "addr", lis.Addr().String())

	if err := s.server.Serve(lis); err != nil {
		return fmt.Errorf("cannot serve grpc, %w", err)
	}

	return nil
}

// Stop reports NOT_SERVING and drains in-flight calls until ctx is done.
func (s *Server) Stop(ctx context.Context) error {
	s.health.Shutdown()

	stopped := make(chan struct{})

	go func() {
		s.server.GracefulStop()
		close(stopped)
	}()

	select {
	case <-stopped:
		return nil
	case <-ctx.Done():
		s.server.Stop()

		return fmt.Errorf("grpc server stopped forcibly, %w", ctx.Err())
	}
}
