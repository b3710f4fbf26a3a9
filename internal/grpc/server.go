package grpc

import (
	"net"

	"github.com/yungtweek/mockllm/internal/logger"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// Server wraps a gRPC server exposing the resolver service, the standard
// health service and reflection.
type Server struct {
	addr       string
	grpcServer *grpc.Server
	health     *health.Server
}

// NewGRPCServer creates a gRPC server for svc at the given address.
// Example addr: ":50051".
func NewGRPCServer(addr string, svc ResolverServer) *Server {
	s := &Server{
		addr:       addr,
		grpcServer: grpc.NewServer(),
		health:     health.NewServer(),
	}

	RegisterResolverServer(s.grpcServer, svc)
	healthpb.RegisterHealthServer(s.grpcServer, s.health)
	reflection.Register(s.grpcServer)

	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	s.health.SetServingStatus(ResolverServiceName, healthpb.HealthCheckResponse_SERVING)
	return s
}

// Run listens on the configured address and serves until the server stops.
func (s *Server) Run() error {
	lis, err := net.Listen("tcp", s.addr)
	if err != nil {
		logger.Log.Errorw("[grpc] failed to listen", "addr", s.addr, "err", err)
		return err
	}
	return s.Serve(lis)
}

// Serve serves on an existing listener.
func (s *Server) Serve(lis net.Listener) error {
	logger.Log.Infow("[grpc] starting server", "addr", lis.Addr().String())
	if err := s.grpcServer.Serve(lis); err != nil {
		logger.Log.Errorw("[grpc] server stopped with error", "err", err)
		return err
	}

	logger.Log.Info("[grpc] server stopped gracefully")
	return nil
}

// GracefulStop marks the server NOT_SERVING and drains in-flight calls.
func (s *Server) GracefulStop() {
	logger.Log.Infow("[grpc] graceful stop", "addr", s.addr)
	s.health.Shutdown()
	s.grpcServer.GracefulStop()
}

// Stop immediately stops the underlying gRPC server.
func (s *Server) Stop() {
	logger.Log.Infow("[grpc] stop", "addr", s.addr)
	s.grpcServer.Stop()
}
