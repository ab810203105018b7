// Package rpc serves the gRPC health endpoint operators and orchestrators
// probe to learn whether the monitor is ingesting.
package rpc

import (
	"context"
	"errors"
	"net"

	"github.com/davideleoni90/TinysOSClassMonitoring/internal/logging"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// GraphService is the health service name that reflects whether messages
// are being applied to the graph.
const GraphService = "mviz.Graph"

// Server wraps a grpc.Server exposing the standard health service.
type Server struct {
	grpc   *grpc.Server
	health *health.Server
	log    logging.Logger
}

// ServerOption customises NewServer.
type ServerOption func(*serverOptions)

type serverOptions struct {
	interceptors []grpc.UnaryServerInterceptor
}

// WithUnaryInterceptor appends an interceptor after the built-in request id
// and tracing ones, e.g. the metrics collector's.
func WithUnaryInterceptor(i grpc.UnaryServerInterceptor) ServerOption {
	return func(o *serverOptions) {
		if i != nil {
			o.interceptors = append(o.interceptors, i)
		}
	}
}

// NewServer builds the gRPC server. GraphService starts as NOT_SERVING
// until SetServing(true) is called.
func NewServer(log logging.Logger, opts ...ServerOption) *Server {
	if log == nil {
		log = logging.Noop()
	}
	var o serverOptions
	for _, opt := range opts {
		opt(&o)
	}

	chain := append([]grpc.UnaryServerInterceptor{
		RequestIDUnaryServerInterceptor(log),
		TracingUnaryServerInterceptor(),
	}, o.interceptors...)

	gs := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(chain...),
	)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(gs, hs)
	reflection.Register(gs)
	hs.SetServingStatus(GraphService, healthpb.HealthCheckResponse_NOT_SERVING)

	return &Server{grpc: gs, health: hs, log: log}
}

// SetServing flips the GraphService health status.
func (s *Server) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus(GraphService, status)
}

// Serve accepts connections on lis until ctx is cancelled, then stops
// gracefully.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.grpc.Serve(lis)
	}()
	s.log.Info(ctx, "grpc server listening", logging.String("addr", lis.Addr().String()))

	select {
	case <-ctx.Done():
		s.health.Shutdown()
		s.grpc.GracefulStop()
		<-errCh
		return nil
	case err := <-errCh:
		if errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		return err
	}
}

// ListenAndServe listens on addr and calls Serve.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, lis)
}
