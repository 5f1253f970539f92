package grpc

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"

	"github.com/emmett/sphinxvox/internal/control"
	"github.com/emmett/sphinxvox/internal/logging"
)

// Server wraps the gRPC server and services
type Server struct {
	grpcServer *grpc.Server
	port       int
	logger     *logrus.Entry
}

const stopGrace = 2 * time.Second

// Config holds server configuration
type Config struct {
	Port int
}

// NewServer creates a gRPC server exposing ctrl
func NewServer(cfg Config, ctrl control.Controller, logger *logrus.Logger) *Server {
	log := logging.OrDiscard(logger).WithField("component", "grpc")

	s := &Server{
		grpcServer: grpc.NewServer(grpc.ChainUnaryInterceptor(logUnary(log))),
		port:       cfg.Port,
		logger:     log,
	}
	RegisterRecognizerServer(s.grpcServer, NewRecognizerService(ctrl, log))
	return s
}

// Start listens on the configured port and serves until Stop
func (s *Server) Start() error {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", s.port))
	if err != nil {
		return fmt.Errorf("failed to listen on port %d: %w", s.port, err)
	}
	return s.Serve(lis)
}

// Serve serves on lis until Stop
func (s *Server) Serve(lis net.Listener) error {
	s.logger.WithField("addr", lis.Addr().String()).Info("gRPC server listening")
	return s.grpcServer.Serve(lis)
}

// Stop gracefully stops the server
func (s *Server) Stop() {
	done := make(chan struct{})
	go func() {
		s.grpcServer.GracefulStop()
		close(done)
	}()

	// open event streams never finish on their own
	select {
	case <-done:
	case <-time.After(stopGrace):
		s.grpcServer.Stop()
	}
}

func logUnary(log *logrus.Entry) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)

		entry := log.WithFields(logrus.Fields{
			"method":   info.FullMethod,
			"duration": time.Since(start),
		})
		if err != nil {
			entry.WithError(err).Warn("gRPC call failed")
		} else {
			entry.Debug("gRPC call")
		}
		return resp, err
	}
}
