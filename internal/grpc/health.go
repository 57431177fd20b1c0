// Package grpcserver поднимает служебный gRPC сервер: стандартный health и reflection.
package grpcserver

import (
	"context"
	"net"
	"sort"
	"time"

	"github.com/Dhoini/findxo-settlement/internal/interceptors"
	"github.com/Dhoini/findxo-settlement/pkg/logger"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// ServiceName имя сервиса в health протоколе.
const ServiceName = "findxo.settlement"

// Server gRPC сервер, отражающий состояние зависимостей в grpc.health.v1.
type Server struct {
	server   *grpc.Server
	health   *health.Server
	probes   map[string]func(ctx context.Context) error
	interval time.Duration
	log      *logger.Logger
}

// NewServer создает сервер. Пока первая проверка не прошла, статус NOT_SERVING.
func NewServer(probes map[string]func(ctx context.Context) error, interval time.Duration, log *logger.Logger) *Server {
	log = log.Named("grpc")
	server := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			interceptors.Recovery(log),
			interceptors.Logging(log),
		),
	)

	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(server, healthServer)
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	healthServer.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)

	reflection.Register(server)
	log.Infow("gRPC health and reflection services registered")

	return &Server{
		server:   server,
		health:   healthServer,
		probes:   probes,
		interval: interval,
		log:      log,
	}
}

// Serve блокируется до остановки сервера.
func (s *Server) Serve(lis net.Listener) error {
	s.log.Infow("Starting gRPC server", "addr", lis.Addr().String())
	return s.server.Serve(lis)
}

// Watch периодически выполняет проверки до отмены ctx.
func (s *Server) Watch(ctx context.Context) {
	s.Check(ctx)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Check(ctx)
		}
	}
}

// Check выполняет все проверки и обновляет статусы. Каждая зависимость
// публикуется как отдельный сервис "<ServiceName>.<name>".
func (s *Server) Check(ctx context.Context) bool {
	names := make([]string, 0, len(s.probes))
	for name := range s.probes {
		names = append(names, name)
	}
	sort.Strings(names)

	healthy := true
	for _, name := range names {
		probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		err := s.probes[name](probeCtx)
		cancel()

		status := healthpb.HealthCheckResponse_SERVING
		if err != nil {
			healthy = false
			status = healthpb.HealthCheckResponse_NOT_SERVING
			s.log.Warnw("Dependency probe failed", "dependency", name, "error", err)
		}
		s.health.SetServingStatus(ServiceName+"."+name, status)
	}

	overall := healthpb.HealthCheckResponse_SERVING
	if !healthy {
		overall = healthpb.HealthCheckResponse_NOT_SERVING
	}
	s.health.SetServingStatus("", overall)
	s.health.SetServingStatus(ServiceName, overall)
	return healthy
}

// GracefulStop переводит сервисы в NOT_SERVING и ждет завершения текущих RPC.
func (s *Server) GracefulStop() {
	s.health.Shutdown()
	s.server.GracefulStop()
}
