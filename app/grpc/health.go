package grpc

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the health service name reported for the lock store.
const ServiceName = "locks"

const pingTimeout = 2 * time.Second

// Pinger reports whether the lock store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthReporter serves the standard gRPC health protocol, reflecting the
// reachability of the lock store.
type HealthReporter struct {
	server  *health.Server
	store   Pinger
	logger  logrus.FieldLogger
	serving bool
}

// NewHealthReporter constructs a reporter. Status is NOT_SERVING until the
// first successful check.
func NewHealthReporter(store Pinger, logger logrus.FieldLogger) *HealthReporter {
	r := &HealthReporter{
		server: health.NewServer(),
		store:  store,
		logger: logger,
	}
	r.set(healthpb.HealthCheckResponse_NOT_SERVING)
	return r
}

// Register attaches the health service to s.
func (r *HealthReporter) Register(s *grpc.Server) {
	healthpb.RegisterHealthServer(s, r.server)
}

// Check pings the store once and updates the served status.
func (r *HealthReporter) Check(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	err := r.store.Ping(pingCtx)
	if err != nil {
		if r.serving {
			r.logger.WithError(err).Warn("lock store unreachable, reporting NOT_SERVING")
		}
		r.serving = false
		r.set(healthpb.HealthCheckResponse_NOT_SERVING)
		return err
	}
	if !r.serving {
		r.logger.Info("lock store reachable, reporting SERVING")
	}
	r.serving = true
	r.set(healthpb.HealthCheckResponse_SERVING)
	return nil
}

// Run checks the store every interval until ctx is done, then marks the
// service as shutting down.
func (r *HealthReporter) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	_ = r.Check(ctx)
	for {
		select {
		case <-ctx.Done():
			r.server.Shutdown()
			return
		case <-ticker.C:
			_ = r.Check(ctx)
		}
	}
}

// Server exposes the underlying health server.
func (r *HealthReporter) Server() healthpb.HealthServer {
	return r.server
}

func (r *HealthReporter) set(status healthpb.HealthCheckResponse_ServingStatus) {
	r.server.SetServingStatus("", status)
	r.server.SetServingStatus(ServiceName, status)
}
