package grpc

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	logtest "github.com/sirupsen/logrus/hooks/test"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

type fakePinger struct {
	mu  sync.Mutex
	err error
}

func (p *fakePinger) Ping(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

func (p *fakePinger) setErr(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

func servingStatus(t *testing.T, r *HealthReporter, service string) healthpb.HealthCheckResponse_ServingStatus {
	t.Helper()

	resp, err := r.Server().Check(context.Background(), &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		t.Fatalf("Check(%q): %v", service, err)
	}
	return resp.GetStatus()
}

func TestHealthReporterFollowsStore(t *testing.T) {
	t.Parallel()

	store := &fakePinger{}
	logger, _ := logtest.NewNullLogger()
	r := NewHealthReporter(store, logger)

	if got := servingStatus(t, r, ServiceName); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("expected NOT_SERVING before first check, got %v", got)
	}

	if err := r.Check(context.Background()); err != nil {
		t.Fatalf("Check: %v", err)
	}
	if got := servingStatus(t, r, ServiceName); got != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("expected SERVING, got %v", got)
	}
	if got := servingStatus(t, r, ""); got != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("expected overall SERVING, got %v", got)
	}

	store.setErr(errors.New("connection refused"))
	if err := r.Check(context.Background()); err == nil {
		t.Fatal("expected ping error")
	}
	if got := servingStatus(t, r, ServiceName); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("expected NOT_SERVING, got %v", got)
	}
}

func TestHealthReporterRunShutsDown(t *testing.T) {
	t.Parallel()

	logger, _ := logtest.NewNullLogger()
	r := NewHealthReporter(&fakePinger{}, logger)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx, 10*time.Millisecond)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for servingStatus(t, r, ServiceName) != healthpb.HealthCheckResponse_SERVING {
		if time.Now().After(deadline) {
			t.Fatal("reporter never became SERVING")
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if got := servingStatus(t, r, ServiceName); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("expected NOT_SERVING after shutdown, got %v", got)
	}
}
