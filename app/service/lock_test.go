package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/vibast-solutions/ms-go-locks/app/lock"
)

func newLockService(t *testing.T, opts ...lock.Option) (*LockService, *lock.Locker, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
		mr.Close()
	})

	logger, _ := logtest.NewNullLogger()
	opts = append([]lock.Option{lock.WithLogger(logger)}, opts...)
	locker, err := lock.NewLocker(lock.NewRedisStore(client), opts...)
	if err != nil {
		t.Fatalf("NewLocker: %v", err)
	}
	return NewLockService(locker, logger), locker, mr
}

func TestLockServiceHold(t *testing.T) {
	t.Parallel()

	svc, _, mr := newLockService(t)

	ctx := WithRequestID(context.Background(), "req-1")
	result, err := svc.Hold(ctx, "orders:1", 20*time.Millisecond)
	if err != nil {
		t.Fatalf("Hold: %v", err)
	}
	if result.Key != "orders:1" || result.Token == 0 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if result.Held < 20*time.Millisecond {
		t.Fatalf("expected hold of at least 20ms, got %v", result.Held)
	}
	if mr.Exists("orders:1") {
		t.Fatal("expected lease to be released after hold")
	}
}

func TestLockServiceHoldContended(t *testing.T) {
	t.Parallel()

	svc, locker, _ := newLockService(t)

	h, err := locker.Acquire(context.Background(), "orders:1")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer h.Release(context.Background())

	result, err := svc.Hold(context.Background(), "orders:1", time.Second)
	if !errors.Is(err, lock.ErrAcquisitionContended) {
		t.Fatalf("expected ErrAcquisitionContended, got %v", err)
	}
	if result.Token != 0 {
		t.Fatalf("expected no token on contention, got %d", result.Token)
	}
}

func TestLockServiceHoldLost(t *testing.T) {
	t.Parallel()

	svc, _, mr := newLockService(t, lock.WithRenewInterval(10*time.Millisecond))

	done := make(chan error, 1)
	go func() {
		_, err := svc.Hold(context.Background(), "orders:1", 5*time.Second)
		done <- err
	}()

	deadline := time.Now().Add(2 * time.Second)
	for !mr.Exists("orders:1") {
		if time.Now().After(deadline) {
			t.Fatal("lease never appeared")
		}
		time.Sleep(time.Millisecond)
	}
	mr.Del("orders:1")

	select {
	case err := <-done:
		if !errors.Is(err, lock.ErrLockLost) {
			t.Fatalf("expected ErrLockLost, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("hold did not stop after the lease was lost")
	}
}

func TestLockServiceHoldRejectsDuration(t *testing.T) {
	t.Parallel()

	svc, _, _ := newLockService(t)
	if _, err := svc.Hold(context.Background(), "orders:1", 0); !errors.Is(err, ErrInvalidDuration) {
		t.Fatalf("expected ErrInvalidDuration, got %v", err)
	}
}
