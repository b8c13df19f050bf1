package cmd

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vibast-solutions/ms-go-locks/app/lock"
)

func TestWaitHoldExpires(t *testing.T) {
	t.Parallel()

	if err := waitHold(context.Background(), 5*time.Millisecond); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
}

func TestWaitHoldInterruptIsClean(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := waitHold(ctx, 0); err != nil {
		t.Fatalf("expected interrupt to end the hold cleanly, got %v", err)
	}
}

func TestWaitHoldReportsLoss(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancelCause(context.Background())
	cancel(lock.ErrLockLost)
	if err := waitHold(ctx, time.Minute); !errors.Is(err, lock.ErrLockLost) {
		t.Fatalf("expected ErrLockLost, got %v", err)
	}
}
