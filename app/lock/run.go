package lock

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"
)

const releaseTimeout = 5 * time.Second

// Run acquires key and calls fn while the lease is renewed in the background.
// fn receives the fencing token and a context that is cancelled with cause
// ErrLockLost (or the renewal's *ConnectionError) as soon as renewal stops;
// fn must return promptly once that happens. When fn returns, renewal is
// stopped and the lock released.
//
// The renewal error takes precedence over fn's error since it demands the
// caller treat any work done under the lock as unprotected.
func (l *Locker) Run(ctx context.Context, key string, fn func(ctx context.Context, token Token) error) error {
	h, err := l.Acquire(ctx, key)
	if err != nil {
		return err
	}

	workCtx, cancelWork := context.WithCancelCause(ctx)
	defer cancelWork(nil)
	renewCtx, stopRenew := context.WithCancel(ctx)
	defer stopRenew()

	var renewErr, workErr error
	var g errgroup.Group

	g.Go(func() error {
		for ev := range h.Renew(renewCtx) {
			if ev.Kind == EventLost || ev.Kind == EventFailed {
				renewErr = ev.Err
				cancelWork(ev.Err)
				return ev.Err
			}
		}
		return nil
	})

	g.Go(func() error {
		defer stopRenew()
		workErr = fn(workCtx, h.Token())
		return workErr
	})

	_ = g.Wait()

	releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()
	if _, err := h.Release(releaseCtx); err != nil && renewErr == nil && workErr == nil {
		return err
	}

	if renewErr != nil {
		if workErr != nil && !errors.Is(workErr, context.Canceled) && !errors.Is(workErr, renewErr) {
			return errors.Join(renewErr, workErr)
		}
		return renewErr
	}
	return workErr
}
