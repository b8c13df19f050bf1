package lock

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Handle is a held lease on one key. It owns its store session exclusively;
// calls on one handle are serialized so the connection sees a strict order.
//
// Dropping a Handle without calling Release leaves the lease in place until it
// expires in the store. Nothing releases it on garbage collection.
type Handle struct {
	locker  *Locker
	key     string
	token   Token
	logger  logrus.FieldLogger
	mu      sync.Mutex
	session Session
	done    bool
}

// Key returns the locked key.
func (h *Handle) Key() string {
	return h.key
}

// Token returns the fencing token of this acquisition. Pass it to downstream
// resources so they can reject writes from a stale holder.
func (h *Handle) Token() Token {
	return h.token
}

// Extend resets the lease TTL if the store still records this handle's token.
// It returns ErrLockLost when the token no longer matches.
func (h *Handle) Extend(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.done {
		return ErrHandleReleased
	}

	start := time.Now()
	ok, err := h.session.Extend(ctx, h.key, h.token)
	extendDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		extendTotal.WithLabelValues(statusError).Inc()
		return &ConnectionError{Op: "extend", Key: h.key, Err: err}
	}
	if !ok {
		extendTotal.WithLabelValues(statusLost).Inc()
		return ErrLockLost
	}
	extendTotal.WithLabelValues(statusRenewed).Inc()
	return nil
}

// Release deletes the lease if it still carries this handle's token and closes
// the session. It reports false with a nil error when the lease was already
// gone or taken over, which only means an earlier loss. The handle cannot be
// used afterwards.
func (h *Handle) Release(ctx context.Context) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.done {
		return false, ErrHandleReleased
	}
	h.done = true
	locksHeld.Dec()
	defer func() {
		if err := h.session.Close(); err != nil {
			h.logger.WithError(err).Debug("failed to close lock session")
		}
	}()

	released, err := h.session.Release(ctx, h.key, h.token)
	if err != nil {
		releaseTotal.WithLabelValues(statusError).Inc()
		h.logger.WithError(err).Error("failed to release lock")
		h.locker.publish(ctx, EventFailed, h.key, h.token, err)
		return false, &ConnectionError{Op: "release", Key: h.key, Err: err}
	}
	if !released {
		releaseTotal.WithLabelValues(statusNoop).Inc()
		h.logger.Info("release was a no-op, lease already expired or taken over")
		h.locker.publish(ctx, EventReleaseNoop, h.key, h.token, nil)
		return false, nil
	}

	releaseTotal.WithLabelValues(statusReleased).Inc()
	h.logger.Debug("lock released")
	h.locker.publish(ctx, EventReleased, h.key, h.token, nil)
	return true, nil
}
