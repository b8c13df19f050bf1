package lock

import (
	"context"
	"errors"
	"time"
)

// EventKind names a point in a lock's lifecycle.
type EventKind int

const (
	EventAcquired EventKind = iota + 1
	EventRenewed
	EventLost
	EventFailed
	EventReleased
	EventReleaseNoop
)

func (k EventKind) String() string {
	switch k {
	case EventAcquired:
		return "acquired"
	case EventRenewed:
		return "renewed"
	case EventLost:
		return "lost"
	case EventFailed:
		return "failed"
	case EventReleased:
		return "released"
	case EventReleaseNoop:
		return "release_noop"
	default:
		return "unknown"
	}
}

// ParseEventKind is the inverse of EventKind.String.
func ParseEventKind(s string) (EventKind, bool) {
	for k := EventAcquired; k <= EventReleaseNoop; k++ {
		if k.String() == s {
			return k, true
		}
	}
	return 0, false
}

// Event is emitted by the renewal loop.
type Event struct {
	Kind  EventKind
	Token Token
	At    time.Time
	// ValidUntil is set on EventRenewed: the lease is guaranteed to outlive
	// this instant, measured from before the Extend call was sent.
	ValidUntil time.Time
	// Err is ErrLockLost on EventLost and a *ConnectionError on EventFailed.
	Err error
}

// Renew starts the renewal loop for h and returns its event stream. Every
// renew interval the lease is extended; success emits EventRenewed. A token
// mismatch emits EventLost, a store failure or timeout emits EventFailed, and
// in both cases the loop ends. The loop also ends when ctx is cancelled or the
// handle is released. The channel is closed when the loop exits.
//
// On EventLost the holder must stop touching the protected resource at once.
// On EventFailed the lock state is unknown and the lease may lapse.
func (h *Handle) Renew(ctx context.Context) <-chan Event {
	events := make(chan Event, 1)
	go h.renewLoop(ctx, events)
	return events
}

func (h *Handle) renewLoop(ctx context.Context, events chan<- Event) {
	defer close(events)

	ticker := time.NewTicker(h.locker.renewInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		start := time.Now()
		callCtx, cancel := context.WithTimeout(ctx, h.locker.extendTimeout)
		err := h.Extend(callCtx)
		cancel()
		if ctx.Err() != nil {
			return
		}

		switch {
		case err == nil:
			ev := Event{Kind: EventRenewed, Token: h.token, At: start, ValidUntil: start.Add(LeaseTTL)}
			if !emit(ctx, events, ev) {
				return
			}
		case errors.Is(err, ErrHandleReleased):
			return
		case errors.Is(err, ErrLockLost):
			h.logger.Warn("lock lost, lease expired or taken over")
			h.locker.publish(ctx, EventLost, h.key, h.token, nil)
			emit(ctx, events, Event{Kind: EventLost, Token: h.token, At: time.Now(), Err: ErrLockLost})
			return
		default:
			h.logger.WithError(err).Error("failed to extend lock")
			h.locker.publish(ctx, EventFailed, h.key, h.token, err)
			emit(ctx, events, Event{Kind: EventFailed, Token: h.token, At: time.Now(), Err: err})
			return
		}
	}
}

func emit(ctx context.Context, events chan<- Event, ev Event) bool {
	select {
	case events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// AuditEvent describes a lock lifecycle change for external consumers.
type AuditEvent struct {
	Kind       EventKind
	Key        string
	Token      Token
	InstanceID string
	At         time.Time
	Error      string
}

// EventSink receives audit events. Failures are logged and never alter the
// outcome of a lock operation.
type EventSink interface {
	Publish(ctx context.Context, ev AuditEvent) error
}
