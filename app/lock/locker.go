// Package lock implements a lease-based distributed mutual-exclusion primitive
// on top of a shared key-value store. Each acquisition is identified by a
// fencing token, holds one dedicated store connection and keeps its lease
// alive through periodic renewal. Exclusion is enforced entirely by the store.
package lock

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	// LeaseTTL is applied to every lease on creation and on every extension.
	LeaseTTL = 10 * time.Second

	// DefaultRenewInterval keeps two renewal attempts inside one lease window.
	DefaultRenewInterval = LeaseTTL / 2
	// DefaultExtendTimeout bounds a single Extend round trip in the renewal loop.
	DefaultExtendTimeout = 3 * time.Second

	maxKeyLogLength = 128
)

var (
	ErrEmptyKey             = errors.New("lock key cannot be empty")
	ErrAcquisitionContended = errors.New("lock already held")
	ErrLockLost             = errors.New("lock lost")
	ErrHandleReleased       = errors.New("lock handle already released")
	ErrInvalidRenewInterval = errors.New("renew interval must be positive and shorter than the lease ttl")
)

// Store opens dedicated sessions against the shared lease store.
type Store interface {
	// Open returns a session bound to one non-pooled connection.
	Open(ctx context.Context) (Session, error)
	// Ping checks that the store is reachable.
	Ping(ctx context.Context) error
}

// Session is a single store connection owned by one handle. Every method is
// one indivisible server-side operation. A non-nil error always means the
// store could not be reached or did not answer; it never encodes lock state.
type Session interface {
	NextToken(ctx context.Context) (Token, error)
	Acquire(ctx context.Context, key string, token Token) (bool, error)
	Extend(ctx context.Context, key string, token Token) (bool, error)
	Release(ctx context.Context, key string, token Token) (bool, error)
	Close() error
}

// Locker hands out lock handles for keys of one store.
type Locker struct {
	store         Store
	tokens        TokenSource
	logger        logrus.FieldLogger
	sink          EventSink
	instanceID    string
	renewInterval time.Duration
	extendTimeout time.Duration
}

// Option configures a Locker.
type Option func(*Locker)

// WithTokenSource selects where fencing tokens come from.
func WithTokenSource(src TokenSource) Option {
	return func(l *Locker) {
		l.tokens = src
	}
}

// WithLogger sets the logger used for lock lifecycle messages.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(l *Locker) {
		l.logger = logger
	}
}

// WithRenewInterval sets how often a held lease is extended.
func WithRenewInterval(d time.Duration) Option {
	return func(l *Locker) {
		l.renewInterval = d
	}
}

// WithExtendTimeout bounds each Extend call issued by the renewal loop.
func WithExtendTimeout(d time.Duration) Option {
	return func(l *Locker) {
		l.extendTimeout = d
	}
}

// WithEventSink publishes lock lifecycle events to sink.
func WithEventSink(sink EventSink) Option {
	return func(l *Locker) {
		l.sink = sink
	}
}

// WithInstanceID overrides the identifier stamped on published events.
func WithInstanceID(id string) Option {
	return func(l *Locker) {
		l.instanceID = id
	}
}

// NewLocker builds a Locker over store. Tokens come from the store's own
// sequence unless another source is configured.
func NewLocker(store Store, opts ...Option) (*Locker, error) {
	l := &Locker{
		store:         store,
		tokens:        StoreTokens(),
		logger:        logrus.StandardLogger(),
		instanceID:    uuid.NewString(),
		renewInterval: DefaultRenewInterval,
		extendTimeout: DefaultExtendTimeout,
	}
	for _, opt := range opts {
		opt(l)
	}

	if l.renewInterval <= 0 || l.renewInterval >= LeaseTTL {
		return nil, ErrInvalidRenewInterval
	}
	if l.extendTimeout <= 0 {
		l.extendTimeout = DefaultExtendTimeout
	}
	return l, nil
}

// Acquire makes one attempt to take key using a Locker with default options.
func Acquire(ctx context.Context, store Store, key string) (*Handle, error) {
	l, err := NewLocker(store)
	if err != nil {
		return nil, err
	}
	return l.Acquire(ctx, key)
}

// Acquire makes a single attempt to take key. It returns ErrAcquisitionContended
// when another holder has a live lease and a *ConnectionError when the store
// cannot be reached. Callers own any retry policy.
func (l *Locker) Acquire(ctx context.Context, key string) (*Handle, error) {
	if strings.TrimSpace(key) == "" {
		return nil, ErrEmptyKey
	}
	logger := l.logger.WithField("lock_key", safeKeyForLogs(key))

	session, err := l.store.Open(ctx)
	if err != nil {
		acquireTotal.WithLabelValues(statusError).Inc()
		logger.WithError(err).Error("failed to open lock session")
		return nil, &ConnectionError{Op: "open", Key: key, Err: err}
	}

	token, err := l.tokens.NextToken(ctx, session)
	if err != nil {
		_ = session.Close()
		acquireTotal.WithLabelValues(statusError).Inc()
		logger.WithError(err).Error("failed to allocate fencing token")
		return nil, &ConnectionError{Op: "token", Key: key, Err: err}
	}
	logger = logger.WithField("token", uint64(token))

	ok, err := session.Acquire(ctx, key, token)
	if err != nil {
		_ = session.Close()
		acquireTotal.WithLabelValues(statusError).Inc()
		logger.WithError(err).Error("failed to acquire lock")
		return nil, &ConnectionError{Op: "acquire", Key: key, Err: err}
	}
	if !ok {
		_ = session.Close()
		acquireTotal.WithLabelValues(statusContended).Inc()
		logger.Debug("lock already held by another holder")
		return nil, ErrAcquisitionContended
	}

	acquireTotal.WithLabelValues(statusAcquired).Inc()
	locksHeld.Inc()
	logger.Debug("lock acquired")
	l.publish(ctx, EventAcquired, key, token, nil)

	return &Handle{
		locker:  l,
		key:     key,
		token:   token,
		session: session,
		logger:  logger,
	}, nil
}

func (l *Locker) publish(ctx context.Context, kind EventKind, key string, token Token, cause error) {
	if l.sink == nil {
		return
	}
	ev := AuditEvent{
		Kind:       kind,
		Key:        key,
		Token:      token,
		InstanceID: l.instanceID,
		At:         time.Now().UTC(),
	}
	if cause != nil {
		ev.Error = cause.Error()
	}

	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
	defer cancel()
	if err := l.sink.Publish(pubCtx, ev); err != nil {
		l.logger.WithError(err).WithField("event", kind.String()).Warn("failed to publish lock event")
	}
}

func safeKeyForLogs(key string) string {
	quoted := strconv.QuoteToASCII(key)
	if len(quoted) <= maxKeyLogLength {
		return quoted
	}
	return quoted[:maxKeyLogLength] + "...(truncated)"
}

// ConnectionError reports that the store could not be reached while performing
// Op. It says nothing about who holds the lock.
type ConnectionError struct {
	Op  string
	Key string
	Err error
}

// ErrConnection matches any *ConnectionError through errors.Is.
var ErrConnection = errors.New("lock store unreachable")

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("lock %s %s: %v", e.Op, safeKeyForLogs(e.Key), e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

func (e *ConnectionError) Is(target error) bool {
	return target == ErrConnection
}
