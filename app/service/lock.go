package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-locks/app/lock"
)

var ErrInvalidDuration = errors.New("hold duration must be positive")

// Runner runs work while holding a lock.
type Runner interface {
	Run(ctx context.Context, key string, fn func(ctx context.Context, token lock.Token) error) error
}

// HoldResult describes a completed hold.
type HoldResult struct {
	Key   string
	Token lock.Token
	Held  time.Duration
}

type LockService struct {
	locker Runner
	logger logrus.FieldLogger
}

// NewLockService builds the lock service.
func NewLockService(locker Runner, logger logrus.FieldLogger) *LockService {
	return &LockService{locker: locker, logger: logger}
}

// Hold acquires key and keeps the lease renewed for d, then releases it. It
// returns early with lock.ErrLockLost if the lease is lost, or with ctx's
// error if ctx ends first. The token is set whenever acquisition succeeded.
func (s *LockService) Hold(ctx context.Context, key string, d time.Duration) (HoldResult, error) {
	if d <= 0 {
		return HoldResult{}, ErrInvalidDuration
	}

	logger := s.logger
	if requestID, ok := RequestIDFromContext(ctx); ok {
		logger = logger.WithField("request_id", requestID)
	}

	result := HoldResult{Key: key}
	start := time.Now()
	err := s.locker.Run(ctx, key, func(ctx context.Context, token lock.Token) error {
		result.Token = token
		logger.WithField("token", uint64(token)).Debug("holding lock")

		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-timer.C:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	result.Held = time.Since(start)
	if err != nil {
		return result, fmt.Errorf("hold lock: %w", err)
	}
	return result, nil
}
