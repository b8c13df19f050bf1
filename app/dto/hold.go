package dto

import (
	"errors"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
)

// MaxHoldDuration bounds how long a single HTTP request may hold a lock.
const MaxHoldDuration = 10 * time.Minute

// MaxKeyLength matches the widest key the MySQL store accepts.
const MaxKeyLength = 512

var (
	ErrMissingFields   = errors.New("key and duration are required")
	ErrKeyTooLong      = errors.New("key must be at most 512 bytes")
	ErrInvalidDuration = errors.New("duration must be a positive Go duration such as 1s or 250ms")
	ErrDurationTooLong = errors.New("duration must be at most 10m")
)

type HoldLockRequest struct {
	Key      string `json:"key"`
	Duration string `json:"duration"`

	duration time.Duration
}

// FromEchoContext binds and normalizes a request from Echo.
func FromEchoContext(ctx echo.Context) (HoldLockRequest, error) {
	var req HoldLockRequest
	if err := ctx.Bind(&req); err != nil {
		return HoldLockRequest{}, err
	}
	req.normalize()
	return req, nil
}

// Validate checks required fields and parses the duration.
func (r *HoldLockRequest) Validate() error {
	if strings.TrimSpace(r.Key) == "" || r.Duration == "" {
		return ErrMissingFields
	}
	if len(r.Key) > MaxKeyLength {
		return ErrKeyTooLong
	}
	d, err := time.ParseDuration(r.Duration)
	if err != nil || d <= 0 {
		return ErrInvalidDuration
	}
	if d > MaxHoldDuration {
		return ErrDurationTooLong
	}
	r.duration = d
	return nil
}

// HoldDuration returns the parsed duration. Only valid after Validate.
func (r *HoldLockRequest) HoldDuration() time.Duration {
	return r.duration
}

// normalize trims the duration. Keys are opaque and kept byte for byte.
func (r *HoldLockRequest) normalize() {
	r.Duration = strings.TrimSpace(r.Duration)
}
