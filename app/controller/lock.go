package controller

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/vibast-solutions/ms-go-locks/app/dto"
	"github.com/vibast-solutions/ms-go-locks/app/lock"
	"github.com/vibast-solutions/ms-go-locks/app/service"
)

// Holder holds a lock for a fixed duration.
type Holder interface {
	Hold(ctx context.Context, key string, d time.Duration) (service.HoldResult, error)
}

type LockController struct {
	lockService Holder
}

// NewLockController constructs the HTTP lock controller.
func NewLockController(lockService Holder) *LockController {
	return &LockController{lockService: lockService}
}

type holdResponse struct {
	Key    string `json:"key"`
	Token  string `json:"token,omitempty"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Hold acquires the requested key, keeps it renewed for the requested
// duration and releases it before responding.
func (c *LockController) Hold(ctx echo.Context) error {
	req, err := dto.FromEchoContext(ctx)
	if err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if err := req.Validate(); err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	reqCtx := ctx.Request().Context()
	if requestID := ctx.Response().Header().Get(echo.HeaderXRequestID); requestID != "" {
		reqCtx = service.WithRequestID(reqCtx, requestID)
	}

	result, err := c.lockService.Hold(reqCtx, req.Key, req.HoldDuration())
	resp := holdResponse{Key: req.Key}
	if result.Token != 0 {
		resp.Token = strconv.FormatUint(uint64(result.Token), 10)
	}

	switch {
	case err == nil:
		resp.Status = "released"
		return ctx.JSON(http.StatusOK, resp)
	case errors.Is(err, lock.ErrAcquisitionContended):
		resp.Status = "contended"
		resp.Error = "lock is held by another holder"
		return ctx.JSON(http.StatusLocked, resp)
	case errors.Is(err, lock.ErrLockLost):
		resp.Status = "lost"
		resp.Error = "lease was lost before the hold completed"
		return ctx.JSON(http.StatusConflict, resp)
	case errors.Is(err, lock.ErrConnection):
		resp.Status = "unavailable"
		resp.Error = "lock store unreachable"
		return ctx.JSON(http.StatusServiceUnavailable, resp)
	case errors.Is(err, context.Canceled):
		resp.Status = "interrupted"
		resp.Error = "hold interrupted, lock released"
		return ctx.JSON(http.StatusServiceUnavailable, resp)
	case errors.Is(err, lock.ErrEmptyKey), errors.Is(err, service.ErrInvalidDuration):
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	default:
		resp.Status = "error"
		resp.Error = "failed to hold lock"
		return ctx.JSON(http.StatusInternalServerError, resp)
	}
}
