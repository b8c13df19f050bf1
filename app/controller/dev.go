package controller

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

const maxDelay = 30 * time.Second

// Pinger reports whether the lock store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// DevController serves diagnostic endpoints used when exercising a deployment.
type DevController struct {
	store Pinger
}

// NewDevController constructs the diagnostic controller.
func NewDevController(store Pinger) *DevController {
	return &DevController{store: store}
}

func (c *DevController) Ping(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "echo!")
}

// Delay sleeps for ?duration= (default 1s, at most 30s) before answering.
func (c *DevController) Delay(ctx echo.Context) error {
	d := time.Second
	if raw := ctx.QueryParam("duration"); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil || parsed < 0 || parsed > maxDelay {
			return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "duration must be between 0s and 30s"})
		}
		d = parsed
	}

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Request().Context().Done():
		return ctx.Request().Context().Err()
	}
	return ctx.JSON(http.StatusOK, map[string]string{"delayed": d.String()})
}

func (c *DevController) Forbidden(ctx echo.Context) error {
	return ctx.JSON(http.StatusForbidden, map[string]string{"error": "forbidden"})
}

func (c *DevController) Error(ctx echo.Context) error {
	return ctx.JSON(http.StatusInternalServerError, map[string]string{"error": "internal error"})
}

// Health reports ok only when the lock store answers a ping.
func (c *DevController) Health(ctx echo.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx.Request().Context(), 2*time.Second)
	defer cancel()

	if err := c.store.Ping(pingCtx); err != nil {
		return ctx.JSON(http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
	}
	return ctx.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
