package http

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// Pinger is satisfied by *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// NewHealthHandler registers GET /health. A failed database ping reports 503.
func NewHealthHandler(e *echo.Echo, db Pinger, log *zap.Logger) {
	e.GET("/health", func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
		defer cancel()

		timestamp := time.Now().UTC().Format(time.RFC3339)
		if err := db.PingContext(ctx); err != nil {
			log.Error("health check failed", zap.Error(err))
			return c.JSON(http.StatusServiceUnavailable, echo.Map{
				"status":    "degraded",
				"service":   "api",
				"db":        "down",
				"timestamp": timestamp,
			})
		}
		return c.JSON(http.StatusOK, echo.Map{
			"status":    "ok",
			"service":   "api",
			"db":        "ok",
			"timestamp": timestamp,
		})
	})
}
