// Package router configures the Echo server: the Telegram webhook mount,
// the health check and the small operator API.
package router

import (
	"net/http"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"marzbot/internal/repository"
)

// Setup configures all routes for the Echo server.
func Setup(
	e *echo.Echo,
	stats *repository.StatsRepository,
	apiKey string,
	webhookHandler http.Handler,
	logger *zap.Logger,
) {
	e.Use(echomw.Recover())
	e.HideBanner = true

	// Health check
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	// Operator API, guarded by a static key.
	apiGroup := e.Group("/api")
	apiGroup.Use(apiKeyAuth(apiKey, logger))
	apiGroup.GET("/stats", func(c echo.Context) error {
		s, err := stats.Collect()
		if err != nil {
			logger.Error("stats collection failed", zap.Error(err))
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "stats unavailable"})
		}
		return c.JSON(http.StatusOK, s)
	})

	// Telegram webhook
	if webhookHandler != nil {
		e.POST("/bot/webhook", echo.WrapHandler(webhookHandler))
	} else {
		logger.Info("Telegram webhook route disabled (bot update mode is polling)")
	}
}

// apiKeyAuth rejects requests whose X-Api-Key header does not match. An
// empty configured key disables the API entirely rather than leaving it
// open.
func apiKeyAuth(apiKey string, logger *zap.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if apiKey == "" {
				return c.JSON(http.StatusForbidden, map[string]string{"error": "api disabled"})
			}
			if c.Request().Header.Get("X-Api-Key") != apiKey {
				logger.Warn("rejected api request", zap.String("remote", c.RealIP()))
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			}
			return next(c)
		}
	}
}
