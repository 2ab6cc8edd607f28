package api

import (
	"context"
	"fmt"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/oceanlabs/hydrolabel-go/internal/conf"
	"github.com/oceanlabs/hydrolabel-go/internal/logging"
	"github.com/oceanlabs/hydrolabel-go/internal/observability"
)

// NewServer builds an echo instance with standard middleware and a mounted
// controller.
func NewServer(settings *conf.Settings, metrics *observability.Metrics) *Controller {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus: true,
		LogURI:    true,
		LogMethod: true,
		LogValuesFunc: func(ctx echo.Context, v middleware.RequestLoggerValues) error {
			logger := logging.ForService("http")
			logger.Info("request",
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status)
			return nil
		},
	}))

	return New(e, settings, metrics)
}

// Start runs the HTTP server until Shutdown is called.
func (c *Controller) Start() error {
	addr := fmt.Sprintf("%s:%d", c.Settings.Server.Host, c.Settings.Server.Port)
	c.logger.Info("starting HTTP server", "addr", addr)
	return c.Echo.Start(addr)
}

// Shutdown stops the HTTP server gracefully.
func (c *Controller) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return c.Echo.Shutdown(ctx)
}
