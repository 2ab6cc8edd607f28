// Package api exposes the HTTP interface: discovery probes, dataset
// sessions, label and verification writes, and media serving.
package api

import (
	"crypto/rand"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/patrickmn/go-cache"

	"github.com/oceanlabs/hydrolabel-go/internal/conf"
	"github.com/oceanlabs/hydrolabel-go/internal/dataset"
	"github.com/oceanlabs/hydrolabel-go/internal/discovery"
	"github.com/oceanlabs/hydrolabel-go/internal/labelstore"
	"github.com/oceanlabs/hydrolabel-go/internal/logging"
	"github.com/oceanlabs/hydrolabel-go/internal/observability"
	"github.com/oceanlabs/hydrolabel-go/internal/taxonomy"
)

// Controller manages the API routes and handlers.
type Controller struct {
	Echo     *echo.Echo
	Group    *echo.Group
	Settings *conf.Settings

	prober  *discovery.Prober
	loader  *dataset.Loader
	store   *labelstore.Store
	tree    *taxonomy.Tree
	metrics *observability.Metrics

	discoveryCache *cache.Cache

	sessionMutex sync.RWMutex
	sessions     map[string]*Session

	logger *slog.Logger
}

// New creates the API controller and registers all routes on e.
func New(e *echo.Echo, settings *conf.Settings, metrics *observability.Metrics) *Controller {
	prober := discovery.New(settings.Discovery.MaxEntries)
	ttl := time.Duration(settings.Discovery.CacheTTLSec) * time.Second

	tree, err := taxonomy.Default()
	if err != nil {
		logging.ForService("api").Error("failed to load taxonomy tree", "error", err)
	}

	c := &Controller{
		Echo:           e,
		Settings:       settings,
		prober:         prober,
		loader:         dataset.New(prober),
		store:          labelstore.New(),
		tree:           tree,
		metrics:        metrics,
		discoveryCache: cache.New(ttl, 2*ttl),
		sessions:       make(map[string]*Session),
		logger:         logging.ForService("api"),
	}

	c.Group = e.Group("/api/v1")
	c.Group.Use(middleware.Recover())

	c.initDiscoveryRoutes()
	c.initDatasetRoutes()
	c.initLabelRoutes()
	c.initMediaRoutes()
	c.initTaxonomyRoutes()

	if metrics != nil {
		e.GET("/metrics", echo.WrapHandler(metrics.Handler()))
	}
	e.GET("/healthz", func(ctx echo.Context) error {
		return ctx.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	return c
}

// ErrorResponse is the JSON envelope for API errors.
type ErrorResponse struct {
	Error         string `json:"error"`
	Message       string `json:"message"`
	Code          int    `json:"code"`
	CorrelationID string `json:"correlation_id"`
}

// HandleError constructs and returns an appropriate error response.
func (c *Controller) HandleError(ctx echo.Context, err error, message string, code int) error {
	resp := &ErrorResponse{
		Error:         message,
		Message:       message,
		Code:          code,
		CorrelationID: generateCorrelationID(),
	}
	if err != nil {
		resp.Error = err.Error()
	}

	c.logger.Error("API error",
		"correlation_id", resp.CorrelationID,
		"path", ctx.Request().URL.Path,
		"ip", ctx.RealIP(),
		"message", message,
		"error", err)

	return ctx.JSON(code, resp)
}

// generateCorrelationID creates a short random identifier for error tracking.
func generateCorrelationID() string {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	const length = 8

	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		return "ERR-RAND"
	}
	for i := range b {
		b[i] = charset[int(b[i])%len(charset)]
	}
	return string(b)
}
