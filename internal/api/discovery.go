package api

import (
	"net/http"
	"path/filepath"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/oceanlabs/hydrolabel-go/internal/discovery"
)

// initDiscoveryRoutes registers directory discovery endpoints.
func (c *Controller) initDiscoveryRoutes() {
	c.Group.GET("/discovery", c.ProbeDirectory)
}

// ProbeDirectory handles GET /api/v1/discovery. Query parameters: path
// (required) and refresh=true to bypass the cache.
func (c *Controller) ProbeDirectory(ctx echo.Context) error {
	path := ctx.QueryParam("path")
	if path == "" {
		return c.HandleError(ctx, nil, "path query parameter is required", http.StatusBadRequest)
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return c.HandleError(ctx, err, "invalid path", http.StatusBadRequest)
	}

	refresh := ctx.QueryParam("refresh") == "true"
	if !refresh {
		if cached, found := c.discoveryCache.Get(absPath); found {
			if c.metrics != nil {
				c.metrics.Discovery.RecordCacheHit()
			}
			return ctx.JSON(http.StatusOK, cached.(*discovery.Result))
		}
	}
	if c.metrics != nil {
		c.metrics.Discovery.RecordCacheMiss()
	}

	start := time.Now()
	result := c.prober.Detect(absPath)
	if c.metrics != nil {
		c.metrics.Discovery.RecordProbe(string(result.StructureType), time.Since(start).Seconds())
	}

	c.discoveryCache.Set(absPath, result, 0)
	return ctx.JSON(http.StatusOK, result)
}
