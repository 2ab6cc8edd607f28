package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/oceanlabs/hydrolabel-go/internal/taxonomy"
)

// initTaxonomyRoutes registers the label tree endpoints.
func (c *Controller) initTaxonomyRoutes() {
	c.Group.GET("/taxonomy/paths", c.GetTaxonomyPaths)
	c.Group.GET("/taxonomy/validate", c.ValidateTaxonomyPath)
}

// GetTaxonomyPaths handles GET /api/v1/taxonomy/paths. With leaves=true only
// terminal names are returned.
func (c *Controller) GetTaxonomyPaths(ctx echo.Context) error {
	if c.tree == nil {
		return c.HandleError(ctx, nil, "taxonomy tree unavailable", http.StatusInternalServerError)
	}
	if ctx.QueryParam("leaves") == "true" {
		return ctx.JSON(http.StatusOK, map[string]any{"leaves": c.tree.Leaves()})
	}
	return ctx.JSON(http.StatusOK, map[string]any{"paths": c.tree.AllPaths()})
}

// ValidateTaxonomyPath handles GET /api/v1/taxonomy/validate?label=...,
// also reporting the mapped path for flat legacy labels.
func (c *Controller) ValidateTaxonomyPath(ctx echo.Context) error {
	if c.tree == nil {
		return c.HandleError(ctx, nil, "taxonomy tree unavailable", http.StatusInternalServerError)
	}
	label := ctx.QueryParam("label")
	if label == "" {
		return c.HandleError(ctx, nil, "label query parameter is required", http.StatusBadRequest)
	}

	mapped := taxonomy.MapLegacyLabel(label)
	return ctx.JSON(http.StatusOK, map[string]any{
		"label":  label,
		"valid":  c.tree.IsValidLabel(label),
		"mapped": mapped,
	})
}
