package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/oceanlabs/hydrolabel-go/internal/annotation"
)

// Session is one loaded dataset held in memory. It carries the audio search
// roots for its items, so media serving never depends on process-wide state.
type Session struct {
	ID        string              `json:"id"`
	Mode      string              `json:"mode"`
	CreatedAt time.Time           `json:"created_at"`
	Dataset   *annotation.Dataset `json:"dataset"`

	// Write routing for saves made against this session.
	LabelsPath      string `json:"labels_path,omitempty"`
	DashboardRoot   string `json:"dashboard_root,omitempty"`
	Date            string `json:"date,omitempty"`
	Hydrophone      string `json:"hydrophone,omitempty"`
	PredictionsPath string `json:"predictions_path,omitempty"`
}

// LoadDatasetRequest selects what to load into a new session.
type LoadDatasetRequest struct {
	Mode string `json:"mode"` // label, verify, predictions, hierarchical

	// Label mode.
	Folder      string `json:"folder,omitempty"`
	LabelsPath  string `json:"labels_path,omitempty"`
	AudioFolder string `json:"audio_folder,omitempty"`

	// Verify mode (hydrophone dashboard).
	DashboardRoot string `json:"dashboard_root,omitempty"`
	Date          string `json:"date,omitempty"`
	Hydrophone    string `json:"hydrophone,omitempty"`

	// Predictions and hierarchical modes.
	PredictionsPath string `json:"predictions_path,omitempty"`
	DataRoot        string `json:"data_root,omitempty"`
	DateFilter      string `json:"date_filter,omitempty"`
	DeviceFilter    string `json:"device_filter,omitempty"`
}

// initDatasetRoutes registers dataset session endpoints.
func (c *Controller) initDatasetRoutes() {
	c.Group.POST("/datasets", c.LoadDataset)
	c.Group.GET("/datasets/:id", c.GetDataset)
	c.Group.GET("/datasets/:id/items", c.GetDatasetItems)
	c.Group.GET("/datasets/:id/summary", c.GetDatasetSummary)
	c.Group.DELETE("/datasets/:id", c.CloseDataset)
}

// LoadDataset handles POST /api/v1/datasets, creating a session.
func (c *Controller) LoadDataset(ctx echo.Context) error {
	var req LoadDatasetRequest
	if err := ctx.Bind(&req); err != nil {
		return c.HandleError(ctx, err, "invalid request body", http.StatusBadRequest)
	}

	var (
		ds  *annotation.Dataset
		err error
	)
	session := &Session{
		ID:        uuid.New().String(),
		Mode:      req.Mode,
		CreatedAt: time.Now(),
	}

	switch req.Mode {
	case "label":
		ds, err = c.loader.LoadLabelMode(req.Folder, req.LabelsPath, req.AudioFolder)
		session.LabelsPath = req.LabelsPath
	case "verify":
		ds, err = c.loader.LoadVerifyMode(req.DashboardRoot, req.Date, req.Hydrophone)
		session.DashboardRoot = req.DashboardRoot
	case "predictions":
		ds, err = c.loader.LoadPredictionsFile(req.PredictionsPath)
		session.PredictionsPath = req.PredictionsPath
	case "hierarchical":
		ds, err = c.loader.LoadHierarchical(req.DataRoot, req.DateFilter, req.DeviceFilter)
	default:
		return c.HandleError(ctx, nil, "unknown mode: "+req.Mode, http.StatusBadRequest)
	}
	if err != nil {
		if c.metrics != nil {
			c.metrics.LabelStore.RecordDatasetLoad(req.Mode, "error")
		}
		return c.HandleError(ctx, err, "failed to load dataset", http.StatusUnprocessableEntity)
	}
	if c.metrics != nil {
		c.metrics.LabelStore.RecordDatasetLoad(req.Mode, "success")
	}

	if req.Mode == "verify" {
		session.Date = req.Date
		session.Hydrophone = req.Hydrophone
		if session.Date == "" || session.Hydrophone == "" {
			if src, ok := ds.Source.DataSource["date"].(string); ok && session.Date == "" {
				session.Date = src
			}
			if src, ok := ds.Source.DataSource["hydrophone"].(string); ok && session.Hydrophone == "" {
				session.Hydrophone = src
			}
		}
	}

	session.Dataset = ds
	c.sessionMutex.Lock()
	c.sessions[session.ID] = session
	c.sessionMutex.Unlock()

	c.logger.Info("dataset loaded",
		"session", session.ID, "mode", req.Mode,
		"items", len(ds.Items), "sources", len(annotation.UniqueSourceFolders(ds.Items)))

	return ctx.JSON(http.StatusCreated, session)
}

// GetDataset handles GET /api/v1/datasets/:id.
func (c *Controller) GetDataset(ctx echo.Context) error {
	session, ok := c.session(ctx.Param("id"))
	if !ok {
		return c.HandleError(ctx, nil, "session not found", http.StatusNotFound)
	}
	return ctx.JSON(http.StatusOK, session)
}

// GetDatasetItems handles GET /api/v1/datasets/:id/items with optional
// filters: unverified=true, or class plus threshold (and above=false for the
// below-threshold slice).
func (c *Controller) GetDatasetItems(ctx echo.Context) error {
	session, ok := c.session(ctx.Param("id"))
	if !ok {
		return c.HandleError(ctx, nil, "session not found", http.StatusNotFound)
	}

	items := session.Dataset.Items
	if ctx.QueryParam("unverified") == "true" {
		items = annotation.UnverifiedItems(items)
	}

	if class := ctx.QueryParam("class"); class != "" {
		threshold, err := strconv.ParseFloat(ctx.QueryParam("threshold"), 64)
		if err != nil {
			return c.HandleError(ctx, err, "invalid threshold", http.StatusBadRequest)
		}
		above := ctx.QueryParam("above") != "false"
		items = annotation.ItemsByScoreThreshold(items, class, threshold, above)
	}

	return ctx.JSON(http.StatusOK, map[string]any{
		"items": items,
		"count": len(items),
	})
}

// GetDatasetSummary handles GET /api/v1/datasets/:id/summary.
func (c *Controller) GetDatasetSummary(ctx echo.Context) error {
	session, ok := c.session(ctx.Param("id"))
	if !ok {
		return c.HandleError(ctx, nil, "session not found", http.StatusNotFound)
	}

	items := session.Dataset.Items
	sources := annotation.UniqueSourceFolders(items)
	resp := map[string]any{
		"summary":      annotation.BuildSummary(items),
		"score_stats":  annotation.ComputeScoreStats(items),
		"source_count": len(sources),
	}
	// A single contributing file is shown as its exact path, several as a
	// count plus the list.
	if len(sources) == 1 {
		resp["source_path"] = sources[0]
	} else if len(sources) > 1 {
		resp["source_paths"] = sources
	}
	return ctx.JSON(http.StatusOK, resp)
}

// CloseDataset handles DELETE /api/v1/datasets/:id.
func (c *Controller) CloseDataset(ctx echo.Context) error {
	c.sessionMutex.Lock()
	_, ok := c.sessions[ctx.Param("id")]
	delete(c.sessions, ctx.Param("id"))
	c.sessionMutex.Unlock()
	if !ok {
		return c.HandleError(ctx, nil, "session not found", http.StatusNotFound)
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (c *Controller) session(id string) (*Session, bool) {
	c.sessionMutex.RLock()
	defer c.sessionMutex.RUnlock()
	session, ok := c.sessions[id]
	return session, ok
}
