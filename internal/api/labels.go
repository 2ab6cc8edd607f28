package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/oceanlabs/hydrolabel-go/internal/annotation"
	"github.com/oceanlabs/hydrolabel-go/internal/labelstore"
)

// SaveLabelsRequest is the body of a label-mode save.
type SaveLabelsRequest struct {
	SessionID  string   `json:"session_id,omitempty"`
	LabelsPath string   `json:"labels_path,omitempty"`
	ItemID     string   `json:"item_id"`
	Labels     []string `json:"labels"`
	Notes      *string  `json:"notes,omitempty"`
	Annotator  string   `json:"annotator,omitempty"`
}

// SaveVerificationRequest is the body of a verify-mode save against a
// unified predictions file.
type SaveVerificationRequest struct {
	SessionID       string                     `json:"session_id,omitempty"`
	PredictionsPath string                     `json:"predictions_path,omitempty"`
	ItemID          string                     `json:"item_id"`
	VerifiedBy      string                     `json:"verified_by"`
	LabelDecisions  []annotation.LabelDecision `json:"label_decisions"`
	Status          string                     `json:"verification_status,omitempty"`
	Notes           string                     `json:"notes,omitempty"`
	LabelSource     string                     `json:"label_source,omitempty"`
}

// SaveDashboardVerificationRequest is the body of a verify-mode save against
// a hydrophone dashboard tree.
type SaveDashboardVerificationRequest struct {
	SessionID     string   `json:"session_id,omitempty"`
	DashboardRoot string   `json:"dashboard_root,omitempty"`
	Date          string   `json:"date,omitempty"`
	Hydrophone    string   `json:"hydrophone,omitempty"`
	ItemID        string   `json:"item_id"`
	Labels        []string `json:"labels"`
	Username      string   `json:"username,omitempty"`
	Role          string   `json:"role,omitempty"`
}

// initLabelRoutes registers label and verification write endpoints.
func (c *Controller) initLabelRoutes() {
	c.Group.POST("/labels", c.SaveLabels)
	c.Group.POST("/labels/add", c.AddLabel)
	c.Group.POST("/labels/remove", c.RemoveLabel)
	c.Group.GET("/labels/smart-path", c.GetSmartLabelsPath)
	c.Group.POST("/verifications", c.SaveVerification)
	c.Group.POST("/verifications/dashboard", c.SaveDashboardVerification)
}

// SaveLabels handles POST /api/v1/labels.
func (c *Controller) SaveLabels(ctx echo.Context) error {
	var req SaveLabelsRequest
	if err := ctx.Bind(&req); err != nil {
		return c.HandleError(ctx, err, "invalid request body", http.StatusBadRequest)
	}
	if req.ItemID == "" {
		return c.HandleError(ctx, nil, "item_id is required", http.StatusBadRequest)
	}

	path := req.LabelsPath
	if path == "" {
		if session, ok := c.session(req.SessionID); ok {
			path = session.LabelsPath
		}
	}
	if path == "" {
		return c.HandleError(ctx, nil, "no labels path for this save", http.StatusBadRequest)
	}

	if err := c.validateLabels(req.Labels); err != nil {
		return c.HandleError(ctx, err, "invalid label", http.StatusUnprocessableEntity)
	}

	annotator := req.Annotator
	if annotator == "" {
		annotator = c.Settings.Labels.DefaultAnnotator
	}

	start := time.Now()
	err := c.store.SaveLabels(path, req.ItemID, req.Labels, labelstore.SaveOptions{
		AnnotatedBy: annotator,
		Notes:       req.Notes,
	})
	if c.metrics != nil {
		status := "success"
		if err != nil {
			status = "error"
		}
		c.metrics.LabelStore.RecordLabelSave(status, time.Since(start).Seconds())
	}
	if err != nil {
		return c.HandleError(ctx, err, "failed to save labels", http.StatusInternalServerError)
	}

	return ctx.JSON(http.StatusOK, map[string]any{
		"saved":  true,
		"path":   path,
		"labels": c.store.GetLabels(path, req.ItemID),
	})
}

// AddLabel handles POST /api/v1/labels/add, appending one label.
func (c *Controller) AddLabel(ctx echo.Context) error {
	return c.changeSingleLabel(ctx, c.store.AddLabel)
}

// RemoveLabel handles POST /api/v1/labels/remove, removing one label.
func (c *Controller) RemoveLabel(ctx echo.Context) error {
	return c.changeSingleLabel(ctx, c.store.RemoveLabel)
}

type singleLabelRequest struct {
	SessionID  string `json:"session_id,omitempty"`
	LabelsPath string `json:"labels_path,omitempty"`
	ItemID     string `json:"item_id"`
	Label      string `json:"label"`
}

func (c *Controller) changeSingleLabel(ctx echo.Context, op func(path, item, label string) error) error {
	var req singleLabelRequest
	if err := ctx.Bind(&req); err != nil {
		return c.HandleError(ctx, err, "invalid request body", http.StatusBadRequest)
	}
	if req.ItemID == "" || req.Label == "" {
		return c.HandleError(ctx, nil, "item_id and label are required", http.StatusBadRequest)
	}

	path := req.LabelsPath
	if path == "" {
		if session, ok := c.session(req.SessionID); ok {
			path = session.LabelsPath
		}
	}
	if path == "" {
		return c.HandleError(ctx, nil, "no labels path for this save", http.StatusBadRequest)
	}
	if err := c.validateLabels([]string{req.Label}); err != nil {
		return c.HandleError(ctx, err, "invalid label", http.StatusUnprocessableEntity)
	}

	if err := op(path, req.ItemID, req.Label); err != nil {
		return c.HandleError(ctx, err, "failed to update labels", http.StatusInternalServerError)
	}
	return ctx.JSON(http.StatusOK, map[string]any{
		"saved":  true,
		"labels": c.store.GetLabels(path, req.ItemID),
	})
}

// GetSmartLabelsPath handles GET /api/v1/labels/smart-path. Query
// parameters: data_root, structure_type, existing_root_labels,
// subfolder_labels_count.
func (c *Controller) GetSmartLabelsPath(ctx echo.Context) error {
	dataRoot := ctx.QueryParam("data_root")
	structureType := ctx.QueryParam("structure_type")
	existing := ctx.QueryParam("existing_root_labels")
	count, _ := strconv.Atoi(ctx.QueryParam("subfolder_labels_count"))

	path, reason := labelstore.SmartLabelsPath(dataRoot, structureType, existing, count)
	return ctx.JSON(http.StatusOK, map[string]string{
		"path":   path,
		"reason": reason,
	})
}

// SaveVerification handles POST /api/v1/verifications, appending a round to
// a unified predictions file. The target file comes from the request, the
// item's predictions back-pointer in the session, or the session itself.
func (c *Controller) SaveVerification(ctx echo.Context) error {
	var req SaveVerificationRequest
	if err := ctx.Bind(&req); err != nil {
		return c.HandleError(ctx, err, "invalid request body", http.StatusBadRequest)
	}
	if req.ItemID == "" {
		return c.HandleError(ctx, nil, "item_id is required", http.StatusBadRequest)
	}
	if req.VerifiedBy == "" {
		req.VerifiedBy = c.Settings.Labels.DefaultAnnotator
	}

	var decisionLabels []string
	for _, d := range req.LabelDecisions {
		decisionLabels = append(decisionLabels, d.Label)
	}
	if err := c.validateLabels(decisionLabels); err != nil {
		return c.HandleError(ctx, err, "invalid label", http.StatusUnprocessableEntity)
	}

	path := req.PredictionsPath
	if path == "" {
		if session, ok := c.session(req.SessionID); ok {
			path = session.PredictionsPath
			for i := range session.Dataset.Items {
				item := &session.Dataset.Items[i]
				if item.ItemID == req.ItemID && item.PredictionsPath() != "" {
					path = item.PredictionsPath()
					break
				}
			}
		}
	}
	if path == "" {
		return c.HandleError(ctx, nil, "no predictions file for this item", http.StatusBadRequest)
	}

	start := time.Now()
	found, err := c.store.SaveVerification(path, req.ItemID, req.VerifiedBy,
		req.LabelDecisions, labelstore.VerifyOptions{
			VerificationStatus: req.Status,
			Notes:              req.Notes,
			LabelSource:        req.LabelSource,
		})
	if c.metrics != nil {
		status := "success"
		switch {
		case err != nil:
			status = "error"
		case !found:
			status = "not_found"
		}
		c.metrics.LabelStore.RecordVerifySave(status, time.Since(start).Seconds())
	}
	if err != nil {
		return c.HandleError(ctx, err, "failed to save verification", http.StatusInternalServerError)
	}
	if !found {
		return c.HandleError(ctx, nil, "item not found in predictions file", http.StatusNotFound)
	}

	return ctx.JSON(http.StatusOK, map[string]any{"saved": true, "path": path})
}

// SaveDashboardVerification handles POST /api/v1/verifications/dashboard.
func (c *Controller) SaveDashboardVerification(ctx echo.Context) error {
	var req SaveDashboardVerificationRequest
	if err := ctx.Bind(&req); err != nil {
		return c.HandleError(ctx, err, "invalid request body", http.StatusBadRequest)
	}
	if req.ItemID == "" {
		return c.HandleError(ctx, nil, "item_id is required", http.StatusBadRequest)
	}

	if req.DashboardRoot == "" {
		if session, ok := c.session(req.SessionID); ok {
			req.DashboardRoot = session.DashboardRoot
			if req.Date == "" {
				req.Date = session.Date
			}
			if req.Hydrophone == "" {
				req.Hydrophone = session.Hydrophone
			}
		}
	}
	if err := c.validateLabels(req.Labels); err != nil {
		return c.HandleError(ctx, err, "invalid label", http.StatusUnprocessableEntity)
	}

	start := time.Now()
	err := c.store.SaveDashboardVerification(req.DashboardRoot, req.Date,
		req.Hydrophone, req.ItemID, req.Labels, req.Username, req.Role)
	if c.metrics != nil {
		status := "success"
		if err != nil {
			status = "error"
		}
		c.metrics.LabelStore.RecordVerifySave(status, time.Since(start).Seconds())
	}
	if err != nil {
		return c.HandleError(ctx, err, "failed to save verification", http.StatusInternalServerError)
	}
	return ctx.JSON(http.StatusOK, map[string]any{"saved": true})
}

// validateLabels checks labels against the taxonomy when validation is
// enabled in settings.
func (c *Controller) validateLabels(labels []string) error {
	if !c.Settings.Labels.ValidateTaxonomy || c.tree == nil {
		return nil
	}
	for _, label := range labels {
		if !c.tree.IsValidLabel(label) {
			return &invalidLabelError{label: label}
		}
	}
	return nil
}

type invalidLabelError struct {
	label string
}

func (e *invalidLabelError) Error() string {
	return "label is not a valid taxonomy path: " + e.label
}
