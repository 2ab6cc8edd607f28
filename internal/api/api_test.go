package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oceanlabs/hydrolabel-go/internal/conf"
)

func testSettings() *conf.Settings {
	settings := &conf.Settings{}
	settings.Server.Host = "127.0.0.1"
	settings.Server.Port = 8050
	settings.Discovery.CacheTTLSec = 60
	settings.Labels.DefaultAnnotator = "anonymous"
	settings.Media.ProbeAudio = true
	return settings
}

func newTestController(t *testing.T) *Controller {
	t.Helper()
	e := echo.New()
	return New(e, testSettings(), nil)
}

func doJSON(t *testing.T, c *Controller, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, http.NoBody)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	c.Echo.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestProbeDirectory(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "2026-01-07", "DEV01", "spectrograms", "a.mat"), "x")

	c := newTestController(t)
	rec := doJSON(t, c, http.MethodGet, "/api/v1/discovery?path="+root, "")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode(t, rec)
	assert.Equal(t, "hierarchical", body["structure_type"])
	assert.Equal(t, []any{"2026-01-07"}, body["dates"])
}

func TestProbeDirectoryRequiresPath(t *testing.T) {
	c := newTestController(t)
	rec := doJSON(t, c, http.MethodGet, "/api/v1/discovery", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestProbeDirectoryServesCachedResult(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.mat"), "x")

	c := newTestController(t)
	first := decode(t, doJSON(t, c, http.MethodGet, "/api/v1/discovery?path="+root, ""))
	assert.Equal(t, "flat", first["structure_type"])

	// The tree changed, but the cached probe answers until refresh=true.
	writeFile(t, filepath.Join(root, "2026-01-07", "DEV01", "spectrograms", "b.mat"), "x")
	cached := decode(t, doJSON(t, c, http.MethodGet, "/api/v1/discovery?path="+root, ""))
	assert.Equal(t, "flat", cached["structure_type"])

	refreshed := decode(t, doJSON(t, c, http.MethodGet, "/api/v1/discovery?path="+root+"&refresh=true", ""))
	assert.Equal(t, "hierarchical", refreshed["structure_type"])
}

func loadLabelSession(t *testing.T, c *Controller, root string) string {
	t.Helper()
	folder := filepath.Join(root, "mats")
	writeFile(t, filepath.Join(folder, "seg_000.mat"), "x")
	labelsPath := filepath.Join(root, "labels.json")

	rec := doJSON(t, c, http.MethodPost, "/api/v1/datasets", fmt.Sprintf(
		`{"mode": "label", "folder": %q, "labels_path": %q}`, folder, labelsPath))
	require.Equal(t, http.StatusCreated, rec.Code)
	return decode(t, rec)["id"].(string)
}

func TestLoadDatasetLabelMode(t *testing.T) {
	c := newTestController(t)
	id := loadLabelSession(t, c, t.TempDir())

	rec := doJSON(t, c, http.MethodGet, "/api/v1/datasets/"+id+"/items", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, float64(1), body["count"])
}

func TestLoadDatasetUnknownMode(t *testing.T) {
	c := newTestController(t)
	rec := doJSON(t, c, http.MethodPost, "/api/v1/datasets", `{"mode": "bogus"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetDatasetMissingSession(t *testing.T) {
	c := newTestController(t)
	rec := doJSON(t, c, http.MethodGet, "/api/v1/datasets/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	body := decode(t, rec)
	assert.NotEmpty(t, body["correlation_id"])
}

func TestSaveLabelsRoundTrip(t *testing.T) {
	root := t.TempDir()
	c := newTestController(t)
	id := loadLabelSession(t, c, root)

	rec := doJSON(t, c, http.MethodPost, "/api/v1/labels", fmt.Sprintf(
		`{"session_id": %q, "item_id": "seg_000.mat", "labels": ["Biophony > Fish sound"], "annotator": "alice"}`, id))
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, true, body["saved"])
	assert.Equal(t, []any{"Biophony > Fish sound"}, body["labels"])

	// The file was upgraded to the unified schema on write.
	raw, err := os.ReadFile(filepath.Join(root, "labels.json"))
	require.NoError(t, err)
	var data map[string]any
	require.NoError(t, json.Unmarshal(raw, &data))
	assert.Equal(t, "2.0", data["schema_version"])
}

func TestSaveLabelsRejectsInvalidTaxonomyPath(t *testing.T) {
	root := t.TempDir()
	settings := testSettings()
	settings.Labels.ValidateTaxonomy = true
	c := New(echo.New(), settings, nil)
	id := loadLabelSession(t, c, root)

	rec := doJSON(t, c, http.MethodPost, "/api/v1/labels", fmt.Sprintf(
		`{"session_id": %q, "item_id": "seg_000.mat", "labels": ["Not > A > Real > Path"]}`, id))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = doJSON(t, c, http.MethodPost, "/api/v1/labels", fmt.Sprintf(
		`{"session_id": %q, "item_id": "seg_000.mat", "labels": ["Anthropophony > Vessel"]}`, id))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAddAndRemoveLabelEndpoints(t *testing.T) {
	root := t.TempDir()
	c := newTestController(t)
	id := loadLabelSession(t, c, root)

	rec := doJSON(t, c, http.MethodPost, "/api/v1/labels/add", fmt.Sprintf(
		`{"session_id": %q, "item_id": "seg_000.mat", "label": "Anthropophony > Vessel"}`, id))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []any{"Anthropophony > Vessel"}, decode(t, rec)["labels"])

	rec = doJSON(t, c, http.MethodPost, "/api/v1/labels/remove", fmt.Sprintf(
		`{"session_id": %q, "item_id": "seg_000.mat", "label": "Anthropophony > Vessel"}`, id))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode(t, rec)["labels"])
}

func TestSaveVerificationRoutesThroughItemBackPointer(t *testing.T) {
	dir := t.TempDir()
	predictions := filepath.Join(dir, "predictions.json")
	writeFile(t, predictions, `{
	  "schema_version": "2.0",
	  "items": [{"item_id": "seg_000", "model_outputs": [{"class_hierarchy": "Biophony > Fish sound", "score": 0.9}], "verifications": []}]
	}`)

	c := newTestController(t)
	rec := doJSON(t, c, http.MethodPost, "/api/v1/datasets", fmt.Sprintf(
		`{"mode": "predictions", "predictions_path": %q}`, predictions))
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decode(t, rec)["id"].(string)

	rec = doJSON(t, c, http.MethodPost, "/api/v1/verifications", fmt.Sprintf(
		`{"session_id": %q, "item_id": "seg_000", "verified_by": "alice",
		  "label_decisions": [{"label": "Biophony > Fish sound", "decision": "accepted", "threshold_used": 0.5}]}`, id))
	require.Equal(t, http.StatusOK, rec.Code)

	raw, err := os.ReadFile(predictions)
	require.NoError(t, err)
	var data map[string]any
	require.NoError(t, json.Unmarshal(raw, &data))
	items := data["items"].([]any)
	verifications := items[0].(map[string]any)["verifications"].([]any)
	require.Len(t, verifications, 1)
	round := verifications[0].(map[string]any)
	assert.Equal(t, "alice", round["verified_by"])
	assert.Equal(t, float64(1), round["verification_round"])
}

func TestSaveVerificationMissingItem(t *testing.T) {
	dir := t.TempDir()
	predictions := filepath.Join(dir, "predictions.json")
	writeFile(t, predictions, `{"schema_version": "2.0", "items": []}`)

	c := newTestController(t)
	rec := doJSON(t, c, http.MethodPost, "/api/v1/verifications", fmt.Sprintf(
		`{"predictions_path": %q, "item_id": "ghost", "verified_by": "alice", "label_decisions": []}`, predictions))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDatasetSummaryReportsSourcePath(t *testing.T) {
	dir := t.TempDir()
	predictions := filepath.Join(dir, "predictions.json")
	writeFile(t, predictions, `{
	  "schema_version": "2.0",
	  "items": [{"item_id": "seg_000", "model_outputs": [], "verifications": []}]
	}`)

	c := newTestController(t)
	rec := doJSON(t, c, http.MethodPost, "/api/v1/datasets", fmt.Sprintf(
		`{"mode": "predictions", "predictions_path": %q}`, predictions))
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decode(t, rec)["id"].(string)

	body := decode(t, doJSON(t, c, http.MethodGet, "/api/v1/datasets/"+id+"/summary", ""))
	assert.Equal(t, float64(1), body["source_count"])
	assert.Equal(t, predictions, body["source_path"])
}

func TestTaxonomyEndpoints(t *testing.T) {
	c := newTestController(t)

	rec := doJSON(t, c, http.MethodGet, "/api/v1/taxonomy/validate?label=Anthropophony+%3E+Vessel", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode(t, rec)["valid"])

	rec = doJSON(t, c, http.MethodGet, "/api/v1/taxonomy/validate?label=Rain", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, false, body["valid"])
	assert.Equal(t, "Geophony > Weather > Precipitation > Rain", body["mapped"])

	rec = doJSON(t, c, http.MethodGet, "/api/v1/taxonomy/paths", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, decode(t, rec)["paths"])
}

func TestCloseDataset(t *testing.T) {
	c := newTestController(t)
	id := loadLabelSession(t, c, t.TempDir())

	rec := doJSON(t, c, http.MethodDelete, "/api/v1/datasets/"+id, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, c, http.MethodDelete, "/api/v1/datasets/"+id, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthz(t *testing.T) {
	c := newTestController(t)
	rec := doJSON(t, c, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}
