package dataset

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oceanlabs/hydrolabel-go/internal/annotation"
	"github.com/oceanlabs/hydrolabel-go/internal/discovery"
)

func write(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func newLoader() *Loader {
	return New(discovery.New(0))
}

func TestLoadLabelModeOverlaysSavedLabels(t *testing.T) {
	root := t.TempDir()
	folder := filepath.Join(root, "mats")
	audio := filepath.Join(root, "audio")
	write(t, filepath.Join(folder, "seg_000.mat"), "x")
	write(t, filepath.Join(folder, "seg_001.mat"), "x")
	write(t, filepath.Join(audio, "seg_000.flac"), "x")

	labelsFile := filepath.Join(root, "labels.json")
	write(t, labelsFile, `{"seg_000.mat": ["Biophony > Fish"]}`)

	ds, err := newLoader().LoadLabelMode(folder, labelsFile, audio)
	require.NoError(t, err)

	require.Len(t, ds.Items, 2)
	assert.Equal(t, []string{audio}, ds.AudioRoots)

	first := ds.Items[0]
	assert.Equal(t, "seg_000.mat", first.ItemID)
	require.NotNil(t, first.Annotations)
	assert.Equal(t, []string{"Biophony > Fish"}, first.Annotations.Labels)
	assert.Equal(t, filepath.Join(audio, "seg_000.flac"), first.AudioPath)

	second := ds.Items[1]
	assert.Equal(t, "seg_001.mat", second.ItemID)
	assert.Nil(t, second.Annotations)
	assert.Empty(t, second.AudioPath)

	assert.Equal(t, 2, ds.Summary.TotalItems)
	assert.Equal(t, 1, ds.Summary.Annotated)
}

func TestLoadLabelModeWithoutLabelsFile(t *testing.T) {
	root := t.TempDir()
	folder := filepath.Join(root, "mats")
	write(t, filepath.Join(folder, "a.mat"), "x")

	ds, err := newLoader().LoadLabelMode(folder, "", "")
	require.NoError(t, err)

	require.Len(t, ds.Items, 1)
	assert.Equal(t, "manual", ds.Source.Type)
	assert.Empty(t, ds.AudioRoots)
}

func TestLoadVerifyModeDefaultsToLatestDateAndFirstDevice(t *testing.T) {
	root := t.TempDir()
	write(t, filepath.Join(root, "2026-01-06", "DEVB", "labels.json"), `{}`)
	write(t, filepath.Join(root, "2026-01-07", "DEVB", "labels.json"), `{}`)
	write(t, filepath.Join(root, "2026-01-07", "DEVA", "labels.json"),
		`{"a.png": {"predicted_labels": ["X > Y"], "probabilities": {"X > Y": 0.7}}}`)

	ds, err := newLoader().LoadVerifyMode(root, "", "")
	require.NoError(t, err)

	require.Len(t, ds.Items, 1)
	assert.Equal(t, "a.png", ds.Items[0].ItemID)
	assert.Equal(t, "DEVA", ds.Items[0].DeviceCode)
	assert.Equal(t,
		filepath.Join(root, "2026-01-07", "DEVA", "images", "a.png"),
		ds.Items[0].SpectrogramPath)
}

func TestLoadVerifyModeMissingTree(t *testing.T) {
	ds, err := newLoader().LoadVerifyMode(filepath.Join(t.TempDir(), "missing"), "", "")
	require.NoError(t, err)
	assert.Empty(t, ds.Items)
}

func TestLoadPredictionsFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "predictions.json")
	write(t, path, `{
	  "schema_version": "2.0",
	  "items": [{"item_id": "seg_000", "model_outputs": [{"class_hierarchy": "Biophony > Fish", "score": 0.9}], "verifications": []}]
	}`)

	ds, err := newLoader().LoadPredictionsFile(path)
	require.NoError(t, err)

	require.Len(t, ds.Items, 1)
	assert.Equal(t, []string{dir}, ds.AudioRoots)
	assert.Equal(t, path, ds.Items[0].PredictionsPath())
}

func TestLoadPredictionsFileMissing(t *testing.T) {
	_, err := newLoader().LoadPredictionsFile(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestLoadHierarchicalMergesAllDatesAndDevices(t *testing.T) {
	root := t.TempDir()
	predictions := `{
	  "schema_version": "2.0",
	  "items": [{"item_id": "%s", "model_outputs": [], "verifications": []}]
	}`
	for _, folder := range []struct{ date, device, item string }{
		{"2026-01-06", "DEVA", "seg_a"},
		{"2026-01-07", "DEVA", "seg_b"},
		{"2026-01-07", "DEVB", "seg_c"},
	} {
		base := filepath.Join(root, folder.date, folder.device)
		write(t, filepath.Join(base, "spectrograms", "a.mat"), "x")
		write(t, filepath.Join(base, "predictions.json"),
			fmt.Sprintf(predictions, folder.item))
	}

	loader := newLoader()

	all, err := loader.LoadHierarchical(root, FilterAll, FilterAll)
	require.NoError(t, err)
	require.Len(t, all.Items, 3)
	assert.Equal(t, "seg_a", all.Items[0].ItemID)
	assert.Len(t, all.AudioRoots, 3)
	assert.Len(t, annotation.UniqueSourceFolders(all.Items), 3)

	oneDate, err := loader.LoadHierarchical(root, "2026-01-07", FilterAll)
	require.NoError(t, err)
	require.Len(t, oneDate.Items, 2)

	oneDevice, err := loader.LoadHierarchical(root, FilterAll, "DEVA")
	require.NoError(t, err)
	require.Len(t, oneDevice.Items, 2)
}

func TestLoadHierarchicalRootPredictionsGoverns(t *testing.T) {
	root := t.TempDir()
	device := filepath.Join(root, "2026-01-07", "DEVA")
	write(t, filepath.Join(device, "spectrograms", "a.mat"), "x")
	write(t, filepath.Join(device, "predictions.json"),
		`{"schema_version": "2.0", "items": [{"item_id": "device_item", "model_outputs": [], "verifications": []}]}`)
	write(t, filepath.Join(root, "predictions.json"),
		`{"schema_version": "2.0", "items": [{"item_id": "root_item", "model_outputs": [], "verifications": []}]}`)

	ds, err := newLoader().LoadHierarchical(root, FilterAll, FilterAll)
	require.NoError(t, err)

	require.Len(t, ds.Items, 1)
	assert.Equal(t, "root_item", ds.Items[0].ItemID)
}

func TestLoadHierarchicalRejectsFlatRoot(t *testing.T) {
	root := t.TempDir()
	write(t, filepath.Join(root, "a.mat"), "x")

	_, err := newLoader().LoadHierarchical(root, FilterAll, FilterAll)
	assert.Error(t, err)
}
