package discovery

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
}

func TestDetectHierarchical(t *testing.T) {
	root := t.TempDir()
	base := filepath.Join(root, "2026-01-07", "ICLISTENHF0001")
	for _, name := range []string{"a.mat", "b.mat", "c.mat"} {
		writeFile(t, filepath.Join(base, "spectrograms", name))
	}
	for _, name := range []string{"a.flac", "b.flac", "c.flac"} {
		writeFile(t, filepath.Join(base, "audio", name))
	}

	result := New(0).Detect(root)

	assert.Equal(t, StructureHierarchical, result.StructureType)
	assert.Equal(t, []string{"2026-01-07"}, result.Dates)
	assert.Equal(t, []string{"ICLISTENHF0001"}, result.Devices)
	assert.Equal(t, 3, result.SpectrogramCount)
	assert.Equal(t, 3, result.AudioCount)
	assert.Equal(t, filepath.Join(base, "spectrograms"), result.SpectrogramFolder)
	assert.Equal(t, filepath.Join(base, "audio"), result.AudioFolder)
	assert.Empty(t, result.PredictionsFile)

	detail := result.HierarchyDetail["2026-01-07"]["ICLISTENHF0001"]
	assert.Equal(t, 3, detail.SpectrogramCount)
	assert.Equal(t, 3, detail.AudioCount)
	assert.False(t, detail.HasLabelsJSON)
}

func TestDetectHierarchicalMultipleDatesSortedDescending(t *testing.T) {
	root := t.TempDir()
	for _, date := range []string{"2026-01-05", "2026-01-07", "2026-01-06"} {
		writeFile(t, filepath.Join(root, date, "DEV01", "spectrograms", "a.mat"))
	}

	result := New(0).Detect(root)

	assert.Equal(t, StructureHierarchical, result.StructureType)
	assert.Equal(t, []string{"2026-01-07", "2026-01-06", "2026-01-05"}, result.Dates)
	assert.Equal(t, 3, result.SpectrogramCount)
}

func TestDetectDeviceOnly(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "ICLISTENHF1951", "spectrograms", "a.mat"))
	writeFile(t, filepath.Join(root, "ICLISTENHF1952", "b.png"))

	result := New(0).Detect(root)

	assert.Equal(t, StructureDeviceOnly, result.StructureType)
	assert.Equal(t, []string{"ICLISTENHF1951", "ICLISTENHF1952"}, result.Devices)
	assert.Empty(t, result.Dates)
	assert.Equal(t, 2, result.SpectrogramCount)
	assert.Equal(t, 1, result.DeviceDetail["ICLISTENHF1951"].SpectrogramCount)
}

func TestDetectFlat(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "seg_000.mat"))
	writeFile(t, filepath.Join(root, "seg_001.mat"))
	writeFile(t, filepath.Join(root, "notes.txt"))

	result := New(0).Detect(root)

	assert.Equal(t, StructureFlat, result.StructureType)
	assert.Equal(t, root, result.SpectrogramFolder)
	assert.Equal(t, 2, result.SpectrogramCount)
	assert.Equal(t, []string{".mat"}, result.SpectrogramExtensions)
	assert.Contains(t, result.Message, "2 .mat")
}

func TestDetectFlatWithSpectrogramSubfolder(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "spectrograms", "a.png"))
	writeFile(t, filepath.Join(root, "audio", "a.wav"))

	result := New(0).Detect(root)

	// "spectrograms"/"audio" are reserved names, so no device folder is seen.
	assert.Equal(t, StructureFlat, result.StructureType)
	assert.Equal(t, filepath.Join(root, "spectrograms"), result.SpectrogramFolder)
	assert.Equal(t, filepath.Join(root, "audio"), result.AudioFolder)
	assert.Equal(t, 1, result.AudioCount)
}

func TestDetectUnknown(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "readme.txt"))

	result := New(0).Detect(root)
	assert.Equal(t, StructureUnknown, result.StructureType)
	assert.Equal(t, "Could not detect data structure", result.Message)
}

func TestDetectNonexistentPath(t *testing.T) {
	result := New(0).Detect(filepath.Join(t.TempDir(), "missing"))
	assert.Equal(t, StructureUnknown, result.StructureType)
	assert.Equal(t, "Path does not exist", result.Message)
}

func TestDetectFilePath(t *testing.T) {
	root := t.TempDir()
	file := filepath.Join(root, "predictions.json")
	writeFile(t, file)

	result := New(0).Detect(file)
	assert.Equal(t, StructureUnknown, result.StructureType)
	assert.Equal(t, "Path is a file; please select a directory", result.Message)
}

func TestCascadePrecedence(t *testing.T) {
	root := t.TempDir()
	device := filepath.Join(root, "2026-01-07", "DEV01")
	writeFile(t, filepath.Join(device, "spectrograms", "a.mat"))

	rootPredictions := filepath.Join(root, "predictions.json")
	writeFile(t, rootPredictions)
	devicePredictions := filepath.Join(device, "predictions.json")
	writeFile(t, devicePredictions)

	result := New(0).Detect(root)

	require.Equal(t, StructureHierarchical, result.StructureType)
	// Root-level file governs; the device-level file only appears in the
	// subfolder locations list.
	assert.Equal(t, rootPredictions, result.RootPredictionsFile)
	assert.Equal(t, rootPredictions, result.PredictionsFile)
	assert.Equal(t, []string{devicePredictions}, result.SubfolderPredictionsLocations)
	assert.Equal(t, 1, result.SubfolderPredictionsCount())
	assert.True(t, result.HierarchyDetail["2026-01-07"]["DEV01"].HasPredictionsJSON)
}

func TestRootLabelsFileFallsBackToAnnotations(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "DEV01", "spectrograms", "a.mat"))
	annotations := filepath.Join(root, "annotations.json")
	writeFile(t, annotations)

	result := New(0).Detect(root)
	assert.Equal(t, annotations, result.RootLabelsFile)
}

func TestDetectDeterministic(t *testing.T) {
	root := t.TempDir()
	for _, date := range []string{"2026-02-01", "2026-01-01"} {
		for _, dev := range []string{"DEVB", "DEVA"} {
			writeFile(t, filepath.Join(root, date, dev, "spectrograms", "a.mat"))
		}
	}

	first := New(0).Detect(root)
	for i := 0; i < 5; i++ {
		again := New(0).Detect(root)
		assert.Equal(t, first.StructureType, again.StructureType)
		assert.Equal(t, first.Dates, again.Dates)
		assert.Equal(t, first.Devices, again.Devices)
		assert.Equal(t, first.SpectrogramCount, again.SpectrogramCount)
	}
	assert.Equal(t, []string{"2026-02-01", "2026-01-01"}, first.Dates)
	assert.Equal(t, []string{"DEVA", "DEVB"}, first.Devices)
}

func TestMaxEntriesProducesPartialResult(t *testing.T) {
	root := t.TempDir()
	for i := 0; i < 20; i++ {
		writeFile(t, filepath.Join(root, "seg_"+string(rune('a'+i))+".mat"))
	}

	result := New(5).Detect(root)
	// Partial, but never a panic or an error.
	assert.LessOrEqual(t, result.SpectrogramCount, 5)
}

func TestDiscoverFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "spec", "seg_000.mat"))
	writeFile(t, filepath.Join(root, "spec", "seg_001.mat"))
	writeFile(t, filepath.Join(root, "spec", "nested", "seg_002.mat"))
	writeFile(t, filepath.Join(root, "audio", "seg_000.flac"))
	writeFile(t, filepath.Join(root, "audio", "seg_001.wav"))

	files := New(0).DiscoverFiles(filepath.Join(root, "spec"), filepath.Join(root, "audio"))
	require.Len(t, files, 3)

	byStem := make(map[string]SpectrogramFile)
	for _, f := range files {
		byStem[f.Stem] = f
	}
	assert.Equal(t, filepath.Join(root, "audio", "seg_000.flac"), byStem["seg_000"].AudioPath)
	assert.Equal(t, filepath.Join(root, "audio", "seg_001.wav"), byStem["seg_001"].AudioPath)
	assert.Empty(t, byStem["seg_002"].AudioPath)
}

func TestDiscoverFilesMissingFolder(t *testing.T) {
	assert.Nil(t, New(0).DiscoverFiles(filepath.Join(t.TempDir(), "nope"), ""))
	assert.Nil(t, New(0).DiscoverFiles("", ""))
}
