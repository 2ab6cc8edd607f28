// Package dataset assembles canonical datasets for the UI modes: label mode
// overlays saved labels onto discovered spectrogram files, verify mode loads
// prediction files through the format normalizer.
package dataset

import (
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/oceanlabs/hydrolabel-go/internal/annotation"
	"github.com/oceanlabs/hydrolabel-go/internal/discovery"
	"github.com/oceanlabs/hydrolabel-go/internal/errors"
	"github.com/oceanlabs/hydrolabel-go/internal/logging"
)

// FilterAll selects every date or device folder in hierarchical loads.
const FilterAll = "__all__"

// Loader builds datasets from files on disk.
type Loader struct {
	prober *discovery.Prober
	log    *slog.Logger
}

// New creates a dataset loader.
func New(prober *discovery.Prober) *Loader {
	return &Loader{
		prober: prober,
		log:    logging.ForService("dataset"),
	}
}

// LoadLabelMode builds a label-mode dataset: every spectrogram file in
// folder becomes an item, with saved labels from outputFile overlaid and
// audio matched by stem from audioFolder.
func (l *Loader) LoadLabelMode(folder, outputFile, audioFolder string) (*annotation.Dataset, error) {
	ds := l.datasetFromLabelsFile(outputFile, folder)

	if folder != "" {
		if info, err := os.Stat(folder); err == nil && info.IsDir() {
			l.mergeDiscoveredFiles(ds, folder, audioFolder)
		}
	}

	ds.Summary = annotation.BuildSummary(ds.Items)
	if audioFolder != "" {
		ds.AudioRoots = []string{audioFolder}
	}
	return ds, nil
}

// LoadVerifyMode builds a verify-mode dataset from a hydrophone dashboard
// tree. An empty date selects the latest date folder; an empty hydrophone
// selects the first device under that date.
func (l *Loader) LoadVerifyMode(dashboardRoot, date, hydrophone string) (*annotation.Dataset, error) {
	if date == "" {
		date = latestDate(dashboardRoot)
	}
	if hydrophone == "" {
		hydrophone = firstHydrophone(dashboardRoot, date)
	}

	var raw []byte
	imageDir := ""
	if dashboardRoot != "" && date != "" && hydrophone != "" {
		labelsPath := filepath.Join(dashboardRoot, date, hydrophone, "labels.json")
		imageDir = filepath.Join(dashboardRoot, date, hydrophone, "images")
		if content, err := os.ReadFile(labelsPath); err == nil {
			raw = content
		}
	}
	if raw == nil {
		raw = []byte("{}")
	}

	ds, err := annotation.ConvertDashboard(raw, date, hydrophone, imageDir)
	if err != nil {
		return nil, err
	}
	return ds, nil
}

// LoadPredictionsFile normalizes one predictions file. The file's directory
// becomes the audio search root.
func (l *Loader) LoadPredictionsFile(path string) (*annotation.Dataset, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.New(err).
			Category(errors.CategoryFileIO).
			FileContext(path).
			Build()
	}

	ds, err := annotation.Normalize(raw, annotation.LoadOptions{PredictionsPath: path})
	if err != nil {
		return nil, err
	}
	ds.AudioRoots = []string{filepath.Dir(path)}
	return ds, nil
}

// LoadHierarchical loads predictions across a hierarchical tree, honoring
// date and device filters (FilterAll spans every folder). Items from all
// contributing files are concatenated; colliding item IDs are kept and
// distinguished by their predictions-file back-pointer.
func (l *Loader) LoadHierarchical(root, dateFilter, deviceFilter string) (*annotation.Dataset, error) {
	result := l.prober.Detect(root)
	if result.StructureType != discovery.StructureHierarchical {
		return nil, errors.Newf("not a hierarchical data root: %s", result.Message).
			Category(errors.CategoryDiscovery).
			FileContext(root).
			Build()
	}

	// A root-level predictions file governs the whole tree.
	if result.RootPredictionsFile != "" {
		return l.LoadPredictionsFile(result.RootPredictionsFile)
	}

	merged := &annotation.Dataset{
		Version:   annotation.SchemaVersion,
		CreatedAt: annotation.NowISO(),
		Source:    annotation.Source{Type: "ml_prediction"},
	}
	var roots []string

	for _, date := range result.Dates {
		if dateFilter != "" && dateFilter != FilterAll && date != dateFilter {
			continue
		}
		for _, device := range sortedDeviceKeys(result.HierarchyDetail[date]) {
			if deviceFilter != "" && deviceFilter != FilterAll && device != deviceFilter {
				continue
			}
			devicePath := filepath.Join(root, date, device)
			predictions := findPredictionsIn(devicePath)
			if predictions == "" {
				continue
			}
			ds, err := l.LoadPredictionsFile(predictions)
			if err != nil {
				l.log.Warn("skipping unreadable predictions file",
					"path", predictions, "error", err)
				continue
			}
			merged.Items = append(merged.Items, ds.Items...)
			roots = append(roots, filepath.Dir(predictions))
		}
	}

	sortItemsByID(merged.Items)
	merged.Summary = annotation.BuildSummary(merged.Items)
	merged.AudioRoots = roots
	return merged, nil
}

// datasetFromLabelsFile normalizes an existing labels file, or starts an
// empty manual dataset when the file is missing or unreadable.
func (l *Loader) datasetFromLabelsFile(outputFile, matFolder string) *annotation.Dataset {
	if outputFile != "" {
		if raw, err := os.ReadFile(outputFile); err == nil {
			ds, err := annotation.Normalize(raw, annotation.LoadOptions{MatFolder: matFolder})
			if err == nil {
				return ds
			}
			l.log.Warn("labels file is not in a known format; starting empty",
				"path", outputFile, "error", err)
		}
	}
	return &annotation.Dataset{
		Version:   annotation.SchemaVersion,
		CreatedAt: annotation.NowISO(),
		Source:    annotation.Source{Type: "manual"},
	}
}

// mergeDiscoveredFiles adds an item for every spectrogram file in folder not
// already present, and attaches stem-matched audio to all items.
func (l *Loader) mergeDiscoveredFiles(ds *annotation.Dataset, folder, audioFolder string) {
	byStem := make(map[string]int, len(ds.Items))
	for i := range ds.Items {
		byStem[annotation.NormalizeItemKey(ds.Items[i].ItemID)] = i
	}

	for _, file := range l.prober.DiscoverFiles(folder, audioFolder) {
		if idx, ok := byStem[file.Stem]; ok {
			if ds.Items[idx].AudioPath == "" {
				ds.Items[idx].AudioPath = file.AudioPath
			}
			if ds.Items[idx].MatPath == "" {
				ds.Items[idx].MatPath = file.Path
			}
			continue
		}
		item := annotation.Item{
			ItemID:        filepath.Base(file.Path),
			MatPath:       file.Path,
			AudioPath:     file.AudioPath,
			Verifications: []annotation.Verification{},
			Metadata:      map[string]any{},
		}
		byStem[file.Stem] = len(ds.Items)
		ds.Items = append(ds.Items, item)
	}

	sortItemsByID(ds.Items)
}

func findPredictionsIn(dir string) string {
	for _, name := range []string{"predictions.json", "labels.json", "annotations.json"} {
		path := filepath.Join(dir, name)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path
		}
	}
	return ""
}

func latestDate(root string) string {
	if root == "" {
		return ""
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		return ""
	}
	var dates []string
	for _, entry := range entries {
		if entry.IsDir() && len(entry.Name()) == 10 && strings.Count(entry.Name(), "-") == 2 {
			dates = append(dates, entry.Name())
		}
	}
	if len(dates) == 0 {
		return ""
	}
	sort.Sort(sort.Reverse(sort.StringSlice(dates)))
	return dates[0]
}

func firstHydrophone(root, date string) string {
	if root == "" || date == "" {
		return ""
	}
	entries, err := os.ReadDir(filepath.Join(root, date))
	if err != nil {
		return ""
	}
	var devices []string
	for _, entry := range entries {
		if entry.IsDir() {
			devices = append(devices, entry.Name())
		}
	}
	if len(devices) == 0 {
		return ""
	}
	sort.Strings(devices)
	return devices[0]
}

func sortedDeviceKeys(devices map[string]discovery.FolderDetail) []string {
	keys := make([]string, 0, len(devices))
	for k := range devices {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortItemsByID(items []annotation.Item) {
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].ItemID < items[j].ItemID
	})
}
