package annotation

import (
	"encoding/json"
	"path/filepath"
	"strings"

	"github.com/oceanlabs/hydrolabel-go/internal/errors"
)

// LoadOptions carries the context a converter needs to resolve paths and
// route future writes.
type LoadOptions struct {
	PredictionsPath string // file the raw JSON came from, recorded as the back-pointer
	MatFolder       string // folder holding MAT spectrograms (legacy label files)
	Date            string // date folder (dashboard files)
	Hydrophone      string // device folder (dashboard files)
	ImageDir        string // image folder (dashboard files)
}

// Normalize dispatches raw JSON to the converter for its detected schema.
func Normalize(raw []byte, opts LoadOptions) (*Dataset, error) {
	switch Classify(raw) {
	case FormatUnifiedV2:
		return ConvertUnifiedV2(raw, opts.PredictionsPath)
	case FormatLegacyItems, FormatLegacyFlat:
		return ConvertLegacyLabeling(raw, opts.MatFolder)
	case FormatDashboardMap:
		return ConvertDashboard(raw, opts.Date, opts.Hydrophone, opts.ImageDir)
	case FormatWhaleSegments:
		return ConvertWhalePredictions(raw, opts.PredictionsPath)
	default:
		return nil, errors.Newf("unrecognized label file format").
			Category(errors.CategoryFormatConvert).
			FileContext(opts.PredictionsPath).
			Build()
	}
}

// strippableExtensions are removed when normalizing an item key: discovered
// file stems never carry extensions, but label files may use either
// convention.
var strippableExtensions = []string{
	".mat", ".npy", ".png", ".jpg", ".jpeg", ".wav", ".flac", ".mp3",
}

// NormalizeItemKey strips a known file extension from an item key.
func NormalizeItemKey(key string) string {
	lower := strings.ToLower(key)
	for _, ext := range strippableExtensions {
		if strings.HasSuffix(lower, ext) {
			return key[:len(key)-len(ext)]
		}
	}
	return key
}

// resolvePath joins a relative path against basePath and keeps the result
// only if it exists on disk; otherwise the original string is preserved so
// nothing is silently dropped.
func resolvePath(path, basePath string) string {
	if path == "" || basePath == "" || filepath.IsAbs(path) {
		return path
	}
	joined := filepath.Join(basePath, path)
	if fileExists(joined) {
		return joined
	}
	return path
}

// --- unified v2 ---

type rawPaths struct {
	SpectrogramMatPath string `json:"spectrogram_mat_path"`
	SpectrogramPngPath string `json:"spectrogram_png_path"`
	AudioPath          string `json:"audio_path"`
}

type rawUnifiedItem struct {
	ItemID         string         `json:"item_id"`
	DataSourceID   string         `json:"data_source_id"`
	AudioStartTime string         `json:"audio_start_time"`
	AudioEndTime   string         `json:"audio_end_time"`
	AudioTimestamp string         `json:"audio_timestamp"` // old field name
	ModelOutputs   []ModelOutput  `json:"model_outputs"`
	Verifications  []Verification `json:"verifications"`
	Paths          *rawPaths      `json:"paths"`

	// Old files carried paths as flat top-level fields.
	SpectrogramPath string `json:"spectrogram_path"`
	MatPath         string `json:"mat_path"`
	AudioPath       string `json:"audio_path"`
}

// unifiedItemFields are consumed by the typed decode; everything else in an
// item lands in metadata.
var unifiedItemFields = map[string]bool{
	"item_id": true, "data_source_id": true,
	"audio_start_time": true, "audio_end_time": true, "audio_timestamp": true,
	"model_outputs": true, "verifications": true, "paths": true,
	"spectrogram_path": true, "mat_path": true, "audio_path": true,
}

type rawUnifiedFile struct {
	SchemaVersion string           `json:"schema_version"`
	Version       string           `json:"version"`
	CreatedAt     string           `json:"created_at"`
	TaskType      string           `json:"task_type"`
	Model         map[string]any   `json:"model"`
	DataSources   []map[string]any `json:"data_sources"`
	DataSource    map[string]any   `json:"data_source"`
	Items         []json.RawMessage `json:"items"`
}

// ConvertUnifiedV2 converts a unified v2.0 predictions file into the
// canonical dataset. predictionsPath is the file the JSON came from; its
// directory is the base for relative paths and the path itself becomes each
// item's back-pointer.
func ConvertUnifiedV2(raw []byte, predictionsPath string) (*Dataset, error) {
	var file rawUnifiedFile
	if err := json.Unmarshal(raw, &file); err != nil {
		return nil, errors.Newf("failed to decode unified v2 file: %w", err).
			Category(errors.CategoryJSONParse).
			FileContext(predictionsPath).
			Build()
	}

	basePath := ""
	if predictionsPath != "" {
		basePath = filepath.Dir(predictionsPath)
	}

	// New files carry a data_sources array referenced by data_source_id; old
	// files carry a singular data_source that applies to every item.
	sources := make(map[string]map[string]any, len(file.DataSources))
	for _, ds := range file.DataSources {
		if id, ok := ds["data_source_id"].(string); ok {
			sources[id] = ds
		}
	}
	if len(file.DataSource) > 0 {
		sources["_default"] = file.DataSource
	}

	taskType := file.TaskType
	modelID := ""
	if file.Model != nil {
		if id, ok := file.Model["model_id"].(string); ok {
			modelID = id
		}
	}

	items := make([]Item, 0, len(file.Items))
	for _, rawItem := range file.Items {
		var ri rawUnifiedItem
		if err := json.Unmarshal(rawItem, &ri); err != nil {
			return nil, errors.Newf("failed to decode unified v2 item: %w", err).
				Category(errors.CategoryJSONParse).
				FileContext(predictionsPath).
				Build()
		}
		var asMap map[string]any
		if err := json.Unmarshal(rawItem, &asMap); err != nil {
			return nil, errors.Newf("failed to decode unified v2 item: %w", err).
				Category(errors.CategoryJSONParse).
				FileContext(predictionsPath).
				Build()
		}

		specPNG := ri.SpectrogramPath
		matPath := ri.MatPath
		audioPath := ri.AudioPath
		if ri.Paths != nil {
			if ri.Paths.SpectrogramPngPath != "" {
				specPNG = ri.Paths.SpectrogramPngPath
			}
			if ri.Paths.SpectrogramMatPath != "" {
				matPath = ri.Paths.SpectrogramMatPath
			}
			if ri.Paths.AudioPath != "" {
				audioPath = ri.Paths.AudioPath
			}
		}

		source := sources[ri.DataSourceID]
		if source == nil {
			source = sources["_default"]
		}
		deviceCode := ""
		if source != nil {
			if dc, ok := source["device_code"].(string); ok {
				deviceCode = dc
			}
		}

		start := ri.AudioStartTime
		if start == "" {
			start = ri.AudioTimestamp
		}

		metadata := make(map[string]any)
		for k, v := range asMap {
			if !unifiedItemFields[k] {
				metadata[k] = v
			}
		}
		if predictionsPath != "" {
			metadata[MetaPredictionsPath] = predictionsPath
		}

		item := Item{
			ItemID:          ri.ItemID,
			SpectrogramPath: resolvePath(specPNG, basePath),
			MatPath:         resolvePath(matPath, basePath),
			AudioPath:       resolvePath(audioPath, basePath),
			Timestamps:      Timestamps{Start: start, End: ri.AudioEndTime},
			DeviceCode:      deviceCode,
			Predictions: &Predictions{
				ModelID:      modelID,
				TaskType:     taskType,
				ModelOutputs: ri.ModelOutputs,
			},
			Verifications: ri.Verifications,
			Metadata:      metadata,
		}
		if item.Verifications == nil {
			item.Verifications = []Verification{}
		}
		item.RefreshAnnotations()
		items = append(items, item)
	}

	version := file.SchemaVersion
	if version == "" {
		version = file.Version
	}
	if version == "" {
		version = SchemaVersion
	}
	createdAt := file.CreatedAt
	if createdAt == "" {
		createdAt = NowISO()
	}

	return &Dataset{
		Version:   version,
		CreatedAt: createdAt,
		Source: Source{
			Type:       "ml_prediction",
			Model:      file.Model,
			DataSource: file.DataSource,
			TaskType:   taskType,
		},
		Items:   items,
		Summary: BuildSummary(items),
	}, nil
}

// --- legacy labeling (flat map or items map) ---

type rawLegacyAnnotations struct {
	Labels      []string `json:"labels"`
	AnnotatedBy string   `json:"annotated_by"`
	AnnotatedAt string   `json:"annotated_at"`
	Verified    bool     `json:"verified"`
	Notes       string   `json:"notes"`
}

type rawLegacyItem struct {
	ItemID          string                `json:"item_id"`
	SpectrogramPath string                `json:"spectrogram_path"`
	AudioFile       string                `json:"audio_file"`
	AudioPath       string                `json:"audio_path"`
	Annotations     *rawLegacyAnnotations `json:"annotations"`
	Verifications   []Verification        `json:"verifications"`
	Metadata        map[string]any        `json:"metadata"`
}

type rawLegacyFile struct {
	Items      []rawLegacyItem `json:"items"`
	DataSource map[string]any  `json:"data_source"`
}

// ConvertLegacyLabeling converts a legacy labels file (flat filename map or
// items map) into the canonical dataset. matFolder resolves bare filenames
// to MAT paths.
func ConvertLegacyLabeling(raw []byte, matFolder string) (*Dataset, error) {
	var items []Item

	var file rawLegacyFile
	if err := json.Unmarshal(raw, &file); err == nil && file.Items != nil {
		deviceCode := ""
		if dc, ok := file.DataSource["device_code"].(string); ok {
			deviceCode = dc
		}
		for _, ri := range file.Items {
			matPath := ri.SpectrogramPath
			if matPath == "" && matFolder != "" {
				matPath = filepath.Join(matFolder, ri.ItemID+".mat")
			}
			audioPath := ri.AudioFile
			if audioPath == "" {
				audioPath = ri.AudioPath
			}

			timestamp := ""
			if ri.Metadata != nil {
				if ts, ok := ri.Metadata["timestamp"].(string); ok {
					timestamp = ts
				}
			}

			item := Item{
				ItemID:        ri.ItemID,
				MatPath:       matPath,
				AudioPath:     audioPath,
				Timestamps:    Timestamps{Start: timestamp},
				DeviceCode:    deviceCode,
				Verifications: ri.Verifications,
				Metadata:      ri.Metadata,
			}
			if item.Verifications == nil {
				item.Verifications = []Verification{}
			}
			if len(item.Verifications) > 0 {
				item.RefreshAnnotations()
			} else if ri.Annotations != nil {
				item.Annotations = &Annotations{
					Labels:      append([]string{}, ri.Annotations.Labels...),
					AnnotatedBy: ri.Annotations.AnnotatedBy,
					AnnotatedAt: ri.Annotations.AnnotatedAt,
					Verified:    false,
					Notes:       ri.Annotations.Notes,
				}
			}
			items = append(items, item)
		}
	} else {
		// Flat map: keys are filenames, values are label lists (or a single
		// label string in the very oldest files).
		var flat map[string]any
		if err := json.Unmarshal(raw, &flat); err != nil {
			return nil, errors.Newf("failed to decode legacy labels file: %w", err).
				Category(errors.CategoryJSONParse).
				Build()
		}
		for _, filename := range sortedKeys(flat) {
			labels := toStringList(flat[filename])
			item := Item{
				ItemID:        filename,
				MatPath:       filepath.Join(matFolder, filename),
				Annotations:   &Annotations{Labels: labels, Notes: ""},
				Verifications: []Verification{},
				Metadata:      map[string]any{},
			}
			items = append(items, item)
		}
	}

	return &Dataset{
		Version:   SchemaVersion,
		CreatedAt: NowISO(),
		Source:    Source{Type: "manual", DataSource: file.DataSource},
		Items:     items,
		Summary:   BuildSummary(items),
	}, nil
}

// --- hydrophone dashboard per-file map ---

type rawDashboardEntry struct {
	PredictedLabels []string           `json:"predicted_labels"`
	Probabilities   map[string]float64 `json:"probabilities"`
	VerifiedLabels  []string           `json:"verified_labels"`
	VerifiedBy      string             `json:"verified_by"`
	VerifiedAt      string             `json:"verified_at"`
	Notes           string             `json:"notes"`
	T0              string             `json:"t0"`
	T1              string             `json:"t1"`
}

// ConvertDashboard converts a hydrophone-dashboard per-file map into the
// canonical dataset. A bare list entry means predicted labels only.
func ConvertDashboard(raw []byte, date, hydrophone, imageDir string) (*Dataset, error) {
	var flat map[string]json.RawMessage
	if err := json.Unmarshal(raw, &flat); err != nil {
		return nil, errors.Newf("failed to decode dashboard labels file: %w", err).
			Category(errors.CategoryJSONParse).
			Build()
	}

	var items []Item
	for _, filename := range sortedRawKeys(flat) {
		rawEntry := flat[filename]

		var entry rawDashboardEntry
		var bareList []string
		verified := false
		if err := json.Unmarshal(rawEntry, &bareList); err == nil {
			entry.PredictedLabels = bareList
		} else if err := json.Unmarshal(rawEntry, &entry); err != nil {
			return nil, errors.Newf("failed to decode dashboard entry %q: %w", filename, err).
				Category(errors.CategoryJSONParse).
				Build()
		} else {
			verified = entry.VerifiedLabels != nil
		}

		item := Item{
			ItemID:          filename,
			SpectrogramPath: filepath.Join(imageDir, filename),
			Timestamps:      Timestamps{Start: entry.T0, End: entry.T1},
			DeviceCode:      hydrophone,
			Predictions: &Predictions{
				Labels:     entry.PredictedLabels,
				Confidence: entry.Probabilities,
			},
			Verifications: []Verification{},
			Metadata:      map[string]any{},
		}
		if verified || entry.VerifiedBy != "" || entry.Notes != "" {
			item.Annotations = &Annotations{
				Labels:      append([]string{}, entry.VerifiedLabels...),
				AnnotatedBy: entry.VerifiedBy,
				AnnotatedAt: entry.VerifiedAt,
				Verified:    verified,
				Notes:       entry.Notes,
			}
		}
		items = append(items, item)
	}

	return &Dataset{
		Version:   SchemaVersion,
		CreatedAt: NowISO(),
		Source: Source{
			Type:       "ml_prediction",
			DataSource: map[string]any{"date": date, "hydrophone": hydrophone},
		},
		Items:   items,
		Summary: BuildSummary(items),
	}, nil
}

// --- whale detector segments/predictions ---

// finWhalePath is the taxonomy path the single-class whale detector maps to.
const finWhalePath = "Biophony > Marine mammal > Cetacean > Baleen whale > Fin whale"

// finWhaleThreshold thresholds legacy whale-detector confidences into labels.
const finWhaleThreshold = 0.5

type rawWhaleSegment struct {
	SegmentID       string         `json:"segment_id"`
	SpectrogramPath string         `json:"spectrogram_path"`
	MatPath         string         `json:"mat_path"`
	AudioPath       string         `json:"audio_path"`
	AudioTimestamp  string         `json:"audio_timestamp"`
	MaxConfidence   float64        `json:"max_confidence"`
	Windows         []any          `json:"windows"`
	NumPositive     map[string]any `json:"num_positive"`
}

type rawWhalePrediction struct {
	FileID          string  `json:"file_id"`
	SpectrogramPath string  `json:"spectrogram_path"`
	MatPath         string  `json:"mat_path"`
	AudioPath       string  `json:"audio_path"`
	AudioTimestamp  string  `json:"audio_timestamp"`
	Confidence      float64 `json:"confidence"`
}

type rawWhaleFile struct {
	Model       map[string]any       `json:"model"`
	DataSource  map[string]any       `json:"data_source"`
	Segments    []rawWhaleSegment    `json:"segments"`
	Predictions []rawWhalePrediction `json:"predictions"`
}

// ConvertWhalePredictions converts whale-detector output (segments or the
// older predictions array) into the canonical dataset.
func ConvertWhalePredictions(raw []byte, predictionsPath string) (*Dataset, error) {
	var file rawWhaleFile
	if err := json.Unmarshal(raw, &file); err != nil {
		return nil, errors.Newf("failed to decode whale predictions file: %w", err).
			Category(errors.CategoryJSONParse).
			FileContext(predictionsPath).
			Build()
	}

	modelID := ""
	if id, ok := file.Model["model_id"].(string); ok {
		modelID = id
	}
	deviceCode := ""
	if dc, ok := file.DataSource["device_code"].(string); ok {
		deviceCode = dc
	}

	var items []Item
	if len(file.Segments) > 0 {
		for _, seg := range file.Segments {
			var labels []string
			if seg.MaxConfidence > finWhaleThreshold {
				labels = []string{finWhalePath}
			}
			metadata := map[string]any{
				"windows":      seg.Windows,
				"num_positive": seg.NumPositive,
			}
			if predictionsPath != "" {
				metadata[MetaPredictionsPath] = predictionsPath
			}
			items = append(items, Item{
				ItemID:          seg.SegmentID,
				SpectrogramPath: seg.SpectrogramPath,
				MatPath:         seg.MatPath,
				AudioPath:       seg.AudioPath,
				Timestamps:      Timestamps{Start: seg.AudioTimestamp},
				DeviceCode:      deviceCode,
				Predictions: &Predictions{
					ModelID:    modelID,
					Labels:     labels,
					Confidence: map[string]float64{"Fin whale": seg.MaxConfidence},
				},
				Verifications: []Verification{},
				Metadata:      metadata,
			})
		}
	} else {
		for _, pred := range file.Predictions {
			metadata := map[string]any{}
			if predictionsPath != "" {
				metadata[MetaPredictionsPath] = predictionsPath
			}
			items = append(items, Item{
				ItemID:          pred.FileID,
				SpectrogramPath: pred.SpectrogramPath,
				MatPath:         pred.MatPath,
				AudioPath:       pred.AudioPath,
				Timestamps:      Timestamps{Start: pred.AudioTimestamp},
				DeviceCode:      deviceCode,
				Predictions: &Predictions{
					ModelID:    modelID,
					Labels:     []string{},
					Confidence: map[string]float64{"confidence": pred.Confidence},
				},
				Verifications: []Verification{},
				Metadata:      metadata,
			})
		}
	}

	return &Dataset{
		Version:   SchemaVersion,
		CreatedAt: NowISO(),
		Source: Source{
			Type:       "ml_prediction",
			Model:      file.Model,
			DataSource: file.DataSource,
		},
		Items:   items,
		Summary: BuildSummary(items),
	}, nil
}
