// Package discovery inspects a root directory and classifies its layout so
// the loader knows where spectrograms, audio, and prediction files live.
package discovery

import (
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/oceanlabs/hydrolabel-go/internal/logging"
)

// StructureType classifies a root directory's layout.
type StructureType string

const (
	StructureFlat         StructureType = "flat"
	StructureDeviceOnly   StructureType = "device_only"
	StructureHierarchical StructureType = "hierarchical"
	StructureUnknown      StructureType = "unknown"
)

// Recognized file conventions. These lists are fixed, not configurable.
var (
	spectrogramExtensions = map[string]bool{
		".mat": true, ".npy": true, ".png": true, ".jpg": true, ".jpeg": true,
	}
	audioExtensions = map[string]bool{
		".flac": true, ".wav": true, ".mp3": true, ".ogg": true,
	}
	// Fixed preference order for stem-matched audio lookups.
	audioExtensionOrder = []string{".flac", ".wav", ".mp3", ".ogg"}
	predictionFilenames = []string{"predictions.json", "labels.json", "annotations.json"}

	spectrogramSubfolderNames = []string{
		"spectrograms", "onc_spectrograms", "mat_files", "images", "data", "Spectrograms",
	}
	audioSubfolderNames = []string{"audio", "Audio", "AUDIO", "wav", "flac"}

	reservedFolderNames = map[string]bool{
		"audio": true, "spectrograms": true, "onc_spectrograms": true,
		"images": true, "data": true,
	}

	dateFolderPattern   = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	deviceFolderPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
)

// FolderDetail describes one device folder's contents.
type FolderDetail struct {
	SpectrogramCount   int    `json:"spectrogram_count"`
	AudioCount         int    `json:"audio_count"`
	HasLabelsJSON      bool   `json:"has_labels_json"`
	HasPredictionsJSON bool   `json:"has_predictions_json"`
	SpectrogramFolder  string `json:"spectrogram_folder,omitempty"`
	AudioFolder        string `json:"audio_folder,omitempty"`
}

// Result is the output of a structure probe. It is created fresh on every
// probe and immediately consumed to populate load parameters.
type Result struct {
	StructureType         StructureType `json:"structure_type"`
	Dates                 []string      `json:"dates"`   // descending
	Devices               []string      `json:"devices"` // ascending
	SpectrogramFolder     string        `json:"spectrogram_folder,omitempty"`
	AudioFolder           string        `json:"audio_folder,omitempty"`
	PredictionsFile       string        `json:"predictions_file,omitempty"`
	SpectrogramExtensions []string      `json:"spectrogram_extensions"`
	SpectrogramExtCounts  map[string]int `json:"spectrogram_ext_counts,omitempty"`
	SpectrogramCount      int           `json:"spectrogram_count"`
	AudioCount            int           `json:"audio_count"`
	Message               string        `json:"message"`

	// Per-folder breakdowns; HierarchyDetail is keyed date then device.
	HierarchyDetail map[string]map[string]FolderDetail `json:"hierarchy_detail,omitempty"`
	DeviceDetail    map[string]FolderDetail            `json:"device_detail,omitempty"`

	// Root > date > device cascade. A root-level file applies to all items;
	// files found deeper are surfaced as override candidates, never merged.
	RootLabelsFile               string   `json:"root_labels_file,omitempty"`
	RootPredictionsFile          string   `json:"root_predictions_file,omitempty"`
	SubfolderLabelsLocations     []string `json:"subfolder_labels_locations"`
	SubfolderPredictionsLocations []string `json:"subfolder_predictions_locations"`
}

// SubfolderLabelsCount returns how many labels files live below the root.
func (r *Result) SubfolderLabelsCount() int { return len(r.SubfolderLabelsLocations) }

// SubfolderPredictionsCount returns how many predictions files live below the root.
func (r *Result) SubfolderPredictionsCount() int { return len(r.SubfolderPredictionsLocations) }

// Prober detects data structures under a root path. Scan errors on
// individual directories are swallowed so one unreadable subfolder never
// aborts a probe.
type Prober struct {
	maxEntries int
	logger     *slog.Logger
}

// New creates a Prober. maxEntries caps the number of directory entries
// examined per probe; 0 means unlimited.
func New(maxEntries int) *Prober {
	return &Prober{
		maxEntries: maxEntries,
		logger:     logging.ForService("discovery"),
	}
}

// scan carries per-probe state, mainly the entry budget.
type scan struct {
	p         *Prober
	remaining int
	limited   bool
}

func (p *Prober) newScan() *scan {
	return &scan{p: p, remaining: p.maxEntries, limited: p.maxEntries > 0}
}

// list reads a directory, spending budget and swallowing errors.
func (s *scan) list(dir string) []os.DirEntry {
	if s.limited && s.remaining <= 0 {
		return nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		s.p.logger.Debug("skipping unreadable directory", "path", dir, "error", err)
		return nil
	}
	if s.limited {
		if len(entries) > s.remaining {
			entries = entries[:s.remaining]
		}
		s.remaining -= len(entries)
	}
	return entries
}

// Detect analyzes a directory and returns its structure type and discovered
// paths. It never returns an error: unusable paths produce an "unknown"
// result with an explanatory message.
func (p *Prober) Detect(path string) *Result {
	if path == "" {
		return unknownResult("Path does not exist")
	}
	info, err := os.Stat(path)
	if err != nil {
		return unknownResult("Path does not exist")
	}
	if !info.IsDir() {
		return unknownResult("Path is a file; please select a directory")
	}

	s := p.newScan()

	if r, ok := s.checkHierarchical(path); ok {
		return r
	}
	if r, ok := s.checkDeviceOnly(path); ok {
		return r
	}
	if r, ok := s.checkFlat(path); ok {
		return r
	}
	return unknownResult("Could not detect data structure")
}

func unknownResult(message string) *Result {
	return &Result{
		StructureType:                 StructureUnknown,
		Dates:                         []string{},
		Devices:                       []string{},
		SpectrogramExtensions:         []string{},
		SubfolderLabelsLocations:      []string{},
		SubfolderPredictionsLocations: []string{},
		Message:                       message,
	}
}

func isDateFolder(name string) bool {
	return dateFolderPattern.MatchString(name)
}

func isDeviceFolder(name string) bool {
	if strings.HasPrefix(name, ".") {
		return false
	}
	if reservedFolderNames[strings.ToLower(name)] {
		return false
	}
	return deviceFolderPattern.MatchString(name)
}

// findSpectrograms lists spectrogram files in a folder, optionally walking
// subdirectories, and returns paths with a per-extension histogram.
func (s *scan) findSpectrograms(folder string, recursive bool) ([]string, map[string]int) {
	var files []string
	extCounts := make(map[string]int)

	var visit func(dir string)
	visit = func(dir string) {
		for _, entry := range s.list(dir) {
			full := filepath.Join(dir, entry.Name())
			if entry.IsDir() {
				if recursive {
					visit(full)
				}
				continue
			}
			ext := strings.ToLower(filepath.Ext(entry.Name()))
			if spectrogramExtensions[ext] {
				files = append(files, full)
				extCounts[ext]++
			}
		}
	}
	visit(folder)
	sort.Strings(files)
	return files, extCounts
}

// findSpectrogramSubfolder probes the fixed ordered list of candidate
// subfolder names and returns the first one that actually holds spectrograms.
func (s *scan) findSpectrogramSubfolder(basePath string) string {
	for _, candidate := range spectrogramSubfolderNames {
		subfolder := filepath.Join(basePath, candidate)
		if info, err := os.Stat(subfolder); err != nil || !info.IsDir() {
			continue
		}
		if files, _ := s.findSpectrograms(subfolder, false); len(files) > 0 {
			return subfolder
		}
	}
	return ""
}

// hasAudioFiles checks a sample of a directory's entries for audio extensions.
func (s *scan) hasAudioFiles(dir string, sample int) bool {
	entries := s.list(dir)
	if sample > 0 && len(entries) > sample {
		entries = entries[:sample]
	}
	for _, entry := range entries {
		if audioExtensions[strings.ToLower(filepath.Ext(entry.Name()))] {
			return true
		}
	}
	return false
}

// findAudioFolder locates audio near the spectrogram folder: a named audio
// subfolder under basePath, then a sibling of the spectrogram folder, then
// audio files co-located with the spectrograms.
func (s *scan) findAudioFolder(basePath, spectrogramFolder string) string {
	for _, candidate := range audioSubfolderNames {
		audioPath := filepath.Join(basePath, candidate)
		if info, err := os.Stat(audioPath); err == nil && info.IsDir() {
			if s.hasAudioFiles(audioPath, 10) {
				return audioPath
			}
		}
	}

	if spectrogramFolder != "" {
		parent := filepath.Dir(spectrogramFolder)
		for _, candidate := range audioSubfolderNames {
			audioPath := filepath.Join(parent, candidate)
			if info, err := os.Stat(audioPath); err == nil && info.IsDir() {
				if s.hasAudioFiles(audioPath, 10) {
					return audioPath
				}
			}
		}

		if s.hasAudioFiles(spectrogramFolder, 20) {
			return spectrogramFolder
		}
	}

	return ""
}

func (s *scan) countAudioFiles(folder string) int {
	if folder == "" {
		return 0
	}
	count := 0
	for _, entry := range s.list(folder) {
		if audioExtensions[strings.ToLower(filepath.Ext(entry.Name()))] {
			count++
		}
	}
	return count
}

// findPredictionsFile looks for a prediction/label file directly in basePath,
// then one level down.
func (s *scan) findPredictionsFile(basePath string) string {
	for _, filename := range predictionFilenames {
		candidate := filepath.Join(basePath, filename)
		if isFile(candidate) {
			return candidate
		}
	}
	for _, entry := range s.list(basePath) {
		if !entry.IsDir() {
			continue
		}
		for _, filename := range predictionFilenames {
			candidate := filepath.Join(basePath, entry.Name(), filename)
			if isFile(candidate) {
				return candidate
			}
		}
	}
	return ""
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// rootFiles is the root-level file resolution pass: the best root file plus
// every subfolder location up to two levels deep (date level, device level).
type rootFiles struct {
	rootLabels           string
	rootPredictions      string
	labelsLocations      []string
	predictionsLocations []string
}

func (s *scan) findRootLevelFiles(path string) rootFiles {
	var rf rootFiles
	rf.labelsLocations = []string{}
	rf.predictionsLocations = []string{}

	for _, filename := range []string{"labels.json", "annotations.json"} {
		candidate := filepath.Join(path, filename)
		if isFile(candidate) {
			rf.rootLabels = candidate
			break
		}
	}
	if candidate := filepath.Join(path, "predictions.json"); isFile(candidate) {
		rf.rootPredictions = candidate
	}

	for _, entry := range sortedDirs(s.list(path)) {
		level1 := filepath.Join(path, entry)
		if candidate := filepath.Join(level1, "labels.json"); isFile(candidate) {
			rf.labelsLocations = append(rf.labelsLocations, candidate)
		}
		if candidate := filepath.Join(level1, "predictions.json"); isFile(candidate) {
			rf.predictionsLocations = append(rf.predictionsLocations, candidate)
		}

		for _, sub := range sortedDirs(s.list(level1)) {
			level2 := filepath.Join(level1, sub)
			if candidate := filepath.Join(level2, "labels.json"); isFile(candidate) {
				rf.labelsLocations = append(rf.labelsLocations, candidate)
			}
			if candidate := filepath.Join(level2, "predictions.json"); isFile(candidate) {
				rf.predictionsLocations = append(rf.predictionsLocations, candidate)
			}
		}
	}

	return rf
}

// sortedDirs extracts directory names in ascending order so discovery output
// never depends on filesystem listing order.
func sortedDirs(entries []os.DirEntry) []string {
	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	return names
}

func sortedExtensions(extCounts map[string]int) []string {
	exts := make([]string, 0, len(extCounts))
	for ext := range extCounts {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}
