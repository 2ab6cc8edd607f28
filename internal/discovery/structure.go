package discovery

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// probeDeviceFolder resolves a single device folder's spectrogram and audio
// locations plus local label/prediction file presence.
func (s *scan) probeDeviceFolder(devicePath string) FolderDetail {
	specFolder := s.findSpectrogramSubfolder(devicePath)
	if specFolder == "" {
		specFolder = devicePath
	}
	specFiles, _ := s.findSpectrograms(specFolder, false)

	audioFolder := s.findAudioFolder(devicePath, specFolder)

	detail := FolderDetail{
		SpectrogramCount:   len(specFiles),
		AudioCount:         s.countAudioFiles(audioFolder),
		HasLabelsJSON:      isFile(filepath.Join(devicePath, "labels.json")),
		HasPredictionsJSON: isFile(filepath.Join(devicePath, "predictions.json")),
		AudioFolder:        audioFolder,
	}
	if len(specFiles) > 0 {
		detail.SpectrogramFolder = specFolder
	}
	return detail
}

// checkHierarchical looks for a DATE/DEVICE hierarchy under path.
func (s *scan) checkHierarchical(path string) (*Result, bool) {
	var dates []string
	deviceSet := make(map[string]bool)

	for _, entry := range s.list(path) {
		if !entry.IsDir() || !isDateFolder(entry.Name()) {
			continue
		}
		datePath := filepath.Join(path, entry.Name())
		hasDevice := false
		for _, sub := range s.list(datePath) {
			if sub.IsDir() && isDeviceFolder(sub.Name()) {
				deviceSet[sub.Name()] = true
				hasDevice = true
			}
		}
		if hasDevice {
			dates = append(dates, entry.Name())
		}
	}

	if len(dates) == 0 || len(deviceSet) == 0 {
		return nil, false
	}

	sort.Sort(sort.Reverse(sort.StringSlice(dates)))
	devices := make([]string, 0, len(deviceSet))
	for d := range deviceSet {
		devices = append(devices, d)
	}
	sort.Strings(devices)

	// Representative spectrogram/audio folders come from the first
	// date/device pair; counts aggregate across all pairs.
	samplePath := filepath.Join(path, dates[0], devices[0])
	specFolder := s.findSpectrogramSubfolder(samplePath)
	if specFolder == "" {
		specFolder = samplePath
	}
	specFiles, extCounts := s.findSpectrograms(specFolder, false)
	audioFolder := s.findAudioFolder(samplePath, specFolder)

	rf := s.findRootLevelFiles(path)
	predictions := rf.rootPredictions
	if predictions == "" {
		predictions = s.findPredictionsFile(samplePath)
	}

	detail := make(map[string]map[string]FolderDetail, len(dates))
	totalSpec := 0
	for _, date := range dates {
		detail[date] = make(map[string]FolderDetail)
		datePath := filepath.Join(path, date)
		for _, entry := range s.list(datePath) {
			if !entry.IsDir() || !deviceSet[entry.Name()] {
				continue
			}
			d := s.probeDeviceFolder(filepath.Join(datePath, entry.Name()))
			detail[date][entry.Name()] = d
			totalSpec += d.SpectrogramCount
		}
	}
	if totalSpec == 0 {
		totalSpec = len(specFiles)
	}

	return &Result{
		StructureType:                 StructureHierarchical,
		Dates:                         dates,
		Devices:                       devices,
		SpectrogramFolder:             specFolder,
		AudioFolder:                   audioFolder,
		PredictionsFile:               predictions,
		SpectrogramExtensions:         sortedExtensions(extCounts),
		SpectrogramExtCounts:          extCounts,
		SpectrogramCount:              totalSpec,
		AudioCount:                    s.countAudioFiles(audioFolder),
		Message:                       fmt.Sprintf("Found %d dates, %d devices", len(dates), len(devices)),
		HierarchyDetail:               detail,
		RootLabelsFile:                rf.rootLabels,
		RootPredictionsFile:           rf.rootPredictions,
		SubfolderLabelsLocations:      rf.labelsLocations,
		SubfolderPredictionsLocations: rf.predictionsLocations,
	}, true
}

// checkDeviceOnly looks for device folders directly under path with no date
// layer. A folder counts as a device only if it actually holds spectrograms
// or a predictions file.
func (s *scan) checkDeviceOnly(path string) (*Result, bool) {
	var devices []string

	for _, entry := range s.list(path) {
		if !entry.IsDir() || !isDeviceFolder(entry.Name()) {
			continue
		}
		devicePath := filepath.Join(path, entry.Name())

		if s.findSpectrogramSubfolder(devicePath) != "" {
			devices = append(devices, entry.Name())
			continue
		}
		if files, _ := s.findSpectrograms(devicePath, false); len(files) > 0 {
			devices = append(devices, entry.Name())
			continue
		}
		if s.findPredictionsFile(devicePath) != "" {
			devices = append(devices, entry.Name())
		}
	}

	if len(devices) == 0 {
		return nil, false
	}
	sort.Strings(devices)

	samplePath := filepath.Join(path, devices[0])
	specFolder := s.findSpectrogramSubfolder(samplePath)
	if specFolder == "" {
		specFolder = samplePath
	}
	specFiles, extCounts := s.findSpectrograms(specFolder, false)
	audioFolder := s.findAudioFolder(samplePath, specFolder)

	rf := s.findRootLevelFiles(path)
	predictions := rf.rootPredictions
	if predictions == "" {
		predictions = s.findPredictionsFile(samplePath)
	}

	detail := make(map[string]FolderDetail, len(devices))
	totalSpec := 0
	for _, device := range devices {
		d := s.probeDeviceFolder(filepath.Join(path, device))
		detail[device] = d
		totalSpec += d.SpectrogramCount
	}
	if totalSpec == 0 {
		totalSpec = len(specFiles)
	}

	return &Result{
		StructureType:                 StructureDeviceOnly,
		Dates:                         []string{},
		Devices:                       devices,
		SpectrogramFolder:             specFolder,
		AudioFolder:                   audioFolder,
		PredictionsFile:               predictions,
		SpectrogramExtensions:         sortedExtensions(extCounts),
		SpectrogramExtCounts:          extCounts,
		SpectrogramCount:              totalSpec,
		AudioCount:                    s.countAudioFiles(audioFolder),
		Message:                       fmt.Sprintf("Found %d devices", len(devices)),
		DeviceDetail:                  detail,
		RootLabelsFile:                rf.rootLabels,
		RootPredictionsFile:           rf.rootPredictions,
		SubfolderLabelsLocations:      rf.labelsLocations,
		SubfolderPredictionsLocations: rf.predictionsLocations,
	}, true
}

// checkFlat looks for spectrogram files directly in path or in a named
// spectrogram subfolder.
func (s *scan) checkFlat(path string) (*Result, bool) {
	specFolder := s.findSpectrogramSubfolder(path)
	var specFiles []string
	var extCounts map[string]int

	if specFolder != "" {
		specFiles, extCounts = s.findSpectrograms(specFolder, false)
	} else {
		specFiles, extCounts = s.findSpectrograms(path, false)
		if len(specFiles) > 0 {
			specFolder = path
		}
	}

	if len(specFiles) == 0 {
		return nil, false
	}

	audioFolder := s.findAudioFolder(path, specFolder)
	audioCount := s.countAudioFiles(audioFolder)
	predictions := s.findPredictionsFile(path)

	var rootLabels, rootPredictions string
	for _, filename := range []string{"labels.json", "annotations.json"} {
		if candidate := filepath.Join(path, filename); isFile(candidate) {
			rootLabels = candidate
			break
		}
	}
	if candidate := filepath.Join(path, "predictions.json"); isFile(candidate) {
		rootPredictions = candidate
	}
	if predictions == "" {
		predictions = rootPredictions
	}

	exts := sortedExtensions(extCounts)
	var parts []string
	for _, ext := range exts {
		parts = append(parts, fmt.Sprintf("%d %s", extCounts[ext], ext))
	}
	message := "Found " + strings.Join(parts, ", ")
	if audioCount == 1 {
		message += ", 1 audio file"
	} else if audioCount > 1 {
		message += fmt.Sprintf(", %d audio files", audioCount)
	}

	return &Result{
		StructureType:                 StructureFlat,
		Dates:                         []string{},
		Devices:                       []string{},
		SpectrogramFolder:             specFolder,
		AudioFolder:                   audioFolder,
		PredictionsFile:               predictions,
		SpectrogramExtensions:         exts,
		SpectrogramExtCounts:          extCounts,
		SpectrogramCount:              len(specFiles),
		AudioCount:                    audioCount,
		Message:                       message,
		RootLabelsFile:                rootLabels,
		RootPredictionsFile:           rootPredictions,
		SubfolderLabelsLocations:      []string{},
		SubfolderPredictionsLocations: []string{},
	}, true
}

// SpectrogramFile is one discovered spectrogram with its optional sibling
// audio file matched by stem.
type SpectrogramFile struct {
	Path      string // full path to the spectrogram file
	Stem      string // basename without extension, used as item_id
	AudioPath string // matching audio file, empty if none
}

// DiscoverFiles enumerates spectrogram files under spectrogramFolder,
// recursively, matching audio files in audioFolder by stem. Results are
// sorted by path.
func (p *Prober) DiscoverFiles(spectrogramFolder, audioFolder string) []SpectrogramFile {
	if spectrogramFolder == "" {
		return nil
	}
	if info, err := os.Stat(spectrogramFolder); err != nil || !info.IsDir() {
		return nil
	}

	s := p.newScan()
	specFiles, _ := s.findSpectrograms(spectrogramFolder, true)

	var out []SpectrogramFile
	for _, specPath := range specFiles {
		filename := filepath.Base(specPath)
		stem := strings.TrimSuffix(filename, filepath.Ext(filename))

		var audioPath string
		if audioFolder != "" {
			for _, ext := range audioExtensionOrder {
				candidate := filepath.Join(audioFolder, stem+ext)
				if isFile(candidate) {
					audioPath = candidate
					break
				}
			}
		}

		out = append(out, SpectrogramFile{Path: specPath, Stem: stem, AudioPath: audioPath})
	}
	return out
}
