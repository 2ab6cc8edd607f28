package annotation

import (
	"github.com/antonholmquist/jason"
)

// Format tags the on-disk schema of a label/prediction file.
type Format string

const (
	FormatUnknown       Format = "unknown"
	FormatUnifiedV2     Format = "unified_v2"
	FormatLegacyItems   Format = "legacy_items"
	FormatDashboardMap  Format = "dashboard_map"
	FormatWhaleSegments Format = "whale_segments"
	FormatLegacyFlat    Format = "legacy_flat"
)

// Classify sniffs raw JSON and decides which schema it is. The detection
// order is fixed:
//
//  1. schema_version/version "2.0" with an items list, or an items list
//     whose first element carries model_outputs or verifications -> unified
//     v2 (lenient: files in the wild omit the version tag).
//  2. any other items list -> legacy items map.
//  3. a segments or predictions array -> whale detector output.
//  4. a map of filenames to objects -> hydrophone dashboard map; to lists ->
//     legacy flat map. A dashboard file whose entries are bare lists is
//     indistinguishable from a flat map and classifies as legacy flat; the
//     dashboard converter accepts that shape too.
func Classify(raw []byte) Format {
	obj, err := jason.NewObjectFromBytes(raw)
	if err != nil {
		return FormatUnknown
	}

	version, verErr := obj.GetString("schema_version")
	if verErr != nil {
		version, _ = obj.GetString("version")
	}

	items, itemsErr := obj.GetObjectArray("items")
	hasItems := itemsErr == nil

	if hasItems {
		if version == SchemaVersion {
			return FormatUnifiedV2
		}
		if len(items) > 0 {
			m := items[0].Map()
			if _, ok := m["model_outputs"]; ok {
				return FormatUnifiedV2
			}
			if _, ok := m["verifications"]; ok {
				return FormatUnifiedV2
			}
		}
		return FormatLegacyItems
	}

	if _, err := obj.GetValueArray("segments"); err == nil {
		return FormatWhaleSegments
	}
	if _, err := obj.GetValueArray("predictions"); err == nil {
		return FormatWhaleSegments
	}

	sawList := false
	for _, value := range obj.Map() {
		if _, err := value.Object(); err == nil {
			return FormatDashboardMap
		}
		if _, err := value.Array(); err == nil {
			sawList = true
		}
	}
	if sawList {
		return FormatLegacyFlat
	}

	// An empty object is an empty legacy label map.
	if len(obj.Map()) == 0 {
		return FormatLegacyFlat
	}
	return FormatUnknown
}

// IsUnifiedV2 reports whether raw JSON is in the unified v2.0 format.
func IsUnifiedV2(raw []byte) bool {
	return Classify(raw) == FormatUnifiedV2
}
