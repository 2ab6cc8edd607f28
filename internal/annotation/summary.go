package annotation

import (
	"encoding/json"
	"math"
	"os"
	"sort"

	"github.com/oceanlabs/hydrolabel-go/internal/discovery"
)

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedRawKeys(m map[string]json.RawMessage) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// toStringList coerces a decoded JSON value into a label list. The oldest
// flat files stored a single label as a bare string.
func toStringList(v any) []string {
	switch val := v.(type) {
	case []any:
		out := make([]string, 0, len(val))
		for _, item := range val {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		return []string{val}
	default:
		return []string{}
	}
}

// IsAnnotated reports whether an item carries any labels at all, from a
// verification round or from legacy annotations.
func IsAnnotated(it *Item) bool {
	if len(it.Verifications) > 0 {
		return true
	}
	return it.Annotations != nil && len(it.Annotations.Labels) > 0
}

// IsVerified reports whether an item's latest verification round holds
// decisions, or a legacy annotation was marked verified.
func IsVerified(it *Item) bool {
	if len(it.Verifications) > 0 {
		latest := &it.Verifications[len(it.Verifications)-1]
		return len(latest.LabelDecisions) > 0 || len(latest.Labels) > 0
	}
	return it.Annotations != nil && it.Annotations.Verified
}

// BuildSummary computes the rollup counts for a set of items.
func BuildSummary(items []Item) Summary {
	s := Summary{TotalItems: len(items)}
	for i := range items {
		if IsAnnotated(&items[i]) {
			s.Annotated++
		}
		if IsVerified(&items[i]) {
			s.Verified++
		}
	}
	return s
}

// UniqueSourceFolders returns the distinct predictions-file back-pointers in
// first-seen order.
func UniqueSourceFolders(items []Item) []string {
	seen := make(map[string]bool)
	var out []string
	for i := range items {
		p := items[i].PredictionsPath()
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out
}

// ItemsByScoreThreshold returns the items whose model output for the given
// class hierarchy clears the threshold. With above true the test is
// score >= threshold, otherwise score < threshold.
func ItemsByScoreThreshold(items []Item, classHierarchy string, threshold float64, above bool) []Item {
	var out []Item
	for i := range items {
		it := &items[i]
		if it.Predictions == nil {
			continue
		}
		for _, mo := range it.Predictions.ModelOutputs {
			if mo.ClassHierarchy != classHierarchy {
				continue
			}
			if (above && mo.Score >= threshold) || (!above && mo.Score < threshold) {
				out = append(out, *it)
				break
			}
		}
	}
	return out
}

// UnverifiedItems returns the items with no verification history.
func UnverifiedItems(items []Item) []Item {
	var out []Item
	for i := range items {
		if len(items[i].Verifications) == 0 {
			out = append(out, items[i])
		}
	}
	return out
}

// ScoreStats summarizes the raw model score distribution across items.
type ScoreStats struct {
	Count int     `json:"count"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Mean  float64 `json:"mean"`
}

// ComputeScoreStats aggregates every model output score in the items.
func ComputeScoreStats(items []Item) ScoreStats {
	stats := ScoreStats{Min: math.Inf(1), Max: math.Inf(-1)}
	sum := 0.0
	for i := range items {
		if items[i].Predictions == nil {
			continue
		}
		for _, mo := range items[i].Predictions.ModelOutputs {
			stats.Count++
			sum += mo.Score
			stats.Min = math.Min(stats.Min, mo.Score)
			stats.Max = math.Max(stats.Max, mo.Score)
		}
	}
	if stats.Count == 0 {
		return ScoreStats{}
	}
	stats.Mean = sum / float64(stats.Count)
	return stats
}

// LabelMap is a filename (or stem) to verified-labels view of a dataset,
// used to overlay saved labels onto freshly discovered files.
type LabelMap map[string][]string

// BuildLabelMap extracts the current labels per item, keyed by item ID.
func BuildLabelMap(ds *Dataset) LabelMap {
	out := make(LabelMap, len(ds.Items))
	for i := range ds.Items {
		it := &ds.Items[i]
		if it.Annotations == nil {
			continue
		}
		out[it.ItemID] = append([]string{}, it.Annotations.Labels...)
	}
	return out
}

// Lookup resolves a file stem against the map, matching the raw key first
// and then every key with its extension stripped.
func (lm LabelMap) Lookup(stem string) ([]string, bool) {
	if labels, ok := lm[stem]; ok {
		return labels, true
	}
	for key, labels := range lm {
		if NormalizeItemKey(key) == stem {
			return labels, true
		}
	}
	return nil, false
}

// BuildLabelModeDataset builds a dataset directly from discovered
// spectrogram files, overlaying any previously saved labels.
func BuildLabelModeDataset(files []discovery.SpectrogramFile, labels LabelMap) *Dataset {
	items := make([]Item, 0, len(files))
	for _, f := range files {
		item := Item{
			ItemID:        f.Stem,
			MatPath:       f.Path,
			AudioPath:     f.AudioPath,
			Verifications: []Verification{},
			Metadata:      map[string]any{},
		}
		if saved, ok := labels.Lookup(f.Stem); ok {
			item.Annotations = &Annotations{
				Labels: append([]string{}, saved...),
			}
		}
		items = append(items, item)
	}
	return &Dataset{
		Version:   SchemaVersion,
		CreatedAt: NowISO(),
		Source:    Source{Type: "manual"},
		Items:     items,
		Summary:   BuildSummary(items),
	}
}
