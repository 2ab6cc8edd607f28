package annotation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oceanlabs/hydrolabel-go/internal/discovery"
)

func scoredItem(id string, scores ...float64) Item {
	outputs := make([]ModelOutput, len(scores))
	for i, s := range scores {
		outputs[i] = ModelOutput{ClassHierarchy: "Biophony > Fish", Score: s}
	}
	return Item{
		ItemID:      id,
		Predictions: &Predictions{ModelOutputs: outputs},
	}
}

func TestItemsByScoreThreshold(t *testing.T) {
	const class = "Biophony > Fish"
	items := []Item{
		scoredItem("high", 0.91, 0.12),
		scoredItem("low", 0.2),
		{ItemID: "legacy", Predictions: &Predictions{Labels: []string{"Geophony > Rain"}}},
	}

	above := ItemsByScoreThreshold(items, class, 0.5, true)
	require.Len(t, above, 1)
	assert.Equal(t, "high", above[0].ItemID)

	below := ItemsByScoreThreshold(items, class, 0.5, false)
	require.Len(t, below, 2)
	assert.Equal(t, "high", below[0].ItemID)
	assert.Equal(t, "low", below[1].ItemID)

	assert.Empty(t, ItemsByScoreThreshold(items, "Geophony > Rain", 0.5, true))
}

func TestUnverifiedItems(t *testing.T) {
	items := []Item{
		{ItemID: "a", Verifications: []Verification{{VerificationRound: 1}}},
		{ItemID: "b"},
	}
	out := UnverifiedItems(items)
	require.Len(t, out, 1)
	assert.Equal(t, "b", out[0].ItemID)
}

func TestUniqueSourceFolders(t *testing.T) {
	items := []Item{
		{ItemID: "a", Metadata: map[string]any{MetaPredictionsPath: "/d1/predictions.json"}},
		{ItemID: "b", Metadata: map[string]any{MetaPredictionsPath: "/d2/predictions.json"}},
		{ItemID: "c", Metadata: map[string]any{MetaPredictionsPath: "/d1/predictions.json"}},
		{ItemID: "d"},
	}
	assert.Equal(t,
		[]string{"/d1/predictions.json", "/d2/predictions.json"},
		UniqueSourceFolders(items))
}

func TestComputeScoreStats(t *testing.T) {
	items := []Item{scoredItem("a", 0.2, 0.8), scoredItem("b", 0.5)}
	stats := ComputeScoreStats(items)
	assert.Equal(t, 3, stats.Count)
	assert.InDelta(t, 0.2, stats.Min, 1e-9)
	assert.InDelta(t, 0.8, stats.Max, 1e-9)
	assert.InDelta(t, 0.5, stats.Mean, 1e-9)

	assert.Equal(t, ScoreStats{}, ComputeScoreStats(nil))
}

func TestLabelMapLookupMatchesStems(t *testing.T) {
	lm := LabelMap{
		"seg_000.mat": {"Biophony > Fish"},
		"seg_001":     {"Geophony > Rain"},
	}

	labels, ok := lm.Lookup("seg_001")
	require.True(t, ok)
	assert.Equal(t, []string{"Geophony > Rain"}, labels)

	// Keys stored with extensions match extension-free stems.
	labels, ok = lm.Lookup("seg_000")
	require.True(t, ok)
	assert.Equal(t, []string{"Biophony > Fish"}, labels)

	_, ok = lm.Lookup("seg_999")
	assert.False(t, ok)
}

func TestBuildLabelModeDataset(t *testing.T) {
	files := []discovery.SpectrogramFile{
		{Path: "/mats/seg_000.mat", Stem: "seg_000", AudioPath: "/audio/seg_000.flac"},
		{Path: "/mats/seg_001.mat", Stem: "seg_001"},
	}
	lm := LabelMap{"seg_000.mat": {"Biophony > Fish"}}

	ds := BuildLabelModeDataset(files, lm)
	require.Len(t, ds.Items, 2)
	assert.Equal(t, "manual", ds.Source.Type)

	first := ds.Items[0]
	assert.Equal(t, "/audio/seg_000.flac", first.AudioPath)
	require.NotNil(t, first.Annotations)
	assert.Equal(t, []string{"Biophony > Fish"}, first.Annotations.Labels)

	assert.Nil(t, ds.Items[1].Annotations)
	assert.Equal(t, Summary{TotalItems: 2, Annotated: 1}, ds.Summary)
}
