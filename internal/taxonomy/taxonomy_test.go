package taxonomy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultTreeLoads(t *testing.T) {
	tree, err := Default()
	require.NoError(t, err)
	require.NotNil(t, tree)
}

func TestIsValidLabel(t *testing.T) {
	tree, err := Default()
	require.NoError(t, err)

	tests := []struct {
		name  string
		label string
		want  bool
	}{
		{
			name:  "deep species path",
			label: "Biophony > Marine mammal > Cetacean > Baleen whale > Fin whale",
			want:  true,
		},
		{
			name:  "prefix of a valid path",
			label: "Biophony > Marine mammal",
			want:  true,
		},
		{
			name:  "top-level category",
			label: "Geophony",
			want:  true,
		},
		{
			name:  "wrong leaf",
			label: "Biophony > Marine mammal > Cetacean > Baleen whale > Brown trout",
			want:  false,
		},
		{
			name:  "levels out of order",
			label: "Fin whale > Baleen whale",
			want:  false,
		},
		{
			name:  "empty",
			label: "",
			want:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tree.IsValidLabel(tt.label))
		})
	}
}

func TestAllPathsSortedAndComplete(t *testing.T) {
	tree, err := Default()
	require.NoError(t, err)

	paths := tree.AllPaths()
	require.NotEmpty(t, paths)
	assert.IsDecreasing(t, []int{len(paths), 0})
	for i := 1; i < len(paths); i++ {
		assert.LessOrEqual(t, paths[i-1], paths[i])
	}
	assert.Contains(t, paths, "Anthropophony > Vessel > Tug")
	assert.Contains(t, paths, "Instrumentation > Malfunction > Data gap")
}

func TestLeaves(t *testing.T) {
	tree, err := Default()
	require.NoError(t, err)

	leaves := tree.Leaves()
	assert.Contains(t, leaves, "Fin whale")
	assert.NotContains(t, leaves, "Baleen whale")
}

func TestMapLegacyLabel(t *testing.T) {
	assert.Equal(t, "Geophony > Weather > Precipitation > Rain", MapLegacyLabel("Rain"))
	assert.Equal(t, "Instrumentation > Malfunction > Data gap", MapLegacyLabel("Data Gap"))
	assert.Equal(t, "Other > Unknown sound of interest", MapLegacyLabel("Mystery Noise"))
	// hierarchical labels pass through
	assert.Equal(t, "Anthropophony > Vessel", MapLegacyLabel("Anthropophony > Vessel"))
}

func TestLegacyLabelFor(t *testing.T) {
	// canonical form wins over later aliases
	assert.Equal(t, "Unknown Feature", LegacyLabelFor("Other > Unknown sound of interest"))
	assert.Equal(t, "Rain", LegacyLabelFor("Geophony > Weather > Precipitation > Rain"))
	// unmapped paths fall back to the leaf
	assert.Equal(t, "Humpback whale", LegacyLabelFor("Biophony > Marine mammal > Cetacean > Baleen whale > Humpback whale"))
}

func TestJoinSplitRoundTrip(t *testing.T) {
	path := []string{"Biophony", "Fish", "Fish chorus"}
	assert.Equal(t, path, SplitLabel(JoinPath(path)))
}
