package annotation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want Format
	}{
		{
			name: "unified v2 with schema_version",
			raw:  `{"schema_version": "2.0", "items": []}`,
			want: FormatUnifiedV2,
		},
		{
			name: "unified v2 via legacy version field",
			raw:  `{"version": "2.0", "items": []}`,
			want: FormatUnifiedV2,
		},
		{
			name: "unified v2 without version tag but with model_outputs",
			raw:  `{"items": [{"item_id": "a", "model_outputs": []}]}`,
			want: FormatUnifiedV2,
		},
		{
			name: "unified v2 without version tag but with verifications",
			raw:  `{"items": [{"item_id": "a", "verifications": []}]}`,
			want: FormatUnifiedV2,
		},
		{
			name: "legacy items list",
			raw:  `{"items": [{"item_id": "a", "annotations": {"labels": []}}]}`,
			want: FormatLegacyItems,
		},
		{
			name: "whale segments",
			raw:  `{"segments": [{"segment_id": "s1"}]}`,
			want: FormatWhaleSegments,
		},
		{
			name: "whale predictions",
			raw:  `{"predictions": [{"file_id": "f1"}]}`,
			want: FormatWhaleSegments,
		},
		{
			name: "dashboard map",
			raw:  `{"a.png": {"predicted_labels": ["x"], "probabilities": {"x": 0.9}}}`,
			want: FormatDashboardMap,
		},
		{
			name: "legacy flat map",
			raw:  `{"seg_000.mat": ["Biophony > Fish"], "seg_001.mat": []}`,
			want: FormatLegacyFlat,
		},
		{
			name: "empty object",
			raw:  `{}`,
			want: FormatLegacyFlat,
		},
		{
			name: "scalar values only",
			raw:  `{"count": 3}`,
			want: FormatUnknown,
		},
		{
			name: "not an object",
			raw:  `[1, 2, 3]`,
			want: FormatUnknown,
		},
		{
			name: "invalid json",
			raw:  `{"items": `,
			want: FormatUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify([]byte(tt.raw)))
		})
	}
}

func TestNormalizeItemKey(t *testing.T) {
	tests := []struct {
		key  string
		want string
	}{
		{"seg_000.mat", "seg_000"},
		{"seg_000.MAT", "seg_000"},
		{"seg_000.png", "seg_000"},
		{"seg_000.flac", "seg_000"},
		{"seg_000", "seg_000"},
		{"seg.000.wav", "seg.000"},
		{"notes.txt", "notes.txt"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeItemKey(tt.key), tt.key)
	}
}
