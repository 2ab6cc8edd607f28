// Package annotation defines the canonical item model and converts the
// historical label/prediction JSON schemas into it.
package annotation

import "time"

// Decision values recorded against a single label in a verification round.
const (
	DecisionAccepted = "accepted"
	DecisionRejected = "rejected"
	DecisionAdded    = "added"
)

// MetaPredictionsPath is the metadata key holding the back-pointer to the
// file an item's predictions were loaded from. Verification writes in
// multi-file hierarchical layouts route through it.
const MetaPredictionsPath = "predictions_path"

// SchemaVersion is the unified schema version this package reads and writes.
const SchemaVersion = "2.0"

// NowISO returns the current UTC time in RFC 3339 format, the timestamp
// convention used throughout the label files.
func NowISO() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// Timestamps bound one item's audio segment. Empty string means unknown.
type Timestamps struct {
	Start string `json:"start,omitempty"`
	End   string `json:"end,omitempty"`
}

// ModelOutput is one raw model score against a taxonomy class.
type ModelOutput struct {
	ClassHierarchy string  `json:"class_hierarchy"`
	Score          float64 `json:"score"`
	ClassID        string  `json:"class_id,omitempty"`
}

// Predictions holds either legacy thresholded labels with a confidence map
// or raw v2 model outputs.
type Predictions struct {
	ModelID      string             `json:"model_id,omitempty"`
	TaskType     string             `json:"task_type,omitempty"`
	Labels       []string           `json:"labels,omitempty"`
	Confidence   map[string]float64 `json:"confidence,omitempty"`
	ModelOutputs []ModelOutput      `json:"model_outputs,omitempty"`
}

// LabelsAtThreshold returns the predicted labels at or above the score
// threshold. Legacy predictions carry pre-thresholded labels and are
// returned as-is.
func (p *Predictions) LabelsAtThreshold(threshold float64) []string {
	if p == nil {
		return nil
	}
	if len(p.ModelOutputs) == 0 {
		return append([]string{}, p.Labels...)
	}
	var out []string
	for _, mo := range p.ModelOutputs {
		if mo.Score >= threshold {
			out = append(out, mo.ClassHierarchy)
		}
	}
	return out
}

// LabelDecision is one per-label verdict inside a verification round.
type LabelDecision struct {
	Label         string   `json:"label"`
	Decision      string   `json:"decision"`
	ThresholdUsed *float64 `json:"threshold_used"`
}

// Verification is one immutable, attributed round of label decisions.
// Rounds are append-only and numbered from 1.
type Verification struct {
	VerifiedAt         string          `json:"verified_at"`
	VerifiedBy         string          `json:"verified_by"`
	VerificationRound  int             `json:"verification_round"`
	LabelDecisions     []LabelDecision `json:"label_decisions,omitempty"`
	VerificationStatus string          `json:"verification_status,omitempty"`
	LabelSource        string          `json:"label_source,omitempty"`
	Notes              string          `json:"notes,omitempty"`

	// Flat fields from rounds that predate label_decisions.
	Labels         []string `json:"labels,omitempty"`
	RejectedLabels []string `json:"rejected_labels,omitempty"`
	AddedLabels    []string `json:"added_labels,omitempty"`
}

// CurrentLabels returns the round's effective label set: accepted plus added
// decisions, or the flat labels field for very old rounds.
func (v *Verification) CurrentLabels() []string {
	if len(v.LabelDecisions) == 0 {
		return append([]string{}, v.Labels...)
	}
	var out []string
	for _, ld := range v.LabelDecisions {
		if ld.Decision == DecisionAccepted || ld.Decision == DecisionAdded {
			out = append(out, ld.Label)
		}
	}
	return out
}

// Rejected returns the labels this round explicitly rejected.
func (v *Verification) Rejected() []string {
	if len(v.LabelDecisions) == 0 {
		return append([]string{}, v.RejectedLabels...)
	}
	var out []string
	for _, ld := range v.LabelDecisions {
		if ld.Decision == DecisionRejected {
			out = append(out, ld.Label)
		}
	}
	return out
}

// Added returns the labels this round added beyond the model's predictions.
func (v *Verification) Added() []string {
	if len(v.LabelDecisions) == 0 {
		return append([]string{}, v.AddedLabels...)
	}
	var out []string
	for _, ld := range v.LabelDecisions {
		if ld.Decision == DecisionAdded {
			out = append(out, ld.Label)
		}
	}
	return out
}

// Annotations is the derived view of an item's current labels. It is always
// computed from the latest verification round, never stored independently
// once the unified schema is in use.
type Annotations struct {
	Labels         []string `json:"labels"`
	AnnotatedBy    string   `json:"annotated_by,omitempty"`
	AnnotatedAt    string   `json:"annotated_at,omitempty"`
	Verified       bool     `json:"verified"`
	Notes          string   `json:"notes,omitempty"`
	RejectedLabels []string `json:"rejected_labels,omitempty"`
	AddedLabels    []string `json:"added_labels,omitempty"`
}

// Item is one spectrogram/audio segment with its predictions and
// verification history.
type Item struct {
	ItemID          string         `json:"item_id"`
	SpectrogramPath string         `json:"spectrogram_path,omitempty"`
	MatPath         string         `json:"mat_path,omitempty"`
	AudioPath       string         `json:"audio_path,omitempty"`
	Timestamps      Timestamps     `json:"timestamps"`
	DeviceCode      string         `json:"device_code,omitempty"`
	Predictions     *Predictions   `json:"predictions,omitempty"`
	Annotations     *Annotations   `json:"annotations,omitempty"`
	Verifications   []Verification `json:"verifications"`
	Metadata        map[string]any `json:"metadata,omitempty"`
}

// RefreshAnnotations recomputes the derived annotations view from the
// latest verification round.
func (it *Item) RefreshAnnotations() {
	if len(it.Verifications) == 0 {
		return
	}
	latest := &it.Verifications[len(it.Verifications)-1]
	it.Annotations = &Annotations{
		Labels:         latest.CurrentLabels(),
		AnnotatedBy:    latest.VerifiedBy,
		AnnotatedAt:    latest.VerifiedAt,
		Verified:       true,
		Notes:          latest.Notes,
		RejectedLabels: latest.Rejected(),
		AddedLabels:    latest.Added(),
	}
}

// PredictionsPath returns the metadata back-pointer to the file this item's
// predictions came from, if recorded.
func (it *Item) PredictionsPath() string {
	if it.Metadata == nil {
		return ""
	}
	if p, ok := it.Metadata[MetaPredictionsPath].(string); ok {
		return p
	}
	return ""
}

// Source records where a dataset came from.
type Source struct {
	Type       string         `json:"type"` // "ml_prediction" or "manual"
	Model      map[string]any `json:"model,omitempty"`
	DataSource map[string]any `json:"data_source,omitempty"`
	TaskType   string         `json:"task_type,omitempty"`
}

// Summary is the rollup displayed alongside a loaded dataset.
type Summary struct {
	TotalItems int `json:"total_items"`
	Annotated  int `json:"annotated"`
	Verified   int `json:"verified"`
}

// Dataset is the canonical in-memory form every supported schema converts to.
type Dataset struct {
	Version    string   `json:"version"`
	CreatedAt  string   `json:"created_at"`
	Source     Source   `json:"source"`
	Items      []Item   `json:"items"`
	Summary    Summary  `json:"summary"`
	AudioRoots []string `json:"audio_roots,omitempty"`
}
