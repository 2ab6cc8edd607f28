// Package labelstore reads and writes label files on disk. Label-mode saves
// upgrade legacy files to the unified schema in place; verify-mode saves
// append immutable verification rounds. Every write goes through a per-path
// mutex, a cross-process file lock, and a temp-file rename.
package labelstore

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/oceanlabs/hydrolabel-go/internal/annotation"
	"github.com/oceanlabs/hydrolabel-go/internal/errors"
	"github.com/oceanlabs/hydrolabel-go/internal/logging"
)

// Store serializes access to label files.
type Store struct {
	locks *pathLocks
	log   *slog.Logger
}

// New creates a label store.
func New() *Store {
	return &Store{
		locks: newPathLocks(),
		log:   logging.ForService("labelstore"),
	}
}

// SaveOptions carries the optional attribution fields of a label-mode save.
type SaveOptions struct {
	AnnotatedBy string
	AnnotatedAt string
	// Notes nil preserves the latest round's notes; a pointer to "" clears
	// them.
	Notes    *string
	Metadata map[string]any
}

// VerifyOptions carries the optional fields of a verification round.
type VerifyOptions struct {
	VerificationStatus  string
	ReviewerAffiliation string
	Confidence          string
	Notes               string
	LabelSource         string
	TaxonomyVersion     string
}

// LoadLabels reads a labels file into a filename-to-labels map. All three
// historical shapes are accepted. A missing or unreadable file is an empty
// map, never an error.
func (s *Store) LoadLabels(path string) annotation.LabelMap {
	out := make(annotation.LabelMap)
	if path == "" {
		return out
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return out
	}

	var data map[string]any
	if err := json.Unmarshal(raw, &data); err != nil {
		s.log.Warn("failed to parse labels file", "path", path, "error", err)
		return out
	}

	if items, ok := data["items"].([]any); ok {
		for _, entry := range items {
			item, ok := entry.(map[string]any)
			if !ok {
				continue
			}
			itemID, _ := item["item_id"].(string)
			if itemID == "" {
				continue
			}
			if verifications, ok := item["verifications"].([]any); ok && len(verifications) > 0 {
				out[itemID] = labelsFromVerifications(verifications)
				continue
			}
			if annotations, ok := item["annotations"].(map[string]any); ok {
				out[itemID] = stringList(annotations["labels"])
				continue
			}
			out[itemID] = []string{}
		}
		return out
	}

	for filename, labels := range data {
		out[filename] = stringList(labels)
	}
	return out
}

// GetLabels returns the saved labels for one file.
func (s *Store) GetLabels(path, filename string) []string {
	labels, _ := s.LoadLabels(path).Lookup(filename)
	return labels
}

// SaveLabels records a label-mode save for one file as a new verification
// round with decision "added" and no threshold. Legacy files are upgraded to
// the unified schema on write. Saving no labels and no notes removes the
// item.
func (s *Store) SaveLabels(path, filename string, labels []string, opts SaveOptions) error {
	if path == "" {
		return errors.Newf("labels path is empty").
			Category(errors.CategoryValidation).
			Build()
	}

	mu := s.locks.get(path)
	mu.Lock()
	defer mu.Unlock()

	fl, err := lockFile(path)
	if err != nil {
		return errors.Newf("failed to lock labels file: %w", err).
			Category(errors.CategoryLabelStore).
			FileContext(path).
			Build()
	}
	defer fl.Unlock()

	data := s.readForUpdate(path)
	data = ensureUnified(data)

	setDefault(data, "schema_version", annotation.SchemaVersion)
	setDefault(data, "created_at", annotation.NowISO())
	setDefault(data, "task_type", "classification")
	data["updated_at"] = annotation.NowISO()

	items, _ := data["items"].([]any)
	item, items := findOrAppendItem(items, filename)
	migrateItemAnnotations(item)

	verifications, _ := item["verifications"].([]any)

	now := opts.AnnotatedAt
	if now == "" {
		now = annotation.NowISO()
	}
	by := opts.AnnotatedBy
	if by == "" {
		by = "anonymous"
	}

	noteText := ""
	if opts.Notes != nil {
		noteText = *opts.Notes
	} else if len(verifications) > 0 {
		if last, ok := verifications[len(verifications)-1].(map[string]any); ok {
			noteText, _ = last["notes"].(string)
		}
	}

	if len(labels) > 0 || noteText != "" {
		verifications = append(verifications, map[string]any{
			"verified_at":         now,
			"verified_by":         by,
			"verification_round":  len(verifications) + 1,
			"verification_status": "verified",
			"label_decisions":     addedDecisions(labels),
			"label_source":        "expert",
			"notes":               noteText,
		})
		item["verifications"] = verifications
		if len(opts.Metadata) > 0 {
			item["metadata"] = opts.Metadata
		}
	} else if len(verifications) == 0 {
		// Nothing to record and no history to preserve: drop the item.
		// Existing verification rounds are never deleted by an empty save.
		items = removeItem(items, item)
	}

	data["items"] = items
	rebuildSummary(data, items)

	if err := s.writeAtomic(path, data); err != nil {
		return err
	}
	s.log.Debug("saved labels", "path", path, "item", filename, "labels", len(labels))
	return nil
}

// AddLabel appends a single label to a file's current set.
func (s *Store) AddLabel(path, filename, label string) error {
	labels := s.GetLabels(path, filename)
	for _, l := range labels {
		if l == label {
			return s.SaveLabels(path, filename, labels, SaveOptions{})
		}
	}
	return s.SaveLabels(path, filename, append(labels, label), SaveOptions{})
}

// RemoveLabel removes a single label from a file's current set.
func (s *Store) RemoveLabel(path, filename, label string) error {
	labels := s.GetLabels(path, filename)
	kept := labels[:0]
	for _, l := range labels {
		if l != label {
			kept = append(kept, l)
		}
	}
	return s.SaveLabels(path, filename, kept, SaveOptions{})
}

// SaveVerification appends a verification round with the given per-label
// decisions to an item in a unified predictions file. It reports whether the
// item was found; a missing item is not an error.
func (s *Store) SaveVerification(path, itemID, verifiedBy string, decisions []annotation.LabelDecision, opts VerifyOptions) (bool, error) {
	if path == "" {
		return false, errors.Newf("predictions path is empty").
			Category(errors.CategoryValidation).
			Build()
	}

	mu := s.locks.get(path)
	mu.Lock()
	defer mu.Unlock()

	fl, err := lockFile(path)
	if err != nil {
		return false, errors.Newf("failed to lock predictions file: %w", err).
			Category(errors.CategoryLabelStore).
			FileContext(path).
			Build()
	}
	defer fl.Unlock()

	raw, err := os.ReadFile(path)
	if err != nil {
		return false, errors.Newf("failed to read predictions file: %w", err).
			Category(errors.CategoryFileIO).
			FileContext(path).
			Build()
	}
	var data map[string]any
	if err := json.Unmarshal(raw, &data); err != nil {
		return false, errors.Newf("failed to parse predictions file: %w", err).
			Category(errors.CategoryJSONParse).
			FileContext(path).
			Build()
	}

	items, _ := data["items"].([]any)
	item := findItem(items, itemID)
	if item == nil {
		s.log.Warn("verification target not found", "path", path, "item", itemID)
		return false, nil
	}

	verifications, _ := item["verifications"].([]any)
	verification := map[string]any{
		"verified_at":        annotation.NowISO(),
		"verified_by":        verifiedBy,
		"verification_round": len(verifications) + 1,
		"label_decisions":    decisionMaps(decisions),
	}
	if opts.VerificationStatus != "" {
		verification["verification_status"] = opts.VerificationStatus
	}
	if opts.ReviewerAffiliation != "" {
		verification["reviewer_affiliation"] = opts.ReviewerAffiliation
	}
	if opts.Confidence != "" {
		verification["confidence"] = opts.Confidence
	}
	if opts.Notes != "" {
		verification["notes"] = opts.Notes
	}
	if opts.LabelSource != "" {
		verification["label_source"] = opts.LabelSource
	}
	if opts.TaxonomyVersion != "" {
		verification["taxonomy_version"] = opts.TaxonomyVersion
	}
	item["verifications"] = append(verifications, verification)
	data["updated_at"] = annotation.NowISO()

	if err := s.writeAtomic(path, data); err != nil {
		return false, err
	}
	s.log.Debug("saved verification", "path", path, "item", itemID,
		"round", len(verifications)+1, "decisions", len(decisions))
	return true, nil
}

// SaveDashboardVerification records verified labels against a hydrophone
// dashboard file at <root>/<date>/<hydrophone>/labels.json, creating or
// upgrading the per-file entry in place.
func (s *Store) SaveDashboardVerification(dashboardRoot, date, hydrophone, itemID string, labels []string, username, role string) error {
	if dashboardRoot == "" || date == "" || hydrophone == "" {
		return errors.Newf("dashboard root, date and hydrophone are required").
			Category(errors.CategoryValidation).
			Build()
	}
	path := filepath.Join(dashboardRoot, date, hydrophone, "labels.json")

	mu := s.locks.get(path)
	mu.Lock()
	defer mu.Unlock()

	fl, err := lockFile(path)
	if err != nil {
		return errors.Newf("failed to lock labels file: %w", err).
			Category(errors.CategoryLabelStore).
			FileContext(path).
			Build()
	}
	defer fl.Unlock()

	data := s.readForUpdate(path)

	entry, _ := data[itemID].(map[string]any)
	if entry == nil {
		predicted := []any{}
		// Bare list entries carry predictions only; keep them.
		if list, ok := data[itemID].([]any); ok {
			predicted = list
		}
		entry = map[string]any{
			"predicted_labels": predicted,
			"probabilities":    map[string]any{},
			"verified_labels":  nil,
			"verified_by":      nil,
			"verified_at":      nil,
			"notes":            "",
			"t0":               "",
			"t1":               "",
			"hydrophone":       hydrophone,
		}
	}

	if username == "" {
		username = "anonymous"
	}
	entry["verified_labels"] = labels
	entry["verified_by"] = username
	if role != "" {
		entry["verified_role"] = role
	}
	entry["verified_at"] = annotation.NowISO()
	data[itemID] = entry

	return s.writeAtomic(path, data)
}

// Migrate upgrades a legacy labels file to the unified schema in place.
// Already-unified files are left untouched; it reports whether a rewrite
// happened.
func (s *Store) Migrate(path string) (bool, error) {
	if path == "" {
		return false, errors.Newf("labels path is empty").
			Category(errors.CategoryValidation).
			Build()
	}

	mu := s.locks.get(path)
	mu.Lock()
	defer mu.Unlock()

	fl, err := lockFile(path)
	if err != nil {
		return false, errors.Newf("failed to lock labels file: %w", err).
			Category(errors.CategoryLabelStore).
			FileContext(path).
			Build()
	}
	defer fl.Unlock()

	raw, err := os.ReadFile(path)
	if err != nil {
		return false, errors.Newf("failed to read labels file: %w", err).
			Category(errors.CategoryFileIO).
			FileContext(path).
			Build()
	}
	var data map[string]any
	if err := json.Unmarshal(raw, &data); err != nil {
		return false, errors.Newf("failed to parse labels file: %w", err).
			Category(errors.CategoryJSONParse).
			FileContext(path).
			Build()
	}

	if _, ok := data["items"].([]any); ok {
		return false, nil
	}

	upgraded := ensureUnified(data)
	upgraded["updated_at"] = annotation.NowISO()
	items, _ := upgraded["items"].([]any)
	rebuildSummary(upgraded, items)

	if err := s.writeAtomic(path, upgraded); err != nil {
		return false, err
	}
	s.log.Info("migrated labels file to unified schema", "path", path, "items", len(items))
	return true, nil
}

// DefaultLabelsPath returns the labels.json path for a spectrogram folder.
// An onc_spectrograms folder stores labels one level up, at the device level.
func DefaultLabelsPath(spectrogramFolder string) string {
	if spectrogramFolder == "" {
		return ""
	}
	if strings.HasSuffix(spectrogramFolder, "onc_spectrograms") {
		return filepath.Join(filepath.Dir(spectrogramFolder), "labels.json")
	}
	return filepath.Join(spectrogramFolder, "labels.json")
}

// SmartLabelsPath picks the labels.json location for a data root and
// structure type, preferring an existing root-level file. The second return
// is a human-readable reason.
func SmartLabelsPath(dataRoot, structureType, existingRootLabels string, subfolderLabelsCount int) (string, string) {
	if dataRoot == "" {
		return "", "No data directory set"
	}
	if existingRootLabels != "" && isFile(existingRootLabels) {
		return existingRootLabels, "Using existing root-level labels.json"
	}
	rootPath := filepath.Join(dataRoot, "labels.json")
	if isFile(rootPath) {
		return rootPath, "Using existing root-level labels.json"
	}
	if structureType == "hierarchical" || structureType == "device_only" {
		if subfolderLabelsCount > 0 {
			return rootPath, fmt.Sprintf(
				"Found %d labels.json in subfolders. Consider consolidating to root-level for consistency.",
				subfolderLabelsCount)
		}
		return rootPath, "New labels will be saved to root-level labels.json"
	}
	return rootPath, "Labels will be saved to labels.json"
}

// readForUpdate loads the current file content for a read-modify-write
// cycle. Missing, empty or malformed files start over from an empty object.
func (s *Store) readForUpdate(path string) map[string]any {
	raw, err := os.ReadFile(path)
	if err != nil || len(raw) == 0 {
		return map[string]any{}
	}
	var data map[string]any
	if err := json.Unmarshal(raw, &data); err != nil {
		s.log.Warn("labels file is malformed; starting fresh", "path", path, "error", err)
		return map[string]any{}
	}
	return data
}

// writeAtomic writes data as indented JSON via a temp file in the target
// directory followed by a rename.
func (s *Store) writeAtomic(path string, data map[string]any) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Newf("failed to create labels directory: %w", err).
			Category(errors.CategoryFileIO).
			FileContext(path).
			Build()
	}

	encoded, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return errors.Newf("failed to encode labels file: %w", err).
			Category(errors.CategoryLabelStore).
			FileContext(path).
			Build()
	}

	tmp, err := os.CreateTemp(dir, ".labels-*.tmp")
	if err != nil {
		return errors.Newf("failed to create temp labels file: %w", err).
			Category(errors.CategoryFileIO).
			FileContext(path).
			Build()
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(encoded); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.Newf("failed to write labels file: %w", err).
			Category(errors.CategoryFileIO).
			FileContext(path).
			Build()
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errors.Newf("failed to close labels file: %w", err).
			Category(errors.CategoryFileIO).
			FileContext(path).
			Build()
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return errors.Newf("failed to replace labels file: %w", err).
			Category(errors.CategoryFileIO).
			FileContext(path).
			Build()
	}
	return nil
}

// ensureUnified returns data if it already has an items list, otherwise a
// fresh unified skeleton with any legacy filename-to-labels entries migrated
// into verification rounds attributed to "migrated".
func ensureUnified(data map[string]any) map[string]any {
	if _, ok := data["items"].([]any); ok {
		return data
	}

	upgraded := map[string]any{
		"schema_version": annotation.SchemaVersion,
		"created_at":     annotation.NowISO(),
		"task_type":      "classification",
	}
	var items []any
	for _, key := range sortedAnyKeys(data) {
		entry := data[key]
		var labels []string
		switch v := entry.(type) {
		case []any:
			labels = stringList(v)
		case string:
			labels = []string{v}
		default:
			continue
		}
		itemID := annotation.NormalizeItemKey(key)
		var verifications []any
		if len(labels) > 0 {
			verifications = append(verifications, map[string]any{
				"verified_at":         annotation.NowISO(),
				"verified_by":         "migrated",
				"verification_round":  1,
				"verification_status": "verified",
				"label_decisions":     addedDecisions(labels),
				"label_source":        "expert",
				"notes":               "",
			})
		} else {
			verifications = []any{}
		}
		items = append(items, map[string]any{
			"item_id":       itemID,
			"verifications": verifications,
		})
	}
	if items == nil {
		items = []any{}
	}
	upgraded["items"] = items
	return upgraded
}

// migrateItemAnnotations converts a legacy per-item annotations object into
// a first verification round, once.
func migrateItemAnnotations(item map[string]any) {
	if _, hasVerifications := item["verifications"]; hasVerifications {
		return
	}
	annotations, hasAnnotations := item["annotations"].(map[string]any)
	if !hasAnnotations {
		return
	}
	delete(item, "annotations")

	labels := stringList(annotations["labels"])
	if len(labels) == 0 {
		item["verifications"] = []any{}
		return
	}
	verifiedAt, _ := annotations["annotated_at"].(string)
	if verifiedAt == "" {
		verifiedAt = annotation.NowISO()
	}
	verifiedBy, _ := annotations["annotated_by"].(string)
	if verifiedBy == "" {
		verifiedBy = "migrated"
	}
	notes, _ := annotations["notes"].(string)
	item["verifications"] = []any{map[string]any{
		"verified_at":         verifiedAt,
		"verified_by":         verifiedBy,
		"verification_round":  1,
		"verification_status": "verified",
		"label_decisions":     addedDecisions(labels),
		"label_source":        "expert",
		"notes":               notes,
	}}
}

// findItem matches an item by raw ID or extension-stripped stem.
func findItem(items []any, id string) map[string]any {
	stem := annotation.NormalizeItemKey(id)
	for _, entry := range items {
		item, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		itemID, _ := item["item_id"].(string)
		if itemID == id || itemID == stem || annotation.NormalizeItemKey(itemID) == stem {
			return item
		}
	}
	return nil
}

func findOrAppendItem(items []any, id string) (map[string]any, []any) {
	if item := findItem(items, id); item != nil {
		item["item_id"] = id
		return item, items
	}
	item := map[string]any{"item_id": id}
	return item, append(items, item)
}

func removeItem(items []any, target map[string]any) []any {
	kept := make([]any, 0, len(items))
	for _, entry := range items {
		if item, ok := entry.(map[string]any); ok {
			if itemID, _ := item["item_id"].(string); itemID == target["item_id"] {
				continue
			}
		}
		kept = append(kept, entry)
	}
	return kept
}

func rebuildSummary(data map[string]any, items []any) {
	summary, _ := data["summary"].(map[string]any)
	if summary == nil {
		summary = map[string]any{}
	}
	annotated := 0
	for _, entry := range items {
		item, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		verifications, _ := item["verifications"].([]any)
		if len(labelsFromVerifications(verifications)) > 0 {
			annotated++
		}
	}
	summary["total_items"] = len(items)
	summary["annotated"] = annotated
	// Label-mode saves are expert input, so annotated implies verified.
	summary["verified"] = annotated
	data["summary"] = summary
}

func labelsFromVerifications(verifications []any) []string {
	if len(verifications) == 0 {
		return nil
	}
	latest, ok := verifications[len(verifications)-1].(map[string]any)
	if !ok {
		return nil
	}
	decisions, _ := latest["label_decisions"].([]any)
	var out []string
	for _, entry := range decisions {
		decision, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		verdict, _ := decision["decision"].(string)
		if verdict == annotation.DecisionAccepted || verdict == annotation.DecisionAdded {
			if label, ok := decision["label"].(string); ok {
				out = append(out, label)
			}
		}
	}
	return out
}

func addedDecisions(labels []string) []any {
	out := make([]any, 0, len(labels))
	for _, label := range labels {
		out = append(out, map[string]any{
			"label":          label,
			"decision":       annotation.DecisionAdded,
			"threshold_used": nil,
		})
	}
	return out
}

func decisionMaps(decisions []annotation.LabelDecision) []any {
	out := make([]any, 0, len(decisions))
	for _, d := range decisions {
		m := map[string]any{
			"label":          d.Label,
			"decision":       d.Decision,
			"threshold_used": nil,
		}
		if d.ThresholdUsed != nil {
			m["threshold_used"] = *d.ThresholdUsed
		}
		out = append(out, m)
	}
	return out
}

func stringList(v any) []string {
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

// sortedAnyKeys keeps migrated files diffable across runs.
func sortedAnyKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func setDefault(data map[string]any, key string, value any) {
	if _, ok := data[key]; !ok {
		data[key] = value
	}
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
