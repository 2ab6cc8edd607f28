// Package taxonomy holds the hierarchical label tree used to validate
// annotation label paths.
package taxonomy

import (
	_ "embed"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/oceanlabs/hydrolabel-go/internal/errors"
)

// PathSeparator joins hierarchy levels in a label string.
const PathSeparator = " > "

//go:embed tree.yaml
var treeYAML []byte

// Node is one level of the label hierarchy. Leaves have no children.
type Node map[string]Node

// Tree is the root of the label hierarchy.
type Tree struct {
	root Node
}

var (
	defaultTree *Tree
	defaultErr  error
	loadOnce    sync.Once
)

// Default returns the embedded taxonomy tree, parsing it on first use.
func Default() (*Tree, error) {
	loadOnce.Do(func() {
		defaultTree, defaultErr = Parse(treeYAML)
	})
	return defaultTree, defaultErr
}

// Parse builds a Tree from YAML data.
func Parse(data []byte) (*Tree, error) {
	var root Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, errors.Newf("failed to parse taxonomy tree: %w", err).
			Category(errors.CategoryTaxonomy).
			Build()
	}
	return &Tree{root: root}, nil
}

// IsValidPath reports whether the path, given as hierarchy levels from the
// top, exists in the tree. Every prefix of a valid path is itself valid.
func (t *Tree) IsValidPath(path []string) bool {
	if len(path) == 0 {
		return false
	}
	current := t.root
	for _, part := range path {
		child, ok := current[part]
		if !ok {
			return false
		}
		current = child
	}
	return true
}

// IsValidLabel reports whether a rendered "A > B > C" label exists in the tree.
func (t *Tree) IsValidLabel(label string) bool {
	return t.IsValidPath(SplitLabel(label))
}

// AllPaths returns every valid path in the tree as rendered label strings,
// sorted for deterministic output.
func (t *Tree) AllPaths() []string {
	var out []string
	var walk func(node Node, prefix []string)
	walk = func(node Node, prefix []string) {
		for name, child := range node {
			path := append(append([]string{}, prefix...), name)
			out = append(out, JoinPath(path))
			if len(child) > 0 {
				walk(child, path)
			}
		}
	}
	walk(t.root, nil)
	sort.Strings(out)
	return out
}

// Leaves returns the terminal label names, sorted.
func (t *Tree) Leaves() []string {
	var out []string
	var walk func(node Node)
	walk = func(node Node) {
		for name, child := range node {
			if len(child) == 0 {
				out = append(out, name)
			} else {
				walk(child)
			}
		}
	}
	walk(t.root)
	sort.Strings(out)
	return out
}

// JoinPath renders hierarchy levels as a label string.
func JoinPath(path []string) string {
	return strings.Join(path, PathSeparator)
}

// SplitLabel splits a rendered label string into hierarchy levels.
func SplitLabel(label string) []string {
	if label == "" {
		return nil
	}
	return strings.Split(label, PathSeparator)
}

// legacyLabelMapping maps flat labels from very old annotation files onto
// taxonomy paths. Order matters for the reverse mapping: the first hierarchical
// occurrence wins.
var legacyLabelMapping = []struct {
	legacy string
	path   string
}{
	{"Unknown Feature", "Other > Unknown sound of interest"},
	{"Anomaly", "Other > Unknown sound of interest"},
	{"Data Gap", "Instrumentation > Malfunction > Data gap"},
	{"Dropout", "Instrumentation > Malfunction > Frequency dropout"},
	{"Engine Noise", "Anthropophony > Vessel"},
	{"Rain", "Geophony > Weather > Precipitation > Rain"},
	{"Sensitivity", "Instrumentation > Malfunction > Sensitivity change"},
	{"Tonal", "Instrumentation > Self-noise > Non-acoustic self noise > Tonal"},
	{"Unknown Features", "Other > Unknown sound of interest"},
	{"Engine noise", "Anthropophony > Vessel"},
	{"rain", "Geophony > Weather > Precipitation > Rain"},
	{"tonal", "Instrumentation > Self-noise > Non-acoustic self noise > Tonal"},
}

// MapLegacyLabel converts a flat legacy label to its taxonomy path. Labels
// already containing the path separator pass through unchanged; unknown flat
// labels map to the catch-all "unknown sound of interest" path.
func MapLegacyLabel(label string) string {
	if strings.Contains(label, PathSeparator) {
		return label
	}
	for _, m := range legacyLabelMapping {
		if m.legacy == label {
			return m.path
		}
	}
	return "Other > Unknown sound of interest"
}

// LegacyLabelFor converts a taxonomy path back to its flat legacy label where
// one exists, otherwise the leaf name.
func LegacyLabelFor(path string) string {
	for _, m := range legacyLabelMapping {
		if m.path == path {
			return m.legacy
		}
	}
	parts := SplitLabel(path)
	if len(parts) > 0 {
		return parts[len(parts)-1]
	}
	return path
}
