package errors

import (
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilderBasics(t *testing.T) {
	base := stderrors.New("labels file unreadable")
	ee := New(base).
		Component("labelstore").
		Category(CategoryFileIO).
		Context("file_path", "/tmp/labels.json").
		Build()

	assert.Equal(t, "labels file unreadable", ee.Error())
	assert.Equal(t, "labelstore", ee.Component)
	assert.Equal(t, CategoryFileIO, ee.Category)
	assert.Equal(t, "/tmp/labels.json", ee.GetContext()["file_path"])
	assert.True(t, stderrors.Is(ee, base))
}

func TestDefaultCategory(t *testing.T) {
	ee := Newf("boom %d", 7).Build()
	assert.Equal(t, CategoryGeneric, ee.Category)
	assert.Equal(t, "boom 7", ee.Error())
}

func TestCategoryMatching(t *testing.T) {
	a := Newf("a").Category(CategoryDiscovery).Build()
	b := Newf("b").Category(CategoryDiscovery).Build()
	c := Newf("c").Category(CategoryFileIO).Build()

	assert.True(t, stderrors.Is(a, b))
	assert.False(t, stderrors.Is(a, c))
}

func TestContextIsCopied(t *testing.T) {
	ee := Newf("x").Context("k", "v").Build()
	ctx := ee.GetContext()
	require.NotNil(t, ctx)
	ctx["k"] = "mutated"
	assert.Equal(t, "v", ee.GetContext()["k"])
}

func TestLogAttrs(t *testing.T) {
	ee := Newf("bad json").Category(CategoryJSONParse).Component("annotation").Build()
	attrs := ee.LogAttrs()
	assert.Contains(t, attrs, "json-parse")
	assert.Contains(t, attrs, "annotation")
}
