package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noop(context.Context, Input) (Output, error) { return Output{}, nil }

func sample() OperationSpec {
	return OperationSpec{
		ID:         "sample",
		Title:      "Sample",
		Arity:      Single,
		OutputName: "out.pdf",
		Run:        noop,
		Params: []ParamSpec{
			{Name: "quality", Kind: String, Default: "medium", Enum: []string{"low", "medium", "high"},
				Aliases: map[string]string{"extreme": "low", "less": "high"}},
			{Name: "angle", Kind: Int, Default: 90, OnInvalid: Reject, MultipleOf: 90},
			{Name: "dpi", Kind: Int, Default: 150, Min: Bound(36), Max: Bound(600)},
			{Name: "top", Kind: Float, Default: 0.0, OnInvalid: Reject, Min: Bound(0)},
			{Name: "opacity", Kind: Float, Default: 0.3, Min: Bound(0), Max: Bound(1)},
			{Name: "flatten", Kind: Bool, Default: false},
			{Name: "pages", Kind: Text, Default: ""},
			{Name: "layout", Kind: JSON},
		},
	}
}

func TestCoerceDefaults(t *testing.T) {
	r, err := New(sample())
	require.NoError(t, err)
	spec, err := r.Resolve("sample")
	require.NoError(t, err)

	p, err := spec.Coerce(nil)
	require.NoError(t, err)
	assert.Equal(t, "medium", p.String("quality"))
	assert.Equal(t, 90, p.Int("angle"))
	assert.Equal(t, 150, p.Int("dpi"))
	assert.Equal(t, 0.3, p.Float("opacity"))
	assert.False(t, p.Bool("flatten"))
	assert.Equal(t, "", p.String("pages"))
	assert.Nil(t, p.JSON("layout"))
}

func TestCoerceValues(t *testing.T) {
	r, err := New(sample())
	require.NoError(t, err)
	spec, _ := r.Resolve("sample")

	p, err := spec.Coerce(map[string]string{
		"quality": " Extreme ",
		"angle":   "-270",
		"dpi":     "300.0",
		"top":     "12.5",
		"opacity": "1",
		"flatten": "on",
		"pages":   " 1-3, 5 ",
		"layout":  `{"cols":2}`,
		"ignored": "x",
	})
	require.NoError(t, err)
	assert.Equal(t, "low", p.String("quality"))
	assert.Equal(t, -270, p.Int("angle"))
	assert.Equal(t, 300, p.Int("dpi"))
	assert.Equal(t, 12.5, p.Float("top"))
	assert.Equal(t, 1.0, p.Float("opacity"))
	assert.True(t, p.Bool("flatten"))
	assert.Equal(t, " 1-3, 5 ", p.String("pages"))
	assert.Equal(t, map[string]any{"cols": 2.0}, p.JSON("layout"))
	assert.NotContains(t, p, "ignored")
}

func TestCoerceFallsBackOrRejects(t *testing.T) {
	r, err := New(sample())
	require.NoError(t, err)
	spec, _ := r.Resolve("sample")

	p, err := spec.Coerce(map[string]string{"quality": "ultra", "dpi": "5000", "opacity": "abc", "layout": "{"})
	require.NoError(t, err)
	assert.Equal(t, "medium", p.String("quality"))
	assert.Equal(t, 150, p.Int("dpi"))
	assert.Equal(t, 0.3, p.Float("opacity"))
	assert.NotContains(t, p, "layout")

	for raw, reason := range map[string]string{"45": "multiple of 90", "ninety": "not an integer", "1.5": "not an integer"} {
		_, err := spec.Coerce(map[string]string{"angle": raw})
		var ipe *InvalidParamError
		require.ErrorAs(t, err, &ipe, raw)
		assert.Equal(t, "angle", ipe.Name)
		assert.Contains(t, ipe.Error(), reason)
	}
	_, err = spec.Coerce(map[string]string{"top": "-1"})
	assert.ErrorContains(t, err, "Invalid value for top: must be at least 0")
}

func TestNewValidatesTable(t *testing.T) {
	bad := sample()
	bad.Params = append(bad.Params, ParamSpec{Name: "zoom", Kind: Int, Default: 0, Min: Bound(1)})
	_, err := New(bad)
	assert.ErrorContains(t, err, "defaults")

	_, err = New(sample(), sample())
	assert.ErrorContains(t, err, "duplicate")

	noRun := sample()
	noRun.Run = nil
	_, err = New(noRun)
	assert.Error(t, err)

	unnamed := sample()
	unnamed.OutputName = ""
	_, err = New(unnamed)
	assert.Error(t, err)
}

func TestCatalogOrderAndResolve(t *testing.T) {
	a, b := sample(), sample()
	b.ID, b.Arity = "other", Multi
	r, err := New(b, a)
	require.NoError(t, err)
	ids := []string{}
	for _, s := range r.Catalog() {
		ids = append(ids, s.ID)
	}
	assert.Equal(t, []string{"other", "sample"}, ids)
	assert.Equal(t, 2, r.Len())

	_, err = r.Resolve("nope")
	assert.ErrorIs(t, err, ErrUnknownTool)

	spec, _ := r.Resolve("sample")
	schema := spec.Schema()
	props := schema["properties"].(map[string]any)
	assert.Equal(t, map[string]any{"type": "integer", "minimum": 36.0, "maximum": 600.0}, props["dpi"])
}
