package contentstream

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wudi/pdftools/coords"
	"github.com/wudi/pdftools/ir/raw"
)

func TestParseOperations(t *testing.T) {
	ops, err := Parse([]byte("q 1 0 0 1 10 20 cm BT /F1 12 Tf (Hi) Tj [(A) -120 (B)] TJ ET Q"))
	require.NoError(t, err)
	var names []string
	for _, op := range ops {
		names = append(names, op.Operator)
	}
	assert.Equal(t, []string{"q", "cm", "BT", "Tf", "Tj", "TJ", "ET", "Q"}, names)
	assert.Len(t, ops[1].Operands, 6)
	arr, ok := ops[5].Operands[0].(*raw.ArrayObj)
	require.True(t, ok)
	assert.Equal(t, 3, arr.Len())
}

func TestParseInlineImage(t *testing.T) {
	ops, err := Parse([]byte("q BI /W 2 /H 1 /BPC 8 /CS /G ID \x00\xff EI Q"))
	require.NoError(t, err)
	require.Len(t, ops, 3)
	assert.Equal(t, "BI", ops[1].Operator)
	assert.Equal(t, []byte{0x00, 0xff}, ops[1].InlineData)
	params := ops[1].Operands[0].(*raw.DictObj)
	assert.Equal(t, int64(2), params.Get("W").(raw.NumberObj).Int())
}

func TestSerializeRoundTrip(t *testing.T) {
	src := []Operation{
		Op("q"),
		Op("cm", 1, 0, 0, 1, 5.5, 0),
		{Operator: "Tj", Operands: []raw.Object{raw.Str([]byte("a(b)"))}},
		Op("Q"),
	}
	out := Serialize(src)
	assert.Equal(t, "q\n1 0 0 1 5.5 0 cm\n(a\\(b\\)) Tj\nQ\n", string(out))
	back, err := Parse(out)
	require.NoError(t, err)
	assert.Len(t, back, 4)
}

func TestProcessorTracksState(t *testing.T) {
	ops, err := Parse([]byte("q 2 0 0 2 0 0 cm 1 0 0 rg 10 10 5 5 re f Q BT /F1 10 Tf 1 0 0 1 100 200 Tm 14 TL T* (x) Tj ET"))
	require.NoError(t, err)

	p := NewProcessor()
	var filled Path
	var fillColor RGB
	p.RegisterHandler("f", HandlerFunc(func(ec *ExecutionContext, _ Operation) error {
		filled = ec.Path
		fillColor = ec.GraphicsState.FillColor
		return nil
	}))
	var textAt coords.Point
	p.RegisterHandler("Tj", HandlerFunc(func(ec *ExecutionContext, _ Operation) error {
		textAt = ec.RenderingMatrix().Transform(coords.Point{})
		return nil
	}))

	ec := NewExecutionContext(coords.Identity(), nil)
	require.NoError(t, p.Process(context.Background(), ops, ec))

	require.Len(t, filled.Subpaths, 1)
	pts := filled.Subpaths[0].Points
	assert.Equal(t, 20.0, pts[0].X)
	assert.Equal(t, 30.0, pts[2].Y)
	assert.Equal(t, RGB{1, 0, 0}, fillColor)
	assert.Equal(t, coords.Identity(), ec.GraphicsState.CTM, "Q restores the CTM")
	assert.InDelta(t, 100, textAt.X, 1e-9)
	assert.InDelta(t, 186, textAt.Y, 1e-9)
	assert.Empty(t, ec.Path.Subpaths)
}

func TestTextAdvance(t *testing.T) {
	ts := &TextState{FontSize: 10, Scale: 1, TextMatrix: coords.Identity()}
	ts.Advance(500, false)
	assert.InDelta(t, 5, ts.TextMatrix[4], 1e-9)
	ts.WordSpacing = 2
	ts.Advance(250, true)
	assert.InDelta(t, 9.5, ts.TextMatrix[4], 1e-9)
	ts.Kern(-1000)
	assert.InDelta(t, 19.5, ts.TextMatrix[4], 1e-9)
}

func TestUnbalancedRestoreIgnored(t *testing.T) {
	ops, err := Parse([]byte("Q Q 1 w"))
	require.NoError(t, err)
	ec := NewExecutionContext(coords.Identity(), nil)
	require.NoError(t, NewProcessor().Process(context.Background(), ops, ec))
	assert.Equal(t, 1.0, ec.GraphicsState.LineWidth)
}
