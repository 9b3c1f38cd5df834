package ocr

import (
	"context"
	"errors"
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubRenderer struct{ fail int }

func (s stubRenderer) Render(_ context.Context, i int, dpi float64) (*image.RGBA, error) {
	if i == s.fail {
		return nil, errors.New("boom")
	}
	return image.NewRGBA(image.Rect(0, 0, int(dpi), int(dpi))), nil
}

type echoEngine struct{ seen []Input }

func (e *echoEngine) Name() string { return "echo" }

func (e *echoEngine) Recognize(_ context.Context, in Input) (Result, error) {
	e.seen = append(e.seen, in)
	return Result{InputID: in.ID, PlainText: in.ID}, nil
}

type batchEngine struct {
	echoEngine
	batches int
}

func (b *batchEngine) RecognizeBatch(ctx context.Context, inputs []Input) ([]Result, error) {
	b.batches++
	out := make([]Result, 0, len(inputs))
	for _, in := range inputs {
		res, _ := b.Recognize(ctx, in)
		res.PageIndex = in.PageIndex
		out = append(out, res)
	}
	return out, nil
}

func TestRecognizePages(t *testing.T) {
	e := &echoEngine{}
	results, err := RecognizePages(context.Background(), e, stubRenderer{fail: -1}, 2, 144, WithLanguages("deu"))
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "page-2", results[1].PlainText)
	assert.Equal(t, 1, results[1].PageIndex)
	assert.Equal(t, 144, e.seen[0].DPI)
	assert.Equal(t, []string{"deu"}, e.seen[0].Languages)
	assert.Equal(t, ImageFormatPNG, e.seen[0].Format)
	assert.NotEmpty(t, e.seen[0].Image)
}

func TestRecognizePagesUsesBatch(t *testing.T) {
	b := &batchEngine{}
	results, err := RecognizePages(context.Background(), b, stubRenderer{fail: -1}, 3, 72)
	require.NoError(t, err)
	assert.Len(t, results, 3)
	assert.Equal(t, 1, b.batches)
}

func TestRecognizePagesRenderFailure(t *testing.T) {
	_, err := RecognizePages(context.Background(), &echoEngine{}, stubRenderer{fail: 1}, 2, 72)
	assert.ErrorContains(t, err, "render page 2")
}

func TestInputOptions(t *testing.T) {
	in, err := InputFromImage(image.NewGray(image.Rect(0, 0, 1, 1)), 0,
		WithRegion(Region{Width: 1, Height: 1}),
		WithTesseractPSM(3),
	)
	require.NoError(t, err)
	assert.Equal(t, "page-1", in.ID)
	require.NotNil(t, in.Region)
	assert.Equal(t, "3", in.Metadata["tessedit_pageseg_mode"])

	WithRegion(Region{})(&in)
	assert.Nil(t, in.Region)
}
