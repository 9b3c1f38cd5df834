package raster

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wudi/pdftools/builder"
	"github.com/wudi/pdftools/document"
)

func build(t *testing.T, b builder.PDFBuilder) *document.Document {
	t.Helper()
	rd, err := b.Build()
	require.NoError(t, err)
	d, err := document.Load(rd)
	require.NoError(t, err)
	return d
}

func rgba(img *image.RGBA, x, y int) color.RGBA {
	return img.RGBAAt(x, y)
}

func TestRenderPathsAndImages(t *testing.T) {
	blue := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	for i := 0; i < 4; i++ {
		blue.SetNRGBA(i%2, i/2, color.NRGBA{B: 255, A: 255})
	}
	img, err := builder.FromImage(blue)
	require.NoError(t, err)

	b := builder.NewBuilder()
	b.NewPage(200, 100).
		DrawRectangle(0, 0, 100, 100, builder.RectOptions{FillColor: builder.Color{R: 1}, Fill: true}).
		DrawImage(img, 100, 0, 100, 100)
	d := build(t, b)

	r, err := New(d)
	require.NoError(t, err)
	out, err := r.Render(context.Background(), 0, 72)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 200, 100), out.Bounds())
	assert.Equal(t, color.RGBA{R: 255, A: 255}, rgba(out, 50, 50))
	assert.Equal(t, color.RGBA{B: 255, A: 255}, rgba(out, 150, 50))
}

func TestRenderStrokeAndText(t *testing.T) {
	b := builder.NewBuilder()
	b.NewPage(300, 100).
		DrawLine(0, 90, 300, 90, builder.LineOptions{LineWidth: 4}).
		DrawText("HELLO", 10, 20, builder.TextOptions{FontSize: 40})
	d := build(t, b)

	r, err := New(d)
	require.NoError(t, err)
	out, err := r.Render(context.Background(), 0, 72)
	require.NoError(t, err)

	// The line at y=90 lands on row 10.
	assert.Less(t, rgba(out, 150, 10).R, uint8(64))
	assert.Equal(t, uint8(255), rgba(out, 150, 30).R)

	dark := 0
	for y := 40; y < 80; y++ {
		for x := 10; x < 150; x++ {
			if rgba(out, x, y).R < 128 {
				dark++
			}
		}
	}
	assert.Greater(t, dark, 200)
}

func TestRenderHonoursRotationAndResolution(t *testing.T) {
	b := builder.NewBuilder()
	b.NewPage(200, 100).
		SetRotation(90).
		DrawRectangle(0, 0, 20, 20, builder.RectOptions{FillColor: builder.Black, Fill: true})
	d := build(t, b)

	r, err := New(d)
	require.NoError(t, err)
	out, err := r.Render(context.Background(), 0, 144)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 200, 400), out.Bounds())
	// Rotated clockwise, the user-space origin is at the top-left.
	assert.Equal(t, uint8(0), rgba(out, 10, 10).R)
	assert.Equal(t, uint8(255), rgba(out, 190, 390).R)
}

func TestWriteJPEG(t *testing.T) {
	b := builder.NewBuilder()
	b.NewPage(100, 50)
	d := build(t, b)
	r, err := New(d)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, r.WriteJPEG(context.Background(), &buf, 0, 144, 90))
	img, err := jpeg.Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 200, 100), img.Bounds())
}

func TestRenderRejectsBadInput(t *testing.T) {
	b := builder.NewBuilder()
	b.NewPage(100, 100)
	d := build(t, b)
	r, err := New(d)
	require.NoError(t, err)

	_, err = r.Render(context.Background(), 0, 0)
	assert.Error(t, err)
	_, err = r.Render(context.Background(), 3, 72)
	assert.Error(t, err)
	_, err = r.Render(context.Background(), 0, 100000)
	assert.ErrorIs(t, err, ErrPageTooLarge)
}
