package builder

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wudi/pdftools/contentstream"
	"github.com/wudi/pdftools/ir/raw"
	"github.com/wudi/pdftools/parser"
	"github.com/wudi/pdftools/writer"
)

func roundTrip(t *testing.T, doc *raw.Document) *raw.Document {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, (&writer.WriterBuilder{}).Build().Write(context.Background(), doc, &buf, writer.Config{Compression: 6}))
	out, err := parser.NewDocumentParser(parser.Config{}).Parse(context.Background(), buf.Bytes())
	require.NoError(t, err)
	return out
}

func TestBuildPagesWithText(t *testing.T) {
	b := NewBuilder()
	b.NewPage(612, 792).
		DrawText("Hello", 72, 720, TextOptions{FontSize: 14}).
		DrawRectangle(10, 10, 50, 20, RectOptions{Fill: true, FillColor: Gray(0.5)}).
		Finish()
	b.NewPage(300, 400).SetRotation(-90).DrawLine(0, 0, 10, 10, LineOptions{LineWidth: 2})
	b.SetInfo(Info{Title: "Report", Created: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)})
	assert.Equal(t, 2, b.PageCount())

	doc, err := b.Build()
	require.NoError(t, err)
	out := roundTrip(t, doc)

	pages := out.DictOf(out.Root().Get("Pages"))
	assert.Equal(t, 2, out.IntOf(pages.Get("Count"), 0))
	second := out.DictOf(out.ArrayOf(pages.Get("Kids")).Get(1))
	assert.Equal(t, 270, out.IntOf(second.Get("Rotate"), 0))

	first := out.DictOf(out.ArrayOf(pages.Get("Kids")).Get(0))
	fonts := out.DictOf(out.DictOf(first.Get("Resources")).Get("Font"))
	require.NotNil(t, fonts)
	assert.Equal(t, "Helvetica", out.NameOf(out.DictOf(fonts.Get("F1")).Get("BaseFont")))

	info := out.DictOf(out.Trailer.Get("Info"))
	date, _ := out.StringOf(info.Get("CreationDate"))
	assert.Equal(t, "D:20240102030405Z", string(date))
}

func TestBuildWithoutPages(t *testing.T) {
	_, err := NewBuilder().Build()
	assert.ErrorIs(t, err, ErrNoPages)
}

func TestCanvasTextOptions(t *testing.T) {
	c := NewCanvas()
	c.DrawText("Café", 10, 20, TextOptions{Rotation: 90, Opacity: 0.3, Font: "Helvetica-Bold"})
	ops := c.Operations()
	var names []string
	for _, op := range ops {
		names = append(names, op.Operator)
	}
	assert.Equal(t, []string{"q", "gs", "BT", "Tf", "rg", "Tm", "Tj", "ET", "Q"}, names)

	tm := ops[5].Operands
	assert.Equal(t, raw.Number(0), tm[0])
	assert.Equal(t, raw.Number(1), tm[1])
	assert.Equal(t, raw.Number(-1), tm[2])
	assert.Equal(t, []byte{'C', 'a', 'f', 0xE9}, ops[6].Operands[0].(raw.StringObj).Bytes)

	doc := raw.NewDocument()
	res := c.Resources(doc)
	gs := res.Get("ExtGState").(*raw.DictObj).Get("GS1").(*raw.DictObj)
	assert.Equal(t, 0.3, gs.Get("ca").(raw.NumberObj).Float())
}

func TestCanvasReusesResources(t *testing.T) {
	c := NewCanvas()
	img := &Image{Width: 1, Height: 1, ColorSpace: "DeviceGray", BitsPerComponent: 8, Data: []byte{0}}
	c.DrawImage(img, 0, 0, 10, 10).DrawImage(img, 20, 0, 10, 10)
	c.DrawText("a", 0, 0, TextOptions{}).DrawText("b", 0, 10, TextOptions{Font: "Helvetica"})
	assert.Equal(t, "F1", c.Font(""))

	doc := raw.NewDocument()
	res := c.Resources(doc)
	assert.Len(t, res.Get("XObject").(*raw.DictObj).Keys(), 1)
	assert.Len(t, res.Get("Font").(*raw.DictObj).Keys(), 1)

	ops, err := contentstream.Parse(c.Content().Data)
	require.NoError(t, err)
	assert.Equal(t, "Do", ops[2].Operator)
}

func TestDecodeImagePNGWithAlpha(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 4, 3))
	src.Set(1, 1, color.NRGBA{R: 255, A: 128})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, src))

	img, err := DecodeImage(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, 4, img.Width)
	assert.Equal(t, "DeviceRGB", img.ColorSpace)
	assert.Equal(t, "FlateDecode", img.Filter)
	require.NotNil(t, img.SMask)
	assert.Equal(t, "DeviceGray", img.SMask.ColorSpace)

	doc := raw.NewDocument()
	ref := img.AddTo(doc)
	stm := doc.StreamOf(ref)
	require.NotNil(t, stm)
	assert.NotNil(t, doc.StreamOf(stm.Dict.Get("SMask")))
}

func TestDecodeImageJPEGPassthrough(t *testing.T) {
	src := image.NewGray(image.Rect(0, 0, 8, 8))
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, src, nil))

	img, err := DecodeImage(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, "DCTDecode", img.Filter)
	assert.Equal(t, "DeviceGray", img.ColorSpace)
	assert.Equal(t, buf.Bytes(), img.Data)
}

func TestDecodeImageRejectsGarbage(t *testing.T) {
	_, err := DecodeImage([]byte("not an image"))
	assert.Error(t, err)
}

func TestTextString(t *testing.T) {
	assert.Equal(t, []byte("abc"), TextString("abc"))
	assert.Equal(t, []byte{0xFE, 0xFF, 0x00, 0xE9}, TextString("é"))
	assert.Equal(t, 90, NormalizeRotation(-270))
}
