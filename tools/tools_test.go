package tools

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/wudi/pdftools/apperr"
	"github.com/wudi/pdftools/builder"
	"github.com/wudi/pdftools/document"
	"github.com/wudi/pdftools/extractor"
	"github.com/wudi/pdftools/filters"
	"github.com/wudi/pdftools/ocr"
	"github.com/wudi/pdftools/office"
	"github.com/wudi/pdftools/registry"
)

// fixture writes a PDF whose pages read "Page 1", "Page 2", ... and returns
// its path. Page i is 300+i points wide so pages can be told apart.
func fixture(t *testing.T, n int) string {
	t.Helper()
	b := builder.NewBuilder()
	for i := 1; i <= n; i++ {
		b.NewPage(300+float64(i), 400).DrawText(fmt.Sprintf("Page %d", i), 50, 300, builder.TextOptions{FontSize: 14})
	}
	path := filepath.Join(t.TempDir(), fmt.Sprintf("in%d.pdf", n))
	require.NoError(t, buildPDF(context.Background(), b, path))
	return path
}

// objectStreamFixture writes a PDF 1.5 file whose page tree sits in a
// Flate-compressed object stream behind a cross-reference stream, the
// layout current word processors and browsers produce.
func objectStreamFixture(t *testing.T, widths ...int) string {
	t.Helper()
	kids := make([]string, len(widths))
	objs := []string{""}
	for i, w := range widths {
		kids[i] = fmt.Sprintf("%d 0 R", 3+i)
		objs = append(objs, fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 %d 400] >>", w))
	}
	objs[0] = fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), len(widths))
	var header, body strings.Builder
	for i, o := range objs {
		fmt.Fprintf(&header, "%d %d ", 2+i, body.Len())
		body.WriteString(o + " ")
	}
	packed, err := filters.FlateEncode([]byte(header.String()+body.String()), 6)
	require.NoError(t, err)

	stmNum := 2 + len(objs)
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.5\n")
	catalogAt := buf.Len()
	buf.WriteString("1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj\n")
	stmAt := buf.Len()
	fmt.Fprintf(&buf, "%d 0 obj\n<< /Type /ObjStm /N %d /First %d /Filter /FlateDecode /Length %d >>\nstream\n",
		stmNum, len(objs), header.Len(), len(packed))
	buf.Write(packed)
	buf.WriteString("\nendstream\nendobj\n")

	// W [1 4 1]: type, offset or stream number, generation or index.
	var rows bytes.Buffer
	row := func(typ, f2, f3 int) {
		rows.Write([]byte{byte(typ), byte(f2 >> 24), byte(f2 >> 16), byte(f2 >> 8), byte(f2), byte(f3)})
	}
	xrefAt := buf.Len()
	row(0, 0, 255)
	row(1, catalogAt, 0)
	for i := range objs {
		row(2, stmNum, i)
	}
	row(1, stmAt, 0)
	row(1, xrefAt, 0)
	fmt.Fprintf(&buf, "%d 0 obj\n<< /Type /XRef /Size %d /W [1 4 1] /Root 1 0 R /Length %d >>\nstream\n",
		stmNum+1, stmNum+2, rows.Len())
	buf.Write(rows.Bytes())
	fmt.Fprintf(&buf, "\nendstream\nendobj\nstartxref\n%d\n%%%%EOF\n", xrefAt)

	path := filepath.Join(t.TempDir(), "objstm.pdf")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	return path
}

func target(t *testing.T, name string) string {
	t.Helper()
	return filepath.Join(t.TempDir(), name)
}

func reopen(t *testing.T, path, password string) *document.Document {
	t.Helper()
	doc, err := document.Open(context.Background(), path, password)
	require.NoError(t, err)
	return doc
}

func widths(doc *document.Document) []float64 {
	var out []float64
	for _, p := range doc.Pages() {
		out = append(out, p.MediaBox().Width())
	}
	return out
}

func pageText(t *testing.T, doc *document.Document) []string {
	t.Helper()
	ex, err := extractor.New(doc)
	require.NoError(t, err)
	pages, err := ex.ExtractText(context.Background())
	require.NoError(t, err)
	out := make([]string, len(pages))
	for i, p := range pages {
		out[i] = strings.TrimSpace(p.Content)
	}
	return out
}

func requireFailure(t *testing.T, err error, msg string) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, apperr.OperationFailure, apperr.KindOf(err))
	assert.Equal(t, msg, err.Error())
}

func TestParseRanges(t *testing.T) {
	got, err := ParseRanges(" 1, 3 - 5,,7-6 ")
	require.NoError(t, err)
	assert.Equal(t, []PageRange{{1, 1}, {3, 5}, {7, 6}}, got)

	_, err = ParseRanges("1,x")
	requireFailure(t, err, "Invalid page range: x")
	_, err = ParseRanges("2-")
	require.Error(t, err)
}

func TestSelectPagesDropsOutOfRange(t *testing.T) {
	sel, err := SelectPages("0,2,4-9", 5)
	require.NoError(t, err)
	assert.Equal(t, map[int]bool{1: true, 3: true, 4: true}, sel)

	sel, err = SelectPages("ALL", 3)
	require.NoError(t, err)
	assert.Len(t, sel, 3)
}

func TestSelectPagesStaysInDocument(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(1, 50).Draw(t, "n")
		a := rapid.IntRange(-5, 60).Draw(t, "a")
		b := rapid.IntRange(-5, 60).Draw(t, "b")
		sel, err := SelectPages(fmt.Sprintf("%d-%d", a, b), n)
		if err != nil {
			// Negative starts read as a malformed range.
			return
		}
		for i := range sel {
			if i < 0 || i >= n {
				t.Fatalf("index %d outside %d pages", i, n)
			}
		}
		want := 0
		if lo, hi := max(a, 1), min(b, n); hi >= lo {
			want = hi - lo + 1
		}
		if len(sel) != want {
			t.Fatalf("selected %d pages, want %d", len(sel), want)
		}
	})
}

func TestClampedIndicesRunBothWays(t *testing.T) {
	assert.Equal(t, []int{1, 2, 3}, PageRange{2, 4}.Clamp(10).Indices())
	assert.Equal(t, []int{4, 3, 2}, PageRange{9, 3}.Clamp(5).Indices())
	assert.Equal(t, []int{0}, PageRange{-3, 0}.Clamp(5).Indices())
}

func TestMergeKeepsUploadOrder(t *testing.T) {
	a, b := fixture(t, 2), fixture(t, 1)
	out := target(t, "merged.pdf")
	res, err := Merge(context.Background(), Input{Paths: []string{a, b}, Target: out})
	require.NoError(t, err)
	assert.Equal(t, "merged.pdf", res.Filename)
	assert.Equal(t, []float64{301, 302, 301}, widths(reopen(t, out, "")))
}

func TestMergeThenSplitKeepsPageOrder(t *testing.T) {
	a, b := fixture(t, 2), fixture(t, 3)
	merged := target(t, "merged.pdf")
	_, err := Merge(context.Background(), Input{Paths: []string{a, b}, Target: merged})
	require.NoError(t, err)

	dir := t.TempDir()
	res, err := Split(context.Background(), Input{Paths: []string{merged}, Target: dir, Params: registry.Params{"split_type": "all"}})
	require.NoError(t, err)
	require.Len(t, res.Files, 5)
	var gotWidths []float64
	var gotText []string
	for _, f := range res.Files {
		doc := reopen(t, filepath.Join(dir, f), "")
		require.Equal(t, 1, doc.NumPages())
		gotWidths = append(gotWidths, widths(doc)...)
		gotText = append(gotText, pageText(t, doc)...)
	}
	assert.Equal(t, []float64{301, 302, 301, 302, 303}, gotWidths)
	assert.Equal(t, []string{"Page 1", "Page 2", "Page 1", "Page 2", "Page 3"}, gotText)
}

func TestObjectStreamInput(t *testing.T) {
	src := objectStreamFixture(t, 301, 302, 303)
	assert.Equal(t, []float64{301, 302, 303}, widths(reopen(t, src, "")))

	dir := t.TempDir()
	res, err := Split(context.Background(), Input{Paths: []string{src}, Target: dir, Params: registry.Params{"split_type": "all"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"page_1.pdf", "page_2.pdf", "page_3.pdf"}, res.Files)
	assert.Equal(t, []float64{302}, widths(reopen(t, filepath.Join(dir, "page_2.pdf"), "")))

	out := target(t, "pages_removed.pdf")
	_, err = RemovePages(context.Background(), Input{Paths: []string{src}, Target: out, Params: registry.Params{"pages": "1"}})
	require.NoError(t, err)
	assert.Equal(t, []float64{302, 303}, widths(reopen(t, out, "")))
}

func TestRepeatedRunsWriteIdenticalBytes(t *testing.T) {
	src := fixture(t, 3)
	tk := New()
	dir := t.TempDir()
	rapid.Check(t, func(rt *rapid.T) {
		var (
			run    registry.Capability
			params registry.Params
		)
		switch rapid.IntRange(0, 6).Draw(rt, "tool") {
		case 0:
			run = Merge
		case 1:
			run = Rotate
			params = registry.Params{"angle": rapid.SampledFrom([]int{90, 180, 270}).Draw(rt, "angle"), "pages": "all"}
		case 2:
			run = Crop
			m := rapid.Float64Range(0, 50).Draw(rt, "margin")
			params = registry.Params{"top": m, "bottom": 0.0, "left": m, "right": 0.0}
		case 3:
			run = RemovePages
			params = registry.Params{"pages": fmt.Sprint(rapid.IntRange(1, 3).Draw(rt, "page"))}
		case 4:
			run = Organize
			params = registry.Params{"order": "3, blank, 1"}
		case 5:
			run = Watermark
			params = registry.Params{"text": rapid.StringMatching(`[A-Z]{1,12}`).Draw(rt, "text"), "opacity": 0.3}
		case 6:
			run = tk.Compress
			params = registry.Params{"quality": rapid.SampledFrom([]string{"low", "medium", "high"}).Draw(rt, "quality")}
		}
		first, second := filepath.Join(dir, "first.pdf"), filepath.Join(dir, "second.pdf")
		_, err := run(context.Background(), Input{Paths: []string{src}, Target: first, Params: params})
		require.NoError(rt, err)
		_, err = run(context.Background(), Input{Paths: []string{src}, Target: second, Params: params})
		require.NoError(rt, err)

		a, err := os.ReadFile(first)
		require.NoError(rt, err)
		b, err := os.ReadFile(second)
		require.NoError(rt, err)
		assert.Equal(rt, a, b)
	})
}

func TestSplit(t *testing.T) {
	src := fixture(t, 3)
	t.Run("all", func(t *testing.T) {
		dir := t.TempDir()
		res, err := Split(context.Background(), Input{Paths: []string{src}, Target: dir, Params: registry.Params{"split_type": "all"}})
		require.NoError(t, err)
		assert.Equal(t, []string{"page_1.pdf", "page_2.pdf", "page_3.pdf"}, res.Files)
		assert.Equal(t, []float64{302}, widths(reopen(t, filepath.Join(dir, "page_2.pdf"), "")))
	})
	t.Run("range", func(t *testing.T) {
		dir := t.TempDir()
		params := registry.Params{"split_type": "range", "pages": "2, 1-9, 3-2"}
		res, err := Split(context.Background(), Input{Paths: []string{src}, Target: dir, Params: params})
		require.NoError(t, err)
		assert.Equal(t, []string{"pages_2-2.pdf", "pages_1-3.pdf", "pages_3-2.pdf"}, res.Files)
		assert.Equal(t, []float64{301, 302, 303}, widths(reopen(t, filepath.Join(dir, "pages_1-3.pdf"), "")))
		assert.Equal(t, []float64{303, 302}, widths(reopen(t, filepath.Join(dir, "pages_3-2.pdf"), "")))
	})
	t.Run("empty range", func(t *testing.T) {
		_, err := Split(context.Background(), Input{Paths: []string{src}, Target: t.TempDir(), Params: registry.Params{"split_type": "range", "pages": " "}})
		requireFailure(t, err, "No page ranges specified")
	})
}

func TestRotateAddsToExistingRotation(t *testing.T) {
	b := builder.NewBuilder()
	b.NewPage(200, 300).SetRotation(90)
	b.NewPage(200, 300)
	src := target(t, "in.pdf")
	require.NoError(t, buildPDF(context.Background(), b, src))

	out := target(t, "rotated.pdf")
	_, err := Rotate(context.Background(), Input{Paths: []string{src}, Target: out, Params: registry.Params{"angle": 270, "pages": "1"}})
	require.NoError(t, err)
	doc := reopen(t, out, "")
	assert.Equal(t, 0, doc.Pages()[0].Rotation())
	assert.Equal(t, 0, doc.Pages()[1].Rotation())

	_, err = Rotate(context.Background(), Input{Paths: []string{src}, Target: out, Params: registry.Params{"angle": -90, "pages": "all"}})
	require.NoError(t, err)
	doc = reopen(t, out, "")
	assert.Equal(t, 0, doc.Pages()[0].Rotation())
	assert.Equal(t, 270, doc.Pages()[1].Rotation())
}

func TestCrop(t *testing.T) {
	src := fixture(t, 1)
	out := target(t, "cropped.pdf")
	params := registry.Params{"top": 10.0, "bottom": 20.0, "left": 30.0, "right": 40.0}
	_, err := Crop(context.Background(), Input{Paths: []string{src}, Target: out, Params: params})
	require.NoError(t, err)
	cb := reopen(t, out, "").Pages()[0].CropBox()
	assert.InDelta(t, 30, cb.LLX, 1e-6)
	assert.InDelta(t, 20, cb.LLY, 1e-6)
	assert.InDelta(t, 301-40, cb.URX, 1e-6)
	assert.InDelta(t, 390, cb.URY, 1e-6)

	// A crop that would leave nothing is skipped for that page.
	params = registry.Params{"top": 500.0, "bottom": 0.0, "left": 0.0, "right": 0.0}
	_, err = Crop(context.Background(), Input{Paths: []string{src}, Target: out, Params: params})
	require.NoError(t, err)
	assert.InDelta(t, 400, reopen(t, out, "").Pages()[0].CropBox().Height(), 1e-6)

	// All margins zero leaves every boundary as it was.
	params = registry.Params{"top": 0.0, "bottom": 0.0, "left": 0.0, "right": 0.0}
	_, err = Crop(context.Background(), Input{Paths: []string{src}, Target: out, Params: params})
	require.NoError(t, err)
	page := reopen(t, out, "").Pages()[0]
	assert.False(t, page.Dict.Has("CropBox"))
	assert.Equal(t, reopen(t, src, "").Pages()[0].MediaBox(), page.MediaBox())
	assert.Equal(t, page.MediaBox(), page.CropBox())
}

func TestCropMarginsFollowDisplayedSides(t *testing.T) {
	m := margins{top: 1, right: 2, bottom: 3, left: 4}
	assert.Equal(t, m, m.rotate(0))
	// Rotated 90 clockwise, the displayed top is the user space left edge.
	assert.Equal(t, 1.0, m.rotate(90).left)
	assert.Equal(t, 1.0, m.rotate(180).bottom)
	assert.Equal(t, 1.0, m.rotate(270).right)
}

func TestRemovePages(t *testing.T) {
	src := fixture(t, 4)
	out := target(t, "pages_removed.pdf")
	_, err := RemovePages(context.Background(), Input{Paths: []string{src}, Target: out, Params: registry.Params{"pages": "2-3,9"}})
	require.NoError(t, err)
	assert.Equal(t, []float64{301, 304}, widths(reopen(t, out, "")))

	_, err = RemovePages(context.Background(), Input{Paths: []string{src}, Target: out, Params: registry.Params{"pages": ""}})
	requireFailure(t, err, "No pages specified")
	_, err = RemovePages(context.Background(), Input{Paths: []string{src}, Target: out, Params: registry.Params{"pages": "1-4"}})
	requireFailure(t, err, "Cannot remove all pages from PDF")
}

func TestOrganize(t *testing.T) {
	src := fixture(t, 3)
	out := target(t, "organized.pdf")
	_, err := Organize(context.Background(), Input{Paths: []string{src}, Target: out, Params: registry.Params{"order": "3, blank, 1, 3, 7"}})
	require.NoError(t, err)
	doc := reopen(t, out, "")
	assert.Equal(t, []float64{303, 301, 301, 303}, widths(doc))
	assert.Empty(t, pageText(t, doc)[1])

	_, err = Organize(context.Background(), Input{Paths: []string{src}, Target: out, Params: registry.Params{"order": ""}})
	requireFailure(t, err, "No page order specified")
	_, err = Organize(context.Background(), Input{Paths: []string{src}, Target: out, Params: registry.Params{"order": "8,9"}})
	requireFailure(t, err, "Invalid page order")
	_, err = Organize(context.Background(), Input{Paths: []string{src}, Target: out, Params: registry.Params{"order": "1,two"}})
	requireFailure(t, err, "Invalid page order")
}

func TestProtectThenUnlock(t *testing.T) {
	src := fixture(t, 2)
	locked := target(t, "protected.pdf")
	_, err := Protect(context.Background(), Input{Paths: []string{src}, Target: locked, Params: registry.Params{"password": "s3cret"}})
	require.NoError(t, err)
	assert.True(t, reopen(t, locked, "s3cret").Encrypted())

	// Every other tool sees a protected file.
	_, err = Rotate(context.Background(), Input{Paths: []string{locked}, Target: target(t, "r.pdf"), Params: registry.Params{"angle": 90, "pages": "all"}})
	requireFailure(t, err, "PDF is password protected")

	_, err = Unlock(context.Background(), Input{Paths: []string{locked}, Target: target(t, "u.pdf"), Params: registry.Params{"password": "wrong"}})
	requireFailure(t, err, "Incorrect password")
	_, err = Unlock(context.Background(), Input{Paths: []string{locked}, Target: target(t, "u.pdf"), Params: registry.Params{"password": ""}})
	requireFailure(t, err, "Incorrect password")

	out := target(t, "unlocked.pdf")
	_, err = Unlock(context.Background(), Input{Paths: []string{locked}, Target: out, Params: registry.Params{"password": "s3cret"}})
	require.NoError(t, err)
	doc := reopen(t, out, "")
	assert.False(t, doc.Encrypted())
	assert.Equal(t, []string{"Page 1", "Page 2"}, pageText(t, doc))

	_, err = Protect(context.Background(), Input{Paths: []string{src}, Target: locked, Params: registry.Params{"password": ""}})
	requireFailure(t, err, "Password is required")
}

func TestNotAPDF(t *testing.T) {
	path := target(t, "fake.pdf")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))
	_, err := Rotate(context.Background(), Input{Paths: []string{path}, Target: target(t, "x.pdf"), Params: registry.Params{"angle": 90}})
	assert.Equal(t, apperr.OperationFailure, apperr.KindOf(err))
}

func TestCompressNeverGrows(t *testing.T) {
	src := fixture(t, 2)
	out := target(t, "compressed.pdf")
	res, err := New().Compress(context.Background(), Input{Paths: []string{src}, Target: out, Params: registry.Params{"quality": "low"}})
	require.NoError(t, err)
	before, _ := os.Stat(src)
	after, _ := os.Stat(out)
	assert.LessOrEqual(t, after.Size(), before.Size())
	assert.Equal(t, before.Size(), res.Extra["original_size"])
	assert.Equal(t, after.Size(), res.Extra["new_size"])
	assert.GreaterOrEqual(t, res.Extra["reduction"], 0.0)
}

func TestWatermarkSignEdit(t *testing.T) {
	src := fixture(t, 2)
	ctx := context.Background()

	out := target(t, "watermarked.pdf")
	_, err := Watermark(ctx, Input{Paths: []string{src}, Target: out, Params: registry.Params{"text": "DRAFT", "opacity": 0.3}})
	require.NoError(t, err)
	for _, text := range pageText(t, reopen(t, out, "")) {
		assert.Contains(t, text, "DRAFT")
	}

	out = target(t, "edited.pdf")
	params := registry.Params{"text": "hello there", "x": 20.0, "y": 30.0, "page": 2}
	_, err = Edit(ctx, Input{Paths: []string{src}, Target: out, Params: params})
	require.NoError(t, err)
	texts := pageText(t, reopen(t, out, ""))
	assert.NotContains(t, texts[0], "hello there")
	assert.Contains(t, texts[1], "hello there")

	out = target(t, "signed.pdf")
	params = registry.Params{"signature": "J. Doe", "x": 100.0, "y": 100.0, "page": 99}
	_, err = Sign(ctx, Input{Paths: []string{src}, Target: out, Params: params})
	require.NoError(t, err)
	assert.Contains(t, pageText(t, reopen(t, out, ""))[0], "J. Doe")
}

func TestSignWithImage(t *testing.T) {
	var buf bytes.Buffer
	img := image.NewNRGBA(image.Rect(0, 0, 400, 100))
	img.Set(10, 10, color.NRGBA{A: 255})
	require.NoError(t, png.Encode(&buf, img))
	url := "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())

	out := target(t, "signed.pdf")
	_, err := Sign(context.Background(), Input{Paths: []string{fixture(t, 1)}, Target: out, Params: registry.Params{"signature": url, "x": 10.0, "y": 10.0, "page": 1}})
	require.NoError(t, err)
	ex, err := extractor.New(reopen(t, out, ""))
	require.NoError(t, err)
	imgs, err := ex.ExtractImages(context.Background())
	require.NoError(t, err)
	require.Len(t, imgs, 1)
	assert.Equal(t, 400, imgs[0].Width)

	_, err = Sign(context.Background(), Input{Paths: []string{fixture(t, 1)}, Target: out, Params: registry.Params{"signature": "data:image/png;base64,!!", "page": 1}})
	requireFailure(t, err, "Invalid signature image")
}

func TestCentredBaseline(t *testing.T) {
	x, y := centredBaseline(100, 20, 300, 400, 0)
	assert.InDelta(t, 250, x, 1e-9)
	assert.InDelta(t, 393, y, 1e-9)
}

func TestJPGToPDF(t *testing.T) {
	dir := t.TempDir()
	var paths []string
	for i, size := range []int{40, 80} {
		var buf bytes.Buffer
		require.NoError(t, png.Encode(&buf, image.NewNRGBA(image.Rect(0, 0, size, size/2))))
		p := filepath.Join(dir, fmt.Sprintf("img%d.png", i))
		require.NoError(t, os.WriteFile(p, buf.Bytes(), 0o644))
		paths = append(paths, p)
	}
	out := target(t, "images.pdf")
	_, err := JPGToPDF(context.Background(), Input{Paths: paths, Target: out})
	require.NoError(t, err)
	assert.Equal(t, []float64{40, 80}, widths(reopen(t, out, "")))

	bad := filepath.Join(dir, "bad.jpg")
	require.NoError(t, os.WriteFile(bad, []byte("nope"), 0o644))
	_, err = JPGToPDF(context.Background(), Input{Paths: []string{bad}, Target: out})
	requireFailure(t, err, "Unsupported image: bad.jpg")
}

func TestPDFToWordAndExcel(t *testing.T) {
	src := fixture(t, 2)
	ctx := context.Background()

	out := target(t, "document.docx")
	_, err := PDFToWord(ctx, Input{Paths: []string{src}, Target: out})
	require.NoError(t, err)
	doc, err := office.OpenDocx(out)
	require.NoError(t, err)
	var paras []string
	breaks := 0
	for _, b := range doc.Blocks {
		switch b.Kind {
		case office.Paragraph:
			paras = append(paras, b.Text)
		case office.PageBreak:
			breaks++
		}
	}
	assert.Equal(t, []string{"Page 1", "Page 2"}, paras)
	assert.Equal(t, 1, breaks)

	out = target(t, "spreadsheet.xlsx")
	_, err = PDFToExcel(ctx, Input{Paths: []string{src}, Target: out})
	require.NoError(t, err)
	sheets, err := office.OpenWorkbook(out)
	require.NoError(t, err)
	require.Len(t, sheets, 2)
	assert.Equal(t, "Page 2", sheets[1].Name)
	assert.Equal(t, [][]string{{"Page", "2"}}, normalizeRows(sheets[1].Rows))
}

func TestPDFToPowerPoint(t *testing.T) {
	flat, err := builder.FromImage(image.NewGray(image.Rect(0, 0, 4, 4)))
	require.NoError(t, err)
	b := builder.NewBuilder()
	b.NewPage(600, 400).
		DrawText("Quarterly review", 50, 300, builder.TextOptions{FontSize: 24}).
		DrawImage(flat, 100, 50, 200, 100)
	b.NewPage(600, 400).DrawText("Next steps", 50, 300, builder.TextOptions{FontSize: 12})
	src := target(t, "deck.pdf")
	require.NoError(t, buildPDF(context.Background(), b, src))

	out := target(t, "presentation.pptx")
	res, err := PDFToPowerPoint(context.Background(), Input{Paths: []string{src}, Target: out})
	require.NoError(t, err)
	assert.Equal(t, "presentation.pptx", res.Filename)

	slides, err := office.OpenPptx(out)
	require.NoError(t, err)
	require.Len(t, slides, 2)
	assert.Equal(t, []office.Block{{Kind: office.Paragraph, Text: "Quarterly review"}}, slides[0].Blocks)
	assert.Equal(t, []office.Block{{Kind: office.Paragraph, Text: "Next steps"}}, slides[1].Blocks)

	zr, err := zip.OpenReader(out)
	require.NoError(t, err)
	defer zr.Close()
	var names []string
	var slide []byte
	for _, f := range zr.File {
		names = append(names, f.Name)
		if f.Name == "ppt/slides/slide1.xml" {
			rc, err := f.Open()
			require.NoError(t, err)
			slide, err = io.ReadAll(rc)
			rc.Close()
			require.NoError(t, err)
		}
	}
	assert.Contains(t, names, "ppt/media/image1.png")
	// The picture sits 100pt from the left and 250pt from the top.
	assert.Contains(t, string(slide), `<a:off x="1270000" y="3175000"/><a:ext cx="2540000" cy="1270000"/>`)

	_, err = PDFToPowerPoint(context.Background(), Input{Paths: []string{target(t, "missing.pdf")}, Target: out})
	assert.Error(t, err)
}

// normalizeRows splits cells on spaces so assertions do not depend on how
// the extractor grouped words into cells.
func normalizeRows(rows [][]string) [][]string {
	var out [][]string
	for _, r := range rows {
		out = append(out, strings.Fields(strings.Join(r, " ")))
	}
	return out
}

func TestOfficeToPDF(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	docx := filepath.Join(dir, "in.docx")
	w := office.NewDocxWriter()
	w.Heading("Quarterly", 1)
	w.Paragraph("Revenue grew.")
	f, err := os.Create(docx)
	require.NoError(t, err)
	_, err = w.WriteTo(f)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	out := target(t, "document.pdf")
	_, err = WordToPDF(ctx, Input{Paths: []string{docx}, Target: out})
	require.NoError(t, err)
	text := strings.Join(pageText(t, reopen(t, out, "")), "\n")
	assert.Contains(t, text, "Quarterly")
	assert.Contains(t, text, "Revenue grew.")

	xlsx := filepath.Join(dir, "in.xlsx")
	f, err = os.Create(xlsx)
	require.NoError(t, err)
	require.NoError(t, office.WriteWorkbook(f, []office.Sheet{{Name: "Data", Rows: [][]string{{"a", "b"}, {"1", "2"}}}}))
	require.NoError(t, f.Close())

	out = target(t, "spreadsheet.pdf")
	_, err = ExcelToPDF(ctx, Input{Paths: []string{xlsx}, Target: out})
	require.NoError(t, err)
	doc := reopen(t, out, "")
	assert.InDelta(t, 792, doc.Pages()[0].MediaBox().Width(), 1e-6)
	assert.Contains(t, pageText(t, doc)[0], "Sheet: Data")

	_, err = WordToPDF(ctx, Input{Paths: []string{xlsx}, Target: out})
	requireFailure(t, err, "Invalid Word document: in.xlsx")
}

type fakeOCR struct{ text map[int]string }

func (fakeOCR) Name() string { return "fake" }

func (f fakeOCR) Recognize(_ context.Context, in ocr.Input) (ocr.Result, error) {
	return ocr.Result{PlainText: f.text[in.PageIndex], Language: strings.Join(in.Languages, "+")}, nil
}

func TestOCR(t *testing.T) {
	src := fixture(t, 2)
	tk := New(WithOCR(fakeOCR{text: map[int]string{0: "first line\n\n second", 1: "more"}}, "deu"))
	out := target(t, "ocr_result.pdf")
	_, err := tk.OCR(context.Background(), Input{Paths: []string{src}, Target: out, Params: registry.Params{}})
	require.NoError(t, err)
	texts := pageText(t, reopen(t, out, ""))
	require.Len(t, texts, 2)
	assert.Contains(t, texts[0], "Page 1")
	assert.Contains(t, texts[0], "second")
	assert.Contains(t, texts[1], "more")

	empty := New(WithOCR(fakeOCR{}, ""))
	_, err = empty.OCR(context.Background(), Input{Paths: []string{src}, Target: out, Params: registry.Params{"language": "eng"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"No text found via OCR"}, pageText(t, reopen(t, out, "")))

	_, err = New().OCR(context.Background(), Input{Paths: []string{src}, Target: out})
	requireFailure(t, err, "OCR is not available")
}

func TestExtract(t *testing.T) {
	src := fixture(t, 2)
	tk := New()

	dir := t.TempDir()
	res, err := tk.Extract(context.Background(), Input{Paths: []string{src}, Target: dir, Params: registry.Params{"extract_type": "text"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"extracted_text.txt"}, res.Files)
	data, err := os.ReadFile(filepath.Join(dir, "extracted_text.txt"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "--- Page 1 ---\nPage 1"))
	assert.Contains(t, string(data), "--- Page 2 ---\nPage 2")

	_, err = tk.Extract(context.Background(), Input{Paths: []string{src}, Target: t.TempDir(), Params: registry.Params{"extract_type": "images"}})
	requireFailure(t, err, "No images found in PDF")
}

func TestPDFToJPG(t *testing.T) {
	dir := t.TempDir()
	res, err := New().PDFToJPG(context.Background(), Input{Paths: []string{fixture(t, 2)}, Target: dir, Params: registry.Params{"dpi": 72}})
	require.NoError(t, err)
	assert.Equal(t, []string{"page_1.jpg", "page_2.jpg"}, res.Files)
	f, err := os.Open(filepath.Join(dir, "page_2.jpg"))
	require.NoError(t, err)
	defer f.Close()
	cfg, format, err := image.DecodeConfig(f)
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
	assert.Equal(t, 302, cfg.Width)
}

func TestCatalogBuildsRegistry(t *testing.T) {
	reg, err := registry.New(New().Catalog()...)
	require.NoError(t, err)
	assert.Equal(t, 22, reg.Len())

	var ids []string
	for _, s := range reg.Catalog() {
		ids = append(ids, s.ID)
	}
	assert.Equal(t, "merge", ids[0])
	sort.Strings(ids)
	assert.Contains(t, ids, "pdf-to-excel")

	spec, err := reg.Resolve("compress")
	require.NoError(t, err)
	params, err := spec.Coerce(map[string]string{"quality": "Extreme"})
	require.NoError(t, err)
	assert.Equal(t, "low", params.String("quality"))

	spec, err = reg.Resolve("rotate")
	require.NoError(t, err)
	_, err = spec.Coerce(map[string]string{"angle": "45"})
	assert.Error(t, err)
}
