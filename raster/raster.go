// Package raster renders pages to bitmaps without external tools. It
// fills and strokes paths, draws images and paints text with a built-in
// outline font spaced to the document's glyph widths, which is close
// enough for thumbnails, JPEG export and OCR input.
package raster

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"math"

	"golang.org/x/image/draw"

	"github.com/wudi/pdftools/contentstream"
	"github.com/wudi/pdftools/coords"
	"github.com/wudi/pdftools/document"
	"github.com/wudi/pdftools/extractor"
	"github.com/wudi/pdftools/fonts"
	"github.com/wudi/pdftools/observability"
)

// ErrPageTooLarge is returned when the requested resolution would need an
// unreasonable amount of memory.
var ErrPageTooLarge = errors.New("raster: page too large at requested resolution")

const (
	maxPixels    = 80_000_000
	maxFormDepth = 8
)

// Renderer draws the pages of one document. It caches fonts and is not
// safe for concurrent use.
type Renderer struct {
	doc     *document.Document
	text    *extractor.Extractor
	outline *fonts.Outline
	logger  observability.Logger
}

// Option configures a Renderer.
type Option func(*Renderer)

// WithLogger sets the logger for skipped content.
func WithLogger(l observability.Logger) Option {
	return func(r *Renderer) { r.logger = l }
}

// WithOutline replaces the font used to draw glyphs.
func WithOutline(o *fonts.Outline) Option {
	return func(r *Renderer) { r.outline = o }
}

func New(doc *document.Document, opts ...Option) (*Renderer, error) {
	ex, err := extractor.New(doc)
	if err != nil {
		return nil, err
	}
	r := &Renderer{doc: doc, text: ex, outline: fonts.DefaultOutline(), logger: observability.NopLogger{}}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Render draws the page at 0-based index i on a white background. The
// bitmap has the page's displayed orientation; dpi is pixels per inch.
func (r *Renderer) Render(ctx context.Context, i int, dpi float64) (*image.RGBA, error) {
	if dpi <= 0 {
		return nil, fmt.Errorf("raster: invalid resolution %v", dpi)
	}
	p, err := r.doc.Page(i)
	if err != nil {
		return nil, err
	}
	w, h := p.Size()
	s := dpi / 72
	pw, ph := max(1, int(math.Ceil(w*s))), max(1, int(math.Ceil(h*s)))
	if pw*ph > maxPixels {
		return nil, ErrPageTooLarge
	}
	dst := image.NewRGBA(image.Rect(0, 0, pw, ph))
	draw.Draw(dst, dst.Bounds(), image.White, image.Point{}, draw.Src)

	// Display space has y up; bitmaps have y down.
	base := p.DisplayMatrix().Multiply(coords.Matrix{s, 0, 0, -s, 0, float64(ph)})
	ops, _ := contentstream.Parse(p.ContentData(ctx))
	pt := &painter{r: r, ctx: ctx, dst: dst, glyphs: make(map[rune]*glyphOutline)}
	if err := pt.process(ops, contentstream.NewExecutionContext(base, p.Resources())); err != nil {
		return nil, err
	}
	return dst, nil
}

// WriteJPEG renders page i and encodes it as JPEG.
func (r *Renderer) WriteJPEG(ctx context.Context, w io.Writer, i int, dpi float64, quality int) error {
	img, err := r.Render(ctx, i, dpi)
	if err != nil {
		return err
	}
	return jpeg.Encode(w, img, &jpeg.Options{Quality: quality})
}

func toNRGBA(c contentstream.RGB, alpha float64) color.NRGBA {
	return color.NRGBA{R: unit(c.R), G: unit(c.G), B: unit(c.B), A: unit(alpha)}
}

func unit(v float64) uint8 {
	return uint8(math.Round(math.Max(0, math.Min(1, v)) * 255))
}
