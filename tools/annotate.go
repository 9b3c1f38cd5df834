package tools

import (
	"context"
	"encoding/base64"
	"errors"
	"math"
	"strings"

	"github.com/wudi/pdftools/builder"
	"github.com/wudi/pdftools/contentstream"
	"github.com/wudi/pdftools/document"
	"github.com/wudi/pdftools/fonts"
	"github.com/wudi/pdftools/layout"
)

var (
	navy          = builder.Color{B: 0.5}
	errBadDataURL = errors.New("tools: malformed data URL")
)

const (
	signatureMaxWidth = 200.0
	signatureBoxH     = 30.0
	signatureFontSize = 20.0
	editBoxW          = 400.0
	editBoxH          = 200.0
	editFontSize      = 12.0
)

// overlay draws on a page in display space: origin at the bottom-left of
// the page as viewers show it, y up, whatever the page rotation.
type overlay struct {
	page   *document.Page
	canvas *builder.Canvas
	width  float64
	height float64
}

func newOverlay(p *document.Page) (*overlay, error) {
	inv, err := p.DisplayMatrix().Inverse()
	if err != nil {
		return nil, err
	}
	w, h := p.Size()
	c := builder.NewCanvas()
	c.Append(contentstream.Op("q"), contentstream.Op("cm", inv[0], inv[1], inv[2], inv[3], inv[4], inv[5]))
	return &overlay{page: p, canvas: c, width: w, height: h}, nil
}

// fromTop converts a y measured down from the top edge.
func (o *overlay) fromTop(y float64) float64 { return o.height - y }

func (o *overlay) apply(doc *document.Document) error {
	o.canvas.Append(contentstream.Op("Q"))
	return doc.Overlay(o.page, o.canvas)
}

// textBox sets text wrapped to a box whose top-left corner is (x, y) from
// the page's top-left. Lines that do not fit the box height are dropped.
func (o *overlay) textBox(text string, x, y, w, h float64, opts builder.TextOptions) {
	m := fonts.Standard14(opts.Font)
	lead := opts.FontSize * 1.2
	for i, line := range layout.WrapText(m, text, opts.FontSize, w) {
		if float64(i)*lead+opts.FontSize > h {
			break
		}
		if line == "" {
			continue
		}
		o.canvas.DrawText(line, x, o.fromTop(y+opts.FontSize+float64(i)*lead), opts)
	}
}

// targetPage returns the 1-based page n, or the first page when n is out
// of range.
func targetPage(doc *document.Document, n int) (*document.Page, error) {
	if n < 1 || n > doc.NumPages() {
		n = 1
	}
	return doc.Page(n - 1)
}

// Sign places a signature on one page with its top-left corner at (x, y)
// from the page's top-left. A data:image URL is drawn as an image at most
// 200 points wide; anything else is set as navy text.
func Sign(ctx context.Context, in Input) (Output, error) {
	doc, err := openFirst(ctx, in)
	if err != nil {
		return Output{}, err
	}
	p, err := targetPage(doc, in.Params.Int("page"))
	if err != nil {
		return Output{}, err
	}
	o, err := newOverlay(p)
	if err != nil {
		return Output{}, err
	}
	x, y := in.Params.Float("x"), in.Params.Float("y")
	signature := in.Params.String("signature")

	if strings.HasPrefix(signature, "data:image") {
		img, err := decodeDataURL(signature)
		if err != nil {
			return Output{}, Failure("Invalid signature image")
		}
		w := math.Min(float64(img.Width), signatureMaxWidth)
		h := w * float64(img.Height) / float64(img.Width)
		o.canvas.DrawImage(img, x, o.fromTop(y+h), w, h)
	} else if signature != "" {
		o.textBox(signature, x, y, signatureMaxWidth, signatureBoxH, builder.TextOptions{
			Font:     fonts.Helvetica,
			FontSize: signatureFontSize,
			Color:    navy,
		})
	}
	if err := o.apply(doc); err != nil {
		return Output{}, err
	}
	if err := savePDF(ctx, doc, in.Target); err != nil {
		return Output{}, err
	}
	return single(in), nil
}

func decodeDataURL(s string) (*builder.Image, error) {
	_, payload, ok := strings.Cut(s, ",")
	if !ok {
		return nil, errBadDataURL
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, err
	}
	img, err := opaqueImage(data)
	if err != nil {
		return nil, err
	}
	if img.Width == 0 || img.Height == 0 {
		return nil, errBadDataURL
	}
	return img, nil
}

// Watermark sets text diagonally across the centre of every page in light
// grey at the given opacity. Opacity 0 leaves the pages untouched.
func Watermark(ctx context.Context, in Input) (Output, error) {
	doc, err := openFirst(ctx, in)
	if err != nil {
		return Output{}, err
	}
	text := in.Params.String("text")
	opacity := in.Params.Float("opacity")
	if text != "" && opacity > 0 {
		m := fonts.Standard14(fonts.Helvetica)
		for _, p := range doc.Pages() {
			o, err := newOverlay(p)
			if err != nil {
				return Output{}, err
			}
			size := math.Min(o.width, o.height) / 8
			x, y := centredBaseline(m.MeasureText(text, size), size, o.width/2, o.height/2, 45)
			o.canvas.DrawText(text, x, y, builder.TextOptions{
				Font:     fonts.Helvetica,
				FontSize: size,
				Color:    builder.Gray(0.7),
				Opacity:  opacity,
				Rotation: 45,
			})
			if err := o.apply(doc); err != nil {
				return Output{}, err
			}
		}
	}
	if err := savePDF(ctx, doc, in.Target); err != nil {
		return Output{}, err
	}
	return single(in), nil
}

// centredBaseline returns the baseline origin that puts the middle of a
// run width wide and size high at (cx, cy) when rotated deg about the
// origin.
func centredBaseline(width, size, cx, cy, deg float64) (float64, float64) {
	rad := deg * math.Pi / 180
	cos, sin := math.Cos(rad), math.Sin(rad)
	u, v := width/2, size*0.35
	return cx - (u*cos - v*sin), cy - (u*sin + v*cos)
}

// Edit sets text on one page, wrapped in a 400 by 200 point box whose
// top-left corner is (x, y) from the page's top-left.
func Edit(ctx context.Context, in Input) (Output, error) {
	doc, err := openFirst(ctx, in)
	if err != nil {
		return Output{}, err
	}
	if text := in.Params.String("text"); strings.TrimSpace(text) != "" {
		p, err := targetPage(doc, in.Params.Int("page"))
		if err != nil {
			return Output{}, err
		}
		o, err := newOverlay(p)
		if err != nil {
			return Output{}, err
		}
		o.textBox(text, in.Params.Float("x"), in.Params.Float("y"), editBoxW, editBoxH, builder.TextOptions{
			Font:     fonts.Helvetica,
			FontSize: editFontSize,
			Color:    builder.Black,
		})
		if err := o.apply(doc); err != nil {
			return Output{}, err
		}
	}
	if err := savePDF(ctx, doc, in.Target); err != nil {
		return Output{}, err
	}
	return single(in), nil
}
