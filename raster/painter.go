package raster

import (
	"context"
	"image"
	"image/color"
	"math"
	"unicode/utf8"

	"golang.org/x/image/draw"
	"golang.org/x/image/font/sfnt"
	"golang.org/x/image/math/f64"
	"golang.org/x/image/math/fixed"

	"github.com/wudi/pdftools/contentstream"
	"github.com/wudi/pdftools/coords"
	"github.com/wudi/pdftools/document"
	"github.com/wudi/pdftools/extractor"
	"github.com/wudi/pdftools/ir/raw"
	"github.com/wudi/pdftools/observability"
)

// outlinePPEM is the size glyph outlines are loaded at; one pixel is one
// thousandth of an em, the unit of PDF glyph widths.
const outlinePPEM = 1000

type glyphOutline struct {
	segs    sfnt.Segments
	advance float64 // thousandths of an em
}

type painter struct {
	r      *Renderer
	ctx    context.Context
	dst    *image.RGBA
	glyphs map[rune]*glyphOutline
	depth  int
}

func (pt *painter) process(ops []contentstream.Operation, ec *contentstream.ExecutionContext) error {
	p := contentstream.NewProcessor()
	paint := contentstream.HandlerFunc(pt.paint)
	for _, op := range []string{"f", "F", "f*", "B", "B*", "b", "b*", "S", "s"} {
		p.RegisterHandler(op, paint)
	}
	show := contentstream.HandlerFunc(pt.show)
	for _, op := range []string{"Tj", "TJ", "'", "\""} {
		p.RegisterHandler(op, show)
	}
	p.RegisterHandler("gs", contentstream.HandlerFunc(pt.extGState))
	p.RegisterHandler("Do", contentstream.HandlerFunc(pt.xobject))
	return p.Process(pt.ctx, ops, ec)
}

func (pt *painter) paint(ec *contentstream.ExecutionContext, op contentstream.Operation) error {
	gs := ec.GraphicsState
	closeAll := op.Operator == "s" || op.Operator == "b" || op.Operator == "b*"
	s := fromPath(ec.Path, closeAll)
	if doFill, _ := contentstream.IsFill(op.Operator); doFill {
		fill(pt.dst, s, toNRGBA(gs.FillColor, gs.FillAlpha))
	}
	if contentstream.IsStroke(op.Operator) {
		width := gs.LineWidth * gs.CTM.ScaleFactor()
		stroke(pt.dst, s, width, toNRGBA(gs.StrokeColor, gs.StrokeAlpha))
	}
	return nil
}

// extGState applies the constant alpha entries of a graphics state
// parameter dictionary.
func (pt *painter) extGState(ec *contentstream.ExecutionContext, op contentstream.Operation) error {
	if len(op.Operands) == 0 || ec.Resources == nil {
		return nil
	}
	name, ok := op.Operands[0].(raw.NameObj)
	if !ok {
		return nil
	}
	rd := pt.r.doc.Raw
	states := rd.DictOf(ec.Resources.Get("ExtGState"))
	if states == nil {
		return nil
	}
	d := rd.DictOf(states.Get(name.Val))
	if d == nil {
		return nil
	}
	if v, ok := rd.NumberOf(d.Get("ca")); ok {
		ec.GraphicsState.FillAlpha = v
	}
	if v, ok := rd.NumberOf(d.Get("CA")); ok {
		ec.GraphicsState.StrokeAlpha = v
	}
	if v, ok := rd.NumberOf(d.Get("LW")); ok {
		ec.GraphicsState.LineWidth = v
	}
	return nil
}

func (pt *painter) xobject(ec *contentstream.ExecutionContext, op contentstream.Operation) error {
	if len(op.Operands) == 0 || ec.Resources == nil {
		return nil
	}
	name, ok := op.Operands[0].(raw.NameObj)
	if !ok {
		return nil
	}
	rd := pt.r.doc.Raw
	xd := rd.DictOf(ec.Resources.Get("XObject"))
	if xd == nil {
		return nil
	}
	stm := rd.StreamOf(xd.Get(name.Val))
	if stm == nil {
		return nil
	}
	switch rd.NameOf(stm.Dict.Get("Subtype")) {
	case "Image":
		if err := pt.drawImage(ec, stm); err != nil {
			pt.r.logger.Debug("image skipped", observability.String("name", name.Val), observability.Error("error", err))
		}
	case "Form":
		return pt.form(ec, stm)
	}
	return nil
}

func (pt *painter) form(ec *contentstream.ExecutionContext, stm *raw.StreamObj) error {
	if pt.depth >= maxFormDepth {
		return nil
	}
	rd := pt.r.doc.Raw
	data, err := document.DecodeStream(pt.ctx, rd, stm)
	if err != nil {
		return nil
	}
	ops, _ := contentstream.Parse(data)
	resources := rd.DictOf(stm.Dict.Get("Resources"))
	if resources == nil {
		resources = ec.Resources
	}
	gs := ec.GraphicsState
	sub := contentstream.NewExecutionContext(extractor.FormMatrix(rd, stm.Dict).Multiply(gs.CTM), resources)
	sub.GraphicsState.FillColor, sub.GraphicsState.StrokeColor = gs.FillColor, gs.StrokeColor
	sub.GraphicsState.FillAlpha, sub.GraphicsState.StrokeAlpha = gs.FillAlpha, gs.StrokeAlpha
	sub.GraphicsState.LineWidth = gs.LineWidth
	pt.depth++
	defer func() { pt.depth-- }()
	return pt.process(ops, sub)
}

// drawImage maps the image's unit square through the CTM onto the page.
func (pt *painter) drawImage(ec *contentstream.ExecutionContext, stm *raw.StreamObj) error {
	src, err := pt.imageSource(ec.GraphicsState, stm)
	if err != nil {
		return err
	}
	b := src.Bounds()
	m := coords.Matrix{1 / float64(b.Dx()), 0, 0, -1 / float64(b.Dy()), 0, 1}.Multiply(ec.GraphicsState.CTM)
	if det := m[0]*m[3] - m[1]*m[2]; math.Abs(det) < 1e-9 || math.IsNaN(det) {
		return nil
	}
	s2d := f64.Aff3{m[0], m[2], m[4], m[1], m[3], m[5]}
	draw.ApproxBiLinear.Transform(pt.dst, s2d, src, b, draw.Over, nil)
	return nil
}

// imageSource decodes an image XObject to straight-alpha pixels, applying
// its soft mask and the fill alpha. Stencil masks paint the fill colour.
func (pt *painter) imageSource(gs *contentstream.GraphicsState, stm *raw.StreamObj) (*image.NRGBA, error) {
	rd := pt.r.doc.Raw
	asset, err := extractor.LoadImage(pt.ctx, rd, stm)
	if err != nil {
		return nil, err
	}
	img, err := asset.ToImage()
	if err != nil {
		return nil, err
	}
	b := img.Bounds()
	out := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	if asset.Mask {
		c := toNRGBA(gs.FillColor, gs.FillAlpha)
		for y := 0; y < b.Dy(); y++ {
			for x := 0; x < b.Dx(); x++ {
				g := color.GrayModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.Gray)
				// Zero samples paint.
				a := uint8(uint16(255-g.Y) * uint16(c.A) / 255)
				out.SetNRGBA(x, y, color.NRGBA{R: c.R, G: c.G, B: c.B, A: a})
			}
		}
		return out, nil
	}
	draw.Draw(out, out.Bounds(), img, b.Min, draw.Src)

	if smask := rd.StreamOf(stm.Dict.Get("SMask")); smask != nil {
		if alpha, err := pt.softMask(smask, out.Bounds()); err == nil {
			for i := 3; i < len(out.Pix); i += 4 {
				out.Pix[i] = uint8(uint16(out.Pix[i]) * uint16(alpha.Pix[i/4]) / 255)
			}
		}
	}
	if a := unit(gs.FillAlpha); a < 255 {
		for i := 3; i < len(out.Pix); i += 4 {
			out.Pix[i] = uint8(uint16(out.Pix[i]) * uint16(a) / 255)
		}
	}
	return out, nil
}

// softMask decodes a soft mask as grey levels, resampled to the image size
// when the two differ.
func (pt *painter) softMask(stm *raw.StreamObj, size image.Rectangle) (*image.Gray, error) {
	asset, err := extractor.LoadImage(pt.ctx, pt.r.doc.Raw, stm)
	if err != nil {
		return nil, err
	}
	img, err := asset.ToImage()
	if err != nil {
		return nil, err
	}
	out := image.NewGray(size)
	if img.Bounds().Size() == size.Size() {
		draw.Draw(out, size, img, img.Bounds().Min, draw.Src)
	} else {
		draw.ApproxBiLinear.Scale(out, size, img, img.Bounds(), draw.Src, nil)
	}
	return out, nil
}

func (pt *painter) show(ec *contentstream.ExecutionContext, op contentstream.Operation) error {
	if len(op.Operands) == 0 {
		return nil
	}
	ts := ec.TextState
	font := pt.r.text.Font(pt.ctx, ec.Resources, ts.Font)
	parts := op.Operands[len(op.Operands)-1:]
	if op.Operator == "TJ" {
		arr, ok := op.Operands[0].(*raw.ArrayObj)
		if !ok {
			return nil
		}
		parts = arr.Items
	}
	visible := ts.RenderMode != contentstream.TextInvisible && ts.RenderMode != contentstream.TextClip
	gs := ec.GraphicsState
	c := toNRGBA(gs.FillColor, gs.FillAlpha)
	if ts.RenderMode == contentstream.TextStroke || ts.RenderMode == contentstream.TextStrokeClip {
		c = toNRGBA(gs.StrokeColor, gs.StrokeAlpha)
	}
	for _, part := range parts {
		switch v := part.(type) {
		case raw.StringObj:
			for _, g := range font.Decode(v.Bytes) {
				if visible && !g.Space {
					pt.drawGlyph(ec.RenderingMatrix(), g, c)
				}
				ts.Advance(g.Width, g.Space)
			}
		case raw.NumberObj:
			ts.Kern(v.Float())
		}
	}
	return nil
}

// drawGlyph fills the outline of the glyph's first character, stretched
// horizontally to the width the document gives it.
func (pt *painter) drawGlyph(rm coords.Matrix, g extractor.Glyph, c color.NRGBA) {
	r, _ := utf8.DecodeRuneInString(g.Text)
	if r == utf8.RuneError || r == ' ' {
		return
	}
	o := pt.glyph(r)
	if o == nil || len(o.segs) == 0 {
		return
	}
	sx := 1.0
	if g.Width > 0 && o.advance > 0 {
		sx = g.Width / o.advance
	}
	m := coords.Matrix{sx, 0, 0, 1, 0, 0}.Multiply(rm)
	at := func(p fixed.Point26_6) coords.Point {
		return m.Transform(coords.Point{X: float64(p.X) / 64 / outlinePPEM, Y: -float64(p.Y) / 64 / outlinePPEM})
	}
	s := make(shape, 0, len(o.segs))
	for _, seg := range o.segs {
		switch seg.Op {
		case sfnt.SegmentOpMoveTo:
			s = append(s, segment{kind: segMove, pts: [3]coords.Point{at(seg.Args[0])}})
		case sfnt.SegmentOpLineTo:
			s = append(s, segment{kind: segLine, pts: [3]coords.Point{at(seg.Args[0])}})
		case sfnt.SegmentOpQuadTo:
			s = append(s, segment{kind: segQuad, pts: [3]coords.Point{at(seg.Args[0]), at(seg.Args[1])}})
		case sfnt.SegmentOpCubeTo:
			s = append(s, segment{kind: segCube, pts: [3]coords.Point{at(seg.Args[0]), at(seg.Args[1]), at(seg.Args[2])}})
		}
	}
	fill(pt.dst, s, c)
}

func (pt *painter) glyph(r rune) *glyphOutline {
	if o, ok := pt.glyphs[r]; ok {
		return o
	}
	segs, adv, err := pt.r.outline.Glyph(r, outlinePPEM)
	var o *glyphOutline
	if err == nil {
		o = &glyphOutline{segs: segs, advance: adv}
	}
	pt.glyphs[r] = o
	return o
}
