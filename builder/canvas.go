package builder

import (
	"fmt"
	"math"

	"github.com/wudi/pdftools/contentstream"
	"github.com/wudi/pdftools/fonts"
	"github.com/wudi/pdftools/ir/raw"
)

// TextOptions configures text drawing.
type TextOptions struct {
	Font       string // standard 14 base font; defaults to Helvetica
	FontSize   float64
	Color      Color
	Opacity    float64 // 0 means opaque
	Rotation   float64 // degrees counter-clockwise about (x, y)
	RenderMode contentstream.TextRenderMode
	// HorizScaling stretches glyphs horizontally, in percent.
	HorizScaling float64
}

// PathOptions configures path drawing.
type PathOptions struct {
	StrokeColor Color
	FillColor   Color
	LineWidth   float64
	DashPattern []float64
	Fill        bool
	Stroke      bool
}

// RectOptions configures rectangle drawing (defaults to stroke if neither fill nor stroke is set).
type RectOptions = PathOptions

// LineOptions configures line drawing.
type LineOptions struct {
	StrokeColor Color
	LineWidth   float64
	DashPattern []float64
}

// Color is an RGB colour with components in [0, 1].
type Color struct {
	R, G, B float64
}

var (
	Black = Color{}
	White = Color{1, 1, 1}
)

// Gray returns the grey level g.
func Gray(g float64) Color { return Color{g, g, g} }

const defaultFontSize = 12

// Canvas accumulates drawing operations together with the resources they
// reference. Resource names are local to the canvas; merging a canvas into a
// page that already uses the same names is the caller's job.
type Canvas struct {
	ops        []contentstream.Operation
	fonts      map[string]string // resource name -> base font
	fontByBase map[string]string
	images     map[*Image]string
	imageOrder []*Image
	gstates    map[float64]string
}

// NewCanvas returns an empty canvas.
func NewCanvas() *Canvas {
	return &Canvas{
		fonts:      make(map[string]string),
		fontByBase: make(map[string]string),
		images:     make(map[*Image]string),
		gstates:    make(map[float64]string),
	}
}

// Empty reports whether nothing has been drawn.
func (c *Canvas) Empty() bool { return len(c.ops) == 0 }

// Operations returns the accumulated operations.
func (c *Canvas) Operations() []contentstream.Operation { return c.ops }

// Append adds raw operations.
func (c *Canvas) Append(ops ...contentstream.Operation) *Canvas {
	c.ops = append(c.ops, ops...)
	return c
}

// Content renders the operations as an unfiltered content stream.
func (c *Canvas) Content() *raw.StreamObj {
	return raw.NewStream(raw.Dict(), contentstream.Serialize(c.ops))
}

// Font returns the resource name for baseFont, registering it on first use.
func (c *Canvas) Font(baseFont string) string {
	if baseFont == "" {
		baseFont = fonts.Helvetica
	}
	if name, ok := c.fontByBase[baseFont]; ok {
		return name
	}
	name := fmt.Sprintf("F%d", len(c.fonts)+1)
	c.fonts[name] = baseFont
	c.fontByBase[baseFont] = name
	return name
}

func (c *Canvas) alphaState(alpha float64) string {
	if name, ok := c.gstates[alpha]; ok {
		return name
	}
	name := fmt.Sprintf("GS%d", len(c.gstates)+1)
	c.gstates[alpha] = name
	return name
}

func (c *Canvas) imageName(img *Image) string {
	if name, ok := c.images[img]; ok {
		return name
	}
	name := fmt.Sprintf("Im%d", len(c.images)+1)
	c.images[img] = name
	c.imageOrder = append(c.imageOrder, img)
	return name
}

// Resources materializes the canvas resources, adding image and font
// objects to doc.
func (c *Canvas) Resources(doc *raw.Document) *raw.DictObj {
	res := raw.Dict()
	if len(c.fonts) > 0 {
		fd := raw.Dict()
		for name, base := range c.fonts {
			fd.Set(name, doc.Add(FontDict(base)))
		}
		res.Set("Font", fd)
	}
	if len(c.imageOrder) > 0 {
		xd := raw.Dict()
		for _, img := range c.imageOrder {
			xd.Set(c.images[img], img.AddTo(doc))
		}
		res.Set("XObject", xd)
	}
	if len(c.gstates) > 0 {
		gd := raw.Dict()
		for alpha, name := range c.gstates {
			gs := raw.Dict()
			gs.Set("Type", raw.NameLiteral("ExtGState"))
			gs.Set("ca", raw.Number(alpha))
			gs.Set("CA", raw.Number(alpha))
			gd.Set(name, gs)
		}
		res.Set("ExtGState", gd)
	}
	return res
}

// FontDict builds a simple Type1 font dictionary for a standard 14 font.
func FontDict(baseFont string) *raw.DictObj {
	d := raw.Dict()
	d.Set("Type", raw.NameLiteral("Font"))
	d.Set("Subtype", raw.NameLiteral("Type1"))
	d.Set("BaseFont", raw.NameLiteral(baseFont))
	d.Set("Encoding", raw.NameLiteral("WinAnsiEncoding"))
	return d
}

// DrawText draws a single line of text with its baseline origin at (x, y).
func (c *Canvas) DrawText(text string, x, y float64, opts TextOptions) *Canvas {
	size := opts.FontSize
	if size <= 0 {
		size = defaultFontSize
	}
	font := c.Font(opts.Font)
	wrap := opts.Opacity > 0 && opts.Opacity < 1
	if wrap {
		c.ops = append(c.ops, contentstream.Op("q"), nameOp("gs", c.alphaState(opts.Opacity)))
	}
	c.ops = append(c.ops, contentstream.Op("BT"))
	c.ops = append(c.ops, contentstream.Operation{
		Operator: "Tf",
		Operands: []raw.Object{raw.NameLiteral(font), raw.Number(size)},
	})
	if opts.RenderMode != contentstream.TextFill {
		c.ops = append(c.ops, contentstream.Op("Tr", float64(opts.RenderMode)))
	}
	if opts.HorizScaling > 0 && opts.HorizScaling != 100 {
		c.ops = append(c.ops, contentstream.Op("Tz", opts.HorizScaling))
	}
	c.ops = append(c.ops, colorOp(opts.Color, false))
	rad := opts.Rotation * math.Pi / 180
	cos, sin := round(math.Cos(rad)), round(math.Sin(rad))
	c.ops = append(c.ops, contentstream.Op("Tm", cos, sin, -sin, cos, x, y))
	c.ops = append(c.ops, contentstream.Operation{
		Operator: "Tj",
		Operands: []raw.Object{raw.Str(fonts.EncodeWinAnsi(text))},
	})
	c.ops = append(c.ops, contentstream.Op("ET"))
	if wrap {
		c.ops = append(c.ops, contentstream.Op("Q"))
	}
	return c
}

// DrawImage paints img into the rectangle at (x, y). Zero sizes use the
// pixel dimensions.
func (c *Canvas) DrawImage(img *Image, x, y, width, height float64) *Canvas {
	if img == nil {
		return c
	}
	if width == 0 {
		width = float64(img.Width)
	}
	if height == 0 {
		height = float64(img.Height)
	}
	name := c.imageName(img)
	c.ops = append(c.ops,
		contentstream.Op("q"),
		contentstream.Op("cm", width, 0, 0, height, x, y),
		nameOp("Do", name),
		contentstream.Op("Q"),
	)
	return c
}

// DrawRectangle draws an axis-aligned rectangle.
func (c *Canvas) DrawRectangle(x, y, width, height float64, opts RectOptions) *Canvas {
	po := opts
	if !po.Stroke && !po.Fill {
		po.Stroke = true
	}
	c.ops = append(c.ops, contentstream.Op("q"))
	c.applyPathState(po)
	c.ops = append(c.ops, contentstream.Op("re", x, y, width, height))
	c.ops = append(c.ops, contentstream.Op(paintOperator(po.Fill, po.Stroke)))
	c.ops = append(c.ops, contentstream.Op("Q"))
	return c
}

// DrawLine strokes a straight segment.
func (c *Canvas) DrawLine(x1, y1, x2, y2 float64, opts LineOptions) *Canvas {
	c.ops = append(c.ops, contentstream.Op("q"))
	c.applyPathState(PathOptions{
		StrokeColor: opts.StrokeColor,
		LineWidth:   opts.LineWidth,
		DashPattern: opts.DashPattern,
		Stroke:      true,
	})
	c.ops = append(c.ops,
		contentstream.Op("m", x1, y1),
		contentstream.Op("l", x2, y2),
		contentstream.Op("S"),
		contentstream.Op("Q"),
	)
	return c
}

func (c *Canvas) applyPathState(opts PathOptions) {
	if opts.Fill {
		c.ops = append(c.ops, colorOp(opts.FillColor, false))
	}
	if !opts.Stroke {
		return
	}
	c.ops = append(c.ops, colorOp(opts.StrokeColor, true))
	if opts.LineWidth > 0 {
		c.ops = append(c.ops, contentstream.Op("w", opts.LineWidth))
	}
	if len(opts.DashPattern) > 0 {
		vals := raw.NewArray()
		for _, v := range opts.DashPattern {
			vals.Append(raw.Number(v))
		}
		c.ops = append(c.ops, contentstream.Operation{
			Operator: "d",
			Operands: []raw.Object{vals, raw.NumberInt(0)},
		})
	}
}

func colorOp(col Color, stroking bool) contentstream.Operation {
	op := "rg"
	if stroking {
		op = "RG"
	}
	return contentstream.Op(op, col.R, col.G, col.B)
}

func nameOp(operator, name string) contentstream.Operation {
	return contentstream.Operation{Operator: operator, Operands: []raw.Object{raw.NameLiteral(name)}}
}

func paintOperator(fill, stroke bool) string {
	switch {
	case fill && stroke:
		return "B"
	case fill:
		return "f"
	default:
		return "S"
	}
}

// round snaps trigonometric noise so axis-aligned text keeps exact matrices.
func round(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}
