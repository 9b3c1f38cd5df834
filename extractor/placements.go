package extractor

import (
	"context"
	"math"

	"github.com/wudi/pdftools/contentstream"
	"github.com/wudi/pdftools/coords"
	"github.com/wudi/pdftools/document"
	"github.com/wudi/pdftools/ir/raw"
)

// Placement is one image painted on a page and the box it covers, in
// display space (origin bottom-left of the visible page, y up).
type Placement struct {
	Image ImageAsset
	Box   coords.Rect
}

// PageImages returns the images the page at 0-based index i paints, in
// drawing order. An image painted twice is listed twice; images that fail
// to load are skipped.
func (e *Extractor) PageImages(ctx context.Context, i int) ([]Placement, error) {
	p, err := e.doc.Page(i)
	if err != nil {
		return nil, err
	}
	ops, _ := contentstream.Parse(p.ContentData(ctx))
	c := &placementCollector{e: e, ctx: ctx, page: i + 1, loaded: make(map[raw.ObjectRef]*ImageAsset)}
	if err := c.process(ops, contentstream.NewExecutionContext(p.DisplayMatrix(), p.Resources())); err != nil {
		return nil, err
	}
	return c.out, nil
}

type placementCollector struct {
	e      *Extractor
	ctx    context.Context
	page   int
	depth  int
	loaded map[raw.ObjectRef]*ImageAsset
	out    []Placement
}

func (c *placementCollector) process(ops []contentstream.Operation, ec *contentstream.ExecutionContext) error {
	p := contentstream.NewProcessor()
	p.RegisterHandler("Do", contentstream.HandlerFunc(c.do))
	return p.Process(c.ctx, ops, ec)
}

func (c *placementCollector) do(ec *contentstream.ExecutionContext, op contentstream.Operation) error {
	if len(op.Operands) == 0 {
		return nil
	}
	name, ok := op.Operands[0].(raw.NameObj)
	if !ok {
		return nil
	}
	rd := c.e.doc.Raw
	obj, stm := xobject(rd, ec.Resources, name.Val)
	if stm == nil {
		return nil
	}
	switch rd.NameOf(stm.Dict.Get("Subtype")) {
	case "Image":
		ref, _ := obj.(raw.RefObj)
		asset, ok := c.loaded[ref.R]
		if !ok || ref.R == (raw.ObjectRef{}) {
			var err error
			if asset, err = LoadImage(c.ctx, rd, stm); err != nil {
				return nil
			}
			asset.Page, asset.Name, asset.Ref = c.page, name.Val, ref.R
			c.loaded[ref.R] = asset
		}
		if box := unitSquare(ec.GraphicsState.CTM); !box.Empty() {
			c.out = append(c.out, Placement{Image: *asset, Box: box})
		}
	case "Form":
		if c.depth >= maxFormDepth {
			return nil
		}
		data, err := document.DecodeStream(c.ctx, rd, stm)
		if err != nil {
			return nil
		}
		ops, _ := contentstream.Parse(data)
		resources := rd.DictOf(stm.Dict.Get("Resources"))
		if resources == nil {
			resources = ec.Resources
		}
		sub := contentstream.NewExecutionContext(FormMatrix(rd, stm.Dict).Multiply(ec.GraphicsState.CTM), resources)
		c.depth++
		defer func() { c.depth-- }()
		return c.process(ops, sub)
	}
	return nil
}

// unitSquare is the bounding box of the unit square under m, where every
// image is drawn.
func unitSquare(m coords.Matrix) coords.Rect {
	r := coords.Rect{LLX: math.Inf(1), LLY: math.Inf(1), URX: math.Inf(-1), URY: math.Inf(-1)}
	for _, p := range []coords.Point{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 0, Y: 1}, {X: 1, Y: 1}} {
		q := m.Transform(p)
		r.LLX, r.LLY = math.Min(r.LLX, q.X), math.Min(r.LLY, q.Y)
		r.URX, r.URY = math.Max(r.URX, q.X), math.Max(r.URY, q.Y)
	}
	return r
}
