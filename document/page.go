package document

import (
	"context"

	"github.com/wudi/pdftools/builder"
	"github.com/wudi/pdftools/coords"
	"github.com/wudi/pdftools/ir/raw"
)

// Page is one page dictionary with its inherited attributes already
// materialized.
type Page struct {
	Ref  raw.ObjectRef
	Dict *raw.DictObj
	doc  *raw.Document
}

func (p *Page) box(key string) (coords.Rect, bool) {
	arr := p.doc.ArrayOf(p.Dict.Get(key))
	if arr == nil || arr.Len() != 4 {
		return coords.Rect{}, false
	}
	var v [4]float64
	for i := range v {
		n, ok := p.doc.NumberOf(arr.Get(i))
		if !ok {
			return coords.Rect{}, false
		}
		v[i] = n
	}
	return coords.Rect{LLX: v[0], LLY: v[1], URX: v[2], URY: v[3]}.Normalize(), true
}

// MediaBox returns the page's media box, US Letter when missing or malformed.
func (p *Page) MediaBox() coords.Rect {
	if r, ok := p.box("MediaBox"); ok && !r.Empty() {
		return r
	}
	return coords.Rect{URX: 612, URY: 792}
}

// CropBox returns the visible region: the crop box clipped to the media box.
func (p *Page) CropBox() coords.Rect {
	mb := p.MediaBox()
	if cb, ok := p.box("CropBox"); ok {
		if r := cb.Intersect(mb); !r.Empty() {
			return r
		}
	}
	return mb
}

// SetCropBox replaces the crop box.
func (p *Page) SetCropBox(r coords.Rect) {
	p.Dict.Set("CropBox", raw.Rect(r.LLX, r.LLY, r.URX, r.URY))
}

// Rotation returns /Rotate folded into [0, 360).
func (p *Page) Rotation() int {
	return builder.NormalizeRotation(p.doc.IntOf(p.Dict.Get("Rotate"), 0))
}

// SetRotation stores deg normalized; zero removes the entry.
func (p *Page) SetRotation(deg int) {
	deg = builder.NormalizeRotation(deg)
	if deg == 0 {
		p.Dict.Delete("Rotate")
		return
	}
	p.Dict.Set("Rotate", raw.NumberInt(int64(deg)))
}

// Size returns the visible width and height as displayed, with rotation
// applied.
func (p *Page) Size() (float64, float64) {
	cb := p.CropBox()
	if r := p.Rotation(); r == 90 || r == 270 {
		return cb.Height(), cb.Width()
	}
	return cb.Width(), cb.Height()
}

// TopLeft converts a point given from the top-left corner of the visible
// page, the way viewers present it, into user space.
func (p *Page) TopLeft(x, y float64) coords.Point {
	cb := p.CropBox()
	switch p.Rotation() {
	case 90:
		return coords.Point{X: cb.LLX + y, Y: cb.LLY + x}
	case 180:
		return coords.Point{X: cb.URX - x, Y: cb.LLY + y}
	case 270:
		return coords.Point{X: cb.URX - y, Y: cb.URY - x}
	}
	return coords.Point{X: cb.LLX + x, Y: cb.URY - y}
}

// DisplayMatrix maps user space to display space: origin at the
// bottom-left of the visible page as viewers show it, y up, rotation
// applied.
func (p *Page) DisplayMatrix() coords.Matrix {
	cb := p.CropBox()
	switch p.Rotation() {
	case 90:
		return coords.Matrix{0, -1, 1, 0, -cb.LLY, cb.URX}
	case 180:
		return coords.Matrix{-1, 0, 0, -1, cb.URX, cb.URY}
	case 270:
		return coords.Matrix{0, 1, -1, 0, cb.URY, -cb.LLX}
	}
	return coords.Translate(-cb.LLX, -cb.LLY)
}

// Resources returns the page resource dictionary, or nil.
func (p *Page) Resources() *raw.DictObj {
	return p.doc.DictOf(p.Dict.Get("Resources"))
}

// Contents returns the page's content streams in order.
func (p *Page) Contents() []*raw.StreamObj {
	c := p.doc.Resolve(p.Dict.Get("Contents"))
	switch v := c.(type) {
	case *raw.StreamObj:
		return []*raw.StreamObj{v}
	case *raw.ArrayObj:
		out := make([]*raw.StreamObj, 0, v.Len())
		for _, item := range v.Items {
			if s := p.doc.StreamOf(item); s != nil {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// ContentData returns the decoded content streams joined with newlines.
// Streams that fail to decode are skipped.
func (p *Page) ContentData(ctx context.Context) []byte {
	var out []byte
	for _, s := range p.Contents() {
		data, err := DecodeStream(ctx, p.doc, s)
		if err != nil {
			continue
		}
		out = append(out, data...)
		out = append(out, '\n')
	}
	return out
}

// Annotations returns the page's annotation dictionaries.
func (p *Page) Annotations() []*raw.DictObj {
	arr := p.doc.ArrayOf(p.Dict.Get("Annots"))
	if arr == nil {
		return nil
	}
	var out []*raw.DictObj
	for _, a := range arr.Items {
		if d := p.doc.DictOf(a); d != nil {
			out = append(out, d)
		}
	}
	return out
}
