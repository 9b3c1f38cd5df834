package raster

import (
	"image"
	"image/color"
	"math"

	"golang.org/x/image/draw"
	"golang.org/x/image/vector"

	"github.com/wudi/pdftools/contentstream"
	"github.com/wudi/pdftools/coords"
)

type segKind uint8

const (
	segMove segKind = iota
	segLine
	segQuad
	segCube
	segClose
)

type segment struct {
	kind segKind
	pts  [3]coords.Point // end point last
}

// shape is a path in device pixels.
type shape []segment

func fromPath(p contentstream.Path, closeAll bool) shape {
	var s shape
	for _, sp := range p.Subpaths {
		if len(sp.Points) == 0 {
			continue
		}
		for i, pt := range sp.Points {
			end := coords.Point{X: pt.X, Y: pt.Y}
			switch {
			case i == 0 || pt.Type == contentstream.PathMoveTo:
				s = append(s, segment{kind: segMove, pts: [3]coords.Point{end}})
			case pt.Type == contentstream.PathCurveTo:
				s = append(s, segment{kind: segCube, pts: [3]coords.Point{
					{X: pt.Control1X, Y: pt.Control1Y},
					{X: pt.Control2X, Y: pt.Control2Y},
					end,
				}})
			default:
				s = append(s, segment{kind: segLine, pts: [3]coords.Point{end}})
			}
		}
		if sp.Closed || closeAll {
			s = append(s, segment{kind: segClose})
		}
	}
	return s
}

func (s shape) bounds() (image.Rectangle, bool) {
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, seg := range s {
		n := 0
		switch seg.kind {
		case segMove, segLine:
			n = 1
		case segQuad:
			n = 2
		case segCube:
			n = 3
		}
		for _, p := range seg.pts[:n] {
			minX, maxX = math.Min(minX, p.X), math.Max(maxX, p.X)
			minY, maxY = math.Min(minY, p.Y), math.Max(maxY, p.Y)
		}
	}
	if math.IsInf(minX, 0) || math.IsNaN(minX+maxX+minY+maxY) {
		return image.Rectangle{}, false
	}
	const limit = 1 << 24
	clamp := func(v float64) int { return int(math.Max(-limit, math.Min(limit, v))) }
	return image.Rect(clamp(math.Floor(minX)), clamp(math.Floor(minY)), clamp(math.Ceil(maxX))+1, clamp(math.Ceil(maxY))+1), true
}

// fill paints the shape with the non-zero winding rule. Even-odd fills are
// drawn the same way, which only differs for self-overlapping paths.
func fill(dst *image.RGBA, s shape, c color.NRGBA) {
	if c.A == 0 || len(s) == 0 {
		return
	}
	b, ok := s.bounds()
	if !ok {
		return
	}
	r := b.Intersect(dst.Bounds())
	if r.Empty() {
		return
	}
	z := vector.NewRasterizer(r.Dx(), r.Dy())
	z.DrawOp = draw.Over
	ox, oy := float64(r.Min.X), float64(r.Min.Y)
	pt := func(p coords.Point) (float32, float32) { return float32(p.X - ox), float32(p.Y - oy) }
	open := false
	for _, seg := range s {
		switch seg.kind {
		case segMove:
			if open {
				z.ClosePath()
			}
			z.MoveTo(pt(seg.pts[0]))
			open = true
		case segLine:
			z.LineTo(pt(seg.pts[0]))
		case segQuad:
			bx, by := pt(seg.pts[0])
			cx, cy := pt(seg.pts[1])
			z.QuadTo(bx, by, cx, cy)
		case segCube:
			bx, by := pt(seg.pts[0])
			cx, cy := pt(seg.pts[1])
			dx, dy := pt(seg.pts[2])
			z.CubeTo(bx, by, cx, cy, dx, dy)
		case segClose:
			z.ClosePath()
			open = false
		}
	}
	if open {
		z.ClosePath()
	}
	z.Draw(dst, r, image.NewUniform(c), image.Point{})
}

// stroke paints each flattened segment as a quad of the given width. Joins
// and caps are not drawn.
func stroke(dst *image.RGBA, s shape, width float64, c color.NRGBA) {
	half := math.Max(width, 1) / 2
	var quads shape
	for _, line := range flatten(s) {
		for i := 1; i < len(line); i++ {
			a, b := line[i-1], line[i]
			dx, dy := b.X-a.X, b.Y-a.Y
			l := math.Hypot(dx, dy)
			if l == 0 {
				continue
			}
			nx, ny := -dy/l*half, dx/l*half
			quads = append(quads,
				segment{kind: segMove, pts: [3]coords.Point{{X: a.X + nx, Y: a.Y + ny}}},
				segment{kind: segLine, pts: [3]coords.Point{{X: b.X + nx, Y: b.Y + ny}}},
				segment{kind: segLine, pts: [3]coords.Point{{X: b.X - nx, Y: b.Y - ny}}},
				segment{kind: segLine, pts: [3]coords.Point{{X: a.X - nx, Y: a.Y - ny}}},
				segment{kind: segClose},
			)
		}
	}
	fill(dst, quads, c)
}

// flatten turns the shape into polylines, one per subpath.
func flatten(s shape) [][]coords.Point {
	var out [][]coords.Point
	var cur []coords.Point
	var start coords.Point
	flush := func() {
		if len(cur) > 1 {
			out = append(out, cur)
		}
		cur = nil
	}
	for _, seg := range s {
		switch seg.kind {
		case segMove:
			flush()
			start = seg.pts[0]
			cur = []coords.Point{start}
		case segLine:
			cur = append(cur, seg.pts[0])
		case segQuad, segCube:
			if len(cur) == 0 {
				continue
			}
			p0 := cur[len(cur)-1]
			const steps = 16
			for i := 1; i <= steps; i++ {
				cur = append(cur, bezier(seg, p0, float64(i)/steps))
			}
		case segClose:
			if len(cur) > 0 {
				cur = append(cur, start)
			}
			flush()
		}
	}
	flush()
	return out
}

func bezier(seg segment, p0 coords.Point, t float64) coords.Point {
	u := 1 - t
	if seg.kind == segQuad {
		c, e := seg.pts[0], seg.pts[1]
		return coords.Point{
			X: u*u*p0.X + 2*u*t*c.X + t*t*e.X,
			Y: u*u*p0.Y + 2*u*t*c.Y + t*t*e.Y,
		}
	}
	c1, c2, e := seg.pts[0], seg.pts[1], seg.pts[2]
	return coords.Point{
		X: u*u*u*p0.X + 3*u*u*t*c1.X + 3*u*t*t*c2.X + t*t*t*e.X,
		Y: u*u*u*p0.Y + 3*u*u*t*c1.Y + 3*u*t*t*c2.Y + t*t*t*e.Y,
	}
}
