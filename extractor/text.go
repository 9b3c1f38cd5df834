package extractor

import (
	"context"
	"math"
	"strings"

	"github.com/wudi/pdftools/contentstream"
	"github.com/wudi/pdftools/coords"
	"github.com/wudi/pdftools/document"
	"github.com/wudi/pdftools/ir/raw"
)

// Line is text sharing a baseline, in display space (origin bottom-left of
// the visible page, y up).
type Line struct {
	X, Y float64
	Size float64
	// Cells holds the line split at wide horizontal gaps, so tabular
	// layouts keep their columns.
	Cells []string
}

// Text joins the cells with single spaces.
func (l Line) Text() string { return strings.Join(l.Cells, " ") }

// PageText is the text of one page.
type PageText struct {
	Page    int // 1-based
	Lines   []Line
	Content string
}

// ExtractText returns the text of every page in page order. Pages without
// text have empty Content.
func (e *Extractor) ExtractText(ctx context.Context) ([]PageText, error) {
	out := make([]PageText, 0, e.doc.NumPages())
	for i := range e.doc.Pages() {
		pt, err := e.PageText(ctx, i)
		if err != nil {
			return nil, err
		}
		out = append(out, pt)
	}
	return out, nil
}

// PageText extracts the text of the page at 0-based index i.
func (e *Extractor) PageText(ctx context.Context, i int) (PageText, error) {
	p, err := e.doc.Page(i)
	if err != nil {
		return PageText{}, err
	}
	// A damaged stream still yields the operations before the damage.
	ops, _ := contentstream.Parse(p.ContentData(ctx))
	c := &textCollector{e: e, ctx: ctx}
	if err := c.process(ops, contentstream.NewExecutionContext(p.DisplayMatrix(), p.Resources())); err != nil {
		return PageText{}, err
	}
	lines := assembleLines(c.runs)
	var sb strings.Builder
	for _, l := range lines {
		sb.WriteString(l.Text())
		sb.WriteByte('\n')
	}
	return PageText{Page: i + 1, Lines: lines, Content: sb.String()}, nil
}

type textRun struct {
	x, y, endX float64
	size       float64
	text       string
}

type textCollector struct {
	e     *Extractor
	ctx   context.Context
	runs  []textRun
	depth int
}

func (c *textCollector) process(ops []contentstream.Operation, ec *contentstream.ExecutionContext) error {
	p := contentstream.NewProcessor()
	show := contentstream.HandlerFunc(c.show)
	for _, op := range []string{"Tj", "TJ", "'", "\""} {
		p.RegisterHandler(op, show)
	}
	p.RegisterHandler("Do", contentstream.HandlerFunc(c.form))
	return p.Process(c.ctx, ops, ec)
}

// kernSpace is the TJ adjustment, in thousandths of an em, treated as a
// word break when the producer positions words without space glyphs.
const kernSpace = -250

func (c *textCollector) show(ec *contentstream.ExecutionContext, op contentstream.Operation) error {
	if len(op.Operands) == 0 {
		return nil
	}
	ts := ec.TextState
	font := c.e.Font(c.ctx, ec.Resources, ts.Font)
	parts := op.Operands[len(op.Operands)-1:]
	if op.Operator == "TJ" {
		arr, ok := op.Operands[0].(*raw.ArrayObj)
		if !ok {
			return nil
		}
		parts = arr.Items
	}
	rm := ec.RenderingMatrix()
	start := rm.Transform(coords.Point{})
	size := rm.ScaleFactor()
	var sb strings.Builder
	for _, part := range parts {
		switch v := part.(type) {
		case raw.StringObj:
			for _, g := range font.Decode(v.Bytes) {
				sb.WriteString(g.Text)
				ts.Advance(g.Width, g.Space)
			}
		case raw.NumberObj:
			if v.Float() <= kernSpace && sb.Len() > 0 && !strings.HasSuffix(sb.String(), " ") {
				sb.WriteByte(' ')
			}
			ts.Kern(v.Float())
		}
	}
	if sb.Len() == 0 {
		return nil
	}
	end := ec.RenderingMatrix().Transform(coords.Point{})
	c.runs = append(c.runs, textRun{x: start.X, y: start.Y, endX: end.X, size: size, text: sb.String()})
	return nil
}

// form descends into Form XObjects with the form's matrix and resources.
func (c *textCollector) form(ec *contentstream.ExecutionContext, op contentstream.Operation) error {
	if c.depth >= maxFormDepth || len(op.Operands) == 0 {
		return nil
	}
	name, ok := op.Operands[0].(raw.NameObj)
	if !ok {
		return nil
	}
	rd := c.e.doc.Raw
	_, stm := xobject(rd, ec.Resources, name.Val)
	if stm == nil || rd.NameOf(stm.Dict.Get("Subtype")) != "Form" {
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

// FormMatrix returns a form's /Matrix, identity when absent.
func FormMatrix(rd *raw.Document, dict *raw.DictObj) coords.Matrix {
	arr := rd.ArrayOf(dict.Get("Matrix"))
	if arr == nil || arr.Len() != 6 {
		return coords.Identity()
	}
	var m coords.Matrix
	for i := range m {
		v, ok := rd.NumberOf(arr.Get(i))
		if !ok {
			return coords.Identity()
		}
		m[i] = v
	}
	return m
}

// assembleLines merges consecutive runs on a shared baseline. A gap wider
// than a few ems opens a new cell; a smaller visible gap becomes a space.
func assembleLines(runs []textRun) []Line {
	var lines []Line
	var cur *Line
	var lastEnd float64
	for _, r := range runs {
		size := math.Max(r.size, 1)
		if cur != nil {
			tol := math.Max(cur.Size, size) / 2
			sameLine := math.Abs(r.y-cur.Y) <= tol && r.x >= lastEnd-size
			if sameLine {
				gap := r.x - lastEnd
				last := len(cur.Cells) - 1
				switch {
				case gap > 2*size:
					cur.Cells = append(cur.Cells, strings.TrimSpace(r.text))
				case gap > 0.15*size && !strings.HasSuffix(cur.Cells[last], " ") && !strings.HasPrefix(r.text, " "):
					cur.Cells[last] += " " + r.text
				default:
					cur.Cells[last] += r.text
				}
				lastEnd = math.Max(lastEnd, r.endX)
				continue
			}
			lines = append(lines, finishLine(*cur))
		}
		cur = &Line{X: r.x, Y: r.y, Size: size, Cells: []string{r.text}}
		lastEnd = r.endX
	}
	if cur != nil {
		lines = append(lines, finishLine(*cur))
	}
	out := lines[:0]
	for _, l := range lines {
		if len(l.Cells) > 0 {
			out = append(out, l)
		}
	}
	return out
}

func finishLine(l Line) Line {
	cells := l.Cells[:0]
	for _, c := range l.Cells {
		if c = strings.TrimSpace(c); c != "" {
			cells = append(cells, c)
		}
	}
	l.Cells = cells
	return l
}
