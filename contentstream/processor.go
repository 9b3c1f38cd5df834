package contentstream

import (
	"context"
	"errors"

	"github.com/wudi/pdftools/coords"
	"github.com/wudi/pdftools/ir/raw"
)

// Processor interprets operations, tracking graphics and text state, and
// hands each operation to the handler registered for its operator.
type Processor interface {
	Process(ctx context.Context, ops []Operation, ec *ExecutionContext) error
	RegisterHandler(op string, h OperatorHandler)
}

type OperatorHandler interface {
	Handle(ec *ExecutionContext, op Operation) error
}

// HandlerFunc adapts a function to OperatorHandler.
type HandlerFunc func(ec *ExecutionContext, op Operation) error

func (f HandlerFunc) Handle(ec *ExecutionContext, op Operation) error { return f(ec, op) }

type ExecutionContext struct {
	GraphicsState *GraphicsState
	TextState     *TextState
	// Path is the path under construction; painting operators see it
	// before it is cleared.
	Path Path
	// Resources is the resource dictionary of the stream being processed.
	Resources *raw.DictObj
}

// NewExecutionContext starts from the default state with ctm as the base
// transform.
func NewExecutionContext(ctm coords.Matrix, resources *raw.DictObj) *ExecutionContext {
	return &ExecutionContext{
		GraphicsState: &GraphicsState{CTM: ctm, LineWidth: 1, FillAlpha: 1, StrokeAlpha: 1},
		TextState:     &TextState{Scale: 1, TextMatrix: coords.Identity(), TextLineMatrix: coords.Identity()},
		Resources:     resources,
	}
}

// RGB holds colour components in [0,1].
type RGB struct{ R, G, B float64 }

type GraphicsState struct {
	CTM         coords.Matrix
	LineWidth   float64
	FillColor   RGB
	StrokeColor RGB
	FillAlpha   float64
	StrokeAlpha float64
	stack       []GraphicsState
	textStack   []TextState
}

func (gs *GraphicsState) Save() {
	clone := *gs
	clone.stack = nil
	clone.textStack = nil
	gs.stack = append(gs.stack, clone)
}

func (gs *GraphicsState) Restore() error {
	n := len(gs.stack)
	if n == 0 {
		return errors.New("state stack empty")
	}
	stack := gs.stack[:n-1]
	textStack := gs.textStack
	*gs = gs.stack[n-1]
	gs.stack = stack
	gs.textStack = textStack
	return nil
}

// Depth reports how many states are saved.
func (gs *GraphicsState) Depth() int { return len(gs.stack) }

type TextState struct {
	Font           string
	FontSize       float64
	CharSpacing    float64
	WordSpacing    float64
	Scale          float64
	Leading        float64
	Rise           float64
	RenderMode     TextRenderMode
	TextMatrix     coords.Matrix
	TextLineMatrix coords.Matrix
}

// RenderingMatrix maps glyph space (scaled to 1 unit per em) to device space.
func (ec *ExecutionContext) RenderingMatrix() coords.Matrix {
	ts := ec.TextState
	m := coords.Matrix{ts.FontSize * ts.Scale, 0, 0, ts.FontSize, 0, ts.Rise}
	return m.Multiply(ts.TextMatrix).Multiply(ec.GraphicsState.CTM)
}

// Advance moves the text matrix past a glyph of width w0 (thousandths of
// an em).
func (ts *TextState) Advance(w0 float64, isSpace bool) {
	tx := w0/1000*ts.FontSize + ts.CharSpacing
	if isSpace {
		tx += ts.WordSpacing
	}
	tx *= ts.Scale
	ts.TextMatrix = coords.Translate(tx, 0).Multiply(ts.TextMatrix)
}

// Kern applies a TJ array adjustment.
func (ts *TextState) Kern(adj float64) {
	tx := -adj / 1000 * ts.FontSize * ts.Scale
	ts.TextMatrix = coords.Translate(tx, 0).Multiply(ts.TextMatrix)
}

type simpleProcessor struct{ handlers map[string]OperatorHandler }

func NewProcessor() Processor {
	return &simpleProcessor{handlers: make(map[string]OperatorHandler)}
}

func (p *simpleProcessor) RegisterHandler(op string, h OperatorHandler) { p.handlers[op] = h }

func (p *simpleProcessor) Process(ctx context.Context, ops []Operation, ec *ExecutionContext) error {
	for i, op := range ops {
		if i%512 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		nums := numbers(op.Operands)
		gs, ts := ec.GraphicsState, ec.TextState
		switch op.Operator {
		case "q":
			gs.Save()
			gs.textStack = append(gs.textStack, *ts)
		case "Q":
			if gs.Depth() == 0 {
				continue
			}
			gs.Restore()
			if n := len(gs.textStack); n > 0 {
				// The text matrices are not part of the graphics state.
				tm, tlm := ts.TextMatrix, ts.TextLineMatrix
				*ts = gs.textStack[n-1]
				gs.textStack = gs.textStack[:n-1]
				ts.TextMatrix, ts.TextLineMatrix = tm, tlm
			}
		case "cm":
			if len(nums) == 6 {
				gs.CTM = coords.Matrix(nums6(nums)).Multiply(gs.CTM)
			}
		case "w":
			if len(nums) == 1 {
				gs.LineWidth = nums[0]
			}
		case "g":
			gs.FillColor = colorFrom(nums)
		case "G":
			gs.StrokeColor = colorFrom(nums)
		case "rg", "k", "sc", "scn":
			gs.FillColor = colorFrom(nums)
		case "RG", "K", "SC", "SCN":
			gs.StrokeColor = colorFrom(nums)
		case "BT":
			ts.TextMatrix = coords.Identity()
			ts.TextLineMatrix = coords.Identity()
		case "Tf":
			if len(op.Operands) == 2 {
				if n, ok := op.Operands[0].(raw.NameObj); ok {
					ts.Font = n.Val
				}
				if n, ok := op.Operands[1].(raw.NumberObj); ok {
					ts.FontSize = n.Float()
				}
			}
		case "Tc":
			if len(nums) == 1 {
				ts.CharSpacing = nums[0]
			}
		case "Tw":
			if len(nums) == 1 {
				ts.WordSpacing = nums[0]
			}
		case "Tz":
			if len(nums) == 1 {
				ts.Scale = nums[0] / 100
			}
		case "TL":
			if len(nums) == 1 {
				ts.Leading = nums[0]
			}
		case "Ts":
			if len(nums) == 1 {
				ts.Rise = nums[0]
			}
		case "Tr":
			if len(nums) == 1 {
				ts.RenderMode = TextRenderMode(nums[0])
			}
		case "Td", "TD":
			if len(nums) == 2 {
				if op.Operator == "TD" {
					ts.Leading = -nums[1]
				}
				ts.TextLineMatrix = coords.Translate(nums[0], nums[1]).Multiply(ts.TextLineMatrix)
				ts.TextMatrix = ts.TextLineMatrix
			}
		case "Tm":
			if len(nums) == 6 {
				ts.TextLineMatrix = coords.Matrix(nums6(nums))
				ts.TextMatrix = ts.TextLineMatrix
			}
		case "T*":
			ts.nextLine()
		case "'":
			ts.nextLine()
		case "\"":
			if len(nums) >= 2 {
				ts.WordSpacing, ts.CharSpacing = nums[0], nums[1]
			}
			ts.nextLine()
		case "m":
			if len(nums) == 2 {
				ec.Path.Subpaths = append(ec.Path.Subpaths, Subpath{Points: []PathPoint{ec.point(PathMoveTo, nums[0], nums[1])}})
			}
		case "l":
			if len(nums) == 2 {
				ec.appendPoint(ec.point(PathLineTo, nums[0], nums[1]))
			}
		case "c", "v", "y":
			ec.curve(op.Operator, nums)
		case "h":
			if n := len(ec.Path.Subpaths); n > 0 {
				ec.Path.Subpaths[n-1].Closed = true
			}
		case "re":
			if len(nums) == 4 {
				x, y, w, h := nums[0], nums[1], nums[2], nums[3]
				ec.Path.Subpaths = append(ec.Path.Subpaths, Subpath{
					Points: []PathPoint{
						ec.point(PathMoveTo, x, y),
						ec.point(PathLineTo, x+w, y),
						ec.point(PathLineTo, x+w, y+h),
						ec.point(PathLineTo, x, y+h),
					},
					Closed: true,
				})
			}
		}

		if h, ok := p.handlers[op.Operator]; ok {
			if err := h.Handle(ec, op); err != nil {
				return err
			}
		}
		if isPaint(op.Operator) {
			ec.Path = Path{}
		}
	}
	return nil
}

func (ts *TextState) nextLine() {
	ts.TextLineMatrix = coords.Translate(0, -ts.Leading).Multiply(ts.TextLineMatrix)
	ts.TextMatrix = ts.TextLineMatrix
}

// point transforms user-space coordinates to device space with the CTM.
func (ec *ExecutionContext) point(t PathPointType, x, y float64) PathPoint {
	p := ec.GraphicsState.CTM.Transform(coords.Point{X: x, Y: y})
	return PathPoint{X: p.X, Y: p.Y, Type: t}
}

func (ec *ExecutionContext) appendPoint(pt PathPoint) {
	n := len(ec.Path.Subpaths)
	if n == 0 {
		ec.Path.Subpaths = append(ec.Path.Subpaths, Subpath{})
		n = 1
	}
	ec.Path.Subpaths[n-1].Points = append(ec.Path.Subpaths[n-1].Points, pt)
}

func (ec *ExecutionContext) current() (PathPoint, bool) {
	n := len(ec.Path.Subpaths)
	if n == 0 || len(ec.Path.Subpaths[n-1].Points) == 0 {
		return PathPoint{}, false
	}
	pts := ec.Path.Subpaths[n-1].Points
	return pts[len(pts)-1], true
}

func (ec *ExecutionContext) curve(operator string, nums []float64) {
	var c1, c2, end coords.Point
	m := ec.GraphicsState.CTM
	cur, ok := ec.current()
	if !ok {
		return
	}
	switch {
	case operator == "c" && len(nums) == 6:
		c1 = m.Transform(coords.Point{X: nums[0], Y: nums[1]})
		c2 = m.Transform(coords.Point{X: nums[2], Y: nums[3]})
		end = m.Transform(coords.Point{X: nums[4], Y: nums[5]})
	case operator == "v" && len(nums) == 4:
		c1 = coords.Point{X: cur.X, Y: cur.Y}
		c2 = m.Transform(coords.Point{X: nums[0], Y: nums[1]})
		end = m.Transform(coords.Point{X: nums[2], Y: nums[3]})
	case operator == "y" && len(nums) == 4:
		c1 = m.Transform(coords.Point{X: nums[0], Y: nums[1]})
		end = m.Transform(coords.Point{X: nums[2], Y: nums[3]})
		c2 = end
	default:
		return
	}
	ec.appendPoint(PathPoint{
		X: end.X, Y: end.Y, Type: PathCurveTo,
		Control1X: c1.X, Control1Y: c1.Y,
		Control2X: c2.X, Control2Y: c2.Y,
	})
}

func isPaint(op string) bool {
	switch op {
	case "S", "s", "f", "F", "f*", "B", "B*", "b", "b*", "n":
		return true
	}
	return false
}

// IsFill reports whether a painting operator fills, and with which rule.
func IsFill(op string) (fill, evenOdd bool) {
	switch op {
	case "f", "F", "B", "b":
		return true, false
	case "f*", "B*", "b*":
		return true, true
	}
	return false, false
}

// IsStroke reports whether a painting operator strokes.
func IsStroke(op string) bool {
	switch op {
	case "S", "s", "B", "B*", "b", "b*":
		return true
	}
	return false
}

func numbers(ops []raw.Object) []float64 {
	out := make([]float64, 0, len(ops))
	for _, o := range ops {
		if n, ok := o.(raw.NumberObj); ok {
			out = append(out, n.Float())
		}
	}
	return out
}

func nums6(n []float64) [6]float64 {
	return [6]float64{n[0], n[1], n[2], n[3], n[4], n[5]}
}

func colorFrom(c []float64) RGB {
	switch len(c) {
	case 1:
		return RGB{c[0], c[0], c[0]}
	case 3:
		return RGB{c[0], c[1], c[2]}
	case 4:
		k := c[3]
		return RGB{(1 - c[0]) * (1 - k), (1 - c[1]) * (1 - k), (1 - c[2]) * (1 - k)}
	}
	return RGB{}
}
