package layout

import (
	"math"

	"github.com/wudi/pdftools/builder"
	"github.com/wudi/pdftools/fonts"
)

// TableOptions configures table rendering.
type TableOptions struct {
	FontSize       float64
	MaxColumnWidth float64 // 0 leaves columns as wide as the frame allows
	Padding        float64
	Header         bool // first row is a header, repeated after page breaks
	HeaderFill     builder.Color
	HeaderText     builder.Color
	BodyFill       *builder.Color
	BorderWidth    float64
	Align          Align
}

// GridTable is the look used for spreadsheet grids: grey header with
// light text, beige body, black grid.
func GridTable() TableOptions {
	beige := builder.Color{R: 0.96, G: 0.96, B: 0.86}
	return TableOptions{
		FontSize:       8,
		MaxColumnWidth: 150,
		Padding:        4,
		Header:         true,
		HeaderFill:     builder.Gray(0.5),
		HeaderText:     builder.Color{R: 0.96, G: 0.96, B: 0.96},
		BodyFill:       &beige,
		BorderWidth:    1,
		Align:          AlignCenter,
	}
}

// PlainTable is a bordered table with a bold header and no fills.
func PlainTable() TableOptions {
	return TableOptions{
		FontSize:    10,
		Padding:     4,
		Header:      true,
		HeaderFill:  builder.Gray(0.9),
		BorderWidth: 0.5,
	}
}

// Table draws rows as a grid of equal-width columns. Short rows are padded
// with empty cells. Rows never split across pages.
func (e *Engine) Table(rows [][]string, opts TableOptions) {
	cols := 0
	for _, r := range rows {
		cols = max(cols, len(r))
	}
	if cols == 0 {
		return
	}
	if opts.FontSize <= 0 {
		opts.FontSize = e.DefaultFontSize
	}
	frame := e.pageWidth - e.Margins.Left - e.Margins.Right
	colWidth := frame / float64(cols)
	if opts.MaxColumnWidth > 0 {
		colWidth = math.Min(colWidth, opts.MaxColumnWidth)
	}
	lead := opts.FontSize * e.LineHeight

	e.ensurePage()
	if !e.atTop() {
		e.Spacer(opts.FontSize / 2)
	}
	for i, row := range rows {
		header := opts.Header && i == 0
		cells := e.wrapRow(row, cols, colWidth, opts, header)
		height := rowHeight(cells, lead, opts.Padding)
		if e.cursorY-height < e.Margins.Bottom && !e.atTop() {
			e.newPage()
			if opts.Header && i > 0 {
				hc := e.wrapRow(rows[0], cols, colWidth, opts, true)
				e.drawRow(hc, colWidth, rowHeight(hc, lead, opts.Padding), lead, opts, true)
			}
		}
		e.drawRow(cells, colWidth, height, lead, opts, header)
	}
	e.cursorY -= opts.FontSize
}

func (e *Engine) wrapRow(row []string, cols int, colWidth float64, opts TableOptions, header bool) [][]string {
	m := fonts.Standard14(e.cellFont(header))
	out := make([][]string, cols)
	for c := 0; c < cols; c++ {
		if c < len(row) {
			out[c] = WrapText(m, row[c], opts.FontSize, colWidth-2*opts.Padding)
		}
	}
	return out
}

func (e *Engine) cellFont(header bool) string {
	if header {
		return fonts.HelveticaBold
	}
	return e.DefaultFont
}

func rowHeight(cells [][]string, lead, padding float64) float64 {
	lines := 1
	for _, c := range cells {
		lines = max(lines, len(c))
	}
	return float64(lines)*lead + 2*padding
}

func (e *Engine) drawRow(cells [][]string, colWidth, height, lead float64, opts TableOptions, header bool) {
	font := e.cellFont(header)
	m := fonts.Standard14(font)
	top := e.cursorY
	x := e.Margins.Left
	for _, lines := range cells {
		var fill *builder.Color
		textColor := builder.Black
		if header {
			fill = &opts.HeaderFill
			textColor = opts.HeaderText
		} else if opts.BodyFill != nil {
			fill = opts.BodyFill
		}
		if fill != nil {
			e.currentPage.DrawRectangle(x, top-height, colWidth, height, builder.RectOptions{
				Fill:        true,
				FillColor:   *fill,
				Stroke:      opts.BorderWidth > 0,
				StrokeColor: builder.Black,
				LineWidth:   opts.BorderWidth,
			})
		} else if opts.BorderWidth > 0 {
			e.currentPage.DrawRectangle(x, top-height, colWidth, height, builder.RectOptions{
				Stroke:    true,
				LineWidth: opts.BorderWidth,
			})
		}
		// Lines are centred vertically inside the cell.
		y := top - (height-float64(len(lines))*lead)/2 - opts.FontSize
		inner := colWidth - 2*opts.Padding
		for _, line := range lines {
			lx := x + opts.Padding
			switch opts.Align {
			case AlignCenter:
				lx += (inner - m.MeasureText(line, opts.FontSize)) / 2
			case AlignRight:
				lx += inner - m.MeasureText(line, opts.FontSize)
			}
			e.currentPage.DrawText(line, lx, y, builder.TextOptions{
				Font:     font,
				FontSize: opts.FontSize,
				Color:    textColor,
			})
			y -= lead
		}
		x += colWidth
	}
	e.cursorY = top - height
}
