package layout

import (
	"strings"

	"github.com/wudi/pdftools/builder"
	"github.com/wudi/pdftools/fonts"
)

// PaperSize is a page size in points.
type PaperSize struct {
	Width, Height float64
}

var (
	Letter = PaperSize{612, 792}
	A4     = PaperSize{595.28, 841.89}
)

// Landscape swaps the dimensions.
func (p PaperSize) Landscape() PaperSize { return PaperSize{p.Height, p.Width} }

// Engine flows structured content (headings, paragraphs, lists, tables)
// onto pages, breaking pages as the cursor reaches the bottom margin.
type Engine struct {
	b builder.PDFBuilder

	// Configuration
	DefaultFont     string
	DefaultFontSize float64
	LineHeight      float64 // Multiplier, e.g., 1.2
	Margins         Margins

	// State
	currentPage builder.PageBuilder
	cursorX     float64
	cursorY     float64
	pageWidth   float64
	pageHeight  float64
}

// Margins defines page margins in points.
type Margins struct {
	Top, Bottom, Left, Right float64
}

// Uniform returns equal margins on every side.
func Uniform(m float64) Margins { return Margins{m, m, m, m} }

// Option defines a configuration option for the Engine.
type Option func(*Engine)

// WithDefaultFont sets the default font.
func WithDefaultFont(font string) Option {
	return func(e *Engine) {
		e.DefaultFont = font
	}
}

// WithDefaultFontSize sets the default font size.
func WithDefaultFontSize(size float64) Option {
	return func(e *Engine) {
		e.DefaultFontSize = size
	}
}

// WithLineHeight sets the line height multiplier.
func WithLineHeight(height float64) Option {
	return func(e *Engine) {
		e.LineHeight = height
	}
}

// WithMargins sets the page margins.
func WithMargins(margins Margins) Option {
	return func(e *Engine) {
		e.Margins = margins
	}
}

// WithPaperSize sets the page dimensions.
func WithPaperSize(size PaperSize) Option {
	return func(e *Engine) {
		e.pageWidth = size.Width
		e.pageHeight = size.Height
	}
}

// NewEngine creates a new layout engine with optional configuration.
func NewEngine(b builder.PDFBuilder, opts ...Option) *Engine {
	e := &Engine{
		b:               b,
		DefaultFont:     fonts.Helvetica,
		DefaultFontSize: 12,
		LineHeight:      1.2,
		Margins:         Uniform(72),
		pageWidth:       Letter.Width,
		pageHeight:      Letter.Height,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Style describes how a block of text is set.
type Style struct {
	Font        string
	FontSize    float64
	Leading     float64 // baseline-to-baseline distance; 0 derives it from LineHeight
	Indent      float64
	SpaceBefore float64
	SpaceAfter  float64
	Align       Align
	Color       builder.Color
}

// Align is horizontal text alignment.
type Align int

const (
	AlignLeft Align = iota
	AlignCenter
	AlignRight
)

// BodyStyle is the default paragraph style.
func (e *Engine) BodyStyle() Style {
	return Style{
		Font:       e.DefaultFont,
		FontSize:   e.DefaultFontSize,
		SpaceAfter: e.DefaultFontSize / 2,
	}
}

// HeadingStyle returns the style of a heading at level (1 is largest).
func (e *Engine) HeadingStyle(level int) Style {
	scale := 1.1
	switch level {
	case 1:
		scale = 2.0
	case 2:
		scale = 1.5
	case 3:
		scale = 1.25
	}
	size := e.DefaultFontSize * scale
	return Style{
		Font:        fonts.HelveticaBold,
		FontSize:    size,
		SpaceBefore: size / 2,
		SpaceAfter:  size / 2,
	}
}

// Pages returns the number of pages started so far.
func (e *Engine) Pages() int { return e.b.PageCount() }

// ensurePage makes sure there is a current page and the cursor is valid.
func (e *Engine) ensurePage() {
	if e.currentPage == nil {
		e.newPage()
	}
}

// newPage starts a new page and resets the cursor.
func (e *Engine) newPage() {
	if e.currentPage != nil {
		e.currentPage.Finish()
	}
	e.currentPage = e.b.NewPage(e.pageWidth, e.pageHeight)
	e.cursorX = e.Margins.Left
	e.cursorY = e.pageHeight - e.Margins.Top
}

// atTop reports whether nothing has been placed on the current page.
func (e *Engine) atTop() bool {
	return e.currentPage == nil || e.cursorY >= e.pageHeight-e.Margins.Top
}

// checkPageBreak checks if there is enough space for height; if not, adds a new page.
func (e *Engine) checkPageBreak(height float64) {
	if e.currentPage == nil {
		e.newPage()
		return
	}
	if e.cursorY-height < e.Margins.Bottom && !e.atTop() {
		e.newPage()
	}
}

// PageBreak forces the next block onto a fresh page. A break on an empty
// page is ignored.
func (e *Engine) PageBreak() {
	if e.atTop() {
		return
	}
	e.newPage()
}

// Spacer advances the cursor by h points.
func (e *Engine) Spacer(h float64) {
	e.ensurePage()
	if e.cursorY-h < e.Margins.Bottom {
		e.newPage()
		return
	}
	e.cursorY -= h
}

// Heading sets text in the heading style of level.
func (e *Engine) Heading(text string, level int) {
	e.Write(text, e.HeadingStyle(level))
}

// Paragraph sets text in the body style.
func (e *Engine) Paragraph(text string) {
	e.Write(text, e.BodyStyle())
}

// ListItem sets text with a hanging marker, indented by level.
func (e *Engine) ListItem(text, marker string, level int) {
	st := e.BodyStyle()
	st.SpaceAfter = e.DefaultFontSize / 4
	indent := 15.0 * float64(level+1)
	size := st.FontSize
	e.ensurePage()
	e.checkPageBreak(e.leading(st))
	e.currentPage.DrawText(marker, e.Margins.Left+indent-12, e.cursorY-size, builder.TextOptions{
		Font:     st.Font,
		FontSize: size,
	})
	st.Indent = indent
	e.writeLines(text, st, false)
}

func (e *Engine) leading(st Style) float64 {
	if st.Leading > 0 {
		return st.Leading
	}
	return st.FontSize * e.LineHeight
}

// Write sets a wrapped block of text in st. Blank text is skipped.
func (e *Engine) Write(text string, st Style) {
	if strings.TrimSpace(text) == "" {
		return
	}
	e.ensurePage()
	if st.SpaceBefore > 0 && !e.atTop() {
		e.Spacer(st.SpaceBefore)
	}
	e.writeLines(text, st, true)
}

func (e *Engine) writeLines(text string, st Style, breakBefore bool) {
	if st.Font == "" {
		st.Font = e.DefaultFont
	}
	if st.FontSize <= 0 {
		st.FontSize = e.DefaultFontSize
	}
	m := fonts.Standard14(st.Font)
	x := e.Margins.Left + st.Indent
	maxWidth := e.pageWidth - e.Margins.Right - x
	lead := e.leading(st)
	for i, line := range WrapText(m, text, st.FontSize, maxWidth) {
		if i > 0 || breakBefore {
			e.checkPageBreak(lead)
		}
		lx := x
		switch st.Align {
		case AlignCenter:
			lx = x + (maxWidth-m.MeasureText(line, st.FontSize))/2
		case AlignRight:
			lx = x + maxWidth - m.MeasureText(line, st.FontSize)
		}
		e.currentPage.DrawText(line, lx, e.cursorY-st.FontSize, builder.TextOptions{
			Font:     st.Font,
			FontSize: st.FontSize,
			Color:    st.Color,
		})
		e.cursorY -= lead
	}
	if st.SpaceAfter > 0 {
		e.cursorY -= st.SpaceAfter
	}
}

// WrapText breaks text into lines no wider than maxWidth at size. Newlines
// force breaks; words longer than a line are split between characters.
func WrapText(m *fonts.Metrics, text string, size, maxWidth float64) []string {
	var lines []string
	for _, para := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		words := strings.Fields(para)
		if len(words) == 0 {
			lines = append(lines, "")
			continue
		}
		var current string
		currentWidth := 0.0
		space := m.MeasureText(" ", size)
		for _, word := range words {
			w := m.MeasureText(word, size)
			if current != "" && currentWidth+space+w <= maxWidth {
				current += " " + word
				currentWidth += space + w
				continue
			}
			if current != "" {
				lines = append(lines, current)
				current, currentWidth = "", 0
			}
			if w <= maxWidth {
				current, currentWidth = word, w
				continue
			}
			// Character-level wrapping
			var sub strings.Builder
			subWidth := 0.0
			for _, r := range word {
				rw := m.RuneWidth(r) * size / 1000
				if subWidth+rw > maxWidth && sub.Len() > 0 {
					lines = append(lines, sub.String())
					sub.Reset()
					subWidth = 0
				}
				sub.WriteRune(r)
				subWidth += rw
			}
			current, currentWidth = sub.String(), subWidth
		}
		if current != "" {
			lines = append(lines, current)
		}
	}
	// Trailing blank lines carry no content.
	for len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}
