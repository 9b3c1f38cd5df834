package fonts

import (
	"fmt"
	"sync"

	xfont "golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/sfnt"
	"golang.org/x/image/math/fixed"
)

// Outline supplies glyph shapes for rasterizing text. PDF fonts are never
// embedded by this project, so every page is drawn with one outline face.
type Outline struct {
	font *sfnt.Font
	mu   sync.Mutex
	buf  sfnt.Buffer
}

// LoadOutline parses a TrueType/OpenType font.
func LoadOutline(data []byte) (*Outline, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("truetype font data is empty")
	}
	f, err := sfnt.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse truetype: %w", err)
	}
	if f.UnitsPerEm() == 0 {
		return nil, fmt.Errorf("invalid unitsPerEm")
	}
	return &Outline{font: f}, nil
}

var (
	defaultOnce    sync.Once
	defaultOutline *Outline
)

// DefaultOutline returns Go Regular.
func DefaultOutline() *Outline {
	defaultOnce.Do(func() {
		o, err := LoadOutline(goregular.TTF)
		if err != nil {
			panic(err)
		}
		defaultOutline = o
	})
	return defaultOutline
}

// Glyph returns the outline of r at ppem pixels per em, y pointing down,
// and its advance in pixels. Missing glyphs yield no segments.
func (o *Outline) Glyph(r rune, ppem float64) (sfnt.Segments, float64, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	idx, err := o.font.GlyphIndex(&o.buf, r)
	if err != nil {
		return nil, 0, err
	}
	if idx == 0 {
		return nil, ppem / 2, nil
	}
	size := fixed.Int26_6(ppem * 64)
	segs, err := o.font.LoadGlyph(&o.buf, idx, size, nil)
	if err != nil {
		return nil, 0, err
	}
	adv, err := o.font.GlyphAdvance(&o.buf, idx, size, xfont.HintingNone)
	if err != nil {
		return nil, 0, err
	}
	// LoadGlyph reuses its buffer across calls.
	out := make(sfnt.Segments, len(segs))
	copy(out, segs)
	return out, float64(adv) / 64, nil
}

// Width returns the advance of r in thousandths of an em.
func (o *Outline) Width(r rune) float64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	idx, err := o.font.GlyphIndex(&o.buf, r)
	if err != nil || idx == 0 {
		return 500
	}
	upem := o.font.UnitsPerEm()
	adv, err := o.font.GlyphAdvance(&o.buf, idx, fixed.Int26_6(upem)<<6, xfont.HintingNone)
	if err != nil {
		return 500
	}
	return scaleFixed(adv, upem)
}

func scaleFixed(val fixed.Int26_6, unitsPerEm sfnt.Units) float64 {
	return float64(val) * 1000.0 / (64.0 * float64(unitsPerEm))
}
