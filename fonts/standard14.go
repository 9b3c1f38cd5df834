package fonts

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Metrics describes a standard 14 font well enough to lay out WinAnsi text.
type Metrics struct {
	BaseFont string
	Ascent   float64
	Descent  float64
	widths   [95]int // code points 32..126
}

const (
	Helvetica     = "Helvetica"
	HelveticaBold = "Helvetica-Bold"
)

var helvetica = Metrics{
	BaseFont: Helvetica,
	Ascent:   718,
	Descent:  -207,
	widths: [95]int{
		278, 278, 355, 556, 556, 889, 667, 191, 333, 333, 389, 584, 278, 333, 278, 278, // space-/
		556, 556, 556, 556, 556, 556, 556, 556, 556, 556, // 0-9
		278, 278, 584, 584, 584, 556, 1015, // :-@
		667, 667, 722, 722, 667, 611, 778, 722, 278, 500, 667, 556, 833, // A-M
		722, 778, 667, 778, 722, 667, 611, 722, 667, 944, 667, 667, 611, // N-Z
		278, 278, 278, 469, 556, 333, // [-`
		556, 556, 500, 556, 556, 278, 556, 556, 222, 222, 500, 222, 833, // a-m
		556, 556, 556, 556, 333, 500, 278, 556, 500, 722, 500, 500, 500, // n-z
		334, 260, 334, 584, // {-~
	},
}

var helveticaBold = Metrics{
	BaseFont: HelveticaBold,
	Ascent:   718,
	Descent:  -207,
	widths: [95]int{
		278, 333, 474, 556, 556, 889, 722, 238, 333, 333, 389, 584, 278, 333, 278, 278,
		556, 556, 556, 556, 556, 556, 556, 556, 556, 556,
		333, 333, 584, 584, 584, 611, 975,
		722, 722, 722, 722, 667, 611, 778, 722, 278, 556, 722, 611, 833,
		722, 778, 667, 778, 722, 667, 611, 722, 667, 944, 667, 667, 611,
		333, 278, 333, 584, 556, 333,
		556, 611, 556, 611, 556, 333, 611, 611, 278, 278, 556, 278, 889,
		611, 611, 611, 611, 389, 556, 333, 611, 556, 778, 556, 556, 500,
		389, 280, 389, 584,
	},
}

// Standard14 returns metrics for the Helvetica family. Other names map to
// Helvetica, matching how viewers substitute missing base fonts.
func Standard14(name string) *Metrics {
	if strings.Contains(name, "Bold") {
		return &helveticaBold
	}
	return &helvetica
}

// extraWidths covers WinAnsi punctuation above 126.
var extraWidths = map[rune]int{
	'€': 556, '‚': 222, 'ƒ': 556, '„': 333, '…': 1000, '†': 556, '‡': 556,
	'‰': 1000, '‹': 333, '›': 333, '‘': 222, '’': 222, '“': 333, '”': 333,
	'•': 350, '–': 556, '—': 1000, '™': 1000, ' ': 278, '©': 737, '®': 737,
	'°': 400, '±': 584, '·': 278, '×': 584, '÷': 584, '«': 556, '»': 556,
	'§': 556, '¶': 537, 'ß': 611, 'Æ': 1000, 'æ': 889, 'Ø': 778, 'ø': 611,
}

// RuneWidth returns the advance of r in thousandths of an em. Accented
// Latin letters use the width of their base letter.
func (m *Metrics) RuneWidth(r rune) float64 {
	if r >= 32 && r <= 126 {
		return float64(m.widths[r-32])
	}
	if w, ok := extraWidths[r]; ok {
		return float64(w)
	}
	if base := []rune(norm.NFD.String(string(r))); len(base) > 0 && base[0] >= 32 && base[0] <= 126 {
		return float64(m.widths[base[0]-32])
	}
	return float64(m.widths['?'-32])
}

// MeasureText returns the width of s in points at size.
func (m *Metrics) MeasureText(s string, size float64) float64 {
	var w float64
	for _, r := range s {
		w += m.RuneWidth(r)
	}
	return w * size / 1000
}
