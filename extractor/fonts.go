package extractor

import (
	"context"
	"strconv"
	"strings"

	"github.com/wudi/pdftools/document"
	"github.com/wudi/pdftools/fonts"
	"github.com/wudi/pdftools/ir/raw"
)

// Glyph is one decoded character code.
type Glyph struct {
	Text  string
	Width float64 // thousandths of an em
	Space bool    // single-byte code 32, which word spacing applies to
}

// Font turns string operands into text and advances.
type Font struct {
	composite bool
	toUnicode *toUnicodeMap
	encoding  [256]rune
	widths    map[int]float64
	missing   float64
	metrics   *fonts.Metrics
}

// Font returns the decoder for the font resource name, cached per font
// object. Unknown names decode as Helvetica with WinAnsiEncoding.
func (e *Extractor) Font(ctx context.Context, resources *raw.DictObj, name string) *Font {
	rd := e.doc.Raw
	var obj raw.Object
	if resources != nil {
		if fd := rd.DictOf(resources.Get("Font")); fd != nil {
			obj = fd.Get(name)
		}
	}
	ref, isRef := obj.(raw.RefObj)
	if isRef {
		if f, ok := e.fonts[ref.R]; ok {
			return f
		}
	}
	f := e.loadFont(ctx, rd.DictOf(obj))
	if isRef {
		e.fonts[ref.R] = f
	}
	return f
}

func (e *Extractor) loadFont(ctx context.Context, dict *raw.DictObj) *Font {
	rd := e.doc.Raw
	f := &Font{encoding: winAnsiTable(), widths: make(map[int]float64)}
	if dict == nil {
		f.metrics = fonts.Standard14(fonts.Helvetica)
		return f
	}
	if stm := rd.StreamOf(dict.Get("ToUnicode")); stm != nil {
		if data, err := document.DecodeStream(ctx, rd, stm); err == nil {
			f.toUnicode = parseToUnicodeCMap(data)
		}
	}
	if rd.NameOf(dict.Get("Subtype")) == "Type0" {
		f.composite = true
		f.missing = 1000
		if arr := rd.ArrayOf(dict.Get("DescendantFonts")); arr != nil && arr.Len() > 0 {
			if cid := rd.DictOf(arr.Get(0)); cid != nil {
				if dw, ok := rd.NumberOf(cid.Get("DW")); ok {
					f.missing = dw
				}
				f.loadCIDWidths(rd, rd.ArrayOf(cid.Get("W")))
			}
		}
		return f
	}

	f.loadEncoding(rd, dict.Get("Encoding"))
	first := rd.IntOf(dict.Get("FirstChar"), 0)
	if arr := rd.ArrayOf(dict.Get("Widths")); arr != nil {
		for i, w := range arr.Items {
			if v, ok := rd.NumberOf(w); ok {
				f.widths[first+i] = v
			}
		}
	} else {
		f.metrics = fonts.Standard14(rd.NameOf(dict.Get("BaseFont")))
	}
	if fd := rd.DictOf(dict.Get("FontDescriptor")); fd != nil {
		if mw, ok := rd.NumberOf(fd.Get("MissingWidth")); ok {
			f.missing = mw
		}
	}
	return f
}

// loadCIDWidths reads a /W array: either c [w1 w2 ...] or cFirst cLast w.
func (f *Font) loadCIDWidths(rd *raw.Document, arr *raw.ArrayObj) {
	if arr == nil {
		return
	}
	items := arr.Items
	for i := 0; i+1 < len(items); {
		start, ok := rd.NumberOf(items[i])
		if !ok {
			return
		}
		if list := rd.ArrayOf(items[i+1]); list != nil {
			for j, w := range list.Items {
				if v, ok := rd.NumberOf(w); ok {
					f.widths[int(start)+j] = v
				}
			}
			i += 2
			continue
		}
		if i+2 >= len(items) {
			return
		}
		end, _ := rd.NumberOf(items[i+1])
		w, _ := rd.NumberOf(items[i+2])
		for c := int(start); c <= int(end) && c-int(start) <= 0xFFFF; c++ {
			f.widths[c] = w
		}
		i += 3
	}
}

func (f *Font) loadEncoding(rd *raw.Document, enc raw.Object) {
	if name := rd.NameOf(enc); name != "" {
		// Standard and MacRoman agree with WinAnsi on the printable ASCII
		// range, which is what body text overwhelmingly uses.
		return
	}
	dict := rd.DictOf(enc)
	if dict == nil {
		return
	}
	diffs := rd.ArrayOf(dict.Get("Differences"))
	if diffs == nil {
		return
	}
	code := 0
	for _, item := range diffs.Items {
		switch v := rd.Resolve(item).(type) {
		case raw.NumberObj:
			code = int(v.Int())
		case raw.NameObj:
			if code >= 0 && code < 256 {
				if r, ok := glyphRune(v.Val); ok {
					f.encoding[code] = r
				}
			}
			code++
		}
	}
}

// Decode splits a string operand into glyphs.
func (f *Font) Decode(data []byte) []Glyph {
	var out []Glyph
	for len(data) > 0 {
		n := 1
		if f.composite {
			n = min(2, len(data))
		}
		text, l, mapped := "", n, false
		if f.toUnicode != nil {
			text, l, mapped = f.toUnicode.lookup(data)
			if !mapped {
				l = n
			}
		}
		code := bytesToInt(data[:l])
		if !mapped && !f.composite {
			if r := f.encoding[code]; r != 0 {
				text = string(r)
			}
		}
		out = append(out, Glyph{
			Text:  text,
			Width: f.width(code, text),
			Space: l == 1 && code == 32,
		})
		data = data[l:]
	}
	return out
}

func (f *Font) width(code int, text string) float64 {
	if w, ok := f.widths[code]; ok {
		return w
	}
	if f.metrics != nil {
		for _, r := range text {
			return f.metrics.RuneWidth(r)
		}
	}
	if f.missing > 0 {
		return f.missing
	}
	return 500
}

func winAnsiTable() [256]rune {
	var t [256]rune
	for b := 32; b < 256; b++ {
		if r := fonts.WinAnsiRune(byte(b)); r != 0xFFFD && r != 0x7F {
			t[b] = r
		}
	}
	return t
}

// glyphNames covers the Adobe Glyph names that show up in /Differences
// arrays of text fonts beyond single letters and digits.
var glyphNames = map[string]rune{
	"space": ' ', "exclam": '!', "quotedbl": '"', "numbersign": '#', "dollar": '$',
	"percent": '%', "ampersand": '&', "quotesingle": '\'', "quoteright": '’',
	"parenleft": '(', "parenright": ')', "asterisk": '*', "plus": '+', "comma": ',',
	"hyphen": '-', "period": '.', "slash": '/', "colon": ':', "semicolon": ';',
	"less": '<', "equal": '=', "greater": '>', "question": '?', "at": '@',
	"bracketleft": '[', "backslash": '\\', "bracketright": ']', "asciicircum": '^',
	"underscore": '_', "grave": '`', "quoteleft": '‘', "braceleft": '{', "bar": '|',
	"braceright": '}', "asciitilde": '~', "bullet": '•', "endash": '–', "emdash": '—',
	"quotedblleft": '“', "quotedblright": '”', "quotesinglbase": '‚', "quotedblbase": '„',
	"ellipsis": '…', "dagger": '†', "daggerdbl": '‡', "trademark": '™', "copyright": '©',
	"registered": '®', "degree": '°', "section": '§', "paragraph": '¶', "Euro": '€',
	"fi": 'ﬁ', "fl": 'ﬂ', "ff": 'ﬀ', "ffi": 'ﬃ', "ffl": 'ﬄ', "minus": '−',
	"zero": '0', "one": '1', "two": '2', "three": '3', "four": '4',
	"five": '5', "six": '6', "seven": '7', "eight": '8', "nine": '9',
	"eacute": 'é', "egrave": 'è', "ecircumflex": 'ê', "agrave": 'à', "aacute": 'á',
	"ccedilla": 'ç', "odieresis": 'ö', "udieresis": 'ü', "adieresis": 'ä', "germandbls": 'ß',
	"ntilde": 'ñ', "oacute": 'ó', "iacute": 'í', "uacute": 'ú', "nbspace": ' ',
}

// glyphRune maps a Glyph name to a rune: single letters, the table above,
// then the uniXXXX and uXXXX[XX] conventions. Suffixes after a period
// (a.sc, one.oldstyle) are ignored.
func glyphRune(name string) (rune, bool) {
	if i := strings.IndexByte(name, '.'); i > 0 {
		name = name[:i]
	}
	if len(name) == 1 {
		return rune(name[0]), true
	}
	if r, ok := glyphNames[name]; ok {
		return r, true
	}
	if hex, ok := strings.CutPrefix(name, "uni"); ok && len(hex) >= 4 {
		if v, err := strconv.ParseUint(hex[:4], 16, 32); err == nil {
			return rune(v), true
		}
	}
	if hex, ok := strings.CutPrefix(name, "u"); ok && len(hex) >= 4 && len(hex) <= 6 {
		if v, err := strconv.ParseUint(hex, 16, 32); err == nil {
			return rune(v), true
		}
	}
	return 0, false
}
