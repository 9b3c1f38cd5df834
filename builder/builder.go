package builder

import (
	"errors"
	"time"

	"github.com/wudi/pdftools/ir/raw"
)

// PDFBuilder provides a fluent API for PDF construction.
type PDFBuilder interface {
	NewPage(width, height float64) PageBuilder
	SetInfo(info Info) PDFBuilder
	PageCount() int
	Build() (*raw.Document, error)
}

// PageBuilder provides a fluent API for page construction.
type PageBuilder interface {
	DrawText(text string, x, y float64, opts TextOptions) PageBuilder
	DrawImage(img *Image, x, y, width, height float64) PageBuilder
	DrawRectangle(x, y, width, height float64, opts RectOptions) PageBuilder
	DrawLine(x1, y1, x2, y2 float64, opts LineOptions) PageBuilder
	SetRotation(degrees int) PageBuilder
	Canvas() *Canvas
	Finish() PDFBuilder
}

// Info is the document information dictionary.
type Info struct {
	Title    string
	Author   string
	Subject  string
	Creator  string
	Producer string
	Created  time.Time
}

type pageSpec struct {
	width, height float64
	rotate        int
	canvas        *Canvas
}

type builderImpl struct {
	pages []*pageSpec
	info  *Info
}

type pageBuilderImpl struct {
	parent *builderImpl
	page   *pageSpec
}

// ErrNoPages is returned by Build when no page was added.
var ErrNoPages = errors.New("builder: document has no pages")

// NewBuilder constructs a PDFBuilder.
func NewBuilder() PDFBuilder { return &builderImpl{} }

func (b *builderImpl) NewPage(w, h float64) PageBuilder {
	p := &pageSpec{width: w, height: h, canvas: NewCanvas()}
	b.pages = append(b.pages, p)
	return &pageBuilderImpl{parent: b, page: p}
}

func (b *builderImpl) SetInfo(info Info) PDFBuilder {
	b.info = &info
	return b
}

func (b *builderImpl) PageCount() int { return len(b.pages) }

func (b *builderImpl) Build() (*raw.Document, error) {
	if len(b.pages) == 0 {
		return nil, ErrNoPages
	}
	doc := raw.NewDocument()
	pages := raw.Dict()
	pages.Set("Type", raw.NameLiteral("Pages"))
	pagesRef := doc.Add(pages)
	kids := raw.NewArray()
	for _, spec := range b.pages {
		page := raw.Dict()
		page.Set("Type", raw.NameLiteral("Page"))
		page.Set("Parent", pagesRef)
		page.Set("MediaBox", raw.Rect(0, 0, spec.width, spec.height))
		if spec.rotate != 0 {
			page.Set("Rotate", raw.NumberInt(int64(spec.rotate)))
		}
		page.Set("Resources", spec.canvas.Resources(doc))
		page.Set("Contents", doc.Add(spec.canvas.Content()))
		kids.Append(doc.Add(page))
	}
	pages.Set("Kids", kids)
	pages.Set("Count", raw.NumberInt(int64(len(b.pages))))

	cat := raw.Dict()
	cat.Set("Type", raw.NameLiteral("Catalog"))
	cat.Set("Pages", pagesRef)
	doc.Trailer.Set("Root", doc.Add(cat))
	if b.info != nil {
		doc.Trailer.Set("Info", doc.Add(b.info.Dict()))
	}
	return doc, nil
}

// Dict renders the info as a PDF dictionary; empty fields are omitted.
func (i Info) Dict() *raw.DictObj {
	d := raw.Dict()
	set := func(k, v string) {
		if v != "" {
			d.Set(k, raw.Str(TextString(v)))
		}
	}
	set("Title", i.Title)
	set("Author", i.Author)
	set("Subject", i.Subject)
	set("Creator", i.Creator)
	set("Producer", i.Producer)
	if !i.Created.IsZero() {
		d.Set("CreationDate", raw.Str([]byte(FormatDate(i.Created))))
	}
	return d
}

// FormatDate renders t as a PDF date string.
func FormatDate(t time.Time) string {
	s := t.Format("D:20060102150405")
	_, off := t.Zone()
	if off == 0 {
		return s + "Z"
	}
	sign := byte('+')
	if off < 0 {
		sign = '-'
		off = -off
	}
	return s + string(sign) + twoDigits(off/3600) + "'" + twoDigits(off%3600/60) + "'"
}

func twoDigits(n int) string {
	return string([]byte{byte('0' + n/10%10), byte('0' + n%10)})
}

// TextString encodes s as PDFDocEncoding when it is ASCII and as UTF-16BE
// with a byte order mark otherwise.
func TextString(s string) []byte {
	ascii := true
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			ascii = false
			break
		}
	}
	if ascii {
		return []byte(s)
	}
	out := []byte{0xFE, 0xFF}
	for _, r := range s {
		if r >= 0x10000 {
			r -= 0x10000
			hi, lo := 0xD800+(r>>10), 0xDC00+(r&0x3FF)
			out = append(out, byte(hi>>8), byte(hi), byte(lo>>8), byte(lo))
			continue
		}
		out = append(out, byte(r>>8), byte(r))
	}
	return out
}

func (p *pageBuilderImpl) DrawText(text string, x, y float64, opts TextOptions) PageBuilder {
	p.page.canvas.DrawText(text, x, y, opts)
	return p
}

func (p *pageBuilderImpl) DrawImage(img *Image, x, y, width, height float64) PageBuilder {
	p.page.canvas.DrawImage(img, x, y, width, height)
	return p
}

func (p *pageBuilderImpl) DrawRectangle(x, y, width, height float64, opts RectOptions) PageBuilder {
	p.page.canvas.DrawRectangle(x, y, width, height, opts)
	return p
}

func (p *pageBuilderImpl) DrawLine(x1, y1, x2, y2 float64, opts LineOptions) PageBuilder {
	p.page.canvas.DrawLine(x1, y1, x2, y2, opts)
	return p
}

func (p *pageBuilderImpl) SetRotation(degrees int) PageBuilder {
	p.page.rotate = NormalizeRotation(degrees)
	return p
}

func (p *pageBuilderImpl) Canvas() *Canvas { return p.page.canvas }

func (p *pageBuilderImpl) Finish() PDFBuilder { return p.parent }

// NormalizeRotation folds deg into [0, 360).
func NormalizeRotation(deg int) int {
	deg %= 360
	if deg < 0 {
		deg += 360
	}
	return deg
}

