package office

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zip"
)

// OpenDocx reads the body of a Word document.
func OpenDocx(path string) (*Document, error) {
	rc, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("office: open docx: %w", err)
	}
	defer rc.Close()
	return readDocx(&rc.Reader)
}

// ReadDocx reads a Word document from r.
func ReadDocx(r io.ReaderAt, size int64) (*Document, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, fmt.Errorf("office: open docx: %w", err)
	}
	return readDocx(zr)
}

func readDocx(zr *zip.Reader) (*Document, error) {
	body, err := readPart(zr, "word/document.xml")
	if err != nil {
		return nil, err
	}
	styles := map[string]string{}
	if data, err := readPart(zr, "word/styles.xml"); err == nil {
		styles = styleNames(data)
	}
	return parseDocxBody(body, styles)
}

// styleNames maps style ids to their display names ("heading 1").
func styleNames(data []byte) map[string]string {
	var doc struct {
		Styles []struct {
			ID   string `xml:"styleId,attr"`
			Name struct {
				Val string `xml:"val,attr"`
			} `xml:"name"`
		} `xml:"style"`
	}
	out := make(map[string]string)
	if xml.Unmarshal(data, &doc) != nil {
		return out
	}
	for _, s := range doc.Styles {
		out[s.ID] = s.Name.Val
	}
	return out
}

// headingLevel derives a heading level from a paragraph style, zero when
// the style is not a heading.
func headingLevel(styleID string, styles map[string]string) int {
	for _, name := range []string{styles[styleID], styleID} {
		n := strings.ToLower(strings.ReplaceAll(name, " ", ""))
		switch {
		case n == "title":
			return 1
		case n == "subtitle":
			return 2
		case strings.HasPrefix(n, "heading"):
			if lvl, err := strconv.Atoi(strings.TrimPrefix(n, "heading")); err == nil && lvl > 0 {
				return lvl
			}
		}
	}
	return 0
}

type docxParagraph struct {
	style     string
	list      bool
	level     int
	text      strings.Builder
	pageBreak bool
}

func parseDocxBody(data []byte, styles map[string]string) (*Document, error) {
	d := xml.NewDecoder(bytes.NewReader(data))
	doc := &Document{}
	var (
		para   *docxParagraph
		outer  []*docxParagraph // paragraphs enclosing a text box
		table  *tableBuilder
		inText bool
	)
	for {
		tok, err := d.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("office: word/document.xml: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "tbl":
				if table == nil {
					table = &tableBuilder{}
				}
				table.depth++
			case "tr":
				if table != nil && table.depth == 1 {
					table.startRow()
				}
			case "tc":
				if table != nil && table.depth == 1 {
					table.startCell()
				}
			case "p":
				if para != nil {
					outer = append(outer, para)
				}
				para = &docxParagraph{}
			case "pStyle":
				if para != nil {
					para.style = attr(t, "val")
				}
			case "numPr":
				if para != nil {
					para.list = true
				}
			case "ilvl":
				if para != nil {
					para.level, _ = strconv.Atoi(attr(t, "val"))
				}
			case "t":
				inText = true
			case "tab":
				if para != nil {
					para.text.WriteByte(' ')
				}
			case "br", "cr":
				if para == nil {
					break
				}
				if attr(t, "type") == "page" {
					para.pageBreak = true
				} else {
					para.text.WriteByte(' ')
				}
			}
		case xml.CharData:
			if inText && para != nil {
				para.text.Write(t)
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				if para == nil {
					break
				}
				if table != nil {
					table.addText(para.text.String())
				} else {
					doc.Blocks = append(doc.Blocks, para.blocks(styles)...)
				}
				para = nil
				if n := len(outer); n > 0 {
					para, outer = outer[n-1], outer[:n-1]
				}
			case "tbl":
				if table == nil {
					break
				}
				table.depth--
				if table.depth == 0 {
					if b, ok := table.block(); ok {
						doc.Blocks = append(doc.Blocks, b)
					}
					table = nil
				}
			}
		}
	}
	return doc, nil
}

func (p *docxParagraph) blocks(styles map[string]string) []Block {
	var out []Block
	text := strings.TrimSpace(p.text.String())
	if text != "" {
		switch lvl := headingLevel(p.style, styles); {
		case lvl > 0:
			out = append(out, Block{Kind: Heading, Text: text, Level: lvl})
		case p.list || strings.EqualFold(p.style, "ListParagraph"):
			out = append(out, Block{Kind: ListItem, Text: text, Level: p.level})
		default:
			out = append(out, Block{Kind: Paragraph, Text: text})
		}
	}
	if p.pageBreak {
		out = append(out, Block{Kind: PageBreak})
	}
	return out
}

// DocxWriter builds a Word document from plain paragraphs.
type DocxWriter struct {
	body bytes.Buffer
}

func NewDocxWriter() *DocxWriter { return &DocxWriter{} }

// Paragraph appends a paragraph of plain text.
func (w *DocxWriter) Paragraph(text string) {
	w.body.WriteString(`<w:p><w:r><w:t xml:space="preserve">`)
	xml.EscapeText(&w.body, []byte(text))
	w.body.WriteString(`</w:t></w:r></w:p>`)
}

// Heading appends a paragraph in the built-in heading style.
func (w *DocxWriter) Heading(text string, level int) {
	fmt.Fprintf(&w.body, `<w:p><w:pPr><w:pStyle w:val="Heading%d"/></w:pPr><w:r><w:t xml:space="preserve">`, min(max(level, 1), 9))
	xml.EscapeText(&w.body, []byte(text))
	w.body.WriteString(`</w:t></w:r></w:p>`)
}

// PageBreak starts a new page.
func (w *DocxWriter) PageBreak() {
	w.body.WriteString(`<w:p><w:r><w:br w:type="page"/></w:r></w:p>`)
}

const (
	docxContentTypes = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types"><Default Extension="rels" ContentType="application/vnd.openxmlformats-package.relationships+xml"/><Default Extension="xml" ContentType="application/xml"/><Override PartName="/word/document.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"/></Types>`
	docxRels = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships"><Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/officeDocument" Target="word/document.xml"/></Relationships>`
	docxBodyStart = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>`
	docxBodyEnd = `<w:sectPr><w:pgSz w:w="12240" w:h="15840"/><w:pgMar w:top="1440" w:right="1440" w:bottom="1440" w:left="1440" w:header="720" w:footer="720" w:gutter="0"/></w:sectPr></w:body></w:document>`
)

// WriteTo writes the .docx package.
func (w *DocxWriter) WriteTo(out io.Writer) (int64, error) {
	cw := &countingWriter{w: out}
	zw := zip.NewWriter(cw)
	parts := []struct {
		name string
		data []byte
	}{
		{"[Content_Types].xml", []byte(docxContentTypes)},
		{"_rels/.rels", []byte(docxRels)},
		{"word/document.xml", append(append([]byte(docxBodyStart), w.body.Bytes()...), docxBodyEnd...)},
	}
	for _, p := range parts {
		f, err := zw.CreateHeader(&zip.FileHeader{Name: p.name, Method: zip.Deflate})
		if err != nil {
			return cw.n, err
		}
		if _, err := f.Write(p.data); err != nil {
			return cw.n, err
		}
	}
	err := zw.Close()
	return cw.n, err
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
