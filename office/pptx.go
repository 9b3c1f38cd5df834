package office

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zip"
)

// Slide is the text of one slide in reading order.
type Slide struct {
	Blocks []Block
}

// OpenPptx reads the slides of a presentation.
func OpenPptx(path string) ([]Slide, error) {
	rc, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("office: open pptx: %w", err)
	}
	defer rc.Close()
	return readPptx(&rc.Reader)
}

// ReadPptx reads a presentation from r.
func ReadPptx(r io.ReaderAt, size int64) ([]Slide, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, fmt.Errorf("office: open pptx: %w", err)
	}
	return readPptx(zr)
}

// SlidesDocument lays slides out one per page, each under a "Slide N"
// heading. Titles become headings and indented paragraphs list items.
func SlidesDocument(slides []Slide) *Document {
	doc := &Document{}
	for i, s := range slides {
		if i > 0 {
			doc.Blocks = append(doc.Blocks, Block{Kind: PageBreak})
		}
		doc.Blocks = append(doc.Blocks, Block{Kind: Heading, Text: fmt.Sprintf("Slide %d", i+1), Level: 3})
		doc.Blocks = append(doc.Blocks, s.Blocks...)
	}
	return doc
}

func readPptx(zr *zip.Reader) ([]Slide, error) {
	parts, err := slideParts(zr)
	if err != nil {
		return nil, err
	}
	slides := make([]Slide, 0, len(parts))
	for _, p := range parts {
		data, err := readPart(zr, p)
		if err != nil {
			return nil, err
		}
		s, err := parseSlide(data)
		if err != nil {
			return nil, fmt.Errorf("office: %s: %w", p, err)
		}
		slides = append(slides, s)
	}
	return slides, nil
}

var slideName = regexp.MustCompile(`^ppt/slides/slide(\d+)\.xml$`)

// slideParts lists slide part names in presentation order, falling back
// to numeric file order when the presentation part is unusable.
func slideParts(zr *zip.Reader) ([]string, error) {
	if order, err := presentationOrder(zr); err == nil && len(order) > 0 {
		return order, nil
	}
	type numbered struct {
		n    int
		name string
	}
	var found []numbered
	for _, f := range zr.File {
		if m := slideName.FindStringSubmatch(f.Name); m != nil {
			n, _ := strconv.Atoi(m[1])
			found = append(found, numbered{n, f.Name})
		}
	}
	if len(found) == 0 {
		if _, err := readPart(zr, "ppt/presentation.xml"); err != nil {
			return nil, err
		}
		return nil, nil
	}
	sort.Slice(found, func(i, j int) bool { return found[i].n < found[j].n })
	out := make([]string, len(found))
	for i, f := range found {
		out[i] = f.name
	}
	return out, nil
}

func presentationOrder(zr *zip.Reader) ([]string, error) {
	data, err := readPart(zr, "ppt/presentation.xml")
	if err != nil {
		return nil, err
	}
	rels, err := relationships(zr, "ppt/_rels/presentation.xml.rels", "ppt")
	if err != nil {
		return nil, err
	}
	d := xml.NewDecoder(bytes.NewReader(data))
	var out []string
	for {
		tok, err := d.Token()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		if se, ok := tok.(xml.StartElement); ok && se.Name.Local == "sldId" {
			if target, ok := rels[nsAttr(se, "id")]; ok {
				out = append(out, path.Clean(target))
			}
		}
	}
}

type slideShape struct {
	title  bool
	blocks []Block
}

type slideParagraph struct {
	level int
	text  strings.Builder
}

func parseSlide(data []byte) (Slide, error) {
	d := xml.NewDecoder(bytes.NewReader(data))
	var (
		slide  Slide
		shape  *slideShape
		para   *slideParagraph
		table  *tableBuilder
		inText bool
	)
	for {
		tok, err := d.Token()
		if err == io.EOF {
			return slide, nil
		}
		if err != nil {
			return Slide{}, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "sp":
				shape = &slideShape{}
			case "ph":
				if shape != nil {
					typ := attr(t, "type")
					shape.title = typ == "title" || typ == "ctrTitle"
				}
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
				para = &slideParagraph{}
			case "pPr":
				if para != nil {
					para.level, _ = strconv.Atoi(attr(t, "lvl"))
				}
			case "t":
				inText = true
			case "br":
				if para != nil {
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
				text := strings.TrimSpace(para.text.String())
				switch {
				case table != nil:
					table.addText(text)
				case text == "" || shape == nil:
				case shape.title:
					shape.blocks = append(shape.blocks, Block{Kind: Heading, Text: text, Level: 2})
				case para.level > 0:
					shape.blocks = append(shape.blocks, Block{Kind: ListItem, Text: text, Level: para.level - 1})
				default:
					shape.blocks = append(shape.blocks, Block{Kind: Paragraph, Text: text})
				}
				para = nil
			case "sp":
				if shape != nil {
					slide.Blocks = append(slide.Blocks, shape.blocks...)
				}
				shape = nil
			case "tbl":
				if table == nil {
					break
				}
				table.depth--
				if table.depth == 0 {
					if b, ok := table.block(); ok {
						slide.Blocks = append(slide.Blocks, b)
					}
					table = nil
				}
			}
		}
	}
}
