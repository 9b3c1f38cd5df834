// Package office reads and writes the OOXML formats the toolkit converts:
// Word and PowerPoint text is read into a block model that renders to
// Markdown, Word documents are written from plain paragraphs, and
// workbooks go through excelize.
package office

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/klauspost/compress/zip"
)

// ErrNotOOXML is returned when a package lacks the part its format needs.
var ErrNotOOXML = errors.New("office: not an OOXML package")

// maxPartSize bounds how much of a single part is inflated.
const maxPartSize = 64 << 20

type BlockKind int

const (
	Paragraph BlockKind = iota
	Heading
	ListItem
	Table
	PageBreak
)

// Block is one unit of flowing content.
type Block struct {
	Kind  BlockKind
	Text  string
	Level int // heading level from 1, or list nesting from 0
	Rows  [][]string
}

// Document is content read from a Word or PowerPoint file.
type Document struct {
	Blocks []Block
}

// Empty reports whether the document holds no text.
func (d *Document) Empty() bool {
	for _, b := range d.Blocks {
		if b.Kind != PageBreak {
			return false
		}
	}
	return true
}

// Markdown renders the blocks as CommonMark with GFM tables. Page breaks
// become thematic breaks.
func (d *Document) Markdown() string {
	var sb strings.Builder
	prev := -1
	for _, b := range d.Blocks {
		text := escapeMarkdown(b.Text)
		if b.Kind != Table && b.Kind != PageBreak && text == "" {
			continue
		}
		if b.Kind == Table && len(b.Rows) == 0 {
			continue
		}
		if sb.Len() > 0 {
			if BlockKind(prev) == ListItem && b.Kind == ListItem {
				sb.WriteString("\n")
			} else {
				sb.WriteString("\n\n")
			}
		}
		prev = int(b.Kind)
		switch b.Kind {
		case Heading:
			sb.WriteString(strings.Repeat("#", min(max(b.Level, 1), 6)))
			sb.WriteByte(' ')
			sb.WriteString(text)
		case ListItem:
			sb.WriteString(strings.Repeat("  ", b.Level))
			sb.WriteString("- ")
			sb.WriteString(text)
		case Table:
			writeTable(&sb, b.Rows)
		case PageBreak:
			sb.WriteString("***")
		default:
			sb.WriteString(text)
		}
	}
	sb.WriteByte('\n')
	return sb.String()
}

func writeTable(sb *strings.Builder, rows [][]string) {
	cols := 0
	for _, r := range rows {
		cols = max(cols, len(r))
	}
	line := func(r []string) {
		sb.WriteByte('|')
		for i := 0; i < cols; i++ {
			cell := ""
			if i < len(r) {
				cell = escapeMarkdown(r[i])
			}
			sb.WriteString(" " + cell + " |")
		}
		sb.WriteByte('\n')
	}
	line(rows[0])
	sb.WriteString("|" + strings.Repeat(" --- |", cols) + "\n")
	for _, r := range rows[1:] {
		line(r)
	}
}

// escapeMarkdown makes text literal: whitespace runs collapse to single
// spaces and punctuation Markdown would interpret is backslash-escaped.
func escapeMarkdown(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	var sb strings.Builder
	for _, r := range s {
		if strings.ContainsRune("\\`*_{}[]()#+-.!|<>~&", r) {
			sb.WriteByte('\\')
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

// readPart inflates one package part.
func readPart(zr *zip.Reader, name string) ([]byte, error) {
	name = strings.TrimPrefix(path.Clean(name), "/")
	for _, f := range zr.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, err
		}
		defer rc.Close()
		data, err := io.ReadAll(io.LimitReader(rc, maxPartSize+1))
		if err != nil {
			return nil, err
		}
		if len(data) > maxPartSize {
			return nil, fmt.Errorf("office: part %s too large", name)
		}
		return data, nil
	}
	return nil, fmt.Errorf("%w: missing %s", ErrNotOOXML, name)
}

func attr(se xml.StartElement, local string) string {
	for _, a := range se.Attr {
		if a.Name.Local == local {
			return a.Value
		}
	}
	return ""
}

// nsAttr looks up a namespaced attribute, such as r:id next to a plain id.
func nsAttr(se xml.StartElement, local string) string {
	for _, a := range se.Attr {
		if a.Name.Local == local && a.Name.Space != "" {
			return a.Value
		}
	}
	return ""
}

// relationships maps relationship ids to targets resolved against dir.
func relationships(zr *zip.Reader, relsPart, dir string) (map[string]string, error) {
	data, err := readPart(zr, relsPart)
	if err != nil {
		return nil, err
	}
	var rels struct {
		Items []struct {
			ID     string `xml:"Id,attr"`
			Target string `xml:"Target,attr"`
		} `xml:"Relationship"`
	}
	if err := xml.Unmarshal(data, &rels); err != nil {
		return nil, fmt.Errorf("office: %s: %w", relsPart, err)
	}
	out := make(map[string]string, len(rels.Items))
	for _, r := range rels.Items {
		if strings.HasPrefix(r.Target, "/") {
			out[r.ID] = strings.TrimPrefix(r.Target, "/")
			continue
		}
		out[r.ID] = path.Join(dir, r.Target)
	}
	return out, nil
}

// tableBuilder collects rows of cell text while walking a table.
type tableBuilder struct {
	rows  [][]string
	depth int
}

func (t *tableBuilder) startRow() { t.rows = append(t.rows, nil) }

func (t *tableBuilder) startCell() {
	if n := len(t.rows); n > 0 {
		t.rows[n-1] = append(t.rows[n-1], "")
	}
}

func (t *tableBuilder) addText(s string) {
	s = strings.TrimSpace(s)
	n := len(t.rows)
	if s == "" || n == 0 || len(t.rows[n-1]) == 0 {
		return
	}
	row := t.rows[n-1]
	if cell := row[len(row)-1]; cell != "" {
		s = cell + " " + s
	}
	row[len(row)-1] = s
}

func (t *tableBuilder) block() (Block, bool) {
	var rows [][]string
	for _, r := range t.rows {
		for _, c := range r {
			if c != "" {
				rows = append(rows, r)
				break
			}
		}
	}
	return Block{Kind: Table, Rows: rows}, len(rows) > 0
}
